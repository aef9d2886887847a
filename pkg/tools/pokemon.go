package tools

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dotsetgreg/pibear/pkg/logger"
)

const UnknownPokemon = "未知寶可夢"

// PokemonClient draws a random creature from PokeAPI.
type PokemonClient struct {
	apiBase string
	maxID   int
	client  *http.Client
	intn    func(n int) int
}

func NewPokemonClient(apiBase string, maxID int, client *http.Client) *PokemonClient {
	if maxID <= 0 {
		maxID = 1010
	}
	return &PokemonClient{
		apiBase: strings.TrimRight(apiBase, "/"),
		maxID:   maxID,
		client:  clientOrDefault(client),
		intn:    rand.IntN,
	}
}

type pokemonResponse struct {
	Name   string  `json:"name"`
	Height float64 `json:"height"`
	Weight float64 `json:"weight"`
	Types  []struct {
		Type struct {
			Name string `json:"name"`
		} `json:"type"`
	} `json:"types"`
	Species struct {
		URL string `json:"url"`
	} `json:"species"`
	Sprites struct {
		Other struct {
			OfficialArtwork struct {
				FrontDefault string `json:"front_default"`
			} `json:"official-artwork"`
		} `json:"other"`
	} `json:"sprites"`
}

type speciesResponse struct {
	Names []struct {
		Name     string `json:"name"`
		Language struct {
			Name string `json:"name"`
		} `json:"language"`
	} `json:"names"`
}

// Draw returns the card text and artwork URL. On failure it returns
// UnknownPokemon and an empty URL.
func (p *PokemonClient) Draw(ctx context.Context) (string, string) {
	id := p.intn(p.maxID) + 1
	text, image, err := p.fetch(ctx, id)
	if err != nil {
		logger.ErrorCF("pokemon", "Failed to draw pokemon", map[string]interface{}{
			"id":    id,
			"error": err.Error(),
		})
		return UnknownPokemon, ""
	}
	return text, image
}

func (p *PokemonClient) fetch(ctx context.Context, id int) (string, string, error) {
	var mon pokemonResponse
	if err := getJSON(ctx, p.client, fmt.Sprintf("%s/pokemon/%d", p.apiBase, id), nil, &mon); err != nil {
		return "", "", err
	}
	if mon.Name == "" {
		return "", "", fmt.Errorf("pokemon %d has no name", id)
	}

	var species speciesResponse
	if err := getJSON(ctx, p.client, mon.Species.URL, nil, &species); err != nil {
		return "", "", fmt.Errorf("species lookup: %w", err)
	}
	zh := ""
	for _, n := range species.Names {
		if n.Language.Name == "zh-Hant" {
			zh = n.Name
			break
		}
	}

	display := capitalize(mon.Name)
	if zh != "" {
		display = fmt.Sprintf("%s（%s）", display, zh)
	}
	types := make([]string, 0, len(mon.Types))
	for _, t := range mon.Types {
		types = append(types, t.Type.Name)
	}

	text := fmt.Sprintf("%s\n屬性：%s\n身高：%s 公尺\n體重：%s 公斤",
		display,
		strings.Join(types, "、"),
		formatDecimal(mon.Height/10),
		formatDecimal(mon.Weight/10),
	)
	return text, mon.Sprites.Other.OfficialArtwork.FrontDefault, nil
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// formatDecimal prints the shortest form of v that always keeps a fractional
// part, so 10 renders as "10.0".
func formatDecimal(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

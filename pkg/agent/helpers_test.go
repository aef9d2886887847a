package agent

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dotsetgreg/pibear/pkg/bus"
	"github.com/dotsetgreg/pibear/pkg/memory"
	"github.com/dotsetgreg/pibear/pkg/profile"
	"github.com/dotsetgreg/pibear/pkg/usage"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	mu      sync.Mutex
	name    string
	reply   string
	err     error
	prompts []string
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	return g.reply, g.err
}

func (g *fakeGenerator) DisplayName() string {
	if g.name == "" {
		return "Ollama"
	}
	return g.name
}

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

type fakeWeather struct {
	cities []string
}

func (w *fakeWeather) Forecast(_ context.Context, city string) string {
	w.cities = append(w.cities, city)
	return "晴天 " + city
}

type fakeGeocoder struct{ city string }

func (g fakeGeocoder) City(context.Context, float64, float64) string { return g.city }

type fakeCreatures struct {
	text, image string
}

func (c fakeCreatures) Draw(context.Context) (string, string) { return c.text, c.image }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

type fixture struct {
	dir     string
	gen     *fakeGenerator
	mem     *memory.Store
	weather *fakeWeather
	loop    *AgentLoop
}

func newFixture(t *testing.T, ratio float64) *fixture {
	t.Helper()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "system_prompt.txt"), "  你是皮熊。 \n")
	writeFile(t, filepath.Join(dir, "user_profiles.json"), `{"U1":{"name":"小明","與皮熊關係":"好朋友"}}`)
	writeFile(t, filepath.Join(dir, "titles.json"), `{"amy":"小公主"}`)
	writeFile(t, filepath.Join(dir, "emotions.json"), `{"comfort":["抱抱你"]}`)
	writeFile(t, filepath.Join(dir, "descriptions.txt"), "一起加油吧！\n")
	writeFile(t, filepath.Join(dir, "url.txt"), "https://imgur.com/abc123\n")

	profiles := profile.NewStore(filepath.Join(dir, "user_profiles.json"))
	mem, err := memory.NewStore(filepath.Join(dir, "user_log"), 20, profiles)
	require.NoError(t, err)

	gen := &fakeGenerator{reply: "你好呀"}
	weather := &fakeWeather{}
	loc := time.FixedZone("Asia/Taipei", 8*3600)

	loop := NewAgentLoopWithDeps(bus.NewMessageBus(), Deps{
		Responder: NewResponder(filepath.Join(dir, "system_prompt.txt"), mem, gen),
		Content: NewContent(
			filepath.Join(dir, "emotions.json"),
			filepath.Join(dir, "descriptions.txt"),
			filepath.Join(dir, "url.txt"),
			rand.New(rand.NewPCG(7, 11)),
		),
		Weather:        weather,
		Geocoder:       fakeGeocoder{city: "新北市"},
		Creatures:      fakeCreatures{text: "Pikachu（皮卡丘）", image: "https://img/25.png"},
		Usage:          usage.NewRecorder(usage.NewFileStore(filepath.Join(dir, "user_usage.log")), loc),
		Profiles:       profiles,
		Cities:         profile.NewCityStore(filepath.Join(dir, "user_cities.json"), "臺北市"),
		Titles:         profile.NewTitles(filepath.Join(dir, "titles.json")),
		EmotionAIRatio: ratio,
		Location:       loc,
	})
	loop.now = func() time.Time { return time.Date(2026, 3, 16, 9, 30, 0, 0, loc) }

	return &fixture{dir: dir, gen: gen, mem: mem, weather: weather, loop: loop}
}

func textMessage(userID, name, text string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:     "line",
		SenderID:    userID,
		ChatID:      userID,
		DisplayName: name,
		Kind:        bus.KindText,
		Content:     text,
		ReplyToken:  "rt-" + userID,
	}
}

package tools

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/dotsetgreg/pibear/pkg/logger"
	"golang.org/x/time/rate"
)

const (
	UnknownArea     = "未知地區"
	GeocodeFailed   = "無法取得縣市資訊"
	DefaultGeoAgent = "LineBotDemo/1.0"
)

// Geocoder resolves coordinates to a city name with Nominatim reverse lookups.
// Nominatim's usage policy allows one request per second.
type Geocoder struct {
	apiBase   string
	userAgent string
	limiter   *rate.Limiter
	client    *http.Client
}

func NewGeocoder(apiBase, userAgent string, perSecond float64, client *http.Client) *Geocoder {
	if userAgent == "" {
		userAgent = DefaultGeoAgent
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Geocoder{
		apiBase:   strings.TrimRight(apiBase, "/"),
		userAgent: userAgent,
		limiter:   rate.NewLimiter(limit, 1),
		client:    clientOrDefault(client),
	}
}

type reverseResponse struct {
	Address struct {
		City   string `json:"city"`
		Town   string `json:"town"`
		County string `json:"county"`
	} `json:"address"`
}

// City returns the first of city, town or county for the coordinates,
// UnknownArea when none is present and GeocodeFailed on error.
func (g *Geocoder) City(ctx context.Context, lat, lon float64) string {
	city, err := g.lookup(ctx, lat, lon)
	if err != nil {
		logger.ErrorCF("geocode", "Reverse geocoding failed", map[string]interface{}{
			"lat":   lat,
			"lon":   lon,
			"error": err.Error(),
		})
		return GeocodeFailed
	}
	return city
}

func (g *Geocoder) lookup(ctx context.Context, lat, lon float64) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("%s/reverse?format=json&lat=%v&lon=%v&zoom=10&addressdetails=1", g.apiBase, lat, lon)

	var resp reverseResponse
	if err := getJSON(ctx, g.client, endpoint, map[string]string{"User-Agent": g.userAgent}, &resp); err != nil {
		return "", err
	}
	for _, v := range []string{resp.Address.City, resp.Address.Town, resp.Address.County} {
		if v != "" {
			return v, nil
		}
	}
	return UnknownArea, nil
}

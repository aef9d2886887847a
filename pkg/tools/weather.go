// PiBear - LINE companion bot with memory and scheduled pushes
// License: MIT
//
// Copyright (c) 2026 PiBear contributors

package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dotsetgreg/pibear/pkg/logger"
)

const (
	WeatherUnavailable = "🌥 無法取得天氣資料"
	weatherDataset     = "F-C0032-001"
	missingValue       = "？"
)

// WeatherClient reads the 36-hour county forecast from Taiwan CWA open data.
type WeatherClient struct {
	apiBase string
	apiKey  string
	policy  RetryPolicy
	client  *http.Client
}

func NewWeatherClient(apiBase, apiKey string, policy RetryPolicy, client *http.Client) *WeatherClient {
	if policy.Attempts <= 0 {
		policy.Attempts = 3
	}
	if policy.Timeout <= 0 {
		policy.Timeout = 5 * time.Second
	}
	return &WeatherClient{
		apiBase: strings.TrimRight(apiBase, "/"),
		apiKey:  apiKey,
		policy:  policy,
		client:  clientOrDefault(client),
	}
}

type forecastResponse struct {
	Records struct {
		Location []struct {
			LocationName   string `json:"locationName"`
			WeatherElement []struct {
				ElementName string `json:"elementName"`
				Time        []struct {
					Parameter struct {
						ParameterName string `json:"parameterName"`
					} `json:"parameter"`
				} `json:"time"`
			} `json:"weatherElement"`
		} `json:"location"`
	} `json:"records"`
}

// Forecast renders today's and tomorrow's forecast for city, or
// WeatherUnavailable once every attempt has failed.
func (w *WeatherClient) Forecast(ctx context.Context, city string) string {
	var text string
	err := w.policy.Do(ctx, func(ctx context.Context) error {
		out, err := w.fetch(ctx, city)
		if err != nil {
			return err
		}
		text = out
		return nil
	}, func(attempt int, err error) {
		logger.WarnCF("weather", "Weather lookup failed", map[string]interface{}{
			"attempt": attempt,
			"city":    city,
			"error":   err.Error(),
		})
	})
	if err != nil {
		return WeatherUnavailable
	}
	return text
}

func (w *WeatherClient) fetch(ctx context.Context, city string) (string, error) {
	q := url.Values{}
	q.Set("Authorization", w.apiKey)
	q.Set("locationName", city)
	endpoint := fmt.Sprintf("%s/v1/rest/datastore/%s?%s", w.apiBase, weatherDataset, q.Encode())

	var resp forecastResponse
	if err := getJSON(ctx, w.client, endpoint, nil, &resp); err != nil {
		return "", err
	}
	if len(resp.Records.Location) == 0 {
		return "", fmt.Errorf("no forecast for %s", city)
	}
	elements := resp.Records.Location[0].WeatherElement

	extract := func(name string, index int) (string, error) {
		for _, e := range elements {
			if e.ElementName != name {
				continue
			}
			if index >= len(e.Time) {
				return "", fmt.Errorf("element %s has no period %d", name, index)
			}
			return e.Time[index].Parameter.ParameterName, nil
		}
		return missingValue, nil
	}

	var vals [2][4]string
	names := [4]string{"Wx", "PoP", "MinT", "MaxT"}
	for day := 0; day < 2; day++ {
		for i, name := range names {
			v, err := extract(name, day)
			if err != nil {
				return "", err
			}
			vals[day][i] = v
		}
	}

	return fmt.Sprintf(
		"🌤 今天天氣：%s，🌧️ 降雨機率：%s%%\n🌡️ 氣溫：%s~%s°C\n\n🌦 明天天氣：%s，🌧️ 降雨機率：%s%%\n🌡️ 氣溫：%s~%s°C",
		vals[0][0], vals[0][1], vals[0][2], vals[0][3],
		vals[1][0], vals[1][1], vals[1][2], vals[1][3],
	), nil
}

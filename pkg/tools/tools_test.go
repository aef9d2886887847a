package tools

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const forecastBody = `{"records":{"location":[{"locationName":"臺北市","weatherElement":[
 {"elementName":"Wx","time":[{"parameter":{"parameterName":"多雲"}},{"parameter":{"parameterName":"晴時多雲"}}]},
 {"elementName":"PoP","time":[{"parameter":{"parameterName":"20"}},{"parameter":{"parameterName":"10"}}]},
 {"elementName":"MinT","time":[{"parameter":{"parameterName":"22"}},{"parameter":{"parameterName":"21"}}]},
 {"elementName":"MaxT","time":[{"parameter":{"parameterName":"28"}},{"parameter":{"parameterName":"29"}}]}
]}]}}`

func TestRetryPolicy_StopsOnFirstSuccess(t *testing.T) {
	calls := 0
	var observed []int
	err := RetryPolicy{Attempts: 3}.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("flaky")
		}
		return nil
	}, func(attempt int, err error) { observed = append(observed, attempt) })

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []int{1}, observed)
}

func TestRetryPolicy_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := RetryPolicy{Attempts: 3, Timeout: time.Second}.Do(context.Background(), func(ctx context.Context) error {
		calls++
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return errors.New("down")
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "attempt 3")
}

func TestWeather_FormatsTodayAndTomorrow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rest/datastore/F-C0032-001", r.URL.Path)
		assert.Equal(t, "key", r.URL.Query().Get("Authorization"))
		assert.Equal(t, "臺北市", r.URL.Query().Get("locationName"))
		_, _ = w.Write([]byte(forecastBody))
	}))
	defer srv.Close()

	wc := NewWeatherClient(srv.URL, "key", RetryPolicy{Attempts: 3, Timeout: time.Second}, srv.Client())
	got := wc.Forecast(context.Background(), "臺北市")

	want := "🌤 今天天氣：多雲，🌧️ 降雨機率：20%\n🌡️ 氣溫：22~28°C\n\n" +
		"🌦 明天天氣：晴時多雲，🌧️ 降雨機率：10%\n🌡️ 氣溫：21~29°C"
	assert.Equal(t, want, got)
}

func TestWeather_MissingElementRendersPlaceholder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"records":{"location":[{"weatherElement":[
			{"elementName":"Wx","time":[{"parameter":{"parameterName":"陰"}},{"parameter":{"parameterName":"雨"}}]}
		]}]}}`))
	}))
	defer srv.Close()

	wc := NewWeatherClient(srv.URL, "key", RetryPolicy{Attempts: 1, Timeout: time.Second}, srv.Client())
	got := wc.Forecast(context.Background(), "臺北市")
	assert.Contains(t, got, "今天天氣：陰，🌧️ 降雨機率：？%")
	assert.Contains(t, got, "氣溫：？~？°C")
}

func TestWeather_RetriesThenGivesUp(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	wc := NewWeatherClient(srv.URL, "key", RetryPolicy{Attempts: 3, Timeout: time.Second}, srv.Client())
	assert.Equal(t, WeatherUnavailable, wc.Forecast(context.Background(), "臺北市"))
	assert.Equal(t, int32(3), hits.Load())
}

func TestGeocoder_PicksFirstPresentField(t *testing.T) {
	body := `{"address":{"town":"板橋區","county":"新北市"}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "LineBotDemo/1.0", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	g := NewGeocoder(srv.URL, "", 0, srv.Client())
	assert.Equal(t, "板橋區", g.City(context.Background(), 25.01, 121.46))

	body = `{"address":{}}`
	assert.Equal(t, UnknownArea, g.City(context.Background(), 0, 0))

	body = `not json`
	assert.Equal(t, GeocodeFailed, g.City(context.Background(), 0, 0))
}

func TestPokemon_DrawRendersCard(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/pokemon/25", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name":"pikachu","height":4,"weight":60,
			"types":[{"type":{"name":"electric"}}],
			"species":{"url":"` + srv.URL + `/pokemon-species/25"},
			"sprites":{"other":{"official-artwork":{"front_default":"https://img/25.png"}}}}`))
	})
	mux.HandleFunc("/pokemon-species/25", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"names":[{"name":"Pikachu","language":{"name":"en"}},{"name":"皮卡丘","language":{"name":"zh-Hant"}}]}`))
	})

	pc := NewPokemonClient(srv.URL, 1010, srv.Client())
	pc.intn = func(int) int { return 24 }

	text, image := pc.Draw(context.Background())
	assert.Equal(t, "Pikachu（皮卡丘）\n屬性：electric\n身高：0.4 公尺\n體重：6.0 公斤", text)
	assert.Equal(t, "https://img/25.png", image)
}

func TestPokemon_FailureFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	pc := NewPokemonClient(srv.URL, 10, srv.Client())
	text, image := pc.Draw(context.Background())
	assert.Equal(t, UnknownPokemon, text)
	assert.Empty(t, image)
}

func TestFormatDecimal(t *testing.T) {
	assert.Equal(t, "10.0", formatDecimal(10))
	assert.Equal(t, "0.7", formatDecimal(7.0/10))
	assert.Equal(t, "90.5", formatDecimal(905.0/10))
	assert.Equal(t, "Mr-mime", capitalize("mr-mime"))
}

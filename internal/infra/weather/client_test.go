package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"farmledger/pkg/domain"
)

func TestDirection(t *testing.T) {
	cases := map[float64]string{0: "N", 11: "N", 12: "NNE", 90: "E", 180: "S", 247.5: "WSW", 349: "N", 360: "N", 337.5: "NNW"}
	for deg, want := range cases {
		require.Equal(t, want, Direction(deg), "deg %v", deg)
	}
}

func TestCurrentRoundsAndConverts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/forecast", r.URL.Path)
		require.Equal(t, "fahrenheit", r.URL.Query().Get("temperature_unit"))
		require.Equal(t, "mph", r.URL.Query().Get("wind_speed_unit"))
		require.Equal(t, "38.5", r.URL.Query().Get("latitude"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"current":{"temperature_2m":71.6,"relative_humidity_2m":54.4,"wind_speed_10m":8.5,"wind_direction_10m":200}}`))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL})
	snap, err := c.Current(context.Background(), 38.5, -92.25)
	require.NoError(t, err)
	require.Equal(t, domain.WeatherSnapshot{WindSpeed: 9, Temperature: 72, Humidity: 54, WindDirection: "SSW"}, snap)
}

func TestCurrentFallsBackOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL})
	snap, err := c.Current(context.Background(), 1, 2)
	require.Error(t, err)
	require.Equal(t, Fallback(), snap)
	require.Equal(t, UnknownDirection, snap.WindDirection)
}

func TestCurrentForPlace(t *testing.T) {
	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("name") == "65201" {
			_, _ = w.Write([]byte(`{"results":[{"name":"Columbia","latitude":38.95,"longitude":-92.33}]}`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer geo.Close()
	forecast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "38.95", r.URL.Query().Get("latitude"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"current":{"temperature_2m":50,"relative_humidity_2m":40,"wind_speed_10m":3,"wind_direction_10m":90}}`))
	}))
	defer forecast.Close()

	c := New(Options{BaseURL: forecast.URL, GeocodeURL: geo.URL})
	name, snap, err := c.CurrentForPlace(context.Background(), "65201")
	require.NoError(t, err)
	require.Equal(t, "Columbia", name)
	require.Equal(t, "E", snap.WindDirection)

	name, snap, err = c.CurrentForPlace(context.Background(), "00000")
	require.Error(t, err)
	require.Equal(t, "Unknown", name)
	require.Equal(t, Fallback(), snap)
}

func TestRainIsSummedAndCached(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		require.Equal(t, "24", r.URL.Query().Get("past_hours"))
		require.Equal(t, "inch", r.URL.Query().Get("precipitation_unit"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hourly":{"precipitation":[0.1,null,0.25,0]}}`))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, RainCache: NewRainCache(8, time.Hour)})
	got, err := c.Rain24h(context.Background(), "f1", 38, -92)
	require.NoError(t, err)
	require.InDelta(t, 0.35, got, 1e-9)
	got, err = c.Rain24h(context.Background(), "f1", 38, -92)
	require.NoError(t, err)
	require.InDelta(t, 0.35, got, 1e-9)
	require.Equal(t, int32(1), hits.Load())
}

func TestRainCacheExpires(t *testing.T) {
	cache := NewRainCache(4, 20*time.Millisecond)
	cache.Add("f1", 1.5)
	v, ok := cache.Get("f1")
	require.True(t, ok)
	require.Equal(t, 1.5, v)
	require.Eventually(t, func() bool {
		_, ok := cache.Get("f1")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestRainForFieldsReportsZeroOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("latitude") == "1" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hourly":{"precipitation":[0.5]}}`))
	}))
	defer srv.Close()

	cache := NewRainCache(8, time.Hour)
	cache.Add("cached", 2)
	c := New(Options{BaseURL: srv.URL, RainCache: cache, Stagger: -1})
	out := c.RainForFields(context.Background(), []domain.Field{
		{ID: "cached", Lat: 9, Lng: 9},
		{ID: "bad", Lat: 1, Lng: 1},
		{ID: "good", Lat: 2, Lng: 2},
	})
	require.Equal(t, map[string]float64{"cached": 2, "bad": 0, "good": 0.5}, out)
}

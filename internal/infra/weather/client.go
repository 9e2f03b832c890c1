// Package weather fetches current conditions and recent rainfall from the
// open-meteo forecast API.
package weather

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"farmledger/internal/logger"
	"farmledger/pkg/domain"
)

const (
	defaultBaseURL    = "https://api.open-meteo.com"
	defaultGeocodeURL = "https://geocoding-api.open-meteo.com"
	defaultStagger    = time.Second
)

// UnknownDirection is reported when conditions could not be fetched.
const UnknownDirection = "—"

var compass = [16]string{"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE", "S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW"}

// Direction converts a bearing in degrees to a 16-point compass label.
func Direction(deg float64) string {
	idx := int(math.Round(deg/22.5)) % 16
	if idx < 0 {
		idx += 16
	}
	return compass[idx]
}

// Fallback is the snapshot used when the weather service is unreachable.
func Fallback() domain.WeatherSnapshot {
	return domain.WeatherSnapshot{WindDirection: UnknownDirection}
}

// RainCache holds 24h rainfall totals per field id.
type RainCache = expirable.LRU[string, float64]

// NewRainCache returns a bounded cache whose entries expire after ttl.
func NewRainCache(size int, ttl time.Duration) *RainCache {
	return expirable.NewLRU[string, float64](size, nil, ttl)
}

// Options configures a Client. Zero values select the public endpoints.
type Options struct {
	BaseURL    string
	GeocodeURL string
	Timeout    time.Duration
	Retries    int
	// Stagger is the pause between uncached requests in RainForFields.
	Stagger   time.Duration
	RainCache *RainCache
	Logger    *zap.Logger
}

// Client talks to open-meteo.
type Client struct {
	forecast *resty.Client
	geocode  *resty.Client
	rain     *RainCache
	stagger  time.Duration
	logger   *zap.Logger
}

// New builds a Client from opts.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.GeocodeURL == "" {
		opts.GeocodeURL = defaultGeocodeURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Stagger < 0 {
		opts.Stagger = 0
	} else if opts.Stagger == 0 {
		opts.Stagger = defaultStagger
	}
	if opts.RainCache == nil {
		opts.RainCache = NewRainCache(256, 30*time.Minute)
	}
	build := func(base string) *resty.Client {
		return resty.New().
			SetBaseURL(base).
			SetTimeout(opts.Timeout).
			SetRetryCount(opts.Retries).
			SetRetryWaitTime(500 * time.Millisecond).
			SetHeader("Accept", "application/json")
	}
	return &Client{
		forecast: build(opts.BaseURL),
		geocode:  build(opts.GeocodeURL),
		rain:     opts.RainCache,
		stagger:  opts.Stagger,
		logger:   logger.OrNop(opts.Logger),
	}
}

type currentResponse struct {
	Current struct {
		Temperature   float64 `json:"temperature_2m"`
		Humidity      float64 `json:"relative_humidity_2m"`
		WindSpeed     float64 `json:"wind_speed_10m"`
		WindDirection float64 `json:"wind_direction_10m"`
	} `json:"current"`
}

type hourlyResponse struct {
	Hourly struct {
		Precipitation []*float64 `json:"precipitation"`
	} `json:"hourly"`
}

type geocodeResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

// Location is a geocoded place.
type Location struct {
	Name string
	Lat  float64
	Lng  float64
}

func coord(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// Current returns conditions at the coordinates in °F and mph, rounded to whole
// numbers. On failure it returns Fallback() with the error.
func (c *Client) Current(ctx context.Context, lat, lng float64) (domain.WeatherSnapshot, error) {
	var out currentResponse
	resp, err := c.forecast.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"latitude":         coord(lat),
			"longitude":        coord(lng),
			"current":          "temperature_2m,relative_humidity_2m,wind_speed_10m,wind_direction_10m",
			"temperature_unit": "fahrenheit",
			"wind_speed_unit":  "mph",
			"timezone":         "auto",
		}).
		SetResult(&out).
		Get("/v1/forecast")
	if err = checkResponse(resp, err); err != nil {
		c.logger.Warn("current weather fetch failed", zap.Float64("lat", lat), zap.Float64("lng", lng), zap.Error(err))
		return Fallback(), err
	}
	return domain.WeatherSnapshot{
		WindSpeed:     math.Round(out.Current.WindSpeed),
		Temperature:   math.Round(out.Current.Temperature),
		Humidity:      math.Round(out.Current.Humidity),
		WindDirection: Direction(out.Current.WindDirection),
	}, nil
}

// Geocode resolves a postal code or place name to its first match.
func (c *Client) Geocode(ctx context.Context, query string) (Location, error) {
	var out geocodeResponse
	resp, err := c.geocode.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"name": query, "count": "1", "language": "en", "format": "json"}).
		SetResult(&out).
		Get("/v1/search")
	if err = checkResponse(resp, err); err != nil {
		return Location{}, err
	}
	if len(out.Results) == 0 {
		return Location{}, fmt.Errorf("location %q not found", query)
	}
	r := out.Results[0]
	return Location{Name: r.Name, Lat: r.Latitude, Lng: r.Longitude}, nil
}

// CurrentForPlace geocodes query and fetches its conditions. On failure the
// location name is "Unknown" and the snapshot is Fallback().
func (c *Client) CurrentForPlace(ctx context.Context, query string) (string, domain.WeatherSnapshot, error) {
	loc, err := c.Geocode(ctx, query)
	if err != nil {
		return "Unknown", Fallback(), err
	}
	snap, err := c.Current(ctx, loc.Lat, loc.Lng)
	if err != nil {
		return "Unknown", snap, err
	}
	return loc.Name, snap, nil
}

// Rain24h returns total precipitation in inches over the past 24 hours,
// served from the cache while the entry for fieldID is fresh.
func (c *Client) Rain24h(ctx context.Context, fieldID string, lat, lng float64) (float64, error) {
	if v, ok := c.rain.Get(fieldID); ok {
		return v, nil
	}
	var out hourlyResponse
	resp, err := c.forecast.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"latitude":           coord(lat),
			"longitude":          coord(lng),
			"hourly":             "precipitation",
			"past_hours":         "24",
			"forecast_hours":     "0",
			"precipitation_unit": "inch",
			"timezone":           "auto",
		}).
		SetResult(&out).
		Get("/v1/forecast")
	if err = checkResponse(resp, err); err != nil {
		return 0, err
	}
	total := 0.0
	for _, v := range out.Hourly.Precipitation {
		if v != nil {
			total += *v
		}
	}
	c.rain.Add(fieldID, total)
	return total, nil
}

// RainForFields fetches 24h rainfall for each field, pausing between uncached
// requests to stay under the service's rate limit. Failed fields report 0.
func (c *Client) RainForFields(ctx context.Context, fields []domain.Field) map[string]float64 {
	out := make(map[string]float64, len(fields))
	fetched := false
	for _, f := range fields {
		if v, ok := c.rain.Get(f.ID); ok {
			out[f.ID] = v
			continue
		}
		if fetched && c.stagger > 0 {
			select {
			case <-ctx.Done():
				return out
			case <-time.After(c.stagger):
			}
		}
		fetched = true
		v, err := c.Rain24h(ctx, f.ID, f.Lat, f.Lng)
		if err != nil {
			c.logger.Warn("rain fetch failed", zap.String("field_id", f.ID), zap.Error(err))
		}
		out[f.ID] = v
	}
	return out
}

func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("weather request: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("weather request: status %d", resp.StatusCode())
	}
	return nil
}

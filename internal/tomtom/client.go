package tomtom

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/abq-pulse/trafficwatch/internal/model"
)

// Measurement is one flow reading at a point, in the provider's terms plus
// the raw payload for auditing. Distance is recomputed locally; stored
// provider distances are never trusted downstream.
type Measurement struct {
	CurrentSpeedMPH  float64
	FreeFlowSpeedMPH float64
	TravelTimeSecs   int
	FreeFlowTimeSecs int
	Confidence       float64
	DistanceMiles    float64
	MeasuredAt       time.Time
	Raw              json.RawMessage
}

// Options configures the client.
type Options struct {
	Key        string
	BaseURL    string
	Unit       string
	Timeout    time.Duration
	RatePerSec float64
}

// Client wraps the TomTom flow-segment API. One Measure call is one quota
// unit; quota accounting and retry policy both belong to the caller so that
// consumption stays observable.
type Client struct {
	httpClient *http.Client
	opts       Options
	limiter    *rate.Limiter
}

// New creates a Client with a bounded timeout and a politeness rate limiter.
func New(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Unit == "" {
		opts.Unit = "MPH"
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 5
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), 1),
	}
}

// flowResponse mirrors the provider payload shape.
type flowResponse struct {
	FlowSegmentData *struct {
		CurrentSpeed       float64 `json:"currentSpeed"`
		FreeFlowSpeed      float64 `json:"freeFlowSpeed"`
		CurrentTravelTime  int     `json:"currentTravelTime"`
		FreeFlowTravelTime int     `json:"freeFlowTravelTime"`
		Confidence         float64 `json:"confidence"`
		Coordinates        struct {
			Coordinate []struct {
				Latitude  float64 `json:"latitude"`
				Longitude float64 `json:"longitude"`
			} `json:"coordinate"`
		} `json:"coordinates"`
	} `json:"flowSegmentData"`
}

// Measure returns the current flow at origin. Destination is recorded context
// only: flow is read at the origin point, which is consistent because events
// and baselines are always compared at the same point. origin == destination
// is the standard venue-centric call.
func (c *Client) Measure(ctx context.Context, origin, destination model.Coordinate) (*Measurement, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "tomtom: rate limiter wait")
	}

	params := url.Values{}
	params.Set("key", c.opts.Key)
	params.Set("point", fmt.Sprintf("%f,%f", origin.Lat, origin.Lon))
	params.Set("unit", c.opts.Unit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "tomtom: create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTransportError(err) {
			return nil, eris.Wrap(ErrProviderUnavailable, err.Error())
		}
		return nil, eris.Wrap(err, "tomtom: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(ErrProviderUnavailable, "read body: "+err.Error())
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, eris.Wrapf(ErrProviderUnavailable, "http %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, eris.Wrapf(ErrProviderRejected, "http %d", resp.StatusCode)
	}

	var flow flowResponse
	if err := json.Unmarshal(body, &flow); err != nil {
		return nil, eris.Wrap(err, "tomtom: decode response")
	}
	if flow.FlowSegmentData == nil {
		return nil, eris.Wrap(ErrProviderRejected, "no flow segment at point")
	}

	seg := flow.FlowSegmentData
	m := &Measurement{
		CurrentSpeedMPH:  seg.CurrentSpeed,
		FreeFlowSpeedMPH: seg.FreeFlowSpeed,
		TravelTimeSecs:   seg.CurrentTravelTime,
		FreeFlowTimeSecs: seg.FreeFlowTravelTime,
		Confidence:       seg.Confidence,
		MeasuredAt:       time.Now().UTC(),
		Raw:              json.RawMessage(body),
	}

	// Segment distance from its endpoints, then travel-time estimate, then
	// origin-to-destination as a last resort.
	if coords := seg.Coordinates.Coordinate; len(coords) >= 2 {
		first, last := coords[0], coords[len(coords)-1]
		m.DistanceMiles = haversineMiles(first.Latitude, first.Longitude, last.Latitude, last.Longitude)
	}
	if m.DistanceMiles == 0 && seg.CurrentSpeed > 0 {
		m.DistanceMiles = float64(seg.CurrentTravelTime) / 3600.0 * seg.CurrentSpeed
	}
	if m.DistanceMiles == 0 {
		m.DistanceMiles = haversineMiles(origin.Lat, origin.Lon, destination.Lat, destination.Lon)
	}
	m.DistanceMiles = round2(m.DistanceMiles)

	zap.L().Debug("flow measured",
		zap.Float64("lat", origin.Lat),
		zap.Float64("lon", origin.Lon),
		zap.Float64("current_mph", m.CurrentSpeedMPH),
		zap.Float64("free_flow_mph", m.FreeFlowSpeedMPH),
		zap.Int("travel_secs", m.TravelTimeSecs),
	)

	return m, nil
}

const earthRadiusMiles = 3959

func haversineMiles(lat1, lon1, lat2, lon2 float64) float64 {
	dlat := (lat2 - lat1) * math.Pi / 180
	dlon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dlon/2)*math.Sin(dlon/2)
	return earthRadiusMiles * 2 * math.Asin(math.Sqrt(a))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

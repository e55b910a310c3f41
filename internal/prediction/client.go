package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/dam-monitoring/internal/dam"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidResponse = errors.New("invalid response")
	ErrUpstream        = errors.New("upstream failure")
)

// Error is the single error surfaced by the gateway. It carries the original
// cause and an HTTP-like status code.
type Error struct {
	Status int
	Cause  error
}

func (e *Error) Error() string {
	return "failed to get predictions: " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

func wrap(cause error) *Error {
	return &Error{Status: http.StatusInternalServerError, Cause: cause}
}

// Observer receives gateway telemetry. It is satisfied by the metrics package.
type Observer interface {
	ObservePrediction(outcome string, elapsed time.Duration)
	ObserveBreakerState(name string, state gobreaker.State)
}

// Config configures a Client.
type Config struct {
	BaseURL       string
	Timeout       time.Duration // 0 = no timeout on predict
	HealthTimeout time.Duration
	MaxRetries    int
	HTTPClient    *http.Client
	Observer      Observer
}

// Client talks to the external prediction service.
type Client struct {
	baseURL       string
	timeout       time.Duration
	healthTimeout time.Duration
	httpCfg       HTTPClientConfig
	circuit       *gobreaker.CircuitBreaker
	observer      Observer
}

var _ dam.Predictor = (*Client)(nil)

// NewClient creates a prediction client with its own circuit breaker.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	healthTimeout := cfg.HealthTimeout
	if healthTimeout <= 0 {
		healthTimeout = 10 * time.Second
	}

	c := &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		timeout:       cfg.Timeout,
		healthTimeout: healthTimeout,
		httpCfg: HTTPClientConfig{
			Client: httpClient,
			Backoff: BackoffConfig{
				MaxRetries:      cfg.MaxRetries,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		observer: cfg.Observer,
	}

	c.circuit = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "prediction",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("INFO: circuit breaker %s: %s -> %s", name, from, to)
			if c.observer != nil {
				c.observer.ObserveBreakerState(name, to)
			}
		},
	})
	return c
}

type predictRequest struct {
	HistoricalData  []dam.Reading `json:"historicalData"`
	CurrentLevel    float64       `json:"currentLevel"`
	FlowRate        *float64      `json:"flowRate,omitempty"`
	Precipitation   *float64      `json:"precipitation,omitempty"`
	SafetyThreshold float64       `json:"safetyThreshold"`
	CriticalLevel   float64       `json:"criticalLevel"`
}

// RequestPrediction validates in, posts it to {base}/predict and validates
// the reply. Every failure is returned as *Error.
func (c *Client) RequestPrediction(ctx context.Context, in *dam.PredictionInput) (dam.Prediction, error) {
	start := time.Now()

	pred, outcome, err := c.requestPrediction(ctx, in)
	if c.observer != nil {
		c.observer.ObservePrediction(outcome, time.Since(start))
	}
	if err != nil {
		log.Printf("ERROR: prediction request: %v", err)
		return dam.Prediction{}, wrap(err)
	}
	return pred, nil
}

func (c *Client) requestPrediction(ctx context.Context, in *dam.PredictionInput) (dam.Prediction, string, error) {
	switch {
	case in == nil:
		return dam.Prediction{}, "invalid_input", fmt.Errorf("%w: no dam data provided", ErrInvalidInput)
	case in.Readings == nil:
		return dam.Prediction{}, "invalid_input", fmt.Errorf("%w: historical readings data is missing or invalid", ErrInvalidInput)
	case in.CurrentLevel == nil:
		return dam.Prediction{}, "invalid_input", fmt.Errorf("%w: current water level is missing or invalid", ErrInvalidInput)
	}

	body, err := json.Marshal(predictRequest{
		HistoricalData:  in.Readings,
		CurrentLevel:    *in.CurrentLevel,
		FlowRate:        in.FlowRate,
		Precipitation:   in.Precipitation,
		SafetyThreshold: in.SafetyThreshold,
		CriticalLevel:   in.CriticalLevel,
	})
	if err != nil {
		return dam.Prediction{}, "invalid_input", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		if errors.Is(err, errCircuitOpen) {
			return dam.Prediction{}, "circuit_open", fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		return dam.Prediction{}, "upstream_error", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return dam.Prediction{}, "invalid_response", fmt.Errorf("%w: decode body: %v", ErrInvalidResponse, err)
	}
	var payload struct {
		Predictions     json.RawMessage `json:"predictions"`
		Recommendations json.RawMessage `json:"recommendations"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return dam.Prediction{}, "invalid_response", fmt.Errorf("%w: decode body: %v", ErrInvalidResponse, err)
	}

	var predictions []json.RawMessage
	if !isArray(payload.Predictions) || json.Unmarshal(payload.Predictions, &predictions) != nil || len(predictions) == 0 {
		return dam.Prediction{}, "invalid_response", fmt.Errorf("%w: invalid prediction data received from ML service", ErrInvalidResponse)
	}
	if !truthy(payload.Recommendations) {
		return dam.Prediction{}, "invalid_response", fmt.Errorf("%w: missing recommendations in ML service response", ErrInvalidResponse)
	}

	return dam.Prediction{
		Predictions:     predictions,
		Recommendations: payload.Recommendations,
		Body:            raw,
	}, "ok", nil
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// truthy rejects absent, null, false, zero and empty-string values.
func truthy(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "false", "0", `""`:
		return false
	}
	return true
}

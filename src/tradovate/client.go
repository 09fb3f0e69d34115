package tradovate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"

	"tradetrace/src/model"
)

const (
	defaultRetryAttempts   = 3
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 4 * time.Second
)

// Execution is one execution report as the brokerage returns it.
type Execution struct {
	Time  model.NanoTime `json:"time"`
	Price float64        `json:"price"`
	Side  string         `json:"side"`
}

// ExecutionReport is the brokerage's view of one order: its current status
// and the full execution list so far.
type ExecutionReport struct {
	Status     string      `json:"status"`
	Executions []Execution `json:"executions"`
}

// Client polls the brokerage for order status and fills. Polling is safe to
// retry, unlike the ghost forward, so the client carries the usual retry
// backoff.
type Client struct {
	baseURL string
	apiKey  string
	http    *resty.Client
}

// NewClient builds a poll client for the given base URL. The URL comes from
// settings: the demo endpoint in pipeline test mode, live otherwise.
func NewClient(baseURL, apiKey string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    httpClient,
	}
}

// FromSettings picks the brokerage endpoint for the current pipeline mode.
func FromSettings(settings model.Settings) *Client {
	url := settings.TradovateLiveURL
	if settings.PipelineTestMode {
		url = settings.TradovateDemoURL
	}
	return NewClient(url, settings.TradovateAPIKey)
}

func isRetryableResp(resp *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if resp == nil {
		return false
	}
	code := resp.StatusCode()
	return code == 429 || code >= 500
}

// Executions fetches the current status and execution list for an order.
func (c *Client) Executions(ctx context.Context, traceID string) (*ExecutionReport, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("tradovate base URL not configured")
	}

	logger.WithFields(map[string]interface{}{
		"component": "tradovate",
		"op":        "Executions",
		"trace_id":  traceID,
	}).Debug("Polling brokerage for executions")

	var report ExecutionReport
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetResult(&report).
		Get("/orders/" + traceID + "/executions")
	if err != nil {
		return nil, fmt.Errorf("executions request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("executions non-2xx status: %d body: %s", resp.StatusCode(), resp.String())
	}

	return &report, nil
}

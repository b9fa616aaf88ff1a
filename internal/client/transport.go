package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/bhuwanb23/profitpulse-sub001/internal/config"
	"github.com/bhuwanb23/profitpulse-sub001/internal/resilience"
)

// Transport performs the raw HTTP calls against the prediction service.
// Errors are classified into the resilience taxonomy here so the breaker
// and retry policy never inspect HTTP details themselves.
type Transport struct {
	resty   *resty.Client
	limiter *rate.Limiter
}

// NewTransport creates a transport for the configured prediction service.
func NewTransport(cfg config.PredictionConfig) *Transport {
	r := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.RequestTimeout).
		SetHeader("User-Agent", "ProfitPulse-PredictionClient/1.0").
		SetHeader("Content-Type", "application/json")

	if cfg.APIKey != "" {
		r.SetAuthToken(cfg.APIKey)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), int(cfg.RateLimitRPS)+1)
	}

	return &Transport{resty: r, limiter: limiter}
}

// operationPath maps "profitability.predict" to "/v1/profitability/predict".
func operationPath(operation string) string {
	return "/v1/" + strings.ReplaceAll(operation, ".", "/")
}

// Predict posts a prediction request. The caller bounds each attempt with
// its own context deadline; exceeding it surfaces as a TransportError like
// any other network failure.
func (t *Transport) Predict(ctx context.Context, operation string, payload map[string]interface{}) (map[string]interface{}, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, resilience.NewTransportError(operation, err)
	}

	var result map[string]interface{}
	resp, err := t.resty.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&result).
		Post(operationPath(operation))

	if err != nil {
		return nil, resilience.NewTransportError(operation, err)
	}

	return result, classifyStatus(operation, resp)
}

// ModelInfo fetches model metadata from the remote service.
func (t *Transport) ModelInfo(ctx context.Context, model string) (map[string]interface{}, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, resilience.NewTransportError("models.info", err)
	}

	var result map[string]interface{}
	resp, err := t.resty.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/v1/models/" + model)

	if err != nil {
		return nil, resilience.NewTransportError("models.info", err)
	}

	return result, classifyStatus("models.info", resp)
}

// classifyStatus turns non-2xx responses into taxonomy errors. Client-side
// misuse (validation, auth) is expected and must not trip the breaker;
// everything else counts as a transport failure.
func classifyStatus(operation string, resp *resty.Response) error {
	code := resp.StatusCode()
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusBadRequest,
		code == http.StatusUnauthorized,
		code == http.StatusForbidden,
		code == http.StatusNotFound,
		code == http.StatusUnprocessableEntity:
		return resilience.NewExpectedError(operation, code,
			fmt.Errorf("prediction service rejected request: %s", resp.Status()))
	default:
		return resilience.NewTransportError(operation,
			fmt.Errorf("prediction service returned status %d", code))
	}
}

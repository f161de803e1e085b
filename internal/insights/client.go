package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/go-resty/resty/v2"
	"github.com/postprober/dashboard-core/internal/metrics"
	"github.com/postprober/dashboard-core/internal/platforms"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	serviceOptimize  = "optimize"
	serviceAnalytics = "analytics"
)

// Client calls the AI content and analytics endpoints. Calls go through a
// rate limiter, a circuit breaker and bounded retries, in that order.
type Client struct {
	baseURL  string
	client   *resty.Client
	cb       *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	metrics  *metrics.Metrics
	attempts uint
	delay    time.Duration
}

// Options tunes the client
type Options struct {
	Timeout   time.Duration
	RateLimit float64 // requests per second
	Burst     int
	Metrics   *metrics.Metrics
}

// NewClient creates a client for the backend at baseURL
func NewClient(baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewMetrics(nil)
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "insights-backend",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// the caller's mistakes say nothing about backend health
			var se *statusError
			return err == nil || (errors.As(err, &se) && se.code < 500)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.Warnf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: resty.New().
			SetTimeout(opts.Timeout).
			SetHeader("User-Agent", "PostProber-Dashboard/1.0"),
		cb:       cb,
		limiter:  rate.NewLimiter(rate.Limit(opts.RateLimit), opts.Burst),
		metrics:  opts.Metrics,
		attempts: 3,
		delay:    time.Second,
	}
}

// OptimizeWithHashtags rewrites content for platform and suggests hashtags
func (c *Client) OptimizeWithHashtags(ctx context.Context, content, platform string) (*OptimizeResult, error) {
	const op = "optimize content"

	platform = strings.ToLower(strings.TrimSpace(platform))
	if strings.TrimSpace(content) == "" {
		return nil, &ServiceError{Op: op, Message: "Please enter some content to optimize."}
	}
	if !platforms.IsKnown(platform) {
		return nil, &ServiceError{Op: op, Message: fmt.Sprintf("%s is not a supported platform.", platform)}
	}

	body := map[string]string{"content": content, "platform": platform}
	env, err := c.call(ctx, serviceOptimize, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(body).Post(c.baseURL + "/api/content/optimize-with-hashtags")
	})
	if err != nil {
		return nil, c.wrap(op, "We couldn't optimize your post right now. Please try again.", err)
	}

	result := &OptimizeResult{Platform: platform, ProcessingTime: env.ProcessingTime}
	if err := json.Unmarshal(env.Result, result); err != nil {
		return nil, c.wrap(op, "We couldn't optimize your post right now. Please try again.", fmt.Errorf("failed to parse result: %w", err))
	}
	result.Platform = platform

	return result, nil
}

// GetAnalyticsDashboard returns trending, best posting times and performance for platform
func (c *Client) GetAnalyticsDashboard(ctx context.Context, platform string) (*AnalyticsDashboard, error) {
	const op = "load analytics"

	platform = strings.ToLower(strings.TrimSpace(platform))
	if !platforms.IsKnown(platform) {
		return nil, &ServiceError{Op: op, Message: fmt.Sprintf("%s is not a supported platform.", platform)}
	}

	env, err := c.call(ctx, serviceAnalytics, func(r *resty.Request) (*resty.Response, error) {
		return r.Get(c.baseURL + "/api/analytics/dashboard/" + platform)
	})
	if err != nil {
		return nil, c.wrap(op, "Analytics are unavailable right now. Please try again later.", err)
	}

	dashboard := &AnalyticsDashboard{}
	if err := json.Unmarshal(env.Result, dashboard); err != nil {
		return nil, c.wrap(op, "Analytics are unavailable right now. Please try again later.", fmt.Errorf("failed to parse result: %w", err))
	}
	dashboard.Platform = platform
	dashboard.ProcessingTime = env.ProcessingTime

	return dashboard, nil
}

func (c *Client) call(ctx context.Context, service string, send func(*resty.Request) (*resty.Response, error)) (*envelope, error) {
	start := time.Now()
	status := "error"
	defer func() {
		c.metrics.ExternalCallDuration.WithLabelValues(service, status).Observe(time.Since(start).Seconds())
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	out, err := c.cb.Execute(func() (interface{}, error) {
		var env *envelope
		retryErr := retry.New(
			retry.Context(ctx),
			retry.Attempts(c.attempts),
			retry.Delay(c.delay),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
		).Do(func() error {
			resp, err := send(c.client.R().SetContext(ctx))
			if err != nil {
				return err
			}
			parsed, err := decodeEnvelope(resp)
			if err != nil {
				var se *statusError
				if errors.As(err, &se) && se.code < 500 {
					return retry.Unrecoverable(err)
				}
				return err
			}
			env = parsed
			return nil
		})
		return env, retryErr
	})
	if err != nil {
		return nil, err
	}

	status = "ok"
	return out.(*envelope), nil
}

func decodeEnvelope(resp *resty.Response) (*envelope, error) {
	var env envelope
	parseErr := json.Unmarshal(resp.Body(), &env)

	if resp.StatusCode() != http.StatusOK {
		detail := env.Detail
		if detail == "" {
			detail = env.Error
		}
		return nil, &statusError{code: resp.StatusCode(), detail: detail}
	}
	if parseErr != nil {
		return nil, fmt.Errorf("failed to parse response: %w", parseErr)
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = env.Detail
		}
		return nil, errors.New("backend reported failure: " + msg)
	}
	return &env, nil
}

func (c *Client) wrap(op, message string, cause error) error {
	switch {
	case errors.Is(cause, gobreaker.ErrOpenState), errors.Is(cause, gobreaker.ErrTooManyRequests):
		message = "The AI service is temporarily unavailable. Please try again in a minute."
	case errors.Is(cause, context.DeadlineExceeded):
		message = "The AI service took too long to respond. Please try again."
	}

	var se *statusError
	if errors.As(cause, &se) && se.code == http.StatusBadRequest && se.detail != "" {
		message = se.detail
	}

	logrus.Errorf("Insights call %q failed: %v", op, cause)
	return &ServiceError{Op: op, Message: message, Cause: cause}
}

// State reports the circuit breaker state for diagnostics
func (c *Client) State() string {
	return c.cb.State().String()
}

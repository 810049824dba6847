package marketdata

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"trade-compliance-go/internal/config"
	"trade-compliance-go/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://data.alpaca.markets/v2"
	timeframeDaily = "1Day"
	pageLimit      = 10000
)

// ErrNoCredentials is returned when no API key is configured.
var ErrNoCredentials = errors.New("market data credentials not configured")

// Client fetches daily bars from the Alpaca market-data REST API.
type Client struct {
	client     *resty.Client
	apiKey     string
	secretKey  string
	logger     *zap.Logger
	limiter    *rate.Limiter
	timeout    time.Duration
	maxRetries int
	retryBase  time.Duration
}

// NewClient creates a new market-data client.
func NewClient(cfg *config.MarketData, logger *zap.Logger) *Client {
	url := cfg.BaseURL
	if url == "" {
		url = defaultBaseURL
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	return &Client{
		client:     resty.New().SetBaseURL(url),
		apiKey:     cfg.ApiKey,
		secretKey:  cfg.SecretKey,
		logger:     logger.Named("marketdata"),
		limiter:    rate.NewLimiter(limit, burst),
		timeout:    cfg.Timeout,
		maxRetries: maxRetries,
		retryBase:  time.Second,
	}
}

type barsResponse struct {
	Bars          []apiBar `json:"bars"`
	Symbol        string   `json:"symbol"`
	NextPageToken *string  `json:"next_page_token"`
}

type apiBar struct {
	Timestamp string  `json:"t"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
}

// FetchDailyBars returns the daily bars of symbol between start and end, oldest first.
// The whole call, pagination included, is bounded by the configured timeout.
func (c *Client) FetchDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]models.BenchmarkBar, error) {
	if c.apiKey == "" {
		return nil, ErrNoCredentials
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var bars []models.BenchmarkBar
	pageToken := ""
	for {
		page, err := c.fetchPage(ctx, symbol, start, end, pageToken)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch bars for %s: %w", symbol, err)
		}
		for _, b := range page.Bars {
			bar, err := b.toModel(symbol)
			if err != nil {
				return nil, fmt.Errorf("failed to parse bar for %s: %w", symbol, err)
			}
			bars = append(bars, bar)
		}
		if page.NextPageToken == nil || *page.NextPageToken == "" {
			break
		}
		pageToken = *page.NextPageToken
	}

	c.logger.Debug("Fetched daily bars", zap.String("symbol", symbol), zap.Int("count", len(bars)))
	return bars, nil
}

func (c *Client) fetchPage(ctx context.Context, symbol string, start, end time.Time, pageToken string) (*barsResponse, error) {
	params := map[string]string{
		"start":     start.UTC().Format(time.DateOnly),
		"end":       end.UTC().Format(time.DateOnly),
		"timeframe": timeframeDaily,
		"limit":     strconv.Itoa(pageLimit),
	}
	if pageToken != "" {
		params["page_token"] = pageToken
	}

	req := c.client.R().
		SetContext(ctx).
		SetHeader("APCA-API-KEY-ID", c.apiKey).
		SetHeader("APCA-API-SECRET-KEY", c.secretKey).
		SetQueryParams(params).
		SetResult(&barsResponse{})

	resp, err := c.doRequest(ctx, http.MethodGet, "/stocks/"+strings.ToUpper(symbol)+"/bars", req)
	if err != nil {
		return nil, err
	}
	return resp.Result().(*barsResponse), nil
}

func (b apiBar) toModel(symbol string) (models.BenchmarkBar, error) {
	ts, err := time.Parse(time.RFC3339, b.Timestamp)
	if err != nil {
		return models.BenchmarkBar{}, err
	}
	open, high, low, volume := b.Open, b.High, b.Low, b.Volume
	return models.BenchmarkBar{
		Symbol: symbol,
		Date:   models.DateOf(ts),
		Open:   &open,
		High:   &high,
		Low:    &low,
		Close:  b.Close,
		Volume: &volume,
	}, nil
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *Client) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error

	for i := 0; i < c.maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var retryAfter time.Duration
		if err == nil {
			statusCode := resp.StatusCode()
			if statusCode != http.StatusTooManyRequests && statusCode < 500 {
				return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
			}
			if seconds, convErr := strconv.Atoi(resp.Header().Get("Retry-After")); convErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
			err = fmt.Errorf("status %s", resp.Status())
		}

		if i == c.maxRetries-1 {
			break
		}

		// Exponential backoff: base, 2*base, 4*base
		if retryAfter == 0 {
			retryAfter = time.Duration(math.Pow(2, float64(i))) * c.retryBase
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxRetries, err)
}

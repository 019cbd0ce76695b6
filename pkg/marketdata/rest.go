package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"tradeguard/pkg/broker"
	"tradeguard/pkg/cache"
)

// quoteTTL is how long a fetched quote keeps serving repeat lookups before a
// new request is spent on it.
const quoteTTL = 5 * time.Second

// RESTClient wraps the Alpaca stock data endpoints used by the core.
type RESTClient struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	limiter    *broker.RequestLimiter
	quotes     *cache.QuoteCache
}

// NewRESTClient builds a data client. The limiter should be shared with the
// trading client so both count against the same outbound window; nil gets a
// private limiter.
func NewRESTClient(apiKey, apiSecret string, limiter *broker.RequestLimiter) *RESTClient {
	if limiter == nil {
		limiter = broker.NewRequestLimiter(200, time.Minute)
	}
	return &RESTClient{
		baseURL:    "https://data.alpaca.markets",
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    limiter,
		quotes:     cache.NewQuoteCache(),
	}
}

type latestTradeJSON struct {
	Trade struct {
		Price     float64 `json:"p"`
		Timestamp string  `json:"t"`
	} `json:"trade"`
}

type barJSON struct {
	Timestamp string  `json:"t"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
}

type barsJSON struct {
	Bars          []barJSON `json:"bars"`
	NextPageToken string    `json:"next_page_token"`
}

func (c *RESTClient) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	if price, ok := c.quotes.Fresh(symbol, quoteTTL); ok {
		return Quote{Symbol: symbol, Price: price, Timestamp: time.Now()}, nil
	}

	body, err := c.do(ctx, "/v2/stocks/"+symbol+"/trades/latest", nil)
	if err != nil {
		return Quote{}, err
	}
	var resp latestTradeJSON
	if err := json.Unmarshal(body, &resp); err != nil {
		return Quote{}, fmt.Errorf("decode latest trade: %w", err)
	}
	if resp.Trade.Price <= 0 {
		return Quote{}, &broker.ParseError{Op: "latest_trade", Field: "trade.p"}
	}
	ts, _ := time.Parse(time.RFC3339Nano, resp.Trade.Timestamp)
	c.quotes.Put(symbol, resp.Trade.Price)
	return Quote{Symbol: symbol, Price: resp.Trade.Price, Timestamp: ts}, nil
}

func (c *RESTClient) GetBars(ctx context.Context, symbol string, limit int) ([]Bar, error) {
	if limit <= 0 {
		limit = 30
	}
	params := url.Values{}
	params.Set("timeframe", "1Day")
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.do(ctx, "/v2/stocks/"+symbol+"/bars", params)
	if err != nil {
		return nil, err
	}
	var resp barsJSON
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode bars: %w", err)
	}

	bars := make([]Bar, 0, len(resp.Bars))
	for _, b := range resp.Bars {
		ts, _ := time.Parse(time.RFC3339Nano, b.Timestamp)
		bars = append(bars, Bar{
			Timestamp: ts,
			Open:      b.Open, High: b.High, Low: b.Low, Close: b.Close,
			Volume: b.Volume,
		})
	}
	return bars, nil
}

func (c *RESTClient) do(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("APCA-API-KEY-ID", c.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.apiSecret)

	res, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &broker.TransientError{Op: "GET " + path, Err: err}
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	switch {
	case res.StatusCode < 300:
		return body, nil
	case res.StatusCode == http.StatusTooManyRequests:
		return nil, &broker.RateLimitError{Op: "GET " + path}
	case res.StatusCode >= 500:
		return nil, &broker.TransientError{Op: "GET " + path, StatusCode: res.StatusCode, Err: fmt.Errorf("%s", string(body))}
	default:
		return nil, fmt.Errorf("data GET %s status %d: %s", path, res.StatusCode, string(body))
	}
}

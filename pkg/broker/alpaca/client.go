package alpaca

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tradeguard/pkg/broker"
)

// Config holds Alpaca credentials.
type Config struct {
	APIKey    string
	APISecret string
	Paper     bool
	// RequestsPerMinute caps outbound calls; Alpaca allows 200/min by default.
	RequestsPerMinute int
}

// Client is an Alpaca trading client implementing broker.Gateway.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	limiter    *broker.RequestLimiter
	retry      broker.RetryPolicy
}

func New(cfg Config) *Client {
	base := "https://api.alpaca.markets"
	if cfg.Paper {
		base = "https://paper-api.alpaca.markets"
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 200
	}
	return &Client{
		cfg:        cfg,
		baseURL:    base,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    broker.NewRequestLimiter(rpm, time.Minute),
		retry:      broker.DefaultRetryPolicy(),
	}
}

// Limiter exposes the shared request limiter so other clients (market data)
// can pace against the same window.
func (c *Client) Limiter() *broker.RequestLimiter { return c.limiter }

func (c *Client) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return broker.OrderResult{}, errors.New("alpaca: API key/secret required")
	}

	payload := orderRequestJSON{
		Symbol:        req.Symbol,
		Qty:           formatFloat(req.Qty),
		Side:          strings.ToLower(string(req.Side)),
		Type:          strings.ToLower(string(req.Type)),
		TimeInForce:   strings.ToLower(string(req.TimeInForce)),
		ClientOrderID: req.ClientID,
	}
	if payload.TimeInForce == "" {
		payload.TimeInForce = "day"
	}
	if req.Type == broker.OrderTypeLimit || req.Type == broker.OrderTypeStopLimit {
		payload.LimitPrice = formatFloat(req.LimitPrice)
	}
	if req.Type == broker.OrderTypeStop || req.Type == broker.OrderTypeStopLimit {
		payload.StopPrice = formatFloat(req.StopPrice)
	}
	if req.Class == broker.ClassBracket {
		if req.Bracket == nil {
			return broker.OrderResult{}, &broker.ValidationError{
				Op: "submit_order", Code: broker.ReasonBadBracketPricing,
				Message: "bracket class without leg prices",
			}
		}
		payload.OrderClass = "bracket"
		payload.TakeProfit = &takeProfitJSON{LimitPrice: formatFloat(req.Bracket.TakeProfitPrice)}
		payload.StopLoss = &stopLossJSON{StopPrice: formatFloat(req.Bracket.StopLossPrice)}
	}

	var result broker.OrderResult
	err := c.retry.Do(ctx, c.limiter, "submit_order", func() error {
		body, err := c.do(ctx, http.MethodPost, "/v2/orders", nil, payload)
		if err != nil {
			return err
		}
		var resp orderJSON
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("alpaca: decode order response: %w", err)
		}
		order, err := resp.toOrder("submit_order")
		if err != nil {
			return err
		}
		result = broker.OrderResult{OrderID: order.ID, ClientID: order.ClientID, Status: order.Status}
		return nil
	})
	return result, err
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	return c.retry.Do(ctx, c.limiter, "cancel_order", func() error {
		_, err := c.do(ctx, http.MethodDelete, "/v2/orders/"+orderID, nil, nil)
		return err
	})
}

func (c *Client) GetOrderByID(ctx context.Context, orderID string) (broker.Order, error) {
	params := url.Values{}
	params.Set("nested", "true")

	var order broker.Order
	err := c.retry.Do(ctx, c.limiter, "get_order", func() error {
		body, err := c.do(ctx, http.MethodGet, "/v2/orders/"+orderID, params, nil)
		if err != nil {
			return err
		}
		var resp orderJSON
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("alpaca: decode order: %w", err)
		}
		order, err = resp.toOrder("get_order")
		return err
	})
	return order, err
}

func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]broker.Order, error) {
	params := url.Values{}
	params.Set("status", "open")
	params.Set("nested", "true")
	if symbol != "" {
		params.Set("symbols", symbol)
	}

	var orders []broker.Order
	err := c.retry.Do(ctx, c.limiter, "open_orders", func() error {
		body, err := c.do(ctx, http.MethodGet, "/v2/orders", params, nil)
		if err != nil {
			return err
		}
		var resp []orderJSON
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("alpaca: decode open orders: %w", err)
		}
		orders = orders[:0]
		for _, o := range resp {
			conv, err := o.toOrder("open_orders")
			if err != nil {
				return err
			}
			orders = append(orders, conv)
		}
		return nil
	})
	return orders, err
}

func (c *Client) GetAllPositions(ctx context.Context) ([]broker.Position, error) {
	var positions []broker.Position
	err := c.retry.Do(ctx, c.limiter, "positions", func() error {
		body, err := c.do(ctx, http.MethodGet, "/v2/positions", nil, nil)
		if err != nil {
			return err
		}
		var resp []positionJSON
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("alpaca: decode positions: %w", err)
		}
		positions = positions[:0]
		for _, p := range resp {
			conv, err := p.toPosition("positions")
			if err != nil {
				return err
			}
			positions = append(positions, conv)
		}
		return nil
	})
	return positions, err
}

func (c *Client) GetAccount(ctx context.Context) (broker.Account, error) {
	var account broker.Account
	err := c.retry.Do(ctx, c.limiter, "account", func() error {
		body, err := c.do(ctx, http.MethodGet, "/v2/account", nil, nil)
		if err != nil {
			return err
		}
		var resp accountJSON
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("alpaca: decode account: %w", err)
		}
		account, err = resp.toAccount("account")
		return err
	})
	return account, err
}

// do performs one authenticated HTTP request and maps failures onto the
// broker error taxonomy.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, payload any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("alpaca: encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("APCA-API-KEY-ID", c.cfg.APIKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.cfg.APISecret)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &broker.TransientError{Op: method + " " + path, Err: err}
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode < 300 {
		return body, nil
	}
	return nil, c.mapError(method+" "+path, res, body)
}

func (c *Client) mapError(op string, res *http.Response, body []byte) error {
	var apiErr apiErrorJSON
	_ = json.Unmarshal(body, &apiErr)

	switch {
	case res.StatusCode == http.StatusTooManyRequests:
		var after time.Duration
		if v := res.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil {
				after = time.Duration(secs) * time.Second
			}
		}
		return &broker.RateLimitError{Op: op, RetryAfter: after}
	case res.StatusCode >= 500:
		return &broker.TransientError{
			Op: op, StatusCode: res.StatusCode,
			Err: fmt.Errorf("%s", strings.TrimSpace(string(body))),
		}
	default:
		return &broker.ValidationError{
			Op:      op,
			Code:    mapRejectionCode(apiErr),
			Message: apiErr.Message,
		}
	}
}

// Alpaca rejection codes the execution core special-cases.
const (
	codeInsufficientQty = 40310000
	codePDTProtection   = 40310100
)

func mapRejectionCode(apiErr apiErrorJSON) string {
	switch apiErr.Code {
	case codeInsufficientQty:
		return broker.ReasonInsufficientQuantity
	case codePDTProtection:
		return broker.ReasonDayTradingRestriction
	}
	msg := strings.ToLower(apiErr.Message)
	switch {
	case strings.Contains(msg, "insufficient qty"), strings.Contains(msg, "held for orders"):
		return broker.ReasonInsufficientQuantity
	case strings.Contains(msg, "day trading"), strings.Contains(msg, "pattern day"):
		return broker.ReasonDayTradingRestriction
	case strings.Contains(msg, "buying power"), strings.Contains(msg, "insufficient"):
		return broker.ReasonInsufficientFunds
	default:
		return strconv.Itoa(apiErr.Code)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

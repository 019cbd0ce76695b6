package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// StreamClient subscribes to the Alpaca real-time trade stream. The gap-risk
// monitoring loop consumes it during extended hours, where polling the REST
// quote endpoint would burn the shared request window.
type StreamClient struct {
	StreamURL string
	apiKey    string
	apiSecret string
	dialer    *websocket.Dialer
}

// Trade is one streamed trade print.
type Trade struct {
	Symbol    string
	Price     float64
	Timestamp time.Time
}

func NewStreamClient(apiKey, apiSecret string) *StreamClient {
	return &StreamClient{
		StreamURL: "wss://stream.data.alpaca.markets/v2/iex",
		apiKey:    apiKey,
		apiSecret: apiSecret,
		dialer:    websocket.DefaultDialer,
	}
}

type streamMsgJSON struct {
	Type      string  `json:"T"`
	Symbol    string  `json:"S"`
	Price     float64 `json:"p"`
	Timestamp string  `json:"t"`
	Message   string  `json:"msg"`
}

// SubscribeTrades opens the stream, authenticates, subscribes the given
// symbols, and pushes parsed trades into a channel. It returns the channel and
// a stop function.
func (c *StreamClient) SubscribeTrades(ctx context.Context, symbols []string) (<-chan Trade, func(), error) {
	conn, _, err := c.dialer.DialContext(ctx, c.StreamURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial data stream: %w", err)
	}

	auth := map[string]string{"action": "auth", "key": c.apiKey, "secret": c.apiSecret}
	if err := conn.WriteJSON(auth); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("stream auth: %w", err)
	}
	sub := map[string]any{"action": "subscribe", "trades": symbols}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("stream subscribe: %w", err)
	}

	out := make(chan Trade, 100)
	var once sync.Once
	stop := func() {
		once.Do(func() {
			// Connection may already be closed; ignore errors.
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
			close(out)
		})
	}

	go func() {
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
					strings.Contains(err.Error(), "use of closed network connection") {
					return
				}
				log.Printf("data stream read error: %v", err)
				return
			}

			var batch []streamMsgJSON
			if err := json.Unmarshal(msg, &batch); err != nil {
				log.Printf("data stream parse error: %v", err)
				continue
			}
			for _, m := range batch {
				switch m.Type {
				case "t":
					ts, _ := time.Parse(time.RFC3339Nano, m.Timestamp)
					select {
					case out <- Trade{Symbol: m.Symbol, Price: m.Price, Timestamp: ts}:
					default:
						// Drop when the consumer lags; gap monitoring only
						// needs a recent price, not every print.
					}
				case "error":
					log.Printf("data stream error message: %s", m.Message)
				}
			}
		}
	}()

	return out, stop, nil
}

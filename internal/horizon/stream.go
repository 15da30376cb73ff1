package horizon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tmaxmax/go-sse"

	"wallet-notifier/internal/domain"
)

// errStreamClosed is returned when Horizon ends a stream with "byebye".
var errStreamClosed = errors.New("stream closed by server")

// SubscribeEffects opens a live effect stream for accountID. The stream
// reconnects with backoff and resumes after the last delivered effect.
func (c *Client) SubscribeEffects(ctx context.Context, accountID, cursor string) (*EffectSubscription, error) {
	if accountID == "" {
		return nil, fmt.Errorf("subscribe effects: empty account id")
	}
	if cursor == "" {
		cursor = CursorNow
	}

	out := make(chan domain.Effect, 64)
	sub := NewEffectSubscription(out)
	sub.setCursor(cursor)

	go c.runEffectStream(ctx, sub, accountID, out)
	return sub, nil
}

func (c *Client) runEffectStream(ctx context.Context, sub *EffectSubscription, accountID string, out chan<- domain.Effect) {
	defer close(out)
	defer sub.SetOnline(false)

	delay := c.reconnectDelay
	for {
		delivered, err := c.streamEffectsOnce(ctx, sub, accountID, out)
		sub.SetOnline(false)

		if ctx.Err() != nil {
			return
		}
		if delivered {
			delay = c.reconnectDelay
		}
		if err != nil && !errors.Is(err, errStreamClosed) {
			c.logger.Printf("effect stream %s/%s: %v (reconnect in %s)", c.network, accountID, err, delay)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.maxReconnectDelay {
			delay = c.maxReconnectDelay
		}
	}
}

// streamEffectsOnce holds one streaming connection until it ends. It reports
// whether any effect was delivered.
func (c *Client) streamEffectsOnce(ctx context.Context, sub *EffectSubscription, accountID string, out chan<- domain.Effect) (bool, error) {
	if err := c.limiter.Wait(ctx, c.network); err != nil {
		return false, err
	}

	resp, err := c.stream.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetPathParam("account", accountID).
		SetQueryParam("cursor", sub.Cursor()).
		Get("/accounts/{account}/effects")
	if err != nil {
		return false, fmt.Errorf("connect: %w", err)
	}
	body := resp.Body
	if body == nil && resp.RawResponse != nil {
		body = resp.RawResponse.Body
	}
	if body == nil {
		return false, fmt.Errorf("connect: empty response body")
	}
	defer body.Close()

	if !resp.IsSuccess() {
		raw, _ := io.ReadAll(io.LimitReader(body, 64<<10))
		return false, newError(resp.StatusCode(), raw)
	}

	sub.SetOnline(true)

	delivered := false
	err = readEvents(body, func(ev event) error {
		if ev.Data == `"hello"` || ev.Name == "open" {
			return nil
		}
		if ev.Data == `"byebye"` {
			return errStreamClosed
		}

		var effect domain.Effect
		if err := json.Unmarshal([]byte(ev.Data), &effect); err != nil {
			return fmt.Errorf("decode effect: %w", err)
		}

		select {
		case out <- effect:
		case <-ctx.Done():
			return ctx.Err()
		}
		delivered = true

		switch {
		case effect.PagingToken != "":
			sub.setCursor(effect.PagingToken)
		case ev.ID != "":
			sub.setCursor(ev.ID)
		}
		return nil
	})
	return delivered, err
}

// event is one server-sent event. ID is the last id the stream announced.
type event struct {
	ID   string
	Name string
	Data string
}

// maxEventSize bounds a single effect frame.
const maxEventSize = 256 << 10

// readEvents parses a text/event-stream body and calls fn per event that
// carries data. A body that ends without a failure still reports
// io.ErrUnexpectedEOF since Horizon streams never end on their own.
func readEvents(r io.Reader, fn func(event) error) error {
	for ev, err := range sse.Read(r, &sse.ReadConfig{MaxEventSize: maxEventSize}) {
		if err != nil {
			return err
		}
		if ev.Data == "" {
			continue
		}
		if err := fn(event{ID: ev.LastEventID, Name: ev.Type, Data: ev.Data}); err != nil {
			return err
		}
	}
	return io.ErrUnexpectedEOF
}

// Package worker runs network-bound work in a single background context
// reached over a message-passing bridge.
//
// Requests and responses cross the bridge as JSON envelopes correlated by
// id. Lifecycle signals travel on a separate control queue; signals sent
// before the background context finishes construction are held and
// delivered first.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"wallet-notifier/internal/async"
	"wallet-notifier/internal/observability"
)

// DefaultQueueSize is the buffer of each envelope channel.
const DefaultQueueSize = 64

// ErrClosed is returned by calls made after the background context exited.
var ErrClosed = errors.New("worker: bridge closed")

// Handler is the background side of a bridge.
type Handler interface {
	// Handle serves one request. Requests are served concurrently.
	Handle(ctx context.Context, method string, params json.RawMessage) (any, error)

	// Control applies a lifecycle signal.
	Control(sig Signal)
}

// Factory constructs the background handler. It runs inside the background
// goroutine and may block on network setup.
type Factory func(ctx context.Context) (Handler, error)

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(l *log.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithQueueSize sets the envelope channel buffer.
func WithQueueSize(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

type reply struct {
	resp Response
	err  error
}

// Bridge is the foreground handle of a background context.
type Bridge struct {
	logger    *log.Logger
	queueSize int

	requests  chan []byte
	responses chan []byte

	ctrlMu     sync.Mutex
	ctrl       []string
	ctrlNotify chan struct{}

	ready   chan struct{}
	initErr error
	done    chan struct{}

	mu      sync.Mutex
	pending map[uint64]chan reply
	closed  bool
	nextID  atomic.Uint64
}

// Spawn starts the background context. Construction happens asynchronously;
// calls and signals issued before it completes are queued.
func Spawn(ctx context.Context, factory Factory, opts ...Option) *Bridge {
	b := &Bridge{
		logger:     log.New(os.Stdout, "[worker] ", log.LstdFlags),
		queueSize:  DefaultQueueSize,
		ctrlNotify: make(chan struct{}, 1),
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
		pending:    make(map[uint64]chan reply),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.requests = make(chan []byte, b.queueSize)
	b.responses = make(chan []byte, b.queueSize)

	go b.background(ctx, factory)
	go b.dispatch()
	return b
}

// Ready is closed once construction finished, successfully or not.
func (b *Bridge) Ready() <-chan struct{} {
	return b.ready
}

// Err returns the construction error. Valid after Ready is closed.
func (b *Bridge) Err() error {
	select {
	case <-b.ready:
		return b.initErr
	default:
		return nil
	}
}

// Done is closed when the background context exited.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Forward queues a raw control token. Unknown tokens are ignored by the
// background side.
func (b *Bridge) Forward(token string) {
	b.ctrlMu.Lock()
	b.ctrl = append(b.ctrl, token)
	b.ctrlMu.Unlock()

	select {
	case b.ctrlNotify <- struct{}{}:
	default:
	}
}

// Signal queues a lifecycle signal.
func (b *Bridge) Signal(sig Signal) {
	b.Forward(string(sig))
}

// Call sends method with params and decodes the result into result, which
// may be nil. Errors raised in the background are returned as *RemoteError.
func (b *Bridge) Call(ctx context.Context, method string, params, result any) (err error) {
	start := time.Now()
	defer func() {
		observability.RecordWorkerRequest(method, time.Since(start).Seconds(), err)
	}()

	req := Request{ID: b.nextID.Add(1), Method: method}
	if params != nil {
		req.Params, err = json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encode %s params: %w", method, err)
		}
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	ch := make(chan reply, 1)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.pending[req.ID] = ch
	b.mu.Unlock()
	defer b.forget(req.ID)

	select {
	case b.requests <- raw:
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return ErrClosed
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return r.err
		}
		if r.resp.Error != nil {
			return r.resp.Error
		}
		if result != nil && len(r.resp.Result) > 0 {
			if err := json.Unmarshal(r.resp.Result, result); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Async runs Call in its own goroutine and reports the outcome as a status.
func Async[T any](ctx context.Context, b *Bridge, method string, params any) <-chan async.Status[T] {
	return async.Go(ctx, func(ctx context.Context) (T, error) {
		var out T
		err := b.Call(ctx, method, params, &out)
		return out, err
	})
}

func (b *Bridge) forget(id uint64) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// dispatch routes responses to their pending callers.
func (b *Bridge) dispatch() {
	for {
		select {
		case raw := <-b.responses:
			b.deliver(raw)
		case <-b.done:
			for {
				select {
				case raw := <-b.responses:
					b.deliver(raw)
				default:
					b.failPending()
					return
				}
			}
		}
	}
}

func (b *Bridge) deliver(raw []byte) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		b.logger.Printf("decode response: %v", err)
		return
	}

	b.mu.Lock()
	ch, ok := b.pending[resp.ID]
	delete(b.pending, resp.ID)
	b.mu.Unlock()

	// Caller gave up; the result is dropped.
	if !ok {
		return
	}
	ch <- reply{resp: resp}
}

func (b *Bridge) failPending() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.pending {
		ch <- reply{err: ErrClosed}
		delete(b.pending, id)
	}
}

func (b *Bridge) background(ctx context.Context, factory Factory) {
	defer close(b.done)

	h, err := construct(ctx, factory)
	if err != nil {
		b.initErr = err
		close(b.ready)
		b.logger.Printf("construction failed: %v", err)
		b.rejectAll(ctx, err)
		return
	}

	b.deliverSignals(h)
	close(b.ready)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.ctrlNotify:
			b.deliverSignals(h)
		case raw := <-b.requests:
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.serve(ctx, h, raw)
			}()
		}
	}
}

func construct(ctx context.Context, factory Factory) (h Handler, err error) {
	defer func() {
		if r := recover(); r != nil {
			h, err = nil, fmt.Errorf("worker construction panic: %v", r)
		}
	}()
	h, err = factory(ctx)
	if err == nil && h == nil {
		err = errors.New("worker factory returned nil handler")
	}
	return h, err
}

// rejectAll answers every request with the construction error until ctx is
// done.
func (b *Bridge) rejectAll(ctx context.Context, cause error) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw := <-b.requests:
			var req Request
			if err := json.Unmarshal(raw, &req); err != nil {
				continue
			}
			b.reply(ctx, Response{
				ID:    req.ID,
				Error: &RemoteError{Method: req.Method, Message: "construction failed: " + cause.Error()},
			})
		}
	}
}

func (b *Bridge) deliverSignals(h Handler) {
	b.ctrlMu.Lock()
	tokens := b.ctrl
	b.ctrl = nil
	b.ctrlMu.Unlock()

	for _, token := range tokens {
		sig, ok := ParseSignal(token)
		if !ok {
			b.logger.Printf("ignoring control token %q", token)
			continue
		}
		observability.RecordWorkerSignal(string(sig))
		h.Control(sig)
	}
}

func (b *Bridge) serve(ctx context.Context, h Handler, raw []byte) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		b.logger.Printf("decode request: %v", err)
		return
	}

	resp := Response{ID: req.ID}
	result, err := invoke(ctx, h, req)
	switch {
	case err != nil:
		resp.Error = toRemote(req.Method, err)
	case result != nil:
		enc, err := json.Marshal(result)
		if err != nil {
			resp.Error = &RemoteError{Method: req.Method, Message: "encode result: " + err.Error()}
		} else {
			resp.Result = enc
		}
	}
	b.reply(ctx, resp)
}

func invoke(ctx context.Context, h Handler, req Request) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, &RemoteError{Method: req.Method, Message: fmt.Sprint(r), Panic: true}
		}
	}()
	return h.Handle(ctx, req.Method, req.Params)
}

func toRemote(method string, err error) *RemoteError {
	var re *RemoteError
	if errors.As(err, &re) {
		return re
	}
	re = &RemoteError{Method: method, Message: err.Error()}
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		re.Status = sc.StatusCode()
	}
	return re
}

func (b *Bridge) reply(ctx context.Context, resp Response) {
	raw, err := json.Marshal(resp)
	if err != nil {
		b.logger.Printf("encode response %d: %v", resp.ID, err)
		return
	}
	select {
	case b.responses <- raw:
	case <-ctx.Done():
	}
}

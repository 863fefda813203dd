package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/vk/wasmchat/internal/ctxlog"
)

// ErrNotInitialized is returned for calls attempted before the worker
// process exists or before its load handshake completed.
var ErrNotInitialized = errors.New("rpc: worker not initialized")

// ErrChannelClosed is returned for calls attempted after teardown, and to
// callers left outstanding when the channel goes away.
var ErrChannelClosed = errors.New("rpc: worker channel closed")

// RemoteError carries a worker-reported failure message verbatim.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("worker reported error: %s", e.Message)
}

// Channel multiplexes call/response pairs over a one-way asynchronous
// message stream. The pending table is mutated only by the send path
// (insert) and the receive path or a deadline expiry (remove); each id is a
// single critical section under mu, which rules out a double-resolve when a
// duplicate response races a timeout-driven removal.
type Channel struct {
	mu      sync.Mutex
	pending map[string]chan Response
	enc     *json.Encoder
	w       io.Writer
	closed  bool

	// done is closed by the receive loop when the stream goes away.
	done chan struct{}
}

// NewChannel wraps a writer/reader pair and starts the receive loop. The
// context supplies the logger for the loop's lifetime.
func NewChannel(ctx context.Context, w io.Writer, r io.Reader) *Channel {
	c := &Channel{
		pending: make(map[string]chan Response),
		enc:     json.NewEncoder(w),
		w:       w,
		done:    make(chan struct{}),
	}
	go c.receive(ctx, r)
	return c
}

// Call sends a request and suspends until the correlated response arrives,
// the context expires, or the channel goes away. A missing id is filled in
// with a fresh one. On context expiry the pending entry is removed and a
// late response for it becomes an orphan; the worker keeps running.
func (c *Channel) Call(ctx context.Context, req Request) (Response, error) {
	if req.ID == "" {
		req.ID = NewID()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Response{}, ErrChannelClosed
	}
	if _, exists := c.pending[req.ID]; exists {
		c.mu.Unlock()
		return Response{}, fmt.Errorf("rpc: request id %q is already pending", req.ID)
	}
	ch := make(chan Response, 1)
	c.pending[req.ID] = ch
	// Encoding under the lock also serializes concurrent writers on the
	// wire, preserving send order.
	if err := c.enc.Encode(&req); err != nil {
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return Response{}, fmt.Errorf("rpc: sending request %s: %w", req.ID, err)
	}
	c.mu.Unlock()

	select {
	case resp := <-ch:
		return finish(resp)
	case <-ctx.Done():
		if resp, delivered := c.abandon(req.ID, ch); delivered {
			return finish(resp)
		}
		return Response{}, fmt.Errorf("rpc: request %s: %w", req.ID, ctx.Err())
	case <-c.done:
		// A response may have been delivered just before the stream died.
		select {
		case resp := <-ch:
			return finish(resp)
		default:
		}
		return Response{}, ErrChannelClosed
	}
}

// finish maps an error-kind response to a RemoteError.
func finish(resp Response) (Response, error) {
	if resp.Type == KindError {
		return Response{}, &RemoteError{Message: resp.Error}
	}
	return resp, nil
}

// abandon removes the pending entry for id. If the receive path already
// resolved it, the delivered response is returned instead.
func (c *Channel) abandon(id string, ch chan Response) (Response, bool) {
	c.mu.Lock()
	_, stillPending := c.pending[id]
	if stillPending {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !stillPending {
		select {
		case resp := <-ch:
			return resp, true
		default:
		}
	}
	return Response{}, false
}

// Close rejects further sends and closes the underlying writer, which
// signals the worker to exit. Outstanding callers are unblocked with
// ErrChannelClosed once the receive loop observes the stream ending.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if wc, ok := c.w.(io.Closer); ok {
		return wc.Close()
	}
	return nil
}

// receive is the single reader of the response stream. It resolves pending
// calls by id and discards everything else.
func (c *Channel) receive(ctx context.Context, r io.Reader) {
	logger := ctxlog.FromContext(ctx)
	dec := json.NewDecoder(r)

	for {
		var resp Response
		if err := dec.Decode(&resp); err != nil {
			if errors.Is(err, io.EOF) {
				logger.Debug("Worker response stream ended.")
			} else {
				logger.Error("Worker response stream failed.", "error", err)
			}
			break
		}

		if shapeErr := resp.checkShape(); shapeErr != nil {
			if resp.ID == "" {
				logger.Warn("Discarding malformed response without an id.", "error", shapeErr)
				continue
			}
			// Synthesize a diagnostic instead of propagating a raw parse
			// fault to the caller.
			resp = Response{
				ID:    resp.ID,
				Type:  KindError,
				Error: fmt.Sprintf("malformed worker response: %v", shapeErr),
			}
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()

		if !ok {
			// Already resolved or never issued; tolerated silently.
			logger.Debug("Discarding orphan response.", "id", resp.ID, "type", resp.Type)
			continue
		}
		ch <- resp
	}

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	close(c.done)
}

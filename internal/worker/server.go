package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/vk/wasmchat/internal/ctxlog"
	"github.com/vk/wasmchat/internal/rpc"
)

// Engine is the long-running capability the worker fronts. Load brings the
// model up; Generate produces one reply.
type Engine interface {
	Load(ctx context.Context) error
	Generate(ctx context.Context, message, language string, opts rpc.GenerateOptions) (string, error)
}

// Serve runs the worker loop until the request stream ends. Each request is
// handled in its own goroutine, so overlapping generate commands multiplex
// and responses may be written in any order; correlation is entirely by id.
func Serve(ctx context.Context, r io.Reader, w io.Writer, engine Engine) error {
	logger := ctxlog.FromContext(ctx)
	s := &server{
		engine: engine,
		enc:    json.NewEncoder(w),
	}

	dec := json.NewDecoder(r)
	for {
		var req rpc.Request
		if err := dec.Decode(&req); err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Error("Request stream failed, shutting down.", "error", err)
			}
			break
		}
		s.wg.Add(1)
		go s.handle(ctx, req)
	}

	// Let in-flight calls write their responses before the pipe goes away.
	s.wg.Wait()
	logger.Info("Worker serve loop finished.")
	return nil
}

type server struct {
	engine Engine
	wg     sync.WaitGroup

	encMu sync.Mutex
	enc   *json.Encoder

	loaded atomic.Bool
}

func (s *server) handle(ctx context.Context, req rpc.Request) {
	defer s.wg.Done()
	logger := ctxlog.FromContext(ctx).With("id", req.ID, "type", req.Type)

	switch req.Type {
	case rpc.KindLoad:
		if err := s.engine.Load(ctx); err != nil {
			logger.Error("Model load failed.", "error", err)
			s.fail(ctx, req.ID, err.Error())
			return
		}
		s.loaded.Store(true)
		logger.Info("Model loaded.")
		s.send(ctx, rpc.Response{ID: req.ID, Type: rpc.KindLoaded})

	case rpc.KindGenerate:
		if !s.loaded.Load() {
			s.fail(ctx, req.ID, "generate before model was loaded")
			return
		}
		opts := rpc.GenerateOptions{}
		if req.Options != nil {
			opts = *req.Options
		}
		out, err := s.engine.Generate(ctx, req.Message, req.Language, opts)
		if err != nil {
			logger.Error("Generation failed.", "error", err)
			s.fail(ctx, req.ID, err.Error())
			return
		}
		s.send(ctx, rpc.Response{ID: req.ID, Type: rpc.KindResult, Response: out})

	default:
		s.fail(ctx, req.ID, fmt.Sprintf("unknown command type %q", req.Type))
	}
}

func (s *server) fail(ctx context.Context, id, msg string) {
	s.send(ctx, rpc.Response{ID: id, Type: rpc.KindError, Error: msg})
}

// send serializes response writes; the encoder is shared across handler
// goroutines.
func (s *server) send(ctx context.Context, resp rpc.Response) {
	s.encMu.Lock()
	defer s.encMu.Unlock()
	if err := s.enc.Encode(&resp); err != nil {
		ctxlog.FromContext(ctx).Error("Failed to write response.", "id", resp.ID, "error", err)
	}
}

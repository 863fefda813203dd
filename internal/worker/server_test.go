package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/wasmchat/internal/rpc"
	"github.com/vk/wasmchat/internal/testutil"
)

// fakeEngine is a scriptable Engine for serve-loop tests.
type fakeEngine struct {
	loadErr error
	genFn   func(message, language string, opts rpc.GenerateOptions) (string, error)

	mu    sync.Mutex
	loads int
}

func (e *fakeEngine) Load(ctx context.Context) error {
	e.mu.Lock()
	e.loads++
	e.mu.Unlock()
	return e.loadErr
}

func (e *fakeEngine) Generate(ctx context.Context, message, language string, opts rpc.GenerateOptions) (string, error) {
	if e.genFn != nil {
		return e.genFn(message, language, opts)
	}
	return fmt.Sprintf("reply(%s/%s)", message, language), nil
}

// startServer wires a Serve loop to an rpc.Channel over in-process pipes,
// mirroring how the daemon talks to the spawned worker binary.
func startServer(t *testing.T, engine Engine) *rpc.Channel {
	t.Helper()
	ctx := testutil.Context(t)

	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	serveDone := make(chan error, 1)
	go func() {
		err := Serve(ctx, reqR, respW, engine)
		_ = respW.Close()
		serveDone <- err
	}()

	ch := rpc.NewChannel(ctx, reqW, respR)
	t.Cleanup(func() {
		_ = ch.Close()
		select {
		case err := <-serveDone:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("serve loop did not shut down")
		}
	})
	return ch
}

func TestServe_LoadThenGenerate(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ctx := testutil.Context(t)
	engine := &fakeEngine{}
	ch := startServer(t, engine)

	// --- Act ---
	loadResp, err := ch.Call(ctx, rpc.Request{ID: "a", Type: rpc.KindLoad})
	require.NoError(t, err)

	genResp, err := ch.Call(ctx, rpc.Request{
		ID:       "b",
		Type:     rpc.KindGenerate,
		Message:  "hello",
		Language: "en",
		Options:  &rpc.GenerateOptions{MaxNewTokens: 10, Temperature: 0.7, DoSample: true},
	})
	require.NoError(t, err)

	// --- Assert ---
	assert.Equal(t, rpc.Response{ID: "a", Type: rpc.KindLoaded}, loadResp)
	assert.Equal(t, "b", genResp.ID)
	assert.Equal(t, rpc.KindResult, genResp.Type)
	assert.Equal(t, "reply(hello/en)", genResp.Response)
	assert.Equal(t, 1, engine.loads)
}

func TestServe_GenerateBeforeLoadFails(t *testing.T) {
	t.Parallel()

	ctx := testutil.Context(t)
	ch := startServer(t, &fakeEngine{})

	_, err := ch.Call(ctx, rpc.Request{Type: rpc.KindGenerate, Message: "too soon"})
	var remoteErr *rpc.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Contains(t, remoteErr.Message, "before model was loaded")
}

func TestServe_LoadFailureIsReportedVerbatim(t *testing.T) {
	t.Parallel()

	ctx := testutil.Context(t)
	ch := startServer(t, &fakeEngine{loadErr: errors.New("weights unreachable")})

	_, err := ch.Call(ctx, rpc.Request{Type: rpc.KindLoad})
	var remoteErr *rpc.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, "weights unreachable", remoteErr.Message)
}

func TestServe_UnknownCommandFails(t *testing.T) {
	t.Parallel()

	ctx := testutil.Context(t)
	ch := startServer(t, &fakeEngine{})

	_, err := ch.Call(ctx, rpc.Request{Type: "dance"})
	var remoteErr *rpc.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Contains(t, remoteErr.Message, `unknown command type "dance"`)
}

func TestServe_OverlappingGeneratesMultiplex(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ctx := testutil.Context(t)
	release := make(chan struct{})
	engine := &fakeEngine{
		genFn: func(message, language string, opts rpc.GenerateOptions) (string, error) {
			// The first message stalls until the last one has been issued,
			// forcing out-of-order completion.
			if message == "first" {
				<-release
			}
			return "done:" + message, nil
		},
	}
	ch := startServer(t, engine)
	_, err := ch.Call(ctx, rpc.Request{Type: rpc.KindLoad})
	require.NoError(t, err)

	// --- Act ---
	results := make(chan string, 2)
	errs := make(chan error, 2)
	for _, msg := range []string{"first", "second"} {
		go func(msg string) {
			resp, err := ch.Call(ctx, rpc.Request{Type: rpc.KindGenerate, Message: msg})
			errs <- err
			results <- resp.Response
		}(msg)
	}
	// Unblock "first" only after both calls are in flight.
	time.Sleep(50 * time.Millisecond)
	close(release)

	// --- Assert ---
	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		require.NoError(t, <-errs)
		got[<-results] = true
	}
	assert.True(t, got["done:first"])
	assert.True(t, got["done:second"])
}

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/vk/wasmchat/internal/ctxlog"
	"github.com/vk/wasmchat/internal/fetch"
	"github.com/vk/wasmchat/internal/rpc"
	"github.com/vk/wasmchat/internal/wasm"
)

// replyPack is the model resource format: reply templates per language
// code, with a language-independent fallback. Templates may contain one %s
// verb, which is filled with the normalized user message.
type replyPack struct {
	Replies  map[string][]string `json:"replies"`
	Fallback []string            `json:"fallback"`
}

// ModelEngine is the production Engine: its Load fetches the reply pack
// over the resilient fetch layer and brings up the language wasm module,
// and its Generate picks and fills a template for the detected language.
type ModelEngine struct {
	modelURL string
	fetcher  *fetch.Client
	loader   *wasm.Loader

	mu     sync.Mutex
	pack   *replyPack
	lang   *wasm.LanguageModule
	sample *rand.Rand
}

// NewModelEngine assembles an engine. loader may be nil when no language
// module is configured; detection then falls back to English.
func NewModelEngine(modelURL string, fetcher *fetch.Client, loader *wasm.Loader) *ModelEngine {
	return &ModelEngine{
		modelURL: modelURL,
		fetcher:  fetcher,
		loader:   loader,
		sample:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Load fetches and decodes the model resource, then obtains the validated
// language module handle. Safe to call again after a failure; a repeat call
// after success is a no-op.
func (e *ModelEngine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pack != nil {
		return nil
	}
	logger := ctxlog.FromContext(ctx)

	body, err := e.fetcher.Fetch(ctx, e.modelURL)
	if err != nil {
		return fmt.Errorf("fetching model resource: %w", err)
	}
	var pack replyPack
	if err := json.Unmarshal(body, &pack); err != nil {
		return fmt.Errorf("decoding model resource: %w", err)
	}
	if len(pack.Replies) == 0 && len(pack.Fallback) == 0 {
		return fmt.Errorf("model resource %s contains no replies", e.modelURL)
	}

	if e.loader != nil {
		handle, err := e.loader.Load(ctx)
		if err != nil {
			return fmt.Errorf("loading language module: %w", err)
		}
		e.lang = wasm.NewLanguageModule(handle)
	}

	logger.Info("Model resources loaded.", "languages", len(pack.Replies), "fallback_replies", len(pack.Fallback))
	e.pack = &pack
	return nil
}

// Generate produces one reply for the message. An empty or "auto" language
// is detected through the language module when available.
func (e *ModelEngine) Generate(ctx context.Context, message, language string, opts rpc.GenerateOptions) (string, error) {
	e.mu.Lock()
	pack, lang := e.pack, e.lang
	e.mu.Unlock()
	if pack == nil {
		return "", fmt.Errorf("model is not loaded")
	}
	logger := ctxlog.FromContext(ctx)

	code := language
	if code == "" || code == "auto" {
		code = "en"
		if lang != nil {
			detected, err := lang.DetectLanguage(ctx, message)
			if err != nil {
				return "", fmt.Errorf("detecting language: %w", err)
			}
			code = detected
		}
	}

	normalized := message
	if lang != nil {
		n, err := lang.Normalize(ctx, message, code)
		if err != nil {
			return "", fmt.Errorf("normalizing message: %w", err)
		}
		normalized = n

		if stats, err := lang.TextStats(ctx, message); err == nil {
			logger.Debug("Message statistics.", "language", code, "words", stats.WordCount, "sentences", stats.SentenceCount)
		}
	}

	candidates := pack.Replies[code]
	if len(candidates) == 0 {
		candidates = pack.Replies["en"]
	}
	if len(candidates) == 0 {
		candidates = pack.Fallback
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("model has no replies for language %q", code)
	}

	reply := candidates[e.pick(normalized, len(candidates), opts)]
	if strings.Contains(reply, "%s") {
		reply = fmt.Sprintf(reply, normalized)
	}
	return truncateTokens(reply, opts.MaxNewTokens), nil
}

// pick selects a candidate index: seeded sampling when requested, otherwise
// a stable hash of the normalized message so identical inputs get identical
// replies.
func (e *ModelEngine) pick(normalized string, n int, opts rpc.GenerateOptions) int {
	if opts.DoSample && opts.Temperature > 0 {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.sample.Intn(n)
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(normalized))
	return int(h.Sum32() % uint32(n))
}

// truncateTokens caps the reply at max whitespace-delimited tokens; zero or
// negative means no cap.
func truncateTokens(s string, max int) string {
	if max <= 0 {
		return s
	}
	tokens := strings.Fields(s)
	if len(tokens) <= max {
		return s
	}
	return strings.Join(tokens[:max], " ")
}

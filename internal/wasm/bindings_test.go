package wasm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/wasmchat/internal/testutil"
)

// languageTestModule mimics the language module's exports over the buffer
// ABI.
func languageTestModule() *fakeModule {
	return newBufferModule("memory", map[string]bufferFn{
		"detect_language": {nargs: 1, impl: func(args [][]byte, _ []uint64) ([]byte, error) {
			if bytes.Contains(args[0], []byte("ß")) {
				return []byte("de"), nil
			}
			return []byte("en"), nil
		}},
		"text_stats": {nargs: 1, impl: func(args [][]byte, _ []uint64) ([]byte, error) {
			words := strings.Fields(string(args[0]))
			return json.Marshal(TextStats{
				WordCount:      uint32(len(words)),
				CharacterCount: uint32(len([]rune(string(args[0])))),
				SentenceCount:  1,
			})
		}},
		"normalize_text": {nargs: 2, impl: func(args [][]byte, _ []uint64) ([]byte, error) {
			return bytes.ToLower(args[0]), nil
		}},
	})
}

func loadHandle(t *testing.T, mod Module, c Contract) *Handle {
	t.Helper()
	loader := NewLoader(func(context.Context) (Module, error) { return mod, nil }, c)
	handle, err := loader.Load(testutil.Context(t))
	require.NoError(t, err)
	return handle
}

func TestLanguageModule_RoundTrips(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ctx := testutil.Context(t)
	lang := NewLanguageModule(loadHandle(t, languageTestModule(), LanguageContract))

	// --- Act / Assert ---
	code, err := lang.DetectLanguage(ctx, "die Straße ist naß")
	require.NoError(t, err)
	assert.Equal(t, "de", code)

	code, err = lang.DetectLanguage(ctx, "the road is wet")
	require.NoError(t, err)
	assert.Equal(t, "en", code)

	normalized, err := lang.Normalize(ctx, "Hello World", "en")
	require.NoError(t, err)
	assert.Equal(t, "hello world", normalized)

	stats, err := lang.TextStats(ctx, "one two three")
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.WordCount)
	assert.EqualValues(t, 13, stats.CharacterCount)
}

func TestPreprocessModule_BufferOperations(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ctx := testutil.Context(t)
	mod := newBufferModule("memory", map[string]bufferFn{
		"normalize_text": {nargs: 1, impl: func(args [][]byte, _ []uint64) ([]byte, error) {
			return bytes.TrimSpace(args[0]), nil
		}},
		"tokenize_text": {nargs: 1, impl: func(args [][]byte, _ []uint64) ([]byte, error) {
			return json.Marshal(strings.Fields(string(args[0])))
		}},
		"transform_image": {nargs: 1, impl: func(args [][]byte, extra []uint64) ([]byte, error) {
			if len(extra) != 4 {
				return nil, fmt.Errorf("want 4 dimension scalars, got %d", len(extra))
			}
			// Shrink the buffer proportionally to the target width.
			out := args[0]
			if n := int(extra[2]); n < len(out) {
				out = out[:n]
			}
			return out, nil
		}},
		"size_ratio_stats": {nargs: 0, impl: func(_ [][]byte, extra []uint64) ([]byte, error) {
			return json.Marshal(SizeRatio{
				WidthRatio:      float64(extra[2]) / float64(extra[0]),
				HeightRatio:     float64(extra[3]) / float64(extra[1]),
				AspectPreserved: extra[2]*extra[1] == extra[3]*extra[0],
			})
		}},
	})
	pre := NewPreprocessModule(loadHandle(t, mod, PreprocessContract))

	// --- Act / Assert ---
	normalized, err := pre.NormalizeText(ctx, "  hello there  ")
	require.NoError(t, err)
	assert.Equal(t, "hello there", normalized)

	tokens, err := pre.TokenizeText(ctx, "guten morgen welt")
	require.NoError(t, err)
	assert.Equal(t, []string{"guten", "morgen", "welt"}, tokens)

	img := bytes.Repeat([]byte{0xAB}, 64)
	out, err := pre.TransformImage(ctx, img, 64, 1, 16, 1)
	require.NoError(t, err)
	assert.Len(t, out, 16)

	ratio, err := pre.SizeRatioStats(ctx, 640, 480, 320, 240)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, ratio.WidthRatio, 1e-9)
	assert.InDelta(t, 0.5, ratio.HeightRatio, 1e-9)
	assert.True(t, ratio.AspectPreserved)
}

func TestHandle_CallUnknownFunctionFails(t *testing.T) {
	t.Parallel()

	ctx := testutil.Context(t)
	h := loadHandle(t, languageTestModule(), LanguageContract)

	_, err := h.Call(ctx, "no_such_export")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_such_export")
}

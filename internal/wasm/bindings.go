package wasm

import (
	"context"
	"encoding/json"
	"fmt"
)

// TextStats is the serialized record produced by the language module's
// text_stats export.
type TextStats struct {
	WordCount              uint32  `json:"wordCount"`
	CharacterCount         uint32  `json:"characterCount"`
	CharacterCountNoSpaces uint32  `json:"characterCountNoSpaces"`
	SentenceCount          uint32  `json:"sentenceCount"`
	AverageWordLength      float64 `json:"averageWordLength"`
}

// SizeRatio is the serialized record produced by the preprocessing module's
// size_ratio_stats export.
type SizeRatio struct {
	WidthRatio      float64 `json:"widthRatio"`
	HeightRatio     float64 `json:"heightRatio"`
	AspectPreserved bool    `json:"aspectPreserved"`
}

// PreprocessModule wraps a handle validated against PreprocessContract with
// typed operations.
type PreprocessModule struct {
	h *Handle
}

// NewPreprocessModule binds the typed preprocessing surface to a validated
// handle.
func NewPreprocessModule(h *Handle) *PreprocessModule {
	return &PreprocessModule{h: h}
}

// NormalizeText normalizes raw user text.
func (m *PreprocessModule) NormalizeText(ctx context.Context, text string) (string, error) {
	return m.h.callString(ctx, "normalize_text", text)
}

// TokenizeText splits text into tokens. The module returns the token list
// as a JSON array.
func (m *PreprocessModule) TokenizeText(ctx context.Context, text string) ([]string, error) {
	raw, err := m.h.callBuffers(ctx, "tokenize_text", [][]byte{[]byte(text)})
	if err != nil {
		return nil, err
	}
	var tokens []string
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, fmt.Errorf("tokenize_text: decoding token list: %w", err)
	}
	return tokens, nil
}

// TransformImage rescales a raw image buffer from the source dimensions to
// the target dimensions and returns the transformed buffer.
func (m *PreprocessModule) TransformImage(ctx context.Context, img []byte, srcW, srcH, dstW, dstH uint32) ([]byte, error) {
	return m.h.callBuffers(ctx, "transform_image", [][]byte{img},
		uint64(srcW), uint64(srcH), uint64(dstW), uint64(dstH))
}

// SizeRatioStats computes size-ratio statistics between an original and a
// target dimension.
func (m *PreprocessModule) SizeRatioStats(ctx context.Context, origW, origH, dstW, dstH uint32) (SizeRatio, error) {
	raw, err := m.h.callBuffers(ctx, "size_ratio_stats", nil,
		uint64(origW), uint64(origH), uint64(dstW), uint64(dstH))
	if err != nil {
		return SizeRatio{}, err
	}
	var sr SizeRatio
	if err := json.Unmarshal(raw, &sr); err != nil {
		return SizeRatio{}, fmt.Errorf("size_ratio_stats: decoding record: %w", err)
	}
	return sr, nil
}

// LanguageModule wraps a handle validated against LanguageContract with
// typed operations.
type LanguageModule struct {
	h *Handle
}

// NewLanguageModule binds the typed language surface to a validated handle.
func NewLanguageModule(h *Handle) *LanguageModule {
	return &LanguageModule{h: h}
}

// DetectLanguage returns the language code the module detects for the text
// (en, de, fr, it, pt, hi, es, th).
func (m *LanguageModule) DetectLanguage(ctx context.Context, text string) (string, error) {
	return m.h.callString(ctx, "detect_language", text)
}

// TextStats computes textual statistics for the text.
func (m *LanguageModule) TextStats(ctx context.Context, text string) (TextStats, error) {
	raw, err := m.h.callBuffers(ctx, "text_stats", [][]byte{[]byte(text)})
	if err != nil {
		return TextStats{}, err
	}
	var ts TextStats
	if err := json.Unmarshal(raw, &ts); err != nil {
		return TextStats{}, fmt.Errorf("text_stats: decoding record: %w", err)
	}
	return ts, nil
}

// Normalize normalizes text for a specific language code.
func (m *LanguageModule) Normalize(ctx context.Context, text, language string) (string, error) {
	return m.h.callString(ctx, "normalize_text", text, language)
}

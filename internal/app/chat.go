package app

import (
	"context"
	"fmt"

	"github.com/vk/wasmchat/internal/ctxlog"
	"github.com/vk/wasmchat/internal/rpc"
	"github.com/vk/wasmchat/internal/wasm"
)

// Chat runs one user message through preprocessing and generation and
// returns the reply. Errors are recoverable at this boundary: a failed call
// leaves the module handle, the pending table and the worker intact for the
// next one.
func (a *App) Chat(ctx context.Context, message string) (string, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	logger := a.logger

	msg := message
	if a.preprocess != nil {
		pre, err := a.preprocessModule(ctx)
		if err != nil {
			return "", err
		}
		normalized, err := pre.NormalizeText(ctx, message)
		if err != nil {
			return "", fmt.Errorf("preprocessing message: %w", err)
		}
		tokens, err := pre.TokenizeText(ctx, normalized)
		if err != nil {
			return "", fmt.Errorf("tokenizing message: %w", err)
		}
		logger.Debug("Message preprocessed.", "tokens", len(tokens))
		msg = normalized
	}

	ch, err := a.ensureWorker(ctx)
	if err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, a.file.GenerateTimeout())
	defer cancel()

	opts := a.file.GenerateOptions()
	resp, err := ch.Call(callCtx, rpc.Request{
		Type:     rpc.KindGenerate,
		Message:  msg,
		Language: a.file.Generate.Language,
		Options:  &opts,
	})
	if err != nil {
		return "", err
	}
	return resp.Response, nil
}

// TransformImage rescales a captured image buffer through the preprocessing
// module and reports the size-ratio statistics of the transformation.
func (a *App) TransformImage(ctx context.Context, img []byte, srcW, srcH, dstW, dstH uint32) ([]byte, wasm.SizeRatio, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	pre, err := a.preprocessModule(ctx)
	if err != nil {
		return nil, wasm.SizeRatio{}, err
	}
	out, err := pre.TransformImage(ctx, img, srcW, srcH, dstW, dstH)
	if err != nil {
		return nil, wasm.SizeRatio{}, fmt.Errorf("transforming image: %w", err)
	}
	ratio, err := pre.SizeRatioStats(ctx, srcW, srcH, dstW, dstH)
	if err != nil {
		return nil, wasm.SizeRatio{}, fmt.Errorf("computing size ratio: %w", err)
	}
	return out, ratio, nil
}

// preprocessModule returns the typed preprocessing surface over the lazily
// loaded, contract-validated handle.
func (a *App) preprocessModule(ctx context.Context) (*wasm.PreprocessModule, error) {
	if a.preprocess == nil {
		return nil, fmt.Errorf("no preprocess_module configured")
	}
	handle, err := a.preprocess.Load(ctx)
	if err != nil {
		return nil, err
	}
	return wasm.NewPreprocessModule(handle), nil
}

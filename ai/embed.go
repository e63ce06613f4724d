package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/marketsearch/core"
)

// EmbedBounded embeds a single text under a timeout and checks the result.
// Every failure mode (provider error, timeout, empty result, wrong dimension,
// non-finite components) is reported as core.ErrEmbeddingUnavailable so callers
// can degrade with a single errors.Is check. Cancellation of the parent context
// is returned unwrapped.
func EmbedBounded(ctx context.Context, embedder Embedder, text string, task TaskType, timeout time.Duration, dim int) ([]float32, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: no embedder configured", core.ErrEmbeddingUnavailable)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", core.ErrEmbeddingUnavailable)
	}

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	vector, err := embedder.EmbedText(callCtx, text, task)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: timed out after %s", core.ErrEmbeddingUnavailable, timeout)
		}
		return nil, fmt.Errorf("%w: %w", core.ErrEmbeddingUnavailable, err)
	}
	if err := core.ValidateEmbedding(vector, dim); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrEmbeddingUnavailable, err)
	}
	return vector, nil
}

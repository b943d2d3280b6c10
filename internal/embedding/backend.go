package embedding

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/Veraticus/modality/internal/common"
	"github.com/Veraticus/modality/internal/model"
	"github.com/ollama/ollama/api"
)

// Backend failures that retrying cannot fix.
var (
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrCountMismatch     = errors.New("embedding count mismatch")
)

// Backend is the blocking embedding RPC.
type Backend interface {
	Embed(ctx context.Context, text string) (model.Vector, error)
	EmbedBatch(ctx context.Context, texts []string) ([]model.Vector, error)
	ModelName() string
}

// classify maps a backend error onto a retry outcome. parent is the caller's
// context, not the per-call timeout context.
func classify(parent context.Context, err error) common.Result {
	if err == nil {
		return common.Succeeded()
	}
	if parent.Err() != nil {
		return common.Fatal(parent.Err())
	}
	if errors.Is(err, ErrDimensionMismatch) || errors.Is(err, ErrCountMismatch) {
		return common.Fatal(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return common.Retryable(err)
	}

	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr.StatusCode, err)
	}
	var statusPtr *api.StatusError
	if errors.As(err, &statusPtr) {
		return classifyStatus(statusPtr.StatusCode, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return common.Retryable(err)
	}

	return common.Fatal(err)
}

func classifyStatus(code int, err error) common.Result {
	switch {
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= http.StatusInternalServerError:
		return common.Retryable(err)
	default:
		return common.Fatal(err)
	}
}

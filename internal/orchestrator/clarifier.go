package orchestrator

import (
	"context"

	"github.com/mlpilot/mlpilot/internal/request"
)

// Clarifier revises a rejected raw request before the next validation round.
// Implementations typically relay the validation error to the caller and wait
// for amended input. A nil Clarifier means each clarification round
// re-validates the unchanged input, which still consumes the budget.
type Clarifier interface {
	Clarify(ctx context.Context, raw request.RawRequest, verr *request.ValidationError) (request.RawRequest, error)
}

// ClarifierFunc adapts a function to the Clarifier interface.
type ClarifierFunc func(ctx context.Context, raw request.RawRequest, verr *request.ValidationError) (request.RawRequest, error)

func (f ClarifierFunc) Clarify(ctx context.Context, raw request.RawRequest, verr *request.ValidationError) (request.RawRequest, error) {
	return f(ctx, raw, verr)
}

package admission

import (
	"context"
)

// Handler binds one operation to one policy. Obtained from Engine.Guard.
type Handler struct {
	engine *Engine
	policy string
	op     Operation
}

// Invoke evaluates the policy and runs the operation when admitted.
//
// On admission the operation runs and its result propagates unchanged; a
// failing operation never refunds the consumed quota. On denial the policy's
// fallback runs if one is declared, IgnoreOnLimit swallows the denial into a
// nil result, and otherwise a DeniedError carrying the decision is returned.
func (h *Handler) Invoke(ctx context.Context, rc *RequestContext) (interface{}, error) {
	d, err := h.engine.Evaluate(ctx, h.policy, rc)
	if err != nil {
		return nil, err
	}

	if d.Allowed {
		return h.op(ctx, rc.Args...)
	}

	p, _ := h.engine.GetPolicy(h.policy)

	if p.FallbackOperation != "" {
		fallback, ferr := h.engine.fallbacks.Get(p.FallbackOperation)
		if ferr != nil {
			return nil, ferr
		}
		return fallback(ctx, rc.Args...)
	}

	if p.IgnoreOnLimit {
		return nil, nil
	}

	return nil, newDeniedError(h.policy, d)
}

package admission

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/theo-thinker/music-server-admission/logger"
)

// KeyGeneratorFunc produces a limiter key for the custom dimension.
type KeyGeneratorFunc func(p *Policy, rc *RequestContext) (string, error)

// KeyBuilder derives deterministic limiter keys from a policy and a request
// context. Identical inputs always produce the same key; keys built for
// different dimensions never collide because the dimension is part of the key.
type KeyBuilder struct {
	eval Evaluator
	log  *logger.CtxZapLogger

	mu         sync.RWMutex
	generators map[string]KeyGeneratorFunc
}

// NewKeyBuilder creates a key builder around an evaluator.
func NewKeyBuilder(eval Evaluator, log *logger.CtxZapLogger) *KeyBuilder {
	if eval == nil {
		eval = NewTemplateEvaluator()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &KeyBuilder{
		eval:       eval,
		log:        log,
		generators: make(map[string]KeyGeneratorFunc),
	}
}

// RegisterGenerator registers a named generator for the custom dimension.
func (b *KeyBuilder) RegisterGenerator(name string, fn KeyGeneratorFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.generators[name] = fn
}

// Build derives the limiter key. Template evaluation failures degrade to the
// literal template text with a warning, never to an error.
func (b *KeyBuilder) Build(p *Policy, rc *RequestContext) (string, error) {
	dim := p.DimensionT()

	base, err := b.baseKey(p, rc, dim)
	if err != nil {
		return "", err
	}

	discriminator := b.discriminator(rc, dim)

	var sb strings.Builder
	sb.WriteString("adm:")
	sb.WriteString(string(dim))
	sb.WriteByte(':')
	sb.WriteString(base)
	if discriminator != "" {
		sb.WriteByte(':')
		sb.WriteString(discriminator)
	}
	return sb.String(), nil
}

// baseKey resolves the policy Key template, falling back to the operation
// name when no key is declared.
func (b *KeyBuilder) baseKey(p *Policy, rc *RequestContext, dim Dimension) (string, error) {
	if dim == DimensionCustom {
		b.mu.RLock()
		fn := b.generators[p.KeyGenerator]
		b.mu.RUnlock()
		if fn == nil {
			return "", fmt.Errorf("%w: %q", ErrUnknownKeyGenerator, p.KeyGenerator)
		}
		return fn(p, rc)
	}

	raw := p.Key
	if raw == "" {
		if rc.Operation != "" {
			return rc.Operation, nil
		}
		return "default", nil
	}

	if !strings.Contains(raw, "#{") {
		return raw, nil
	}

	resolved, err := b.eval.Evaluate(raw, rc.ContextMap())
	if err != nil {
		// Fail open to the literal text so a bad template throttles one
		// shared key instead of breaking the operation.
		b.log.Warn("key template evaluation failed, using literal key",
			zap.String("template", raw),
			zap.String("operation", rc.Operation),
			zap.Error(err))
		return raw, nil
	}
	return fmt.Sprint(resolved), nil
}

// discriminator appends the per-dimension axis value so quotas tracked along
// different axes stay independent.
func (b *KeyBuilder) discriminator(rc *RequestContext, dim Dimension) string {
	switch dim {
	case DimensionIP:
		return orUnknown(rc.CallerIP)
	case DimensionPrincipal:
		return orUnknown(rc.Principal)
	case DimensionDevice:
		return orUnknown(rc.Device)
	case DimensionApplication:
		return orUnknown(rc.Application)
	case DimensionParameter:
		return orUnknown(rc.HotspotValue())
	case DimensionComposite:
		return orUnknown(rc.CallerIP) + ":" + orUnknown(rc.Principal)
	default:
		// global, operation and custom carry no extra axis
		return ""
	}
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

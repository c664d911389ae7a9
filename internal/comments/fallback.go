package comments

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

var (
	// EmptyFallback is used when the service answered without content.
	EmptyFallback = []string{"666", "主播好", "来了来了", "哈哈哈", "真不错"}
	// ErrorFallback is used when the service call failed.
	ErrorFallback = []string{"666", "主播好", "支持支持", "卡了吗？", "爱了爱了"}
)

// Fallback wraps a Source so that it never fails: errors and empty or malformed responses are
// replaced with a canned list.
type Fallback struct {
	src Source
	log *zap.Logger
}

func WithFallback(src Source, log *zap.Logger) *Fallback {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fallback{src: src, log: log}
}

// Generate always returns a non-empty list and a nil error.
func (f *Fallback) Generate(ctx context.Context, prompt string) ([]string, error) {
	lines, err := f.src.Generate(ctx, prompt)
	if err == nil {
		lines, err = Clean(lines)
	}
	switch {
	case err == nil:
		return lines, nil
	case errors.Is(err, ErrEmptyResponse):
		f.log.Info("comment service returned nothing, using fallback")
		return clone(EmptyFallback), nil
	default:
		f.log.Warn("comment service failed, using fallback", zap.Error(err))
		return clone(ErrorFallback), nil
	}
}

func clone(s []string) []string { return append([]string(nil), s...) }

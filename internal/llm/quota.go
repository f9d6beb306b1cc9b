package llm

import (
	"context"
	"errors"
)

var ErrQuotaExceeded = errors.New("daily request limit reached")

// Quota admits or refuses one request.
type Quota interface {
	Take() bool
}

type limited struct {
	LLM
	quota Quota
}

// WithQuota refuses calls once quota is spent, without reaching the backend.
func WithQuota(model LLM, quota Quota) LLM {
	if quota == nil {
		return model
	}
	return &limited{LLM: model, quota: quota}
}

func (l *limited) Chat(ctx context.Context, systemPrompt string, messages []Message) (string, error) {
	if !l.quota.Take() {
		return "", &Error{Kind: KindQuota, Err: ErrQuotaExceeded}
	}
	return l.LLM.Chat(ctx, systemPrompt, messages)
}

package httpserver

import (
	"context"

	"github.com/avk1987/crypto-vault/internal/model"
)

type ctxKey string

const sessionKey ctxKey = "cv.session"

// WithSession stores the authenticated session in context.
func WithSession(ctx context.Context, sess *model.Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// SessionFromCtx fetches the authenticated session from context.
func SessionFromCtx(ctx context.Context) (*model.Session, bool) {
	v := ctx.Value(sessionKey)
	if v == nil {
		return nil, false
	}
	sess, ok := v.(*model.Session)
	return sess, ok
}

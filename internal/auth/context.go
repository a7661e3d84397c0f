package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxEmail
	ctxRole
)

var ErrNoIdentity = errors.New("auth: identity not in context")

func WithIdentity(ctx context.Context, s Subject) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, s.UserID)
	ctx = context.WithValue(ctx, ctxEmail, s.Email)
	ctx = context.WithValue(ctx, ctxRole, s.Role)
	return ctx
}

func UserID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxUserID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("user_id not in context")
}

func Role(ctx context.Context) (string, error) {
	v := ctx.Value(ctxRole)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("role not in context")
}

// SubjectFrom returns the full authenticated subject.
func SubjectFrom(ctx context.Context) (Subject, error) {
	uid, err := UserID(ctx)
	if err != nil {
		return Subject{}, ErrNoIdentity
	}
	email, _ := ctx.Value(ctxEmail).(string)
	role, _ := ctx.Value(ctxRole).(string)
	return Subject{UserID: uid, Email: email, Role: role}, nil
}

// Identity returns the agent identity of the authenticated caller.
func Identity(ctx context.Context) (string, error) {
	s, err := SubjectFrom(ctx)
	if err != nil {
		return "", err
	}
	return s.Identity(), nil
}

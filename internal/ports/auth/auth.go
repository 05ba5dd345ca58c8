package auth

import (
	"context"
	"errors"
)

// ErrInvalidToken lo devuelven los verifiers cuando el token no sirve (vencido, firma, etc).
var ErrInvalidToken = errors.New("invalid token")

// Claims es la identidad que el servicio usa para decidir de quién es cada régimen y dosis.
type Claims struct {
	UserID string
	Email  string
}

// AuthVerifier verifica un token y devuelve claims o error.
type AuthVerifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

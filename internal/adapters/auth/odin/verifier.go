package odin

import (
	"context"
	"errors"
	"fmt"

	"medication-adherence/internal/ports/auth"
)

// Verifier implementa auth.AuthVerifier usando Odin.
type Verifier struct {
	client *Client
}

var _ auth.AuthVerifier = (*Verifier)(nil)

func NewVerifier(client *Client) *Verifier {
	return &Verifier{client: client}
}

func (v *Verifier) Verify(ctx context.Context, token string) (auth.Claims, error) {
	if v == nil || v.client == nil {
		return auth.Claims{}, ErrOdinNotConfigured
	}

	claims, err := v.client.VerifyToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrOdinUnauthorized) {
			return auth.Claims{}, fmt.Errorf("%w: %v", auth.ErrInvalidToken, err)
		}
		return auth.Claims{}, fmt.Errorf("odin verify failed: %w", err)
	}
	if claims.UserID == "" {
		return auth.Claims{}, fmt.Errorf("%w: odin claims missing user id", auth.ErrInvalidToken)
	}
	return claims, nil
}

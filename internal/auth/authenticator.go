package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Blacklist reports whether tokens issued to a user at issuedAt have been revoked.
type Blacklist interface {
	IsBlacklisted(ctx context.Context, userID uuid.UUID, issuedAt time.Time) (bool, error)
}

// Authenticator resolves a WebSocket access token to the caller's user id.
type Authenticator struct {
	jwt       *JWTService
	blacklist Blacklist
}

// NewAuthenticator creates an authenticator. blacklist may be nil.
func NewAuthenticator(jwt *JWTService, blacklist Blacklist) *Authenticator {
	return &Authenticator{jwt: jwt, blacklist: blacklist}
}

// Claims validates token and checks it against the blacklist.
func (a *Authenticator) Claims(ctx context.Context, token string) (*Claims, error) {
	claims, err := a.jwt.Validate(token)
	if err != nil {
		return nil, err
	}
	if a.blacklist == nil {
		return claims, nil
	}
	var issuedAt time.Time
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}
	revoked, err := a.blacklist.IsBlacklisted(ctx, claims.UserID, issuedAt)
	if err != nil {
		return nil, fmt.Errorf("check blacklist: %w", err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// UserID validates token and returns the user id it was issued to.
func (a *Authenticator) UserID(ctx context.Context, token string) (string, error) {
	claims, err := a.Claims(ctx, token)
	if err != nil {
		return "", err
	}
	return claims.UserID.String(), nil
}

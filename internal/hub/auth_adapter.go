package hub

import (
	"context"
	"strings"

	"cherryvm/vmhub/internal/vmid"
	"cherryvm/vmhub/pkg/auth"
)

// JWTAuthenticator implements Authenticator against signed access tokens
// issued the same way as the service's other bearer JWTs. WebSocket upgrade
// requests cannot set an Authorization header from a browser, so the token
// travels as the access_token query parameter instead; acceptSession falls
// back to the header for non-browser clients.
type JWTAuthenticator struct {
	Secret []byte
}

func NewJWTAuthenticator(secret []byte) *JWTAuthenticator {
	return &JWTAuthenticator{Secret: secret}
}

func (a *JWTAuthenticator) Authenticate(_ context.Context, accessToken string) (User, bool) {
	accessToken = strings.TrimPrefix(accessToken, "Bearer ")
	if accessToken == "" {
		return User{}, false
	}

	claims, err := auth.ValidateJWT(accessToken, a.Secret)
	if err != nil {
		return User{}, false
	}

	userID, err := vmid.NewUserID(claims.UserID)
	if err != nil {
		return User{}, false
	}

	return User{ID: userID, Capabilities: claims.Capabilities}, true
}

package service

import (
	"context"
	"fmt"

	"google.golang.org/api/idtoken"
)

// IDTokenVerifier validates Google ID tokens against a fixed OAuth client
// id using Google's public keys.
type IDTokenVerifier struct {
	clientID string
}

// NewIDTokenVerifier returns a verifier for the given OAuth client id, or
// nil when no client id is configured.
func NewIDTokenVerifier(clientID string) *IDTokenVerifier {
	if clientID == "" {
		return nil
	}
	return &IDTokenVerifier{clientID: clientID}
}

// Verify implements GoogleVerifier.
func (v *IDTokenVerifier) Verify(ctx context.Context, token string) (*GoogleIdentity, error) {
	payload, err := idtoken.Validate(ctx, token, v.clientID)
	if err != nil {
		return nil, fmt.Errorf("validate id token: %w", err)
	}

	identity := &GoogleIdentity{}
	if email, ok := payload.Claims["email"].(string); ok {
		identity.Email = email
	}
	if name, ok := payload.Claims["name"].(string); ok {
		identity.Name = name
	}
	if verified, ok := payload.Claims["email_verified"].(bool); ok {
		identity.EmailVerified = verified
	}
	return identity, nil
}

// Package auth provides HMAC-based API key authentication for gRPC services.
package auth

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// contextKey is a typed key for context values to avoid collisions.
type contextKey string

// secretIDKey is the context key for the authenticated secret ID.
const secretIDKey = contextKey("secret_id")

// healthPrefix exempts the standard health service from authentication.
const healthPrefix = "/grpc.health.v1.Health/"

// Authenticator validates API keys against the configured HMAC secrets.
type Authenticator struct {
	secrets map[string][]byte
}

// NewAuthenticator creates an authenticator over secret_id -> secret.
func NewAuthenticator(secrets map[string][]byte) *Authenticator {
	return &Authenticator{secrets: secrets}
}

// Authenticate validates apiKey and returns its secret ID on success.
func (a *Authenticator) Authenticate(apiKey string) (string, error) {
	secretID, signature, err := ParseAPIKey(apiKey)
	if err != nil {
		return "", err
	}

	secret, ok := a.secrets[secretID]
	if !ok {
		return "", ErrUnknownKey
	}

	given, err := hex.DecodeString(signature)
	if err != nil {
		return "", ErrInvalidKeyFormat
	}
	if !VerifyHMAC(ComputeHMAC(secret, secretID), given) {
		return "", ErrInvalidKey
	}
	return secretID, nil
}

// UnaryInterceptor returns gRPC interceptor that authenticates requests.
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if strings.HasPrefix(info.FullMethod, healthPrefix) {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		apiKeys := md.Get("x-api-key")
		if len(apiKeys) == 0 {
			return nil, status.Error(codes.Unauthenticated, ErrMissingKey.Error())
		}

		secretID, err := a.Authenticate(apiKeys[0])
		if err != nil {
			if errors.Is(err, ErrUnknownKey) {
				// Same message as a bad signature.
				err = ErrInvalidKey
			}
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		ctx = context.WithValue(ctx, secretIDKey, secretID)
		return handler(ctx, req)
	}
}

// SecretIDFromContext extracts the authenticated secret ID from context.
// Returns empty string if not found.
func SecretIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(secretIDKey).(string); ok {
		return id
	}
	return ""
}

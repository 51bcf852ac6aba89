package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	testSecretID = "0123456789abcdef0123456789abcdef"
	otherID      = "fedcba9876543210fedcba9876543210"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef-secret")

func TestGenerateAPIKey_Format(t *testing.T) {
	key := GenerateAPIKey(testSecretID, testSecret)
	if !strings.HasPrefix(key, "btm-v1-"+testSecretID+"-") {
		t.Fatalf("key = %q", key)
	}
	if len(key) != len("btm-v1-")+32+1+64 {
		t.Errorf("len(key) = %d", len(key))
	}
	if again := GenerateAPIKey(testSecretID, testSecret); again != key {
		t.Errorf("GenerateAPIKey() not deterministic: %q vs %q", key, again)
	}
	id, _, err := ParseAPIKey(key)
	if err != nil || id != testSecretID {
		t.Errorf("ParseAPIKey() = %q, %v", id, err)
	}
}

func TestParseAPIKey_Rejects(t *testing.T) {
	sig := strings.Repeat("a", 64)
	tests := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"wrong prefix", "tk-v1-" + testSecretID + "-" + sig},
		{"wrong version", "btm-v2-" + testSecretID + "-" + sig},
		{"short secret id", "btm-v1-abc-" + sig},
		{"short signature", "btm-v1-" + testSecretID + "-abc"},
		{"uppercase hex", "btm-v1-" + strings.ToUpper(testSecretID) + "-" + sig},
		{"extra segment", "btm-v1-" + testSecretID + "-" + sig + "-x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseAPIKey(tt.key); !errors.Is(err, ErrInvalidKeyFormat) {
				t.Errorf("ParseAPIKey(%q) error = %v, want ErrInvalidKeyFormat", tt.key, err)
			}
		})
	}
}

func TestAuthenticate(t *testing.T) {
	a := NewAuthenticator(map[string][]byte{testSecretID: testSecret})
	valid := GenerateAPIKey(testSecretID, testSecret)
	forged := GenerateAPIKey(testSecretID, []byte("some-other-secret-of-sufficient-length"))
	unknown := GenerateAPIKey(otherID, testSecret)

	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{"valid key", valid, nil},
		{"forged signature", forged, ErrInvalidKey},
		{"unknown secret id", unknown, ErrUnknownKey},
		{"malformed", "btm-v1-nope", ErrInvalidKeyFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := a.Authenticate(tt.key)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Authenticate() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && id != testSecretID {
				t.Errorf("Authenticate() = %q, want %q", id, testSecretID)
			}
		})
	}
}

func TestUnaryInterceptor(t *testing.T) {
	a := NewAuthenticator(map[string][]byte{testSecretID: testSecret})
	interceptor := a.UnaryInterceptor()

	var seen string
	handler := func(ctx context.Context, req any) (any, error) {
		seen = SecretIDFromContext(ctx)
		return "ok", nil
	}

	withKey := func(key string) context.Context {
		return metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", key))
	}

	tests := []struct {
		name     string
		ctx      context.Context
		method   string
		wantCode codes.Code
		wantID   string
	}{
		{"valid key", withKey(GenerateAPIKey(testSecretID, testSecret)), "/btmgen.v1.Generator/Generate", codes.OK, testSecretID},
		{"no metadata", context.Background(), "/btmgen.v1.Generator/Generate", codes.Unauthenticated, ""},
		{"no key", metadata.NewIncomingContext(context.Background(), metadata.MD{}), "/btmgen.v1.Generator/Generate", codes.Unauthenticated, ""},
		{"unknown id", withKey(GenerateAPIKey(otherID, testSecret)), "/btmgen.v1.Generator/ListRuns", codes.Unauthenticated, ""},
		{"health exempt", context.Background(), "/grpc.health.v1.Health/Check", codes.OK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = "unset"
			_, err := interceptor(tt.ctx, nil, &grpc.UnaryServerInfo{FullMethod: tt.method}, handler)
			if got := status.Code(err); got != tt.wantCode {
				t.Fatalf("code = %v, want %v (err = %v)", got, tt.wantCode, err)
			}
			if tt.wantCode == codes.OK && seen != tt.wantID {
				t.Errorf("secret id in context = %q, want %q", seen, tt.wantID)
			}
		})
	}
}

func TestUnaryInterceptor_UnknownIDLooksLikeBadKey(t *testing.T) {
	a := NewAuthenticator(map[string][]byte{testSecretID: testSecret})
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", GenerateAPIKey(otherID, testSecret)))
	_, err := a.UnaryInterceptor()(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/x/y"}, func(ctx context.Context, req any) (any, error) {
		return nil, nil
	})
	if st, _ := status.FromError(err); st.Message() != ErrInvalidKey.Error() {
		t.Errorf("message = %q, want %q", st.Message(), ErrInvalidKey.Error())
	}
}

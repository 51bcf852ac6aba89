package server

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/btmgen/internal/core/api"
	"github.com/solatis/btmgen/internal/core/auth"
	"github.com/solatis/btmgen/internal/core/config"
)

const testSecretID = "0123456789abcdef0123456789abcdef"

var testSecret = []byte("0123456789abcdef0123456789abcdef-secret")

func startServer(t *testing.T, authenticator *auth.Authenticator) *grpc.ClientConn {
	t.Helper()
	cfg := config.DefaultServeConfig()
	svc, err := api.NewGeneratorService(cfg, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	srv, err := NewGRPCServer(cfg, svc, authenticator, nil)
	if err != nil {
		t.Fatalf("NewGRPCServer() error = %v", err)
	}

	lis := bufconn.Listen(1 << 20)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		conn.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
		<-done
	})
	return conn
}

func TestNewGRPCServer_Validation(t *testing.T) {
	svc, err := api.NewGeneratorService(config.DefaultServeConfig(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewGRPCServer(nil, svc, nil, nil); err == nil {
		t.Error("accepted nil config")
	}
	if _, err := NewGRPCServer(config.DefaultServeConfig(), nil, nil, nil); err == nil {
		t.Error("accepted nil service")
	}
}

func TestServer_HealthWithoutKey(t *testing.T) {
	conn := startServer(t, auth.NewAuthenticator(map[string][]byte{testSecretID: testSecret}))
	client := grpc_health_v1.NewHealthClient(conn)

	for _, service := range []string{"", api.ServiceName} {
		resp, err := client.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("Check(%q) error = %v", service, err)
		}
		if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
			t.Errorf("Check(%q) = %v, want SERVING", service, resp.Status)
		}
	}
}

func TestServer_AuthenticatedCalls(t *testing.T) {
	conn := startServer(t, auth.NewAuthenticator(map[string][]byte{testSecretID: testSecret}))
	client := api.NewClient(conn)
	empty := &structpb.Struct{}

	if _, err := client.ListRuns(context.Background(), empty); status.Code(err) != codes.Unauthenticated {
		t.Errorf("ListRuns() without key = %v, want Unauthenticated", err)
	}

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-api-key", auth.GenerateAPIKey(testSecretID, testSecret))
	// Authenticated, but no database behind the service.
	if _, err := client.ListRuns(ctx, empty); status.Code(err) != codes.FailedPrecondition {
		t.Errorf("ListRuns() with key = %v, want FailedPrecondition", err)
	}
}

func TestServer_GenerateOverTheWire(t *testing.T) {
	conn := startServer(t, nil)
	client := api.NewClient(conn)

	req, err := structpb.NewStruct(map[string]any{
		"src_dirs":   []any{t.TempDir()},
		"output_dir": t.TempDir(),
		"shards":     1,
	})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := client.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got := resp.AsMap()["rules"]; got != float64(0) {
		t.Errorf("rules = %v, want 0 for an empty tree", got)
	}
}

// Package api implements the btmgen.v1.Generator gRPC service.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/btmgen/internal/core/auth"
	"github.com/solatis/btmgen/internal/core/config"
	"github.com/solatis/btmgen/internal/generate"
	"github.com/solatis/btmgen/internal/types"
)

// RunStore is the persistence the service needs. *db.RunStore implements it.
type RunStore interface {
	generate.Recorder
	ListRuns(ctx context.Context, limit int) ([]types.Run, error)
}

// GeneratorService runs generations on behalf of remote callers.
// Thin orchestration layer over the generate and db packages.
type GeneratorService struct {
	cfg    *config.ServeConfig
	store  RunStore
	logger *slog.Logger
	runs   *semaphore.Weighted
}

var _ GeneratorServer = (*GeneratorService)(nil)

// NewGeneratorService creates the service. store may be nil, in which case
// runs are not recorded and ListRuns fails with FailedPrecondition.
func NewGeneratorService(cfg *config.ServeConfig, store RunStore, logger *slog.Logger) (*GeneratorService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GeneratorService{
		cfg:    cfg,
		store:  store,
		logger: logger,
		runs:   semaphore.NewWeighted(int64(cfg.MaxConcurrentRuns)),
	}, nil
}

// Generate runs one generation. The request holds generate.* keys
// (src_dirs, output_dir, shards, ...); omitted keys take their defaults.
func (s *GeneratorService) Generate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cfg, err := config.GenerateFromMap(req.AsMap())
	if err != nil {
		return nil, toStatus(err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	// Waiting for a slot counts against the request timeout.
	if err := s.runs.Acquire(ctx, 1); err != nil {
		return nil, status.Error(codes.ResourceExhausted, "too many concurrent runs")
	}
	defer s.runs.Release(1)

	g := &generate.Generator{
		Config: cfg,
		Logger: s.logger.With("caller", auth.SecretIDFromContext(ctx)),
	}
	if s.store != nil {
		g.Recorder = s.store
	}

	res, err := g.Run(ctx)
	if err != nil {
		return nil, toStatus(err)
	}

	files := make([]any, 0, len(res.Files))
	for _, f := range res.Files {
		files = append(files, map[string]any{
			"shard":    f.Shard,
			"rotation": f.Rotation,
			"path":     f.Path,
			"bytes":    f.Bytes,
		})
	}
	out, err := structpb.NewStruct(map[string]any{
		"run_id":        string(res.RunID),
		"files_scanned": res.Scan.FilesScanned,
		"files_skipped": res.Scan.FilesSkipped,
		"events":        res.Scan.Events,
		"rules":         res.Rules,
		"dropped":       res.Dropped,
		"predicates":    res.Predicates,
		"manifest":      res.Manifest,
		"files":         files,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// ListRuns returns recorded runs, newest first. The optional "limit" key
// caps the result.
func (s *GeneratorService) ListRuns(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.store == nil {
		return nil, toStatus(types.ErrDatabaseRequired)
	}
	limit := 0
	if v, ok := req.GetFields()["limit"]; ok {
		n := v.GetNumberValue()
		if n < 0 || n != float64(int(n)) {
			return nil, status.Error(codes.InvalidArgument, "limit must be a non-negative integer")
		}
		limit = int(n)
	}

	runs, err := s.store.ListRuns(ctx, limit)
	if err != nil {
		return nil, toStatus(err)
	}

	items := make([]any, 0, len(runs))
	for _, r := range runs {
		items = append(items, runToMap(r))
	}
	out, err := structpb.NewStruct(map[string]any{"runs": items})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func runToMap(r types.Run) map[string]any {
	dirs := make([]any, len(r.SrcDirs))
	for i, d := range r.SrcDirs {
		dirs[i] = d
	}
	m := map[string]any{
		"run_id":        string(r.ID),
		"status":        string(r.Status),
		"started_at":    r.StartedAt.UTC().Format(time.RFC3339),
		"src_dirs":      dirs,
		"output_dir":    r.OutputDir,
		"shards":        r.Shards,
		"files_scanned": r.FilesScanned,
		"files_skipped": r.FilesSkipped,
		"events":        r.Events,
		"rules":         r.Rules,
	}
	if !r.FinishedAt.IsZero() {
		m["finished_at"] = r.FinishedAt.UTC().Format(time.RFC3339)
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	return m
}

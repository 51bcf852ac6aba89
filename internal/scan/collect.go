package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/solatis/btmgen/internal/types"
)

// Stats summarises one collection pass.
type Stats struct {
	FilesScanned int
	FilesSkipped int
	Events       int
	Returns      int
	Throws       int
}

// Collector scans a list of files in parallel.
type Collector struct {
	Options Options
	// MaxFileBytes skips larger files. Zero or less disables the check.
	MaxFileBytes int64
	Parallelism  int
	Logger       *slog.Logger
}

type fileResult struct {
	events  []types.ScanEvent
	skipped bool
}

// Collect scans files with up to Parallelism workers. Events keep file order.
// Unreadable, oversized or unscannable files are skipped and counted; only
// context cancellation aborts the pass.
func (c *Collector) Collect(ctx context.Context, files []SourceFile) ([]types.ScanEvent, Stats, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := c.Parallelism
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]fileResult, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			events, err := c.scanFile(f)
			if err != nil {
				level := slog.LevelWarn
				if errors.Is(err, types.ErrFileTooLarge) {
					level = slog.LevelDebug
				}
				logger.Log(ctx, level, "skipping source file", "file", f.Path, "bytes", f.Size, "err", err)
				results[i] = fileResult{skipped: true}
				return nil
			}
			results[i] = fileResult{events: events}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, fmt.Errorf("failed to scan sources: %w", err)
	}

	var stats Stats
	var events []types.ScanEvent
	for _, r := range results {
		if r.skipped {
			stats.FilesSkipped++
			continue
		}
		stats.FilesScanned++
		for _, e := range r.events {
			switch e.Kind {
			case types.KindReturn:
				stats.Returns++
			case types.KindThrow:
				stats.Throws++
			}
		}
		events = append(events, r.events...)
	}
	stats.Events = len(events)
	return events, stats, nil
}

func (c *Collector) scanFile(f SourceFile) ([]types.ScanEvent, error) {
	if limit := c.MaxFileBytes; limit > 0 {
		size := f.Size
		if size == 0 {
			fi, err := os.Stat(f.Path)
			if err != nil {
				return nil, fmt.Errorf("failed to stat source file: %w", err)
			}
			size = fi.Size()
		}
		if size > limit {
			return nil, fmt.Errorf("%w: %d > %d", types.ErrFileTooLarge, size, limit)
		}
	}

	scanner, err := ForPath(f.Path, c.Options)
	if err != nil {
		return nil, err
	}
	src, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source file: %w", err)
	}
	return scanner.Scan(f.Path, string(src))
}

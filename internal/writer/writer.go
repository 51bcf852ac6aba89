// Package writer streams rendered rules into a fixed set of shard files with
// buffering, size- and time-based rotation, and optional gzip compression.
package writer

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/solatis/btmgen/internal/types"
)

/*
 * Shard lifecycle.
 *
 * Each shard is a chain of physical files:
 *   open -> (rotate -> open)* -> closed
 *
 * The header is written once per writer and replayed into every file opened
 * by rotation. All time-based decisions (interval rotation, interval flush)
 * are evaluated lazily on the next Append; there is no background timer.
 *
 * Byte accounting is taken below the gzip layer, so size caps apply to what
 * actually lands on disk.
 */

const bufferSize = 64 * 1024

// Options configures a ShardedWriter. Zero values disable the related
// behaviour; use DefaultOptions for the standard settings.
type Options struct {
	Shards              int
	Gzip                bool
	FilePrefix          string
	RotateMaxBytes      int64
	RotateInterval      time.Duration
	FlushThresholdBytes int64
	FlushInterval       time.Duration
	ThreadSafe          bool

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// DefaultOptions returns a single-shard configuration with 4 MiB rotation,
// 64 KiB flush threshold and a 2s flush interval.
func DefaultOptions() Options {
	return Options{
		Shards:              1,
		FilePrefix:          types.DefaultFilePrefix,
		RotateMaxBytes:      4 * 1024 * 1024,
		FlushThresholdBytes: 64 * 1024,
		FlushInterval:       2 * time.Second,
	}
}

// File describes one physical output file.
type File struct {
	Shard    int
	Rotation int
	Path     string
	Bytes    int64
}

// ShardedWriter appends rule blocks to per-shard files.
type ShardedWriter struct {
	dir             string
	opts            Options
	rotationEnabled bool
	shards          []*shardState

	mu            sync.Mutex // serialises WriteHeader and Close
	closed        atomic.Bool
	headerWritten atomic.Bool
	header        string

	filesMu sync.Mutex
	files   []File
}

type shardState struct {
	mu sync.Mutex

	file    *os.File
	counter *countingWriter
	gz      *gzip.Writer
	buf     *bufio.Writer
	fileIdx int

	hasRules        bool
	bytesSinceFlush int64
	currentBytes    int64
	openedAt        time.Time
	lastFlush       time.Time
	rotation        int
}

// New creates dir if needed and opens the first file of every shard.
func New(dir string, opts Options) (*ShardedWriter, error) {
	if opts.Shards < 1 {
		opts.Shards = 1
	}
	if opts.RotateMaxBytes < 0 {
		opts.RotateMaxBytes = 0
	}
	if opts.RotateInterval < 0 {
		opts.RotateInterval = 0
	}
	if opts.FlushThresholdBytes < 0 {
		opts.FlushThresholdBytes = 0
	}
	if opts.FlushInterval < 0 {
		opts.FlushInterval = 0
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	w := &ShardedWriter{
		dir:             dir,
		opts:            opts,
		rotationEnabled: opts.RotateMaxBytes > 0 || opts.RotateInterval > 0,
		shards:          make([]*shardState, opts.Shards),
	}
	for i := range w.shards {
		s := &shardState{}
		if w.rotationEnabled {
			s.rotation = 1
		}
		w.shards[i] = s
		if err := w.openShard(i, s); err != nil {
			w.abort()
			return nil, err
		}
	}
	return w, nil
}

// Shards returns the number of shards.
func (w *ShardedWriter) Shards() int {
	return len(w.shards)
}

// WriteHeader writes header to every shard. Only the first call has effect.
func (w *ShardedWriter) WriteHeader(header string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed.Load() {
		return types.ErrWriterClosed
	}
	if w.headerWritten.Load() {
		return nil
	}
	w.header = header
	for _, s := range w.shards {
		unlock := w.lock(s)
		_, err := s.buf.WriteString(header)
		s.bytesSinceFlush += int64(len(header))
		s.currentBytes = s.counter.n
		unlock()
		if err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	w.headerWritten.Store(true)
	return nil
}

// Append writes rule followed by a blank line to the given shard. Shards
// outside [0, Shards()) are routed to shard 0.
func (w *ShardedWriter) Append(shard int, rule string) error {
	if w.closed.Load() {
		return types.ErrWriterClosed
	}
	if !w.headerWritten.Load() {
		return types.ErrHeaderNotWritten
	}
	if shard < 0 || shard >= len(w.shards) {
		shard = 0
	}
	s := w.shards[shard]
	unlock := w.lock(s)
	defer unlock()

	// Close may have won the race for this shard's lock.
	if s.buf == nil {
		return types.ErrWriterClosed
	}
	return w.appendLocked(shard, s, rule)
}

func (w *ShardedWriter) appendLocked(idx int, s *shardState, rule string) error {
	s.currentBytes = s.counter.n
	now := w.opts.Clock()

	if w.opts.RotateInterval > 0 && now.Sub(s.openedAt) >= w.opts.RotateInterval {
		if err := w.rotate(idx, s); err != nil {
			return err
		}
	}

	estimated := int64(len(rule)) + 2
	// Buffered counts only bytes bufio has not yet pushed into the counter.
	projected := s.currentBytes + int64(s.buf.Buffered()) + estimated
	if w.opts.RotateMaxBytes > 0 && projected > w.opts.RotateMaxBytes {
		if err := w.rotate(idx, s); err != nil {
			return err
		}
	}

	if _, err := s.buf.WriteString(rule); err != nil {
		return fmt.Errorf("failed to append rule to shard %d: %w", idx, err)
	}
	if _, err := s.buf.WriteString("\n\n"); err != nil {
		return fmt.Errorf("failed to append rule to shard %d: %w", idx, err)
	}
	s.hasRules = true
	s.bytesSinceFlush += estimated
	s.currentBytes = s.counter.n

	if w.opts.FlushThresholdBytes > 0 && s.bytesSinceFlush >= w.opts.FlushThresholdBytes {
		return w.flushLocked(s)
	}
	if w.opts.FlushInterval > 0 && w.opts.Clock().Sub(s.lastFlush) >= w.opts.FlushInterval {
		return w.flushLocked(s)
	}
	return nil
}

// Flush pushes buffered bytes of every shard to disk.
func (w *ShardedWriter) Flush() error {
	if w.closed.Load() {
		return types.ErrWriterClosed
	}
	for i, s := range w.shards {
		unlock := w.lock(s)
		var err error
		if s.buf != nil {
			err = w.flushLocked(s)
		}
		unlock()
		if err != nil {
			return fmt.Errorf("failed to flush shard %d: %w", i, err)
		}
	}
	return nil
}

func (w *ShardedWriter) flushLocked(s *shardState) error {
	if err := s.buf.Flush(); err != nil {
		return err
	}
	if s.gz != nil {
		if err := s.gz.Flush(); err != nil {
			return err
		}
	}
	s.currentBytes = s.counter.n
	s.bytesSinceFlush = 0
	s.lastFlush = w.opts.Clock()
	return nil
}

func (w *ShardedWriter) rotate(idx int, s *shardState) error {
	if !w.rotationEnabled {
		return nil
	}
	if err := w.finishFile(s); err != nil {
		return fmt.Errorf("failed to rotate shard %d: %w", idx, err)
	}
	s.rotation++
	return w.openShard(idx, s)
}

// Close writes the empty-shard marker where needed, then flushes and closes
// every shard. It returns the first error and is safe to call repeatedly.
func (w *ShardedWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed.Load() {
		return nil
	}
	var first error
	for i, s := range w.shards {
		unlock := w.lock(s)
		if s.buf != nil {
			if !s.hasRules {
				if _, err := s.buf.WriteString(types.EmptyShardComment); err != nil && first == nil {
					first = fmt.Errorf("failed to close shard %d: %w", i, err)
				}
			}
			if err := w.finishFile(s); err != nil && first == nil {
				first = fmt.Errorf("failed to close shard %d: %w", i, err)
			}
		}
		unlock()
	}
	w.closed.Store(true)
	return first
}

// Files lists every physical file opened so far, in creation order.
func (w *ShardedWriter) Files() []File {
	w.filesMu.Lock()
	defer w.filesMu.Unlock()
	out := make([]File, len(w.files))
	copy(out, w.files)
	return out
}

func (w *ShardedWriter) fileName(shard, rotation int) string {
	name := fmt.Sprintf("%s%04d", w.opts.FilePrefix, shard+1)
	if rotation > 0 {
		name = fmt.Sprintf("%s-%05d", name, rotation)
	}
	if w.opts.Gzip {
		return name + ".btm.gz"
	}
	return name + ".btm"
}

func (w *ShardedWriter) openShard(idx int, s *shardState) error {
	path := filepath.Join(w.dir, w.fileName(idx, s.rotation))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to open shard file %s: %w", path, err)
	}

	s.file = f
	s.counter = &countingWriter{w: f}
	var target io.Writer = s.counter
	s.gz = nil
	if w.opts.Gzip {
		s.gz = gzip.NewWriter(s.counter)
		target = s.gz
	}
	s.buf = bufio.NewWriterSize(target, bufferSize)
	s.currentBytes = 0
	s.bytesSinceFlush = 0
	s.openedAt = w.opts.Clock()
	s.lastFlush = s.openedAt

	w.filesMu.Lock()
	s.fileIdx = len(w.files)
	w.files = append(w.files, File{Shard: idx, Rotation: s.rotation, Path: path})
	w.filesMu.Unlock()

	if w.headerWritten.Load() && w.header != "" {
		if _, err := s.buf.WriteString(w.header); err != nil {
			return fmt.Errorf("failed to replay header into %s: %w", path, err)
		}
		s.bytesSinceFlush += int64(len(w.header))
	}
	return nil
}

// finishFile flushes and closes the shard's current file. All three layers
// are closed even when an earlier one fails.
func (w *ShardedWriter) finishFile(s *shardState) error {
	first := s.buf.Flush()
	if s.gz != nil {
		if err := s.gz.Close(); err != nil && first == nil {
			first = err
		}
	}
	if err := s.file.Close(); err != nil && first == nil {
		first = err
	}

	w.filesMu.Lock()
	w.files[s.fileIdx].Bytes = s.counter.n
	w.filesMu.Unlock()

	s.buf, s.gz, s.file = nil, nil, nil
	return first
}

// abort releases files after a failed New.
func (w *ShardedWriter) abort() {
	for _, s := range w.shards {
		if s != nil && s.file != nil {
			_ = s.file.Close()
		}
	}
}

func (w *ShardedWriter) lock(s *shardState) func() {
	if !w.opts.ThreadSafe {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// countingWriter counts bytes that reach the underlying file.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

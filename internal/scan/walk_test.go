package scan

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/solatis/btmgen/internal/types"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("failed to create dir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", rel, err)
		}
	}
}

func rels(files []SourceFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Rel
	}
	return out
}

func TestWalk(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore":                           "generated/\n*.tmp.kt\n",
		"src/main/java/com/a/A.java":           "class A {}",
		"src/main/kotlin/com/a/B.kt":           "class B",
		"src/main/kotlin/com/legacy/E.kt":      "class E",
		"src/main/kotlin/com/a/Scratch.tmp.kt": "class S",
		"build/gen/C.kt":                       "class C",
		"generated/D.kt":                       "class D",
		"notes.txt":                            "not source",
		"script.kts":                           "println()",
	})

	tests := []struct {
		name string
		opts WalkOptions
		want []string
	}{
		{
			name: "kotlin only by default",
			opts: WalkOptions{RespectGitignore: true},
			want: []string{"src/main/kotlin/com/a/B.kt", "src/main/kotlin/com/legacy/E.kt"},
		},
		{
			name: "java enabled",
			opts: WalkOptions{IncludeJava: true, RespectGitignore: true},
			want: []string{"src/main/java/com/a/A.java", "src/main/kotlin/com/a/B.kt", "src/main/kotlin/com/legacy/E.kt"},
		},
		{
			name: "gitignore disabled",
			opts: WalkOptions{},
			want: []string{"generated/D.kt", "src/main/kotlin/com/a/B.kt", "src/main/kotlin/com/a/Scratch.tmp.kt", "src/main/kotlin/com/legacy/E.kt"},
		},
		{
			name: "exclude glob",
			opts: WalkOptions{IncludeJava: true, RespectGitignore: true, ExcludePatterns: []string{"**/legacy/**"}},
			want: []string{"src/main/java/com/a/A.java", "src/main/kotlin/com/a/B.kt"},
		},
		{
			name: "brace alternation",
			opts: WalkOptions{IncludeJava: true, RespectGitignore: true, IncludePatterns: []string{"src/**/*.{java,kt}"}, ExcludePatterns: []string{"**/{legacy,generated}/**"}},
			want: []string{"src/main/java/com/a/A.java", "src/main/kotlin/com/a/B.kt"},
		},
		{
			name: "include glob",
			opts: WalkOptions{IncludeJava: true, RespectGitignore: true, IncludePatterns: []string{"src/main/java/**"}},
			want: []string{"src/main/java/com/a/A.java"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, err := Walk(root, tt.opts)
			if err != nil {
				t.Fatalf("Walk() error = %v", err)
			}
			if got := rels(files); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Walk() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWalk_RootErrors(t *testing.T) {
	if _, err := Walk(filepath.Join(t.TempDir(), "missing"), WalkOptions{}); err == nil {
		t.Error("Walk() on a missing root returned no error")
	}

	file := filepath.Join(t.TempDir(), "A.kt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Walk(file, WalkOptions{}); err == nil {
		t.Error("Walk() on a file root returned no error")
	}
}

func TestMatchAny(t *testing.T) {
	tests := []struct {
		glob  string
		path  string
		match bool
	}{
		{"**/*.kt", "a/b/C.kt", true},
		{"**/*.kt", "C.kt", true},
		{"**/*.kt", "C.java", false},
		{"src/*.kt", "src/A.kt", true},
		{"src/*.kt", "src/x/A.kt", false},
		{"src/**", "src/x/y/A.kt", true},
		{"A?.kt", "AB.kt", true},
		{"A?.kt", "A/.kt", false},
		{"a.b/*.kt", "axb/C.kt", false},
		{"src/**/*.{java,kt}", "src/main/A.java", true},
		{"src/**/*.{java,kt}", "src/main/B.kt", true},
		{"src/**/*.{java,kt}", "src/main/C.scala", false},
		{"**/{generated,build}/**", "app/generated/X.java", true},
		{"**/{generated,build}/**", "app/build/gen/Y.kt", true},
		{"**/{generated,build}/**", "app/src/Z.kt", false},
		{"**/Test[0-9].java", "a/Test1.java", true},
		{"**/Test[0-9].java", "a/TestX.java", false},
	}
	for _, tt := range tests {
		t.Run(tt.glob+" "+tt.path, func(t *testing.T) {
			patterns, err := globs([]string{tt.glob})
			if err != nil {
				t.Fatalf("globs() error = %v", err)
			}
			if got := matchAny(patterns, tt.path); got != tt.match {
				t.Errorf("match(%q, %q) = %v, want %v", tt.glob, tt.path, got, tt.match)
			}
		})
	}
}

func TestValidateGlobs(t *testing.T) {
	if err := ValidateGlobs([]string{"src/**/*.{java,kt}", " ", "**/Test[0-9].java"}); err != nil {
		t.Errorf("ValidateGlobs() error = %v", err)
	}
	for _, bad := range []string{"src/[a-", "src/{a,b"} {
		if err := ValidateGlobs([]string{bad}); !errors.Is(err, types.ErrInvalidConfig) {
			t.Errorf("ValidateGlobs(%q) error = %v, want ErrInvalidConfig", bad, err)
		}
	}
	if _, err := Walk(t.TempDir(), WalkOptions{IncludePatterns: []string{"src/[a-"}}); !errors.Is(err, types.ErrInvalidConfig) {
		t.Errorf("Walk() with a bad glob error = %v, want ErrInvalidConfig", err)
	}
}

func TestCollector_Collect(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"A.java": "package p;\nclass A {\n  void m() {\n    if (a) {\n    }\n    return;\n  }\n}\n",
		"B.kt":   "package p\nfun f() {\n    if (b) {\n    }\n    throw Oops()\n}\n",
		"Big.kt": "package p\n" + strings.Repeat("// padding\n", 200),
	})
	files, err := Walk(root, WalkOptions{IncludeJava: true})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	files = append(files, SourceFile{Root: root, Path: filepath.Join(root, "Gone.kt"), Rel: "Gone.kt", Language: types.LanguageKotlin, Size: 10})

	c := &Collector{
		MaxFileBytes: 1000,
		Parallelism:  2,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	events, stats, err := c.Collect(context.Background(), files)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	want := Stats{FilesScanned: 2, FilesSkipped: 2, Events: 6, Returns: 1, Throws: 1}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
	// File order is A.java, B.kt, Big.kt; events follow it.
	if len(events) != 6 || events[0].TypeName != "p.A" || events[5].TypeName != "p.BKt" {
		t.Errorf("events out of file order: %+v", view(events))
	}
}

func TestCollector_NoSizeLimit(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"Big.kt":   "package p\n" + strings.Repeat("// padding\n", 200),
		"Small.kt": "package p\n",
	})
	files, err := Walk(root, WalkOptions{})
	if err != nil {
		t.Fatal(err)
	}
	for _, limit := range []int64{0, -1} {
		c := &Collector{MaxFileBytes: limit, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
		_, stats, err := c.Collect(context.Background(), files)
		if err != nil {
			t.Fatalf("Collect() error = %v", err)
		}
		if stats.FilesScanned != 2 || stats.FilesSkipped != 0 {
			t.Errorf("MaxFileBytes %d: stats = %+v, want both files scanned", limit, stats)
		}
	}
}

func TestCollector_CancelledContext(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"A.kt": "package p\n"})
	files, err := Walk(root, WalkOptions{})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := (&Collector{}).Collect(ctx, files); err == nil {
		t.Error("Collect() with a cancelled context returned no error")
	}
}

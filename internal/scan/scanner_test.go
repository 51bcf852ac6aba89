package scan

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/solatis/btmgen/internal/types"
)

func TestLineIndex(t *testing.T) {
	li := NewLineIndex("ab\ncd\n\nef")
	tests := []struct {
		offset int
		want   int
	}{
		{-1, 1},
		{0, 1},
		{2, 1}, // the newline belongs to its line
		{3, 2},
		{6, 3},
		{7, 4},
		{8, 4},
		{100, 4},
	}
	for _, tt := range tests {
		if got := li.LineAt(tt.offset); got != tt.want {
			t.Errorf("LineAt(%d) = %d, want %d", tt.offset, got, tt.want)
		}
	}
	if li.Lines() != 4 {
		t.Errorf("Lines() = %d, want 4", li.Lines())
	}
}

func TestBalancedMatching(t *testing.T) {
	s := "{ a { b } ( c ( d ) ) }"
	if got := matchingBrace(s, 0); got != len(s)-1 {
		t.Errorf("matchingBrace = %d, want %d", got, len(s)-1)
	}
	if got := matchingBrace("{ {", 0); got != 2 {
		t.Errorf("unbalanced matchingBrace = %d, want 2", got)
	}
	open := strings.IndexByte(s, '(')
	close, ok := matchingParen(s, open)
	if !ok || s[close+1:] != " }" {
		t.Errorf("matchingParen = %d, %v", close, ok)
	}
	if _, ok := matchingParen("( (", 0); ok {
		t.Error("matchingParen on unbalanced input reported a match")
	}
}

func TestPackageFilter_Allows(t *testing.T) {
	tests := []struct {
		name   string
		filter PackageFilter
		pkg    string
		want   bool
	}{
		{"empty filter", PackageFilter{}, "any.pkg", true},
		{"empty filter default package", PackageFilter{}, "", true},
		{"include prefix", PackageFilter{Include: []string{"com.a"}}, "com.a.b", true},
		{"include miss", PackageFilter{Include: []string{"com.a"}}, "org.a", false},
		{"include rejects default package", PackageFilter{Include: []string{"com.a"}}, "", false},
		{"exclude wins", PackageFilter{Include: []string{"com"}, Exclude: []string{"com.x"}}, "com.x.y", false},
		{"blank exclude ignored", PackageFilter{Exclude: []string{""}}, "com.a", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Allows(tt.pkg); got != tt.want {
				t.Errorf("Allows(%q) = %v, want %v", tt.pkg, got, tt.want)
			}
		})
	}
}

func TestForPath(t *testing.T) {
	tests := []struct {
		path    string
		want    types.Language
		wantErr bool
	}{
		{"A.java", types.LanguageJava, false},
		{"dir/B.kt", types.LanguageKotlin, false},
		{"C.KT", types.LanguageKotlin, false},
		{"D.kts", 0, true},
		{"README.md", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			s, err := ForPath(tt.path, Options{})
			if tt.wantErr {
				if !errors.Is(err, types.ErrUnsupportedLanguage) {
					t.Errorf("ForPath(%q) error = %v, want ErrUnsupportedLanguage", tt.path, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ForPath(%q) error = %v", tt.path, err)
			}
			if s.Language() != tt.want {
				t.Errorf("Language() = %v, want %v", s.Language(), tt.want)
			}
		})
	}
}

func TestGuardRecoversPanics(t *testing.T) {
	events, err := guard("X.java", func() []types.ScanEvent { panic("boom") })
	if err == nil || events != nil {
		t.Fatalf("guard() = %v, %v; want nil events and an error", events, err)
	}
	if !strings.Contains(err.Error(), "X.java") {
		t.Errorf("error %q does not name the file", err)
	}
}

var sourceTokens = []string{
	"package p;", "package q\n", "class A", "object B", "fun f(x: Int)", "void m(int a)",
	"{", "}", "(", ")", "if (", "when (", "when {", "switch (", "case 1:", "default:",
	"else ->", "return", "throw ", "x = 1", "a == b", "\"", "'", "//", "/*", "*/",
	"\n", " ", "\t", "\\", "interface I", "enum E", "record R(int a)", "$", "é", "->",
}

func genSourceSoup() gopter.Gen {
	return gen.SliceOf(gen.IntRange(0, len(sourceTokens)-1)).Map(func(idx []int) string {
		var sb strings.Builder
		for _, i := range idx {
			sb.WriteString(sourceTokens[i])
		}
		return sb.String()
	})
}

func TestScannersNeverFailAndAreIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	scanners := []Scanner{&JavaScanner{opts: Options{EntryExit: true}}, &KotlinScanner{opts: Options{EntryExit: true}}}

	check := func(src string) bool {
		for _, s := range scanners {
			first, err := s.Scan("Fuzz.src", src)
			if err != nil {
				return false
			}
			second, err := s.Scan("Fuzz.src", src)
			if err != nil || !reflect.DeepEqual(first, second) {
				return false
			}
			for _, e := range first {
				if e.Line < 1 {
					return false
				}
			}
		}
		return true
	}

	properties.Property("random text scans cleanly", prop.ForAll(check, gen.AnyString()))
	properties.Property("token soup scans cleanly", prop.ForAll(check, genSourceSoup()))

	properties.TestingRun(t)
}

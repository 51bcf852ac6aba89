package scan

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/solatis/btmgen/internal/sanitize"
	"github.com/solatis/btmgen/internal/types"
)

/*
 * Kotlin heuristic line scanner.
 *
 * Works line by line on the raw text with only trailing // comments
 * removed. State carried across lines:
 *   - running brace depth
 *   - stack of (class or object name, depth at entry)
 *   - one open function slot with the depth at entry
 *
 * A function closes when depth drops strictly below its entry depth;
 * closing an inner block that returns to the entry depth keeps it open.
 */

var (
	ktPackagePattern = regexp.MustCompile(`^\s*package\s+([a-zA-Z0-9_.]+)`)
	ktClassPattern   = regexp.MustCompile(
		`^\s*(?:data\s+)?(?:sealed\s+)?(?:open\s+)?(?:internal\s+|public\s+|private\s+|protected\s+)?(?:class|object)\s+([A-Za-z_][A-Za-z0-9_]*)`)
	ktFunPattern = regexp.MustCompile(
		`^\s*(?:suspend\s+)?(?:inline\s+)?(?:operator\s+)?(?:tailrec\s+)?(?:infix\s+)?(?:internal\s+|public\s+|private\s+|protected\s+)?fun\s+([A-Za-z_][A-Za-z0-9_]*?)\s*\((.*?)\)`)
	ktIfPattern            = regexp.MustCompile(`\bif\s*\(`)
	ktWhenPattern          = regexp.MustCompile(`\bwhen\s*\(`)
	ktSubjectlessWhen      = regexp.MustCompile(`\bwhen\s*\{`)
	ktWhenEntryPattern     = regexp.MustCompile(`^\s*(?:else|[^\r\n]+?)\s*->`)
	ktReturnPattern        = regexp.MustCompile(`(^|\W)return(\W|$)`)
	ktThrowPattern         = regexp.MustCompile(`\bthrow\s+(.+)`)
	ktAssignmentCandidates = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\s*=`)
)

// KotlinScanner is the heuristic line scanner for .kt files.
type KotlinScanner struct {
	opts Options
}

func (s *KotlinScanner) Language() types.Language { return types.LanguageKotlin }

// Scan returns the events of one Kotlin file. Top-level functions are
// attributed to the synthetic <FileBase>Kt class.
func (s *KotlinScanner) Scan(path, src string) ([]types.ScanEvent, error) {
	return guard(path, func() []types.ScanEvent {
		lines := strings.Split(src, "\n")
		for i, l := range lines {
			lines[i] = strings.TrimSuffix(l, "\r")
		}
		base := filepath.Base(path)
		base = strings.TrimSuffix(base, filepath.Ext(base))
		k := &kotlinFile{opts: s.opts, lines: lines, fileClass: base + "Kt"}
		return k.scan()
	})
}

type scopeEntry struct {
	name  string
	depth int
}

type kotlinFile struct {
	opts      Options
	lines     []string
	fileClass string
	pkg       string
	events    []types.ScanEvent
}

func (k *kotlinFile) scan() []types.ScanEvent {
	for _, l := range k.lines {
		if m := ktPackagePattern.FindStringSubmatch(l); m != nil {
			k.pkg = m[1]
			break
		}
	}
	if !k.opts.Packages.Allows(k.pkg) {
		return nil
	}

	var classes []scopeEntry
	var fn *method
	fnDepth, depth := -1, 0
	for i, raw := range k.lines {
		line := sanitize.LineComment(raw)

		depth += strings.Count(line, "{")
		depth -= strings.Count(line, "}")

		if m := ktClassPattern.FindStringSubmatch(line); m != nil {
			classes = append(classes, scopeEntry{name: m[1], depth: depth})
		}
		for len(classes) > 0 && depth < classes[len(classes)-1].depth {
			classes = classes[:len(classes)-1]
		}

		fqcn := k.fqcn(classes)
		if fn == nil {
			if m := ktFunPattern.FindStringSubmatch(line); m != nil {
				fn = &method{
					lang:      types.LanguageKotlin,
					fqcn:      fqcn,
					name:      m[1],
					signature: kotlinSignature(m[1], m[2]),
				}
				fnDepth = depth
				if k.opts.EntryExit {
					k.events = append(k.events,
						fn.event(types.KindEntry, i+1, nil),
						fn.event(types.KindExit, i+1, nil))
				}
			}
		}

		if fn != nil {
			cur := *fn
			cur.fqcn = fqcn
			k.collect(cur, i, line)
			if depth < fnDepth {
				fn = nil
				fnDepth = -1
			}
		}
	}
	return k.events
}

func (k *kotlinFile) fqcn(classes []scopeEntry) string {
	typeName := k.fileClass
	if len(classes) > 0 {
		names := make([]string, len(classes))
		for i, c := range classes {
			names[i] = c.name
		}
		typeName = strings.Join(names, "$")
	}
	if k.pkg == "" {
		return typeName
	}
	return k.pkg + "." + typeName
}

func (k *kotlinFile) collect(m method, idx int, line string) {
	lineNo := idx + 1

	for _, loc := range ktIfPattern.FindAllStringIndex(line, -1) {
		if cond, ok := k.capture(idx, line, loc[1]-1); ok && cond != "" {
			k.events = append(k.events,
				m.event(types.KindIfTrue, lineNo, types.StringPtr(cond)),
				m.event(types.KindIfFalse, lineNo, types.StringPtr(cond)))
		}
	}
	for _, loc := range ktWhenPattern.FindAllStringIndex(line, -1) {
		if subject, ok := k.capture(idx, line, loc[1]-1); ok && subject != "" {
			k.events = append(k.events, m.event(types.KindSwitch, lineNo, types.StringPtr(subject)))
		}
	}
	if ktSubjectlessWhen.MatchString(line) {
		k.events = append(k.events, m.event(types.KindSwitch, lineNo, nil))
	}
	if ktWhenEntryPattern.MatchString(line) {
		label := strings.TrimSpace(line)
		if arrow := strings.Index(label, "->"); arrow > 0 {
			label = strings.TrimSpace(label[:arrow])
		}
		k.events = append(k.events, m.event(types.KindWhenBranch, lineNo, types.StringPtr(label)))
	}
	if ktReturnPattern.MatchString(line) {
		k.events = append(k.events, m.event(types.KindReturn, lineNo, nil))
	}
	if sm := ktThrowPattern.FindStringSubmatch(line); sm != nil {
		k.events = append(k.events, m.event(types.KindThrow, lineNo, types.StringPtr(strings.TrimSpace(sm[1]))))
	}
	for _, name := range assignments(line) {
		k.events = append(k.events, m.event(types.KindWrite, lineNo, types.StringPtr(name)))
	}
}

// assignments finds `name =` not preceded by < > ! = and not followed by
// another '=' after optional whitespace.
func assignments(line string) []string {
	var names []string
	for _, m := range ktAssignmentCandidates.FindAllStringSubmatchIndex(line, -1) {
		start, end := m[2], m[1]
		if start > 0 && strings.IndexByte("<>!=", line[start-1]) >= 0 {
			continue
		}
		rest := strings.TrimLeftFunc(line[end:], unicode.IsSpace)
		if strings.HasPrefix(rest, "=") {
			continue
		}
		names = append(names, line[m[2]:m[3]])
	}
	return names
}

// capture collects the parenthesised text opened at line[open], continuing
// over following lines until the parens balance. Whitespace is normalised
// and a single space is kept between tokens that would otherwise merge;
// a line break counts as whitespace. Input ending first yields false.
func (k *kotlinFile) capture(idx int, line string, open int) (string, bool) {
	depth := 1
	var buf []byte
	needSpace := false
	pos := open + 1

	for {
		for ; pos < len(line); pos++ {
			c := line[pos]
			if c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v' {
				if len(buf) > 0 && buf[len(buf)-1] != ' ' {
					needSpace = true
				}
				continue
			}
			if needSpace && requiresSpaceBefore(buf, c) {
				buf = append(buf, ' ')
			}
			needSpace = false
			switch c {
			case '(':
				depth++
			case ')':
				depth--
				if depth == 0 {
					return collapseSpace(string(buf)), true
				}
			}
			buf = append(buf, c)
		}

		idx++
		if idx >= len(k.lines) {
			return "", false
		}
		if len(buf) > 0 && buf[len(buf)-1] != ' ' {
			needSpace = true
		}
		line = sanitize.LineComment(k.lines[idx])
		pos = 0
	}
}

func requiresSpaceBefore(buf []byte, c byte) bool {
	if len(buf) == 0 {
		return false
	}
	last := buf[len(buf)-1]
	if last == '(' || last == '[' {
		return false
	}
	if isWordByte(c) || c == '"' || c == '\'' || c == '@' {
		return true
	}
	switch c {
	case '.', ',', ')', ']', ':', ';':
		return false
	}
	return true
}

func isWordByte(c byte) bool {
	return c == '_' || c >= 0x80 ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// kotlinSignature keeps the type after the last ':' of each parameter, or
// Any when a parameter has no explicit type.
func kotlinSignature(name, params string) string {
	var out []string
	for _, p := range strings.Split(params, ",") {
		t := strings.TrimSpace(p)
		switch i := strings.LastIndexByte(t, ':'); {
		case i >= 0 && i+1 < len(t):
			t = strings.TrimSpace(t[i+1:])
		case t != "":
			t = "Any"
		}
		if t != "" {
			out = append(out, t)
		}
	}
	return name + "(" + strings.Join(out, ",") + ")"
}

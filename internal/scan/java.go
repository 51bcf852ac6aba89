package scan

import (
	"regexp"
	"strings"

	"github.com/solatis/btmgen/internal/sanitize"
	"github.com/solatis/btmgen/internal/types"
)

/*
 * Java structural scanner.
 *
 * All pattern matching and brace/paren counting runs on sanitized text, in
 * which literals and comments are blanked. Offsets found there are used to
 * slice the original text, so emitted conditions are the source as written.
 *
 * Phases per file:
 *   1. package declaration and package filter
 *   2. type regions (class, interface, enum, record) bounded by brace
 *      matching; each region's parent is the innermost enclosing region
 *   3. methods inside each region's own body, skipping nested regions;
 *      the scan resumes after each method's closing brace
 *   4. if / switch / case / return / throw inside each method body,
 *      excluding local type regions
 */

var (
	javaPackagePattern = regexp.MustCompile(`(?m)^\s*package\s+([a-zA-Z0-9_.]+)\s*;`)

	javaTypePattern = regexp.MustCompile(
		`(?m)^\s*(?:@[\w$.]+(?:\([^)]*\))?\s*)*` +
			`(?:(?:\b(?:public|protected|private|abstract|final|static|strictfp|sealed)\b|non-sealed)\s+)*` +
			`(?:class|interface|enum|record)\s+([A-Za-z0-9_$]+)`)

	javaMethodPattern = regexp.MustCompile(
		`(?m)^\s*(?:@[\w$.]+(?:\([^)]*\))?\s*)*` +
			`(?:\b(?:public|protected|private|abstract|final|static|strictfp|synchronized|native|default)\b\s+)*` +
			`(?:<[^>]*>\s*)?[\w$<>\[\],.?\s]+\s+([a-zA-Z0-9_$]+)\s*\(([^)]*)\)\s*` +
			`(?:throws\s+[\w$.,\s]+)?\{`)

	javaIfPattern     = regexp.MustCompile(`\bif\s*\(`)
	javaSwitchPattern = regexp.MustCompile(`\bswitch\s*\(`)
	javaCasePattern   = regexp.MustCompile(`(?m)^[\t ]*(case\s+[^:]*?|default)\s*(?::|->)`)
	javaReturnPattern = regexp.MustCompile(`\breturn\b`)
	javaThrowPattern  = regexp.MustCompile(`\bthrow\s+`)
)

// javaKeywords are statement keywords that the method pattern can mistake
// for a method name, as in "} else if (x) {" inside an initializer.
var javaKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "catch": true,
	"synchronized": true, "return": true, "new": true, "else": true,
	"do": true, "try": true, "throw": true, "assert": true,
}

// JavaScanner is the regex and brace based scanner for .java files.
type JavaScanner struct {
	opts Options
}

func (s *JavaScanner) Language() types.Language { return types.LanguageJava }

// Scan returns the events of one Java compilation unit.
func (s *JavaScanner) Scan(path, src string) ([]types.ScanEvent, error) {
	return guard(path, func() []types.ScanEvent {
		u := &javaUnit{
			opts:      s.opts,
			text:      src,
			sanitized: sanitize.Java(src),
			lines:     NewLineIndex(src),
		}
		return u.scan()
	})
}

type typeRegion struct {
	name   string
	start  int // offset of the type name
	open   int
	close  int
	parent int // index into regions, -1 for top level
	fqcn   string
}

func (r typeRegion) contains(offset int) bool {
	return offset >= r.start && offset <= r.close
}

type javaUnit struct {
	opts      Options
	text      string
	sanitized string
	lines     *LineIndex
	pkg       string
	regions   []typeRegion
	events    []types.ScanEvent
}

func (u *javaUnit) scan() []types.ScanEvent {
	if m := javaPackagePattern.FindStringSubmatch(u.sanitized); m != nil {
		u.pkg = m[1]
	}
	if !u.opts.Packages.Allows(u.pkg) {
		return nil
	}

	u.findTypes()
	for i := range u.regions {
		u.scanTypeBody(i)
	}
	return u.events
}

func (u *javaUnit) findTypes() {
	for _, m := range javaTypePattern.FindAllStringSubmatchIndex(u.sanitized, -1) {
		open := strings.IndexByte(u.sanitized[m[1]:], '{')
		if open < 0 {
			continue
		}
		open += m[1]
		r := typeRegion{
			name:   u.sanitized[m[2]:m[3]],
			start:  m[2],
			open:   open,
			close:  matchingBrace(u.sanitized, open),
			parent: -1,
		}
		for j := len(u.regions) - 1; j >= 0; j-- {
			if u.regions[j].open < r.open && r.open <= u.regions[j].close {
				r.parent = j
				break
			}
		}
		if r.parent >= 0 {
			r.fqcn = u.regions[r.parent].fqcn + "$" + r.name
		} else if u.pkg != "" {
			r.fqcn = u.pkg + "." + r.name
		} else {
			r.fqcn = r.name
		}
		u.regions = append(u.regions, r)
	}
}

// childAt returns the nested region of parent that contains offset.
func (u *javaUnit) childAt(parent, offset int) (typeRegion, bool) {
	for i, r := range u.regions {
		if i != parent && r.start > u.regions[parent].open && r.contains(offset) {
			return r, true
		}
	}
	return typeRegion{}, false
}

func (u *javaUnit) scanTypeBody(idx int) {
	region := u.regions[idx]
	pos := region.open + 1
	end := region.close
	for pos < end {
		m := javaMethodPattern.FindStringSubmatchIndex(u.sanitized[pos:end])
		if m == nil {
			return
		}
		for k := range m {
			if m[k] >= 0 {
				m[k] += pos
			}
		}
		nameStart, nameEnd := m[2], m[3]
		open := m[1] - 1

		if child, ok := u.childAt(idx, nameStart); ok {
			pos = child.close + 1
			continue
		}
		if child, ok := u.childAt(idx, open); ok {
			pos = child.close + 1
			continue
		}

		close := matchingBrace(u.sanitized, open)
		name := u.sanitized[nameStart:nameEnd]
		if javaKeywords[name] {
			pos = close + 1
			continue
		}

		u.scanMethod(region, name, u.sanitized[m[4]:m[5]], nameStart, open, close)
		pos = close + 1
	}
}

func (u *javaUnit) scanMethod(region typeRegion, name, params string, declAt, open, close int) {
	m := method{
		lang:      types.LanguageJava,
		fqcn:      region.fqcn,
		name:      name,
		signature: javaSignature(name, params),
	}

	if u.opts.EntryExit {
		u.events = append(u.events,
			m.event(types.KindEntry, u.lines.LineAt(declAt), nil),
			m.event(types.KindExit, u.lines.LineAt(close), nil))
	}

	bodyStart, bodyEnd := open+1, close
	if bodyEnd < bodyStart {
		return
	}
	var local []typeRegion
	for _, r := range u.regions {
		if r.start > open && r.start < close {
			local = append(local, r)
		}
	}
	excluded := func(offset int) bool {
		for _, r := range local {
			if r.contains(offset) {
				return true
			}
		}
		return false
	}
	body := u.sanitized[bodyStart:bodyEnd]

	for _, loc := range javaIfPattern.FindAllStringIndex(body, -1) {
		at := bodyStart + loc[0]
		if excluded(at) {
			continue
		}
		cond, ok := u.parenthesized(bodyStart + loc[1] - 1)
		if !ok {
			continue
		}
		line := u.lines.LineAt(at)
		u.events = append(u.events,
			m.event(types.KindIfTrue, line, types.StringPtr(cond)),
			m.event(types.KindIfFalse, line, types.StringPtr(cond)))
	}

	for _, loc := range javaSwitchPattern.FindAllStringIndex(body, -1) {
		at := bodyStart + loc[0]
		if excluded(at) {
			continue
		}
		sel, ok := u.parenthesized(bodyStart + loc[1] - 1)
		if !ok {
			continue
		}
		u.events = append(u.events, m.event(types.KindSwitch, u.lines.LineAt(at), types.StringPtr(sel)))
	}

	for _, loc := range javaCasePattern.FindAllStringSubmatchIndex(body, -1) {
		at := bodyStart + loc[2]
		if excluded(at) {
			continue
		}
		label := collapseSpace(u.text[at : bodyStart+loc[3]])
		u.events = append(u.events, m.event(types.KindSwitchCase, u.lines.LineAt(at), types.StringPtr(label)))
	}

	for _, loc := range javaReturnPattern.FindAllStringIndex(body, -1) {
		at := bodyStart + loc[0]
		if excluded(at) {
			continue
		}
		var expr *string
		if e := u.statementTail(bodyStart+loc[1], bodyEnd); e != "" {
			expr = types.StringPtr(e)
		}
		u.events = append(u.events, m.event(types.KindReturn, u.lines.LineAt(at), expr))
	}

	for _, loc := range javaThrowPattern.FindAllStringIndex(body, -1) {
		at := bodyStart + loc[0]
		if excluded(at) {
			continue
		}
		e := u.statementTail(bodyStart+loc[1], bodyEnd)
		u.events = append(u.events, m.event(types.KindThrow, u.lines.LineAt(at), types.StringPtr(e)))
	}
}

// parenthesized returns the original text between the '(' at open and its
// matching ')', located on sanitized text.
func (u *javaUnit) parenthesized(open int) (string, bool) {
	close, ok := matchingParen(u.sanitized, open)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(u.text[open+1 : close]), true
}

// statementTail returns the original text from start up to the next ';' or
// '}' in sanitized text, collapsed to single spaces.
func (u *javaUnit) statementTail(start, limit int) string {
	if start >= limit {
		return ""
	}
	end := strings.IndexAny(u.sanitized[start:limit], ";}")
	if end < 0 {
		end = limit - start
	}
	return collapseSpace(u.text[start : start+end])
}

// javaSignature renders name(T1,T2) from a raw parameter list.
func javaSignature(name, params string) string {
	var typesOut []string
	for _, p := range splitParams(params) {
		fields := strings.Fields(p)
		// Drop annotations and modifiers in front of the type.
		for len(fields) > 0 && (strings.HasPrefix(fields[0], "@") || fields[0] == "final") {
			fields = fields[1:]
		}
		if len(fields) == 0 {
			continue
		}
		if len(fields) == 1 {
			typesOut = append(typesOut, fields[0])
			continue
		}
		typesOut = append(typesOut, strings.Join(fields[:len(fields)-1], ""))
	}
	return name + "(" + strings.Join(typesOut, ",") + ")"
}

// splitParams splits on commas outside generic brackets.
func splitParams(params string) []string {
	var out []string
	depth, last := 0, 0
	for i := 0; i < len(params); i++ {
		switch params[i] {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				out = append(out, params[last:i])
				last = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(params[last:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// method carries the identity shared by every event of one method.
type method struct {
	lang      types.Language
	fqcn      string
	name      string
	signature string
}

func (m method) event(kind types.Kind, line int, cond *string) types.ScanEvent {
	return types.ScanEvent{
		Language:  m.lang,
		TypeName:  m.fqcn,
		Method:    m.name,
		Signature: m.signature,
		Kind:      kind,
		Line:      line,
		Condition: cond,
	}
}

// Package types provides domain models shared across btmgen components.
//
// Scan events are the single currency between the source scanners and the
// rule renderer. Both scanners produce them, nothing downstream looks at
// source text again except through an event's Condition.
package types

import "strings"

// Language identifies which scanner produced an event.
type Language int

const (
	LanguageJava Language = iota
	LanguageKotlin
)

// String returns the lowercase language tag used in sort keys and logs.
func (l Language) String() string {
	switch l {
	case LanguageJava:
		return "java"
	case LanguageKotlin:
		return "kotlin"
	default:
		return "unknown"
	}
}

// Kind is the structural construct an event describes.
type Kind int

const (
	KindIfTrue Kind = iota
	KindIfFalse
	KindSwitch
	KindSwitchCase
	KindWhenBranch
	KindReturn
	KindThrow
	KindEntry
	KindExit
	KindWrite
)

var kindNames = [...]string{
	KindIfTrue:     "if-true",
	KindIfFalse:    "if-false",
	KindSwitch:     "switch",
	KindSwitchCase: "switch-case",
	KindWhenBranch: "when-branch",
	KindReturn:     "return",
	KindThrow:      "throw",
	KindEntry:      "entry",
	KindExit:       "exit",
	KindWrite:      "write",
}

// String returns the stable textual form of the kind.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// ScanEvent is one control-flow point found in source.
// Line is 1-based against the original, unsanitized file. Condition is nil
// when the construct carries no text (plain return, subject-less when).
type ScanEvent struct {
	Language  Language
	TypeName  string
	Method    string
	Signature string
	Kind      Kind
	Line      int
	Condition *string
}

// Text returns the condition text or fallback when the event has none.
func (e ScanEvent) Text(fallback string) string {
	if e.Condition == nil {
		return fallback
	}
	return *e.Condition
}

// MethodKey identifies the method an event belongs to, ignoring overloads.
func (e ScanEvent) MethodKey() string {
	return e.TypeName + "." + e.Method
}

// Package returns the package portion of TypeName.
func (e ScanEvent) Package() string {
	if i := strings.LastIndexByte(e.TypeName, '.'); i >= 0 {
		return e.TypeName[:i]
	}
	return ""
}

// StringPtr returns a pointer to s for populating ScanEvent.Condition.
func StringPtr(s string) *string {
	return &s
}

// Less orders events by (language, type, method, line, kind).
func Less(a, b ScanEvent) bool {
	if a.Language != b.Language {
		return a.Language.String() < b.Language.String()
	}
	if a.TypeName != b.TypeName {
		return a.TypeName < b.TypeName
	}
	if a.Method != b.Method {
		return a.Method < b.Method
	}
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	return a.Kind.String() < b.Kind.String()
}

// Limits and defaults shared by the scanners, the renderer and the writer.
const (
	// MaxWalkDepth bounds directory recursion below a source root.
	MaxWalkDepth = 64

	// DefaultMaxFileBytes skips generated or vendored giants that would
	// dominate scan time while carrying no useful branch structure.
	DefaultMaxFileBytes = 2_000_000

	// TruncationMarker is appended to emitted text cut at MaxStringLength.
	TruncationMarker = "…"

	// DefaultHelperFQCN is the Byteman helper class referenced by every rule.
	DefaultHelperFQCN = "de.burger.forensics.ForensicsHelper"

	// DefaultSafeEvalFQCN is the guard helper used in safe mode.
	DefaultSafeEvalFQCN = "org.example.trace.SafeEval"

	// DefaultFilePrefix names shard files tracing-0001.btm and so on.
	DefaultFilePrefix = "tracing-"

	// EmptyShardComment is written to shards that received no rules.
	EmptyShardComment = "# No matching sources were found.\n"

	// MaxBindingDepth bounds dotted binding names resolved by predicates.
	MaxBindingDepth = 16

	// GeneratorName appears in every generated file header.
	GeneratorName = "de.burger.forensics.btmgen"
)

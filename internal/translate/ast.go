// internal/translate/ast.go
package translate

// Node is a parsed condition. The set of implementations is closed.
type Node interface {
	node()
}

// LiteralKind distinguishes the atom forms accepted by the grammar.
type LiteralKind int

const (
	LitString LiteralKind = iota
	LitChar
	LitNumber
)

// Ident is a dotted, side-effect-free name such as user.status.
type Ident struct {
	Name string
}

// Literal is a quoted or numeric atom. Text keeps the source form,
// including quotes.
type Literal struct {
	Kind LiteralKind
	Text string
}

// Compare is an equality or inequality test.
type Compare struct {
	Negated bool
	Left    Node
	Right   Node
}

// InstanceOf tests the dynamic type of Value against TypeName.
type InstanceOf struct {
	Value    Node
	TypeName string
}

// LogicalOp is && or ||.
type LogicalOp int

const (
	LogicalAnd LogicalOp = iota
	LogicalOr
)

// Logical combines two sub-conditions.
type Logical struct {
	Op    LogicalOp
	Left  Node
	Right Node
}

func (Ident) node()      {}
func (Literal) node()    {}
func (Compare) node()    {}
func (InstanceOf) node() {}
func (Logical) node()    {}

// Unquote returns the literal body without its delimiters. Escapes are kept
// as written.
func (l Literal) Unquote() string {
	if l.Kind == LitNumber || len(l.Text) < 2 {
		return l.Text
	}
	return l.Text[1 : len(l.Text)-1]
}

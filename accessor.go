package scope

import (
	"fmt"
	"strings"
)

// OneTimePrefix marks a one-time binding. Listeners compiled from such a
// source deregister after their first defined delivery.
const OneTimePrefix = "::"

// SyntaxKind classifies the shape of a compiled expression.
type SyntaxKind int

const (
	SyntaxUnsupported SyntaxKind = iota
	SyntaxIdentifier
	SyntaxMember
	SyntaxCall
	SyntaxBinary
	SyntaxObject
	SyntaxAssign
	SyntaxLiteral
)

func (k SyntaxKind) String() string {
	switch k {
	case SyntaxIdentifier:
		return "identifier"
	case SyntaxMember:
		return "member"
	case SyntaxCall:
		return "call"
	case SyntaxBinary:
		return "binary"
	case SyntaxObject:
		return "object"
	case SyntaxAssign:
		return "assign"
	case SyntaxLiteral:
		return "literal"
	default:
		return "unsupported"
	}
}

// Syntax is the static descriptor attached to an Accessor.
type Syntax struct {
	Kind SyntaxKind
	// Key is the minimal observable property name.
	Key string
	// Path is the static member path ending in Key. For binary and object
	// literal expressions it is the path of the first referenced member.
	Path []string
	// Target is the assignment left-hand side for SyntaxAssign.
	Target string
}

// Observable reports whether listeners can be keyed on this syntax.
func (s Syntax) Observable() bool {
	switch s.Kind {
	case SyntaxIdentifier, SyntaxMember, SyntaxCall, SyntaxBinary, SyntaxObject:
		return s.Key != ""
	default:
		return false
	}
}

// Accessor is a compiled expression that can be evaluated against a node.
type Accessor interface {
	Eval(target *Node, locals map[string]any) (any, error)
	Constant() bool
	OneTime() bool
	Syntax() Syntax
	Source() string
}

// Compiler turns expression sources into accessors.
type Compiler interface {
	Compile(source string) (Accessor, error)
}

// CompilerFunc adapts a function to Compiler.
type CompilerFunc func(source string) (Accessor, error)

// Compile implements Compiler.
func (f CompilerFunc) Compile(source string) (Accessor, error) {
	if f == nil {
		return nil, ErrNoCompiler
	}
	return f(source)
}

// FuncOption configures a function accessor.
type FuncOption func(*funcAccessor)

// FuncOneTime marks the accessor as a one-time binding.
func FuncOneTime() FuncOption {
	return func(a *funcAccessor) {
		a.oneTime = true
	}
}

// Func wraps a Go closure as an Accessor. path declares the member path the
// closure reads (e.g. "a" for n.Get("a"), "x.b" for a nested read); it is the
// key the listener subscribes to.
func Func(path string, fn func(*Node) any, opts ...FuncOption) Accessor {
	path = strings.TrimSpace(path)
	segments := splitPath(path)
	acc := &funcAccessor{fn: fn, source: path}
	switch len(segments) {
	case 0:
		acc.syntax = Syntax{Kind: SyntaxUnsupported}
	case 1:
		acc.syntax = Syntax{Kind: SyntaxIdentifier, Key: segments[0], Path: segments}
	default:
		acc.syntax = Syntax{Kind: SyntaxMember, Key: segments[len(segments)-1], Path: segments}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(acc)
		}
	}
	return acc
}

type funcAccessor struct {
	fn      func(*Node) any
	source  string
	syntax  Syntax
	oneTime bool
}

func (a *funcAccessor) Eval(target *Node, _ map[string]any) (result any, err error) {
	if a.fn == nil {
		return nil, fmt.Errorf("scope: function accessor %q has no function", a.source)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scope: function accessor %q panicked: %v", a.source, r)
		}
	}()
	return exportValue(a.fn(target)), nil
}

func (a *funcAccessor) Constant() bool { return false }
func (a *funcAccessor) OneTime() bool  { return a.oneTime }
func (a *funcAccessor) Syntax() Syntax { return a.syntax.clone() }
func (a *funcAccessor) Source() string { return a.source }

// pathAccessor resolves a static member path directly against the node. It
// is undefined-safe: any missing segment yields nil.
type pathAccessor struct {
	source  string
	syntax  Syntax
	oneTime bool
}

func newPathAccessor(source string, syntax Syntax, oneTime bool) *pathAccessor {
	return &pathAccessor{source: source, syntax: syntax, oneTime: oneTime}
}

func (a *pathAccessor) Eval(target *Node, locals map[string]any) (any, error) {
	if len(a.syntax.Path) == 0 {
		return nil, nil
	}
	if local, ok := locals[a.syntax.Path[0]]; ok {
		return exportValue(walkValue(local, a.syntax.Path[1:])), nil
	}
	if target == nil {
		return nil, nil
	}
	value, _ := target.lookupPath(a.syntax.Path)
	return exportValue(value), nil
}

func (a *pathAccessor) Constant() bool { return false }
func (a *pathAccessor) OneTime() bool  { return a.oneTime }
func (a *pathAccessor) Syntax() Syntax { return a.syntax.clone() }
func (a *pathAccessor) Source() string { return a.source }

// assignAccessor evaluates rhs and writes the result to the target path.
type assignAccessor struct {
	source  string
	target  []string
	rhs     Accessor
	oneTime bool
}

func (a *assignAccessor) Eval(target *Node, locals map[string]any) (any, error) {
	value, err := a.rhs.Eval(target, locals)
	if err != nil {
		return nil, err
	}
	if target != nil {
		target.SetPath(strings.Join(a.target, "."), value)
	}
	return value, nil
}

func (a *assignAccessor) Constant() bool { return false }
func (a *assignAccessor) OneTime() bool  { return a.oneTime }
func (a *assignAccessor) Source() string { return a.source }
func (a *assignAccessor) Syntax() Syntax {
	return Syntax{
		Kind:   SyntaxAssign,
		Key:    a.target[len(a.target)-1],
		Path:   append([]string(nil), a.target...),
		Target: strings.Join(a.target, "."),
	}
}

func (s Syntax) clone() Syntax {
	out := s
	if s.Path != nil {
		out.Path = append([]string(nil), s.Path...)
	}
	return out
}

// trimOneTime strips the one-time marker and reports whether it was present.
func trimOneTime(source string) (string, bool) {
	trimmed := strings.TrimSpace(source)
	if strings.HasPrefix(trimmed, OneTimePrefix) {
		return strings.TrimSpace(trimmed[len(OneTimePrefix):]), true
	}
	return trimmed, false
}

// splitAssignment recognises a top-level `path = expression` form. Comparison
// operators and quoted text are skipped.
func splitAssignment(source string) (string, string, bool) {
	var quote rune
	runes := []rune(source)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if quote != 0 {
			if r == '\\' {
				i++
				continue
			}
			if r == quote {
				quote = 0
			}
			continue
		}
		switch r {
		case '"', '\'', '`':
			quote = r
		case '=':
			if i+1 < len(runes) && runes[i+1] == '=' {
				i++
				continue
			}
			if i > 0 && strings.ContainsRune("=!<>", runes[i-1]) {
				continue
			}
			lhs := strings.TrimSpace(string(runes[:i]))
			rhs := strings.TrimSpace(string(runes[i+1:]))
			if !isIdentifierPath(lhs) || rhs == "" {
				return "", "", false
			}
			return lhs, rhs, true
		}
	}
	return "", "", false
}

func isIdentifierPath(path string) bool {
	segments := strings.Split(path, ".")
	if len(segments) == 0 {
		return false
	}
	for _, segment := range segments {
		if !isIdentifier(segment) {
			return false
		}
	}
	return true
}

func isIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || r == '$':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	parts := strings.Split(path, ".")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

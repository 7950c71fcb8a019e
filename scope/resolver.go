package scope

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

// Checker type-checks a candidate expression in the frame being debugged.
// A nil error means the candidate is valid.
type Checker interface {
	Check(ctx context.Context, e Expr) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, e Expr) error

// Check implements Checker.
func (f CheckerFunc) Check(ctx context.Context, e Expr) error {
	return f(ctx, e)
}

// ClassInspector reports the declared field names of a loaded class.
type ClassInspector interface {
	FieldNames(ctx context.Context, binaryName string) ([]string, error)
}

// RefKind distinguishes field and method references.
type RefKind int

const (
	// FieldRef is a bare identifier used as a value.
	FieldRef RefKind = iota
	// MethodRef is a bare identifier used as a method name.
	MethodRef
)

// Ref is a bare reference to resolve.
type Ref struct {
	Name string
	Kind RefKind
	Args string
}

// ErrUnresolved is returned when the checker rejects the as-is reference and
// reports no error of its own.
var ErrUnresolved = errors.New("cannot find symbol")

// Resolver qualifies bare references against a Chain.
type Resolver struct {
	chain     Chain
	hasThis   bool
	checker   Checker
	inspector ClassInspector
}

// NewResolver returns a resolver for a frame of the innermost class in chain.
// hasThis selects instance rules; static frames use type names only.
func NewResolver(chain Chain, hasThis bool, checker Checker, inspector ClassInspector) *Resolver {
	return &Resolver{chain: chain, hasThis: hasThis, checker: checker, inspector: inspector}
}

// Chain returns the class chain.
func (r *Resolver) Chain() Chain {
	return r.chain
}

// Levels returns the number of outer hops available from the innermost
// class. Anonymous classes have their this$N fields looked up.
func (r *Resolver) Levels(ctx context.Context) int {
	levels := r.chain.Separators()
	if !r.chain.Anonymous() || r.inspector == nil {
		return levels
	}
	fields, err := r.inspector.FieldNames(ctx, r.chain.BinaryName())
	if err != nil {
		return levels
	}
	best := -1
	for _, field := range fields {
		if !strings.HasPrefix(field, OuterFieldPrefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(field, OuterFieldPrefix))
		if err != nil {
			continue
		}
		if n > best {
			best = n
		}
	}
	if best < 0 {
		return levels
	}
	return best + 1
}

// Resolve returns the first candidate expression for ref that type-checks.
// The as-is reference is tried first. When nothing resolves, the error from
// the as-is check is returned.
func (r *Resolver) Resolve(ctx context.Context, ref Ref) (Expr, error) {
	asIs := r.asIs(ref)
	original := r.check(ctx, asIs)
	if original == nil {
		return asIs, nil
	}
	if ref.Kind == FieldRef {
		if tn, ok := r.ClassName(ref.Name); ok && r.check(ctx, tn) == nil {
			return tn, nil
		}
	}
	levels := r.Levels(ctx)
	for hops := 0; hops <= levels; hops++ {
		for _, candidate := range r.candidates(ref, hops, levels) {
			if r.check(ctx, candidate) == nil {
				return candidate, nil
			}
		}
	}
	return nil, original
}

// ClassName resolves a bare reference to one of the enclosing class names.
func (r *Resolver) ClassName(name string) (TypeName, bool) {
	hops, ok := r.chain.ClassHops(name)
	if !ok {
		return TypeName{}, false
	}
	return r.chain.TypeNameAt(hops)
}

// OuterInstance returns the receiver expression for Name.this, where name is
// one of the enclosing classes.
func (r *Resolver) OuterInstance(ctx context.Context, name string) (Expr, bool) {
	if !r.hasThis {
		return nil, false
	}
	hops, ok := r.chain.ClassHops(name)
	if !ok || !r.instanceReachable(hops) {
		return nil, false
	}
	return r.receiver(hops, r.Levels(ctx)), true
}

func (r *Resolver) candidates(ref Ref, hops, levels int) []Expr {
	if r.hasThis && r.instanceReachable(hops) {
		recv := r.receiver(hops, levels)
		if ref.Kind == MethodRef {
			return []Expr{Call{Recv: recv, Name: ref.Name, Args: ref.Args}}
		}
		return []Expr{
			Field{Recv: recv, Name: ref.Name},
			Field{Recv: recv, Name: SyntheticPrefix + ref.Name},
		}
	}
	tn, ok := r.chain.TypeNameAt(hops)
	if !ok {
		return nil
	}
	if ref.Kind == MethodRef {
		return []Expr{Call{Recv: tn, Name: ref.Name, Args: ref.Args}}
	}
	return []Expr{Field{Recv: tn, Name: ref.Name}}
}

// receiver builds this followed by hops outer references. The innermost
// class holds this$(levels-1), its outer class this$(levels-2), and so on.
func (r *Resolver) receiver(hops, levels int) Expr {
	var recv Expr = This{}
	for j := 1; j <= hops; j++ {
		recv = OuterThis{Recv: recv, Index: levels - j}
	}
	return recv
}

// instanceReachable reports whether no static class sits between the
// innermost class and the class hops levels out.
func (r *Resolver) instanceReachable(hops int) bool {
	n := len(r.chain.Segments)
	for j := 0; j < hops; j++ {
		idx := n - 1 - j
		if idx < 0 {
			break
		}
		if r.chain.Segments[idx].Static {
			return false
		}
	}
	return true
}

func (r *Resolver) asIs(ref Ref) Expr {
	if ref.Kind == MethodRef {
		return Call{Name: ref.Name, Args: ref.Args}
	}
	return Name{Ident: ref.Name}
}

func (r *Resolver) check(ctx context.Context, e Expr) error {
	if r.checker == nil {
		return ErrUnresolved
	}
	if err := r.checker.Check(ctx, e); err != nil {
		return err
	}
	return nil
}

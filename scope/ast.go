package scope

import (
	"strconv"
	"strings"
)

// Expr is a candidate access expression. The set of implementations is
// closed; Render switches over all of them.
type Expr interface {
	expr()
}

// Name is an unqualified identifier.
type Name struct {
	Ident string
}

// This is the receiver of the suspended frame.
type This struct{}

// OuterThis follows the synthetic reference to the enclosing instance,
// named this$Index by the compiler.
type OuterThis struct {
	Recv  Expr
	Index int
}

// Field selects a field of Recv.
type Field struct {
	Recv Expr
	Name string
}

// Call invokes a method on Recv. Args is the raw argument source.
type Call struct {
	Recv Expr
	Name string
	Args string
}

// TypeName is a source-level class name, outermost segment first.
type TypeName struct {
	Package string
	Names   []string
}

func (Name) expr()      {}
func (This) expr()      {}
func (OuterThis) expr() {}
func (Field) expr()     {}
func (Call) expr()      {}
func (TypeName) expr()  {}

// SyntheticPrefix is prepended by the compiler to captured local variables
// stored as fields of local and anonymous classes.
const SyntheticPrefix = "val$"

// OuterFieldPrefix names the synthetic enclosing-instance fields.
const OuterFieldPrefix = "this$"

// Render prints e as Java source.
func Render(e Expr) string {
	var b strings.Builder
	render(&b, e)
	return b.String()
}

func render(b *strings.Builder, e Expr) {
	switch v := e.(type) {
	case Name:
		b.WriteString(v.Ident)
	case This:
		b.WriteString("this")
	case OuterThis:
		render(b, v.Recv)
		b.WriteString(".")
		b.WriteString(OuterFieldPrefix)
		b.WriteString(strconv.Itoa(v.Index))
	case Field:
		if v.Recv != nil {
			render(b, v.Recv)
			b.WriteString(".")
		}
		b.WriteString(v.Name)
	case Call:
		if v.Recv != nil {
			render(b, v.Recv)
			b.WriteString(".")
		}
		b.WriteString(v.Name)
		b.WriteString("(")
		b.WriteString(v.Args)
		b.WriteString(")")
	case TypeName:
		if v.Package != "" {
			b.WriteString(v.Package)
			if len(v.Names) > 0 {
				b.WriteString(".")
			}
		}
		b.WriteString(strings.Join(v.Names, "."))
	}
}

// Receiver returns the receiver of a member access, or nil.
func Receiver(e Expr) Expr {
	switch v := e.(type) {
	case Field:
		return v.Recv
	case Call:
		return v.Recv
	case OuterThis:
		return v.Recv
	default:
		return nil
	}
}

// Hops counts the enclosing-instance hops in e.
func Hops(e Expr) int {
	n := 0
	for e != nil {
		if _, ok := e.(OuterThis); ok {
			n++
		}
		e = Receiver(e)
	}
	return n
}

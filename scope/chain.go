// Package scope qualifies bare identifiers typed into a debug interpreter
// so they resolve against the enclosing-instance chain of a suspended frame.
package scope

import (
	"strconv"
	"strings"
)

// Segment is one level of a nested class name.
type Segment struct {
	Name      string
	Anonymous bool
	Static    bool
}

// Chain describes the enclosing classes of a frame, outermost first.
type Chain struct {
	Package  string
	Segments []Segment
}

// ParseChain splits a '$' or '.' separated nested class name without package.
func ParseChain(className, packageName string) Chain {
	chain := Chain{Package: strings.TrimSpace(packageName)}
	className = strings.TrimSpace(className)
	if className == "" {
		return chain
	}
	for _, part := range strings.FieldsFunc(className, isSeparator) {
		chain.Segments = append(chain.Segments, Segment{Name: part, Anonymous: isAnonymousSegment(part)})
	}
	return chain
}

// ParseQualified splits a binary class name such as "pkg.Outer$Inner".
// The package ends at the last '.' before the first '$'; without a '$' the
// last dotted element is the class.
func ParseQualified(name string) Chain {
	name = strings.TrimSpace(name)
	head := name
	if idx := strings.IndexByte(name, '$'); idx >= 0 {
		head = name[:idx]
	}
	dot := strings.LastIndexByte(head, '.')
	if dot < 0 {
		return ParseChain(name, "")
	}
	return ParseChain(name[dot+1:], name[:dot])
}

// Depth returns the number of segments.
func (c Chain) Depth() int {
	return len(c.Segments)
}

// Separators returns the number of separators in the class name, which is
// the number of outer hops available from the innermost class.
func (c Chain) Separators() int {
	if len(c.Segments) == 0 {
		return 0
	}
	return len(c.Segments) - 1
}

// Anonymous reports whether any level is an anonymous class.
func (c Chain) Anonymous() bool {
	for _, seg := range c.Segments {
		if seg.Anonymous {
			return true
		}
	}
	return false
}

// WithStatic returns a copy with the level at index (outermost is 0) marked static.
func (c Chain) WithStatic(index int) Chain {
	out := c.clone()
	if index >= 0 && index < len(out.Segments) {
		out.Segments[index].Static = true
	}
	return out
}

// ClassName renders the nested name with '$' separators and no package.
func (c Chain) ClassName() string {
	parts := make([]string, len(c.Segments))
	for i, seg := range c.Segments {
		parts[i] = seg.Name
	}
	return strings.Join(parts, "$")
}

// BinaryName renders the package qualified binary name.
func (c Chain) BinaryName() string {
	if c.Package == "" {
		return c.ClassName()
	}
	return c.Package + "." + c.ClassName()
}

// TypeNameAt returns the source type name of the class hops levels out from
// the innermost one. Levels nested in an anonymous class have no source name.
func (c Chain) TypeNameAt(hops int) (TypeName, bool) {
	end := len(c.Segments) - hops
	if hops < 0 || end <= 0 {
		return TypeName{}, false
	}
	names := make([]string, 0, end)
	for _, seg := range c.Segments[:end] {
		if seg.Anonymous {
			return TypeName{}, false
		}
		names = append(names, seg.Name)
	}
	return TypeName{Package: c.Package, Names: names}, true
}

// ClassHops matches name against the chain on separator boundaries and
// returns the number of outer hops from the innermost class to the match.
// The rightmost match wins. "Foo" never matches inside "FooBar".
func (c Chain) ClassHops(name string) (int, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, false
	}
	class := c.ClassName()
	for end := len(class); end >= len(name); {
		idx := strings.LastIndex(class[:end], name)
		if idx < 0 {
			return 0, false
		}
		after := idx + len(name)
		leftOK := idx == 0 || isSeparator(rune(class[idx-1]))
		rightOK := after == len(class) || isSeparator(rune(class[after]))
		if leftOK && rightOK {
			return strings.Count(class[after:], "$"), true
		}
		end = idx + len(name) - 1
	}
	return 0, false
}

func (c Chain) clone() Chain {
	out := Chain{Package: c.Package}
	out.Segments = append([]Segment(nil), c.Segments...)
	return out
}

func isSeparator(r rune) bool {
	return r == '$' || r == '.'
}

func isAnonymousSegment(part string) bool {
	if part == "" {
		return false
	}
	_, err := strconv.Atoi(part)
	return err == nil
}

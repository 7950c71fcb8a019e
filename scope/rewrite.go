package scope

import (
	"context"
	"strings"
)

// Rewriter qualifies every bare identifier of an interaction that does not
// type-check as written. Unresolvable identifiers are left unchanged.
type Rewriter struct {
	resolver *Resolver
}

// NewRewriter returns a rewriter backed by resolver.
func NewRewriter(resolver *Resolver) *Rewriter {
	return &Rewriter{resolver: resolver}
}

// Rewrite returns src with bare references qualified and the number of
// references that were rewritten.
func (w *Rewriter) Rewrite(ctx context.Context, src string) (string, int, error) {
	toks := lex(src)
	declared := declaredNames(toks)
	cache := make(map[Ref]string)
	var out strings.Builder
	rewritten := 0
	for i := 0; i < len(toks); i++ {
		tok := toks[i]
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}
		if tok.kind != tokIdent || isKeyword(tok.text) || afterDot(toks, i) {
			out.WriteString(tok.text)
			continue
		}
		next := nextSignificant(toks, i)
		if _, ok := declared[tok.text]; ok && !isCall(toks, next) {
			out.WriteString(tok.text)
			continue
		}
		// Outer.this
		if next >= 0 && toks[next].text == "." {
			if after := nextSignificant(toks, next); after >= 0 && toks[after].text == "this" {
				if recv, ok := w.resolver.OuterInstance(ctx, tok.text); ok {
					out.WriteString(Render(recv))
					rewritten++
					i = after
					continue
				}
			}
		}
		// Type position: a class name followed by a declared variable.
		if next >= 0 && toks[next].kind == tokIdent && !isKeyword(toks[next].text) {
			if tn, ok := w.resolver.ClassName(tok.text); ok && len(tn.Names) > 1 {
				out.WriteString(Render(tn))
				rewritten++
			} else {
				out.WriteString(tok.text)
			}
			continue
		}
		ref := Ref{Name: tok.text, Kind: FieldRef}
		if isCall(toks, next) {
			ref = Ref{Name: tok.text, Kind: MethodRef, Args: callArgs(toks, next)}
		}
		replacement, ok := cache[ref]
		if !ok {
			replacement = tok.text
			expr, err := w.resolver.Resolve(ctx, ref)
			if err == nil {
				replacement = replacementText(expr, tok.text)
			}
			cache[ref] = replacement
		}
		if replacement != tok.text {
			rewritten++
		}
		out.WriteString(replacement)
	}
	return out.String(), rewritten, nil
}

// replacementText renders the part of expr that replaces the identifier.
// Call arguments stay in the token stream and are rewritten on their own.
func replacementText(expr Expr, ident string) string {
	switch v := expr.(type) {
	case Name:
		return v.Ident
	case Call:
		if v.Recv == nil {
			return v.Name
		}
		return Render(v.Recv) + "." + v.Name
	case Field, TypeName, This, OuterThis:
		return Render(expr)
	default:
		return ident
	}
}

// declaredNames collects identifiers declared by the interaction itself:
// an identifier preceded by a type and followed by '=', ';', ',', ':' or ')'.
func declaredNames(toks []token) map[string]struct{} {
	out := make(map[string]struct{})
	for i, tok := range toks {
		if tok.kind != tokIdent || isKeyword(tok.text) {
			continue
		}
		prev := prevSignificant(toks, i)
		next := nextSignificant(toks, i)
		if prev < 0 || next < 0 {
			continue
		}
		p := toks[prev]
		typeLike := (p.kind == tokIdent && !afterDot(toks, prev) && p.text != "return" && p.text != "new") ||
			p.text == ">" || p.text == "]"
		if !typeLike {
			continue
		}
		switch toks[next].text {
		case "=", ";", ",", ":", ")":
			out[tok.text] = struct{}{}
		}
	}
	return out
}

func afterDot(toks []token, i int) bool {
	prev := prevSignificant(toks, i)
	return prev >= 0 && (toks[prev].text == "." || toks[prev].text == "@")
}

func isCall(toks []token, next int) bool {
	return next >= 0 && toks[next].text == "("
}

// callArgs returns the raw source between the parenthesis at open and its
// matching close.
func callArgs(toks []token, open int) string {
	depth := 0
	var b strings.Builder
	for i := open; i < len(toks); i++ {
		switch toks[i].text {
		case "(":
			depth++
			if depth == 1 {
				continue
			}
		case ")":
			depth--
			if depth == 0 {
				return b.String()
			}
		}
		b.WriteString(toks[i].text)
	}
	return b.String()
}

func nextSignificant(toks []token, i int) int {
	for j := i + 1; j < len(toks); j++ {
		if toks[j].kind != tokSpace && toks[j].kind != tokComment {
			return j
		}
	}
	return -1
}

func prevSignificant(toks []token, i int) int {
	for j := i - 1; j >= 0; j-- {
		if toks[j].kind != tokSpace && toks[j].kind != tokComment {
			return j
		}
	}
	return -1
}

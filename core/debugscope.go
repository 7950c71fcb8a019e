package core

import (
	"context"

	"pkt.systems/jrepl/schema"
	"pkt.systems/jrepl/scope"
)

// evaluatorChecker type-checks candidates in the active debug interpreter.
// Candidates are compiled there, never run.
type evaluatorChecker struct {
	evaluator Evaluator
}

func (c evaluatorChecker) Check(ctx context.Context, e scope.Expr) error {
	return c.evaluator.CheckExpression(ctx, scope.Render(e))
}

// qualifyForDebug rewrites bare identifiers of source for the frame the
// debug interpreter is bound to. Any failure leaves source unchanged so
// the evaluator reports its own diagnostic.
func (o *Orchestrator) qualifyForDebug(ctx context.Context, interp schema.Interpreter, source string) string {
	checker := evaluatorChecker{evaluator: o.evaluator}
	chain := scope.ParseQualified(interp.EnclosingClass)
	hasThis := checker.Check(ctx, scope.This{}) == nil
	resolver := scope.NewResolver(chain, hasThis, checker, o.evaluator)
	out, n, err := scope.NewRewriter(resolver).Rewrite(ctx, source)
	if err != nil {
		o.logger.Debug("debug scope rewrite failed", "interpreter", interp.Name, "err", err)
		return source
	}
	if n > 0 {
		o.logger.Debug("debug scope rewrite", "interpreter", interp.Name, "rewritten", n)
	}
	return out
}

package evalmock

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dop251/goja"
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"

	"pkt.systems/jrepl/schema"
)

var errNotCallable = errors.New("not a method")

// parseExpression parses src as a single expression statement.
func parseExpression(src string) (ast.Expression, error) {
	prg, err := parser.ParseFile(nil, "", src, 0)
	if err != nil {
		return nil, err
	}
	if len(prg.Body) != 1 {
		return nil, fmt.Errorf("%w: not an expression", schema.ErrInvalidRequest)
	}
	stmt, ok := prg.Body[0].(*ast.ExpressionStatement)
	if !ok {
		return nil, fmt.Errorf("%w: not an expression", schema.ErrInvalidRequest)
	}
	return stmt.Expression, nil
}

// lookup resolves a name, member or literal against the global scope of vm.
// Nothing is called: call expressions are rejected.
func lookup(vm *goja.Runtime, expr ast.Expression) (goja.Value, error) {
	switch n := expr.(type) {
	case *ast.Identifier:
		v := vm.Get(string(n.Name))
		if v == nil {
			return nil, fmt.Errorf("%w: %s", schema.ErrUnknownVariable, n.Name)
		}
		return v, nil
	case *ast.ThisExpression:
		return vm.GlobalObject(), nil
	case *ast.DotExpression:
		recv, err := lookup(vm, n.Left)
		if err != nil {
			return nil, err
		}
		obj, ok := recv.(*goja.Object)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no members", schema.ErrUnknownVariable, recv.String())
		}
		v := obj.Get(string(n.Identifier.Name))
		if v == nil {
			return nil, fmt.Errorf("%w: %s", schema.ErrUnknownVariable, n.Identifier.Name)
		}
		return v, nil
	case *ast.StringLiteral:
		return vm.ToValue(n.Value.String()), nil
	case *ast.NumberLiteral:
		return vm.ToValue(n.Value), nil
	case *ast.BooleanLiteral:
		return vm.ToValue(n.Value), nil
	case *ast.NullLiteral:
		return goja.Null(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported expression", schema.ErrInvalidRequest)
	}
}

// check accepts expr when every name in it resolves and every call targets
// a function. Calls are checked, never made.
func check(vm *goja.Runtime, expr ast.Expression) error {
	call, ok := expr.(*ast.CallExpression)
	if !ok {
		_, err := lookup(vm, expr)
		return err
	}
	callee, err := lookup(vm, call.Callee)
	if err != nil {
		return err
	}
	if _, ok := goja.AssertFunction(callee); !ok {
		return fmt.Errorf("%w: %w", schema.ErrUnknownVariable, errNotCallable)
	}
	for _, arg := range call.ArgumentList {
		if err := check(vm, arg); err != nil {
			return err
		}
	}
	return nil
}

// idleActiveLocked returns the active interpreter when it is not running code.
// The caller holds e.mu.
func (e *Evaluator) idleActiveLocked() (*interpreter, error) {
	it, err := e.interpreterLocked(e.active)
	if err != nil {
		return nil, err
	}
	if it.busy {
		return nil, schema.ErrInterpreterBusy
	}
	return it, nil
}

// CheckExpression resolves expr on the active interpreter without
// evaluating it.
func (e *Evaluator) CheckExpression(_ context.Context, expr string) error {
	parsed, err := parseExpression(expr)
	if err != nil {
		return fmt.Errorf("%w: %s", schema.ErrUnknownVariable, expr)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	it, err := e.idleActiveLocked()
	if err != nil {
		return err
	}
	return check(it.vm, parsed)
}

// FieldNames lists the globals of the debug interpreter bound to
// className. The globals of a debug interpreter stand for the fields of
// the frame's this, including synthetic this$N and val$ fields.
func (e *Evaluator) FieldNames(_ context.Context, className string) ([]string, error) {
	if className == "" {
		return nil, fmt.Errorf("%w: empty class name", schema.ErrUnknownClass)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.interps == nil {
		return nil, schema.ErrEvaluatorUnavailable
	}
	var match *interpreter
	if it := e.interps[e.active]; it != nil && it.enclosingClass == className {
		match = it
	}
	for _, it := range e.interps {
		if match == nil && it.enclosingClass == className {
			match = it
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", schema.ErrUnknownClass, className)
	}
	if match.busy {
		return nil, schema.ErrInterpreterBusy
	}
	names := match.vm.GlobalObject().Keys()
	slices.Sort(names)
	return names, nil
}

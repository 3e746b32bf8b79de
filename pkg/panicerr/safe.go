// Package panicerr turns panics in background work into errors so one bad
// task list cannot take the process down.
package panicerr

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/panics"

	"github.com/kazz187/ganttguild/pkg/cerr"
)

// Safe runs fn and reports a panic as an Internal error carrying the
// panicking goroutine's stack.
func Safe(fn func() error) func() error {
	return func() error {
		return SafeContext(func(context.Context) error { return fn() })(context.Background())
	}
}

// SafeContext is Safe for functions that take a context.
func SafeContext(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		var (
			catcher panics.Catcher
			err     error
		)
		catcher.Try(func() {
			err = fn(ctx)
		})
		if r := catcher.Recovered(); r != nil {
			e := cerr.NewError(cerr.Internal, "internal error", fmt.Errorf("panic: %v", r.Value))
			e.Stack = string(r.Stack)
			return e
		}
		return err
	}
}

package runner

import (
	"context"
	"fmt"
	"runtime/debug"

	"forgerun/internal/summary"
)

// TaskPanicError reports a task that terminated abnormally.
type TaskPanicError struct {
	Task  string
	Value any
	Stack []byte
}

func (e *TaskPanicError) Error() string {
	return fmt.Sprintf("%s panicked: %v", e.Task, e.Value)
}

// Unwrap exposes a panic value that is itself an error.
func (e *TaskPanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// guard runs fn and turns a panic into a *TaskPanicError.
func guard[T any](name string, fn func() (T, error)) (res T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			res = zero
			err = &TaskPanicError{Task: name, Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// Task is the handle of one running test case.
type Task struct {
	name   string
	done   chan struct{}
	cancel context.CancelFunc
	res    summary.AnyTestSummary
	err    error
}

func spawn(ctx context.Context, name string, fn func(context.Context) (summary.AnyTestSummary, error)) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{name: name, done: make(chan struct{}), cancel: cancel}
	go func() {
		defer close(t.done)
		defer cancel()
		t.res, t.err = guard(name, func() (summary.AnyTestSummary, error) {
			return fn(ctx)
		})
	}()
	return t
}

// Name returns the test name.
func (t *Task) Name() string { return t.name }

// Done is closed when the task finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Cancel asks the task to stop. Trials already running finish on their own
// terms and report Interrupted.
func (t *Task) Cancel() { t.cancel() }

// Wait blocks until the task finished and returns its result.
func (t *Task) Wait() (summary.AnyTestSummary, error) {
	<-t.done
	return t.res, t.err
}

// Package mediator routes commands to their handlers through a pipeline of
// behaviours shared by every use case.
package mediator

import "context"

// Handler handles one command type and returns its payload.
type Handler[C, R any] interface {
	Handle(ctx context.Context, cmd C) (R, error)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc[C, R any] func(ctx context.Context, cmd C) (R, error)

func (f HandlerFunc[C, R]) Handle(ctx context.Context, cmd C) (R, error) {
	return f(ctx, cmd)
}

// Empty is the payload of commands that only report success or failure.
type Empty struct{}

// Request describes the command passing through the pipeline.
type Request struct {
	Name    string
	Command any
}

// Behavior wraps a command's handling. It must call next to continue the
// pipeline or return an error to stop it.
type Behavior func(ctx context.Context, req Request, next func(ctx context.Context) error) error

// Pipeline is an ordered list of behaviours. The first runs outermost.
type Pipeline struct {
	behaviors []Behavior
}

func NewPipeline(behaviors ...Behavior) *Pipeline {
	return &Pipeline{behaviors: behaviors}
}

// Wrap returns a Handler that runs cmd through the pipeline before h.
// A nil pipeline calls h directly.
func Wrap[C, R any](p *Pipeline, name string, h Handler[C, R]) Handler[C, R] {
	if p == nil || len(p.behaviors) == 0 {
		return h
	}

	return HandlerFunc[C, R](func(ctx context.Context, cmd C) (R, error) {
		var result R
		req := Request{Name: name, Command: cmd}

		next := func(ctx context.Context) error {
			var err error
			result, err = h.Handle(ctx, cmd)
			return err
		}
		for i := len(p.behaviors) - 1; i >= 0; i-- {
			b, inner := p.behaviors[i], next
			next = func(ctx context.Context) error {
				return b(ctx, req, inner)
			}
		}

		if err := next(ctx); err != nil {
			var zero R
			return zero, err
		}
		return result, nil
	})
}

// WrapFunc is Wrap for a handler method value, letting the compiler infer
// the command and result types.
func WrapFunc[C, R any](p *Pipeline, name string, fn func(ctx context.Context, cmd C) (R, error)) Handler[C, R] {
	return Wrap[C, R](p, name, HandlerFunc[C, R](fn))
}

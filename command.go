package scriptdesk

import "context"

// Commander executes a side effect for msg. Form submitters, dispatcher
// subscribers and scheduled jobs all share this contract.
type Commander[T any] interface {
	Execute(ctx context.Context, msg T) error
}

// CommandFunc adapts a plain function to Commander[T].
type CommandFunc[T any] func(ctx context.Context, msg T) error

func (f CommandFunc[T]) Execute(ctx context.Context, msg T) error {
	return f(ctx, msg)
}

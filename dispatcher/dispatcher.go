package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/goliatone/go-errors"
	scriptdesk "github.com/goliatone/go-scriptdesk"
	"github.com/goliatone/go-scriptdesk/logging"
)

// Typed is any message that names its dispatch key.
type Typed interface {
	Type() string
}

// Dispatcher fans messages out to the handlers subscribed to their type.
type Dispatcher struct {
	mu        sync.RWMutex
	handlers  map[string][]any
	ExitOnErr bool
	logger    logging.Logger
}

// Option defines the functional option signature.
type Option func(*Dispatcher)

// NewDispatcher applies the given options to a new instance of the dispatcher.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handlers:  make(map[string][]any),
		ExitOnErr: false,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.Normalize(d.logger)
	return d
}

// WithExitOnError stops dispatch at the first failing handler.
func WithExitOnError() Option {
	return func(d *Dispatcher) {
		d.ExitOnErr = true
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func (d *Dispatcher) RegisterHandler(msgType string, handler any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[msgType] = append(d.handlers[msgType], handler)
}

// GetHandlers returns a copy of the handlers registered for msgType.
func (d *Dispatcher) GetHandlers(msgType string) []any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]any(nil), d.handlers[msgType]...)
}

func (d *Dispatcher) HandlerCount(msgType string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[msgType])
}

type commandWrapper[T Typed] struct {
	cmd scriptdesk.Commander[T]
}

// Subscribe registers cmd for messages of type T.
func Subscribe[T Typed](d *Dispatcher, cmd scriptdesk.Commander[T]) Subscription {
	var msg T
	wrapper := &commandWrapper[T]{cmd: cmd}
	d.RegisterHandler(msg.Type(), wrapper)

	return &subscription{
		dispatcher: d,
		msgType:    msg.Type(),
		handler:    wrapper,
	}
}

func SubscribeFunc[T Typed](d *Dispatcher, fn func(ctx context.Context, msg T) error) Subscription {
	return Subscribe[T](d, scriptdesk.CommandFunc[T](fn))
}

// Dispatch runs every handler subscribed to T in subscription order.
// Having no subscribers is not an error.
func Dispatch[T Typed](ctx context.Context, d *Dispatcher, msg T) error {
	if err := scriptdesk.ValidateMessage(msg); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return errors.Wrap(ctx.Err(), errors.CategoryExternal, "context canceled or deadline exceeded").
			WithTextCode("CONTEXT_ERROR")
	}

	var errs error
	for _, h := range d.GetHandlers(msg.Type()) {
		cw, ok := h.(*commandWrapper[T])
		if !ok {
			errs = errors.Join(errs, fmt.Errorf("handler does not accept message type %s", msg.Type()))
			continue
		}
		if err := d.run(ctx, cw, msg.Type(), msg); err != nil {
			if d.ExitOnErr {
				return errors.Wrap(err, errors.CategoryHandler, fmt.Sprintf("handler failed for type %s", msg.Type())).
					WithTextCode("HANDLER_EXECUTION_FAILED")
			}
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

type handler interface {
	execute(ctx context.Context, msg any) error
}

func (d *Dispatcher) run(ctx context.Context, h handler, msgType string, msg any) (err error) {
	defer scriptdesk.Recover("dispatcher.Dispatch", map[string]any{
		"message_type": msgType,
	}, func(perr error) {
		d.logger.Error("%s", perr.Error())
		err = perr
	})
	return h.execute(ctx, msg)
}

func (c *commandWrapper[T]) execute(ctx context.Context, msg any) error {
	return c.cmd.Execute(ctx, msg.(T))
}

package dispatcher

import "sync"

// Subscription detaches one handler. Unsubscribe is safe to call more than once.
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	dispatcher *Dispatcher
	msgType    string
	handler    any
	once       sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.dispatcher.removeHandler(s.msgType, s.handler)
	})
}

// removeHandler drops handler from msgType, forgetting the type once it has
// no handlers left.
func (d *Dispatcher) removeHandler(msgType string, handler any) {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.handlers[msgType][:0:0]
	for _, h := range d.handlers[msgType] {
		if h != handler {
			kept = append(kept, h)
		}
	}
	if len(kept) == 0 {
		delete(d.handlers, msgType)
		return
	}
	d.handlers[msgType] = kept
}

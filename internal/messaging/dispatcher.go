package messaging

// Handler receives events of the category it was registered for.
// Handlers must not fail loudly; they guard internally and decline to act.
type Handler func(event Event)

// Dispatcher is a synchronous publish/subscribe router.
//
// Notify runs every handler of the category in registration order before
// returning. Handlers may call Notify again; nested events are delivered
// depth-first. The subscription graph is acyclic by construction, so the
// recursion is bounded. A Dispatcher is not safe for concurrent use: it is
// owned by the loop goroutine.
type Dispatcher struct {
	listeners [eventTypeCount][]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Listen registers handler for every event published under eventType.
func (d *Dispatcher) Listen(eventType EventType, handler Handler) {
	if eventType >= eventTypeCount || handler == nil {
		return
	}

	d.listeners[eventType] = append(d.listeners[eventType], handler)
}

// Notify delivers event to all handlers of eventType.
func (d *Dispatcher) Notify(eventType EventType, event Event) {
	if eventType >= eventTypeCount {
		return
	}

	// Snapshot der Liste, damit Listen() aus einem Handler die Iteration nicht stört
	handlers := d.listeners[eventType]
	for _, handler := range handlers {
		handler(event)
	}
}

// ListenerCount returns the number of handlers registered for eventType.
func (d *Dispatcher) ListenerCount(eventType EventType) int {
	if eventType >= eventTypeCount {
		return 0
	}
	return len(d.listeners[eventType])
}

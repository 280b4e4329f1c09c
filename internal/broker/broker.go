package broker

type publication[TID comparable, TPayload any] struct {
	ID      TID
	Payload TPayload
}

type subscription[TID comparable, TPayload any] struct {
	ID      TID
	Channel chan TPayload
}

// Broker fans payloads published under an ID out to every subscriber of that ID.
//
// Delivery is latest-wins: each subscriber channel holds at most one payload and a newer payload replaces an
// unread older one. This suits state snapshots streamed over SSE where a slow client only cares about the
// current state. New subscribers immediately receive the latest payload of the ID if there is one.
//
// All bookkeeping happens on the goroutine running Start, so the broker needs no locks.
type Broker[TID comparable, TPayload any] struct {
	stopChannel        chan struct{}
	publishChannel     chan publication[TID, TPayload]
	subscribeChannel   chan subscription[TID, TPayload]
	unsubscribeChannel chan subscription[TID, TPayload]
	forgetChannel      chan TID
}

// New creates a new Broker. Run Start in a goroutine and use Stop to stop it.
func New[TID comparable, TPayload any]() *Broker[TID, TPayload] {
	return &Broker[TID, TPayload]{
		stopChannel:        make(chan struct{}),
		publishChannel:     make(chan publication[TID, TPayload]),
		subscribeChannel:   make(chan subscription[TID, TPayload]),
		unsubscribeChannel: make(chan subscription[TID, TPayload]),
		forgetChannel:      make(chan TID),
	}
}

// Start listening for publish, subscribe, unsubscribe, and forget events. This function blocks until Stop() is
// called, so it should be called in a goroutine. It does not handle panics, so it should be wrapped in a recover.
func (b *Broker[TID, TPayload]) Start() {
	latest := map[TID]TPayload{}
	subscribers := map[TID]map[chan TPayload]struct{}{}
	for {
		select {
		case <-b.stopChannel:
			for _, channels := range subscribers {
				for c := range channels {
					close(c)
				}
			}
			return

		case s := <-b.subscribeChannel:
			if subscribers[s.ID] == nil {
				subscribers[s.ID] = map[chan TPayload]struct{}{}
			}
			subscribers[s.ID][s.Channel] = struct{}{}
			if payload, ok := latest[s.ID]; ok {
				deliver(s.Channel, payload)
			}

		case s := <-b.unsubscribeChannel:
			if _, ok := subscribers[s.ID][s.Channel]; ok {
				delete(subscribers[s.ID], s.Channel)
				close(s.Channel)
			}
			if len(subscribers[s.ID]) == 0 {
				delete(subscribers, s.ID)
			}

		case p := <-b.publishChannel:
			latest[p.ID] = p.Payload
			for c := range subscribers[p.ID] {
				deliver(c, p.Payload)
			}

		case id := <-b.forgetChannel:
			delete(latest, id)
			for c := range subscribers[id] {
				close(c)
			}
			delete(subscribers, id)
		}
	}
}

// deliver replaces an unread payload. The broker goroutine is the only sender so the final send never blocks.
func deliver[TPayload any](c chan TPayload, payload TPayload) {
	select {
	case c <- payload:
	default:
		select {
		case <-c:
		default:
		}
		c <- payload
	}
}

// Stop the goroutine that handles the broker. Open subscriber channels are closed.
func (b *Broker[TID, TPayload]) Stop() {
	close(b.stopChannel)
}

// Subscribe to payloads published under id. The returned channel is closed after unsubscribe is called, when
// the ID is forgotten, or when the broker stops. Calling unsubscribe more than once is fine.
func (b *Broker[TID, TPayload]) Subscribe(id TID) (<-chan TPayload, func()) {
	s := subscription[TID, TPayload]{ID: id, Channel: make(chan TPayload, 1)}
	select {
	case b.subscribeChannel <- s:
	case <-b.stopChannel:
		close(s.Channel)
		return s.Channel, func() {}
	}
	unsubscribe := func() {
		select {
		case b.unsubscribeChannel <- s:
		case <-b.stopChannel:
		}
	}
	return s.Channel, unsubscribe
}

// Publish payload under id. It is a no-op after Stop.
func (b *Broker[TID, TPayload]) Publish(id TID, payload TPayload) {
	select {
	case b.publishChannel <- publication[TID, TPayload]{ID: id, Payload: payload}:
	case <-b.stopChannel:
	}
}

// Forget drops the latest payload of id and closes its subscriber channels.
func (b *Broker[TID, TPayload]) Forget(id TID) {
	select {
	case b.forgetChannel <- id:
	case <-b.stopChannel:
	}
}

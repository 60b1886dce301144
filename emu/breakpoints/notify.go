package breakpoints

import "sync"

type observer struct {
	id int
	fn func()
}

// notifier delivers the "collection changed" signal. Inside a batch, the
// signal is held back and delivered once when the outermost batch ends.
type notifier struct {
	mu        sync.Mutex
	observers []observer
	nextID    int
	depth     int
	pending   bool
}

func (n *notifier) subscribe(fn func()) (cancel func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.observers = append(n.observers, observer{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			for i, o := range n.observers {
				if o.id == id {
					n.observers = append(n.observers[:i:i], n.observers[i+1:]...)
					return
				}
			}
		})
	}
}

func (n *notifier) changed() {
	n.mu.Lock()
	if n.depth > 0 {
		n.pending = true
		n.mu.Unlock()
		return
	}
	obs := n.observers
	n.mu.Unlock()

	fire(obs)
}

func (n *notifier) begin() (end func()) {
	n.mu.Lock()
	n.depth++
	n.mu.Unlock()

	var once sync.Once
	return func() { once.Do(n.end) }
}

func (n *notifier) end() {
	n.mu.Lock()
	n.depth--
	if n.depth > 0 || !n.pending {
		n.mu.Unlock()
		return
	}
	n.pending = false
	obs := n.observers
	n.mu.Unlock()

	fire(obs)
}

// fire calls observers outside of the notifier lock, so that they can query
// the registry or subscribe/unsubscribe.
func fire(obs []observer) {
	for _, o := range obs {
		o.fn()
	}
}

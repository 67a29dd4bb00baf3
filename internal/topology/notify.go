package topology

import (
	"log"
)

type registration struct {
	id ListenerID
	l  PropertyListener
}

// delivery is one event bound to the listeners registered when it was
// produced.
type delivery struct {
	ev PropertyChange
	to []PropertyListener
}

// notifier is guarded by the owning service's mutex.
type notifier struct {
	size      int
	nextID    ListenerID
	listeners []registration
	queue     []delivery
	draining  bool
}

func (n *notifier) add(l PropertyListener) ListenerID {
	n.nextID++
	n.listeners = append(n.listeners, registration{id: n.nextID, l: l})
	return n.nextID
}

func (n *notifier) remove(id ListenerID) bool {
	for i, r := range n.listeners {
		if r.id == id {
			n.listeners = append(n.listeners[:i:i], n.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// enqueue reports the event dropped to make room, if any.
func (n *notifier) enqueue(ev PropertyChange) (PropertyChange, bool) {
	if len(n.listeners) == 0 {
		return PropertyChange{}, false
	}
	to := make([]PropertyListener, len(n.listeners))
	for i, r := range n.listeners {
		to[i] = r.l
	}

	var (
		dropped PropertyChange
		full    bool
	)
	if len(n.queue) >= n.size {
		dropped, full = n.queue[0].ev, true
		n.queue[0] = delivery{}
		n.queue = n.queue[1:]
	}
	n.queue = append(n.queue, delivery{ev: ev, to: to})
	return dropped, full
}

// next pops the oldest queued delivery.
func (n *notifier) next() (delivery, bool) {
	if len(n.queue) == 0 {
		return delivery{}, false
	}
	d := n.queue[0]
	n.queue[0] = delivery{}
	n.queue = n.queue[1:]
	return d, true
}

func deliver(name string, d delivery) {
	for _, l := range d.to {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[%s] property listener panicked on %s: %v", name, d.ev.Property, r)
				}
			}()
			l.PropertyChanged(d.ev)
		}()
		notificationsTotal.WithLabelValues(d.ev.Property).Inc()
	}
}

// Package events provides synchronous typed publish/subscribe channels.
package events

// Handle identifies one subscription on a Channel.
type Handle int

type subscriber[T any] struct {
	handle Handle
	fn     func(T)
}

// Channel delivers values of one type to its subscribers.
//
// Publish runs every subscriber synchronously on the caller's goroutine, in
// subscription order. There is no queueing and no locking: a Channel belongs
// to a single processing loop. Subscriptions added or removed while a
// publication is running take effect from the next publication.
type Channel[T any] struct {
	subs []subscriber[T]
	next Handle
}

// Subscribe registers fn and returns the handle to unsubscribe it with.
// A nil fn is ignored and yields handle -1.
func (c *Channel[T]) Subscribe(fn func(T)) Handle {
	if fn == nil {
		return -1
	}
	c.next++
	h := c.next
	subs := make([]subscriber[T], len(c.subs), len(c.subs)+1)
	copy(subs, c.subs)
	c.subs = append(subs, subscriber[T]{handle: h, fn: fn})
	return h
}

// Unsubscribe removes the subscription and reports whether it existed.
func (c *Channel[T]) Unsubscribe(h Handle) bool {
	for i, s := range c.subs {
		if s.handle != h {
			continue
		}
		subs := make([]subscriber[T], 0, len(c.subs)-1)
		subs = append(subs, c.subs[:i]...)
		subs = append(subs, c.subs[i+1:]...)
		c.subs = subs
		return true
	}
	return false
}

// Publish delivers v to every current subscriber.
func (c *Channel[T]) Publish(v T) {
	// c.subs is never mutated in place, so this slice stays stable even if a
	// subscriber changes the subscription list.
	subs := c.subs
	for _, s := range subs {
		s.fn(v)
	}
}

// Len returns the number of live subscriptions.
func (c *Channel[T]) Len() int {
	return len(c.subs)
}

// Reset drops every subscription.
func (c *Channel[T]) Reset() {
	c.subs = nil
}

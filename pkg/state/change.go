package state

// Change describes a mutation delivered to subscribers.
// OldPresent/NewPresent distinguish an absent value from a stored nil.
type Change struct {
	Key        string
	Old        any
	OldPresent bool
	New        any
	NewPresent bool
}

// Deleted reports whether the change removed the key.
func (c Change) Deleted() bool {
	return !c.NewPresent
}

// Callback receives changes for a subscribed key.
type Callback func(Change)

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	key string
	id  uint64
}

// Key returns the key the subscription observes.
func (s Subscription) Key() string {
	return s.key
}

type subscriber struct {
	id uint64
	fn Callback
}

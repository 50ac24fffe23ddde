package module

// Notifier wakes a worker routine when new work arrives. Notifications are
// coalesced: any number of Notify calls made while nobody is listening leave
// exactly one pending notification. A Notifier may be copied by value; all
// copies share the same channel.
type Notifier struct {
	notifier chan struct{} // buffered, capacity 1
}

// NewNotifier returns a Notifier with no pending notification.
func NewNotifier() Notifier {
	return Notifier{make(chan struct{}, 1)}
}

// Notify leaves a notification pending. It never blocks.
func (n Notifier) Notify() {
	select {
	case n.notifier <- struct{}{}:
	default:
	}
}

// Channel returns the channel on which notifications are received.
func (n Notifier) Channel() <-chan struct{} {
	return n.notifier
}

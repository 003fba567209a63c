package app

// notifier coalesces change signals into a single pending wake-up.
type notifier struct {
	ch chan struct{}
}

func newNotifier() *notifier {
	return &notifier{ch: make(chan struct{}, 1)}
}

// Notify records a change without blocking.
func (n *notifier) Notify() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

// C returns the receive side.
func (n *notifier) C() <-chan struct{} {
	return n.ch
}

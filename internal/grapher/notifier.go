package grapher

import "sync"

// FailureNotifier is an explicit one-shot failure signal: owned by main,
// passed by reference into the broker connection's close watcher and the
// consumer loop. Closing the channel exactly once (guarded by sync.Once) is
// how either tells the main loop to terminate the process for supervised
// restart. There is no separate DB connection watcher: a DB failure fires
// the notifier only when it surfaces as a transient error while the
// consumer is persisting a result.
type FailureNotifier struct {
	ch   chan struct{}
	once sync.Once
}

// NewFailureNotifier returns a ready-to-use notifier.
func NewFailureNotifier() *FailureNotifier {
	return &FailureNotifier{ch: make(chan struct{})}
}

// Fire closes the underlying channel exactly once. Safe to call
// concurrently and repeatedly.
func (n *FailureNotifier) Fire() {
	n.once.Do(func() { close(n.ch) })
}

// Done returns a channel that is closed once Fire has been called.
func (n *FailureNotifier) Done() <-chan struct{} {
	return n.ch
}

// Ready reports whether the notifier has NOT fired yet, satisfying
// httpapi.Checker for the /healthz surface.
func (n *FailureNotifier) Ready() bool {
	select {
	case <-n.ch:
		return false
	default:
		return true
	}
}

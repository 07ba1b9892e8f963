package state

import "sync"

// Observable is the part of a Container that CombineLatest needs: the
// ability to watch for changes without caring about the value type.
type Observable interface {
	Notify(fn func()) func()
}

// CombineLatest invokes handler once immediately and again after every
// flush in which any of the sources changed. The handler reads whatever
// snapshots it needs from the sources it already holds typed references to.
//
// Handler invocations are not serialized against each other; a handler that
// starts asynchronous work must guard re-entry itself.
func CombineLatest(handler func(), sources ...Observable) func() {
	cancels := make([]func(), 0, len(sources))
	for _, src := range sources {
		cancels = append(cancels, src.Notify(handler))
	}

	handler()

	var once sync.Once
	return func() {
		once.Do(func() {
			for _, cancel := range cancels {
				cancel()
			}
		})
	}
}

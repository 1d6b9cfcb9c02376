package repository

import (
	"silent-auction/internal/docstore"
	"silent-auction/utils"
)

// Feed is a typed view over a store subscription. Updates delivers the
// decoded result set after every change; after Cancel returns nothing more
// is delivered and the channel is closed.
type Feed[T any] struct {
	sub  *docstore.Subscription
	out  chan T
	done chan struct{}
}

func newFeed[T any](sub *docstore.Subscription, decode func([]docstore.Document) (T, error)) *Feed[T] {
	f := &Feed[T]{sub: sub, out: make(chan T), done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer close(f.out)
		for snap := range sub.Snapshots() {
			v, err := decode(snap.Docs)
			if err != nil {
				utils.Warn("repository: dropping undecodable snapshot", map[string]any{
					"collection": snap.Query.Collection,
					"error":      err.Error(),
				})
				continue
			}
			select {
			case f.out <- v:
			case <-sub.Done():
				return
			}
		}
	}()
	return f
}

// NewStaticFeed returns a feed that delivers the given values and then waits
// for Cancel. It backs mocks and tests that need a Feed without a store.
func NewStaticFeed[T any](values ...T) *Feed[T] {
	f := &Feed[T]{out: make(chan T, len(values)), done: make(chan struct{})}
	for _, v := range values {
		f.out <- v
	}
	return f
}

func (f *Feed[T]) Updates() <-chan T { return f.out }

// Done is closed once the feed has stopped
func (f *Feed[T]) Done() <-chan struct{} { return f.done }

// Cancel stops the feed and waits until delivery has ended
func (f *Feed[T]) Cancel() {
	if f.sub == nil {
		select {
		case <-f.done:
		default:
			close(f.done)
			close(f.out)
		}
		return
	}
	f.sub.Cancel()
	<-f.done
}

package events

import (
	"sync"
	"time"

	"github.com/cuemby/firestash/pkg/store"
)

// ChangeKind distinguishes the write operation that produced a Record.
type ChangeKind int

const (
	Created ChangeKind = iota
	Updated
	Deleted
)

// Record is one document's before/after state at a single commit, the
// shape both the listen reactor and the trigger router consume.
type Record struct {
	Path       string
	Kind       ChangeKind
	Before     store.Document // Exists=false if the document did not exist before this commit
	After      store.Document // Exists=false if this commit deleted it
	CommitTime time.Time
}

// ChangeBatch is every document change produced by one write-pipeline
// commit, delivered to subscribers as a single unit so downstream
// consumers see commits in order and never split across a batch.
type ChangeBatch struct {
	CommitTime time.Time
	Records    []Record
}

// Subscriber is a channel that receives change batches in commit order.
type Subscriber chan *ChangeBatch

// Broker distributes committed change batches to every live subscriber,
// in the order batches are published. Unlike a best-effort cluster event
// bus, broadcast blocks on a full subscriber buffer instead of dropping:
// a missed commit would silently desynchronize a listener's view of the
// store.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	batchCh     chan *ChangeBatch
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker creates a new change-batch broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		batchCh:     make(chan *ChangeBatch, 256),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker. Safe to call more than once.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe creates a new subscription and returns its channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 256)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[sub] {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish enqueues batch for distribution, preserving publish order.
func (b *Broker) Publish(batch *ChangeBatch) {
	select {
	case b.batchCh <- batch:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case batch := <-b.batchCh:
			b.broadcast(batch)
		case <-b.stopCh:
			return
		}
	}
}

// broadcast delivers batch to every subscriber, blocking on a full
// subscriber buffer rather than skipping it, to preserve commit order.
func (b *Broker) broadcast(batch *ChangeBatch) {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.subscribers))
	for sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub <- batch:
		case <-b.stopCh:
			return
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

package bridge

import (
	"math/big"
	"sync"
)

// QueueFabric is an in-process Fabric that parks dispatched envelopes until
// they are delivered to a receiver. It models the asymmetric, fire-and-forget
// transport: send-side success never depends on receive-side validation.
type QueueFabric struct {
	mu      sync.Mutex
	fee     *big.Int
	pending []*SignedEnvelope
}

// NewQueueFabric constructs a fabric charging the given fee per dispatch.
func NewQueueFabric(fee *big.Int) *QueueFabric {
	if fee == nil {
		fee = big.NewInt(0)
	}
	return &QueueFabric{fee: new(big.Int).Set(fee)}
}

// Fee implements Fabric.
func (f *QueueFabric) Fee() *big.Int {
	return new(big.Int).Set(f.fee)
}

// Dispatch implements Fabric by queueing the envelope.
func (f *QueueFabric) Dispatch(env *SignedEnvelope) error {
	if env == nil {
		return errNilEnvelope
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, env)
	return nil
}

// Pending reports the number of undelivered envelopes.
func (f *QueueFabric) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Drain removes and returns every queued envelope. Callers that own the
// destination endpoint behind another serialization layer use this instead of
// Deliver.
func (f *QueueFabric) Drain() []*SignedEnvelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	queued := f.pending
	f.pending = nil
	return queued
}

// Deliver drains the queue into the receiver. Rejected envelopes are dropped
// after delivery, mirroring the real fabric's lack of sender notification;
// the rejection errors are returned for operators.
func (f *QueueFabric) Deliver(receiver *Receiver) []error {
	f.mu.Lock()
	queued := f.pending
	f.pending = nil
	f.mu.Unlock()

	var rejections []error
	for _, env := range queued {
		if err := receiver.Receive(env); err != nil {
			rejections = append(rejections, err)
		}
	}
	return rejections
}

// Package bus defines the multi-tenant pub/sub contract fleetsign rides on:
// the subject scheme, the transport-agnostic Bus interface and the per-tenant
// scoping guard. Delivery itself is an external at-least-once primitive
// (membus in-process, redisbus over Redis pub/sub); subject ACLs are enforced
// by the bus deployment, this package just refuses to construct or touch a
// subject outside the owning tenant's prefix.
package bus

import (
	"context"
	"errors"
)

// ErrClosed is returned on operations against a closed bus or subscription.
var ErrClosed = errors.New("bus: closed")

// Message is a single delivery.
type Message struct {
	Subject string
	Payload []byte
}

// Subscription is a live subject subscription. Messages arrive on C until
// Unsubscribe is called or the bus closes, after which C is closed.
type Subscription interface {
	C() <-chan Message
	Unsubscribe() error
}

// Bus is the pub/sub transport. Implementations must be safe for concurrent
// use. Delivery is at-least-once; consumers must tolerate duplicates.
type Bus interface {
	Publish(ctx context.Context, subject string, payload []byte) error
	Subscribe(ctx context.Context, subject string) (Subscription, error)
	Close() error
}

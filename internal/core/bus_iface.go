package core

import "context"

// EnvelopeBus relays frames between gateway instances. A frame published for
// a gateway ID is handed to that gateway's subscriber; broadcast frames reach
// every gateway. Delivery is best-effort, matching the routing tier it serves.
type EnvelopeBus interface {
	Publish(ctx context.Context, gatewayID string, f Frame) error
	PublishBroadcast(ctx context.Context, f Frame) error
	// Subscribe starts delivering frames addressed to gatewayID (and all
	// broadcast frames) to fn until the bus is closed.
	Subscribe(ctx context.Context, gatewayID string, fn func(Frame)) error
	Close() error
}

package events

import "context"

// Event topic constants
const (
	TopicTicketRedeemed    = "emissions.ticket.redeemed"
	TopicConfigInitialized = "emissions.config.initialized"
)

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (standalone) or NATS (pro). Publishing a scoring
// decision is fire-and-forget; a slow or absent consumer never blocks or
// fails the scoring call.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings
	ChannelBufferSize int

	// NATS settings (pro tier)
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Standard topic names.
const (
	// TopicDecision carries every scoring outcome.
	TopicDecision = "riskd.decision"

	// TopicAlert carries MANUAL_REVIEW and REJECT outcomes only.
	TopicAlert = "riskd.alert"

	// TopicChargebackReceived carries inbound chargebacks for async
	// ingestion into the ledger.
	TopicChargebackReceived = "riskd.chargeback.received"
)

// DecisionEvent is the payload published on TopicDecision and TopicAlert.
type DecisionEvent struct {
	TransactionID     string `json:"transaction_id"`
	RiskScore         int    `json:"risk_score"`
	RiskLevel         string `json:"risk_level"`
	RecommendedAction string `json:"recommended_action"`
	ScoredAt          string `json:"scored_at"`
}

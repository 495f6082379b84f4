package bus

import (
	"fmt"

	"github.com/verdantgoods/riskd/internal/domain"
)

// New creates an event bus from configuration. Standalone deployments
// use the in-process ChannelBus; multi-process deployments use NATS.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

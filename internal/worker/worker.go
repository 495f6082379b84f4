// Package worker provides async ingestion of bus-delivered events.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/verdantgoods/riskd/internal/chargeback"
	"github.com/verdantgoods/riskd/internal/domain"
	"github.com/verdantgoods/riskd/internal/validation"
)

// Worker consumes chargeback events from the EventBus and records them
// in the ledger. External dispute feeds publish onto the bus; scoring
// traffic never waits on them.
type Worker struct {
	bus      domain.EventBus
	analyzer *chargeback.Analyzer

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates an ingest worker.
func NewWorker(bus domain.EventBus, analyzer *chargeback.Analyzer) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		analyzer: analyzer,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to the chargeback topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicChargebackReceived, w.handleChargeback)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("chargeback ingest worker started",
		"topic", domain.TopicChargebackReceived,
	)
	return nil
}

// handleChargeback validates and records one bus-delivered chargeback.
// Bus payloads bypass the HTTP boundary, so validation happens here.
func (w *Worker) handleChargeback(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var req domain.ChargebackRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse chargeback message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if err := validation.ValidateStruct(&req); err != nil {
		slog.Warn("dropping invalid chargeback message",
			"message_id", msg.ID,
			"transaction_id", req.TransactionID,
			"error", err,
		)
		return err
	}

	cb, err := w.analyzer.Record(ctx, &req)
	if err != nil {
		slog.Error("failed to record chargeback",
			"message_id", msg.ID,
			"transaction_id", req.TransactionID,
			"error", err,
		)
		return err
	}

	slog.Debug("chargeback ingested",
		"chargeback_id", cb.ID,
		"transaction_id", cb.TransactionID,
		"reason_code", cb.ReasonCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("chargeback ingest worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscription_count"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}

package worker

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/verdantgoods/riskd/internal/bus"
	"github.com/verdantgoods/riskd/internal/chargeback"
	"github.com/verdantgoods/riskd/internal/domain"
	"github.com/verdantgoods/riskd/internal/repository"
)

func newTestWorker(t *testing.T) (*Worker, *bus.ChannelBus, domain.Repository) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "riskd-worker-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpFile.Name(),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	return NewWorker(eventBus, chargeback.NewAnalyzer(repo)), eventBus, repo
}

// waitForLedger polls until the ledger holds want rows or the deadline
// passes.
func waitForLedger(t *testing.T, repo domain.Repository, want int) []*domain.Chargeback {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		rows, err := repo.ListChargebacks(context.Background(), "", "")
		if err != nil {
			t.Fatalf("ListChargebacks failed: %v", err)
		}
		if len(rows) == want || time.Now().After(deadline) {
			return rows
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func sampleChargebackPayload(id string) []byte {
	payload, _ := json.Marshal(domain.ChargebackRequest{
		ID:              id,
		TransactionID:   "txn-feed-001",
		TransactionDate: "2025-04-01",
		ChargebackDate:  "2025-05-20",
		Amount:          249.99,
		Country:         "BR",
		ProductCategory: "electronics",
		ReasonCode:      "FRAUD",
		Email:           "dispute@example.com",
		CardBIN:         "510510",
	})
	return payload
}

func TestWorkerStartAndStop(t *testing.T) {
	worker, _, _ := newTestWorker(t)

	if err := worker.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stats := worker.GetStats()
	if stats.SubscriptionCount != 1 {
		t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
	}
	if len(stats.Topics) != 1 || stats.Topics[0] != domain.TopicChargebackReceived {
		t.Errorf("expected topic %s, got %v", domain.TopicChargebackReceived, stats.Topics)
	}

	if err := worker.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}

	stats = worker.GetStats()
	if stats.SubscriptionCount != 0 {
		t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
	}
}

func TestWorkerIngestsChargeback(t *testing.T) {
	worker, eventBus, repo := newTestWorker(t)

	if err := worker.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer worker.Stop()

	// Allow the subscription to be active
	time.Sleep(20 * time.Millisecond)

	err := eventBus.Publish(context.Background(), domain.TopicChargebackReceived, sampleChargebackPayload(""))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	rows := waitForLedger(t, repo, 1)
	if len(rows) != 1 {
		t.Fatalf("expected 1 chargeback in ledger, got %d", len(rows))
	}
	cb := rows[0]
	if cb.ID == "" {
		t.Error("expected an assigned id")
	}
	if cb.TransactionID != "txn-feed-001" || cb.ReasonCode != "FRAUD" {
		t.Errorf("unexpected stored chargeback: %+v", cb)
	}
	if cb.Currency != "USD" {
		t.Errorf("currency = %s, want USD default", cb.Currency)
	}
}

func TestWorkerDropsInvalidMessages(t *testing.T) {
	worker, eventBus, repo := newTestWorker(t)

	if err := worker.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer worker.Stop()

	time.Sleep(20 * time.Millisecond)

	ctx := context.Background()

	// Not JSON at all.
	eventBus.Publish(ctx, domain.TopicChargebackReceived, []byte("not json"))

	// Well-formed JSON that fails validation.
	invalid, _ := json.Marshal(domain.ChargebackRequest{
		TransactionID:   "txn-feed-bad",
		TransactionDate: "2025-04-01",
		ChargebackDate:  "2025-05-20",
		Amount:          10,
		Country:         "BR",
		ProductCategory: "electronics",
		ReasonCode:      "SOMETHING_ELSE",
		Email:           "dispute@example.com",
		CardBIN:         "510510",
	})
	eventBus.Publish(ctx, domain.TopicChargebackReceived, invalid)

	// Then one valid message; only it should land.
	eventBus.Publish(ctx, domain.TopicChargebackReceived, sampleChargebackPayload(""))

	rows := waitForLedger(t, repo, 1)
	if len(rows) != 1 {
		t.Fatalf("expected only the valid chargeback, got %d rows", len(rows))
	}
	if rows[0].TransactionID != "txn-feed-001" {
		t.Errorf("unexpected stored chargeback: %+v", rows[0])
	}
}

func TestWorkerDuplicateDeliveryIsIdempotent(t *testing.T) {
	worker, eventBus, repo := newTestWorker(t)

	if err := worker.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer worker.Stop()

	time.Sleep(20 * time.Millisecond)

	ctx := context.Background()
	payload := sampleChargebackPayload("cb-feed-42")

	eventBus.Publish(ctx, domain.TopicChargebackReceived, payload)
	eventBus.Publish(ctx, domain.TopicChargebackReceived, payload)

	waitForLedger(t, repo, 1)

	// Give the second delivery time to land before asserting.
	time.Sleep(100 * time.Millisecond)
	rows, err := repo.ListChargebacks(ctx, "", "")
	if err != nil {
		t.Fatalf("ListChargebacks failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row after duplicate delivery, got %d", len(rows))
	}
	if rows[0].ID != "cb-feed-42" {
		t.Errorf("id = %s, want cb-feed-42", rows[0].ID)
	}
}

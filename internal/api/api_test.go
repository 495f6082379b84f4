package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/verdantgoods/riskd/internal/cache"
	"github.com/verdantgoods/riskd/internal/chargeback"
	"github.com/verdantgoods/riskd/internal/domain"
	"github.com/verdantgoods/riskd/internal/repository"
	"github.com/verdantgoods/riskd/internal/rules"
	"github.com/verdantgoods/riskd/internal/scoring"
	"github.com/verdantgoods/riskd/internal/velocity"
)

// createTestServer wires a full server over a temp SQLite file so
// requests exercise the real scoring and analysis paths.
func createTestServer(t *testing.T) (*Server, domain.Repository) {
	t.Helper()

	f, err := os.CreateTemp("", "riskd-api-*.db")
	if err != nil {
		t.Fatalf("failed to create temp db: %v", err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: f.Name(),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	vel := velocity.NewService(repo)
	engine := rules.NewEngine(vel.EmailCount)
	ruleStore := rules.NewStore(repo, cache.NewLRUCache(100), time.Minute)
	scorer := scoring.NewScorer(repo, vel, ruleStore, engine, nil)
	analyzer := chargeback.NewAnalyzer(repo)

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	return NewServer(cfg, scorer, analyzer, ruleStore, repo, "test-v1"), repo
}

func doJSON(t *testing.T, server *Server, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Buffer
	switch v := payload.(type) {
	case nil:
		body = bytes.NewBuffer(nil)
	case string:
		body = bytes.NewBufferString(v)
	default:
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewBuffer(raw)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
}

func scorePayload(id string) map[string]interface{} {
	return map[string]interface{}{
		"transaction_id":    id,
		"email":             "maria.santos@example.com",
		"card_bin":          "411111",
		"card_last_four":    "1111",
		"amount":            85.50,
		"currency":          "USD",
		"billing_country":   "US",
		"shipping_country":  "US",
		"ip_country":        "US",
		"product_category":  "apparel",
		"is_first_purchase": false,
	}
}

type validationResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

func TestScoreEndpoint(t *testing.T) {
	server, _ := createTestServer(t)

	t.Run("QuietTransactionApproved", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/api/v1/transactions/score", scorePayload("txn-api-001"))

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp domain.Assessment
		decodeBody(t, rr, &resp)

		if resp.TransactionID != "txn-api-001" {
			t.Errorf("expected transaction_id txn-api-001, got %s", resp.TransactionID)
		}
		if resp.RiskScore != 0 {
			t.Errorf("expected risk_score 0, got %d", resp.RiskScore)
		}
		if resp.RiskLevel != domain.RiskLow {
			t.Errorf("expected risk_level LOW, got %s", resp.RiskLevel)
		}
		if resp.RecommendedAction != domain.ActionApprove {
			t.Errorf("expected recommended_action APPROVE, got %s", resp.RecommendedAction)
		}
		if resp.ScoredAt.IsZero() {
			t.Error("expected scored_at to be set")
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID header in response")
		}
	})

	t.Run("HighRiskTransactionFlagged", func(t *testing.T) {
		payload := scorePayload("txn-api-002")
		payload["email"] = "x9@temp-mail.org"
		payload["amount"] = 800.00
		payload["billing_country"] = "BR"
		payload["ip_country"] = "CO"
		payload["product_category"] = "electronics"
		payload["is_first_purchase"] = true

		rr := doJSON(t, server, http.MethodPost, "/api/v1/transactions/score", payload)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp domain.Assessment
		decodeBody(t, rr, &resp)

		if resp.RiskLevel != domain.RiskHigh {
			t.Errorf("expected risk_level HIGH, got %s (score %d)", resp.RiskLevel, resp.RiskScore)
		}
		if resp.RecommendedAction != domain.ActionManualReview {
			t.Errorf("expected recommended_action MANUAL_REVIEW, got %s", resp.RecommendedAction)
		}
		if len(resp.RiskFactors) == 0 {
			t.Fatal("expected risk factors for a high risk transaction")
		}

		var signals []string
		for _, f := range resp.RiskFactors {
			signals = append(signals, f.Signal)
		}
		for _, want := range []string{domain.SignalGeoMismatch, domain.SignalCategory, domain.SignalEmailPattern} {
			found := false
			for _, got := range signals {
				if got == want {
					found = true
				}
			}
			if !found {
				t.Errorf("expected signal %s in %v", want, signals)
			}
		}
	})

	t.Run("ValidationFailure", func(t *testing.T) {
		payload := scorePayload("txn-api-003")
		payload["email"] = "not-an-email"
		payload["card_bin"] = "41"

		rr := doJSON(t, server, http.MethodPost, "/api/v1/transactions/score", payload)

		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp validationResponse
		decodeBody(t, rr, &resp)

		if resp.Error != "Validation failed" {
			t.Errorf("expected error 'Validation failed', got %q", resp.Error)
		}
		if _, ok := resp.Fields["email"]; !ok {
			t.Errorf("expected email violation, got %v", resp.Fields)
		}
		if _, ok := resp.Fields["card_bin"]; !ok {
			t.Errorf("expected card_bin violation, got %v", resp.Fields)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/api/v1/transactions/score", "not-json")

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ScoredTransactionIsRetrievable", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/api/v1/transactions/txn-api-001", nil)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var tx domain.Transaction
		decodeBody(t, rr, &tx)

		if tx.Email != "maria.santos@example.com" {
			t.Errorf("expected stored email, got %s", tx.Email)
		}
	})

	t.Run("UnknownTransactionIs404", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/api/v1/transactions/txn-missing", nil)

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestBatchScoreEndpoint(t *testing.T) {
	t.Run("SequentialVelocityEscalates", func(t *testing.T) {
		server, _ := createTestServer(t)

		var items []map[string]interface{}
		for i := 0; i < 4; i++ {
			p := scorePayload(fmt.Sprintf("txn-batch-%03d", i))
			p["email"] = "rapid.fire@example.com"
			p["card_bin"] = "424242"
			items = append(items, p)
		}
		payload := map[string]interface{}{"transactions": items}

		rr := doJSON(t, server, http.MethodPost, "/api/v1/transactions/batch-score", payload)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp domain.BatchResult
		decodeBody(t, rr, &resp)

		if resp.Total != 4 {
			t.Fatalf("expected total 4, got %d", resp.Total)
		}
		if len(resp.Results) != 4 {
			t.Fatalf("expected 4 results, got %d", len(resp.Results))
		}
		// Items 0 and 1 see at most one prior transaction, items 2 and 3
		// cross into the velocity tiers within the same batch.
		if resp.Results[0].RiskScore != 0 {
			t.Errorf("expected first item score 0, got %d", resp.Results[0].RiskScore)
		}
		if resp.Results[2].RiskScore != 5 {
			t.Errorf("expected third item score 5, got %d", resp.Results[2].RiskScore)
		}
		if resp.Results[3].RiskScore != 5 {
			t.Errorf("expected fourth item score 5, got %d", resp.Results[3].RiskScore)
		}
		if resp.Summary.Approve != 4 {
			t.Errorf("expected summary approve 4, got %+v", resp.Summary)
		}
		if resp.ScoredAt.IsZero() {
			t.Error("expected scored_at to be set")
		}
	})

	t.Run("ItemViolationNamesPosition", func(t *testing.T) {
		server, _ := createTestServer(t)

		good := scorePayload("txn-batch-ok")
		bad := scorePayload("txn-batch-bad")
		bad["card_bin"] = "12"
		payload := map[string]interface{}{
			"transactions": []map[string]interface{}{good, bad},
		}

		rr := doJSON(t, server, http.MethodPost, "/api/v1/transactions/batch-score", payload)

		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp validationResponse
		decodeBody(t, rr, &resp)

		if _, ok := resp.Fields["transactions[1].card_bin"]; !ok {
			t.Errorf("expected transactions[1].card_bin violation, got %v", resp.Fields)
		}

		// A rejected batch must not store any of its items.
		check := doJSON(t, server, http.MethodGet, "/api/v1/transactions/txn-batch-ok", nil)
		if check.Code != http.StatusNotFound {
			t.Errorf("expected no partial writes, got status %d", check.Code)
		}
	})

	t.Run("OversizeBatchRejected", func(t *testing.T) {
		server, _ := createTestServer(t)

		var items []map[string]interface{}
		for i := 0; i < 501; i++ {
			items = append(items, scorePayload(fmt.Sprintf("txn-over-%03d", i)))
		}
		payload := map[string]interface{}{"transactions": items}

		rr := doJSON(t, server, http.MethodPost, "/api/v1/transactions/batch-score", payload)

		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422, got %d", rr.Code)
		}

		var resp validationResponse
		decodeBody(t, rr, &resp)

		if _, ok := resp.Fields["transactions"]; !ok {
			t.Errorf("expected transactions violation, got %v", resp.Fields)
		}
	})

	t.Run("EmptyBatch", func(t *testing.T) {
		server, _ := createTestServer(t)

		payload := map[string]interface{}{"transactions": []map[string]interface{}{}}
		rr := doJSON(t, server, http.MethodPost, "/api/v1/transactions/batch-score", payload)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp domain.BatchResult
		decodeBody(t, rr, &resp)

		if resp.Total != 0 {
			t.Errorf("expected total 0, got %d", resp.Total)
		}
	})
}

func TestRuleEndpoints(t *testing.T) {
	t.Run("CreateAndGet", func(t *testing.T) {
		server, _ := createTestServer(t)

		payload := map[string]interface{}{
			"name":        "Block MXN",
			"description": "Storefront does not ship to MXN-settled cards",
			"conditions": []map[string]interface{}{
				{"field": "currency", "operator": "eq", "value": "MXN"},
			},
			"action":              "REJECT",
			"risk_score_modifier": 20,
			"priority":            1,
		}

		rr := doJSON(t, server, http.MethodPost, "/api/v1/rules", payload)

		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		var created domain.Rule
		decodeBody(t, rr, &created)

		if created.ID == "" {
			t.Fatal("expected rule id to be assigned")
		}
		if created.CreatedAt.IsZero() {
			t.Error("expected created_at to be set")
		}
		if !created.IsActive {
			t.Error("expected new rule to be active")
		}

		get := doJSON(t, server, http.MethodGet, "/api/v1/rules/"+created.ID, nil)
		if get.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", get.Code, get.Body.String())
		}

		var fetched domain.Rule
		decodeBody(t, get, &fetched)
		if fetched.Name != "Block MXN" {
			t.Errorf("expected rule name Block MXN, got %s", fetched.Name)
		}
	})

	t.Run("ListOrderedByPriority", func(t *testing.T) {
		server, _ := createTestServer(t)

		for _, rule := range []struct {
			name     string
			priority int
		}{
			{"Later rule", 5},
			{"First rule", 1},
		} {
			payload := map[string]interface{}{
				"name": rule.name,
				"conditions": []map[string]interface{}{
					{"field": "amount", "operator": "gt", "value": 100.0},
				},
				"action":              "MANUAL_REVIEW",
				"risk_score_modifier": 10,
				"priority":            rule.priority,
			}
			rr := doJSON(t, server, http.MethodPost, "/api/v1/rules", payload)
			if rr.Code != http.StatusCreated {
				t.Fatalf("failed to create rule %s: %d %s", rule.name, rr.Code, rr.Body.String())
			}
		}

		rr := doJSON(t, server, http.MethodGet, "/api/v1/rules", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp struct {
			Rules []domain.Rule `json:"rules"`
		}
		decodeBody(t, rr, &resp)

		if len(resp.Rules) != 2 {
			t.Fatalf("expected 2 rules, got %d", len(resp.Rules))
		}
		if resp.Rules[0].Name != "First rule" {
			t.Errorf("expected priority 1 rule first, got %s", resp.Rules[0].Name)
		}
	})

	t.Run("EmptyListIsEmptyArray", func(t *testing.T) {
		server, _ := createTestServer(t)

		rr := doJSON(t, server, http.MethodGet, "/api/v1/rules", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), `"rules":[]`) {
			t.Errorf("expected empty rules array, got %s", rr.Body.String())
		}
	})

	t.Run("NewRuleAffectsNextScore", func(t *testing.T) {
		server, _ := createTestServer(t)

		rulePayload := map[string]interface{}{
			"name": "Review mid-size orders",
			"conditions": []map[string]interface{}{
				{"field": "amount", "operator": "gt", "value": 100.0},
			},
			"action":              "MANUAL_REVIEW",
			"risk_score_modifier": 30,
			"priority":            1,
		}
		rr := doJSON(t, server, http.MethodPost, "/api/v1/rules", rulePayload)
		if rr.Code != http.StatusCreated {
			t.Fatalf("failed to create rule: %d %s", rr.Code, rr.Body.String())
		}

		score := scorePayload("txn-rule-001")
		score["amount"] = 150.00
		scoreRR := doJSON(t, server, http.MethodPost, "/api/v1/transactions/score", score)
		if scoreRR.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", scoreRR.Code, scoreRR.Body.String())
		}

		var resp domain.Assessment
		decodeBody(t, scoreRR, &resp)

		if resp.RiskScore != 30 {
			t.Errorf("expected risk_score 30 from rule modifier, got %d", resp.RiskScore)
		}
		if resp.RecommendedAction != domain.ActionManualReview {
			t.Errorf("expected MANUAL_REVIEW override, got %s", resp.RecommendedAction)
		}
	})

	t.Run("UnknownOperatorRejected", func(t *testing.T) {
		server, _ := createTestServer(t)

		payload := map[string]interface{}{
			"name": "Bad operator",
			"conditions": []map[string]interface{}{
				{"field": "email", "operator": "contains", "value": "@"},
			},
			"action":              "REJECT",
			"risk_score_modifier": 10,
			"priority":            1,
		}

		rr := doJSON(t, server, http.MethodPost, "/api/v1/rules", payload)

		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp validationResponse
		decodeBody(t, rr, &resp)

		if msg, ok := resp.Fields["conditions"]; !ok || !strings.Contains(msg, "contains") {
			t.Errorf("expected conditions violation naming the operator, got %v", resp.Fields)
		}
	})

	t.Run("MissingFieldsRejected", func(t *testing.T) {
		server, _ := createTestServer(t)

		payload := map[string]interface{}{
			"action":              "ESCALATE",
			"risk_score_modifier": 99,
			"priority":            -1,
		}

		rr := doJSON(t, server, http.MethodPost, "/api/v1/rules", payload)

		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp validationResponse
		decodeBody(t, rr, &resp)

		for _, field := range []string{"name", "conditions", "action", "risk_score_modifier", "priority"} {
			if _, ok := resp.Fields[field]; !ok {
				t.Errorf("expected %s violation, got %v", field, resp.Fields)
			}
		}
	})

	t.Run("UnknownRuleIs404", func(t *testing.T) {
		server, _ := createTestServer(t)

		rr := doJSON(t, server, http.MethodGet, "/api/v1/rules/no-such-rule", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestChargebackEndpoints(t *testing.T) {
	chargebackPayload := func(id, txnID, country string) map[string]interface{} {
		return map[string]interface{}{
			"id":               id,
			"transaction_id":   txnID,
			"transaction_date": "2025-04-01",
			"chargeback_date":  "2025-05-16",
			"amount":           249.99,
			"currency":         "USD",
			"country":          country,
			"product_category": "electronics",
			"reason_code":      "FRAUD",
			"email":            "buyer@example.com",
			"card_bin":         "510510",
		}
	}

	t.Run("RecordAndAnalyze", func(t *testing.T) {
		server, _ := createTestServer(t)

		first := doJSON(t, server, http.MethodPost, "/api/v1/chargebacks", chargebackPayload("", "txn-cb-001", "BR"))
		if first.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", first.Code, first.Body.String())
		}

		var created domain.Chargeback
		decodeBody(t, first, &created)
		if created.ID == "" {
			t.Error("expected chargeback id to be assigned")
		}

		second := doJSON(t, server, http.MethodPost, "/api/v1/chargebacks", chargebackPayload("cb-api-2", "txn-cb-002", "US"))
		if second.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", second.Code, second.Body.String())
		}

		rr := doJSON(t, server, http.MethodGet, "/api/v1/chargebacks/analysis", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var report domain.AnalysisReport
		decodeBody(t, rr, &report)

		if report.TotalChargebacks != 2 {
			t.Errorf("expected 2 chargebacks, got %d", report.TotalChargebacks)
		}
		if len(report.ByCountry) != 2 {
			t.Errorf("expected 2 country groups, got %d", len(report.ByCountry))
		}
		if report.AnalysisPeriod.Start != "2025-05-16" || report.AnalysisPeriod.End != "2025-05-16" {
			t.Errorf("expected period bounds from data, got %+v", report.AnalysisPeriod)
		}
	})

	t.Run("AnalysisFiltersByDate", func(t *testing.T) {
		server, _ := createTestServer(t)

		in := chargebackPayload("cb-in", "txn-in", "BR")
		out := chargebackPayload("cb-out", "txn-out", "US")
		out["chargeback_date"] = "2025-07-01"

		for _, p := range []map[string]interface{}{in, out} {
			rr := doJSON(t, server, http.MethodPost, "/api/v1/chargebacks", p)
			if rr.Code != http.StatusCreated {
				t.Fatalf("failed to record chargeback: %d %s", rr.Code, rr.Body.String())
			}
		}

		rr := doJSON(t, server, http.MethodGet, "/api/v1/chargebacks/analysis?start_date=2025-05-01&end_date=2025-05-31", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var report domain.AnalysisReport
		decodeBody(t, rr, &report)

		if report.TotalChargebacks != 1 {
			t.Errorf("expected 1 chargeback in window, got %d", report.TotalChargebacks)
		}
		if report.AnalysisPeriod.Start != "2025-05-01" || report.AnalysisPeriod.End != "2025-05-31" {
			t.Errorf("expected requested bounds echoed, got %+v", report.AnalysisPeriod)
		}
	})

	t.Run("MalformedDateRejected", func(t *testing.T) {
		server, _ := createTestServer(t)

		rr := doJSON(t, server, http.MethodGet, "/api/v1/chargebacks/analysis?start_date=05%2F20%2F2025", nil)

		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp validationResponse
		decodeBody(t, rr, &resp)

		if msg, ok := resp.Fields["start_date"]; !ok || !strings.Contains(msg, "YYYY-MM-DD") {
			t.Errorf("expected start_date violation, got %v", resp.Fields)
		}
	})

	t.Run("InvalidReasonCodeRejected", func(t *testing.T) {
		server, _ := createTestServer(t)

		payload := chargebackPayload("cb-bad", "txn-bad", "BR")
		payload["reason_code"] = "CHARGEBACK"

		rr := doJSON(t, server, http.MethodPost, "/api/v1/chargebacks", payload)

		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp validationResponse
		decodeBody(t, rr, &resp)

		if _, ok := resp.Fields["reason_code"]; !ok {
			t.Errorf("expected reason_code violation, got %v", resp.Fields)
		}
	})

	t.Run("EmptyLedgerAnalysis", func(t *testing.T) {
		server, _ := createTestServer(t)

		rr := doJSON(t, server, http.MethodGet, "/api/v1/chargebacks/analysis", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var report domain.AnalysisReport
		decodeBody(t, rr, &report)

		if report.TotalChargebacks != 0 {
			t.Errorf("expected 0 chargebacks, got %d", report.TotalChargebacks)
		}
		if len(report.ByCountry) != 0 || len(report.Summary) != 0 {
			t.Errorf("expected empty breakdowns, got %+v", report)
		}
	})
}

func TestOperationalEndpoints(t *testing.T) {
	t.Run("Health", func(t *testing.T) {
		server, _ := createTestServer(t)

		rr := doJSON(t, server, http.MethodGet, "/health", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		decodeBody(t, rr, &resp)

		if resp["status"] != "healthy" {
			t.Errorf("expected status 'healthy', got %q", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version 'test-v1', got %q", resp["version"])
		}
	})

	t.Run("Ready", func(t *testing.T) {
		server, _ := createTestServer(t)

		rr := doJSON(t, server, http.MethodGet, "/ready", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("ReadyFailsWhenStorageDown", func(t *testing.T) {
		server, repo := createTestServer(t)
		repo.Close()

		rr := doJSON(t, server, http.MethodGet, "/ready", nil)
		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", rr.Code)
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		server, _ := createTestServer(t)

		// Generate at least one measured request so the counters exist.
		doJSON(t, server, http.MethodGet, "/health", nil)

		rr := doJSON(t, server, http.MethodGet, "/metrics", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "riskd_http_requests_total") {
			t.Error("expected riskd_http_requests_total in metrics output")
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("TracingMiddlewareSetsRequestID", func(t *testing.T) {
		var capturedRequestID string

		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v, ok := r.Context().Value(RequestIDKey).(string); ok {
				capturedRequestID = v
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedRequestID == "" {
			t.Error("expected request ID to be set")
		}

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID response header")
		}
	})

	t.Run("TracingMiddlewareKeepsCallerRequestID", func(t *testing.T) {
		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "caller-req-42")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if got := rr.Header().Get("X-Request-ID"); got != "caller-req-42" {
			t.Errorf("expected caller request id echoed, got %q", got)
		}
	})

	t.Run("RecoverMiddlewareHandlesPanic", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()

		// Should not panic
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})

	t.Run("CORSPreflight", func(t *testing.T) {
		handler := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodOptions, "/api/v1/transactions/score", nil)
		req.Header.Set("Origin", "https://admin.verdantgoods.example")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusNoContent {
			t.Errorf("expected status 204, got %d", rr.Code)
		}
		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://admin.verdantgoods.example" {
			t.Errorf("expected origin echoed, got %q", got)
		}
	})
}

package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/estateiq/estateiq/internal/billing"
	"github.com/estateiq/estateiq/internal/config"
	"github.com/estateiq/estateiq/internal/db"
	"github.com/estateiq/estateiq/internal/models"
	"github.com/estateiq/estateiq/internal/valuation"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := db.Open("file:" + filepath.Join(t.TempDir(), "analysis.db"))
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func newTestCoordinator(conn *gorm.DB, engine valuation.Engine) *Coordinator {
	ledger := billing.NewLedger(conn, func() config.CreditsConfig {
		return config.CreditsConfig{Default: 20, TopUp: 20, Plan: models.PlanFree}
	})
	return NewCoordinator(conn, engine, ledger)
}

func seedCredits(t *testing.T, conn *gorm.DB, userID string, credits int) {
	t.Helper()
	if errCreate := conn.Create(&models.Billing{UserID: userID, Plan: models.PlanFree, Credits: credits}).Error; errCreate != nil {
		t.Fatalf("seed billing: %v", errCreate)
	}
}

func seedProperty(t *testing.T, conn *gorm.DB, userID string) models.Property {
	t.Helper()
	row := models.Property{UserID: userID, Address: "1 Main St"}
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		t.Fatalf("seed property: %v", errCreate)
	}
	return row
}

func credits(t *testing.T, conn *gorm.DB, userID string) int {
	t.Helper()
	var row models.Billing
	if errFind := conn.Where("user_id = ?", userID).Take(&row).Error; errFind != nil {
		t.Fatalf("load billing: %v", errFind)
	}
	return row.Credits
}

func countRows(t *testing.T, conn *gorm.DB, model any) int64 {
	t.Helper()
	var count int64
	if errCount := conn.Model(model).Count(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	return count
}

type failingEngine struct{}

func (failingEngine) Estimate(context.Context, valuation.Input) (valuation.Result, error) {
	return valuation.Result{}, errors.New("model unavailable")
}

func TestRunUnauthorizedWritesNothing(t *testing.T) {
	conn := openTestDB(t)
	coordinator := newTestCoordinator(conn, nil)

	_, err := coordinator.Run(context.Background(), Request{Payload: []byte(`{"data":{}}`)})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	for _, model := range []any{&models.Billing{}, &models.Analysis{}, &models.AnalyticsLog{}} {
		if n := countRows(t, conn, model); n != 0 {
			t.Fatalf("expected no rows for %T, got %d", model, n)
		}
	}
}

func TestRunInvalidPayloadWritesNothing(t *testing.T) {
	conn := openTestDB(t)
	coordinator := newTestCoordinator(conn, nil)

	_, err := coordinator.Run(context.Background(), Request{UserID: "u1", Payload: []byte(`{"nope":true}`)})
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
	if n := countRows(t, conn, &models.Billing{}); n != 0 {
		t.Fatalf("expected no billing rows, got %d", n)
	}
}

func TestRunWithPropertyUpdatesEverything(t *testing.T) {
	conn := openTestDB(t)
	coordinator := newTestCoordinator(conn, nil)
	property := seedProperty(t, conn, "u1")

	body, _ := json.Marshal(map[string]any{"property_id": property.ID, "previous_valuation": 400000})
	outcome, err := coordinator.Run(context.Background(), Request{UserID: "u1", Payload: body})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.AnalysisID == "" {
		t.Fatalf("expected analysis id")
	}
	if math.Abs(outcome.Result.AppreciationRate-25) > 1e-9 || !outcome.Result.IsAppreciating || outcome.Result.MarketTrend != "Upward" {
		t.Fatalf("unexpected result %+v", outcome.Result)
	}
	if outcome.CreditsBefore != 20 || outcome.CreditsAfter != 19 {
		t.Fatalf("expected 20 -> 19, got %d -> %d", outcome.CreditsBefore, outcome.CreditsAfter)
	}
	if got := credits(t, conn, "u1"); got != 19 {
		t.Fatalf("expected materialized balance 19, got %d", got)
	}

	var updated models.Property
	if errFind := conn.Where("id = ?", property.ID).Take(&updated).Error; errFind != nil {
		t.Fatalf("load property: %v", errFind)
	}
	if updated.PreviousValuation == nil || *updated.PreviousValuation != 400000 {
		t.Fatalf("expected previous valuation 400000, got %v", updated.PreviousValuation)
	}
	if updated.LastValuation == nil || *updated.LastValuation != 500000 {
		t.Fatalf("expected last valuation 500000, got %v", updated.LastValuation)
	}

	var analysis models.Analysis
	if errFind := conn.Where("id = ?", outcome.AnalysisID).Take(&analysis).Error; errFind != nil {
		t.Fatalf("load analysis: %v", errFind)
	}
	if analysis.UserID != "u1" || analysis.PropertyID == nil || *analysis.PropertyID != property.ID {
		t.Fatalf("unexpected analysis %+v", analysis)
	}

	var entry models.AnalyticsLog
	if errFind := conn.Where("user_id = ? AND action = ?", "u1", models.ActionAIAnalyze).Take(&entry).Error; errFind != nil {
		t.Fatalf("load audit entry: %v", errFind)
	}
	var meta map[string]any
	if errUnmarshal := json.Unmarshal(entry.Metadata, &meta); errUnmarshal != nil {
		t.Fatalf("decode metadata: %v", errUnmarshal)
	}
	if meta["analysis_id"] != outcome.AnalysisID || meta["property_id"] != property.ID {
		t.Fatalf("unexpected metadata %v", meta)
	}
	if meta["credits_before"] != float64(20) || meta["credits_after"] != float64(19) {
		t.Fatalf("unexpected credit metadata %v", meta)
	}
}

func TestRunInlineDataDebitsExistingBalance(t *testing.T) {
	conn := openTestDB(t)
	coordinator := newTestCoordinator(conn, nil)
	seedCredits(t, conn, "u1", 3)

	outcome, err := coordinator.Run(context.Background(), Request{UserID: "u1", Payload: []byte(`{"data":{"rent":2400}}`)})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if math.Abs(outcome.Result.AppreciationRate-5.2631578947) > 1e-6 {
		t.Fatalf("expected rate against 95%% prior, got %v", outcome.Result.AppreciationRate)
	}
	if got := credits(t, conn, "u1"); got != 2 {
		t.Fatalf("expected balance 2, got %d", got)
	}
	if n := countRows(t, conn, &models.Analysis{}); n != 1 {
		t.Fatalf("expected one analysis, got %d", n)
	}
}

func TestRunZeroPrior(t *testing.T) {
	conn := openTestDB(t)
	coordinator := newTestCoordinator(conn, nil)
	property := seedProperty(t, conn, "u1")

	body, _ := json.Marshal(map[string]any{"property_id": property.ID, "previous_valuation": 0})
	outcome, err := coordinator.Run(context.Background(), Request{UserID: "u1", Payload: body})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.Result.AppreciationRate != 0 || outcome.Result.MarketTrend != "Flat" {
		t.Fatalf("expected zero rate, got %+v", outcome.Result)
	}
}

func TestRunNoCreditsLeavesEverythingUnchanged(t *testing.T) {
	conn := openTestDB(t)
	coordinator := newTestCoordinator(conn, nil)
	seedCredits(t, conn, "u1", 0)
	property := seedProperty(t, conn, "u1")

	body, _ := json.Marshal(map[string]any{"property_id": property.ID})
	_, err := coordinator.Run(context.Background(), Request{UserID: "u1", Payload: body})
	if !errors.Is(err, ErrNoCredits) {
		t.Fatalf("expected ErrNoCredits, got %v", err)
	}
	if got := credits(t, conn, "u1"); got != 0 {
		t.Fatalf("expected balance 0, got %d", got)
	}
	if n := countRows(t, conn, &models.Analysis{}); n != 0 {
		t.Fatalf("expected no analyses, got %d", n)
	}
	if n := countRows(t, conn, &models.AnalyticsLog{}); n != 0 {
		t.Fatalf("expected no audit entries, got %d", n)
	}
	var unchanged models.Property
	conn.Where("id = ?", property.ID).Take(&unchanged)
	if unchanged.LastValuation != nil {
		t.Fatalf("expected property to stay untouched")
	}
}

func TestRunForeignPropertyIsNotCharged(t *testing.T) {
	conn := openTestDB(t)
	coordinator := newTestCoordinator(conn, nil)
	seedCredits(t, conn, "u2", 5)
	property := seedProperty(t, conn, "u1")

	body, _ := json.Marshal(map[string]any{"property_id": property.ID})
	_, err := coordinator.Run(context.Background(), Request{UserID: "u2", Payload: body})
	if !errors.Is(err, ErrPropertyNotFound) {
		t.Fatalf("expected ErrPropertyNotFound, got %v", err)
	}
	if got := credits(t, conn, "u2"); got != 5 {
		t.Fatalf("expected balance 5, got %d", got)
	}
}

func TestRunEngineFailureRollsBack(t *testing.T) {
	conn := openTestDB(t)
	coordinator := newTestCoordinator(conn, failingEngine{})
	seedCredits(t, conn, "u1", 4)

	_, err := coordinator.Run(context.Background(), Request{UserID: "u1", Payload: []byte(`{"data":{}}`)})
	var persistErr *PersistenceError
	if !errors.As(err, &persistErr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if persistErr.Step != "compute" {
		t.Fatalf("expected compute step, got %q", persistErr.Step)
	}
	if got := credits(t, conn, "u1"); got != 4 {
		t.Fatalf("expected rollback to keep balance 4, got %d", got)
	}

	var failures int64
	conn.Model(&models.AnalyticsLog{}).Where("action = ?", models.ActionAIAnalyzeFailed).Count(&failures)
	if failures != 1 {
		t.Fatalf("expected one failed-attempt entry, got %d", failures)
	}
	var successes int64
	conn.Model(&models.AnalyticsLog{}).Where("action = ?", models.ActionAIAnalyze).Count(&successes)
	if successes != 0 {
		t.Fatalf("expected no success entry, got %d", successes)
	}
}

func TestRunInsertFailureRollsBackPropertyUpdate(t *testing.T) {
	conn := openTestDB(t)
	coordinator := newTestCoordinator(conn, nil)
	seedCredits(t, conn, "u1", 4)
	property := seedProperty(t, conn, "u1")
	if errDrop := conn.Migrator().DropTable(&models.Analysis{}); errDrop != nil {
		t.Fatalf("drop analyses: %v", errDrop)
	}

	body, _ := json.Marshal(map[string]any{"property_id": property.ID, "previous_valuation": 400000})
	_, err := coordinator.Run(context.Background(), Request{UserID: "u1", Payload: body})
	var persistErr *PersistenceError
	if !errors.As(err, &persistErr) || persistErr.Step != "insert analysis" {
		t.Fatalf("expected insert analysis failure, got %v", err)
	}
	if got := credits(t, conn, "u1"); got != 4 {
		t.Fatalf("expected balance 4, got %d", got)
	}
	var unchanged models.Property
	if errFind := conn.Where("id = ?", property.ID).Take(&unchanged).Error; errFind != nil {
		t.Fatalf("load property: %v", errFind)
	}
	if unchanged.LastValuation != nil || unchanged.AppreciationRate != nil {
		t.Fatalf("expected property update to be rolled back, got %+v", unchanged)
	}
}

func TestRunIdempotencyKeyReplays(t *testing.T) {
	conn := openTestDB(t)
	coordinator := newTestCoordinator(conn, nil)
	seedCredits(t, conn, "u1", 5)

	req := Request{UserID: "u1", Payload: []byte(`{"data":{}}`), IdempotencyKey: "retry-1"}
	first, err := coordinator.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := coordinator.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !second.Replayed || second.AnalysisID != first.AnalysisID {
		t.Fatalf("expected replay of %s, got %+v", first.AnalysisID, second)
	}
	if second.Result.ValuationEstimate != first.Result.ValuationEstimate {
		t.Fatalf("expected replayed result to match")
	}
	if got := credits(t, conn, "u1"); got != 4 {
		t.Fatalf("expected a single debit, got balance %d", got)
	}

	tooLong := make([]byte, MaxIdempotencyKeyLength+1)
	for i := range tooLong {
		tooLong[i] = 'k'
	}
	if _, errLong := coordinator.Run(context.Background(), Request{UserID: "u1", Payload: []byte(`{"data":{}}`), IdempotencyKey: string(tooLong)}); !errors.Is(errLong, ErrInvalidPayload) {
		t.Fatalf("expected oversized key to be rejected, got %v", errLong)
	}
}

func TestRunRecomputesForNewPriors(t *testing.T) {
	conn := openTestDB(t)
	coordinator := newTestCoordinator(conn, nil)
	property := seedProperty(t, conn, "u1")

	rates := make([]float64, 0, 2)
	for _, prior := range []float64{400000, 625000} {
		body, _ := json.Marshal(map[string]any{"property_id": property.ID, "previous_valuation": prior})
		outcome, err := coordinator.Run(context.Background(), Request{UserID: "u1", Payload: body})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		rates = append(rates, outcome.Result.AppreciationRate)
	}
	if rates[0] == rates[1] {
		t.Fatalf("expected recomputed rates to differ, got %v", rates)
	}
	if n := countRows(t, conn, &models.Analysis{}); n != 2 {
		t.Fatalf("expected two analyses, got %d", n)
	}
	if got := credits(t, conn, "u1"); got != 18 {
		t.Fatalf("expected balance 18, got %d", got)
	}
}

func TestRunConcurrentLastCredit(t *testing.T) {
	conn := openTestDB(t)
	coordinator := newTestCoordinator(conn, nil)
	seedCredits(t, conn, "u1", 1)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		denied  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := coordinator.Run(context.Background(), Request{UserID: "u1", Payload: []byte(`{"data":{}}`)})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, ErrNoCredits):
				denied++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if success != 1 || denied != workers-1 {
		t.Fatalf("expected exactly one success, got %d successes and %d denials", success, denied)
	}
	if got := credits(t, conn, "u1"); got != 0 {
		t.Fatalf("expected balance 0, got %d", got)
	}
	if n := countRows(t, conn, &models.Analysis{}); n != 1 {
		t.Fatalf("expected one analysis, got %d", n)
	}
}

func TestResponseFlattensResult(t *testing.T) {
	raw, err := json.Marshal(Outcome{AnalysisID: "a1", Result: valuation.Result{ValuationEstimate: 1}}.Response())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]any
	_ = json.Unmarshal(raw, &fields)
	if fields["analysis_id"] != "a1" || fields["valuation_estimate"] != float64(1) {
		t.Fatalf("unexpected response %s", raw)
	}
	if len(fields) != 9 {
		t.Fatalf("expected 9 fields, got %d", len(fields))
	}
}

package fraud

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ========================================
// TEST DOUBLES
// ========================================

// faultyHistory wraps the in-memory store and fails or panics on selected
// lookups, for fail-safe path coverage.
type faultyHistory struct {
	*MemoryStore
	failCounts     bool
	panicTransfers bool
}

func (f *faultyHistory) CountRecentTransactions(ctx context.Context, userID uuid.UUID, window time.Duration) (int, error) {
	if f.failCounts {
		return 0, errors.New("connection refused")
	}
	return f.MemoryStore.CountRecentTransactions(ctx, userID, window)
}

func (f *faultyHistory) RecentTransfers(ctx context.Context, window time.Duration) ([]AccountEdge, error) {
	if f.panicTransfers {
		panic("transfer index corrupted")
	}
	return f.MemoryStore.RecentTransfers(ctx, window)
}

// capturingPublisher records every published alert.
type capturingPublisher struct {
	mu     sync.Mutex
	alerts []*FraudEvaluation
}

func (p *capturingPublisher) PublishAlert(_ context.Context, eval *FraudEvaluation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, eval)
	return nil
}

func (p *capturingPublisher) published() []*FraudEvaluation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*FraudEvaluation(nil), p.alerts...)
}

func benignRequest(userID uuid.UUID) *EvaluateRequest {
	return &EvaluateRequest{
		UserID:          userID,
		FromAccount:     "ACC-001",
		ToAccount:       "ACC-002",
		Amount:          10_000,
		Currency:        "KES",
		TransactionType: "transfer",
		Channel:         "mobile",
		Device: &DeviceInfo{
			Fingerprint:  "fp-1",
			IsRecognized: true,
			Location:     "Nairobi, KE",
		},
		Behavioral: &BehavioralData{
			SessionDuration: 90 * time.Second,
			AnomalyScore:    0.1,
		},
	}
}

// ========================================
// EVALUATION
// ========================================

func TestDefaultPolicy_WeightsSumToOne(t *testing.T) {
	p := DefaultPolicy()

	sum := 0.0
	for _, w := range p.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestEvaluateTransaction_BenignTransactionAllowed(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	score := svc.EvaluateTransaction(ctx, benignRequest(uuid.New()))

	require.NotNil(t, score)
	assert.LessOrEqual(t, score.TotalScore, svc.Policy().AllowMaxScore)
	assert.Equal(t, DecisionAllow, score.Decision)
	assert.Equal(t, RiskLevelLow, score.RiskLevel)
	assert.False(t, score.RequiresStepUpAuth)
	assert.Equal(t, "No significant risk indicators detected", score.Explanation)
	assert.Empty(t, score.ContributingReasons)
}

func TestEvaluateTransaction_PersistsAuditRecord(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	score := svc.EvaluateTransaction(ctx, benignRequest(userID))

	eval, err := store.GetEvaluation(ctx, score.ContextID)
	require.NoError(t, err)
	assert.Equal(t, userID, eval.UserID)
	assert.Equal(t, score.TotalScore, eval.Score.TotalScore)
	assert.Equal(t, score.Decision, eval.Score.Decision)
}

func TestEvaluate_HighRiskTransactionChallenged(t *testing.T) {
	svc, _ := newTestService()
	age := 2

	tc := benignContext()
	tc.Amount = 2_000_000
	tc.AverageTransactionAmount = 500_000
	tc.AmountDeviationPercent = 300
	tc.RecentTransactionCount = 6
	tc.DailyTransactionCount = 6
	tc.IsFirstTimeBeneficiary = true
	tc.DestinationAccountAgeDays = &age
	tc.Behavioral = &BehavioralData{
		ActiveCallInProgress: true,
		ScreenSharingActive:  true,
		AnomalyScore:         0.9,
		SessionDuration:      90 * time.Second,
	}
	tc.Device = &DeviceInfo{
		Fingerprint:  "fp-9",
		IsRecognized: false,
		IsVPN:        true,
		Location:     "Unknown",
	}

	score := svc.Evaluate(context.Background(), tc)

	// Raw engine scores: velocity 300, behavioral 1050, relationship 550,
	// amount 400, device 350; weighted sum floors to 567.
	assert.Equal(t, 567, score.TotalScore)
	assert.Equal(t, DecisionChallenge, score.Decision)
	assert.Equal(t, RiskLevelHigh, score.RiskLevel)
	assert.True(t, score.RequiresStepUpAuth)

	// Behavioral has the highest raw score, so it owns the primary reason.
	assert.Equal(t, ReasonAnomalousBehavior, score.PrimaryReason)

	assert.Contains(t, score.ContributingReasons, ReasonHighTransactionVelocity)
	assert.Contains(t, score.ContributingReasons, ReasonFirstTimeBeneficiary)
	assert.Contains(t, score.ContributingReasons, ReasonMuleAccountPattern)
	assert.Contains(t, score.ContributingReasons, ReasonDeviceMismatch)

	assert.InDelta(t, 0.95, score.Confidence, 1e-9)
	assert.NotEmpty(t, score.Explanation)
}

func TestEvaluate_ScoreCappedAtMaximum(t *testing.T) {
	svc, _ := newTestService()

	var results [engineCount]engineResult
	for i := range results {
		results[i] = engineResult{score: 10_000}
	}

	score := svc.aggregate(benignContext(), results)
	assert.Equal(t, maxTotalScore, score.TotalScore)
	assert.Equal(t, DecisionBlock, score.Decision)
	assert.Equal(t, RiskLevelCritical, score.RiskLevel)
}

func TestEvaluate_ContributingReasonsDeduplicated(t *testing.T) {
	svc, _ := newTestService()

	var results [engineCount]engineResult
	results[engineVelocity] = engineResult{score: 300, reasons: []FraudReason{ReasonAnomalousBehavior}}
	results[engineBehavioral] = engineResult{score: 400, reasons: []FraudReason{ReasonAnomalousBehavior}}

	score := svc.aggregate(benignContext(), results)
	assert.Equal(t, []FraudReason{ReasonAnomalousBehavior}, score.ContributingReasons)
}

func TestEvaluate_PrimaryReasonNoneWhenTopEngineHasNoReasons(t *testing.T) {
	svc, _ := newTestService()

	// Missing telemetry scores points without attaching a reason.
	var results [engineCount]engineResult
	results[engineBehavioral] = engineResult{score: 100}

	score := svc.aggregate(benignContext(), results)
	assert.Equal(t, ReasonNone, score.PrimaryReason)
}

func TestDecisionThresholds(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		score    int
		decision Decision
		risk     RiskLevel
	}{
		{0, DecisionAllow, RiskLevelLow},
		{200, DecisionAllow, RiskLevelLow},
		{201, DecisionReview, RiskLevelMedium},
		{400, DecisionReview, RiskLevelMedium},
		{401, DecisionChallenge, RiskLevelHigh},
		{700, DecisionChallenge, RiskLevelHigh},
		{701, DecisionBlock, RiskLevelCritical},
		{1000, DecisionBlock, RiskLevelCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.decision, p.decisionFor(tt.score), "score %d", tt.score)
		assert.Equal(t, tt.risk, p.riskLevelFor(tt.score), "score %d", tt.score)
	}
}

// ========================================
// CONTEXT BUILDING
// ========================================

func TestBuildContext_ResolvesHistorySignals(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 4; i++ {
		require.NoError(t, store.RecordTransaction(ctx, &TransactionRecord{
			ID:          uuid.New(),
			UserID:      userID,
			FromAccount: "ACC-001",
			ToAccount:   "ACC-002",
			Amount:      5_000,
			CreatedAt:   time.Now().Add(-time.Minute),
		}))
	}
	require.NoError(t, svc.RegisterAccount(ctx, "ACC-002", time.Now().AddDate(0, 0, -3)))

	req := benignRequest(userID)
	req.Amount = 20_000

	tc, err := svc.BuildContext(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, 4, tc.RecentTransactionCount)
	assert.Equal(t, 20_000.0, tc.RecentTransactionAmount)
	assert.Equal(t, 4, tc.DailyTransactionCount)
	assert.Equal(t, 5_000.0, tc.AverageTransactionAmount)
	assert.InDelta(t, 300.0, tc.AmountDeviationPercent, 1e-9)
	assert.False(t, tc.IsFirstTimeBeneficiary)
	require.NotNil(t, tc.DestinationAccountAgeDays)
	assert.Equal(t, 3, *tc.DestinationAccountAgeDays)
}

func TestBuildContext_DefaultAverageForNewUsers(t *testing.T) {
	svc, _ := newTestService()

	tc, err := svc.BuildContext(context.Background(), benignRequest(uuid.New()))
	require.NoError(t, err)

	assert.Equal(t, svc.Policy().DefaultAverageAmount, tc.AverageTransactionAmount)
	assert.True(t, tc.IsFirstTimeBeneficiary)
	assert.Nil(t, tc.DestinationAccountAgeDays)
}

// ========================================
// FAIL-SAFE
// ========================================

func TestEvaluateTransaction_HistoryFaultFailsSafe(t *testing.T) {
	store := NewMemoryStore(10_000)
	history := &faultyHistory{MemoryStore: store, failCounts: true}
	svc := NewService(history, store)

	score := svc.EvaluateTransaction(context.Background(), benignRequest(uuid.New()))

	require.NotNil(t, score)
	assert.Equal(t, 500, score.TotalScore)
	assert.Equal(t, DecisionReview, score.Decision)
	assert.Equal(t, RiskLevelMedium, score.RiskLevel)
	assert.Equal(t, 0.0, score.Confidence)
	assert.False(t, score.RequiresStepUpAuth)
}

func TestEvaluate_EnginePanicFailsSafe(t *testing.T) {
	store := NewMemoryStore(10_000)
	history := &faultyHistory{MemoryStore: store, panicTransfers: true}
	svc := NewService(history, store)

	assert.NotPanics(t, func() {
		score := svc.Evaluate(context.Background(), benignContext())
		assert.Equal(t, 500, score.TotalScore)
		assert.Equal(t, DecisionReview, score.Decision)
	})
}

func TestEvaluateTransaction_FailSafeStillAudited(t *testing.T) {
	store := NewMemoryStore(10_000)
	history := &faultyHistory{MemoryStore: store, failCounts: true}
	publisher := &capturingPublisher{}
	svc := NewService(history, store, WithAlertPublisher(publisher))

	score := svc.EvaluateTransaction(context.Background(), benignRequest(uuid.New()))

	eval, err := store.GetEvaluation(context.Background(), score.ContextID)
	require.NoError(t, err)
	assert.Equal(t, DecisionReview, eval.Score.Decision)

	// Review verdicts land on the analyst queue.
	require.Len(t, publisher.published(), 1)
	assert.Equal(t, score.ContextID, publisher.published()[0].ContextID)
}

// ========================================
// RE-EVALUATION
// ========================================

func TestReEvaluateAfterChallenge_Passed(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	original := svc.EvaluateTransaction(ctx, benignRequest(userID))

	score := svc.ReEvaluateAfterChallenge(ctx, original.ContextID, true)

	assert.Equal(t, original.ContextID, score.ContextID)
	assert.Equal(t, 200, score.TotalScore)
	assert.Equal(t, DecisionAllow, score.Decision)
	assert.Equal(t, RiskLevelLow, score.RiskLevel)
	assert.InDelta(t, 0.90, score.Confidence, 1e-9)

	// The new audit record is linked to the original context and user.
	eval, err := store.GetEvaluation(ctx, original.ContextID)
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, eval.Score.Decision)
	assert.Equal(t, userID, eval.UserID)
}

func TestReEvaluateAfterChallenge_Failed(t *testing.T) {
	svc, _ := newTestService()
	publisher := &capturingPublisher{}
	svc.alerts = publisher
	ctx := context.Background()

	original := svc.EvaluateTransaction(ctx, benignRequest(uuid.New()))

	score := svc.ReEvaluateAfterChallenge(ctx, original.ContextID, false)

	assert.Equal(t, 950, score.TotalScore)
	assert.Equal(t, DecisionBlock, score.Decision)
	assert.Equal(t, RiskLevelCritical, score.RiskLevel)
	assert.Equal(t, ReasonMultipleFailedAttempts, score.PrimaryReason)
	assert.InDelta(t, 0.95, score.Confidence, 1e-9)

	// Block verdicts land on the analyst queue.
	require.Len(t, publisher.published(), 1)
	assert.Equal(t, DecisionBlock, publisher.published()[0].Score.Decision)
}

func TestReEvaluateAfterChallenge_UnknownContextStillScores(t *testing.T) {
	svc, _ := newTestService()

	score := svc.ReEvaluateAfterChallenge(context.Background(), uuid.New(), true)

	require.NotNil(t, score)
	assert.Equal(t, DecisionAllow, score.Decision)
}

// ========================================
// HISTORY WRITES
// ========================================

func TestRecordCompletedTransaction_RejectsBlocked(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	err := svc.RecordCompletedTransaction(ctx, &TransactionRecord{
		UserID:   userID,
		Amount:   1_000,
		Decision: DecisionBlock,
	})
	require.Error(t, err)

	count, err := store.CountRecentTransactions(ctx, userID, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRecordCompletedTransaction_FillsDefaults(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	err := svc.RecordCompletedTransaction(ctx, &TransactionRecord{
		UserID:   userID,
		Amount:   1_000,
		Decision: DecisionAllow,
	})
	require.NoError(t, err)

	count, err := store.CountRecentTransactions(ctx, userID, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

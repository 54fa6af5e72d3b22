package fraud

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wekezahq/nexus/pkg/logger"
	"go.uber.org/zap"
)

// History windows used when resolving velocity signals onto the context.
const (
	velocityWindow = 10 * time.Minute
	dailyWindow    = 24 * time.Hour
	averageDays    = 30
)

// maxTotalScore caps the composite score.
const maxTotalScore = 1000

// Service is the Nexus fraud evaluator. One evaluation is side-effect-free
// with respect to concurrent evaluations; the only shared state is the
// append-only history store.
type Service struct {
	history HistoryStore
	evals   EvaluationStore
	alerts  AlertPublisher
	policy  *Policy
}

// Option configures a Service.
type Option func(*Service)

// WithPolicy overrides the default scoring policy.
func WithPolicy(p *Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithAlertPublisher sets the analyst alert publisher.
func WithAlertPublisher(pub AlertPublisher) Option {
	return func(s *Service) { s.alerts = pub }
}

// NewService creates a new fraud evaluation service
func NewService(history HistoryStore, evals EvaluationStore, opts ...Option) *Service {
	s := &Service{
		history: history,
		evals:   evals,
		alerts:  NoopAlertPublisher{},
		policy:  DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the active scoring policy.
func (s *Service) Policy() *Policy {
	return s.policy
}

// ========================================
// EVALUATION
// ========================================

// EvaluateTransaction builds a transaction context from history lookups,
// scores it, persists the audit record, and returns the verdict. It never
// returns an error: any internal fault produces the fail-safe Review
// verdict instead.
func (s *Service) EvaluateTransaction(ctx context.Context, req *EvaluateRequest) *FraudScore {
	start := time.Now()

	tc, err := s.BuildContext(ctx, req)
	if err != nil {
		logger.WithContext(ctx).Error("Failed to build transaction context",
			zap.Error(err),
			zap.String("user_id", req.UserID.String()),
		)
		score := s.failSafeScore(uuid.New())
		s.finishEvaluation(ctx, req.UserID, req.Description, req.Amount, score, time.Since(start))
		return score
	}

	score := s.Evaluate(ctx, tc)
	s.finishEvaluation(ctx, tc.UserID, tc.Description, tc.Amount, score, time.Since(start))
	return score
}

// BuildContext resolves velocity and history signals for the transaction
// into an immutable evaluation context.
func (s *Service) BuildContext(ctx context.Context, req *EvaluateRequest) (*TransactionContext, error) {
	recentCount, err := s.history.CountRecentTransactions(ctx, req.UserID, velocityWindow)
	if err != nil {
		return nil, fmt.Errorf("recent transaction count: %w", err)
	}

	recentAmount, err := s.history.SumRecentAmount(ctx, req.UserID, velocityWindow)
	if err != nil {
		return nil, fmt.Errorf("recent transaction amount: %w", err)
	}

	dailyCount, err := s.history.CountRecentTransactions(ctx, req.UserID, dailyWindow)
	if err != nil {
		return nil, fmt.Errorf("daily transaction count: %w", err)
	}

	avgAmount, err := s.history.AverageTransactionAmount(ctx, req.UserID, averageDays)
	if err != nil {
		return nil, fmt.Errorf("average transaction amount: %w", err)
	}

	firstTime, err := s.history.IsFirstTimeBeneficiary(ctx, req.UserID, req.ToAccount)
	if err != nil {
		return nil, fmt.Errorf("first-time beneficiary check: %w", err)
	}

	accountAge, err := s.history.AccountAgeDays(ctx, req.ToAccount)
	if err != nil {
		return nil, fmt.Errorf("account age lookup: %w", err)
	}

	deviation := 0.0
	if avgAmount > 0 {
		deviation = (req.Amount - avgAmount) / avgAmount * 100
	}

	return &TransactionContext{
		ID:                        uuid.New(),
		UserID:                    req.UserID,
		FromAccount:               req.FromAccount,
		ToAccount:                 req.ToAccount,
		Amount:                    req.Amount,
		Currency:                  req.Currency,
		TransactionType:           req.TransactionType,
		Description:               req.Description,
		Channel:                   req.Channel,
		SessionID:                 req.SessionID,
		RecentTransactionCount:    recentCount,
		RecentTransactionAmount:   recentAmount,
		DailyTransactionCount:     dailyCount,
		AverageTransactionAmount:  avgAmount,
		AmountDeviationPercent:    deviation,
		IsFirstTimeBeneficiary:    firstTime,
		DestinationAccountAgeDays: accountAge,
		Device:                    req.Device,
		Behavioral:                req.Behavioral,
		Timestamp:                 time.Now(),
	}, nil
}

// Evaluate runs the five scoring engines concurrently, combines their raw
// scores through the ensemble weights, and derives the decision. A fault in
// any engine yields the fail-safe Review verdict; Evaluate never panics and
// never silently allows.
func (s *Service) Evaluate(ctx context.Context, tc *TransactionContext) *FraudScore {
	var (
		results [engineCount]engineResult
		errs    [engineCount]error
		wg      sync.WaitGroup
	)

	// The engines have no data dependencies on each other; results are
	// additive and order-independent, so they are dispatched together and
	// joined before aggregation.
	run := func(idx int, fn func() (engineResult, error)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[idx] = fmt.Errorf("%s engine panic: %v", engineNames[idx], r)
				}
			}()
			results[idx], errs[idx] = fn()
		}()
	}

	run(engineVelocity, func() (engineResult, error) { return s.scoreVelocity(tc), nil })
	run(engineBehavioral, func() (engineResult, error) { return s.scoreBehavior(tc), nil })
	run(engineRelationship, func() (engineResult, error) { return s.scoreRelationship(ctx, tc) })
	run(engineAmount, func() (engineResult, error) { return s.scoreAmount(tc), nil })
	run(engineDevice, func() (engineResult, error) { return s.scoreDevice(tc), nil })
	wg.Wait()

	for idx, err := range errs {
		if err != nil {
			engineFailuresTotal.WithLabelValues(engineNames[idx]).Inc()
			logger.WithContext(ctx).Error("Scoring engine failed",
				zap.Error(err),
				zap.String("engine", engineNames[idx]),
				zap.String("context_id", tc.ID.String()),
			)
			return s.failSafeScore(tc.ID)
		}
	}

	return s.aggregate(tc, results)
}

// aggregate combines raw engine results into the final verdict.
func (s *Service) aggregate(tc *TransactionContext, results [engineCount]engineResult) *FraudScore {
	weighted := 0.0
	for idx, res := range results {
		weighted += float64(res.score) * s.policy.Weights[idx]
	}
	total := int(math.Floor(weighted))
	if total > maxTotalScore {
		total = maxTotalScore
	}

	// Primary reason comes from the engine with the highest raw score;
	// first engine in fixed order wins ties, so the output is stable for
	// identical input.
	topEngine := 0
	for idx := 1; idx < engineCount; idx++ {
		if results[idx].score > results[topEngine].score {
			topEngine = idx
		}
	}
	primary := ReasonNone
	if len(results[topEngine].reasons) > 0 {
		primary = results[topEngine].reasons[0]
	}

	// Contributing reasons: deduplicated union across engines whose raw
	// score cleared the activation threshold, in engine order.
	var contributing []FraudReason
	seen := make(map[FraudReason]bool)
	activeEngines := 0
	for _, res := range results {
		if res.score <= s.policy.ReasonActivationScore {
			continue
		}
		activeEngines++
		for _, reason := range res.reasons {
			if !seen[reason] {
				seen[reason] = true
				contributing = append(contributing, reason)
			}
		}
	}

	confidence := 0.60 + 0.08*float64(activeEngines)
	if confidence > 0.95 {
		confidence = 0.95
	}

	decision := s.policy.decisionFor(total)

	return &FraudScore{
		ContextID:           tc.ID,
		TotalScore:          total,
		PrimaryReason:       primary,
		ContributingReasons: contributing,
		Explanation:         s.buildExplanation(tc, results, total),
		Confidence:          confidence,
		Decision:            decision,
		RiskLevel:           s.policy.riskLevelFor(total),
		RequiresStepUpAuth:  decision == DecisionChallenge,
	}
}

// buildExplanation assembles the human-readable verdict explanation in
// priority order. Scoring internals are not exposed beyond these summaries.
func (s *Service) buildExplanation(tc *TransactionContext, results [engineCount]engineResult, total int) string {
	if total <= s.policy.AllowMaxScore {
		return "No significant risk indicators detected"
	}

	var parts []string

	if tc.RecentTransactionCount >= s.policy.HighVelocityCount {
		parts = append(parts, fmt.Sprintf("%d transactions in the last 10 minutes", tc.RecentTransactionCount))
	}

	if b := tc.Behavioral; b != nil {
		if b.ActiveCallInProgress {
			parts = append(parts, "active voice call detected during the transaction")
		} else if b.AnomalyScore > s.policy.AnomalyScoreThreshold {
			parts = append(parts, fmt.Sprintf("behavioral anomaly score of %.0f%%", b.AnomalyScore*100))
		}
	}

	if tc.IsFirstTimeBeneficiary {
		if age := tc.DestinationAccountAgeDays; age != nil && *age < s.policy.NewAccountAgeDays {
			parts = append(parts, fmt.Sprintf("first transfer to a beneficiary account only %d days old", *age))
		} else {
			parts = append(parts, "first transfer to this beneficiary")
		}
	} else if age := tc.DestinationAccountAgeDays; age != nil && *age < s.policy.NewAccountAgeDays {
		parts = append(parts, fmt.Sprintf("beneficiary account is only %d days old", *age))
	}

	if hasReason(results[engineRelationship].reasons, ReasonCircularTransactionDetected) {
		parts = append(parts, "funds would travel a circular route back to the source account")
	}

	deviation := tc.AmountDeviationPercent
	if tc.AverageTransactionAmount > 0 && math.Abs(deviation) > s.policy.ModerateDeviationPercent {
		direction := "higher"
		if deviation < 0 {
			direction = "lower"
		}
		parts = append(parts, fmt.Sprintf("amount is %.0f%% %s than normal for this customer", math.Abs(deviation), direction))
	}

	if d := tc.Device; d != nil {
		if !d.IsRecognized {
			parts = append(parts, "unrecognized device")
		}
		if d.IsVPN {
			parts = append(parts, "VPN or proxy in use")
		}
	}

	if len(parts) == 0 {
		return "Multiple moderate risk indicators detected"
	}
	return strings.Join(parts, "; ")
}

func hasReason(reasons []FraudReason, target FraudReason) bool {
	for _, r := range reasons {
		if r == target {
			return true
		}
	}
	return false
}

// failSafeScore is the verdict returned when scoring itself fails: a
// mid-range score routed for manual review. The evaluator must never
// silently allow and never crash the caller.
func (s *Service) failSafeScore(contextID uuid.UUID) *FraudScore {
	return &FraudScore{
		ContextID:           contextID,
		TotalScore:          s.policy.FailSafeScore,
		PrimaryReason:       ReasonNone,
		ContributingReasons: nil,
		Explanation:         "A technical error occurred during fraud evaluation; the transaction has been routed for manual review",
		Confidence:          0,
		Decision:            DecisionReview,
		RiskLevel:           RiskLevelMedium,
		RequiresStepUpAuth:  false,
	}
}

// ========================================
// RE-EVALUATION (STEP-UP PATH)
// ========================================

// ReEvaluateAfterChallenge adjusts the verdict for a context after a
// step-up challenge completes. It does not re-run the scoring engines.
func (s *Service) ReEvaluateAfterChallenge(ctx context.Context, contextID uuid.UUID, challengePassed bool) *FraudScore {
	var score *FraudScore
	if challengePassed {
		score = &FraudScore{
			ContextID:     contextID,
			TotalScore:    s.policy.ChallengePassedScore,
			PrimaryReason: ReasonNone,
			Explanation:   "Step-up challenge completed successfully",
			Confidence:    0.90,
			Decision:      DecisionAllow,
			RiskLevel:     RiskLevelLow,
		}
	} else {
		score = &FraudScore{
			ContextID:     contextID,
			TotalScore:    s.policy.ChallengeFailedScore,
			PrimaryReason: ReasonMultipleFailedAttempts,
			ContributingReasons: []FraudReason{
				ReasonMultipleFailedAttempts,
			},
			Explanation: "Step-up authentication failed; the transaction has been blocked for security",
			Confidence:  0.95,
			Decision:    DecisionBlock,
			RiskLevel:   RiskLevelCritical,
		}
	}

	// Carry user and amount forward from the original evaluation so the
	// audit trail stays linked. Missing original is logged, not fatal.
	userID := uuid.Nil
	ref := ""
	amount := 0.0
	if prior, err := s.evals.GetEvaluation(ctx, contextID); err != nil {
		logger.WithContext(ctx).Warn("Original evaluation not found for re-evaluation",
			zap.Error(err),
			zap.String("context_id", contextID.String()),
		)
	} else {
		userID = prior.UserID
		ref = prior.TransactionRef
		amount = prior.Amount
	}

	s.finishEvaluation(ctx, userID, ref, amount, score, 0)
	return score
}

// ========================================
// AUDIT & ALERTS
// ========================================

// finishEvaluation persists the audit record, publishes analyst alerts, and
// records metrics. The scoring result takes priority over audit durability:
// persistence failures are logged and never block the verdict.
func (s *Service) finishEvaluation(ctx context.Context, userID uuid.UUID, ref string, amount float64, score *FraudScore, elapsed time.Duration) {
	evaluationsTotal.WithLabelValues(string(score.Decision)).Inc()
	evaluationDuration.Observe(elapsed.Seconds())

	eval := &FraudEvaluation{
		ID:             uuid.New(),
		ContextID:      score.ContextID,
		UserID:         userID,
		TransactionRef: ref,
		Amount:         amount,
		Score:          *score,
		ProcessingTime: elapsed,
		CreatedAt:      time.Now(),
	}

	if err := s.evals.SaveEvaluation(ctx, eval); err != nil {
		logger.WithContext(ctx).Error("Failed to persist fraud evaluation",
			zap.Error(err),
			zap.String("context_id", score.ContextID.String()),
		)
	}

	if score.Decision == DecisionReview || score.Decision == DecisionBlock {
		if err := s.alerts.PublishAlert(ctx, eval); err != nil {
			logger.WithContext(ctx).Error("Failed to publish fraud alert",
				zap.Error(err),
				zap.String("context_id", score.ContextID.String()),
				zap.String("decision", string(score.Decision)),
			)
		}
	}

	logger.WithContext(ctx).Info("Fraud evaluation completed",
		zap.String("context_id", score.ContextID.String()),
		zap.Int("score", score.TotalScore),
		zap.String("decision", string(score.Decision)),
		zap.Duration("elapsed", elapsed),
	)
}

// ========================================
// HISTORY WRITES
// ========================================

// RecordCompletedTransaction appends the transaction to the velocity store.
// Blocked transactions are not completed activity and must not be recorded.
func (s *Service) RecordCompletedTransaction(ctx context.Context, record *TransactionRecord) error {
	if record.Decision == DecisionBlock {
		return fmt.Errorf("blocked transactions are not recorded as completed activity")
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	return s.history.RecordTransaction(ctx, record)
}

// RegisterAccount stores account metadata used for age lookups.
func (s *Service) RegisterAccount(ctx context.Context, accountNumber string, createdAt time.Time) error {
	return s.history.UpsertAccountMetadata(ctx, &AccountMetadata{
		AccountNumber: accountNumber,
		CreatedAt:     createdAt,
	})
}

// GetEvaluation returns one audit record by its context ID.
func (s *Service) GetEvaluation(ctx context.Context, contextID uuid.UUID) (*FraudEvaluation, error) {
	return s.evals.GetEvaluation(ctx, contextID)
}

// ListRecentEvaluations returns a page of recent audit records.
func (s *Service) ListRecentEvaluations(ctx context.Context, limit, offset int) ([]*FraudEvaluation, int64, error) {
	return s.evals.ListRecentEvaluations(ctx, limit, offset)
}

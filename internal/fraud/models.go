package fraud

import (
	"time"

	"github.com/google/uuid"
)

// Decision is the enforcement verdict derived from the total risk score.
type Decision string

const (
	DecisionAllow     Decision = "allow"
	DecisionReview    Decision = "review"
	DecisionChallenge Decision = "challenge"
	DecisionBlock     Decision = "block"
)

// RiskLevel is the coarse tier reported alongside the numeric score.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// FraudReason tags a contributing factor in a fraud score.
type FraudReason string

const (
	ReasonNone                        FraudReason = "none"
	ReasonHighTransactionVelocity     FraudReason = "high_transaction_velocity"
	ReasonHighAmountVelocity          FraudReason = "high_amount_velocity"
	ReasonUnusualTransactionPattern   FraudReason = "unusual_transaction_pattern"
	ReasonAnomalousBehavior           FraudReason = "anomalous_behavior"
	ReasonFirstTimeBeneficiary        FraudReason = "first_time_beneficiary"
	ReasonNewAccountBeneficiary       FraudReason = "new_account_beneficiary"
	ReasonMuleAccountPattern          FraudReason = "mule_account_pattern"
	ReasonCircularTransactionDetected FraudReason = "circular_transaction_detected"
	ReasonUnusuallyHighAmount         FraudReason = "unusually_high_amount"
	ReasonRoundAmountPattern          FraudReason = "round_amount_pattern"
	ReasonDeviceMismatch              FraudReason = "device_mismatch"
	ReasonLocationAnomaly             FraudReason = "location_anomaly"
	ReasonMultipleFailedAttempts      FraudReason = "multiple_failed_attempts"
)

// DeviceInfo carries device signals collected by the channel
type DeviceInfo struct {
	Fingerprint  string `json:"fingerprint"`
	IsRecognized bool   `json:"is_recognized"`
	IsVPN        bool   `json:"is_vpn"`
	Location     string `json:"location"`
}

// BehavioralData is the behavioral-biometrics snapshot for the session
type BehavioralData struct {
	ActiveCallInProgress bool          `json:"active_call_in_progress"`
	ScreenSharingActive  bool          `json:"screen_sharing_active"`
	AnomalyScore         float64       `json:"anomaly_score"` // 0..1
	SessionDuration      time.Duration `json:"session_duration"`
	CopyPasteCount       int           `json:"copy_paste_count"`
}

// TransactionContext is the immutable input of a single fraud evaluation.
// Velocity and history signals are resolved once, before scoring, so the
// five engines see a consistent snapshot.
type TransactionContext struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	FromAccount     string    `json:"from_account"`
	ToAccount       string    `json:"to_account"`
	Amount          float64   `json:"amount"`
	Currency        string    `json:"currency"`
	TransactionType string    `json:"transaction_type"`
	Description     string    `json:"description"`
	Channel         string    `json:"channel"`
	SessionID       string    `json:"session_id"`

	RecentTransactionCount   int     `json:"recent_transaction_count"`  // trailing 10 minutes
	RecentTransactionAmount  float64 `json:"recent_transaction_amount"` // trailing 10 minutes
	DailyTransactionCount    int     `json:"daily_transaction_count"`
	AverageTransactionAmount float64 `json:"average_transaction_amount"` // 30-day trailing
	AmountDeviationPercent   float64 `json:"amount_deviation_percent"`
	IsFirstTimeBeneficiary   bool    `json:"is_first_time_beneficiary"`
	// DestinationAccountAgeDays is nil when the account cannot be resolved.
	DestinationAccountAgeDays *int `json:"destination_account_age_days,omitempty"`

	Device     *DeviceInfo     `json:"device,omitempty"`
	Behavioral *BehavioralData `json:"behavioral,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// FraudScore is the verdict returned by the evaluator.
type FraudScore struct {
	ContextID           uuid.UUID     `json:"context_id"`
	TotalScore          int           `json:"total_score"` // 0..1000
	PrimaryReason       FraudReason   `json:"primary_reason"`
	ContributingReasons []FraudReason `json:"contributing_reasons"`
	Explanation         string        `json:"explanation"`
	Confidence          float64       `json:"confidence"`
	Decision            Decision      `json:"decision"`
	RiskLevel           RiskLevel     `json:"risk_level"`
	RequiresStepUpAuth  bool          `json:"requires_step_up_auth"`
}

// FraudEvaluation is the append-only audit record of one evaluation.
// Never mutated or deleted; it is the compliance trail.
type FraudEvaluation struct {
	ID             uuid.UUID     `json:"id"`
	ContextID      uuid.UUID     `json:"context_id"`
	UserID         uuid.UUID     `json:"user_id"`
	TransactionRef string        `json:"transaction_ref"`
	Amount         float64       `json:"amount"`
	Score          FraudScore    `json:"score"`
	ProcessingTime time.Duration `json:"processing_time"`
	CreatedAt      time.Time     `json:"created_at"`
}

// TransactionRecord is a completed-activity entry in the velocity store.
// Appended for Allowed and Challenged transactions only; never updated.
type TransactionRecord struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	FromAccount     string    `json:"from_account"`
	ToAccount       string    `json:"to_account"`
	Amount          float64   `json:"amount"`
	Currency        string    `json:"currency"`
	TransactionType string    `json:"transaction_type"`
	Reference       string    `json:"reference"`
	Decision        Decision  `json:"decision"`
	CreatedAt       time.Time `json:"created_at"`
}

// AccountMetadata records what is known about an account, chiefly its age.
type AccountMetadata struct {
	AccountNumber string    `json:"account_number"`
	CreatedAt     time.Time `json:"created_at"`
}

// AccountEdge is one directed from->to transfer observed in the lookback
// window, fed to the circular-transaction detector.
type AccountEdge struct {
	From string
	To   string
}

// EvaluateRequest carries the raw transaction parameters from a payment
// handler; the service resolves history signals and builds the context.
type EvaluateRequest struct {
	UserID          uuid.UUID
	FromAccount     string
	ToAccount       string
	Amount          float64
	Currency        string
	TransactionType string
	Description     string
	Channel         string
	SessionID       string
	Device          *DeviceInfo
	Behavioral      *BehavioralData
}

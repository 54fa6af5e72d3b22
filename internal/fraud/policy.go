package fraud

import "time"

// Engine indices. Aggregation weights and results are keyed by these.
const (
	engineVelocity = iota
	engineBehavioral
	engineRelationship
	engineAmount
	engineDevice
	engineCount
)

var engineNames = [engineCount]string{"velocity", "behavioral", "relationship", "amount", "device"}

// Policy groups every scoring threshold, point value, and ensemble weight in
// one place so the policy stays auditable and testable in isolation. The
// deviation and round-amount cutoffs are tuned heuristics; a real deployment
// calibrates them against labeled fraud data via config overrides.
type Policy struct {
	// Ensemble weights, indexed by engine. Must sum to 1.0.
	Weights [engineCount]float64

	// ReasonActivationScore is the raw engine score above which the
	// engine's reasons are included in the contributing list.
	ReasonActivationScore int

	// Velocity engine
	HighVelocityCount        int // 10-minute count at which velocity is high
	ModerateVelocityCount    int
	HighVelocityPoints       int
	ModerateVelocityPoints   int
	AmountVelocityMultiplier float64 // 10-minute sum vs current amount
	AmountVelocityPoints     int
	DailyCountLimit          int
	DailyCountPoints         int

	// Behavioral engine
	MissingTelemetryPoints int
	ActiveCallPoints       int
	ScreenSharePoints      int
	AnomalyScoreThreshold  float64
	AnomalyScorePoints     int
	ShortSessionDuration   time.Duration
	ShortSessionPoints     int
	CopyPasteLimit         int
	CopyPastePoints        int

	// Relationship engine
	FirstBeneficiaryPoints int
	NewAccountAgeDays      int
	NewAccountPoints       int
	CircularLookback       time.Duration
	CircularPoints         int

	// Amount engine
	HighDeviationPercent     float64
	ModerateDeviationPercent float64
	HighDeviationPoints      int
	ModerateDeviationPoints  int
	RoundAmountDivisor       float64
	RoundAmountFloor         float64
	RoundAmountPoints        int
	LargeAmountThreshold     float64
	LargeAmountPoints        int

	// Device engine
	MissingDevicePoints      int
	UnrecognizedDevicePoints int
	VPNPoints                int
	LocationAnomalyPoints    int

	// Decision thresholds. Monotonic: Block is strictly more restrictive
	// than Challenge, Challenge than Review.
	AllowMaxScore     int
	ReviewMaxScore    int
	ChallengeMaxScore int

	// Fail-safe and re-evaluation scores
	FailSafeScore        int
	ChallengePassedScore int
	ChallengeFailedScore int

	// DefaultAverageAmount stands in for users with no history so the
	// deviation calculation never divides by zero.
	DefaultAverageAmount float64

	// MaxGraphNodes caps circular-detection traversal on dense histories.
	MaxGraphNodes int
}

// DefaultPolicy returns the production scoring policy.
func DefaultPolicy() *Policy {
	return &Policy{
		Weights: [engineCount]float64{
			engineVelocity:     0.30,
			engineBehavioral:   0.25,
			engineRelationship: 0.25,
			engineAmount:       0.15,
			engineDevice:       0.05,
		},

		ReasonActivationScore: 200,

		HighVelocityCount:        5,
		ModerateVelocityCount:    3,
		HighVelocityPoints:       300,
		ModerateVelocityPoints:   150,
		AmountVelocityMultiplier: 10,
		AmountVelocityPoints:     250,
		DailyCountLimit:          20,
		DailyCountPoints:         200,

		MissingTelemetryPoints: 100,
		ActiveCallPoints:       400,
		ScreenSharePoints:      350,
		AnomalyScoreThreshold:  0.7,
		AnomalyScorePoints:     300,
		ShortSessionDuration:   5 * time.Second,
		ShortSessionPoints:     200,
		CopyPasteLimit:         3,
		CopyPastePoints:        150,

		FirstBeneficiaryPoints: 200,
		NewAccountAgeDays:      7,
		NewAccountPoints:       350,
		CircularLookback:       24 * time.Hour,
		CircularPoints:         400,

		HighDeviationPercent:     500,
		ModerateDeviationPercent: 200,
		HighDeviationPoints:      300,
		ModerateDeviationPoints:  150,
		RoundAmountDivisor:       10_000,
		RoundAmountFloor:         100_000,
		RoundAmountPoints:        50,
		LargeAmountThreshold:     1_000_000,
		LargeAmountPoints:        200,

		MissingDevicePoints:      50,
		UnrecognizedDevicePoints: 150,
		VPNPoints:                100,
		LocationAnomalyPoints:    100,

		AllowMaxScore:     200,
		ReviewMaxScore:    400,
		ChallengeMaxScore: 700,

		FailSafeScore:        500,
		ChallengePassedScore: 200,
		ChallengeFailedScore: 950,

		DefaultAverageAmount: 10_000,

		MaxGraphNodes: 100,
	}
}

// decisionFor maps a total score to a decision via the monotonic thresholds.
func (p *Policy) decisionFor(score int) Decision {
	switch {
	case score <= p.AllowMaxScore:
		return DecisionAllow
	case score <= p.ReviewMaxScore:
		return DecisionReview
	case score <= p.ChallengeMaxScore:
		return DecisionChallenge
	default:
		return DecisionBlock
	}
}

// riskLevelFor maps a total score to the reported risk tier.
func (p *Policy) riskLevelFor(score int) RiskLevel {
	switch {
	case score <= p.AllowMaxScore:
		return RiskLevelLow
	case score <= p.ReviewMaxScore:
		return RiskLevelMedium
	case score <= p.ChallengeMaxScore:
		return RiskLevelHigh
	default:
		return RiskLevelCritical
	}
}

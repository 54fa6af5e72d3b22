package fraud

import (
	"context"
	"math"
	"strings"
)

// engineResult is one engine's raw (pre-weight) contribution.
type engineResult struct {
	score   int
	reasons []FraudReason
}

// scoreVelocity checks transaction-count and amount velocity against the
// signals resolved onto the context. Scores are additive and uncapped.
func (s *Service) scoreVelocity(tc *TransactionContext) engineResult {
	var res engineResult

	if tc.RecentTransactionCount >= s.policy.HighVelocityCount {
		res.score += s.policy.HighVelocityPoints
		res.reasons = append(res.reasons, ReasonHighTransactionVelocity)
	} else if tc.RecentTransactionCount >= s.policy.ModerateVelocityCount {
		res.score += s.policy.ModerateVelocityPoints
	}

	if tc.RecentTransactionAmount > s.policy.AmountVelocityMultiplier*tc.Amount {
		res.score += s.policy.AmountVelocityPoints
		res.reasons = append(res.reasons, ReasonHighAmountVelocity)
	}

	if tc.DailyTransactionCount > s.policy.DailyCountLimit {
		res.score += s.policy.DailyCountPoints
		res.reasons = append(res.reasons, ReasonUnusualTransactionPattern)
	}

	return res
}

// scoreBehavior checks the behavioral-biometrics snapshot. Missing telemetry
// is itself a mild risk signal.
func (s *Service) scoreBehavior(tc *TransactionContext) engineResult {
	var res engineResult

	b := tc.Behavioral
	if b == nil {
		res.score = s.policy.MissingTelemetryPoints
		return res
	}

	if b.ActiveCallInProgress {
		// Strongest single social-engineering signal.
		res.score += s.policy.ActiveCallPoints
		res.reasons = append(res.reasons, ReasonAnomalousBehavior)
	}

	if b.ScreenSharingActive {
		res.score += s.policy.ScreenSharePoints
		res.reasons = append(res.reasons, ReasonAnomalousBehavior)
	}

	if b.AnomalyScore > s.policy.AnomalyScoreThreshold {
		res.score += s.policy.AnomalyScorePoints
		res.reasons = append(res.reasons, ReasonAnomalousBehavior)
	}

	if b.SessionDuration > 0 && b.SessionDuration < s.policy.ShortSessionDuration {
		// Automation signature: real sessions take longer than this.
		res.score += s.policy.ShortSessionPoints
		res.reasons = append(res.reasons, ReasonAnomalousBehavior)
	}

	if b.CopyPasteCount > s.policy.CopyPasteLimit {
		res.score += s.policy.CopyPastePoints
	}

	return res
}

// scoreRelationship checks beneficiary novelty, destination account age, and
// circular transfer routes. The only engine that touches the history store.
func (s *Service) scoreRelationship(ctx context.Context, tc *TransactionContext) (engineResult, error) {
	var res engineResult

	if tc.IsFirstTimeBeneficiary {
		res.score += s.policy.FirstBeneficiaryPoints
		res.reasons = append(res.reasons, ReasonFirstTimeBeneficiary)
	}

	if age := tc.DestinationAccountAgeDays; age != nil && *age < s.policy.NewAccountAgeDays {
		res.score += s.policy.NewAccountPoints
		res.reasons = append(res.reasons, ReasonNewAccountBeneficiary, ReasonMuleAccountPattern)
	}

	circular, err := s.DetectCircularTransaction(ctx, tc.FromAccount, tc.ToAccount)
	if err != nil {
		return engineResult{}, err
	}
	if circular {
		res.score += s.policy.CircularPoints
		res.reasons = append(res.reasons, ReasonCircularTransactionDetected)
	}

	return res, nil
}

// scoreAmount checks deviation from the user's historical average and
// structural amount patterns.
func (s *Service) scoreAmount(tc *TransactionContext) engineResult {
	var res engineResult

	if tc.AverageTransactionAmount > 0 {
		deviation := math.Abs(tc.AmountDeviationPercent)
		if deviation > s.policy.HighDeviationPercent {
			res.score += s.policy.HighDeviationPoints
			res.reasons = append(res.reasons, ReasonUnusuallyHighAmount)
		} else if deviation > s.policy.ModerateDeviationPercent {
			res.score += s.policy.ModerateDeviationPoints
		}
	}

	if tc.Amount >= s.policy.RoundAmountFloor && math.Mod(tc.Amount, s.policy.RoundAmountDivisor) == 0 {
		// Floor is set high to avoid false positives on routine round
		// transfers.
		res.score += s.policy.RoundAmountPoints
		res.reasons = append(res.reasons, ReasonRoundAmountPattern)
	}

	if tc.Amount > s.policy.LargeAmountThreshold {
		res.score += s.policy.LargeAmountPoints
	}

	return res
}

// scoreDevice checks device recognition, VPN/proxy, and location signals.
func (s *Service) scoreDevice(tc *TransactionContext) engineResult {
	var res engineResult

	d := tc.Device
	if d == nil {
		res.score = s.policy.MissingDevicePoints
		return res
	}

	if !d.IsRecognized {
		res.score += s.policy.UnrecognizedDevicePoints
		res.reasons = append(res.reasons, ReasonDeviceMismatch)
	}

	if d.IsVPN {
		res.score += s.policy.VPNPoints
	}

	if strings.Contains(d.Location, "Unknown") {
		res.score += s.policy.LocationAnomalyPoints
		res.reasons = append(res.reasons, ReasonLocationAnomaly)
	}

	return res
}

package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/wekezahq/nexus/internal/fraud"
	"github.com/wekezahq/nexus/pkg/common"
	"github.com/wekezahq/nexus/pkg/logger"
	"go.uber.org/zap"
)

// Service handles transfer business logic. Every transfer passes through
// fraud evaluation before money moves; this service enforces the verdict.
type Service struct {
	repo  RepositoryInterface
	fraud FraudEvaluator
}

// NewService creates a new payments service
func NewService(repo RepositoryInterface, fraudSvc FraudEvaluator) *Service {
	return &Service{
		repo:  repo,
		fraud: fraudSvc,
	}
}

// CreateTransfer evaluates and executes a transfer.
//
// Verdict enforcement: Block aborts with a fraud error carrying the context
// ID and score; Challenge parks the transfer pending step-up authentication;
// Review proceeds but is queued for analyst attention by the evaluator;
// Allow proceeds.
func (s *Service) CreateTransfer(ctx context.Context, userID uuid.UUID, req *TransferRequest) (*TransferResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, common.NewBadRequestError("invalid transfer request", err)
	}

	score := s.fraud.EvaluateTransaction(ctx, &fraud.EvaluateRequest{
		UserID:          userID,
		FromAccount:     req.FromAccount,
		ToAccount:       req.ToAccount,
		Amount:          req.Amount,
		Currency:        req.Currency,
		TransactionType: "transfer",
		Description:     req.Description,
		Channel:         req.Channel,
		SessionID:       req.SessionID,
		Device:          req.Device,
		Behavioral:      req.Behavioral,
	})

	now := time.Now()
	transfer := &Transfer{
		ID:             uuid.New(),
		UserID:         userID,
		FromAccount:    req.FromAccount,
		ToAccount:      req.ToAccount,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Description:    req.Description,
		Channel:        req.Channel,
		FraudContextID: score.ContextID,
		RiskScore:      score.TotalScore,
		Decision:       score.Decision,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	switch score.Decision {
	case fraud.DecisionBlock:
		transfer.Status = StatusBlocked
		if err := s.repo.CreateTransfer(ctx, transfer); err != nil {
			logger.WithContext(ctx).Error("Failed to persist blocked transfer", zap.Error(err))
		}
		return nil, common.NewForbiddenError("transaction blocked: " + score.Explanation).WithDetails(map[string]interface{}{
			"fraud_context_id": score.ContextID.String(),
			"risk_score":       score.TotalScore,
			"decision":         score.Decision,
		})

	case fraud.DecisionChallenge:
		transfer.Status = StatusPendingStepUp
		if err := s.repo.CreateTransfer(ctx, transfer); err != nil {
			return nil, common.NewInternalServerError("failed to create transfer")
		}
		// Challenged transactions count as activity for velocity purposes.
		s.recordActivity(ctx, transfer, score.Decision)
		return nil, common.NewForbiddenError("step-up authentication required").WithDetails(map[string]interface{}{
			"fraud_context_id": score.ContextID.String(),
			"risk_score":       score.TotalScore,
			"requires_step_up": true,
		})

	case fraud.DecisionReview:
		// Proceeds transparently for the end user; the evaluator has
		// already queued the verdict for analyst attention.
		logger.WithContext(ctx).Warn("Transfer flagged for review",
			zap.String("transfer_id", transfer.ID.String()),
			zap.String("fraud_context_id", score.ContextID.String()),
			zap.Int("risk_score", score.TotalScore),
		)
	}

	transfer.Status = StatusCompleted
	if err := s.repo.CreateTransfer(ctx, transfer); err != nil {
		return nil, common.NewInternalServerError("failed to create transfer")
	}
	s.recordActivity(ctx, transfer, score.Decision)

	logger.WithContext(ctx).Info("Transfer completed",
		zap.String("transfer_id", transfer.ID.String()),
		zap.String("user_id", userID.String()),
		zap.Float64("amount", transfer.Amount),
		zap.String("decision", string(score.Decision)),
	)

	return &TransferResponse{
		Transfer:       transfer,
		RiskScore:      score.TotalScore,
		RequiresStepUp: false,
	}, nil
}

// CompleteStepUp finishes a transfer held for step-up authentication.
func (s *Service) CompleteStepUp(ctx context.Context, userID uuid.UUID, req *StepUpRequest) (*TransferResponse, error) {
	transfer, err := s.repo.GetTransferByContextID(ctx, req.FraudContextID)
	if err != nil || transfer == nil {
		return nil, common.NewNotFoundError("transfer not found", err)
	}
	if transfer.UserID != userID {
		return nil, common.NewForbiddenError("not authorized to complete this transfer")
	}
	if transfer.Status != StatusPendingStepUp {
		return nil, common.NewConflictError("transfer is not awaiting step-up authentication")
	}

	score := s.fraud.ReEvaluateAfterChallenge(ctx, req.FraudContextID, req.ChallengePassed)

	if score.Decision != fraud.DecisionAllow {
		if err := s.repo.UpdateTransferStatus(ctx, transfer.ID, StatusBlocked); err != nil {
			logger.WithContext(ctx).Error("Failed to block transfer after failed challenge", zap.Error(err))
		}
		return nil, common.NewForbiddenError("transaction blocked: " + score.Explanation).WithDetails(map[string]interface{}{
			"fraud_context_id": score.ContextID.String(),
			"risk_score":       score.TotalScore,
			"decision":         score.Decision,
		})
	}

	if err := s.repo.UpdateTransferStatus(ctx, transfer.ID, StatusCompleted); err != nil {
		return nil, common.NewInternalServerError("failed to complete transfer")
	}
	transfer.Status = StatusCompleted
	transfer.RiskScore = score.TotalScore
	transfer.Decision = score.Decision

	logger.WithContext(ctx).Info("Step-up challenge passed, transfer completed",
		zap.String("transfer_id", transfer.ID.String()),
		zap.String("fraud_context_id", req.FraudContextID.String()),
	)

	return &TransferResponse{
		Transfer:  transfer,
		RiskScore: score.TotalScore,
	}, nil
}

// ListTransfers returns a page of the user's transfers
func (s *Service) ListTransfers(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Transfer, int64, error) {
	return s.repo.ListTransfersByUser(ctx, userID, limit, offset)
}

// recordActivity appends the transfer to the fraud velocity store. Blocked
// transfers never reach this point.
func (s *Service) recordActivity(ctx context.Context, transfer *Transfer, decision fraud.Decision) {
	err := s.fraud.RecordCompletedTransaction(ctx, &fraud.TransactionRecord{
		ID:              uuid.New(),
		UserID:          transfer.UserID,
		FromAccount:     transfer.FromAccount,
		ToAccount:       transfer.ToAccount,
		Amount:          transfer.Amount,
		Currency:        transfer.Currency,
		TransactionType: "transfer",
		Reference:       transfer.ID.String(),
		Decision:        decision,
		CreatedAt:       time.Now(),
	})
	if err != nil {
		logger.WithContext(ctx).Error("Failed to record transaction activity",
			zap.Error(err),
			zap.String("transfer_id", transfer.ID.String()),
		)
	}
}

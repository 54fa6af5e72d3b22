package payments

import (
	"context"

	"github.com/google/uuid"
	"github.com/wekezahq/nexus/internal/fraud"
)

// RepositoryInterface is the persistence surface the service needs
type RepositoryInterface interface {
	CreateTransfer(ctx context.Context, transfer *Transfer) error
	GetTransferByContextID(ctx context.Context, contextID uuid.UUID) (*Transfer, error)
	UpdateTransferStatus(ctx context.Context, transferID uuid.UUID, status TransferStatus) error
	ListTransfersByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Transfer, int64, error)
}

// FraudEvaluator is the fraud service surface the payment flow consumes.
// Verdict enforcement is this package's responsibility, not the evaluator's.
type FraudEvaluator interface {
	EvaluateTransaction(ctx context.Context, req *fraud.EvaluateRequest) *fraud.FraudScore
	ReEvaluateAfterChallenge(ctx context.Context, contextID uuid.UUID, challengePassed bool) *fraud.FraudScore
	RecordCompletedTransaction(ctx context.Context, record *fraud.TransactionRecord) error
}

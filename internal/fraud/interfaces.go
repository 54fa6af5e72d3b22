package fraud

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// HistoryStore is the velocity/history lookup surface backing the evaluator.
// The contract is read-mostly: one append per completed transaction, time-
// windowed reads everywhere else. Append must be safe under concurrent
// writers.
type HistoryStore interface {
	// CountRecentTransactions returns the user's transaction count within
	// the trailing window.
	CountRecentTransactions(ctx context.Context, userID uuid.UUID, window time.Duration) (int, error)

	// SumRecentAmount returns the summed transaction amount within the
	// trailing window.
	SumRecentAmount(ctx context.Context, userID uuid.UUID, window time.Duration) (float64, error)

	// AverageTransactionAmount returns the trailing average amount over the
	// given number of days. Implementations return a non-zero default for
	// users with no history.
	AverageTransactionAmount(ctx context.Context, userID uuid.UUID, days int) (float64, error)

	// IsFirstTimeBeneficiary reports whether the user has never transacted
	// with the destination account before.
	IsFirstTimeBeneficiary(ctx context.Context, userID uuid.UUID, toAccount string) (bool, error)

	// AccountAgeDays returns the destination account's age in days, or nil
	// when the account is not resolvable.
	AccountAgeDays(ctx context.Context, accountNumber string) (*int, error)

	// RecentTransfers returns the directed from->to edges observed within
	// the lookback window, for circular-transaction detection.
	RecentTransfers(ctx context.Context, window time.Duration) ([]AccountEdge, error)

	// RecordTransaction appends a completed transaction. Records are never
	// updated after insertion.
	RecordTransaction(ctx context.Context, record *TransactionRecord) error

	// UpsertAccountMetadata stores or refreshes what is known about an
	// account.
	UpsertAccountMetadata(ctx context.Context, meta *AccountMetadata) error
}

// EvaluationStore persists the append-only audit trail of evaluations.
type EvaluationStore interface {
	SaveEvaluation(ctx context.Context, eval *FraudEvaluation) error
	GetEvaluation(ctx context.Context, contextID uuid.UUID) (*FraudEvaluation, error)
	ListRecentEvaluations(ctx context.Context, limit, offset int) ([]*FraudEvaluation, int64, error)
}

// AlertPublisher pushes Review and Block verdicts onto the analyst queue.
// Publish failures must never affect the verdict returned to the caller.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, eval *FraudEvaluation) error
}

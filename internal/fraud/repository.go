package fraud

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wekezahq/nexus/pkg/common"
)

// recentTransfersLimit bounds the edge set fed to the circular detector so
// one query cannot pull an unbounded history slice.
const recentTransfersLimit = 500

// Repository is the PostgreSQL implementation of HistoryStore and
// EvaluationStore.
type Repository struct {
	db                   *pgxpool.Pool
	defaultAverageAmount float64
}

var (
	_ HistoryStore    = (*Repository)(nil)
	_ EvaluationStore = (*Repository)(nil)
)

// NewRepository creates a new fraud repository
func NewRepository(db *pgxpool.Pool, defaultAverageAmount float64) *Repository {
	return &Repository{db: db, defaultAverageAmount: defaultAverageAmount}
}

// CountRecentTransactions returns the user's transaction count in the window
func (r *Repository) CountRecentTransactions(ctx context.Context, userID uuid.UUID, window time.Duration) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM transaction_records
		WHERE user_id = $1 AND created_at >= $2
	`

	var count int
	err := r.db.QueryRow(ctx, query, userID, time.Now().Add(-window)).Scan(&count)
	return count, err
}

// SumRecentAmount returns the summed transaction amount in the window
func (r *Repository) SumRecentAmount(ctx context.Context, userID uuid.UUID, window time.Duration) (float64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM transaction_records
		WHERE user_id = $1 AND created_at >= $2
	`

	var sum float64
	err := r.db.QueryRow(ctx, query, userID, time.Now().Add(-window)).Scan(&sum)
	return sum, err
}

// AverageTransactionAmount returns the trailing average amount with a
// non-zero default for users with no history
func (r *Repository) AverageTransactionAmount(ctx context.Context, userID uuid.UUID, days int) (float64, error) {
	query := `
		SELECT COALESCE(AVG(amount), $3)
		FROM transaction_records
		WHERE user_id = $1 AND created_at >= $2
	`

	var avg float64
	err := r.db.QueryRow(ctx, query, userID, time.Now().AddDate(0, 0, -days), r.defaultAverageAmount).Scan(&avg)
	if err != nil {
		return 0, err
	}
	if avg == 0 {
		avg = r.defaultAverageAmount
	}
	return avg, nil
}

// IsFirstTimeBeneficiary checks whether the user has sent to this account before
func (r *Repository) IsFirstTimeBeneficiary(ctx context.Context, userID uuid.UUID, toAccount string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM transaction_records
			WHERE user_id = $1 AND to_account = $2
		)
	`

	var exists bool
	err := r.db.QueryRow(ctx, query, userID, toAccount).Scan(&exists)
	return !exists, err
}

// AccountAgeDays returns the destination account's age in days, nil if unknown
func (r *Repository) AccountAgeDays(ctx context.Context, accountNumber string) (*int, error) {
	query := `
		SELECT created_at FROM account_metadata WHERE account_number = $1
	`

	var createdAt time.Time
	err := r.db.QueryRow(ctx, query, accountNumber).Scan(&createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	age := int(time.Since(createdAt).Hours() / 24)
	return &age, nil
}

// RecentTransfers returns directed from->to edges within the window
func (r *Repository) RecentTransfers(ctx context.Context, window time.Duration) ([]AccountEdge, error) {
	query := `
		SELECT from_account, to_account
		FROM transaction_records
		WHERE created_at >= $1 AND from_account <> '' AND to_account <> ''
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, time.Now().Add(-window), recentTransfersLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []AccountEdge
	for rows.Next() {
		var edge AccountEdge
		if err := rows.Scan(&edge.From, &edge.To); err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

// RecordTransaction appends a completed transaction record
func (r *Repository) RecordTransaction(ctx context.Context, record *TransactionRecord) error {
	query := `
		INSERT INTO transaction_records (
			id, user_id, from_account, to_account, amount, currency,
			transaction_type, reference, decision, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Exec(ctx, query,
		record.ID,
		record.UserID,
		record.FromAccount,
		record.ToAccount,
		record.Amount,
		record.Currency,
		record.TransactionType,
		record.Reference,
		record.Decision,
		record.CreatedAt,
	)

	return err
}

// UpsertAccountMetadata stores or refreshes account metadata
func (r *Repository) UpsertAccountMetadata(ctx context.Context, meta *AccountMetadata) error {
	query := `
		INSERT INTO account_metadata (account_number, created_at)
		VALUES ($1, $2)
		ON CONFLICT (account_number) DO UPDATE SET created_at = EXCLUDED.created_at
	`

	_, err := r.db.Exec(ctx, query, meta.AccountNumber, meta.CreatedAt)
	return err
}

// SaveEvaluation appends an audit record. Evaluations are never updated or
// deleted.
func (r *Repository) SaveEvaluation(ctx context.Context, eval *FraudEvaluation) error {
	reasonsJSON, err := json.Marshal(eval.Score.ContributingReasons)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO fraud_evaluations (
			id, context_id, user_id, transaction_ref, amount, total_score,
			primary_reason, contributing_reasons, explanation, confidence,
			decision, risk_level, requires_step_up, processing_time_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err = r.db.Exec(ctx, query,
		eval.ID,
		eval.ContextID,
		eval.UserID,
		eval.TransactionRef,
		eval.Amount,
		eval.Score.TotalScore,
		eval.Score.PrimaryReason,
		reasonsJSON,
		eval.Score.Explanation,
		eval.Score.Confidence,
		eval.Score.Decision,
		eval.Score.RiskLevel,
		eval.Score.RequiresStepUpAuth,
		eval.ProcessingTime.Milliseconds(),
		eval.CreatedAt,
	)

	return err
}

// GetEvaluation returns the latest audit record for a context ID
func (r *Repository) GetEvaluation(ctx context.Context, contextID uuid.UUID) (*FraudEvaluation, error) {
	query := `
		SELECT id, context_id, user_id, transaction_ref, amount, total_score,
		       primary_reason, contributing_reasons, explanation, confidence,
		       decision, risk_level, requires_step_up, processing_time_ms, created_at
		FROM fraud_evaluations
		WHERE context_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	eval, err := r.scanEvaluation(r.db.QueryRow(ctx, query, contextID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.NewNotFoundError("evaluation not found", err)
	}
	return eval, err
}

// ListRecentEvaluations returns a page of audit records, newest first
func (r *Repository) ListRecentEvaluations(ctx context.Context, limit, offset int) ([]*FraudEvaluation, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM fraud_evaluations`).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, context_id, user_id, transaction_ref, amount, total_score,
		       primary_reason, contributing_reasons, explanation, confidence,
		       decision, risk_level, requires_step_up, processing_time_ms, created_at
		FROM fraud_evaluations
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var evals []*FraudEvaluation
	for rows.Next() {
		eval, err := r.scanEvaluation(rows)
		if err != nil {
			return nil, 0, err
		}
		evals = append(evals, eval)
	}
	return evals, total, rows.Err()
}

func (r *Repository) scanEvaluation(row pgx.Row) (*FraudEvaluation, error) {
	var eval FraudEvaluation
	var reasonsJSON []byte
	var processingMS int64

	err := row.Scan(
		&eval.ID,
		&eval.ContextID,
		&eval.UserID,
		&eval.TransactionRef,
		&eval.Amount,
		&eval.Score.TotalScore,
		&eval.Score.PrimaryReason,
		&reasonsJSON,
		&eval.Score.Explanation,
		&eval.Score.Confidence,
		&eval.Score.Decision,
		&eval.Score.RiskLevel,
		&eval.Score.RequiresStepUpAuth,
		&processingMS,
		&eval.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(reasonsJSON, &eval.Score.ContributingReasons); err != nil {
		eval.Score.ContributingReasons = nil
	}
	eval.Score.ContextID = eval.ContextID
	eval.ProcessingTime = time.Duration(processingMS) * time.Millisecond

	return &eval, nil
}

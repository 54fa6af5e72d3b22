package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles transfer data operations
type Repository struct {
	db *pgxpool.Pool
}

// Ensure the concrete repository satisfies the service's requirements.
var _ RepositoryInterface = (*Repository)(nil)

// NewRepository creates a new payments repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateTransfer inserts a new transfer
func (r *Repository) CreateTransfer(ctx context.Context, transfer *Transfer) error {
	query := `
		INSERT INTO transfers (
			id, user_id, from_account, to_account, amount, currency,
			description, channel, status, fraud_context_id, risk_score,
			decision, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.Exec(ctx, query,
		transfer.ID,
		transfer.UserID,
		transfer.FromAccount,
		transfer.ToAccount,
		transfer.Amount,
		transfer.Currency,
		transfer.Description,
		transfer.Channel,
		transfer.Status,
		transfer.FraudContextID,
		transfer.RiskScore,
		transfer.Decision,
		transfer.CreatedAt,
		transfer.UpdatedAt,
	)

	return err
}

// GetTransferByContextID retrieves a transfer by its fraud context ID
func (r *Repository) GetTransferByContextID(ctx context.Context, contextID uuid.UUID) (*Transfer, error) {
	query := `
		SELECT id, user_id, from_account, to_account, amount, currency,
		       description, channel, status, fraud_context_id, risk_score,
		       decision, created_at, updated_at
		FROM transfers
		WHERE fraud_context_id = $1
	`

	var t Transfer
	err := r.db.QueryRow(ctx, query, contextID).Scan(
		&t.ID,
		&t.UserID,
		&t.FromAccount,
		&t.ToAccount,
		&t.Amount,
		&t.Currency,
		&t.Description,
		&t.Channel,
		&t.Status,
		&t.FraudContextID,
		&t.RiskScore,
		&t.Decision,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &t, nil
}

// UpdateTransferStatus updates a transfer's lifecycle status
func (r *Repository) UpdateTransferStatus(ctx context.Context, transferID uuid.UUID, status TransferStatus) error {
	query := `
		UPDATE transfers SET status = $2, updated_at = $3 WHERE id = $1
	`

	_, err := r.db.Exec(ctx, query, transferID, status, time.Now())
	return err
}

// ListTransfersByUser returns a page of the user's transfers, newest first
func (r *Repository) ListTransfersByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Transfer, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM transfers WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, user_id, from_account, to_account, amount, currency,
		       description, channel, status, fraud_context_id, risk_score,
		       decision, created_at, updated_at
		FROM transfers
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var transfers []*Transfer
	for rows.Next() {
		var t Transfer
		err := rows.Scan(
			&t.ID,
			&t.UserID,
			&t.FromAccount,
			&t.ToAccount,
			&t.Amount,
			&t.Currency,
			&t.Description,
			&t.Channel,
			&t.Status,
			&t.FraudContextID,
			&t.RiskScore,
			&t.Decision,
			&t.CreatedAt,
			&t.UpdatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		transfers = append(transfers, &t)
	}

	return transfers, total, rows.Err()
}

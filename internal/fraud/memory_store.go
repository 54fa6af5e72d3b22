package fraud

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wekezahq/nexus/pkg/common"
)

// MemoryStore is an in-memory implementation of HistoryStore and
// EvaluationStore, used in dev mode and tests. All access is serialized by
// a sync.RWMutex; appends never lose records under concurrent writers.
type MemoryStore struct {
	mu sync.RWMutex

	recordsByUser map[uuid.UUID][]*TransactionRecord
	records       []*TransactionRecord
	accounts      map[string]*AccountMetadata
	evaluations   []*FraudEvaluation

	defaultAverageAmount float64
}

var (
	_ HistoryStore    = (*MemoryStore)(nil)
	_ EvaluationStore = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(defaultAverageAmount float64) *MemoryStore {
	return &MemoryStore{
		recordsByUser:        make(map[uuid.UUID][]*TransactionRecord),
		accounts:             make(map[string]*AccountMetadata),
		defaultAverageAmount: defaultAverageAmount,
	}
}

// CountRecentTransactions returns the user's transaction count in the window.
func (m *MemoryStore) CountRecentTransactions(_ context.Context, userID uuid.UUID, window time.Duration) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().Add(-window)
	count := 0
	for _, r := range m.recordsByUser[userID] {
		if !r.CreatedAt.Before(cutoff) {
			count++
		}
	}
	return count, nil
}

// SumRecentAmount returns the summed amount of the user's transactions in
// the window.
func (m *MemoryStore) SumRecentAmount(_ context.Context, userID uuid.UUID, window time.Duration) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().Add(-window)
	sum := 0.0
	for _, r := range m.recordsByUser[userID] {
		if !r.CreatedAt.Before(cutoff) {
			sum += r.Amount
		}
	}
	return sum, nil
}

// AverageTransactionAmount returns the trailing average amount, or the
// configured default for users with no history in the window.
func (m *MemoryStore) AverageTransactionAmount(_ context.Context, userID uuid.UUID, days int) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().AddDate(0, 0, -days)
	sum := 0.0
	count := 0
	for _, r := range m.recordsByUser[userID] {
		if !r.CreatedAt.Before(cutoff) {
			sum += r.Amount
			count++
		}
	}
	if count == 0 {
		return m.defaultAverageAmount, nil
	}
	return sum / float64(count), nil
}

// IsFirstTimeBeneficiary reports whether the user has never sent to the
// destination account.
func (m *MemoryStore) IsFirstTimeBeneficiary(_ context.Context, userID uuid.UUID, toAccount string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.recordsByUser[userID] {
		if r.ToAccount == toAccount {
			return false, nil
		}
	}
	return true, nil
}

// AccountAgeDays returns the account's age in days, or nil when unknown.
func (m *MemoryStore) AccountAgeDays(_ context.Context, accountNumber string) (*int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	meta, ok := m.accounts[accountNumber]
	if !ok {
		return nil, nil
	}
	age := int(time.Since(meta.CreatedAt).Hours() / 24)
	return &age, nil
}

// RecentTransfers returns directed from->to edges within the window.
func (m *MemoryStore) RecentTransfers(_ context.Context, window time.Duration) ([]AccountEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().Add(-window)
	var edges []AccountEdge
	for _, r := range m.records {
		if !r.CreatedAt.Before(cutoff) && r.FromAccount != "" && r.ToAccount != "" {
			edges = append(edges, AccountEdge{From: r.FromAccount, To: r.ToAccount})
		}
	}
	return edges, nil
}

// RecordTransaction appends a completed transaction.
func (m *MemoryStore) RecordTransaction(_ context.Context, record *TransactionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = append(m.records, record)
	m.recordsByUser[record.UserID] = append(m.recordsByUser[record.UserID], record)
	return nil
}

// UpsertAccountMetadata stores or refreshes account metadata.
func (m *MemoryStore) UpsertAccountMetadata(_ context.Context, meta *AccountMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.accounts[meta.AccountNumber] = meta
	return nil
}

// SaveEvaluation appends an audit record.
func (m *MemoryStore) SaveEvaluation(_ context.Context, eval *FraudEvaluation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evaluations = append(m.evaluations, eval)
	return nil
}

// GetEvaluation returns the latest audit record for a context ID.
func (m *MemoryStore) GetEvaluation(_ context.Context, contextID uuid.UUID) (*FraudEvaluation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.evaluations) - 1; i >= 0; i-- {
		if m.evaluations[i].ContextID == contextID {
			return m.evaluations[i], nil
		}
	}
	return nil, common.NewNotFoundError("evaluation not found", nil)
}

// ListRecentEvaluations returns a page of audit records, newest first.
func (m *MemoryStore) ListRecentEvaluations(_ context.Context, limit, offset int) ([]*FraudEvaluation, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sorted := make([]*FraudEvaluation, len(m.evaluations))
	copy(sorted, m.evaluations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	total := int64(len(sorted))
	if offset >= len(sorted) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(sorted) {
		end = len(sorted)
	}
	return sorted[offset:end], total, nil
}

package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wekezahq/nexus/internal/fraud"
	"github.com/wekezahq/nexus/pkg/common"
)

// ========================================
// MOCK IMPLEMENTATIONS
// ========================================

// MockRepository is a mock implementation of RepositoryInterface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateTransfer(ctx context.Context, transfer *Transfer) error {
	args := m.Called(ctx, transfer)
	return args.Error(0)
}

func (m *MockRepository) GetTransferByContextID(ctx context.Context, contextID uuid.UUID) (*Transfer, error) {
	args := m.Called(ctx, contextID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Transfer), args.Error(1)
}

func (m *MockRepository) UpdateTransferStatus(ctx context.Context, transferID uuid.UUID, status TransferStatus) error {
	args := m.Called(ctx, transferID, status)
	return args.Error(0)
}

func (m *MockRepository) ListTransfersByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Transfer, int64, error) {
	args := m.Called(ctx, userID, limit, offset)
	transfers, _ := args.Get(0).([]*Transfer)
	return transfers, int64(args.Int(1)), args.Error(2)
}

// MockFraudEvaluator is a mock implementation of FraudEvaluator
type MockFraudEvaluator struct {
	mock.Mock
}

func (m *MockFraudEvaluator) EvaluateTransaction(ctx context.Context, req *fraud.EvaluateRequest) *fraud.FraudScore {
	args := m.Called(ctx, req)
	return args.Get(0).(*fraud.FraudScore)
}

func (m *MockFraudEvaluator) ReEvaluateAfterChallenge(ctx context.Context, contextID uuid.UUID, challengePassed bool) *fraud.FraudScore {
	args := m.Called(ctx, contextID, challengePassed)
	return args.Get(0).(*fraud.FraudScore)
}

func (m *MockFraudEvaluator) RecordCompletedTransaction(ctx context.Context, record *fraud.TransactionRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

// ========================================
// HELPERS
// ========================================

func validRequest() *TransferRequest {
	return &TransferRequest{
		FromAccount: "ACC-001",
		ToAccount:   "ACC-002",
		Amount:      25_000,
		Currency:    "KES",
		Description: "rent",
		Channel:     "mobile",
	}
}

func scoreWith(decision fraud.Decision, total int) *fraud.FraudScore {
	return &fraud.FraudScore{
		ContextID:          uuid.New(),
		TotalScore:         total,
		PrimaryReason:      fraud.ReasonNone,
		Explanation:        "test verdict",
		Decision:           decision,
		RiskLevel:          fraud.RiskLevelLow,
		RequiresStepUpAuth: decision == fraud.DecisionChallenge,
	}
}

// ========================================
// CREATE TRANSFER
// ========================================

func TestCreateTransfer_Allowed(t *testing.T) {
	repo := new(MockRepository)
	evaluator := new(MockFraudEvaluator)
	svc := NewService(repo, evaluator)
	userID := uuid.New()

	evaluator.On("EvaluateTransaction", mock.Anything, mock.Anything).Return(scoreWith(fraud.DecisionAllow, 50))
	repo.On("CreateTransfer", mock.Anything, mock.MatchedBy(func(tr *Transfer) bool {
		return tr.Status == StatusCompleted && tr.UserID == userID
	})).Return(nil)
	evaluator.On("RecordCompletedTransaction", mock.Anything, mock.Anything).Return(nil)

	resp, err := svc.CreateTransfer(context.Background(), userID, validRequest())
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, StatusCompleted, resp.Transfer.Status)
	assert.Equal(t, 50, resp.RiskScore)
	assert.False(t, resp.RequiresStepUp)

	repo.AssertExpectations(t)
	evaluator.AssertExpectations(t)
}

func TestCreateTransfer_Blocked(t *testing.T) {
	repo := new(MockRepository)
	evaluator := new(MockFraudEvaluator)
	svc := NewService(repo, evaluator)

	score := scoreWith(fraud.DecisionBlock, 800)
	evaluator.On("EvaluateTransaction", mock.Anything, mock.Anything).Return(score)
	repo.On("CreateTransfer", mock.Anything, mock.MatchedBy(func(tr *Transfer) bool {
		return tr.Status == StatusBlocked
	})).Return(nil)

	resp, err := svc.CreateTransfer(context.Background(), uuid.New(), validRequest())
	require.Error(t, err)
	assert.Nil(t, resp)

	appErr, ok := err.(*common.AppError)
	require.True(t, ok)
	assert.Equal(t, 403, appErr.Code)
	assert.Equal(t, score.ContextID.String(), appErr.Details["fraud_context_id"])

	// Blocked transfers never become velocity activity.
	evaluator.AssertNotCalled(t, "RecordCompletedTransaction", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestCreateTransfer_ChallengeParksTransfer(t *testing.T) {
	repo := new(MockRepository)
	evaluator := new(MockFraudEvaluator)
	svc := NewService(repo, evaluator)

	score := scoreWith(fraud.DecisionChallenge, 550)
	evaluator.On("EvaluateTransaction", mock.Anything, mock.Anything).Return(score)
	repo.On("CreateTransfer", mock.Anything, mock.MatchedBy(func(tr *Transfer) bool {
		return tr.Status == StatusPendingStepUp
	})).Return(nil)
	evaluator.On("RecordCompletedTransaction", mock.Anything, mock.MatchedBy(func(r *fraud.TransactionRecord) bool {
		return r.Decision == fraud.DecisionChallenge
	})).Return(nil)

	resp, err := svc.CreateTransfer(context.Background(), uuid.New(), validRequest())
	require.Error(t, err)
	assert.Nil(t, resp)

	appErr, ok := err.(*common.AppError)
	require.True(t, ok)
	assert.Equal(t, 403, appErr.Code)
	assert.Equal(t, true, appErr.Details["requires_step_up"])

	repo.AssertExpectations(t)
	evaluator.AssertExpectations(t)
}

func TestCreateTransfer_ReviewProceedsTransparently(t *testing.T) {
	repo := new(MockRepository)
	evaluator := new(MockFraudEvaluator)
	svc := NewService(repo, evaluator)

	evaluator.On("EvaluateTransaction", mock.Anything, mock.Anything).Return(scoreWith(fraud.DecisionReview, 350))
	repo.On("CreateTransfer", mock.Anything, mock.MatchedBy(func(tr *Transfer) bool {
		return tr.Status == StatusCompleted
	})).Return(nil)
	evaluator.On("RecordCompletedTransaction", mock.Anything, mock.Anything).Return(nil)

	// The end user sees a completed transfer; analysts see the flag.
	resp, err := svc.CreateTransfer(context.Background(), uuid.New(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, resp.Transfer.Status)

	repo.AssertExpectations(t)
}

func TestCreateTransfer_InvalidRequest(t *testing.T) {
	repo := new(MockRepository)
	evaluator := new(MockFraudEvaluator)
	svc := NewService(repo, evaluator)

	tests := []struct {
		name   string
		mutate func(req *TransferRequest)
	}{
		{"zero amount", func(req *TransferRequest) { req.Amount = 0 }},
		{"negative amount", func(req *TransferRequest) { req.Amount = -100 }},
		{"same source and destination", func(req *TransferRequest) { req.ToAccount = req.FromAccount }},
		{"bogus currency", func(req *TransferRequest) { req.Currency = "XYZ" }},
		{"bogus channel", func(req *TransferRequest) { req.Channel = "carrier-pigeon" }},
		{"missing from account", func(req *TransferRequest) { req.FromAccount = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)

			resp, err := svc.CreateTransfer(context.Background(), uuid.New(), req)
			require.Error(t, err)
			assert.Nil(t, resp)

			appErr, ok := err.(*common.AppError)
			require.True(t, ok)
			assert.Equal(t, 400, appErr.Code)
		})
	}

	// Invalid requests never reach the evaluator.
	evaluator.AssertNotCalled(t, "EvaluateTransaction", mock.Anything, mock.Anything)
}

func TestCreateTransfer_PersistenceFailure(t *testing.T) {
	repo := new(MockRepository)
	evaluator := new(MockFraudEvaluator)
	svc := NewService(repo, evaluator)

	evaluator.On("EvaluateTransaction", mock.Anything, mock.Anything).Return(scoreWith(fraud.DecisionAllow, 50))
	repo.On("CreateTransfer", mock.Anything, mock.Anything).Return(errors.New("connection reset"))

	resp, err := svc.CreateTransfer(context.Background(), uuid.New(), validRequest())
	require.Error(t, err)
	assert.Nil(t, resp)

	appErr, ok := err.(*common.AppError)
	require.True(t, ok)
	assert.Equal(t, 500, appErr.Code)
}

// ========================================
// STEP-UP COMPLETION
// ========================================

func TestCompleteStepUp_Passed(t *testing.T) {
	repo := new(MockRepository)
	evaluator := new(MockFraudEvaluator)
	svc := NewService(repo, evaluator)

	userID := uuid.New()
	contextID := uuid.New()
	transfer := &Transfer{
		ID:             uuid.New(),
		UserID:         userID,
		Status:         StatusPendingStepUp,
		FraudContextID: contextID,
		Amount:         25_000,
		CreatedAt:      time.Now(),
	}

	repo.On("GetTransferByContextID", mock.Anything, contextID).Return(transfer, nil)
	evaluator.On("ReEvaluateAfterChallenge", mock.Anything, contextID, true).
		Return(scoreWith(fraud.DecisionAllow, 200))
	repo.On("UpdateTransferStatus", mock.Anything, transfer.ID, StatusCompleted).Return(nil)

	resp, err := svc.CompleteStepUp(context.Background(), userID, &StepUpRequest{
		FraudContextID:  contextID,
		ChallengePassed: true,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, resp.Transfer.Status)
	assert.Equal(t, 200, resp.RiskScore)

	repo.AssertExpectations(t)
	evaluator.AssertExpectations(t)
}

func TestCompleteStepUp_FailedChallengeBlocks(t *testing.T) {
	repo := new(MockRepository)
	evaluator := new(MockFraudEvaluator)
	svc := NewService(repo, evaluator)

	userID := uuid.New()
	contextID := uuid.New()
	transfer := &Transfer{
		ID:             uuid.New(),
		UserID:         userID,
		Status:         StatusPendingStepUp,
		FraudContextID: contextID,
	}

	blocked := scoreWith(fraud.DecisionBlock, 950)
	repo.On("GetTransferByContextID", mock.Anything, contextID).Return(transfer, nil)
	evaluator.On("ReEvaluateAfterChallenge", mock.Anything, contextID, false).Return(blocked)
	repo.On("UpdateTransferStatus", mock.Anything, transfer.ID, StatusBlocked).Return(nil)

	resp, err := svc.CompleteStepUp(context.Background(), userID, &StepUpRequest{
		FraudContextID:  contextID,
		ChallengePassed: false,
	})
	require.Error(t, err)
	assert.Nil(t, resp)

	appErr, ok := err.(*common.AppError)
	require.True(t, ok)
	assert.Equal(t, 403, appErr.Code)

	repo.AssertExpectations(t)
}

func TestCompleteStepUp_NotFound(t *testing.T) {
	repo := new(MockRepository)
	evaluator := new(MockFraudEvaluator)
	svc := NewService(repo, evaluator)

	contextID := uuid.New()
	repo.On("GetTransferByContextID", mock.Anything, contextID).Return(nil, nil)

	_, err := svc.CompleteStepUp(context.Background(), uuid.New(), &StepUpRequest{FraudContextID: contextID})
	require.Error(t, err)

	appErr, ok := err.(*common.AppError)
	require.True(t, ok)
	assert.Equal(t, 404, appErr.Code)
}

func TestCompleteStepUp_WrongUser(t *testing.T) {
	repo := new(MockRepository)
	evaluator := new(MockFraudEvaluator)
	svc := NewService(repo, evaluator)

	contextID := uuid.New()
	transfer := &Transfer{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		Status:         StatusPendingStepUp,
		FraudContextID: contextID,
	}
	repo.On("GetTransferByContextID", mock.Anything, contextID).Return(transfer, nil)

	_, err := svc.CompleteStepUp(context.Background(), uuid.New(), &StepUpRequest{FraudContextID: contextID})
	require.Error(t, err)

	appErr, ok := err.(*common.AppError)
	require.True(t, ok)
	assert.Equal(t, 403, appErr.Code)

	evaluator.AssertNotCalled(t, "ReEvaluateAfterChallenge", mock.Anything, mock.Anything, mock.Anything)
}

func TestCompleteStepUp_AlreadyCompleted(t *testing.T) {
	repo := new(MockRepository)
	evaluator := new(MockFraudEvaluator)
	svc := NewService(repo, evaluator)

	userID := uuid.New()
	contextID := uuid.New()
	transfer := &Transfer{
		ID:             uuid.New(),
		UserID:         userID,
		Status:         StatusCompleted,
		FraudContextID: contextID,
	}
	repo.On("GetTransferByContextID", mock.Anything, contextID).Return(transfer, nil)

	_, err := svc.CompleteStepUp(context.Background(), userID, &StepUpRequest{FraudContextID: contextID})
	require.Error(t, err)

	appErr, ok := err.(*common.AppError)
	require.True(t, ok)
	assert.Equal(t, 409, appErr.Code)
}

// ========================================
// LISTING
// ========================================

func TestListTransfers(t *testing.T) {
	repo := new(MockRepository)
	evaluator := new(MockFraudEvaluator)
	svc := NewService(repo, evaluator)

	userID := uuid.New()
	expected := []*Transfer{{ID: uuid.New(), UserID: userID}}
	repo.On("ListTransfersByUser", mock.Anything, userID, 20, 0).Return(expected, 1, nil)

	transfers, total, err := svc.ListTransfers(context.Background(), userID, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, expected, transfers)
}

package payments

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/wekezahq/nexus/internal/fraud"
)

// TransferStatus is the lifecycle state of a transfer
type TransferStatus string

const (
	StatusCompleted     TransferStatus = "completed"
	StatusPendingStepUp TransferStatus = "pending_stepup"
	StatusBlocked       TransferStatus = "blocked"
)

// Transfer is a money transfer processed through fraud evaluation
type Transfer struct {
	ID             uuid.UUID      `json:"id"`
	UserID         uuid.UUID      `json:"user_id"`
	FromAccount    string         `json:"from_account"`
	ToAccount      string         `json:"to_account"`
	Amount         float64        `json:"amount"`
	Currency       string         `json:"currency"`
	Description    string         `json:"description"`
	Channel        string         `json:"channel"`
	Status         TransferStatus `json:"status"`
	FraudContextID uuid.UUID      `json:"fraud_context_id"`
	RiskScore      int            `json:"risk_score"`
	Decision       fraud.Decision `json:"decision"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// TransferRequest is the transfer creation payload
type TransferRequest struct {
	FromAccount string  `json:"from_account" binding:"required"`
	ToAccount   string  `json:"to_account" binding:"required,nefield=FromAccount"`
	Amount      float64 `json:"amount" binding:"required,gt=0"`
	Currency    string  `json:"currency" binding:"required,iso4217"`
	Description string  `json:"description"`
	Channel     string  `json:"channel" binding:"omitempty,oneof=web mobile ussd branch"`
	SessionID   string  `json:"session_id"`

	Device     *fraud.DeviceInfo     `json:"device,omitempty"`
	Behavioral *fraud.BehavioralData `json:"behavioral,omitempty"`
}

// Validate runs struct-level validation beyond gin's binding tags.
func (r *TransferRequest) Validate() error {
	return requestValidator.Struct(r)
}

// requestValidator reuses the binding tags so handler-level binding and
// service-level validation enforce the same rules.
var requestValidator = func() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	return v
}()

// StepUpRequest completes a pending step-up challenge for a transfer
type StepUpRequest struct {
	FraudContextID  uuid.UUID `json:"fraud_context_id" binding:"required"`
	ChallengePassed bool      `json:"challenge_passed"`
}

// TransferResponse is returned to the channel after a transfer attempt
type TransferResponse struct {
	Transfer       *Transfer `json:"transfer"`
	RiskScore      int       `json:"risk_score"`
	RequiresStepUp bool      `json:"requires_step_up"`
}

package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Request DTOs
// ---------------------------------------------------------------------------

// ChatRequest is one inbound user turn.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// VerifyKYCRequest binds a phone number to a session outside the chat flow.
type VerifyKYCRequest struct {
	SessionID string `json:"session_id"`
	Phone     string `json:"phone"`
}

// RunUnderwritingRequest evaluates the session's current loan request.
// MonthlySalary, when set, overrides any salary on file.
type RunUnderwritingRequest struct {
	SessionID     string              `json:"session_id"`
	MonthlySalary decimal.NullDecimal `json:"monthly_salary"`
}

// GenerateSanctionRequest finalises an approved session.
type GenerateSanctionRequest struct {
	SessionID string `json:"session_id"`
}

// UploadSalaryRequest attaches a declared salary and its supporting document.
type UploadSalaryRequest struct {
	SessionID     string          `json:"session_id"`
	MonthlySalary decimal.Decimal `json:"monthly_salary"`
	Filename      string          `json:"filename"`
	ContentType   string          `json:"content_type,omitempty"`
	SizeBytes     int64           `json:"size_bytes,omitempty"`
}

// GetOffersRequest identifies the customer to quote.
type GetOffersRequest struct {
	CustomerID string `json:"customer_id"`
}

// GetSessionRequest identifies a session to retrieve.
type GetSessionRequest struct {
	SessionID string `json:"session_id"`
}

// ListRequest bounds a listing. Zero means the default page size.
type ListRequest struct {
	Limit int `json:"limit"`
}

// GetSanctionRequest identifies a sanction to retrieve.
type GetSanctionRequest struct {
	SanctionID string `json:"sanction_id"`
}

// ---------------------------------------------------------------------------
// Response DTOs
// ---------------------------------------------------------------------------

// CustomerSummary is the customer data shown once KYC succeeds.
type CustomerSummary struct {
	CustomerID       string          `json:"customer_id"`
	Name             string          `json:"name"`
	PreApprovedLimit decimal.Decimal `json:"pre_approved_limit"`
}

// LoanTermsResponse is the external representation of sanction terms.
type LoanTermsResponse struct {
	Amount       decimal.Decimal `json:"amount"`
	TenureMonths int             `json:"tenure_months"`
	InterestRate decimal.Decimal `json:"interest_rate"`
	EMI          decimal.Decimal `json:"emi"`
	TotalPayable decimal.Decimal `json:"total_payable"`
}

// DecisionResponse is the outcome of one underwriting evaluation.
type DecisionResponse struct {
	Outcome               string              `json:"outcome"`
	Reason                string              `json:"reason"`
	Terms                 *LoanTermsResponse  `json:"terms,omitempty"`
	SuggestedMaxPrincipal decimal.NullDecimal `json:"suggested_max_principal,omitempty"`
	RepeatedQuery         bool                `json:"repeated_query,omitempty"`
}

// ChatResponse is the assistant's answer to one turn.
type ChatResponse struct {
	SessionID   string            `json:"session_id"`
	Reply       string            `json:"reply"`
	NextAction  string            `json:"next_action"`
	Step        string            `json:"step"`
	Status      string            `json:"status"`
	Customer    *CustomerSummary  `json:"customer,omitempty"`
	Decision    *DecisionResponse `json:"decision,omitempty"`
	SanctionID  string            `json:"sanction_id,omitempty"`
	DownloadURL string            `json:"download_url,omitempty"`
}

// VerifyKYCResponse reports whether the phone matched a customer.
type VerifyKYCResponse struct {
	Verified bool             `json:"verified"`
	Message  string           `json:"message"`
	Customer *CustomerSummary `json:"customer,omitempty"`
}

// UploadSalaryResponse confirms a salary upload.
type UploadSalaryResponse struct {
	SessionID     string          `json:"session_id"`
	CustomerID    string          `json:"customer_id"`
	MonthlySalary decimal.Decimal `json:"monthly_salary"`
	Message       string          `json:"message"`
}

// OfferResponse is one indicative quote.
type OfferResponse struct {
	TenureMonths int             `json:"tenure_months"`
	InterestRate decimal.Decimal `json:"interest_rate"`
	MaxAmount    decimal.Decimal `json:"max_amount"`
	EMI          decimal.Decimal `json:"emi"`
}

// OffersResponse lists a customer's pre-approved offers.
type OffersResponse struct {
	CustomerID       string          `json:"customer_id"`
	PreApprovedLimit decimal.Decimal `json:"pre_approved_limit"`
	Offers           []OfferResponse `json:"offers"`
}

// CreditScoreResponse is a customer's bureau score.
type CreditScoreResponse struct {
	CustomerID  string `json:"customer_id"`
	CreditScore int    `json:"credit_score"`
}

// TurnResponse is one message of the conversation.
type TurnResponse struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditEntryResponse is one audit log record.
type AuditEntryResponse struct {
	Action    string         `json:"action"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details"`
}

// SessionResponse is the full external representation of a session.
type SessionResponse struct {
	SessionID         string               `json:"session_id"`
	CustomerID        string               `json:"customer_id,omitempty"`
	Step              string               `json:"step"`
	Status            string               `json:"status"`
	RequestedAmount   decimal.NullDecimal  `json:"requested_amount"`
	TenureMonths      int                  `json:"tenure_months,omitempty"`
	KYCVerified       bool                 `json:"kyc_verified"`
	CreditCheckDone   bool                 `json:"credit_check_done"`
	SalaryUploaded    bool                 `json:"salary_uploaded"`
	SanctionGenerated bool                 `json:"sanction_generated"`
	SanctionID        string               `json:"sanction_id,omitempty"`
	Turns             []TurnResponse       `json:"turns"`
	AuditLog          []AuditEntryResponse `json:"audit_log"`
	Version           int                  `json:"version"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

// SessionSummary is a row of the admin session listing.
type SessionSummary struct {
	SessionID     string    `json:"session_id"`
	CustomerID    string    `json:"customer_id,omitempty"`
	Status        string    `json:"status"`
	Step          string    `json:"step"`
	MessageCount  int       `json:"message_count"`
	AuditLogCount int       `json:"audit_log_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ListSessionsResponse is the admin session listing.
type ListSessionsResponse struct {
	TotalSessions int              `json:"total_sessions"`
	Sessions      []SessionSummary `json:"sessions"`
}

// SanctionResponse is the external representation of a sanction.
type SanctionResponse struct {
	SanctionID   string            `json:"sanction_id"`
	SessionID    string            `json:"session_id"`
	CustomerID   string            `json:"customer_id"`
	CustomerName string            `json:"customer_name"`
	Terms        LoanTermsResponse `json:"terms"`
	DocumentRef  string            `json:"document_ref"`
	Status       string            `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// ListSanctionsResponse is the admin sanction listing.
type ListSanctionsResponse struct {
	Total     int                `json:"total"`
	Sanctions []SanctionResponse `json:"sanctions"`
}

// DownloadSanctionResponse carries a rendered sanction letter.
type DownloadSanctionResponse struct {
	SanctionID  string `json:"sanction_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

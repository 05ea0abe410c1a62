package adapter

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/bibbank/origination/internal/domain/apperr"
	"github.com/bibbank/origination/internal/domain/port"
)

// ---------------------------------------------------------------------------
// Credit Bureau Adapter
// ---------------------------------------------------------------------------

// CreditBureauConfig holds retry settings for score lookups.
type CreditBureauConfig struct {
	// MaxRetries is the maximum number of retry attempts on transient failures.
	MaxRetries int
	// RetryBackoff is the base backoff between retries.
	RetryBackoff time.Duration
}

// DefaultCreditBureauConfig returns the settings used by the service.
func DefaultCreditBureauConfig() CreditBureauConfig {
	return CreditBureauConfig{MaxRetries: 2, RetryBackoff: 50 * time.Millisecond}
}

// CustomerRecordBureau serves credit scores from the seeded customer base,
// which carries the bureau score captured at onboarding. It implements
// port.CreditBureauClient.
type CustomerRecordBureau struct {
	config    CreditBureauConfig
	customers port.CustomerRepository
}

// NewCustomerRecordBureau creates the adapter.
func NewCustomerRecordBureau(config CreditBureauConfig, customers port.CustomerRepository) *CustomerRecordBureau {
	return &CustomerRecordBureau{config: config, customers: customers}
}

// GetCreditScore returns the customer's score. Unknown customers are not
// retried; store failures are retried with backoff and then reported as an
// external service failure.
func (a *CustomerRecordBureau) GetCreditScore(ctx context.Context, customerID string) (int, error) {
	if customerID == "" {
		return 0, apperr.Validationf("customer ID is required")
	}

	var lastErr error
	for attempt := 0; attempt <= a.config.MaxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff with jitter.
			backoff := a.config.RetryBackoff * time.Duration(1<<uint(attempt-1))
			jitter := time.Duration(rand.Int63n(int64(backoff)/2 + 1))
			select {
			case <-ctx.Done():
				return 0, fmt.Errorf("%w: credit score for %s: %w", apperr.ErrExternalService, customerID, ctx.Err())
			case <-time.After(backoff + jitter):
			}
		}

		c, err := a.customers.FindByID(ctx, customerID)
		if err == nil {
			return c.CreditScore(), nil
		}
		if errors.Is(err, apperr.ErrNotFound) {
			return 0, err
		}
		lastErr = err
	}

	return 0, fmt.Errorf("%w: credit score for %s after %d retries: %w",
		apperr.ErrExternalService, customerID, a.config.MaxRetries, lastErr)
}

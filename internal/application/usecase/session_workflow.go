package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bibbank/origination/internal/domain/apperr"
	"github.com/bibbank/origination/internal/domain/model"
	"github.com/bibbank/origination/internal/domain/port"
)

// sessionWorkflow holds the per-session lock and load/save plumbing shared by
// every use case that mutates a session.
type sessionWorkflow struct {
	sessions port.SessionRepository
	locker   port.SessionLocker
}

// lock serialises work on sessionID until the returned func is called.
func (w sessionWorkflow) lock(ctx context.Context, sessionID string) (func(), error) {
	unlock, err := w.locker.Lock(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("lock session %s: %w", sessionID, err)
	}
	return unlock, nil
}

// load returns the stored session or an apperr.ErrNotFound error.
func (w sessionWorkflow) load(ctx context.Context, sessionID string) (model.Session, error) {
	if sessionID == "" {
		return model.Session{}, apperr.Validationf("session ID is required")
	}
	s, err := w.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return model.Session{}, fmt.Errorf("load session: %w", err)
	}
	return s, nil
}

// loadOrCreate returns the stored session or a fresh one when none exists.
func (w sessionWorkflow) loadOrCreate(ctx context.Context, sessionID string, now time.Time) (model.Session, error) {
	s, err := w.sessions.FindByID(ctx, sessionID)
	switch {
	case err == nil:
		return s, nil
	case errors.Is(err, apperr.ErrNotFound):
		return model.NewSession(sessionID, now)
	default:
		return model.Session{}, fmt.Errorf("load session: %w", err)
	}
}

// save creates or updates s and returns the committed copy.
func (w sessionWorkflow) save(ctx context.Context, s model.Session) (model.Session, error) {
	var err error
	if s.IsNew() {
		err = w.sessions.Create(ctx, s)
	} else {
		err = w.sessions.Update(ctx, s)
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("save session: %w", err)
	}
	return s.Committed(), nil
}

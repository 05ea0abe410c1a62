// Package memory holds map-backed repositories for single-process
// deployments and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bibbank/origination/internal/domain/apperr"
	"github.com/bibbank/origination/internal/domain/event"
	"github.com/bibbank/origination/internal/domain/model"
	"github.com/bibbank/origination/pkg/events"
)

// ---------------------------------------------------------------------------
// Outbox
// ---------------------------------------------------------------------------

// Outbox buffers domain events until the relay publishes them.
type Outbox struct {
	mu      sync.Mutex
	entries []events.OutboxEntry
}

// NewOutbox creates an empty outbox.
func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) append(evts []event.DomainEvent) error {
	if len(evts) == 0 {
		return nil
	}
	entries, err := events.NewOutboxEntries(evts)
	if err != nil {
		return fmt.Errorf("build outbox entries: %w", err)
	}
	o.mu.Lock()
	o.entries = append(o.entries, entries...)
	o.mu.Unlock()
	return nil
}

// FetchUnpublished returns up to batchSize entries in insertion order.
func (o *Outbox) FetchUnpublished(_ context.Context, batchSize int) ([]events.OutboxEntry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]events.OutboxEntry, 0, batchSize)
	for _, e := range o.entries {
		if e.PublishedAt != nil {
			continue
		}
		out = append(out, e)
		if len(out) == batchSize {
			break
		}
	}
	return out, nil
}

// MarkPublished stamps the given entries as delivered.
func (o *Outbox) MarkPublished(_ context.Context, ids []string) error {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	now := time.Now().UTC()
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.entries {
		if _, ok := want[o.entries[i].ID]; ok && o.entries[i].PublishedAt == nil {
			o.entries[i].PublishedAt = &now
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Customers
// ---------------------------------------------------------------------------

// CustomerRepository is an in-memory customer base.
type CustomerRepository struct {
	mu      sync.RWMutex
	byID    map[string]model.Customer
	byPhone map[string]string
}

// NewCustomerRepository creates a repository holding customers.
func NewCustomerRepository(customers ...model.Customer) *CustomerRepository {
	r := &CustomerRepository{
		byID:    make(map[string]model.Customer, len(customers)),
		byPhone: make(map[string]string, len(customers)),
	}
	for _, c := range customers {
		r.byID[c.ID()] = c
		r.byPhone[c.Phone()] = c.ID()
	}
	return r
}

func (r *CustomerRepository) FindByID(_ context.Context, id string) (model.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return model.Customer{}, apperr.NotFoundf("customer %s", id)
	}
	return c, nil
}

func (r *CustomerRepository) FindByPhone(_ context.Context, phone string) (model.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPhone[phone]
	if !ok {
		return model.Customer{}, apperr.NotFoundf("customer with phone %s", phone)
	}
	return r.byID[id], nil
}

func (r *CustomerRepository) UpdateSalary(_ context.Context, id string, salary decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return apperr.NotFoundf("customer %s", id)
	}
	updated, err := c.WithSalary(salary, time.Now().UTC())
	if err != nil {
		return err
	}
	r.byID[id] = updated
	return nil
}

// Save inserts or replaces a customer. A phone number already held by a
// different customer is rejected.
func (r *CustomerRepository) Save(_ context.Context, c model.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.byPhone[c.Phone()]; ok && owner != c.ID() {
		return apperr.Validationf("phone already registered to customer %s", owner)
	}
	if prev, ok := r.byID[c.ID()]; ok {
		delete(r.byPhone, prev.Phone())
	}
	r.byID[c.ID()] = c
	r.byPhone[c.Phone()] = c.ID()
	return nil
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

// SessionRepository is an in-memory session store that writes domain events
// to an Outbox in the same critical section as the session itself. A pending
// sanction on the session is inserted into sanctions under that same section.
type SessionRepository struct {
	mu        sync.RWMutex
	sessions  map[string]model.Session
	outbox    *Outbox
	sanctions *SanctionRepository
}

// NewSessionRepository creates an empty store.
func NewSessionRepository(outbox *Outbox, sanctions *SanctionRepository) *SessionRepository {
	return &SessionRepository{
		sessions:  make(map[string]model.Session),
		outbox:    outbox,
		sanctions: sanctions,
	}
}

func (r *SessionRepository) FindByID(_ context.Context, id string) (model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return model.Session{}, apperr.NotFoundf("session %s", id)
	}
	return s, nil
}

func (r *SessionRepository) Create(_ context.Context, s model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID()]; ok {
		return fmt.Errorf("session %s: %w", s.ID(), apperr.ErrVersionConflict)
	}
	return r.commitLocked(s)
}

func (r *SessionRepository) Update(_ context.Context, s model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[s.ID()]
	if !ok {
		return apperr.NotFoundf("session %s", s.ID())
	}
	if stored.Version() != s.Version() {
		return fmt.Errorf("session %s at version %d, have %d: %w",
			s.ID(), stored.Version(), s.Version(), apperr.ErrVersionConflict)
	}
	return r.commitLocked(s)
}

// commitLocked stores s together with its pending sanction. Either both are
// stored with their events or nothing changes. r.mu must be held.
func (r *SessionRepository) commitLocked(s model.Session) error {
	sanction, hasSanction := s.PendingSanction()
	if !hasSanction {
		if err := r.outbox.append(s.DomainEvents()); err != nil {
			return err
		}
		r.sessions[s.ID()] = s.Committed()
		return nil
	}
	if r.sanctions == nil {
		return fmt.Errorf("%w: no sanction store for session %s", apperr.ErrInvariantViolation, s.ID())
	}

	r.sanctions.mu.Lock()
	defer r.sanctions.mu.Unlock()
	if err := r.sanctions.checkInsertLocked(sanction); err != nil {
		return err
	}
	evts := make([]event.DomainEvent, 0, len(s.DomainEvents())+len(sanction.DomainEvents()))
	evts = append(evts, s.DomainEvents()...)
	evts = append(evts, sanction.DomainEvents()...)
	if err := r.outbox.append(evts); err != nil {
		return err
	}
	r.sanctions.insertLocked(sanction)
	r.sessions[s.ID()] = s.Committed()
	return nil
}

// List returns up to limit sessions, newest first.
func (r *SessionRepository) List(_ context.Context, limit int) ([]model.Session, error) {
	r.mu.RLock()
	out := make([]model.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt().Equal(out[j].CreatedAt()) {
			return out[i].ID() < out[j].ID()
		}
		return out[i].CreatedAt().After(out[j].CreatedAt())
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Sanctions
// ---------------------------------------------------------------------------

// SanctionRepository is an in-memory sanction store. A session holds at most
// one sanction.
type SanctionRepository struct {
	mu        sync.RWMutex
	sanctions map[string]model.Sanction
	bySession map[string]string
	outbox    *Outbox
}

// NewSanctionRepository creates an empty store.
func NewSanctionRepository(outbox *Outbox) *SanctionRepository {
	return &SanctionRepository{
		sanctions: make(map[string]model.Sanction),
		bySession: make(map[string]string),
		outbox:    outbox,
	}
}

func (r *SanctionRepository) Create(_ context.Context, s model.Sanction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkInsertLocked(s); err != nil {
		return err
	}
	if err := r.outbox.append(s.DomainEvents()); err != nil {
		return err
	}
	r.insertLocked(s)
	return nil
}

func (r *SanctionRepository) checkInsertLocked(s model.Sanction) error {
	if _, ok := r.sanctions[s.ID()]; ok {
		return fmt.Errorf("%w: sanction %s already exists", apperr.ErrInvariantViolation, s.ID())
	}
	if existing, ok := r.bySession[s.SessionID()]; ok {
		return fmt.Errorf("%w: session %s already sanctioned as %s", apperr.ErrInvariantViolation, s.SessionID(), existing)
	}
	return nil
}

func (r *SanctionRepository) insertLocked(s model.Sanction) {
	r.sanctions[s.ID()] = stripEvents(s)
	r.bySession[s.SessionID()] = s.ID()
}

func (r *SanctionRepository) FindByID(_ context.Context, id string) (model.Sanction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sanctions[id]
	if !ok {
		return model.Sanction{}, apperr.NotFoundf("sanction %s", id)
	}
	return s, nil
}

// List returns up to limit sanctions, newest first.
func (r *SanctionRepository) List(_ context.Context, limit int) ([]model.Sanction, error) {
	r.mu.RLock()
	out := make([]model.Sanction, 0, len(r.sanctions))
	for _, s := range r.sanctions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt().Equal(out[j].CreatedAt()) {
			return out[i].ID() < out[j].ID()
		}
		return out[i].CreatedAt().After(out[j].CreatedAt())
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateStatus stores a status change. s must be exactly one version ahead
// of the stored sanction.
func (r *SanctionRepository) UpdateStatus(_ context.Context, s model.Sanction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sanctions[s.ID()]
	if !ok {
		return apperr.NotFoundf("sanction %s", s.ID())
	}
	if stored.Version() != s.Version()-1 {
		return fmt.Errorf("sanction %s at version %d, have %d: %w",
			s.ID(), stored.Version(), s.Version(), apperr.ErrVersionConflict)
	}
	if err := r.outbox.append(s.DomainEvents()); err != nil {
		return err
	}
	r.sanctions[s.ID()] = stripEvents(s)
	return nil
}

func stripEvents(s model.Sanction) model.Sanction {
	return model.ReconstructSanction(
		s.ID(), s.SessionID(), s.CustomerID(), s.CustomerName(),
		s.Terms(), s.DocumentRef(), s.Status(), s.Version(),
		s.CreatedAt(), s.UpdatedAt(),
	)
}

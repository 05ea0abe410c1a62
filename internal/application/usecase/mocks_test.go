package usecase_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/bibbank/origination/internal/application/usecase"
	"github.com/bibbank/origination/internal/domain/apperr"
	"github.com/bibbank/origination/internal/domain/model"
	"github.com/bibbank/origination/internal/domain/service"
	"github.com/bibbank/origination/internal/domain/valueobject"
)

// --- Mock implementations ---

type mockSessionRepository struct {
	mu         sync.Mutex
	sessions   map[string]model.Session
	sanctions  *mockSanctionRepository
	createFunc func(ctx context.Context, s model.Session) error
	updateFunc func(ctx context.Context, s model.Session) error
	creates    int
	updates    int

	// failUpdates makes the next n Update calls return updateErr without
	// storing anything.
	failUpdates int
	updateErr   error
}

func newMockSessionRepository(sanctions *mockSanctionRepository) *mockSessionRepository {
	return &mockSessionRepository{sessions: map[string]model.Session{}, sanctions: sanctions}
}

func (m *mockSessionRepository) FindByID(_ context.Context, id string) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return model.Session{}, apperr.NotFoundf("session %s", id)
	}
	return s, nil
}

func (m *mockSessionRepository) Create(ctx context.Context, s model.Session) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	m.commitLocked(s)
	return nil
}

func (m *mockSessionRepository) Update(ctx context.Context, s model.Session) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if m.failUpdates > 0 {
		m.failUpdates--
		return m.updateErr
	}
	if stored, ok := m.sessions[s.ID()]; !ok || stored.Version() != s.Version() {
		return apperr.ErrVersionConflict
	}
	m.commitLocked(s)
	return nil
}

// commitLocked stores s and hands its pending sanction to the sanction mock,
// mirroring the single-transaction write of the real stores.
func (m *mockSessionRepository) commitLocked(s model.Session) {
	if sanction, ok := s.PendingSanction(); ok && m.sanctions != nil {
		m.sanctions.mu.Lock()
		m.sanctions.sanctions = append(m.sanctions.sanctions, sanction)
		m.sanctions.mu.Unlock()
	}
	m.sessions[s.ID()] = s.Committed()
}

func (m *mockSessionRepository) List(_ context.Context, limit int) ([]model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if len(out) == limit {
			break
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *mockSessionRepository) put(s model.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID()] = s.Committed()
}

func (m *mockSessionRepository) get(t *testing.T, id string) model.Session {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	require.True(t, ok, "session %s not stored", id)
	return s
}

type mockCustomerRepository struct {
	mu        sync.Mutex
	customers map[string]model.Customer
}

func newMockCustomerRepository(customers ...model.Customer) *mockCustomerRepository {
	m := &mockCustomerRepository{customers: map[string]model.Customer{}}
	for _, c := range customers {
		m.customers[c.ID()] = c
	}
	return m
}

func (m *mockCustomerRepository) FindByID(_ context.Context, id string) (model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return model.Customer{}, apperr.NotFoundf("customer %s", id)
	}
	return c, nil
}

func (m *mockCustomerRepository) FindByPhone(_ context.Context, phone string) (model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.customers {
		if c.Phone() == phone {
			return c, nil
		}
	}
	return model.Customer{}, apperr.NotFoundf("customer with phone %s", phone)
}

func (m *mockCustomerRepository) UpdateSalary(_ context.Context, id string, salary decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return apperr.NotFoundf("customer %s", id)
	}
	updated, err := c.WithSalary(salary, time.Now())
	if err != nil {
		return err
	}
	m.customers[id] = updated
	return nil
}

func (m *mockCustomerRepository) Save(_ context.Context, c model.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[c.ID()] = c
	return nil
}

type mockSanctionRepository struct {
	mu        sync.Mutex
	sanctions []model.Sanction
	updated   []model.Sanction
}

func (m *mockSanctionRepository) Create(_ context.Context, s model.Sanction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sanctions = append(m.sanctions, s)
	return nil
}

func (m *mockSanctionRepository) FindByID(_ context.Context, id string) (model.Sanction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.updated) - 1; i >= 0; i-- {
		if m.updated[i].ID() == id {
			return m.updated[i], nil
		}
	}
	for _, s := range m.sanctions {
		if s.ID() == id {
			return s, nil
		}
	}
	return model.Sanction{}, apperr.NotFoundf("sanction %s", id)
}

func (m *mockSanctionRepository) List(_ context.Context, _ int) ([]model.Sanction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Sanction(nil), m.sanctions...), nil
}

func (m *mockSanctionRepository) UpdateStatus(_ context.Context, s model.Sanction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updated = append(m.updated, s)
	return nil
}

type mockLocker struct {
	mu     sync.Mutex
	locks  int
	unlock int
}

func (m *mockLocker) Lock(_ context.Context, _ string) (func(), error) {
	m.mu.Lock()
	m.locks++
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		m.unlock++
		m.mu.Unlock()
	}, nil
}

type mockResolver struct {
	mu          sync.Mutex
	resolveFunc func(ctx context.Context, s model.Session) (model.Intent, error)
	calls       int
	seen        []model.Session
}

func (m *mockResolver) Resolve(ctx context.Context, s model.Session) (model.Intent, error) {
	m.mu.Lock()
	m.calls++
	m.seen = append(m.seen, s)
	m.mu.Unlock()
	if m.resolveFunc != nil {
		return m.resolveFunc(ctx, s)
	}
	return model.Intent{Reply: "How can I help?", NextAction: valueobject.ActionNone}, nil
}

// respond returns a resolver that always answers with intent.
func respond(intent model.Intent) *mockResolver {
	return &mockResolver{resolveFunc: func(context.Context, model.Session) (model.Intent, error) {
		return intent, nil
	}}
}

type mockRenderer struct {
	renderFunc func(ctx context.Context, l model.SanctionLetter) (string, error)
	rendered   []model.SanctionLetter
}

func (m *mockRenderer) Render(ctx context.Context, l model.SanctionLetter) (string, error) {
	if m.renderFunc != nil {
		return m.renderFunc(ctx, l)
	}
	m.rendered = append(m.rendered, l)
	return "mem://" + l.SanctionID, nil
}

type mockBureau struct {
	customers *mockCustomerRepository
	err       error
}

func (m *mockBureau) GetCreditScore(ctx context.Context, customerID string) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	c, err := m.customers.FindByID(ctx, customerID)
	if err != nil {
		return 0, err
	}
	return c.CreditScore(), nil
}

type mockDocumentStore struct {
	docs map[string][]byte
}

func (m *mockDocumentStore) Open(_ context.Context, ref string) ([]byte, error) {
	b, ok := m.docs[ref]
	if !ok {
		return nil, apperr.NotFoundf("document %s", ref)
	}
	return b, nil
}

// --- Fixtures ---

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCustomer(t *testing.T, id, phone string, score int, limit int64, salary int64) model.Customer {
	t.Helper()
	p := model.CustomerParams{
		ID:               id,
		Name:             "Customer " + id,
		Phone:            phone,
		CreditScore:      score,
		PreApprovedLimit: decimal.NewFromInt(limit),
	}
	if salary > 0 {
		p.MonthlySalary = decimal.NewNullDecimal(decimal.NewFromInt(salary))
	}
	c, err := model.NewCustomer(p, fixedNow)
	require.NoError(t, err)
	return c
}

type harness struct {
	sessions  *mockSessionRepository
	customers *mockCustomerRepository
	sanctions *mockSanctionRepository
	locker    *mockLocker
	renderer  *mockRenderer
	bureau    *mockBureau

	verifier    *usecase.Verifier
	underwriter *usecase.Underwriter
	coordinator *usecase.SanctionCoordinator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	customers := newMockCustomerRepository(
		testCustomer(t, "CUST001", "9876543210", 780, 50_000, 45_000),
		testCustomer(t, "CUST002", "9876543211", 820, 75_000, 60_000),
		testCustomer(t, "CUST003", "9876543212", 650, 30_000, 35_000),
	)
	sanctions := &mockSanctionRepository{}
	h := &harness{
		sessions:  newMockSessionRepository(sanctions),
		customers: customers,
		sanctions: sanctions,
		locker:    &mockLocker{},
		renderer:  &mockRenderer{},
		bureau:    &mockBureau{customers: customers},
	}
	h.verifier = usecase.NewVerifier(h.customers)
	h.underwriter = usecase.NewUnderwriter(h.customers, h.bureau, service.NewUnderwritingEngine())
	h.coordinator = usecase.NewSanctionCoordinator(h.customers, h.renderer, time.Second)
	return h
}

func (h *harness) orchestrator(resolver *mockResolver) *usecase.OrchestrateTurnUseCase {
	return usecase.NewOrchestrateTurnUseCase(
		h.sessions, h.locker, resolver, time.Second,
		h.verifier, h.underwriter, h.coordinator, discardLogger(),
	)
}

// seedSession stores a session verified for customerID with amount requested.
func (h *harness) seedSession(t *testing.T, id, customerID, phone string, amount int64) model.Session {
	t.Helper()
	s, err := model.NewSession(id, fixedNow)
	require.NoError(t, err)
	s, err = s.WithRequestedAmount(decimal.NewFromInt(amount), fixedNow)
	require.NoError(t, err)
	s, err = s.BindCustomer(customerID, phone, fixedNow)
	require.NoError(t, err)
	h.sessions.put(s)
	return h.sessions.get(t, id)
}

// approveSession stores a session for customerID that underwriting has
// already approved on the given terms.
func (h *harness) approveSession(t *testing.T, id, customerID, phone string, terms model.LoanTerms) model.Session {
	t.Helper()
	s, err := model.NewSession(id, fixedNow)
	require.NoError(t, err)
	s, err = s.WithRequestedAmount(terms.Amount, fixedNow)
	require.NoError(t, err)
	s, err = s.BindCustomer(customerID, phone, fixedNow)
	require.NoError(t, err)
	s, err = s.ApplyDecision(valueobject.DecisionApproved, terms,
		model.AuditEntry{Action: model.AuditUnderwritingApprovedInstant}, fixedNow)
	require.NoError(t, err)
	h.sessions.put(s)
	return h.sessions.get(t, id)
}

func (h *harness) sanctionGenerator() *usecase.GenerateSanctionUseCase {
	return usecase.NewGenerateSanctionUseCase(h.sessions, h.sanctions, h.locker, h.coordinator, discardLogger())
}

func (h *harness) uploader() *usecase.UploadSalaryUseCase {
	return usecase.NewUploadSalaryUseCase(h.sessions, h.locker, h.customers, discardLogger())
}

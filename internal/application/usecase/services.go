package usecase

import (
	"log/slog"
	"time"

	"github.com/bibbank/origination/internal/domain/port"
	"github.com/bibbank/origination/internal/domain/service"
)

// Dependencies are the driven adapters every use case is built from.
type Dependencies struct {
	Customers port.CustomerRepository
	Sessions  port.SessionRepository
	Sanctions port.SanctionRepository
	Locker    port.SessionLocker
	Resolver  port.IntentResolver
	Renderer  port.DocumentRenderer
	Documents port.DocumentStore
	Bureau    port.CreditBureauClient

	ResolverTimeout time.Duration
	RenderTimeout   time.Duration
	Logger          *slog.Logger
}

// Services groups the use cases served by the transport adapters.
type Services struct {
	Chat             *OrchestrateTurnUseCase
	VerifyKYC        *VerifyKYCUseCase
	RunUnderwriting  *RunUnderwritingUseCase
	GenerateSanction *GenerateSanctionUseCase
	UploadSalary     *UploadSalaryUseCase
	GetOffers        *GetOffersUseCase
	GetCreditScore   *GetCreditScoreUseCase
	GetSession       *GetSessionUseCase
	ListSessions     *ListSessionsUseCase
	GetSanction      *GetSanctionUseCase
	ListSanctions    *ListSanctionsUseCase
	DownloadSanction *DownloadSanctionUseCase
}

// NewServices wires every use case over d. The chat orchestrator and the
// standalone operations share one verifier, underwriter and coordinator.
func NewServices(d Dependencies) Services {
	verifier := NewVerifier(d.Customers)
	underwriter := NewUnderwriter(d.Customers, d.Bureau, service.NewUnderwritingEngine())
	coordinator := NewSanctionCoordinator(d.Customers, d.Renderer, d.RenderTimeout)

	return Services{
		Chat: NewOrchestrateTurnUseCase(
			d.Sessions, d.Locker, d.Resolver, d.ResolverTimeout,
			verifier, underwriter, coordinator, d.Logger,
		),
		VerifyKYC:        NewVerifyKYCUseCase(d.Sessions, d.Locker, verifier, d.Logger),
		RunUnderwriting:  NewRunUnderwritingUseCase(d.Sessions, d.Locker, underwriter, d.Logger),
		GenerateSanction: NewGenerateSanctionUseCase(d.Sessions, d.Sanctions, d.Locker, coordinator, d.Logger),
		UploadSalary:     NewUploadSalaryUseCase(d.Sessions, d.Locker, d.Customers, d.Logger),
		GetOffers:        NewGetOffersUseCase(d.Customers, d.Bureau),
		GetCreditScore:   NewGetCreditScoreUseCase(d.Bureau),
		GetSession:       NewGetSessionUseCase(d.Sessions),
		ListSessions:     NewListSessionsUseCase(d.Sessions),
		GetSanction:      NewGetSanctionUseCase(d.Sanctions),
		ListSanctions:    NewListSanctionsUseCase(d.Sanctions),
		DownloadSanction: NewDownloadSanctionUseCase(d.Sanctions, d.Documents),
	}
}

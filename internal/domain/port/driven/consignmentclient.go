package driven

import (
	"context"

	"github.com/ericfisherdev/cltsim/internal/domain/model"
)

// ConsignmentClient defines the driven port for the private-payroll
// consignment platform. Every method takes the bearer token explicitly and
// returns model.ErrUnauthorized (possibly wrapped) when the platform answers
// 401, so the caller's TokenCache can renew and retry. Other non-2xx answers
// are returned as *model.StatusError.
type ConsignmentClient interface {
	// CreateConsult registers a consent term and returns its identifier.
	CreateConsult(ctx context.Context, token string, req model.ConsultRequest) (string, error)
	// AuthorizeConsult authorizes a previously created consent term.
	AuthorizeConsult(ctx context.Context, token string, termID string) error
	// SearchConsults lists consent terms matching the search. The listing is
	// not a point lookup; callers scan it for the term they want.
	SearchConsults(ctx context.Context, token string, search model.ConsultSearch) ([]model.MarginSnapshot, error)
	// ListSimulationConfigs returns the financing variants currently offered.
	ListSimulationConfigs(ctx context.Context, token string) ([]model.FinancingConfig, error)
	// CreateSimulation submits one installment option.
	CreateSimulation(ctx context.Context, token string, req model.SimulationRequest) (*model.ProviderSimulation, error)
}

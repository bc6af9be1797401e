// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ericfisherdev/cltsim/internal/domain/model"
	"github.com/ericfisherdev/cltsim/internal/domain/port/driven"
	"github.com/ericfisherdev/cltsim/internal/platform/metrics"
)

// SimulationService sequences one end-to-end loan simulation: person lookup,
// consent term creation and authorization, margin wait, config listing and
// installment negotiation. A failure at any step short-circuits the rest.
type SimulationService struct {
	people     driven.PersonLookup
	client     driven.ConsignmentClient
	tokens     *TokenCache
	registrar  *ConsentRegistrar
	poller     *MarginPoller
	negotiator *InstallmentNegotiator
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewSimulationService creates a SimulationService with all required dependencies.
func NewSimulationService(
	people driven.PersonLookup,
	client driven.ConsignmentClient,
	tokens *TokenCache,
	registrar *ConsentRegistrar,
	poller *MarginPoller,
	negotiator *InstallmentNegotiator,
	m *metrics.Metrics,
	logger *slog.Logger,
) *SimulationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SimulationService{
		people:     people,
		client:     client,
		tokens:     tokens,
		registrar:  registrar,
		poller:     poller,
		negotiator: negotiator,
		metrics:    m,
		logger:     logger,
	}
}

// Simulate runs the workflow for a free-form document number.
func (s *SimulationService) Simulate(ctx context.Context, rawCPF string) (*model.SimulationOutcome, error) {
	start := time.Now()
	outcome, err := s.simulate(ctx, rawCPF)

	kind := "ok"
	if err != nil {
		kind = string(model.KindOf(err))
	}
	s.metrics.ObserveWorkflow(kind, time.Since(start))

	return outcome, err
}

func (s *SimulationService) simulate(ctx context.Context, rawCPF string) (*model.SimulationOutcome, error) {
	cpf, ok := model.NormalizeCPF(rawCPF)
	if !ok {
		return nil, model.Validationf("normalize_cpf", "document number must contain 1 to %d digits", model.CPFLength)
	}
	log := s.logger.With("cpf", model.MaskCPF(cpf))

	// 1. Identity lookup.
	person, err := s.people.LookupPerson(ctx, cpf)
	if err != nil {
		return nil, upstreamError("lookup_person", "person lookup failed", err)
	}
	if person == nil {
		log.Info("person not found")
		return nil, model.NewError(model.KindNotFound, "lookup_person", "CPF "+cpf+" not found", model.ErrPersonNotFound)
	}
	identity := model.NewIdentity(cpf, *person)

	// 2. Consent term.
	termID, err := s.registrar.CreateTerm(ctx, identity)
	if err != nil {
		return nil, err
	}
	log = log.With("term_id", termID)

	if err := s.registrar.AuthorizeTerm(ctx, termID); err != nil {
		return nil, err
	}

	// 3. Margin.
	snapshot, err := s.poller.AwaitMargin(ctx, cpf, termID)
	if err != nil {
		return nil, err
	}

	// 4. Financing configs.
	configs, err := s.listConfigs(ctx)
	if err != nil {
		return nil, err
	}

	// 5. Installment search.
	result, err := s.negotiator.Negotiate(ctx, termID, configs, snapshot.AvailableMargin)
	if err != nil {
		if errors.Is(err, model.ErrNoViablePlan) {
			log.Info("simulation finished without viable plan", "available_margin", snapshot.AvailableMargin)
		}
		return nil, err
	}

	log.Info("simulation complete",
		"available_margin", snapshot.AvailableMargin,
		"installments", result.InstallmentCount,
		"installment_value", result.InstallmentValue,
		"requested_amount", result.RequestedAmount,
	)

	return &model.SimulationOutcome{
		CPF:             cpf,
		TermID:          termID,
		AvailableMargin: snapshot.AvailableMargin,
		Result:          result,
	}, nil
}

// listConfigs fetches the financing variants currently offered.
func (s *SimulationService) listConfigs(ctx context.Context) ([]model.FinancingConfig, error) {
	var configs []model.FinancingConfig
	err := s.tokens.Do(ctx, func(ctx context.Context, token string) error {
		var err error
		configs, err = s.client.ListSimulationConfigs(ctx, token)
		return err
	})
	if err != nil {
		return nil, upstreamError("list_configs", "financing config listing failed", err)
	}
	if len(configs) == 0 {
		return nil, model.NewError(model.KindUpstream, "list_configs", "platform offered no financing configs", nil)
	}
	return configs, nil
}

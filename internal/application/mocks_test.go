package application_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ericfisherdev/cltsim/internal/domain/model"
)

// --- Mock implementations ---

type mockIssuer struct {
	issue func(ctx context.Context) (string, error)
	calls atomic.Int32
}

func (m *mockIssuer) IssueToken(ctx context.Context) (string, error) {
	m.calls.Add(1)
	return m.issue(ctx)
}

// sequenceIssuer returns the given tokens in order, repeating the last one.
func sequenceIssuer(tokens ...string) *mockIssuer {
	m := &mockIssuer{}
	m.issue = func(context.Context) (string, error) {
		i := int(m.calls.Load()) - 1
		if i >= len(tokens) {
			i = len(tokens) - 1
		}
		return tokens[i], nil
	}
	return m
}

type mockPeople struct {
	person *model.Person
	err    error
	calls  int
}

func (m *mockPeople) LookupPerson(_ context.Context, _ string) (*model.Person, error) {
	m.calls++
	return m.person, m.err
}

type mockConsignmentClient struct {
	mu sync.Mutex

	createConsult    func(ctx context.Context, token string, req model.ConsultRequest) (string, error)
	authorizeConsult func(ctx context.Context, token string, termID string) error
	searchConsults   func(ctx context.Context, token string, search model.ConsultSearch) ([]model.MarginSnapshot, error)
	listConfigs      func(ctx context.Context, token string) ([]model.FinancingConfig, error)
	createSimulation func(ctx context.Context, token string, req model.SimulationRequest) (*model.ProviderSimulation, error)

	consultRequests []model.ConsultRequest
	authorized      []string
	searches        []model.ConsultSearch
	simulations     []model.SimulationRequest
}

func (m *mockConsignmentClient) CreateConsult(ctx context.Context, token string, req model.ConsultRequest) (string, error) {
	m.mu.Lock()
	m.consultRequests = append(m.consultRequests, req)
	m.mu.Unlock()
	if m.createConsult == nil {
		return "term-1", nil
	}
	return m.createConsult(ctx, token, req)
}

func (m *mockConsignmentClient) AuthorizeConsult(ctx context.Context, token string, termID string) error {
	m.mu.Lock()
	m.authorized = append(m.authorized, termID)
	m.mu.Unlock()
	if m.authorizeConsult == nil {
		return nil
	}
	return m.authorizeConsult(ctx, token, termID)
}

func (m *mockConsignmentClient) SearchConsults(ctx context.Context, token string, search model.ConsultSearch) ([]model.MarginSnapshot, error) {
	m.mu.Lock()
	m.searches = append(m.searches, search)
	m.mu.Unlock()
	if m.searchConsults == nil {
		return nil, nil
	}
	return m.searchConsults(ctx, token, search)
}

func (m *mockConsignmentClient) ListSimulationConfigs(ctx context.Context, token string) ([]model.FinancingConfig, error) {
	if m.listConfigs == nil {
		return nil, nil
	}
	return m.listConfigs(ctx, token)
}

func (m *mockConsignmentClient) CreateSimulation(ctx context.Context, token string, req model.SimulationRequest) (*model.ProviderSimulation, error) {
	m.mu.Lock()
	m.simulations = append(m.simulations, req)
	m.mu.Unlock()
	if m.createSimulation == nil {
		return &model.ProviderSimulation{ID: "sim-1"}, nil
	}
	return m.createSimulation(ctx, token, req)
}

// --- Helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// noSleep is a Sleeper that returns immediately unless ctx is done.
func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

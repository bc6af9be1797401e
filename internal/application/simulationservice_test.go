package application_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/cltsim/internal/application"
	"github.com/ericfisherdev/cltsim/internal/domain/model"
)

type serviceFixture struct {
	people *mockPeople
	client *mockConsignmentClient
	svc    *application.SimulationService
}

func newServiceFixture(people *mockPeople, client *mockConsignmentClient) serviceFixture {
	logger := discardLogger()
	tokens := application.NewTokenCache(sequenceIssuer("tok"), nil, logger)
	registrar := application.NewConsentRegistrar(client, tokens, logger)
	poller := application.NewMarginPoller(client, tokens, 0, 3, nil, logger).WithSleeper(noSleep)
	negotiator := application.NewInstallmentNegotiator(client, tokens, nil, logger)

	return serviceFixture{
		people: people,
		client: client,
		svc:    application.NewSimulationService(people, client, tokens, registrar, poller, negotiator, nil, logger),
	}
}

func samplePerson() *model.Person {
	return &model.Person{
		CPF:       "1234567890",
		Name:      "JOAO SOUZA",
		BirthDate: "1985-07-20T00:00:00.000Z",
		Gender:    "M",
		AreaCode:  "21",
		Phone:     "988887777",
	}
}

func happyClient() *mockConsignmentClient {
	return &mockConsignmentClient{
		createConsult: func(context.Context, string, model.ConsultRequest) (string, error) { return "term-42", nil },
		searchConsults: scriptedSearch(
			[]model.MarginSnapshot{{TermID: "term-42", Status: "WAITING_CONSULT"}},
			[]model.MarginSnapshot{{TermID: "term-42", Status: "SUCCESS", AvailableMargin: 1000}},
		),
		listConfigs: func(context.Context, string) ([]model.FinancingConfig, error) {
			return []model.FinancingConfig{{ID: "cfg-1", Installments: []int{6, 12, 24}}}, nil
		},
		createSimulation: func(context.Context, string, model.SimulationRequest) (*model.ProviderSimulation, error) {
			return &model.ProviderSimulation{ID: "sim-1", DisbursedAmount: 17500, AnnualCostRate: 30.1}, nil
		},
	}
}

func TestSimulate_EndToEnd(t *testing.T) {
	f := newServiceFixture(&mockPeople{person: samplePerson()}, happyClient())

	got, err := f.svc.Simulate(context.Background(), "123.456.789-0")

	require.NoError(t, err)
	assert.Equal(t, "01234567890", got.CPF)
	assert.Equal(t, "term-42", got.TermID)
	assert.InDelta(t, 1000.0, got.AvailableMargin, 1e-9)
	assert.Equal(t, 24, got.Result.InstallmentCount)
	assert.InDelta(t, 24000.0, got.Result.RequestedAmount, 1e-9)
	assert.InDelta(t, 17500.0, got.Result.DisbursedAmount, 1e-9)
	assert.Equal(t, "cfg-1", got.Result.ConfigID)

	require.Len(t, f.client.consultRequests, 1)
	req := f.client.consultRequests[0]
	assert.Equal(t, "01234567890", req.DocumentNumber)
	assert.Equal(t, "1985-07-20", req.BirthDate)
	assert.Equal(t, "male", req.Gender)
	assert.Equal(t, "email@teste.com", req.SignerEmail)
	assert.Equal(t, model.Phone{AreaCode: "21", Number: "988887777"}, req.SignerPhone)

	assert.Equal(t, []string{"term-42"}, f.client.authorized)
	assert.Len(t, f.client.searches, 2)
	require.Len(t, f.client.simulations, 1)
	assert.Equal(t, "term-42", f.client.simulations[0].TermID)
}

func TestSimulate_InvalidCPF(t *testing.T) {
	for _, raw := range []string{"", "abc", "123456789012"} {
		t.Run(raw, func(t *testing.T) {
			f := newServiceFixture(&mockPeople{person: samplePerson()}, happyClient())

			_, err := f.svc.Simulate(context.Background(), raw)

			require.Error(t, err)
			assert.Equal(t, model.KindValidation, model.KindOf(err))
			assert.Zero(t, f.people.calls)
		})
	}
}

func TestSimulate_PersonNotFound(t *testing.T) {
	f := newServiceFixture(&mockPeople{}, happyClient())

	_, err := f.svc.Simulate(context.Background(), "01234567890")

	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrPersonNotFound)
	assert.Equal(t, model.KindNotFound, model.KindOf(err))
	assert.Empty(t, f.client.consultRequests)
}

func TestSimulate_LookupFailure(t *testing.T) {
	f := newServiceFixture(&mockPeople{err: errors.New("dial tcp: i/o timeout")}, happyClient())

	_, err := f.svc.Simulate(context.Background(), "01234567890")

	require.Error(t, err)
	assert.Equal(t, model.KindUpstream, model.KindOf(err))
	assert.Empty(t, f.client.consultRequests)
}

func TestSimulate_MissingBirthDate(t *testing.T) {
	person := samplePerson()
	person.BirthDate = ""
	f := newServiceFixture(&mockPeople{person: person}, happyClient())

	_, err := f.svc.Simulate(context.Background(), "01234567890")

	require.Error(t, err)
	assert.Equal(t, model.KindValidation, model.KindOf(err))
	assert.Empty(t, f.client.consultRequests)
}

func TestSimulate_RejectedSkipsNegotiation(t *testing.T) {
	client := happyClient()
	client.searchConsults = scriptedSearch(
		[]model.MarginSnapshot{{TermID: "term-42", Status: "REJECTED", Description: "sem margem"}},
	)
	listed := false
	client.listConfigs = func(context.Context, string) ([]model.FinancingConfig, error) {
		listed = true
		return nil, nil
	}
	f := newServiceFixture(&mockPeople{person: samplePerson()}, client)

	_, err := f.svc.Simulate(context.Background(), "01234567890")

	require.Error(t, err)
	assert.Equal(t, model.KindRejected, model.KindOf(err))
	assert.False(t, listed)
	assert.Empty(t, f.client.simulations)
}

func TestSimulate_MarginTimeout(t *testing.T) {
	client := happyClient()
	client.searchConsults = scriptedSearch(nil)
	f := newServiceFixture(&mockPeople{person: samplePerson()}, client)

	_, err := f.svc.Simulate(context.Background(), "01234567890")

	require.Error(t, err)
	assert.Equal(t, model.KindTimeout, model.KindOf(err))
	assert.Len(t, f.client.searches, 3)
	assert.Empty(t, f.client.simulations)
}

func TestSimulate_NoConfigs(t *testing.T) {
	client := happyClient()
	client.listConfigs = func(context.Context, string) ([]model.FinancingConfig, error) { return nil, nil }
	f := newServiceFixture(&mockPeople{person: samplePerson()}, client)

	_, err := f.svc.Simulate(context.Background(), "01234567890")

	require.Error(t, err)
	assert.Equal(t, model.KindUpstream, model.KindOf(err))
}

func TestSimulate_NoViablePlan(t *testing.T) {
	client := happyClient()
	client.searchConsults = scriptedSearch(
		[]model.MarginSnapshot{{TermID: "term-42", Status: "SUCCESS", AvailableMargin: 10}},
	)
	f := newServiceFixture(&mockPeople{person: samplePerson()}, client)

	_, err := f.svc.Simulate(context.Background(), "01234567890")

	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNoViablePlan)
	assert.Empty(t, f.client.simulations)
}

func TestSimulate_AuthFailureShortCircuits(t *testing.T) {
	logger := discardLogger()
	client := happyClient()
	issuer := &mockIssuer{issue: func(context.Context) (string, error) {
		return "", &model.StatusError{StatusCode: 401, Body: "bad credentials"}
	}}
	tokens := application.NewTokenCache(issuer, nil, logger)
	svc := application.NewSimulationService(
		&mockPeople{person: samplePerson()},
		client,
		tokens,
		application.NewConsentRegistrar(client, tokens, logger),
		application.NewMarginPoller(client, tokens, 0, 3, nil, logger).WithSleeper(noSleep),
		application.NewInstallmentNegotiator(client, tokens, nil, logger),
		nil,
		logger,
	)

	_, err := svc.Simulate(context.Background(), "01234567890")

	require.Error(t, err)
	assert.Equal(t, model.KindAuth, model.KindOf(err))
	assert.Empty(t, client.consultRequests)
}

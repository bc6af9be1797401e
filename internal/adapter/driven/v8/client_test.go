package v8_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/cltsim/internal/adapter/driven/transport"
	v8 "github.com/ericfisherdev/cltsim/internal/adapter/driven/v8"
	"github.com/ericfisherdev/cltsim/internal/domain/model"
)

// newTestClient creates a Client backed by the given httptest handler.
func newTestClient(t *testing.T, handler http.Handler) *v8.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return v8.NewClient(server.Client(), server.URL+"/")
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestCreateConsult_SendsPayloadAndReturnsID(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/private-consignment/consult", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(t, w, http.StatusCreated, map[string]string{"id": "term-1"})
	}))

	id, err := client.CreateConsult(context.Background(), "tok", model.ConsultRequest{
		DocumentNumber: "01234567890",
		Gender:         "female",
		BirthDate:      "1990-05-01",
		SignerName:     "MARIA",
		SignerEmail:    "maria@example.com",
		SignerPhone:    model.Phone{AreaCode: "11", Number: "987654321"},
		Provider:       model.Provider,
	})
	require.NoError(t, err)
	assert.Equal(t, "term-1", id)

	assert.Equal(t, "01234567890", got["borrowerDocumentNumber"])
	assert.Equal(t, "female", got["gender"])
	assert.Equal(t, "1990-05-01", got["birthDate"])
	assert.Equal(t, "MARIA", got["signerName"])
	assert.Equal(t, "maria@example.com", got["signerEmail"])
	assert.Equal(t, "QI", got["provider"])
	assert.Equal(t, map[string]any{
		"phoneNumber": "987654321",
		"countryCode": "55",
		"areaCode":    "11",
	}, got["signerPhone"])
}

func TestAuthorizeConsult_PostsEmptyObject(t *testing.T) {
	var body string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/private-consignment/consult/term-1/authorize", r.URL.Path)
		var raw json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		body = string(raw)
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, client.AuthorizeConsult(context.Background(), "tok", "term-1"))
	assert.Equal(t, "{}", body)
}

func TestSearchConsults_QueryAndNoCache(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	start := time.Date(2026, 3, 10, 0, 0, 0, 0, loc)
	end := time.Date(2026, 3, 10, 23, 59, 59, 999_000_000, loc)

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/private-consignment/consult", r.URL.Path)
		assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))

		q := r.URL.Query()
		assert.Equal(t, "2026-03-10T03:00:00.000Z", q.Get("startDate"))
		assert.Equal(t, "2026-03-11T02:59:59.999Z", q.Get("endDate"))
		assert.Equal(t, "50", q.Get("limit"))
		assert.Equal(t, "1", q.Get("page"))
		assert.Equal(t, "01234567890", q.Get("search"))
		assert.Equal(t, "QI", q.Get("provider"))

		_, _ = w.Write([]byte(`{"data":[
			{"id":"term-0","availableMarginValue":null,"status":"WAITING_CONSULT"},
			{"id":"term-1","availableMarginValue":"1234.56","status":"SUCCESS","description":"ok"}
		]}`))
	}))

	got, err := client.SearchConsults(context.Background(), "tok", model.ConsultSearch{
		DocumentNumber: "01234567890",
		Start:          start,
		End:            end,
		Limit:          50,
		Page:           1,
		Provider:       model.Provider,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, model.MarginSnapshot{TermID: "term-0", Status: "WAITING_CONSULT"}, got[0])
	assert.Equal(t, "term-1", got[1].TermID)
	assert.InDelta(t, 1234.56, got[1].AvailableMargin, 1e-9)
	assert.Equal(t, model.MarginStatus("SUCCESS"), got[1].Status)
	assert.Equal(t, "ok", got[1].Description)
}

func TestListSimulationConfigs(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/private-consignment/simulation/configs", r.URL.Path)
		_, _ = w.Write([]byte(`{"configs":[
			{"id":"cfg-1","name":"Com seguro","number_of_installments":["6","12",24],"insurance":true},
			{"id":"cfg-2","name":"Sem seguro","number_of_installments":[12,18],"insurance":false}
		]}`))
	}))

	got, err := client.ListSimulationConfigs(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, []model.FinancingConfig{
		{ID: "cfg-1", Name: "Com seguro", Installments: []int{6, 12, 24}, Insurance: true},
		{ID: "cfg-2", Name: "Sem seguro", Installments: []int{12, 18}},
	}, got)
}

func TestListSimulationConfigs_FetchedFreshThroughCachingTransport(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))
		w.Header().Set("Cache-Control", "max-age=60")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"configs":[{"id":"cfg-1","number_of_installments":[24]}]}`))
	}))
	t.Cleanup(server.Close)

	client := v8.NewClient(transport.NewClient(time.Second, nil), server.URL)
	for range 3 {
		got, err := client.ListSimulationConfigs(context.Background(), "tok")
		require.NoError(t, err)
		require.Len(t, got, 1)
	}

	assert.Equal(t, int32(3), hits.Load())
}

func TestClient_NumericIdentifiers(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			_, _ = w.Write([]byte(`{"id":98765}`))
		default:
			_, _ = w.Write([]byte(`{"data":[{"id":98765,"availableMarginValue":500,"status":"SUCCESS"}]}`))
		}
	}))

	id, err := client.CreateConsult(context.Background(), "tok", model.ConsultRequest{DocumentNumber: "01234567890"})
	require.NoError(t, err)
	assert.Equal(t, "98765", id)

	got, err := client.SearchConsults(context.Background(), "tok", model.ConsultSearch{DocumentNumber: "01234567890"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "98765", got[0].TermID)
}

func TestCreateSimulation(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/private-consignment/simulation", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"sim-1","installment_value":"1000.00","disbursed_amount":18500.5,"number_of_installments":24,"annual_cet":"31.2"}`))
	}))

	sim, err := client.CreateSimulation(context.Background(), "tok", model.SimulationRequest{
		TermID:           "term-1",
		ConfigID:         "cfg-1",
		InstallmentValue: 1000,
		InstallmentCount: 24,
		Provider:         model.Provider,
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"consult_id":             "term-1",
		"config_id":              "cfg-1",
		"installment_face_value": 1000.0,
		"number_of_installments": 24.0,
		"provider":               "QI",
	}, got)

	assert.Equal(t, "sim-1", sim.ID)
	assert.InDelta(t, 1000.0, sim.InstallmentValue, 1e-9)
	assert.InDelta(t, 18500.5, sim.DisbursedAmount, 1e-9)
	assert.Equal(t, 24, sim.InstallmentCount)
	assert.InDelta(t, 31.2, sim.AnnualCostRate, 1e-9)
	assert.JSONEq(t, `{"id":"sim-1","installment_value":"1000.00","disbursed_amount":18500.5,"number_of_installments":24,"annual_cet":"31.2"}`, string(sim.Raw))
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantUnauth bool
	}{
		{name: "401 is unauthorized", status: http.StatusUnauthorized, body: `{"error":"expired"}`, wantUnauth: true},
		{name: "422 keeps body", status: http.StatusUnprocessableEntity, body: `{"title":"installment above margin"}`},
		{name: "500 keeps body", status: http.StatusInternalServerError, body: "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))

			_, err := client.CreateSimulation(context.Background(), "tok", model.SimulationRequest{InstallmentCount: 12})
			require.Error(t, err)

			if tt.wantUnauth {
				assert.ErrorIs(t, err, model.ErrUnauthorized)
				return
			}
			assert.NotErrorIs(t, err, model.ErrUnauthorized)

			var serr *model.StatusError
			require.True(t, errors.As(err, &serr))
			assert.Equal(t, tt.status, serr.StatusCode)
			assert.Equal(t, tt.body, serr.Body)
		})
	}
}

func TestIssueToken_PasswordGrant(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/oauth/token", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.PostForm.Get("grant_type"))
		assert.Equal(t, "user@example.com", r.PostForm.Get("username"))
		assert.Equal(t, "s3cret", r.PostForm.Get("password"))
		assert.Equal(t, "https://bff.example.com", r.PostForm.Get("audience"))
		assert.Equal(t, "offline_access", r.PostForm.Get("scope"))
		assert.Equal(t, "client-1", r.PostForm.Get("client_id"))

		_, _ = w.Write([]byte(`{"access_token":"abc","token_type":"Bearer","expires_in":86400}`))
	}))
	t.Cleanup(server.Close)

	auth := v8.NewAuthenticator(server.Client(), v8.Credentials{
		TokenURL: server.URL + "/oauth/token",
		ClientID: "client-1",
		Audience: "https://bff.example.com",
		Username: "user@example.com",
		Password: "s3cret",
	})

	token, err := auth.IssueToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
}

func TestIssueToken_Failures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
	}{
		{name: "forbidden", status: http.StatusForbidden, body: `{"error":"invalid_grant"}`, wantStatus: http.StatusForbidden},
		{name: "missing token", status: http.StatusOK, body: `{"token_type":"Bearer"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(server.Close)

			auth := v8.NewAuthenticator(server.Client(), v8.Credentials{TokenURL: server.URL})
			token, err := auth.IssueToken(context.Background())
			require.Error(t, err)
			assert.Empty(t, token)

			var serr *model.StatusError
			if tt.wantStatus != 0 {
				require.True(t, errors.As(err, &serr))
				assert.Equal(t, tt.wantStatus, serr.StatusCode)
			} else {
				assert.False(t, errors.As(err, &serr))
			}
		})
	}
}

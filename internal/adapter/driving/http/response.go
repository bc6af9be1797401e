package httphandler

import (
	"encoding/json"
	"net/http"

	"github.com/ericfisherdev/cltsim/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error","kind":"internal"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, kind model.Kind, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Kind: string(kind)})
}

// ErrorResponse is the standard error response body. Detail carries the
// provider's sanitized reason when one is available.
type ErrorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

// SimulateRequest is the JSON body for the simulation endpoints. CPF may be
// sent as a string or a number.
type SimulateRequest struct {
	CPF json.RawMessage `json:"cpf"`
}

// SimulationResponse is the JSON representation of a successful simulation.
type SimulationResponse struct {
	CPF              string  `json:"cpf"`
	TermID           string  `json:"term_id"`
	AvailableMargin  float64 `json:"available_margin"`
	RequestedAmount  float64 `json:"requested_amount"`
	DisbursedAmount  float64 `json:"disbursed_amount"`
	InstallmentCount int     `json:"installment_count"`
	InstallmentValue float64 `json:"installment_value"`
	AnnualCostRate   float64 `json:"annual_cost_rate"`
	ConfigID         string  `json:"config_id"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// toSimulationResponse converts a domain SimulationOutcome to its JSON representation.
func toSimulationResponse(o model.SimulationOutcome) SimulationResponse {
	return SimulationResponse{
		CPF:              o.CPF,
		TermID:           o.TermID,
		AvailableMargin:  o.AvailableMargin,
		RequestedAmount:  o.Result.RequestedAmount,
		DisbursedAmount:  o.Result.DisbursedAmount,
		InstallmentCount: o.Result.InstallmentCount,
		InstallmentValue: o.Result.InstallmentValue,
		AnnualCostRate:   o.Result.AnnualCostRate,
		ConfigID:         o.Result.ConfigID,
	}
}

// statusForKind maps an error kind to the HTTP status returned to callers.
func statusForKind(kind model.Kind) int {
	switch kind {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindRejected:
		return http.StatusUnprocessableEntity
	case model.KindAuth, model.KindUpstream:
		return http.StatusBadGateway
	case model.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

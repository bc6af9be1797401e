// Package v8 implements the ConsignmentClient and TokenIssuer ports against
// the V8 private-consignment platform.
package v8

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ericfisherdev/cltsim/internal/domain/model"
	"github.com/ericfisherdev/cltsim/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ConsignmentClient = (*Client)(nil)

// maxErrorBody caps how much of an error response is kept for diagnostics.
const maxErrorBody = 4 << 10

// Client implements the driven.ConsignmentClient port over the platform's BFF.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient creates a Client for baseURL (e.g. "https://bff.v8sistema.com").
func NewClient(httpClient *http.Client, baseURL string) *Client {
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// CreateConsult registers a consent term and returns its identifier.
func (c *Client) CreateConsult(ctx context.Context, token string, req model.ConsultRequest) (string, error) {
	body, err := encodeConsultRequest(req)
	if err != nil {
		return "", fmt.Errorf("marshaling consult request: %w", err)
	}

	var created consultCreatedJSON
	if err := c.do(ctx, token, call{method: http.MethodPost, path: "/private-consignment/consult", body: body}, &created); err != nil {
		return "", fmt.Errorf("creating consult: %w", err)
	}
	return string(created.ID), nil
}

// AuthorizeConsult authorizes a previously created consent term.
func (c *Client) AuthorizeConsult(ctx context.Context, token string, termID string) error {
	path := "/private-consignment/consult/" + url.PathEscape(termID) + "/authorize"
	if err := c.do(ctx, token, call{method: http.MethodPost, path: path, body: []byte(`{}`)}, nil); err != nil {
		return fmt.Errorf("authorizing consult %s: %w", termID, err)
	}
	return nil
}

// SearchConsults lists the consent terms matching the search window and
// document number. The request opts out of HTTP caching.
func (c *Client) SearchConsults(ctx context.Context, token string, search model.ConsultSearch) ([]model.MarginSnapshot, error) {
	q := url.Values{}
	q.Set("startDate", isoMillis(search.Start))
	q.Set("endDate", isoMillis(search.End))
	q.Set("limit", strconv.Itoa(search.Limit))
	q.Set("page", strconv.Itoa(search.Page))
	q.Set("search", search.DocumentNumber)
	q.Set("provider", search.Provider)

	var list consultListJSON
	if err := c.do(ctx, token, call{method: http.MethodGet, path: "/private-consignment/consult", query: q, noCache: true}, &list); err != nil {
		return nil, fmt.Errorf("searching consults: %w", err)
	}

	snapshots := make([]model.MarginSnapshot, 0, len(list.Data))
	for _, entry := range list.Data {
		snapshots = append(snapshots, mapConsult(entry))
	}
	return snapshots, nil
}

// ListSimulationConfigs returns the financing variants currently offered.
// Every call reaches the platform; cached listings are never reused.
func (c *Client) ListSimulationConfigs(ctx context.Context, token string) ([]model.FinancingConfig, error) {
	var list configListJSON
	if err := c.do(ctx, token, call{method: http.MethodGet, path: "/private-consignment/simulation/configs", noCache: true}, &list); err != nil {
		return nil, fmt.Errorf("listing simulation configs: %w", err)
	}

	configs := make([]model.FinancingConfig, 0, len(list.Configs))
	for _, cfg := range list.Configs {
		configs = append(configs, mapConfig(cfg))
	}
	return configs, nil
}

// CreateSimulation submits one installment option. Rejections come back as
// *model.StatusError so the negotiator can classify the provider's reason.
func (c *Client) CreateSimulation(ctx context.Context, token string, req model.SimulationRequest) (*model.ProviderSimulation, error) {
	body, err := json.Marshal(simulationRequestJSON{
		ConsultID:            req.TermID,
		ConfigID:             req.ConfigID,
		InstallmentFaceValue: req.InstallmentValue,
		NumberOfInstallments: req.InstallmentCount,
		Provider:             req.Provider,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling simulation request: %w", err)
	}

	var raw json.RawMessage
	if err := c.do(ctx, token, call{method: http.MethodPost, path: "/private-consignment/simulation", body: body}, &raw); err != nil {
		return nil, fmt.Errorf("creating simulation (%dx): %w", req.InstallmentCount, err)
	}

	var sim simulationJSON
	if err := json.Unmarshal(raw, &sim); err != nil {
		return nil, fmt.Errorf("decoding simulation response: %w", err)
	}

	return &model.ProviderSimulation{
		ID:               string(sim.ID),
		InstallmentValue: float64(sim.InstallmentValue),
		DisbursedAmount:  float64(sim.DisbursedAmount),
		InstallmentCount: int(sim.NumberOfInstallments),
		AnnualCostRate:   float64(sim.AnnualCET),
		Raw:              raw,
	}, nil
}

// call describes one platform request.
type call struct {
	method  string
	path    string
	query   url.Values
	body    []byte
	noCache bool // bypass the caching transport
}

// do issues one authenticated JSON request. A 401 is reported as
// model.ErrUnauthorized, any other non-2xx as *model.StatusError. out may be
// nil when the response body is not needed.
func (c *Client) do(ctx context.Context, token string, cl call, out any) error {
	u := c.baseURL + cl.path
	if len(cl.query) > 0 {
		u += "?" + cl.query.Encode()
	}

	var reader io.Reader
	if cl.body != nil {
		reader = bytes.NewReader(cl.body)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, u, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.noCache {
		req.Header.Set("Cache-Control", "no-cache")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		_, _ = io.Copy(io.Discard, resp.Body)
		return model.ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &model.StatusError{StatusCode: resp.StatusCode, Body: readBody(resp)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// readBody returns up to maxErrorBody bytes of the response body.
func readBody(resp *http.Response) string {
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

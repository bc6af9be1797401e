// Package people implements the PersonLookup port against the identity
// utilities service.
package people

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ericfisherdev/cltsim/internal/domain/model"
	"github.com/ericfisherdev/cltsim/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PersonLookup = (*Client)(nil)

const maxErrorBody = 4 << 10

// Client implements driven.PersonLookup with a static bearer token.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

// NewClient creates a Client for baseURL authenticated with token.
func NewClient(httpClient *http.Client, baseURL, token string) *Client {
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

// personJSON is one record of the lookup response. Only the first record is used.
type personJSON struct {
	CPF       flexString `json:"cpf"`
	Name      flexString `json:"name"`
	BirthDate flexString `json:"birthDate"`
	Gender    flexString `json:"gender"`
	Email     flexString `json:"email"`
	AreaCode  flexString `json:"areaCode"`
	Phone     flexString `json:"phone"`
}

// flexString decodes a JSON string, a number, or null as text.
type flexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("expected string or number: %w", err)
		}
		*f = flexString(n.String())
	}
	return nil
}

type lookupResponseJSON struct {
	Data []personJSON `json:"data"`
}

// LookupPerson fetches the person registered under cpf. It returns nil, nil
// when the service has no record, whether signalled by 404 or an empty list.
func (c *Client) LookupPerson(ctx context.Context, cpf string) (*model.Person, error) {
	u := c.baseURL + "/api/pessoas/cpf/" + url.PathEscape(cpf)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating person request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("looking up person: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("looking up person: %w",
			&model.StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))})
	}

	var body lookupResponseJSON
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding person response: %w", err)
	}
	if len(body.Data) == 0 {
		return nil, nil
	}

	p := body.Data[0]
	return &model.Person{
		CPF:       string(p.CPF),
		Name:      string(p.Name),
		BirthDate: string(p.BirthDate),
		Gender:    string(p.Gender),
		Email:     string(p.Email),
		AreaCode:  string(p.AreaCode),
		Phone:     string(p.Phone),
	}, nil
}

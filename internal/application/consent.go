package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ericfisherdev/cltsim/internal/domain/model"
	"github.com/ericfisherdev/cltsim/internal/domain/port/driven"
)

// ConsentRegistrar creates and authorizes consent terms for a borrower.
type ConsentRegistrar struct {
	client driven.ConsignmentClient
	tokens *TokenCache
	logger *slog.Logger
}

// NewConsentRegistrar creates a ConsentRegistrar. logger may be nil.
func NewConsentRegistrar(client driven.ConsignmentClient, tokens *TokenCache, logger *slog.Logger) *ConsentRegistrar {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsentRegistrar{client: client, tokens: tokens, logger: logger}
}

// CreateTerm registers a consent term for the identity and returns the
// provider's term identifier. The identity must carry a normalized birth date.
// Calling it twice creates two terms.
func (r *ConsentRegistrar) CreateTerm(ctx context.Context, id model.Identity) (string, error) {
	if cpf, ok := model.NormalizeCPF(id.CPF); !ok || cpf != id.CPF {
		return "", model.Validationf("create_term", "invalid document number")
	}
	if _, ok := model.NormalizeBirthDate(id.BirthDate); !ok {
		return "", model.Validationf("create_term", "birth date missing or not in DD/MM/YYYY or YYYY-MM-DD format")
	}

	req := model.NewConsultRequest(id)

	var termID string
	err := r.tokens.Do(ctx, func(ctx context.Context, token string) error {
		var err error
		termID, err = r.client.CreateConsult(ctx, token, req)
		return err
	})
	if err != nil {
		return "", upstreamError("create_term", "consent term creation failed", err)
	}
	if termID == "" {
		return "", model.NewError(model.KindUpstream, "create_term", "platform returned no term id", nil)
	}

	r.logger.Info("consent term created", "cpf", model.MaskCPF(id.CPF), "term_id", termID)
	return termID, nil
}

// AuthorizeTerm authorizes a previously created term. It is not retried.
func (r *ConsentRegistrar) AuthorizeTerm(ctx context.Context, termID string) error {
	err := r.tokens.Do(ctx, func(ctx context.Context, token string) error {
		return r.client.AuthorizeConsult(ctx, token, termID)
	})
	if err != nil {
		return upstreamError("authorize_term", "consent term authorization failed", err)
	}

	r.logger.Info("consent term authorized", "term_id", termID)
	return nil
}

// upstreamError lifts an adapter error into the taxonomy. Errors that already
// carry a kind (auth failures from TokenCache) and context errors pass through.
func upstreamError(op, message string, err error) error {
	var kerr *model.Error
	if errors.As(err, &kerr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	e := model.NewError(model.KindUpstream, op, message, err)
	var serr *model.StatusError
	if errors.As(err, &serr) {
		e.Detail = serr.Body
	}
	return e
}

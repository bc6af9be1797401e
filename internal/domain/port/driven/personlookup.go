package driven

import (
	"context"

	"github.com/ericfisherdev/cltsim/internal/domain/model"
)

// PersonLookup defines the driven port for the identity lookup service.
type PersonLookup interface {
	// LookupPerson returns the person registered under the normalized CPF.
	// Returns (nil, nil) if the CPF is unknown to the service.
	LookupPerson(ctx context.Context, cpf string) (*model.Person, error)
}

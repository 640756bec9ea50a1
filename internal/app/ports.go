package app

import (
	"context"

	"github.com/ycnlabs/prospect/internal/domain"
)

// TokenSource yields a bearer token for remote calls. An empty string means
// no usable credential could be produced without user interaction.
type TokenSource interface {
	AccessToken(context.Context) string
}

// LeadClient is the remote store the coordinator writes through. Every call
// takes the token explicitly so the coordinator controls when credentials
// are consulted.
type LeadClient interface {
	List(ctx context.Context, token string) ([]domain.Lead, error)
	Create(ctx context.Context, token, name string, rating domain.Rating) (domain.Lead, error)
	UpdateRating(ctx context.Context, token, id string, rating domain.Rating) error
	Delete(ctx context.Context, token, id string) error
}

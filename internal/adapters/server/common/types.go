// Package common holds the lead-service surface and wire types shared by the
// REST and MCP transports.
package common

import (
	"context"
	"time"

	"github.com/ycnlabs/prospect/internal/app"
	"github.com/ycnlabs/prospect/internal/domain"
)

// LeadService is the coordinator surface both transports expose. It is
// satisfied by *app.Service.
type LeadService interface {
	Board() *app.Board
	RefreshLeads(context.Context) error
	MoveLead(context.Context, string, domain.Column) error
	CreateLead(context.Context, string, domain.Rating) (domain.Lead, error)
	DeleteLead(context.Context, string) error
}

// LeadPayload is the wire shape of one lead in server responses.
type LeadPayload struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Column     string    `json:"column"`
	Rating     int       `json:"rating"`
	CreatedAt  time.Time `json:"created_at,omitzero"`
	ModifiedAt time.Time `json:"modified_at,omitzero"`
	OwnerID    string    `json:"owner_id,omitempty"`
}

// PayloadFromLead converts a domain lead to its wire shape.
func PayloadFromLead(lead domain.Lead) LeadPayload {
	return LeadPayload{
		ID:         lead.ID,
		Name:       lead.Name,
		Column:     string(lead.Column()),
		Rating:     int(lead.Rating),
		CreatedAt:  lead.CreatedAt,
		ModifiedAt: lead.ModifiedAt,
		OwnerID:    lead.OwnerID,
	}
}

// ListLeads refreshes the board from the remote store and returns the
// resulting leads in board order.
func ListLeads(ctx context.Context, svc LeadService) ([]LeadPayload, error) {
	if err := svc.RefreshLeads(ctx); err != nil {
		return nil, err
	}
	leads := svc.Board().Leads()
	payloads := make([]LeadPayload, 0, len(leads))
	for _, lead := range leads {
		payloads = append(payloads, PayloadFromLead(lead))
	}
	return payloads, nil
}

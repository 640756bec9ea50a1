package domain

import (
	"strings"
	"time"
)

// Lead is the CRM prospect record managed by this system. The remote store
// assigns ID and both timestamps; OwnerID is a read-only back-reference and
// is never written by this client.
type Lead struct {
	ID         string
	Name       string
	Rating     Rating
	CreatedAt  time.Time
	ModifiedAt time.Time
	OwnerID    string
}

// Column returns the board column this lead belongs to.
func (l Lead) Column() Column {
	return l.Rating.Column()
}

// LeadInput carries validated fields for a lead create request.
type LeadInput struct {
	Name   string
	Rating Rating
}

// NewLeadInput validates create fields locally. Rejections here must never
// reach the network.
func NewLeadInput(name string, rating Rating) (LeadInput, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return LeadInput{}, ErrInvalidName
	}
	if !rating.Valid() {
		return LeadInput{}, ErrInvalidRating
	}
	return LeadInput{Name: name, Rating: rating}, nil
}

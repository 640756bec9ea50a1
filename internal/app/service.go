package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	charmLog "github.com/charmbracelet/log"

	"github.com/ycnlabs/prospect/internal/domain"
)

// Service coordinates optimistic mutations between the in-memory board and
// the remote store. Every mutation applies locally first, then confirms
// remotely, and restores the exact prior state when confirmation fails.
// Mutations on the same lead are serialized; mutations on different leads
// proceed concurrently.
type Service struct {
	board  *Board
	client LeadClient
	tokens TokenSource
	logger *charmLog.Logger

	hookMu   sync.Mutex
	onChange func()

	locksMu sync.Mutex
	locks   map[string]*leadLock
}

// leadLock serializes mutations per lead. refs tracks waiters so idle locks
// can be reclaimed.
type leadLock struct {
	mu   sync.Mutex
	refs int
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger attaches a runtime logger.
func WithServiceLogger(logger *charmLog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs the mutation coordinator.
func NewService(board *Board, client LeadClient, tokens TokenSource, opts ...ServiceOption) *Service {
	s := &Service{
		board:  board,
		client: client,
		tokens: tokens,
		logger: charmLog.New(io.Discard),
		locks:  make(map[string]*leadLock),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Board exposes the shared view state.
func (s *Service) Board() *Board {
	return s.board
}

// SetOnChange registers a hook invoked after every board change, optimistic
// or rolled back. The UI uses it to repaint.
func (s *Service) SetOnChange(fn func()) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.onChange = fn
}

func (s *Service) notifyChange() {
	s.hookMu.Lock()
	fn := s.onChange
	s.hookMu.Unlock()
	if fn != nil {
		fn()
	}
}

// acquireLead takes the per-lead mutation lock and returns its release
// function.
func (s *Service) acquireLead(id string) func() {
	s.locksMu.Lock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &leadLock{}
		s.locks[id] = lock
	}
	lock.refs++
	s.locksMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.locksMu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, id)
		}
		s.locksMu.Unlock()
	}
}

// RefreshLeads replaces the board with a fresh server read. The board is
// left untouched when the read cannot be made.
func (s *Service) RefreshLeads(ctx context.Context) error {
	token := s.tokens.AccessToken(ctx)
	if token == "" {
		return ErrAuthRequired
	}
	leads, err := s.client.List(ctx, token)
	if err != nil {
		return fmt.Errorf("refresh leads: %w", err)
	}
	s.board.Replace(leads)
	s.notifyChange()
	s.logger.Debug("board refreshed", "leads", len(leads))
	return nil
}

// MoveLead changes a lead's column optimistically. The board updates before
// the network round trip; a failed or unauthorized write restores the lead
// exactly as it was. Moving a lead to the column it already occupies is a
// no-op and issues no request.
func (s *Service) MoveLead(ctx context.Context, id string, target domain.Column) error {
	rating, err := target.Rating()
	if err != nil {
		return err
	}

	release := s.acquireLead(id)
	defer release()

	lead, ok := s.board.Get(id)
	if !ok {
		return ErrLeadNotFound
	}
	if lead.Rating == rating {
		return nil
	}

	snapshot, ok := s.board.ApplyRating(id, rating)
	if !ok {
		return ErrLeadNotFound
	}
	s.notifyChange()

	token := s.tokens.AccessToken(ctx)
	if token == "" {
		s.board.Restore(snapshot)
		s.notifyChange()
		return ErrAuthRequired
	}

	if err := s.client.UpdateRating(ctx, token, id, rating); err != nil {
		s.board.Restore(snapshot)
		s.notifyChange()
		s.logger.Warn("move rolled back", "lead", id, "target", target, "error", err)
		return fmt.Errorf("move lead: %w", err)
	}

	s.logger.Debug("lead moved", "lead", id, "target", target)
	return nil
}

// CreateLead creates a lead remotely and inserts the server's record at the
// front of the board. Creation is not optimistic: the server assigns the
// identifier and timestamps, so nothing is shown until it confirms.
func (s *Service) CreateLead(ctx context.Context, name string, rating domain.Rating) (domain.Lead, error) {
	if _, err := domain.NewLeadInput(name, rating); err != nil {
		return domain.Lead{}, err
	}
	token := s.tokens.AccessToken(ctx)
	if token == "" {
		return domain.Lead{}, ErrAuthRequired
	}
	lead, err := s.client.Create(ctx, token, name, rating)
	if err != nil {
		return domain.Lead{}, fmt.Errorf("create lead: %w", err)
	}
	s.board.Insert(lead)
	s.notifyChange()
	s.logger.Debug("lead created", "lead", lead.ID)
	return lead, nil
}

// DeleteLead removes a lead optimistically. A record already gone on the
// server counts as success; any other failure reinstates the lead.
func (s *Service) DeleteLead(ctx context.Context, id string) error {
	release := s.acquireLead(id)
	defer release()

	snapshot, ok := s.board.Remove(id)
	if !ok {
		return ErrLeadNotFound
	}
	s.notifyChange()

	token := s.tokens.AccessToken(ctx)
	if token == "" {
		s.board.Restore(snapshot)
		s.notifyChange()
		return ErrAuthRequired
	}

	err := s.client.Delete(ctx, token, id)
	if err != nil && !errors.Is(err, ErrLeadNotFound) {
		s.board.Restore(snapshot)
		s.notifyChange()
		s.logger.Warn("delete rolled back", "lead", id, "error", err)
		return fmt.Errorf("delete lead: %w", err)
	}

	s.logger.Debug("lead deleted", "lead", id)
	return nil
}

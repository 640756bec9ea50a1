package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ycnlabs/prospect/internal/domain"
)

// fakeTokens is a scriptable TokenSource.
type fakeTokens struct {
	token string
	calls atomic.Int64
}

func (f *fakeTokens) AccessToken(context.Context) string {
	f.calls.Add(1)
	return f.token
}

// fakeClient records remote calls and replies from scripted function fields.
type fakeClient struct {
	mu          sync.Mutex
	updateCalls []string
	deleteCalls []string

	listFn   func(ctx context.Context, token string) ([]domain.Lead, error)
	createFn func(ctx context.Context, token, name string, rating domain.Rating) (domain.Lead, error)
	updateFn func(ctx context.Context, token, id string, rating domain.Rating) error
	deleteFn func(ctx context.Context, token, id string) error
}

func (f *fakeClient) List(ctx context.Context, token string) ([]domain.Lead, error) {
	if f.listFn != nil {
		return f.listFn(ctx, token)
	}
	return nil, nil
}

func (f *fakeClient) Create(ctx context.Context, token, name string, rating domain.Rating) (domain.Lead, error) {
	if f.createFn != nil {
		return f.createFn(ctx, token, name, rating)
	}
	return domain.Lead{}, errors.New("create not scripted")
}

func (f *fakeClient) UpdateRating(ctx context.Context, token, id string, rating domain.Rating) error {
	f.mu.Lock()
	f.updateCalls = append(f.updateCalls, id)
	f.mu.Unlock()
	if f.updateFn != nil {
		return f.updateFn(ctx, token, id, rating)
	}
	return nil
}

func (f *fakeClient) Delete(ctx context.Context, token, id string) error {
	f.mu.Lock()
	f.deleteCalls = append(f.deleteCalls, id)
	f.mu.Unlock()
	if f.deleteFn != nil {
		return f.deleteFn(ctx, token, id)
	}
	return nil
}

func (f *fakeClient) updates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updateCalls)
}

func seededBoard(leads ...domain.Lead) *Board {
	board := NewBoard()
	board.Replace(leads)
	return board
}

func sampleLead(id string, rating domain.Rating) domain.Lead {
	return domain.Lead{
		ID:         id,
		Name:       "Lead " + id,
		Rating:     rating,
		CreatedAt:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		ModifiedAt: time.Date(2026, 3, 2, 16, 45, 0, 0, time.UTC),
		OwnerID:    "owner-1",
	}
}

func TestMoveLeadAppliesBeforeRemoteConfirm(t *testing.T) {
	board := seededBoard(sampleLead("lead-1", domain.RatingWarm))
	client := &fakeClient{}
	confirmed := make(chan struct{})
	observed := make(chan domain.Rating, 1)
	client.updateFn = func(ctx context.Context, token, id string, rating domain.Rating) error {
		lead, _ := board.Get(id)
		observed <- lead.Rating
		<-confirmed
		return nil
	}

	service := NewService(board, client, &fakeTokens{token: "tok"})
	done := make(chan error, 1)
	go func() { done <- service.MoveLead(context.Background(), "lead-1", domain.ColumnHot) }()

	// The board must already show the move while the remote call is in
	// flight.
	if got := <-observed; got != domain.RatingHot {
		t.Fatalf("rating during remote call = %d, want hot", got)
	}
	close(confirmed)
	if err := <-done; err != nil {
		t.Fatalf("MoveLead() error = %v", err)
	}
	lead, _ := board.Get("lead-1")
	if lead.Rating != domain.RatingHot {
		t.Fatalf("rating after confirm = %d, want hot", lead.Rating)
	}
}

func TestMoveLeadNoOpIssuesNoRequest(t *testing.T) {
	board := seededBoard(sampleLead("lead-1", domain.RatingWarm))
	client := &fakeClient{}
	tokens := &fakeTokens{token: "tok"}
	service := NewService(board, client, tokens)

	if err := service.MoveLead(context.Background(), "lead-1", domain.ColumnWarm); err != nil {
		t.Fatalf("MoveLead() error = %v", err)
	}
	if client.updates() != 0 {
		t.Fatal("no-op move reached the remote store")
	}
	if tokens.calls.Load() != 0 {
		t.Fatal("no-op move consulted the credential provider")
	}
}

func TestMoveLeadRollsBackExactlyOnRemoteFailure(t *testing.T) {
	original := sampleLead("lead-1", domain.RatingWarm)
	board := seededBoard(original, sampleLead("lead-2", domain.RatingCold))
	client := &fakeClient{
		updateFn: func(ctx context.Context, token, id string, rating domain.Rating) error {
			return errors.New("gateway timeout")
		},
	}
	service := NewService(board, client, &fakeTokens{token: "tok"})

	err := service.MoveLead(context.Background(), "lead-1", domain.ColumnHot)
	if err == nil {
		t.Fatal("MoveLead() succeeded despite remote failure")
	}
	restored, _ := board.Get("lead-1")
	if restored != original {
		t.Fatalf("lead after rollback = %+v, want %+v", restored, original)
	}
	if board.Len() != 2 {
		t.Fatalf("board size changed to %d", board.Len())
	}
}

func TestMoveLeadWithoutTokenRevertsAndSkipsNetwork(t *testing.T) {
	original := sampleLead("lead-1", domain.RatingWarm)
	board := seededBoard(original)
	client := &fakeClient{}
	service := NewService(board, client, &fakeTokens{token: ""})

	err := service.MoveLead(context.Background(), "lead-1", domain.ColumnHot)
	if !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("MoveLead() error = %v, want ErrAuthRequired", err)
	}
	if client.updates() != 0 {
		t.Fatal("unauthenticated move reached the remote store")
	}
	restored, _ := board.Get("lead-1")
	if restored != original {
		t.Fatalf("lead after revert = %+v, want %+v", restored, original)
	}
}

func TestMoveLeadUnknownIDAndColumn(t *testing.T) {
	board := seededBoard(sampleLead("lead-1", domain.RatingWarm))
	service := NewService(board, &fakeClient{}, &fakeTokens{token: "tok"})

	if err := service.MoveLead(context.Background(), "ghost", domain.ColumnHot); !errors.Is(err, ErrLeadNotFound) {
		t.Fatalf("MoveLead(ghost) error = %v, want ErrLeadNotFound", err)
	}
	if err := service.MoveLead(context.Background(), "lead-1", domain.Column("tepid")); !errors.Is(err, domain.ErrInvalidColumn) {
		t.Fatalf("MoveLead(bad column) error = %v, want ErrInvalidColumn", err)
	}
}

func TestMovesOnSameLeadAreSerialized(t *testing.T) {
	board := seededBoard(sampleLead("lead-1", domain.RatingCold))
	var inFlight, maxInFlight atomic.Int64
	client := &fakeClient{
		updateFn: func(ctx context.Context, token, id string, rating domain.Rating) error {
			current := inFlight.Add(1)
			for {
				max := maxInFlight.Load()
				if current <= max || maxInFlight.CompareAndSwap(max, current) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inFlight.Add(-1)
			return nil
		},
	}
	service := NewService(board, client, &fakeTokens{token: "tok"})

	var wg sync.WaitGroup
	targets := []domain.Column{domain.ColumnWarm, domain.ColumnHot, domain.ColumnWarm, domain.ColumnHot}
	for _, target := range targets {
		wg.Add(1)
		go func(target domain.Column) {
			defer wg.Done()
			_ = service.MoveLead(context.Background(), "lead-1", target)
		}(target)
	}
	wg.Wait()

	if got := maxInFlight.Load(); got > 1 {
		t.Fatalf("%d moves of the same lead ran concurrently", got)
	}
	lead, _ := board.Get("lead-1")
	if !lead.Rating.Valid() {
		t.Fatalf("rating after serialized moves = %d", lead.Rating)
	}
}

func TestMovesOnDifferentLeadsRunConcurrently(t *testing.T) {
	board := seededBoard(sampleLead("lead-1", domain.RatingCold), sampleLead("lead-2", domain.RatingCold))
	started := make(chan string, 2)
	proceed := make(chan struct{})
	client := &fakeClient{
		updateFn: func(ctx context.Context, token, id string, rating domain.Rating) error {
			started <- id
			<-proceed
			return nil
		},
	}
	service := NewService(board, client, &fakeTokens{token: "tok"})

	var wg sync.WaitGroup
	for _, id := range []string{"lead-1", "lead-2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_ = service.MoveLead(context.Background(), id, domain.ColumnHot)
		}(id)
	}

	// Both remote calls must be in flight at once.
	timeout := time.After(2 * time.Second)
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-timeout:
			t.Fatal("moves on distinct leads blocked each other")
		}
	}
	close(proceed)
	wg.Wait()
}

func TestRefreshLeadsReplacesBoardInServerOrder(t *testing.T) {
	board := seededBoard(sampleLead("stale", domain.RatingHot))
	serverLeads := []domain.Lead{
		sampleLead("lead-3", domain.RatingHot),
		sampleLead("lead-2", domain.RatingWarm),
		sampleLead("lead-1", domain.RatingCold),
	}
	client := &fakeClient{
		listFn: func(ctx context.Context, token string) ([]domain.Lead, error) {
			return serverLeads, nil
		},
	}
	service := NewService(board, client, &fakeTokens{token: "tok"})

	if err := service.RefreshLeads(context.Background()); err != nil {
		t.Fatalf("RefreshLeads() error = %v", err)
	}
	leads := board.Leads()
	if len(leads) != 3 {
		t.Fatalf("board holds %d leads, want 3", len(leads))
	}
	for i, want := range []string{"lead-3", "lead-2", "lead-1"} {
		if leads[i].ID != want {
			t.Fatalf("leads[%d].ID = %q, want %q", i, leads[i].ID, want)
		}
	}
}

func TestRefreshLeadsWithoutTokenLeavesBoardUntouched(t *testing.T) {
	board := seededBoard(sampleLead("lead-1", domain.RatingWarm))
	service := NewService(board, &fakeClient{}, &fakeTokens{token: ""})

	if err := service.RefreshLeads(context.Background()); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("RefreshLeads() error = %v, want ErrAuthRequired", err)
	}
	if board.Len() != 1 {
		t.Fatalf("board size changed to %d", board.Len())
	}
}

func TestCreateLeadInsertsServerRecordAtFront(t *testing.T) {
	board := seededBoard(sampleLead("lead-1", domain.RatingCold))
	client := &fakeClient{
		createFn: func(ctx context.Context, token, name string, rating domain.Rating) (domain.Lead, error) {
			return domain.Lead{ID: "lead-new", Name: name, Rating: rating}, nil
		},
	}
	service := NewService(board, client, &fakeTokens{token: "tok"})

	lead, err := service.CreateLead(context.Background(), "Acme Corp", domain.RatingWarm)
	if err != nil {
		t.Fatalf("CreateLead() error = %v", err)
	}
	if lead.ID != "lead-new" {
		t.Fatalf("lead.ID = %q", lead.ID)
	}
	leads := board.Leads()
	if leads[0].ID != "lead-new" {
		t.Fatalf("front of board = %q, want the new lead", leads[0].ID)
	}
}

func TestCreateLeadValidatesBeforeCredentialLookup(t *testing.T) {
	tokens := &fakeTokens{token: "tok"}
	service := NewService(NewBoard(), &fakeClient{}, tokens)

	if _, err := service.CreateLead(context.Background(), "   ", domain.RatingWarm); !errors.Is(err, domain.ErrInvalidName) {
		t.Fatalf("CreateLead() error = %v, want ErrInvalidName", err)
	}
	if tokens.calls.Load() != 0 {
		t.Fatal("invalid input consulted the credential provider")
	}
}

func TestDeleteLeadTreatsRemoteMissingAsSuccess(t *testing.T) {
	board := seededBoard(sampleLead("lead-1", domain.RatingWarm))
	client := &fakeClient{
		deleteFn: func(ctx context.Context, token, id string) error {
			return ErrLeadNotFound
		},
	}
	service := NewService(board, client, &fakeTokens{token: "tok"})

	if err := service.DeleteLead(context.Background(), "lead-1"); err != nil {
		t.Fatalf("DeleteLead() error = %v", err)
	}
	if board.Len() != 0 {
		t.Fatal("lead still on board after delete")
	}
}

func TestDeleteLeadRestoresOnRemoteFailure(t *testing.T) {
	original := sampleLead("lead-1", domain.RatingWarm)
	board := seededBoard(original)
	client := &fakeClient{
		deleteFn: func(ctx context.Context, token, id string) error {
			return errors.New("service unavailable")
		},
	}
	service := NewService(board, client, &fakeTokens{token: "tok"})

	if err := service.DeleteLead(context.Background(), "lead-1"); err == nil {
		t.Fatal("DeleteLead() succeeded despite remote failure")
	}
	restored, ok := board.Get("lead-1")
	if !ok {
		t.Fatal("lead not reinstated after failed delete")
	}
	if restored != original {
		t.Fatalf("lead after restore = %+v, want %+v", restored, original)
	}
}

func TestDeleteLeadRollbackKeepsBoardOrder(t *testing.T) {
	board := seededBoard(
		sampleLead("lead-1", domain.RatingCold),
		sampleLead("lead-2", domain.RatingWarm),
		sampleLead("lead-3", domain.RatingHot),
	)
	client := &fakeClient{
		deleteFn: func(ctx context.Context, token, id string) error {
			return errors.New("service unavailable")
		},
	}
	service := NewService(board, client, &fakeTokens{token: "tok"})

	if err := service.DeleteLead(context.Background(), "lead-2"); err == nil {
		t.Fatal("DeleteLead() succeeded despite remote failure")
	}

	leads := board.Leads()
	want := []string{"lead-1", "lead-2", "lead-3"}
	if len(leads) != len(want) {
		t.Fatalf("board has %d leads after rollback, want %d", len(leads), len(want))
	}
	for i, id := range want {
		if leads[i].ID != id {
			got := make([]string, 0, len(leads))
			for _, lead := range leads {
				got = append(got, lead.ID)
			}
			t.Fatalf("board order after rollback = %v, want %v", got, want)
		}
	}
}

func TestOnChangeFiresForOptimisticApplyAndRollback(t *testing.T) {
	board := seededBoard(sampleLead("lead-1", domain.RatingWarm))
	client := &fakeClient{
		updateFn: func(ctx context.Context, token, id string, rating domain.Rating) error {
			return errors.New("remote down")
		},
	}
	service := NewService(board, client, &fakeTokens{token: "tok"})
	var changes atomic.Int64
	service.SetOnChange(func() { changes.Add(1) })

	_ = service.MoveLead(context.Background(), "lead-1", domain.ColumnHot)
	if got := changes.Load(); got != 2 {
		t.Fatalf("onChange fired %d times, want 2 (apply + rollback)", got)
	}
}

package app

import (
	"sync"

	"github.com/ycnlabs/prospect/internal/domain"
)

// Board is the shared in-memory view of the lead list. It is the single
// source of truth for what the user currently sees; optimistic writes mutate
// it first and roll it back on failure. All methods are safe for concurrent
// use.
type Board struct {
	mu    sync.RWMutex
	byID  map[string]domain.Lead
	order []string
}

// LeadSnapshot captures one lead's state before an optimistic mutation so a
// failed write can be undone exactly, including its position in board order.
type LeadSnapshot struct {
	Lead  domain.Lead
	index int
}

// ColumnView groups the leads shown under one board column.
type ColumnView struct {
	Column domain.Column
	Leads  []domain.Lead
}

// NewBoard constructs an empty board.
func NewBoard() *Board {
	return &Board{byID: make(map[string]domain.Lead)}
}

// Replace swaps the entire board contents for a fresh server read. Server
// order is preserved as-is.
func (b *Board) Replace(leads []domain.Lead) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byID = make(map[string]domain.Lead, len(leads))
	b.order = make([]string, 0, len(leads))
	for _, lead := range leads {
		if _, exists := b.byID[lead.ID]; exists {
			continue
		}
		b.byID[lead.ID] = lead
		b.order = append(b.order, lead.ID)
	}
}

// Get returns one lead by id.
func (b *Board) Get(id string) (domain.Lead, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	lead, ok := b.byID[id]
	return lead, ok
}

// Leads returns every lead in board order.
func (b *Board) Leads() []domain.Lead {
	b.mu.RLock()
	defer b.mu.RUnlock()
	leads := make([]domain.Lead, 0, len(b.order))
	for _, id := range b.order {
		leads = append(leads, b.byID[id])
	}
	return leads
}

// Len reports the number of leads on the board.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.order)
}

// ApplyRating sets a lead's rating in place and returns a snapshot of the
// lead as it was, for rollback. The modified timestamp is left untouched;
// only a confirmed server write carries a new one.
func (b *Board) ApplyRating(id string, rating domain.Rating) (LeadSnapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lead, ok := b.byID[id]
	if !ok {
		return LeadSnapshot{}, false
	}
	snapshot := LeadSnapshot{Lead: lead, index: b.indexLocked(id)}
	lead.Rating = rating
	b.byID[id] = lead
	return snapshot, true
}

// Restore puts a snapshotted lead back exactly as captured. If the lead has
// been removed since the snapshot it is reinstated at its original position
// in board order.
func (b *Board) Restore(snapshot LeadSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := snapshot.Lead.ID
	if _, ok := b.byID[id]; !ok {
		at := snapshot.index
		if at < 0 {
			at = 0
		}
		if at > len(b.order) {
			at = len(b.order)
		}
		b.order = append(b.order, "")
		copy(b.order[at+1:], b.order[at:])
		b.order[at] = id
	}
	b.byID[id] = snapshot.Lead
}

// indexLocked returns a lead's position in board order. Callers hold b.mu.
func (b *Board) indexLocked(id string) int {
	for i, orderedID := range b.order {
		if orderedID == id {
			return i
		}
	}
	return len(b.order)
}

// Insert adds a lead at the front of the board order, where the newest
// record belongs.
func (b *Board) Insert(lead domain.Lead) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.byID[lead.ID]; exists {
		b.byID[lead.ID] = lead
		return
	}
	b.byID[lead.ID] = lead
	b.order = append([]string{lead.ID}, b.order...)
}

// Remove deletes a lead, returning a snapshot for rollback.
func (b *Board) Remove(id string) (LeadSnapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lead, ok := b.byID[id]
	if !ok {
		return LeadSnapshot{}, false
	}
	delete(b.byID, id)
	index := 0
	for i, orderedID := range b.order {
		if orderedID == id {
			index = i
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return LeadSnapshot{Lead: lead, index: index}, true
}

// Columns groups the board into the three rating columns, preserving board
// order within each.
func (b *Board) Columns() []ColumnView {
	b.mu.RLock()
	defer b.mu.RUnlock()
	views := make([]ColumnView, 0, len(domain.Columns()))
	byColumn := make(map[domain.Column][]domain.Lead)
	for _, id := range b.order {
		lead := b.byID[id]
		column := lead.Column()
		byColumn[column] = append(byColumn[column], lead)
	}
	for _, column := range domain.Columns() {
		views = append(views, ColumnView{Column: column, Leads: byColumn[column]})
	}
	return views
}

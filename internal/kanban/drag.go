package kanban

import (
	"context"
	"sync"

	"crmoverlay/api/internal/store"
)

// DragState tracks one pick-up, hover, drop gesture. At most one column is
// highlighted at a time, and Drop always resets the gesture.
type DragState struct {
	board *Board

	mu          sync.Mutex
	picked      string
	highlighted string
}

func NewDragState(board *Board) *DragState {
	return &DragState{board: board}
}

func (d *DragState) PickUp(contactID string) {
	d.mu.Lock()
	d.picked = contactID
	d.highlighted = ""
	d.mu.Unlock()
}

// Hover highlights columnID, replacing any previous highlight.
func (d *DragState) Hover(columnID string) {
	d.mu.Lock()
	d.highlighted = columnID
	d.mu.Unlock()
}

// Highlighted returns the single highlighted column, or "".
func (d *DragState) Highlighted() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.highlighted
}

// Picked returns the contact being dragged, or "".
func (d *DragState) Picked() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.picked
}

// Drop applies the move for the picked contact onto columnID.
func (d *DragState) Drop(ctx context.Context, columnID string, labels []store.Label) (store.Contact, error) {
	d.mu.Lock()
	contactID := d.picked
	d.picked = ""
	d.highlighted = ""
	d.mu.Unlock()

	if contactID == "" {
		return store.Contact{}, ErrNothingPicked
	}
	return d.board.Drop(ctx, contactID, columnID, labels)
}

// Cancel abandons the gesture.
func (d *DragState) Cancel() {
	d.mu.Lock()
	d.picked = ""
	d.highlighted = ""
	d.mu.Unlock()
}

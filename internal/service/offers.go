package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"corrade/internal/model"
	"corrade/internal/session"
)

var ErrOfferNotFound = fmt.Errorf("inventory offer: %w", session.ErrNotFound)

// Offers holds inventory offers waiting for a decision. Each offer has a
// gate that receives exactly one decision: from a command, or a decline at
// shutdown.
type Offers struct {
	mu      sync.Mutex
	pending map[uuid.UUID]*pendingOffer
}

type pendingOffer struct {
	offer model.InventoryOffer
	gate  chan bool
}

func NewOffers() *Offers {
	return &Offers{pending: map[uuid.UUID]*pendingOffer{}}
}

// Add files offer as pending and returns the gate its decision arrives on.
// Adding an offer that is already pending returns nil.
func (o *Offers) Add(offer model.InventoryOffer) <-chan bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.pending[offer.ID]; ok {
		return nil
	}
	offer.State = model.OfferPending
	p := &pendingOffer{offer: offer, gate: make(chan bool, 1)}
	o.pending[offer.ID] = p
	return p.gate
}

// Pending lists the undecided offers, oldest first.
func (o *Offers) Pending() []model.InventoryOffer {
	o.mu.Lock()
	out := make([]model.InventoryOffer, 0, len(o.pending))
	for _, p := range o.pending {
		out = append(out, p.offer)
	}
	o.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Received.Before(out[j].Received) })
	return out
}

// Decide opens the gate of offer id.
func (o *Offers) Decide(_ context.Context, id uuid.UUID, accept bool) error {
	o.mu.Lock()
	p, ok := o.pending[id]
	if ok {
		delete(o.pending, id)
	}
	o.mu.Unlock()
	if !ok {
		return ErrOfferNotFound
	}
	p.gate <- accept
	return nil
}

// DeclineAll declines every pending offer and returns how many there were.
func (o *Offers) DeclineAll() int {
	o.mu.Lock()
	pending := o.pending
	o.pending = map[uuid.UUID]*pendingOffer{}
	o.mu.Unlock()
	for _, p := range pending {
		p.gate <- false
	}
	return len(pending)
}

// Dialogs remembers script dialogs so replytodialog can answer them.
// Dialogs nobody answers are dropped by Prune.
type Dialogs struct {
	mu      sync.Mutex
	dialogs map[uuid.UUID]rememberedDialog
}

type rememberedDialog struct {
	event session.ScriptDialogEvent
	seen  time.Time
}

func NewDialogs() *Dialogs {
	return &Dialogs{dialogs: map[uuid.UUID]rememberedDialog{}}
}

func (d *Dialogs) Remember(ev session.ScriptDialogEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialogs[ev.DialogID] = rememberedDialog{event: ev, seen: time.Now()}
}

func (d *Dialogs) Dialog(id uuid.UUID) (session.ScriptDialogEvent, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.dialogs[id]
	return r.event, ok
}

func (d *Dialogs) Forget(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.dialogs, id)
}

// Prune forgets dialogs remembered longer than idle ago and returns how
// many went.
func (d *Dialogs) Prune(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for id, r := range d.dialogs {
		if r.seen.Before(cutoff) {
			delete(d.dialogs, id)
			n++
		}
	}
	return n
}

// Len is the number of remembered dialogs.
func (d *Dialogs) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dialogs)
}

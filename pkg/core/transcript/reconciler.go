// Package transcript reconciles a live conversation transcript from
// two independent streams of incremental transcription fragments, one
// per speaker role. Fragments accumulate per role and the transcript's
// trailing item is amended in place until the turn is sealed.
package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a transcript item.
type Role string

const (
	// RoleUser is the human speaker.
	RoleUser Role = "user"
	// RoleAgent is the remote conversational agent.
	RoleAgent Role = "agent"
)

// InterruptionMarker is appended to an agent item sealed because the
// user cut the agent off mid-utterance.
const InterruptionMarker = " [interrupted]"

// Item is one transcript entry. Partial items are amended in place as
// fragments arrive; sealed items never change again.
type Item struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Partial   bool      `json:"partial"`
	Timestamp time.Time `json:"timestamp"`
}

// Reconciler merges the two per-role fragment streams into one ordered
// transcript. Safe for concurrent use.
type Reconciler struct {
	mu      sync.Mutex
	items   []Item
	running map[Role]string
	now     func() time.Time
}

// NewReconciler returns an empty reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{
		running: make(map[Role]string),
		now:     time.Now,
	}
}

// AppendPartial concatenates fragment onto role's running utterance and
// updates the transcript. If the last item is a partial for the same
// role its text is replaced in place; otherwise a new partial item is
// appended, unless the accumulated text is still blank.
func (r *Reconciler) AppendPartial(role Role, fragment string) {
	if fragment == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running[role] += fragment
	r.update(role, r.running[role], false)
}

// SealTurn finalizes the running utterance of every role that has one
// and resets the accumulators for the next turn.
func (r *Reconciler) SealTurn() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, role := range []Role{RoleAgent, RoleUser} {
		if r.running[role] != "" {
			r.update(role, r.running[role], true)
			r.running[role] = ""
		}
	}
}

// SealRole finalizes only the given role's running utterance, with
// annotation appended to its text. An in-flight partial of the other
// role is left untouched. Used on interruption for the agent side.
func (r *Reconciler) SealRole(role Role, annotation string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running[role] == "" {
		return
	}
	r.update(role, r.running[role]+annotation, true)
	r.running[role] = ""
}

// update amends the trailing partial item for role or appends a new
// one. Caller holds the mutex.
func (r *Reconciler) update(role Role, text string, final bool) {
	now := r.now()
	if n := len(r.items); n > 0 && r.items[n-1].Role == role && r.items[n-1].Partial {
		r.items[n-1].Text = text
		r.items[n-1].Partial = !final
		r.items[n-1].Timestamp = now
		return
	}
	if strings.TrimSpace(text) == "" {
		return
	}
	r.items = append(r.items, Item{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Partial:   !final,
		Timestamp: now,
	})
}

// Snapshot returns a copy of the transcript in arrival order.
func (r *Reconciler) Snapshot() []Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Item, len(r.items))
	copy(out, r.items)
	return out
}

// Len returns the number of transcript items.
func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

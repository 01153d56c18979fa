package pipeline

import (
	"fmt"
	"sync"
	"time"
)

// Progress labels shown to the user for each state.
const (
	LabelTranscribing = "Transcribing your topic..."
	LabelGenerating   = "Generating dialogue script..."
	LabelSynthesizing = "Synthesizing duo voices..."
	LabelStitching    = "Stitching dialogue audio..."
	LabelComplete     = "Duo Mode complete!"
	LabelFailed       = "Duo Mode failed"
)

func lineLabel(index int, speaker string) string {
	return fmt.Sprintf("Generating line %d for %s...", index, speaker)
}

// Event is one progress notification. Per-line synthesis events carry
// Index (1-based) and Total.
type Event struct {
	SessionID string    `json:"session_id"`
	State     State     `json:"state"`
	Label     string    `json:"label"`
	Detail    string    `json:"detail,omitempty"`
	Index     int       `json:"index,omitempty"`
	Total     int       `json:"total,omitempty"`
	ErrorKind Kind      `json:"error_kind,omitempty"`
	At        time.Time `json:"at"`
}

// Observer receives progress events. Notify must not block for long; it
// runs on the session's goroutine.
type Observer interface {
	Notify(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Notify calls f(e).
func (f ObserverFunc) Notify(e Event) { f(e) }

// Observers fans events out to several observers in order. Nil entries are skipped.
func Observers(obs ...Observer) Observer {
	return ObserverFunc(func(e Event) {
		for _, o := range obs {
			if o != nil {
				o.Notify(e)
			}
		}
	})
}

// notifier serializes delivery so observers see one event at a time even
// while synthesis runs in parallel.
type notifier struct {
	mu        sync.Mutex
	obs       Observer
	sessionID string
	now       func() time.Time
}

func (n *notifier) emit(e Event) {
	if n.obs == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	e.SessionID = n.sessionID
	e.At = n.now()
	n.obs.Notify(e)
}

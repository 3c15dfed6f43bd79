package tunnel

import (
	"sync"
	"time"

	"mindstudio/local/internal/model"
)

// recentLimit is how many finished requests Activity remembers.
const recentLimit = 5

// RequestStatus is the UI view of one request.
type RequestStatus struct {
	ID         string
	Model      string
	Type       model.RequestType
	Provider   string
	Step       int
	TotalSteps int
	Chars      int
	Started    time.Time
	Elapsed    time.Duration
	Failed     bool
	Message    string
}

// Activity folds dispatcher events into the state shown by the live display.
type Activity struct {
	mu sync.Mutex

	models        []string
	active        map[string]*RequestStatus
	order         []string
	recent        []RequestStatus
	completed     int
	failed        int
	pollErrors    int
	lastPollError string
}

// NewActivity creates an empty Activity.
func NewActivity() *Activity {
	return &Activity{active: make(map[string]*RequestStatus)}
}

// Apply records one event.
func (a *Activity) Apply(ev Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch ev.Type {
	case EventReady:
		a.models = append([]string(nil), ev.Models...)
	case EventStarted:
		if _, ok := a.active[ev.RequestID]; !ok {
			a.order = append(a.order, ev.RequestID)
		}
		a.active[ev.RequestID] = &RequestStatus{
			ID:       ev.RequestID,
			Model:    ev.ModelID,
			Type:     ev.RequestType,
			Provider: ev.Provider,
			Started:  ev.Time,
		}
	case EventProgress:
		if rs, ok := a.active[ev.RequestID]; ok {
			if ev.Chars > 0 {
				rs.Chars = ev.Chars
			} else {
				rs.Step, rs.TotalSteps = ev.Step, ev.TotalSteps
			}
		}
	case EventCompleted, EventFailed:
		rs, ok := a.active[ev.RequestID]
		if !ok {
			// Failed before routing, e.g. an unregistered model.
			rs = &RequestStatus{ID: ev.RequestID, Model: ev.ModelID, Type: ev.RequestType}
		}
		rs.Elapsed = ev.Elapsed
		rs.Failed = ev.Type == EventFailed
		rs.Message = ev.Message
		a.finish(*rs)
	case EventPollError:
		a.pollErrors++
		a.lastPollError = ev.Message
	}
	if ev.Type != EventPollError && ev.Type != EventStopped {
		a.lastPollError = ""
	}
}

func (a *Activity) finish(rs RequestStatus) {
	delete(a.active, rs.ID)
	for i, id := range a.order {
		if id == rs.ID {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	if rs.Failed {
		a.failed++
	} else {
		a.completed++
	}
	a.recent = append(a.recent, rs)
	if len(a.recent) > recentLimit {
		a.recent = a.recent[len(a.recent)-recentLimit:]
	}
}

// ActivitySnapshot is a consistent copy of Activity for rendering.
type ActivitySnapshot struct {
	Models        []string
	Active        []RequestStatus
	Recent        []RequestStatus
	Completed     int
	Failed        int
	PollErrors    int
	LastPollError string
}

// Snapshot copies the current state. Active requests are in start order.
func (a *Activity) Snapshot() ActivitySnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := ActivitySnapshot{
		Models:        append([]string(nil), a.models...),
		Recent:        append([]RequestStatus(nil), a.recent...),
		Completed:     a.completed,
		Failed:        a.failed,
		PollErrors:    a.pollErrors,
		LastPollError: a.lastPollError,
	}
	for _, id := range a.order {
		s.Active = append(s.Active, *a.active[id])
	}
	return s
}

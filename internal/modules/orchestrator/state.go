package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"frontdesk/internal/modules/actions"
)

type State string

const (
	StateIdle                 State = "idle"
	StateValidating           State = "validating"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateInFlight             State = "in_flight"
	StateSettled              State = "settled"
)

var stateTransitionChart = StateTransitionChart{
	StateIdle:                 {StateValidating},
	StateValidating:           {StateIdle, StateAwaitingConfirmation, StateInFlight},
	StateAwaitingConfirmation: {StateValidating, StateIdle},
	StateInFlight:             {StateSettled},
	StateSettled:              {StateIdle},
}

type StateTransitionChart map[State][]State

func (c StateTransitionChart) Allowed(from, to State) bool {
	list, exists := c[from]
	if !exists {
		return false
	}
	for _, s := range list {
		if s == to {
			return true
		}
	}
	return false
}

// Snapshot is the serializable action state of one booking.
type Snapshot struct {
	BookingID int64        `json:"booking_id"`
	State     State        `json:"state"`
	Action    actions.Kind `json:"action,omitempty"`
	Result    ResultKind   `json:"result,omitempty"`
	Message   string       `json:"message,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

const stateEvent = "action_state"

// Tracker holds the action state machine of every booking touched by this
// process. Bookings it has never seen are idle.
type Tracker struct {
	mu        sync.Mutex
	machines  map[int64]Snapshot
	publisher Publisher
	now       func() time.Time
}

func NewTracker(publisher Publisher) *Tracker {
	return &Tracker{
		machines:  make(map[int64]Snapshot),
		publisher: publisher,
		now:       time.Now,
	}
}

func (t *Tracker) Get(bookingID int64) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.get(bookingID)
}

func (t *Tracker) get(bookingID int64) Snapshot {
	if snap, ok := t.machines[bookingID]; ok {
		return snap
	}
	return Snapshot{BookingID: bookingID, State: StateIdle}
}

// Begin moves the booking into validating for action. It fails while another
// action is running or an earlier result is still on screen.
func (t *Tracker) Begin(bookingID int64, action actions.Kind) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.get(bookingID)
	switch cur.State {
	case StateValidating, StateInFlight:
		return ErrActionInProgress
	case StateSettled:
		return ErrNotDismissed
	}
	return t.move(cur, Snapshot{BookingID: bookingID, State: StateValidating, Action: action})
}

func (t *Tracker) Transition(bookingID int64, to State) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.get(bookingID)
	next := Snapshot{BookingID: bookingID, State: to, Action: cur.Action}
	if to == StateIdle {
		next.Action = ""
	}
	return t.move(cur, next)
}

// Settle records the final result of the in-flight action.
func (t *Tracker) Settle(bookingID int64, res *Result) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.get(bookingID)
	return t.move(cur, Snapshot{
		BookingID: bookingID,
		State:     StateSettled,
		Action:    cur.Action,
		Result:    res.Kind,
		Message:   res.Message,
	})
}

// Dismiss returns a settled or awaiting booking to idle. Idle bookings are
// left alone.
func (t *Tracker) Dismiss(bookingID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.get(bookingID)
	switch cur.State {
	case StateIdle:
		return nil
	case StateValidating, StateInFlight:
		return ErrActionInProgress
	}
	return t.move(cur, Snapshot{BookingID: bookingID, State: StateIdle})
}

func (t *Tracker) move(cur, next Snapshot) error {
	if !stateTransitionChart.Allowed(cur.State, next.State) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.State, next.State)
	}
	next.UpdatedAt = t.now().UTC()
	if next.State == StateIdle {
		delete(t.machines, next.BookingID)
	} else {
		t.machines[next.BookingID] = next
	}
	if t.publisher != nil {
		t.publisher.Publish(BookingRoom(next.BookingID), stateEvent, next)
	}
	return nil
}

func BookingRoom(bookingID int64) string {
	return fmt.Sprintf("booking:%d", bookingID)
}

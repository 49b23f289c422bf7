package monitor

import "time"

// State is the session lifecycle state. EXPIRED is terminal for a
// monitor cycle; a fresh login arms a new cycle.
type State int

const (
	StateActive State = iota
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Reason distinguishes why a session expired.
type Reason string

const (
	ReasonIdle       Reason = "idle"
	ReasonBackground Reason = "background"
)

// Message is the user-visible notice for this expiry reason.
func (r Reason) Message() string {
	switch r {
	case ReasonBackground:
		return "You were away too long. Please sign in again."
	default:
		return "Your session expired due to inactivity. Please sign in again."
	}
}

// AppState is a discrete application lifecycle state as delivered by
// the platform observer facility.
type AppState int

const (
	AppStateResumed AppState = iota
	AppStateInactive
	AppStateHidden
	AppStatePaused
	AppStateDetached
)

func (a AppState) String() string {
	switch a {
	case AppStateResumed:
		return "resumed"
	case AppStateInactive:
		return "inactive"
	case AppStateHidden:
		return "hidden"
	case AppStatePaused:
		return "paused"
	case AppStateDetached:
		return "detached"
	default:
		return "unknown"
	}
}

// Backgrounded reports whether this lifecycle state means the app is
// no longer visible. Inactive is a transient in-between (e.g. an
// incoming call overlay) and does not count.
func (a AppState) Backgrounded() bool {
	switch a {
	case AppStateHidden, AppStatePaused, AppStateDetached:
		return true
	default:
		return false
	}
}

// Activity is the transient, in-memory activity record. It is never
// persisted; a process restart safely resets it to "now".
type Activity struct {
	LastActivityAt time.Time
	BackgroundedAt time.Time // zero when foregrounded
}

// Timeouts are the expiry thresholds the transition function enforces.
type Timeouts struct {
	Idle       time.Duration
	Background time.Duration
}

// Input is one discrete signal into the session state machine.
type Input interface{ isInput() }

type (
	// ActivityInput is a user interaction signal.
	ActivityInput struct{}
	// TickInput is the periodic idle check.
	TickInput struct{}
	// BackgroundInput is a lifecycle transition away from foreground.
	BackgroundInput struct{}
	// ResumeInput is a lifecycle transition back to foreground.
	ResumeInput struct{}
)

func (ActivityInput) isInput()   {}
func (TickInput) isInput()       {}
func (BackgroundInput) isInput() {}
func (ResumeInput) isInput()     {}

// Action is what the caller must do after a transition.
type Action int

const (
	ActionNone Action = iota
	ActionExpire
)

// Decision is the outcome of one transition.
type Decision struct {
	State    State
	Activity Activity
	Action   Action
	Reason   Reason
}

// Transition is the pure session state machine: given the clock
// reading, the current state and activity record, and one input, it
// returns the next state and the action to perform. It touches no
// stores and no timers, so it is testable with nothing but a fake
// clock value.
func Transition(now time.Time, st State, act Activity, in Input, t Timeouts) Decision {
	d := Decision{State: st, Activity: act, Action: ActionNone}

	if st == StateExpired {
		// Terminal per cycle. Late ticks and lifecycle callbacks
		// after expiry change nothing.
		return d
	}

	switch in.(type) {
	case ActivityInput:
		d.Activity.LastActivityAt = now

	case BackgroundInput:
		// Keep the earliest backgrounding instant if several
		// lifecycle states arrive in a row (hidden then paused).
		if d.Activity.BackgroundedAt.IsZero() {
			d.Activity.BackgroundedAt = now
		}

	case ResumeInput:
		if d.Activity.BackgroundedAt.IsZero() {
			return d
		}
		elapsed := now.Sub(d.Activity.BackgroundedAt)
		d.Activity.BackgroundedAt = time.Time{}
		if elapsed >= t.Background {
			d.State = StateExpired
			d.Action = ActionExpire
			d.Reason = ReasonBackground
		} else {
			// A short background stint counts as fresh activity.
			d.Activity.LastActivityAt = now
		}

	case TickInput:
		if d.Activity.LastActivityAt.IsZero() {
			// Activity state is transient: after a process restart it
			// safely resets to "now" instead of reading as ancient.
			d.Activity.LastActivityAt = now
			return d
		}
		if now.Sub(d.Activity.LastActivityAt) >= t.Idle {
			d.State = StateExpired
			d.Action = ActionExpire
			d.Reason = ReasonIdle
		}
	}

	return d
}

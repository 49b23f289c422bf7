package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var testTimeouts = Timeouts{
	Idle:       5 * time.Minute,
	Background: 2 * time.Minute,
}

func TestTransition_ActivityRefreshesWindow(t *testing.T) {
	now := time.Now()
	act := Activity{LastActivityAt: now.Add(-4 * time.Minute)}

	d := Transition(now, StateActive, act, ActivityInput{}, testTimeouts)

	assert.Equal(t, StateActive, d.State)
	assert.Equal(t, ActionNone, d.Action)
	assert.Equal(t, now, d.Activity.LastActivityAt)
}

func TestTransition_TickWithinIdleWindowStaysActive(t *testing.T) {
	now := time.Now()
	act := Activity{LastActivityAt: now.Add(-testTimeouts.Idle + time.Second)}

	d := Transition(now, StateActive, act, TickInput{}, testTimeouts)

	assert.Equal(t, StateActive, d.State)
	assert.Equal(t, ActionNone, d.Action)
}

func TestTransition_TickAtIdleThresholdExpires(t *testing.T) {
	now := time.Now()
	act := Activity{LastActivityAt: now.Add(-testTimeouts.Idle)}

	d := Transition(now, StateActive, act, TickInput{}, testTimeouts)

	assert.Equal(t, StateExpired, d.State)
	assert.Equal(t, ActionExpire, d.Action)
	assert.Equal(t, ReasonIdle, d.Reason)
}

func TestTransition_TickWithZeroActivityResets(t *testing.T) {
	now := time.Now()

	d := Transition(now, StateActive, Activity{}, TickInput{}, testTimeouts)

	assert.Equal(t, StateActive, d.State)
	assert.Equal(t, ActionNone, d.Action)
	assert.Equal(t, now, d.Activity.LastActivityAt)
}

func TestTransition_ShortBackgroundStintIsFreshActivity(t *testing.T) {
	start := time.Now()
	act := Activity{LastActivityAt: start.Add(-4 * time.Minute)}

	d := Transition(start, StateActive, act, BackgroundInput{}, testTimeouts)
	assert.Equal(t, start, d.Activity.BackgroundedAt)

	resume := start.Add(time.Minute)
	d = Transition(resume, d.State, d.Activity, ResumeInput{}, testTimeouts)

	assert.Equal(t, StateActive, d.State)
	assert.Equal(t, ActionNone, d.Action)
	assert.Equal(t, resume, d.Activity.LastActivityAt)
	assert.True(t, d.Activity.BackgroundedAt.IsZero())
}

func TestTransition_LongBackgroundExpires(t *testing.T) {
	start := time.Now()

	d := Transition(start, StateActive, Activity{LastActivityAt: start}, BackgroundInput{}, testTimeouts)

	resume := start.Add(3 * time.Minute)
	d = Transition(resume, d.State, d.Activity, ResumeInput{}, testTimeouts)

	assert.Equal(t, StateExpired, d.State)
	assert.Equal(t, ActionExpire, d.Action)
	assert.Equal(t, ReasonBackground, d.Reason)
}

func TestTransition_RepeatedBackgroundKeepsEarliestInstant(t *testing.T) {
	start := time.Now()
	act := Activity{LastActivityAt: start}

	// hidden then paused in quick succession
	d := Transition(start, StateActive, act, BackgroundInput{}, testTimeouts)
	d = Transition(start.Add(time.Second), d.State, d.Activity, BackgroundInput{}, testTimeouts)

	assert.Equal(t, start, d.Activity.BackgroundedAt)
}

func TestTransition_ResumeWithoutBackgroundIsNoop(t *testing.T) {
	now := time.Now()
	act := Activity{LastActivityAt: now.Add(-time.Minute)}

	d := Transition(now, StateActive, act, ResumeInput{}, testTimeouts)

	assert.Equal(t, StateActive, d.State)
	assert.Equal(t, act, d.Activity)
}

func TestTransition_ExpiredIsTerminal(t *testing.T) {
	now := time.Now()
	act := Activity{LastActivityAt: now.Add(-time.Hour)}

	for _, in := range []Input{ActivityInput{}, TickInput{}, BackgroundInput{}, ResumeInput{}} {
		d := Transition(now, StateExpired, act, in, testTimeouts)
		assert.Equal(t, StateExpired, d.State)
		assert.Equal(t, ActionNone, d.Action)
	}
}

func TestAppState_Backgrounded(t *testing.T) {
	assert.False(t, AppStateResumed.Backgrounded())
	assert.False(t, AppStateInactive.Backgrounded())
	assert.True(t, AppStateHidden.Backgrounded())
	assert.True(t, AppStatePaused.Backgrounded())
	assert.True(t, AppStateDetached.Backgrounded())
}

func TestReason_Messages(t *testing.T) {
	assert.Contains(t, ReasonIdle.Message(), "inactivity")
	assert.Contains(t, ReasonBackground.Message(), "away too long")
}

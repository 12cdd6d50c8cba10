package status

import (
	"testing"

	"github.com/casalink/inboxd/internal/bus"
)

// walkTo drives the machine from Booting to the requested state along a
// known-valid path.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Booting:  {},
		Warming:  {Warming},
		Syncing:  {Warming, Syncing},
		Ready:    {Warming, Syncing, Ready},
		Degraded: {Warming, Syncing, Degraded},
		Error:    {Error},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo %s: transition to %s: %v", target, s, err)
		}
	}
}

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Booting {
		t.Errorf("initial state = %s, want BOOTING", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Booting, Warming},
		{Booting, Syncing},
		{Booting, Error},
		{Warming, Syncing},
		{Syncing, Ready},
		{Syncing, Degraded},
		{Ready, Degraded},
		{Degraded, Ready},
		{Error, Booting},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Ready); err == nil {
		t.Error("Transition(BOOTING -> READY) should fail")
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("profile.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Warming); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != "profile.status_changed" {
		t.Errorf("event kind = %q, want profile.status_changed", evt.Kind)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Booting || change.To != Warming {
		t.Errorf("change = %v -> %v, want BOOTING -> WARMING", change.From, change.To)
	}
}

// TestColdBootLifecycle simulates a first run with no cached directory:
// BOOTING → SYNCING → READY.
func TestColdBootLifecycle(t *testing.T) {
	m := NewMachine(nil)
	for _, s := range []State{Syncing, Ready} {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Current() != Ready {
		t.Errorf("final state = %s, want READY", m.Current())
	}
}

// TestWarmBootDegradedLifecycle simulates a restart with a cached directory
// where the first backend sync fails:
// BOOTING → WARMING → SYNCING → DEGRADED → READY.
func TestWarmBootDegradedLifecycle(t *testing.T) {
	m := NewMachine(nil)
	for _, s := range []State{Warming, Syncing, Degraded, Ready} {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Current() != Ready {
		t.Errorf("final state = %s, want READY", m.Current())
	}
}

// TestReadyCannotReenterSyncing verifies the machine stays coarse after the
// first sync: refresh cycles flip READY ⇄ DEGRADED only.
func TestReadyCannotReenterSyncing(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Ready)
	if err := m.Transition(Syncing); err == nil {
		t.Error("Transition(READY -> SYNCING) should fail")
	}
	if m.Current() != Ready {
		t.Errorf("state = %s, want READY (unchanged)", m.Current())
	}
}

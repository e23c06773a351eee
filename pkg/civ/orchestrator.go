package civ

import (
	"errors"
	"fmt"
)

// Handler runs when an activity is entered, exited or ticked. Handlers read the
// state and queue their changes on tx; the changes are committed once the
// handler returns, before the next handler runs.
type Handler func(b *Board, gs *GameState, tx *Tx) error

// GateFunc reports whether the current activity is finished.
type GateFunc func(b *Board, gs *GameState) bool

// Op is a queued state change. It may emit events.
type Op func(gs *GameState, emit func(Event)) error

// Tx collects the changes and signals of one handler invocation.
type Tx struct {
	ops     []Op
	events  []Event
	advance bool
}

// Queue defers op until the handler returns.
func (tx *Tx) Queue(op Op) { tx.ops = append(tx.ops, op) }

// Emit queues an event.
func (tx *Tx) Emit(e Event) { tx.events = append(tx.events, e) }

// RequestAdvance asks for the activity to end at the next gate check even if
// the gate does not hold.
func (tx *Tx) RequestAdvance() { tx.advance = true }

type namedHandler struct {
	name string
	fn   Handler
}

// TickResult describes what one Tick did.
type TickResult struct {
	From     Activity
	To       Activity
	Ops      int
	Advanced bool
}

// Progress reports whether the tick changed anything.
func (r TickResult) Progress() bool { return r.Advanced || r.Ops > 0 }

// SettleResult describes a Settle run.
type SettleResult struct {
	Ticks       int
	Transitions int
	Limited     bool // Stopped by the tick limit while still making progress
}

// Orchestrator drives a game through the turn sequence. It is not safe for
// concurrent use; callers serialize access per game.
type Orchestrator struct {
	board *Board
	state *GameState
	cards *CardSet

	enter map[Activity][]namedHandler
	exit  map[Activity][]namedHandler
	tick  map[Activity][]namedHandler
	gates map[Activity]GateFunc

	events        []Event
	advanceWanted bool
	transitioning bool
}

// New returns an orchestrator without any handlers. Activities without a gate
// end at the first tick.
func New(b *Board, gs *GameState, cards *CardSet) *Orchestrator {
	if cards == nil {
		cards = DefaultCards()
	}
	return &Orchestrator{
		board: b,
		state: gs,
		cards: cards,
		enter: make(map[Activity][]namedHandler),
		exit:  make(map[Activity][]namedHandler),
		tick:  make(map[Activity][]namedHandler),
		gates: make(map[Activity]GateFunc),
	}
}

// NewOrchestrator returns an orchestrator with the standard rules registered.
func NewOrchestrator(b *Board, gs *GameState, cards *CardSet) *Orchestrator {
	o := New(b, gs, cards)
	registerDefaultHandlers(o)
	return o
}

func (o *Orchestrator) Board() *Board { return o.board }

func (o *Orchestrator) State() *GameState { return o.state }

func (o *Orchestrator) Cards() *CardSet { return o.cards }

func (o *Orchestrator) Activity() Activity { return o.state.Activity }

// OnEnter registers h to run when a is entered.
func (o *Orchestrator) OnEnter(a Activity, name string, h Handler) {
	o.enter[a] = append(o.enter[a], namedHandler{name, h})
}

// OnExit registers h to run when a is left.
func (o *Orchestrator) OnExit(a Activity, name string, h Handler) {
	o.exit[a] = append(o.exit[a], namedHandler{name, h})
}

// OnTick registers h to run on every tick while a is current.
func (o *Orchestrator) OnTick(a Activity, name string, h Handler) {
	o.tick[a] = append(o.tick[a], namedHandler{name, h})
}

// Gate sets the completion condition of a.
func (o *Orchestrator) Gate(a Activity, g GateFunc) {
	o.gates[a] = g
}

// Events returns and clears the buffered events.
func (o *Orchestrator) Events() []Event {
	ev := o.events
	o.events = nil
	return ev
}

func (o *Orchestrator) emit(e Event) {
	if e.Turn == 0 {
		e.Turn = o.state.Turn
	}
	if e.Activity == "" {
		e.Activity = o.state.Activity
	}
	o.events = append(o.events, e)
}

// Start runs the entry handlers of the current activity. It does nothing for
// a game that has already started.
func (o *Orchestrator) Start() error {
	if o.state.Started {
		return nil
	}
	if !o.state.Activity.Valid() {
		return invariantf("Start", "unknown activity %q", o.state.Activity)
	}
	o.state.Started = true
	o.emit(Event{Type: EventActivityEntered})
	_, err := o.run(o.enter[o.state.Activity], "enter")
	return err
}

// AdvanceTo ends the current activity and enters next, which must be its
// successor. Exit handlers of the current activity run first, then all
// activity tags are cleared, then the entry handlers of next run.
func (o *Orchestrator) AdvanceTo(next Activity) error {
	cur := o.state.Activity
	if o.transitioning {
		return invariantf("AdvanceTo", "transition to %s requested during a transition", next)
	}
	if !cur.Valid() {
		return invariantf("AdvanceTo", "unknown activity %q", cur)
	}
	if next != Next(cur) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, cur, next)
	}
	o.transitioning = true
	defer func() { o.transitioning = false }()

	if _, err := o.run(o.exit[cur], "exit"); err != nil {
		return err
	}
	clearMarks(o.state)
	o.emit(Event{Type: EventActivityExited})

	o.state.Activity = next
	o.advanceWanted = false
	o.emit(Event{Type: EventActivityEntered})
	_, err := o.run(o.enter[next], "enter")
	return err
}

// ForceAdvance abandons the current activity. Exit handlers still run, so
// tags are cleared as in a normal transition.
func (o *Orchestrator) ForceAdvance() error {
	return o.AdvanceTo(Next(o.state.Activity))
}

// Tick runs the tick handlers of the current activity, checks the gate
// invariants, and performs at most one transition.
func (o *Orchestrator) Tick() (TickResult, error) {
	res := TickResult{From: o.state.Activity, To: o.state.Activity}
	if !o.state.Activity.Valid() {
		return res, invariantf("Tick", "unknown activity %q", o.state.Activity)
	}
	if err := o.Start(); err != nil {
		return res, err
	}
	n, err := o.run(o.tick[o.state.Activity], "tick")
	res.Ops = n
	if err != nil {
		return res, err
	}
	if err := checkGateInvariants(o.state); err != nil {
		return res, err
	}
	if err := o.state.CheckConsistency(); err != nil {
		return res, err
	}

	gate, ok := o.gates[o.state.Activity]
	if o.advanceWanted || !ok || gate(o.board, o.state) {
		if err := o.AdvanceTo(Next(o.state.Activity)); err != nil {
			return res, err
		}
		res.Advanced = true
		res.To = o.state.Activity
	}
	return res, nil
}

// Settle ticks until a tick makes no progress, which means the game waits for
// external commands, or until maxTicks ticks have run.
func (o *Orchestrator) Settle(maxTicks int) (SettleResult, error) {
	var sr SettleResult
	for sr.Ticks < maxTicks {
		res, err := o.Tick()
		sr.Ticks++
		if res.Advanced {
			sr.Transitions++
		}
		if err != nil {
			return sr, err
		}
		if !res.Progress() {
			return sr, nil
		}
	}
	sr.Limited = true
	return sr, nil
}

// run invokes handlers in registration order, committing each one's queued
// changes before the next runs. It returns the number of ops committed.
func (o *Orchestrator) run(hs []namedHandler, stage string) (int, error) {
	n := 0
	for _, h := range hs {
		tx := &Tx{}
		if err := h.fn(o.board, o.state, tx); err != nil {
			return n, fmt.Errorf("%s %s handler %s: %w", o.state.Activity, stage, h.name, err)
		}
		for _, op := range tx.ops {
			if err := op(o.state, o.emit); err != nil {
				return n, fmt.Errorf("%s %s handler %s: %w", o.state.Activity, stage, h.name, err)
			}
			n++
		}
		for _, e := range tx.events {
			o.emit(e)
		}
		if tx.advance {
			o.advanceWanted = true
		}
	}
	return n, nil
}

// checkGateInvariants detects tags that can never clear.
func checkGateInvariants(gs *GameState) error {
	for id, st := range gs.Areas {
		if st.Mark != AreaClear && st.Population.Total() == 0 {
			return invariantf("gate", "area %s tagged %s with no population", id, st.Mark)
		}
	}
	for id, p := range gs.Players {
		if p.Mark == PlayerShortfall && len(p.Cities) == 0 {
			return invariantf("gate", "player %s has a city shortfall without cities", id)
		}
	}
	return nil
}

func clearMarks(gs *GameState) {
	for _, st := range gs.Areas {
		st.Mark = AreaClear
	}
	for _, p := range gs.Players {
		p.Mark = PlayerSettled
		p.Shortfall = nil
		p.Growth = nil
	}
}

// IsInvariant reports whether err is a fatal engine invariant violation.
func IsInvariant(err error) bool {
	return errors.Is(err, ErrInvariant)
}

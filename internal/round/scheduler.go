package round

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidTiming = errors.New("invalid round timing")
	ErrNotAwaiting   = errors.New("round is not awaiting a result")
	ErrClosed        = errors.New("room closed")
	ErrNotStarted    = errors.New("scheduler not started")
)

// Phase da rodada; a ordem numérica é a ordem das transições
type Phase int

const (
	PhaseAccepting Phase = iota
	PhaseReminded
	PhaseSealed
	PhaseRuleBroadcast
	PhaseAwaitingResult
	PhaseUnresolved
	PhaseClosed
)

var phaseNames = [...]string{"ACCEPTING", "REMINDED", "SEALED", "RULE_BROADCAST", "AWAITING_RESULT", "UNRESOLVED", "CLOSED"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Phase) UnmarshalText(b []byte) error {
	for i, n := range phaseNames {
		if n == string(b) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", string(b))
}

// Timing são os parâmetros de tempo de uma sala
// Offsets contam para trás a partir do deadline; ResultTimeout conta para frente
type Timing struct {
	RoundLength    time.Duration
	ReminderOffset time.Duration
	SealOffset     time.Duration
	RuleOffset     time.Duration
	ResultTimeout  time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		RoundLength:    210 * time.Second,
		ReminderOffset: 40 * time.Second,
		SealOffset:     30 * time.Second,
		RuleOffset:     20 * time.Second,
		ResultTimeout:  120 * time.Second,
	}
}

// Validate exige RoundLength > Reminder >= Seal >= Rule >= 0 e timeout positivo
func (t Timing) Validate() error {
	switch {
	case t.RuleOffset < 0:
		return fmt.Errorf("%w: negative rule offset", ErrInvalidTiming)
	case t.SealOffset < t.RuleOffset:
		return fmt.Errorf("%w: seal offset %s before rule offset %s", ErrInvalidTiming, t.SealOffset, t.RuleOffset)
	case t.ReminderOffset < t.SealOffset:
		return fmt.Errorf("%w: reminder offset %s before seal offset %s", ErrInvalidTiming, t.ReminderOffset, t.SealOffset)
	case t.RoundLength <= t.ReminderOffset:
		return fmt.Errorf("%w: round length %s must exceed reminder offset %s", ErrInvalidTiming, t.RoundLength, t.ReminderOffset)
	case t.ResultTimeout <= 0:
		return fmt.Errorf("%w: result timeout must be positive", ErrInvalidTiming)
	}
	return nil
}

// EventKind identifica a transição publicada
type EventKind string

const (
	EventOpened         EventKind = "OPENED"
	EventReminder       EventKind = "REMINDER"
	EventSealed         EventKind = "SEALED"
	EventRuleBroadcast  EventKind = "RULE_BROADCAST"
	EventAwaitingResult EventKind = "AWAITING_RESULT"
	EventUnresolved     EventKind = "UNRESOLVED"
	EventResolved       EventKind = "RESOLVED"
	EventClosed         EventKind = "CLOSED"
)

var phaseEvent = map[Phase]EventKind{
	PhaseReminded:       EventReminder,
	PhaseSealed:         EventSealed,
	PhaseRuleBroadcast:  EventRuleBroadcast,
	PhaseAwaitingResult: EventAwaitingResult,
	PhaseUnresolved:     EventUnresolved,
}

type Event struct {
	Kind     EventKind
	RoomID   string
	RoundID  int64
	Phase    Phase
	Deadline time.Time
	At       time.Time
}

// Round é a rodada corrente de uma sala
type Round struct {
	RoomID   string
	ID       int64
	Phase    Phase
	OpenedAt time.Time
	Deadline time.Time
}

// Scheduler é a máquina de estados de uma sala
// Não é seguro para uso concorrente: a sala dona serializa as chamadas
type Scheduler struct {
	roomID  string
	timing  Timing
	round   Round
	started bool
	closed  bool
}

func New(roomID string, timing Timing) (*Scheduler, error) {
	if err := timing.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{roomID: roomID, timing: timing}, nil
}

func (s *Scheduler) Timing() Timing { return s.timing }
func (s *Scheduler) Current() Round { return s.round }
func (s *Scheduler) Closed() bool   { return s.closed }

// SealAt é o instante a partir do qual a rodada corrente recusa apostas
func (s *Scheduler) SealAt() time.Time { return s.round.Deadline.Add(-s.timing.SealOffset) }

// Start abre a primeira rodada com o id informado
func (s *Scheduler) Start(now time.Time, firstID int64) []Event {
	if s.started || s.closed {
		return nil
	}
	s.started = true
	return []Event{s.open(now, firstID)}
}

// PhaseAt deriva a fase da rodada corrente a partir do relógio
func (s *Scheduler) PhaseAt(now time.Time) Phase {
	if s.closed {
		return PhaseClosed
	}
	d := s.round.Deadline
	switch {
	case now.Before(d.Add(-s.timing.ReminderOffset)):
		return PhaseAccepting
	case now.Before(d.Add(-s.timing.SealOffset)):
		return PhaseReminded
	case now.Before(d.Add(-s.timing.RuleOffset)):
		return PhaseSealed
	case now.Before(d):
		return PhaseRuleBroadcast
	case now.Before(d.Add(s.timing.ResultTimeout)):
		return PhaseAwaitingResult
	default:
		return PhaseUnresolved
	}
}

// Advance leva a rodada até a fase de now, emitindo cada transição intermediária
// Se o resultado não chegou dentro do timeout, marca Unresolved e abre a próxima rodada
func (s *Scheduler) Advance(now time.Time) []Event {
	if !s.started {
		return nil
	}
	var events []Event
	for !s.closed {
		target := s.PhaseAt(now)
		if s.round.Phase >= target {
			break
		}
		s.round.Phase++
		events = append(events, s.event(phaseEvent[s.round.Phase], now))
		if s.round.Phase == PhaseUnresolved {
			events = append(events, s.open(now, s.round.ID+1))
		}
	}
	return events
}

// Resolve encerra a rodada que aguarda resultado e abre a próxima em now + RoundLength
func (s *Scheduler) Resolve(now time.Time) ([]Event, error) {
	if !s.started {
		return nil, ErrNotStarted
	}
	events := s.Advance(now)
	if s.closed {
		return events, ErrClosed
	}
	if s.round.Phase != PhaseAwaitingResult {
		return events, fmt.Errorf("%w: round %d is %s", ErrNotAwaiting, s.round.ID, s.round.Phase)
	}
	events = append(events, s.event(EventResolved, now))
	events = append(events, s.open(now, s.round.ID+1))
	return events, nil
}

// Close é a transição terminal da sala
func (s *Scheduler) Close(now time.Time) []Event {
	if s.closed {
		return nil
	}
	s.closed = true
	s.round.Phase = PhaseClosed
	return []Event{s.event(EventClosed, now)}
}

func (s *Scheduler) open(now time.Time, id int64) Event {
	s.round = Round{
		RoomID:   s.roomID,
		ID:       id,
		Phase:    PhaseAccepting,
		OpenedAt: now,
		Deadline: now.Add(s.timing.RoundLength),
	}
	return s.event(EventOpened, now)
}

func (s *Scheduler) event(kind EventKind, now time.Time) Event {
	return Event{
		Kind:     kind,
		RoomID:   s.roomID,
		RoundID:  s.round.ID,
		Phase:    s.round.Phase,
		Deadline: s.round.Deadline,
		At:       now,
	}
}

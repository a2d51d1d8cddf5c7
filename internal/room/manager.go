package room

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/round-wager-engine/internal/book"
	"github.com/radieske/round-wager-engine/internal/game"
	"github.com/radieske/round-wager-engine/internal/odds"
	"github.com/radieske/round-wager-engine/internal/round"
	"github.com/radieske/round-wager-engine/internal/settlement"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomExists   = errors.New("room already open")
)

type entry struct {
	room   *Room
	cancel context.CancelFunc
}

// Manager é o registro das salas ativas; cada sala roda no seu próprio loop
type Manager struct {
	log      *zap.Logger
	odds     *odds.Holder
	engine   *settlement.Engine
	notify   Notifier
	timing   round.Timing
	autoMute bool
	tick     time.Duration
	now      func() time.Time

	mu    sync.RWMutex
	rooms map[string]entry
	wg    sync.WaitGroup
}

type ManagerOption func(*Manager)

func WithTiming(t round.Timing) ManagerOption      { return func(m *Manager) { m.timing = t } }
func WithAutoMute(v bool) ManagerOption            { return func(m *Manager) { m.autoMute = v } }
func WithTick(d time.Duration) ManagerOption       { return func(m *Manager) { m.tick = d } }
func WithClock(now func() time.Time) ManagerOption { return func(m *Manager) { m.now = now } }

func NewManager(log *zap.Logger, holder *odds.Holder, engine *settlement.Engine, notify Notifier, opts ...ManagerOption) *Manager {
	m := &Manager{
		log:    log,
		odds:   holder,
		engine: engine,
		notify: notify,
		timing: round.DefaultTiming(),
		tick:   time.Second,
		now:    time.Now,
		rooms:  make(map[string]entry),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Open cria a sala, abre a primeira rodada e inicia o loop de ticks
// Com tick <= 0 o loop não é iniciado (testes chamam Tick direto)
func (m *Manager) Open(ctx context.Context, id string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomExists, id)
	}

	r, err := New(m.log, Config{ID: id, Timing: m.timing, AutoMute: m.autoMute}, m.odds, m.engine, m.notify, m.now)
	if err != nil {
		return nil, err
	}
	if err := r.Start(ctx); err != nil {
		return nil, fmt.Errorf("start room %s: %w", id, err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.rooms[id] = entry{room: r, cancel: cancel}
	if m.tick > 0 {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			r.Run(loopCtx, m.tick)
		}()
	}
	return r, nil
}

func (m *Manager) Room(id string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.rooms[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, id)
	}
	return e.room, nil
}

// OpenBook satisfaz intake.Rounds
func (m *Manager) OpenBook(roomID string) (*book.Book, error) {
	r, err := m.Room(roomID)
	if err != nil {
		return nil, err
	}
	return r.OpenBook()
}

func (m *Manager) Resolve(ctx context.Context, roomID string, hint int64, digits game.Digits) (settlement.Record, error) {
	r, err := m.Room(roomID)
	if err != nil {
		return settlement.Record{}, err
	}
	return r.Resolve(ctx, hint, digits)
}

// Teardown para o loop da sala e devolve as apostas abertas
// A sala continua no registro como fechada
func (m *Manager) Teardown(ctx context.Context, roomID, reason string) (settlement.Record, error) {
	m.mu.RLock()
	e, ok := m.rooms[roomID]
	m.mu.RUnlock()
	if !ok {
		return settlement.Record{}, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	e.cancel()
	return e.room.Teardown(ctx, reason)
}

func (m *Manager) Snapshot(roomID string) (Snapshot, error) {
	r, err := m.Room(roomID)
	if err != nil {
		return Snapshot{}, err
	}
	return r.Snapshot(), nil
}

// Rooms retorna os snapshots ordenados por id
func (m *Manager) Rooms() []Snapshot {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, e := range m.rooms {
		rooms = append(rooms, e.room)
	}
	m.mu.RUnlock()

	out := make([]Snapshot, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

// Wait bloqueia até todos os loops terminarem (ctx do Open cancelado)
func (m *Manager) Wait() { m.wg.Wait() }

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/round-wager-engine/internal/intake"
	"github.com/radieske/round-wager-engine/internal/ledger"
	"github.com/radieske/round-wager-engine/internal/odds"
	"github.com/radieske/round-wager-engine/internal/room"
	"github.com/radieske/round-wager-engine/internal/round"
	"github.com/radieske/round-wager-engine/internal/settlement"
	"github.com/radieske/round-wager-engine/internal/wager-engine/dto"
)

var t0 = time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

type env struct {
	clock   *clock
	manager *room.Manager
	handler http.Handler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := zap.NewNop()
	c := &clock{now: t0}
	l := ledger.New(log)
	store := settlement.NewMemoryStore()
	engine := settlement.NewEngine(log, l, store, settlement.WithClock(c.Now))
	holder := odds.NewHolder(odds.Default())
	m := room.NewManager(log, holder, engine, nil, room.WithTick(0), room.WithClock(c.Now))
	_, err := m.Open(context.Background(), "room-1")
	require.NoError(t, err)

	api := &API{
		Log:         log,
		Intake:      intake.NewService(log, m, l, intake.WithClock(c.Now)),
		Wallet:      l,
		Rooms:       m,
		Settlements: store,
		Odds:        holder,
	}
	return &env{clock: c, manager: m, handler: api.Router()}
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestWagerToSettlementFlow(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/wallet/deposit", dto.DepositRequest{PlayerID: "A", Amount: 10000, ExternalRef: "seed"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(10000), decode[dto.WalletResponse](t, rec).Balance)

	rec = e.do(t, http.MethodPost, "/wagers", dto.SubmitWagerRequest{PlayerID: "A", RoomID: "room-1", Text: "big500"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	conf := decode[intake.Confirmation](t, rec)
	assert.Equal(t, int64(9500), conf.Balance)
	assert.Equal(t, int64(1), conf.RoundID)

	// resultado antes do fim da rodada
	rec = e.do(t, http.MethodPost, "/rooms/room-1/results", dto.ResultRequest{Digits: []int{9, 8, 6}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NOT_AWAITING_RESULT", decode[dto.ErrorResponse](t, rec).Code)

	e.clock.now = t0.Add(211 * time.Second)
	r, err := e.manager.Room("room-1")
	require.NoError(t, err)
	r.Tick(context.Background())

	rec = e.do(t, http.MethodGet, "/rooms/room-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, round.PhaseAwaitingResult, decode[room.Snapshot](t, rec).Phase)

	rec = e.do(t, http.MethodPost, "/rooms/room-1/results", dto.ResultRequest{RoundIDHint: 1, Digits: []int{9, 8, 6}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[dto.SettlementResponse](t, rec)
	assert.Equal(t, settlement.StatusSettled, res.Record.Status)
	assert.Equal(t, int64(975), res.Record.TotalPaid)
	assert.NotEmpty(t, res.Bill)

	rec = e.do(t, http.MethodGet, "/wallet?playerId=A", nil)
	assert.Equal(t, int64(10475), decode[dto.WalletResponse](t, rec).Balance)

	rec = e.do(t, http.MethodGet, "/wallet/transactions?playerId=A", nil)
	assert.Len(t, decode[[]ledger.Transaction](t, rec), 3)

	rec = e.do(t, http.MethodGet, "/rooms/room-1/rounds/1/settlement", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(975), decode[dto.SettlementResponse](t, rec).Record.TotalPaid)
}

func TestWagerRejections(t *testing.T) {
	e := newEnv(t)
	e.do(t, http.MethodPost, "/wallet/deposit", dto.DepositRequest{PlayerID: "A", Amount: 1000, ExternalRef: "seed"})

	tests := []struct {
		name   string
		req    dto.SubmitWagerRequest
		status int
		code   string
	}{
		{"malformed", dto.SubmitWagerRequest{PlayerID: "A", RoomID: "room-1", Text: "hello"}, http.StatusBadRequest, "MALFORMED_WAGER"},
		{"unknown room", dto.SubmitWagerRequest{PlayerID: "A", RoomID: "room-9", Text: "big100"}, http.StatusNotFound, "ROUND_NOT_FOUND"},
		{"stake below minimum", dto.SubmitWagerRequest{PlayerID: "A", RoomID: "room-1", Text: "big5"}, http.StatusUnprocessableEntity, "STAKE_OUT_OF_RANGE"},
		{"insufficient", dto.SubmitWagerRequest{PlayerID: "A", RoomID: "room-1", Text: "big5000"}, http.StatusPaymentRequired, "INSUFFICIENT_BALANCE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/wagers", tt.req)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decode[dto.ErrorResponse](t, rec).Code)
		})
	}

	rec := e.do(t, http.MethodPost, "/wagers", dto.SubmitWagerRequest{PlayerID: "A", RoomID: "room-1", Text: "big100"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = e.do(t, http.MethodPost, "/wagers", dto.SubmitWagerRequest{PlayerID: "A", RoomID: "room-1", Text: "small100"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "OPPOSITE_WAGER", decode[dto.ErrorResponse](t, rec).Code)

	e.clock.now = t0.Add(185 * time.Second)
	rec = e.do(t, http.MethodPost, "/wagers", dto.SubmitWagerRequest{PlayerID: "A", RoomID: "room-1", Text: "big100"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ROUND_SEALED", decode[dto.ErrorResponse](t, rec).Code)
}

func TestTeardownRefunds(t *testing.T) {
	e := newEnv(t)
	e.do(t, http.MethodPost, "/wallet/deposit", dto.DepositRequest{PlayerID: "A", Amount: 1000, ExternalRef: "seed"})
	e.do(t, http.MethodPost, "/wagers", dto.SubmitWagerRequest{PlayerID: "A", RoomID: "room-1", Text: "odd400"})

	rec := e.do(t, http.MethodDelete, "/rooms/room-1?reason=maintenance", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[dto.SettlementResponse](t, rec)
	assert.True(t, res.Record.Void())
	assert.Equal(t, "maintenance", res.Record.Reason)
	assert.Equal(t, int64(400), res.Record.TotalRefunded)

	rec = e.do(t, http.MethodGet, "/wallet?playerId=A", nil)
	assert.Equal(t, int64(1000), decode[dto.WalletResponse](t, rec).Balance)

	rec = e.do(t, http.MethodDelete, "/rooms/room-1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ROOM_CLOSED", decode[dto.ErrorResponse](t, rec).Code)
}

func TestBadRequests(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"wallet without player", http.MethodGet, "/wallet", nil, http.StatusBadRequest},
		{"deposit non positive", http.MethodPost, "/wallet/deposit", dto.DepositRequest{PlayerID: "A"}, http.StatusBadRequest},
		{"invalid digits", http.MethodPost, "/rooms/room-1/results", dto.ResultRequest{Digits: []int{1, 2}}, http.StatusBadRequest},
		{"unknown room", http.MethodGet, "/rooms/room-9", nil, http.StatusNotFound},
		{"bad round id", http.MethodGet, "/rooms/room-1/rounds/x/settlement", nil, http.StatusBadRequest},
		{"settlement missing", http.MethodGet, "/rooms/room-1/rounds/4/settlement", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, e.do(t, tt.method, tt.path, tt.body).Code)
		})
	}
}

func TestListRoomsAndOdds(t *testing.T) {
	e := newEnv(t)
	_, err := e.manager.Open(context.Background(), "room-0")
	require.NoError(t, err)

	rooms := decode[[]room.Snapshot](t, e.do(t, http.MethodGet, "/rooms", nil))
	require.Len(t, rooms, 2)
	assert.Equal(t, "room-0", rooms[0].RoomID)

	rec := e.do(t, http.MethodGet, "/odds", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tbl, err := odds.Decode(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, int64(1), tbl.Version())
}

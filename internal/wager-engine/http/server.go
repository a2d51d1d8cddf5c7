package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/round-wager-engine/internal/game"
	"github.com/radieske/round-wager-engine/internal/intake"
	"github.com/radieske/round-wager-engine/internal/ledger"
	"github.com/radieske/round-wager-engine/internal/odds"
	"github.com/radieske/round-wager-engine/internal/room"
	"github.com/radieske/round-wager-engine/internal/round"
	"github.com/radieske/round-wager-engine/internal/settlement"
	"github.com/radieske/round-wager-engine/internal/wager-engine/dto"
)

type Submitter interface {
	Submit(ctx context.Context, playerID, roomID, text string) (intake.Confirmation, error)
}

// Wallet é a visão do ledger usada pela API
type Wallet interface {
	Balance(playerID string) int64
	Transactions(playerID string) []ledger.Transaction
	Deposit(ctx context.Context, playerID string, amount int64, externalRef string) (int64, error)
}

type Rooms interface {
	Rooms() []room.Snapshot
	Snapshot(roomID string) (room.Snapshot, error)
	Resolve(ctx context.Context, roomID string, hint int64, digits game.Digits) (settlement.Record, error)
	Teardown(ctx context.Context, roomID, reason string) (settlement.Record, error)
}

type Settlements interface {
	Get(ctx context.Context, roomID string, roundID int64) (settlement.Record, error)
}

// API expõe apostas, carteira, salas e liquidações via REST
// O WebSocket de acompanhamento é montado em /ws
type API struct {
	Log         *zap.Logger
	Intake      Submitter
	Wallet      Wallet
	Rooms       Rooms
	Settlements Settlements
	Odds        *odds.Holder
	WS          http.HandlerFunc // opcional
}

// Router retorna o roteador HTTP com os endpoints REST
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/wagers", a.submitWager)                  // Mensagem de aposta
	r.Get("/wallet", a.getWallet)                     // ?playerId=...
	r.Get("/wallet/transactions", a.listTransactions) // ?playerId=...
	r.Post("/wallet/deposit", a.deposit)              // Crédito idempotente por externalRef
	r.Get("/rooms", a.listRooms)                      // Snapshot de todas as salas
	r.Get("/rooms/{id}", a.getRoom)                   // Snapshot de uma sala
	r.Post("/rooms/{id}/results", a.postResult)       // Resultado manual (fallback do feed)
	r.Delete("/rooms/{id}", a.teardown)               // Fecha a sala e devolve apostas
	r.Get("/rooms/{id}/rounds/{round}/settlement", a.getSettlement)
	r.Get("/odds", a.getOdds)
	if a.WS != nil {
		r.Get("/ws", a.WS)
	}
	return r
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, dto.ErrorResponse{Code: code, Message: err.Error()})
}

// intakeStatus mapeia a taxonomia de recusas para status HTTP
func intakeStatus(err error) int {
	switch {
	case errors.Is(err, intake.ErrMalformedWager):
		return http.StatusBadRequest
	case errors.Is(err, intake.ErrRoundNotFound):
		return http.StatusNotFound
	case errors.Is(err, intake.ErrRoundSealed),
		errors.Is(err, intake.ErrDuplicateWager),
		errors.Is(err, intake.ErrOppositeWager),
		errors.Is(err, intake.ErrDuplicateMessage):
		return http.StatusConflict
	case errors.Is(err, intake.ErrStakeOutOfRange):
		return http.StatusUnprocessableEntity
	case errors.Is(err, intake.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	}
	return http.StatusInternalServerError
}

func (a *API) submitWager(w http.ResponseWriter, r *http.Request) {
	var req dto.SubmitWagerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_JSON", err)
		return
	}
	c, err := a.Intake.Submit(r.Context(), req.PlayerID, req.RoomID, req.Text)
	if err != nil {
		status := intakeStatus(err)
		if status == http.StatusInternalServerError {
			a.Log.Error("wager intake failed", zap.String("room", req.RoomID), zap.Error(err))
		}
		writeError(w, status, intake.Code(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) getWallet(w http.ResponseWriter, r *http.Request) {
	player := r.URL.Query().Get("playerId")
	if player == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", errors.New("playerId required"))
		return
	}
	writeJSON(w, http.StatusOK, dto.WalletResponse{PlayerID: player, Balance: a.Wallet.Balance(player)})
}

func (a *API) listTransactions(w http.ResponseWriter, r *http.Request) {
	player := r.URL.Query().Get("playerId")
	if player == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", errors.New("playerId required"))
		return
	}
	txns := a.Wallet.Transactions(player)
	if txns == nil {
		txns = []ledger.Transaction{}
	}
	writeJSON(w, http.StatusOK, txns)
}

// deposit credita saldo; sem externalRef cada chamada gera uma ref nova
func (a *API) deposit(w http.ResponseWriter, r *http.Request) {
	var req dto.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_JSON", err)
		return
	}
	if req.PlayerID == "" || req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", errors.New("playerId and positive amount required"))
		return
	}
	if req.ExternalRef == "" {
		req.ExternalRef = uuid.NewString()
	}
	bal, err := a.Wallet.Deposit(r.Context(), req.PlayerID, req.Amount, req.ExternalRef)
	if err != nil {
		a.Log.Error("deposit failed", zap.String("player", req.PlayerID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", err)
		return
	}
	writeJSON(w, http.StatusOK, dto.WalletResponse{PlayerID: req.PlayerID, Balance: bal})
}

func (a *API) listRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Rooms.Rooms())
}

func (a *API) getRoom(w http.ResponseWriter, r *http.Request) {
	snap, err := a.Rooms.Snapshot(chi.URLParam(r, "id"))
	if err != nil {
		a.roomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) postResult(w http.ResponseWriter, r *http.Request) {
	var req dto.ResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_JSON", err)
		return
	}
	digits, err := game.DigitsFrom(req.Digits)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_DIGITS", err)
		return
	}
	rec, err := a.Rooms.Resolve(r.Context(), chi.URLParam(r, "id"), req.RoundIDHint, digits)
	if err != nil {
		a.roomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SettlementResponse{Record: rec, Bill: settlement.Bill(rec)})
}

func (a *API) teardown(w http.ResponseWriter, r *http.Request) {
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "room closed"
	}
	rec, err := a.Rooms.Teardown(r.Context(), chi.URLParam(r, "id"), reason)
	if err != nil {
		a.roomError(w, err)
		return
	}
	if rec.RoomID == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, dto.SettlementResponse{Record: rec, Bill: settlement.Bill(rec)})
}

func (a *API) getSettlement(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "round"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", errors.New("invalid round id"))
		return
	}
	rec, err := a.Settlements.Get(r.Context(), chi.URLParam(r, "id"), id)
	if err != nil {
		a.roomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SettlementResponse{Record: rec, Bill: settlement.Bill(rec)})
}

func (a *API) getOdds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Odds.Load())
}

func (a *API) roomError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, "ROOM_NOT_FOUND", err)
	case errors.Is(err, settlement.ErrNotFound):
		writeError(w, http.StatusNotFound, "SETTLEMENT_NOT_FOUND", err)
	case errors.Is(err, round.ErrNotAwaiting):
		writeError(w, http.StatusConflict, "NOT_AWAITING_RESULT", err)
	case errors.Is(err, round.ErrClosed):
		writeError(w, http.StatusConflict, "ROOM_CLOSED", err)
	default:
		a.Log.Error("room operation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", err)
	}
}

package settlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/radieske/round-wager-engine/internal/ledger"
)

// History lista as movimentações de uma sala; usado só na recuperação após restart
type History interface {
	RoomTransactions(roomID string) []ledger.Transaction
}

type staked struct {
	wagerID  string
	playerID string
	stake    int64
}

type journalRound struct {
	open   map[string]staked
	order  []string
	closed map[string]bool
	paid   bool
}

// Recover anula as rodadas da sala que ficaram com apostas debitadas e sem registro
// (processo interrompido com a rodada aberta). Rodadas com prêmio já pago e sem registro
// não são tocadas: exigem revisão manual
func (e *Engine) Recover(ctx context.Context, roomID, reason string) ([]Record, error) {
	if e.history == nil {
		return nil, nil
	}

	rounds := make(map[int64]*journalRound)
	for _, t := range e.history.RoomTransactions(roomID) {
		prefix, wagerID, ok := splitRef(t.Ref)
		if !ok || t.RoundID == 0 {
			continue
		}
		jr, ok := rounds[t.RoundID]
		if !ok {
			jr = &journalRound{open: make(map[string]staked), closed: make(map[string]bool)}
			rounds[t.RoundID] = jr
		}
		switch prefix {
		case "wager":
			if _, seen := jr.open[wagerID]; !seen {
				jr.order = append(jr.order, wagerID)
			}
			jr.open[wagerID] = staked{wagerID: wagerID, playerID: t.PlayerID, stake: -t.Delta}
		case "rewager", "refund":
			jr.closed[wagerID] = true
		case "payout":
			jr.closed[wagerID] = true
			jr.paid = true
		}
	}

	ids := make([]int64, 0, len(rounds))
	for id, jr := range rounds {
		if jr.outstanding() > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []Record
	for _, id := range ids {
		rec, err := e.recoverRound(ctx, roomID, id, rounds[id], reason)
		if err != nil {
			return out, err
		}
		if rec != nil {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (e *Engine) recoverRound(ctx context.Context, roomID string, roundID int64, jr *journalRound, reason string) (*Record, error) {
	unlock := e.lock(key(roomID, roundID))
	defer unlock()

	if _, err := e.store.Get(ctx, roomID, roundID); err == nil {
		return nil, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("load settlement: %w", err)
	}
	if jr.paid {
		e.log.Error("round has payouts but no settlement record, left for review",
			zap.String("room", roomID), zap.Int64("round", roundID))
		return nil, nil
	}

	rec := Record{
		RoomID:    roomID,
		RoundID:   roundID,
		Status:    StatusVoid,
		Reason:    reason,
		SettledAt: e.now().UTC(),
	}
	credits := newCredits()
	for _, id := range jr.order {
		if jr.closed[id] {
			continue
		}
		w := jr.open[id]
		rec.TotalStaked += w.stake
		rec.TotalRefunded += w.stake
		rec.Outcomes = append(rec.Outcomes, Outcome{WagerID: w.wagerID, PlayerID: w.playerID, Stake: w.stake, Refunded: true})
		credits.add(w.playerID, ledger.Posting{
			Delta:   w.stake,
			Reason:  ledger.ReasonRefund,
			RoomID:  roomID,
			RoundID: roundID,
			Ref:     fmt.Sprintf("refund:%s:%d:%s", roomID, roundID, w.wagerID),
		})
	}
	if err := e.apply(ctx, credits); err != nil {
		return nil, err
	}

	stored, created, err := e.store.Save(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("save settlement: %w", err)
	}
	if !created {
		e.duplicate(stored)
		return nil, nil
	}
	e.log.Warn("open round refunded after restart",
		zap.String("room", roomID),
		zap.Int64("round", roundID),
		zap.Int("wagers", len(stored.Outcomes)),
		zap.Int64("refunded", stored.TotalRefunded),
	)
	if e.OnSettled != nil {
		e.OnSettled(stored)
	}
	return &stored, nil
}

func (jr *journalRound) outstanding() int {
	n := 0
	for _, id := range jr.order {
		if !jr.closed[id] {
			n++
		}
	}
	return n
}

// splitRef separa "prefixo:sala:rodada:aposta" em prefixo e id da aposta
func splitRef(ref string) (prefix, wagerID string, ok bool) {
	i := strings.IndexByte(ref, ':')
	j := strings.LastIndexByte(ref, ':')
	if i < 0 || j <= i {
		return "", "", false
	}
	return ref[:i], ref[j+1:], true
}

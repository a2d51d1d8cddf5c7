package dto

import (
	"github.com/radieske/round-wager-engine/internal/settlement"
)

type SubmitWagerRequest struct {
	PlayerID string `json:"playerId"`
	RoomID   string `json:"roomId"`
	Text     string `json:"text"`
}

type DepositRequest struct {
	PlayerID    string `json:"playerId"`
	Amount      int64  `json:"amount"`
	ExternalRef string `json:"externalRef"`
}

type WalletResponse struct {
	PlayerID string `json:"playerId"`
	Balance  int64  `json:"balance"`
}

type ResultRequest struct {
	RoundIDHint int64 `json:"roundIdHint"`
	Digits      []int `json:"digits"`
}

type SettlementResponse struct {
	Record settlement.Record `json:"record"`
	Bill   string            `json:"bill"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

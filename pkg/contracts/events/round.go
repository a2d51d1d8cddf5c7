package events

import "time"

// Resultado publicado pelo feed no tópico "round_results"
// RoundIDHint é só uma dica: o motor casa pela sala
type RoundResult struct {
	RoomID      string    `json:"room_id"`
	RoundIDHint int64     `json:"round_id_hint,omitempty"`
	Digits      []int     `json:"digits"`
	ObservedAt  time.Time `json:"observed_at"`
	Source      string    `json:"source,omitempty"` // "result-simulator"
}

// Transição de fase de uma sala (tópico "round_phase_events")
type PhaseChanged struct {
	RoomID   string    `json:"room_id"`
	RoundID  int64     `json:"round_id"`
	Event    string    `json:"event"` // OPENED | REMINDER | SEALED | RULE_BROADCAST | AWAITING_RESULT | UNRESOLVED | RESOLVED | CLOSED
	Phase    string    `json:"phase"`
	Deadline time.Time `json:"deadline"`
	Mute     *bool     `json:"mute,omitempty"`
	Ts       time.Time `json:"ts"`
}

type WagerOutcome struct {
	WagerID    string `json:"wager_id"`
	PlayerID   string `json:"player_id"`
	Kind       string `json:"kind,omitempty"`
	Stake      int64  `json:"stake"`
	Multiplier string `json:"multiplier,omitempty"`
	Won        bool   `json:"won"`
	Payout     int64  `json:"payout"`
	Refunded   bool   `json:"refunded,omitempty"`
}

// Liquidação de uma rodada (tópico "round_settlements"), com o texto da conta
type RoundSettled struct {
	RoomID        string         `json:"room_id"`
	RoundID       int64          `json:"round_id"`
	Status        string         `json:"status"` // "SETTLED" | "VOID"
	Digits        []int          `json:"digits,omitempty"`
	Sum           int            `json:"sum,omitempty"`
	Label         string         `json:"label,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	TotalStaked   int64          `json:"total_staked"`
	TotalPaid     int64          `json:"total_paid"`
	TotalRefunded int64          `json:"total_refunded"`
	Outcomes      []WagerOutcome `json:"outcomes"`
	Bill          string         `json:"bill"`
	SettledAt     time.Time      `json:"settled_at"`
}

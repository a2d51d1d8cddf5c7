package events

import "time"

// Mensagem de aposta vinda da ponte de chat (tópico "wager_submitted")
type WagerSubmitted struct {
	MessageID  string    `json:"message_id"`
	RoomID     string    `json:"room_id"`
	PlayerID   string    `json:"player_id"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// Resposta devolvida à ponte de chat para renderizar no grupo
type WagerReply struct {
	MessageID  string    `json:"message_id"`
	RoomID     string    `json:"room_id"`
	PlayerID   string    `json:"player_id"`
	Status     string    `json:"status"` // "ACCEPTED" | "REJECTED"
	Code       string    `json:"code,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	RoundID    int64     `json:"round_id,omitempty"`
	Normalized string    `json:"normalized,omitempty"`
	Stake      int64     `json:"stake,omitempty"`
	Balance    int64     `json:"balance"`
	Ts         time.Time `json:"ts"`
}

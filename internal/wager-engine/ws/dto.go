package ws

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: subscribe | unsubscribe | ping
// RoomID: obrigatório para subscribe/unsubscribe
type ClientMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

package topics

const (
	// Entrada
	WagerSubmitted = "wager_submitted"
	RoundResults   = "round_results"

	// Saída
	WagerReplies     = "wager_replies"
	RoundPhaseEvents = "round_phase_events"
	RoundSettlements = "round_settlements"

	// DLQs
	WagerSubmittedDLQ = "wager_submitted_dlq"
	RoundResultsDLQ   = "round_results_dlq"
)

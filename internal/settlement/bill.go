package settlement

import (
	"fmt"
	"strings"
)

// Bill gera o texto da conta enviado à sala
func Bill(rec Record) string {
	var sb strings.Builder
	if rec.Void() {
		fmt.Fprintf(&sb, "Round %d | VOID", rec.RoundID)
		if rec.Reason != "" {
			fmt.Fprintf(&sb, " (%s)", rec.Reason)
		}
		fmt.Fprintf(&sb, "\nstaked %d | refunded %d", rec.TotalStaked, rec.TotalRefunded)
		for _, o := range rec.Outcomes {
			if !o.Kind.Valid() {
				// recuperada após restart: o tipo da aposta não fica no ledger
				fmt.Fprintf(&sb, "\n%s %d -> refund %d", o.PlayerID, o.Stake, o.Stake)
				continue
			}
			fmt.Fprintf(&sb, "\n%s %s %d -> refund %d", o.PlayerID, o.Kind, o.Stake, o.Stake)
		}
		return sb.String()
	}

	fmt.Fprintf(&sb, "Round %d", rec.RoundID)
	if rec.Draw != nil {
		fmt.Fprintf(&sb, " | %s %s", rec.Draw.Digits, rec.Draw.Features.Label())
	}
	fmt.Fprintf(&sb, "\nstaked %d | paid %d", rec.TotalStaked, rec.TotalPaid)
	for _, o := range rec.Outcomes {
		fmt.Fprintf(&sb, "\n%s %s %d -> %d", o.PlayerID, o.Kind, o.Stake, o.Payout)
	}
	return sb.String()
}

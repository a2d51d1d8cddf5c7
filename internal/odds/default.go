package odds

import (
	"github.com/shopspring/decimal"

	"github.com/radieske/round-wager-engine/internal/game"
)

// DefaultMaxTotalStake é o teto por jogador em uma rodada
const DefaultMaxTotalStake = 60000

const minStake = 20

// sumMultipliers: índice = soma exata (0..27)
var sumMultipliers = [game.MaxSum + 1]int64{
	665, 99, 49, 39, 29, 19, 16, 15, 14, 14, 13, 12, 11, 10,
	10, 11, 12, 13, 14, 14, 15, 16, 19, 29, 39, 49, 99, 665,
}

func entry(k game.Kind, mult string, max int64) Entry {
	return Entry{Kind: k, Multiplier: decimal.RequireFromString(mult), MinStake: minStake, MaxStake: max}
}

// Default monta a tabela padrão da casa
func Default() *Table {
	entries := []Entry{
		entry(game.KindBig, "1.95", 50000),
		entry(game.KindSmall, "1.95", 50000),
		entry(game.KindOdd, "1.95", 50000),
		entry(game.KindEven, "1.95", 50000),
		entry(game.KindBigOdd, "2.95", 30000),
		entry(game.KindBigEven, "2.95", 30000),
		entry(game.KindSmallOdd, "2.95", 30000),
		entry(game.KindSmallEven, "2.95", 30000),
		entry(game.KindExtremeBig, "9", 30000),
		entry(game.KindExtremeSmall, "9", 30000),
		entry(game.KindTriple, "30", 2000),
		entry(game.KindStraight, "6", 10000),
		entry(game.KindPair, "3", 10000),
		entry(game.KindNearRun, "2", 10000),
		entry(game.KindMixed, "2.2", 10000),
		entry(game.KindDragon, "1.92", 10000),
		entry(game.KindTiger, "1.92", 10000),
		entry(game.KindTie, "8", 10000),
	}
	for n := 0; n <= 9; n++ {
		k, _ := game.KindTail(n)
		entries = append(entries, entry(k, "10", 20000))
	}
	for n, m := range sumMultipliers {
		k, _ := game.KindSum(n)
		entries = append(entries, Entry{Kind: k, Multiplier: decimal.NewFromInt(m), MinStake: minStake, MaxStake: 20000})
	}

	t, err := NewTable(1, DefaultMaxTotalStake, entries)
	if err != nil {
		// tabela fixa; erro aqui é bug de programação
		panic(err)
	}
	return t
}

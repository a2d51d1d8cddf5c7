package odds

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/radieske/round-wager-engine/internal/game"
)

var (
	ErrKindNotOffered  = errors.New("kind not offered")
	ErrStakeOutOfRange = errors.New("stake out of range")
	ErrInvalidTable    = errors.New("invalid odds table")
)

// Entry define multiplicador e limites de aposta de um tipo
// Valores monetários em unidades mínimas (centavos)
type Entry struct {
	Kind       game.Kind       `json:"kind"`
	Multiplier decimal.Decimal `json:"multiplier"`
	MinStake   int64           `json:"minStake"`
	MaxStake   int64           `json:"maxStake"`
}

// Payout calcula stake × multiplicador, truncado para unidades mínimas
// O valor inclui a devolução do stake
func (e Entry) Payout(stake int64) int64 {
	return decimal.NewFromInt(stake).Mul(e.Multiplier).Floor().IntPart()
}

// BoundsError detalha o limite violado
type BoundsError struct {
	Kind  game.Kind
	Stake int64
	Min   int64
	Max   int64
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("%s: stake %d outside [%d, %d]", e.Kind, e.Stake, e.Min, e.Max)
}

func (e *BoundsError) Unwrap() error { return ErrStakeOutOfRange }

// Table é imutável depois de construída; trocas acontecem via Holder entre rodadas
type Table struct {
	version       int64
	maxTotalStake int64
	entries       map[game.Kind]Entry
}

// NewTable valida e monta a tabela
// maxTotalStake <= 0 desliga o teto por jogador e rodada
func NewTable(version, maxTotalStake int64, entries []Entry) (*Table, error) {
	t := &Table{
		version:       version,
		maxTotalStake: maxTotalStake,
		entries:       make(map[game.Kind]Entry, len(entries)),
	}
	for _, e := range entries {
		if !e.Kind.Valid() {
			return nil, fmt.Errorf("%w: kind %d", ErrInvalidTable, uint8(e.Kind))
		}
		if _, dup := t.entries[e.Kind]; dup {
			return nil, fmt.Errorf("%w: duplicate kind %s", ErrInvalidTable, e.Kind)
		}
		if !e.Multiplier.IsPositive() {
			return nil, fmt.Errorf("%w: %s multiplier %s", ErrInvalidTable, e.Kind, e.Multiplier)
		}
		if e.MinStake <= 0 || e.MaxStake < e.MinStake {
			return nil, fmt.Errorf("%w: %s bounds [%d, %d]", ErrInvalidTable, e.Kind, e.MinStake, e.MaxStake)
		}
		t.entries[e.Kind] = e
	}
	return t, nil
}

func (t *Table) Version() int64       { return t.version }
func (t *Table) MaxTotalStake() int64 { return t.maxTotalStake }

func (t *Table) Lookup(k game.Kind) (Entry, bool) {
	e, ok := t.entries[k]
	return e, ok
}

// Entries retorna as entradas ordenadas por tipo
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// CheckStake valida o stake contra os limites do tipo
func (t *Table) CheckStake(k game.Kind, stake int64) error {
	e, ok := t.entries[k]
	if !ok {
		return fmt.Errorf("%w: %s", ErrKindNotOffered, k)
	}
	if stake < e.MinStake || stake > e.MaxStake {
		return &BoundsError{Kind: k, Stake: stake, Min: e.MinStake, Max: e.MaxStake}
	}
	return nil
}

// CheckTotal valida o total apostado pelo jogador na rodada
func (t *Table) CheckTotal(total int64) error {
	if t.maxTotalStake > 0 && total > t.maxTotalStake {
		return fmt.Errorf("%w: total %d exceeds %d", ErrStakeOutOfRange, total, t.maxTotalStake)
	}
	return nil
}

type tableJSON struct {
	Version       int64   `json:"version"`
	MaxTotalStake int64   `json:"maxTotalStake"`
	Entries       []Entry `json:"entries"`
}

func (t *Table) MarshalJSON() ([]byte, error) {
	return json.Marshal(tableJSON{Version: t.version, MaxTotalStake: t.maxTotalStake, Entries: t.Entries()})
}

// Decode lê uma tabela serializada (ex.: vinda do Redis) e valida
func Decode(b []byte) (*Table, error) {
	var raw tableJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	return NewTable(raw.Version, raw.MaxTotalStake, raw.Entries)
}

// Holder publica a tabela ativa; cada rodada guarda o ponteiro lido na abertura
type Holder struct {
	p atomic.Pointer[Table]
}

func NewHolder(t *Table) *Holder {
	h := &Holder{}
	h.p.Store(t)
	return h
}

func (h *Holder) Load() *Table { return h.p.Load() }

// Swap troca a tabela e indica se a versão mudou
func (h *Holder) Swap(t *Table) bool {
	old := h.p.Swap(t)
	return old == nil || old.version != t.version
}

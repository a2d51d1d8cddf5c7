package wager

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/radieske/round-wager-engine/internal/game"
)

var (
	ErrEmpty         = errors.New("empty wager")
	ErrUnknownKind   = errors.New("unknown kind")
	ErrBadAmount     = errors.New("invalid amount")
	ErrContradictory = errors.New("contradictory kinds")
	ErrTooManyKinds  = errors.New("too many kinds")
)

// ParseError aponta o trecho da mensagem que falhou
type ParseError struct {
	Token string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Token == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v: %q", e.Err, e.Token)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Line é um item da mensagem: um tipo e o valor apostado
type Line struct {
	Kind  game.Kind `json:"kind"`
	Stake int64     `json:"stake"`
}

// Slip é o resultado do parse de uma mensagem
type Slip struct {
	Lines []Line `json:"lines"`
	Total int64  `json:"total"`
}

// Normalized reescreve a aposta na forma canônica (eco para o jogador)
func (s Slip) Normalized() string {
	parts := make([]string, len(s.Lines))
	for i, l := range s.Lines {
		parts[i] = lineText(l)
	}
	return strings.Join(parts, " ")
}

func lineText(l Line) string {
	amount := strconv.FormatInt(l.Stake, 10)
	if _, ok := l.Kind.Sum(); ok {
		return l.Kind.Code() + "/" + amount
	}
	if _, ok := l.Kind.Tail(); ok {
		return l.Kind.Code() + "/" + amount
	}
	return l.Kind.Code() + amount
}

// Policy controla as regras configuráveis do parse
type Policy struct {
	MaxKinds            int  // tipos distintos por mensagem; 0 = sem limite
	RejectContradictory bool // ex.: big e small na mesma mensagem
}

func DefaultPolicy() Policy { return Policy{MaxKinds: 8, RejectContradictory: true} }

// contradictory: pares que nunca ganham juntos e denunciam aposta dos dois lados
var contradictory = [][2]game.Kind{
	{game.KindBig, game.KindSmall},
	{game.KindOdd, game.KindEven},
	{game.KindExtremeBig, game.KindExtremeSmall},
	{game.KindDragon, game.KindTiger},
}

// Opposite devolve o lado contrário de k, se k fizer parte de um par contraditório
func Opposite(k game.Kind) (game.Kind, bool) {
	for _, pair := range contradictory {
		switch k {
		case pair[0]:
			return pair[1], true
		case pair[1]:
			return pair[0], true
		}
	}
	return game.KindInvalid, false
}

// Parse transforma o texto em itens de aposta; função pura
func Parse(text string, p Policy) (Slip, error) {
	fields := strings.FieldsFunc(strings.ToLower(text), isSeparator)
	if len(fields) == 0 {
		return Slip{}, &ParseError{Err: ErrEmpty}
	}

	var slip Slip
	index := make(map[game.Kind]int)
	for _, f := range fields {
		for rest := f; rest != ""; {
			kind, amount, n, err := scanToken(rest)
			if err != nil {
				return Slip{}, &ParseError{Token: excerpt(rest), Err: err}
			}
			if i, ok := index[kind]; ok {
				if slip.Lines[i].Stake > math.MaxInt64-amount {
					return Slip{}, &ParseError{Token: excerpt(rest), Err: ErrBadAmount}
				}
				slip.Lines[i].Stake += amount
			} else {
				index[kind] = len(slip.Lines)
				slip.Lines = append(slip.Lines, Line{Kind: kind, Stake: amount})
			}
			if slip.Total > math.MaxInt64-amount {
				return Slip{}, &ParseError{Token: excerpt(rest), Err: ErrBadAmount}
			}
			slip.Total += amount
			rest = rest[n:]
		}
	}

	if p.RejectContradictory {
		for _, pair := range contradictory {
			_, a := index[pair[0]]
			_, b := index[pair[1]]
			if a && b {
				return Slip{}, &ParseError{Token: pair[0].Code() + "+" + pair[1].Code(), Err: ErrContradictory}
			}
		}
	}
	if p.MaxKinds > 0 && len(slip.Lines) > p.MaxKinds {
		return Slip{}, &ParseError{Err: fmt.Errorf("%w: %d > %d", ErrTooManyKinds, len(slip.Lines), p.MaxKinds)}
	}
	return slip, nil
}

// scanToken lê um {tipo}{valor} do início de s e retorna quantos bytes consumiu
func scanToken(s string) (game.Kind, int64, int, error) {
	kind, n, err := scanKind(s)
	if err != nil {
		return game.KindInvalid, 0, 0, err
	}
	if n < len(s) && s[n] == '/' {
		n++
	}
	digits := leadingDigits(s[n:])
	if digits == "" {
		return game.KindInvalid, 0, 0, ErrBadAmount
	}
	amount, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || amount <= 0 {
		return game.KindInvalid, 0, 0, ErrBadAmount
	}
	return kind, amount, n + len(digits), nil
}

func scanKind(s string) (game.Kind, int, error) {
	// soma exata: "13/100", "sum13/100", "点13/100"; a barra é obrigatória
	prefix := 0
	for _, sp := range sumPrefixes {
		if strings.HasPrefix(s, sp) {
			prefix = len(sp)
			break
		}
	}
	digits := leadingDigits(s[prefix:])
	if prefix > 0 || digits != "" {
		end := prefix + len(digits)
		if digits == "" || end >= len(s) || s[end] != '/' || len(digits) > 2 {
			return game.KindInvalid, 0, ErrUnknownKind
		}
		v, _ := strconv.Atoi(digits)
		k, ok := game.KindSum(v)
		if !ok {
			return game.KindInvalid, 0, ErrUnknownKind
		}
		return k, end, nil
	}

	for _, a := range aliases {
		if strings.HasPrefix(s, a.text) {
			return a.kind, len(a.text), nil
		}
	}
	return game.KindInvalid, 0, ErrUnknownKind
}

func leadingDigits(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}

func isSeparator(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	switch r {
	case ',', '，', '、', ';', '；', '。', '.', '|', '+', '＋', '!', '！':
		return true
	}
	return false
}

func excerpt(s string) string {
	const max = 16
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}

type alias struct {
	text string
	kind game.Kind
}

var sumPrefixes = []string{"sum", "点"}

// aliases fica ordenado do maior para o menor texto (casamento mais longo primeiro)
var aliases = buildAliases()

func buildAliases() []alias {
	words := map[game.Kind][]string{
		game.KindBig:          {"大", "da", "d"},
		game.KindSmall:        {"小", "xiao", "x"},
		game.KindOdd:          {"单", "dan"},
		game.KindEven:         {"双", "shuang"},
		game.KindBigOdd:       {"大单", "dd", "dad", "bigodd"},
		game.KindBigEven:      {"大双", "ds", "das", "bigeven"},
		game.KindSmallOdd:     {"小单", "xd", "smallodd"},
		game.KindSmallEven:    {"小双", "xs", "smalleven"},
		game.KindExtremeBig:   {"极大", "jd"},
		game.KindExtremeSmall: {"极小", "jx"},
		game.KindTriple:       {"豹子", "豹", "bz", "bao"},
		game.KindStraight:     {"顺子", "顺", "sz", "shun"},
		game.KindPair:         {"对子", "对", "dz", "dui"},
		game.KindNearRun:      {"半顺", "bs"},
		game.KindMixed:        {"杂", "za"},
		game.KindDragon:       {"龙", "long"},
		game.KindTiger:        {"虎", "hu"},
		game.KindTie:          {"和", "he"},
	}

	var out []alias
	for k, ws := range words {
		out = append(out, alias{text: k.Code(), kind: k})
		for _, w := range ws {
			out = append(out, alias{text: w, kind: k})
		}
	}
	for n := 0; n <= 9; n++ {
		k, _ := game.KindTail(n)
		d := strconv.Itoa(n)
		out = append(out,
			alias{text: k.Code(), kind: k},
			alias{text: "尾" + d, kind: k},
			alias{text: "w" + d, kind: k},
		)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i].text) != len(out[j].text) {
			return len(out[i].text) > len(out[j].text)
		}
		return out[i].text < out[j].text
	})
	return out
}

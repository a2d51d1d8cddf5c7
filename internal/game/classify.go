package game

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrInvalidDigits = errors.New("invalid digits")

// Digits são os três dígitos sorteados de uma rodada
type Digits [3]uint8

// Validate exige dígitos entre 0 e 9
func (d Digits) Validate() error {
	for i, v := range d {
		if v > 9 {
			return fmt.Errorf("%w: position %d = %d", ErrInvalidDigits, i, v)
		}
	}
	return nil
}

func (d Digits) Sum() int { return int(d[0]) + int(d[1]) + int(d[2]) }

func (d Digits) String() string {
	return fmt.Sprintf("%d + %d + %d = %d", d[0], d[1], d[2], d.Sum())
}

// DigitsFrom converte a lista recebida do feed
func DigitsFrom(v []int) (Digits, error) {
	var d Digits
	if len(v) != 3 {
		return d, fmt.Errorf("%w: want 3 digits, got %d", ErrInvalidDigits, len(v))
	}
	for i, n := range v {
		if n < 0 || n > 9 {
			return d, fmt.Errorf("%w: position %d = %d", ErrInvalidDigits, i, n)
		}
		d[i] = uint8(n)
	}
	return d, nil
}

// Pattern é a forma do resultado; as classes são exclusivas entre si
type Pattern uint8

const (
	PatternNone Pattern = iota
	PatternNearRun
	PatternPair
	PatternStraight
	PatternTriple
)

func (p Pattern) String() string {
	switch p {
	case PatternTriple:
		return "triple"
	case PatternStraight:
		return "straight"
	case PatternPair:
		return "pair"
	case PatternNearRun:
		return "near-run"
	default:
		return "none"
	}
}

func (p Pattern) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Pattern) UnmarshalText(b []byte) error {
	for _, c := range []Pattern{PatternNone, PatternNearRun, PatternPair, PatternStraight, PatternTriple} {
		if c.String() == string(b) {
			*p = c
			return nil
		}
	}
	return fmt.Errorf("unknown pattern %q", string(b))
}

// Features é o conjunto canônico de características de um resultado
type Features struct {
	Sum          int     `json:"sum"`
	Big          bool    `json:"big"`
	Odd          bool    `json:"odd"`
	ExtremeBig   bool    `json:"extremeBig"`
	ExtremeSmall bool    `json:"extremeSmall"`
	Pattern      Pattern `json:"pattern"`
	Trine        int     `json:"trine"` // soma % 3: 0 dragão, 1 tigre, 2 empate
	Tail         int     `json:"tail"`
}

// Draw agrupa dígitos e características; é o "result" do registro de liquidação
type Draw struct {
	Digits   Digits   `json:"digits"`
	Features Features `json:"features"`
}

// Classify calcula as características do resultado
func Classify(d Digits) Features {
	sum := d.Sum()
	return Features{
		Sum:          sum,
		Big:          sum >= 14,
		Odd:          sum%2 == 1,
		ExtremeBig:   sum >= 22,
		ExtremeSmall: sum <= 5,
		Pattern:      patternOf(d),
		Trine:        sum % 3,
		Tail:         sum % 10,
	}
}

// patternOf aplica a precedência triple > straight > pair > near-run > none
func patternOf(d Digits) Pattern {
	s := []int{int(d[0]), int(d[1]), int(d[2])}
	sort.Ints(s)

	switch {
	case s[0] == s[2]:
		return PatternTriple
	case s[1]-s[0] == 1 && s[2]-s[1] == 1:
		return PatternStraight
	case s[0] == s[1] || s[1] == s[2]:
		return PatternPair
	case s[1]-s[0] == 1 || s[2]-s[1] == 1 || s[2]-s[0] == 1:
		return PatternNearRun
	default:
		return PatternNone
	}
}

// Wins informa se uma aposta do tipo k ganha com as características f
func Wins(k Kind, f Features) bool {
	if n, ok := k.Sum(); ok {
		return f.Sum == n
	}
	if n, ok := k.Tail(); ok {
		return f.Tail == n
	}

	switch k {
	case KindBig:
		return f.Big
	case KindSmall:
		return !f.Big
	case KindOdd:
		return f.Odd
	case KindEven:
		return !f.Odd
	case KindBigOdd:
		return f.Big && f.Odd
	case KindBigEven:
		return f.Big && !f.Odd
	case KindSmallOdd:
		return !f.Big && f.Odd
	case KindSmallEven:
		return !f.Big && !f.Odd
	case KindExtremeBig:
		return f.ExtremeBig
	case KindExtremeSmall:
		return f.ExtremeSmall
	case KindTriple:
		return f.Pattern == PatternTriple
	case KindStraight:
		return f.Pattern == PatternStraight
	case KindPair:
		return f.Pattern == PatternPair
	case KindNearRun:
		return f.Pattern == PatternNearRun
	case KindMixed:
		return f.Pattern == PatternNone || f.Pattern == PatternNearRun
	case KindDragon:
		return f.Trine == 0
	case KindTiger:
		return f.Trine == 1
	case KindTie:
		return f.Trine == 2
	case KindInvalid:
		return false
	}
	return false
}

// Label resume o resultado para a conta (ex.: "big odd straight")
func (f Features) Label() string {
	parts := make([]string, 0, 3)
	if f.Big {
		parts = append(parts, "big")
	} else {
		parts = append(parts, "small")
	}
	if f.Odd {
		parts = append(parts, "odd")
	} else {
		parts = append(parts, "even")
	}
	if f.Pattern != PatternNone {
		parts = append(parts, f.Pattern.String())
	}
	return strings.Join(parts, " ")
}

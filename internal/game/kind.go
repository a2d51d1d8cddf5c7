package game

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifica a categoria de resultado apostada
// Enum fechado: sumN e tailN ocupam faixas contíguas a partir de kindSumBase/kindTailBase
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBig
	KindSmall
	KindOdd
	KindEven
	KindBigOdd
	KindBigEven
	KindSmallOdd
	KindSmallEven
	KindExtremeBig
	KindExtremeSmall
	KindTriple
	KindStraight
	KindPair
	KindNearRun
	KindMixed
	KindDragon
	KindTiger
	KindTie
	kindTailBase
	kindSumBase = kindTailBase + 10
	kindEnd     = kindSumBase + MaxSum + 1
)

// MaxSum é a maior soma possível de três dígitos
const MaxSum = 27

var kindCodes = map[Kind]string{
	KindBig:          "big",
	KindSmall:        "small",
	KindOdd:          "odd",
	KindEven:         "even",
	KindBigOdd:       "big-odd",
	KindBigEven:      "big-even",
	KindSmallOdd:     "small-odd",
	KindSmallEven:    "small-even",
	KindExtremeBig:   "extreme-big",
	KindExtremeSmall: "extreme-small",
	KindTriple:       "triple",
	KindStraight:     "straight",
	KindPair:         "pair",
	KindNearRun:      "near-run",
	KindMixed:        "mixed",
	KindDragon:       "dragon",
	KindTiger:        "tiger",
	KindTie:          "tie",
}

// KindSum retorna o tipo de aposta na soma exata n (0..27)
func KindSum(n int) (Kind, bool) {
	if n < 0 || n > MaxSum {
		return KindInvalid, false
	}
	return kindSumBase + Kind(n), true
}

// KindTail retorna o tipo de aposta no último dígito da soma (0..9)
func KindTail(n int) (Kind, bool) {
	if n < 0 || n > 9 {
		return KindInvalid, false
	}
	return kindTailBase + Kind(n), true
}

// Sum devolve a soma alvo quando k é uma aposta de soma exata
func (k Kind) Sum() (int, bool) {
	if k >= kindSumBase && k < kindEnd {
		return int(k - kindSumBase), true
	}
	return 0, false
}

// Tail devolve o dígito alvo quando k é uma aposta de final
func (k Kind) Tail() (int, bool) {
	if k >= kindTailBase && k < kindSumBase {
		return int(k - kindTailBase), true
	}
	return 0, false
}

func (k Kind) Valid() bool { return k > KindInvalid && k < kindEnd }

// Code é a forma canônica usada no eco ao jogador, no JSON e no banco
func (k Kind) Code() string {
	if n, ok := k.Sum(); ok {
		return "sum" + strconv.Itoa(n)
	}
	if n, ok := k.Tail(); ok {
		return "tail" + strconv.Itoa(n)
	}
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return "invalid"
}

func (k Kind) String() string { return k.Code() }

// ParseKind converte um código canônico de volta para Kind
func ParseKind(code string) (Kind, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	for k, c := range kindCodes {
		if c == code {
			return k, true
		}
	}
	if rest, ok := strings.CutPrefix(code, "sum"); ok {
		if n, err := strconv.Atoi(rest); err == nil {
			return KindSum(n)
		}
	}
	if rest, ok := strings.CutPrefix(code, "tail"); ok && len(rest) == 1 {
		if n, err := strconv.Atoi(rest); err == nil {
			return KindTail(n)
		}
	}
	return KindInvalid, false
}

// Kinds lista todos os tipos válidos em ordem
func Kinds() []Kind {
	out := make([]Kind, 0, int(kindEnd)-1)
	for k := KindBig; k < kindEnd; k++ {
		out = append(out, k)
	}
	return out
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid kind %d", uint8(k))
	}
	return []byte(k.Code()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	v, ok := ParseKind(string(b))
	if !ok {
		return fmt.Errorf("unknown kind %q", string(b))
	}
	*k = v
	return nil
}

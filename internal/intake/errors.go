package intake

import (
	"errors"
	"fmt"
	"strings"
)

// Erros de negócio devolvidos ao transporte; nenhum altera estado
var (
	ErrMalformedWager      = errors.New("malformed wager")
	ErrRoundSealed         = errors.New("round sealed")
	ErrRoundNotFound       = errors.New("round not found")
	ErrStakeOutOfRange     = errors.New("stake out of range")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDuplicateWager      = errors.New("duplicate wager")
	ErrOppositeWager       = errors.New("opposite side already placed")
	ErrDuplicateMessage    = errors.New("message already processed")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrMalformedWager, "MALFORMED_WAGER"},
	{ErrRoundSealed, "ROUND_SEALED"},
	{ErrRoundNotFound, "ROUND_NOT_FOUND"},
	{ErrStakeOutOfRange, "STAKE_OUT_OF_RANGE"},
	{ErrInsufficientBalance, "INSUFFICIENT_BALANCE"},
	{ErrDuplicateWager, "DUPLICATE_WAGER"},
	{ErrOppositeWager, "OPPOSITE_WAGER"},
	{ErrDuplicateMessage, "DUPLICATE_MESSAGE"},
}

// Code traduz o erro para o código estável usado nas respostas
// Erros fora da taxonomia viram INTERNAL
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "INTERNAL"
}

// IsRejection indica erro de negócio (resposta ao jogador, sem retry)
func IsRejection(err error) bool { return Code(err) != "INTERNAL" }

// RewagerPolicy define o que acontece quando o jogador repete um tipo na mesma rodada
type RewagerPolicy int

const (
	RewagerReplace RewagerPolicy = iota // devolve o stake anterior e vale a nova aposta
	RewagerAdd                          // soma à aposta existente
	RewagerReject                       // recusa com ErrDuplicateWager
)

func (p RewagerPolicy) String() string {
	switch p {
	case RewagerAdd:
		return "add"
	case RewagerReject:
		return "reject"
	default:
		return "replace"
	}
}

func ParseRewagerPolicy(s string) (RewagerPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "replace":
		return RewagerReplace, nil
	case "add":
		return RewagerAdd, nil
	case "reject":
		return RewagerReject, nil
	}
	return RewagerReplace, fmt.Errorf("unknown rewager policy %q", s)
}

package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/round-wager-engine/internal/book"
	"github.com/radieske/round-wager-engine/internal/game"
	"github.com/radieske/round-wager-engine/internal/ledger"
	"github.com/radieske/round-wager-engine/internal/wager"
)

// Rounds localiza o conjunto de apostas da rodada corrente de uma sala
type Rounds interface {
	OpenBook(roomID string) (*book.Book, error)
}

type Ledger interface {
	Apply(ctx context.Context, playerID string, postings ...ledger.Posting) ([]ledger.Transaction, int64, error)
}

// Confirmation é devolvida ao transporte para a resposta no chat
type Confirmation struct {
	RoomID     string       `json:"roomId"`
	RoundID    int64        `json:"roundId"`
	PlayerID   string       `json:"playerId"`
	Normalized string       `json:"normalized"`
	Stake      int64        `json:"stake"`
	Refunded   int64        `json:"refunded,omitempty"`
	Wagers     []book.Wager `json:"wagers"`
	Balance    int64        `json:"balance"`
}

// Service é o portão de entrada das apostas
type Service struct {
	log     *zap.Logger
	rounds  Rounds
	ledger  Ledger
	parse   wager.Policy
	rewager RewagerPolicy
	now     func() time.Time

	OnAccepted func(Confirmation)
	OnRejected func(code string)
}

type Option func(*Service)

func WithClock(now func() time.Time) Option    { return func(s *Service) { s.now = now } }
func WithParsePolicy(p wager.Policy) Option    { return func(s *Service) { s.parse = p } }
func WithRewagerPolicy(p RewagerPolicy) Option { return func(s *Service) { s.rewager = p } }

func NewService(log *zap.Logger, rounds Rounds, l Ledger, opts ...Option) *Service {
	s := &Service{
		log:     log,
		rounds:  rounds,
		ledger:  l,
		parse:   wager.DefaultPolicy(),
		rewager: RewagerReplace,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) RewagerPolicy() RewagerPolicy { return s.rewager }

// Submit valida e registra a mensagem de aposta de um jogador
// Etapas: parse, fase, limites, débito atômico, registro no conjunto da rodada
func (s *Service) Submit(ctx context.Context, playerID, roomID, text string) (Confirmation, error) {
	return s.SubmitMessage(ctx, "", playerID, roomID, text)
}

// SubmitMessage é o Submit de mensagens com id do transporte
// Uma mensagem reentregue na mesma rodada volta com ErrDuplicateMessage sem novo débito
func (s *Service) SubmitMessage(ctx context.Context, messageID, playerID, roomID, text string) (Confirmation, error) {
	c, err := s.submit(ctx, messageID, playerID, roomID, text)
	if err != nil {
		code := Code(err)
		if code == "INTERNAL" {
			s.log.Error("wager intake failed", zap.String("room", roomID), zap.String("player", playerID), zap.Error(err))
		} else {
			s.log.Debug("wager rejected", zap.String("room", roomID), zap.String("player", playerID), zap.String("code", code), zap.Error(err))
		}
		if s.OnRejected != nil {
			s.OnRejected(code)
		}
		return Confirmation{}, err
	}

	s.log.Info("wager accepted",
		zap.String("room", roomID),
		zap.Int64("round", c.RoundID),
		zap.String("player", playerID),
		zap.String("wager", c.Normalized),
		zap.Int64("balance", c.Balance),
	)
	if s.OnAccepted != nil {
		s.OnAccepted(c)
	}
	return c, nil
}

func (s *Service) submit(ctx context.Context, messageID, playerID, roomID, text string) (Confirmation, error) {
	if playerID == "" {
		return Confirmation{}, fmt.Errorf("%w: empty player", ErrMalformedWager)
	}

	// 1) parse
	slip, err := wager.Parse(text, s.parse)
	if err != nil {
		return Confirmation{}, fmt.Errorf("%w: %v", ErrMalformedWager, err)
	}

	// 2) fase
	b, err := s.rounds.OpenBook(roomID)
	if err != nil {
		return Confirmation{}, fmt.Errorf("%w: room %s: %v", ErrRoundNotFound, roomID, err)
	}
	now := s.now()
	if !now.Before(b.SealAt()) || b.State() != book.StateOpen {
		return Confirmation{}, fmt.Errorf("%w: round %d", ErrRoundSealed, b.RoundID())
	}

	// 3) limites por item
	table := b.Table()
	for _, l := range slip.Lines {
		if err := table.CheckStake(l.Kind, l.Stake); err != nil {
			return Confirmation{}, fmt.Errorf("%w: %v", ErrStakeOutOfRange, err)
		}
	}

	c := Confirmation{
		RoomID:     roomID,
		RoundID:    b.RoundID(),
		PlayerID:   playerID,
		Normalized: slip.Normalized(),
		Stake:      slip.Total,
	}

	// 4) e 5) sob o lock do book: o selo não pode entrar entre o débito e o registro
	err = b.Place(now, func(tx *book.Tx) error {
		if messageID != "" && tx.Seen(messageID) {
			return fmt.Errorf("%w: %s", ErrDuplicateMessage, messageID)
		}

		current := make(map[game.Kind]int64)
		var total int64
		for _, w := range tx.Stakes(playerID) {
			current[w.Kind] += w.Stake
			total += w.Stake
		}

		// aposta num lado com o contrário já em aberto na rodada é hedge
		if s.parse.RejectContradictory {
			for _, l := range slip.Lines {
				if opp, ok := wager.Opposite(l.Kind); ok && current[opp] > 0 {
					return fmt.Errorf("%w: %s against %s", ErrOppositeWager, l.Kind, opp)
				}
			}
		}

		var refunds, debits []ledger.Posting
		wagers := make([]book.Wager, 0, len(slip.Lines))
		for _, l := range slip.Lines {
			prev := current[l.Kind]
			switch s.rewager {
			case RewagerReject:
				if prev > 0 {
					return fmt.Errorf("%w: %s already placed", ErrDuplicateWager, l.Kind)
				}
			case RewagerAdd:
				if err := table.CheckStake(l.Kind, prev+l.Stake); err != nil {
					return fmt.Errorf("%w: %v", ErrStakeOutOfRange, err)
				}
			case RewagerReplace:
				for _, old := range tx.Withdraw(playerID, l.Kind) {
					refunds = append(refunds, ledger.Posting{
						Delta:   old.Stake,
						Reason:  ledger.ReasonRefund,
						RoomID:  roomID,
						RoundID: b.RoundID(),
						Ref:     fmt.Sprintf("rewager:%s:%d:%s", roomID, b.RoundID(), old.ID),
					})
					c.Refunded += old.Stake
					total -= old.Stake
				}
			}
			total += l.Stake

			w := book.Wager{
				ID:       uuid.NewString(),
				RoomID:   roomID,
				RoundID:  b.RoundID(),
				PlayerID: playerID,
				Kind:     l.Kind,
				Stake:    l.Stake,
				PlacedAt: now,
			}
			debits = append(debits, ledger.Posting{
				Delta:   -l.Stake,
				Reason:  ledger.ReasonWager,
				RoomID:  roomID,
				RoundID: b.RoundID(),
				Ref:     fmt.Sprintf("wager:%s:%d:%s", roomID, b.RoundID(), w.ID),
			})
			wagers = append(wagers, w)
		}
		if err := table.CheckTotal(total); err != nil {
			return fmt.Errorf("%w: %v", ErrStakeOutOfRange, err)
		}

		// estornos primeiro para o saldo intermediário nunca ficar negativo
		txns, balance, err := s.ledger.Apply(ctx, playerID, append(refunds, debits...)...)
		if err != nil {
			if errors.Is(err, ledger.ErrInsufficientBalance) {
				return fmt.Errorf("%w: need %d", ErrInsufficientBalance, slip.Total-c.Refunded)
			}
			return fmt.Errorf("debit wager: %w", err)
		}
		for i := range wagers {
			wagers[i].ReservationTxnID = txns[len(refunds)+i].ID
			tx.Add(wagers[i])
		}
		if messageID != "" {
			tx.Remember(messageID)
		}
		c.Wagers = wagers
		c.Balance = balance
		return nil
	})
	if errors.Is(err, book.ErrClosed) {
		return Confirmation{}, fmt.Errorf("%w: round %d", ErrRoundSealed, b.RoundID())
	}
	if err != nil {
		return Confirmation{}, err
	}
	return c, nil
}

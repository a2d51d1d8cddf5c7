package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/radieske/round-wager-engine/internal/odds"
	"github.com/radieske/round-wager-engine/internal/wager-engine/repo"
)

type Reconciler interface {
	Reconcile() error
}

// MismatchFinder compara o snapshot persistido com o journal
type MismatchFinder interface {
	Mismatches(ctx context.Context) ([]repo.Mismatch, error)
}

type OddsReloader interface {
	Reload(ctx context.Context, h *odds.Holder) (bool, error)
}

// Jobs agenda as tarefas periódicas do wager-engine
type Jobs struct {
	Log      *zap.Logger
	Ledger   Reconciler
	Journal  MismatchFinder // opcional (sem Postgres)
	Odds     OddsReloader   // opcional (sem Redis)
	Holder   *odds.Holder
	Timeout  time.Duration
	OnReport func(job string, ok bool) // métricas

	c *cron.Cron
}

// Start registra os jobs com as expressões informadas e inicia o agendador
func (j *Jobs) Start(ctx context.Context, reconcileSpec, oddsSpec string) error {
	j.c = cron.New()
	if _, err := j.c.AddFunc(reconcileSpec, func() { j.run(ctx, "reconcile", j.Reconcile) }); err != nil {
		return err
	}
	if j.Odds != nil {
		if _, err := j.c.AddFunc(oddsSpec, func() { j.run(ctx, "odds_reload", j.ReloadOdds) }); err != nil {
			return err
		}
	}
	j.c.Start()
	return nil
}

// Stop aguarda os jobs em execução
func (j *Jobs) Stop() {
	if j.c != nil {
		<-j.c.Stop().Done()
	}
}

func (j *Jobs) run(ctx context.Context, name string, fn func(context.Context) error) {
	if ctx.Err() != nil {
		return
	}
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(ctx)
	if err != nil {
		j.Log.Error("job failed", zap.String("job", name), zap.Error(err))
	}
	if j.OnReport != nil {
		j.OnReport(name, err == nil)
	}
}

// Reconcile confere o ledger em memória e, se houver journal, o snapshot do banco
func (j *Jobs) Reconcile(ctx context.Context) error {
	errs := []error{j.Ledger.Reconcile()}
	if j.Journal != nil {
		ms, err := j.Journal.Mismatches(ctx)
		if err != nil {
			errs = append(errs, err)
		}
		for _, m := range ms {
			j.Log.Error("account snapshot diverges from journal",
				zap.String("player", m.PlayerID),
				zap.Int64("snapshot", m.Snapshot),
				zap.Int64("journal", m.Journal),
			)
			errs = append(errs, errors.New("snapshot mismatch for "+m.PlayerID))
		}
	}
	return errors.Join(errs...)
}

// ReloadOdds traz a tabela do Redis; rodadas abertas mantêm a tabela com que abriram
func (j *Jobs) ReloadOdds(ctx context.Context) error {
	changed, err := j.Odds.Reload(ctx, j.Holder)
	if err != nil {
		return err
	}
	if changed {
		j.Log.Info("odds table reloaded", zap.Int64("version", j.Holder.Load().Version()))
	}
	return nil
}

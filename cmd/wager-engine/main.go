package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/round-wager-engine/internal/intake"
	"github.com/radieske/round-wager-engine/internal/ledger"
	"github.com/radieske/round-wager-engine/internal/odds"
	"github.com/radieske/round-wager-engine/internal/room"
	"github.com/radieske/round-wager-engine/internal/settlement"
	"github.com/radieske/round-wager-engine/internal/shared/cache"
	"github.com/radieske/round-wager-engine/internal/shared/config"
	"github.com/radieske/round-wager-engine/internal/shared/db"
	"github.com/radieske/round-wager-engine/internal/shared/kafka"
	"github.com/radieske/round-wager-engine/internal/shared/logger"
	"github.com/radieske/round-wager-engine/internal/shared/metrics"
	"github.com/radieske/round-wager-engine/internal/wager"
	oddscache "github.com/radieske/round-wager-engine/internal/wager-engine/cache"
	"github.com/radieske/round-wager-engine/internal/wager-engine/consumer"
	httpapi "github.com/radieske/round-wager-engine/internal/wager-engine/http"
	"github.com/radieske/round-wager-engine/internal/wager-engine/jobs"
	"github.com/radieske/round-wager-engine/internal/wager-engine/producer"
	"github.com/radieske/round-wager-engine/internal/wager-engine/pubsub"
	"github.com/radieske/round-wager-engine/internal/wager-engine/repo"
	"github.com/radieske/round-wager-engine/internal/wager-engine/ws"
)

func main() {
	// carrega config
	cfg := config.Load()

	// inicia logger
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}
	rewager, err := intake.ParseRewagerPolicy(cfg.RewagerPolicy)
	if err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	log.Info("starting service", zap.String("service", cfg.ServiceName), zap.String("env", cfg.Env))

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Postgres: journal do ledger e registros de liquidação
	pg, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	if err := db.Migrate(ctx, pg); err != nil {
		log.Fatal("migrations failed", zap.Error(err))
	}
	log.Info("postgres connected")

	// Redis: tabela de odds e Pub/Sub do WebSocket
	redisClient, err := cache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("redis connected")

	m := newMetrics()

	// Ledger reconstruído a partir do journal
	journal := repo.NewLedgerJournal(pg)
	led := ledger.New(log.Named("ledger"), ledger.WithJournal(journal))
	if err := led.Restore(ctx); err != nil {
		log.Fatal("ledger restore failed", zap.Error(err))
	}
	log.Info("ledger restored", zap.Int("players", len(led.Players())))

	store := repo.NewSettlementStore(pg)
	engine := settlement.NewEngine(log.Named("settlement"), led, store, settlement.WithHistory(led))
	engine.OnSettled = m.onSettled
	engine.OnDuplicate = func(settlement.Record) { m.duplicates.Inc() }

	// Odds: começa pela tabela padrão e aplica a do Redis se existir
	holder := odds.NewHolder(odds.Default())
	oddsSrc := oddscache.NewOddsSource(redisClient, cfg.OddsRedisKey)
	if _, err := oddsSrc.Reload(ctx, holder); err != nil {
		log.Warn("odds reload failed, using default table", zap.Error(err))
	}

	// Kafka writers
	phaseWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicRoundPhaseEvents)
	defer phaseWriter.Close()
	settleWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicRoundSettlements)
	defer settleWriter.Close()
	replyWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicWagerReplies)
	defer replyWriter.Close()
	wagerDLQ := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicWagerSubmittedDLQ)
	defer wagerDLQ.Close()
	resultDLQ := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicRoundResultsDLQ)
	defer resultDLQ.Close()

	// Avisos das salas saem por Kafka e pelo Pub/Sub do WebSocket, fora do lock da sala
	// O dispatcher só para depois dos loops das salas, para drenar os últimos avisos
	notifyCtx, stopNotify := context.WithCancel(context.Background())
	defer stopNotify()
	dispatcher := room.NewDispatcher(log.Named("notify"), 1024,
		producer.NewKafkaNotifier(phaseWriter, settleWriter),
		pubsub.NewRedisBroadcaster(redisClient, cfg.RedisPubSubChannel),
	)
	dispatcher.OnDropped = m.dropped.Inc
	var notifyWG sync.WaitGroup
	notifyWG.Add(1)
	go func() {
		defer notifyWG.Done()
		dispatcher.Run(notifyCtx)
	}()

	manager := room.NewManager(log.Named("room"), holder, engine, dispatcher,
		room.WithTiming(cfg.Timing()),
		room.WithAutoMute(cfg.AutoMute),
		room.WithTick(cfg.TickInterval),
	)
	for _, id := range cfg.Rooms {
		if _, err := manager.Open(ctx, id); err != nil {
			log.Fatal("room open failed", zap.String("room", id), zap.Error(err))
		}
	}

	svc := intake.NewService(log.Named("intake"), manager, led,
		intake.WithParsePolicy(wager.Policy{MaxKinds: cfg.MaxKindsPerMessage, RejectContradictory: cfg.RejectContradictory}),
		intake.WithRewagerPolicy(rewager),
	)
	svc.OnAccepted = func(c intake.Confirmation) {
		m.accepted.Inc()
		m.staked.Add(float64(c.Stake))
	}
	svc.OnRejected = func(code string) { m.rejected.WithLabelValues(code).Inc() }

	// Consumers: mensagens de aposta e feed de resultados
	wagerReader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicWagerSubmitted, cfg.ConsumerGroup)
	defer wagerReader.Close()
	resultReader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicRoundResults, cfg.ConsumerGroup)
	defer resultReader.Close()

	procs := []*consumer.Processor{
		newProcessor(log, m, cfg.TopicWagerSubmitted, wagerReader, wagerDLQ,
			consumer.WagerHandler(log.Named("wagers"), svc, led, producer.NewKafkaReplier(replyWriter))),
		newProcessor(log, m, cfg.TopicRoundResults, resultReader, resultDLQ,
			consumer.ResultHandler(log.Named("results"), manager)),
	}
	var consumersWG sync.WaitGroup
	for _, p := range procs {
		consumersWG.Add(1)
		go func(p *consumer.Processor) {
			defer consumersWG.Done()
			if err := p.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("processor stopped with error", zap.Error(err))
			}
		}(p)
	}

	// Jobs periódicos: reconciliação e reload de odds
	sched := &jobs.Jobs{
		Log:      log.Named("jobs"),
		Ledger:   led,
		Journal:  journal,
		Odds:     oddsSrc,
		Holder:   holder,
		OnReport: m.onJob,
	}
	if err := sched.Start(ctx, cfg.ReconcileSchedule, cfg.OddsReloadSchedule); err != nil {
		log.Fatal("jobs schedule", zap.Error(err))
	}

	// WebSocket: recebe do Redis e entrega para quem acompanha a sala
	hub := ws.NewHub(func(r *http.Request) bool { return true })
	ws.StartRedisSubscriber(ctx, log.Named("ws"), redisClient, cfg.RedisPubSubChannel, hub)

	api := &httpapi.API{
		Log:         log.Named("http"),
		Intake:      svc,
		Wallet:      led,
		Rooms:       manager,
		Settlements: store,
		Odds:        holder,
		WS:          hub.HandleWS,
	}
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("http listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.Error(err))
			cancel()
		}
	}()

	// métricas e health
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	})
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	log.Info("wager-engine started", zap.Strings("rooms", cfg.Rooms))
	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)

	// As salas não são encerradas: a numeração continua no próximo start
	consumersWG.Wait()
	manager.Wait()
	sched.Stop()
	stopNotify()
	notifyWG.Wait()
	log.Info("wager-engine stopped")
}

func newProcessor(log *zap.Logger, m *serviceMetrics, topic string, r consumer.MessageReader, dlq consumer.MessageWriter, h consumer.Handler) *consumer.Processor {
	return &consumer.Processor{
		Log:        log.With(zap.String("topic", topic)),
		Reader:     r,
		DLQ:        dlq,
		Handle:     h,
		Retries:    3,
		Backoff:    300 * time.Millisecond,
		OnConsumed: func() { m.consumed.WithLabelValues(topic).Inc() },
		OnError:    func(stage string) { m.errorsBy.WithLabelValues(topic, stage).Inc() },
	}
}

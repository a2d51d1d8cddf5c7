package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	simulator "github.com/radieske/round-wager-engine/internal/result-simulator"
	"github.com/radieske/round-wager-engine/internal/shared/config"
	"github.com/radieske/round-wager-engine/internal/shared/kafka"
	"github.com/radieske/round-wager-engine/internal/shared/logger"
	"github.com/radieske/round-wager-engine/internal/shared/metrics"
	"github.com/radieske/round-wager-engine/internal/wager-engine/consumer"
)

var (
	// Métricas Prometheus do feed simulado
	resultsPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "result_simulator_results_published_total",
		Help: "Resultados publicados",
	})
	resultsWithheld = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "result_simulator_results_withheld_total",
		Help: "Rodadas deixadas sem resultado",
	})
	errorsBy = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "result_simulator_errors_total",
		Help: "Erros por estágio",
	}, []string{"stage"})
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	prometheus.MustRegister(resultsPublished, resultsWithheld, errorsBy)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Lê os avisos de fase do motor e publica no tópico de resultados
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicRoundPhaseEvents, cfg.ServiceName)
	defer reader.Close()
	writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicRoundResults)
	defer writer.Close()

	sim := simulator.New(log, writer, cfg.ServiceName, cfg.ResultDelay, cfg.ResultDropPercent)
	sim.OnPublished = resultsPublished.Inc
	sim.OnDropped = resultsWithheld.Inc

	proc := &consumer.Processor{
		Log:     log,
		Reader:  reader,
		Handle:  sim.Handle,
		Retries: 1,
		Backoff: 300 * time.Millisecond,
		OnError: func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	srv := metrics.StartMetricsServer(cfg.MetricsPort, nil)
	log.Info("metrics/health listening", zap.String("addr", srv.Addr))

	log.Info("result-simulator started",
		zap.String("consume", cfg.TopicRoundPhaseEvents),
		zap.String("publish", cfg.TopicRoundResults),
		zap.Duration("max_delay", cfg.ResultDelay),
		zap.Int("drop_percent", cfg.ResultDropPercent),
	)
	if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("processor stopped with error", zap.Error(err))
	}
	sim.Wait()

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("result-simulator stopped")
}

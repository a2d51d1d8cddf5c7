package consumer

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageReader é o subconjunto do *kafka.Reader usado aqui
// Commit explícito: a mensagem só é confirmada depois de tratada ou enviada à DLQ
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Handler trata uma mensagem; erros marcados com Permanent não são repetidos
type Handler func(ctx context.Context, m kafka.Message) error

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marca um erro que não melhora com retry (payload inválido, regra de negócio)
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Processor consome um tópico, aplica o Handler com retry e manda para a DLQ o que não passou
// Callbacks de métricas podem ser usadas para monitoramento de cada etapa
type Processor struct {
	Log     *zap.Logger
	Reader  MessageReader
	DLQ     MessageWriter // opcional
	Handle  Handler
	Retries int
	Backoff time.Duration

	OnConsumed func()       // métricas (counter++)
	OnError    func(string) // métricas por fase

	sleep func(time.Duration)
}

// Run inicia o loop principal de consumo
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err() // encerra se o contexto for cancelado
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			p.fail("read")
			p.wait(500 * time.Millisecond)
			continue
		}

		if p.OnConsumed != nil {
			p.OnConsumed()
		}

		p.process(ctx, m)

		if err := p.Reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
			p.fail("commit")
		}
	}
}

func (p *Processor) process(ctx context.Context, m kafka.Message) {
	err := p.Handle(ctx, m)
	if err == nil {
		return
	}
	if IsPermanent(err) {
		p.Log.Warn("message rejected", zap.String("key", string(m.Key)), zap.Error(err))
		p.fail("handle")
		p.deadLetter(ctx, m)
		return
	}

	// Retry simples: tenta até Retries vezes antes de enviar para DLQ
	for i := 0; i < p.Retries; i++ {
		p.wait(p.Backoff * time.Duration(i+1))
		if ctx.Err() != nil {
			return
		}
		if err = p.Handle(ctx, m); err == nil {
			return
		}
		if IsPermanent(err) {
			break
		}
	}
	p.Log.Error("message failed after retries", zap.String("key", string(m.Key)), zap.Int("retries", p.Retries), zap.Error(err))
	p.fail("retry")
	p.deadLetter(ctx, m)
}

func (p *Processor) deadLetter(ctx context.Context, m kafka.Message) {
	if p.DLQ == nil {
		return
	}
	dl := kafka.Message{Key: m.Key, Value: m.Value, Headers: m.Headers, Time: time.Now()}
	if err := p.DLQ.WriteMessages(ctx, dl); err != nil {
		p.Log.Error("dlq write failed", zap.String("key", string(m.Key)), zap.Error(err))
		p.fail("dlq")
	}
}

func (p *Processor) fail(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}

func (p *Processor) wait(d time.Duration) {
	if p.sleep != nil {
		p.sleep(d)
		return
	}
	time.Sleep(d)
}

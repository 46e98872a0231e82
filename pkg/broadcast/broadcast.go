package broadcast

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/pandamime100hp/iracingtelemotron/log"
)

// Server fans out values from a single source channel to any number of
// subscribers. Slow subscribers are skipped after a short grace period so a
// stalled consumer can never back up the ingestion loop.
type Server[T any] interface {
	Subscribe() <-chan T
	CancelSubscription(<-chan T)
	Close()
}

type server[T any] struct {
	name           string
	source         <-chan T
	listeners      []chan T
	addListener    chan chan T
	removeListener chan (<-chan T)
	ctx            context.Context
	cancel         context.CancelFunc
	l              *log.Logger
	numRcv         int
	numSnd         int
	numSkip        int
}

func NewServer[T any](name string, source <-chan T) Server[T] {
	ctx, cancel := context.WithCancel(context.Background())
	b := &server[T]{
		name:           name,
		source:         source,
		addListener:    make(chan chan T),
		removeListener: make(chan (<-chan T)),
		ctx:            ctx,
		cancel:         cancel,
		l:              log.Default().Named("broadcast"),
	}
	b.setupMetrics()
	go b.serve()
	return b
}

func (b *server[T]) Subscribe() <-chan T {
	ch := make(chan T)
	b.addListener <- ch
	return ch
}

func (b *server[T]) CancelSubscription(ch <-chan T) {
	b.removeListener <- ch
}

func (b *server[T]) Close() {
	b.l.Info("closing broadcast server",
		log.String("name", b.name),
		log.Int("rcv", b.numRcv), log.Int("snd", b.numSnd), log.Int("skip", b.numSkip))
	b.cancel()
}

func (b *server[T]) setupMetrics() {
	meter := otel.GetMeterProvider().Meter(fmt.Sprintf("itm.broadcast.%s", b.name))
	register := func(metricName, desc string, valueProvider func() int64) {
		if _, err := meter.Int64ObservableGauge(
			metricName,
			metric.WithDescription(desc),
			metric.WithUnit("{count}"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(valueProvider(),
					metric.WithAttributes(attribute.String("name", b.name)))
				return nil
			})); err != nil {
			b.l.Error("failed to register metric",
				log.String("metric", metricName),
				log.ErrorField(err))
		}
	}
	register("itm.broadcast.rcv", "Number of received messages",
		func() int64 { return int64(b.numRcv) })
	register("itm.broadcast.snd", "Number of sent messages",
		func() int64 { return int64(b.numSnd) })
	register("itm.broadcast.skip", "Number of skipped messages",
		func() int64 { return int64(b.numSkip) })
	register("itm.broadcast.listener", "Number of listeners",
		func() int64 { return int64(len(b.listeners)) })
}

func (b *server[T]) serve() {
	defer func() {
		for _, listener := range b.listeners {
			if listener != nil {
				close(listener)
			}
		}
	}()
	for {
		select {
		case <-b.ctx.Done():
			return
		case ch := <-b.addListener:
			b.listeners = append(b.listeners, ch)
		case ch := <-b.removeListener:
			for i, listener := range b.listeners {
				if listener == ch {
					b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
					close(listener)
					break
				}
			}
		case msg := <-b.source:
			b.numRcv++
			for _, listener := range b.listeners {
				select {
				case listener <- msg:
					b.numSnd++
				// don't wait too long: a stuck listener must not stall
				// the remaining subscribers
				case <-time.After(50 * time.Millisecond):
					b.numSkip++
				}
			}
		}
	}
}

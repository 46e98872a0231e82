package publish

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/ohler55/ojg/oj"

	"github.com/pandamime100hp/iracingtelemotron/log"
	"github.com/pandamime100hp/iracingtelemotron/pkg/model"
)

const DefaultSubject = "telemetry.samples"

// Publisher relays extracted samples to a NATS server so external consumers
// (overlays, loggers) can follow the live pedal data.
type Publisher struct {
	conn    *nats.Conn
	subject string
	l       *log.Logger
}

type Option func(p *Publisher)

func WithSubject(subject string) Option {
	return func(p *Publisher) {
		p.subject = subject
	}
}

func New(url string, opts ...Option) (*Publisher, error) {
	conn, err := nats.Connect(url, nats.Name("iracingtelemotron"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	ret := &Publisher{
		conn:    conn,
		subject: DefaultSubject,
		l:       log.Default().Named("publish"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret, nil
}

// wire shape for one published sample
type wireSample struct {
	TS          int64   `json:"ts"`
	ThrottlePct float64 `json:"throttlePct"`
	BrakePct    float64 `json:"brakePct"`
}

// Run publishes every sample read from samples until ctx is canceled or the
// channel is closed. Publish failures are logged and skipped; the stream
// itself is lossy by nature.
func (p *Publisher) Run(ctx context.Context, samples <-chan model.Sample) {
	p.l.Info("publishing samples", log.String("subject", p.subject))
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-samples:
			if !ok {
				return
			}
			data, err := oj.Marshal(wireSample{
				TS:          sample.Timestamp.UnixMilli(),
				ThrottlePct: sample.ThrottlePct,
				BrakePct:    sample.BrakePct,
			})
			if err != nil {
				p.l.Error("could not marshal sample", log.ErrorField(err))
				continue
			}
			if err := p.conn.Publish(p.subject, data); err != nil {
				p.l.Error("publish failed", log.ErrorField(err))
			}
		}
	}
}

func (p *Publisher) Close() {
	p.conn.Close()
}

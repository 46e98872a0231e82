package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pandamime100hp/iracingtelemotron/log"
	"github.com/pandamime100hp/iracingtelemotron/pkg/model"
	"github.com/pandamime100hp/iracingtelemotron/pkg/telemetry/decode"
	"github.com/pandamime100hp/iracingtelemotron/pkg/telemetry/frame"
	"github.com/pandamime100hp/iracingtelemotron/pkg/telemetry/history"
	"github.com/pandamime100hp/iracingtelemotron/pkg/telemetry/player"
)

const (
	DefaultPort        = 50123
	DefaultReadTimeout = 100 * time.Millisecond
)

// Service owns the receive/decode/extract/store cycle. One goroutine runs
// the loop end-to-end; consumers only ever read snapshots of the history
// buffer or subscribe to the sample channel.
type Service struct {
	addr          string
	port          int
	readTimeout   time.Duration
	statsInterval time.Duration
	history       *history.Buffer
	sampleChan    chan<- model.Sample
	l             *log.Logger
	stats         *stats

	mu          sync.Mutex
	conn        *net.UDPConn
	receivedAny atomic.Bool
	resolved    atomic.Bool
}

// Status holds the read-only flags exposed to the rendering side.
type Status struct {
	HasReceivedAnyPacket bool `json:"hasReceivedAnyPacket"`
	PlayerCarResolved    bool `json:"playerCarResolved"`
}

type Option func(s *Service)

func WithAddress(addr string, port int) Option {
	return func(s *Service) {
		s.addr = addr
		s.port = port
	}
}

func WithHistory(buffer *history.Buffer) Option {
	return func(s *Service) {
		s.history = buffer
	}
}

// WithReadTimeout bounds how long a single receive may block so the loop
// stays responsive to cancellation between packets.
func WithReadTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		s.readTimeout = timeout
	}
}

func WithStatsInterval(interval time.Duration) Option {
	return func(s *Service) {
		s.statsInterval = interval
	}
}

// WithSampleChan registers a channel that receives every stored sample.
// Sends are non-blocking; a full channel just misses that sample.
func WithSampleChan(ch chan<- model.Sample) Option {
	return func(s *Service) {
		s.sampleChan = ch
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Service) {
		s.l = l
	}
}

func New(opts ...Option) *Service {
	ret := &Service{
		addr:          "0.0.0.0",
		port:          DefaultPort,
		readTimeout:   DefaultReadTimeout,
		statsInterval: time.Minute,
		l:             log.Default().Named("ingest"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.history == nil {
		ret.history = history.New(history.DefaultCapacity)
	}
	ret.stats = newStats(ret.l)
	return ret
}

func (s *Service) History() *history.Buffer { return s.history }

func (s *Service) Status() Status {
	return Status{
		HasReceivedAnyPacket: s.receivedAny.Load(),
		PlayerCarResolved:    s.resolved.Load(),
	}
}

// LocalAddr returns the bound socket address, or nil before Run has bound.
func (s *Service) LocalAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Run binds the socket and drives the ingestion loop until ctx is canceled
// or the socket fails. A bind failure is returned immediately; per-packet
// failures are counted and never terminate the loop.
func (s *Service) Run(ctx context.Context) error {
	udpAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(s.addr, strconv.Itoa(s.port)))
	if err != nil {
		return fmt.Errorf("resolve bind address: %w", err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("bind udp socket: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer conn.Close()

	s.l.Info("listening for telemetry", log.String("addr", conn.LocalAddr().String()))
	go s.stats.logPeriodically(ctx, s.statsInterval)

	buf := make([]byte, 65535)
	for {
		select {
		case <-ctx.Done():
			s.l.Info("ingestion loop stopping")
			return nil
		default:
			//nolint:errcheck // deadline on a healthy socket can't fail
			conn.SetReadDeadline(time.Now().Add(s.readTimeout))
			n, _, err := conn.ReadFromUDP(buf)
			if err != nil {
				var netErr net.Error
				if errors.As(err, &netErr) && netErr.Timeout() {
					continue
				}
				if ctx.Err() != nil {
					return nil
				}
				// a broken socket cannot self-heal, surface it
				return fmt.Errorf("udp receive: %w", err)
			}
			s.receivedAny.Store(true)
			s.processDatagram(buf[:n])
		}
	}
}

// processDatagram runs the synchronous frame/decode/resolve/extract/push
// pipeline for one packet. Failures are classified and contained here;
// retry is implicit via the next packet of the broadcast.
func (s *Service) processDatagram(raw []byte) {
	s.stats.packets.Add(1)

	pkt, err := frame.Frame(raw)
	if err != nil {
		s.stats.malformed.Add(1)
		s.l.Debug("dropping datagram", log.ErrorField(err))
		return
	}
	if !pkt.Telemetry() {
		s.stats.skipped.Add(1)
		return
	}

	snapshot, err := decode.Decode(pkt.Body)
	if err != nil {
		switch {
		case errors.Is(err, decode.ErrEncoding):
			s.stats.encoding.Add(1)
		default:
			s.stats.schema.Add(1)
		}
		s.l.Debug("dropping telemetry packet", log.ErrorField(err))
		return
	}

	idx, err := player.Resolve(snapshot)
	if err != nil {
		// player car not loaded into session data yet
		s.stats.unresolved.Add(1)
		return
	}

	sample, err := player.Extract(snapshot, idx)
	if err != nil {
		s.stats.indexMismatch.Add(1)
		s.l.Warn("participant/telemetry index mismatch", log.ErrorField(err))
		return
	}

	s.history.Push(sample)
	s.resolved.Store(true)
	s.stats.samples.Add(1)

	if s.sampleChan != nil {
		select {
		case s.sampleChan <- sample:
		default:
		}
	}
}

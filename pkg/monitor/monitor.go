package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/ohler55/ojg/oj"
	"github.com/samber/lo"

	"github.com/pandamime100hp/iracingtelemotron/log"
	"github.com/pandamime100hp/iracingtelemotron/pkg/broadcast"
	"github.com/pandamime100hp/iracingtelemotron/pkg/model"
	"github.com/pandamime100hp/iracingtelemotron/pkg/telemetry/ingest"
)

// SampleSource is the read side of the history buffer.
type SampleSource interface {
	Snapshot() []model.Sample
}

// StatusSource exposes the display-only ingestion flags.
type StatusSource interface {
	Status() ingest.Status
}

// Server is the rendering collaborator: a small HTTP server with a
// go-echarts pedal chart, JSON snapshot/status endpoints and an optional
// live sample stream. It only ever reads history snapshots.
type Server struct {
	addr    string
	samples SampleSource
	status  StatusSource
	bcst    broadcast.Server[model.Sample]
	l       *log.Logger
	srv     *http.Server
}

type Option func(s *Server)

// WithBroadcast enables the /api/live SSE endpoint.
func WithBroadcast(b broadcast.Server[model.Sample]) Option {
	return func(s *Server) {
		s.bcst = b
	}
}

func New(addr string, samples SampleSource, status StatusSource, opts ...Option) *Server {
	ret := &Server{
		addr:    addr,
		samples: samples,
		status:  status,
		l:       log.Default().Named("monitor"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Start binds the monitor address and serves in the background. Bind
// failures are returned so startup aborts visibly.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("bind monitor address: %w", err)
	}
	s.l.Info("monitor listening", log.String("addr", ln.Addr().String()))
	s.srv = &http.Server{Handler: s.Routes(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if serveErr := s.srv.Serve(ln); serveErr != nil &&
			!errors.Is(serveErr, http.ErrServerClosed) {
			s.l.Error("monitor server stopped", log.ErrorField(serveErr))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleChart)
	mux.HandleFunc("/api/samples", s.handleSamples)
	mux.HandleFunc("/api/status", s.handleStatus)
	if s.bcst != nil {
		mux.HandleFunc("/api/live", s.handleLive)
	}
	return mux
}

// handleChart renders the throttle/brake history as a line chart, x-axis in
// seconds relative to the most recent sample.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	samples := s.samples.Snapshot()
	status := s.status.Status()

	var latest time.Time
	if len(samples) > 0 {
		latest = samples[len(samples)-1].Timestamp
	}
	xAxis := lo.Map(samples, func(sample model.Sample, _ int) string {
		return fmt.Sprintf("%.1f", sample.Timestamp.Sub(latest).Seconds())
	})
	throttle := lo.Map(samples, func(sample model.Sample, _ int) opts.LineData {
		return opts.LineData{Value: sample.ThrottlePct}
	})
	brake := lo.Map(samples, func(sample model.Sample, _ int) opts.LineData {
		return opts.LineData{Value: sample.BrakePct}
	})

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Trail Braking Analysis",
			Theme:     "dark",
			Width:     "1200px",
			Height:    "600px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title: "Trail Braking Analysis",
			Subtitle: fmt.Sprintf("receiving=%t resolved=%t samples=%d",
				status.HasReceivedAnyPacket, status.PlayerCarResolved, len(samples)),
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "seconds before latest"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "% input", Min: 0, Max: 100}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	line.SetXAxis(xAxis).
		AddSeries("throttle", throttle).
		AddSeries("brake", brake).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err),
			http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	//nolint:errcheck // best effort response write
	w.Write(buf.Bytes())
}

func (s *Server) handleSamples(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.samples.Snapshot())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.status.Status())
}

// handleLive streams samples as server-sent events until the client leaves.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	sub := s.bcst.Subscribe()
	defer s.bcst.CancelSubscription(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case sample, open := <-sub:
			if !open {
				return
			}
			data, err := oj.Marshal(sample)
			if err != nil {
				s.l.Error("could not marshal sample", log.ErrorField(err))
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	data, err := oj.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	//nolint:errcheck // best effort response write
	w.Write(data)
}

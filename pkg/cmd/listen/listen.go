package listen

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // by design
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pandamime100hp/iracingtelemotron/log"
	"github.com/pandamime100hp/iracingtelemotron/pkg/broadcast"
	"github.com/pandamime100hp/iracingtelemotron/pkg/config"
	"github.com/pandamime100hp/iracingtelemotron/pkg/model"
	"github.com/pandamime100hp/iracingtelemotron/pkg/monitor"
	"github.com/pandamime100hp/iracingtelemotron/pkg/publish"
	"github.com/pandamime100hp/iracingtelemotron/pkg/telemetry/history"
	"github.com/pandamime100hp/iracingtelemotron/pkg/telemetry/ingest"
)

//nolint:funlen // by design
func NewListenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "receives iRacing telemetry broadcasts and records pedal history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startListener()
		},
	}
	cmd.Flags().StringVar(&config.Addr,
		"addr",
		"0.0.0.0",
		"bind address for the UDP listener")
	cmd.Flags().IntVarP(&config.Port,
		"port",
		"p",
		ingest.DefaultPort,
		"UDP port the simulator broadcasts on")
	cmd.Flags().IntVar(&config.BufferSize,
		"buffer-size",
		history.DefaultCapacity,
		"capacity of the rolling sample history")
	cmd.Flags().StringVar(&config.ReadTimeout,
		"read-timeout",
		"100ms",
		"socket read timeout (keeps the loop responsive to shutdown)")
	cmd.Flags().StringVar(&config.StatsInterval,
		"stats-interval",
		"1m",
		"interval for ingestion stats log output")
	cmd.Flags().StringVar(&config.LogLevel,
		"log-level",
		"info",
		"controls the log level (debug, info, warn, error, fatal)")
	cmd.Flags().StringVar(&config.LogFormat,
		"log-format",
		"json",
		"controls the log output format")
	cmd.Flags().StringVar(&config.LogConfig,
		"log-config",
		"",
		"path to a zapfilter rules file")
	cmd.Flags().StringVar(&config.NatsURL,
		"nats-url",
		"",
		"if set, samples are published to this NATS server")
	cmd.Flags().StringVar(&config.MonitorAddr,
		"monitor-addr",
		"",
		"if set, the HTTP monitor listens on this address")
	cmd.Flags().BoolVar(&config.EnableTelemetry,
		"enable-telemetry",
		false,
		"enables telemetry")
	cmd.Flags().StringVar(&config.TelemetryEndpoint,
		"telemetry-endpoint",
		"localhost:4317",
		"endpoint that receives open telemetry data")
	cmd.Flags().IntVar(&config.ProfilingPort,
		"profiling-port",
		0,
		"port to use for providing profiling data")
	return cmd
}

func parseLogLevel(l string, defaultVal log.Level) log.Level {
	level, err := log.ParseLevel(l)
	if err != nil {
		return defaultVal
	}
	return level
}

func parseDuration(val string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func setupLogger() *log.Logger {
	opts := []log.Option{log.WithCaller(true), log.AddCallerSkip(1)}
	if config.LogConfig != "" {
		if rules, err := os.ReadFile(config.LogConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Could not read log config %s: %v\n", config.LogConfig, err)
		} else if opt, parseErr := log.ParseFilterRules(string(rules)); parseErr != nil {
			fmt.Fprintf(os.Stderr, "Invalid log config %s: %v\n", config.LogConfig, parseErr)
		} else {
			opts = append(opts, opt)
		}
	}
	switch config.LogFormat {
	case "json":
		return log.New(
			os.Stderr,
			parseLogLevel(config.LogLevel, log.InfoLevel),
			opts...)
	default:
		return log.DevLogger(
			os.Stderr,
			parseLogLevel(config.LogLevel, log.DebugLevel),
			opts...)
	}
}

//nolint:funlen,cyclop // by design
func startListener() error {
	log.ResetDefault(setupLogger())

	log.Debug("Config:",
		log.String("addr", config.Addr),
		log.Int("port", config.Port),
		log.Int("bufferSize", config.BufferSize),
		log.String("natsUrl", config.NatsURL),
		log.String("monitorAddr", config.MonitorAddr),
	)

	if config.ProfilingPort > 0 {
		log.Info("Starting profiling server on port", log.Int("port", config.ProfilingPort))
		go func() {
			//nolint:gosec // by design
			err := http.ListenAndServe(
				fmt.Sprintf("localhost:%d", config.ProfilingPort),
				nil)
			if err != nil {
				log.Error("Profiling server stopped", log.ErrorField(err))
			}
		}()
	}

	var telemetry *config.Telemetry
	if config.EnableTelemetry {
		log.Info("Enabling telemetry")
		var err error
		if telemetry, err = config.SetupTelemetry(context.Background()); err != nil {
			log.Warn("Could not setup telemetry", log.ErrorField(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	buffer := history.New(config.BufferSize)
	sampleChan := make(chan model.Sample)
	bcst := broadcast.NewServer("samples", sampleChan)

	svc := ingest.New(
		ingest.WithAddress(config.Addr, config.Port),
		ingest.WithHistory(buffer),
		ingest.WithReadTimeout(parseDuration(config.ReadTimeout, ingest.DefaultReadTimeout)),
		ingest.WithStatsInterval(parseDuration(config.StatsInterval, time.Minute)),
		ingest.WithSampleChan(sampleChan),
	)

	if config.NatsURL != "" {
		pub, err := publish.New(config.NatsURL)
		if err != nil {
			log.Error("could not connect to NATS", log.ErrorField(err))
			return err
		}
		defer pub.Close()
		go pub.Run(ctx, bcst.Subscribe())
	}

	var mon *monitor.Server
	if config.MonitorAddr != "" {
		mon = monitor.New(config.MonitorAddr, buffer, svc, monitor.WithBroadcast(bcst))
		if err := mon.Start(); err != nil {
			log.Error("could not start monitor", log.ErrorField(err))
			return err
		}
	}

	log.Info("Starting ingestion")
	err := svc.Run(ctx)
	if err != nil {
		log.Error("ingestion terminated", log.ErrorField(err))
	}

	if mon != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		//nolint:errcheck // nothing left to do with a failed shutdown
		mon.Shutdown(shutdownCtx)
		cancel()
	}
	bcst.Close()
	if telemetry != nil {
		telemetry.Shutdown()
	}

	log.Info("Listener terminated")
	return err
}

package config

// this holds the resolved configuration values from CLI
var (
	Addr              string // bind address for the UDP listener
	Port              int    // UDP port the simulator broadcasts on
	BufferSize        int    // capacity of the rolling sample history
	ReadTimeout       string // socket read timeout (duration, e.g. 100ms)
	StatsInterval     string // interval for ingestion stats log output
	LogLevel          string // sets the log level (zap log level values)
	LogFormat         string // text vs json
	LogConfig         string // path to zapfilter rules file
	NatsURL           string // if set, samples are published to this NATS server
	MonitorAddr       string // if set, the HTTP monitor listens on this address
	EnableTelemetry   bool   // enable telemetry
	TelemetryEndpoint string // endpoint for telemetry
	ProfilingPort     int    // port for profiling
)

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/evidlo/rosen/adapter"
	"github.com/evidlo/rosen/adapter/redis"
	"github.com/evidlo/rosen/adapter/webhook"
	"github.com/evidlo/rosen/cli/config"
	"github.com/evidlo/rosen/envelope"
	"github.com/evidlo/rosen/iox"
	"github.com/evidlo/rosen/link"
	"github.com/evidlo/rosen/lode"
	"github.com/evidlo/rosen/log"
	"github.com/evidlo/rosen/metrics"
	"github.com/evidlo/rosen/runtime"
	"github.com/evidlo/rosen/types"
)

// stringOpt returns the flag value when it was set explicitly or the
// config value is empty, and the config value otherwise.
func stringOpt(c *cli.Context, name, cfgValue string) string {
	if c.IsSet(name) || cfgValue == "" {
		return c.String(name)
	}
	return cfgValue
}

func intOpt(c *cli.Context, name string, cfgValue int) int {
	if c.IsSet(name) || cfgValue == 0 {
		return c.Int(name)
	}
	return cfgValue
}

func durationOpt(c *cli.Context, name string, cfgValue config.Duration) time.Duration {
	if c.IsSet(name) || cfgValue.Duration == 0 {
		return c.Duration(name)
	}
	return cfgValue.Duration
}

// loadConfig reads --config, or ./rosen.yaml when present.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadDefault(c.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), runtime.ExitCodeFailure)
	}
	return cfg, nil
}

// endpointFrom resolves the ground link endpoint. --serial selects the
// serial transport; otherwise the config transport applies.
func endpointFrom(c *cli.Context, cfg *config.Config) link.Endpoint {
	serialPort := stringOpt(c, "serial", cfg.Link.SerialPort)
	if c.IsSet("serial") || (cfg.Link.Transport == link.TransportSerial && serialPort != "") {
		return link.Endpoint{
			Transport: link.TransportSerial,
			Address:   serialPort,
			Baud:      intOpt(c, "baud", cfg.Link.Baud),
		}
	}
	ep := link.TCPEndpoint(stringOpt(c, "host", cfg.Link.Host), intOpt(c, "port", cfg.Link.Port))
	ep.DialTimeout = cfg.Link.DialTimeout.Duration
	return ep
}

// linkConfigFrom resolves acknowledgement settings.
func linkConfigFrom(c *cli.Context, cfg *config.Config) (link.Config, error) {
	policy, err := link.ParseRetryPolicy(stringOpt(c, "retry", cfg.Ack.Policy))
	if err != nil {
		return link.Config{}, err
	}
	lc := link.Config{
		AckTimeout:  durationOpt(c, "ack-timeout", cfg.Ack.Timeout),
		Retry:       policy,
		MaxAttempts: intOpt(c, "max-attempts", cfg.Ack.MaxAttempts),
	}
	if cfg.Ack.Command != "" {
		ack, err := envelope.ParseCommand(cfg.Ack.Command)
		if err != nil {
			return link.Config{}, fmt.Errorf("ack.command: %w", err)
		}
		lc.AckCommand = ack
	}
	return lc, nil
}

// buildArchive opens the configured archive, or returns nil when no
// storage backend is configured.
func buildArchive(ctx context.Context, storage config.StorageConfig, meta *types.SessionMeta, collector *metrics.Collector) (*lode.Archive, error) {
	cfg := lode.ConfigFor(meta)
	if storage.Dataset != "" {
		cfg.Dataset = storage.Dataset
	}
	opts := []lode.Option{lode.WithMetrics(collector)}

	switch storage.Backend {
	case "":
		return nil, nil
	case "fs":
		return lode.NewArchive(cfg, storage.Path, opts...)
	case "s3":
		bucket, prefix := lode.ParseS3Path(storage.Path)
		return lode.NewS3Archive(ctx, cfg, lode.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       storage.Region,
			Endpoint:     storage.Endpoint,
			UsePathStyle: storage.S3PathStyle,
		}, opts...)
	}
	return nil, fmt.Errorf("unsupported storage backend: %s (must be fs or s3)", storage.Backend)
}

// buildAdapter creates the configured completion notifier, or nil.
func buildAdapter(ac config.AdapterConfig) (adapter.Adapter, error) {
	retries := -1
	if ac.Retries != nil {
		retries = *ac.Retries
	}

	switch ac.Type {
	case "":
		return nil, nil
	case "redis":
		if retries < 0 {
			retries = redis.DefaultRetries
		}
		a, err := redis.New(redis.Config{
			URL:       ac.URL,
			Channel:   ac.Channel,
			Timeout:   ac.Timeout.Duration,
			Retries:   retries,
			KeyPrefix: ac.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	case "webhook":
		if retries < 0 {
			retries = webhook.DefaultRetries
		}
		a, err := webhook.New(webhook.Config{
			URL:     ac.URL,
			Headers: ac.Headers,
			Timeout: ac.Timeout.Duration,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	}
	return nil, fmt.Errorf("unsupported adapter type: %s (must be redis or webhook)", ac.Type)
}

// sessionSetup is everything a session command needs besides its task.
type sessionSetup struct {
	meta      *types.SessionMeta
	logger    *log.Logger
	collector *metrics.Collector
	archive   *lode.Archive
	session   *runtime.Session
	closers   []func() error
}

// Close releases the archive and notifier.
func (s *sessionSetup) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("close failed", map[string]any{"error": err.Error()})
		}
	}
	iox.DiscardErr(s.logger.Sync)
}

// newSessionSetup wires config, flags, logging, metrics, archive and
// notifier into a runtime session for mode.
func newSessionSetup(c *cli.Context, cfg *config.Config, mode types.SessionMode) (*sessionSetup, error) {
	lc, err := linkConfigFrom(c, cfg)
	if err != nil {
		return nil, cli.Exit(err.Error(), runtime.ExitCodeFailure)
	}
	ep := endpointFrom(c, cfg)

	meta := types.NewSessionMeta(stringOpt(c, "station", cfg.Station), mode)
	logger := log.NewLogger(meta)
	logger.SetDebug(c.Bool("debug"))
	collector := metrics.NewCollector(meta.Station, ep.Transport, meta.SessionID)

	setup := &sessionSetup{meta: meta, logger: logger, collector: collector}

	archive, err := buildArchive(c.Context, cfg.Storage, meta, collector)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("failed to initialize archive: %v", err), runtime.ExitCodeFailure)
	}
	if archive != nil {
		setup.archive = archive
		setup.closers = append(setup.closers, archive.Close)
	}

	notifier, err := buildAdapter(cfg.Adapter)
	if err != nil {
		setup.Close()
		return nil, cli.Exit(fmt.Sprintf("failed to initialize adapter: %v", err), runtime.ExitCodeFailure)
	}
	sc := &runtime.SessionConfig{
		Meta:           meta,
		Endpoint:       ep,
		Link:           lc,
		ObservationLog: stringOpt(c, "observe-log", cfg.Observe.LogFile),
		Archive:        archive,
		Collector:      collector,
		Logger:         logger,
	}
	if notifier != nil {
		sc.Adapter = notifier
		setup.closers = append(setup.closers, notifier.Close)
	}

	setup.session, err = runtime.NewSession(sc)
	if err != nil {
		setup.Close()
		return nil, err
	}
	return setup, nil
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// finish prints the summary, writes the optional report and converts the
// result into the process exit code.
func finish(c *cli.Context, result *runtime.SessionResult) error {
	if !c.Bool("quiet") {
		printSessionResult(result)
	}
	if path := c.String("report"); path != "" {
		if err := runtime.WriteSessionReport(runtime.BuildSessionReport(result), path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}
	msg := ""
	if result.Err != nil && result.Status != types.StatusStopped {
		msg = result.Err.Error()
	}
	return cli.Exit(msg, result.ExitCode)
}

func printSessionResult(result *runtime.SessionResult) {
	out := os.Stderr
	fmt.Fprintf(out, "\n=== Session Result ===\n")
	fmt.Fprintf(out, "Session ID:   %s\n", result.Meta.SessionID)
	fmt.Fprintf(out, "Station:      %s\n", result.Meta.Station)
	fmt.Fprintf(out, "Mode:         %s\n", result.Meta.Mode)
	fmt.Fprintf(out, "Status:       %s\n", result.Status)
	fmt.Fprintf(out, "Duration:     %s\n", result.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "Sent:         %d (%d retransmits)\n", result.Metrics.EnvelopesSent, result.Metrics.Retransmits)
	fmt.Fprintf(out, "Acks:         %d (%d timeouts)\n", result.Metrics.AcksReceived, result.Metrics.AckTimeouts)
	fmt.Fprintf(out, "Observed:     %d\n", result.Observed)

	if res := result.Download; res != nil {
		fmt.Fprintf(out, "\n=== Download ===\n")
		fmt.Fprintf(out, "File:         %s\n", res.Filename)
		fmt.Fprintf(out, "Frames:       %d of %d\n", res.Received, res.Expected)
		fmt.Fprintf(out, "Error reg:    %d (%s)\n", res.ErrorMax, res.Class)
		if res.Path != "" {
			fmt.Fprintf(out, "Saved to:     %s\n", res.Path)
		}
	}
}

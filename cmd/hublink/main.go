// hublink keeps one device session with an Azure IoT Hub alive.
//
// It connects over MQTT with a shared access signature, subscribes to
// cloud-to-device notifications and direct methods, answers methods,
// and publishes periodic telemetry until stopped or until the configured
// message count is reached.
//
// Exit codes: 0 on normal completion, 2 on usage errors, 4 on any fatal
// error.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/nerrad567/hublink/internal/backoff"
	"github.com/nerrad567/hublink/internal/credential"
	"github.com/nerrad567/hublink/internal/infrastructure/config"
	"github.com/nerrad567/hublink/internal/infrastructure/database"
	"github.com/nerrad567/hublink/internal/infrastructure/influxdb"
	"github.com/nerrad567/hublink/internal/infrastructure/logging"
	"github.com/nerrad567/hublink/internal/infrastructure/mqtt"
	"github.com/nerrad567/hublink/internal/iothub"
	"github.com/nerrad567/hublink/internal/outbox"
	"github.com/nerrad567/hublink/internal/router"
	"github.com/nerrad567/hublink/internal/session"
	"github.com/nerrad567/hublink/internal/telemetry"
	"github.com/nerrad567/hublink/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Process exit codes.
const (
	exitOK    = 0
	exitUsage = 2
	exitFatal = 4
)

// exitError carries a process exit code alongside the cause.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// ExitCode returns the process exit code.
func (e *exitError) ExitCode() int { return e.code }

func usageError(err error) error { return &exitError{code: exitUsage, err: err} }

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	cancel()

	code := exitCode(err)
	if err != nil && !errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(code)
}

// exitCode maps an error returned by run to a process exit code.
func exitCode(err error) int {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return exitOK
	}
	var coded interface{ ExitCode() int }
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	return exitFatal
}

// run parses flags, wires the session and drives it until completion or
// cancellation.
//
// Parameters:
//   - ctx: Cancelled on SIGINT/SIGTERM
//   - args: Command-line arguments without the program name
//   - stdout: Destination for --version and --help output
//
// Returns:
//   - error: nil on normal completion; an error with ExitCode() 2 for
//     usage problems; any other error is fatal
func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("hublink", pflag.ContinueOnError)
	flags.SetOutput(stdout)
	configPath := flags.StringP("config", "c", "", "path to YAML configuration file (optional)")
	envFile := flags.String("env-file", ".env", "dotenv file loaded before reading the environment")
	showVersion := flags.Bool("version", false, "print version and exit")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return usageError(err)
	}
	if flags.NArg() > 0 {
		return usageError(fmt.Errorf("unexpected arguments: %v", flags.Args()))
	}
	if *showVersion {
		fmt.Fprintf(stdout, "hublink %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	if err := config.LoadEnvFile(*envFile); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("%w: %w", session.ErrConfig, err)
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting hublink", "version", version, "commit", commit, "build_date", date)

	cs, err := iothub.ParseConnectionString(cfg.Device.ConnectionString)
	if err != nil {
		return fmt.Errorf("%w: %w", session.ErrConfig, err)
	}
	if cfg.MQTT.TLS {
		if _, err := mqtt.LoadTrustAnchor(cfg.Device.TrustAnchor); err != nil {
			return fmt.Errorf("%w: %w", session.ErrConfig, err)
		}
	}

	hub := iothub.NewClient(cs.HostName, cs.DeviceID, iothub.Options{
		ModuleID:  cs.ModuleID,
		UserAgent: cfg.Device.UserAgent,
	})
	log = log.With("device_id", hub.ClientID())
	log.Info("device configured", "hub", cs.HostName, "connection_string", cs.String())

	sup := newSupervisor(cfg, hub, cs, log)

	store, closeStore, err := openOutbox(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	queue := outbox.NewPublisher(sup, store, log.With("component", "outbox"))

	scheduler := telemetry.NewScheduler(queue, telemetry.Config{
		Topic:       hub.TelemetryTopic(),
		EveryTicks:  uint64(cfg.Telemetry.EveryTicks),  // #nosec G115 -- validated >= 1
		MaxMessages: uint64(cfg.Telemetry.MaxMessages), // #nosec G115 -- validated >= 0
		Prefix:      cfg.Telemetry.Prefix,
		QoS:         byte(cfg.MQTT.QoS), // #nosec G115 -- validated 0..2
	})
	scheduler.SetLogger(log.With("component", "telemetry"))

	if cfg.Metrics.Enabled {
		metrics, err := influxdb.Connect(ctx, cfg.Metrics, hub.ClientID())
		if err != nil {
			// Metrics are optional; the session runs without them.
			log.Warn("metrics unavailable", "url", cfg.Metrics.URL, "error", err)
		} else {
			defer metrics.Close()
			metrics.SetOnError(func(err error) {
				log.Warn("metrics write failed", "error", err)
			})
			sup.SetObserver(metrics)
			scheduler.SetRecorder(metrics)
			log.Info("metrics enabled", "url", cfg.Metrics.URL, "bucket", cfg.Metrics.Bucket)
		}
	}

	commands := router.NewMux(router.Ack{})
	commands.Handle(statusMethod, statusCommand(ctx, sup, scheduler, queue))
	rt := router.New(hub, sup, router.Options{
		Commands: commands,
		Logger:   log.With("component", "router"),
	})

	runner := session.NewRunner(sup, rt, scheduler, cfg.GetTickInterval())
	runner.SetLogger(log.With("component", "loop"))
	runner.SetFlusher(queue, uint64(cfg.Telemetry.EveryTicks)) // #nosec G115 -- validated >= 1

	if err := runner.Run(ctx); err != nil {
		return err
	}

	log.Info("hublink stopped", "telemetry_sent", scheduler.Sent(), "telemetry_queued", scheduler.Queued())
	return nil
}

// newSupervisor wires the transport, credential issuer and subscriptions.
func newSupervisor(cfg *config.Config, hub *iothub.Client, cs iothub.ConnectionString, log *logging.Logger) *session.Supervisor {
	brokerHost := cfg.MQTT.Host
	if brokerHost == "" {
		brokerHost = hub.Host()
	}

	transport := mqtt.NewTransport(mqtt.Options{
		ConnectTimeout: cfg.GetConnectTimeout(),
		KeepAlive:      cfg.GetKeepAlive(),
		InboundBuffer:  cfg.MQTT.InboundBuffer,
		Logger:         log.With("component", "mqtt"),
	})
	issuer := credential.NewIssuer(hub, credential.HMACSigner{}, cs.SharedAccessKey)

	sup := session.NewSupervisor(session.SupervisorConfig{
		Connection: mqtt.ConnectionConfig{
			Host:        brokerHost,
			Port:        cfg.MQTT.Port,
			TLS:         cfg.MQTT.TLS,
			TrustAnchor: cfg.Device.TrustAnchor,
			ClientID:    hub.ClientID(),
			Username:    hub.Username(),
		},
		TokenTTL:      cfg.GetTokenTTL(),
		RenewFraction: cfg.Session.RenewFraction,
		Backoff: backoff.Policy{
			Base:      millis(cfg.Reconnect.InitialDelay),
			Cap:       millis(cfg.Reconnect.MaxDelay),
			MaxJitter: millis(cfg.Reconnect.Jitter),
		},
	}, transport, issuer, session.NewSubscriptionManager(hub.SubscribeTopics()))
	sup.SetLogger(log.With("component", "supervisor"))

	return sup
}

// openOutbox returns the configured store and a cleanup function.
// With outbox.enabled the store is SQLite-backed; otherwise in-memory.
func openOutbox(ctx context.Context, cfg *config.Config, log *logging.Logger) (outbox.Store, func(), error) {
	if !cfg.Outbox.Enabled {
		store, err := outbox.NewMemoryStore(cfg.Outbox.MaxEntries)
		if err != nil {
			return nil, func() {}, err
		}
		return store, func() {}, nil
	}

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, func() {}, fmt.Errorf("opening outbox database: %w", err)
	}
	closeDB := func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		closeDB()
		return nil, func() {}, fmt.Errorf("running migrations: %w", err)
	}

	store, err := outbox.NewSQLiteStore(db, cfg.Outbox.MaxEntries)
	if err != nil {
		closeDB()
		return nil, func() {}, err
	}

	if pending, err := store.Len(ctx); err == nil && pending > 0 {
		log.Info("outbox has pending messages", "pending", pending, "path", db.Path())
	}
	return store, closeDB, nil
}

// statusMethod is the direct method answered with a session summary.
// Every other method is acknowledged.
const statusMethod = "getStatus"

// sessionStatus is the getStatus response body.
type sessionStatus struct {
	State           string `json:"state"`
	Generation      uint64 `json:"generation"`
	TelemetrySent   uint64 `json:"telemetry_sent"`
	TelemetryQueued uint64 `json:"telemetry_queued"`
	OutboxPending   int    `json:"outbox_pending"`
}

// statusCommand answers getStatus from the driving goroutine's state.
func statusCommand(ctx context.Context, sup *session.Supervisor, sched *telemetry.Scheduler, queue *outbox.Publisher) router.CommandHandler {
	return router.CommandFunc(func(string, string, string) (int, []byte) {
		pending, err := queue.Pending(ctx)
		if err != nil {
			pending = -1
		}
		body, err := json.Marshal(sessionStatus{
			State:           sup.State().String(),
			Generation:      sup.Generation(),
			TelemetrySent:   sched.Sent(),
			TelemetryQueued: sched.Queued(),
			OutboxPending:   pending,
		})
		if err != nil {
			return 500, []byte(`{"status":"error"}`)
		}
		return router.StatusOK, body
	})
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

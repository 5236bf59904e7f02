package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sweeney/pfir-bridge/internal/command"
	"github.com/sweeney/pfir-bridge/internal/ir"
	"github.com/sweeney/pfir-bridge/internal/mqtt"
	"github.com/sweeney/pfir-bridge/internal/pfir"
	"github.com/sweeney/pfir-bridge/internal/schedule"
	"github.com/sweeney/pfir-bridge/internal/serialsrc"
	"github.com/sweeney/pfir-bridge/internal/status"
	"github.com/sweeney/pfir-bridge/internal/web"
)

// queueSize bounds commands waiting for the dispatch loop.
const queueSize = 64

// shutdownTimeout bounds how long in-flight HTTP requests may hold up exit.
const shutdownTimeout = 5 * time.Second

type serveOptions struct {
	chip        string
	pin         int
	broker      string
	clientID    string
	topicPrefix string
	serial      string
	baud        int
	httpAddr    string
	refresh     time.Duration
	heartbeat   time.Duration
	repeats     int
	repeatDelay time.Duration
	portGap     time.Duration
	channelGap  time.Duration
	dedupe      bool
}

var serveOpts serveOptions

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the IR bridge daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(serveOpts)
	},
}

func init() {
	def := pfir.DefaultConfig()
	f := serveCmd.Flags()
	f.StringVar(&serveOpts.chip, "chip", ir.DefaultChip, "GPIO chip")
	f.IntVar(&serveOpts.pin, "pin", ir.DefaultPin, "GPIO line offset driving the IR LED")
	f.StringVar(&serveOpts.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address (empty to disable)")
	f.StringVar(&serveOpts.clientID, "client-id", "pfir-bridge", "MQTT client ID")
	f.StringVar(&serveOpts.topicPrefix, "topic-prefix", mqtt.DefaultPrefix, "MQTT topic prefix")
	f.StringVar(&serveOpts.serial, "serial", "", "Serial port carrying binary commands (empty to disable)")
	f.IntVar(&serveOpts.baud, "baud", serialsrc.DefaultBaud, "Serial baud rate")
	f.StringVar(&serveOpts.httpAddr, "http", ":80", "HTTP status address (empty to disable)")
	f.DurationVar(&serveOpts.refresh, "refresh", time.Second, "Interval between full channel refreshes (0 to disable)")
	f.DurationVar(&serveOpts.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	f.IntVar(&serveOpts.repeats, "repeats", def.Repeats, "Times each command's frame is sent")
	f.DurationVar(&serveOpts.repeatDelay, "repeat-delay", def.RepeatDelay, "Delay after each repeated frame")
	f.DurationVar(&serveOpts.portGap, "port-gap", def.PortGap, "Gap between A and B frames of a single-mode refresh")
	f.DurationVar(&serveOpts.channelGap, "channel-gap", def.InterChannelDelay, "Gap after each channel during refresh")
	f.BoolVar(&serveOpts.dedupe, "dedupe", true, "Drop a command identical to the previous one")
	rootCmd.AddCommand(serveCmd)
}

func runServe(opts serveOptions) (err error) {
	logger := mustLogger()
	defer logger.Sync()

	line, err := ir.NewRealLine(opts.chip, opts.pin)
	if err != nil {
		return fmt.Errorf("init ir: %w", err)
	}
	defer func() { err = multierr.Append(err, line.Close()) }()

	engine := pfir.NewEngine(
		ir.NewSignal(line, ir.SpinDelay{SleepThreshold: ir.DefaultSleepThreshold}),
		pfir.Config{
			Repeats:           opts.repeats,
			RepeatDelay:       opts.repeatDelay,
			PortGap:           opts.portGap,
			InterChannelDelay: opts.channelGap,
		},
		logger.Named("pfir"),
	)
	queue := command.NewQueue(queueSize)

	tracker := status.NewTracker(clock.New(), status.Config{
		Chip:          opts.chip,
		Pin:           opts.pin,
		Broker:        opts.broker,
		Serial:        opts.serial,
		HTTPAddr:      opts.httpAddr,
		RefreshMs:     opts.refresh.Milliseconds(),
		Repeats:       opts.repeats,
		RepeatDelayMs: opts.repeatDelay.Milliseconds(),
		HeartbeatMs:   opts.heartbeat.Milliseconds(),
	})

	// Transports only post to the queue; the dispatch loop owns the engine.
	var (
		publisher  mqtt.Publisher
		mqttStatus mqtt.ConnectionStatus
	)
	if opts.broker != "" {
		client, cerr := mqtt.NewRealClient(mqtt.Config{
			Broker:   opts.broker,
			ClientID: opts.clientID,
			Prefix:   opts.topicPrefix,
		}, submitPayload(queue, logger.Named("mqtt")), logger.Named("mqtt"))
		if cerr != nil {
			return fmt.Errorf("init mqtt: %w", cerr)
		}
		// Publishes leave the dispatch loop; a slow broker must not delay IR.
		outbox := mqtt.NewOutbox(client, mqtt.DefaultOutboxSize, logger.Named("mqtt"))
		defer func() { err = multierr.Append(err, outbox.Close()) }()
		publisher, mqttStatus = outbox, client
		tracker.SetMQTTConnected(client.IsConnected())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if opts.serial != "" {
		src, serr := serialsrc.Open(opts.serial, opts.baud, queue, logger.Named("serial"))
		if serr != nil {
			return fmt.Errorf("init serial: %w", serr)
		}
		go func() {
			if err := src.Run(ctx); err != nil {
				logger.Errorw("serial source stopped", "error", err)
			}
		}()
		logger.Infow("reading serial commands", "port", opts.serial, "baud", opts.baud)
	}

	if opts.httpAddr != "" {
		srv := web.New(opts.httpAddr, tracker, queue, logger.Named("web"))
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorw("http server error", "error", err)
			}
		}()
		defer func() { err = multierr.Append(err, shutdownWithin(srv, shutdownTimeout)) }()
		logger.Infow("http status server listening", "addr", opts.httpAddr)
	}

	sched, err := schedule.New(logger.Named("schedule"))
	if err != nil {
		return err
	}
	var refreshC, heartbeatC <-chan time.Time
	if opts.refresh > 0 {
		if refreshC, err = sched.Every(opts.refresh, "refresh"); err != nil {
			return err
		}
	}
	if opts.heartbeat > 0 {
		if heartbeatC, err = sched.Every(opts.heartbeat, "heartbeat"); err != nil {
			return err
		}
	}
	sched.Start()
	defer func() { err = multierr.Append(err, sched.Shutdown()) }()

	d := &dispatcher{
		engine:     engine,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		dedupe:     opts.dedupe,
		now:        time.Now,
		logger:     logger,
	}
	d.publishLifecycle("STARTUP", "")

	logger.Infow("started",
		"line", fmt.Sprintf("%s:%d", opts.chip, opts.pin),
		"broker", opts.broker,
		"refresh", opts.refresh,
		"repeats", opts.repeats,
		"heartbeat", opts.heartbeat)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return d.runLoop(queue.C(), refreshC, heartbeatC, sigCh)
}

// shutdownWithin stops srv, giving up after timeout.
func shutdownWithin(srv interface{ Shutdown(context.Context) error }, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// submitPayload adapts a raw transport payload to the command queue.
func submitPayload(sink command.Sink, logger *zap.SugaredLogger) mqtt.Handler {
	return func(payload []byte) {
		cmd, err := command.Decode(payload)
		if err != nil {
			logger.Warnw("bad command payload", "payload", string(payload), "error", err)
			return
		}
		if err := sink.Submit(cmd); err != nil {
			logger.Warnw("command dropped", "command", cmd.String(), "error", err)
		}
	}
}

// dispatcher owns the engine. Every transmission happens on the goroutine
// running runLoop. publisher, mqttStatus and tracker may be nil.
type dispatcher struct {
	engine     *pfir.Engine
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	dedupe     bool
	now        func() time.Time
	logger     *zap.SugaredLogger

	last       pfir.Command
	hasLast    bool
	received   uint64
	duplicates uint64
}

func (d *dispatcher) runLoop(cmds <-chan pfir.Command, refresh, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			d.logger.Infow("shutting down", "signal", s.String())
			d.publishLifecycle("SHUTDOWN", signalName(s))
			return nil

		case cmd := <-cmds:
			d.handleCommand(cmd)
			d.updateTracker()

		case <-refresh:
			if err := d.engine.RefreshAll(); err != nil {
				d.logger.Warnw("refresh failed", "error", err)
			}
			d.updateTracker()

		case <-heartbeat:
			stats := d.engine.Stats()
			d.logger.Infow("heartbeat",
				"received", d.received,
				"applied", stats.Applied,
				"rejected", stats.Rejected,
				"frames", stats.Frames)
			d.updateTracker()
			d.publishLifecycle("HEARTBEAT", "")
		}
	}
}

func (d *dispatcher) handleCommand(cmd pfir.Command) {
	d.received++
	if d.dedupe && d.hasLast && cmd == d.last {
		d.duplicates++
		d.logger.Debugw("duplicate command dropped", "command", cmd.String())
		return
	}

	err := d.engine.Apply(cmd)
	if errors.Is(err, pfir.ErrInvalidArgument) {
		d.logger.Warnw("command rejected", "command", cmd.String(), "error", err)
		return
	}
	if err != nil {
		// The cache already holds the new value; the next refresh retries it.
		d.logger.Errorw("transmit failed", "command", cmd.String(), "error", err)
	}
	d.last, d.hasLast = cmd, true

	if d.tracker != nil {
		d.tracker.SetLastCommand(cmd)
	}
	if d.publisher == nil {
		return
	}
	event := mqtt.StateEvent{
		Timestamp: d.now(),
		Channel:   cmd.Channel,
		State:     d.engine.Channels()[cmd.Channel-1],
		Command:   cmd,
	}
	if err := d.publisher.PublishState(event); err != nil {
		d.logger.Warnw("state publish error", "error", err)
	}
}

func (d *dispatcher) updateTracker() {
	if d.tracker == nil {
		return
	}
	stats := d.engine.Stats()
	d.tracker.Update(d.engine.Channels(), status.Counts{
		Received:   d.received,
		Duplicates: d.duplicates,
		Applied:    stats.Applied,
		Rejected:   stats.Rejected,
		Refreshes:  stats.Refreshes,
		Frames:     stats.Frames,
	})
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
}

// publishLifecycle publishes a retained system event carrying a full status
// snapshot. Heartbeats are not retained.
func (d *dispatcher) publishLifecycle(event, reason string) {
	if d.publisher == nil {
		return
	}
	se := mqtt.SystemEvent{
		Timestamp: d.now(),
		Event:     event,
		Reason:    reason,
		Retained:  event != "HEARTBEAT",
	}
	if d.tracker != nil {
		d.updateTracker()
		se.RawPayload = status.FormatStatusEvent(d.tracker.Snapshot(), event, reason)
	}
	if err := d.publisher.PublishSystem(se); err != nil {
		d.logger.Warnw("system publish error", "event", event, "error", err)
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

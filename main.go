package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"go.bug.st/serial/enumerator"
	"golang.org/x/sync/errgroup"

	"i4.energy/across/osmocon/bridge"
	"i4.energy/across/osmocon/celllog"
	"i4.energy/across/osmocon/gsmtap"
	"i4.energy/across/osmocon/hdlc"
	"i4.energy/across/osmocon/modem"
	"i4.energy/across/osmocon/store"
)

func main() {
	flags := flagSet()
	if err := flags.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	if list, _ := flags.GetBool("list-ports"); list {
		if err := listPorts(os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	configPath, _ := flags.GetString("config")
	config, err := LoadConfig(WithDefaults(), WithFile(configPath), WithEnv(), WithFlags(flags))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(os.Stderr, config.LogLevel, config.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("osmocon stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("Shut down")
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger builds the process logger. The text format is meant for a
// terminal, json for log collection.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	logLevel := parseLevel(level)
	if format == "text" {
		return slog.New(log.NewWithOptions(w, log.Options{
			Level:           log.Level(logLevel),
			ReportTimestamp: true,
			TimeFormat:      time.TimeOnly,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

func listPorts(w io.Writer) error {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return fmt.Errorf("list serial ports: %w", err)
	}
	for _, p := range ports {
		if p.IsUSB {
			fmt.Fprintf(w, "%s\tusb %s:%s serial %q %s\n", p.Name, p.VID, p.PID, p.SerialNumber, p.Product)
		} else {
			fmt.Fprintf(w, "%s\n", p.Name)
		}
	}
	return nil
}

// phone tracks the modem currently owning the serial line so the bridge
// can reach it across reboots.
type phone struct {
	current atomic.Pointer[modem.Modem]
}

// toPhone is the bridge handler: layer2 messages go out on the L1A/L23
// channel.
func (p *phone) toPhone(payload []byte) error {
	m := p.current.Load()
	if m == nil {
		return modem.ErrNotRunning
	}
	return m.SendToPhone(hdlc.L1AL23, payload)
}

// run starts every task and blocks until one fails or ctx is done.
func run(ctx context.Context, config *Config, logger *slog.Logger) error {
	firmware, err := os.ReadFile(config.Firmware)
	if err != nil {
		return fmt.Errorf("read firmware: %w", err)
	}

	storeOpts := []store.Option{store.WithLogger(logger)}
	if config.RecordPath != "" {
		recorder, err := store.NewRecorder(config.RecordPath)
		if err != nil {
			return err
		}
		defer recorder.Close()
		storeOpts = append(storeOpts, store.WithRecorder(recorder))
	}
	records := store.New(storeOpts...)

	ph := &phone{}
	bridgeServer := bridge.New(ph.toPhone, bridge.WithLogger(logger))

	modemConfig, err := modem.NewConfigBuilder().
		WithDialer(modem.SerialDialer{PortName: config.SerialPort}).
		WithVariant(config.Variant).
		WithPayload(firmware).
		WithResyncTimeout(config.ResyncTimeout).
		WithLogger(logger).
		WithStatusCallback(records.SetStatus).
		WithConsoleCallback(records.AppendConsole).
		WithForwarder(bridgeServer).
		Build()
	if err != nil {
		return fmt.Errorf("create modem config: %w", err)
	}

	ln, err := bridge.Listen(config.BridgeSocket)
	if err != nil {
		return err
	}
	udp, err := gsmtap.Listen(config.GSMTAPAddress)
	if err != nil {
		ln.Close()
		return err
	}

	var packets gsmtap.Sink = records
	if config.GSMTAPRelay != "" {
		relay, err := gsmtap.DialRelay(config.GSMTAPRelay, logger)
		if err != nil {
			ln.Close()
			udp.Close()
			return err
		}
		defer relay.Close()
		packets = gsmtap.Tee(records, relay)
		logger.Info("Relaying GSMTAP", "address", config.GSMTAPRelay)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runModem(ctx, ph, modemConfig, config.RestartDelay, logger)
	})

	g.Go(func() error {
		logger.Info("Starting layer2 bridge", "socket", config.BridgeSocket)
		return bridgeServer.Serve(ctx, ln)
	})

	g.Go(func() error {
		logger.Info("Receiving GSMTAP", "address", udp.LocalAddr())
		return gsmtap.NewReader(udp, packets, gsmtap.WithLogger(logger)).Run(ctx)
	})

	var cellLog *celllog.Process
	if config.CellLog.Enabled {
		cellLog, err = startCellLog(ctx, g, config, records, logger)
		if err != nil {
			return err
		}
	}

	server := &Server{
		Logger: logger.With("component", "server"),
		Store:  records,
	}
	if cellLog != nil {
		server.CellLog = cellLog
	}
	httpServer := &http.Server{
		Addr:    config.BindAddress,
		Handler: server,
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		logger.Info("Closing HTTP server")
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// runModem boots the phone and serves it until ctx is done. A failed boot
// or a lost serial line needs a fresh Modem, so the loop recreates it after
// a pause.
func runModem(ctx context.Context, ph *phone, config modem.Config, delay time.Duration, logger *slog.Logger) error {
	for {
		m, err := modem.New(ctx, config)
		if err != nil {
			logger.Warn("Failed to open phone", "error", err)
		} else {
			ph.current.Store(m)
			logger.Info("Waiting for phone to power on")
			err = m.Loop(ctx)
			ph.current.Store(nil)
			if ctx.Err() == nil {
				logger.Warn("Phone session ended", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// startCellLog launches the scanner and the reader following its FIFO.
func startCellLog(ctx context.Context, g *errgroup.Group, config *Config, records *store.Store, logger *slog.Logger) (*celllog.Process, error) {
	args, err := celllog.Args(celllog.Options{
		Binary:     config.CellLog.Binary,
		Socket:     config.BridgeSocket,
		GSMTAPHost: gsmtapHost(config.GSMTAPAddress),
		FIFO:       config.CellLog.FIFO,
		Bands:      config.CellLog.Bands,
		Transmit:   config.CellLog.Transmit,
	})
	if errors.Is(err, celllog.ErrNoBands) {
		logger.Warn("No band enabled, not starting cell_log")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := celllog.MakeFIFO(config.CellLog.FIFO); err != nil {
		return nil, err
	}

	// A scanner that dies is restarted here so it cannot take the phone
	// session down with the group.
	process := celllog.NewProcess(args,
		celllog.WithProcessLogger(logger),
		celllog.WithRestartDelay(max(config.RestartDelay, time.Second)),
	)
	g.Go(func() error {
		return process.Run(ctx)
	})

	decoder := celllog.NewDecoder(records, celllog.WithLogger(logger))
	reader := celllog.NewReader(config.CellLog.FIFO, decoder, celllog.WithReaderLogger(logger))
	g.Go(func() error {
		// cell_log reopens the FIFO after a restart.
		for {
			if err := reader.Run(ctx); err != nil {
				return err
			}
		}
	})
	return process, nil
}

// gsmtapHost is the host part of the GSMTAP address, which is all cell_log
// takes.
func gsmtapHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		return "127.0.0.1"
	}
	return host
}

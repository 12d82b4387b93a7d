package celllog

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/creack/pty"

	"i4.energy/across/osmocon/gsm"
)

// Options describe one cell_log invocation.
type Options struct {
	// Binary is the cell_log executable.
	Binary string
	// Socket is the layer 2 socket the bridge listens on. A leading '@'
	// names a Linux abstract socket.
	Socket string
	// GSMTAPHost receives the GSMTAP stream.
	GSMTAPHost string
	// FIFO is the path cell_log writes its log to.
	FIFO string
	// Bands limits the scan. Bands outside this list are not scanned.
	Bands []gsm.Band
	// Transmit allows cell_log to access the network (RACH etc.).
	Transmit bool
}

// DefaultBands are the bands scanned when none are configured.
var DefaultBands = []gsm.Band{gsm.GSM850, gsm.PCS1900}

// bandRanges are cell_log -A arguments in osmocom wire ARFCNs.
var bandRanges = map[gsm.Band]string{
	gsm.GSM900:  "1-124",
	gsm.GSM850:  "128-251",
	gsm.DCS1800: "512-885",
	gsm.PCS1900: "33280-33578",
}

// Args builds the cell_log command line. Ranges are listed in band order
// regardless of the order in o.Bands.
func Args(o Options) ([]string, error) {
	enabled := make(map[gsm.Band]bool, len(o.Bands))
	for _, b := range o.Bands {
		enabled[b] = true
	}

	var ranges []string
	for _, b := range gsm.Bands {
		if enabled[b] {
			ranges = append(ranges, bandRanges[b])
		}
	}
	if len(ranges) == 0 {
		return nil, ErrNoBands
	}

	socket := o.Socket
	if name, ok := strings.CutPrefix(socket, "@"); ok {
		socket = ":ABSTRACT:" + name
	}
	host := o.GSMTAPHost
	if host == "" {
		host = "127.0.0.1"
	}

	args := []string{
		o.Binary,
		"-s", socket,
		"-i", host,
		"-l", o.FIFO,
		"-A", strings.Join(ranges, ","),
	}
	if !o.Transmit {
		args = append(args, "-n")
	}
	return args, nil
}

type ProcessOption func(*Process)

func WithProcessLogger(l *slog.Logger) ProcessOption {
	return func(p *Process) {
		p.logger = l
	}
}

// WithEnv adds KEY=value pairs to the inherited environment.
func WithEnv(env ...string) ProcessOption {
	return func(p *Process) {
		p.env = append(p.env, env...)
	}
}

// WithRestartDelay makes Run start the program again, after d, whenever it
// exits on its own or cannot be started, instead of returning.
func WithRestartDelay(d time.Duration) ProcessOption {
	return func(p *Process) {
		p.restartDelay = d
	}
}

// Process hosts an external program on a pseudo-terminal, so it line
// buffers its output, and logs what it prints.
type Process struct {
	argv         []string
	env          []string
	logger       *slog.Logger
	restart      chan struct{}
	restartDelay time.Duration
}

func NewProcess(argv []string, opts ...ProcessOption) *Process {
	p := &Process{
		argv:    argv,
		logger:  slog.Default(),
		restart: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "process", "binary", argv[0])
	return p
}

// Restart asks Run to kill the running program and start it again. It does
// not wait for the new instance.
func (p *Process) Restart() {
	select {
	case p.restart <- struct{}{}:
	default:
	}
}

// Run starts the program and supervises it until ctx is cancelled, which
// kills it. A program that exits on its own ends Run with ErrExited unless
// a restart delay is set.
func (p *Process) Run(ctx context.Context) error {
	for {
		child, err := p.start()
		if err != nil {
			if p.restartDelay <= 0 {
				return err
			}
			p.logger.Warn("start failed", "error", err, "retry_in", p.restartDelay)
			if err := p.backoff(ctx); err != nil {
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			child.kill()
			<-child.done
			return ctx.Err()
		case <-p.restart:
			p.logger.Info("restarting")
			child.kill()
			<-child.done
		case <-child.done:
			err := ErrExited
			if child.err != nil {
				err = fmt.Errorf("%w: %w", ErrExited, child.err)
			}
			if p.restartDelay <= 0 {
				return err
			}
			p.logger.Warn("program exited", "error", err, "retry_in", p.restartDelay)
			if err := p.backoff(ctx); err != nil {
				return err
			}
		}
	}
}

// backoff waits out the restart delay. A Restart request cuts it short.
func (p *Process) backoff(ctx context.Context) error {
	timer := time.NewTimer(p.restartDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.restart:
		return nil
	case <-timer.C:
		return nil
	}
}

type child struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (p *Process) start() (*child, error) {
	cmd := exec.Command(p.argv[0], p.argv[1:]...)
	cmd.Env = append(os.Environ(), p.env...)

	tty, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", p.argv[0], err)
	}
	p.logger.Info("started", "pid", cmd.Process.Pid, "args", strings.Join(p.argv[1:], " "))

	c := &child{cmd: cmd, done: make(chan struct{})}
	go func() {
		defer close(c.done)

		scanner := bufio.NewScanner(tty)
		scanner.Split(Splitter)
		for scanner.Scan() {
			p.logger.Debug("output", "line", scanner.Text())
		}
		// Reading the pty fails with EIO once the child is gone.
		c.err = cmd.Wait()
		tty.Close()
		p.logger.Info("exited", "pid", cmd.Process.Pid, "error", c.err)
	}()
	return c, nil
}

func (c *child) kill() {
	c.cmd.Process.Kill()
}

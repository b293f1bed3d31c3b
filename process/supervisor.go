package process

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"time"

	"golang.org/x/time/rate"
)

// State tracks a managed process through its lifecycle.
type State string

const (
	StateUnstarted     State = "unstarted"
	StateStarting      State = "starting"
	StateHealthy       State = "healthy"
	StateStopped       State = "stopped"
	StateFailedToStart State = "failed_to_start"
)

// ErrStartupTimeout is returned when a process never passes its health gate
// before the startup deadline.
var ErrStartupTimeout = errors.New("process did not become healthy before the startup deadline")

const portReleaseProbeInterval = 50 * time.Millisecond

// Options tunes supervision timing. Zero values take the defaults that match
// the menmos servers' observed startup behavior.
type Options struct {
	StartupTimeout     time.Duration
	PollInterval       time.Duration
	PortReleaseTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.StartupTimeout <= 0 {
		o.StartupTimeout = 10 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.PortReleaseTimeout <= 0 {
		o.PortReleaseTimeout = 2 * time.Second
	}
	return o
}

// Supervisor owns one external server process: it launches the binary, gates
// on the /health endpoint, and tears the process down with an interrupt so
// the server gets a graceful shutdown. The OS process handle is owned
// exclusively by the supervisor for its lifetime.
type Supervisor struct {
	binaryPath string
	args       []string
	port       int
	host       string

	cmd   *exec.Cmd
	state State
	opts  Options

	healthClient *http.Client
	logger       *slog.Logger
}

// NewSupervisor prepares supervision for the binary serving HTTP on the given
// local port. Nothing is launched until Start.
func NewSupervisor(binaryPath string, args []string, port int, opts Options, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		binaryPath: binaryPath,
		args:       args,
		port:       port,
		host:       fmt.Sprintf("http://localhost:%d", port),
		state:      StateUnstarted,
		opts:       opts.withDefaults(),
		healthClient: &http.Client{
			Timeout: time.Second,
		},
		logger: logger.WithGroup("supervisor"),
	}
}

// Host returns the base URL the supervised process serves on.
func (s *Supervisor) Host() string {
	return s.host
}

// State returns the current lifecycle state. Callers must not issue domain
// operations against a process in StateFailedToStart.
func (s *Supervisor) State() State {
	return s.state
}

// Start launches the binary with the configured arguments, inheriting the
// current environment, and blocks until the process passes its health gate.
// On a missed deadline the process is left in StateFailedToStart and
// ErrStartupTimeout is returned.
func (s *Supervisor) Start(ctx context.Context) error {
	cmd := exec.Command(s.binaryPath, s.args...)
	cmd.Env = os.Environ()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	s.state = StateStarting
	s.logger.Debug("Launching process", "binary", s.binaryPath, "args", cmd.Args[1:])

	if err := cmd.Start(); err != nil {
		s.state = StateFailedToStart
		return fmt.Errorf("failed to launch %s: %w", s.binaryPath, err)
	}
	s.cmd = cmd

	if err := s.waitUntilHealthy(ctx); err != nil {
		s.state = StateFailedToStart
		return err
	}

	s.state = StateHealthy
	s.logger.Debug("Process healthy", "host", s.host)
	return nil
}

// IsHealthy issues a single health probe. Any transport error, non-200
// status, or unparseable body counts as unhealthy rather than as an error;
// during startup the server simply isn't listening yet.
func (s *Supervisor) IsHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.host+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := s.healthClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var health struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false
	}
	return health.Message == "healthy"
}

func (s *Supervisor) waitUntilHealthy(ctx context.Context) error {
	pacer := rate.NewLimiter(rate.Every(s.opts.PollInterval), 1)
	deadline := time.Now().Add(s.opts.StartupTimeout)

	for time.Now().Before(deadline) {
		if err := pacer.Wait(ctx); err != nil {
			return fmt.Errorf("health poll aborted: %w", err)
		}
		if s.IsHealthy(ctx) {
			return nil
		}
	}

	return fmt.Errorf("%w: %s after %s", ErrStartupTimeout, s.binaryPath, s.opts.StartupTimeout)
}

// Stop interrupts the process, waits for it to exit, then waits for the OS to
// release the bound port before returning. Stopping a process that is already
// dead (or was never started) is not an error; teardown is best-effort.
func (s *Supervisor) Stop() error {
	if s.cmd == nil || s.cmd.Process == nil {
		s.state = StateStopped
		return nil
	}

	if err := s.cmd.Process.Signal(os.Interrupt); err != nil {
		s.logger.Warn("Failed to interrupt process, it may have already exited", "binary", s.binaryPath, "error", err)
	}
	if err := s.cmd.Wait(); err != nil {
		s.logger.Debug("Process exited with error", "binary", s.binaryPath, "error", err)
	}

	s.waitForPortRelease()
	s.state = StateStopped
	return nil
}

// waitForPortRelease probes the process's port until it can be bound again.
// On slow hosts the OS can hold the port briefly after the process exits,
// which makes back-to-back fixtures fail to boot.
func (s *Supervisor) waitForPortRelease() {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	deadline := time.Now().Add(s.opts.PortReleaseTimeout)

	for time.Now().Before(deadline) {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			ln.Close()
			return
		}
		time.Sleep(portReleaseProbeInterval)
	}

	s.logger.Warn("Port still bound after stop", "addr", addr, "waited", s.opts.PortReleaseTimeout)
}

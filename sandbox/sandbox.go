// Package sandbox manages the lifecycle of a local near-sandbox validator
// process: starting, health checking, stopping, and manipulating its chain
// state. One Sandbox owns one home directory and one pair of ports.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/smartcontractkit/freeport"

	"github.com/r-near/near-harness/pkg/logger"
	"github.com/r-near/near-harness/rpcclient"
)

const (
	// DefaultRPCPort is the port the validator serves JSON-RPC on unless
	// configured otherwise.
	DefaultRPCPort = 3030

	defaultGracePeriod  = 5 * time.Second
	defaultStartTimeout = 30 * time.Second
	startPollInterval   = 500 * time.Millisecond
	probeTimeout        = 1 * time.Second
)

// Config holds the sandbox instance configuration.
type Config struct {
	// HomeDir is the validator home directory. When empty, a temporary
	// directory is created and removed again on Stop.
	HomeDir string

	// RPCPort is the JSON-RPC listen port. Defaults to DefaultRPCPort.
	RPCPort int

	// NetworkPort is the p2p listen port. When zero, a free port is taken
	// on each start.
	NetworkPort int

	// BinaryPath points at a near-sandbox binary to use. When empty, the
	// binary is resolved via ResolveBinary.
	BinaryPath string

	// BinaryVersion selects the version to download when no binary is found
	// locally. Defaults to DefaultBinaryVersion.
	BinaryVersion string

	// GracePeriod is how long Stop waits for a clean shutdown before
	// killing the process group. Defaults to 5s.
	GracePeriod time.Duration

	// StartTimeout bounds how long Start waits for the validator to answer
	// its first status probe. Defaults to 30s.
	StartTimeout time.Duration

	Logger logger.Logger
}

func (c Config) validate() error {
	if c.RPCPort < 0 || c.RPCPort > 65535 {
		return errors.New("rpc port out of range")
	}
	if c.NetworkPort < 0 || c.NetworkPort > 65535 {
		return errors.New("network port out of range")
	}
	if c.GracePeriod < 0 {
		return errors.New("grace period must not be negative")
	}
	if c.StartTimeout < 0 {
		return errors.New("start timeout must not be negative")
	}

	return nil
}

// Sandbox supervises a single near-sandbox validator process.
type Sandbox struct {
	cfg  Config
	lggr logger.Logger

	homeDir  string
	ownsHome bool
	rpcPort  int
	rpc      *rpcclient.Client

	mu      sync.Mutex
	binary  string
	netPort int
	proc    *process
}

// New builds a Sandbox from the config. The validator is not started until
// Start is called.
func New(cfg Config) (*Sandbox, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid sandbox config: %w", err)
	}

	lggr := cfg.Logger
	if lggr == nil {
		lggr = logger.Nop()
	}
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = defaultGracePeriod
	}
	if cfg.StartTimeout == 0 {
		cfg.StartTimeout = defaultStartTimeout
	}

	homeDir := cfg.HomeDir
	ownsHome := false
	if homeDir == "" {
		dir, err := os.MkdirTemp("", "near-sandbox-")
		if err != nil {
			return nil, fmt.Errorf("failed to create sandbox home: %w", err)
		}
		homeDir = dir
		ownsHome = true
	}

	rpcPort := cfg.RPCPort
	if rpcPort == 0 {
		rpcPort = DefaultRPCPort
	}

	s := &Sandbox{
		cfg:      cfg,
		lggr:     lggr,
		homeDir:  homeDir,
		ownsHome: ownsHome,
		rpcPort:  rpcPort,
		binary:   cfg.BinaryPath,
	}
	s.rpc = rpcclient.New(s.RPCEndpoint())

	return s, nil
}

// HomeDir returns the validator home directory.
func (s *Sandbox) HomeDir() string {
	return s.homeDir
}

// RPCEndpoint returns the JSON-RPC URL of the validator.
func (s *Sandbox) RPCEndpoint() string {
	return fmt.Sprintf("http://localhost:%d", s.rpcPort)
}

// Start boots the validator and blocks until it answers a status probe. It is
// a no-op when the validator is already running. On failure no process is
// left behind.
func (s *Sandbox) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runningLocked() {
		s.lggr.Debug("Sandbox already running")

		return nil
	}

	if s.binary == "" {
		bin, err := ResolveBinary(s.cfg.BinaryVersion)
		if err != nil {
			return fmt.Errorf("failed to resolve sandbox binary: %w", err)
		}
		s.binary = bin
	}

	if err := os.MkdirAll(s.homeDir, 0o755); err != nil {
		return fmt.Errorf("failed to create sandbox home: %w", err)
	}

	if _, err := os.Stat(filepath.Join(s.homeDir, "validator_key.json")); err != nil {
		s.lggr.Infow("Initializing sandbox", "home", s.homeDir)
		if err := s.runCommand(ctx, "init", "--chain-id", "localnet"); err != nil {
			return err
		}
	}

	if s.netPort = s.cfg.NetworkPort; s.netPort == 0 {
		s.netPort = freeport.MustTake(1)[0]
	}

	s.lggr.Infow("Starting sandbox", "rpcPort", s.rpcPort, "networkPort", s.netPort)

	cmd := exec.Command(s.binary, //nolint:gosec // binary path is operator supplied
		"--home", s.homeDir,
		"run",
		"--rpc-addr", fmt.Sprintf("0.0.0.0:%d", s.rpcPort),
		"--network-addr", fmt.Sprintf("0.0.0.0:%d", s.netPort),
	)
	// Own process group so Stop can signal the validator and any children
	// it forks in one go.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	p := &process{
		cmd:    cmd,
		stdout: &logBuffer{},
		stderr: &logBuffer{},
		done:   make(chan struct{}),
	}
	cmd.Stdout = p.stdout
	cmd.Stderr = p.stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start sandbox: %w", err)
	}

	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	s.proc = p

	if err := s.waitForStart(ctx, p); err != nil {
		s.stopProcessLocked()

		return fmt.Errorf("sandbox failed to start: %w", err)
	}

	s.lggr.Info("Sandbox started")

	return nil
}

// waitForStart polls the status endpoint until the validator answers, the
// process dies, or the timeout elapses.
func (s *Sandbox) waitForStart(ctx context.Context, p *process) error {
	attempts := uint(s.cfg.StartTimeout/startPollInterval) + 1

	return retry.Do(func() error {
		select {
		case <-p.done:
			return retry.Unrecoverable(fmt.Errorf(
				"process exited during startup: %s", strings.TrimSpace(p.stderr.String()),
			))
		default:
		}

		return s.probe(ctx)
	},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(startPollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

// probe performs a single short status round trip against the validator.
func (s *Sandbox) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	_, err := s.rpc.Status(ctx)

	return err
}

// IsRunning reports whether the validator process is alive and answering
// status probes. Probe failures are reported as not running, never as errors.
func (s *Sandbox) IsRunning(ctx context.Context) bool {
	s.mu.Lock()
	p := s.proc
	s.mu.Unlock()

	if p == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
	}

	return s.probe(ctx) == nil
}

// Stop terminates the validator process group, waiting up to the grace
// period before escalating to SIGKILL, and removes the home directory when
// it was created by this Sandbox. Safe to call when not running.
func (s *Sandbox) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopProcessLocked()

	if s.ownsHome {
		if err := os.RemoveAll(s.homeDir); err != nil {
			return fmt.Errorf("failed to remove sandbox home: %w", err)
		}
	}

	return nil
}

func (s *Sandbox) runningLocked() bool {
	if s.proc == nil {
		return false
	}
	select {
	case <-s.proc.done:
		return false
	default:
		return true
	}
}

func (s *Sandbox) stopProcessLocked() {
	p := s.proc
	if p == nil {
		return
	}
	s.proc = nil

	select {
	case <-p.done:
		return
	default:
	}

	s.lggr.Info("Stopping sandbox")

	// Setpgid puts the child in a group keyed by its own pid.
	pgid := p.cmd.Process.Pid
	if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil {
		return
	}

	select {
	case <-p.done:
		s.lggr.Debug("Sandbox stopped")
	case <-time.After(s.cfg.GracePeriod):
		s.lggr.Warn("Sandbox did not stop gracefully, killing process group")
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
		<-p.done
	}
}

// runCommand runs a one-shot sandbox subcommand against the home directory
// and waits for it to finish. Output is surfaced on failure.
func (s *Sandbox) runCommand(ctx context.Context, args ...string) error {
	full := append([]string{"--home", s.homeDir}, args...)

	cmd := exec.CommandContext(ctx, s.binary, full...) //nolint:gosec // binary path is operator supplied
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("sandbox command %q failed: %w: %s",
			strings.Join(args, " "), err, strings.TrimSpace(string(out)),
		)
	}

	return nil
}

// process bundles a running validator with its captured output. done is
// closed once Wait returns.
type process struct {
	cmd     *exec.Cmd
	stdout  *logBuffer
	stderr  *logBuffer
	waitErr error
	done    chan struct{}
}

// logBuffer is a byte buffer safe for concurrent writes from the process
// pipes and reads from the supervisor.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

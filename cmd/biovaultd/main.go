// Command biovaultd serves the biometrics capability to other processes:
// over stdio as a browser native messaging host, or on a unix socket.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/n1/biovault/internal/biometrics"
	"github.com/n1/biovault/internal/config"
	"github.com/n1/biovault/internal/ipc"
	"github.com/n1/biovault/internal/log"
	"github.com/urfave/cli/v2"
)

const version = "0.1.0-dev"

// Options are the resolved daemon settings.
type Options struct {
	Config     config.Config
	ConfigPath string
	// Stdio serves a single native messaging session on stdin/stdout.
	Stdio bool
	// Stream replaces stdin/stdout in stdio mode.
	Stream io.ReadWriter
}

// writePIDFile writes the current process ID to the PID file.
func writePIDFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory for PID file: %w", err)
	}

	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d", pid)), 0600); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// removePIDFile removes the PID file.
func removePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// stdio joins stdin and stdout into one stream. A read blocked on stdin
// cannot be interrupted, so serveStdio does not wait for it on shutdown.
type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

// serveStdio runs one native messaging session. It returns when the peer
// hangs up or as soon as ctx is done; in the latter case a read still
// pending on the stream is abandoned to process exit.
func serveStdio(ctx context.Context, server *ipc.Server, stream io.ReadWriter) error {
	done := make(chan error, 1)
	go func() { done <- server.ServeConn(ctx, stream) }()

	select {
	case err := <-done:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info().Msg("Biovaultd native messaging session stopped")
		return nil
	}
}

// runDaemon serves until ctx is done or, in stdio mode, the peer hangs up.
func runDaemon(ctx context.Context, opts Options) error {
	cfg := opts.Config
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(level)

	backend, err := biometrics.New(cfg.BiometricsOptions())
	if err != nil {
		return err
	}
	server := ipc.NewServer(backend)
	server.PresenceTimeout = cfg.Presence.Timeout

	if opts.ConfigPath != "" {
		go func() {
			err := watchConfig(ctx, opts.ConfigPath, func(next config.Config) {
				level, err := log.ParseLevel(next.LogLevel)
				if err != nil {
					return
				}
				log.SetLevel(level)
				log.Info().Str("level", level.String()).Msg("Configuration reloaded")
			})
			if err != nil {
				log.Warn().Err(err).Msg("Configuration watch stopped")
			}
		}()
	}

	if opts.Stdio {
		log.Info().Msg("Biovaultd serving native messaging on stdio")
		stream := opts.Stream
		if stream == nil {
			stream = stdio{}
		}
		return serveStdio(ctx, server, stream)
	}

	if err := writePIDFile(cfg.Daemon.PIDFile); err != nil {
		return err
	}
	defer removePIDFile(cfg.Daemon.PIDFile)

	ln, err := listen(cfg.Daemon.Socket)
	if err != nil {
		return err
	}

	log.Info().Str("socket", cfg.Daemon.Socket).Msg("Biovaultd daemon started")
	err = server.Serve(ctx, ln)
	log.Info().Msg("Biovaultd daemon stopped")
	return err
}

// listen opens the unix socket, replacing a stale one, with access limited
// to the owner.
func listen(socket string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(socket), 0700); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := os.Remove(socket); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", socket)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", socket, err)
	}
	if err := os.Chmod(socket, 0600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("failed to restrict socket: %w", err)
	}
	return ln, nil
}

// nativeMessagingLaunch reports whether the arguments look like a browser
// starting a native messaging host (an extension origin or manifest path).
func nativeMessagingLaunch(args []string) bool {
	for _, a := range args {
		if strings.HasPrefix(a, "chrome-extension://") || strings.HasSuffix(a, ".json") {
			return true
		}
	}
	return false
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "biovaultd",
		Usage:   "biovault capability daemon and native messaging host",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the configuration file",
				EnvVars: []string{"BIOVAULT_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  "stdio",
				Usage: "Serve native messaging frames on stdin/stdout",
			},
			&cli.StringFlag{
				Name:    "socket",
				Aliases: []string{"s"},
				Usage:   "Unix socket to listen on",
			},
			&cli.StringFlag{
				Name:    "pid-file",
				Aliases: []string{"p"},
				Usage:   "Path to the PID file",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Logging level (debug, info, warn, error)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			if c.IsSet("socket") {
				cfg.Daemon.Socket = config.ExpandPath(c.String("socket"))
			}
			if c.IsSet("pid-file") {
				cfg.Daemon.PIDFile = config.ExpandPath(c.String("pid-file"))
			}
			if c.IsSet("log-level") {
				cfg.LogLevel = c.String("log-level")
			}

			configPath := c.String("config")
			if configPath == "" {
				configPath = config.DefaultConfigPath
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runDaemon(ctx, Options{
				Config:     cfg,
				ConfigPath: config.ExpandPath(configPath),
				Stdio:      c.Bool("stdio") || nativeMessagingLaunch(c.Args().Slice()),
			})
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Error().Err(err).Msg("Biovaultd failed")
		os.Exit(1)
	}
}

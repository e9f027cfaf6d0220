// Command biovault stores and reads secrets in the OS credential vault and
// asks for biometric confirmation from the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/n1/biovault/internal/biometrics"
	"github.com/n1/biovault/internal/config"
	"github.com/n1/biovault/internal/ipc"
	"github.com/n1/biovault/internal/log"
	"github.com/urfave/cli/v2"
)

const version = "0.1.0-dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Error().Err(err).Msg("biovault failed")
		os.Exit(exitCode(err))
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "biovault",
		Usage:   "biometric-gated secret storage",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the configuration file",
				EnvVars: []string{"BIOVAULT_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Logging level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "Secret store backend (auto, keyring, file, memory)",
			},
			&cli.StringFlag{
				Name:  "service",
				Usage: "Namespace for secret keys",
			},
			&cli.StringFlag{
				Name:  "daemon",
				Usage: "Talk to biovaultd on this unix socket instead of the local vault",
			},
		},
		Commands: []*cli.Command{
			probeCmd,
			verifyCmd,
			getCmd,
			setCmd,
			deleteCmd,
			lockCmd,
			policyCmd,
			versionCmd,
		},
	}
}

var versionCmd = &cli.Command{
	Name:  "version",
	Usage: "Print the version",
	Action: func(c *cli.Context) error {
		fmt.Fprintln(c.App.Writer, "biovault version", version)
		return nil
	},
}

// loadConfig reads the configuration and applies the global flags on top.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return config.Config{}, err
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("backend") {
		cfg.Backend = c.String("backend")
	}
	if c.IsSet("service") {
		cfg.Service = c.String("service")
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return config.Config{}, fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(level)
	return cfg, nil
}

// openCapability returns the local backend, or a client of biovaultd when
// --daemon is given. The returned closer is never nil.
func openCapability(ctx context.Context, c *cli.Context, cfg config.Config) (biometrics.Biometrics, io.Closer, error) {
	if socket := c.String("daemon"); socket != "" {
		client, err := ipc.Dial(ctx, config.ExpandPath(socket))
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	}

	backend, err := biometrics.New(cfg.BiometricsOptions())
	if err != nil {
		return nil, nil, err
	}
	return backend, nopCloser{}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// exitCode maps failure kinds to distinct process exit codes so scripts
// can tell a missing secret from a refused prompt.
func exitCode(err error) int {
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	switch biometrics.KindOf(err) {
	case biometrics.KindNotFound:
		return 3
	case biometrics.KindUserCancelled:
		return 4
	case biometrics.KindAuthFailed, biometrics.KindAccessDenied, biometrics.KindLockedOut:
		return 5
	case biometrics.KindNotAvailable, biometrics.KindStorageUnavailable:
		return 6
	case biometrics.KindInvalidKey, biometrics.KindInvalidArgument, biometrics.KindTooLarge:
		return 2
	default:
		return 1
	}
}

package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/n1/biovault/internal/biometrics"
	"github.com/n1/biovault/internal/config"
	"github.com/n1/biovault/internal/log"
	"github.com/urfave/cli/v2"
)

// withCapability runs fn with a signal-aware context and an open
// capability, closing it afterwards.
func withCapability(c *cli.Context, fn func(ctx context.Context, cfg config.Config, bio biometrics.Biometrics) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bio, closer, err := openCapability(ctx, c, cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	return fn(ctx, cfg, bio)
}

var probeCmd = &cli.Command{
	Name:  "probe",
	Usage: "Report whether biometric verification is available, without prompting",
	Action: func(c *cli.Context) error {
		return withCapability(c, func(ctx context.Context, _ config.Config, bio biometrics.Biometrics) error {
			ok, err := bio.CanCheckPresence(ctx)
			if err != nil {
				return err
			}
			if ok {
				fmt.Fprintln(c.App.Writer, "available")
			} else {
				fmt.Fprintln(c.App.Writer, "unavailable")
			}
			return nil
		})
	},
}

var verifyCmd = &cli.Command{
	Name:  "verify",
	Usage: "Prompt for biometric verification",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "reason",
			Aliases: []string{"r"},
			Usage:   "Text shown in the prompt",
			Value:   "biovault wants to verify your identity",
		},
		&cli.StringFlag{
			Name:  "handle",
			Usage: "Native window handle to anchor the prompt (Windows; decimal or 0x hex)",
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Aliases: []string{"t"},
			Usage:   "Give up on the prompt after this long",
		},
	},
	Action: func(c *cli.Context) error {
		handle, err := parseHandle(c.String("handle"))
		if err != nil {
			return cli.Exit(err.Error(), 2)
		}

		return withCapability(c, func(ctx context.Context, _ config.Config, bio biometrics.Biometrics) error {
			if d := c.Duration("timeout"); d > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}
			if err := bio.CheckPresence(ctx, handle, c.String("reason")); err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, "verified")
			return nil
		})
	},
}

// parseHandle encodes a window handle as 8 little-endian bytes.
func parseHandle(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid window handle %q", s)
	}
	return binary.LittleEndian.AppendUint64(nil, v), nil
}

var getCmd = &cli.Command{
	Name:      "get",
	Usage:     "Print the secret stored under key",
	ArgsUsage: "<key>",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "raw",
			Usage: "Do not append a newline",
		},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("Usage: get <key>", 2)
		}
		key := c.Args().First()

		return withCapability(c, func(ctx context.Context, _ config.Config, bio biometrics.Biometrics) error {
			data, err := bio.GetSecret(ctx, key)
			if err != nil {
				return err
			}
			if _, err := c.App.Writer.Write(data); err != nil {
				return err
			}
			if !c.Bool("raw") {
				fmt.Fprintln(c.App.Writer)
			}
			return nil
		})
	},
}

var setCmd = &cli.Command{
	Name:      "set",
	Usage:     "Store a secret under key, replacing any previous value",
	ArgsUsage: "<key> [value]",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "stdin",
			Usage: "Read the value from standard input",
		},
	},
	Action: func(c *cli.Context) error {
		fromStdin := c.Bool("stdin")
		if (fromStdin && c.NArg() != 1) || (!fromStdin && c.NArg() != 2) {
			return cli.Exit("Usage: set <key> <value> | set --stdin <key>", 2)
		}
		key := c.Args().First()

		var value []byte
		if fromStdin {
			var err error
			value, err = io.ReadAll(c.App.Reader)
			if err != nil {
				return fmt.Errorf("read value: %w", err)
			}
		} else {
			value = []byte(c.Args().Get(1))
		}

		return withCapability(c, func(ctx context.Context, _ config.Config, bio biometrics.Biometrics) error {
			if err := bio.SetSecret(ctx, key, value); err != nil {
				return err
			}
			log.Debug().Str("key", key).Msg("Secret stored")
			fmt.Fprintf(c.App.Writer, "stored %s\n", key)
			return nil
		})
	},
}

var deleteCmd = &cli.Command{
	Name:      "delete",
	Usage:     "Remove the secret stored under key",
	ArgsUsage: "<key>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("Usage: delete <key>", 2)
		}
		key := c.Args().First()

		return withCapability(c, func(ctx context.Context, _ config.Config, bio biometrics.Biometrics) error {
			if err := bio.DeleteSecret(ctx, key); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "deleted %s\n", key)
			return nil
		})
	},
}

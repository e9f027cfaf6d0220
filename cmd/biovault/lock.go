package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/n1/biovault/internal/biometrics"
	"github.com/n1/biovault/internal/config"
	"github.com/n1/biovault/internal/lock"
	"github.com/n1/biovault/internal/migrations"
	"github.com/n1/biovault/internal/sqlite"
	"github.com/urfave/cli/v2"
)

var lockNameFlag = &cli.StringFlag{
	Name:    "name",
	Aliases: []string{"n"},
	Usage:   "Lock name (defaults to lock.name from the configuration)",
}

// withLock opens the lock database and a manager for the selected lock.
func withLock(c *cli.Context, fn func(ctx context.Context, cfg config.Config, m *lock.Manager) error) error {
	return withCapability(c, func(ctx context.Context, cfg config.Config, bio biometrics.Biometrics) error {
		db, err := sqlite.Open(ctx, cfg.DatabasePath())
		if err != nil {
			return fmt.Errorf("failed to open lock database '%s': %w", cfg.DatabasePath(), err)
		}
		defer db.Close()

		if err := migrations.BootstrapLocks(ctx, db); err != nil {
			return fmt.Errorf("failed to migrate lock database: %w", err)
		}

		name := cfg.Lock.Name
		if c.IsSet("name") {
			name = c.String("name")
		}
		m, err := lock.NewManager(ctx, db, bio, lock.Options{
			Name:        name,
			MaxAttempts: cfg.Lock.MaxAttempts,
		})
		if err != nil {
			return err
		}
		return fn(ctx, cfg, m)
	})
}

func printState(w io.Writer, st lock.State) {
	fmt.Fprintf(w, "mode: %s\n", st.Mode)
	fmt.Fprintf(w, "locked: %t\n", st.Locked)
	fmt.Fprintf(w, "ttl: %s\n", st.TTL)
	fmt.Fprintf(w, "retries: %d\n", st.RetryCount)
}

var lockCmd = &cli.Command{
	Name:  "lock",
	Usage: "Manage the biometric lock",
	Subcommands: []*cli.Command{
		{
			Name:  "create",
			Usage: "Seal the offline secret read from stdin behind biometrics",
			Flags: []cli.Flag{
				lockNameFlag,
				&cli.DurationFlag{
					Name:  "ttl",
					Usage: "Lock again after this long without activity (defaults to lock.ttl)",
				},
			},
			Action: func(c *cli.Context) error {
				offlineKD, err := io.ReadAll(c.App.Reader)
				if err != nil {
					return fmt.Errorf("read offline secret: %w", err)
				}
				if len(offlineKD) == 0 {
					return cli.Exit("lock create: the offline secret is read from stdin and must not be empty", 2)
				}

				return withLock(c, func(ctx context.Context, cfg config.Config, m *lock.Manager) error {
					ttl := cfg.Lock.TTL
					if c.IsSet("ttl") {
						ttl = c.Duration("ttl")
					}

					st, err := m.Create(ctx, offlineKD, ttl)
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, "Biometric lock created")
					printState(c.App.Writer, st)
					return nil
				})
			},
		},
		{
			Name:  "status",
			Usage: "Show the lock state and restart its TTL window",
			Flags: []cli.Flag{lockNameFlag},
			Action: func(c *cli.Context) error {
				return withLock(c, func(ctx context.Context, _ config.Config, m *lock.Manager) error {
					expired, err := m.Expired(ctx)
					if err != nil {
						return err
					}
					st, err := m.Check(ctx)
					if err != nil {
						return err
					}
					printState(c.App.Writer, st)
					fmt.Fprintf(c.App.Writer, "expired: %t\n", expired)
					return nil
				})
			},
		},
		{
			Name:  "lock",
			Usage: "Lock now",
			Flags: []cli.Flag{lockNameFlag},
			Action: func(c *cli.Context) error {
				return withLock(c, func(ctx context.Context, _ config.Config, m *lock.Manager) error {
					st, err := m.Lock(ctx)
					if err != nil {
						return err
					}
					printState(c.App.Writer, st)
					return nil
				})
			},
		},
		{
			Name:  "unlock",
			Usage: "Unlock and write the offline secret to stdout",
			Flags: []cli.Flag{
				lockNameFlag,
				&cli.StringFlag{
					Name:    "reason",
					Aliases: []string{"r"},
					Usage:   "Text shown in the prompt",
					Value:   "biovault wants to unlock",
				},
				&cli.StringFlag{
					Name:  "handle",
					Usage: "Native window handle to anchor the prompt (Windows; decimal or 0x hex)",
				},
				&cli.BoolFlag{
					Name:  "password",
					Usage: "Unlock with the offline secret read from stdin instead of biometrics",
				},
			},
			Action: func(c *cli.Context) error {
				handle, err := parseHandle(c.String("handle"))
				if err != nil {
					return cli.Exit(err.Error(), 2)
				}

				return withLock(c, func(ctx context.Context, _ config.Config, m *lock.Manager) error {
					if c.Bool("password") {
						offlineKD, err := io.ReadAll(c.App.Reader)
						if err != nil {
							return fmt.Errorf("read offline secret: %w", err)
						}
						if err := m.UnlockPassword(ctx, offlineKD); err != nil {
							return err
						}
						fmt.Fprintln(c.App.Writer, "Unlocked")
						return nil
					}

					offlineKD, err := m.Unlock(ctx, handle, c.String("reason"))
					switch {
					case errors.Is(err, lock.ErrFallbackPassword), errors.Is(err, lock.ErrTooManyAttempts):
						return cli.Exit(fmt.Sprintf("%v; unlock with --password", err), 5)
					case err != nil:
						return err
					}
					_, err = c.App.Writer.Write(offlineKD)
					return err
				})
			},
		},
		{
			Name:  "delete",
			Usage: "Remove the lock and its biometrics key",
			Flags: []cli.Flag{lockNameFlag},
			Action: func(c *cli.Context) error {
				return withLock(c, func(ctx context.Context, _ config.Config, m *lock.Manager) error {
					if _, err := m.Delete(ctx); err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, "Biometric lock deleted")
					return nil
				})
			},
		},
	},
}

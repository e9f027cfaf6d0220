package main

import (
	"github.com/n1/biovault/internal/presence"
	"github.com/urfave/cli/v2"
)

var policyCmd = &cli.Command{
	Name:  "polkit-policy",
	Usage: "Print the polkit action definition to install under /usr/share/polkit-1/actions",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "vendor",
			Value: "biovault",
		},
		&cli.StringFlag{
			Name:  "description",
			Value: "Unlock secrets stored by biovault",
		},
		&cli.StringFlag{
			Name:  "message",
			Value: "Authentication is required to unlock your secrets",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}

		doc, err := presence.Policy(cfg.Presence.PolkitAction, c.String("vendor"), c.String("description"), c.String("message"))
		if err != nil {
			return err
		}
		_, err = c.App.Writer.Write(doc)
		return err
	},
}

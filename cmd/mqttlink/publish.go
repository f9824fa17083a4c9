package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newPublishCmd(g *globalFlags) *cobra.Command {
	var (
		qos     int
		retain  bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "publish <topic> <message>",
		Short: "Publish a single message once connected",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if qos < 0 || qos > 2 {
				return fmt.Errorf("--qos must be 0, 1 or 2")
			}

			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			log := newLogger(cmd, cfg)

			a, err := newApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.connect(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := a.waitConnected(ctx); err != nil {
				return err
			}

			topic, payload := args[0], args[1]
			err = a.link.Publish(topic, []byte(payload), byte(qos), retain)
			if a.influx != nil {
				a.influx.WritePublish(topic, len(payload), err == nil)
			}
			if err != nil {
				return fmt.Errorf("publishing to %s: %w", topic, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "published %d bytes to %s\n", len(payload), topic)
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVarP(&qos, "qos", "q", 0, "QoS level (0, 1 or 2)")
	f.BoolVarP(&retain, "retain", "r", false, "retain the message")
	f.DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for the broker")
	return cmd
}

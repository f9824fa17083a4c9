package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"
)

// runOptions configures the demo message stream.
type runOptions struct {
	topics           []string
	interval         time.Duration
	unsubscribeAfter int
	count            int
	apiPort          int
}

func newRunCmd(g *globalFlags) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect, subscribe and publish a demo message stream",
		Long: `Connect to the broker and subscribe to the given topics, the first at
QoS 1 and the rest at QoS 0. While connected, publish one message per
interval, alternating between topics. After --unsubscribe-after messages the
last topic is unsubscribed. Runs until interrupted or --count messages
have been published.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("api-port") {
				cfg.API.Enabled = true
				cfg.API.Port = opts.apiPort
				if err := cfg.Validate(); err != nil {
					return fmt.Errorf("validating flags: %w", err)
				}
			}
			log := newLogger(cmd, cfg)

			a, err := newApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.startAPI(cmd.Context(), version); err != nil {
				return err
			}

			return runStream(cmd.Context(), a, opts, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringSliceVarP(&opts.topics, "topic", "t", []string{"a", "b"}, "topics to subscribe and publish to")
	f.DurationVar(&opts.interval, "interval", time.Second, "delay between published messages")
	f.IntVar(&opts.unsubscribeAfter, "unsubscribe-after", 10, "unsubscribe the last topic after this many messages (0 never)")
	f.IntVar(&opts.count, "count", 0, "stop after this many messages (0 runs until interrupted)")
	f.IntVar(&opts.apiPort, "api-port", 0, "serve the status API on this port (0 picks a free port)")
	return cmd
}

func (o *runOptions) validate() error {
	if len(o.topics) == 0 {
		return fmt.Errorf("at least one --topic is required")
	}
	for _, t := range o.topics {
		if t == "" {
			return fmt.Errorf("--topic must not be empty")
		}
	}
	if o.interval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}
	return nil
}

// syncWriter serialises writes from handlers and the publish loop.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format, args...)
}

// runStream subscribes, connects and publishes until ctx ends or opts.count
// messages went out.
func runStream(ctx context.Context, a *app, opts *runOptions, w io.Writer) error {
	if err := opts.validate(); err != nil {
		return err
	}
	out := &syncWriter{w: w}

	for i, topic := range opts.topics {
		qos := topicQoS(i)
		err := a.link.SubscribeFunc(topic, qos, func(payload []byte, topic string) {
			out.printf("received [%s] on [%s]\n", payload, topic)
		})
		if err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}

	if err := a.connect(); err != nil {
		return err
	}

	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()

	sent := 0
	for {
		select {
		case <-ctx.Done():
			out.printf("bye\n")
			return nil
		case <-ticker.C:
		}

		if !a.link.IsConnected() {
			continue
		}

		// Start on the last topic so two topics alternate b, a, b, ...
		idx := (len(opts.topics) - 1 + sent) % len(opts.topics)
		topic := opts.topics[idx]
		sent++
		payload := fmt.Sprintf("%d-test-message-topic: %s .", sent, topic)

		err := a.link.Publish(topic, []byte(payload), topicQoS(idx), false)
		if err != nil {
			a.log.Warn("publish failed", "topic", topic, "error", err)
		}
		if a.influx != nil {
			a.influx.WritePublish(topic, len(payload), err == nil)
		}

		if opts.unsubscribeAfter > 0 && sent == opts.unsubscribeAfter && len(opts.topics) > 1 {
			last := opts.topics[len(opts.topics)-1]
			if err := a.link.Unsubscribe(last); err != nil {
				a.log.Warn("unsubscribe failed", "topic", last, "error", err)
			} else {
				out.printf("unsubscribed from %s\n", last)
			}
		}

		if opts.count > 0 && sent >= opts.count {
			out.printf("bye\n")
			return nil
		}
	}
}

// topicQoS gives the first topic QoS 1 and the others QoS 0.
func topicQoS(index int) byte {
	if index == 0 {
		return 1
	}
	return 0
}

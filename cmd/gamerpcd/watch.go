package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"game-rpc/client"
	"game-rpc/codec"
	"game-rpc/config"
)

func watchCmd() *cobra.Command {
	var (
		addr      string
		heartbeat time.Duration
		logLevel  string
		set       []string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Connect as a client and log variable changes and calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := config.NewLogger(logLevel, "console")
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, addr, heartbeat, set, logger)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&addr, "addr", "a", "127.0.0.1:27016", "server address")
	f.DurationVar(&heartbeat, "heartbeat", config.DefaultConfig().HeartbeatInterval, "heartbeat interval")
	f.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	f.StringArrayVar(&set, "set", nil, "request a change client_name=value after connecting")
	return cmd
}

func runWatch(ctx context.Context, addr string, heartbeat time.Duration, set []string, logger *zap.Logger) error {
	dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	c, err := client.Dial(dctx, "tcp", addr, client.Options{
		Logger:      logger,
		Heartbeat:   heartbeat,
		CallTimeout: 5 * time.Second,
		OnNotice:    func(text string) { logger.Info("notice", zap.String("text", text)) },
		OnUpdate: func(v client.Var, old string) {
			logger.Info("variable changed", zap.String("name", v.ClientName), zap.String("old", old), zap.String("new", v.Value))
		},
	})
	cancel()
	if err != nil {
		return err
	}
	defer c.Close()

	// any call the server sends is logged
	c.Router().Fallback(func(_ context.Context, fn string, args []codec.Value) error {
		logger.Info("call", zap.String("function", fn), zap.Int("args", len(args)))
		return nil
	})

	if err := c.Ready(); err != nil {
		return err
	}
	pending := set
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.Done():
			return fmt.Errorf("connection to %s closed", addr)
		case <-ticker.C:
			pending = requestChanges(c, pending, logger)
		}
	}
}

// requestChanges sends the requests whose variable is already mirrored and
// returns the rest.
func requestChanges(c *client.Client, pending []string, logger *zap.Logger) []string {
	var rest []string
	for _, kv := range pending {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			logger.Warn("ignoring malformed --set", zap.String("value", kv))
			continue
		}
		if _, known := c.Get(name); !known {
			rest = append(rest, kv)
			continue
		}
		if err := c.RequestChange(name, value); err != nil {
			logger.Warn("request change", zap.String("name", name), zap.Error(err))
		}
	}
	return rest
}

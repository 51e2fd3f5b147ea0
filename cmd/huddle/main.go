// Command huddle 运行 WebRTC 信令与房间协调服务
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tokmz/huddle"
	"github.com/tokmz/huddle/middleware"
	"github.com/tokmz/huddle/pkg/audit"
	"github.com/tokmz/huddle/pkg/broker"
	"github.com/tokmz/huddle/pkg/cache"
	"github.com/tokmz/huddle/pkg/logger"
	"github.com/tokmz/huddle/pkg/orm"
	"github.com/tokmz/huddle/pkg/presence"
	"github.com/tokmz/huddle/pkg/signal"
	"github.com/tokmz/huddle/pkg/tracing"
)

var version = "dev"

func main() {
	var (
		configPath  string
		printConfig bool
	)
	root := &cobra.Command{
		Use:           "huddle",
		Short:         "WebRTC signaling and room coordination server",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if printConfig {
				s, _, err := loadSettings(configPath, nil)
				if err != nil {
					return err
				}
				out, err := printSettings(s)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), out)
				return nil
			}
			return run(cmd.Context(), configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "config file (default ./huddle.yaml if present)")
	root.Flags().BoolVar(&printConfig, "print-config", false, "print the effective settings as YAML and exit")

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "huddle:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	var log logger.Logger
	s, watcher, err := loadSettings(configPath, func(next *Settings) {
		level, err := logger.ParseLevel(next.Log.Level)
		if err != nil || level == log.Level() {
			return
		}
		log.SetLevel(level)
		log.Info("log level changed", zap.String("level", level.String()))
	})
	if err != nil {
		return err
	}
	log, err = s.Log.build()
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	if watcher.ConfigFileUsed() != "" {
		watcher.StartWatch()
	}
	defer watcher.Close()

	tp, err := tracing.NewTracerProvider(ctx, &s.Tracing)
	if err != nil {
		return err
	}

	bus := signal.NewEventBus(s.Events.Workers, s.Events.QueueSize)
	gw, err := signal.NewGateway(&s.Signal,
		signal.WithLogger(log.With(zap.String("component", "signal"))),
		signal.WithEventBus(bus),
		signal.WithTracerProvider(tp),
	)
	if err != nil {
		return err
	}

	kv, err := cache.New(&s.Cache)
	if err != nil {
		return err
	}
	store := presence.New(kv, gw, s.Presence.TTL, log.With(zap.String("component", "presence")))
	store.Attach(gw)

	var recorder *audit.Recorder
	if s.Audit.Enabled {
		db, err := orm.New(&s.Database, log.With(zap.String("component", "orm")))
		if err != nil {
			return err
		}
		defer orm.Close(db)
		recorder, err = audit.NewRecorder(db,
			audit.WithBatchSize(s.Audit.BatchSize),
			audit.WithFlushInterval(s.Audit.FlushInterval),
			audit.WithLogger(log.With(zap.String("component", "audit"))),
		)
		if err != nil {
			return err
		}
		recorder.Attach(gw)
	}

	pub, err := broker.New(&s.Broker)
	if err != nil {
		return err
	}
	if pub != nil {
		broker.NewForwarder(pub, s.Broker.Timeout, log.With(zap.String("component", "broker"))).Attach(gw)
	}

	gw.Start()

	engine := huddle.New(
		huddle.WithMode(s.Mode),
		huddle.WithServer(s.Server),
		huddle.WithShutdownTimeout(s.Shutdown),
		huddle.WithLogger(log),
	)
	engine.Use(
		middleware.Tracing(&middleware.TracingConfig{
			TracerName: "huddle.http",
			Filter:     func(c *huddle.Context) bool { return c.FullPath() != "/ws/:userId" },
		}),
		huddle.Logger(log, &huddle.LoggerConfig{ExcludePaths: []string{"/health"}}),
		middleware.CORS(&s.CORS),
	)
	rl := s.RateLimit
	rl.Logger = log
	(&api{gw: gw, presence: store, audit: recorder, web: s.Web.StaticDir}).register(engine, &rl)

	engine.OnShutdown(gw.Shutdown)
	if recorder != nil {
		engine.OnShutdown(func(context.Context) error {
			recorder.Close()
			return nil
		})
	}
	if pub != nil {
		engine.OnShutdown(func(context.Context) error { return pub.Close() })
	}
	engine.OnShutdown(func(context.Context) error { return kv.Close() })
	engine.OnShutdown(tp.Shutdown)
	engine.OnShutdown(func(context.Context) error {
		_ = log.Sync()
		return nil
	})

	return engine.Run(ctx)
}

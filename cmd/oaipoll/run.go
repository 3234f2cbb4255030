package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/miku/oaipoll"
	"github.com/miku/oaipoll/config"
	"github.com/miku/oaipoll/schedule"
	"github.com/miku/oaipoll/sink"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Harvest all configured endpoints on their schedules",
	Long: `Harvest all configured endpoints on their schedules. Endpoints, whose
until date has been reached, are dropped from the schedule; the command exits
when no endpoint is left or on SIGINT/SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		log, err := newLogger(cfg.Log.Level, cfg.Log.Development)
		if err != nil {
			return err
		}
		defer log.Sync()

		client := oaipoll.NewClient(oaipoll.ClientConfig{
			Timeout:    cfg.HTTP.Timeout,
			MaxRetries: cfg.HTTP.Retries,
			Rate:       cfg.HTTP.Rate,
			UserAgent:  cfg.HTTP.UserAgent,
		}, log)

		out, closeSink, err := openSink(cfg.Sink)
		if err != nil {
			return err
		}
		defer func() {
			if err := closeSink(); err != nil {
				log.Error("closing sink failed", zap.Error(err))
			}
		}()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics, err := oaipoll.NewMetrics(reg)
		if err != nil {
			return err
		}

		sched := schedule.New(log)
		for _, e := range cfg.Endpoints {
			opts := append(e.Options(), oaipoll.WithLogger(log), oaipoll.WithMetrics(metrics))
			p, err := oaipoll.NewPoller(e.URL, e.Cursor(), client, out, opts...)
			if err != nil {
				return err
			}
			if err := sched.Add(e.Name, e.Schedule, p); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cfg.Metrics.Listen != "" {
			srv := newServer(cfg.Metrics.Listen, reg, sched)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", zap.Error(err))
				}
			}()
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(sctx)
			}()
			log.Info("serving metrics", zap.String("addr", cfg.Metrics.Listen))
		}

		sched.Start(ctx)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
	Loop:
		for {
			select {
			case <-ctx.Done():
				log.Info("shutting down")
				break Loop
			case <-ticker.C:
				if sched.Active() == 0 {
					log.Info("all time windows harvested")
					break Loop
				}
			}
		}
		<-sched.Stop().Done()
		return nil
	},
}

// openSink creates the configured sink and a function to release it.
func openSink(cfg config.SinkConfig) (oaipoll.Sink, func() error, error) {
	switch cfg.Type {
	case config.SinkFile:
		f, err := sink.NewFile(cfg.Path, cfg.RootTag)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	case config.SinkRedis:
		client, err := sink.NewRedisClient(cfg.Redis.Sink())
		if err != nil {
			return nil, nil, err
		}
		return sink.NewRedis(client, cfg.Redis.Sink()), client.Close, nil
	default:
		w := sink.NewWriter(os.Stdout)
		w.RootTag = cfg.RootTag
		return w, w.Close, nil
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/philippseith/gobird/bird"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type flags struct {
	config      string
	logFile     string
	verbose     bool
	metricsAddr string
	inMemory    bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "birdbot",
		Short: "Connects to an iOS bird backend and answers ding with dong",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVarP(&f.config, "config", "c", "", "config file, environment GOBIRD_* is used when empty")
	cmd.Flags().StringVar(&f.logFile, "log-file", "", "rotated log file in addition to stderr")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics", "", "listen address for /metrics, disabled when empty")
	cmd.Flags().BoolVar(&f.inMemory, "in-memory", false, "do not persist the contact and room mirrors")
	return cmd
}

func run(ctx context.Context, f flags) error {
	logger := newLogger(f)
	defer func() { _ = logger.Sync() }()
	bird.SetLogger(logger)

	cfg, err := bird.LoadConfig(f.config)
	if err != nil {
		return err
	}

	if f.metricsAddr != "" {
		if err := serveMetrics(f.metricsAddr, logger); err != nil {
			return err
		}
	}

	var options []bird.ManagerOption
	if f.inMemory {
		options = append(options, bird.WithInMemoryCache())
	}
	m, err := bird.NewManager(cfg, options...)
	if err != nil {
		return err
	}

	if err := m.On(bird.EventMessage, func(msg *bird.MessagePayload) {
		if msg.Kind() != bird.ContentText || !strings.EqualFold(strings.TrimSpace(msg.Content), "ding") {
			return
		}
		// handlers run on the receive path and must not call back into the connection
		go dong(ctx, m, msg.UID, logger)
	}); err != nil {
		return err
	}
	if err := m.On(bird.EventReady, func() {
		logger.Info("ready", zap.String("bot", cfg.BotID))
	}); err != nil {
		return err
	}
	if err := m.On(bird.EventError, func(err error) {
		logger.Warn("manager error", zap.Error(err))
	}); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := m.Start(ctx); err != nil {
		return err
	}
	logger.Info("started", zap.String("endpoint", cfg.Endpoint))

	<-ctx.Done()
	logger.Info("stopping")
	return m.Stop()
}

func dong(ctx context.Context, m *bird.Manager, to string, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := m.SendMessage(ctx, bird.NormalizeID(to), "dong", bird.ContentText); err != nil {
		logger.Warn("dong failed", zap.String("to", to), zap.Error(err))
	}
}

func newLogger(f flags) *zap.Logger {
	level := zap.InfoLevel
	if f.verbose {
		level = zap.DebugLevel
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()), zapcore.AddSync(os.Stderr), level),
	}
	if f.logFile != "" {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   f.logFile,
				MaxSize:    50, // megabytes
				MaxBackups: 5,
				MaxAge:     14, // days
				Compress:   true,
			}),
			level))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

func serveMetrics(addr string, logger *zap.Logger) error {
	registry := prometheus.NewRegistry()
	if err := bird.RegisterMetrics(registry); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	return nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/tunnelkit/vtunnel"
	"github.com/tunnelkit/vtunnel/jsoncfg"
	"github.com/tunnelkit/vtunnel/logging"
	"github.com/tunnelkit/vtunnel/service"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type options struct {
	confPath string
	fmtConf  bool
	testConf bool
}

func main() {
	var (
		opts     options
		version  bool
		zapConf  string
		logLevel zapcore.Level
	)
	flag.BoolVar(&version, "version", false, "Print version information and exit")
	flag.BoolVar(&opts.fmtConf, "fmtConf", false, "Rewrite the configuration file in canonical form before starting")
	flag.BoolVar(&opts.testConf, "testConf", false, "Check the configuration file and exit")
	flag.StringVar(&opts.confPath, "confPath", "config.json", "Path to the JSON configuration file")
	flag.StringVar(&zapConf, "zapConf", "console", "Logger preset or path to a JSON zap config.\nPresets: console, console-nocolor, console-notime, systemd, production, development")
	flag.TextVar(&logLevel, "logLevel", zapcore.InfoLevel, "Minimum log level for the presets")
	flag.Parse()

	if version {
		fmt.Println("vtunnel", vtunnel.Version)
		if info, ok := debug.ReadBuildInfo(); ok {
			fmt.Print(info)
		}
		return
	}

	logger, err := logging.NewZapLogger(zapConf, logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to build logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err = run(opts, logger); err != nil {
		logger.Fatal("Exiting on error", zap.String("confPath", opts.confPath), zap.Error(err))
	}
}

// run loads the configuration and serves until SIGINT or SIGTERM.
func run(opts options, logger *zap.Logger) error {
	logger.Info("Starting vtunnel", zap.String("version", vtunnel.Version))

	var sc service.Config
	if err := jsoncfg.Open(opts.confPath, &sc); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if opts.fmtConf {
		if err := jsoncfg.Save(opts.confPath, sc); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		logger.Info("Formatted config file", zap.String("confPath", opts.confPath))
	}

	m, err := sc.Manager(logger)
	if err != nil {
		return fmt.Errorf("failed to create service manager: %w", err)
	}

	if opts.testConf {
		logger.Info("Config OK", zap.String("confPath", opts.confPath))
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err = m.Start(ctx); err != nil {
		m.Stop()
		return fmt.Errorf("failed to start services: %w", err)
	}

	<-ctx.Done()
	logger.Info("Received exit signal, stopping services")
	m.Stop()
	return nil
}

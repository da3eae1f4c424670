package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/lmittmann/tint"

	"github.com/idiotech/kafka-connect-jdbc/internal/config"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/dialect"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/sink"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/stream"
	"github.com/idiotech/kafka-connect-jdbc/internal/server"
)

//nolint:gochecknoglobals,revive // build variables
var (
	commit string = "unspecified"
	app    string = "unspecified"
)

type envConfig struct {
	LogFormat    string     `default:"json" split_words:"true"`
	LogLevel     slog.Level `default:"info" split_words:"true"`
	LogAddSource bool       `default:"true" split_words:"true"`

	ServerAddr            string        `default:":8080" split_words:"true"`
	ServerWriteTimeout    time.Duration `default:"15s" split_words:"true"`
	ServerReadTimeout     time.Duration `default:"15s" split_words:"true"`
	ServerIdleTimeout     time.Duration `default:"5m" split_words:"true"`
	ServerShutdownTimeout time.Duration `default:"30s" split_words:"true"`

	ConfigPath string `required:"true" split_words:"true"`
}

// Config is the JSON pipeline description read from ConfigPath.
type Config struct {
	Source stream.Config     `json:"source"`
	Sink   config.SinkConfig `json:"sink"`
}

func main() {
	var cfg envConfig
	err := envconfig.Process("jdbc_sink", &cfg)
	if err != nil {
		slog.Error("unable to parse config", slog.Any("error", err))
		os.Exit(1)
	}

	//nolint: exhaustruct // optional config
	logOpts := &slog.HandlerOptions{
		Level:     cfg.LogLevel,
		AddSource: cfg.LogAddSource,
	}

	var logHandler slog.Handler
	switch cfg.LogFormat {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stdout, logOpts)
	default:
		//nolint:exhaustruct // optional config
		logHandler = tint.NewHandler(os.Stdout, &tint.Options{
			AddSource:  cfg.LogAddSource,
			Level:      cfg.LogLevel,
			TimeFormat: time.Kitchen,
		})
	}

	log := slog.New(logHandler)

	log = log.With(
		slog.String("app", app),
		slog.String("commit_hash", commit),
		slog.String("goversion", runtime.Version()),
	)

	if err := mainErr(&cfg, log); err != nil {
		log.Error("Service stopped with error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("Service terminated gracefully")
}

func mainErr(cfg *envConfig, log *slog.Logger) error {
	loader, err := config.NewConfigLoader[Config](cfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to create config loader: %w", err)
	}

	pipeline, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pipeline.Sink.ApplyDefaults()
	if err := pipeline.Sink.Validate(); err != nil {
		return err
	}

	d, err := dialect.ForName(pipeline.Sink.Dialect)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connector, err := sink.NewConnector(ctx, d, pipeline.Sink.ConnectionURL, log)
	if err != nil {
		return err
	}
	defer connector.Close()

	source, err := stream.NewSource(ctx, pipeline.Source, log)
	if err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}
	defer source.Close()

	writer := sink.NewWriter(pipeline.Sink, d, connector, log)
	importer := sink.NewImporter(
		source,
		writer,
		pipeline.Sink.BatchSize,
		pipeline.Sink.MaxRetries,
		pipeline.Sink.RetryBackoff.Duration(),
		log,
	)

	apiServer := server.NewHTTPServer(server.Config{
		Addr:         cfg.ServerAddr,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}, connector, log)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- apiServer.Start()
	}()

	importErr := make(chan error, 1)
	go func() {
		importErr <- importer.Run(ctx)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("failed to start server: %w", err)
		}
		cancel()
		<-importErr
	case err := <-importErr:
		runErr = err
	case <-shutdown:
		log.Info("Received termination signal - service will shutdown")
		cancel()
		if err := <-importErr; err != nil {
			runErr = err
		}
	}

	if err := apiServer.Shutdown(cfg.ServerShutdownTimeout); err != nil {
		return errors.Join(runErr, fmt.Errorf("failed to shutdown server: %w", err))
	}

	return runErr
}

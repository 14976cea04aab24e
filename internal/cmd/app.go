package cmd

import (
	"fmt"
	"io"

	"github.com/Iron-Ham/atkrun/internal/batch"
	"github.com/Iron-Ham/atkrun/internal/config"
	"github.com/Iron-Ham/atkrun/internal/executor"
	"github.com/Iron-Ham/atkrun/internal/logging"
	"github.com/Iron-Ham/atkrun/internal/model"
	"github.com/Iron-Ham/atkrun/internal/report"
	"github.com/Iron-Ham/atkrun/internal/session"
	"github.com/Iron-Ham/atkrun/internal/transport"
)

// app holds the components built from the loaded configuration.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	client   *transport.Client
	session  *session.Controller
	executor *executor.Executor
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	logger = logger.WithTarget(cfg.Bridge.BaseURL, cfg.Bridge.Host, cfg.Bridge.Port)

	client := transport.New(cfg.Bridge.BaseURL,
		transport.WithTimeout(cfg.Timeouts.CommandTimeout()),
		transport.WithLogger(logger),
	)

	return &app{
		cfg:    cfg,
		logger: logger,
		client: client,
		session: session.NewController(client,
			session.WithTimeout(cfg.Timeouts.OpenCloseTimeout()),
			session.WithLogger(logger),
		),
		executor: executor.New(client, executor.WithLogger(logger)),
	}, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}

	dir := cfg.Logging.ResolveDir("")
	logger, err := logging.NewLoggerWithRotation(dir, cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	return logger, nil
}

func (a *app) Close() error {
	return a.logger.Close()
}

// runner builds a batch runner reporting each result to sink.
func (a *app) runner(runID string, sink report.Sink, stderr io.Writer) (*batch.Runner, error) {
	policy := batch.WaitPolicy{
		NewVerbMs: a.cfg.Wait.NewVerbMs,
		DefaultMs: a.cfg.Wait.DefaultMs,
	}

	return batch.New(a.session, a.executor, batch.Options{
		Host:              a.cfg.Bridge.Host,
		Port:              a.cfg.Bridge.Port,
		InterCommandDelay: a.cfg.Batch.InterCommandDelay(),
		CloseGrace:        a.cfg.Batch.CloseGrace(),
		WaitPolicy:        &policy,
		RunID:             runID,
		Logger:            a.logger,
		Observer: func(res model.ExecutionResult) {
			if err := sink.Result(res); err != nil {
				a.logger.Warn("report sink failed", "error", err.Error())
				fmt.Fprintf(stderr, "warning: %v\n", err)
			}
		},
	})
}

// sinks builds the report sinks selected by the configuration. format, when
// non-empty, overrides report.format.
func (a *app) sinks(runID, format string, verbose bool, stdout io.Writer) (report.Sink, error) {
	if format == "" {
		format = a.cfg.Report.Format
	}

	var sinks report.Multi
	switch format {
	case report.FormatConsole:
		sinks = append(sinks, report.NewConsole(stdout, report.WithVerbose(verbose)))
	case report.FormatJSONL:
		sinks = append(sinks, report.NewJSONL(stdout, runID))
	case report.FormatNone:
	default:
		return nil, fmt.Errorf("unknown report format %q (valid: %v)", format, config.ValidReportFormats())
	}

	if mq := a.cfg.Report.MQTT; mq.Broker != "" {
		sink, err := report.DialMQTT(report.MQTTOptions{
			Broker:      mq.Broker,
			ClientID:    mq.ClientID,
			Username:    mq.Username,
			Password:    mq.Password,
			TopicPrefix: mq.TopicPrefix,
			QoS:         byte(mq.QoS),
			Timeout:     mq.Timeout(),
			RunID:       runID,
			Logger:      a.logger,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}

	return sinks, nil
}

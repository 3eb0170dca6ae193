// Package app assembles the logging pipeline from a configuration file:
// bootstrap logger, metrics server, file and console sinks, queue adapters,
// distribution groups and logger-name bindings.
package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"ssw-proc-logging/internal/config"
	"ssw-proc-logging/internal/metrics"
	"ssw-proc-logging/internal/sinks"
	"ssw-proc-logging/pkg/distribution"
	"ssw-proc-logging/pkg/filesink"
	"ssw-proc-logging/pkg/logconfig"
	"ssw-proc-logging/pkg/queuesink"
	"ssw-proc-logging/pkg/severity"
	"ssw-proc-logging/pkg/types"
)

// App is the assembled pipeline.
type App struct {
	config    *config.Config
	bootstrap *logrus.Logger

	hub     *distribution.Hub
	metrics *metrics.Server
}

// New loads the configuration and builds the pipeline.
func New(configFile string) (*App, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, err
	}

	bootstrap := logrus.New()
	if level, lerr := logrus.ParseLevel(cfg.InternalLogLevel); lerr == nil {
		bootstrap.SetLevel(level)
	}

	a := &App{
		config:    cfg,
		bootstrap: bootstrap,
		hub:       distribution.NewHub(cfg.Hub, bootstrap),
	}

	// sinks de arquivo, por nome, para os grupos referenciarem
	fileSinks := make(map[string]types.Sink)
	for i := range cfg.FileSinks {
		fs, ferr := filesink.New(cfg.FileSinks[i], bootstrap)
		if ferr != nil {
			bootstrap.WithError(ferr).WithField("sink", cfg.FileSinks[i].Name).
				Warn("File sink starts degraded")
		}
		fileSinks[cfg.FileSinks[i].Name] = fs
	}

	for _, g := range cfg.Groups {
		gate, gerr := severity.ParseLogGate(g.Gate)
		if gerr != nil {
			return nil, gerr
		}

		var groupSinks []types.Sink
		if g.Console {
			groupSinks = append(groupSinks, sinks.NewConsoleSink(g.Name+"-console", gate, nil))
		}
		for _, ref := range g.FileSinks {
			target := fileSinks[ref]
			if g.Queued {
				qc := g.Queue
				qc.Name = fmt.Sprintf("%s-%s-queue", g.Name, ref)
				target = queuesink.New(qc, target, bootstrap)
			}
			groupSinks = append(groupSinks, target)
		}

		groupConfig := logconfig.LoggerConfig{
			Gate:                      gate,
			RecordCallSite:            g.RecordCallSite,
			SupportsRefCountedRelease: true,
		}
		if err := a.hub.AddGroup(g.Name, groupConfig, groupSinks...); err != nil {
			return nil, err
		}
		for _, name := range g.Loggers {
			if err := a.hub.SetGroup(name, g.Name); err != nil {
				return nil, err
			}
		}
	}

	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewServer(cfg.Metrics, bootstrap)
	}
	return a, nil
}

// Hub exposes the assembled distribution hub for the embedding program's
// loggers.
func (a *App) Hub() *distribution.Hub { return a.hub }

// Run starts the auxiliary services and blocks until SIGINT/SIGTERM, then
// tears the pipeline down.
func (a *App) Run() error {
	if a.metrics != nil {
		if err := a.metrics.Start(); err != nil {
			return err
		}
	}
	a.bootstrap.Info("Logging pipeline running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	a.bootstrap.WithField("signal", received.String()).Info("Shutting down")

	a.Shutdown()
	return nil
}

// Shutdown drains and stops everything in dependency order.
func (a *App) Shutdown() {
	a.hub.Shutdown()
	if a.metrics != nil {
		if err := a.metrics.Stop(); err != nil {
			a.bootstrap.WithError(err).Warn("Metrics server stop failed")
		}
	}
}

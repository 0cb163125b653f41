// Package app wires configuration, logging, the monitor and its consumer
// into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"ctrdash/internal/config"
	"ctrdash/internal/discovery"
	"ctrdash/internal/journal"
	"ctrdash/internal/monitor"
	"ctrdash/internal/observability/debugsrv"
	"ctrdash/internal/systemd"
	"ctrdash/internal/tui"
	logx "ctrdash/pkg/logx"
)

const shutdownTimeout = 5 * time.Second

// Options are the command-line overrides.
type Options struct {
	// Plain prints events through the logger instead of running the TUI.
	Plain bool
	// LogLevel overrides logging.level when set.
	LogLevel string
	// Output receives plain-mode events. Defaults to stdout.
	Output io.Writer
}

type App struct {
	opts Options

	cfgm *config.ConfigManager
	logs *logx.Service
	log  logx.Logger

	units []monitor.UnitID
	deps  monitor.Deps
	ctl   *systemd.Controller
	debug debugsrv.Config

	// notify reports readiness to the service manager; swapped in tests.
	notify func(state string) (bool, error)
}

// New loads the config, sets up logging and resolves the containers to
// watch. Nothing is started until Run.
func New(cfgPath string, opts Options) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logs, log := logx.New(logConfig(cfg.Logging, opts))
	log = log.With(logx.String("comp", "app"))
	if cfgm.Missing() {
		log.Warn("config file not found; using defaults", logx.String("path", cfgPath))
	}
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		_, err := debugsrv.FromConfig(c.Debug)
		return err
	})

	units, err := discovery.Resolve(cfg.Discovery)
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("discover containers: %w", err)
	}
	if len(units) == 0 {
		log.Warn("no containers found", logx.String("dir", cfg.Discovery.Dir))
	}

	deps, ctl, err := buildDeps(cfg, log)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	dbg, err := debugsrv.FromConfig(cfg.Debug)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}

	return &App{
		opts:   opts,
		cfgm:   cfgm,
		logs:   logs,
		log:    log,
		units:  units,
		deps:   deps,
		ctl:    ctl,
		debug:  dbg,
		notify: systemd.Notify,
	}, nil
}

// Units returns the containers this app watches.
func (a *App) Units() []monitor.UnitID { return a.units }

func buildDeps(cfg *config.Config, log logx.Logger) (monitor.Deps, *systemd.Controller, error) {
	bus, err := systemd.ParseBus(cfg.Systemd.Bus)
	if err != nil {
		return monitor.Deps{}, nil, err
	}
	timeout, err := cfg.Commands.TimeoutDuration()
	if err != nil {
		return monitor.Deps{}, nil, err
	}
	ctl := &systemd.Controller{Bus: bus}
	deps := monitor.Deps{
		Status:  systemd.LifecycleSource{Bus: bus},
		Control: ctl,
		Logs: &journal.Follower{
			Command:   cfg.Journal.Command,
			Lines:     cfg.Journal.Lines,
			ExtraArgs: cfg.Journal.ExtraArgs,
			Logger:    log.With(logx.String("comp", "journal")),
		},
		ServiceName:    systemd.Namer(cfg.Systemd.ServiceTemplate),
		Logger:         log.With(logx.String("comp", "monitor")),
		CommandTimeout: timeout,
		CommandRate:    cfg.Commands.RatePerSec,
	}
	return deps, ctl, nil
}

// logConfig maps the file section to logx. The TUI owns the terminal, so
// console output is replaced by the file sink there.
func logConfig(c config.LoggingConfig, opts Options) logx.Config {
	out := logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
	}
	if lvl := strings.TrimSpace(opts.LogLevel); lvl != "" {
		out.Level = lvl
	}
	if !opts.Plain && out.Console {
		out.Console = false
		out.File.Enabled = true
	}
	return out
}

// Run starts the monitor and blocks until ctx is cancelled or the user
// quits the dashboard. The monitor is always stopped before Run returns.
func (a *App) Run(ctx context.Context) error {
	defer func() { _ = a.logs.Close() }()
	defer func() { _ = a.ctl.Close() }()

	mon, err := monitor.Start(ctx, a.deps, a.units)
	if err != nil {
		return err
	}

	dbg := debugsrv.New(a.debug, a.log, mon)
	if dbg.Enabled() {
		dbg.Start(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()

	g.Go(func() error { return a.cfgm.Watch(runCtx) })
	g.Go(func() error {
		a.reloadLoop(runCtx, dbg)
		return nil
	})
	g.Go(func() error {
		defer stop()
		return a.consume(runCtx, mon)
	})
	g.Go(func() error {
		a.sdNotify(systemd.Ready)
		<-runCtx.Done()
		a.sdNotify(systemd.Stopping)
		return nil
	})

	err = g.Wait()

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	dbg.Stop(sctx)
	if serr := mon.Stop(sctx); serr != nil {
		a.log.Warn("monitor did not stop cleanly", logx.Err(serr))
	}
	a.log.Info("monitor stopped")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) consume(ctx context.Context, mon *monitor.Monitor) error {
	if a.opts.Plain {
		out := a.opts.Output
		if out == nil {
			out = os.Stdout
		}
		cfg := a.logs.Config()
		return PrintEvents(ctx, mon.Events(), logx.NewWriter(out, cfg.Level))
	}
	cfg := a.cfgm.Get()
	m := tui.NewModel(ctx, mon.Units().List(), mon.Events(), mon.Commands(), tui.Options{
		LogLines:   cfg.UI.LogLines,
		DebugLines: cfg.UI.DebugLines,
	})
	return tui.Run(ctx, m)
}

func (a *App) sdNotify(state string) {
	if a.notify == nil {
		return
	}
	sent, err := a.notify(state)
	if err != nil {
		a.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		a.log.Debug("sd_notify sent", logx.String("state", state))
	}
}

// reloadLoop applies hot sections of every published config.
func (a *App) reloadLoop(ctx context.Context, dbg *debugsrv.Service) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)

	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.apply(ctx, lastApplied, newCfg, dbg)
			lastApplied = newCfg
		}
	}
}

func (a *App) apply(ctx context.Context, oldCfg, newCfg *config.Config, dbg *debugsrv.Service) {
	sections, attrs, restart := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(logConfig(newCfg.Logging, a.opts))

	if dc, err := debugsrv.FromConfig(newCfg.Debug); err != nil {
		a.log.Warn("invalid debug config; keeping previous", logx.Err(err))
	} else if dbg != nil {
		dbg.Reconfigure(ctx, dc)
	}

	if len(restart) > 0 {
		a.log.Warn("config sections changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(restart, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

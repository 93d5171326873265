// Package app wires every long-lived dserv component into a single
// runnable process: the table, the ingestion orchestrator, the script
// worker, the TCP front end, the optional Kafka fan-out, log-file disk
// management, file-tailing sources, and hot-reloading of processor
// plugins and trigger scripts.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sheinberglab/dserv/internal/config"
	"github.com/sheinberglab/dserv/internal/filesource"
	"github.com/sheinberglab/dserv/internal/httpadmin"
	"github.com/sheinberglab/dserv/internal/kafkafanout"
	"github.com/sheinberglab/dserv/internal/logfanout"
	"github.com/sheinberglab/dserv/internal/orchestrator"
	"github.com/sheinberglab/dserv/internal/procregistry"
	"github.com/sheinberglab/dserv/internal/protocol"
	"github.com/sheinberglab/dserv/internal/scriptworker"
	"github.com/sheinberglab/dserv/internal/sendfanout"
	"github.com/sheinberglab/dserv/internal/table"
	"github.com/sheinberglab/dserv/internal/tracing"
	"github.com/sheinberglab/dserv/internal/trigger"
	"github.com/sheinberglab/dserv/pkg/dpoint"
	"github.com/sheinberglab/dserv/pkg/hotreload"
	"github.com/sheinberglab/dserv/pkg/leakdetection"
	"github.com/sheinberglab/dserv/pkg/positions"
	"github.com/sheinberglab/dserv/pkg/workerpool"
)

// multiNotify fans a single Publish out to every configured notify sink —
// the socket/queue send-client table always, the Kafka sink when enabled.
type multiNotify struct {
	sinks []orchestrator.NotifyFanout
}

func (m multiNotify) Publish(dp dpoint.Datapoint) {
	for _, s := range m.sinks {
		s.Publish(dp)
	}
}

// App owns every subsystem's lifecycle: construction happens in New,
// goroutines and listeners start in Start, and Stop tears them back down
// in roughly reverse order.
type App struct {
	cfg *config.Config
	log *logrus.Logger

	table    *table.Table
	orch     *orchestrator.Orchestrator
	registry *procregistry.Registry

	triggerDict       *trigger.Dict
	triggerDispatcher *trigger.Dispatcher
	engine            *scriptworker.BuiltinEngine
	worker            *scriptworker.Worker

	sendTbl *sendfanout.Table
	logTbl  *logfanout.Table
	kafka   *kafkafanout.Sink

	tracer      *tracing.Manager
	pool        *workerpool.Pool
	hub         *protocol.Hub
	listener    *protocol.Listener
	diskManager *logfanout.DiskManager
	sampler     *leakdetection.Sampler

	posStore     *positions.Store
	fileSources  []*filesource.Source
	procWatcher  *hotreload.Watcher
	trigWatcher  *hotreload.Watcher

	httpAdmin  *httpadmin.Server
	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New loads configFile, builds every component, and returns an App ready
// for Start. Start launches the long-lived goroutines; the one goroutine
// started during construction is the Kafka sink's error drain, when Kafka
// is enabled (kafkafanout.New).
func New(configFile string) (*App, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	if cfg.App.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{})
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		cfg:    cfg,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := a.build(); err != nil {
		cancel()
		return nil, err
	}
	return a, nil
}

func (a *App) build() error {
	a.table = table.NewWithShards(a.cfg.Table.Shards)

	a.registry = procregistry.New()
	loadProcessors(a.registry, a.cfg.Processor.PluginDir, a.log)

	a.triggerDict = trigger.NewDict()
	loadTriggers(a.triggerDict, a.cfg.Trigger.ScriptDir, a.log)

	a.engine = scriptworker.NewBuiltinEngine()
	a.worker = scriptworker.New(a.engine, nil, a.log, 256)
	a.triggerDispatcher = trigger.NewDispatcher(a.triggerDict, a.worker)

	// dservSet/dservTouch let a trigger script re-enter the table through
	// the same public API every other client uses, rather than poking the
	// table directly.
	a.registerBuiltins()

	a.sendTbl = sendfanout.NewTable()
	a.logTbl = logfanout.NewTable()

	notify := []orchestrator.NotifyFanout{a.sendTbl}
	if a.cfg.Kafka.Enabled {
		sink, err := kafkafanout.New(kafkafanout.Config{
			Brokers: a.cfg.Kafka.Brokers,
			Topic:   a.cfg.Kafka.Topic,
			DLQDir:  a.cfg.LogDir.Root,
		}, a.log)
		if err != nil {
			return fmt.Errorf("build kafka sink: %w", err)
		}
		a.kafka = sink
		notify = append(notify, sink)
	}

	a.orch = orchestrator.New(a.table, a.registry, a.triggerDispatcher, multiNotify{sinks: notify}, a.logTbl, a.log)

	tracer, err := tracing.New(tracing.Config{
		Enabled:       a.cfg.Tracing.Enabled,
		OTLPEndpoint:  a.cfg.Tracing.OTLPEndpoint,
		SamplingRatio: a.cfg.Tracing.SamplingRatio,
	}, a.log)
	if err != nil {
		return fmt.Errorf("build tracer: %w", err)
	}
	a.tracer = tracer

	a.pool = workerpool.New(workerpool.Config{}, a.log)

	a.hub = protocol.New(a.orch, a.sendTbl, a.logTbl, a.log)
	a.hub.Tracer = a.tracer

	isOpen := func(path string) bool {
		_, ok := a.logTbl.Find(path)
		return ok
	}
	a.sampler = leakdetection.New([]string{a.cfg.LogDir.Root}, 0, a.log)

	a.diskManager = logfanout.NewDiskManager(logfanout.DiskManagerConfig{
		Root:          a.cfg.LogDir.Root,
		MaxTotalBytes: a.cfg.LogDir.MaxTotalBytes,
		MinFreeBytes:  a.cfg.LogDir.MinFreeBytes,
		Compress:      a.cfg.LogDir.Compress,
	}, isOpen, a.log).WithFreeBytes(a.sampler.FreeBytes)

	if a.cfg.HTTP.Enabled {
		a.httpAdmin = httpadmin.New(a.table, a.log)
		a.httpServer = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", a.cfg.HTTP.Host, a.cfg.HTTP.Port),
			Handler: a.httpAdmin.Handler(),
		}
	}

	if a.cfg.FileSource.Enabled {
		store, err := positions.New(a.cfg.FileSource.PositionsDir, a.log)
		if err != nil {
			return fmt.Errorf("build position store: %w", err)
		}
		a.posStore = store
	}

	if a.cfg.Processor.HotReload {
		if err := a.buildWatchers(); err != nil {
			return err
		}
	}

	return nil
}

func (a *App) registerBuiltins() {
	a.engine.Register("dservSet", func(args []string) (string, error) {
		if len(args) < 2 {
			return "", fmt.Errorf("dservSet requires NAME VALUE")
		}
		a.orch.Set(dpoint.NewString(args[0], args[1]))
		return "1", nil
	})
	a.engine.Register("dservTouch", func(args []string) (string, error) {
		if len(args) < 1 {
			return "", fmt.Errorf("dservTouch requires NAME")
		}
		if a.orch.Touch(args[0]) {
			return "1", nil
		}
		return "0", nil
	})
}

func (a *App) buildWatchers() error {
	procWatcher, err := hotreload.New(hotreload.Config{
		Dirs:       []string{a.cfg.Processor.PluginDir},
		Extensions: []string{".so"},
	}, a.log)
	if err != nil {
		return fmt.Errorf("build processor watcher: %w", err)
	}
	procWatcher.OnChange = func(path string) { reloadProcessor(a.registry, path, a.log) }
	a.procWatcher = procWatcher

	trigWatcher, err := hotreload.New(hotreload.Config{
		Dirs:       []string{a.cfg.Trigger.ScriptDir},
		Extensions: []string{".trig"},
	}, a.log)
	if err != nil {
		return fmt.Errorf("build trigger watcher: %w", err)
	}
	trigWatcher.OnChange = func(path string) { reloadTrigger(a.triggerDict, path, a.log) }
	a.trigWatcher = trigWatcher
	return nil
}

// Start brings up every goroutine and listener: the script worker, the
// TCP acceptor, the disk manager, any file sources, and hot-reload
// watchers, in that order, followed by the HTTP admin server.
func (a *App) Start() error {
	a.log.Info("starting dserv")

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.worker.Run()
	}()

	a.pool.Start()

	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	ln, err := protocol.Listen(addr, a.hub, a.pool)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	a.listener = ln
	a.log.WithField("addr", addr).Info("listening")

	a.diskManager.Start()
	a.sampler.Start()

	if a.cfg.FileSource.Enabled {
		for _, path := range a.cfg.FileSource.Paths {
			src, err := filesource.Open(a.ctx, path, a.orch, a.posStore, a.log)
			if err != nil {
				a.log.WithError(err).WithField("path", path).Warn("filesource: failed to open, skipping")
				continue
			}
			a.fileSources = append(a.fileSources, src)
		}
	}

	if a.procWatcher != nil {
		a.procWatcher.Start()
	}
	if a.trigWatcher != nil {
		a.trigWatcher.Start()
	}

	if a.httpServer != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.log.WithField("addr", a.httpServer.Addr).Info("starting http admin server")
			if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.log.WithError(err).Error("http admin server error")
			}
		}()
	}

	a.log.Info("dserv started")
	return nil
}

// Stop performs an ordered graceful shutdown; every step is best-effort
// and logged rather than aborting the remaining steps on error.
func (a *App) Stop() error {
	a.log.Info("stopping dserv")
	a.cancel()

	if a.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.httpServer.Shutdown(ctx)
	}

	if a.listener != nil {
		a.listener.Close()
	}
	if a.pool != nil {
		a.pool.Stop()
	}

	if a.procWatcher != nil {
		a.procWatcher.Stop()
	}
	if a.trigWatcher != nil {
		a.trigWatcher.Stop()
	}

	for _, src := range a.fileSources {
		if err := src.Close(); err != nil {
			a.log.WithError(err).Warn("filesource: close failed")
		}
	}
	if a.posStore != nil {
		if err := a.posStore.Save(); err != nil {
			a.log.WithError(err).Warn("positions: save failed")
		}
	}

	if a.diskManager != nil {
		a.diskManager.Stop()
	}
	if a.sampler != nil {
		a.sampler.Stop()
	}

	a.sendTbl.ShutdownAll()
	a.logTbl.ShutdownAll()
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			a.log.WithError(err).Warn("kafka sink: close failed")
		}
	}

	a.worker.Submit(scriptworker.Request{Kind: scriptworker.Shutdown})

	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.log.WithError(err).Warn("tracer: shutdown failed")
		}
	}

	a.wg.Wait()
	a.log.Info("dserv stopped")
	return nil
}

// Run starts the application and blocks until SIGINT/SIGTERM, then stops
// it gracefully.
func (a *App) Run() error {
	if err := a.Start(); err != nil {
		return err
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	a.log.Info("shutdown signal received")
	return a.Stop()
}

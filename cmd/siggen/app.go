package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/dougsko/siggen/pkg/api"
	"github.com/dougsko/siggen/pkg/config"
	"github.com/dougsko/siggen/pkg/control"
	"github.com/dougsko/siggen/pkg/discovery"
	"github.com/dougsko/siggen/pkg/engine"
	"github.com/dougsko/siggen/pkg/hardware"
	"github.com/dougsko/siggen/pkg/logging"
	"github.com/dougsko/siggen/pkg/monitor"
	"github.com/dougsko/siggen/pkg/params"
	"github.com/dougsko/siggen/pkg/script"
	"github.com/dougsko/siggen/pkg/storage"
)

// App owns every long-lived component of a siggen process
type App struct {
	config   *config.Config
	httpAddr string

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error

	errMutex sync.Mutex
	runErr   error

	gen        *engine.Generator
	monitor    *monitor.LevelMonitor
	store      *storage.Store
	dispatcher *control.Dispatcher
	socket     *control.Server
	api        *api.Server
	announcer  *discovery.Announcer
}

// NewApp opens the device and builds the generator. Nothing is running
// until Start.
func NewApp(cfg *config.Config, httpAddr string) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		config:   cfg,
		httpAddr: httpAddr,
		ctx:      ctx,
		cancel:   cancel,
	}

	if err := app.setup(); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) setup() error {
	sink, err := hardware.Open(a.config.Device.Args)
	if err != nil {
		return err
	}
	info := sink.Info()
	logging.Infof("main", "Using %s device %s", info.Driver, info.Serial)

	var options []engine.Option

	a.monitor = monitor.NewLevelMonitor(a.config.Monitor.FFTSize, func() float64 {
		return sink.SampleRate()
	})
	options = append(options, engine.WithTap(a.monitor.Process))

	var presets control.Presets
	if path := a.config.Storage.DatabasePath; path != "" {
		a.store, err = storage.NewStore(path, a.config.Storage.MaxHistory)
		if err != nil {
			sink.Close()
			return fmt.Errorf("failed to open database: %w", err)
		}
		presets = a.store
		options = append(options, engine.WithRecorder(a.store))
		logging.Infof("main", "Presets and history in %s", path)
	}

	a.gen, err = engine.New(sink, engineOptions(a.config), options...)
	if err != nil {
		sink.Close()
		return err
	}
	a.dispatcher = control.NewDispatcher(a.gen, presets, "console")

	if path := a.config.API.UnixSocket; path != "" {
		a.socket = control.NewServer(a.dispatcher, path)
	}
	if a.httpAddr != "" {
		a.api = api.NewServer(a.gen, presets, a.monitor, a.httpAddr)
	}
	return nil
}

// Generator returns the generator
func (a *App) Generator() *engine.Generator {
	return a.gen
}

// Dispatcher returns the console command dispatcher
func (a *App) Dispatcher() *control.Dispatcher {
	return a.dispatcher
}

// Context is cancelled when the app is stopping
func (a *App) Context() context.Context {
	return a.ctx
}

// Err returns the error the data path stopped with, if any
func (a *App) Err() error {
	a.errMutex.Lock()
	defer a.errMutex.Unlock()
	return a.runErr
}

// Start launches the data path and every configured front end
func (a *App) Start() error {
	if err := a.gen.Start(a.ctx); err != nil {
		return err
	}

	if a.socket != nil {
		if err := a.socket.Start(); err != nil {
			return err
		}
	}

	if a.api != nil {
		if err := a.api.Start(); err != nil {
			return err
		}
		if a.config.API.MDNS {
			if err := a.announce(); err != nil {
				// the API stays up without an announcement
				logging.Warnf("main", "mDNS announcement failed: %v", err)
			}
		}
	}

	// end the app if the data path dies
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.gen.Wait(); err != nil {
			logging.Errorf("main", "Generator stopped: %v", err)
			a.errMutex.Lock()
			a.runErr = err
			a.errMutex.Unlock()
			a.cancel()
		}
	}()

	return nil
}

func (a *App) announce() error {
	_, portText, err := net.SplitHostPort(a.api.Addr())
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		return err
	}

	txt := discovery.Text(map[string]string{
		"version": Version,
		"api":     "/api/v1",
		"type":    string(a.gen.Graph().Type()),
		"tx_freq": params.FormatValue(mustGet(a.gen, params.TxFreq)),
	})
	a.announcer, err = discovery.Announce(a.config.API.Instance, port, txt)
	return err
}

func mustGet(gen *engine.Generator, key params.Key) any {
	v, err := gen.Get(key)
	if err != nil {
		return nil
	}
	return v
}

// RunScript executes a Lua script in the background. The app keeps
// running when it finishes.
func (a *App) RunScript(path string) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		err := script.NewRunner(a.gen).RunFile(a.ctx, path)
		switch {
		case err == nil:
			logging.Infof("main", "Script %s finished", path)
		case errors.Is(err, context.Canceled):
			logging.Debugf("main", "Script %s cancelled", path)
		default:
			logging.Errorf("main", "Script failed: %v", err)
		}
	}()
}

// Close stops everything in reverse order of startup and releases the
// device. Later calls return the first result.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		a.closeErr = a.close()
	})
	return a.closeErr
}

func (a *App) close() error {
	a.cancel()

	a.announcer.Shutdown()
	if a.api != nil {
		if err := a.api.Stop(); err != nil {
			logging.Warnf("main", "HTTP API shutdown error: %v", err)
		}
	}
	if a.socket != nil {
		if err := a.socket.Stop(); err != nil {
			logging.Warnf("main", "Control socket shutdown error: %v", err)
		}
	}

	var err error
	if a.gen != nil {
		err = a.gen.Close()
	}
	a.wg.Wait()

	if a.store != nil {
		if serr := a.store.Close(); err == nil {
			err = serr
		}
	}
	return err
}

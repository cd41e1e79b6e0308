package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Danondso/yamy-go/internal/daemonconfig"
	"github.com/Danondso/yamy-go/internal/engine"
	"github.com/Danondso/yamy-go/internal/ipc"
	"github.com/Danondso/yamy-go/internal/notify"
	"github.com/Danondso/yamy-go/internal/session"
)

func run() int {
	configPath := flag.String("config", daemonconfig.DefaultPath(), "path to yamyd.toml daemon settings")
	name := flag.String("name", "main", "instance name, used to derive the default IPC socket path")
	debug := flag.Bool("debug", false, "enable debug logging to stderr")
	flag.Parse()

	var logger *log.Logger
	if *debug {
		logger = log.New(os.Stderr, "[yamyd] ", log.Ltime|log.Lmicroseconds)
	} else {
		logger = log.New(io.Discard, "", 0)
	}

	daemonCfg, err := daemonconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "yamyd: load daemon config: %v\n", err)
		return 1
	}
	if daemonCfg.Log.Path != "" {
		f, err := os.OpenFile(daemonCfg.Log.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "yamyd: open log file %s: %v\n", daemonCfg.Log.Path, err)
			return 1
		}
		defer f.Close()
		logger.SetOutput(f)
	}

	bus := notify.New(logger)

	hook, inj, err := newPlatformHook(daemonCfg, logger)
	if err != nil {
		logger.Printf("input hook unavailable, running without key interception: %v", err)
	}

	windowSystem, err := newWindowSystem()
	if err != nil {
		logger.Printf("window system unavailable, keymaps will only resolve via the global fallback: %v", err)
	}

	eng := engine.New(hook, inj, windowSystem, bus)

	restorePriorSession(eng, daemonCfg, logger)

	if err := eng.Start(daemonCfg.KeymapConfigPath); err != nil {
		logger.Printf("initial engine start failed, IPC control plane stays up: %v", err)
	}

	socketPath := daemonCfg.IPC.SocketPath
	if socketPath == "" {
		socketPath = ipc.SocketPath(*name)
	}
	srv, err := ipc.NewServer(socketPath, eng, bus, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "yamyd: start IPC server: %v\n", err)
		return 1
	}
	logger.Printf("listening on %s", socketPath)

	go func() {
		if err := srv.Serve(); err != nil {
			logger.Printf("IPC server stopped: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Printf("shutting down")
	saveSessionOnExit(eng, daemonCfg, logger)
	_ = srv.Close()
	if eng.State() == engine.Running {
		_ = eng.Stop()
	}
	return 0
}

// restorePriorSession applies session.State (spec.md §6) before the engine's
// first Start, if session persistence is enabled and a prior session exists.
func restorePriorSession(eng *engine.Engine, cfg *daemonconfig.Config, logger *log.Logger) {
	if !cfg.Session.Enabled {
		return
	}
	path := cfg.Session.Path
	if path == "" {
		path = session.DefaultPath()
	}
	st, err := session.Load(path, time.Now())
	if err != nil {
		logger.Printf("session state rejected, starting fresh: %v", err)
		return
	}
	if st == nil {
		return
	}
	if st.ActiveConfigPath != "" {
		cfg.KeymapConfigPath = st.ActiveConfigPath
	}
}

// saveSessionOnExit persists session.State (spec.md §6) if enabled. This is
// the only place the daemon writes session state; internal/session itself
// only reads and validates.
func saveSessionOnExit(eng *engine.Engine, cfg *daemonconfig.Config, logger *log.Logger) {
	if !cfg.Session.Enabled {
		return
	}
	path := cfg.Session.Path
	if path == "" {
		path = session.DefaultPath()
	}
	st := session.State{
		ActiveConfigPath: cfg.KeymapConfigPath,
		EngineWasRunning: eng.State() == engine.Running,
		SavedTimestamp:   time.Now().Unix(),
	}
	if err := writeSessionFile(path, st); err != nil {
		logger.Printf("session save failed: %v", err)
	}
}

// writeSessionFile atomically writes st as JSON to path. This lives in
// cmd/yamyd, not internal/session, because internal/session's scope is
// deliberately read-only (see its package doc).
func writeSessionFile(path string, st session.State) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".yamy-session-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	enc := json.NewEncoder(tmp)
	if err := enc.Encode(st); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

func main() {
	os.Exit(run())
}

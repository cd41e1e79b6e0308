package ipc

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"

	"github.com/Danondso/yamy-go/internal/engine"
	"github.com/Danondso/yamy-go/internal/notify"
)

// EngineController is the subset of *engine.Engine the IPC layer drives.
// Defined as an interface so server tests can substitute a fake facade
// without standing up a real platform hook.
type EngineController interface {
	Start(configPath string) error
	Stop() error
	SetEnabled(enabled bool)
	SwitchConfiguration(path string) error
	Status() engine.Status
	Metrics() engine.Snapshot
	Investigate(hwnd uint64) (engine.InvestigateSnapshot, error)
}

// SocketPath returns the spec.md §6-style default control socket path for a
// named engine instance.
func SocketPath(name string) string {
	return fmt.Sprintf("/tmp/yamy-%s-%d", name, os.Getuid())
}

// Server is the IPC Message Loop (spec.md §4.H): one goroutine accepts
// connections, one goroutine per connection reads frames and dispatches to
// the engine. It never touches engine state directly outside the
// EngineController calls (spec.md §5).
type Server struct {
	listener net.Listener
	engine   EngineController
	bus      *notify.Bus
	logger   *log.Logger

	mu           sync.Mutex
	investigate  bool
	investigateN []*connWriter
}

// NewServer binds a Unix domain socket at socketPath. Any stale socket file
// left behind by a crashed previous instance is removed first.
func NewServer(socketPath string, eng EngineController, bus *notify.Bus, logger *log.Logger) (*Server, error) {
	_ = os.Remove(socketPath)
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("ipc: listen %s: %w", socketPath, err)
	}
	s := &Server{listener: ln, engine: eng, bus: bus, logger: logger}
	if bus != nil {
		bus.Subscribe([]notify.Kind{notify.KeyEvent}, s.onKeyEventNotification)
	}
	return s, nil
}

// Addr returns the bound socket path.
func (s *Server) Addr() string { return s.listener.Addr().String() }

// Serve accepts connections until the listener is closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.listener.Close()
}

type connWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (cw *connWriter) write(typ MessageType, payload []byte) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return WriteFrame(cw.w, typ, payload)
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	cw := &connWriter{w: conn}
	defer s.removeInvestigator(cw)

	for {
		frame, err := ReadFrame(conn)
		if err == io.EOF {
			return
		}
		if err == ErrOverflow {
			_ = cw.write(ErrorReply, []byte(err.Error()))
			continue
		}
		if err != nil {
			// IpcFraming: close the connection, engine stays responsive to
			// new ones (spec.md §7, §8 property 7).
			if s.logger != nil {
				s.logger.Printf("ipc: framing error: %v", err)
			}
			return
		}
		s.dispatch(cw, frame)
	}
}

func (s *Server) dispatch(cw *connWriter, frame Frame) {
	switch frame.Type {
	case StartCmd:
		s.handleStart(cw, frame)
	case StopCmd:
		s.handleStop(cw)
	case Reload:
		s.handleReload(cw, frame)
	case GetStatus:
		s.handleGetStatus(cw)
	case GetMetrics:
		s.handleGetMetrics(cw)
	case GetKeymaps:
		s.handleGetKeymaps(cw)
	case GetConfig:
		s.handleGetConfig(cw)
	case InvestigateWindow:
		s.handleInvestigateWindow(cw, frame)
	case EnableInvestigateMode:
		s.setInvestigateMode(cw, true)
	case DisableInvestigateMode:
		s.setInvestigateMode(cw, false)
	default:
		_ = cw.write(ErrorReply, []byte(fmt.Sprintf("unknown message type 0x%04X", uint32(frame.Type))))
	}
}

func (s *Server) handleStart(cw *connWriter, frame Frame) {
	path := string(frame.Payload)
	if err := s.engine.Start(path); err != nil {
		_ = cw.write(ErrorReply, []byte(err.Error()))
		return
	}
	_ = cw.write(Ok, nil)
}

func (s *Server) handleStop(cw *connWriter) {
	if err := s.engine.Stop(); err != nil {
		_ = cw.write(ErrorReply, []byte(err.Error()))
		return
	}
	_ = cw.write(Ok, nil)
}

func (s *Server) handleReload(cw *connWriter, frame Frame) {
	path := string(frame.Payload)
	if path == "" {
		// No path given: reload the currently active config file.
		path = s.engine.Status().ConfigPath
	}
	if err := s.engine.SwitchConfiguration(path); err != nil {
		_ = cw.write(ErrorReply, []byte(err.Error()))
		return
	}
	_ = cw.write(Ok, nil)
}

// statusJSON mirrors spec.md §6's bit-exact field names.
type statusJSON struct {
	State         string `json:"state"`
	Uptime        int64  `json:"uptime"`
	Config        string `json:"config"`
	KeyCount      int    `json:"key_count"`
	CurrentKeymap string `json:"current_keymap"`
}

func (s *Server) handleGetStatus(cw *connWriter) {
	st := s.engine.Status()
	state := "stopped"
	if st.Running {
		state = "running"
	}
	body, _ := json.Marshal(statusJSON{
		State:         state,
		Uptime:        int64(st.Uptime.Seconds()),
		Config:        st.ConfigPath,
		KeyCount:      st.KeyCount,
		CurrentKeymap: st.CurrentKeymap,
	})
	_ = cw.write(StatusReply, body)
}

type metricsJSON struct {
	LatencyAvgNs    int64   `json:"latency_avg_ns"`
	LatencyP99Ns    int64   `json:"latency_p99_ns"`
	LatencyMaxNs    int64   `json:"latency_max_ns"`
	CPUUsagePercent float64 `json:"cpu_usage_percent"`
	KeysPerSecond   float64 `json:"keys_per_second"`
}

func (s *Server) handleGetMetrics(cw *connWriter) {
	snap := s.engine.Metrics()
	body, _ := json.Marshal(metricsJSON{
		LatencyAvgNs:    snap.LatencyAvgNs,
		LatencyP99Ns:    snap.LatencyP99Ns,
		LatencyMaxNs:    snap.LatencyMaxNs,
		CPUUsagePercent: snap.CPUUsagePercent,
		KeysPerSecond:   snap.KeysPerSecond,
	})
	_ = cw.write(MetricsReply, body)
}

type keymapEntryJSON struct {
	Name        string `json:"name"`
	WindowClass string `json:"window_class"`
	WindowTitle string `json:"window_title"`
}

type keymapsJSON struct {
	Keymaps []keymapEntryJSON `json:"keymaps"`
}

// KeymapLister is implemented by engines that can enumerate their compiled
// keymaps; kept separate from EngineController so a minimal fake used in
// start/stop tests doesn't need to implement it.
type KeymapLister interface {
	ListKeymaps() []engine.KeymapInfo
}

func (s *Server) handleGetKeymaps(cw *connWriter) {
	lister, ok := s.engine.(KeymapLister)
	if !ok {
		_ = cw.write(KeymapsReply, mustJSON(keymapsJSON{}))
		return
	}
	entries := make([]keymapEntryJSON, 0, len(lister.ListKeymaps()))
	for _, km := range lister.ListKeymaps() {
		entries = append(entries, keymapEntryJSON{Name: km.Name, WindowClass: km.WindowClass, WindowTitle: km.WindowTitle})
	}
	_ = cw.write(KeymapsReply, mustJSON(keymapsJSON{Keymaps: entries}))
}

func (s *Server) handleGetConfig(cw *connWriter) {
	st := s.engine.Status()
	body, _ := json.Marshal(struct {
		Path string `json:"path"`
	}{Path: st.ConfigPath})
	_ = cw.write(ConfigReply, body)
}

func (s *Server) handleInvestigateWindow(cw *connWriter, frame Frame) {
	if len(frame.Payload) < 8 {
		_ = cw.write(ErrorReply, []byte("InvestigateWindow: payload too short for hwnd"))
		return
	}
	hwnd := beUint64(frame.Payload[:8])
	snap, err := s.engine.Investigate(hwnd)
	if err != nil {
		_ = cw.write(ErrorReply, []byte(err.Error()))
		return
	}

	payload := make([]byte, 0, investigateReplyFieldLen*4+1)
	payload = append(payload, fixedString(snap.KeymapName, investigateReplyFieldLen)...)
	payload = append(payload, fixedString(snap.MatchedClassRegex, investigateReplyFieldLen)...)
	payload = append(payload, fixedString(snap.MatchedTitleRegex, investigateReplyFieldLen)...)
	payload = append(payload, fixedString(snap.ActiveModifiers, investigateReplyFieldLen)...)
	isDefault := byte(0)
	if snap.IsDefault {
		isDefault = 1
	}
	payload = append(payload, isDefault)
	_ = cw.write(InvestigateWindowReply, payload)
}

func (s *Server) setInvestigateMode(cw *connWriter, on bool) {
	s.mu.Lock()
	s.investigate = on
	if on {
		s.investigateN = append(s.investigateN, cw)
	} else {
		s.removeInvestigatorLocked(cw)
	}
	s.mu.Unlock()
	_ = cw.write(Ok, nil)
}

// removeInvestigator drops cw from the investigate-mode fan-out list, e.g.
// when its connection closes without an explicit DisableInvestigateMode.
func (s *Server) removeInvestigator(cw *connWriter) {
	s.mu.Lock()
	s.removeInvestigatorLocked(cw)
	s.mu.Unlock()
}

func (s *Server) removeInvestigatorLocked(cw *connWriter) {
	filtered := s.investigateN[:0]
	for _, c := range s.investigateN {
		if c != cw {
			filtered = append(filtered, c)
		}
	}
	s.investigateN = filtered
}

// onKeyEventNotification fans a KeyEvent bus notification out to every
// connection currently in investigate mode (spec.md §6's 0x1005 notification).
func (s *Server) onKeyEventNotification(evt notify.Event) {
	s.mu.Lock()
	targets := make([]*connWriter, len(s.investigateN))
	copy(targets, s.investigateN)
	s.mu.Unlock()
	if len(targets) == 0 {
		return
	}

	payload := fixedString(evt.Message, investigateReplyFieldLen)
	for _, cw := range targets {
		_ = cw.write(KeyEventNotify, payload)
	}
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

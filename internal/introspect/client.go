// Package introspect implements the optional investigate-mode viewer
// (spec.md §4.H's InvestigateWindow/EnableInvestigateMode flow): a small
// Bubble Tea client that connects to the daemon's IPC socket, enables
// investigate mode, and renders live key events and daemon status.
package introspect

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/Danondso/yamy-go/internal/ipc"
)

// Client is a single IPC connection used for request/response calls plus an
// unsolicited KeyEventNotify stream once investigate mode is enabled.
type Client struct {
	conn net.Conn
	mu   sync.Mutex
}

// Dial connects to the daemon's Unix domain socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("introspect: dial %s: %w", socketPath, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// call sends one request frame and reads exactly one response frame. Used
// for every request/response message pair except investigate-mode's
// fire-and-forget KeyEventNotify stream.
func (c *Client) call(typ ipc.MessageType, payload []byte) (ipc.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ipc.WriteFrame(c.conn, typ, payload); err != nil {
		return ipc.Frame{}, err
	}
	return ipc.ReadFrame(c.conn)
}

// EnableInvestigateMode tells the daemon to start fanning out KeyEventNotify
// frames on this connection.
func (c *Client) EnableInvestigateMode() error {
	reply, err := c.call(ipc.EnableInvestigateMode, nil)
	if err != nil {
		return err
	}
	return replyErr(reply)
}

// DisableInvestigateMode stops the KeyEventNotify stream.
func (c *Client) DisableInvestigateMode() error {
	reply, err := c.call(ipc.DisableInvestigateMode, nil)
	if err != nil {
		return err
	}
	return replyErr(reply)
}

// StatusResult mirrors the StatusReply JSON shape (spec.md §6).
type StatusResult struct {
	State         string `json:"state"`
	Uptime        int64  `json:"uptime"`
	Config        string `json:"config"`
	KeyCount      int    `json:"key_count"`
	CurrentKeymap string `json:"current_keymap"`
}

// GetStatus requests the daemon's current lifecycle status.
func (c *Client) GetStatus() (StatusResult, error) {
	reply, err := c.call(ipc.GetStatus, nil)
	if err != nil {
		return StatusResult{}, err
	}
	if err := replyErr(reply); err != nil {
		return StatusResult{}, err
	}
	var st StatusResult
	if err := json.Unmarshal(reply.Payload, &st); err != nil {
		return StatusResult{}, fmt.Errorf("introspect: decode status: %w", err)
	}
	return st, nil
}

// MetricsResult mirrors the MetricsReply JSON shape (spec.md §6).
type MetricsResult struct {
	LatencyAvgNs    int64   `json:"latency_avg_ns"`
	LatencyP99Ns    int64   `json:"latency_p99_ns"`
	LatencyMaxNs    int64   `json:"latency_max_ns"`
	CPUUsagePercent float64 `json:"cpu_usage_percent"`
	KeysPerSecond   float64 `json:"keys_per_second"`
}

// GetMetrics requests the daemon's current latency/throughput snapshot.
func (c *Client) GetMetrics() (MetricsResult, error) {
	reply, err := c.call(ipc.GetMetrics, nil)
	if err != nil {
		return MetricsResult{}, err
	}
	if err := replyErr(reply); err != nil {
		return MetricsResult{}, err
	}
	var m MetricsResult
	if err := json.Unmarshal(reply.Payload, &m); err != nil {
		return MetricsResult{}, fmt.Errorf("introspect: decode metrics: %w", err)
	}
	return m, nil
}

// InvestigateWindow asks the daemon which keymap governs the given window
// handle right now.
func (c *Client) InvestigateWindow(hwnd uint64) (InvestigateResult, error) {
	payload := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		payload[i] = byte(hwnd)
		hwnd >>= 8
	}
	reply, err := c.call(ipc.InvestigateWindow, payload)
	if err != nil {
		return InvestigateResult{}, err
	}
	if err := replyErr(reply); err != nil {
		return InvestigateResult{}, err
	}
	return decodeInvestigateReply(reply.Payload)
}

// InvestigateResult is the decoded InvestigateWindowReply payload.
type InvestigateResult struct {
	KeymapName        string
	MatchedClassRegex string
	MatchedTitleRegex string
	ActiveModifiers   string
	IsDefault         bool
}

const investigateFieldLen = 256

func decodeInvestigateReply(b []byte) (InvestigateResult, error) {
	want := investigateFieldLen*4 + 1
	if len(b) != want {
		return InvestigateResult{}, fmt.Errorf("introspect: investigate reply len = %d, want %d", len(b), want)
	}
	field := func(i int) string { return trimNUL(b[i*investigateFieldLen : (i+1)*investigateFieldLen]) }
	return InvestigateResult{
		KeymapName:        field(0),
		MatchedClassRegex: field(1),
		MatchedTitleRegex: field(2),
		ActiveModifiers:   field(3),
		IsDefault:         b[len(b)-1] != 0,
	}, nil
}

func trimNUL(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func replyErr(f ipc.Frame) error {
	if f.Type == ipc.ErrorReply {
		return fmt.Errorf("introspect: daemon error: %s", f.Payload)
	}
	return nil
}

// StreamEvents reads unsolicited KeyEventNotify frames from the connection
// until it errors or is closed, sending each decoded message to out. Must
// run in its own goroutine after EnableInvestigateMode succeeds on this same
// connection. A Client used for StreamEvents must not also be used for
// concurrent call()s — the daemon interleaves KeyEventNotify frames with
// reply frames on the same connection, so request/response polling belongs
// on a second, separately dialed Client (see Model's reqClient/streamClient
// split).
func (c *Client) StreamEvents(out chan<- string) {
	for {
		frame, err := ipc.ReadFrame(c.conn)
		if err != nil {
			close(out)
			return
		}
		if frame.Type != ipc.KeyEventNotify {
			continue
		}
		out <- trimNUL(frame.Payload)
	}
}

package introspect

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const maxEventLines = 50

type statusMsg struct {
	status StatusResult
	err    error
}

type metricsMsg struct {
	metrics MetricsResult
	err     error
}

type keyEventMsg struct{ line string }

type streamClosedMsg struct{}

type pollTickMsg struct{}

// Model is the Bubble Tea model for the investigate-mode viewer. It holds
// two independently dialed connections: reqClient for GetStatus/GetMetrics
// request-response polling, and streamClient dedicated to
// EnableInvestigateMode's unsolicited KeyEventNotify fan-out. Sharing one
// connection between polling and streaming would race two concurrent
// readers against the same socket.
type Model struct {
	reqClient    *Client
	streamClient *Client
	events       chan string
	Status       StatusResult
	Metrics      MetricsResult
	EventLines   []string
	LastErr      error
	connected    bool
	streamEnded  bool
}

// NewModel builds a Model from two already-dialed Clients (typically two
// Dial() calls against the same socket path).
func NewModel(reqClient, streamClient *Client) Model {
	return Model{reqClient: reqClient, streamClient: streamClient, events: make(chan string, 256), connected: true}
}

// Init enables investigate mode, starts the event stream, and kicks off
// periodic status/metrics polling.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.enableCmd(),
		m.pollStatusCmd(),
		waitForEventCmd(m.events),
		pollTickCmd(),
	)
}

func (m Model) enableCmd() tea.Cmd {
	c := m.streamClient
	ev := m.events
	return func() tea.Msg {
		if err := c.EnableInvestigateMode(); err != nil {
			return statusMsg{err: err}
		}
		go c.StreamEvents(ev)
		return nil
	}
}

func (m Model) pollStatusCmd() tea.Cmd {
	c := m.reqClient
	return func() tea.Msg {
		st, err := c.GetStatus()
		if err != nil {
			return statusMsg{err: err}
		}
		return statusMsg{status: st}
	}
}

func (m Model) pollMetricsCmd() tea.Cmd {
	c := m.reqClient
	return func() tea.Msg {
		mt, err := c.GetMetrics()
		if err != nil {
			return metricsMsg{err: err}
		}
		return metricsMsg{metrics: mt}
	}
}

const pollInterval = 2 * time.Second

func pollTickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg { return pollTickMsg{} })
}

func waitForEventCmd(ch chan string) tea.Cmd {
	return func() tea.Msg {
		line, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return keyEventMsg{line: line}
	}
}

// Update handles messages and transitions state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			// Closing (rather than sending DisableInvestigateMode) avoids
			// racing the StreamEvents goroutine, which is still reading this
			// same connection; the daemon treats connection loss as an
			// implicit disable.
			_ = m.streamClient.Close()
			return m, tea.Quit
		}

	case statusMsg:
		if msg.err != nil {
			m.LastErr = msg.err
			return m, nil
		}
		m.Status = msg.status
		return m, nil

	case metricsMsg:
		if msg.err != nil {
			m.LastErr = msg.err
			return m, nil
		}
		m.Metrics = msg.metrics
		return m, nil

	case keyEventMsg:
		m.EventLines = append(m.EventLines, msg.line)
		if len(m.EventLines) > maxEventLines {
			m.EventLines = m.EventLines[len(m.EventLines)-maxEventLines:]
		}
		return m, waitForEventCmd(m.events)

	case streamClosedMsg:
		m.connected = false
		m.streamEnded = true
		return m, nil

	case pollTickMsg:
		if !m.connected {
			return m, nil
		}
		return m, tea.Batch(m.pollStatusCmd(), m.pollMetricsCmd(), pollTickCmd())
	}

	return m, nil
}

// Package dashboard is a small Bubble Tea diagnostic view that dials
// the daemon's own control-plane WebSocket as a read-only client and
// renders live queue activity. It is not part of the install pipeline;
// it exists purely as an operator-facing diagnostic, the same spirit as
// the CLI's --watcher and --dry-run flags. Grounded on the teacher's
// bubbletea/bubbles/lipgloss-based TUI.
package dashboard

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"

	"saberd/internal/controlplane"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

type resultMsg controlplane.ResultResponseData
type connectedMsg controlplane.ConnectedData
type wsErrMsg error

type Model struct {
	conn      *websocket.Conn
	targets   []controlplane.WireTarget
	recent    []controlplane.ResultResponseData
	maxRecent int
	prog      progress.Model
	err       error
}

func New(conn *websocket.Conn) Model {
	p := progress.New(progress.WithDefaultGradient(), progress.WithWidth(16))
	return Model{conn: conn, maxRecent: 20, prog: p}
}

// successRatio is the fraction of m.recent that ended in ResultSuccess,
// rendered as the dashboard's rolling health bar.
func (m Model) successRatio() float64 {
	if len(m.recent) == 0 {
		return 1
	}
	ok := 0
	for _, r := range m.recent {
		if r.Kind == "success" {
			ok++
		}
	}
	return float64(ok) / float64(len(m.recent))
}

func (m Model) Init() tea.Cmd {
	return readNext(m.conn)
}

func readNext(conn *websocket.Conn) tea.Cmd {
	return func() tea.Msg {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return wsErrMsg(err)
		}
		var env controlplane.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return wsErrMsg(err)
		}
		switch env.Type {
		case controlplane.TypeConnected:
			var d connectedMsg
			_ = json.Unmarshal(env.Data, &d)
			return d
		case controlplane.TypeResultResponse:
			var d resultMsg
			_ = json.Unmarshal(env.Data, &d)
			return d
		default:
			return readNext(conn)()
		}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch v := msg.(type) {
	case tea.KeyMsg:
		if v.String() == "q" || v.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil
	case connectedMsg:
		m.targets = v.Targets
		return m, readNext(m.conn)
	case resultMsg:
		m.recent = append([]controlplane.ResultResponseData{controlplane.ResultResponseData(v)}, m.recent...)
		if len(m.recent) > m.maxRecent {
			m.recent = m.recent[:m.maxRecent]
		}
		return m, readNext(m.conn)
	case wsErrMsg:
		m.err = v
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) View() string {
	var out string
	out += headerStyle.Render("saberd dashboard") + "\n\n"
	out += headerStyle.Render("targets") + "\n"
	for _, t := range m.targets {
		out += fmt.Sprintf("  %s  %s  (%s)\n", t.ID, t.Name, t.Mode)
	}
	out += "\n" + headerStyle.Render("recent results") + "  " + m.prog.ViewAs(m.successRatio()) + "\n"
	for _, r := range m.recent {
		line := fmt.Sprintf("  [%s] target=%s hash=%s", r.Kind, r.TargetID, r.Hash)
		switch r.Kind {
		case "success":
			out += okStyle.Render(line) + "\n"
		case "error", "tries_exceeded", "join_error":
			out += errStyle.Render(line+" "+r.Error) + "\n"
		default:
			out += dimStyle.Render(line) + "\n"
		}
	}
	if m.err != nil {
		out += "\n" + errStyle.Render("disconnected: "+m.err.Error()) + "\n"
	}
	out += "\n" + dimStyle.Render("q to quit") + "\n"
	return out
}

// Dial connects to the daemon's /pipe endpoint for read-only dashboard use.
func Dial(url string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	return conn, err
}

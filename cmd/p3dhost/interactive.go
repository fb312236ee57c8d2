package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/wippyai/plugin-host/bridge"
	"github.com/wippyai/plugin-host/handle"
	"github.com/wippyai/plugin-host/registry"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	kindStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	stateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const headerLines = 5

type requestMsg struct {
	req     *registry.Request
	handled bool
}

type hostDoneMsg struct {
	err error
}

// handleStats counts live gateway handles per kind. It is fed from handle
// events under the gateway lock, so it only touches atomics.
type handleStats struct {
	instances atomic.Int64
	values    atomic.Int64
	requests  atomic.Int64
}

func (s *handleStats) OnHandleEvent(e handle.Event) {
	delta := int64(1)
	if e.Type == handle.EventReleased {
		delta = -1
	}
	switch e.Kind {
	case handle.KindInstance:
		s.instances.Add(delta)
	case handle.KindValue:
		s.values.Add(delta)
	case handle.KindRequest:
		s.requests.Add(delta)
	}
}

func (s *handleStats) String() string {
	return fmt.Sprintf("instances %d  values %d  outstanding %d",
		s.instances.Load(), s.values.Load(), s.requests.Load())
}

type monitorModel struct {
	err      error
	stats    *handleStats
	gw       *bridge.Gateway
	cancel   context.CancelFunc
	pkg      string
	lines    []string
	spinner  spinner.Model
	input    textinput.Model
	log      viewport.Model
	inst     handle.Handle
	requests int
	ready    bool
	done     bool
}

func newMonitorModel(gw *bridge.Gateway, stats *handleStats, inst handle.Handle, pkg string, cancel context.CancelFunc) *monitorModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = stateStyle

	ti := textinput.New()
	ti.Placeholder = "expression, e.g. exports"
	ti.Prompt = "eval> "
	ti.Focus()

	return &monitorModel{
		gw:      gw,
		stats:   stats,
		inst:    inst,
		pkg:     pkg,
		cancel:  cancel,
		spinner: sp,
		input:   ti,
		log:     viewport.New(80, 10),
	}
}

func (m *monitorModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, textinput.Blink)
}

func (m *monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.cancel()
			return m, tea.Quit

		case "enter":
			expr := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if expr != "" {
				m.appendLine("eval " + expr + " = " + m.eval(expr))
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.log.Width = msg.Width
		m.log.Height = max(msg.Height-headerLines-2, 3)
		m.input.Width = max(msg.Width-len(m.input.Prompt)-1, 10)

	case requestMsg:
		m.requests++
		if msg.req.Kind == registry.RequestNotify && msg.req.Message == registry.NotifyScriptReady {
			m.ready = true
		}
		m.appendLine(formatRequest(msg.req, msg.handled))
		return m, nil

	case hostDoneMsg:
		m.done = true
		m.err = msg.err
		m.appendLine("host loop finished")
		return m, nil

	case spinner.TickMsg:
		if m.ready || m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.log, cmd = m.log.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *monitorModel) appendLine(line string) {
	m.lines = append(m.lines, line)
	m.log.SetContent(strings.Join(m.lines, "\n"))
	m.log.GotoBottom()
}

// eval runs expr against the package's script object.
func (m *monitorModel) eval(expr string) string {
	obj := m.gw.InstanceGetPandaScriptObject(m.inst)
	if obj == 0 {
		return errorStyle.Render("no script object")
	}
	defer m.gw.ValueDecref(obj)

	res := m.gw.ValueEval(obj, expr)
	if res == 0 {
		return errorStyle.Render("eval failed")
	}
	defer m.gw.ValueDecref(res)
	return resultStyle.Render(reprOf(m.gw, res))
}

func reprOf(gw *bridge.Gateway, h handle.Handle) string {
	buf := make([]byte, 256)
	n := gw.ValueGetRepr(h, buf)
	if n > len(buf) {
		buf = make([]byte, n)
		n = gw.ValueGetRepr(h, buf)
	}
	if n < 0 {
		return "<invalid>"
	}
	return string(buf[:n])
}

func formatRequest(req *registry.Request, handled bool) string {
	outcome := "handled"
	if !handled {
		outcome = "unhandled"
	}
	detail := req.Message
	if req.URL != "" {
		detail = req.URL
	}
	return fmt.Sprintf("#%d %s %s %s", req.ID, kindStyle.Render(req.Kind.String()), detail, helpStyle.Render(outcome))
}

func (m *monitorModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Plugin Host"))
	b.WriteString(" ")
	b.WriteString(m.pkg)
	b.WriteString("\n")

	state := "finished"
	if st, ok := m.gw.InstanceState(m.inst); ok {
		state = st.String()
	}
	status := fmt.Sprintf("instance %s  state %s  requests %d",
		m.inst, stateStyle.Render(state), m.requests)
	if !m.ready && !m.done {
		status = m.spinner.View() + " waiting for script  " + status
	}
	b.WriteString(status)
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(fmt.Sprintf("%s  live %v", m.stats, m.gw.Instances())))
	b.WriteString("\n\n")

	b.WriteString(m.log.View())
	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter eval • ↑/↓ scroll • esc quit"))
	return b.String()
}

func runInteractive(log *zap.Logger, opts hostOptions) error {
	// Guest output would corrupt the alternate screen.
	gw, err := startHost(log, opts, io.Discard, io.Discard)
	if err != nil {
		return err
	}
	defer gw.Finalize()

	stats := &handleStats{}
	gw.Subscribe(stats)

	inst := gw.NewInstance(nil, opts.tokens, nil)
	if !gw.InstanceStart(inst, opts.pkg) {
		return fmt.Errorf("start %s failed", opts.pkg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := tea.NewProgram(newMonitorModel(gw, stats, inst, opts.pkg, cancel), tea.WithAltScreen())

	loop := newHostLoop(gw, newFetcher(opts.downloadURL, log), log)
	loop.observe = func(req *registry.Request, handled bool) {
		p.Send(requestMsg{req: req, handled: handled})
	}
	go func() {
		p.Send(hostDoneMsg{err: loop.run(ctx)})
	}()

	_, err = p.Run()
	cancel()
	gw.InstanceFinish(inst)
	return err
}

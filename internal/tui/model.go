// Package tui is the interactive terminal dashboard. It renders the monitor's
// event stream and turns key presses into start/stop directives.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ctrdash/internal/eventbus"
	"ctrdash/internal/monitor"
)

const (
	DefaultLogLines   = 1000
	DefaultDebugLines = 200

	// maxBatch bounds how many queued events one update folds in, so a noisy
	// unit cannot starve key handling.
	maxBatch = 256

	debugPaneLines = 8
	minListWidth   = 24
)

// EventSource is the consumer side of the monitor's event bus.
type EventSource interface {
	Recv(ctx context.Context) (monitor.NamedEvent, error)
	TryRecv() (monitor.NamedEvent, bool)
}

// CommandSink queues directives without blocking.
type CommandSink interface {
	Send(unit monitor.UnitID, d monitor.Directive) error
}

// Options tune buffer sizes and key bindings. Zero values use defaults.
type Options struct {
	LogLines   int
	DebugLines int
	Keys       *KeyMap
}

type unitView struct {
	id        monitor.UnitID
	state     monitor.UnitState
	known     bool
	statusErr bool
	logs      []string
}

type eventBatchMsg []monitor.NamedEvent

type eventsClosedMsg struct{ err error }

// Model is the bubbletea model of the dashboard.
type Model struct {
	ctx      context.Context
	events   EventSource
	commands CommandSink
	keys     KeyMap

	units    []*unitView
	index    map[monitor.UnitID]int
	selected int

	debug     []string
	maxLogs   int
	maxDebug  int
	logView   viewport.Model
	debugView viewport.Model

	width, height int
	ready         bool
	closed        bool
	closeErr      error
}

// NewModel builds a dashboard for units. The unit order is kept as given.
func NewModel(ctx context.Context, units []monitor.UnitID, events EventSource, commands CommandSink, opts Options) *Model {
	if ctx == nil {
		ctx = context.Background()
	}
	m := &Model{
		ctx:       ctx,
		events:    events,
		commands:  commands,
		keys:      DefaultKeyMap,
		index:     make(map[monitor.UnitID]int, len(units)),
		maxLogs:   opts.LogLines,
		maxDebug:  opts.DebugLines,
		logView:   viewport.New(0, 0),
		debugView: viewport.New(0, 0),
	}
	if opts.Keys != nil {
		m.keys = *opts.Keys
	}
	if m.maxLogs <= 0 {
		m.maxLogs = DefaultLogLines
	}
	if m.maxDebug <= 0 {
		m.maxDebug = DefaultDebugLines
	}
	for _, id := range units {
		if _, dup := m.index[id]; dup {
			continue
		}
		m.index[id] = len(m.units)
		m.units = append(m.units, &unitView{id: id})
	}
	return m
}

func (m *Model) Init() tea.Cmd {
	return waitForEvents(m.ctx, m.events)
}

// waitForEvents blocks for one event, then folds in whatever else is queued.
func waitForEvents(ctx context.Context, src EventSource) tea.Cmd {
	if src == nil {
		return nil
	}
	return func() tea.Msg {
		ev, err := src.Recv(ctx)
		if err != nil {
			return eventsClosedMsg{err: err}
		}
		batch := eventBatchMsg{ev}
		for len(batch) < maxBatch {
			next, ok := src.TryRecv()
			if !ok {
				break
			}
			batch = append(batch, next)
		}
		return batch
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case eventBatchMsg:
		for _, ev := range msg {
			m.apply(ev)
		}
		return m, waitForEvents(m.ctx, m.events)

	case eventsClosedMsg:
		m.closed = true
		if msg.err != nil && !errors.Is(msg.err, eventbus.ErrClosed) && !errors.Is(msg.err, context.Canceled) {
			m.closeErr = msg.err
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		m.selectUnit(m.selected - 1)
	case key.Matches(msg, m.keys.Down):
		m.selectUnit(m.selected + 1)
	case key.Matches(msg, m.keys.Toggle):
		if u := m.current(); u != nil {
			d := monitor.DirectiveStart
			if u.known && u.state.Running() {
				d = monitor.DirectiveStop
			}
			m.send(u.id, d)
		}
	case key.Matches(msg, m.keys.Start):
		if u := m.current(); u != nil {
			m.send(u.id, monitor.DirectiveStart)
		}
	case key.Matches(msg, m.keys.Stop):
		if u := m.current(); u != nil {
			m.send(u.id, monitor.DirectiveStop)
		}
	case key.Matches(msg, m.keys.PageUp):
		m.logView.PageUp()
	case key.Matches(msg, m.keys.PageDown):
		m.logView.PageDown()
	}
	return m, nil
}

func (m *Model) send(id monitor.UnitID, d monitor.Directive) {
	if m.commands == nil {
		return
	}
	if err := m.commands.Send(id, d); err != nil {
		m.pushDebug(fmt.Sprintf("[ERROR] %s - %v", id, err))
	}
}

func (m *Model) current() *unitView {
	if m.selected < 0 || m.selected >= len(m.units) {
		return nil
	}
	return m.units[m.selected]
}

func (m *Model) selectUnit(i int) {
	if len(m.units) == 0 {
		return
	}
	i = max(0, min(i, len(m.units)-1))
	if i == m.selected {
		return
	}
	m.selected = i
	m.logView.SetContent(strings.Join(m.units[i].logs, "\n"))
	m.logView.GotoBottom()
}

func (m *Model) apply(ev monitor.NamedEvent) {
	i, ok := m.index[ev.Unit]
	if !ok {
		return
	}
	u := m.units[i]
	switch p := ev.Payload.(type) {
	case monitor.StateChanged:
		u.state = p.State
		u.known = true
	case monitor.UnitLogLine:
		u.logs = appendCapped(u.logs, p.Text, m.maxLogs)
		if i == m.selected {
			m.refreshLogs()
		}
	case monitor.DiagnosticLog:
		m.pushDebug(fmt.Sprintf("[LOG] %s - %s", ev.Unit, p.Text))
	case monitor.Failure:
		if ev.Kind == monitor.KindStatus {
			u.statusErr = true
		}
		m.pushDebug(fmt.Sprintf("[ERROR] %s - %v", ev.Unit, p.Err))
	}
}

// refreshLogs re-renders the selected unit's lines. The view keeps following
// new lines only while it was already at the bottom.
func (m *Model) refreshLogs() {
	u := m.current()
	if u == nil {
		return
	}
	follow := m.logView.AtBottom()
	m.logView.SetContent(strings.Join(u.logs, "\n"))
	if follow {
		m.logView.GotoBottom()
	}
}

func (m *Model) pushDebug(line string) {
	m.debug = appendCapped(m.debug, line, m.maxDebug)
	m.debugView.SetContent(strings.Join(m.debug, "\n"))
	m.debugView.GotoBottom()
}

func appendCapped(buf []string, line string, limit int) []string {
	buf = append(buf, line)
	if over := len(buf) - limit; over > 0 {
		// Copy down so the backing array does not grow without bound.
		n := copy(buf, buf[over:])
		buf = buf[:n]
	}
	return buf
}

func (m *Model) listWidth() int {
	w := minListWidth
	for _, u := range m.units {
		// name + space + longest badge ("[Maintenance]")
		w = max(w, len(u.id)+1+len("[Maintenance]")+2)
	}
	if m.width > 0 {
		w = min(w, m.width/2)
	}
	return w
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	frame := paneStyle.GetHorizontalFrameSize()
	vframe := paneStyle.GetVerticalFrameSize()

	top := max(height-(debugPaneLines+vframe+1)-1, 3)
	m.logView.Width = max(width-m.listWidth()-2*frame, 1)
	m.logView.Height = max(top-vframe-1, 1)
	m.debugView.Width = max(width-frame, 1)
	m.debugView.Height = debugPaneLines
	m.ready = true
	m.refreshLogs()
	m.debugView.GotoBottom()
}

func (m *Model) View() string {
	if !m.ready {
		return "starting dashboard..."
	}
	height := m.logView.Height + 1

	var list strings.Builder
	list.WriteString(titleStyle.Render("Containers"))
	for i, u := range m.units {
		list.WriteByte('\n')
		row := fmt.Sprintf("%s %s", u.id, badge(u))
		if i == m.selected {
			row = selectedStyle.Render(string(u.id)) + " " + badge(u)
		}
		list.WriteString(row)
	}
	left := paneStyle.Width(m.listWidth()).Height(height).Render(list.String())

	title := "Logs"
	if u := m.current(); u != nil {
		title = "Logs: " + string(u.id)
	}
	right := paneStyle.Width(m.logView.Width).Height(height).
		Render(titleStyle.Render(title) + "\n" + m.logView.View())

	bottom := paneStyle.Width(m.debugView.Width).
		Render(titleStyle.Render("Internal Logs") + "\n" + m.debugView.View())

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, left, right),
		bottom,
		m.helpLine(),
	)
}

func (m *Model) helpLine() string {
	parts := make([]string, 0, 9)
	for _, b := range m.keys.help() {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	if m.closed {
		status := "monitor stopped"
		if m.closeErr != nil {
			status += ": " + m.closeErr.Error()
		}
		parts = append(parts, status)
	}
	return helpStyle.Render(strings.Join(parts, " • "))
}

// Run drives the dashboard until the user quits or ctx is cancelled.
func Run(ctx context.Context, m *Model, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(m, opts...)
	_, err := p.Run()
	if err != nil && ctx.Err() != nil && errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

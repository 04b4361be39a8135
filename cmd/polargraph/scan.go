package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/polargraph/pkg/pattern"
	"github.com/gwillem/polargraph/pkg/scan"
)

type ScanCommand struct {
	Pattern string `long:"pattern" choice:"raster" choice:"polar" description:"Override the configured scan pattern"`
	Start   bool   `long:"start" description:"Start scanning immediately"`
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + status row
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

// Axis colors
var axisColors = map[string]string{
	"x": "196", // red
	"y": "51",  // cyan
}

var axes = []string{"x", "y"}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	movingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

type scanModel struct {
	engine    *scan.Engine
	ctx       context.Context
	logs      <-chan string
	chart     *streamlinechart.Model
	width     int // terminal width
	height    int // terminal height
	messages  []string
	waypoints int
	last      scan.Sample
	result    string
	busy      bool // a motion command is running
	quitAfter bool // quit once the current motion has been released
	quitting  bool
}

// Messages from the engine
type sampleMsg scan.Sample
type logMsg string
type doneMsg struct {
	res scan.Result
	err error
}

func waitForSample(e *scan.Engine) tea.Cmd {
	return func() tea.Msg {
		return sampleMsg(<-e.Samples())
	}
}

func waitForLog(logs <-chan string) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-logs)
	}
}

// run performs a blocking engine motion off the UI loop.
func run(ctx context.Context, motion func(context.Context) (scan.Result, error)) tea.Cmd {
	return func() tea.Msg {
		res, err := motion(ctx)
		return doneMsg{res: res, err: err}
	}
}

func (m *scanModel) addLog(msg string) {
	m.messages = append(m.messages, msg)
	if len(m.messages) > maxLogs {
		m.messages = m.messages[len(m.messages)-maxLogs:]
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *scanModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - legendHeight - footerHeight - borderSize
	if height < 10 {
		height = 10
	}
	return width, height
}

func (m *scanModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

// chartRange returns the span of x and y over the region in mm, with home included.
func chartRange(r pattern.Region) (lo, hi float64) {
	x1, _, x2, y2 := r.Rect()
	lo = math.Min(x1, 0) * 1e3
	hi = math.Max(math.Max(x2, y2), r.Y0) * 1e3
	margin := 0.05 * (hi - lo)
	return lo - margin, hi + margin
}

func initialScanModel(ctx context.Context, e *scan.Engine, logs <-chan string) scanModel {
	lo, hi := chartRange(e.Pattern().Region())
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(lo, hi),
	)

	for _, name := range axes {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(axisColors[name]))
		chart.SetDataSetStyles(name, runes.ThinLineStyle, style)
	}

	return scanModel{
		engine: e,
		ctx:    ctx,
		logs:   logs,
		chart:  &chart,
	}
}

func (m scanModel) Init() tea.Cmd {
	return tea.Batch(
		waitForSample(m.engine),
		waitForLog(m.logs),
	)
}

func (m scanModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		idle := !m.busy
		switch msg.String() {
		case "q", "ctrl+c":
			if idle {
				m.quitting = true
				return m, tea.Quit
			}
			m.quitAfter = true
			m.engine.Interrupt()
		case "s":
			if !idle {
				m.engine.Interrupt()
				return m, nil
			}
			m.waypoints = len(m.engine.Pattern().Vertices())
			m.result = ""
			m.busy = true
			return m, run(m.ctx, m.engine.Scan)
		case "h":
			if idle {
				m.waypoints = 1
				m.busy = true
				return m, run(m.ctx, m.engine.Home)
			}
		case "c":
			if idle {
				m.waypoints = 1
				m.busy = true
				return m, run(m.ctx, m.engine.Center)
			}
		}

	case sampleMsg:
		s := scan.Sample(msg)
		m.last = s
		m.chart.PushDataSet("x", s.Position.X*1e3)
		m.chart.PushDataSet("y", s.Position.Y*1e3)
		m.chart.DrawAll()
		return m, waitForSample(m.engine)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.logs)

	case doneMsg:
		m.busy = false
		m.result = fmt.Sprintf("%s: %d/%d waypoints", msg.res.Outcome, msg.res.Reached, msg.res.Waypoints)
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.addLog(msg.err.Error())
		}
		if m.quitAfter {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m scanModel) View() string {
	if m.quitting {
		return "Scan stopped.\n"
	}

	var sb strings.Builder

	// Header
	region := m.engine.Pattern().Region()
	sb.WriteString(titleStyle.Render("Polargraph Scan"))
	sb.WriteString(fmt.Sprintf(" - %.0fx%.0f mm, step %g mm", region.Width*1e3, region.Height*1e3, region.Step))
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Legend and status
	sb.WriteString(renderLegend())
	sb.WriteString("\n")
	sb.WriteString(m.renderStatus())
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - 4).
		Foreground(lipgloss.Color("9")) // bright red

	var logLines string
	if len(m.messages) == 0 {
		logLines = statusStyle.Render("s: start/stop  h: home  c: center  q: quit")
	} else {
		logLines = strings.Join(m.messages, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func (m scanModel) renderStatus() string {
	state := m.engine.State()
	var sb strings.Builder
	if state == scan.StateIdle {
		sb.WriteString(statusStyle.Render(state.String()))
	} else {
		sb.WriteString(movingStyle.Render(state.String()))
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  waypoint %d/%d", m.last.Waypoint+1, m.waypoints)))
	}
	sb.WriteString(statusStyle.Render(fmt.Sprintf("  x=%.1f y=%.1f mm", m.last.Position.X*1e3, m.last.Position.Y*1e3)))
	if m.result != "" {
		sb.WriteString(statusStyle.Render("  last: " + m.result))
	}
	return sb.String()
}

func renderLegend() string {
	var items []string
	for _, name := range axes {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(axisColors[name])).Bold(true)
		item := colorStyle.Render("━━") + " " + name + " [mm]"
		items = append(items, item)
	}
	return strings.Join(items, "  ")
}

// logHook mirrors warnings and errors into the log box.
func logHook(ch chan<- string) zap.Option {
	return zap.Hooks(func(e zapcore.Entry) error {
		if e.Level < zapcore.WarnLevel {
			return nil
		}
		select {
		case ch <- fmt.Sprintf("%s %s: %s", e.Level.CapitalString(), e.LoggerName, e.Message):
		default:
		}
		return nil
	})
}

func (c *ScanCommand) Execute(args []string) error {
	logs := make(chan string, 64)
	// the terminal belongs to the UI, logs go to the file and the log box
	log := newLogger(io.Discard, logHook(logs))
	defer log.Sync()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.Pattern != "" {
		cfg.Scan.Pattern = c.Pattern
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e, p, err := newEngine(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer p.Close()

	fmt.Printf("Loaded configuration from %s\n", opts.Config)

	model := initialScanModel(ctx, e, logs)
	prog := tea.NewProgram(model, tea.WithAltScreen())
	if c.Start {
		go prog.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	}
	if _, err := prog.Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}

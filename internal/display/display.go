// Package display provides the terminal UI using Bubble Tea.
//
// The [UI] type manages a persistent status bar (alerts, timers and the
// next alarm) and an input prompt at the bottom of the terminal. All
// application output is printed above the rendered area via
// Program.Println / Printf, so concurrent writes never garble the display.
package display

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hammamikhairi/ottoclock/internal/alarm"
	"github.com/hammamikhairi/ottoclock/internal/domain"
	"github.com/hammamikhairi/ottoclock/internal/engine"
	"github.com/hammamikhairi/ottoclock/internal/timer"
)

// ── Styles ───────────────────────────────────────────────────────

var (
	barBg = lipgloss.NewStyle().
		Background(lipgloss.Color("#27272a")).
		Foreground(lipgloss.Color("#a1a1aa"))

	timerRunStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#fde68a"))

	alertStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#fca5a5")).
			Bold(true)

	pausedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#71717a")).
			Italic(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#a1a1aa"))

	sepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#52525b"))

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#94a3b8"))

	// BannerStyle is the muted slate used for the startup banner.
	BannerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#94a3b8"))

	chatStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bae6fd"))

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bbf7d0"))

	primaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d4d4d8"))

	secondaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#71717a"))

	urgentOutputStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#fca5a5"))

	userInputEchoStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#a1a1aa"))
)

const prompt = "clock> "

// Source is what the status bar reads every refresh.
type Source interface {
	Alarms(ctx context.Context) ([]*domain.Alarm, error)
	Timers(ctx context.Context) ([]*domain.Timer, error)
	Alerts() []engine.Alert
}

// ── UI ───────────────────────────────────────────────────────────

// UI manages the terminal through Bubble Tea.
//
// Call [NewUI] then [UI.Run] (blocking). Other goroutines may
// safely call [UI.Println], [UI.Printf], and read from
// [UI.InputChan] at any time after [UI.WaitReady] returns.
type UI struct {
	program *tea.Program
	inputCh chan string
	readyCh chan struct{}
	quitCh  chan struct{}
	source  Source
	now     func() time.Time
	done    atomic.Bool
}

// NewUI creates the display. Call SetSource, then Run() to start.
func NewUI() *UI {
	return &UI{
		now:     time.Now,
		inputCh: make(chan string, 16),
		readyCh: make(chan struct{}),
		quitCh:  make(chan struct{}),
	}
}

// SetSource attaches what the status bar shows. The engine prints through
// the UI, so the UI is created first and the engine attached here.
func (u *UI) SetSource(s Source) { u.source = s }

// Println prints a line above the prompt. Thread-safe.
// If the program hasn't started yet, falls back to fmt.Println.
func (u *UI) Println(a ...interface{}) {
	if u.program != nil && !u.done.Load() {
		u.program.Println(a...)
	} else {
		fmt.Println(a...)
	}
}

// Printf prints formatted text above the prompt on its own line.
// Thread-safe.
func (u *UI) Printf(format string, a ...interface{}) {
	if u.program != nil && !u.done.Load() {
		u.program.Printf(format, a...)
	} else {
		fmt.Printf(format+"\n", a...)
	}
}

// InputChan returns completed user-input lines.
func (u *UI) InputChan() <-chan string { return u.inputCh }

// ── Styled print helpers ─────────────────────────────────────────

// PrintChat prints a normal response line.
func (u *UI) PrintChat(text string) {
	u.Println(chatStyle.Render("  " + text))
}

// PrintHeader prints a section header like "Alarms (3)".
func (u *UI) PrintHeader(text string) {
	u.Println(headerStyle.Render("  " + text))
}

// PrintItem prints one listing row.
func (u *UI) PrintItem(text string) {
	u.Println(primaryStyle.Render("  " + text))
}

// PrintHint prints a secondary/dimmed line.
func (u *UI) PrintHint(text string) {
	u.Println(secondaryStyle.Render("  " + text))
}

// PrintUrgent prints an urgent/error line.
func (u *UI) PrintUrgent(text string) {
	u.Println(urgentOutputStyle.Render("  " + text))
}

// PrintUserInput echoes the user's typed command into the scrollback.
func (u *UI) PrintUserInput(text string) {
	u.Println(promptStyle.Render("clock") + secondaryStyle.Render("> ") + userInputEchoStyle.Render(text))
}

// WaitReady blocks until the Bubble Tea event loop is running.
func (u *UI) WaitReady() { <-u.readyCh }

// Quit tells Bubble Tea to exit.
func (u *UI) Quit() {
	if u.program != nil {
		u.program.Quit()
	}
}

// QuitChan is closed when Run returns.
func (u *UI) QuitChan() <-chan struct{} { return u.quitCh }

// Run starts the Bubble Tea event loop. Blocks until quit.
func (u *UI) Run() error {
	ti := textinput.New()
	// Plain-text prompt: styled prompts add ANSI bytes that break the
	// textinput width math for long input.
	ti.Prompt = prompt
	ti.PromptStyle = promptStyle
	ti.TextStyle = userInputEchoStyle
	ti.Cursor.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#94a3b8"))
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 60 // updated on first WindowSizeMsg

	m := model{
		source:  u.source,
		now:     u.now,
		input:   ti,
		inputCh: u.inputCh,
		readyCh: u.readyCh,
		echoFn: func(v string) {
			u.PrintUserInput(v)
		},
	}

	u.program = tea.NewProgram(m)
	_, err := u.program.Run()
	u.done.Store(true)
	close(u.quitCh)
	return err
}

// ── Bubble Tea model ─────────────────────────────────────────────

type model struct {
	source  Source
	now     func() time.Time
	input   textinput.Model
	inputCh chan<- string
	readyCh chan struct{}
	echoFn  func(string) // prints user input into scrollback
	items   []barItem
	width   int
}

type itemKind int

const (
	itemAlert itemKind = iota
	itemTimer
	itemPaused
	itemNext
)

type barItem struct {
	kind  itemKind
	label string
	value string
}

func (it barItem) plain() string {
	if it.value == "" {
		return it.label
	}
	return it.label + ": " + it.value
}

// Messages.
type tickMsg time.Time

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		tickCmd(),
		signalReady(m.readyCh),
	)
}

func signalReady(ch chan struct{}) tea.Cmd {
	return func() tea.Msg {
		close(ch)
		return nil
	}
}

// Ticks faster than once a second so a countdown never skips a digit.
func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEnter:
			v := m.input.Value()
			m.input.Reset()
			if strings.TrimSpace(v) != "" {
				m.inputCh <- v
				// Print the echo from a Cmd so it runs outside Update.
				echoFn := m.echoFn
				return m, func() tea.Msg {
					echoFn(v)
					return nil
				}
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		if msg.Width > len(prompt) {
			m.input.Width = msg.Width - len(prompt)
		}
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tea.Batch(tickCmd(), tea.SetWindowTitle(m.titleStr()))
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) refresh() {
	if m.source == nil {
		return
	}
	ctx := context.Background()
	timers, err := m.source.Timers(ctx)
	if err != nil {
		return
	}
	alarms, err := m.source.Alarms(ctx)
	if err != nil {
		return
	}
	m.items = statusItems(m.now(), timers, alarms, m.source.Alerts())
}

// statusItems builds the bar: undismissed alerts first, then running and
// paused timers in list order, then the next alarm to ring.
func statusItems(now time.Time, timers []*domain.Timer, alarms []*domain.Alarm, alerts []engine.Alert) []barItem {
	var items []barItem
	for _, a := range alerts {
		items = append(items, barItem{kind: itemAlert, label: a.Message})
	}

	for _, t := range timers {
		switch t.Status {
		case domain.TimerRunning:
			items = append(items, barItem{kind: itemTimer, label: t.Name, value: timer.FormatClock(timer.Remaining(t, now))})
		case domain.TimerPaused:
			items = append(items, barItem{kind: itemPaused, label: t.Name, value: timer.FormatClock(t.Remaining) + " paused"})
		}
	}

	var next *domain.Alarm
	var at time.Time
	for _, a := range alarms {
		when := alarm.NextRing(a, now)
		if when.IsZero() {
			continue
		}
		if next == nil || when.Before(at) {
			next, at = a, when
		}
	}
	if next != nil {
		label := "next " + next.Time.String()
		if next.Label != "" {
			label += " " + next.Label
		}
		items = append(items, barItem{kind: itemNext, label: label, value: alarm.UntilText(now, at)})
	}
	return items
}

func (m model) titleStr() string {
	if len(m.items) == 0 {
		return "ottoclock"
	}
	p := make([]string, 0, len(m.items))
	for _, it := range m.items {
		p = append(p, it.plain())
	}
	return "ottoclock | " + strings.Join(p, " | ")
}

func (m model) View() string {
	var b strings.Builder

	if len(m.items) > 0 {
		b.WriteString(m.renderBar())
		b.WriteByte('\n')
	}

	// Blank line before prompt for visual separation.
	b.WriteByte('\n')
	b.WriteString(m.input.View())
	return b.String()
}

func (m model) renderBar() string {
	parts := make([]string, 0, len(m.items))
	for _, it := range m.items {
		switch it.kind {
		case itemAlert:
			parts = append(parts, alertStyle.Render(it.label))
		case itemPaused:
			parts = append(parts, pausedStyle.Render(it.plain()))
		default:
			parts = append(parts, labelStyle.Render(it.label+": ")+timerRunStyle.Render(it.value))
		}
	}

	content := " " + strings.Join(parts, sepStyle.Render("  │  ")) + " "

	w := m.width
	if w <= 0 {
		w = 80
	}
	return barBg.Width(w).Render(content)
}

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// watchHistorySize caps the number of cycles kept on screen.
const watchHistorySize = 8

var (
	watchTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	watchBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).PaddingLeft(1).PaddingRight(1)
	watchLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	watchCountStyle = lipgloss.NewStyle().Bold(true)
	watchErrStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	watchDimStyle   = lipgloss.NewStyle().Faint(true)
)

type cycleMsg struct {
	report cycleReport
}

type watchErrMsg struct {
	err error
}

type watchTickMsg time.Time

// watchModel renders the live dashboard for an interactive watch.
type watchModel struct {
	session  *watchSession
	cycles   []cycleReport
	lastErr  error
	started  time.Time
	now      time.Time
	quitting bool
}

func newWatchModel(s *watchSession, initial cycleReport) watchModel {
	now := time.Now()
	return watchModel{
		session: s,
		cycles:  []cycleReport{initial},
		started: now,
		now:     now,
	}
}

func watchTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return watchTickMsg(t)
	})
}

func (m watchModel) Init() tea.Cmd {
	return watchTick()
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	case watchTickMsg:
		m.now = time.Time(msg)
		return m, watchTick()
	case cycleMsg:
		m.lastErr = nil
		m.cycles = append(m.cycles, msg.report)
		if len(m.cycles) > watchHistorySize {
			m.cycles = m.cycles[len(m.cycles)-watchHistorySize:]
		}
		return m, nil
	case watchErrMsg:
		m.lastErr = msg.err
		return m, nil
	}
	return m, nil
}

func (m watchModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	tracked := 0
	if len(m.cycles) > 0 {
		tracked = m.cycles[len(m.cycles)-1].Total
	}

	var b strings.Builder
	b.WriteString(watchTitleStyle.Render("codemarks watch"))
	b.WriteString("\n\n")

	label := func(name, value string) {
		b.WriteString(watchLabelStyle.Render(fmt.Sprintf("%-9s", name)))
		b.WriteString(" ")
		b.WriteString(value)
		b.WriteString("\n")
	}
	label("Directory", m.session.root)
	label("Project", m.session.projectName)
	label("Pattern", m.session.pattern)
	label("Debounce", fmt.Sprintf("%dms", m.session.debounce.Milliseconds()))
	label("Uptime", m.now.Sub(m.started).Round(time.Second).String())
	label("Tracked", watchCountStyle.Render(fmt.Sprintf("%d annotations", tracked)))

	b.WriteString("\n")
	b.WriteString(watchLabelStyle.Render("Recent activity"))
	b.WriteString("\n")
	for _, rep := range m.cycles {
		line := fmt.Sprintf("%s  %-8s  %3d files  +%d ~%d -%d",
			rep.At.Format("15:04:05"), rep.BatchID, rep.Files, rep.Added, rep.Kept, rep.Removed)
		if len(rep.Skipped) > 0 {
			line += fmt.Sprintf("  (%d skipped)", len(rep.Skipped))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if m.lastErr != nil {
		b.WriteString("\n")
		b.WriteString(watchErrStyle.Render("Watch error: " + m.lastErr.Error()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(watchDimStyle.Render("Press q to quit"))

	return watchBoxStyle.Render(b.String()) + "\n"
}

// runWatchUI drives an interactive watch through the dashboard. The
// watch cycles run on their own goroutine and feed the program via
// messages; quitting the program stops them and flushes the store.
func runWatchUI(s *watchSession) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initial, err := s.initialScan(ctx)
	if err != nil {
		return err
	}

	if err := s.w.Start(ctx); err != nil {
		return err
	}

	p := tea.NewProgram(newWatchModel(s, initial), tea.WithOutput(os.Stderr))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			p.Quit()
		case <-ctx.Done():
		}
	}()

	feederDone := make(chan struct{})
	go func() {
		defer close(feederDone)
		for {
			select {
			case <-ctx.Done():
				return
			case batch := <-s.w.Batches():
				rep, err := s.runCycle(ctx, batch)
				if err != nil {
					p.Send(watchErrMsg{err})
					continue
				}
				p.Send(cycleMsg{rep})
			}
		}
	}()

	_, runErr := p.Run()
	cancel()
	<-feederDone
	return runErr
}

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/wgdzlh/gdalfade/log"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"golang.org/x/term"
)

var errAborted = errors.New("aborted by user")

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	pathStyle  = lipgloss.NewStyle().Underline(true)
	hintStyle  = lipgloss.NewStyle().Faint(true)
)

// 等待用户编辑边界线后确认
type confirmModel struct {
	path    string
	done    bool
	aborted bool
}

func (m confirmModel) Init() tea.Cmd {
	return nil
}

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "enter":
		m.done = true
		return m, tea.Quit
	case "q", "esc", "ctrl+c":
		m.aborted = true
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string {
	if m.done || m.aborted {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Edit the boundary lines, then continue"))
	b.WriteString("\n\n  ")
	b.WriteString(pathStyle.Render(m.path))
	b.WriteString("\n\n")
	b.WriteString(hintStyle.Render("enter continue • q/esc abort"))
	b.WriteString("\n")
	return b.String()
}

// 终端中用交互界面确认，否则从输入读取一行
type prompt struct {
	in  *os.File
	out io.Writer
}

func newPrompt(in *os.File, out io.Writer) prompt {
	return prompt{in: in, out: out}
}

func (p prompt) Await(ctx context.Context, linesPath string) error {
	if !term.IsTerminal(int(p.in.Fd())) {
		return p.awaitLine(ctx, linesPath)
	}
	prog := tea.NewProgram(confirmModel{path: linesPath}, tea.WithContext(ctx), tea.WithInput(p.in), tea.WithOutput(p.out))
	final, err := prog.Run()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	if m, ok := final.(confirmModel); ok && m.aborted {
		return errAborted
	}
	log.Info("boundary edit confirmed", zap.String("lines", linesPath))
	return nil
}

func (p prompt) awaitLine(ctx context.Context, linesPath string) error {
	fmt.Fprintf(p.out, "edit %s, then press enter to continue (q to abort): ", linesPath)
	answer := make(chan string, 1)
	go func() {
		line, err := bufio.NewReader(p.in).ReadString('\n')
		if err != nil && line == "" {
			line = "q"
		}
		answer <- strings.TrimSpace(line)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case a := <-answer:
		if strings.EqualFold(a, "q") {
			return errAborted
		}
		return nil
	}
}

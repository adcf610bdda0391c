package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/mcpchat/mcpchat/internal/chat"
	"github.com/mcpchat/mcpchat/internal/render"
	"github.com/spf13/cobra"
)

func NewChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat interactively with tool access",
		RunE:  runChatTUI,
	}
}

func runChatTUI(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	mgr, err := startSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer mgr.Stop(0)

	svc, err := buildService(ctx, cfg, mgr)
	if err != nil {
		return err
	}

	p := tea.NewProgram(newChatModel(ctx, svc), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

var (
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	thinkStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	keyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("7")).Bold(true)
)

type replyMsg struct {
	reply chat.Reply
	err   error
}

type model struct {
	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model

	ctx       context.Context
	svc       *chat.Service
	renderer  render.Renderer
	sessionID string

	transcript []string
	thinking   bool
	ready      bool
	width      int
}

func newChatModel(ctx context.Context, svc *chat.Service) model {
	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.SetHeight(2)
	ta.CharLimit = 0
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return model{
		textarea:  ta,
		viewport:  viewport.New(80, 20),
		spinner:   sp,
		ctx:       ctx,
		svc:       svc,
		sessionID: uuid.NewString(),
	}
}

func (m model) Init() tea.Cmd {
	return textarea.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		taCmd tea.Cmd
		vpCmd tea.Cmd
	)
	m.textarea, taCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - m.textarea.Height() - 2
		m.textarea.SetWidth(msg.Width)
		if r, err := render.NewMarkdown(msg.Width - 2); err == nil {
			m.renderer = r
		}
		m.ready = true
		m.refreshViewport()
		return m, tea.Batch(taCmd, vpCmd)

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEsc, tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEnter:
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" || m.thinking {
				return m, tea.Batch(taCmd, vpCmd)
			}
			m.textarea.Reset()

			if input == "/new" {
				m.sessionID = uuid.NewString()
				m.transcript = nil
				m.refreshViewport()
				return m, tea.Batch(taCmd, vpCmd)
			}

			m.transcript = append(m.transcript, userStyle.Render("You: ")+input)
			m.thinking = true
			m.refreshViewport()
			return m, tea.Batch(m.spinner.Tick, m.send(input), taCmd, vpCmd)
		}

	case spinner.TickMsg:
		if m.thinking {
			var spCmd tea.Cmd
			m.spinner, spCmd = m.spinner.Update(msg)
			return m, tea.Batch(spCmd, taCmd, vpCmd)
		}

	case replyMsg:
		m.thinking = false
		if msg.err != nil {
			m.transcript = append(m.transcript, errorStyle.Render("Error: "+msg.err.Error()))
		} else {
			m.transcript = append(m.transcript, m.formatReply(msg.reply)...)
		}
		m.refreshViewport()
		return m, tea.Batch(taCmd, vpCmd)
	}

	return m, tea.Batch(taCmd, vpCmd)
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	if m.thinking {
		b.WriteString(m.spinner.View() + " thinking...")
	} else {
		b.WriteString(m.textarea.View())
	}
	b.WriteString("\n")
	b.WriteString(footer())
	return b.String()
}

func footer() string {
	hints := []string{
		keyStyle.Render("Enter") + footerStyle.Render(" Send"),
		keyStyle.Render("/new") + footerStyle.Render(" Reset"),
		keyStyle.Render("Esc") + footerStyle.Render(" Quit"),
	}
	return footerStyle.Render(strings.Join(hints, footerStyle.Render(" · ")))
}

func (m *model) send(input string) tea.Cmd {
	ctx, svc, sessionID := m.ctx, m.svc, m.sessionID
	return func() tea.Msg {
		reply, err := svc.Send(ctx, sessionID, input)
		return replyMsg{reply: reply, err: err}
	}
}

func (m *model) formatReply(reply chat.Reply) []string {
	var lines []string
	if m.renderer == nil {
		return append(lines, reply.Text)
	}

	think, main, hasThink := renderResponseParts(reply.Text, m.renderer)
	if hasThink && think != "" {
		lines = append(lines, thinkStyle.Render("Thinking:"), think)
	}
	lines = append(lines, main)
	if reply.ToolCalls > 0 {
		lines = append(lines, footerStyle.Render(fmt.Sprintf("(%d tool calls)", reply.ToolCalls)))
	}
	return lines
}

func renderResponseParts(content string, r render.Renderer) (think, main string, hasThink bool) {
	return render.Parts(content, r)
}

func (m *model) refreshViewport() {
	m.viewport.SetContent(strings.Join(m.transcript, "\n\n"))
	m.viewport.GotoBottom()
}

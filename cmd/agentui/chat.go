package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/a-h/agentui/capture"
	"github.com/a-h/agentui/client"
	"github.com/a-h/agentui/config"
	"github.com/a-h/agentui/models"
	"github.com/a-h/agentui/normalize"
	"github.com/a-h/agentui/session"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

type ChatCommand struct {
	ServerURL     string `help:"The URL of the agentui server." env:"AGENTUI_URL" default:"http://localhost:9020"`
	APIKey        string `help:"The API key for the agentui server." env:"AGENTUI_API_KEY" default:""`
	Model         string `help:"The model name sent with each message." env:"CHAT_MODEL" default:"gpt-4.1"`
	WebhookID     string `help:"The n8n webhook to send messages to." env:"WEBHOOK_ID" default:"conversation"`
	Environment   string `help:"The deployment environment, used to pick the conversation id range." env:"ENVIRONMENT" default:"development"`
	JSON          bool   `help:"Send messages as JSON instead of multipart forms."`
	ScrapeImages  bool   `help:"Extract image URLs embedded in AI message text when the workflow does not return one."`
	RecordCommand string `help:"The command that writes microphone audio to stdout, ffmpeg is used if unset." env:"RECORD_COMMAND" default:""`
	LogFile       string `help:"Write logs to this file, logs are discarded if unset." env:"LOG_FILE" default:""`
	LogLevel      string `help:"The log level to use." env:"LOG_LEVEL" default:"info"`
}

func (c ChatCommand) Run(ctx context.Context) (err error) {
	var w io.Writer = io.Discard
	if c.LogFile != "" {
		f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		w = f
	}
	log := newLogger(w, c.LogLevel)

	cl := client.New(c.ServerURL, c.APIKey).WithLogger(log)
	sess := session.New(session.Config{
		Model:              c.Model,
		WebhookID:          c.WebhookID,
		BaseConversationID: config.Config{Environment: c.Environment}.BaseConversationID(),
		Normalize:          normalize.Options{ScrapeEmbeddedImages: c.ScrapeImages},
	})
	recorder := capture.NewRecorder(log, recordSource(c.RecordCommand))
	defer recorder.Close()

	log.Info("starting chat", slog.String("server", c.ServerURL), slog.Int("conversationId", sess.ConversationID()))
	p := tea.NewProgram(newModel(ctx, log, sess, newRelayer(cl, c.JSON), recorder), tea.WithContext(ctx))
	if _, err = p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

func recordSource(command string) capture.Source {
	args := strings.Fields(command)
	if len(args) == 0 {
		return capture.DefaultCommandSource()
	}
	cs := capture.DefaultCommandSource()
	cs.Name = args[0]
	cs.Args = args[1:]
	return cs
}

// Dracula color scheme.
var (
	Background  = lipgloss.Color("#282a36")
	CurrentLine = lipgloss.Color("#44475a")
	Foreground  = lipgloss.Color("#f8f8f2")
	Comment     = lipgloss.Color("#6272a4")
	Cyan        = lipgloss.Color("#8be9fd")
	Green       = lipgloss.Color("#50fa7b")
	Orange      = lipgloss.Color("#ffb86c")
	Pink        = lipgloss.Color("#ff79c6")
	Purple      = lipgloss.Color("#bd93f9")
	Red         = lipgloss.Color("#ff5555")
)

var headerStyle = lipgloss.NewStyle().Background(CurrentLine).Foreground(Purple).Bold(true).Margin(2).Padding(1).PaddingTop(0)

var header = `
  __ _  __ _  ___ _ __ | |_ _   _(_)
 / _' |/ _' |/ _ \ '_ \| __| | | | |
| (_| | (_| |  __/ | | | |_| |_| | |
 \__,_|\__, |\___|_| |_|\__|\__,_|_|
       |___/
`

var (
	statusStyle = lipgloss.NewStyle().Foreground(Comment)
	noticeStyle = lipgloss.NewStyle().Foreground(Red).Bold(true)
	imageStyle  = lipgloss.NewStyle().Foreground(Orange).Underline(true)
)

var messageRoleToStyle = map[models.Role]lipgloss.Style{
	models.RoleHuman: lipgloss.NewStyle().Padding(1).Margin(1).MarginBottom(0).Background(Background).Foreground(Pink),
	models.RoleAI:    lipgloss.NewStyle().Padding(1).Margin(1).MarginBottom(0).Background(Background).Foreground(Cyan),
}

var messageRoleToIcon = map[models.Role]string{
	models.RoleHuman: "🥷",
	models.RoleAI:    "✨",
}

func formatMessage(msg models.ChatMessage) string {
	role := msg.Role()
	icon, ok := messageRoleToIcon[role]
	if !ok {
		icon = "🤷"
	}
	text := wordwrap.String(strings.TrimSpace(icon+" "+msg.Content()), 80)
	if role == models.RoleAI && msg.ImageURL() != "" {
		text += "\n\n🖼  " + imageStyle.Render(msg.ImageURL())
	}
	style, ok := messageRoleToStyle[role]
	if !ok {
		return text
	}
	return style.Render(text)
}

type relayDoneMsg struct {
	sub  session.Submission
	resp models.RelayResponse
	err  error
}

type recordingEndedMsg struct{}

type recordingStoppedMsg struct {
	audio string
	err   error
}

type model struct {
	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model
	notice   string
	ctx      context.Context
	log      *slog.Logger

	sess     *session.Session
	relayer  session.Relayer
	recorder *capture.Recorder
}

func newModel(ctx context.Context, log *slog.Logger, sess *session.Session, relayer session.Relayer, recorder *capture.Recorder) model {
	ta := textarea.New()
	ta.Placeholder = "Send a message, /image <path> to attach an image..."
	ta.Focus()

	ta.Prompt = "┃ "
	ta.CharLimit = 0

	ta.SetHeight(3)

	// Remove cursor line styling
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()

	ta.ShowLineNumbers = false

	// Enter sends, alt+enter starts a new line.
	ta.KeyMap.InsertNewline.SetKeys("alt+enter")

	vp := viewport.New(80, 20)
	vp.SetContent(headerStyle.Render(header))

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(Purple)

	return model{
		ctx:      ctx,
		log:      log,
		textarea: ta,
		viewport: vp,
		spinner:  sp,
		sess:     sess,
		relayer:  relayer,
		recorder: recorder,
	}
}

func (m model) Init() tea.Cmd {
	return textarea.Blink
}

func (m model) relay(sub session.Submission) tea.Cmd {
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		resp, err := m.relayer.RelayPost(m.ctx, sub.Request)
		return relayDoneMsg{sub: sub, resp: resp, err: err}
	})
}

// waitForRecordingEnd reports when the recorder's source stops, so that a recorder
// that exits on its own is noticed without waiting for the user.
func (m model) waitForRecordingEnd() tea.Cmd {
	ended := m.recorder.Ended()
	return func() tea.Msg {
		select {
		case <-ended:
			return recordingEndedMsg{}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func micNotice(err error) string {
	var micErr capture.MicrophoneError
	if errors.As(err, &micErr) {
		return "Microphone unavailable, check that recording is permitted. Press esc to dismiss."
	}
	return err.Error()
}

func (m model) stopRecording() tea.Cmd {
	return func() tea.Msg {
		audio, err := m.recorder.Stop()
		return recordingStoppedMsg{audio: audio, err: err}
	}
}

func (m *model) render() {
	msgs := m.sess.Messages()
	if len(msgs) == 0 {
		m.viewport.SetContent(headerStyle.Render(header))
		return
	}
	var sb strings.Builder
	for _, cm := range msgs {
		sb.WriteString(formatMessage(cm))
		sb.WriteString("\n")
	}
	m.viewport.SetContent(sb.String())
	m.viewport.GotoBottom()
}

// command handles slash commands, returning false if v is a message to send.
func (m *model) command(v string) bool {
	trimmed := strings.TrimSpace(v)
	switch {
	case trimmed == "/clear-image":
		m.sess.ClearImage()
		return true
	case strings.HasPrefix(trimmed, "/image "):
		name := strings.TrimSpace(strings.TrimPrefix(trimmed, "/image "))
		dataURL, err := capture.LoadImage(name)
		if err != nil {
			m.log.Warn("failed to load image", slog.String("file", name), slog.Any("error", err))
			m.notice = fmt.Sprintf("Could not attach %s: %v", name, err)
			return true
		}
		m.sess.AttachImage(dataURL)
		return true
	}
	return false
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case relayDoneMsg:
		if !m.sess.Complete(msg.sub, msg.resp, msg.err) {
			m.log.Debug("discarded stale response", slog.Int("generation", msg.sub.Generation))
		}
		m.render()
		return m, nil
	case recordingEndedMsg:
		if m.recorder.Recording() {
			// A newer recording is in progress.
			return m, nil
		}
		return m, m.stopRecording()
	case recordingStoppedMsg:
		if errors.Is(msg.err, capture.ErrNotRecording) {
			return m, nil
		}
		if msg.err != nil {
			m.log.Warn("recording failed", slog.Any("error", msg.err))
			m.notice = micNotice(msg.err)
			return m, nil
		}
		sub, ok := m.sess.SubmitAudio(msg.audio)
		if !ok {
			return m, nil
		}
		m.render()
		return m, m.relay(sub)
	case spinner.TickMsg:
		if !m.sess.Busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - m.textarea.Height() - 4
		m.textarea.SetWidth(msg.Width)
		m.render()
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			if m.notice != "" {
				m.notice = ""
				return m, nil
			}
			return m, tea.Quit
		case "ctrl+c":
			return m, tea.Quit
		case "ctrl+n":
			m.notice = ""
			if err := m.sess.Reset(); err != nil {
				m.log.Error("failed to reset session", slog.Any("error", err))
				m.notice = err.Error()
				return m, nil
			}
			m.textarea.Reset()
			m.render()
			return m, nil
		case "ctrl+r":
			if m.recorder.Recording() {
				return m, m.stopRecording()
			}
			if m.sess.Busy() {
				return m, nil
			}
			if err := m.recorder.Start(m.ctx); err != nil {
				m.notice = micNotice(err)
				m.log.Warn("failed to start recording", slog.Any("error", err))
				return m, nil
			}
			return m, m.waitForRecordingEnd()
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case "enter":
			v := m.textarea.Value()
			if m.command(v) {
				m.textarea.Reset()
				return m, nil
			}
			m.sess.SetInput(v)
			sub, ok := m.sess.Submit()
			if !ok {
				// Nothing to send, or a response is pending.
				return m, nil
			}
			m.textarea.Reset()
			m.render()
			return m, m.relay(sub)
		default:
			// Send all other keypresses to the textarea.
			var cmd tea.Cmd
			m.textarea, cmd = m.textarea.Update(msg)
			m.sess.SetInput(m.textarea.Value())
			return m, cmd
		}

	case cursor.BlinkMsg:
		// Textarea should also process cursor blinks.
		var cmd tea.Cmd
		m.textarea, cmd = m.textarea.Update(msg)
		return m, cmd

	default:
		return m, nil
	}
}

func (m model) status() string {
	var parts []string
	if m.sess.Busy() {
		parts = append(parts, m.spinner.View()+" waiting for response")
	}
	if m.recorder.Recording() {
		parts = append(parts, lipgloss.NewStyle().Foreground(Red).Render("● recording")+" (ctrl+r to send)")
	}
	if m.sess.PendingImage() != "" {
		parts = append(parts, lipgloss.NewStyle().Foreground(Green).Render("📎 image attached")+" (/clear-image to remove)")
	}
	parts = append(parts, fmt.Sprintf("conversation %d · ctrl+n new · ctrl+r record · esc quit", m.sess.ConversationID()))
	return statusStyle.Render(strings.Join(parts, "  "))
}

func (m model) View() string {
	var notice string
	if m.notice != "" {
		notice = noticeStyle.Render(m.notice) + "\n"
	}
	return fmt.Sprintf("%s\n%s%s\n%s",
		m.viewport.View(),
		notice,
		m.status(),
		m.textarea.View(),
	) + "\n\n"
}

package ui

import (
	"context"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"habitcoach/coach"
	"habitcoach/config"
	"habitcoach/model"
)

const (
	inputHeight    = 3
	noticeDuration = 3 * time.Second
)

// writeClipboard is replaced in tests; headless hosts have no clipboard.
var writeClipboard = clipboard.WriteAll

// ChatView is the chat screen. It renders dispatcher snapshots and turns
// key presses into dispatcher calls run as commands.
type ChatView struct {
	ctx         context.Context
	dispatcher  *coach.Dispatcher
	keys        *config.KeyBindingsConfig
	logger      *zap.Logger
	snapshots   <-chan coach.Snapshot
	unsubscribe func()

	snap          coach.Snapshot
	promptContext string
	pending       string
	notice        string
	noticeSeq     int
	quitting      bool

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model
	width    int
	height   int

	renderWidth int
	rendered    map[string]string
}

// ChatOptions configures a ChatView.
type ChatOptions struct {
	Keys *config.KeyBindingsConfig
	// PromptContext is sent with every prompt, e.g. the habit being worked on.
	PromptContext string
	Logger        *zap.Logger
}

// NewChatView subscribes to d. The subscription ends when the view quits.
func NewChatView(ctx context.Context, d *coach.Dispatcher, opts ChatOptions) *ChatView {
	keys := opts.Keys
	if keys == nil {
		keys = config.DefaultKeybindings()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ta := textarea.New()
	ta.Placeholder = "What are you craving right now?"
	ta.ShowLineNumbers = false
	ta.Prompt = "┃ "
	ta.CharLimit = 2000
	ta.SetHeight(inputHeight)
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter"))
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = AssistantStyle

	vp := viewport.New(0, 0)
	// letters belong to the textarea
	vp.KeyMap = viewport.KeyMap{
		PageDown: key.NewBinding(key.WithKeys("pgdown")),
		PageUp:   key.NewBinding(key.WithKeys("pgup")),
	}

	snapshots, unsubscribe := d.Subscribe()

	return &ChatView{
		ctx:           ctx,
		dispatcher:    d,
		keys:          keys,
		logger:        logger.Named("ui"),
		snapshots:     snapshots,
		unsubscribe:   unsubscribe,
		snap:          d.Snapshot(),
		promptContext: opts.PromptContext,
		viewport:      vp,
		textarea:      ta,
		spinner:       sp,
		rendered:      make(map[string]string),
	}
}

func (c *ChatView) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		c.spinner.Tick,
		c.waitForSnapshot(),
		c.loadCmd(),
	)
}

func (c *ChatView) waitForSnapshot() tea.Cmd {
	ch := c.snapshots
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return nil
		}
		return snapshotMsg{Snapshot: snap}
	}
}

func (c *ChatView) loadCmd() tea.Cmd {
	return func() tea.Msg {
		c.dispatcher.LoadModel(c.ctx)
		return nil
	}
}

func (c *ChatView) sendCmd(prompt string) tea.Cmd {
	promptContext := c.promptContext
	return func() tea.Msg {
		reply := c.dispatcher.GenerateResponse(c.ctx, prompt, promptContext)
		return replyMsg{Prompt: prompt, Reply: reply}
	}
}

func (c *ChatView) switchCmd(mode model.BackendMode) tea.Cmd {
	return func() tea.Msg {
		return switchDoneMsg{Err: c.dispatcher.SwitchMode(c.ctx, mode)}
	}
}

func (c *ChatView) unloadCmd() tea.Cmd {
	return func() tea.Msg {
		// the caller's context may already be cancelled on the way out
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), 5*time.Second)
		defer cancel()
		c.dispatcher.Unload(ctx)
		return unloadedMsg{}
	}
}

func copyCmd(text string) tea.Cmd {
	return func() tea.Msg {
		return copiedMsg{Err: writeClipboard(text)}
	}
}

func (c *ChatView) setNotice(text string) tea.Cmd {
	c.noticeSeq++
	c.notice = text
	seq := c.noticeSeq
	return tea.Tick(noticeDuration, func(time.Time) tea.Msg {
		return noticeExpiredMsg{Seq: seq}
	})
}

func (c *ChatView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		c.width = msg.Width
		c.height = msg.Height
		c.resize()
		c.refreshViewport()
		return c, nil

	case snapshotMsg:
		c.snap = msg.Snapshot
		c.refreshViewport()
		return c, c.waitForSnapshot()

	case replyMsg:
		if c.pending == msg.Prompt {
			c.pending = ""
		}
		if msg.Reply == model.NotLoadedResponse {
			cmds = append(cmds, c.setNotice(msg.Reply))
		}
		c.snap = c.dispatcher.Snapshot()
		c.refreshViewport()
		return c, tea.Batch(cmds...)

	case switchDoneMsg:
		if msg.Err != nil {
			c.logger.Warn("switch failed", zap.Error(msg.Err))
			return c, c.setNotice(msg.Err.Error())
		}
		return c, nil

	case copiedMsg:
		if msg.Err != nil {
			c.logger.Warn("copy failed", zap.Error(msg.Err))
			return c, c.setNotice("Couldn't copy: " + msg.Err.Error())
		}
		return c, c.setNotice("Copied the last reply")

	case noticeExpiredMsg:
		if msg.Seq == c.noticeSeq {
			c.notice = ""
		}
		return c, nil

	case unloadedMsg:
		c.unsubscribe()
		return c, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		c.spinner, cmd = c.spinner.Update(msg)
		if c.busy() {
			c.refreshViewport()
		}
		return c, cmd

	case tea.KeyMsg:
		if c.quitting {
			return c, nil
		}
		if cmd, handled := c.handleKey(msg); handled {
			return c, cmd
		}
	}

	var cmd tea.Cmd
	c.textarea, cmd = c.textarea.Update(msg)
	cmds = append(cmds, cmd)
	c.viewport, cmd = c.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return c, tea.Batch(cmds...)
}

// handleKey runs the action bound to msg, if any.
func (c *ChatView) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case c.keys.GetActionKey(config.ActionQuit), c.keys.GetActionKey(config.ActionCancel):
		c.quitting = true
		return c.unloadCmd(), true

	case c.keys.GetActionKey(config.ActionSend):
		prompt := strings.TrimSpace(c.textarea.Value())
		if prompt == "" || c.pending != "" {
			return nil, true
		}
		c.textarea.Reset()
		c.pending = prompt
		c.refreshViewport()
		return c.sendCmd(prompt), true

	case c.keys.GetActionKey(config.ActionToggleBackend):
		c.pending = ""
		return c.switchCmd(c.snap.Mode.Other()), true

	case c.keys.GetActionKey(config.ActionReload):
		return c.loadCmd(), true

	case c.keys.GetActionKey(config.ActionClearError):
		c.dispatcher.ClearError()
		return nil, true

	case c.keys.GetActionKey(config.ActionCopyReply):
		reply, ok := lastReply(c.snap.Transcript)
		if !ok {
			return c.setNotice("Nothing to copy yet"), true
		}
		return copyCmd(reply), true
	}
	return nil, false
}

func lastReply(msgs []model.ChatMessage) (string, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleAssistant {
			return msgs[i].Content, true
		}
	}
	return "", false
}

func (c *ChatView) busy() bool {
	return c.snap.Loading || c.snap.Generating || c.pending != ""
}

func (c *ChatView) resize() {
	c.textarea.SetWidth(c.width)
	// status bar and error line
	h := c.height - inputHeight - 2
	if h < 1 {
		h = 1
	}
	c.viewport.Width = c.width
	c.viewport.Height = h
}

func (c *ChatView) renderReply(content string) string {
	if c.renderWidth != c.width {
		c.renderWidth = c.width
		c.rendered = make(map[string]string)
	}
	if out, ok := c.rendered[content]; ok {
		return out
	}
	out := renderMarkdown(content, c.width)
	c.rendered[content] = out
	return out
}

func (c *ChatView) refreshViewport() {
	thinking := c.spinner.View() + " " + DimStyle.Render("Coach is thinking...")
	c.viewport.SetContent(renderTranscript(c.snap.Transcript, c.pending, thinking, c.renderReply))
	c.viewport.GotoBottom()
}

// statusLine describes the selected backend, its load state and the key
// hints, cut to the terminal width.
func (c *ChatView) statusLine() string {
	var state string
	switch {
	case c.snap.Loading:
		state = c.spinner.View() + " loading"
	case c.snap.Generating:
		state = "replying"
	default:
		state = c.snap.State.String()
	}

	line := ModeStyle.Render(c.snap.Mode.String()) + " " + StatusStyle.Render(state)
	if c.notice != "" {
		line += "  " + StatusStyle.Render(c.notice)
	}
	line += "  " + FormatFooter(
		c.keys.DisplayActionKey(config.ActionSend), "Send",
		c.keys.DisplayActionKey(config.ActionToggleBackend), "Switch to "+c.snap.Mode.Other().String(),
		c.keys.DisplayActionKey(config.ActionReload), "Reload",
		c.keys.DisplayActionKey(config.ActionCopyReply), "Copy",
		c.keys.DisplayActionKey(config.ActionQuit), "Quit",
	)
	if plain := stripANSI(line); c.width > 0 && displayWidth(plain) > c.width {
		// styled text can't be cut safely; fall back to plain
		line = truncateLine(plain, c.width)
	}
	return line
}

func (c *ChatView) View() string {
	if c.quitting {
		return DimStyle.Render("Releasing the model...") + "\n"
	}

	var b strings.Builder
	b.WriteString(c.viewport.View())
	b.WriteString("\n")
	if c.snap.Error != "" {
		errLine := c.snap.Error + "  (" + c.keys.DisplayActionKey(config.ActionClearError) + " to dismiss)"
		b.WriteString(ErrorStyle.Render(truncateLine(errLine, max(c.width, 1))))
	}
	b.WriteString("\n")
	b.WriteString(c.textarea.View())
	b.WriteString("\n")
	b.WriteString(c.statusLine())
	return b.String()
}

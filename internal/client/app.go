package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/joshyvodetaene/chatual-sub000/internal/config"
	"github.com/joshyvodetaene/chatual-sub000/internal/protocol"
)

// App implements the bubbletea tea.Model interface for the terminal client.
type App struct {
	cfg     config.ClientConfig
	session *Session

	input    textinput.Model
	viewport viewport.Model
	styles   styles
	width    int
	height   int

	userID  string
	room    string
	online  []string
	typing  bool
	history []string
	logLine string
	logErr  bool
}

type connectResultMsg struct {
	URL     string
	Session *Session
	Err     error
}

type frameMsg struct {
	Session *Session
	Raw     []byte
}

type sessionClosedMsg struct {
	Session *Session
}

const connectTimeout = 5 * time.Second

// NewApp returns a Bubble Tea model pre-populated with defaults.
func NewApp(cfg config.ClientConfig) tea.Model {
	input := textinput.New()
	input.Placeholder = "message or /command"
	input.Prompt = "> "
	input.Focus()

	app := &App{
		cfg:      cfg,
		input:    input,
		viewport: viewport.New(0, 0),
		styles:   defaultStyles(),
		userID:   cfg.UserID,
		history:  make([]string, 0, 128),
	}
	app.updateViewportContent()
	return app
}

// Init is part of the tea.Model interface.
func (a *App) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles user input and internal events.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = m.Width, m.Height
		a.resizeViewport()
		return a, nil
	case tea.KeyMsg:
		return a.handleKey(m)
	case connectResultMsg:
		return a.handleConnectResult(m)
	case frameMsg:
		return a.handleFrame(m)
	case sessionClosedMsg:
		return a.handleSessionClosed(m)
	default:
		var cmd tea.Cmd
		a.viewport, cmd = a.viewport.Update(m)
		return a, cmd
	}
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return a, a.quit()
	case tea.KeyPgUp:
		a.viewport.LineUp(a.viewport.Height)
		return a, nil
	case tea.KeyPgDown:
		a.viewport.LineDown(a.viewport.Height)
		return a, nil
	case tea.KeyEnter:
		return a.handleEnter()
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)

	// First rune typed in a room raises the typing indicator; it drops
	// again when the message is sent or the input is cleared.
	if a.session != nil && a.room != "" {
		nonEmpty := strings.TrimSpace(a.input.Value()) != ""
		if nonEmpty != a.typing && !strings.HasPrefix(a.input.Value(), string(a.cfg.CommandPrefix)) {
			a.typing = nonEmpty
			return a, tea.Batch(cmd, a.sendTyping(nonEmpty))
		}
	}
	return a, cmd
}

func (a *App) handleEnter() (tea.Model, tea.Cmd) {
	raw := strings.TrimSpace(a.input.Value())
	a.input.SetValue("")
	if raw == "" {
		return a, nil
	}
	if strings.HasPrefix(raw, string(a.cfg.CommandPrefix)) {
		return a, a.executeCommand(raw)
	}

	if !a.ensureConnected() {
		return a, nil
	}
	if a.room == "" {
		a.log(true, "join a room first: /join <room>")
		return a, nil
	}
	frame := map[string]any{
		"type":    protocol.FrameTypeMessage,
		"content": raw,
		"kind":    protocol.MessageKindText,
	}
	var cmds []tea.Cmd
	if a.typing {
		a.typing = false
		cmds = append(cmds, a.sendTyping(false))
	}
	cmds = append(cmds, a.sendFrame(frame))
	return a, tea.Batch(cmds...)
}

func (a *App) executeCommand(raw string) tea.Cmd {
	content := strings.TrimSpace(raw[len(string(a.cfg.CommandPrefix)):])
	if content == "" {
		a.log(true, "missing command name")
		return nil
	}
	parts := strings.Fields(content)
	name := strings.ToLower(parts[0])
	args := parts[1:]

	switch name {
	case "connect":
		return a.commandConnect(args)
	case "join":
		return a.commandJoin(args)
	case "leave":
		return a.commandLeave()
	case "who":
		a.commandWho()
		return nil
	case "ping":
		return a.commandPing()
	case "quit", "exit":
		return a.quit()
	default:
		a.log(true, "unknown command: %s", name)
		return nil
	}
}

func (a *App) commandConnect(args []string) tea.Cmd {
	if a.session != nil {
		a.log(true, "already connected")
		return nil
	}
	url := a.cfg.ServerURL
	if len(args) > 0 {
		url = args[0]
	}
	if url == "" {
		a.log(true, "no server url configured")
		return nil
	}
	a.cfg.ServerURL = url
	a.log(false, "connecting to %s ...", url)
	return connectCommand(a.cfg, url)
}

func (a *App) commandJoin(args []string) tea.Cmd {
	if !a.ensureConnected() {
		return nil
	}
	if len(args) < 1 {
		a.log(true, "usage: /join <room> [user]")
		return nil
	}
	room := args[0]
	user := a.userID
	if len(args) > 1 {
		user = args[1]
	}
	if user == "" {
		a.log(true, "no user id; /join <room> <user> or set CHATUAL_USER_ID")
		return nil
	}
	a.userID = user
	return a.sendFrame(map[string]any{
		"type":   protocol.FrameTypeJoin,
		"userId": user,
		"roomId": room,
	})
}

func (a *App) commandLeave() tea.Cmd {
	if !a.ensureConnected() {
		return nil
	}
	if a.room == "" {
		a.log(true, "not in a room")
		return nil
	}
	room := a.room
	a.room = ""
	a.online = nil
	a.addLine(fmt.Sprintf("* left %s", room))
	return a.sendFrame(map[string]any{"type": protocol.FrameTypeLeave, "roomId": room})
}

func (a *App) commandWho() {
	if a.room == "" {
		a.log(true, "not in a room")
		return
	}
	if len(a.online) == 0 {
		a.addLine("* nobody online")
		return
	}
	a.addLine("* online: " + strings.Join(a.online, ", "))
}

func (a *App) commandPing() tea.Cmd {
	if !a.ensureConnected() {
		return nil
	}
	return a.sendFrame(map[string]any{"type": protocol.FrameTypePing})
}

func (a *App) quit() tea.Cmd {
	if a.session != nil {
		_ = a.session.Close()
		a.session = nil
	}
	return tea.Quit
}

func (a *App) ensureConnected() bool {
	if a.session == nil {
		a.log(true, "not connected; use /connect first")
		return false
	}
	return true
}

func (a *App) sendFrame(frame any) tea.Cmd {
	session := a.session
	if session == nil {
		return nil
	}
	return func() tea.Msg {
		if err := session.Send(frame); err != nil {
			return sessionClosedMsg{Session: session}
		}
		return nil
	}
}

func (a *App) sendTyping(isTyping bool) tea.Cmd {
	return a.sendFrame(map[string]any{
		"type":     protocol.FrameTypeTyping,
		"isTyping": isTyping,
	})
}

func (a *App) handleConnectResult(msg connectResultMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		a.log(true, "connection failed: %v", msg.Err)
		return a, nil
	}
	if a.session != nil {
		_ = a.session.Close()
	}
	a.session = msg.Session
	a.room = ""
	a.online = nil
	a.log(false, "connected to %s", msg.URL)
	return a, listenForFrames(a.session)
}

func (a *App) handleSessionClosed(msg sessionClosedMsg) (tea.Model, tea.Cmd) {
	if msg.Session != a.session || a.session == nil {
		return a, nil
	}
	a.session = nil
	a.room = ""
	a.online = nil
	a.typing = false
	a.log(true, "connection closed")
	return a, nil
}

func (a *App) handleFrame(msg frameMsg) (tea.Model, tea.Cmd) {
	if msg.Session != a.session || a.session == nil {
		return a, nil
	}
	if err := a.processFrame(msg.Raw); err != nil {
		a.log(true, "frame error: %v", err)
	}
	return a, listenForFrames(a.session)
}

func (a *App) processFrame(raw []byte) error {
	var env struct {
		Type protocol.FrameType `json:"type"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return err
	}

	switch env.Type {
	case protocol.FrameTypeUserJoined:
		var f protocol.UserJoined
		if err := json.Unmarshal(raw, &f); err != nil {
			return err
		}
		if f.UserID == a.userID {
			a.room = f.RoomID
			a.addLine(fmt.Sprintf("* joined %s", f.RoomID))
		} else {
			a.addLine(fmt.Sprintf("* %s joined", f.UserID))
		}
	case protocol.FrameTypeUserLeft:
		var f protocol.UserLeft
		if err := json.Unmarshal(raw, &f); err != nil {
			return err
		}
		a.addLine(fmt.Sprintf("* %s left", f.UserID))
	case protocol.FrameTypeRoomOnlineUsers:
		var f protocol.RoomOnlineUsers
		if err := json.Unmarshal(raw, &f); err != nil {
			return err
		}
		// The roster always follows a successful join, so it doubles as
		// the join confirmation for a second device.
		if a.room == "" {
			a.room = f.RoomID
		}
		if f.RoomID == a.room {
			a.online = f.OnlineUsers
		}
	case protocol.FrameTypeNewMessage:
		var f protocol.NewMessage
		if err := json.Unmarshal(raw, &f); err != nil {
			return err
		}
		a.addLine(renderMessage(f.Message))
	case protocol.FrameTypeUserTyping:
		var f protocol.UserTyping
		if err := json.Unmarshal(raw, &f); err != nil {
			return err
		}
		if f.IsTyping {
			a.log(false, "%s is typing ...", f.UserID)
		} else if strings.HasPrefix(a.logLine, f.UserID+" is typing") {
			a.log(false, "")
		}
	case protocol.FrameTypeRoomHistory:
		var f protocol.RoomHistory
		if err := json.Unmarshal(raw, &f); err != nil {
			return err
		}
		for _, m := range f.Messages {
			a.addLine(renderMessage(m))
		}
	case protocol.FrameTypePong:
		var f protocol.Pong
		if err := json.Unmarshal(raw, &f); err != nil {
			return err
		}
		a.log(false, "pong at %s", f.Timestamp.Local().Format("15:04:05"))
	case protocol.FrameTypeError:
		var f protocol.ErrorFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return err
		}
		a.log(true, "server error [%s]: %s", f.Code, f.Reason)
	default:
		a.log(false, "received frame type %s", env.Type)
	}
	return nil
}

func renderMessage(m protocol.ChatMessage) string {
	stamp := m.CreatedAt.Local().Format("15:04")
	author := m.AuthorName
	if author == "" {
		author = m.AuthorID
	}
	if m.Kind == protocol.MessageKindPhoto {
		return fmt.Sprintf("[%s] %s: (photo) %s", stamp, author, m.PhotoRef)
	}
	return fmt.Sprintf("[%s] %s: %s", stamp, author, m.Content)
}

func (a *App) log(isErr bool, format string, args ...any) {
	a.logLine = fmt.Sprintf(format, args...)
	a.logErr = isErr
}

func (a *App) addLine(line string) {
	a.history = append(a.history, line)
	a.updateViewportContent()
}

func connectCommand(cfg config.ClientConfig, url string) tea.Cmd {
	return func() tea.Msg {
		sessionCfg := cfg
		sessionCfg.ServerURL = url
		session := NewSession(sessionCfg)

		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		if err := session.Connect(ctx); err != nil {
			_ = session.Close()
			return connectResultMsg{URL: url, Err: err}
		}
		return connectResultMsg{URL: url, Session: session}
	}
}

func listenForFrames(session *Session) tea.Cmd {
	if session == nil {
		return nil
	}
	ch := session.Frames()
	return func() tea.Msg {
		raw, ok := <-ch
		if !ok {
			return sessionClosedMsg{Session: session}
		}
		return frameMsg{Session: session, Raw: raw}
	}
}

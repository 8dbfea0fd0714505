// Package tui is the terminal front end of the rental client: the login,
// sign-up and federated account picker screens drawn with bubbletea.
//
// The model never decides authentication outcomes. It forwards user input to
// a [Controller] and renders whatever snapshot the controller publishes.
package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	rideAuth "github.com/MrEthical07/rideAuth"
	"github.com/MrEthical07/rideAuth/federated"
)

// Controller is the subset of *rideAuth.Controller the screens drive.
type Controller interface {
	SignIn(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, email, password, fullName string) error
	InitiateFederatedSignIn(ctx context.Context) (rideAuth.PickerIntent, error)
	CompleteFederatedAccountSelection(ctx context.Context, result rideAuth.PickerResult) error
	ClearError()
	SignOut(ctx context.Context) error
	Subscribe() (<-chan rideAuth.Snapshot, func())
	CurrentAccount(ctx context.Context) (rideAuth.Account, bool)
}

type screen int

const (
	screenLogin screen = iota
	screenSignUp
	screenPicker
	screenHome
)

type field int

const (
	fieldEmail field = iota
	fieldPassword
	fieldFullName
	fieldCount
)

const (
	opSignIn          = "sign_in"
	opSignUp          = "sign_up"
	opFederatedSelect = "federated_select"
	opSignOut         = "sign_out"
)

type snapshotMsg struct {
	snapshot rideAuth.Snapshot
	ok       bool
}

type opDoneMsg struct {
	op  string
	err error
}

type pickerMsg struct {
	intent rideAuth.PickerIntent
	err    error
}

type accountMsg struct {
	account rideAuth.Account
	ok      bool
}

// Model is the bubbletea model for every screen.
type Model struct {
	ctx    context.Context
	ctrl   Controller
	logger *zap.Logger

	updates     <-chan rideAuth.Snapshot
	unsubscribe func()

	screen   screen
	inputs   [fieldCount]textinput.Model
	callback textinput.Model
	focus    int
	spinner  spinner.Model

	snapshot  rideAuth.Snapshot
	pickerURL string
	account   rideAuth.Account
	notice    string
	width     int
}

// New subscribes to ctrl and returns the login screen. ctx bounds every
// operation the model starts.
func New(ctx context.Context, ctrl Controller, logger *zap.Logger) Model {
	if logger == nil {
		logger = zap.NewNop()
	}

	updates, unsubscribe := ctrl.Subscribe()

	m := Model{
		ctx:         ctx,
		ctrl:        ctrl,
		logger:      logger.Named("tui"),
		updates:     updates,
		unsubscribe: unsubscribe,
		callback:    newInput("http://127.0.0.1/callback?state=...&code=...", 2048),
	}

	m.inputs[fieldEmail] = newInput("rider@example.com", 254)
	m.inputs[fieldPassword] = newInput("at least 6 characters", 128)
	m.inputs[fieldPassword].EchoMode = textinput.EchoPassword
	m.inputs[fieldPassword].EchoCharacter = '•'
	m.inputs[fieldFullName] = newInput("Ada Rider", 80)

	m.spinner = spinner.New()
	m.spinner.Spinner = spinner.Dot
	m.spinner.Style = accentStyle

	m.focusField()
	return m
}

func newInput(placeholder string, limit int) textinput.Model {
	in := textinput.New()
	in.Placeholder = placeholder
	in.CharLimit = limit
	in.Prompt = ""
	return in
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForSnapshot(m.updates), textinput.Blink, m.spinner.Tick)
}

func waitForSnapshot(updates <-chan rideAuth.Snapshot) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-updates
		return snapshotMsg{snapshot: s, ok: ok}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case snapshotMsg:
		if !msg.ok {
			return m, tea.Quit
		}
		cmd := m.applySnapshot(msg.snapshot)
		return m, tea.Batch(cmd, waitForSnapshot(m.updates))

	case opDoneMsg:
		return m.opDone(msg)

	case pickerMsg:
		if msg.err != nil {
			m.logger.Debug("account picker unavailable", zap.Error(msg.err))
			m.notice = noticeFor(msg.err)
			return m, nil
		}
		m.pickerURL = msg.intent.URL
		m.screen = screenPicker
		m.callback.SetValue("")
		return m, m.callback.Focus()

	case accountMsg:
		if msg.ok {
			m.account = msg.account
			m.screen = screenHome
			m.blurAll()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m *Model) applySnapshot(s rideAuth.Snapshot) tea.Cmd {
	prev := m.snapshot
	m.snapshot = s

	if s.SelectedIdentity != "" && s.SelectedIdentity != prev.SelectedIdentity {
		m.inputs[fieldEmail].SetValue(s.SelectedIdentity)
	}

	switch {
	case s.State.IsLoading():
		m.blurAll()
	case prev.State.IsLoading():
		m.focusField()
	}

	if s.State.Kind == rideAuth.StateSuccess && prev.State.Kind != rideAuth.StateSuccess &&
		(m.screen == screenLogin || m.screen == screenSignUp) {
		return m.fetchAccount()
	}
	return nil
}

func (m Model) opDone(msg opDoneMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.logger.Debug("operation finished with error", zap.String("op", msg.op), zap.Error(msg.err))
		m.notice = noticeFor(msg.err)
		if msg.op == opFederatedSelect {
			m.screen = screenLogin
			m.focusField()
		}
		return m, nil
	}

	switch msg.op {
	case opFederatedSelect:
		m.screen = screenLogin
		m.focus = 0
		m.focusField()
	case opSignOut:
		m.account = rideAuth.Account{}
		m.screen = screenLogin
		m.inputs[fieldPassword].SetValue("")
		m.focus = 0
		m.focusField()
	}
	return m, nil
}

// noticeFor returns text for failures that do not drive the Error state.
func noticeFor(err error) string {
	switch {
	case errors.Is(err, rideAuth.ErrBusy):
		return "Another request is still running"
	case errors.Is(err, rideAuth.ErrFederatedUnavailable):
		return "Google sign in is not configured"
	case errors.Is(err, rideAuth.ErrControllerClosed):
		return "Session closed"
	default:
		return ""
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.unsubscribe()
		return m, tea.Quit
	}
	if m.snapshot.State.IsLoading() {
		return m, nil
	}

	switch m.screen {
	case screenHome:
		switch msg.String() {
		case "ctrl+o":
			return m, m.run(opSignOut, func(ctx context.Context) error { return m.ctrl.SignOut(ctx) })
		case "q":
			m.unsubscribe()
			return m, tea.Quit
		}
		return m, nil

	case screenPicker:
		switch msg.String() {
		case "esc":
			m.screen = screenLogin
			m.callback.Blur()
			m.focusField()
			return m, nil
		case "enter":
			return m.submitCallback()
		}
		var cmd tea.Cmd
		m.callback, cmd = m.callback.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "tab", "down":
		m.focus = (m.focus + 1) % len(m.fields())
		return m, m.focusField()
	case "shift+tab", "up":
		m.focus = (m.focus + len(m.fields()) - 1) % len(m.fields())
		return m, m.focusField()
	case "ctrl+n":
		if m.screen == screenLogin {
			m.screen = screenSignUp
		} else {
			m.screen = screenLogin
		}
		m.focus = 0
		m.notice = ""
		m.ctrl.ClearError()
		return m, m.focusField()
	case "ctrl+g":
		m.notice = ""
		return m, m.initiatePicker()
	case "enter":
		return m, m.submit()
	}

	// Any edit dismisses the previous failure.
	if m.snapshot.State.IsError() {
		m.ctrl.ClearError()
	}
	m.notice = ""

	f := m.fields()[m.focus]
	var cmd tea.Cmd
	m.inputs[f], cmd = m.inputs[f].Update(msg)
	return m, cmd
}

func (m Model) fields() []field {
	if m.screen == screenSignUp {
		return []field{fieldFullName, fieldEmail, fieldPassword}
	}
	return []field{fieldEmail, fieldPassword}
}

func (m *Model) focusField() tea.Cmd {
	m.blurAll()
	if m.screen != screenLogin && m.screen != screenSignUp {
		return nil
	}
	fields := m.fields()
	if m.focus >= len(fields) {
		m.focus = 0
	}
	return m.inputs[fields[m.focus]].Focus()
}

func (m *Model) blurAll() {
	for i := range m.inputs {
		m.inputs[i].Blur()
	}
}

func (m Model) value(f field) string { return m.inputs[f].Value() }

func (m Model) submit() tea.Cmd {
	email, pw := m.value(fieldEmail), m.value(fieldPassword)
	if m.screen == screenSignUp {
		name := m.value(fieldFullName)
		return m.run(opSignUp, func(ctx context.Context) error { return m.ctrl.SignUp(ctx, email, pw, name) })
	}
	return m.run(opSignIn, func(ctx context.Context) error { return m.ctrl.SignIn(ctx, email, pw) })
}

func (m Model) submitCallback() (tea.Model, tea.Cmd) {
	result, err := federated.ParseCallback(m.callback.Value())
	if err != nil {
		m.notice = "Paste the full redirect URL from the browser"
		return m, nil
	}
	m.notice = ""
	return m, m.run(opFederatedSelect, func(ctx context.Context) error {
		return m.ctrl.CompleteFederatedAccountSelection(ctx, result)
	})
}

func (m Model) initiatePicker() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		intent, err := ctrl.InitiateFederatedSignIn(ctx)
		return pickerMsg{intent: intent, err: err}
	}
}

func (m Model) fetchAccount() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		account, ok := ctrl.CurrentAccount(ctx)
		return accountMsg{account: account, ok: ok}
	}
}

func (m Model) run(op string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

// highlighted reports whether the current error message concerns f.
func (m Model) highlighted(f field) bool {
	if !m.snapshot.State.IsError() {
		return false
	}
	msg := strings.ToLower(m.snapshot.State.Message)
	switch f {
	case fieldEmail:
		return strings.Contains(msg, "email")
	case fieldPassword:
		return strings.Contains(msg, "password")
	case fieldFullName:
		return strings.Contains(msg, "full name")
	}
	return false
}

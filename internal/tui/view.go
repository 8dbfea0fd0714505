package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	brandPrimary = lipgloss.Color("#0EA5E9")
	brandAccent  = lipgloss.Color("#10B981")
	brandError   = lipgloss.Color("#EF4444")
	textMuted    = lipgloss.Color("#6B7280")

	titleStyle = lipgloss.NewStyle().
			Foreground(brandPrimary).
			Bold(true).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(textMuted)

	errorLabelStyle = lipgloss.NewStyle().
			Foreground(brandError).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(brandError)

	accentStyle = lipgloss.NewStyle().
			Foreground(brandAccent)

	dimStyle = lipgloss.NewStyle().
			Foreground(textMuted).
			Italic(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(brandPrimary).
			Padding(1, 2)
)

var fieldLabels = [fieldCount]string{
	fieldEmail:    "Email",
	fieldPassword: "Password",
	fieldFullName: "Full name",
}

// View implements tea.Model.
func (m Model) View() string {
	var body string
	switch m.screen {
	case screenHome:
		body = m.homeView()
	case screenPicker:
		body = m.pickerView()
	default:
		body = m.formView()
	}
	return boxStyle.Render(body) + "\n"
}

func (m Model) formView() string {
	var b strings.Builder

	title := "Sign in to ride"
	if m.screen == screenSignUp {
		title = "Create your rider account"
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteByte('\n')

	for _, f := range m.fields() {
		label := labelStyle.Render(fieldLabels[f])
		if m.highlighted(f) {
			label = errorLabelStyle.Render(fieldLabels[f])
		}
		b.WriteString(label)
		b.WriteByte('\n')
		b.WriteString(m.inputs[f].View())
		b.WriteString("\n\n")
	}

	b.WriteString(m.statusLine())

	help := "enter submit • tab next • ctrl+n sign up • ctrl+g google • ctrl+c quit"
	if m.screen == screenSignUp {
		help = "enter create account • tab next • ctrl+n back to sign in • ctrl+c quit"
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(help))
	return b.String()
}

func (m Model) statusLine() string {
	switch {
	case m.snapshot.State.IsLoading():
		return m.spinner.View() + " Please wait…\n"
	case m.snapshot.State.IsError():
		return errorStyle.Render(m.snapshot.State.Message) + "\n"
	case m.notice != "":
		return dimStyle.Render(m.notice) + "\n"
	}
	return ""
}

func (m Model) pickerView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Choose a Google account"))
	b.WriteString("\nOpen this address in a browser:\n\n")
	b.WriteString(accentStyle.Render(m.pickerURL))
	b.WriteString("\n\nThen paste the address you were redirected to:\n")
	b.WriteString(m.callback.View())
	b.WriteString("\n\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("enter confirm • esc back • ctrl+c quit"))
	return b.String()
}

func (m Model) homeView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Ready to ride"))
	b.WriteByte('\n')

	name := m.account.DisplayName
	if name == "" {
		name = m.account.Email
	}
	b.WriteString("Signed in as ")
	b.WriteString(accentStyle.Render(name))
	if m.account.DisplayName != "" {
		b.WriteString(" <" + m.account.Email + ">")
	}
	b.WriteString("\n\n")
	b.WriteString(m.statusLine())
	b.WriteString(dimStyle.Render("ctrl+o sign out • q quit"))
	return b.String()
}

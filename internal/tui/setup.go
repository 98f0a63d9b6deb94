// ABOUTME: Interactive TUI wizard for connecting a circle account.
// ABOUTME: 4-step bubbletea model collecting API URL, API key, email and password.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/circle/internal/storage"
)

// DefaultAPIURL is the API endpoint of a local development stack.
const DefaultAPIURL = "http://localhost:54321"

// Step represents the current wizard step.
type Step int

const (
	StepAPIURL Step = iota
	StepAPIKey
	StepEmail
	StepPassword
	StepValidating
	StepDone
	StepFailed
)

const numInputs = 4

// validationResultMsg carries the result of an async validation attempt.
type validationResultMsg struct {
	session *storage.AuthSession
	err     error
}

// ValidateFn checks the connection and signs in, returning the new session.
type ValidateFn func(ctx context.Context, apiURL, apiKey, email, password string) (*storage.AuthSession, error)

// cancelHolder shares a cancel function across bubbletea model copies.
// This MUST be stored as a pointer field on SetupModel so that value-receiver
// methods (required by tea.Model) can store the cancel func and have it
// visible to all copies of the model.
type cancelHolder struct {
	cancel context.CancelFunc
}

// SetupResult is what the wizard collected.
type SetupResult struct {
	APIURL  string
	APIKey  string
	Email   string
	Session *storage.AuthSession // nil when saved without signing in
}

// SetupModel is the bubbletea model for the setup wizard.
type SetupModel struct {
	step          Step
	inputs        [numInputs]textinput.Model
	spinner       spinner.Model
	validateFn    ValidateFn
	cancelCtx     *cancelHolder
	validationErr error
	session       *storage.AuthSession
	quitting      bool
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	brandStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newInput(placeholder, value string, secret bool) textinput.Model {
	in := textinput.New()
	in.Placeholder = placeholder
	in.Width = 50
	if secret {
		in.EchoMode = textinput.EchoPassword
	}
	if value != "" {
		in.SetValue(value)
	}
	return in
}

// NewSetupModel creates a new setup wizard model, pre-filling with existing config values.
func NewSetupModel(apiURL, apiKey, email string) SetupModel {
	urlInput := newInput(DefaultAPIURL, apiURL, false)
	urlInput.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot

	return SetupModel{
		step: StepAPIURL,
		inputs: [numInputs]textinput.Model{
			urlInput,
			newInput("your-anon-key", apiKey, true),
			newInput("you@example.com", email, false),
			newInput("password", "", true),
		},
		spinner:    s,
		validateFn: ValidateConnection,
		cancelCtx:  &cancelHolder{},
	}
}

// Init implements tea.Model.
func (m SetupModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m SetupModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEscape:
			m.quitting = true
			if m.cancelCtx.cancel != nil {
				m.cancelCtx.cancel()
			}
			return m, tea.Quit
		}

		switch m.step {
		case StepAPIURL, StepAPIKey, StepEmail, StepPassword:
			return m.updateInput(msg)
		case StepFailed:
			return m.updateFailed(msg)
		}

	case validationResultMsg:
		m.cancelCtx.cancel = nil
		if msg.err == nil {
			m.session = msg.session
			m.step = StepDone
			return m, tea.Quit
		}
		m.validationErr = msg.err
		m.step = StepFailed
		return m, nil

	case spinner.TickMsg:
		if m.step == StepValidating {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
	}

	return m, nil
}

// NormalizeAPIURL strips trailing slashes and a REST path suffix.
func NormalizeAPIURL(val string) string {
	val = strings.TrimRight(val, "/")
	val = strings.TrimSuffix(val, "/rest/v1")
	return val
}

func (m SetupModel) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyEnter {
		idx := int(m.step)

		if m.step == StepAPIURL {
			val := m.inputs[0].Value()
			if val == "" {
				m.inputs[0].SetValue(DefaultAPIURL)
			} else {
				m.inputs[0].SetValue(NormalizeAPIURL(val))
			}
		}

		// Everything after the URL is required
		if m.step != StepAPIURL && strings.TrimSpace(m.inputs[idx].Value()) == "" {
			return m, nil
		}

		m.inputs[idx].Blur()

		if m.step == StepPassword {
			m.step = StepValidating
			return m, tea.Batch(m.startValidation(), m.spinner.Tick)
		}
		m.step++
		m.inputs[int(m.step)].Focus()
		return m, textinput.Blink
	}

	// Forward to the active input
	idx := int(m.step)
	var cmd tea.Cmd
	m.inputs[idx], cmd = m.inputs[idx].Update(msg)
	return m, cmd
}

func (m SetupModel) updateFailed(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyRunes {
		switch msg.Runes[0] {
		case 'r':
			m.step = StepValidating
			m.validationErr = nil
			return m, tea.Batch(m.startValidation(), m.spinner.Tick)
		case 's':
			m.step = StepDone
			return m, tea.Quit
		case 'q':
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m SetupModel) startValidation() tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelCtx.cancel = cancel
	apiURL := m.inputs[0].Value()
	apiKey := m.inputs[1].Value()
	email := strings.TrimSpace(m.inputs[2].Value())
	password := m.inputs[3].Value()
	fn := m.validateFn
	return func() tea.Msg {
		session, err := fn(ctx, apiURL, apiKey, email, password)
		return validationResultMsg{session: session, err: err}
	}
}

// View implements tea.Model.
func (m SetupModel) View() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(brandStyle.Render("   CIRCLE"))
	b.WriteString(titleStyle.Render(" - Setup"))
	b.WriteString("\n\n")
	b.WriteString("Connect and sign in to your circle account.\n\n")

	masked := strings.Repeat("*", len(m.inputs[1].Value()))
	summary := []string{
		fmt.Sprintf("  API URL: %s\n", m.inputs[0].Value()),
		fmt.Sprintf("  API Key: %s\n", masked),
		fmt.Sprintf("  Email:   %s\n", m.inputs[2].Value()),
	}

	switch m.step {
	case StepAPIURL:
		b.WriteString(stepStyle.Render("Step 1 of 4: API URL"))
		b.WriteString("\n")
		b.WriteString(promptStyle.Render("(press Enter for default)"))
		b.WriteString("\n")
		b.WriteString(m.inputs[0].View())
		b.WriteString("\n")

	case StepAPIKey, StepEmail, StepPassword:
		idx := int(m.step)
		for _, line := range summary[:idx] {
			b.WriteString(line)
		}
		b.WriteString("\n")
		label := map[Step]string{StepAPIKey: "API Key", StepEmail: "Email", StepPassword: "Password"}[m.step]
		b.WriteString(stepStyle.Render(fmt.Sprintf("Step %d of 4: %s", idx+1, label)))
		b.WriteString("\n")
		b.WriteString(m.inputs[idx].View())
		b.WriteString("\n")

	case StepValidating:
		for _, line := range summary {
			b.WriteString(line)
		}
		b.WriteString("\n")
		b.WriteString(m.spinner.View())
		b.WriteString(" Signing in...")
		b.WriteString("\n")

	case StepDone:
		if m.session != nil {
			b.WriteString(successStyle.Render("✓ Signed in!"))
		} else {
			b.WriteString(successStyle.Render("✓ Saved."))
		}
		b.WriteString("\n")

	case StepFailed:
		errMsg := "unknown error"
		if m.validationErr != nil {
			errMsg = m.validationErr.Error()
		}
		b.WriteString(errorStyle.Render(fmt.Sprintf("✗ Sign in failed: %s", errMsg)))
		b.WriteString("\n\n")
		b.WriteString(promptStyle.Render("[r]etry  [s]ave anyway  [q]uit"))
		b.WriteString("\n")
	}

	return b.String()
}

// Result returns the entered values and the session, if sign-in succeeded.
func (m SetupModel) Result() SetupResult {
	return SetupResult{
		APIURL:  m.inputs[0].Value(),
		APIKey:  m.inputs[1].Value(),
		Email:   strings.TrimSpace(m.inputs[2].Value()),
		Session: m.session,
	}
}

// ShouldSave returns true if the wizard completed (via validation success or
// "save anyway") and the user did not cancel with Ctrl+C, Escape, or 'q'.
func (m SetupModel) ShouldSave() bool {
	return m.step == StepDone && !m.quitting
}

// ABOUTME: Unit tests for the setup TUI wizard bubbletea model.
// ABOUTME: Uses synthetic tea.Msg values to test state machine transitions.
package tui

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/2389-research/circle/internal/storage"
)

func okValidate(_ context.Context, _, _, _, _ string) (*storage.AuthSession, error) {
	s := &storage.AuthSession{AccessToken: "token"}
	s.User.ID = "user-1"
	return s, nil
}

func enter(t *testing.T, m SetupModel) (SetupModel, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return updated.(SetupModel), cmd
}

func TestNewSetupModel_DefaultValues(t *testing.T) {
	m := NewSetupModel("", "", "")
	if m.step != StepAPIURL {
		t.Errorf("expected initial step StepAPIURL, got %d", m.step)
	}
	if m.inputs[0].Value() != "" {
		t.Error("expected empty API URL input for new config")
	}
}

func TestNewSetupModel_ExistingConfig(t *testing.T) {
	m := NewSetupModel("https://example.com", "anon-key", "vera@example.com")
	if m.inputs[0].Value() != "https://example.com" {
		t.Errorf("expected pre-filled API URL, got %q", m.inputs[0].Value())
	}
	if m.inputs[1].Value() != "anon-key" {
		t.Errorf("expected pre-filled API key, got %q", m.inputs[1].Value())
	}
	if m.inputs[2].Value() != "vera@example.com" {
		t.Errorf("expected pre-filled email, got %q", m.inputs[2].Value())
	}
	if m.inputs[3].Value() != "" {
		t.Error("password must never be pre-filled")
	}
}

func TestSetupModel_StepTransitions(t *testing.T) {
	m := NewSetupModel("", "", "")

	m.inputs[0].SetValue("https://example.com")
	m, _ = enter(t, m)
	if m.step != StepAPIKey {
		t.Fatalf("expected StepAPIKey after Enter on API URL, got %d", m.step)
	}

	m.inputs[1].SetValue("anon-key")
	m, _ = enter(t, m)
	if m.step != StepEmail {
		t.Fatalf("expected StepEmail after Enter on API key, got %d", m.step)
	}

	m.inputs[2].SetValue("vera@example.com")
	m, _ = enter(t, m)
	if m.step != StepPassword {
		t.Fatalf("expected StepPassword after Enter on email, got %d", m.step)
	}

	m.inputs[3].SetValue("hunter2")
	m, cmd := enter(t, m)
	if m.step != StepValidating {
		t.Errorf("expected StepValidating after Enter on password, got %d", m.step)
	}
	if cmd == nil {
		t.Error("expected non-nil cmd (validation + spinner tick) when entering validation")
	}
}

func TestSetupModel_DefaultAPIURL(t *testing.T) {
	m := NewSetupModel("", "", "")

	// Press Enter on empty API URL field; expect the default
	m, _ = enter(t, m)
	if m.inputs[0].Value() != DefaultAPIURL {
		t.Errorf("expected default API URL %q, got %q", DefaultAPIURL, m.inputs[0].Value())
	}
	if m.step != StepAPIKey {
		t.Errorf("expected StepAPIKey after default URL applied, got %d", m.step)
	}
}

func TestSetupModel_RequiredFieldsBlocked(t *testing.T) {
	for _, step := range []Step{StepAPIKey, StepEmail, StepPassword} {
		m := NewSetupModel("", "", "")
		m.step = step
		m, _ = enter(t, m)
		if m.step != step {
			t.Errorf("expected to stay on step %d with empty input, got %d", step, m.step)
		}
	}
}

func TestSetupModel_ValidationSuccess(t *testing.T) {
	m := NewSetupModel("", "", "")
	m.step = StepValidating

	session, _ := okValidate(context.Background(), "", "", "", "")
	updated, _ := m.Update(validationResultMsg{session: session})
	m = updated.(SetupModel)
	if m.step != StepDone {
		t.Errorf("expected StepDone after successful validation, got %d", m.step)
	}
	if got := m.Result().Session; got == nil || got.User.ID != "user-1" {
		t.Errorf("expected session in result, got %+v", got)
	}
}

func TestSetupModel_ValidationFailure(t *testing.T) {
	m := NewSetupModel("", "", "")
	m.step = StepValidating

	updated, _ := m.Update(validationResultMsg{err: fmt.Errorf("connection refused")})
	m = updated.(SetupModel)
	if m.step != StepFailed {
		t.Errorf("expected StepFailed after validation error, got %d", m.step)
	}
	if m.validationErr == nil {
		t.Error("expected validationErr to be set")
	}
}

func TestSetupModel_FailedKeys(t *testing.T) {
	t.Run("retry", func(t *testing.T) {
		m := NewSetupModel("", "", "")
		m.step = StepFailed
		m.validationErr = fmt.Errorf("some error")
		updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
		m = updated.(SetupModel)
		if m.step != StepValidating {
			t.Errorf("expected StepValidating after retry, got %d", m.step)
		}
		if cmd == nil {
			t.Error("expected non-nil cmd on retry")
		}
	})

	t.Run("save anyway", func(t *testing.T) {
		m := NewSetupModel("", "", "")
		m.step = StepFailed
		updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
		m = updated.(SetupModel)
		if !m.ShouldSave() {
			t.Error("expected ShouldSave true after save anyway")
		}
		if m.Result().Session != nil {
			t.Error("expected no session after save anyway")
		}
	})

	t.Run("quit", func(t *testing.T) {
		m := NewSetupModel("", "", "")
		m.step = StepFailed
		updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
		m = updated.(SetupModel)
		if cmd == nil {
			t.Error("expected quit cmd")
		}
		if m.ShouldSave() {
			t.Error("expected ShouldSave false after quit")
		}
	})
}

func TestSetupModel_QuitKeys(t *testing.T) {
	for _, key := range []tea.KeyType{tea.KeyCtrlC, tea.KeyEscape} {
		m := NewSetupModel("", "", "")
		updated, cmd := m.Update(tea.KeyMsg{Type: key})
		m = updated.(SetupModel)
		if cmd == nil {
			t.Errorf("expected quit cmd on %v", key)
		}
		if !m.quitting || m.ShouldSave() {
			t.Errorf("expected quitting without save on %v", key)
		}
	}
}

func TestSetupModel_Result(t *testing.T) {
	m := NewSetupModel("", "", "")
	m.inputs[0].SetValue("https://example.com")
	m.inputs[1].SetValue("anon-key")
	m.inputs[2].SetValue("  vera@example.com ")
	m.step = StepDone

	r := m.Result()
	if r.APIURL != "https://example.com" || r.APIKey != "anon-key" || r.Email != "vera@example.com" {
		t.Errorf("unexpected result: %+v", r)
	}
}

func TestSetupModel_Views(t *testing.T) {
	m := NewSetupModel("", "", "")
	if !strings.Contains(m.View(), "CIRCLE") {
		t.Error("expected view to contain CIRCLE branding")
	}

	cases := map[Step]string{
		StepAPIURL:     "API URL",
		StepAPIKey:     "Step 2 of 4: API Key",
		StepEmail:      "Step 3 of 4: Email",
		StepPassword:   "Step 4 of 4: Password",
		StepValidating: "Signing in",
		StepDone:       "Saved",
	}
	for step, want := range cases {
		m.step = step
		if !strings.Contains(m.View(), want) {
			t.Errorf("expected step %d view to mention %q", step, want)
		}
	}
}

func TestSetupModel_ViewMasksKey(t *testing.T) {
	m := NewSetupModel("https://example.com", "secret", "")
	m.step = StepEmail
	view := m.View()
	if strings.Contains(view, "secret") {
		t.Error("expected API key to be masked")
	}
	if !strings.Contains(view, "******") {
		t.Error("expected masked API key")
	}
}

func TestSetupModel_ViewFailed(t *testing.T) {
	m := NewSetupModel("", "", "")
	m.step = StepFailed
	m.validationErr = fmt.Errorf("timeout")
	view := m.View()
	for _, want := range []string{"Sign in failed", "timeout", "[r]etry", "[s]ave anyway", "[q]uit"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected StepFailed view to contain %q", want)
		}
	}

	m.validationErr = nil
	if !strings.Contains(m.View(), "unknown error") {
		t.Error("expected nil error to show 'unknown error' fallback")
	}
}

func TestSetupModel_CtrlCDuringValidation(t *testing.T) {
	cancelled := false
	m := NewSetupModel("https://example.com", "key", "vera@example.com")
	m.validateFn = func(ctx context.Context, _, _, _, _ string) (*storage.AuthSession, error) {
		<-ctx.Done()
		cancelled = true
		return nil, ctx.Err()
	}
	m.inputs[3].SetValue("pw")
	m.step = StepPassword

	m, batchCmd := enter(t, m)
	if m.step != StepValidating {
		t.Fatalf("expected StepValidating, got %d", m.step)
	}

	// batchMsg[0] is the validation cmd, batchMsg[1] is the spinner tick
	batchMsg := batchCmd().(tea.BatchMsg)
	done := make(chan tea.Msg)
	go func() {
		done <- batchMsg[0]()
	}()

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = updated.(SetupModel)
	if !m.quitting {
		t.Error("expected quitting to be true after Ctrl+C during validation")
	}

	<-done
	if !cancelled {
		t.Error("expected validation context to be cancelled")
	}
}

func TestSetupModel_ValidationPassesCorrectArgs(t *testing.T) {
	var got []string
	m := NewSetupModel("https://example.com", "anon", " vera@example.com ")
	m.validateFn = func(_ context.Context, apiURL, apiKey, email, password string) (*storage.AuthSession, error) {
		got = []string{apiURL, apiKey, email, password}
		return nil, nil
	}
	m.inputs[3].SetValue("hunter2")
	m.step = StepPassword

	_, batchCmd := enter(t, m)
	batchMsg := batchCmd().(tea.BatchMsg)
	batchMsg[0]()

	want := []string{"https://example.com", "anon", "vera@example.com", "hunter2"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("expected args %v, got %v", want, got)
	}
}

func TestNormalizeAPIURL(t *testing.T) {
	tests := map[string]string{
		"https://example.com/":         "https://example.com",
		"https://example.com/rest/v1":  "https://example.com",
		"https://example.com/rest/v1/": "https://example.com",
		"https://example.com":          "https://example.com",
	}
	for in, want := range tests {
		if got := NormalizeAPIURL(in); got != want {
			t.Errorf("NormalizeAPIURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSetupModel_FullFlowWithTeaProgram(t *testing.T) {
	m := NewSetupModel("https://example.com", "anon", "vera@example.com")
	m.inputs[3].SetValue("pw")
	m.validateFn = func(ctx context.Context, a, b, c, d string) (*storage.AuthSession, error) {
		time.Sleep(50 * time.Millisecond)
		return okValidate(ctx, a, b, c, d)
	}

	p := tea.NewProgram(m, tea.WithInput(nil), tea.WithoutRenderer())

	go func() {
		p.Send(tea.KeyMsg{Type: tea.KeyEnter}) // URL
		p.Send(tea.KeyMsg{Type: tea.KeyEnter}) // API key
		p.Send(tea.KeyMsg{Type: tea.KeyEnter}) // Email
		p.Send(tea.KeyMsg{Type: tea.KeyEnter}) // Password -> validates -> done -> quit
	}()

	result, err := p.Run()
	if err != nil {
		t.Fatalf("tea.Program error: %v", err)
	}

	final := result.(SetupModel)
	if !final.ShouldSave() {
		t.Errorf("expected ShouldSave=true after successful validation, got false (step=%d, quitting=%v)", final.step, final.quitting)
	}
	if final.Result().Session == nil {
		t.Error("expected session after successful sign in")
	}
}

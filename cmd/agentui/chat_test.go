package main

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"testing"

	"github.com/a-h/agentui/capture"
	"github.com/a-h/agentui/models"
	"github.com/a-h/agentui/session"
	tea "github.com/charmbracelet/bubbletea"
)

func TestFormatMessage(t *testing.T) {
	tests := []struct {
		name     string
		msg      models.ChatMessage
		contains []string
		excludes []string
	}{
		{
			name:     "human messages show the human icon",
			msg:      models.NewHumanMessage("hello"),
			contains: []string{"🥷", "hello"},
			excludes: []string{"🖼"},
		},
		{
			name:     "AI messages show the image URL underneath",
			msg:      models.NewAIMessage("here you go", "https://example.com/cat.png"),
			contains: []string{"✨", "here you go", "https://example.com/cat.png"},
		},
		{
			name:     "AI messages without an image have no image line",
			msg:      models.NewAIMessage("no picture", ""),
			contains: []string{"no picture"},
			excludes: []string{"🖼"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual := formatMessage(tt.msg)
			for _, s := range tt.contains {
				if !strings.Contains(actual, s) {
					t.Errorf("expected %q in output:\n%s", s, actual)
				}
			}
			for _, s := range tt.excludes {
				if strings.Contains(actual, s) {
					t.Errorf("unexpected %q in output:\n%s", s, actual)
				}
			}
		})
	}
}

func newTestModel(relayer session.Relayer) model {
	return newTestModelWithSource(relayer, capture.CommandSource{Name: "false"})
}

func newTestModelWithSource(relayer session.Relayer, source capture.Source) model {
	log := newLogger(io.Discard, "error")
	sess := session.New(session.Config{
		Model:              "gpt-4.1",
		WebhookID:          "conversation",
		BaseConversationID: 200,
	})
	recorder := capture.NewRecorder(log, source)
	return newModel(context.Background(), log, sess, relayer, recorder)
}

func runCmd(cmd tea.Cmd) (msgs []tea.Msg) {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			msgs = append(msgs, runCmd(c)...)
		}
		return msgs
	}
	return []tea.Msg{msg}
}

func relayDone(t *testing.T, msgs []tea.Msg) relayDoneMsg {
	t.Helper()
	for _, msg := range msgs {
		if done, ok := msg.(relayDoneMsg); ok {
			return done
		}
	}
	t.Fatalf("expected a relay message, got %#v", msgs)
	return relayDoneMsg{}
}

func TestChatEnterSendsMessage(t *testing.T) {
	var received []models.RelayRequest
	relayer := relayFunc(func(ctx context.Context, req models.RelayRequest) (models.RelayResponse, error) {
		received = append(received, req)
		return models.RelayResponse{
			Kind:        models.RelayResponseDirect,
			HasMessages: true,
			Messages: []models.ChatMessage{
				models.NewHumanMessage("hello"),
				models.NewAIMessage("hi there", ""),
			},
		}, nil
	})
	var m tea.Model = newTestModel(relayer)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("hello")})
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected a command to send the message")
	}
	cm := m.(model)
	if !cm.sess.Busy() {
		t.Error("expected the session to be awaiting a response")
	}
	if cm.textarea.Value() != "" {
		t.Errorf("expected the input to be cleared, got %q", cm.textarea.Value())
	}

	done := relayDone(t, runCmd(cmd))
	m, _ = m.Update(done)
	cm = m.(model)

	if len(received) != 1 {
		t.Fatalf("expected 1 request, got %d", len(received))
	}
	if received[0].Prompt != "hello" {
		t.Errorf("expected prompt %q, got %q", "hello", received[0].Prompt)
	}
	if cm.sess.Busy() {
		t.Error("expected the session to be idle after the response")
	}
	msgs := cm.sess.Messages()
	if len(msgs) != 2 || msgs[1].Content() != "hi there" {
		t.Errorf("unexpected messages: %#v", msgs)
	}
	if !strings.Contains(cm.View(), "hi there") {
		t.Error("expected the response to be rendered")
	}
}

func TestChatEnterIgnoresEmptyInput(t *testing.T) {
	relayer := relayFunc(func(ctx context.Context, req models.RelayRequest) (models.RelayResponse, error) {
		t.Fatal("unexpected relay call")
		return models.RelayResponse{}, nil
	})
	var m tea.Model = newTestModel(relayer)

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Error("expected no command for empty input")
	}
	if m.(model).sess.Busy() {
		t.Error("expected the session to stay idle")
	}
}

func TestChatRelayErrorIsShownAsMessage(t *testing.T) {
	relayer := relayFunc(func(ctx context.Context, req models.RelayRequest) (models.RelayResponse, error) {
		return models.RelayResponse{}, errors.New("n8n responded with status 502")
	})
	var m tea.Model = newTestModel(relayer)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("hello")})
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = m.Update(relayDone(t, runCmd(cmd)))

	msgs := m.(model).sess.Messages()
	last := msgs[len(msgs)-1]
	if last.Role() != models.RoleAI || !strings.Contains(last.Content(), "502") {
		t.Errorf("expected an error message, got %#v", last)
	}
}

func TestChatImageCommands(t *testing.T) {
	var m tea.Model = newTestModel(relayFunc(func(ctx context.Context, req models.RelayRequest) (models.RelayResponse, error) {
		return models.RelayResponse{}, nil
	}))

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("/image testdata/missing.png")})
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Error("expected slash commands not to send a message")
	}
	cm := m.(model)
	if cm.notice == "" {
		t.Error("expected a notice for a missing image")
	}
	if cm.sess.PendingImage() != "" {
		t.Error("expected no image to be attached")
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.(model).notice != "" {
		t.Error("expected esc to dismiss the notice")
	}
}

func TestChatNewConversation(t *testing.T) {
	var m tea.Model = newTestModel(relayFunc(func(ctx context.Context, req models.RelayRequest) (models.RelayResponse, error) {
		return models.RelayResponse{}, nil
	}))
	before := m.(model).sess.ConversationID()

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlN})
	after := m.(model).sess.ConversationID()
	if before == after {
		t.Errorf("expected a new conversation id, got %d twice", after)
	}
}

func TestChatRecorderExitShowsMicrophoneNotice(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	relayer := relayFunc(func(ctx context.Context, req models.RelayRequest) (models.RelayResponse, error) {
		t.Fatal("unexpected relay call")
		return models.RelayResponse{}, nil
	})
	source := capture.CommandSource{Name: "sh", Args: []string{"-c", "echo 'Permission denied' >&2; exit 1"}}
	var m tea.Model = newTestModelWithSource(relayer, source)

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	if cmd == nil {
		t.Fatal("expected a command waiting for the recording to end")
	}
	ended := cmd()
	if _, ok := ended.(recordingEndedMsg); !ok {
		t.Fatalf("expected recordingEndedMsg, got %#v", ended)
	}
	if m.(model).recorder.Recording() {
		t.Error("expected the recording indicator to clear once the recorder exits")
	}

	m, cmd = m.Update(ended)
	if cmd == nil {
		t.Fatal("expected the failed recording to be collected")
	}
	m, cmd = m.Update(cmd())
	if cmd != nil {
		t.Error("expected nothing to be sent")
	}
	cm := m.(model)
	if !strings.Contains(cm.notice, "Microphone unavailable") {
		t.Errorf("expected a microphone notice, got %q", cm.notice)
	}
	if len(cm.sess.Messages()) != 0 {
		t.Errorf("expected no messages, got %#v", cm.sess.Messages())
	}
}

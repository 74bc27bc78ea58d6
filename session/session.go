// Package session tracks the client side of a conversation with a workflow.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/a-h/agentui/models"
	"github.com/a-h/agentui/normalize"
	"github.com/qmuntal/stateless"
)

type State string

const (
	StateIdle             State = "Idle"
	StateAwaitingResponse State = "AwaitingResponse"
)

type Trigger string

const (
	TriggerSubmit   Trigger = "Submit"
	TriggerComplete Trigger = "Complete"
	TriggerReset    Trigger = "Reset"
)

const (
	ImageAttachedSuffix = " [Image attached]"
	AudioMessageContent = "[Audio message]"
)

var ErrNotReady = errors.New("session: nothing to submit or a response is pending")

// Relayer sends a request to a workflow.
type Relayer interface {
	RelayPost(ctx context.Context, req models.RelayRequest) (models.RelayResponse, error)
}

type Config struct {
	Model              string
	WebhookID          string
	BaseConversationID int
	Normalize          normalize.Options
}

// Submission is a request captured at submit time, together with the conversation it belongs to.
type Submission struct {
	Request    models.RelayRequest
	Generation int
}

type Session struct {
	mu             sync.Mutex
	cfg            Config
	fsm            *stateless.StateMachine
	messages       []models.ChatMessage
	conversationID int
	input          string
	pendingImage   string
	lastImage      string
}

func New(cfg Config) *Session {
	fsm := stateless.NewStateMachine(StateIdle)
	fsm.Configure(StateIdle).
		Permit(TriggerSubmit, StateAwaitingResponse).
		PermitReentry(TriggerReset).
		Ignore(TriggerComplete)
	fsm.Configure(StateAwaitingResponse).
		Permit(TriggerComplete, StateIdle).
		Permit(TriggerReset, StateIdle)
	return &Session{
		cfg:            cfg,
		fsm:            fsm,
		conversationID: cfg.BaseConversationID,
	}
}

func (s *Session) SetInput(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.input = text
}

// AttachImage replaces any pending image.
func (s *Session) AttachImage(dataURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingImage = dataURL
}

func (s *Session) ClearImage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingImage = ""
}

// Submit appends the user's message and moves to AwaitingResponse. It returns false,
// leaving the session untouched, when there is no input or a response is pending.
func (s *Session) Submit() (sub Submission, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(s.input) == "" && s.pendingImage == "" {
		return sub, false
	}
	if !s.canSubmit() {
		return sub, false
	}
	content := s.input
	if s.pendingImage != "" {
		content = strings.TrimSpace(content + ImageAttachedSuffix)
	}
	sub = s.submission(models.RelayRequest{
		Prompt: s.input,
		Image:  s.pendingImage,
	})
	s.messages = append(s.messages, models.NewHumanMessage(content))
	s.input = ""
	return sub, s.fsm.Fire(TriggerSubmit) == nil
}

// SubmitAudio sends a recording as the next message.
func (s *Session) SubmitAudio(audioBase64 string) (sub Submission, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if audioBase64 == "" || !s.canSubmit() {
		return sub, false
	}
	sub = s.submission(models.RelayRequest{
		AudioBase64: audioBase64,
	})
	s.messages = append(s.messages, models.NewHumanMessage(AudioMessageContent))
	return sub, s.fsm.Fire(TriggerSubmit) == nil
}

func (s *Session) canSubmit() bool {
	ok, err := s.fsm.CanFire(TriggerSubmit)
	return ok && err == nil
}

func (s *Session) submission(req models.RelayRequest) Submission {
	req.Model = s.cfg.Model
	req.WebhookID = s.cfg.WebhookID
	req.ConversationID = strconv.Itoa(s.conversationID)
	return Submission{Request: req, Generation: s.conversationID}
}

// Complete applies the outcome of a submission and returns to Idle. Outcomes for a
// conversation that has since been reset are discarded, and Complete returns false.
func (s *Session) Complete(sub Submission, resp models.RelayResponse, err error) (applied bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.Generation != s.conversationID || s.fsm.MustState() != StateAwaitingResponse {
		return false
	}
	if fireErr := s.fsm.Fire(TriggerComplete); fireErr != nil {
		return false
	}
	s.pendingImage = ""
	if err != nil {
		s.messages = append(s.messages, models.NewAIMessage("Error: "+err.Error(), ""))
		return true
	}
	result := normalize.Normalize(resp, s.cfg.Normalize)
	if result.FromHistory {
		s.messages = result.Messages
	} else {
		s.messages = append(s.messages, result.Messages...)
	}
	s.lastImage = result.Image
	return true
}

// Reset starts a new conversation. It is allowed while a response is pending.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fsm.Fire(TriggerReset); err != nil {
		return fmt.Errorf("session: reset from %v: %w", s.fsm.MustState(), err)
	}
	s.messages = nil
	s.input = ""
	s.pendingImage = ""
	s.lastImage = ""
	s.conversationID++
	return nil
}

// Send submits the current input and waits for the relay. The session always returns
// to Idle, whatever the outcome of the call.
func (s *Session) Send(ctx context.Context, r Relayer) error {
	sub, ok := s.Submit()
	if !ok {
		return ErrNotReady
	}
	return s.Deliver(ctx, r, sub)
}

// Deliver relays a submission and completes it.
func (s *Session) Deliver(ctx context.Context, r Relayer, sub Submission) (err error) {
	var resp models.RelayResponse
	defer func() {
		s.Complete(sub, resp, err)
	}()
	resp, err = r.RelayPost(ctx, sub.Request)
	return err
}

func (s *Session) Messages() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

func (s *Session) ConversationID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fsm.MustState().(State)
}

func (s *Session) Busy() bool {
	return s.State() == StateAwaitingResponse
}

func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

func (s *Session) PendingImage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingImage
}

// LastImage is the image returned by the most recent response, if any.
func (s *Session) LastImage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastImage
}

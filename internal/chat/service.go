// Package chat implements retrieval-augmented conversation.
//
// Each request runs the full pipeline: resolve the session, rewrite the
// question against its history, retrieve matching chunks, generate a
// grounded answer, and persist the exchange.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"

	"github.com/ychsieh/ragchat/internal/knowledge"
	"github.com/ychsieh/ragchat/internal/session"
)

var (
	// ErrEmptyQuestion indicates a blank or whitespace-only question.
	ErrEmptyQuestion = errors.New("question must not be empty")
	// ErrUnknownModel indicates a model name outside the allowlist.
	ErrUnknownModel = errors.New("unknown model")
	// ErrInvalidSessionID indicates a session_id that is not a UUID.
	ErrInvalidSessionID = errors.New("invalid session id")
)

// DefaultModels returns the served model allowlist, mapping request
// names to provider-qualified Genkit model names.
func DefaultModels() map[string]string {
	return map[string]string{
		"gemini-2.0-flash": "googleai/gemini-2.0-flash",
		"gemini-2.5-flash": "googleai/gemini-2.5-flash",
	}
}

// Generator abstracts model generation so the pipeline can be tested
// without a live provider.
type Generator interface {
	Generate(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error)
}

// genkitGenerator adapts a Genkit instance to the Generator interface.
type genkitGenerator struct {
	g *genkit.Genkit
}

func (gg genkitGenerator) Generate(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error) {
	return genkit.Generate(ctx, gg.g, opts...)
}

// NewGenkitGenerator wraps a Genkit instance for use as a Generator.
func NewGenkitGenerator(g *genkit.Genkit) Generator {
	return genkitGenerator{g: g}
}

// Retriever finds chunks relevant to a query.
// Satisfied by *knowledge.Store.
type Retriever interface {
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
}

// History is the session persistence the pipeline needs.
// Satisfied by *session.Store.
type History interface {
	Ensure(ctx context.Context, id uuid.UUID, modelName string) error
	Recent(ctx context.Context, sessionID uuid.UUID, limit int32) ([]*session.Message, error)
	AppendExchange(ctx context.Context, sessionID uuid.UUID, question, answer, model string) error
}

// Request is one chat turn.
type Request struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
	Model     string `json:"model,omitempty"`
}

// Response is the generated answer plus the session it belongs to.
// SessionID is echoed back (or freshly generated) so clients can thread
// follow-up questions.
type Response struct {
	Answer    string `json:"answer"`
	SessionID string `json:"session_id"`
	Model     string `json:"model"`
}

// Config tunes the pipeline.
type Config struct {
	// DefaultModel is used when a request names no model.
	DefaultModel string
	// Models is the allowlist; nil falls back to DefaultModels().
	Models map[string]string
	// Temperature is passed to every generation call.
	Temperature float32
	// TopK is how many chunks retrieval returns.
	TopK int
	// MaxHistory bounds how many stored messages are replayed per turn.
	MaxHistory int32
}

// Service runs the chat pipeline.
type Service struct {
	generator Generator
	retriever Retriever
	history   History
	cfg       Config
	logger    *slog.Logger
}

// NewService creates a Service.
// logger may be nil, in which case slog.Default() is used.
func NewService(generator Generator, retriever Retriever, history History, cfg Config, logger *slog.Logger) *Service {
	if cfg.Models == nil {
		cfg.Models = DefaultModels()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 2
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{generator: generator, retriever: retriever, history: history, cfg: cfg, logger: logger}
}

// Answer runs one full chat turn.
//
// A missing session_id starts a new session; an unknown one is an error
// only if it is not UUID-shaped, otherwise the session is created
// implicitly so clients may mint their own IDs.
func (s *Service) Answer(ctx context.Context, req Request) (*Response, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	modelName, qualified, err := s.resolveModel(req.Model)
	if err != nil {
		return nil, err
	}

	sessionID, err := resolveSessionID(req.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.history.Ensure(ctx, sessionID, modelName); err != nil {
		return nil, err
	}

	// Replay the newest turns; a follow-up question references the most
	// recent exchange, not the start of a long conversation.
	history, err := s.history.Recent(ctx, sessionID, s.cfg.MaxHistory)
	if err != nil {
		return nil, err
	}
	messages := toModelMessages(history)

	searchQuery := question
	if len(messages) > 0 {
		searchQuery, err = s.contextualize(ctx, qualified, messages, question)
		if err != nil {
			return nil, err
		}
	}

	results, err := s.retriever.Search(ctx, searchQuery, knowledge.WithTopK(s.cfg.TopK))
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	answer, err := s.generateAnswer(ctx, qualified, messages, question, results)
	if err != nil {
		return nil, err
	}

	if err := s.history.AppendExchange(ctx, sessionID, question, answer, modelName); err != nil {
		return nil, err
	}

	s.logger.Info("answered question",
		"session_id", sessionID,
		"model", modelName,
		"history_messages", len(messages),
		"retrieved_chunks", len(results))

	return &Response{
		Answer:    answer,
		SessionID: sessionID.String(),
		Model:     modelName,
	}, nil
}

// resolveModel maps the requested model name to its provider-qualified
// form, rejecting names outside the allowlist.
func (s *Service) resolveModel(requested string) (name, qualified string, err error) {
	name = strings.TrimSpace(requested)
	if name == "" {
		name = s.cfg.DefaultModel
	}
	qualified, ok := s.cfg.Models[name]
	if !ok {
		return "", "", fmt.Errorf("%q: %w", name, ErrUnknownModel)
	}
	return name, qualified, nil
}

func resolveSessionID(raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.New(), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%q: %w", raw, ErrInvalidSessionID)
	}
	return id, nil
}

// contextualize rewrites a follow-up question into a standalone search
// query using the conversation so far.
func (s *Service) contextualize(ctx context.Context, model string, history []*ai.Message, question string) (string, error) {
	messages := append(append([]*ai.Message{}, history...),
		ai.NewUserMessage(ai.NewTextPart(question)))

	resp, err := s.generator.Generate(ctx,
		ai.WithModelName(model),
		ai.WithSystem(contextualizeSystemPrompt),
		ai.WithMessages(messages...),
		ai.WithConfig(&ai.GenerationCommonConfig{Temperature: float64(s.cfg.Temperature)}),
	)
	if err != nil {
		return "", fmt.Errorf("question contextualization failed: %w", err)
	}

	rewritten := strings.TrimSpace(resp.Text())
	if rewritten == "" {
		return question, nil
	}
	return rewritten, nil
}

// generateAnswer produces the final answer grounded in retrieved chunks.
func (s *Service) generateAnswer(ctx context.Context, model string, history []*ai.Message, question string, results []knowledge.Result) (string, error) {
	messages := append(append([]*ai.Message{}, history...),
		ai.NewUserMessage(ai.NewTextPart(question)))

	resp, err := s.generator.Generate(ctx,
		ai.WithModelName(model),
		ai.WithSystem(answerSystemPrompt(results)),
		ai.WithMessages(messages...),
		ai.WithConfig(&ai.GenerationCommonConfig{Temperature: float64(s.cfg.Temperature)}),
	)
	if err != nil {
		return "", fmt.Errorf("answer generation failed: %w", err)
	}
	return resp.Text(), nil
}

// toModelMessages converts stored history into generation messages.
// Unknown roles are skipped rather than failing the whole turn.
func toModelMessages(history []*session.Message) []*ai.Message {
	messages := make([]*ai.Message, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case session.RoleUser:
			messages = append(messages, ai.NewUserMessage(ai.NewTextPart(msg.Content)))
		case session.RoleModel:
			messages = append(messages, ai.NewModelMessage(ai.NewTextPart(msg.Content)))
		}
	}
	return messages
}

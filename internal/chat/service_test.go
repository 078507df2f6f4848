package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ychsieh/ragchat/internal/knowledge"
	"github.com/ychsieh/ragchat/internal/session"
)

// mockGenerator returns canned responses, optionally via custom logic.
type mockGenerator struct {
	Response     *ai.ModelResponse
	Err          error
	Calls        int
	GenerateFunc func(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error)
}

func (m *mockGenerator) Generate(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error) {
	m.Calls++
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, opts...)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Response, nil
}

func textResponse(text string) *ai.ModelResponse {
	return &ai.ModelResponse{Message: ai.NewModelMessage(ai.NewTextPart(text))}
}

type mockRetriever struct {
	results []knowledge.Result
	err     error
	queries []string
}

func (m *mockRetriever) Search(_ context.Context, query string, _ ...knowledge.SearchOption) ([]knowledge.Result, error) {
	m.queries = append(m.queries, query)
	return m.results, m.err
}

type mockHistory struct {
	messages  []*session.Message
	ensured   []uuid.UUID
	appended  [][3]string
	limit     int32
	ensureErr error
	appendErr error
}

func (m *mockHistory) Ensure(_ context.Context, id uuid.UUID, _ string) error {
	m.ensured = append(m.ensured, id)
	return m.ensureErr
}

func (m *mockHistory) Recent(_ context.Context, _ uuid.UUID, limit int32) ([]*session.Message, error) {
	m.limit = limit
	return m.messages, nil
}

func (m *mockHistory) AppendExchange(_ context.Context, _ uuid.UUID, question, answer, model string) error {
	m.appended = append(m.appended, [3]string{question, answer, model})
	return m.appendErr
}

func newTestService(gen Generator, ret Retriever, hist History) *Service {
	return NewService(gen, ret, hist, Config{
		DefaultModel: "gemini-2.5-flash",
		TopK:         2,
	}, nil)
}

func TestAnswer_NewSession(t *testing.T) {
	gen := &mockGenerator{Response: textResponse("42 days")}
	ret := &mockRetriever{results: []knowledge.Result{
		{Chunk: knowledge.Chunk{Content: "returns accepted within 42 days"}, Similarity: 0.9},
	}}
	hist := &mockHistory{}

	resp, err := newTestService(gen, ret, hist).Answer(context.Background(), Request{
		Question: "What is the return window?",
	})
	require.NoError(t, err)

	assert.Equal(t, "42 days", resp.Answer)
	assert.Equal(t, "gemini-2.5-flash", resp.Model)

	// A session was minted and the exchange persisted into it.
	id, err := uuid.Parse(resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id}, hist.ensured)
	require.Len(t, hist.appended, 1)
	assert.Equal(t, "What is the return window?", hist.appended[0][0])
	assert.Equal(t, "42 days", hist.appended[0][1])

	// Empty history means no contextualization call.
	assert.Equal(t, 1, gen.Calls)
	assert.Equal(t, []string{"What is the return window?"}, ret.queries)
}

func TestAnswer_ContextualizesWithHistory(t *testing.T) {
	gen := &mockGenerator{}
	gen.GenerateFunc = func(_ context.Context, _ ...ai.GenerateOption) (*ai.ModelResponse, error) {
		if gen.Calls == 1 {
			return textResponse("What is the refund policy for shoes?"), nil
		}
		return textResponse("Full refund within 30 days."), nil
	}
	ret := &mockRetriever{}
	hist := &mockHistory{messages: []*session.Message{
		{Role: session.RoleUser, Content: "Do you sell shoes?"},
		{Role: session.RoleModel, Content: "Yes, we do."},
	}}

	sessionID := uuid.New()
	resp, err := newTestService(gen, ret, hist).Answer(context.Background(), Request{
		Question:  "And what about refunds?",
		SessionID: sessionID.String(),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, gen.Calls)
	// Retrieval uses the rewritten standalone question.
	assert.Equal(t, []string{"What is the refund policy for shoes?"}, ret.queries)
	assert.Equal(t, sessionID.String(), resp.SessionID)
	assert.Equal(t, "Full refund within 30 days.", resp.Answer)

	// History is the newest window, bounded by the configured maximum.
	assert.Equal(t, int32(100), hist.limit)
}

func TestAnswer_BlankContextualizationFallsBack(t *testing.T) {
	gen := &mockGenerator{}
	gen.GenerateFunc = func(_ context.Context, _ ...ai.GenerateOption) (*ai.ModelResponse, error) {
		if gen.Calls == 1 {
			return textResponse("   "), nil
		}
		return textResponse("answer"), nil
	}
	ret := &mockRetriever{}
	hist := &mockHistory{messages: []*session.Message{
		{Role: session.RoleUser, Content: "hi"},
		{Role: session.RoleModel, Content: "hello"},
	}}

	_, err := newTestService(gen, ret, hist).Answer(context.Background(), Request{
		Question:  "original question",
		SessionID: uuid.NewString(),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"original question"}, ret.queries)
}

func TestAnswer_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{name: "empty question", req: Request{Question: ""}, wantErr: ErrEmptyQuestion},
		{name: "whitespace question", req: Request{Question: "  \n "}, wantErr: ErrEmptyQuestion},
		{name: "unknown model", req: Request{Question: "q", Model: "gpt-4"}, wantErr: ErrUnknownModel},
		{name: "malformed session id", req: Request{Question: "q", SessionID: "not-a-uuid"}, wantErr: ErrInvalidSessionID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mockGenerator{Response: textResponse("x")}
			svc := newTestService(gen, &mockRetriever{}, &mockHistory{})

			_, err := svc.Answer(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, gen.Calls)
		})
	}
}

func TestAnswer_ExplicitModelSelection(t *testing.T) {
	gen := &mockGenerator{Response: textResponse("ok")}
	hist := &mockHistory{}

	resp, err := newTestService(gen, &mockRetriever{}, hist).Answer(context.Background(), Request{
		Question: "q",
		Model:    "gemini-2.0-flash",
	})
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.0-flash", resp.Model)
	require.Len(t, hist.appended, 1)
	assert.Equal(t, "gemini-2.0-flash", hist.appended[0][2])
}

func TestAnswer_RetrievalFailure(t *testing.T) {
	gen := &mockGenerator{Response: textResponse("x")}
	ret := &mockRetriever{err: errors.New("connection reset")}
	hist := &mockHistory{}

	_, err := newTestService(gen, ret, hist).Answer(context.Background(), Request{Question: "q"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "retrieval failed")
	assert.Empty(t, hist.appended)
}

func TestAnswer_GenerationFailure(t *testing.T) {
	gen := &mockGenerator{Err: errors.New("quota exceeded")}
	hist := &mockHistory{}

	_, err := newTestService(gen, &mockRetriever{}, hist).Answer(context.Background(), Request{Question: "q"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "answer generation failed")
	assert.Empty(t, hist.appended)
}

func TestAnswer_AppendFailureSurfaces(t *testing.T) {
	gen := &mockGenerator{Response: textResponse("x")}
	hist := &mockHistory{appendErr: session.ErrNotFound}

	_, err := newTestService(gen, &mockRetriever{}, hist).Answer(context.Background(), Request{Question: "q"})
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestRenderContext(t *testing.T) {
	assert.Equal(t, "(no relevant documents found)", renderContext(nil))

	got := renderContext([]knowledge.Result{
		{Chunk: knowledge.Chunk{Content: "first"}},
		{Chunk: knowledge.Chunk{Content: "second"}},
	})
	assert.Equal(t, "first\n\nsecond", got)
}

func TestToModelMessages_SkipsUnknownRoles(t *testing.T) {
	messages := toModelMessages([]*session.Message{
		{Role: session.RoleUser, Content: "q"},
		{Role: "system", Content: "ignored"},
		{Role: session.RoleModel, Content: "a"},
	})
	require.Len(t, messages, 2)
	assert.Equal(t, ai.RoleUser, messages[0].Role)
	assert.Equal(t, ai.RoleModel, messages[1].Role)
}

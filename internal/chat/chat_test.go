package chat

import (
	"context"
	"errors"
	"testing"

	"docchat/internal/log"
	"docchat/internal/rag"
	"docchat/internal/store"
)

type appended struct {
	sessionID int64
	role      string
	content   string
	sourceIDs []int64
}

type fakeSessions struct {
	nextSessionID int64
	createCalls   int
	createErr     error
	history       []store.Message
	historyErr    error
	appendErr     func(role string) error
	appendedMsgs  []appended
	gotHistoryID  int64
	gotHistoryCap int
	nextMessageID int64
}

func (f *fakeSessions) CreateSession(ctx context.Context) (store.Session, error) {
	f.createCalls++
	if f.createErr != nil {
		return store.Session{}, f.createErr
	}
	f.nextSessionID++
	return store.Session{ID: f.nextSessionID}, nil
}

func (f *fakeSessions) AppendMessage(ctx context.Context, sessionID int64, role, content string, sourceIDs []int64) (store.Message, error) {
	if f.appendErr != nil {
		if err := f.appendErr(role); err != nil {
			return store.Message{}, err
		}
	}
	f.appendedMsgs = append(f.appendedMsgs, appended{sessionID: sessionID, role: role, content: content, sourceIDs: sourceIDs})
	f.nextMessageID++
	return store.Message{ID: f.nextMessageID, SessionID: sessionID, Role: role, Content: content, SourceIDs: sourceIDs}, nil
}

func (f *fakeSessions) History(ctx context.Context, sessionID int64, limit int) ([]store.Message, error) {
	f.gotHistoryID = sessionID
	f.gotHistoryCap = limit
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history, nil
}

type fakeRetriever struct {
	sources []store.Source
	err     error
	calls   int
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, opts ...rag.Option) ([]store.Source, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.sources, nil
}

type fakeGenerator struct {
	answer     string
	err        error
	calls      int
	gotTurns   []rag.Turn
	gotSources []store.Source
}

func (f *fakeGenerator) Generate(ctx context.Context, question string, sources []store.Source, history []rag.Turn) (string, error) {
	f.calls++
	f.gotSources = sources
	f.gotTurns = history
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func newTestService(t *testing.T, sessions *fakeSessions, retriever *fakeRetriever, generator *fakeGenerator) *Service {
	t.Helper()
	svc, err := New(Config{
		Retriever: retriever,
		Generator: generator,
		Sessions:  sessions,
		Logger:    log.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func TestChatCreatesSessionWhenAbsent(t *testing.T) {
	sessions := &fakeSessions{}
	retriever := &fakeRetriever{sources: []store.Source{{ID: 42, Content: "c", SourceName: "s.md", Similarity: 0.8}}}
	generator := &fakeGenerator{answer: "an answer [Source 1]"}
	svc := newTestService(t, sessions, retriever, generator)

	resp, err := svc.Chat(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if sessions.createCalls != 1 {
		t.Errorf("created %d sessions, want exactly 1", sessions.createCalls)
	}
	if resp.ConversationID != 1 {
		t.Errorf("ConversationID = %d, want the new session id 1", resp.ConversationID)
	}
	if resp.Answer != "an answer [Source 1]" {
		t.Errorf("Answer = %q", resp.Answer)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].ID != 42 {
		t.Errorf("Sources = %+v", resp.Sources)
	}
}

func TestChatReusesProvidedSession(t *testing.T) {
	sessions := &fakeSessions{}
	retriever := &fakeRetriever{}
	generator := &fakeGenerator{answer: rag.NoRelevantInfoMessage}
	svc := newTestService(t, sessions, retriever, generator)

	id := int64(7)
	resp, err := svc.Chat(context.Background(), "hello again", &id)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if sessions.createCalls != 0 {
		t.Errorf("created %d sessions, want 0", sessions.createCalls)
	}
	if resp.ConversationID != 7 {
		t.Errorf("ConversationID = %d, want 7", resp.ConversationID)
	}
	if sessions.gotHistoryID != 7 {
		t.Errorf("history loaded for session %d, want 7", sessions.gotHistoryID)
	}
}

func TestChatSessionIDZeroIsNotAbsent(t *testing.T) {
	sessions := &fakeSessions{}
	svc := newTestService(t, sessions, &fakeRetriever{}, &fakeGenerator{answer: "a"})

	zero := int64(0)
	resp, err := svc.Chat(context.Background(), "msg", &zero)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	// Id 0 is passed through, never treated as "create a new session".
	if sessions.createCalls != 0 {
		t.Errorf("created %d sessions for explicit id 0, want 0", sessions.createCalls)
	}
	if resp.ConversationID != 0 {
		t.Errorf("ConversationID = %d, want 0", resp.ConversationID)
	}
}

func TestChatPersistsExactlyTwoMessages(t *testing.T) {
	sessions := &fakeSessions{}
	retriever := &fakeRetriever{sources: []store.Source{
		{ID: 5, SourceName: "a.md", Similarity: 0.9},
		{ID: 3, SourceName: "b.md", Similarity: 0.6},
	}}
	generator := &fakeGenerator{answer: "cited answer"}
	svc := newTestService(t, sessions, retriever, generator)

	if _, err := svc.Chat(context.Background(), "the question", nil); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if len(sessions.appendedMsgs) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(sessions.appendedMsgs))
	}

	user := sessions.appendedMsgs[0]
	if user.role != store.RoleUser || user.content != "the question" || user.sourceIDs != nil {
		t.Errorf("user message = %+v", user)
	}

	assistant := sessions.appendedMsgs[1]
	if assistant.role != store.RoleAssistant || assistant.content != "cited answer" {
		t.Errorf("assistant message = %+v", assistant)
	}
	if len(assistant.sourceIDs) != 2 || assistant.sourceIDs[0] != 5 || assistant.sourceIDs[1] != 3 {
		t.Errorf("assistant sourceIDs = %v, want [5 3] in rank order", assistant.sourceIDs)
	}
}

func TestChatUserMessageSurvivesGenerationFailure(t *testing.T) {
	sessions := &fakeSessions{}
	retriever := &fakeRetriever{sources: []store.Source{{ID: 1}}}
	generator := &fakeGenerator{err: errors.New("model unavailable")}
	svc := newTestService(t, sessions, retriever, generator)

	_, err := svc.Chat(context.Background(), "doomed question", nil)
	if err == nil {
		t.Fatal("Chat succeeded, want generation error")
	}

	// The user's turn was recorded before generation; nothing is rolled back.
	if len(sessions.appendedMsgs) != 1 {
		t.Fatalf("persisted %d messages, want just the user message", len(sessions.appendedMsgs))
	}
	if sessions.appendedMsgs[0].role != store.RoleUser {
		t.Errorf("persisted role = %q, want user", sessions.appendedMsgs[0].role)
	}
}

func TestChatUserMessageSurvivesRetrievalFailure(t *testing.T) {
	sessions := &fakeSessions{}
	retriever := &fakeRetriever{err: errors.New("embedder down")}
	generator := &fakeGenerator{}
	svc := newTestService(t, sessions, retriever, generator)

	_, err := svc.Chat(context.Background(), "q", nil)
	if err == nil {
		t.Fatal("Chat succeeded, want retrieval error")
	}
	if len(sessions.appendedMsgs) != 1 || sessions.appendedMsgs[0].role != store.RoleUser {
		t.Errorf("appended = %+v, want only the user message", sessions.appendedMsgs)
	}
	if generator.calls != 0 {
		t.Errorf("generator called %d times after retrieval failure, want 0", generator.calls)
	}
}

func TestChatPassesHistoryToGenerator(t *testing.T) {
	sessions := &fakeSessions{history: []store.Message{
		{Role: store.RoleUser, Content: "earlier question"},
		{Role: store.RoleAssistant, Content: "earlier answer"},
	}}
	generator := &fakeGenerator{answer: "a"}
	svc := newTestService(t, sessions, &fakeRetriever{sources: []store.Source{{ID: 1}}}, generator)

	id := int64(3)
	if _, err := svc.Chat(context.Background(), "follow-up", &id); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if len(generator.gotTurns) != 2 {
		t.Fatalf("generator got %d turns, want 2", len(generator.gotTurns))
	}
	if generator.gotTurns[0].Content != "earlier question" || generator.gotTurns[1].Role != store.RoleAssistant {
		t.Errorf("turns = %+v", generator.gotTurns)
	}
	// History is loaded before the new user message is persisted, so the
	// current question is not part of the folded history.
	if sessions.gotHistoryCap != 20 {
		t.Errorf("history cap = %d, want default 20", sessions.gotHistoryCap)
	}
}

func TestNewValidatesDependencies(t *testing.T) {
	_, err := New(Config{Generator: &fakeGenerator{}, Sessions: &fakeSessions{}})
	if err == nil {
		t.Error("New without retriever succeeded")
	}
	_, err = New(Config{Retriever: &fakeRetriever{}, Sessions: &fakeSessions{}})
	if err == nil {
		t.Error("New without generator succeeded")
	}
	_, err = New(Config{Retriever: &fakeRetriever{}, Generator: &fakeGenerator{}})
	if err == nil {
		t.Error("New without session store succeeded")
	}
}

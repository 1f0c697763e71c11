package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/codeneeth/neethos-chat/internal/domain/entity"
	"github.com/codeneeth/neethos-chat/internal/domain/errs"
	"github.com/codeneeth/neethos-chat/internal/domain/repository"
	"github.com/codeneeth/neethos-chat/internal/infrastructure/storage"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeAI struct {
	mu        sync.Mutex
	reply     string
	err       error
	block     chan struct{}
	started   chan struct{}
	prompts   []string
	histories [][]entity.Message
}

func (f *fakeAI) GenerateResponse(ctx context.Context, prompt string, history []entity.Message) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.histories = append(f.histories, history)
	f.mu.Unlock()

	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func (f *fakeAI) Close() error { return nil }

type fakeExporter struct {
	got      entity.Conversation
	imported []entity.Message
	err      error
}

func (f *fakeExporter) Export(_ context.Context, w io.Writer, conv entity.Conversation) error {
	f.got = conv
	_, err := w.Write([]byte("exported"))
	return err
}

func (f *fakeExporter) Import(_ context.Context, _ io.Reader, conversationID string) ([]entity.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]entity.Message, len(f.imported))
	for i, m := range f.imported {
		m.ConversationID = conversationID
		out[i] = m
	}
	return out, nil
}

func (f *fakeExporter) ContentType() string { return "text/plain" }
func (f *fakeExporter) Extension() string   { return "txt" }

func newUseCase(ai *fakeAI, opts Options) (ChatUseCase, *fakeExporter) {
	exp := &fakeExporter{}
	return NewChatUseCase(ai, storage.NewMemoryChatRepository(), exp, opts, zap.NewNop()), exp
}

func TestSend_AppendsUserThenBot(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ai := &fakeAI{reply: "**hi** there"}
	uc, _ := newUseCase(ai, Options{})

	ex, err := uc.Send(ctx, "c1", "  hello  ")
	req.NoError(err)
	req.False(ex.Failed)
	req.Equal(entity.RoleUser, ex.User.Role)
	req.Equal("hello", ex.User.Text)
	req.Equal(entity.RoleBot, ex.Bot.Role)
	req.Equal("**hi** there", ex.Bot.Text)
	req.Equal([]string{"hello"}, ai.prompts)

	history, err := uc.History(ctx, "c1")
	req.NoError(err)
	req.Len(history, 2)
	req.Equal(ex.User.ID, history[0].ID)
	req.Equal(ex.Bot.ID, history[1].ID)
}

func TestSend_EmptyText(t *testing.T) {
	req := require.New(t)
	ai := &fakeAI{reply: "x"}
	uc, _ := newUseCase(ai, Options{})

	_, err := uc.Send(context.Background(), "c1", " \n\t ")
	req.ErrorIs(err, errs.ErrEmptyMessage)
	req.Empty(ai.prompts)

	history, err := uc.History(context.Background(), "c1")
	req.NoError(err)
	req.Empty(history)
}

func TestSend_ConversationRequired(t *testing.T) {
	uc, _ := newUseCase(&fakeAI{}, Options{})
	_, err := uc.Send(context.Background(), "", "hi")
	require.ErrorIs(t, err, errs.ErrConversationRequired)
}

func TestSend_FailureAppendsFallback(t *testing.T) {
	req := require.New(t)
	uc, _ := newUseCase(&fakeAI{err: errors.New("boom")}, Options{})

	ex, err := uc.Send(context.Background(), "c1", "hello")
	req.NoError(err)
	req.True(ex.Failed)
	req.Equal(entity.FailureText, ex.Bot.Text)

	history, err := uc.History(context.Background(), "c1")
	req.NoError(err)
	req.Len(history, 2)
	req.Equal(entity.FailureText, history[1].Text)
}

func TestSend_EmptyResponseFallback(t *testing.T) {
	req := require.New(t)
	uc, _ := newUseCase(&fakeAI{err: errs.ErrEmptyResponse}, Options{})

	ex, err := uc.Send(context.Background(), "c1", "hello")
	req.NoError(err)
	req.False(ex.Failed)
	req.Equal(entity.EmptyResponseText, ex.Bot.Text)
}

func TestSend_TimeoutUsesFallback(t *testing.T) {
	req := require.New(t)
	ai := &fakeAI{block: make(chan struct{})}
	uc, _ := newUseCase(ai, Options{RequestTimeout: 10 * time.Millisecond})

	ex, err := uc.Send(context.Background(), "c1", "slow")
	req.NoError(err)
	req.True(ex.Failed)
	req.Equal(entity.FailureText, ex.Bot.Text)
}

func TestSend_BusyWhileLoading(t *testing.T) {
	req := require.New(t)
	ai := &fakeAI{reply: "done", block: make(chan struct{}), started: make(chan struct{})}
	uc, _ := newUseCase(ai, Options{})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := uc.Send(ctx, "c1", "first")
		done <- err
	}()

	<-ai.started
	req.True(uc.IsLoading("c1"))
	req.False(uc.IsLoading("c2"))

	_, err := uc.Send(ctx, "c1", "second")
	req.ErrorIs(err, errs.ErrBusy)

	close(ai.block)
	req.NoError(<-done)
	req.False(uc.IsLoading("c1"))

	history, err := uc.History(ctx, "c1")
	req.NoError(err)
	req.Len(history, 2)
	req.Equal("first", history[0].Text)
}

func TestSend_ContextMessages(t *testing.T) {
	req := require.New(t)
	ai := &fakeAI{reply: "r"}
	uc, _ := newUseCase(ai, Options{ContextMessages: 3})
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		_, err := uc.Send(ctx, "c1", text)
		req.NoError(err)
	}

	req.Len(ai.histories, 3)
	req.Empty(ai.histories[0])
	req.Len(ai.histories[1], 2)
	last := ai.histories[2]
	req.Len(last, 3)
	req.Equal("r", last[0].Text)
	req.Equal("two", last[1].Text)
	req.Equal("r", last[2].Text)
}

func TestSend_PromptOnlyByDefault(t *testing.T) {
	req := require.New(t)
	ai := &fakeAI{reply: "r"}
	uc, _ := newUseCase(ai, Options{})
	ctx := context.Background()

	_, err := uc.Send(ctx, "c1", "one")
	req.NoError(err)
	_, err = uc.Send(ctx, "c1", "two")
	req.NoError(err)
	req.Nil(ai.histories[1])
}

func TestAsk_DoesNotPersist(t *testing.T) {
	req := require.New(t)
	uc, _ := newUseCase(&fakeAI{reply: "answer"}, Options{})
	ctx := context.Background()

	got, err := uc.Ask(ctx, "question")
	req.NoError(err)
	req.Equal("answer", got)

	ids, err := uc.Conversations(ctx)
	req.NoError(err)
	req.Empty(ids)

	_, err = uc.Ask(ctx, "")
	req.ErrorIs(err, errs.ErrEmptyMessage)
}

func TestExport_PassesOrderedConversation(t *testing.T) {
	req := require.New(t)
	uc, exp := newUseCase(&fakeAI{reply: "r"}, Options{})
	ctx := context.Background()
	_, err := uc.Send(ctx, "c1", "q")
	req.NoError(err)

	var buf bytes.Buffer
	req.NoError(uc.Export(ctx, "c1", &buf))
	req.Equal("exported", buf.String())
	req.Equal("c1", exp.got.ID)
	req.Len(exp.got.Messages, 2)
	req.Equal(entity.RoleBot, exp.got.Messages[1].Role)

	contentType, ext := uc.ExportFormat()
	req.Equal("text/plain", contentType)
	req.Equal("txt", ext)
}

func TestGreeting(t *testing.T) {
	uc, _ := newUseCase(&fakeAI{}, Options{})
	g := uc.Greeting()
	require.Equal(t, entity.GreetingText, g.Text)
	require.Equal(t, entity.RoleBot, g.Role)

	custom, _ := newUseCase(&fakeAI{}, Options{Greeting: "Salom!"})
	require.Equal(t, "Salom!", custom.Greeting().Text)
}

func TestImport_AppendsAfterExistingHistory(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	uc, exp := newUseCase(&fakeAI{reply: "live"}, Options{})
	_, err := uc.Send(ctx, "c1", "first")
	req.NoError(err)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	exp.imported = []entity.Message{
		{ID: "a", Role: entity.RoleUser, Text: "old question", Timestamp: ts},
		{ID: "b", Role: entity.RoleBot, Text: "old answer", Timestamp: ts},
	}
	n, err := uc.Import(ctx, "c1", bytes.NewReader(nil))
	req.NoError(err)
	req.Equal(2, n)

	hist, err := uc.History(ctx, "c1")
	req.NoError(err)
	req.Len(hist, 4)
	req.Equal("first", hist[0].Text)
	req.Equal("old question", hist[2].Text)
	req.Equal("old answer", hist[3].Text)

	exp.err = errors.New("bad workbook")
	_, err = uc.Import(ctx, "c1", bytes.NewReader(nil))
	req.Error(err)

	_, err = uc.Import(ctx, "", bytes.NewReader(nil))
	req.ErrorIs(err, errs.ErrConversationRequired)
}

func TestImport_BusyWhileReplyPending(t *testing.T) {
	req := require.New(t)
	ai := &fakeAI{reply: "bot reply", block: make(chan struct{}), started: make(chan struct{})}
	uc, exp := newUseCase(ai, Options{})
	ctx := context.Background()
	exp.imported = []entity.Message{{ID: "x", Role: entity.RoleUser, Text: "imported", Timestamp: time.Now()}}

	done := make(chan error, 1)
	go func() {
		_, err := uc.Send(ctx, "c1", "question")
		done <- err
	}()
	<-ai.started

	n, err := uc.Import(ctx, "c1", bytes.NewReader(nil))
	req.ErrorIs(err, errs.ErrBusy)
	req.Zero(n)

	close(ai.block)
	req.NoError(<-done)

	hist, err := uc.History(ctx, "c1")
	req.NoError(err)
	req.Len(hist, 2)
	req.Equal("question", hist[0].Text)
	req.Equal("bot reply", hist[1].Text)

	n, err = uc.Import(ctx, "c1", bytes.NewReader(nil))
	req.NoError(err)
	req.Equal(1, n)
	req.False(uc.IsLoading("c1"))
}

// ctxRepo fails appends whose context is already done, like database/sql drivers do.
type ctxRepo struct {
	repository.ChatRepository
}

func (r ctxRepo) Append(ctx context.Context, msg entity.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.ChatRepository.Append(ctx, msg)
}

func TestSend_StoresReplyWhenCallerCancels(t *testing.T) {
	req := require.New(t)
	ai := &fakeAI{reply: "late", block: make(chan struct{}), started: make(chan struct{})}
	uc := NewChatUseCase(ai, ctxRepo{storage.NewMemoryChatRepository()}, &fakeExporter{}, Options{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := uc.Send(ctx, "c1", "question")
		done <- err
	}()
	<-ai.started
	cancel()
	req.NoError(<-done)

	hist, err := uc.History(context.Background(), "c1")
	req.NoError(err)
	req.Len(hist, 2)
	req.Equal(entity.RoleUser, hist[0].Role)
	req.Equal(entity.RoleBot, hist[1].Role)
	req.Equal(entity.FailureText, hist[1].Text)
}

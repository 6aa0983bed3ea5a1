package newsletter

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nugget/lifetracker/internal/email"
	"github.com/nugget/lifetracker/internal/llm"
	"github.com/nugget/lifetracker/internal/prompts"
	"github.com/nugget/lifetracker/internal/store"
	"github.com/nugget/lifetracker/internal/store/sqlite"
)

type fakeLLM struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeLLM) Chat(_ context.Context, _ string, messages []llm.Message, _ []map[string]any) (*llm.ChatResponse, error) {
	f.prompts = append(f.prompts, messages[0].Content)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Message: llm.Message{Role: llm.RoleAssistant, Content: f.reply}}, nil
}

func (f *fakeLLM) Ping(context.Context) error { return nil }

type fakeTransport struct {
	mu     sync.Mutex
	sent   []email.Message
	failTo map[string]bool
	notify chan struct{}
}

func (f *fakeTransport) Send(_ context.Context, m email.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo[m.To] {
		return errors.New("550 mailbox unavailable")
	}
	f.sent = append(f.sent, m)
	if f.notify != nil {
		select {
		case f.notify <- struct{}{}:
		default:
		}
	}
	return nil
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "news.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func addUser(t *testing.T, st *sqlite.Store, addr, name string) *store.User {
	t.Helper()
	u, err := st.UpsertUser(context.Background(), store.User{Email: addr, Name: name})
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	return u
}

var testConfig = Config{
	Model:             "test",
	Sender:            "news@example.com",
	PublicURL:         "https://tracker.example.com/",
	UnsubscribeSecret: "s3cret",
}

func TestSend(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	u := addUser(t, st, "ada@example.com", "Ada Lovelace")

	if err := st.AddLog(ctx, &store.LogEntry{UserID: u.ID, Content: "Ran 10k along the river"}); err != nil {
		t.Fatal(err)
	}
	if err := st.CreateTask(ctx, &store.Task{UserID: u.ID, Description: "Book race entry"}); err != nil {
		t.Fatal(err)
	}

	model := &fakeLLM{reply: "## Great week\n\nYou ran 10k!"}
	tr := &fakeTransport{}
	c := NewComposer(st, model, tr, testConfig, nil)

	entry, err := c.Send(ctx, u.ID, prompts.PersonaCheerleader)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	prompt := model.prompts[0]
	for _, want := range []string{"Ada", "Ran 10k along the river", "Book race entry", "cheerleader"} {
		if !strings.Contains(strings.ToLower(prompt), strings.ToLower(want)) {
			t.Errorf("prompt missing %q", want)
		}
	}

	if len(tr.sent) != 1 {
		t.Fatalf("sent %d messages", len(tr.sent))
	}
	m := tr.sent[0]
	if m.From != "Life Tracker Newsletter <news@example.com>" || m.To != "ada@example.com" {
		t.Errorf("from=%q to=%q", m.From, m.To)
	}
	if !strings.HasPrefix(m.Subject, "Your Life Tracker Weekly Summary - ") {
		t.Errorf("subject = %q", m.Subject)
	}
	wantLink := "https://tracker.example.com/v1/newsletter/unsubscribe/ada@example.com/" + Token("s3cret", "ada@example.com")
	if m.Unsubscribe != wantLink || !strings.Contains(m.Body, wantLink) {
		t.Errorf("unsubscribe link = %q", m.Unsubscribe)
	}

	logs, err := st.ListNewsletters(ctx, u.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 || logs[0].ID != entry.ID || logs[0].Persona != "cheerleader" {
		t.Fatalf("newsletter log = %+v", logs)
	}
	if strings.Contains(logs[0].Content, "Unsubscribe") {
		t.Error("stored content should be the issue without the footer")
	}
}

func TestSend_PreviousIssuesFeedPrompt(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	u := addUser(t, st, "ada@example.com", "")

	model := &fakeLLM{reply: "First issue body"}
	c := NewComposer(st, model, &fakeTransport{}, testConfig, nil)

	if _, err := c.Send(ctx, u.ID, prompts.PersonaMentor); err != nil {
		t.Fatal(err)
	}
	model.reply = "Second issue body"
	if _, err := c.Send(ctx, u.ID, prompts.PersonaAnalyst); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(model.prompts[1], "First issue body") {
		t.Error("second prompt should include the first issue")
	}
	if !strings.Contains(model.prompts[0], "for ada.") {
		t.Error("greeting should fall back to the email local part")
	}
}

func TestSend_TransportFailureWritesNothing(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	u := addUser(t, st, "ada@example.com", "Ada")

	tr := &fakeTransport{failTo: map[string]bool{"ada@example.com": true}}
	c := NewComposer(st, &fakeLLM{reply: "body"}, tr, testConfig, nil)

	_, err := c.Send(ctx, u.ID, prompts.PersonaMentor)
	if !errors.Is(err, email.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	logs, _ := st.ListNewsletters(ctx, u.ID, 10)
	if len(logs) != 0 {
		t.Errorf("expected no newsletter log, got %d", len(logs))
	}
}

func TestSend_NoTransport(t *testing.T) {
	st := newStore(t)
	u := addUser(t, st, "ada@example.com", "Ada")
	model := &fakeLLM{reply: "body"}
	c := NewComposer(st, model, nil, testConfig, nil)

	if _, err := c.Send(context.Background(), u.ID, prompts.PersonaMentor); !errors.Is(err, email.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if len(model.prompts) != 0 {
		t.Error("model should not be called without a transport")
	}
}

func TestSend_RenderFailure(t *testing.T) {
	tests := []struct {
		name  string
		model *fakeLLM
	}{
		{"model error", &fakeLLM{err: errors.New("boom")}},
		{"empty reply", &fakeLLM{reply: "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newStore(t)
			u := addUser(t, st, "ada@example.com", "Ada")
			tr := &fakeTransport{}
			c := NewComposer(st, tt.model, tr, testConfig, nil)

			if _, err := c.Send(context.Background(), u.ID, prompts.PersonaMentor); !errors.Is(err, ErrRender) {
				t.Fatalf("expected ErrRender, got %v", err)
			}
			if tr.count() != 0 {
				t.Error("nothing should be sent")
			}
		})
	}
}

func TestSend_UnknownUser(t *testing.T) {
	st := newStore(t)
	c := NewComposer(st, &fakeLLM{reply: "x"}, &fakeTransport{}, testConfig, nil)
	if _, err := c.Send(context.Background(), "missing", prompts.PersonaMentor); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBundle_OnlyRecentLogs(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	u := addUser(t, st, "ada@example.com", "Ada")

	old := time.Now().UTC().Add(-10 * 24 * time.Hour)
	if err := st.AddLog(ctx, &store.LogEntry{UserID: u.ID, Content: "ancient", CreatedAt: old}); err != nil {
		t.Fatal(err)
	}
	if err := st.AddLog(ctx, &store.LogEntry{UserID: u.ID, Content: "fresh"}); err != nil {
		t.Fatal(err)
	}
	done := &store.Task{UserID: u.ID, Description: "done already", Status: store.StatusCompleted}
	if err := st.CreateTask(ctx, done); err != nil {
		t.Fatal(err)
	}

	c := NewComposer(st, &fakeLLM{}, nil, testConfig, nil)
	b, err := c.Bundle(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Logs) != 1 || b.Logs[0].Content != "fresh" {
		t.Errorf("logs = %+v", b.Logs)
	}
	if len(b.Tasks) != 0 {
		t.Errorf("completed tasks should be excluded, got %+v", b.Tasks)
	}
}

func TestSendAll(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	a := addUser(t, st, "ada@example.com", "Ada")
	b := addUser(t, st, "bob@example.com", "Bob")
	addUser(t, st, "cy@example.com", "Cy")
	for _, u := range []*store.User{a, b} {
		if err := st.SetSubscribed(ctx, u.ID, true); err != nil {
			t.Fatal(err)
		}
	}

	tr := &fakeTransport{failTo: map[string]bool{"bob@example.com": true}}
	c := NewComposer(st, &fakeLLM{reply: "hi"}, tr, testConfig, nil)

	sent, err := c.SendAll(ctx, prompts.PersonaAnalyst)
	if sent != 1 {
		t.Errorf("sent = %d, want 1", sent)
	}
	if !errors.Is(err, email.ErrTransport) || !strings.Contains(err.Error(), "bob@example.com") {
		t.Errorf("expected bob's transport failure, got %v", err)
	}
	if len(tr.sent) != 1 || tr.sent[0].To != "ada@example.com" {
		t.Errorf("sent = %+v", tr.sent)
	}
}

func TestToken(t *testing.T) {
	tok := Token("secret", "Ada@Example.com")
	if len(tok) != 64 {
		t.Fatalf("token length = %d", len(tok))
	}

	tests := []struct {
		name   string
		secret string
		addr   string
		token  string
		want   bool
	}{
		{"valid", "secret", "ada@example.com", tok, true},
		{"case insensitive address", "secret", "ADA@example.com", tok, true},
		{"upper-case token", "secret", "ada@example.com", strings.ToUpper(tok), true},
		{"wrong address", "secret", "bob@example.com", tok, false},
		{"wrong secret", "other", "ada@example.com", tok, false},
		{"empty secret", "", "ada@example.com", Token("", "ada@example.com"), false},
		{"empty token", "secret", "ada@example.com", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifyToken(tt.secret, tt.addr, tt.token); got != tt.want {
				t.Errorf("VerifyToken = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnsubscribeURL_Disabled(t *testing.T) {
	c := NewComposer(nil, nil, nil, Config{Sender: "news@example.com"}, nil)
	if got := c.UnsubscribeURL("ada@example.com"); got != "" {
		t.Errorf("UnsubscribeURL = %q, want empty", got)
	}
}

func TestRunner(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		r := NewRunner(NewComposer(nil, nil, nil, Config{}, nil), 0, nil)
		if err := r.Run(context.Background()); err != nil {
			t.Fatalf("Run: %v", err)
		}
	})

	t.Run("ticks", func(t *testing.T) {
		st := newStore(t)
		u := addUser(t, st, "ada@example.com", "Ada")
		if err := st.SetSubscribed(context.Background(), u.ID, true); err != nil {
			t.Fatal(err)
		}
		tr := &fakeTransport{notify: make(chan struct{}, 1)}
		r := NewRunner(NewComposer(st, &fakeLLM{reply: "hi"}, tr, testConfig, nil), 10*time.Millisecond, nil)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- r.Run(ctx) }()

		select {
		case <-tr.notify:
		case <-time.After(5 * time.Second):
			t.Fatal("runner never sent")
		}
		cancel()
		if err := <-done; err != nil {
			t.Fatalf("Run: %v", err)
		}
	})
}

// Package storetest holds the behavioural suite every store.Store
// backend must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nugget/lifetracker/internal/store"
)

// Opener returns a fresh, empty store for one subtest.
type Opener func(t *testing.T) store.Store

// Run exercises s against the store.Store contract.
func Run(t *testing.T, open Opener) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"UpsertUser", testUpsertUser},
		{"RecentLogs", testRecentLogs},
		{"TaskLifecycle", testTaskLifecycle},
		{"TaskOrdering", testTaskOrdering},
		{"TaskOwnership", testTaskOwnership},
		{"TaskStatusRejected", testTaskStatusRejected},
		{"BackgroundMerge", testBackgroundMerge},
		{"BackgroundReplace", testBackgroundReplace},
		{"Newsletters", testNewsletters},
		{"Subscriptions", testSubscriptions},
		{"PurgeUser", testPurgeUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { s.Close() })
			tt.fn(t, s)
		})
	}
}

func seedUser(t *testing.T, s store.Store, email string) *store.User {
	t.Helper()
	u, err := s.UpsertUser(context.Background(), store.User{Email: email, Name: email})
	if err != nil {
		t.Fatalf("UpsertUser(%s): %v", email, err)
	}
	return u
}

func testUpsertUser(t *testing.T, s store.Store) {
	ctx := context.Background()

	first, err := s.UpsertUser(ctx, store.User{Email: "Ada@Example.com", Name: "Ada"})
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	if first.ID == "" || first.Email != "ada@example.com" {
		t.Fatalf("unexpected user: %+v", first)
	}

	second, err := s.UpsertUser(ctx, store.User{Email: "ada@example.com", Name: "Ada L.", AvatarURL: "https://img/ada.png"})
	if err != nil {
		t.Fatalf("UpsertUser again: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected same user, got %s vs %s", second.ID, first.ID)
	}
	if second.Name != "Ada L." || second.AvatarURL != "https://img/ada.png" {
		t.Errorf("name/avatar not refreshed: %+v", second)
	}

	byEmail, err := s.GetUserByEmail(ctx, "ADA@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if byEmail.ID != first.ID {
		t.Errorf("GetUserByEmail returned %s", byEmail.ID)
	}

	if _, err := s.GetUser(ctx, store.NewID()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetUser(missing) = %v, want ErrNotFound", err)
	}
	if _, err := s.UpsertUser(ctx, store.User{Email: "nope"}); !errors.Is(err, store.ErrValidation) {
		t.Errorf("UpsertUser(bad email) = %v, want ErrValidation", err)
	}
}

func testRecentLogs(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := seedUser(t, s, "logs@example.com")
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	for i := range 7 {
		e := &store.LogEntry{
			UserID:    u.ID,
			Content:   fmt.Sprintf("note %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.AddLog(ctx, e); err != nil {
			t.Fatalf("AddLog: %v", err)
		}
	}

	got, err := s.RecentLogs(ctx, u.ID, 5)
	if err != nil {
		t.Fatalf("RecentLogs: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 logs, got %d", len(got))
	}
	if got[0].Content != "note 6" || got[4].Content != "note 2" {
		t.Errorf("expected newest first, got %q .. %q", got[0].Content, got[4].Content)
	}
	if !got[0].CreatedAt.Equal(base.Add(6 * time.Minute)) {
		t.Errorf("created_at round trip = %v", got[0].CreatedAt)
	}

	if err := s.AddLog(ctx, &store.LogEntry{UserID: u.ID, Content: "  "}); !errors.Is(err, store.ErrValidation) {
		t.Errorf("AddLog(blank) = %v, want ErrValidation", err)
	}
}

func testTaskLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := seedUser(t, s, "tasks@example.com")

	task := &store.Task{UserID: u.ID, Description: "finish report"}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.Status != store.StatusOpen {
		t.Errorf("status = %q, want open", task.Status)
	}

	done := store.StatusCompleted
	updated, err := s.UpdateTask(ctx, u.ID, task.ID, store.TaskPatch{Status: &done})
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if updated.Status != store.StatusCompleted || updated.CompletedAt == nil {
		t.Errorf("expected completed with timestamp, got %+v", updated)
	}

	got, err := s.GetTask(ctx, u.ID, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != store.StatusCompleted || got.CompletedAt == nil {
		t.Errorf("update not durable: %+v", got)
	}

	open, err := s.ListTasks(ctx, u.ID, store.TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("completed task listed: %+v", open)
	}

	all, err := s.ListTasks(ctx, u.ID, store.TaskFilter{IncludeCompleted: true})
	if err != nil {
		t.Fatalf("ListTasks(all): %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 task with completed included, got %d", len(all))
	}

	if _, err := s.UpdateTask(ctx, u.ID, store.NewID(), store.TaskPatch{Status: &done}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdateTask(missing) = %v, want ErrNotFound", err)
	}
}

func testTaskOrdering(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := seedUser(t, s, "order@example.com")
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	late := base.Add(72 * time.Hour)
	soon := base.Add(24 * time.Hour)

	create := func(desc string, created time.Time, deadline *time.Time) {
		t.Helper()
		task := &store.Task{UserID: u.ID, Description: desc, CreatedAt: created, Deadline: deadline}
		if err := s.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask(%s): %v", desc, err)
		}
	}
	create("undated first", base, nil)
	create("late", base.Add(time.Minute), &late)
	create("undated second", base.Add(2*time.Minute), nil)
	create("soon", base.Add(3*time.Minute), &soon)

	got, err := s.ListTasks(ctx, u.ID, store.TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	want := []string{"soon", "late", "undated first", "undated second"}
	if len(got) != len(want) {
		t.Fatalf("expected %d tasks, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].Description != w {
			t.Errorf("task[%d] = %q, want %q", i, got[i].Description, w)
		}
	}
	if got[0].Deadline == nil || !got[0].Deadline.Equal(soon) {
		t.Errorf("deadline round trip = %v", got[0].Deadline)
	}
}

func testTaskOwnership(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := seedUser(t, s, "owner@example.com")
	other := seedUser(t, s, "other@example.com")

	task := &store.Task{UserID: owner.ID, Description: "private"}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	desc := "hijacked"
	if _, err := s.UpdateTask(ctx, other.ID, task.ID, store.TaskPatch{Description: &desc}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("cross-user update = %v, want ErrNotFound", err)
	}
	if _, err := s.GetTask(ctx, other.ID, task.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("cross-user get = %v, want ErrNotFound", err)
	}

	got, err := s.GetTask(ctx, owner.ID, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Description != "private" {
		t.Errorf("description changed to %q", got.Description)
	}
}

func testTaskStatusRejected(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := seedUser(t, s, "status@example.com")

	if err := s.CreateTask(ctx, &store.Task{UserID: u.ID, Description: "x", Status: "archived"}); !errors.Is(err, store.ErrValidation) {
		t.Errorf("CreateTask(bad status) = %v, want ErrValidation", err)
	}

	task := &store.Task{UserID: u.ID, Description: "y"}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	bad := store.TaskStatus("done")
	if _, err := s.UpdateTask(ctx, u.ID, task.ID, store.TaskPatch{Status: &bad}); !errors.Is(err, store.ErrValidation) {
		t.Errorf("UpdateTask(bad status) = %v, want ErrValidation", err)
	}
}

func testBackgroundMerge(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := seedUser(t, s, "bg@example.com")

	empty, err := s.GetBackground(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetBackground: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected empty object, got %v", empty)
	}

	if _, err := s.MergeBackground(ctx, u.ID, store.Background{"a": 1.0}); err != nil {
		t.Fatalf("MergeBackground a: %v", err)
	}
	merged, err := s.MergeBackground(ctx, u.ID, store.Background{"b": 2.0})
	if err != nil {
		t.Fatalf("MergeBackground b: %v", err)
	}
	if merged["a"] != 1.0 || merged["b"] != 2.0 {
		t.Errorf("merge result = %v", merged)
	}

	got, err := s.GetBackground(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetBackground: %v", err)
	}
	if got["a"] != 1.0 || got["b"] != 2.0 {
		t.Errorf("stored background = %v", got)
	}

	overwritten, err := s.MergeBackground(ctx, u.ID, store.Background{"a": "one", "goals": []any{"run a marathon"}})
	if err != nil {
		t.Fatalf("MergeBackground overwrite: %v", err)
	}
	if overwritten["a"] != "one" || overwritten["b"] != 2.0 {
		t.Errorf("overwrite result = %v", overwritten)
	}
}

func testBackgroundReplace(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := seedUser(t, s, "replace@example.com")

	if _, err := s.MergeBackground(ctx, u.ID, store.Background{"old": true}); err != nil {
		t.Fatalf("MergeBackground: %v", err)
	}
	if err := s.ReplaceBackground(ctx, u.ID, store.Background{"new": "yes"}); err != nil {
		t.Fatalf("ReplaceBackground: %v", err)
	}
	got, err := s.GetBackground(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetBackground: %v", err)
	}
	if _, ok := got["old"]; ok || got["new"] != "yes" {
		t.Errorf("replace result = %v", got)
	}
}

func testNewsletters(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := seedUser(t, s, "news@example.com")
	base := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

	for i, persona := range []string{"mentor", "analyst"} {
		e := &store.NewsletterLogEntry{
			UserID:    u.ID,
			Persona:   persona,
			Subject:   "Weekly",
			Content:   "body " + persona,
			CreatedAt: base.Add(time.Duration(i) * 24 * time.Hour),
		}
		if err := s.AppendNewsletter(ctx, e); err != nil {
			t.Fatalf("AppendNewsletter: %v", err)
		}
	}

	got, err := s.ListNewsletters(ctx, u.ID, 10)
	if err != nil {
		t.Fatalf("ListNewsletters: %v", err)
	}
	if len(got) != 2 || got[0].Persona != "analyst" {
		t.Errorf("expected newest first, got %+v", got)
	}
}

func testSubscriptions(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := seedUser(t, s, "a@example.com")
	seedUser(t, s, "b@example.com")

	on, err := s.Subscribed(ctx, a.ID)
	if err != nil {
		t.Fatalf("Subscribed: %v", err)
	}
	if on {
		t.Error("expected unsubscribed by default")
	}

	if err := s.SetSubscribed(ctx, a.ID, true); err != nil {
		t.Fatalf("SetSubscribed: %v", err)
	}
	subs, err := s.Subscribers(ctx)
	if err != nil {
		t.Fatalf("Subscribers: %v", err)
	}
	if len(subs) != 1 || subs[0].ID != a.ID {
		t.Errorf("subscribers = %+v", subs)
	}

	if err := s.SetSubscribed(ctx, a.ID, false); err != nil {
		t.Fatalf("SetSubscribed(false): %v", err)
	}
	subs, err = s.Subscribers(ctx)
	if err != nil {
		t.Fatalf("Subscribers: %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("expected no subscribers, got %+v", subs)
	}
}

func testPurgeUser(t *testing.T, s store.Store) {
	ctx := context.Background()
	victim := seedUser(t, s, "victim@example.com")
	keeper := seedUser(t, s, "keeper@example.com")

	for _, u := range []*store.User{victim, keeper} {
		if err := s.AddLog(ctx, &store.LogEntry{UserID: u.ID, Content: "note"}); err != nil {
			t.Fatalf("AddLog: %v", err)
		}
		if err := s.CreateTask(ctx, &store.Task{UserID: u.ID, Description: "task"}); err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
		if _, err := s.MergeBackground(ctx, u.ID, store.Background{"k": "v"}); err != nil {
			t.Fatalf("MergeBackground: %v", err)
		}
		if err := s.AppendNewsletter(ctx, &store.NewsletterLogEntry{UserID: u.ID, Persona: "mentor", Content: "x"}); err != nil {
			t.Fatalf("AppendNewsletter: %v", err)
		}
		if err := s.SetSubscribed(ctx, u.ID, true); err != nil {
			t.Fatalf("SetSubscribed: %v", err)
		}
	}

	if err := s.PurgeUser(ctx, victim.ID); err != nil {
		t.Fatalf("PurgeUser: %v", err)
	}

	if _, err := s.GetUser(ctx, victim.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("purged user still present: %v", err)
	}
	logs, _ := s.RecentLogs(ctx, victim.ID, 10)
	tasks, _ := s.ListTasks(ctx, victim.ID, store.TaskFilter{IncludeCompleted: true})
	bg, _ := s.GetBackground(ctx, victim.ID)
	news, _ := s.ListNewsletters(ctx, victim.ID, 10)
	if len(logs)+len(tasks)+len(bg)+len(news) != 0 {
		t.Errorf("purged rows remain: logs=%d tasks=%d bg=%d news=%d", len(logs), len(tasks), len(bg), len(news))
	}

	keptLogs, _ := s.RecentLogs(ctx, keeper.ID, 10)
	keptTasks, _ := s.ListTasks(ctx, keeper.ID, store.TaskFilter{})
	keptBG, _ := s.GetBackground(ctx, keeper.ID)
	subs, _ := s.Subscribers(ctx)
	if len(keptLogs) != 1 || len(keptTasks) != 1 || keptBG["k"] != "v" || len(subs) != 1 {
		t.Errorf("other user's rows disturbed: logs=%d tasks=%d bg=%v subs=%d", len(keptLogs), len(keptTasks), keptBG, len(subs))
	}

	if err := s.PurgeUser(ctx, victim.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second purge = %v, want ErrNotFound", err)
	}
}

package chat

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"erek/internal/models"
	"erek/internal/storage"

	_ "github.com/mattn/go-sqlite3"
)

func newTestStore(t *testing.T) (*Service, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// every pooled connection would get its own in-memory database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return NewService(db), db
}

func strPtr(s string) *string { return &s }

func TestEnsureSessionIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first, err := store.EnsureSession(ctx, nil, "")
	if err != nil {
		t.Fatalf("ensure session: %v", err)
	}
	if first == "" {
		t.Fatalf("expected a session id")
	}
	again, err := store.EnsureSession(ctx, nil, first)
	if err != nil {
		t.Fatalf("re-ensure session: %v", err)
	}
	if again != first {
		t.Fatalf("expected same session id, got %s then %s", first, again)
	}
}

func TestEnsureSessionForeignIDGetsFreshSession(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	theirs, err := store.EnsureSession(ctx, strPtr("user-a"), "")
	if err != nil {
		t.Fatalf("ensure session: %v", err)
	}
	// another user presenting that id lands in a new session of their own
	mine, err := store.EnsureSession(ctx, strPtr("user-b"), theirs)
	if err != nil {
		t.Fatalf("ensure foreign session: %v", err)
	}
	if mine == theirs {
		t.Fatalf("foreign session id must not be reused")
	}
}

func TestAppendMessageOrdering(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	sid, err := store.EnsureSession(ctx, nil, "")
	if err != nil {
		t.Fatalf("ensure session: %v", err)
	}

	contents := []string{"first", "second", "third", "fourth"}
	var lastStamp int64
	for _, c := range contents {
		role := models.RoleUser
		msg, err := store.AppendMessage(ctx, sid, role, c)
		if err != nil {
			t.Fatalf("append %q: %v", c, err)
		}
		if msg.CreatedAt <= lastStamp {
			t.Fatalf("timestamps must strictly increase: %d after %d", msg.CreatedAt, lastStamp)
		}
		lastStamp = msg.CreatedAt
	}

	msgs, err := store.Messages(ctx, sid, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != len(contents) {
		t.Fatalf("expected %d messages, got %d", len(contents), len(msgs))
	}
	for i, m := range msgs {
		if m.Content != contents[i] {
			t.Fatalf("position %d: got %q, want %q", i, m.Content, contents[i])
		}
	}
}

func TestRecentMessagesWindow(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	sid, _ := store.EnsureSession(ctx, nil, "")

	for _, c := range []string{"a", "b", "c", "d", "e"} {
		if _, err := store.AppendMessage(ctx, sid, models.RoleUser, c); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	msgs, err := store.RecentMessages(ctx, sid, 3)
	if err != nil {
		t.Fatalf("recent messages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected window of 3, got %d", len(msgs))
	}
	// chronological order, most recent three
	got := []string{msgs[0].Content, msgs[1].Content, msgs[2].Content}
	want := []string{"c", "d", "e"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("window order %v, want %v", got, want)
		}
	}
}

func TestVerifySessionOwnerHidesForeignSessions(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sid, _ := store.EnsureSession(ctx, strPtr("owner"), "")

	if err := store.VerifySessionOwner(ctx, strPtr("owner"), sid); err != nil {
		t.Fatalf("owner must see own session: %v", err)
	}
	foreign := store.VerifySessionOwner(ctx, strPtr("intruder"), sid)
	missing := store.VerifySessionOwner(ctx, strPtr("intruder"), "no-such-id")
	if !errors.Is(foreign, sql.ErrNoRows) || !errors.Is(missing, sql.ErrNoRows) {
		t.Fatalf("foreign (%v) and missing (%v) must both be ErrNoRows", foreign, missing)
	}
}

func TestAnonymousPoolIsolation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	anonSID, _ := store.EnsureSession(ctx, nil, "")
	ownedSID, _ := store.EnsureSession(ctx, strPtr("user-a"), "")

	if err := store.VerifySessionOwner(ctx, strPtr("user-a"), anonSID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("authenticated user must not see anonymous pool, got %v", err)
	}
	if err := store.VerifySessionOwner(ctx, nil, ownedSID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("anonymous caller must not see owned sessions, got %v", err)
	}
}

func TestListSessionsTitles(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	owner := strPtr("user-a")

	empty, _ := store.EnsureSession(ctx, owner, "")
	short, _ := store.EnsureSession(ctx, owner, "")
	long, _ := store.EnsureSession(ctx, owner, "")
	custom, _ := store.EnsureSession(ctx, owner, "")

	store.AppendMessage(ctx, short, models.RoleUser, "Plan my week")
	longMsg := strings.Repeat("r", 60)
	store.AppendMessage(ctx, long, models.RoleUser, longMsg)
	store.AppendMessage(ctx, custom, models.RoleUser, "whatever")
	if err := store.RenameSession(ctx, owner, custom, "My project"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	sessions, err := store.ListSessionsForOwner(ctx, owner, 0)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	titles := map[string]string{}
	for _, s := range sessions {
		titles[s.ID] = s.Title
	}
	if titles[empty] != "New chat" {
		t.Fatalf("empty session title %q", titles[empty])
	}
	if titles[short] != "Plan my week" {
		t.Fatalf("short title %q", titles[short])
	}
	if want := strings.Repeat("r", 42) + "…"; titles[long] != want {
		t.Fatalf("long title %q, want %q", titles[long], want)
	}
	if titles[custom] != "My project" {
		t.Fatalf("custom title %q", titles[custom])
	}
}

func TestListSessionsPinnedFirst(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	owner := strPtr("user-a")

	older, _ := store.EnsureSession(ctx, owner, "")
	newer, _ := store.EnsureSession(ctx, owner, "")
	if err := store.SetSessionPinned(ctx, owner, older, true); err != nil {
		t.Fatalf("pin: %v", err)
	}

	sessions, err := store.ListSessionsForOwner(ctx, owner, 0)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != older || !sessions[0].Pinned {
		t.Fatalf("pinned session must sort first, got %+v", sessions)
	}
	if sessions[1].ID != newer {
		t.Fatalf("unexpected second session %+v", sessions[1])
	}
}

func TestRenameSessionCapsStoredTitle(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	sid, _ := store.EnsureSession(ctx, nil, "")

	if err := store.RenameSession(ctx, nil, sid, strings.Repeat("t", 600)); err != nil {
		t.Fatalf("rename: %v", err)
	}
	sessions, _ := store.ListSessionsForOwner(ctx, nil, 0)
	// display truncates to 42 runes, storage to 500
	if want := strings.Repeat("t", 42) + "…"; sessions[0].Title != want {
		t.Fatalf("display title %q", sessions[0].Title)
	}
}

func TestDeleteSessionRemovesMessages(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	sid, _ := store.EnsureSession(ctx, nil, "")
	store.AppendMessage(ctx, sid, models.RoleUser, "hello")
	store.AppendMessage(ctx, sid, models.RoleAssistant, "hi there")

	if err := store.DeleteSession(ctx, nil, sid); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM chat_messages WHERE session_id = ?`, sid).Scan(&count); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 messages after delete, got %d", count)
	}
}

func TestDeleteSessionRollbackKeepsMessages(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	sid, _ := store.EnsureSession(ctx, nil, "")
	store.AppendMessage(ctx, sid, models.RoleUser, "hello")
	store.AppendMessage(ctx, sid, models.RoleAssistant, "hi there")

	// yank the session row out from under the transaction, leaving the
	// messages orphaned; the delete must then fail without touching them
	if _, err := db.Exec(`DELETE FROM chat_sessions WHERE id = ?`, sid); err != nil {
		t.Fatalf("remove session row: %v", err)
	}

	if err := store.DeleteSessionAdmin(ctx, sid); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM chat_messages WHERE session_id = ?`, sid).Scan(&count); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if count != 2 {
		t.Fatalf("messages must survive a failed delete, got %d", count)
	}
}

func TestDeleteSessionForeignIsNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	sid, _ := store.EnsureSession(ctx, strPtr("owner"), "")

	if err := store.DeleteSession(ctx, strPtr("intruder"), sid); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows for foreign delete, got %v", err)
	}
	// the session is still there for its owner
	if err := store.VerifySessionOwner(ctx, strPtr("owner"), sid); err != nil {
		t.Fatalf("session must survive foreign delete: %v", err)
	}
}

package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLite(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteSessionRoundtrip(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLite(t)

	sess, err := store.CreateOrGet(ctx, "sess-1")
	if err != nil {
		t.Fatalf("CreateOrGet: %v", err)
	}
	if sess.ID != "sess-1" || sess.ConversationID != "" || sess.PendingAuth != nil {
		t.Fatalf("unexpected fresh session: %+v", sess)
	}

	if err := store.SetConversationID(ctx, "sess-1", "conv-1"); err != nil {
		t.Fatalf("SetConversationID: %v", err)
	}
	pending := &PendingAuth{
		FunctionCallID:   "call-1",
		AuthorizationURI: "https://auth.example/consent?x=1",
		AuthConfig: map[string]any{
			"authScheme": "oauth2",
			"exchangedAuthCredential": map[string]any{
				"oauth2": map[string]any{"authUri": "https://auth.example/consent?x=1"},
			},
		},
	}
	if err := store.SetPendingAuth(ctx, "sess-1", pending); err != nil {
		t.Fatalf("SetPendingAuth: %v", err)
	}

	sess, err = store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess.ConversationID != "conv-1" {
		t.Errorf("ConversationID = %q, want conv-1", sess.ConversationID)
	}
	if sess.PendingAuth == nil {
		t.Fatal("pending auth not persisted")
	}
	if sess.PendingAuth.FunctionCallID != "call-1" {
		t.Errorf("FunctionCallID = %q, want call-1", sess.PendingAuth.FunctionCallID)
	}
	if sess.PendingAuth.AuthorizationURI != pending.AuthorizationURI {
		t.Errorf("AuthorizationURI = %q", sess.PendingAuth.AuthorizationURI)
	}
	cred, ok := sess.PendingAuth.AuthConfig["exchangedAuthCredential"].(map[string]any)
	if !ok {
		t.Fatalf("auth config lost nesting: %+v", sess.PendingAuth.AuthConfig)
	}
	oauth, _ := cred["oauth2"].(map[string]any)
	if oauth["authUri"] != "https://auth.example/consent?x=1" {
		t.Errorf("authUri did not survive the roundtrip: %+v", oauth)
	}

	if err := store.ClearPendingAuth(ctx, "sess-1"); err != nil {
		t.Fatalf("ClearPendingAuth: %v", err)
	}
	sess, _ = store.Get(ctx, "sess-1")
	if sess.PendingAuth != nil {
		t.Errorf("pending auth survived clear: %+v", sess.PendingAuth)
	}
}

func TestSQLiteConversationIDImmutable(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLite(t)

	if _, err := store.CreateOrGet(ctx, "sess-1"); err != nil {
		t.Fatalf("CreateOrGet: %v", err)
	}
	if err := store.SetConversationID(ctx, "sess-1", "conv-1"); err != nil {
		t.Fatalf("SetConversationID: %v", err)
	}
	if err := store.SetConversationID(ctx, "sess-1", "conv-2"); err != nil {
		t.Fatalf("SetConversationID (second): %v", err)
	}

	sess, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess.ConversationID != "conv-1" {
		t.Errorf("ConversationID = %q, want conv-1 (first write wins)", sess.ConversationID)
	}
}

func TestSQLiteCreateOrGetIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLite(t)

	if _, err := store.CreateOrGet(ctx, "sess-1"); err != nil {
		t.Fatalf("CreateOrGet: %v", err)
	}
	if err := store.SetConversationID(ctx, "sess-1", "conv-1"); err != nil {
		t.Fatalf("SetConversationID: %v", err)
	}

	sess, err := store.CreateOrGet(ctx, "sess-1")
	if err != nil {
		t.Fatalf("CreateOrGet (second): %v", err)
	}
	if sess.ConversationID != "conv-1" {
		t.Errorf("second CreateOrGet lost conversation id: %+v", sess)
	}
}

func TestSQLiteMissingSession(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLite(t)

	sess, err := store.Get(ctx, "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess != nil {
		t.Errorf("Get(missing) = %+v, want nil", sess)
	}

	if err := store.SetConversationID(ctx, "nope", "c"); err != ErrNotFound {
		t.Errorf("SetConversationID = %v, want ErrNotFound", err)
	}
	if err := store.SetPendingAuth(ctx, "nope", &PendingAuth{FunctionCallID: "c"}); err != ErrNotFound {
		t.Errorf("SetPendingAuth = %v, want ErrNotFound", err)
	}
	if err := store.ClearPendingAuth(ctx, "nope"); err != ErrNotFound {
		t.Errorf("ClearPendingAuth = %v, want ErrNotFound", err)
	}
}

func TestSQLiteDeleteAndCleanup(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLite(t)

	if _, err := store.CreateOrGet(ctx, "sess-1"); err != nil {
		t.Fatalf("CreateOrGet: %v", err)
	}
	if err := store.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	sess, _ := store.Get(ctx, "sess-1")
	if sess != nil {
		t.Errorf("session survived delete: %+v", sess)
	}

	if _, err := store.CreateOrGet(ctx, "sess-2"); err != nil {
		t.Fatalf("CreateOrGet: %v", err)
	}
	removed, err := store.CleanupExpired(ctx, -time.Hour)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
}

package credvault

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestIssueSessionAndVerify(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	cred, err := engine.IssueSession(ctx, "alice")
	if err != nil {
		t.Fatalf("IssueSession failed: %v", err)
	}
	if !cred.IsSession {
		t.Error("session credential not flagged as session")
	}
	if !strings.HasPrefix(cred.Secret, "cvs_") {
		t.Errorf("session secret prefix = %q, want cvs_", cred.Secret[:4])
	}

	res, err := engine.Verify(ctx, cred.Secret)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !res.Valid || res.Owner != "alice" {
		t.Errorf("Verify = %+v, want valid for alice", res)
	}
}

func TestSessionCapConvergesAsync(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := WithAdminSecret(context.Background(), testAdminSecret)

	for i := 0; i < 5; i++ {
		if _, err := engine.IssueSession(ctx, "alice"); err != nil {
			t.Fatalf("IssueSession %d failed: %v", i, err)
		}
	}

	engine.pruner.Wait()

	n, err := engine.CountActiveSessions(ctx, "alice")
	if err != nil {
		t.Fatalf("CountActiveSessions failed: %v", err)
	}
	if n > 3 {
		t.Errorf("live sessions = %d, want at most 3 after pruning", n)
	}
	if n == 0 {
		t.Error("pruning removed every session")
	}

	if got := engine.MetricsSnapshot().SessionsPruned; got == 0 {
		t.Error("SessionsPruned counter not incremented")
	}
}

func TestPruneSessionsSynchronous(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	// Seed an already-expired session directly through the store.
	secret := "cvs_AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	if _, err := engine.store.Issue(ctx, secret, "alice", -time.Minute, true); err != nil {
		t.Fatalf("seed expired session: %v", err)
	}

	deleted, err := engine.PruneSessions(ctx, "alice")
	if err != nil {
		t.Fatalf("PruneSessions failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("PruneSessions deleted %d, want 1", deleted)
	}
}

func TestBumpSessionSlidesExpiry(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	bumped, err := engine.BumpSession(ctx, "alice")
	if err != nil {
		t.Fatalf("BumpSession failed: %v", err)
	}
	if bumped {
		t.Error("BumpSession without a live session should report false")
	}

	if _, err := engine.IssueSession(ctx, "alice"); err != nil {
		t.Fatalf("IssueSession failed: %v", err)
	}

	bumped, err = engine.BumpSession(ctx, "alice")
	if err != nil {
		t.Fatalf("BumpSession failed: %v", err)
	}
	if !bumped {
		t.Error("BumpSession with a live session should report true")
	}
}

func TestBumpSessionDisabledWhenNotSliding(t *testing.T) {
	engine, _ := newTestEngine(t, func(cfg *Config) {
		cfg.Sessions.SlidingExpiration = false
	})
	ctx := context.Background()

	if _, err := engine.IssueSession(ctx, "alice"); err != nil {
		t.Fatalf("IssueSession failed: %v", err)
	}

	bumped, err := engine.BumpSession(ctx, "alice")
	if err != nil {
		t.Fatalf("BumpSession failed: %v", err)
	}
	if bumped {
		t.Error("BumpSession should be a no-op when sliding expiration is disabled")
	}
}

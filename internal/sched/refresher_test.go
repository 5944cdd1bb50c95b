package sched

import (
	"context"
	"errors"
	"testing"
)

type fakeTokenSource struct {
	baseURL string
	calls   int
	err     error
}

func (f *fakeTokenSource) BaseURL() string { return f.baseURL }

func (f *fakeTokenSource) Authenticate(ctx context.Context) error {
	f.calls++
	return f.err
}

func TestRefresher_SkipsUnconfiguredManager(t *testing.T) {
	src := &fakeTokenSource{}
	NewTokenRefresher(src, testLogger()).Refresh(context.Background())
	if src.calls != 0 {
		t.Errorf("authenticated %d times against an unconfigured manager", src.calls)
	}
}

func TestRefresher_RenewsToken(t *testing.T) {
	src := &fakeTokenSource{baseURL: "https://onion.example.com"}
	r := NewTokenRefresher(src, testLogger())

	r.Refresh(context.Background())
	r.Refresh(context.Background())
	if src.calls != 2 {
		t.Errorf("expected 2 renewals, got %d", src.calls)
	}
}

func TestRefresher_SurvivesAuthFailure(t *testing.T) {
	src := &fakeTokenSource{baseURL: "https://onion.example.com", err: errors.New("401")}
	NewTokenRefresher(src, testLogger()).Refresh(context.Background())
	if src.calls != 1 {
		t.Errorf("expected 1 attempt, got %d", src.calls)
	}
}

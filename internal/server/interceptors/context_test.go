package interceptors

import (
	"context"
	"testing"
)

func TestWithIdentity(t *testing.T) {
	ctx := WithIdentity(context.Background(), "user-1", "org-1")

	userID, ok := GetUserID(ctx)
	if !ok || userID != "user-1" {
		t.Errorf("GetUserID = %q, %v; want %q, true", userID, ok, "user-1")
	}
	orgID, ok := GetOrgID(ctx)
	if !ok || orgID != "org-1" {
		t.Errorf("GetOrgID = %q, %v; want %q, true", orgID, ok, "org-1")
	}
}

func TestGetters_EmptyContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := GetUserID(ctx); ok {
		t.Error("GetUserID should report false on an empty context")
	}
	if _, ok := GetOrgID(ctx); ok {
		t.Error("GetOrgID should report false on an empty context")
	}
	if got := GetRequestID(ctx); got != "" {
		t.Errorf("GetRequestID = %q, want empty", got)
	}
	if got := ClientIP(ctx); got != "unknown" {
		t.Errorf("ClientIP = %q, want unknown", got)
	}
}

func TestRequestIDAndClientIP(t *testing.T) {
	ctx := WithClientIP(WithRequestID(context.Background(), "01HZX"), "10.1.2.3")
	if got := GetRequestID(ctx); got != "01HZX" {
		t.Errorf("GetRequestID = %q", got)
	}
	if got := ClientIP(ctx); got != "10.1.2.3" {
		t.Errorf("ClientIP = %q", got)
	}
}

package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"scriptroom/api/internal/document"
)

// serve runs one request without touching t, for use off the test goroutine.
func serve(h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res
}

func TestLoginWaitsForPreviousWorkspaceToFlush(t *testing.T) {
	h, _, deps := newTestHandler(t)
	deps.store.seed("owner-1", scriptProject("prj_1", "Pilot"))

	flushStarted := make(chan struct{})
	release := make(chan struct{})
	var blocked atomic.Bool
	deps.store.upsertFn = func(_ context.Context, _ string, p document.Project) error {
		if len(p.Content) > 1 && p.Content[1].Content == "Silence." && blocked.CompareAndSwap(false, true) {
			close(flushStarted)
			<-release
		}
		return nil
	}

	token := login(t, h, "owner-1")
	doRequest(t, h, http.MethodPatch, "/api/blocks/prj_1-a", token, map[string]any{"content": "Silence."})

	logoutDone := make(chan int, 1)
	go func() {
		logoutDone <- serve(h, http.MethodPost, "/api/session/logout", token, "").Code
	}()
	<-flushStarted

	loginDone := make(chan string, 1)
	go func() {
		res := serve(h, http.MethodPost, "/api/session/login", "", `{"ownerId":"owner-1","name":"Writer"}`)
		var body struct {
			Token string `json:"token"`
		}
		_ = json.Unmarshal(res.Body.Bytes(), &body)
		loginDone <- body.Token
	}()

	select {
	case <-loginDone:
		t.Fatal("login finished while the previous workspace was still flushing")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if code := <-logoutDone; code != http.StatusOK {
		t.Fatalf("logout = %d", code)
	}
	second := <-loginDone
	if second == "" {
		t.Fatal("second login returned no token")
	}

	snap := workspaceOf(t, h, second)
	if got := snap.Projects[0].Content[1].Content; got != "Silence." {
		t.Fatalf("new workspace sees %q, want the flushed edit", got)
	}

	res, _ := doRequest(t, h, http.MethodPatch, "/api/metadata", second, map[string]any{"field": "title", "value": "Pilot 2"})
	if res.Code != http.StatusOK {
		t.Fatalf("title edit = %d", res.Code)
	}
	doRequest(t, h, http.MethodPost, "/api/session/logout", second, nil)

	stored, _ := deps.store.stored("owner-1", "prj_1")
	if stored.Metadata.Title != "Pilot 2" || stored.Content[1].Content != "Silence." {
		t.Fatalf("stored = title %q block %q", stored.Metadata.Title, stored.Content[1].Content)
	}
}

func TestShutdownWaitsForRetiringWorkspace(t *testing.T) {
	svc, deps := newTestService(t)
	deps.store.seed("owner-1", scriptProject("prj_1", "Pilot"))
	session, err := svc.Login(context.Background(), "owner-1", "Writer")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	release := make(chan struct{})
	flushStarted := make(chan struct{})
	var blocked atomic.Bool
	deps.store.upsertFn = func(context.Context, string, document.Project) error {
		if blocked.CompareAndSwap(false, true) {
			close(flushStarted)
			<-release
		}
		return nil
	}
	if _, _, err := svc.EditBlock(context.Background(), session, "prj_1-a", BlockEdit{Content: ptr("Quiet.")}); err != nil {
		t.Fatalf("edit: %v", err)
	}

	go svc.Logout(context.Background(), session)
	<-flushStarted

	shutdownDone := make(chan struct{})
	go func() {
		svc.Shutdown()
		close(shutdownDone)
	}()
	select {
	case <-shutdownDone:
		t.Fatal("shutdown returned before the retiring workspace closed")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-shutdownDone
	if p, _ := deps.store.stored("owner-1", "prj_1"); p.Content[1].Content != "Quiet." {
		t.Fatalf("stored block = %q", p.Content[1].Content)
	}
}

func ptr(s string) *string { return &s }

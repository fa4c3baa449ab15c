package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/curationhub/curation-backend/internal/domain"
	"github.com/curationhub/curation-backend/internal/moderation"
)

// fakeModerationService records the last Moderate call and returns canned
// results.
type fakeModerationService struct {
	lastSubmissionID string
	lastFeedID       string
	lastAdmin        string
	lastAction       string
	lastNote         string
	lastReference    string

	result *domain.SubmissionFeed
	err    error
}

func (f *fakeModerationService) Moderate(_ context.Context, submissionID, feedID, adminHandle, action, note, referenceID string) (*domain.SubmissionFeed, error) {
	f.lastSubmissionID = submissionID
	f.lastFeedID = feedID
	f.lastAdmin = adminHandle
	f.lastAction = action
	f.lastNote = note
	f.lastReference = referenceID
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newModerateRouter(svc ModerationService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(nil, nil, svc, nil)
	r := gin.New()
	r.POST("/submissions/:id/feeds/:feedId/moderate", h.Moderate)
	return r
}

func doModerate(r *gin.Engine, admin, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/submissions/sub-1/feeds/solana/moderate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if admin != "" {
		req.Header.Set("X-Admin-Handle", admin)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestModerate_Success(t *testing.T) {
	svc := &fakeModerationService{
		result: &domain.SubmissionFeed{SubmissionID: "sub-1", FeedID: "solana", Status: domain.FeedStatusApproved},
	}
	r := newModerateRouter(svc)

	w := doModerate(r, "alice", `{"action":"Approve","note":"solid find"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp["status"] != domain.FeedStatusApproved || resp["action"] != "approve" {
		t.Fatalf("response = %v", resp)
	}

	if svc.lastSubmissionID != "sub-1" || svc.lastFeedID != "solana" {
		t.Fatalf("target = (%s, %s)", svc.lastSubmissionID, svc.lastFeedID)
	}
	if svc.lastAdmin != "alice" || svc.lastAction != "approve" || svc.lastNote != "solid find" {
		t.Fatalf("call = %+v", svc)
	}
	if svc.lastReference != "" {
		t.Fatalf("API decisions must not carry a platform reference, got %q", svc.lastReference)
	}
}

func TestModerate_RequiresAdminHandle(t *testing.T) {
	svc := &fakeModerationService{}
	r := newModerateRouter(svc)

	w := doModerate(r, "", `{"action":"approve"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	if svc.lastAction != "" {
		t.Fatal("service must not be called without an identified moderator")
	}
}

func TestModerate_BadBody(t *testing.T) {
	r := newModerateRouter(&fakeModerationService{})
	for _, body := range []string{``, `{`, `{"note":"no action"}`} {
		w := doModerate(r, "alice", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d", body, w.Code)
		}
	}
}

func TestModerate_ErrorMapping(t *testing.T) {
	cases := []struct {
		err      error
		wantCode int
		wantErr  string
	}{
		{moderation.ErrUnknownAction, http.StatusBadRequest, ErrCodeBadRequest},
		{moderation.ErrNotAuthorized, http.StatusForbidden, ErrCodeForbidden},
		{moderation.ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
		{moderation.ErrNotPending, http.StatusConflict, ErrCodeConflict},
		{errors.New("db down"), http.StatusInternalServerError, ErrCodeModerationFailed},
	}
	for _, tc := range cases {
		r := newModerateRouter(&fakeModerationService{err: tc.err})
		w := doModerate(r, "alice", `{"action":"approve"}`)
		if w.Code != tc.wantCode {
			t.Errorf("%v: status = %d, want %d", tc.err, w.Code, tc.wantCode)
			continue
		}
		var er ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
			t.Errorf("%v: json: %v", tc.err, err)
			continue
		}
		if er.Code != tc.wantErr {
			t.Errorf("%v: error code = %q, want %q", tc.err, er.Code, tc.wantErr)
		}
	}
}

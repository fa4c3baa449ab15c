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
	"github.com/google/uuid"

	"github.com/curationhub/curation-backend/internal/domain"
	"github.com/curationhub/curation-backend/internal/processing"
)

// fakeProcessingService records calls and returns a canned JobWithSteps or
// error.
type fakeProcessingService struct {
	calls  []string
	result *processing.JobWithSteps
	err    error
}

func (f *fakeProcessingService) record(call string) (*processing.JobWithSteps, error) {
	f.calls = append(f.calls, call)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeProcessingService) GetJob(_ context.Context, jobID string) (*processing.JobWithSteps, error) {
	return f.record("get:" + jobID)
}

func (f *fakeProcessingService) RetryJob(_ context.Context, jobID string) (*processing.JobWithSteps, error) {
	return f.record("retryJob:" + jobID)
}

func (f *fakeProcessingService) RetryStep(_ context.Context, stepID string) (*processing.JobWithSteps, error) {
	return f.record("retryStep:" + stepID)
}

func (f *fakeProcessingService) TweakAndReprocessStep(_ context.Context, stepID, newInput string) (*processing.JobWithSteps, error) {
	return f.record("tweak:" + stepID + ":" + newInput)
}

func (f *fakeProcessingService) ReprocessJob(_ context.Context, submissionID, feedID string) (*processing.JobWithSteps, error) {
	return f.record("reprocess:" + submissionID + ":" + feedID)
}

func newJobRouter(svc ProcessingService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(nil, nil, nil, svc)
	r := gin.New()
	r.GET("/jobs/:id", h.GetJob)
	r.POST("/jobs/:id/retry", h.RetryJob)
	r.POST("/steps/:id/retry", h.RetryStep)
	r.POST("/steps/:id/tweak", h.TweakStep)
	r.POST("/submissions/:id/feeds/:feedId/reprocess", h.ReprocessJob)
	return r
}

func cannedJob(id string) *processing.JobWithSteps {
	return &processing.JobWithSteps{
		Job: domain.ProcessingJob{ID: id, Status: domain.JobStatusCompleted},
		Steps: []domain.ProcessingStep{
			{ID: uuid.NewString(), JobID: id, Status: domain.StepStatusSuccess},
		},
	}
}

func TestGetJob(t *testing.T) {
	jobID := uuid.NewString()
	svc := &fakeProcessingService{result: cannedJob(jobID)}
	r := newJobRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/jobs/"+jobID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var jws processing.JobWithSteps
	if err := json.Unmarshal(w.Body.Bytes(), &jws); err != nil {
		t.Fatalf("json: %v", err)
	}
	if jws.Job.ID != jobID || len(jws.Steps) != 1 {
		t.Fatalf("body = %+v", jws)
	}
	if len(svc.calls) != 1 || svc.calls[0] != "get:"+jobID {
		t.Fatalf("calls = %v", svc.calls)
	}
}

func TestJobHandlers_RejectNonUUIDIDs(t *testing.T) {
	svc := &fakeProcessingService{result: cannedJob(uuid.NewString())}
	r := newJobRouter(svc)

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/jobs/abc", nil),
		httptest.NewRequest(http.MethodPost, "/jobs/abc/retry", nil),
		httptest.NewRequest(http.MethodPost, "/steps/abc/retry", nil),
		httptest.NewRequest(http.MethodPost, "/steps/abc/tweak", strings.NewReader(`{"input":"x"}`)),
		httptest.NewRequest(http.MethodPost, "/submissions/abc/feeds/solana/reprocess", nil),
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s %s: status = %d", req.Method, req.URL.Path, w.Code)
		}
	}
	if len(svc.calls) != 0 {
		t.Fatalf("service called for invalid ids: %v", svc.calls)
	}
}

func TestRetryJob(t *testing.T) {
	jobID := uuid.NewString()
	svc := &fakeProcessingService{result: cannedJob(jobID)}
	r := newJobRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/jobs/"+jobID+"/retry", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(svc.calls) != 1 || svc.calls[0] != "retryJob:"+jobID {
		t.Fatalf("calls = %v", svc.calls)
	}
}

func TestTweakStep(t *testing.T) {
	stepID := uuid.NewString()
	svc := &fakeProcessingService{result: cannedJob(uuid.NewString())}
	r := newJobRouter(svc)

	// missing input
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/steps/"+stepID+"/tweak", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing input: status = %d", w.Code)
	}
	if len(svc.calls) != 0 {
		t.Fatalf("service called without input: %v", svc.calls)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/steps/"+stepID+"/tweak", strings.NewReader(`{"input":"new text"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if svc.calls[len(svc.calls)-1] != "tweak:"+stepID+":new text" {
		t.Fatalf("calls = %v", svc.calls)
	}
}

func TestReprocessJob_Returns201(t *testing.T) {
	subID := uuid.NewString()
	svc := &fakeProcessingService{result: cannedJob(uuid.NewString())}
	r := newJobRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/submissions/"+subID+"/feeds/solana/reprocess", nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if svc.calls[0] != "reprocess:"+subID+":solana" {
		t.Fatalf("calls = %v", svc.calls)
	}
}

func TestJobHandlers_ErrorMapping(t *testing.T) {
	jobID := uuid.NewString()
	cases := []struct {
		err      error
		wantCode int
		wantErr  string
	}{
		{processing.ErrJobNotFound, http.StatusNotFound, ErrCodeNotFound},
		{processing.ErrStepNotFound, http.StatusNotFound, ErrCodeNotFound},
		{processing.ErrSubmissionNotFound, http.StatusNotFound, ErrCodeNotFound},
		{processing.ErrJobActive, http.StatusConflict, ErrCodeJobActive},
		{processing.ErrStreamDisabled, http.StatusConflict, ErrCodeStreamDisabled},
		{errors.New("db down"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		r := newJobRouter(&fakeProcessingService{err: tc.err})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/jobs/"+jobID+"/retry", nil))
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

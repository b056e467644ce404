package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
)

func submitJob(t *testing.T, ta *testApp, body string) map[string]interface{} {
	t.Helper()
	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/jobs/", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)
	return parseJSON(t, resp)
}

func TestSubmitJob_Success(t *testing.T) {
	ta := setupApp(t)

	result := submitJob(t, ta, `{
		"type": "viral_analysis",
		"metadata": {"videoRef": "media/uploads/viral.mp4"}
	}`)
	if result["jobId"] == nil || result["jobId"] == "" {
		t.Error("expected 'jobId' in response")
	}
	if result["status"] != "queued" {
		t.Errorf("expected status 'queued', got %v", result["status"])
	}
}

func TestSubmitJob_BadMetadata(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/jobs/", `{
		"type": "export",
		"metadata": {"videoRef": "media/styled.mp4", "quality": "8k"}
	}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)
	if len(ta.queue.enqueued) != 0 {
		t.Error("rejected submission must not enqueue")
	}
}

func TestJobStatus_Poll(t *testing.T) {
	ta := setupApp(t)

	result := submitJob(t, ta, `{
		"type": "viral_analysis",
		"metadata": {"videoRef": "media/uploads/viral.mp4"}
	}`)
	jobID := result["jobId"].(string)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/jobs/"+jobID, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	status := parseJSON(t, resp)
	if status["status"] != "queued" {
		t.Errorf("expected 'queued', got %v", status["status"])
	}
	if status["progress"] != float64(0) {
		t.Errorf("expected progress 0, got %v", status["progress"])
	}
}

func TestJobStatus_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/jobs/no-such-job", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}

func TestJobResult_BeforeAndAfterCompletion(t *testing.T) {
	ta := setupApp(t)

	result := submitJob(t, ta, `{
		"type": "viral_analysis",
		"metadata": {"videoRef": "media/uploads/viral.mp4"}
	}`)
	jobID := result["jobId"].(string)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/jobs/"+jobID+"/result", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)

	// Simulate the worker finishing the job.
	if err := ta.jobs.Complete(context.Background(), jobID, json.RawMessage(`{"videoRef":"media/uploads/viral.mp4","style":{"effects":[]}}`)); err != nil {
		t.Fatalf("complete: %v", err)
	}

	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/jobs/"+jobID+"/result", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	payload := parseJSON(t, resp)
	if payload["videoRef"] != "media/uploads/viral.mp4" {
		t.Errorf("expected raw result payload, got %v", payload)
	}
}

func TestCancelJob_Flow(t *testing.T) {
	ta := setupApp(t)

	result := submitJob(t, ta, `{
		"type": "export",
		"metadata": {"videoRef": "media/styled.mp4", "quality": "720p"}
	}`)
	jobID := result["jobId"].(string)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/jobs/"+jobID+"/cancel", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	cancel := parseJSON(t, resp)
	if cancel["success"] != true {
		t.Errorf("expected success, got %v", cancel)
	}
	if cancel["status"] != "failed" {
		t.Errorf("expected status 'failed', got %v", cancel["status"])
	}

	// A second cancel hits the terminal guard.
	resp, err = doAuthRequest(t, ta.app, http.MethodPost, "/api/jobs/"+jobID+"/cancel", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestHealthCheck(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/health", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if result["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", result["status"])
	}
}

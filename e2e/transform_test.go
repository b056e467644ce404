package e2e

import (
	"fmt"
	"net/http"
	"testing"
)

func validStartBody() string {
	return `{
		"viralUrl": "https://www.tiktok.com/@user/video/7301234567890",
		"platform": "tiktok",
		"templateName": "Neon Pop",
		"export": {"quality": "1080p", "watermark": true}
	}`
}

func TestTransformStart_Success(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/transform/start", validStartBody())
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusAccepted)

	result := parseJSON(t, resp)
	if result["workflowId"] == nil || result["workflowId"] == "" {
		t.Error("expected 'workflowId' in response")
	}
	if result["jobId"] == nil || result["jobId"] == "" {
		t.Error("expected 'jobId' in response")
	}
	if result["status"] != "importing" {
		t.Errorf("expected status 'importing', got %v", result["status"])
	}
	if len(ta.queue.enqueued) != 1 {
		t.Errorf("expected one enqueued task, got %d", len(ta.queue.enqueued))
	}
}

func TestTransformStart_StagedClipSkipsImport(t *testing.T) {
	ta := setupApp(t)

	body := `{
		"viralVideoRef": "media/uploads/viral.mp4",
		"export": {"quality": "720p"}
	}`
	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/transform/start", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusAccepted)

	result := parseJSON(t, resp)
	if result["status"] != "analyzing" {
		t.Errorf("expected status 'analyzing', got %v", result["status"])
	}
}

func TestTransformStart_NoAuth(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/transform/start", validStartBody(), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestTransformStart_BothSourcesRejected(t *testing.T) {
	ta := setupApp(t)

	body := `{
		"viralUrl": "https://www.tiktok.com/@user/video/123",
		"platform": "tiktok",
		"viralVideoRef": "media/uploads/viral.mp4",
		"export": {"quality": "720p"}
	}`
	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/transform/start", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
	if len(ta.queue.enqueued) != 0 {
		t.Error("rejected start must not enqueue")
	}
}

func TestTransformStart_BadQualityRejected(t *testing.T) {
	ta := setupApp(t)

	body := `{
		"viralVideoRef": "media/uploads/viral.mp4",
		"export": {"quality": "8k"}
	}`
	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/transform/start", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)

	result := parseJSON(t, resp)
	errObj, ok := result["error"].(map[string]interface{})
	if !ok || errObj["code"] != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR envelope, got %v", result)
	}
}

func TestWorkflowStatus_Flow(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/transform/start", validStartBody())
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	started := parseJSON(t, resp)
	workflowID := started["workflowId"].(string)

	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/transform/"+workflowID, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	snap := parseJSON(t, resp)
	if snap["id"] != workflowID {
		t.Errorf("expected workflow %s, got %v", workflowID, snap["id"])
	}
	stageJobs, ok := snap["stageJobs"].(map[string]interface{})
	if !ok || stageJobs["import_tiktok"] == nil {
		t.Errorf("expected import stage job recorded, got %v", snap["stageJobs"])
	}
}

func TestWorkflowStatus_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/transform/no-such-workflow", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}

func TestAttachVideo_BeforeTemplateReady(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/transform/start", validStartBody())
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	started := parseJSON(t, resp)
	workflowID := started["workflowId"].(string)

	body := `{"videoRef": "media/uploads/user.mp4"}`
	resp, err = doAuthRequest(t, ta.app, http.MethodPost, fmt.Sprintf("/api/transform/%s/video", workflowID), body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	snap := parseJSON(t, resp)
	// Still importing; the application stage waits for the template.
	if snap["status"] != "importing" {
		t.Errorf("expected status 'importing', got %v", snap["status"])
	}
}

func TestAttachVideo_MissingRef(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/transform/start", validStartBody())
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	started := parseJSON(t, resp)
	workflowID := started["workflowId"].(string)

	resp, err = doAuthRequest(t, ta.app, http.MethodPost, fmt.Sprintf("/api/transform/%s/video", workflowID), `{}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)
}

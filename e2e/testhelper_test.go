package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/skify/api/internal/handler"
	"github.com/skify/api/internal/middleware"
	"github.com/skify/api/internal/model"
	"github.com/skify/api/internal/pipeline"
	"github.com/skify/api/internal/service"
	"github.com/skify/api/internal/store"
)

const testJWTSecret = "test-secret-for-e2e"

// memQueue stands in for the asynq-backed queue so the API surface can be
// exercised without redis or a worker server.
type memQueue struct {
	enqueued []string
}

func (q *memQueue) Enqueue(_ context.Context, jobID string, _ model.JobType, _ interface{}) error {
	q.enqueued = append(q.enqueued, jobID)
	return nil
}

// testApp holds all components needed for testing
type testApp struct {
	app       *fiber.App
	jobs      *store.MemoryJobStore
	templates *store.MemoryTemplateStore
	queue     *memQueue
}

// setupApp wires the same routes as main.go on in-memory stores. Rate
// limiting needs redis and is left out of the handler tests.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	jobs := store.NewMemoryJobStore()
	workflows := store.NewMemoryWorkflowStore()
	templates := store.NewMemoryTemplateStore()
	q := &memQueue{}

	validate := validator.New()

	orchestrator := pipeline.NewOrchestrator(jobs, workflows, q)
	transformService := service.NewTransformService(jobs, workflows, orchestrator, q)
	templateService := service.NewTemplateService(templates)

	transformHandler := handler.NewTransformHandler(transformService, validate)
	templateHandler := handler.NewTemplateHandler(templateService)

	authMiddleware := middleware.NewAuthMiddleware(testJWTSecret)

	app := fiber.New(fiber.Config{
		BodyLimit: 50 * 1024 * 1024,
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api", authMiddleware.Authenticate())

	transform := api.Group("/transform")
	transform.Post("/start", transformHandler.Start)
	transform.Post("/:workflowId/video", transformHandler.AttachVideo)
	transform.Get("/:workflowId", transformHandler.Workflow)

	jobsGroup := api.Group("/jobs")
	jobsGroup.Post("/", transformHandler.SubmitJob)
	jobsGroup.Get("/:jobId", transformHandler.JobStatus)
	jobsGroup.Get("/:jobId/result", transformHandler.JobResult)
	jobsGroup.Post("/:jobId/cancel", transformHandler.CancelJob)

	tpl := api.Group("/templates")
	tpl.Get("/", templateHandler.List)
	tpl.Get("/:templateId", templateHandler.Get)
	tpl.Delete("/:templateId", templateHandler.Delete)

	return &testApp{app: app, jobs: jobs, templates: templates, queue: q}
}

// generateToken creates an HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	claims := middleware.UserClaims{
		UserID: "test-user-123",
		Email:  "test@example.com",
		Plan:   middleware.PlanFree,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: middleware.TokenIssuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

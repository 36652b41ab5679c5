package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/travelclothingclub/api/internal/auth"
	"github.com/travelclothingclub/api/internal/client"
	"github.com/travelclothingclub/api/internal/config"
	"github.com/travelclothingclub/api/internal/handler"
	"github.com/travelclothingclub/api/internal/middleware"
	"github.com/travelclothingclub/api/internal/model"
	"github.com/travelclothingclub/api/internal/service"
)

const (
	testJWTSecret  = "test-secret-for-e2e-at-least-32-chars"
	testMaleURL    = "https://travelclothingclub.com/models/male-model.jpg"
	testFemaleURL  = "https://travelclothingclub.com/models/female-model.jpg"
	testResultURL  = "https://cdn.fashn.ai/abc/output_0.png"
	testPrediction = "abc"
)

// fakeFashn is a scripted stand-in for the upstream try-on API
type fakeFashn struct {
	mu sync.Mutex

	credits  float64
	runBody  string
	statuses []model.UpstreamJob

	creditCalls int
	runCalls    int
	statusCalls int
	lastRun     client.RunRequest
	authHeader  string
}

func newFakeFashn(statuses ...model.UpstreamJob) *fakeFashn {
	return &fakeFashn{
		credits:  100,
		runBody:  `{"id":"` + testPrediction + `","error":null}`,
		statuses: statuses,
	}
}

func completed(url string) model.UpstreamJob {
	return model.UpstreamJob{ID: testPrediction, Status: model.PredictionCompleted, Output: []string{url}}
}

func pending(status model.PredictionStatus) model.UpstreamJob {
	return model.UpstreamJob{ID: testPrediction, Status: status}
}

func (f *fakeFashn) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.authHeader = r.Header.Get("Authorization")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.URL.Path == "/v1/credits":
		f.creditCalls++
		json.NewEncoder(w).Encode(map[string]interface{}{
			"credits": map[string]float64{"total": f.credits},
		})
	case r.URL.Path == "/v1/run" && r.Method == http.MethodPost:
		f.runCalls++
		json.NewDecoder(r.Body).Decode(&f.lastRun)
		io.WriteString(w, f.runBody)
	case strings.HasPrefix(r.URL.Path, "/v1/status/"):
		f.statusCalls++
		idx := f.statusCalls - 1
		if idx >= len(f.statuses) {
			idx = len(f.statuses) - 1
		}
		json.NewEncoder(w).Encode(f.statuses[idx])
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeFashn) counts() (credits, runs, polls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creditCalls, f.runCalls, f.statusCalls
}

func (f *fakeFashn) submitted() client.RunRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastRun
}

type appOptions struct {
	apiKey         string
	debug          bool
	strict         bool
	maxPolls       int
	pollInterval   time.Duration
	requestTimeout time.Duration
	tryOnPerHour   int
}

func defaultOptions() appOptions {
	return appOptions{
		apiKey:         "test-fashn-key",
		strict:         true,
		maxPolls:       30,
		pollInterval:   time.Millisecond,
		requestTimeout: 5 * time.Second,
		// Very high limit so tests don't get blocked
		tryOnPerHour: 10000,
	}
}

// testApp holds all components needed for testing
type testApp struct {
	app     *fiber.App
	fashn   *fakeFashn
	tempDir string
}

// setupApp creates a Fiber app wired like main.go against a fake upstream.
func setupApp(t *testing.T, fashn *fakeFashn, opts appOptions) *testApp {
	t.Helper()

	upstream := httptest.NewServer(fashn)
	t.Cleanup(upstream.Close)

	tempDir := t.TempDir()
	cfg := &config.Config{
		Server: config.ServerConfig{Debug: opts.debug},
		Fashn: config.FashnConfig{
			APIKey:         opts.apiKey,
			BaseURL:        upstream.URL,
			ModelName:      "tryon-v1.6",
			PollInterval:   opts.pollInterval,
			MaxPolls:       opts.maxPolls,
			RequestTimeout: opts.requestTimeout,
		},
		Models: config.ModelsConfig{MaleURL: testMaleURL, FemaleURL: testFemaleURL},
		Upload: config.UploadConfig{
			MaxSize:          10 * 1024 * 1024,
			TempDir:          tempDir,
			StrictValidation: opts.strict,
		},
	}

	// Redis (localhost); job tests skip when it is not running
	redisClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})
	t.Cleanup(func() { redisClient.Close() })

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr: "localhost:6379",
		DB:   15,
	})
	t.Cleanup(func() { asynqClient.Close() })

	validate := validator.New()

	fashnClient := client.NewFashnClient(&cfg.Fashn, cfg.Server.Debug)
	tryOnService := service.NewTryOnService(fashnClient, &cfg.Fashn, cfg.Models, cfg.Server.Debug)
	jobService := service.NewJobService(redisClient, asynqClient)

	ingress := handler.NewIngress(validate, cfg.Upload)
	tryOnHandler := handler.NewTryOnHandler(tryOnService, ingress, cfg.Upload, cfg.Fashn.RequestTimeout, cfg.Server.Debug)
	jobHandler := handler.NewJobHandler(tryOnService, jobService, ingress, cfg.Upload, cfg.Server.Debug)

	// Auth middleware: HS256 only
	authMiddleware := middleware.NewAuthMiddleware(nil, testJWTSecret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New(fiber.Config{
		ErrorHandler: handler.ErrorHandler,
		BodyLimit:    32 * 1024 * 1024,
	})
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"fashn":   tryOnService.IsConfigured(),
				"storage": false,
				"auth":    authMiddleware.IsConfigured(),
			},
		})
	})

	tryOnLimit := rateLimiter.TryOnLimit(opts.tryOnPerHour)
	app.All("/api/fashn-tryon", handler.CORS, tryOnLimit, tryOnHandler.Handle)
	app.All("/.netlify/functions/fashn-tryon", handler.CORS, tryOnLimit, tryOnHandler.Handle)

	jobs := app.Group("/api/tryon", cors.New(), authMiddleware.Authenticate())
	jobs.Post("/jobs", tryOnLimit, jobHandler.Start)
	jobs.Get("/jobs/:jobId", jobHandler.Status)
	jobs.Post("/jobs/:jobId/cancel", jobHandler.Cancel)

	return &testApp{app: app, fashn: fashn, tempDir: tempDir}
}

// requireRedis skips the test when the local Redis is not running.
func requireRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		t.Skipf("skipping: redis not available: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

// resetTryOnLimits clears the try-on rate limit counters.
func resetTryOnLimits(t *testing.T, rdb *redis.Client) {
	t.Helper()
	ctx := context.Background()
	keys, err := rdb.Keys(ctx, "ratelimit:tryon:*").Result()
	if err != nil {
		t.Fatalf("failed to list rate limit keys: %v", err)
	}
	if len(keys) > 0 {
		rdb.Del(ctx, keys...)
	}
}

// generateToken creates an HS256 token for test requests.
func generateToken(t *testing.T, userID string) string {
	t.Helper()
	signed, err := auth.IssueLegacyToken(&auth.Claims{
		UserID: userID,
		Email:  "test@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}, testJWTSecret)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// formFile is one file part of a multipart request
type formFile struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

// multipartBody builds a multipart/form-data body. Fields may repeat.
func multipartBody(t *testing.T, fields [][2]string, files []formFile) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+f.field+`"; filename="`+f.filename+`"`)
		h.Set("Content-Type", f.contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("failed to create part: %v", err)
		}
		part.Write(f.data)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

// doRequest performs an HTTP request against the test app.
func doRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, path, body)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

// postTryOn sends a multipart try-on request.
func postTryOn(t *testing.T, app *fiber.App, fields [][2]string, files []formFile) *http.Response {
	t.Helper()
	body, contentType := multipartBody(t, fields, files)
	return doRequest(t, app, http.MethodPost, "/api/fashn-tryon", body, map[string]string{
		"Content-Type": contentType,
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

// assertTempDirEmpty checks that no upload files outlive the request.
func assertTempDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read temp dir: %v", err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected temp dir to be empty, found %v", names)
	}
}

func garmentJPEG(t *testing.T) formFile {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 32, 32)), nil); err != nil {
		t.Fatalf("failed to encode JPEG: %v", err)
	}
	return formFile{field: "clothing_image", filename: "shirt.jpg", contentType: "image/jpeg", data: buf.Bytes()}
}

func modelPNG(t *testing.T) formFile {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 16, 16))); err != nil {
		t.Fatalf("failed to encode PNG: %v", err)
	}
	return formFile{field: "model_image", filename: "me.png", contentType: "image/png", data: buf.Bytes()}
}

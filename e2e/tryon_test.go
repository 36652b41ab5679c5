package e2e

import (
	"encoding/base64"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/travelclothingclub/api/internal/model"
)

func TestTryOn_FemaleFallbackSucceeds(t *testing.T) {
	fashn := newFakeFashn(
		pending(model.PredictionProcessing),
		pending(model.PredictionProcessing),
		completed(testResultURL),
	)
	ta := setupApp(t, fashn, defaultOptions())

	resp := postTryOn(t, ta.app, [][2]string{{"gender", "Female"}}, []formFile{garmentJPEG(t)})
	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	if body["tryon_image_url"] != testResultURL || body["output"] != testResultURL {
		t.Errorf("unexpected body %v", body)
	}

	credits, runs, polls := fashn.counts()
	if credits != 1 || runs != 1 || polls != 3 {
		t.Errorf("expected 1 credit check, 1 run, 3 polls; got %d, %d, %d", credits, runs, polls)
	}

	run := fashn.submitted()
	if run.Inputs.ModelImage != testFemaleURL {
		t.Errorf("expected female stock photo, got %q", run.Inputs.ModelImage)
	}
	if !strings.HasPrefix(run.Inputs.GarmentImage, "data:image/jpeg;base64,") {
		t.Errorf("expected garment data URL, got %.40q", run.Inputs.GarmentImage)
	}
	if fashn.authHeader != "Bearer test-fashn-key" {
		t.Errorf("unexpected upstream auth header %q", fashn.authHeader)
	}

	assertTempDirEmpty(t, ta.tempDir)
}

func TestTryOn_NetlifyAlias(t *testing.T) {
	ta := setupApp(t, newFakeFashn(completed(testResultURL)), defaultOptions())

	body, contentType := multipartBody(t, [][2]string{{"gender", "Male"}}, []formFile{garmentJPEG(t)})
	resp := doRequest(t, ta.app, http.MethodPost, "/.netlify/functions/fashn-tryon", body, map[string]string{
		"Content-Type": contentType,
	})
	assertStatus(t, resp, http.StatusOK)
}

func TestTryOn_UploadedModelImageWins(t *testing.T) {
	fashn := newFakeFashn(completed(testResultURL))
	ta := setupApp(t, fashn, defaultOptions())

	resp := postTryOn(t, ta.app, [][2]string{{"gender", "Male"}}, []formFile{garmentJPEG(t), modelPNG(t)})
	assertStatus(t, resp, http.StatusOK)

	if run := fashn.submitted(); !strings.HasPrefix(run.Inputs.ModelImage, "data:image/png;base64,") {
		t.Errorf("expected uploaded model photo, got %.40q", run.Inputs.ModelImage)
	}
}

func TestTryOn_RepeatedFieldUsesFirstValue(t *testing.T) {
	fashn := newFakeFashn(completed(testResultURL))
	ta := setupApp(t, fashn, defaultOptions())

	resp := postTryOn(t, ta.app, [][2]string{{"gender", "Male"}, {"gender", "Female"}}, []formFile{garmentJPEG(t)})
	assertStatus(t, resp, http.StatusOK)

	if run := fashn.submitted(); run.Inputs.ModelImage != testMaleURL {
		t.Errorf("expected male stock photo, got %q", run.Inputs.ModelImage)
	}
}

func TestTryOn_MissingPredictionID(t *testing.T) {
	fashn := newFakeFashn(completed(testResultURL))
	fashn.runBody = `{}`
	ta := setupApp(t, fashn, defaultOptions())

	resp := postTryOn(t, ta.app, [][2]string{{"gender", "Male"}}, []formFile{garmentJPEG(t)})
	assertStatus(t, resp, http.StatusInternalServerError)

	body := parseJSON(t, resp)
	if body["error"] != "Failed to generate AI try-on" || body["details"] != "No prediction ID returned" {
		t.Errorf("unexpected body %v", body)
	}
	if len(body) != 2 {
		t.Errorf("expected exactly error and details, got %v", body)
	}
	if _, _, polls := fashn.counts(); polls != 0 {
		t.Errorf("expected no polls, got %d", polls)
	}
	assertTempDirEmpty(t, ta.tempDir)
}

func TestTryOn_UpstreamFailureDetails(t *testing.T) {
	failed := model.UpstreamJob{
		ID:     testPrediction,
		Status: model.PredictionFailed,
		Error:  &model.UpstreamError{Name: "ImageLoadError", Message: "garment not detected"},
	}
	ta := setupApp(t, newFakeFashn(pending(model.PredictionInQueue), failed), defaultOptions())

	resp := postTryOn(t, ta.app, [][2]string{{"gender", "Female"}}, []formFile{garmentJPEG(t)})
	assertStatus(t, resp, http.StatusInternalServerError)

	body := parseJSON(t, resp)
	if body["details"] != "garment not detected" {
		t.Errorf("expected upstream message, got %v", body["details"])
	}
	assertTempDirEmpty(t, ta.tempDir)
}

func TestTryOn_NoCredits(t *testing.T) {
	fashn := newFakeFashn(completed(testResultURL))
	fashn.credits = 0
	ta := setupApp(t, fashn, defaultOptions())

	resp := postTryOn(t, ta.app, [][2]string{{"gender", "Female"}}, []formFile{garmentJPEG(t)})
	assertStatus(t, resp, http.StatusInternalServerError)

	body := parseJSON(t, resp)
	if body["details"] != "No credits available" {
		t.Errorf("unexpected details %v", body["details"])
	}
	if _, runs, _ := fashn.counts(); runs != 0 {
		t.Errorf("expected no submission, got %d", runs)
	}
	assertTempDirEmpty(t, ta.tempDir)
}

func TestTryOn_PollCapTimesOut(t *testing.T) {
	fashn := newFakeFashn(pending(model.PredictionProcessing))
	opts := defaultOptions()
	opts.maxPolls = 5
	ta := setupApp(t, fashn, opts)

	resp := postTryOn(t, ta.app, [][2]string{{"gender", "Female"}}, []formFile{garmentJPEG(t)})
	assertStatus(t, resp, http.StatusInternalServerError)

	if _, _, polls := fashn.counts(); polls != 5 {
		t.Errorf("expected exactly 5 polls, got %d", polls)
	}
	body := parseJSON(t, resp)
	if !strings.Contains(body["details"].(string), "timed out") {
		t.Errorf("unexpected details %v", body["details"])
	}
	assertTempDirEmpty(t, ta.tempDir)
}

func TestTryOn_RequestTimeoutCleansUp(t *testing.T) {
	fashn := newFakeFashn(pending(model.PredictionProcessing))
	opts := defaultOptions()
	opts.pollInterval = 20 * time.Millisecond
	opts.requestTimeout = 100 * time.Millisecond
	ta := setupApp(t, fashn, opts)

	resp := postTryOn(t, ta.app, [][2]string{{"gender", "Female"}}, []formFile{garmentJPEG(t)})
	assertStatus(t, resp, http.StatusInternalServerError)

	body := parseJSON(t, resp)
	if body["error"] != "Failed to generate AI try-on" {
		t.Errorf("unexpected body %v", body)
	}
	assertTempDirEmpty(t, ta.tempDir)
}

func TestTryOn_ValidationFailures(t *testing.T) {
	tests := []struct {
		name   string
		fields [][2]string
		files  func(t *testing.T) []formFile
	}{
		{
			name:   "no gender and no model image",
			fields: nil,
			files:  func(t *testing.T) []formFile { return []formFile{garmentJPEG(t)} },
		},
		{
			name:   "invalid gender",
			fields: [][2]string{{"gender", "Other"}},
			files:  func(t *testing.T) []formFile { return []formFile{garmentJPEG(t)} },
		},
		{
			name:   "missing garment",
			fields: [][2]string{{"gender", "Male"}},
			files:  func(t *testing.T) []formFile { return nil },
		},
		{
			name:   "garment is not an image",
			fields: [][2]string{{"gender", "Male"}},
			files: func(t *testing.T) []formFile {
				return []formFile{{field: "clothing_image", filename: "shirt.jpg", contentType: "image/jpeg", data: []byte("%PDF-1.4 not an image")}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fashn := newFakeFashn(completed(testResultURL))
			ta := setupApp(t, fashn, defaultOptions())

			resp := postTryOn(t, ta.app, tt.fields, tt.files(t))
			assertStatus(t, resp, http.StatusBadRequest)

			body := parseJSON(t, resp)
			if body["error"] != "Invalid request" || body["details"] == "" {
				t.Errorf("unexpected body %v", body)
			}
			if _, runs, _ := fashn.counts(); runs != 0 {
				t.Errorf("expected no submission, got %d", runs)
			}
			assertTempDirEmpty(t, ta.tempDir)
		})
	}
}

func TestTryOn_PermissiveModeSkipsContentChecks(t *testing.T) {
	fashn := newFakeFashn(completed(testResultURL))
	opts := defaultOptions()
	opts.strict = false
	ta := setupApp(t, fashn, opts)

	files := []formFile{{field: "clothing_image", filename: "shirt.bin", contentType: "application/octet-stream", data: []byte("raw bytes")}}
	resp := postTryOn(t, ta.app, [][2]string{{"gender", "Male"}}, files)
	assertStatus(t, resp, http.StatusOK)
}

func TestTryOn_DebugModeReportsEverythingAs500(t *testing.T) {
	opts := defaultOptions()
	opts.debug = true
	ta := setupApp(t, newFakeFashn(completed(testResultURL)), opts)

	resp := postTryOn(t, ta.app, nil, []formFile{garmentJPEG(t)})
	assertStatus(t, resp, http.StatusInternalServerError)

	body := parseJSON(t, resp)
	if body["debug"] != true {
		t.Errorf("expected debug flag, got %v", body)
	}
}

func TestTryOn_MissingAPIKey(t *testing.T) {
	fashn := newFakeFashn(completed(testResultURL))
	opts := defaultOptions()
	opts.apiKey = ""
	ta := setupApp(t, fashn, opts)

	resp := postTryOn(t, ta.app, [][2]string{{"gender", "Male"}}, []formFile{garmentJPEG(t)})
	assertStatus(t, resp, http.StatusInternalServerError)

	body := parseJSON(t, resp)
	if body["error"] != "Server configuration error" {
		t.Errorf("unexpected body %v", body)
	}
	if credits, runs, _ := fashn.counts(); credits != 0 || runs != 0 {
		t.Error("expected no upstream calls without an API key")
	}
}

func TestTryOn_JSONIngress(t *testing.T) {
	fashn := newFakeFashn(completed(testResultURL))
	ta := setupApp(t, fashn, defaultOptions())

	garment := garmentJPEG(t)
	payload := `{"imageBase64":"data:image/jpeg;base64,` + base64.StdEncoding.EncodeToString(garment.data) + `","gender":"Male"}`
	resp := doRequest(t, ta.app, http.MethodPost, "/api/fashn-tryon", strings.NewReader(payload), map[string]string{
		"Content-Type": "application/json",
	})
	assertStatus(t, resp, http.StatusOK)

	if run := fashn.submitted(); run.Inputs.ModelImage != testMaleURL {
		t.Errorf("expected male stock photo, got %q", run.Inputs.ModelImage)
	}
}

func TestTryOn_JSONIngressRejectsNonDataURL(t *testing.T) {
	ta := setupApp(t, newFakeFashn(completed(testResultURL)), defaultOptions())

	resp := doRequest(t, ta.app, http.MethodPost, "/api/fashn-tryon",
		strings.NewReader(`{"imageBase64":"https://example.com/shirt.jpg","gender":"Male"}`),
		map[string]string{"Content-Type": "application/json"})
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestTryOn_Preflight(t *testing.T) {
	fashn := newFakeFashn(completed(testResultURL))
	ta := setupApp(t, fashn, defaultOptions())

	resp := doRequest(t, ta.app, http.MethodOptions, "/api/fashn-tryon", nil, nil)
	assertStatus(t, resp, http.StatusOK)

	if body := readBody(t, resp); body != "" {
		t.Errorf("expected empty body, got %q", body)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected Access-Control-Allow-Origin header")
	}
	if credits, runs, polls := fashn.counts(); credits+runs+polls != 0 {
		t.Error("preflight must not call upstream")
	}
}

func TestTryOn_MethodNotAllowed(t *testing.T) {
	ta := setupApp(t, newFakeFashn(completed(testResultURL)), defaultOptions())

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		resp := doRequest(t, ta.app, method, "/api/fashn-tryon", nil, nil)
		assertStatus(t, resp, http.StatusMethodNotAllowed)

		body := parseJSON(t, resp)
		if body["error"] != "Method not allowed" || len(body) != 1 {
			t.Errorf("%s: unexpected body %v", method, body)
		}
	}
}

func TestTryOn_CORSHeaderOnEveryResponse(t *testing.T) {
	ta := setupApp(t, newFakeFashn(completed(testResultURL)), defaultOptions())

	ok := postTryOn(t, ta.app, [][2]string{{"gender", "Male"}}, []formFile{garmentJPEG(t)})
	bad := postTryOn(t, ta.app, nil, []formFile{garmentJPEG(t)})

	for _, resp := range []*http.Response{ok, bad} {
		if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
			t.Errorf("status %d: missing Access-Control-Allow-Origin", resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestTryOn_RateLimitedResponseKeepsCORS(t *testing.T) {
	rdb := requireRedis(t)
	resetTryOnLimits(t, rdb)
	t.Cleanup(func() { resetTryOnLimits(t, rdb) })

	opts := defaultOptions()
	opts.tryOnPerHour = 1
	ta := setupApp(t, newFakeFashn(completed(testResultURL)), opts)

	first := postTryOn(t, ta.app, [][2]string{{"gender", "Male"}}, []formFile{garmentJPEG(t)})
	assertStatus(t, first, http.StatusOK)
	first.Body.Close()

	second := postTryOn(t, ta.app, [][2]string{{"gender", "Male"}}, []formFile{garmentJPEG(t)})
	assertStatus(t, second, http.StatusTooManyRequests)
	if second.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected Access-Control-Allow-Origin on rate limited response")
	}
	second.Body.Close()
}

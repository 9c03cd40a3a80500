package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wricardo/gridworld-fuzzer/game/engine"
	"github.com/wricardo/gridworld-fuzzer/game/evolve"
	"github.com/wricardo/gridworld-fuzzer/game/service"
	"github.com/wricardo/gridworld-fuzzer/transport/websocket"
)

// MockRunService implements service.RunService for testing
type MockRunService struct {
	StartRunFunc    func(ctx context.Context, req *service.StartRunRequest) (*service.RunInfo, error)
	GetRunFunc      func(ctx context.Context, runID string) (*service.RunInfo, error)
	ListRunsFunc    func(ctx context.Context) ([]*service.RunInfo, error)
	DeleteRunFunc   func(ctx context.Context, runID string) error
	CancelRunFunc   func(ctx context.Context, runID string) error
	ReplayFunc      func(ctx context.Context, runID string) (*service.ReplayResult, error)
	WritePlotFunc   func(ctx context.Context, runID string, w io.Writer) error
	ListConfigsFunc func(ctx context.Context) ([]*service.ConfigInfo, error)
	LoadConfigFunc  func(ctx context.Context, configName string) (*engine.RunConfig, error)
	SaveConfigFunc  func(ctx context.Context, configName string, config *engine.RunConfig) error
}

func (m *MockRunService) StartRun(ctx context.Context, req *service.StartRunRequest) (*service.RunInfo, error) {
	if m.StartRunFunc != nil {
		return m.StartRunFunc(ctx, req)
	}
	return &service.RunInfo{ID: "test-run", ConfigName: req.ConfigName, Status: service.StatusCompleted}, nil
}

func (m *MockRunService) GetRun(ctx context.Context, runID string) (*service.RunInfo, error) {
	if m.GetRunFunc != nil {
		return m.GetRunFunc(ctx, runID)
	}
	return &service.RunInfo{ID: runID, Status: service.StatusCompleted}, nil
}

func (m *MockRunService) ListRuns(ctx context.Context) ([]*service.RunInfo, error) {
	if m.ListRunsFunc != nil {
		return m.ListRunsFunc(ctx)
	}
	return []*service.RunInfo{}, nil
}

func (m *MockRunService) DeleteRun(ctx context.Context, runID string) error {
	if m.DeleteRunFunc != nil {
		return m.DeleteRunFunc(ctx, runID)
	}
	return nil
}

func (m *MockRunService) CancelRun(ctx context.Context, runID string) error {
	if m.CancelRunFunc != nil {
		return m.CancelRunFunc(ctx, runID)
	}
	return nil
}

func (m *MockRunService) Replay(ctx context.Context, runID string) (*service.ReplayResult, error) {
	if m.ReplayFunc != nil {
		return m.ReplayFunc(ctx, runID)
	}
	return &service.ReplayResult{RunID: runID}, nil
}

func (m *MockRunService) WritePlot(ctx context.Context, runID string, w io.Writer) error {
	if m.WritePlotFunc != nil {
		return m.WritePlotFunc(ctx, runID, w)
	}
	_, err := w.Write([]byte("\x89PNG\r\n\x1a\n"))
	return err
}

func (m *MockRunService) ListConfigs(ctx context.Context) ([]*service.ConfigInfo, error) {
	if m.ListConfigsFunc != nil {
		return m.ListConfigsFunc(ctx)
	}
	return []*service.ConfigInfo{}, nil
}

func (m *MockRunService) LoadConfig(ctx context.Context, configName string) (*engine.RunConfig, error) {
	if m.LoadConfigFunc != nil {
		return m.LoadConfigFunc(ctx, configName)
	}
	config := engine.DefaultRunConfig()
	config.Name = configName
	return config, nil
}

func (m *MockRunService) SaveConfig(ctx context.Context, configName string, config *engine.RunConfig) error {
	if m.SaveConfigFunc != nil {
		return m.SaveConfigFunc(ctx, configName, config)
	}
	return nil
}

func (m *MockRunService) Shutdown(ctx context.Context) error {
	return nil
}

// Test helpers
func setupTestServer(t *testing.T, mockService *MockRunService) *Server {
	hub := websocket.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)
	return NewServer(mockService, hub)
}

func makeRequest(method, path string, body interface{}) *http.Request {
	var bodyBytes []byte
	if body != nil {
		bodyBytes, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewBuffer(bodyBytes))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), target); err != nil {
		t.Fatalf("Failed to parse response %q: %v", w.Body.String(), err)
	}
}

func serve(server *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	return w
}

// Run Tests

func TestStartRun(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		requestBody    interface{}
		rawBody        string
		setupMock      func(*testing.T, *MockRunService)
		expectedStatus int
		validateResp   func(*testing.T, *httptest.ResponseRecorder)
	}{
		{
			name: "Start run with default config",
			path: "/api/runs",
			setupMock: func(t *testing.T, m *MockRunService) {
				m.StartRunFunc = func(ctx context.Context, req *service.StartRunRequest) (*service.RunInfo, error) {
					if req.ConfigName != "" || req.Async {
						t.Errorf("Expected empty request, got %+v", req)
					}
					return &service.RunInfo{ID: "run-123", ConfigName: "classic", Status: service.StatusCompleted}, nil
				}
			},
			expectedStatus: http.StatusCreated,
			validateResp: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp service.RunInfo
				parseResponse(t, w, &resp)
				if resp.ID != "run-123" || resp.Status != service.StatusCompleted {
					t.Errorf("Unexpected run %+v", resp)
				}
			},
		},
		{
			name: "Start run with overrides",
			path: "/api/runs",
			requestBody: map[string]interface{}{
				"config_name": "random",
				"overrides":   map[string]interface{}{"generations": 7, "mutation": 0.3},
			},
			setupMock: func(t *testing.T, m *MockRunService) {
				m.StartRunFunc = func(ctx context.Context, req *service.StartRunRequest) (*service.RunInfo, error) {
					if req.ConfigName != "random" {
						t.Errorf("Expected config random, got %s", req.ConfigName)
					}
					o := req.Overrides
					if o == nil || o.Generations == nil || *o.Generations != 7 || o.Mutation == nil || *o.Mutation != 0.3 {
						t.Errorf("Overrides not decoded: %+v", o)
					}
					if o != nil && o.Size != nil {
						t.Error("Unset override should stay nil")
					}
					return &service.RunInfo{ID: "run-1"}, nil
				}
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "Async via query parameter",
			path: "/api/runs?async=true",
			setupMock: func(t *testing.T, m *MockRunService) {
				m.StartRunFunc = func(ctx context.Context, req *service.StartRunRequest) (*service.RunInfo, error) {
					if !req.Async {
						t.Error("Expected async request")
					}
					return &service.RunInfo{ID: "run-1", Status: service.StatusRunning}, nil
				}
			},
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "Invalid async parameter",
			path:           "/api/runs?async=maybe",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Invalid body",
			path:           "/api/runs",
			rawBody:        "{not json",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "Unknown config",
			path: "/api/runs",
			setupMock: func(t *testing.T, m *MockRunService) {
				m.StartRunFunc = func(ctx context.Context, req *service.StartRunRequest) (*service.RunInfo, error) {
					return nil, fmt.Errorf("%w: 'nope'", service.ErrConfigNotFound)
				}
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "Invalid config",
			path: "/api/runs",
			setupMock: func(t *testing.T, m *MockRunService) {
				m.StartRunFunc = func(ctx context.Context, req *service.StartRunRequest) (*service.RunInfo, error) {
					return nil, fmt.Errorf("%w: %w", engine.ErrInvalidConfig, engine.ErrPopulationTooSmall)
				}
			},
			expectedStatus: http.StatusBadRequest,
			validateResp: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp map[string]string
				parseResponse(t, w, &resp)
				if resp["error"] != "invalid run configuration: population size must be at least 4" {
					t.Errorf("Unexpected error message %q", resp["error"])
				}
			},
		},
		{
			name: "Shutting down",
			path: "/api/runs",
			setupMock: func(t *testing.T, m *MockRunService) {
				m.StartRunFunc = func(ctx context.Context, req *service.StartRunRequest) (*service.RunInfo, error) {
					return nil, service.ErrServiceShutdown
				}
			},
			expectedStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockRunService{}
			if tt.setupMock != nil {
				tt.setupMock(t, mockService)
			}
			server := setupTestServer(t, mockService)

			req := makeRequest("POST", tt.path, tt.requestBody)
			if tt.rawBody != "" {
				req = httptest.NewRequest("POST", tt.path, bytes.NewBufferString(tt.rawBody))
			}
			w := serve(server, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d (%s)", tt.expectedStatus, w.Code, w.Body.String())
			}
			if tt.validateResp != nil {
				tt.validateResp(t, w)
			}
		})
	}
}

func TestListRuns(t *testing.T) {
	base := time.Now()
	runs := func() []*service.RunInfo {
		return []*service.RunInfo{
			{ID: "r1", ConfigName: "classic", Status: service.StatusCompleted, CreatedAt: base},
			{ID: "r2", ConfigName: "random", Status: service.StatusRunning, CreatedAt: base.Add(time.Second)},
			{ID: "r3", ConfigName: "classic", Status: service.StatusFailed, CreatedAt: base.Add(2 * time.Second)},
			{ID: "r4", ConfigName: "classic", Status: service.StatusCompleted, CreatedAt: base.Add(3 * time.Second)},
		}
	}

	tests := []struct {
		name     string
		query    string
		expected []string
		total    int
	}{
		{"default newest first", "", []string{"r4", "r3", "r2", "r1"}, 4},
		{"ascending", "?order=asc", []string{"r1", "r2", "r3", "r4"}, 4},
		{"limit", "?limit=2", []string{"r4", "r3"}, 4},
		{"invalid limit ignored", "?limit=abc", []string{"r4", "r3", "r2", "r1"}, 4},
		{"status filter", "?status=completed", []string{"r4", "r1"}, 2},
		{"config filter", "?config=classic&order=asc&limit=2", []string{"r1", "r3"}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockRunService{
				ListRunsFunc: func(ctx context.Context) ([]*service.RunInfo, error) { return runs(), nil },
			}
			server := setupTestServer(t, mockService)
			w := serve(server, makeRequest("GET", "/api/runs"+tt.query, nil))

			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", w.Code)
			}

			var resp struct {
				Count int               `json:"count"`
				Total int               `json:"total"`
				Runs  []service.RunInfo `json:"runs"`
			}
			parseResponse(t, w, &resp)

			if resp.Count != len(tt.expected) || resp.Total != tt.total {
				t.Errorf("Expected count %d total %d, got %d %d", len(tt.expected), tt.total, resp.Count, resp.Total)
			}
			for i, id := range tt.expected {
				if i >= len(resp.Runs) || resp.Runs[i].ID != id {
					t.Errorf("Position %d: expected %s, got %+v", i, id, resp.Runs)
					break
				}
			}
		})
	}
}

func TestGetRun(t *testing.T) {
	mockService := &MockRunService{
		GetRunFunc: func(ctx context.Context, runID string) (*service.RunInfo, error) {
			if runID == "missing" {
				return nil, fmt.Errorf("run not found: %w", service.ErrRunNotFound)
			}
			return &service.RunInfo{
				ID:     runID,
				Status: service.StatusCompleted,
				Result: &evolveResult,
			}, nil
		},
	}
	server := setupTestServer(t, mockService)

	w := serve(server, makeRequest("GET", "/api/runs/abc", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var full map[string]interface{}
	parseResponse(t, w, &full)
	if full["id"] != "abc" || full["result"] == nil {
		t.Errorf("Expected full run, got %v", full)
	}

	w = serve(server, makeRequest("GET", "/api/runs/abc?summary=true", nil))
	var summary map[string]interface{}
	parseResponse(t, w, &summary)
	if _, ok := summary["result"]; ok {
		t.Error("Summary should omit the result")
	}

	w = serve(server, makeRequest("GET", "/api/runs/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestDeleteAndCancelRun(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		path           string
		err            error
		expectedStatus int
	}{
		{"delete", "DELETE", "/api/runs/r1", nil, http.StatusOK},
		{"delete missing", "DELETE", "/api/runs/r1", service.ErrRunNotFound, http.StatusNotFound},
		{"cancel", "POST", "/api/runs/r1/cancel", nil, http.StatusAccepted},
		{"cancel finished", "POST", "/api/runs/r1/cancel", service.ErrRunNotRunning, http.StatusConflict},
		{"cancel missing", "POST", "/api/runs/r1/cancel", fmt.Errorf("run not found: %w", service.ErrRunNotFound), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := ""
			mockService := &MockRunService{
				DeleteRunFunc: func(ctx context.Context, runID string) error {
					called = runID
					return tt.err
				},
				CancelRunFunc: func(ctx context.Context, runID string) error {
					called = runID
					return tt.err
				},
			}
			server := setupTestServer(t, mockService)

			w := serve(server, makeRequest(tt.method, tt.path, nil))
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if called != "r1" {
				t.Errorf("Expected service to be called with r1, got %q", called)
			}
		})
	}
}

func TestReplay(t *testing.T) {
	mockService := &MockRunService{
		ReplayFunc: func(ctx context.Context, runID string) (*service.ReplayResult, error) {
			if runID == "pending" {
				return nil, service.ErrRunNotFinished
			}
			return &service.ReplayResult{
				RunID:       runID,
				Trace:       "lll",
				ReachedGoal: true,
				Steps: []service.ReplayStep{
					{Idx: 1, Dir: engine.Left, Success: true},
					{Idx: 2, Dir: engine.Left, Success: true},
					{Idx: 3, Dir: engine.Left, Success: true, Goal: true},
				},
			}, nil
		},
	}
	server := setupTestServer(t, mockService)

	w := serve(server, makeRequest("GET", "/api/runs/r1/replay", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp service.ReplayResult
	parseResponse(t, w, &resp)
	if resp.Trace != "lll" || len(resp.Steps) != 3 || !resp.Steps[2].Goal {
		t.Errorf("Unexpected replay %+v", resp)
	}

	w = serve(server, makeRequest("GET", "/api/runs/pending/replay", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
}

func TestPlot(t *testing.T) {
	mockService := &MockRunService{
		WritePlotFunc: func(ctx context.Context, runID string, w io.Writer) error {
			if runID == "empty" {
				return service.ErrRunNotFinished
			}
			_, err := w.Write([]byte("\x89PNG\r\n\x1a\nrest"))
			return err
		},
	}
	server := setupTestServer(t, mockService)

	w := serve(server, makeRequest("GET", "/api/runs/r1/plot", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %s", ct)
	}
	if w.Body.String() != "\x89PNG\r\n\x1a\nrest" {
		t.Errorf("Unexpected body %q", w.Body.String())
	}

	w = serve(server, makeRequest("GET", "/api/runs/empty/plot", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON error, got %s", ct)
	}
}

// Configuration Tests

func TestConfigs(t *testing.T) {
	var saved *engine.RunConfig
	var savedName string
	mockService := &MockRunService{
		ListConfigsFunc: func(ctx context.Context) ([]*service.ConfigInfo, error) {
			return []*service.ConfigInfo{{ConfigID: "classic", Name: "Classic", Size: 4}}, nil
		},
		LoadConfigFunc: func(ctx context.Context, configName string) (*engine.RunConfig, error) {
			if configName != "classic" {
				return nil, service.ErrConfigNotFound
			}
			return engine.DefaultRunConfig(), nil
		},
		SaveConfigFunc: func(ctx context.Context, configName string, config *engine.RunConfig) error {
			if err := engine.ValidateRunConfig(config); err != nil {
				return err
			}
			savedName, saved = configName, config
			return nil
		},
	}
	server := setupTestServer(t, mockService)

	t.Run("list", func(t *testing.T) {
		w := serve(server, makeRequest("GET", "/api/configs", nil))
		var resp []service.ConfigInfo
		parseResponse(t, w, &resp)
		if len(resp) != 1 || resp[0].ConfigID != "classic" {
			t.Errorf("Unexpected configs %+v", resp)
		}
	})

	t.Run("get strips extension", func(t *testing.T) {
		w := serve(server, makeRequest("GET", "/api/configs/classic.json", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		var resp engine.RunConfig
		parseResponse(t, w, &resp)
		if resp.PopulationSize != 4 {
			t.Errorf("Unexpected config %+v", resp)
		}
	})

	t.Run("get missing", func(t *testing.T) {
		w := serve(server, makeRequest("GET", "/api/configs/nope", nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", w.Code)
		}
	})

	t.Run("create", func(t *testing.T) {
		body := map[string]interface{}{
			"config_id": "wide", "name": "Wide", "size": 12, "generations": 5,
			"crossover": 0.5, "mutation": 0.2, "population_size": 10, "mode": "random",
		}
		w := serve(server, makeRequest("POST", "/api/configs", body))
		if w.Code != http.StatusCreated {
			t.Fatalf("Expected status 201, got %d (%s)", w.Code, w.Body.String())
		}
		if savedName != "wide" || saved == nil || saved.Size != 12 || saved.Mode != engine.ModeRandom {
			t.Errorf("Unexpected save %s %+v", savedName, saved)
		}
	})

	t.Run("create uses name as ID", func(t *testing.T) {
		body := map[string]interface{}{
			"name": "byname", "size": 4, "generations": 1, "crossover": 0.5,
			"mutation": 0.1, "population_size": 4, "mode": "static",
		}
		w := serve(server, makeRequest("POST", "/api/configs", body))
		if w.Code != http.StatusCreated || savedName != "byname" {
			t.Errorf("Expected save under byname, got %d %s", w.Code, savedName)
		}
	})

	t.Run("create without name", func(t *testing.T) {
		w := serve(server, makeRequest("POST", "/api/configs", map[string]interface{}{"size": 4}))
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})

	t.Run("create invalid", func(t *testing.T) {
		body := map[string]interface{}{"name": "bad", "size": 4, "population_size": 2, "mode": "static", "generations": 1}
		w := serve(server, makeRequest("POST", "/api/configs", body))
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})
}

func TestHealthAndWebSocketGuards(t *testing.T) {
	mockService := &MockRunService{
		GetRunFunc: func(ctx context.Context, runID string) (*service.RunInfo, error) {
			return nil, service.ErrRunNotFound
		},
	}

	server := setupTestServer(t, mockService)
	w := serve(server, makeRequest("GET", "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	w = serve(server, makeRequest("GET", "/ws?run=missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown run, got %d", w.Code)
	}

	noHub := NewServer(mockService, nil)
	w = serve(noHub, makeRequest("GET", "/ws", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503 without hub, got %d", w.Code)
	}
}

var evolveResult = evolve.RunResult{BestFitness: 21}

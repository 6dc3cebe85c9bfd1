package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nerrad567/stbridge/internal/entity"
	"github.com/nerrad567/stbridge/internal/infrastructure/config"
	"github.com/nerrad567/stbridge/internal/infrastructure/logging"
	"github.com/nerrad567/stbridge/internal/session"
	"github.com/nerrad567/stbridge/internal/smartthings"
)

// fakeSession is a scripted SessionAPI for handler tests.
type fakeSession struct {
	state    session.State
	entities []*entity.Entity
	devices  []smartthings.Device
	rooms    []smartthings.Room
	scenes   []smartthings.Scene
	modes    []smartthings.Mode

	cmdResult session.CommandResult
	cmdCalls  []cmdCall
	sceneErr  error
	scenesRun []string
	modeErr   error
	modesSet  []string
}

type cmdCall struct {
	entityID string
	command  string
	params   map[string]any
}

func (f *fakeSession) State() session.State          { return f.state }
func (f *fakeSession) Entities() []*entity.Entity    { return f.entities }
func (f *fakeSession) Devices() []smartthings.Device { return f.devices }
func (f *fakeSession) Rooms() []smartthings.Room     { return f.rooms }
func (f *fakeSession) Scenes() []smartthings.Scene   { return f.scenes }
func (f *fakeSession) Modes() []smartthings.Mode     { return f.modes }

func (f *fakeSession) Entity(id string) (*entity.Entity, bool) {
	for _, e := range f.entities {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}

func (f *fakeSession) ExecuteCommand(_ context.Context, entityID, cmdID string, params map[string]any) session.CommandResult {
	f.cmdCalls = append(f.cmdCalls, cmdCall{entityID: entityID, command: cmdID, params: params})
	return f.cmdResult
}

func (f *fakeSession) ExecuteScene(_ context.Context, sceneID string) error {
	f.scenesRun = append(f.scenesRun, sceneID)
	return f.sceneErr
}

func (f *fakeSession) SetMode(_ context.Context, modeID string) error {
	f.modesSet = append(f.modesSet, modeID)
	return f.modeErr
}

func testServer(t *testing.T, sess SessionAPI) http.Handler {
	t.Helper()

	srv, err := New(Deps{
		Config:  config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS:      config.WebSocketConfig{MaxMessageSize: 4096, PingInterval: 30, PongTimeout: 10},
		Logger:  logging.Default(),
		Session: sess,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	srv.hub = NewHub(srv.wsCfg, srv.logger)
	return srv.buildRouter()
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("response is not valid JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return payload
}

func testEntity(id string) *entity.Entity {
	return &entity.Entity{
		ID:       id,
		DeviceID: "dev-1",
		Kind:     entity.KindLight,
		Name:     "Hall Light",
		Area:     "Hallway",
		Features: []string{entity.FeatureOnOff, entity.FeatureDim},
		Attributes: map[string]any{
			entity.AttrState:      "on",
			entity.AttrBrightness: 70,
		},
	}
}

func TestHandleHealth(t *testing.T) {
	h := testServer(t, &fakeSession{state: session.StateConnected})

	rec := doRequest(t, h, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["session"] != "connected" {
		t.Errorf("session = %v, want connected", body["session"])
	}
	if body["version"] != "test" {
		t.Errorf("version = %v, want test", body["version"])
	}
}

func TestHandleListEntities(t *testing.T) {
	h := testServer(t, &fakeSession{entities: []*entity.Entity{testEntity("st_light_dev-1")}})

	rec := doRequest(t, h, http.MethodGet, "/api/v1/entities/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := decodeBody(t, rec)
	if count := body["count"].(float64); count != 1 {
		t.Errorf("count = %v, want 1", count)
	}

	entities := body["entities"].([]any)
	first := entities[0].(map[string]any)
	if first["id"] != "st_light_dev-1" {
		t.Errorf("entity id = %v", first["id"])
	}
	if first["kind"] != "light" {
		t.Errorf("entity kind = %v", first["kind"])
	}
	if first["area"] != "Hallway" {
		t.Errorf("entity area = %v", first["area"])
	}
}

func TestHandleGetEntity(t *testing.T) {
	h := testServer(t, &fakeSession{entities: []*entity.Entity{testEntity("st_light_dev-1")}})

	rec := doRequest(t, h, http.MethodGet, "/api/v1/entities/st_light_dev-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := decodeBody(t, rec)
	attrs := body["attributes"].(map[string]any)
	if attrs["state"] != "on" {
		t.Errorf("state attribute = %v, want on", attrs["state"])
	}
}

func TestHandleGetEntity_NotFound(t *testing.T) {
	h := testServer(t, &fakeSession{})

	rec := doRequest(t, h, http.MethodGet, "/api/v1/entities/st_light_nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	body := decodeBody(t, rec)
	if body["code"] != ErrCodeNotFound {
		t.Errorf("error code = %v, want %s", body["code"], ErrCodeNotFound)
	}
}

func TestHandleEntityCommand_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		result   session.CommandResult
		wantCode int
	}{
		{"ok", session.CommandResult{Status: session.CommandOK}, http.StatusOK},
		{"not found", session.CommandResult{Status: session.CommandNotFound}, http.StatusNotFound},
		{"not implemented", session.CommandResult{Status: session.CommandNotImplemented}, http.StatusNotImplemented},
		{"bad request", session.CommandResult{Status: session.CommandBadRequest}, http.StatusBadRequest},
		{"failed", session.CommandResult{Status: session.CommandFailed, Err: smartthings.ErrServer}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := &fakeSession{cmdResult: tt.result}
			h := testServer(t, sess)

			rec := doRequest(t, h, http.MethodPost, "/api/v1/entities/st_light_dev-1/command",
				`{"command":"turn_on"}`)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if len(sess.cmdCalls) != 1 {
				t.Fatalf("expected 1 command call, got %d", len(sess.cmdCalls))
			}
			if sess.cmdCalls[0].command != "turn_on" {
				t.Errorf("command = %q, want turn_on", sess.cmdCalls[0].command)
			}
		})
	}
}

func TestHandleEntityCommand_WithParams(t *testing.T) {
	sess := &fakeSession{cmdResult: session.CommandResult{Status: session.CommandOK}}
	h := testServer(t, sess)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/entities/st_light_dev-1/command",
		`{"command":"brightness","params":{"level":55}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := sess.cmdCalls[0].params["level"].(float64); got != 55 {
		t.Errorf("level param = %v, want 55", got)
	}
}

func TestHandleEntityCommand_InvalidBody(t *testing.T) {
	sess := &fakeSession{}
	h := testServer(t, sess)

	tests := []struct {
		name string
		body string
	}{
		{"malformed JSON", `{not json`},
		{"missing command", `{"params":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, "/api/v1/entities/st_light_dev-1/command", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}

	if len(sess.cmdCalls) != 0 {
		t.Errorf("invalid bodies should not reach the session, got %d calls", len(sess.cmdCalls))
	}
}

func TestHandleListRooms(t *testing.T) {
	h := testServer(t, &fakeSession{rooms: []smartthings.Room{
		{RoomID: "room-1", Name: "Kitchen"},
	}})

	rec := doRequest(t, h, http.MethodGet, "/api/v1/rooms", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := decodeBody(t, rec)
	if count := body["count"].(float64); count != 1 {
		t.Errorf("count = %v, want 1", count)
	}
}

func TestHandleActivateScene(t *testing.T) {
	sess := &fakeSession{}
	h := testServer(t, sess)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/scenes/scene-1/activate", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(sess.scenesRun) != 1 || sess.scenesRun[0] != "scene-1" {
		t.Errorf("scenes run = %v, want [scene-1]", sess.scenesRun)
	}
}

func TestHandleActivateScene_UpstreamFailure(t *testing.T) {
	sess := &fakeSession{sceneErr: smartthings.ErrServer}
	h := testServer(t, sess)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/scenes/scene-1/activate", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}

	body := decodeBody(t, rec)
	if body["code"] != ErrCodeUpstream {
		t.Errorf("error code = %v, want %s", body["code"], ErrCodeUpstream)
	}
}

func TestHandleSetMode(t *testing.T) {
	sess := &fakeSession{}
	h := testServer(t, sess)

	rec := doRequest(t, h, http.MethodPut, "/api/v1/modes/current", `{"mode_id":"mode-night"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(sess.modesSet) != 1 || sess.modesSet[0] != "mode-night" {
		t.Errorf("modes set = %v, want [mode-night]", sess.modesSet)
	}
}

func TestHandleSetMode_MissingID(t *testing.T) {
	sess := &fakeSession{}
	h := testServer(t, sess)

	rec := doRequest(t, h, http.MethodPut, "/api/v1/modes/current", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(sess.modesSet) != 0 {
		t.Errorf("missing mode_id should not reach the session")
	}
}

func TestRequestIDHeader(t *testing.T) {
	h := testServer(t, &fakeSession{})

	rec := doRequest(t, h, http.MethodGet, "/api/v1/health", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	// Client-supplied IDs pass through untouched.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "trace-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "trace-123" {
		t.Errorf("X-Request-ID = %q, want trace-123", got)
	}
}

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/stbridge/internal/entity"
	"github.com/nerrad567/stbridge/internal/session"
)

// entityDTO is the JSON shape of an entity in API responses.
type entityDTO struct {
	ID         string         `json:"id"`
	DeviceID   string         `json:"device_id"`
	Kind       string         `json:"kind"`
	Name       string         `json:"name"`
	Area       string         `json:"area,omitempty"`
	Class      string         `json:"class,omitempty"`
	Unit       string         `json:"unit,omitempty"`
	Features   []string       `json:"features"`
	Attributes map[string]any `json:"attributes"`
}

func toEntityDTO(e *entity.Entity) entityDTO {
	return entityDTO{
		ID:         e.ID,
		DeviceID:   e.DeviceID,
		Kind:       string(e.Kind),
		Name:       e.Name,
		Area:       e.Area,
		Class:      e.DeviceClass,
		Unit:       e.Unit,
		Features:   e.Features,
		Attributes: e.Attributes,
	}
}

// handleListEntities returns all entities, sorted by ID.
func (s *Server) handleListEntities(w http.ResponseWriter, _ *http.Request) {
	entities := s.session.Entities()
	dtos := make([]entityDTO, 0, len(entities))
	for _, e := range entities {
		dtos = append(dtos, toEntityDTO(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entities": dtos,
		"count":    len(dtos),
	})
}

// handleGetEntity returns a single entity by ID.
func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e, ok := s.session.Entity(id)
	if !ok {
		writeNotFound(w, "entity not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, toEntityDTO(e))
}

// commandRequest is the body of POST /entities/{id}/command.
type commandRequest struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params"`
}

// handleEntityCommand dispatches a command to an entity through the
// session. The command outcome maps onto the HTTP status: unknown
// entity is 404, a command the entity cannot perform is 501, bad
// parameters are 400, and an upstream cloud failure is 502.
func (s *Server) handleEntityCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if req.Command == "" {
		writeBadRequest(w, "command is required")
		return
	}

	result := s.session.ExecuteCommand(r.Context(), id, req.Command, req.Params)
	switch result.Status {
	case session.CommandOK:
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	case session.CommandNotFound:
		writeNotFound(w, "entity not found: "+id)
	case session.CommandNotImplemented:
		writeError(w, http.StatusNotImplemented, ErrCodeNotImplemented,
			"entity does not support command: "+req.Command)
	case session.CommandBadRequest:
		writeBadRequest(w, errMessage(result.Err, "invalid command parameters"))
	case session.CommandFailed:
		writeError(w, http.StatusBadGateway, ErrCodeUpstream,
			errMessage(result.Err, "command delivery failed"))
	default:
		writeInternalError(w, "unexpected command result")
	}
}

// handleListDevices returns the raw discovered devices.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.session.Devices()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleListRooms returns the rooms of the configured location.
func (s *Server) handleListRooms(w http.ResponseWriter, _ *http.Request) {
	rooms := s.session.Rooms()
	writeJSON(w, http.StatusOK, map[string]any{
		"rooms": rooms,
		"count": len(rooms),
	})
}

// handleListScenes returns the scenes of the configured location.
func (s *Server) handleListScenes(w http.ResponseWriter, _ *http.Request) {
	scenes := s.session.Scenes()
	writeJSON(w, http.StatusOK, map[string]any{
		"scenes": scenes,
		"count":  len(scenes),
	})
}

// handleActivateScene executes a scene.
func (s *Server) handleActivateScene(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.session.ExecuteScene(r.Context(), id); err != nil {
		writeError(w, http.StatusBadGateway, ErrCodeUpstream,
			"scene execution failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleListModes returns the location modes.
func (s *Server) handleListModes(w http.ResponseWriter, _ *http.Request) {
	modes := s.session.Modes()
	writeJSON(w, http.StatusOK, map[string]any{
		"modes": modes,
		"count": len(modes),
	})
}

// modeRequest is the body of PUT /modes/current.
type modeRequest struct {
	ModeID string `json:"mode_id"`
}

// handleSetMode switches the location's current mode.
func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if req.ModeID == "" {
		writeBadRequest(w, "mode_id is required")
		return
	}

	if err := s.session.SetMode(r.Context(), req.ModeID); err != nil {
		writeError(w, http.StatusBadGateway, ErrCodeUpstream,
			"mode change failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// errMessage returns the error text, or the fallback when err is nil.
func errMessage(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	return err.Error()
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-miio/internal/audit"
	"github.com/nerrad567/gray-logic-miio/internal/device"
)

// createDeviceRequest is the body of POST /devices.
type createDeviceRequest struct {
	Name       string `json:"name"`
	IP         string `json:"ip"`
	Token      string `json:"token"`
	DeviceType string `json:"device_type"`
}

type renameDeviceRequest struct {
	Name string `json:"name"`
}

// invokeRequest is the body of POST /devices/{id}/invoke.
type invokeRequest struct {
	Method string   `json:"method"`
	Args   []string `json:"args"`
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	records, err := s.registry.ListDevices(r.Context())
	if err != nil {
		s.logger.Error("listing devices failed", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}

	summaries := make([]device.Summary, 0, len(records))
	for i := range records {
		summaries = append(summaries, records[i].Summary())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": summaries,
		"count":   len(summaries),
	})
}

// handleCreateDevice instantiates a device through the library and stores it.
// ip, token and device_type are not checked here; the library decides.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := device.ValidateName(req.Name); err != nil {
		writeDeviceError(w, err)
		return
	}

	ctx, cancel := s.callContext(r.Context())
	defer cancel()

	rec, err := s.registry.CreateDevice(ctx, req.Name, req.IP, req.Token, req.DeviceType)
	if err != nil {
		s.auditLog(audit.ActionCreate, "", false, map[string]any{
			"name": req.Name, "device_type": req.DeviceType, "error": err.Error(),
		})
		writeDeviceError(w, err)
		return
	}
	s.auditLog(audit.ActionCreate, rec.ID, true, map[string]any{
		"name": rec.Name, "device_type": req.DeviceType,
	})
	writeJSON(w, http.StatusCreated, rec.Summary())
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	rec, err := s.registry.GetDevice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec.Summary())
}

func (s *Server) handleRenameDevice(w http.ResponseWriter, r *http.Request) {
	var req renameDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.registry.RenameDevice(r.Context(), id, req.Name); err != nil {
		writeDeviceError(w, err)
		return
	}
	s.auditLog(audit.ActionRename, id, true, map[string]any{"name": req.Name})

	rec, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec.Summary())
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.registry.DeleteDevice(r.Context(), id); err != nil {
		writeDeviceError(w, err)
		return
	}
	s.auditLog(audit.ActionDelete, id, true, nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleListMethods returns the method table captured at creation.
func (s *Server) handleListMethods(w http.ResponseWriter, r *http.Request) {
	rec, err := s.registry.GetDevice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	methods := rec.Session.Methods()
	writeJSON(w, http.StatusOK, map[string]any{
		"methods": methods,
		"count":   len(methods),
	})
}

// handleInvoke calls a device method. Methods missing from the method
// table are still forwarded.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Method == "" {
		writeBadRequest(w, "method is required")
		return
	}

	ctx, cancel := s.callContext(r.Context())
	defer cancel()

	id := chi.URLParam(r, "id")
	result, err := s.registry.Invoke(ctx, id, req.Method, req.Args)
	if err != nil {
		if !errors.Is(err, device.ErrDeviceNotFound) {
			s.auditLog(audit.ActionInvoke, id, false, map[string]any{"method": req.Method, "error": err.Error()})
		}
		writeDeviceError(w, err)
		return
	}
	s.auditLog(audit.ActionInvoke, id, true, map[string]any{"method": req.Method})
	writeJSON(w, http.StatusOK, map[string]string{"result": result})
}

// handleExport returns the session in the persisted file format, token included.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	rec, err := s.registry.GetDevice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDeviceError(w, err)
		return
	}

	data, err := device.Marshal(rec.Session)
	if err != nil {
		s.logger.Error("encoding session failed", "id", rec.ID, "error", err)
		writeInternalError(w, "failed to encode session")
		return
	}

	name := device.GenerateSlug(rec.Name)
	if name == "" {
		name = rec.ID
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".json"))
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response
	w.Write(data)
}

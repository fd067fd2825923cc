// Package server exposes the studio operations over a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/easeaico/persona-studio/internal/catalog"
	"github.com/easeaico/persona-studio/internal/chat"
	"github.com/easeaico/persona-studio/internal/pipeline"
	"github.com/easeaico/persona-studio/internal/studio"
	"github.com/easeaico/persona-studio/internal/types"
	"github.com/easeaico/persona-studio/internal/vault"
)

// maxImportSize caps uploaded bundle archives.
const maxImportSize = 64 << 20

// SecretStore is the credential write surface.
type SecretStore interface {
	PutSecret(ctx context.Context, userID, vendor, secret string) error
	DeleteSecret(ctx context.Context, userID, vendor string) error
}

// Server routes HTTP requests to the studio service and chat engines.
type Server struct {
	service      *studio.Service
	catalog      *catalog.Catalog
	secrets      SecretStore
	historyLimit int

	mu      sync.Mutex
	engines map[string]*chat.Engine
}

// New creates a Server. secrets may be nil to disable credential endpoints.
func New(service *studio.Service, cat *catalog.Catalog, secrets SecretStore, historyLimit int) *Server {
	return &Server{
		service:      service,
		catalog:      cat,
		secrets:      secrets,
		historyLimit: historyLimit,
		engines:      make(map[string]*chat.Engine),
	}
}

// Routes registers all handlers on the given mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	mux.HandleFunc("GET /api/catalog", s.handleCatalog)

	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("GET /api/generate/status", s.handleGenerateStatus)

	mux.HandleFunc("POST /api/characters", s.handleSaveCharacter)
	mux.HandleFunc("GET /api/characters", s.handleListCharacters)
	mux.HandleFunc("GET /api/characters/{id}", s.handleGetCharacter)
	mux.HandleFunc("DELETE /api/characters/{id}", s.handleDeleteCharacter)
	mux.HandleFunc("POST /api/characters/{id}/lore", s.handleLore)
	mux.HandleFunc("GET /api/characters/{id}/export", s.handleExport)
	mux.HandleFunc("POST /api/characters/import", s.handleImport)
	mux.HandleFunc("POST /api/characters/similar", s.handleSimilar)

	mux.HandleFunc("POST /api/chat/sessions", s.handleEnsureSession)
	mux.HandleFunc("POST /api/chat/messages", s.handleSendMessage)
	mux.HandleFunc("POST /api/chat/branch", s.handleSwitchBranch)

	if s.secrets != nil {
		mux.HandleFunc("PUT /api/secrets", s.handlePutSecret)
		mux.HandleFunc("DELETE /api/secrets", s.handleDeleteSecret)
	}
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tags":      s.catalog.Tags,
		"platforms": s.catalog.Platforms,
		"models":    s.catalog.Models,
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req studio.GenerateRequest
	if !readJSON(w, r, &req) {
		return
	}
	record, err := s.service.Generate(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleGenerateStatus(w http.ResponseWriter, r *http.Request) {
	characterID := r.URL.Query().Get("character_id")
	pipe := s.service.Pipeline()
	status := map[string]any{"running": pipe.Running(characterID)}
	if err := pipe.LastError(characterID); err != nil {
		status["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, status)
}

type saveRequest struct {
	UserID    string                 `json:"user_id"`
	Status    string                 `json:"status"`
	Character *types.CharacterRecord `json:"character"`
}

func (s *Server) handleSaveCharacter(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if !readJSON(w, r, &req) {
		return
	}
	saved, err := s.service.Save(r.Context(), req.UserID, req.Character, req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleListCharacters(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.List(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetCharacter(w http.ResponseWriter, r *http.Request) {
	record, err := s.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleDeleteCharacter(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type loreRequest struct {
	UserID string `json:"user_id"`
	Model  string `json:"model"`
}

func (s *Server) handleLore(w http.ResponseWriter, r *http.Request) {
	var req loreRequest
	if !readJSON(w, r, &req) {
		return
	}
	record, err := s.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	cards, err := s.service.GenerateLore(r.Context(), req.UserID, req.Model, record)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cards)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.Export(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="character.zip"`)
	w.Write(data)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportSize))
	if err != nil {
		http.Error(w, "failed to read upload", http.StatusBadRequest)
		return
	}
	record, err := s.service.Import(r.Context(), userID, data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type similarRequest struct {
	UserID string `json:"user_id"`
	Prompt string `json:"prompt"`
	TopK   int    `json:"top_k"`
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	var req similarRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.TopK <= 0 {
		req.TopK = 5
	}
	records, err := s.service.FindSimilar(r.Context(), req.UserID, req.Prompt, req.TopK)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

type secretRequest struct {
	UserID string `json:"user_id"`
	Vendor string `json:"vendor"`
	Secret string `json:"secret,omitempty"`
}

func (s *Server) handlePutSecret(w http.ResponseWriter, r *http.Request) {
	var req secretRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := s.secrets.PutSecret(r.Context(), req.UserID, req.Vendor, req.Secret); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteSecret(w http.ResponseWriter, r *http.Request) {
	var req secretRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := s.secrets.DeleteSecret(r.Context(), req.UserID, req.Vendor); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err.Error())
	}
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, studio.ErrNameRequired),
		errors.Is(err, studio.ErrUnknownModel),
		errors.Is(err, pipeline.ErrPromptRequired),
		errors.Is(err, chat.ErrEmptyMessage):
		status = http.StatusBadRequest
	case errors.Is(err, pipeline.ErrRunning),
		errors.Is(err, chat.ErrResponding):
		status = http.StatusConflict
	case errors.Is(err, chat.ErrUnknownNode),
		errors.Is(err, chat.ErrNoSession),
		errors.Is(err, vault.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, pipeline.ErrGenerationFailed),
		errors.Is(err, chat.ErrReplyFailed):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err.Error())
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

package server

import (
	"net/http"

	"github.com/easeaico/persona-studio/internal/chat"
)

// engineFor returns the long-lived engine for a (character, user) pair,
// creating one on first use. Engines stay cached so the in-flight reply
// guard holds across requests.
func (s *Server) engineFor(characterID, userID string) *chat.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := characterID + "/" + userID
	engine, ok := s.engines[key]
	if !ok {
		engine = chat.NewEngine(s.service.Gateway(), s.historyLimit)
		s.engines[key] = engine
	}
	return engine
}

type ensureSessionRequest struct {
	UserID      string `json:"user_id"`
	CharacterID string `json:"character_id"`
	DisplayName string `json:"display_name,omitempty"`
}

func (s *Server) handleEnsureSession(w http.ResponseWriter, r *http.Request) {
	var req ensureSessionRequest
	if !readJSON(w, r, &req) {
		return
	}
	character, err := s.service.Get(r.Context(), req.CharacterID)
	if err != nil {
		writeError(w, err)
		return
	}
	engine := s.engineFor(req.CharacterID, req.UserID)
	engine.SetDisplayName(req.DisplayName)
	session, err := engine.EnsureSession(r.Context(), character, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":  session.ID,
		"active_node": session.ActiveNodeID,
		"path":        engine.ActivePath(),
	})
}

type sendMessageRequest struct {
	UserID         string `json:"user_id"`
	CharacterID    string `json:"character_id"`
	Model          string `json:"model"`
	Text           string `json:"text"`
	ResponseLength string `json:"response_length,omitempty"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !readJSON(w, r, &req) {
		return
	}
	adapter, err := s.service.AdapterFor(r.Context(), req.UserID, req.Model)
	if err != nil {
		writeError(w, err)
		return
	}
	engine := s.engineFor(req.CharacterID, req.UserID)
	reply, err := engine.SendMessage(r.Context(), adapter, req.Model, req.Text, req.ResponseLength)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reply": reply,
		"path":  engine.ActivePath(),
	})
}

type switchBranchRequest struct {
	UserID      string `json:"user_id"`
	CharacterID string `json:"character_id"`
	NodeID      string `json:"node_id"`
}

func (s *Server) handleSwitchBranch(w http.ResponseWriter, r *http.Request) {
	var req switchBranchRequest
	if !readJSON(w, r, &req) {
		return
	}
	engine := s.engineFor(req.CharacterID, req.UserID)
	if err := engine.SwitchBranch(r.Context(), req.NodeID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": engine.ActivePath()})
}

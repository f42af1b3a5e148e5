package server

import (
	"fmt"
	"net/http"

	"github.com/lox/settlersforbots/internal/game"
	"github.com/lox/settlersforbots/internal/session"
)

// TokenHeader carries a player credential.
const TokenHeader = "X-PVP-Token"

func (s *Server) roomSession(r *http.Request) (session.Session, error) {
	return s.services.Rooms.Authenticate(r.Header.Get(TokenHeader), r.PathValue("id"))
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"rooms": s.services.Rooms.List()})
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomName string `json:"room_name"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.services.Rooms.Create(req.RoomName))
}

func (s *Server) handleRoomStatus(w http.ResponseWriter, r *http.Request) {
	v, err := s.services.Rooms.Status(r.PathValue("id"), r.Header.Get(TokenHeader))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserName *string `json:"user_name"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.UserName == nil {
		s.writeError(w, r, fmt.Errorf("%w: 'user_name' is required", errBadRequest))
		return
	}
	joined, err := s.services.Rooms.Join(r.PathValue("id"), *req.UserName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, joined)
}

func (s *Server) handleLeaveRoom(w http.ResponseWriter, r *http.Request) {
	sess, err := s.roomSession(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.services.Rooms.Leave(sess)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room": v})
}

func (s *Server) handleStartRoom(w http.ResponseWriter, r *http.Request) {
	sess, err := s.roomSession(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := s.services.Rooms.Start(r.Context(), sess)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"game_id": id})
}

func (s *Server) handleRoomGame(w http.ResponseWriter, r *http.Request) {
	sess, err := s.roomSession(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	index, err := parseIndex(r.URL.Query().Get("state"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	gameID, e, err := s.services.Rooms.Game(r.Context(), sess, index)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.view(w, r, gameID, e)
}

func (s *Server) handleRoomAction(w http.ResponseWriter, r *http.Request) {
	sess, err := s.roomSession(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		Action        *game.Action `json:"action"`
		ExpectedIndex *int         `json:"expected_state_index"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err := s.services.Rooms.Submit(r.Context(), sess, req.Action, req.ExpectedIndex)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	gameID, err := s.services.Rooms.GameID(sess.RoomID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.view(w, r, gameID, e)
}

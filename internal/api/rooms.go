package api

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/pairroom/internal/domain"
	"github.com/ashureev/pairroom/internal/identity"
	"github.com/ashureev/pairroom/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	// RoomCodeAlphabet omits characters that are easy to misread (0/O, 1/I).
	RoomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	RoomCodeLength   = 6

	DefaultRoomTTL = 4 * time.Hour

	maxCodeAttempts = 10
	maxRoomCapacity = 8
	maxTitleLength  = 200
)

// GenerateRoomCode returns a random human-shareable room code.
func GenerateRoomCode() (string, error) {
	var sb strings.Builder
	sb.Grow(RoomCodeLength)
	limit := big.NewInt(int64(len(RoomCodeAlphabet)))
	for i := 0; i < RoomCodeLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}
		sb.WriteByte(RoomCodeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type createRoomRequest struct {
	Title    string `json:"title"`
	MaxUsers int    `json:"maxUsers"`
}

type createRoomResponse struct {
	RoomCode string       `json:"roomCode"`
	Room     *domain.Room `json:"room"`
}

// CreateRoom creates a room hosted by the calling user.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	hostID := identity.UserIDFromContext(r.Context())

	var req createRoomRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if len(req.Title) > maxTitleLength {
		Error(w, http.StatusBadRequest, "title is too long")
		return
	}
	if req.MaxUsers == 0 {
		req.MaxUsers = h.opts.DefaultCapacity
	}
	if req.MaxUsers < 1 || req.MaxUsers > h.opts.MaxCapacity {
		Error(w, http.StatusBadRequest, fmt.Sprintf("maxUsers must be between 1 and %d", h.opts.MaxCapacity))
		return
	}

	now := h.opts.Now().UTC()
	rec := &domain.Room{
		ID:        uuid.NewString(),
		Title:     req.Title,
		HostID:    hostID,
		IsActive:  true,
		MaxUsers:  req.MaxUsers,
		CreatedAt: now,
		ExpiresAt: now.Add(h.opts.RoomTTL),
	}

	for attempt := 1; ; attempt++ {
		code, err := h.newCode()
		if err != nil {
			slog.Error("Failed to generate room code", "error", err)
			Error(w, http.StatusInternalServerError, "failed to create room")
			return
		}
		rec.RoomCode = code

		err = h.repo.CreateRoom(r.Context(), rec)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrConflict) {
			slog.Error("Failed to create room", "error", err, "user_id", hostID)
			Error(w, http.StatusInternalServerError, "failed to create room")
			return
		}
		if attempt == maxCodeAttempts {
			slog.Error("Room code space exhausted", "attempts", attempt, "user_id", hostID)
			Error(w, http.StatusInternalServerError, "failed to generate unique room code")
			return
		}
	}

	slog.Info("Room created",
		"room_code", rec.RoomCode,
		"user_id", hostID,
		"max_users", rec.MaxUsers,
		"remote_ip", identity.IPFromRequest(r))

	JSON(w, http.StatusCreated, createRoomResponse{RoomCode: rec.RoomCode, Room: rec})
}

type roomResponse struct {
	Room         *domain.Room         `json:"room"`
	Participants []domain.Participant `json:"participants"`
}

// findLiveRoom loads the room for {code} and writes 404/410 when it cannot be
// joined. It returns nil after writing an error response.
func (h *Handler) findLiveRoom(w http.ResponseWriter, r *http.Request) *domain.Room {
	code := normalizeCode(chi.URLParam(r, "code"))
	rec, err := h.repo.FindRoom(r.Context(), code)
	if err != nil {
		slog.Error("Failed to fetch room", "error", err, "room_code", code)
		Error(w, http.StatusInternalServerError, "failed to fetch room")
		return nil
	}
	if rec == nil {
		Error(w, http.StatusNotFound, "Room not found")
		return nil
	}
	if !rec.IsActive {
		Error(w, http.StatusGone, "Room is no longer active")
		return nil
	}
	if rec.IsExpired(h.opts.Now()) {
		Error(w, http.StatusGone, "Room has expired")
		return nil
	}
	return rec
}

func (h *Handler) liveParticipants(roomCode string) []domain.Participant {
	if h.registry == nil {
		return []domain.Participant{}
	}
	if s := h.registry.Get(roomCode); s != nil {
		return s.Participants()
	}
	return []domain.Participant{}
}

// GetRoom returns a room and the participants currently connected to it.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	rec := h.findLiveRoom(w, r)
	if rec == nil {
		return
	}
	JSON(w, http.StatusOK, roomResponse{Room: rec, Participants: h.liveParticipants(rec.RoomCode)})
}

type joinRoomResponse struct {
	Message  string      `json:"message"`
	RoomCode string      `json:"roomCode"`
	Role     domain.Role `json:"role"`
}

// JoinRoom checks whether the calling user may enter a room before the client
// opens its realtime connection. Capacity counts distinct connected users.
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	rec := h.findLiveRoom(w, r)
	if rec == nil {
		return
	}
	userID := identity.UserIDFromContext(r.Context())
	resp := joinRoomResponse{RoomCode: rec.RoomCode, Role: domain.RoleFor(rec, userID)}

	users := make(map[string]struct{})
	for _, p := range h.liveParticipants(rec.RoomCode) {
		users[p.UserID] = struct{}{}
	}
	if _, ok := users[userID]; ok {
		resp.Message = "Already in room"
		JSON(w, http.StatusOK, resp)
		return
	}
	if len(users) >= rec.Capacity() {
		Error(w, http.StatusConflict, "Room is full")
		return
	}

	resp.Message = "Successfully joined room"
	JSON(w, http.StatusOK, resp)
}

// ListSessions returns the interview sessions recorded for a room. Inactive
// rooms are included so past results stay readable.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	code := normalizeCode(chi.URLParam(r, "code"))
	rec, err := h.repo.FindRoom(r.Context(), code)
	if err != nil {
		slog.Error("Failed to fetch room", "error", err, "room_code", code)
		Error(w, http.StatusInternalServerError, "failed to fetch sessions")
		return
	}
	if rec == nil {
		Error(w, http.StatusNotFound, "Room not found")
		return
	}

	sessions, err := h.repo.ListInterviewSessions(r.Context(), rec.ID)
	if err != nil {
		slog.Error("Failed to list interview sessions", "error", err, "room_code", code)
		Error(w, http.StatusInternalServerError, "failed to fetch sessions")
		return
	}
	if sessions == nil {
		sessions = []*domain.InterviewSession{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/pairroom/internal/domain"
	"github.com/ashureev/pairroom/internal/identity"
	"github.com/ashureev/pairroom/internal/questions"
	"github.com/ashureev/pairroom/internal/room"
	"github.com/ashureev/pairroom/internal/store"
	"github.com/go-chi/chi/v5"
)

type fakeRepo struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	rooms    map[string]*domain.Room
	sessions map[string][]*domain.InterviewSession
	pingErr  error
	findErr  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:    make(map[string]*domain.User),
		rooms:    make(map[string]*domain.Room),
		sessions: make(map[string][]*domain.InterviewSession),
	}
}

func (f *fakeRepo) FindRoom(_ context.Context, code string) (*domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	rec, ok := f.rooms[code]
	if !ok {
		return nil, nil
	}
	copy := *rec
	return &copy, nil
}

func (f *fakeRepo) FindUser(_ context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	copy := *user
	return &copy, nil
}

func (f *fakeRepo) FindUserByEmail(_ context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			copy := *u
			return &copy, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) CreateUser(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == user.Email {
			return store.ErrConflict
		}
	}
	copy := *user
	f.users[user.ID] = &copy
	return nil
}

func (f *fakeRepo) CreateRoom(_ context.Context, rec *domain.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rooms[rec.RoomCode]; ok {
		return store.ErrConflict
	}
	copy := *rec
	f.rooms[rec.RoomCode] = &copy
	return nil
}

func (f *fakeRepo) UpdateRoomActive(_ context.Context, roomID string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.rooms {
		if rec.ID == roomID {
			rec.IsActive = active
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeRepo) FindExpiredActiveRooms(context.Context, time.Time) ([]*domain.Room, error) {
	return nil, nil
}

func (f *fakeRepo) CreateInterviewSession(_ context.Context, s *domain.InterviewSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.RoomID] = append(f.sessions[s.RoomID], s)
	return nil
}

func (f *fakeRepo) ListInterviewSessions(_ context.Context, roomID string) ([]*domain.InterviewSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[roomID], nil
}

func (f *fakeRepo) Ping(context.Context) error { return f.pingErr }
func (f *fakeRepo) Close() error               { return nil }

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type testServer struct {
	repo     *fakeRepo
	registry *room.Registry
	handler  *Handler
	router   http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	catalog, err := questions.Load()
	if err != nil {
		t.Fatalf("questions.Load: %v", err)
	}
	repo := newFakeRepo()
	repo.users["host"] = &domain.User{ID: "host", Name: "Ada", Email: "ada@example.com"}
	repo.users["guest"] = &domain.User{ID: "guest", Name: "Grace", Email: "grace@example.com"}
	repo.users["third"] = &domain.User{ID: "third", Name: "Linus", Email: "linus@example.com"}

	registry := room.NewRegistry(room.RegistryOptions{})
	t.Cleanup(registry.Shutdown)

	h := NewHandler(repo, registry, catalog, Options{Now: func() time.Time { return testNow }})
	r := chi.NewRouter()
	r.Use(identity.Middleware(repo))
	h.RegisterRoutes(r)
	NewHealthHandler(repo, registry, nil).RegisterHealth(r)

	return &testServer{repo: repo, registry: registry, handler: h, router: r}
}

func (s *testServer) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set(identity.HeaderName, userID)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
}

func (s *testServer) addRoom(code string, active bool, expiresAt time.Time) *domain.Room {
	rec := &domain.Room{
		ID: "room-" + code, RoomCode: code, HostID: "host", IsActive: active,
		MaxUsers: 2, CreatedAt: testNow.Add(-time.Hour), ExpiresAt: expiresAt,
	}
	s.repo.rooms[code] = rec
	return rec
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestGenerateRoomCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := GenerateRoomCode()
		if err != nil {
			t.Fatalf("GenerateRoomCode: %v", err)
		}
		if len(code) != RoomCodeLength {
			t.Fatalf("code %q has length %d", code, len(code))
		}
		for _, c := range code {
			if !strings.ContainsRune(RoomCodeAlphabet, c) {
				t.Fatalf("code %q contains %q outside the alphabet", code, c)
			}
		}
		seen[code] = true
	}
	if len(seen) < 190 {
		t.Fatalf("expected mostly unique codes, got %d distinct of 200", len(seen))
	}
}

func TestCreateUser(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/users", "", map[string]string{"name": " Barbara ", "email": "Barbara@Example.com"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var created domain.User
	decode(t, w, &created)
	if created.ID == "" || created.Name != "Barbara" || created.Email != "barbara@example.com" {
		t.Fatalf("unexpected user %+v", created)
	}

	w = s.do(t, http.MethodPost, "/api/users", "", map[string]string{"name": "Other", "email": "barbara@example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("existing email status = %d", w.Code)
	}
	var existing domain.User
	decode(t, w, &existing)
	if existing.ID != created.ID {
		t.Fatalf("expected existing user %s, got %s", created.ID, existing.ID)
	}

	for _, body := range []string{`{"name":"x"}`, `{"email":"not-an-email"}`, `{`} {
		req := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(body))
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, w.Code)
		}
	}
}

func TestCreateRoom(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/rooms", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d, want 401", w.Code)
	}

	w = s.do(t, http.MethodPost, "/api/rooms", "host", map[string]interface{}{"title": "Backend loop"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp createRoomResponse
	decode(t, w, &resp)
	if resp.RoomCode == "" || resp.Room.RoomCode != resp.RoomCode {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Room.HostID != "host" || !resp.Room.IsActive || resp.Room.MaxUsers != domain.DefaultMaxUsers {
		t.Fatalf("unexpected room %+v", resp.Room)
	}
	if !resp.Room.ExpiresAt.Equal(testNow.Add(DefaultRoomTTL)) {
		t.Fatalf("ExpiresAt = %v, want %v", resp.Room.ExpiresAt, testNow.Add(DefaultRoomTTL))
	}
	if _, ok := s.repo.rooms[resp.RoomCode]; !ok {
		t.Fatal("room was not persisted")
	}

	w = s.do(t, http.MethodPost, "/api/rooms", "host", map[string]interface{}{"maxUsers": 99})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("oversized room status = %d, want 400", w.Code)
	}
}

func TestCreateRoom_RetriesTakenCodes(t *testing.T) {
	s := newTestServer(t)
	s.addRoom("TAKEN1", true, testNow.Add(time.Hour))

	codes := []string{"TAKEN1", "TAKEN1", "FRESH2"}
	s.handler.newCode = func() (string, error) {
		code := codes[0]
		codes = codes[1:]
		return code, nil
	}

	w := s.do(t, http.MethodPost, "/api/rooms", "host", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp createRoomResponse
	decode(t, w, &resp)
	if resp.RoomCode != "FRESH2" {
		t.Fatalf("RoomCode = %s, want FRESH2", resp.RoomCode)
	}
}

func TestCreateRoom_GivesUpAfterMaxAttempts(t *testing.T) {
	s := newTestServer(t)
	s.addRoom("TAKEN1", true, testNow.Add(time.Hour))

	calls := 0
	s.handler.newCode = func() (string, error) {
		calls++
		return "TAKEN1", nil
	}

	w := s.do(t, http.MethodPost, "/api/rooms", "host", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if calls != maxCodeAttempts {
		t.Fatalf("attempts = %d, want %d", calls, maxCodeAttempts)
	}
}

func TestGetRoom(t *testing.T) {
	s := newTestServer(t)
	s.addRoom("LIVE22", true, testNow.Add(time.Hour))
	s.addRoom("DEAD22", false, testNow.Add(time.Hour))
	s.addRoom("OLD222", true, testNow.Add(-time.Minute))

	session, _ := s.registry.GetOrCreate("LIVE22")
	if _, err := session.Join(domain.Participant{
		ConnectionID: "c1", UserID: "host", Name: "Ada", Role: domain.RoleInterviewer, JoinedAt: testNow,
	}, 2, nil); err != nil {
		t.Fatalf("Join: %v", err)
	}

	tests := []struct {
		path string
		want int
	}{
		{"/api/rooms/LIVE22", http.StatusOK},
		{"/api/rooms/live22", http.StatusOK},
		{"/api/rooms/NOPE22", http.StatusNotFound},
		{"/api/rooms/DEAD22", http.StatusGone},
		{"/api/rooms/OLD222", http.StatusGone},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := s.do(t, http.MethodGet, tt.path, "", nil)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want != http.StatusOK {
				return
			}
			var resp roomResponse
			decode(t, w, &resp)
			if len(resp.Participants) != 1 || resp.Participants[0].UserID != "host" {
				t.Fatalf("participants = %+v", resp.Participants)
			}
		})
	}
}

func TestJoinRoom(t *testing.T) {
	s := newTestServer(t)
	s.addRoom("JOIN22", true, testNow.Add(time.Hour))

	w := s.do(t, http.MethodPost, "/api/rooms/JOIN22/join", "guest", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("empty room status = %d", w.Code)
	}
	var resp joinRoomResponse
	decode(t, w, &resp)
	if resp.Role != domain.RoleInterviewee {
		t.Fatalf("Role = %s, want interviewee", resp.Role)
	}

	session, _ := s.registry.GetOrCreate("JOIN22")
	for i, id := range []string{"host", "guest"} {
		p := domain.Participant{ConnectionID: "c" + id, UserID: id, Name: id, JoinedAt: testNow}
		if _, err := session.Join(p, 2, nil); err != nil {
			t.Fatalf("Join %d: %v", i, err)
		}
	}

	w = s.do(t, http.MethodPost, "/api/rooms/JOIN22/join", "host", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("rejoin status = %d", w.Code)
	}
	decode(t, w, &resp)
	if resp.Message != "Already in room" || resp.Role != domain.RoleInterviewer {
		t.Fatalf("unexpected rejoin response %+v", resp)
	}

	w = s.do(t, http.MethodPost, "/api/rooms/JOIN22/join", "third", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("full room status = %d, want 409", w.Code)
	}
}

func TestListSessions(t *testing.T) {
	s := newTestServer(t)
	rec := s.addRoom("PAST22", false, testNow.Add(-time.Hour))
	s.repo.sessions[rec.ID] = []*domain.InterviewSession{{ID: "s1", RoomID: rec.ID, Code: "print(1)"}}

	w := s.do(t, http.MethodGet, "/api/rooms/PAST22/sessions", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Sessions []domain.InterviewSession `json:"sessions"`
	}
	decode(t, w, &resp)
	if len(resp.Sessions) != 1 || resp.Sessions[0].ID != "s1" {
		t.Fatalf("sessions = %+v", resp.Sessions)
	}

	if w := s.do(t, http.MethodGet, "/api/rooms/NOPE22/sessions", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing room status = %d", w.Code)
	}

	s.repo.findErr = errors.New("db down")
	if w := s.do(t, http.MethodGet, "/api/rooms/PAST22/sessions", "", nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("store failure status = %d", w.Code)
	}
}

func TestQuestions(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/questions?category=Dynamic+Programming", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var list struct {
		Questions []domain.Question `json:"questions"`
	}
	decode(t, w, &list)
	ids := make([]string, 0, len(list.Questions))
	for _, q := range list.Questions {
		ids = append(ids, q.ID)
	}
	sort.Strings(ids)
	if strings.Join(ids, ",") != "climbing-stairs,maximum-subarray" {
		t.Fatalf("ids = %v", ids)
	}

	w = s.do(t, http.MethodGet, "/api/questions/random?difficulty=medium", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("random status = %d", w.Code)
	}
	var one struct {
		Question domain.Question `json:"question"`
	}
	decode(t, w, &one)
	if one.Question.ID != "maximum-subarray" {
		t.Fatalf("random = %s", one.Question.ID)
	}

	if w := s.do(t, http.MethodGet, "/api/questions/random?difficulty=hard", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("no-match status = %d, want 404", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/questions?difficulty=extreme", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad difficulty status = %d, want 400", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/questions?limit=0", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d, want 400", w.Code)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	s.registry.GetOrCreate("ROOM22")

	w := s.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]interface{}
	decode(t, w, &body)
	if body["status"] != "healthy" || body["rooms"] != float64(1) {
		t.Fatalf("unexpected body %v", body)
	}

	s.repo.pingErr = errors.New("db down")
	w = s.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded status = %d, want 503", w.Code)
	}
}

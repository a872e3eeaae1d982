package chatterhub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func roomServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rooms", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]RoomInfo{
			{Name: "general", Private: false},
			{Name: "ops", Private: true},
		})
	})
	mux.HandleFunc("GET /check_room/{room}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("room") != "general" {
			json.NewEncoder(w).Encode(RoomStatus{Exists: false})
			return
		}
		json.NewEncoder(w).Encode(RoomStatus{Exists: true, UserCount: 3})
	})
	mux.HandleFunc("POST /create_room", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name      string `json:"name"`
			IsPrivate bool   `json:"isPrivate"`
			Key       string `json:"key"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Name == "general" {
			json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "Room already exists"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true, "message": "Room created"})
	})
	mux.HandleFunc("POST /join_private", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Room string `json:"room"`
			Key  string `json:"key"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Key != "sesame" {
			json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "Invalid key"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true, "message": "Access granted"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRooms(t *testing.T) {
	srv := roomServer(t)
	client := NewClient(srv.URL)

	rooms, err := client.Rooms(context.Background())
	if err != nil {
		t.Fatalf("Rooms: %v", err)
	}
	if len(rooms) != 2 || rooms[0].Name != "general" || !rooms[1].Private {
		t.Errorf("Rooms() = %+v", rooms)
	}
}

func TestCheckRoom(t *testing.T) {
	srv := roomServer(t)
	client := NewClient(srv.URL)
	ctx := context.Background()

	status, err := client.CheckRoom(ctx, "general")
	if err != nil {
		t.Fatalf("CheckRoom: %v", err)
	}
	if !status.Exists || status.UserCount != 3 {
		t.Errorf("CheckRoom(general) = %+v", status)
	}

	status, err = client.CheckRoom(ctx, "ghost-town")
	if err != nil {
		t.Fatalf("CheckRoom absent: %v", err)
	}
	if status.Exists {
		t.Error("absent room reported as existing")
	}
}

func TestCreateRoom(t *testing.T) {
	srv := roomServer(t)
	client := NewClient(srv.URL)
	ctx := context.Background()

	if err := client.CreateRoom(ctx, "new-room", false, ""); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	err := client.CreateRoom(ctx, "general", false, "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError for duplicate room, got %v", err)
	}
	if apiErr.Message != "Room already exists" {
		t.Errorf("unexpected message %q", apiErr.Message)
	}
}

func TestJoinPrivate(t *testing.T) {
	srv := roomServer(t)
	client := NewClient(srv.URL)
	ctx := context.Background()

	if err := client.JoinPrivate(ctx, "ops", "sesame"); err != nil {
		t.Fatalf("JoinPrivate with valid key: %v", err)
	}

	err := client.JoinPrivate(ctx, "ops", "wrong")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError for bad key, got %v", err)
	}
}

func TestClientHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL)
	_, err := client.Rooms(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError for 500, got %v", err)
	}
	if apiErr.Code != "500" {
		t.Errorf("code = %q", apiErr.Code)
	}
}

package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"corridor-server/internal/character"
	"corridor-server/internal/groups"
	"corridor-server/internal/shared/errors"
)

type fakeCharacters map[int64]*character.Character

func (f fakeCharacters) Get(_ context.Context, userID int64) (*character.Character, error) {
	if c, ok := f[userID]; ok {
		return c, nil
	}
	return nil, errors.NotFoundf("user %d has no character", userID)
}

func TestVoteRejectsBadInput(t *testing.T) {
	group := int64(4)
	h := NewGroupHandler(
		groups.NewService(nil, nil, 0, slog.New(slog.NewTextHandler(io.Discard, nil))),
		fakeCharacters{1: {UserID: 1, GroupID: &group}},
	)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/users/{user_id}/votes/{session_id}", h.Vote)

	const session = "0b6b7a0e-1f7d-4a4e-9d8a-3f5c2f9a1b11"
	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"no character", "/api/users/2/votes/" + session, `{"vote":true}`, http.StatusNotFound},
		{"bad user id", "/api/users/abc/votes/" + session, `{"vote":true}`, http.StatusBadRequest},
		{"bad session", "/api/users/1/votes/not-a-uuid", `{"vote":true}`, http.StatusBadRequest},
		{"missing vote", "/api/users/1/votes/" + session, `{}`, http.StatusBadRequest},
		{"broken json", "/api/users/1/votes/" + session, `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body)))
			if rec.Code != tt.want {
				t.Fatalf("status=%d want=%d body=%s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

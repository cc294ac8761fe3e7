package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"community-hub/domain"
)

func TestClient_Register(t *testing.T) {
	req := require.New(t)

	t.Run("sends credentials and returns the token", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req.Equal(http.MethodPost, r.Method)
			req.Equal("/api/register", r.URL.Path)
			req.Equal("application/json", r.Header.Get("Content-Type"))

			var body RegisterRequest
			req.NoError(json.NewDecoder(r.Body).Decode(&body))
			req.Equal("zoe@example.com", body.Email)
			req.Equal("Zoe", body.DisplayName)

			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(TokenResponse{Token: "tok-123"})
		}))
		defer ts.Close()

		client := NewClient(ts.URL + "/api")
		resp, err := client.Register(context.Background(), RegisterRequest{
			Email:       "zoe@example.com",
			DisplayName: "Zoe",
			Password:    "ComplexPass123!",
		})

		req.NoError(err)
		req.Equal("tok-123", resp.Token)
	})

	t.Run("rejects a broken email without calling the server", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("server should not be reached")
		}))
		defer ts.Close()

		client := NewClient(ts.URL + "/api")
		_, err := client.Register(context.Background(), RegisterRequest{
			Email:       "not-an-email",
			DisplayName: "Zoe",
			Password:    "ComplexPass123!",
		})

		req.ErrorContains(err, "invalid register request")
	})
}

func TestClient_HistoryBuildsQueryAndSendsBearer(t *testing.T) {
	req := require.New(t)

	before := time.Date(2026, 3, 14, 10, 30, 0, 123456789, time.UTC)
	stored := []domain.Message{
		{ID: uuid.New(), CommunityID: "cs-101", DisplayName: "Ben", Text: "second"},
		{ID: uuid.New(), CommunityID: "cs-101", DisplayName: "Zoe", Text: "first"},
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req.Equal("/api/history", r.URL.Path)
		req.Equal("Bearer tok-123", r.Header.Get("Authorization"))
		req.Equal("cs-101", r.URL.Query().Get("community"))
		req.Equal("25", r.URL.Query().Get("limit"))
		req.Equal(before.Format(time.RFC3339Nano), r.URL.Query().Get("before"))

		_ = json.NewEncoder(w).Encode(stored)
	}))
	defer ts.Close()

	client := NewClient(ts.URL + "/api")
	client.SetToken("tok-123")

	messages, err := client.History(context.Background(), "cs-101", 25, &before)

	req.NoError(err)
	req.Len(messages, 2)
	req.Equal("second", messages[0].Text)
	req.Equal("first", messages[1].Text)
}

func TestClient_SearchPassesTheRawQuery(t *testing.T) {
	req := require.New(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req.Equal("/api/search", r.URL.Path)
		req.Equal("midterm deadline --community cs-101", r.URL.Query().Get("q"))
		_ = json.NewEncoder(w).Encode([]domain.Message{})
	}))
	defer ts.Close()

	client := NewClient(ts.URL + "/api")
	client.SetToken("tok-123")

	messages, err := client.Search(context.Background(), "midterm deadline --community cs-101")

	req.NoError(err)
	req.Empty(messages)
}

func TestClient_SurfacesServerErrorMessages(t *testing.T) {
	req := require.New(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "invalid credentials"})
	}))
	defer ts.Close()

	client := NewClient(ts.URL + "/api")
	_, err := client.Login(context.Background(), LoginRequest{
		Email:    "zoe@example.com",
		Password: "WrongPass123!",
	})

	req.ErrorContains(err, "api error (status 401): invalid credentials")
}

func TestAttachImage(t *testing.T) {
	req := require.New(t)

	t.Run("turns a png into a data uri", func(t *testing.T) {
		// Magic bytes are enough for the sniffer, no full image needed.
		pngHeader := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
		path := filepath.Join(t.TempDir(), "shot.png")
		req.NoError(os.WriteFile(path, pngHeader, 0o600))

		uri, err := AttachImage(path)

		req.NoError(err)
		req.True(strings.HasPrefix(uri, "data:image/png;base64,"))
	})

	t.Run("rejects a text file pretending to be an image", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "notes.png")
		req.NoError(os.WriteFile(path, []byte("just some notes"), 0o600))

		_, err := AttachImage(path)

		req.ErrorContains(err, "only images can be attached")
	})
}

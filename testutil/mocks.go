package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"google.golang.org/api/option"
)

// MockYouTubeServer creates a test server that mocks YouTube Data API responses.
type MockYouTubeServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockYouTubeServer creates a new mock YouTube Data API server
func NewMockYouTubeServer(t *testing.T) *MockYouTubeServer {
	t.Helper()
	m := &MockYouTubeServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// ClientOptions point a youtube/v3 service at the mock.
func (m *MockYouTubeServer) ClientOptions() []option.ClientOption {
	return []option.ClientOption{
		option.WithHTTPClient(m.Client()),
		option.WithEndpoint(m.URL + "/"),
	}
}

func writeItems(w http.ResponseWriter, items any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"items": items}) //nolint:errcheck // test mock response
}

// MockLiveSearch answers eventType=live searches with one live video for
// channelID and no items for any other channel.
func (m *MockYouTubeServer) MockLiveSearch(channelID, videoID, title string) {
	m.Handlers["/youtube/v3/search"] = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("channelId") != channelID {
			writeItems(w, []any{})
			return
		}
		writeItems(w, []map[string]any{{
			"id":      map[string]string{"kind": "youtube#video", "videoId": videoID},
			"snippet": map[string]string{"title": title},
		}})
	}
}

// MockConcurrentViewers answers videos.list with the live audience of videoID.
func (m *MockYouTubeServer) MockConcurrentViewers(videoID string, viewers int) {
	m.Handlers["/youtube/v3/videos"] = func(w http.ResponseWriter, r *http.Request) {
		writeItems(w, []map[string]any{{
			"id": videoID,
			"liveStreamingDetails": map[string]any{
				// uint64 fields travel as JSON strings.
				"concurrentViewers": strconv.Itoa(viewers),
			},
		}})
	}
}

// MockError answers path with a googleapi error body.
func (m *MockYouTubeServer) MockError(path string, code int, reason string) {
	m.Handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test mock response
			"error": map[string]any{
				"code":    code,
				"message": reason,
				"errors":  []map[string]string{{"reason": reason, "message": reason}},
			},
		})
	}
}

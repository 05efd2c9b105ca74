package deadrat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("secret-key", srv.URL+"/api/bot", testLogger())
}

func TestClient_FetchUpdates_Success(t *testing.T) {
	var gotPath, gotKey, gotAfter string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-api-key")
		gotAfter = r.URL.Query().Get("after_ts")

		json.NewEncoder(w).Encode([]Update{
			{ID: "m1", Text: "one", Timestamp: 1.5},
			{ID: "m2", Text: "two", Timestamp: 2.5},
		})
	}))

	updates, err := client.FetchUpdates(context.Background(), 1.25, time.Second)
	require.NoError(t, err)

	assert.Equal(t, "/api/bot/updates", gotPath)
	assert.Equal(t, "secret-key", gotKey)
	assert.Equal(t, "1.25", gotAfter)

	require.Len(t, updates, 2)
	assert.Equal(t, "m1", updates[0].ID)
	assert.Equal(t, 2.5, updates[1].Timestamp)
}

func TestClient_FetchUpdates_AuthFailure(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := client.FetchUpdates(context.Background(), 0, time.Second)
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
}

func TestClient_FetchUpdates_ServerError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "try later", http.StatusServiceUnavailable)
	}))

	_, err := client.FetchUpdates(context.Background(), 0, time.Second)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
	assert.Equal(t, "try later", statusErr.Body)
}

func TestClient_FetchUpdates_Timeout(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))

	_, err := client.FetchUpdates(context.Background(), 0, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrPollTimeout)
}

func TestClient_FetchUpdates_ConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL + "/api/bot"
	srv.Close()

	client := NewClient("secret-key", baseURL, testLogger())

	_, err := client.FetchUpdates(context.Background(), 0, time.Second)
	assert.ErrorIs(t, err, ErrConnection)
}

func TestClient_FetchUpdates_CancelledContext(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := client.FetchUpdates(ctx, 0, 10*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_SendMessage_Success(t *testing.T) {
	var gotBody map[string]string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/bot/send", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(sendResponse{ID: "s1", Timestamp: 42.5})
	}))

	sent, err := client.SendMessage(context.Background(), "hello", "", "m9")
	require.NoError(t, err)

	assert.Equal(t, "s1", sent.ID)
	assert.Equal(t, 42.5, sent.Timestamp)
	assert.Equal(t, "hello", sent.Text)

	assert.Equal(t, "hello", gotBody["text"])
	assert.Equal(t, "m9", gotBody["replyTo"])
	_, hasImage := gotBody["imageUrl"]
	assert.False(t, hasImage, "empty fields must be omitted")
}

func TestClient_SendMessage_Failure(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))

	sent, err := client.SendMessage(context.Background(), "hello", "", "")
	assert.Nil(t, sent)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.Code)
}

func TestClient_EditAndDeleteMessage(t *testing.T) {
	var editPath, deletePath string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			editPath = r.URL.Path
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "new text", body["text"])
		case http.MethodDelete:
			deletePath = r.URL.Path
		}
	}))

	assert.True(t, client.EditMessage(context.Background(), "m1", "new text"))
	assert.Equal(t, "/api/bot/edit/m1", editPath)

	assert.True(t, client.DeleteMessage(context.Background(), "m1"))
	assert.Equal(t, "/api/bot/delete/m1", deletePath)
}

func TestClient_EditMessage_FailureAndEmptyID(t *testing.T) {
	requests := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	}))

	assert.False(t, client.EditMessage(context.Background(), "m1", "text"))
	assert.False(t, client.DeleteMessage(context.Background(), "m1"))
	assert.Equal(t, 2, requests)

	// Empty IDs never reach the network.
	assert.False(t, client.EditMessage(context.Background(), "", "text"))
	assert.False(t, client.DeleteMessage(context.Background(), ""))
	assert.Equal(t, 2, requests)
}

func TestSentMessage_EditUpdatesText(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(sendResponse{ID: "s1", Timestamp: 1})
			return
		}
		// edit succeeds
	}))

	sent, err := client.SendMessage(context.Background(), "before", "", "")
	require.NoError(t, err)

	assert.True(t, sent.Edit(context.Background(), "after"))
	assert.Equal(t, "after", sent.Text)
}

func TestClient_UploadFile(t *testing.T) {
	var gotField, gotContent string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Uploads live under the API root, not the bot prefix.
		require.Equal(t, "/api/upload", r.URL.Path)

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()

		gotField = header.Filename
		content, err := io.ReadAll(file)
		require.NoError(t, err)
		gotContent = string(content)

		json.NewEncoder(w).Encode(map[string]string{"file_url": "https://files.example/abc.txt"})
	}))

	path := filepath.Join(t.TempDir(), "upload.txt")
	require.NoError(t, os.WriteFile(path, []byte("file body"), 0644))

	url, err := client.UploadFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "https://files.example/abc.txt", url)
	assert.Equal(t, "upload.txt", gotField)
	assert.Equal(t, "file body", gotContent)
}

func TestClient_UploadFile_MissingFile(t *testing.T) {
	client := NewClient("secret-key", "http://127.0.0.1:1/api/bot", testLogger())

	_, err := client.UploadFile(context.Background(), filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient("key", "", nil)

	assert.Equal(t, DefaultBaseURL, client.baseURL)
	assert.Equal(t, "https://s1.deadrat.exelus.space/api", client.rootURL)
	assert.NotNil(t, client.log)
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "***", maskKey("short"))
	assert.Equal(t, "1234***cdef", maskKey("1234567890abcdef"))
}

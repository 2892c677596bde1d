package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calorieTracker/internal/auth"
	"calorieTracker/internal/chatbot"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

func uploadRequest(t *testing.T, field, filename string, data []byte, token string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	return req
}

func TestUpload_StoresSniffedImage(t *testing.T) {
	env := newTestEnv(t, "apiupload")
	id, token := env.register(t, "ivy", "secret1")

	rec := httptest.NewRecorder()
	// The declared name is ignored; the extension comes from the content.
	env.handler.ServeHTTP(rec, uploadRequest(t, "file", "photo.txt", pngHeader, token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[uploadResponse](t, rec)
	assert.True(t, resp.Success)
	require.Len(t, env.images.keys, 1)
	key := env.images.keys[0]
	assert.Equal(t, "image/png", env.images.types[0])
	assert.True(t, strings.HasPrefix(key, fmt.Sprintf("%d_", id)))
	assert.True(t, strings.HasSuffix(key, ".png"))
	assert.Equal(t, key, resp.Filename)
	assert.Equal(t, "/uploads/meals/"+key, resp.ImageURL)
}

func TestUpload_Rejections(t *testing.T) {
	env := newTestEnv(t, "apiuploadreject", func(d *Deps) { d.MaxUploadBytes = 1 << 20 })
	_, token := env.register(t, "jack", "secret1")

	big := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 1<<20)...)
	cases := []struct {
		name  string
		field string
		data  []byte
		msg   string
	}{
		{"no file", "", nil, "No file received"},
		{"wrong field", "image", pngHeader, "No file received"},
		{"not an image", "file", []byte("hello, plain text"), "Invalid file type. Only images are allowed."},
		{"too large", "file", big, "File too large. Maximum size is 1MB."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, uploadRequest(t, tc.field, "meal.png", tc.data, token))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.msg, errorOf(t, rec))
		})
	}
	assert.Empty(t, env.images.keys)
}

func TestUploadsAreServedFromDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1_2_x.png"), pngHeader, 0o644))
	env := newTestEnv(t, "apistatic", func(d *Deps) { d.UploadDir = dir })

	rec := env.do(t, http.MethodGet, "/uploads/meals/1_2_x.png", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pngHeader, rec.Body.Bytes())

	rec = env.do(t, http.MethodGet, "/uploads/meals/", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatbot(t *testing.T) {
	env := newTestEnv(t, "apichatbot")
	id, token := env.register(t, "kate", "secret1")

	env.assistant.answer = "You ate 200 kcal today."
	rec := env.do(t, http.MethodPost, "/api/chatbot", chatbotRequest{Query: "how much today?"}, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "You ate 200 kcal today.", decode[chatbotResponse](t, rec).Response)
	assert.Equal(t, "how much today?", env.assistant.query)
	assert.Equal(t, id, env.assistant.userID)

	// The assistant gets its own short-lived token for the same user.
	tokens := auth.NewTokenManager(testSecret, testIssuer, time.Hour)
	claims, ok := tokens.Verify(env.assistant.token)
	require.True(t, ok)
	assert.Equal(t, id, claims.UserID)
	assert.Equal(t, "kate", claims.Username)
	assert.NotEqual(t, token, env.assistant.token)
	assert.WithinDuration(t, time.Now().Add(DefaultAssistantTokenTTL), claims.ExpiresAt.Time, 5*time.Second)

	rec = env.do(t, http.MethodPost, "/api/chatbot", chatbotRequest{Query: "  "}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Query is required", errorOf(t, rec))

	cases := []struct {
		err     error
		msg     string
		details string
	}{
		{fmt.Errorf("%w after 30s", chatbot.ErrTimeout), "Agent timed out", ""},
		{&chatbot.ExitError{Code: 1, Stderr: "Traceback"}, "Agent processing failed", "Traceback"},
		{errors.New("exec: \"python\": not found"), "Failed to start agent", "exec: \"python\": not found"},
	}
	for _, tc := range cases {
		env.assistant.err = tc.err
		rec = env.do(t, http.MethodPost, "/api/chatbot", chatbotRequest{Query: "hi"}, token)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		body := decode[errorBody](t, rec)
		assert.Equal(t, tc.msg, body.Error)
		assert.Equal(t, tc.details, body.Details)
	}
}

package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calorieTracker/internal/auth"
	"calorieTracker/internal/testutil"
	"calorieTracker/repository"
)

const (
	testSecret = "test-secret"
	testIssuer = "calorie-tracker-test"
)

type fakeStore struct {
	keys  []string
	types []string
}

func (f *fakeStore) Save(_ context.Context, key, contentType string, _ []byte) (string, error) {
	f.keys = append(f.keys, key)
	f.types = append(f.types, contentType)
	return "/uploads/meals/" + key, nil
}

type fakeAssistant struct {
	answer string
	err    error
	query  string
	userID int64
	token  string
}

func (f *fakeAssistant) Ask(_ context.Context, query string, userID int64, token string) (string, error) {
	f.query, f.userID, f.token = query, userID, token
	return f.answer, f.err
}

type testEnv struct {
	db        *sql.DB
	handler   http.Handler
	images    *fakeStore
	assistant *fakeAssistant
}

func newTestEnv(t *testing.T, name string, tweak ...func(*Deps)) *testEnv {
	t.Helper()
	d := testutil.OpenInMemoryDB(t, name)
	env := &testEnv{db: d, images: &fakeStore{}, assistant: &fakeAssistant{answer: "ok"}}
	deps := Deps{
		Users:       repository.NewUserRepository(d),
		Meals:       repository.NewMealRepository(d),
		Tokens:      auth.NewTokenManager(testSecret, testIssuer, time.Hour),
		Passwords:   auth.PlainScheme{},
		Images:      env.images,
		Assistant:   env.assistant,
		CORSOrigins: []string{"http://localhost:3000"},
	}
	for _, f := range tweak {
		f(&deps)
	}
	env.handler = New(deps).Routes()
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) register(t *testing.T, username, password string) (int64, string) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/auth/register", credentials{Username: username, Password: password}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.User.ID, resp.Token
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[errorBody](t, rec).Error
}

func TestRegisterLoginCreateDeleteScenario(t *testing.T) {
	env := newTestEnv(t, "apiscenario")

	rec := env.do(t, http.MethodPost, "/api/auth/register", credentials{Username: "alice", Password: "secret1"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	reg := decode[sessionResponse](t, rec)
	assert.Equal(t, "alice", reg.User.Username)
	assert.NotEmpty(t, reg.Token)
	cookie := rec.Result().Cookies()
	require.Len(t, cookie, 1)
	assert.Equal(t, auth.CookieName, cookie[0].Name)
	assert.True(t, cookie[0].HttpOnly)

	rec = env.do(t, http.MethodPost, "/api/auth/login", credentials{Username: "alice", Password: "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials", errorOf(t, rec))

	rec = env.do(t, http.MethodPost, "/api/auth/login", credentials{Username: "alice", Password: "secret1"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[sessionResponse](t, rec)
	require.NotEmpty(t, login.Token)

	rec = env.do(t, http.MethodPost, "/api/meals", map[string]any{"name": "Eggs", "calories": 200}, login.Token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	meal := decode[struct {
		ID       int64  `json:"id"`
		UserID   int64  `json:"user_id"`
		Name     string `json:"name"`
		Calories int    `json:"calories"`
	}](t, rec)
	assert.Equal(t, "Eggs", meal.Name)
	assert.Equal(t, 200, meal.Calories)
	assert.Equal(t, reg.User.ID, meal.UserID)

	path := "/api/meals/" + jsonNumber(meal.ID)
	rec = env.do(t, http.MethodDelete, path, nil, login.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Meal deleted successfully", decode[messageBody](t, rec).Message)

	rec = env.do(t, http.MethodDelete, path, nil, login.Token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Meal not found or unauthorized", errorOf(t, rec))
}

func jsonNumber(v int64) string {
	raw, _ := json.Marshal(v)
	return string(raw)
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t, "apiregister")
	env.register(t, "bob", "secret1")

	cases := []struct {
		name string
		body any
		code int
		msg  string
	}{
		{"missing username", credentials{Password: "secret1"}, http.StatusBadRequest, "Username and password are required"},
		{"missing password", credentials{Username: "carol"}, http.StatusBadRequest, "Username and password are required"},
		{"short password", credentials{Username: "carol", Password: "12345"}, http.StatusBadRequest, "Password must be at least 6 characters"},
		{"duplicate", credentials{Username: "bob", Password: "another1"}, http.StatusConflict, "Username already exists"},
		{"not json", "{", http.StatusBadRequest, "Invalid JSON payload"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/auth/register", tc.body, "")
			assert.Equal(t, tc.code, rec.Code)
			assert.Equal(t, tc.msg, errorOf(t, rec))
		})
	}
}

// countingScheme records which stored values Compare was asked to check.
type countingScheme struct {
	auth.PlainScheme
	compared []string
}

func (c *countingScheme) Compare(stored, password string) bool {
	c.compared = append(c.compared, stored)
	return c.PlainScheme.Compare(stored, password)
}

func TestLogin_UnknownUser(t *testing.T) {
	scheme := &countingScheme{}
	env := newTestEnv(t, "apiloginunknown", func(d *Deps) { d.Passwords = scheme })
	rec := env.do(t, http.MethodPost, "/api/auth/login", credentials{Username: "nobody", Password: "secret1"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials", errorOf(t, rec))
	// The password check still runs, against a stand-in hash.
	require.Len(t, scheme.compared, 1)
	assert.NotEmpty(t, scheme.compared[0])

	rec = env.do(t, http.MethodPost, "/api/auth/login", credentials{Username: "nobody"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthCheckAndLogout(t *testing.T) {
	env := newTestEnv(t, "apiauthcheck")
	id, token := env.register(t, "dave", "secret1")

	rec := env.do(t, http.MethodGet, "/api/auth/check", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	check := decode[authCheckResponse](t, rec)
	assert.True(t, check.Authenticated)
	require.NotNil(t, check.User)
	assert.Equal(t, id, check.User.ID)

	rec = env.do(t, http.MethodGet, "/api/auth/check", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, decode[authCheckResponse](t, rec).Authenticated)

	// A valid token for a user that does not exist.
	ghost := testutil.SignToken(t, testSecret, testIssuer, 9999, "ghost", time.Hour)
	rec = env.do(t, http.MethodGet, "/api/auth/check", nil, ghost)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/logout", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "", cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestProtectedRoutes_RequireSession(t *testing.T) {
	env := newTestEnv(t, "apiprotected")
	expired := testutil.SignToken(t, testSecret, testIssuer, 1, "alice", -time.Minute)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/meals"},
		{http.MethodPost, "/api/meals"},
		{http.MethodGet, "/api/meals/summary"},
		{http.MethodDelete, "/api/meals/1"},
		{http.MethodPost, "/api/upload"},
		{http.MethodPost, "/api/chatbot"},
	} {
		for _, tok := range []string{"", "garbage", expired} {
			rec := env.do(t, route.method, route.path, nil, tok)
			assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", route.method, route.path)
			assert.Equal(t, "Unauthorized", errorOf(t, rec))
		}
	}
}

func TestBearerHeaderIsAccepted(t *testing.T) {
	env := newTestEnv(t, "apibearer")
	_, token := env.register(t, "erin", "secret1")

	req := httptest.NewRequest(http.MethodGet, "/api/meals", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCreateMeal_Validation(t *testing.T) {
	env := newTestEnv(t, "apimealvalidation")
	_, token := env.register(t, "frank", "secret1")

	cases := []struct {
		name string
		body map[string]any
		msg  string
	}{
		{"missing name", map[string]any{"calories": 100}, "Name and calories are required"},
		{"blank name", map[string]any{"name": "   ", "calories": 100}, "Name and calories are required"},
		{"missing calories", map[string]any{"name": "Toast"}, "Name and calories are required"},
		{"zero calories", map[string]any{"name": "Toast", "calories": 0}, "Calories must be a positive number"},
		{"negative calories", map[string]any{"name": "Toast", "calories": -5}, "Calories must be a positive number"},
		{"fractional calories", map[string]any{"name": "Toast", "calories": 10.5}, "Calories must be a positive number"},
		{"negative protein", map[string]any{"name": "Toast", "calories": 10, "protein": -1}, "Protein must be a non-negative number"},
		{"negative fats", map[string]any{"name": "Toast", "calories": 10, "fats": -2}, "Fats must be a non-negative number"},
		{"several bad macros", map[string]any{"name": "Toast", "calories": 10, "protein": -1, "carbs": -1, "fats": -1}, "Protein must be a non-negative number"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/meals", tc.body, token)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.msg, errorOf(t, rec))
		})
	}

	rec := env.do(t, http.MethodGet, "/api/meals", nil, token)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCreateMeal_WithMacrosAndImage(t *testing.T) {
	env := newTestEnv(t, "apimealmacros")
	_, token := env.register(t, "gina", "secret1")

	rec := env.do(t, http.MethodPost, "/api/meals", map[string]any{
		"name": " Salad ", "calories": 350, "protein": 12.5, "carbs": 20, "fats": 0, "imageUrl": "/uploads/meals/x.png",
	}, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var meal map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meal))
	assert.Equal(t, "Salad", meal["name"])
	assert.Equal(t, 12.5, meal["protein"])
	assert.Equal(t, 0.0, meal["fats"])
	assert.Equal(t, "/uploads/meals/x.png", meal["image_url"])

	rec = env.do(t, http.MethodPost, "/api/meals", map[string]any{"name": "Tea", "calories": 5, "imageUrl": ""}, token)
	require.Equal(t, http.StatusCreated, rec.Code)
	meal = map[string]any{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meal))
	assert.NotContains(t, meal, "image_url")
	assert.NotContains(t, meal, "protein")
}

func TestDeleteMeal_OwnerIsolation(t *testing.T) {
	env := newTestEnv(t, "apiowner")
	_, alice := env.register(t, "alice", "secret1")
	_, bob := env.register(t, "bob", "secret1")

	rec := env.do(t, http.MethodPost, "/api/meals", map[string]any{"name": "Pasta", "calories": 700}, alice)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[struct {
		ID int64 `json:"id"`
	}](t, rec).ID

	rec = env.do(t, http.MethodDelete, "/api/meals/"+jsonNumber(id), nil, bob)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/meals", nil, bob)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/meals", nil, alice)
	assert.Contains(t, rec.Body.String(), "Pasta")

	rec = env.do(t, http.MethodDelete, "/api/meals/abc", nil, alice)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid meal ID", errorOf(t, rec))
}

func TestListMeals_DateRangeAndSummary(t *testing.T) {
	env := newTestEnv(t, "apirange")
	_, token := env.register(t, "hank", "secret1")

	stamps := map[string]string{
		"Breakfast": "2024-03-01 08:00:00",
		"Lunch":     "2024-03-02 12:30:00",
		"Dinner":    "2024-03-03 23:59:59",
	}
	for name, ts := range stamps {
		rec := env.do(t, http.MethodPost, "/api/meals", map[string]any{"name": name, "calories": 100, "protein": 10}, token)
		require.Equal(t, http.StatusCreated, rec.Code)
		id := decode[struct {
			ID int64 `json:"id"`
		}](t, rec).ID
		_, err := env.db.Exec(`UPDATE meals SET created_at = ? WHERE id = ?`, ts, id)
		require.NoError(t, err)
	}

	rec := env.do(t, http.MethodGet, "/api/meals?from=2024-03-02&to=2024-03-03", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Lunch")
	assert.Contains(t, body, "Dinner")
	assert.NotContains(t, body, "Breakfast")
	assert.Less(t, strings.Index(body, "Dinner"), strings.Index(body, "Lunch"), "newest first")

	rec = env.do(t, http.MethodGet, "/api/meals?from=2024-03-03", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Lunch")

	rec = env.do(t, http.MethodGet, "/api/meals/summary?to=2024-03-02", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"meal_count":2,"calories":200,"protein":20,"carbs":0,"fats":0}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/meals/summary", nil, token)
	assert.JSONEq(t, `{"meal_count":3,"calories":300,"protein":30,"carbs":0,"fats":0}`, rec.Body.String())

	for _, q := range []string{"from=2024-13-01", "to=yesterday", "from=2024-03-03&to=2024-03-01"} {
		rec = env.do(t, http.MethodGet, "/api/meals?"+q, nil, token)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestHealthAndCORS(t *testing.T) {
	env := newTestEnv(t, "apihealth")

	rec := env.do(t, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])

	req := httptest.NewRequest(http.MethodOptions, "/api/meals", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

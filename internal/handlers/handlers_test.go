package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waterwise/internal/models"
	"waterwise/internal/session"
	"waterwise/internal/storage"
)

type fakeQuerier struct {
	limit  int
	filter storage.Filter
	calls  int
	tests  []models.StoredTest
	err    error
}

func (f *fakeQuerier) QueryTests(_ context.Context, limit int, filter storage.Filter) ([]models.StoredTest, error) {
	f.calls++
	f.limit = limit
	f.filter = filter
	return f.tests, f.err
}

var allowAll = session.AuthorizerFunc(func(*http.Request) (session.Identity, error) {
	return session.Identity{SubjectID: "42"}, nil
})

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestHealthHandler(t *testing.T) {
	w := get(http.HandlerFunc(HealthHandler), "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}

func TestHistoryReturnsTests(t *testing.T) {
	safe := "Safe"
	q := &fakeQuerier{tests: []models.StoredTest{{ID: 3, Location: "Well 3", PHLevel: 7.1, Prediction: &safe}}}

	w := get(NewHistoryHandler(allowAll, q), "/submissions?limit=5&location=Well+3&prediction=Safe")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, q.limit)
	assert.Equal(t, storage.Filter{Location: "Well 3", Prediction: "Safe"}, q.filter)

	var got []models.StoredTest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].ID)
	assert.Equal(t, "Safe", *got[0].Prediction)
}

func TestHistoryLimitBounds(t *testing.T) {
	cases := map[string]int{
		"/submissions":            100,
		"/submissions?limit=0":    100,
		"/submissions?limit=1001": 100,
		"/submissions?limit=abc":  100,
		"/submissions?limit=1000": 1000,
		"/submissions?limit=1":    1,
	}
	for target, want := range cases {
		q := &fakeQuerier{}
		w := get(NewHistoryHandler(allowAll, q), target)
		assert.Equal(t, http.StatusOK, w.Code, target)
		assert.Equal(t, want, q.limit, target)
	}
}

func TestHistoryRequiresSession(t *testing.T) {
	q := &fakeQuerier{}
	deny := session.AuthorizerFunc(func(*http.Request) (session.Identity, error) {
		return session.Identity{}, session.ErrNoSession
	})

	w := get(NewHistoryHandler(deny, q), "/submissions")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Unauthorized","code":"unauthorized"}`, w.Body.String())
	assert.Zero(t, q.calls)
}

func TestHistorySessionStoreDown(t *testing.T) {
	q := &fakeQuerier{}
	broken := session.AuthorizerFunc(func(*http.Request) (session.Identity, error) {
		return session.Identity{}, errors.New("dial tcp: connection refused")
	})

	w := get(NewHistoryHandler(broken, q), "/submissions")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Zero(t, q.calls)
}

func TestHistoryStorageError(t *testing.T) {
	q := &fakeQuerier{err: errors.New("relation does not exist")}

	w := get(NewHistoryHandler(allowAll, q), "/submissions")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "relation")
}

package session

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v9"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "waterwise_secret"

func requestWithCookie(value string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/submit", nil)
	if value != "" {
		r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: value})
	}
	return r
}

func signedCookie(sid string) string {
	return url.QueryEscape("s:" + sid + "." + Sign(sid, secret))
}

func TestSessionIDSignedCookie(t *testing.T) {
	cfg := CookieConfig{Secret: secret}

	sid, ok := cfg.SessionID(requestWithCookie(signedCookie("abc123")))
	require.True(t, ok)
	assert.Equal(t, "abc123", sid)
}

func TestSessionIDRejectsTampering(t *testing.T) {
	cfg := CookieConfig{Secret: secret}

	cases := map[string]string{
		"no cookie":      "",
		"bad signature":  url.QueryEscape("s:abc123.AAAA"),
		"other sid":      url.QueryEscape("s:other." + Sign("abc123", secret)),
		"unsigned":       "abc123",
		"missing dot":    url.QueryEscape("s:abc123"),
		"bad url escape": "%zz",
	}
	for name, value := range cases {
		_, ok := cfg.SessionID(requestWithCookie(value))
		assert.False(t, ok, name)
	}
}

func TestSessionIDWithoutSecret(t *testing.T) {
	cfg := CookieConfig{}

	sid, ok := cfg.SessionID(requestWithCookie("plain-sid"))
	require.True(t, ok)
	assert.Equal(t, "plain-sid", sid)

	sid, ok = cfg.SessionID(requestWithCookie(url.QueryEscape("s:abc.anything")))
	require.True(t, ok)
	assert.Equal(t, "abc", sid)
}

func TestSubjectFromDocument(t *testing.T) {
	subject, err := subjectFromDocument([]byte(`{"cookie":{"httpOnly":true},"userId":7}`))
	require.NoError(t, err)
	assert.Equal(t, "7", subject)

	subject, err = subjectFromDocument([]byte(`{"userId":"u-42"}`))
	require.NoError(t, err)
	assert.Equal(t, "u-42", subject)

	_, err = subjectFromDocument([]byte(`{"cookie":{}}`))
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = subjectFromDocument([]byte(`not json`))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoSession))
}

func TestPostgresStore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store, err := NewPostgresStore(db, "user_sessions", CookieConfig{Secret: secret}, time.Second)
	require.NoError(t, err)

	query := regexp.QuoteMeta("SELECT sess FROM user_sessions WHERE sid = $1 AND expire > NOW()")

	mock.ExpectQuery(query).WithArgs("live").
		WillReturnRows(sqlmock.NewRows([]string{"sess"}).AddRow(`{"userId":7}`))
	id, err := store.Authorize(requestWithCookie(signedCookie("live")))
	require.NoError(t, err)
	assert.Equal(t, "7", id.SubjectID)

	mock.ExpectQuery(query).WithArgs("expired").
		WillReturnRows(sqlmock.NewRows([]string{"sess"}))
	_, err = store.Authorize(requestWithCookie(signedCookie("expired")))
	assert.ErrorIs(t, err, ErrNoSession)

	mock.ExpectQuery(query).WithArgs("down").WillReturnError(errors.New("connection refused"))
	_, err = store.Authorize(requestWithCookie(signedCookie("down")))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoSession))

	_, err = store.Authorize(requestWithCookie(""))
	assert.ErrorIs(t, err, ErrNoSession)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreRejectsBadTableName(t *testing.T) {
	_, err := NewPostgresStore(nil, "sessions; DROP TABLE users", CookieConfig{}, 0)
	assert.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client, "", CookieConfig{Secret: secret}, time.Second)

	mock.ExpectGet("sess:live").SetVal(`{"userId":"u-1"}`)
	id, err := store.Authorize(requestWithCookie(signedCookie("live")))
	require.NoError(t, err)
	assert.Equal(t, "u-1", id.SubjectID)

	mock.ExpectGet("sess:gone").RedisNil()
	_, err = store.Authorize(requestWithCookie(signedCookie("gone")))
	assert.ErrorIs(t, err, ErrNoSession)

	mock.ExpectGet("sess:down").SetErr(errors.New("i/o timeout"))
	_, err = store.Authorize(requestWithCookie(signedCookie("down")))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoSession))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJWTAuthorizer(t *testing.T) {
	auth := NewJWTAuthorizer(secret)

	sign := func(claims jwt.RegisteredClaims, key string) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
		require.NoError(t, err)
		return s
	}
	bearer := func(token string) *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/submit", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		return r
	}

	valid := jwt.RegisteredClaims{Subject: "42", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	id, err := auth.Authorize(bearer(sign(valid, secret)))
	require.NoError(t, err)
	assert.Equal(t, "42", id.SubjectID)

	expired := jwt.RegisteredClaims{Subject: "42", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))}
	_, err = auth.Authorize(bearer(sign(expired, secret)))
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = auth.Authorize(bearer(sign(valid, "other-secret")))
	assert.ErrorIs(t, err, ErrNoSession)

	noExpiry := jwt.RegisteredClaims{Subject: "42"}
	_, err = auth.Authorize(bearer(sign(noExpiry, secret)))
	assert.ErrorIs(t, err, ErrNoSession)

	r := httptest.NewRequest(http.MethodPost, "/submit", nil)
	r.Header.Set("Authorization", "Token abc")
	_, err = auth.Authorize(r)
	assert.ErrorIs(t, err, ErrNoSession)
}

package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bishleshok-ai/bishleshok/internal/resilience"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func TestResolve_AnonymousSignUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts:signUp", r.URL.Path)
		assert.Equal(t, "key-1", r.URL.Query().Get("key"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["returnSecureToken"])
		json.NewEncoder(w).Encode(map[string]string{ //nolint:errcheck
			"idToken": "tok", "localId": "anon-uid", "expiresIn": "3600",
		})
	}))
	defer srv.Close()

	id, err := Resolve(context.Background(), Options{APIKey: "key-1", BaseURL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "anon-uid", id.UID)
	assert.Equal(t, MethodAnonymous, id.Method)
	assert.False(t, id.ExpiresAt.IsZero())
}

func TestResolve_CustomToken(t *testing.T) {
	idToken := signedToken(t, jwt.MapClaims{"user_id": "custom-uid", "sub": "custom-uid"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts:signInWithCustomToken", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "initial-token", body["token"])
		json.NewEncoder(w).Encode(map[string]string{"idToken": idToken, "expiresIn": "3600"}) //nolint:errcheck
	}))
	defer srv.Close()

	id, err := Resolve(context.Background(), Options{APIKey: "k", CustomToken: "initial-token", BaseURL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "custom-uid", id.UID)
	assert.Equal(t, MethodCustomToken, id.Method)
}

func TestResolve_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"INVALID_CUSTOM_TOKEN"}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := Resolve(context.Background(), Options{APIKey: "k", CustomToken: "bad", BaseURL: srv.URL})
	var serr *SignInError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusBadRequest, serr.StatusCode)
	assert.Equal(t, "INVALID_CUSTOM_TOKEN", serr.Message)
}

func TestResolve_RetriesUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"idToken": "tok", "localId": "uid-2"}) //nolint:errcheck
	}))
	defer srv.Close()

	var slept []time.Duration
	retry := resilience.DefaultRetryConfig()
	retry.Sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	id, err := Resolve(context.Background(), Options{APIKey: "k", BaseURL: srv.URL, Retry: retry})
	require.NoError(t, err)
	assert.Equal(t, "uid-2", id.UID)
	assert.Equal(t, int32(2), calls.Load())
	assert.Len(t, slept, 1)
}

func TestResolve_RejectedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := Resolve(context.Background(), Options{APIKey: "k", BaseURL: srv.URL})
	var serr *SignInError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "unknown error", serr.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestResolve_Configured(t *testing.T) {
	id, err := Resolve(context.Background(), Options{UID: "fixed"})
	require.NoError(t, err)
	assert.Equal(t, Identity{UID: "fixed", Method: MethodConfigured}, *id)
}

func TestResolve_SessionFileIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session")

	first, err := Resolve(context.Background(), Options{SessionFile: path})
	require.NoError(t, err)
	second, err := Resolve(context.Background(), Options{SessionFile: path})
	require.NoError(t, err)
	assert.Equal(t, first.UID, second.UID)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, first.UID+"\n", string(data))
}

func TestUIDFromToken(t *testing.T) {
	uid, err := UIDFromToken(signedToken(t, jwt.MapClaims{"sub": "s-1"}))
	require.NoError(t, err)
	assert.Equal(t, "s-1", uid)

	_, err = UIDFromToken("not-a-jwt")
	require.Error(t, err)

	_, err = UIDFromToken(signedToken(t, jwt.MapClaims{"iss": "x"}))
	require.Error(t, err)
}

// Package identity establishes the user identity that scopes the record
// collection. It runs once at startup.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bishleshok-ai/bishleshok/internal/resilience"
)

const defaultBaseURL = "https://identitytoolkit.googleapis.com"

// Method records how the identity was obtained.
type Method string

const (
	MethodCustomToken Method = "custom_token"
	MethodAnonymous   Method = "anonymous"
	MethodConfigured  Method = "configured"
	MethodSession     Method = "session"
)

// Identity is the signed-in user.
type Identity struct {
	UID       string    `json:"uid"`
	Method    Method    `json:"method"`
	IDToken   string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// Options selects the sign-in path. With an API key the Identity Toolkit is
// used (custom token if given, else anonymous sign-up); without one, UID is
// used as is, or a random UID is kept in SessionFile.
type Options struct {
	APIKey      string
	CustomToken string
	UID         string
	SessionFile string
	BaseURL     string
	HTTPClient  *http.Client

	// Retry governs the token exchange. The zero value uses
	// resilience.DefaultRetryConfig.
	Retry resilience.RetryConfig
}

// SignInError is a rejected exchange.
type SignInError struct {
	StatusCode int
	Message    string
}

func (e *SignInError) Error() string {
	return fmt.Sprintf("identity: sign-in rejected (%d): %s", e.StatusCode, e.Message)
}

// Resolve establishes the identity.
func Resolve(ctx context.Context, opts Options) (*Identity, error) {
	switch {
	case opts.APIKey != "":
		return exchange(ctx, opts)
	case opts.UID != "":
		return &Identity{UID: opts.UID, Method: MethodConfigured}, nil
	default:
		return sessionIdentity(opts.SessionFile)
	}
}

type tokenResponse struct {
	IDToken   string `json:"idToken"`
	LocalID   string `json:"localId"`
	ExpiresIn string `json:"expiresIn"`
}

func exchange(ctx context.Context, opts Options) (*Identity, error) {
	base := opts.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}

	method := MethodAnonymous
	endpoint := base + "/v1/accounts:signUp?key=" + opts.APIKey
	payload := map[string]any{"returnSecureToken": true}
	if opts.CustomToken != "" {
		method = MethodCustomToken
		endpoint = base + "/v1/accounts:signInWithCustomToken?key=" + opts.APIKey
		payload["token"] = opts.CustomToken
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "identity: marshal request")
	}
	retry := opts.Retry
	if retry.MaxAttempts == 0 {
		retry = resilience.DefaultRetryConfig()
	}
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("identity", "sign_in")
	}
	raw, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]byte, error) {
		return post(ctx, hc, endpoint, body)
	})
	if err != nil {
		return nil, err
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, eris.Wrap(err, "identity: decode response")
	}

	id := &Identity{UID: tr.LocalID, Method: method, IDToken: tr.IDToken}
	if secs, err := time.ParseDuration(tr.ExpiresIn + "s"); err == nil {
		id.ExpiresAt = time.Now().Add(secs)
	}
	if id.UID == "" {
		uid, err := UIDFromToken(tr.IDToken)
		if err != nil {
			return nil, err
		}
		id.UID = uid
	}

	zap.L().Info("identity: signed in", zap.String("method", string(method)), zap.String("uid", id.UID))
	return id, nil
}

// post runs one sign-in round trip. Throttling and server errors come back
// as transient so the caller retries them.
func post(ctx context.Context, hc *http.Client, endpoint string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "identity: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "identity: sign-in request")
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "identity: read response")
	}
	if resp.StatusCode != http.StatusOK {
		serr := &SignInError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(serr, resp.StatusCode)
		}
		return nil, serr
	}
	return raw, nil
}

// UIDFromToken reads the user ID from an ID token's claims. The signature
// is not verified; the token came straight from the issuer over TLS.
func UIDFromToken(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", eris.Wrap(err, "identity: parse id token")
	}
	if uid, ok := claims["user_id"].(string); ok && uid != "" {
		return uid, nil
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", eris.New("identity: id token has no subject")
	}
	return sub, nil
}

func errorMessage(raw []byte) string {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.Error.Message == "" {
		return "unknown error"
	}
	return body.Error.Message
}

// sessionIdentity loads or creates a random UID kept on disk.
func sessionIdentity(path string) (*Identity, error) {
	if path == "" {
		return &Identity{UID: uuid.NewString(), Method: MethodAnonymous}, nil
	}
	if data, err := os.ReadFile(path); err == nil {
		if uid := strings.TrimSpace(string(data)); uid != "" {
			return &Identity{UID: uid, Method: MethodSession}, nil
		}
	} else if !os.IsNotExist(err) {
		return nil, eris.Wrapf(err, "identity: read session %s", path)
	}

	uid := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, eris.Wrap(err, "identity: create session dir")
	}
	if err := os.WriteFile(path, []byte(uid+"\n"), 0o600); err != nil {
		return nil, eris.Wrapf(err, "identity: write session %s", path)
	}
	zap.L().Info("identity: new anonymous session", zap.String("uid", uid), zap.String("file", path))
	return &Identity{UID: uid, Method: MethodSession}, nil
}

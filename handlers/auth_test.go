package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chirpfeed/chirpfeed/internal/blob"
	"github.com/chirpfeed/chirpfeed/internal/composer"
	"github.com/chirpfeed/chirpfeed/internal/config"
	"github.com/chirpfeed/chirpfeed/internal/identity"
	"github.com/chirpfeed/chirpfeed/internal/session"
	"github.com/chirpfeed/chirpfeed/internal/sessions"
	"github.com/chirpfeed/chirpfeed/internal/store"
	"github.com/chirpfeed/chirpfeed/internal/tokens"
	"github.com/chirpfeed/chirpfeed/pkg/middleware"
)

type testApp struct {
	router    *gin.Engine
	cfg       *config.Config
	store     *store.Memory
	blobs     *blob.Memory
	directory *identity.Directory
	sess      *session.Manager
}

func newTestApp(t *testing.T, federated *identity.Federated) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.Identity.JWTSecret = "handler-test-secret"
	cfg.Identity.AccessTokenTTL = 15 * time.Minute
	cfg.Identity.RefreshTokenTTL = time.Hour

	docStore := store.NewMemory()
	blobs := blob.NewMemory()
	accounts := identity.NewMemoryAccountRepository()
	directory := identity.NewDirectory(accounts, federated, nil)
	sessMgr := session.NewManager(directory)
	sessMgr.Start()
	t.Cleanup(sessMgr.Close)

	comp := composer.New(docStore, blobs, directory, sessMgr)
	sessionsSvc := sessions.NewService(sessions.NewMemoryRepository())

	r := gin.New()
	authH := NewAuthHandler(cfg, directory, accounts, comp, sessionsSvc)
	authH.Register(r.Group("/"))
	feedH := NewFeedHandler(docStore, comp, sessMgr)
	feedH.Register(r, middleware.AuthMiddleware(tokens.NewVerifier(cfg)))

	return &testApp{router: r, cfg: cfg, store: docStore, blobs: blobs, directory: directory, sess: sessMgr}
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return m
}

// signUp drives the full multipart registration flow and returns the
// response body.
func signUp(t *testing.T, app *testApp, username, email, password string, withAvatar bool) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("username", username)
	_ = mw.WriteField("email", email)
	_ = mw.WriteField("password", password)
	if withAvatar {
		fw, err := mw.CreateFormFile("avatar", "me.png")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		fw.Write([]byte("avatar bytes"))
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/auth/signup", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		return w, nil
	}
	return w, decodeBody(t, w)
}

func TestSignUpIssuesTokensAndProfile(t *testing.T) {
	app := newTestApp(t, nil)
	w, body := signUp(t, app, "bob", "bob@example.com", "abcdef", true)
	if w.Code != http.StatusOK {
		t.Fatalf("signup status = %d, body %s", w.Code, w.Body.String())
	}
	access, _ := body["accessToken"].(string)
	refresh, _ := body["refreshToken"].(string)
	if access == "" || refresh == "" {
		t.Fatalf("tokens missing: %v", body)
	}
	user, _ := body["user"].(map[string]any)
	if user == nil || user["displayName"] != "bob" {
		t.Fatalf("user profile wrong: %v", body["user"])
	}
	photo, _ := user["photoUrl"].(string)
	if !strings.HasPrefix(photo, "memory://avatars/") || !strings.HasSuffix(photo, "_me.png") {
		t.Fatalf("avatar reference wrong: %q", photo)
	}

	// the process session mirrors the registration
	if u := app.sess.Current(); u.DisplayName != "bob" || u.PhotoURL != photo {
		t.Fatalf("session not mirrored: %+v", u)
	}
}

func TestSignUpRequiresAvatar(t *testing.T) {
	app := newTestApp(t, nil)
	w, _ := signUp(t, app, "bob", "bob@example.com", "abcdef", false)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("signup without avatar status = %d", w.Code)
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	app := newTestApp(t, nil)
	if w, _ := signUp(t, app, "bob", "bob@example.com", "abcdef", true); w.Code != http.StatusOK {
		t.Fatalf("first signup failed: %d", w.Code)
	}
	w, _ := signUp(t, app, "rob", "bob@example.com", "ghijkl", true)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate email status = %d, want 409", w.Code)
	}
}

func TestSignIn(t *testing.T) {
	app := newTestApp(t, nil)
	if w, _ := signUp(t, app, "bob", "bob@example.com", "abcdef", true); w.Code != http.StatusOK {
		t.Fatalf("signup failed: %d", w.Code)
	}

	w := postJSON(t, app.router, "/auth/signin", gin.H{"email": "bob@example.com", "password": "abcdef"})
	if w.Code != http.StatusOK {
		t.Fatalf("signin status = %d, body %s", w.Code, w.Body.String())
	}

	w = postJSON(t, app.router, "/auth/signin", gin.H{"email": "bob@example.com", "password": "wrongpw"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d, want 401", w.Code)
	}

	// gated before the provider: password below minimum length
	w = postJSON(t, app.router, "/auth/signin", gin.H{"email": "bob@example.com", "password": "abcde"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("short password status = %d, want 400", w.Code)
	}
}

func TestRefresh(t *testing.T) {
	app := newTestApp(t, nil)
	w, body := signUp(t, app, "bob", "bob@example.com", "abcdef", true)
	if w.Code != http.StatusOK {
		t.Fatalf("signup failed: %d", w.Code)
	}
	refresh, _ := body["refreshToken"].(string)

	w = postJSON(t, app.router, "/auth/refresh", gin.H{"refresh_token": refresh})
	if w.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body %s", w.Code, w.Body.String())
	}
	if got, _ := decodeBody(t, w)["accessToken"].(string); got == "" {
		t.Fatalf("no access token in refresh response")
	}

	w = postJSON(t, app.router, "/auth/refresh", gin.H{"refresh_token": "bogus"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bogus refresh status = %d, want 401", w.Code)
	}
}

func TestReset(t *testing.T) {
	app := newTestApp(t, nil)
	if w, _ := signUp(t, app, "bob", "bob@example.com", "abcdef", true); w.Code != http.StatusOK {
		t.Fatalf("signup failed: %d", w.Code)
	}

	w := postJSON(t, app.router, "/auth/reset", gin.H{"email": "bob@example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("reset status = %d", w.Code)
	}
	w = postJSON(t, app.router, "/auth/reset", gin.H{"email": "nobody@example.com"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown email reset status = %d, want 404", w.Code)
	}
}

func TestFederated(t *testing.T) {
	app := newTestApp(t, identity.NewInsecureFederated())

	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"ext-1","email":"fed@example.com","name":"Fed"}`))
	w := postJSON(t, app.router, "/auth/federated", gin.H{"id_token": "hdr." + payload + ".sig"})
	if w.Code != http.StatusOK {
		t.Fatalf("federated status = %d, body %s", w.Code, w.Body.String())
	}
	user, _ := decodeBody(t, w)["user"].(map[string]any)
	if user == nil || user["displayName"] != "Fed" {
		t.Fatalf("federated user wrong: %v", user)
	}
}

func TestFederatedNotConfigured(t *testing.T) {
	app := newTestApp(t, nil)
	w := postJSON(t, app.router, "/auth/federated", gin.H{"id_token": "whatever"})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestSignOutClearsSession(t *testing.T) {
	app := newTestApp(t, nil)
	if w, _ := signUp(t, app, "bob", "bob@example.com", "abcdef", true); w.Code != http.StatusOK {
		t.Fatalf("signup failed: %d", w.Code)
	}
	if !app.sess.Current().SignedIn() {
		t.Fatalf("expected an active session after signup")
	}

	w := postJSON(t, app.router, "/auth/signout", gin.H{})
	if w.Code != http.StatusOK {
		t.Fatalf("signout status = %d", w.Code)
	}
	if app.sess.Current().SignedIn() {
		t.Fatalf("session still active after signout")
	}
}

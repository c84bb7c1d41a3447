package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chirpfeed/chirpfeed/internal/identity"
	"github.com/chirpfeed/chirpfeed/internal/tokens"
)

// signUpForToken registers and returns the issued access token.
func signUpForToken(t *testing.T, app *testApp) string {
	t.Helper()
	w, body := signUp(t, app, "bob", "bob@example.com", "abcdef", true)
	if w.Code != http.StatusOK {
		t.Fatalf("signup failed: %d %s", w.Code, w.Body.String())
	}
	access, _ := body["accessToken"].(string)
	if access == "" {
		t.Fatalf("no access token issued")
	}
	return access
}

func createPost(t *testing.T, app *testApp, token, text string, image []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("text", text)
	if image != nil {
		fw, err := mw.CreateFormFile("image", "pic.png")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		fw.Write(image)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/posts", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	return w
}

func getJSON(t *testing.T, app *testApp, path string) map[string]any {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET %s status = %d, body %s", path, w.Code, w.Body.String())
	}
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return m
}

func TestExperienceFollowsSession(t *testing.T) {
	app := newTestApp(t, nil)

	if got := getJSON(t, app, "/experience")["experience"]; got != "auth" {
		t.Fatalf("signed-out experience = %v, want auth", got)
	}

	signUpForToken(t, app)
	if got := getJSON(t, app, "/experience")["experience"]; got != "feed" {
		t.Fatalf("signed-in experience = %v, want feed", got)
	}
}

func TestCreatePostRequiresToken(t *testing.T) {
	app := newTestApp(t, nil)
	signUpForToken(t, app)

	w := createPost(t, app, "", "hello", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated post status = %d, want 401", w.Code)
	}
}

func TestCreatePostTextOnly(t *testing.T) {
	app := newTestApp(t, nil)
	token := signUpForToken(t, app)

	w := createPost(t, app, token, "hello", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("post status = %d, body %s", w.Code, w.Body.String())
	}

	feed := getJSON(t, app, "/feed")
	posts, _ := feed["posts"].([]any)
	if len(posts) != 1 {
		t.Fatalf("feed has %d posts, want 1", len(posts))
	}
	p, _ := posts[0].(map[string]any)
	if p["text"] != "hello" || p["image"] != "" || p["username"] != "bob" {
		t.Fatalf("post shape wrong: %v", p)
	}
	if ts, _ := p["timestamp"].(string); ts == "" {
		t.Fatalf("server timestamp missing: %v", p)
	}
}

func TestCreatePostWithImage(t *testing.T) {
	app := newTestApp(t, nil)
	token := signUpForToken(t, app)

	w := createPost(t, app, token, "look at this", []byte("image bytes"))
	if w.Code != http.StatusCreated {
		t.Fatalf("post status = %d, body %s", w.Code, w.Body.String())
	}

	posts, _ := getJSON(t, app, "/feed")["posts"].([]any)
	p, _ := posts[0].(map[string]any)
	img, _ := p["image"].(string)
	if img == "" {
		t.Fatalf("image reference missing: %v", p)
	}
	// the referenced blob actually exists
	key := img[len("memory://"):]
	if _, ok := app.blobs.Object(key); !ok {
		t.Fatalf("post references a blob that was never stored: %q", img)
	}
}

func TestCreatePostRejectsEmptyText(t *testing.T) {
	app := newTestApp(t, nil)
	token := signUpForToken(t, app)

	w := createPost(t, app, token, "", []byte("image bytes"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("image-only post status = %d, want 400", w.Code)
	}
	if posts, _ := getJSON(t, app, "/feed")["posts"].([]any); len(posts) != 0 {
		t.Fatalf("rejected post was written: %v", posts)
	}
}

func TestCreatePostUploadFailureWritesNothing(t *testing.T) {
	app := newTestApp(t, nil)
	token := signUpForToken(t, app)
	app.blobs.FailUploads = true

	w := createPost(t, app, token, "hello", []byte("image bytes"))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("failed-upload post status = %d, want 502", w.Code)
	}
	if posts, _ := getJSON(t, app, "/feed")["posts"].([]any); len(posts) != 0 {
		t.Fatalf("structured write happened despite upload failure: %v", posts)
	}
}

func TestCreatePostWithoutActiveSession(t *testing.T) {
	app := newTestApp(t, nil)

	// a syntactically valid token for a user the process has no session for
	acct := &identity.Account{UID: "ghost"}
	token, err := tokens.GenerateAccessToken(app.cfg, acct, time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}
	w := createPost(t, app, token, "hello", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("no-session post status = %d, want 409", w.Code)
	}
}

func TestCreatePostTokenSessionMismatch(t *testing.T) {
	app := newTestApp(t, nil)
	signUpForToken(t, app)

	other, err := tokens.GenerateAccessToken(app.cfg, &identity.Account{UID: "someone-else"}, time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}
	w := createPost(t, app, other, "hello", nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("mismatched-token post status = %d, want 403", w.Code)
	}
}

func TestCommentFlow(t *testing.T) {
	app := newTestApp(t, nil)
	token := signUpForToken(t, app)

	if w := createPost(t, app, token, "hello", nil); w.Code != http.StatusCreated {
		t.Fatalf("post failed: %d", w.Code)
	}
	posts, _ := getJSON(t, app, "/feed")["posts"].([]any)
	p, _ := posts[0].(map[string]any)
	postID, _ := p["id"].(string)
	if postID == "" {
		t.Fatalf("post id missing: %v", p)
	}

	body, _ := json.Marshal(map[string]string{"text": "nice"})
	req := httptest.NewRequest(http.MethodPost, "/posts/"+postID+"/comments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("comment status = %d, body %s", w.Code, w.Body.String())
	}

	comments, _ := getJSON(t, app, "/posts/"+postID+"/comments")["comments"].([]any)
	if len(comments) != 1 {
		t.Fatalf("thread has %d comments, want 1", len(comments))
	}
	cm, _ := comments[0].(map[string]any)
	if cm["text"] != "nice" || cm["username"] != "bob" {
		t.Fatalf("comment shape wrong: %v", cm)
	}

	// the other post's thread stays empty
	if other, _ := getJSON(t, app, "/posts/other/comments")["comments"].([]any); len(other) != 0 {
		t.Fatalf("comment leaked across threads: %v", other)
	}
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chirpfeed/chirpfeed/internal/composer"
	"github.com/chirpfeed/chirpfeed/internal/feed"
	"github.com/chirpfeed/chirpfeed/internal/gating"
	"github.com/chirpfeed/chirpfeed/internal/router"
	"github.com/chirpfeed/chirpfeed/internal/session"
	"github.com/chirpfeed/chirpfeed/internal/store"
	"github.com/chirpfeed/chirpfeed/pkg/logger"
)

// FeedHandler serves the live feed, comment threads and post creation.
type FeedHandler struct {
	st   store.Store
	comp *composer.Composer
	sess *session.Manager
}

func NewFeedHandler(st store.Store, comp *composer.Composer, sess *session.Manager) *FeedHandler {
	return &FeedHandler{st: st, comp: comp, sess: sess}
}

// Register wires read routes openly and write routes behind the auth middleware.
func (h *FeedHandler) Register(r *gin.Engine, authMW gin.HandlerFunc) {
	r.GET("/experience", h.Experience)
	r.GET("/feed", h.FeedSnapshot)
	r.GET("/feed/live", h.LiveFeed)
	r.GET("/posts/:id/comments", h.CommentsSnapshot)
	r.GET("/posts/:id/comments/live", h.LiveComments)

	writes := r.Group("/", authMW)
	writes.POST("/posts", h.CreatePost)
	writes.POST("/posts/:id/comments", h.CreateComment)
}

// Experience reports which top-level experience the current session routes
// to. Pure function of the session user.
func (h *FeedHandler) Experience(c *gin.Context) {
	user := h.sess.Current()
	c.JSON(http.StatusOK, gin.H{
		"experience": router.Route(user).String(),
		"user":       user,
	})
}

// FeedSnapshot returns the current ordered post list once.
func (h *FeedHandler) FeedSnapshot(c *gin.Context) {
	pf := feed.NewPostFeed(h.st)
	if err := pf.Open(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "feed unavailable", "details": err.Error()})
		return
	}
	defer pf.Close()
	c.JSON(http.StatusOK, gin.H{"posts": pf.Posts()})
}

// LiveFeed streams the post list over server-sent events: one event per
// snapshot replacement, the full ordered list every time.
func (h *FeedHandler) LiveFeed(c *gin.Context) {
	pf := feed.NewPostFeed(h.st)
	if err := pf.Open(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "feed unavailable", "details": err.Error()})
		return
	}
	defer pf.Close()

	streamSSE(c, pf.Changed(), func() any { return pf.Posts() })
}

// CommentsSnapshot returns the current comment list for a post once.
func (h *FeedHandler) CommentsSnapshot(c *gin.Context) {
	th := feed.NewCommentThread(h.st)
	if err := th.SetPost(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "comments unavailable", "details": err.Error()})
		return
	}
	defer th.Close()
	c.JSON(http.StatusOK, gin.H{"comments": th.Comments()})
}

// LiveComments streams a single post's comment thread over server-sent events.
func (h *FeedHandler) LiveComments(c *gin.Context) {
	th := feed.NewCommentThread(h.st)
	if err := th.SetPost(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "comments unavailable", "details": err.Error()})
		return
	}
	defer th.Close()

	streamSSE(c, th.Changed(), func() any { return th.Comments() })
}

// streamSSE writes the current snapshot immediately, then again on every
// change signal until the client disconnects. The subscription handle is
// released by the caller's deferred Close.
func streamSSE(c *gin.Context, changed <-chan struct{}, snapshot func() any) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.SSEvent("snapshot", snapshot())
	c.Writer.Flush()

	done := c.Request.Context().Done()
	for {
		select {
		case <-done:
			return
		case <-changed:
			c.SSEvent("snapshot", snapshot())
			c.Writer.Flush()
		}
	}
}

// CreatePost accepts a multipart form: "text" plus an optional "image" file.
// Submission is disabled without text, image or not.
func (h *FeedHandler) CreatePost(c *gin.Context) {
	if !h.requireActiveSession(c) {
		return
	}

	text := c.PostForm("text")
	if !gating.CanSubmitPost(text) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message text is required"})
		return
	}

	var image *composer.Attachment
	if fh, err := c.FormFile("image"); err == nil && fh != nil {
		att, err := readAttachment(fh)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read image file", "details": err.Error()})
			return
		}
		image = att
	}

	if err := h.comp.SubmitPost(c.Request.Context(), text, image); err != nil {
		logger.Errorf("post submission failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "posted"})
}

// CreateComment accepts {"text": ...} for the post in the path.
func (h *FeedHandler) CreateComment(c *gin.Context) {
	if !h.requireActiveSession(c) {
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !gating.CanSubmitComment(req.Text) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "comment text is required"})
		return
	}

	if err := h.comp.SubmitComment(c.Request.Context(), c.Param("id"), req.Text); err != nil {
		logger.Errorf("comment submission failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "commented"})
}

// requireActiveSession rejects writes when the bearer token does not belong
// to the session the process currently mirrors. The composer stamps records
// with the session user's profile, so a mismatched caller must not write.
func (h *FeedHandler) requireActiveSession(c *gin.Context) bool {
	user := h.sess.Current()
	if !user.SignedIn() {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "no active session"})
		return false
	}
	if v, ok := c.Get("claims"); ok {
		if cm, ok2 := v.(map[string]interface{}); ok2 {
			if sub, ok3 := cm["sub"].(string); ok3 && sub == user.UID {
				return true
			}
		}
	}
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "token does not match the active session"})
	return false
}

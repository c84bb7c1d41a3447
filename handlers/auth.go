package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chirpfeed/chirpfeed/internal/composer"
	"github.com/chirpfeed/chirpfeed/internal/config"
	"github.com/chirpfeed/chirpfeed/internal/gating"
	"github.com/chirpfeed/chirpfeed/internal/identity"
	"github.com/chirpfeed/chirpfeed/internal/models"
	"github.com/chirpfeed/chirpfeed/internal/sessions"
	"github.com/chirpfeed/chirpfeed/internal/tokens"
	"github.com/chirpfeed/chirpfeed/pkg/logger"
)

// SignInRequest carries email+password credentials.
type SignInRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthHandler holds dependencies
type AuthHandler struct {
	cfg         *config.Config
	provider    identity.Provider
	accounts    identity.AccountRepository
	comp        *composer.Composer
	sessionsSvc *sessions.Service
}

func NewAuthHandler(cfg *config.Config, provider identity.Provider, accounts identity.AccountRepository, comp *composer.Composer, s *sessions.Service) *AuthHandler {
	return &AuthHandler{cfg: cfg, provider: provider, accounts: accounts, comp: comp, sessionsSvc: s}
}

// Register routes under /auth
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/auth")
	a.POST("/signin", h.SignIn)
	a.POST("/signup", h.SignUp)
	a.POST("/signout", h.SignOut)
	a.POST("/reset", h.Reset)
	a.POST("/federated", h.Federated)
	a.POST("/refresh", h.Refresh)
}

// SignIn authenticates email+password credentials and issues tokens.
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !gating.CanSignIn(req.Email, req.Password) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and a password of at least 6 characters are required"})
		return
	}

	acct, err := h.provider.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	h.respondWithTokens(c, acct)
}

// SignUp registers a new account from a multipart form: username, email,
// password and an avatar file. The avatar upload completes before the
// profile write.
func (h *AuthHandler) SignUp(c *gin.Context) {
	username := c.PostForm("username")
	email := c.PostForm("email")
	password := c.PostForm("password")
	fileHeader, fileErr := c.FormFile("avatar")
	hasAvatar := fileErr == nil && fileHeader != nil

	if !gating.CanRegister(username, email, password, hasAvatar) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username, email, a password of at least 6 characters and an avatar image are required"})
		return
	}

	avatar, err := readAttachment(fileHeader)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read avatar file", "details": err.Error()})
		return
	}

	acct, err := h.comp.Register(c.Request.Context(), username, email, password, avatar)
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, identity.ErrWeakPassword):
			status = http.StatusBadRequest
		case errors.Is(err, identity.ErrEmailInUse):
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	h.respondWithTokens(c, acct)
}

// SignOut revokes the refresh session, blacklists the presented access token
// and clears the provider's auth state.
func (h *AuthHandler) SignOut(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.RefreshToken != "" {
		if err := h.sessionsSvc.DeleteRefresh(c.Request.Context(), req.RefreshToken); err != nil {
			logger.Warnf("failed to delete refresh session: %v", err)
		}
	}
	if raw, ok := c.Get("rawToken"); ok {
		if tok, ok2 := raw.(string); ok2 {
			_ = sessions.BlacklistAccessToken(c.Request.Context(), tok, h.cfg.Identity.AccessTokenTTL)
		}
	}
	if err := h.provider.SignOut(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "signed_out"})
}

// Reset sends a password-reset message for the given email.
func (h *AuthHandler) Reset(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.provider.SendPasswordReset(c.Request.Context(), req.Email); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, identity.ErrUnknownAccount) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset_sent"})
}

// Federated exchanges an externally issued ID token for a local session.
func (h *AuthHandler) Federated(c *gin.Context) {
	var req struct {
		IDToken string `json:"id_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	acct, err := h.provider.SignInFederated(c.Request.Context(), req.IDToken)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, identity.ErrNotConfigured) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	h.respondWithTokens(c, acct)
}

// Refresh accepts a refresh token and returns a new access token
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := h.sessionsSvc.ValidateRefresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "validation failed"})
		return
	}
	if sess == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	stored, err := h.accounts.GetByUID(c.Request.Context(), sess.UID)
	if err != nil || stored == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "account lookup failed"})
		return
	}
	acct := &identity.Account{UID: stored.UID, Email: stored.Email, DisplayName: stored.DisplayName, PhotoURL: stored.PhotoURL}
	access, err := tokens.GenerateAccessToken(h.cfg, acct, h.cfg.Identity.AccessTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create access token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accessToken": access, "expiresIn": int(h.cfg.Identity.AccessTokenTTL.Seconds())})
}

func (h *AuthHandler) respondWithTokens(c *gin.Context, acct *identity.Account) {
	refresh, err := h.sessionsSvc.CreateSession(c.Request.Context(), acct.UID, h.cfg.Identity.RefreshTokenTTL)
	if err != nil {
		logger.Errorf("failed to create session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	access, err := tokens.GenerateAccessToken(h.cfg, acct, h.cfg.Identity.AccessTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create access token"})
		return
	}
	user := models.User{UID: acct.UID, DisplayName: acct.DisplayName, PhotoURL: acct.PhotoURL}
	c.JSON(http.StatusOK, gin.H{
		"accessToken":  access,
		"refreshToken": refresh,
		"user":         user,
		"expiresIn":    int(h.cfg.Identity.AccessTokenTTL.Seconds()),
	})
}

func readAttachment(fh *multipart.FileHeader) (*composer.Attachment, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &composer.Attachment{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

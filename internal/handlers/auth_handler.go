package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fittrack/backend/internal/models"
	"github.com/fittrack/backend/internal/services/affiliate"
	"github.com/fittrack/backend/internal/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AuthHandler handles signup and login
type AuthHandler struct {
	db      *gorm.DB
	tracker *affiliate.Tracker
	issuer  *utils.TokenIssuer
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(db *gorm.DB, tracker *affiliate.Tracker, issuer *utils.TokenIssuer) *AuthHandler {
	return &AuthHandler{
		db:      db,
		tracker: tracker,
		issuer:  issuer,
		logger:  slog.Default().With("module", "handlers", "handler", "auth"),
	}
}

// RegisterRequest represents the request body for signup
type RegisterRequest struct {
	Email        string `json:"email" binding:"required,email"`
	Password     string `json:"password" binding:"required"`
	DisplayName  string `json:"display_name" binding:"required,max=100"`
	ReferralCode string `json:"referral_code"`
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is returned by signup and login
type TokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        *models.User `json:"user"`
	Referred    bool         `json:"referred,omitempty"`
}

// Register creates an account. A referral code that cannot be used never fails
// the signup; the account is simply created without a referral.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := utils.ValidatePassword(req.Password); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	var count int64
	if err := h.db.WithContext(c.Request.Context()).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		respondError(c, err)
		return
	}
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Email already in use"})
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process password"})
		return
	}

	user := models.User{
		Email:        email,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		PasswordHash: hash,
		Role:         models.RoleUser,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&user).Error; err != nil {
		h.logger.Error("failed to create user", "email", email, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	ref := h.tracker.RegisterAtSignup(c.Request.Context(), user.ID, req.ReferralCode)

	resp, err := h.tokenResponse(&user)
	if err != nil {
		respondError(c, err)
		return
	}
	resp.Referred = ref != nil
	h.logger.Info("user registered", "user_id", user.ID, "referred", resp.Referred)
	c.JSON(http.StatusCreated, resp)
}

// Login exchanges credentials for an access token
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	err := h.db.WithContext(c.Request.Context()).Take(&user, "email = ?", strings.ToLower(strings.TrimSpace(req.Email))).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	if !utils.CheckPasswordHash(req.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	now := time.Now().UTC()
	user.LastLoginAt = &now
	if err := h.db.WithContext(c.Request.Context()).Model(&user).Update("last_login_at", now).Error; err != nil {
		h.logger.Warn("failed to record login time", "user_id", user.ID, "error", err)
	}

	resp, err := h.tokenResponse(&user)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AuthHandler) tokenResponse(user *models.User) (*TokenResponse, error) {
	token, expiresAt, err := h.issuer.GenerateToken(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, err
	}
	return &TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		User:        user,
	}, nil
}

package authservice

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"pieceServer/backend/internal/store"
)

type UserRepo interface {
	CreateUser(ctx context.Context, username, passwordHash string) (uint64, error)
	GetUserByUsername(ctx context.Context, username string) (*store.User, error)
}

type credentialsReq struct {
	Username string `json:"username" binding:"required,max=64"`
	Password string `json:"password" binding:"required,min=6"`
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type Handler struct {
	users  UserRepo
	signer *Signer
	cost   int
}

func NewHandler(users UserRepo, signer *Signer) *Handler {
	return &Handler{users: users, signer: signer, cost: bcrypt.DefaultCost}
}

func (h *Handler) issue(c *gin.Context, userID uint64, username string) {
	access, _, err := h.signer.SignAccessToken(userID, username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "message": "sign access token failed"})
		return
	}
	refresh, _, err := h.signer.SignRefreshToken(userID, username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "message": "sign refresh token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accessToken":  access,
		"refreshToken": refresh,
		"expiresIn":    int(h.signer.AccessTTL.Seconds()),
		"tokenType":    "Bearer",
		"user":         gin.H{"id": userID, "username": username},
	})
}

// POST /v1/auth/login {"username": "admin", "password": "123456"}
func (h *Handler) Login(c *gin.Context) {
	var req credentialsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "message": err.Error()})
		return
	}
	u, err := h.users.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHENTICATED", "message": "用户名或密码错误"})
			return
		}
		log.Printf("login lookup failed user=%s err=%v", req.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "message": "获取用户失败"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHENTICATED", "message": "用户名或密码错误"})
		return
	}
	h.issue(c, u.ID, u.Username)
}

func (h *Handler) Register(c *gin.Context) {
	var req credentialsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "message": err.Error()})
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.cost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "message": "生成密码哈希失败"})
		return
	}
	userID, err := h.users.CreateUser(c.Request.Context(), req.Username, string(hash))
	if err != nil {
		if errors.Is(err, store.ErrUserExists) {
			c.JSON(http.StatusConflict, gin.H{"code": "CONFLICT", "message": "用户名已存在"})
			return
		}
		log.Printf("register failed user=%s err=%v", req.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "message": "创建用户失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": userID})
}

// Refresh：校验 refresh token 后重新签发一对 token
func (h *Handler) Refresh(c *gin.Context) {
	var req refreshReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "message": err.Error()})
		return
	}
	claims, err := h.signer.ParseTyped(req.RefreshToken, TokenRefresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHENTICATED", "message": "refreshToken 无效"})
		return
	}
	h.issue(c, claims.UserID, claims.Username)
}

// Verify：返回 access token 的 claims
func (h *Handler) Verify(c *gin.Context) {
	token := ExtractBearer(c.GetHeader("Authorization"))
	claims, err := h.signer.ParseTyped(token, TokenAccess)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHENTICATED", "message": "invalid token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": claims.UserID, "username": claims.Username, "type": claims.Type})
}

// ExtractBearer 取出 "Bearer xxx" 中的 token，前缀大小写不敏感
func ExtractBearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pieceServer/backend/internal/authservice"
)

// AuthMiddleware 在本进程内校验 access token，通过后写入 userId / username
func AuthMiddleware(signer *authservice.Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := authservice.ExtractBearer(c.GetHeader("Authorization"))
		if tokenString == "" {
			// 兼容 WebSocket：浏览器无法自定义 Header，允许从 ?token= 中获取
			tokenString = strings.TrimSpace(c.Query("token"))
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHENTICATED",
				"message": "Authorization header is missing or invalid",
			})
			return
		}
		claims, err := signer.ParseTyped(tokenString, authservice.TokenAccess)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHENTICATED",
				"message": err.Error(),
			})
			return
		}
		c.Set("userId", claims.UserID)
		c.Set("username", claims.Username)
		c.Next()
	}
}

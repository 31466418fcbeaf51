package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AdminTokenHeader carries the admin co-signer token on gated writes.
const AdminTokenHeader = "X-Admin-Token"

const (
	ctxSigner = "blockguardian_signer"
	ctxAdmin  = "blockguardian_admin"
)

// RequireSigner returns a Gin middleware that enforces a valid Bearer signer
// token and injects the signer's public key into the context.
func RequireSigner() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer signer token required",
			})
			return
		}

		signer, _, err := VerifySignerToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token: " + err.Error(),
			})
			return
		}

		c.Set(ctxSigner, signer)
		c.Next()
	}
}

// OptionalAdmin returns a Gin middleware that verifies the admin co-signer
// token when present. A malformed or invalid token aborts with 401; an
// absent header passes through with no admin in the context.
func OptionalAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := c.GetHeader(AdminTokenHeader)
		if tokenStr == "" {
			c.Next()
			return
		}
		admin, _, err := VerifySignerToken(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid admin token: " + err.Error(),
			})
			return
		}
		c.Set(ctxAdmin, admin)
		c.Next()
	}
}

// SignerFromCtx retrieves the key injected by RequireSigner.
func SignerFromCtx(c *gin.Context) (PublicKey, bool) {
	v, ok := c.Get(ctxSigner)
	if !ok {
		return PublicKey{}, false
	}
	k, ok := v.(PublicKey)
	return k, ok
}

// AdminFromCtx retrieves the admin key injected by OptionalAdmin, or nil.
func AdminFromCtx(c *gin.Context) *PublicKey {
	v, ok := c.Get(ctxAdmin)
	if !ok {
		return nil
	}
	k, ok := v.(PublicKey)
	if !ok {
		return nil
	}
	return &k
}

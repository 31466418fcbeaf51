package identity_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jmerrifield20/blockguardian/internal/identity"
)

func TestIssueSignerToken_verifies(t *testing.T) {
	kp, _ := identity.GenerateKeypair()

	token, err := identity.IssueSignerToken(kp, "store_proof", time.Minute)
	if err != nil {
		t.Fatalf("IssueSignerToken: %v", err)
	}
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Fatalf("expected 3-part JWT, got %d parts", len(parts))
	}

	signer, claims, err := identity.VerifySignerToken(token)
	if err != nil {
		t.Fatalf("VerifySignerToken: %v", err)
	}
	if signer != kp.PublicKey() {
		t.Errorf("signer: got %s, want %s", signer, kp.PublicKey())
	}
	if claims.Purpose != "store_proof" {
		t.Errorf("purpose: got %q", claims.Purpose)
	}
}

func TestIssueSignerToken_ttlTooLong(t *testing.T) {
	kp, _ := identity.GenerateKeypair()
	_, err := identity.IssueSignerToken(kp, "", time.Hour)
	if !errors.Is(err, identity.ErrTokenLifetime) {
		t.Errorf("expected ErrTokenLifetime, got %v", err)
	}
}

func TestVerifySignerToken_subjectMismatch(t *testing.T) {
	signerKey, _ := identity.GenerateKeypair()
	claimed, _ := identity.GenerateKeypair()

	now := time.Now()
	claims := identity.SignerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claimed.PublicKey().String(),
			Audience:  jwt.ClaimStrings{identity.TokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(signerKey.PrivateKey())
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := identity.VerifySignerToken(forged); err == nil {
		t.Error("expected verification failure for token signed by a different key")
	}
}

func TestVerifySignerToken_wrongAudience(t *testing.T) {
	kp, _ := identity.GenerateKeypair()
	now := time.Now()
	claims := identity.SignerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   kp.PublicKey().String(),
			Audience:  jwt.ClaimStrings{"someone-else"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
	tok, _ := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(kp.PrivateKey())

	if _, _, err := identity.VerifySignerToken(tok); err == nil {
		t.Error("expected audience failure")
	}
}

func TestVerifySignerToken_lifetimeTooLong(t *testing.T) {
	kp, _ := identity.GenerateKeypair()
	now := time.Now()
	claims := identity.SignerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   kp.PublicKey().String(),
			Audience:  jwt.ClaimStrings{identity.TokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
		},
	}
	tok, _ := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(kp.PrivateKey())

	if _, _, err := identity.VerifySignerToken(tok); !errors.Is(err, identity.ErrTokenLifetime) {
		t.Errorf("expected ErrTokenLifetime, got %v", err)
	}
}

func TestVerifySignerToken_garbage(t *testing.T) {
	if _, _, err := identity.VerifySignerToken("not.a.token"); err == nil {
		t.Error("expected error")
	}
}

func newSignerRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", identity.RequireSigner(), identity.OptionalAdmin(), func(c *gin.Context) {
		signer, _ := identity.SignerFromCtx(c)
		resp := gin.H{"signer": signer.String()}
		if admin := identity.AdminFromCtx(c); admin != nil {
			resp["admin"] = admin.String()
		}
		c.JSON(http.StatusOK, resp)
	})
	return r
}

func TestRequireSigner_missingHeader(t *testing.T) {
	r := newSignerRouter()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRequireSigner_validTokenAndAdmin(t *testing.T) {
	r := newSignerRouter()
	caller, _ := identity.GenerateKeypair()
	admin, _ := identity.GenerateKeypair()
	callerTok, _ := identity.IssueSignerToken(caller, "", time.Minute)
	adminTok, _ := identity.IssueSignerToken(admin, "", time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+callerTok)
	req.Header.Set(identity.AdminTokenHeader, adminTok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, caller.PublicKey().String()) || !strings.Contains(body, admin.PublicKey().String()) {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestOptionalAdmin_invalidToken(t *testing.T) {
	r := newSignerRouter()
	caller, _ := identity.GenerateKeypair()
	callerTok, _ := identity.IssueSignerToken(caller, "", time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+callerTok)
	req.Header.Set(identity.AdminTokenHeader, "garbage")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

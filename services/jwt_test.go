package services

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lac-hong-legacy/lms_api/shared"
)

func newTestJWTService() *JWTService {
	return &JWTService{
		AccessTokenDuration: time.Hour,
		jwtSecretKey:        "test-secret",
	}
}

func TestJWT_RoundTrip(t *testing.T) {
	svc := newTestJWTService()

	token, err := svc.ToJWT("42", shared.RoleAdmin)
	require.NoError(t, err)

	claims, err := svc.VerifyJWTToken(token)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.UserID)
	assert.Equal(t, shared.RoleAdmin, claims.Role)
	assert.Equal(t, jwtIssuer, claims.Issuer)
}

func TestJWT_RejectsBadTokens(t *testing.T) {
	svc := newTestJWTService()

	other := &JWTService{AccessTokenDuration: time.Hour, jwtSecretKey: "another-secret"}
	foreign, err := other.ToJWT("42", shared.RoleAdmin)
	require.NoError(t, err)
	_, err = svc.VerifyJWTToken(foreign)
	assert.Error(t, err)

	expired := &JWTService{AccessTokenDuration: -time.Minute, jwtSecretKey: "test-secret"}
	stale, err := expired.ToJWT("42", shared.RoleAdmin)
	require.NoError(t, err)
	_, err = svc.VerifyJWTToken(stale)
	assert.Error(t, err)

	noExpiry := jwt.NewWithClaims(jwt.SigningMethodHS256, &CustomClaims{
		UserID:           "42",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: jwtIssuer},
	})
	signed, err := noExpiry.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = svc.VerifyJWTToken(signed)
	assert.Error(t, err)
}

func TestExtractTokenFromHeader(t *testing.T) {
	svc := newTestJWTService()

	token, err := svc.ExtractTokenFromHeader("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", token)

	for _, header := range []string{"", "Bearer ", "Basic abc", "abc.def"} {
		_, err := svc.ExtractTokenFromHeader(header)
		assert.Error(t, err, header)
	}
}

func TestAuthMiddleware(t *testing.T) {
	jwtSvc := newTestJWTService()
	mw := &AuthMiddleware{jwtSvc: jwtSvc}

	app := fiber.New()
	app.Get("/admin", mw.RequiredAuth(), mw.RequireRole(shared.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendString(c.Locals(shared.UserID).(string))
	})

	send := func(token string) int {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		if token != "" {
			req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
		}
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp.StatusCode
	}

	admin, err := jwtSvc.ToJWT("1", shared.RoleAdmin)
	require.NoError(t, err)
	student, err := jwtSvc.ToJWT("2", "user")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, send(admin))
	assert.Equal(t, http.StatusForbidden, send(student))
	assert.Equal(t, http.StatusUnauthorized, send(""))
	assert.Equal(t, http.StatusUnauthorized, send("not-a-token"))
}

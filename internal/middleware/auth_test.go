package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

// echo records the identity headers the wrapped handler saw.
func echo(seen *[2]string) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		seen[0] = string(ctx.Request.Header.Peek(HeaderUserID))
		seen[1] = string(ctx.Request.Header.Peek(HeaderUserRole))
		ctx.SetStatusCode(fasthttp.StatusOK)
	}
}

func serve(h fasthttp.RequestHandler, headers map[string]string) int {
	var ctx fasthttp.RequestCtx
	ctx.Request.SetRequestURI("/api/v1/floor")
	for k, v := range headers {
		ctx.Request.Header.Set(k, v)
	}
	h(&ctx)
	return ctx.Response.StatusCode()
}

func TestJWTAuthForwardsClaims(t *testing.T) {
	token, err := IssueToken(testSecret, "floorplan", "ann", "admin")
	require.NoError(t, err)

	var seen [2]string
	h := JWTAuth(testSecret, "floorplan", zap.NewNop())(echo(&seen))
	status := serve(h, map[string]string{
		"Authorization": "Bearer " + token,
		HeaderUserID:    "mallory",
		HeaderUserRole:  "SUPER_ADMIN",
	})

	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Equal(t, "ann", seen[0])
	assert.Equal(t, "ADMIN", seen[1])
}

func TestJWTAuthRejects(t *testing.T) {
	wrongSecret, err := IssueToken("other", "floorplan", "ann", "ADMIN")
	require.NoError(t, err)
	wrongIssuer, err := IssueToken(testSecret, "elsewhere", "ann", "ADMIN")
	require.NoError(t, err)
	noUser, err := IssueToken(testSecret, "floorplan", "", "ADMIN")
	require.NoError(t, err)

	cases := map[string]map[string]string{
		"missing token":  {HeaderUserID: "ann", HeaderUserRole: "ADMIN"},
		"garbage token":  {"Authorization": "Bearer not-a-jwt"},
		"wrong secret":   {"Authorization": "Bearer " + wrongSecret},
		"wrong issuer":   {"Authorization": "Bearer " + wrongIssuer},
		"missing userID": {"Authorization": noUser},
	}
	for name, headers := range cases {
		t.Run(name, func(t *testing.T) {
			var seen [2]string
			h := JWTAuth(testSecret, "floorplan", zap.NewNop())(echo(&seen))
			assert.Equal(t, fasthttp.StatusUnauthorized, serve(h, headers))
			assert.Empty(t, seen[0])
		})
	}
}

func TestIdentityWithoutSecretTrustsHeaders(t *testing.T) {
	var seen [2]string
	h := Identity("", "", zap.NewNop())(echo(&seen))
	status := serve(h, map[string]string{HeaderUserID: "eve", HeaderUserRole: "EMPLOYEE"})
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Equal(t, "eve", seen[0])
}

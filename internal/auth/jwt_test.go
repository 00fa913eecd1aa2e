package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "school-platform"
)

func TestIssueParse(t *testing.T) {
	p := Principal{UserID: "u-1", Role: RoleTeacher, SchoolID: 7, Name: "Ms. Rao"}
	pair, err := Issue(p, testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)
	assert.True(t, pair.RefreshExp.After(pair.AccessExp))

	got, err := Parse(pair.AccessToken, testKey, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	t.Run("wrong key", func(t *testing.T) {
		_, err := Parse(pair.AccessToken, "other", testIssuer)
		assert.Error(t, err)
	})
	t.Run("wrong issuer", func(t *testing.T) {
		_, err := Parse(pair.AccessToken, testKey, "someone-else")
		assert.Error(t, err)
	})
	t.Run("expired", func(t *testing.T) {
		old, err := Issue(p, testIssuer, testKey, -time.Minute, time.Hour)
		require.NoError(t, err)
		_, err = Parse(old.AccessToken, testKey, testIssuer)
		assert.Error(t, err)
	})
	t.Run("missing role", func(t *testing.T) {
		bare, err := Issue(Principal{UserID: "u-2"}, testIssuer, testKey, time.Minute, time.Hour)
		require.NoError(t, err)
		_, err = Parse(bare.AccessToken, testKey, testIssuer)
		assert.Error(t, err)
	})
}

func TestPrincipal_HasRole(t *testing.T) {
	p := Principal{Role: RoleAdmin}
	assert.True(t, p.HasRole(RoleTeacher, RoleAdmin))
	assert.False(t, p.HasRole(RoleSuperAdmin))
	assert.False(t, p.HasRole())
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/staff", Authenticate(testKey, testIssuer), RequireRole(RoleAdmin, RoleTeacher), func(c *gin.Context) {
		p, ok := FromContext(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"user": p.UserID, "token": TokenFromContext(c)})
	})

	token := func(role string) string {
		pair, err := Issue(Principal{UserID: "u-1", Role: role, SchoolID: 7}, testIssuer, testKey, time.Minute, time.Hour)
		require.NoError(t, err)
		return pair.AccessToken
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "no header", want: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "student", header: "Bearer " + token(RoleStudent), want: http.StatusForbidden},
		{name: "teacher", header: "Bearer " + token(RoleTeacher), want: http.StatusOK},
		{name: "lowercase scheme", header: "bearer " + token(RoleAdmin), want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/staff", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

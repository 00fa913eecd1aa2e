package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles known to the school platform.
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleTeacher    = "teacher"
	RoleStudent    = "student"
)

// TokenPair holds access and refresh tokens.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
}

// Principal is the signed-in user, built once from a verified token.
type Principal struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	SchoolID int64  `json:"school_id"`
	Name     string `json:"name,omitempty"`
}

// HasRole reports whether the principal holds one of roles.
func (p Principal) HasRole(roles ...string) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// Claims represents JWT payload.
type Claims struct {
	Role     string `json:"role"`
	SchoolID int64  `json:"school_id"`
	Name     string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Principal converts verified claims.
func (c Claims) Principal() Principal {
	return Principal{UserID: c.Subject, Role: c.Role, SchoolID: c.SchoolID, Name: c.Name}
}

// Issue issues signed access and refresh tokens for p.
func Issue(p Principal, issuer, key string, accessTTL, refreshTTL time.Duration) (TokenPair, error) {
	now := time.Now()
	accessExp := now.Add(accessTTL)
	refreshExp := now.Add(refreshTTL)

	sign := func(exp time.Time) (string, error) {
		claims := Claims{
			Role:     p.Role,
			SchoolID: p.SchoolID,
			Name:     p.Name,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    issuer,
				Subject:   p.UserID,
				ExpiresAt: jwt.NewNumericDate(exp),
				IssuedAt:  jwt.NewNumericDate(now),
			},
		}
		return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	}

	accessToken, err := sign(accessExp)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := sign(refreshExp)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

// Parse validates a token and returns the principal it names.
func Parse(tokenStr, key, issuer string) (Principal, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return Principal{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Principal{}, errors.New("invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return Principal{}, errors.New("issuer mismatch")
	}
	if claims.Subject == "" || claims.Role == "" {
		return Principal{}, errors.New("token missing subject or role")
	}
	return claims.Principal(), nil
}

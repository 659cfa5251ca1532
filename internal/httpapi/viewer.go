package httpapi

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/guilleojeda/community-content-tracker-sub003/internal/visibility"
)

const viewerContextKey = "auth.viewer"

// Claims is the bearer token payload. The subject is the user id.
type Claims struct {
	IsAdmin       bool `json:"is_admin,omitempty"`
	IsAWSEmployee bool `json:"is_aws_employee,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for userID. Used by operators and tests.
func IssueToken(secret, issuer, userID string, isAdmin, isAWSEmployee bool, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", fmt.Errorf("jwt secret is required")
	}
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("user id is required")
	}
	now := time.Now().UTC()
	claims := Claims{
		IsAdmin:       isAdmin,
		IsAWSEmployee: isAWSEmployee,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			Issuer:   issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func (s *Server) parseToken(raw string) (*Claims, error) {
	if s.opts.JWTSecret == "" {
		return nil, fmt.Errorf("token authentication is not configured")
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.opts.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(s.opts.JWTIssuer))
	}

	claims := &Claims{}
	token, err := jwt.NewParser(opts...).ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(s.opts.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return claims, nil
}

// resolveViewer attaches a visibility.Viewer to every request. A missing
// Authorization header yields the anonymous viewer; a bad token is a 401.
func (s *Server) resolveViewer() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := strings.TrimSpace(c.Request().Header.Get(echo.HeaderAuthorization))
			if header == "" {
				c.Set(viewerContextKey, visibility.Viewer{})
				return next(c)
			}

			scheme, raw, found := strings.Cut(header, " ")
			if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
				return unauthorized(c, "Authorization header must be a bearer token")
			}

			claims, err := s.parseToken(strings.TrimSpace(raw))
			if err != nil {
				s.logger.Debug().Err(err).Msg("bearer token rejected")
				return unauthorized(c, "Invalid or expired token")
			}

			viewer, err := visibility.Resolve(c.Request().Context(), s.badges, claims.Subject, claims.IsAdmin, claims.IsAWSEmployee)
			if err != nil {
				s.logger.Error().Err(err).Str("user_id", claims.Subject).Msg("resolve viewer failed")
				return internalError(c, "Failed to authorize request")
			}

			c.Set(viewerContextKey, viewer)
			return next(c)
		}
	}
}

func requireViewer(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if viewerFromContext(c).Anonymous() {
			return unauthorized(c, "Authentication required")
		}
		return next(c)
	}
}

func viewerFromContext(c echo.Context) visibility.Viewer {
	if c == nil {
		return visibility.Viewer{}
	}
	viewer, _ := c.Get(viewerContextKey).(visibility.Viewer)
	return viewer
}

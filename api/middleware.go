// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// AuthConfig holds the credentials accepted on admin routes.
type AuthConfig struct {
	// InternalToken is accepted as "Authorization: Token <token>".
	// Empty disables service tokens.
	InternalToken string

	// JWTSecret verifies "Authorization: Bearer <jwt>" tokens signed with HS256.
	// The token must carry role=admin or is_staff=true. Empty disables JWTs.
	JWTSecret string
}

// RequireAdmin rejects requests without admin credentials.
// Missing or unverifiable credentials get 401, a valid non-admin JWT gets 403.
func RequireAdmin(config AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme, credential, ok := strings.Cut(strings.TrimSpace(c.GetHeader("Authorization")), " ")
		credential = strings.TrimSpace(credential)
		if !ok || credential == "" {
			abortError(c, http.StatusUnauthorized, "unauthorized", ErrMissingToken)
			return
		}

		switch {
		case strings.EqualFold(scheme, "Token") && config.InternalToken != "":
			if subtle.ConstantTimeCompare([]byte(credential), []byte(config.InternalToken)) != 1 {
				abortError(c, http.StatusUnauthorized, "unauthorized", ErrInvalidToken)
				return
			}
		case strings.EqualFold(scheme, "Bearer") && config.JWTSecret != "":
			claims, err := parseClaims(credential, config.JWTSecret)
			if err != nil {
				abortError(c, http.StatusUnauthorized, "unauthorized", ErrInvalidToken)
				return
			}
			if !isAdmin(claims) {
				abortError(c, http.StatusForbidden, "forbidden", ErrForbidden)
				return
			}
			if sub, err := claims.GetSubject(); err == nil && sub != "" {
				c.Set(userIDKey, sub)
			}
		default:
			abortError(c, http.StatusUnauthorized, "unauthorized", ErrMissingToken)
			return
		}
		c.Next()
	}
}

const userIDKey = "user_id"

// OptionalIdentity records the subject of a valid bearer JWT, if any.
// Requests without one, or with an invalid one, pass through anonymously.
func OptionalIdentity(config AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if config.JWTSecret == "" {
			c.Next()
			return
		}
		scheme, credential, ok := strings.Cut(strings.TrimSpace(c.GetHeader("Authorization")), " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			if claims, err := parseClaims(strings.TrimSpace(credential), config.JWTSecret); err == nil {
				if sub, err := claims.GetSubject(); err == nil && sub != "" {
					c.Set(userIDKey, sub)
				}
			}
		}
		c.Next()
	}
}

func parseClaims(token, secret string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func isAdmin(claims jwt.MapClaims) bool {
	if role, ok := claims["role"].(string); ok && strings.EqualFold(role, "admin") {
		return true
	}
	staff, ok := claims["is_staff"].(bool)
	return ok && staff
}

// CORS allows browser clients from origins. Empty origins allows any origin
// without credentials.
func CORS(origins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Requested-With", "X-Session-Key"},
	}
	if len(origins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
		config.AllowCredentials = true
	}
	return cors.New(config)
}

// RequestLogger logs every request once it has been handled.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []any{
			"method", strings.ToUpper(c.Request.Method),
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}

		switch {
		case status >= 500:
			logger.Error("HTTP request", fields...)
		case status >= 400:
			logger.Warn("HTTP request", fields...)
		default:
			logger.Info("HTTP request", fields...)
		}
	}
}

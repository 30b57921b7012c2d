package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/partshub/review-service/internal/platform/logger"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	// UserIDCtxKey holds the authenticated user's id.
	UserIDCtxKey = ContextKey("user_id")
	// UserRoleCtxKey holds the authenticated user's role.
	UserRoleCtxKey = ContextKey("user_role")
	// SellerIDCtxKey holds the caller's seller profile id, when they have one.
	SellerIDCtxKey = ContextKey("seller_id")
)

// Claims defines the structure of the JWT claims issued by the gateway.
// seller_id is present only for users with a seller profile.
type Claims struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	SellerID string `json:"seller_id,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuth returns an HTTP middleware that validates the bearer token and puts
// the caller identity into the request context. The service trusts these
// identities; issuing tokens is the gateway's concern.
func JWTAuth(jwtSecret string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				log.Warn("JWTAuth: 'Authorization' header not found", zap.String("path", r.URL.Path))
				http.Error(w, "authorization token is not provided", http.StatusUnauthorized)
				return
			}

			parts := strings.Fields(authHeader)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				log.Warn("JWTAuth: invalid 'Authorization' header format", zap.String("path", r.URL.Path))
				http.Error(w, "authorization token format is invalid, expected 'Bearer <token>'", http.StatusUnauthorized)
				return
			}
			tokenString := parts[1]

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					log.Error("JWTAuth: unexpected signing method", zap.Any("algorithm", token.Header["alg"]))
					return nil, errors.New("unexpected signing method")
				}
				return []byte(jwtSecret), nil
			})
			if err != nil {
				log.Warn("JWTAuth: token parsing/validation failed", zap.String("path", r.URL.Path), zap.Error(err))
				if errors.Is(err, jwt.ErrTokenExpired) {
					http.Error(w, "token has expired", http.StatusUnauthorized)
					return
				}
				http.Error(w, "token is invalid", http.StatusUnauthorized)
				return
			}
			if !token.Valid {
				log.Warn("JWTAuth: token is not valid", zap.String("path", r.URL.Path))
				http.Error(w, "token is not valid", http.StatusUnauthorized)
				return
			}
			if claims.UserID == "" {
				log.Error("JWTAuth: UserID not found in token claims", zap.String("path", r.URL.Path))
				http.Error(w, "UserID not found in token claims", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDCtxKey, claims.UserID)
			ctx = context.WithValue(ctx, UserRoleCtxKey, claims.Role)
			if claims.SellerID != "" {
				ctx = context.WithValue(ctx, SellerIDCtxKey, claims.SellerID)
			}

			log.Debug("JWTAuth: caller authenticated",
				zap.String("path", r.URL.Path),
				zap.String("user_id", claims.UserID),
				zap.String("role", claims.Role))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext extracts the authenticated user id set by JWTAuth.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserIDCtxKey).(string)
	return id, ok && id != ""
}

// SellerIDFromContext extracts the caller's seller profile id, if any.
func SellerIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(SellerIDCtxKey).(string)
	return id, ok && id != ""
}

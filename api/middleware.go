package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"log/slog"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shiftline/marketplace/internal/ratings"
	"github.com/shiftline/marketplace/pkg/engage"
	"github.com/shiftline/marketplace/pkg/models"
)

type ctxKey string

const (
	CtxUserID    ctxKey = "user_id"
	CtxUserRole  ctxKey = "user_role"
	CtxRequestID ctxKey = "request_id"
)

// package-level logger used by middleware and helpers; can be set via SetLogger from caller
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger installs a logger for the api package. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), CtxRequestID, id)))
	})
}

func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid, _ := r.Context().Value(CtxRequestID).(string)
		logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote", r.RemoteAddr),
			slog.String("request_id", rid),
		)
		next.ServeHTTP(w, r)
	})
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic", slog.Any("err", err))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func JWTAuthMiddlewareWithSecret(secret string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
				return
			}

			var tokenString string
			if _, err := fmt.Sscanf(authHeader, "Bearer %s", &tokenString); err != nil {
				logger.Error("failed to parse Authorization header", slog.Any("err", err))
			}

			if tokenString == "" {
				http.Error(w, "Invalid Authorization header", http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}

				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}

			ctx := r.Context()
			if v, found := claims["user_id"]; found {
				if id, ok := v.(float64); ok {
					ctx = context.WithValue(ctx, CtxUserID, int64(id))
				}
			}
			if v, found := claims["role"]; found {
				if role, ok := v.(string); ok {
					ctx = context.WithValue(ctx, CtxUserRole, role)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RatingGateMiddleware enforces the mandatory-rating precondition: while the
// caller has unresolved obligations, every protected route except the
// ratings endpoints answers 423 Locked. The predicate is recomputed from the
// store on each request; there is no cached copy to go stale.
func RatingGateMiddleware(gate *ratings.Gate) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/v1/ratings") {
				next.ServeHTTP(w, r)
				return
			}

			actor, ok := actorFrom(r)
			if !ok {
				http.Error(w, "Missing identity", http.StatusUnauthorized)
				return
			}

			blocked, err := gate.BlocksUsage(r.Context(), actor.ID)
			if err != nil {
				writeErr(w, err)
				return
			}
			if blocked {
				writeJSON(w, map[string]any{
					"error":  "pending ratings must be submitted before continuing",
					"reason": "rating_required",
				}, http.StatusLocked)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// actorFrom builds the authenticated actor from the JWT claims the
// middleware stored in the request context.
func actorFrom(r *http.Request) (engage.Actor, bool) {
	id, ok := r.Context().Value(CtxUserID).(int64)
	if !ok || id <= 0 {
		return engage.Actor{}, false
	}
	role, _ := r.Context().Value(CtxUserRole).(string)
	return engage.Actor{ID: id, Role: models.Role(role)}, true
}

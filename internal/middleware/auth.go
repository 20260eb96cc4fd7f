// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/capitalize-ai/deal-conversations/internal/model"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// ActorKey is the context key for the authenticated actor.
	ActorKey ContextKey = "actor"
)

// Claims represents JWT claims. The subject is the acting user id.
type Claims struct {
	jwt.RegisteredClaims
	Name    string     `json:"name,omitempty"`
	Role    model.Role `json:"role,omitempty"`
	Company string     `json:"company,omitempty"`
}

// Auth creates JWT authentication middleware.
func Auth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				unauthorized(w, "invalid authorization header format")
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				unauthorized(w, "invalid token")
				return
			}
			if claims.Subject == "" || claims.Subject == model.AssistantID {
				unauthorized(w, "token subject is not a user")
				return
			}

			actor := model.Actor{
				UserID:  claims.Subject,
				Name:    claims.Name,
				Role:    claims.Role,
				Company: claims.Company,
			}
			noteUser(r.Context(), actor.UserID)
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// WithActor returns a context carrying actor.
func WithActor(ctx context.Context, actor model.Actor) context.Context {
	return context.WithValue(ctx, ActorKey, actor)
}

// GetActor gets the authenticated actor from context.
func GetActor(ctx context.Context) (model.Actor, bool) {
	actor, ok := ctx.Value(ActorKey).(model.Actor)
	return actor, ok
}

// GetUserID gets user ID from context.
func GetUserID(ctx context.Context) string {
	actor, _ := GetActor(ctx)
	return actor.UserID
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + message + `"}`))
}

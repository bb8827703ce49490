package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"microlending/models"
	"microlending/services"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const actorKey contextKey = "actor"

// ActorClaims содержит идентификатор и роль участника
type ActorClaims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// AuthMiddleware проверяет JWT токен и кладет участника в контекст запроса
func AuthMiddleware(jwtKey []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Получаем токен из заголовка
			tokenString := r.Header.Get("Authorization")
			if tokenString == "" {
				writeError(w, http.StatusUnauthorized, "Authorization header is required")
				return
			}
			tokenString = strings.TrimPrefix(tokenString, "Bearer ")

			actor, err := ParseToken(jwtKey, tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// ParseToken проверяет подпись токена и возвращает участника
func ParseToken(jwtKey []byte, tokenString string) (services.Actor, error) {
	claims := &ActorClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jwtKey, nil
	})
	if err != nil {
		return services.Actor{}, err
	}
	if !token.Valid {
		return services.Actor{}, fmt.Errorf("invalid token")
	}

	if claims.Subject == "" {
		return services.Actor{}, fmt.Errorf("token has no subject")
	}
	if !claims.Role.Valid() {
		return services.Actor{}, fmt.Errorf("unknown role %q", claims.Role)
	}

	return services.Actor{ID: claims.Subject, Role: claims.Role}, nil
}

// GenerateToken выпускает токен для участника
func GenerateToken(jwtKey []byte, actor services.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := ActorClaims{
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtKey)
}

// WithActor возвращает контекст с участником
func WithActor(ctx context.Context, actor services.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext получает участника из контекста
func ActorFromContext(ctx context.Context) (services.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(services.Actor)
	return actor, ok
}

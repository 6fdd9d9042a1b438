package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"content-pulse/internal/domain"
)

// Identity — уже проверенная личность вызывающего. Выпуск и отзыв токенов —
// забота внешнего сервиса авторизации, здесь только проверяется подпись.
type Identity struct {
	UserID int64
	Role   domain.UserRole
}

type identityCtxKey struct{}

// IdentityFromContext возвращает личность вызывающего, если она установлена.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityCtxKey{}).(Identity)
	return identity, ok
}

// SignToken подписывает токен идентичности: user_id:role:expires_unix:подпись.
func SignToken(secret string, userID int64, role domain.UserRole, expires time.Time) string {
	payload := fmt.Sprintf("%d:%s:%d", userID, role, expires.Unix())
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(payload))
	return payload + ":" + hex.EncodeToString(h.Sum(nil))
}

func parseToken(secret, token string, now time.Time) (Identity, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 4 {
		return Identity{}, fmt.Errorf("неверный формат токена")
	}
	payload := strings.Join(parts[:3], ":")
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(payload))
	expected, err := hex.DecodeString(parts[3])
	if err != nil || !hmac.Equal(h.Sum(nil), expected) {
		return Identity{}, fmt.Errorf("подпись недействительна")
	}
	expires, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || now.Unix() > expires {
		return Identity{}, fmt.Errorf("срок действия токена истёк")
	}
	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || userID <= 0 {
		return Identity{}, fmt.Errorf("неверный идентификатор пользователя")
	}
	return Identity{UserID: userID, Role: domain.ParseRole(parts[1])}, nil
}

// TokenAuthMiddleware проверяет подпись токена идентичности, если он передан.
// Запросы без токена проходят дальше как анонимные.
func TokenAuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token == "" {
				token = r.Header.Get("X-Auth-Token")
			}
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			identity, err := parseToken(secret, token, time.Now())
			if err != nil {
				WriteError(w, http.StatusUnauthorized, err.Error())
				return
			}
			ctx := context.WithValue(r.Context(), identityCtxKey{}, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireIdentity отклоняет запросы без проверенной личности.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			WriteError(w, http.StatusUnauthorized, "требуется аутентификация")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAnalyticsRole пропускает только роли с доступом к аналитике.
func RequireAnalyticsRole(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			WriteError(w, http.StatusUnauthorized, "требуется аутентификация")
			return
		}
		if !identity.Role.CanViewAnalytics() {
			WriteError(w, http.StatusForbidden, "недостаточно прав")
			return
		}
		next.ServeHTTP(w, r)
	})
}

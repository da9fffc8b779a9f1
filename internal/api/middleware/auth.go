package middleware

import (
	"context"
	"errors"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"groupbuy/internal/identity"
	"groupbuy/internal/models"
	"groupbuy/pkg/ratelimit"
	"groupbuy/pkg/utils"
)

// Authenticator проверяет значение заголовка Authorization
type Authenticator interface {
	Authenticate(ctx context.Context, header string) (*models.Actor, error)
}

// Limiter admission control для неудачных попыток входа
type Limiter interface {
	RemoveTokens(ctx context.Context, endpoint ratelimit.Endpoint, client string, n int64) error
}

// AuthConfig настройки middleware аутентификации
type AuthConfig struct {
	Authenticator Authenticator // nil = все запросы анонимные
	Required      bool          // true = запрос без токена получает 401
	Limiter       Limiter       // nil = неудачные попытки не ограничиваются
	Logger        *utils.Logger
}

// Auth - middleware для аутентификации запросов
//
// Назначение:
// Кладёт адрес клиента в context (ключ admission control для анонимных запросов).
// Проверяет "Authorization: Bearer <actorId>:<token>" и кладёт актора в context,
// откуда его берут движок (аудит переходов) и handlers (проверка роли).
//
// Неудачная попытка списывает токен из ведра login для адреса клиента,
// при исчерпании ведра клиент получает 429 вместо 401.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = utils.L()
	}
	log = log.WithComponent("auth")
	resolver := identity.Resolver{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := identity.WithRemoteAddr(r.Context(), r.RemoteAddr)
			header := r.Header.Get("Authorization")

			if cfg.Authenticator == nil || (header == "" && !cfg.Required) {
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			actor, err := cfg.Authenticator.Authenticate(ctx, header)
			if err != nil {
				if !isCredentialError(err) {
					log.Error("authentication failed", utils.Err(err))
					writeAuthError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
					return
				}
				if cfg.Limiter != nil {
					client := resolver.ClientKey(ctx)
					if lerr := cfg.Limiter.RemoveTokens(ctx, ratelimit.EndpointLogin, client, 1); lerr != nil {
						log.Warn("authentication attempts limited", utils.ClientKey(client), utils.Err(lerr))
						w.Header().Set("Retry-After", "60")
						writeAuthError(w, http.StatusTooManyRequests, "rate_limited", "Too many failed authentication attempts")
						return
					}
				}
				w.Header().Set("WWW-Authenticate", `Bearer realm="groupbuy"`)
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(identity.WithActor(ctx, actor)))
		})
	}
}

func isCredentialError(err error) bool {
	return errors.Is(err, identity.ErrMissingCredentials) ||
		errors.Is(err, identity.ErrMalformedCredentials) ||
		errors.Is(err, identity.ErrInvalidCredentials)
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"code":  code,
	})
}

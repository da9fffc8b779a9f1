package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"groupbuy/internal/models"
	"groupbuy/internal/repository"
	"groupbuy/pkg/crypto"
	"groupbuy/pkg/utils"
)

// Ошибки аутентификации
var (
	ErrMissingCredentials   = errors.New("missing credentials")
	ErrMalformedCredentials = errors.New("malformed credentials, expected \"Bearer <actor>:<token>\"")
	ErrInvalidCredentials   = errors.New("invalid credentials")
)

// ActorStore хранилище акторов
type ActorStore interface {
	Create(ctx context.Context, a *models.Actor) error
	GetByID(ctx context.Context, id string) (*models.Actor, error)
	UpdateTokenHash(ctx context.Context, id, tokenHash string) error
}

// Authenticator проверяет заголовок Authorization: Bearer <actorId>:<token>
type Authenticator struct {
	actors ActorStore
	cost   int
	log    *utils.Logger
	now    func() time.Time
}

// NewAuthenticator создает аутентификатор. cost - стоимость bcrypt для новых и перехешируемых токенов.
func NewAuthenticator(actors ActorStore, cost int, log *utils.Logger) *Authenticator {
	if cost <= 0 {
		cost = crypto.DefaultCost
	}
	if log == nil {
		log = utils.L()
	}
	return &Authenticator{
		actors: actors,
		cost:   cost,
		log:    log.WithComponent("identity"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ParseBearer разбирает значение заголовка Authorization
func ParseBearer(header string) (actorID, token string, err error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", "", ErrMissingCredentials
	}

	scheme, creds, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "", ErrMalformedCredentials
	}

	actorID, token, ok = strings.Cut(strings.TrimSpace(creds), ":")
	if !ok || actorID == "" || token == "" {
		return "", "", ErrMalformedCredentials
	}
	return actorID, token, nil
}

// Authenticate возвращает актора по заголовку Authorization.
// Неизвестный актор и неверный токен неразличимы для клиента.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (*models.Actor, error) {
	actorID, token, err := ParseBearer(header)
	if err != nil {
		return nil, err
	}

	actor, err := a.actors.GetByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, repository.ErrActorNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load actor: %w", err)
	}

	if err := crypto.VerifyToken(token, actor.TokenHash); err != nil {
		a.log.Debug("token rejected", utils.ActorID(actorID), utils.Err(err))
		return nil, ErrInvalidCredentials
	}

	if crypto.NeedsRehash(actor.TokenHash, a.cost) {
		a.rehash(ctx, actor, token)
	}
	return actor, nil
}

// rehash обновляет хеш до текущей стоимости. Ошибка не мешает аутентификации.
func (a *Authenticator) rehash(ctx context.Context, actor *models.Actor, token string) {
	hash, err := crypto.HashToken(token, a.cost)
	if err == nil {
		err = a.actors.UpdateTokenHash(ctx, actor.ID, hash)
	}
	if err != nil {
		a.log.Warn("failed to rehash actor token", utils.ActorID(actor.ID), utils.Err(err))
		return
	}
	actor.TokenHash = hash
	a.log.Info("actor token rehashed", utils.ActorID(actor.ID), zap.Int("cost", a.cost))
}

// Issue регистрирует актора и возвращает его токен. Токен хранится только в виде bcrypt-хеша.
func (a *Authenticator) Issue(ctx context.Context, actorID string, role models.Role) (string, *models.Actor, error) {
	if strings.TrimSpace(actorID) == "" || strings.Contains(actorID, ":") {
		return "", nil, fmt.Errorf("invalid actor id %q", actorID)
	}
	switch role {
	case models.RoleBuyer, models.RoleSupplier, models.RoleAdmin:
	default:
		return "", nil, fmt.Errorf("unknown role %q", role)
	}

	token, err := crypto.GenerateToken()
	if err != nil {
		return "", nil, err
	}
	hash, err := crypto.HashToken(token, a.cost)
	if err != nil {
		return "", nil, err
	}

	actor := &models.Actor{ID: actorID, Role: role, TokenHash: hash, CreatedAt: a.now()}
	if err := a.actors.Create(ctx, actor); err != nil {
		return "", nil, err
	}
	return token, actor, nil
}

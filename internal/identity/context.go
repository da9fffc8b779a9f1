// Package identity определяет действующего актора запроса: аутентификация
// по bearer-токену и ключ клиента для admission control.
package identity

import (
	"context"
	"net"
	"strings"

	"groupbuy/internal/models"
)

type ctxKey int

const (
	actorKey ctxKey = iota
	remoteAddrKey
)

// WithActor кладет аутентифицированного актора в контекст
func WithActor(ctx context.Context, actor *models.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom актор из контекста
func ActorFrom(ctx context.Context) (*models.Actor, bool) {
	a, ok := ctx.Value(actorKey).(*models.Actor)
	return a, ok && a != nil
}

// WithRemoteAddr кладет адрес клиента (host:port или host)
func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, remoteAddrKey, addr)
}

// Resolver реализует service.Identity поверх контекста запроса
type Resolver struct{}

// ActorID ID аутентифицированного актора, "" для анонимного запроса
func (Resolver) ActorID(ctx context.Context) string {
	if a, ok := ActorFrom(ctx); ok {
		return a.ID
	}
	return ""
}

// Actor аутентифицированный актор, nil для анонимного запроса
func (Resolver) Actor(ctx context.Context) *models.Actor {
	a, _ := ActorFrom(ctx)
	return a
}

// ClientKey ключ ведра rate limiter'а: актор, иначе IP клиента
func (Resolver) ClientKey(ctx context.Context) string {
	if a, ok := ActorFrom(ctx); ok {
		return "actor:" + a.ID
	}
	if addr, ok := ctx.Value(remoteAddrKey).(string); ok && addr != "" {
		return "ip:" + hostOf(addr)
	}
	return "anonymous"
}

func hostOf(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.TrimSpace(addr)
}

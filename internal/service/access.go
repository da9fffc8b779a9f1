package service

import (
	"fmt"

	"groupbuy/internal/models"
)

// Authorize проверяет право актора перевести заказ в статус to.
//
// nil актор - анонимный запрос (аутентификация выключена) или вызов изнутри процесса.
// Администратор может всё. Владелец отправляет заказ, входит в пул, выходит и отменяет.
// Подтверждение исполнения (PROCESSING, COMPLETED) - только поставщик пула заказа.
func Authorize(actor *models.Actor, order *models.Order, pool *models.PoolGroup, to models.OrderStatus) error {
	if actor == nil || actor.IsAdmin() {
		return nil
	}

	switch to {
	case models.OrderStatusProcessing, models.OrderStatusCompleted:
		if actor.Role == models.RoleSupplier && pool != nil && pool.SupplierID == actor.ID {
			return nil
		}
	default:
		if actor.ID == order.OwnerID {
			return nil
		}
	}
	return fmt.Errorf("%w: actor %s (%s) cannot move order %s to %s", ErrForbidden, actor.ID, actor.Role, order.ID, to)
}

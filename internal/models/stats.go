package models

// Stats сводка по заказам и пулам для админки
type Stats struct {
	OrdersByStatus map[OrderStatus]int `json:"orders_by_status"`
	PoolsByStatus  map[PoolStatus]int  `json:"pools_by_status"`
	OpenQuantity   int64               `json:"open_quantity"` // сумма current_quantity открытых пулов
}

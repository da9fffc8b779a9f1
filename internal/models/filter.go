package models

// Ограничения пагинации
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// OrderFilter фильтр выборки заказов.
// Статус уже разобран в закрытое перечисление на границе API.
type OrderFilter struct {
	UserID      *string
	SupplierID  *string
	Status      *OrderStatus
	PoolGroupID *string
	Page        int
	Limit       int
}

// Offset смещение для SQL
func (f OrderFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// WithDefaults подставляет значения по умолчанию для page/limit
func (f OrderFilter) WithDefaults() OrderFilter {
	if f.Page == 0 {
		f.Page = 1
	}
	if f.Limit == 0 {
		f.Limit = DefaultPageLimit
	}
	return f
}

// OrderPage страница результатов
type OrderPage struct {
	Items []*Order `json:"items"`
	Total int      `json:"total"`
	Page  int      `json:"page"`
	Limit int      `json:"limit"`
}

package domain

// User — данные пользователя из внешнего каталога пользователей.
type User struct {
	ID          string
	Email       string
	DisplayName string
	Role        string
}

// Роли пользователей.
const (
	RoleUser   = "user"
	RoleSeller = "seller"
	RoleAdmin  = "admin"
)

// Product — данные товара из внешнего каталога. Цена авторитетна на момент чтения.
type Product struct {
	ID           string
	Name         string
	Description  string
	PriceMinor   int64
	Stock        int32
	Images       []string
	Category     string
	Subcategory  string
	DeliveryTime string
	SellerID     string
}

package memory

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// CatalogSeed — формат файла с начальным наполнением каталога.
type CatalogSeed struct {
	Products []struct {
		ID           string   `json:"id"`
		Name         string   `json:"name"`
		Description  string   `json:"description"`
		Price        int64    `json:"price"`
		Stock        int32    `json:"stock"`
		Images       []string `json:"images"`
		Category     string   `json:"category"`
		Subcategory  string   `json:"subcategory"`
		DeliveryTime string   `json:"delivery_time"`
		SellerID     string   `json:"seller_id"`
	} `json:"products"`
	Users []struct {
		ID          string `json:"id"`
		Email       string `json:"email"`
		DisplayName string `json:"display_name"`
		Role        string `json:"role"`
	} `json:"users"`
}

// DecodeCatalogSeed разбирает JSON начального наполнения в доменные товары и пользователей.
func DecodeCatalogSeed(r io.Reader) ([]domain.Product, []domain.User, error) {
	var seed CatalogSeed
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return nil, nil, fmt.Errorf("decode catalog seed: %w", err)
	}

	products := make([]domain.Product, 0, len(seed.Products))
	for _, p := range seed.Products {
		if p.ID == "" {
			return nil, nil, fmt.Errorf("catalog seed: %w", domain.ErrProductIDRequired)
		}
		products = append(products, domain.Product{
			ID:           p.ID,
			Name:         p.Name,
			Description:  p.Description,
			PriceMinor:   p.Price,
			Stock:        p.Stock,
			Images:       p.Images,
			Category:     p.Category,
			Subcategory:  p.Subcategory,
			DeliveryTime: p.DeliveryTime,
			SellerID:     p.SellerID,
		})
	}

	users := make([]domain.User, 0, len(seed.Users))
	for _, u := range seed.Users {
		role := u.Role
		if role == "" {
			role = domain.RoleUser
		}
		users = append(users, domain.User{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName, Role: role})
	}

	return products, users, nil
}

// LoadJSON наполняет каталог из JSON и возвращает число загруженных товаров и пользователей.
func (c *Catalog) LoadJSON(r io.Reader) (int, int, error) {
	products, users, err := DecodeCatalogSeed(r)
	if err != nil {
		return 0, 0, err
	}
	for _, p := range products {
		c.PutProduct(p)
	}
	for _, u := range users {
		c.PutUser(u)
	}
	return len(products), len(users), nil
}

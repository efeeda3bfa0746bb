package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const (
	productsCollection = "products"
	usersCollection    = "users"
)

type productDocument struct {
	ID           string   `bson:"_id"`
	Name         string   `bson:"name"`
	Description  string   `bson:"description,omitempty"`
	PriceMinor   int64    `bson:"price_minor"`
	Stock        int32    `bson:"stock"`
	Images       []string `bson:"images,omitempty"`
	Category     string   `bson:"category,omitempty"`
	Subcategory  string   `bson:"subcategory,omitempty"`
	DeliveryTime string   `bson:"delivery_time,omitempty"`
	SellerID     string   `bson:"seller_id"`
}

type userDocument struct {
	ID          string `bson:"_id"`
	Email       string `bson:"email"`
	DisplayName string `bson:"display_name,omitempty"`
	Role        string `bson:"role"`
}

// Catalog читает товары и пользователей из коллекций, которыми владеют соседние сервисы.
// Запись нужна только для начального наполнения и тестов.
type Catalog struct {
	products *mongo.Collection
	users    *mongo.Collection
}

// NewCatalog создаёт каталог поверх базы MongoDB.
func NewCatalog(db *mongo.Database) *Catalog {
	return &Catalog{
		products: db.Collection(productsCollection),
		users:    db.Collection(usersCollection),
	}
}

// GetProduct возвращает товар или ErrProductNotFound.
func (c *Catalog) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc productDocument
	if err := c.products.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}

	return domain.Product{
		ID:           doc.ID,
		Name:         doc.Name,
		Description:  doc.Description,
		PriceMinor:   doc.PriceMinor,
		Stock:        doc.Stock,
		Images:       doc.Images,
		Category:     doc.Category,
		Subcategory:  doc.Subcategory,
		DeliveryTime: doc.DeliveryTime,
		SellerID:     doc.SellerID,
	}, nil
}

// GetUser возвращает пользователя или ErrUserNotFound.
func (c *Catalog) GetUser(ctx context.Context, id string) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc userDocument
	if err := c.users.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}

	return domain.User{ID: doc.ID, Email: doc.Email, DisplayName: doc.DisplayName, Role: doc.Role}, nil
}

// PutProduct вставляет или заменяет товар.
func (c *Catalog) PutProduct(ctx context.Context, p domain.Product) error {
	doc := productDocument{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		PriceMinor:   p.PriceMinor,
		Stock:        p.Stock,
		Images:       p.Images,
		Category:     p.Category,
		Subcategory:  p.Subcategory,
		DeliveryTime: p.DeliveryTime,
		SellerID:     p.SellerID,
	}
	_, err := c.products.ReplaceOne(ctx, bson.M{"_id": p.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put product: %w", err)
	}
	return nil
}

// PutUser вставляет или заменяет пользователя.
func (c *Catalog) PutUser(ctx context.Context, u domain.User) error {
	doc := userDocument{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName, Role: u.Role}
	_, err := c.users.ReplaceOne(ctx, bson.M{"_id": u.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

var (
	_ domain.ProductCatalog = (*Catalog)(nil)
	_ domain.UserDirectory  = (*Catalog)(nil)
)

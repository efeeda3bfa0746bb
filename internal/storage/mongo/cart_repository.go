package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const (
	cartsCollection = "carts"
	// cartTTL — корзины без изменений дольше этого срока удаляет TTL-индекс.
	cartTTL = 90 * 24 * time.Hour
	// maxUpsertAttempts ограничивает повторы при гонке двух первых добавлений одного товара.
	maxUpsertAttempts = 3
)

type cartItemDocument struct {
	ProductID string    `bson:"product_id"`
	Quantity  int32     `bson:"quantity"`
	AddedAt   time.Time `bson:"added_at"`
}

type cartDocument struct {
	UserID    string             `bson:"user_id"`
	Items     []cartItemDocument `bson:"items"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

func (d cartDocument) toDomain() domain.Cart {
	cart := domain.Cart{
		UserID:    d.UserID,
		Items:     make([]domain.CartItem, 0, len(d.Items)),
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	for _, item := range d.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt.UTC(),
		})
	}
	return cart
}

// CartRepository хранит корзины в коллекции carts, по документу на пользователя.
// Все изменения выполняются одной атомарной операцией над документом.
type CartRepository struct {
	collection *mongo.Collection
}

// NewCartRepository создаёт MongoDB-реализацию CartRepository.
func NewCartRepository(db *mongo.Database) *CartRepository {
	return &CartRepository{collection: db.Collection(cartsCollection)}
}

// CreateIndexes создаёт уникальный индекс по пользователю и TTL по времени изменения.
func (r *CartRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(cartTTL.Seconds())),
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create cart indexes: %w", err)
	}
	return nil
}

func (r *CartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc cartDocument
	if err := r.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Cart{}, domain.ErrCartNotFound
		}
		return domain.Cart{}, fmt.Errorf("get cart: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *CartRepository) UpsertItem(ctx context.Context, userID, productID string, quantity int32) (domain.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	after := options.FindOneAndUpdate().SetReturnDocument(options.After)

	for attempt := 1; ; attempt++ {
		now := time.Now().UTC()

		// Позиция уже есть: меняем количество на месте.
		var doc cartDocument
		err := r.collection.FindOneAndUpdate(ctx,
			bson.M{"user_id": userID, "items.product_id": productID},
			bson.M{"$set": bson.M{"items.$.quantity": quantity, "updated_at": now}},
			after,
		).Decode(&doc)
		if err == nil {
			return doc.toDomain(), nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Cart{}, fmt.Errorf("update cart item: %w", err)
		}

		// Позиции нет: добавляем, создавая корзину при необходимости.
		err = r.collection.FindOneAndUpdate(ctx,
			bson.M{"user_id": userID, "items.product_id": bson.M{"$ne": productID}},
			bson.M{
				"$push":        bson.M{"items": cartItemDocument{ProductID: productID, Quantity: quantity, AddedAt: now}},
				"$set":         bson.M{"updated_at": now},
				"$setOnInsert": bson.M{"created_at": now},
			},
			options.FindOneAndUpdate().SetReturnDocument(options.After).SetUpsert(true),
		).Decode(&doc)
		if err == nil {
			return doc.toDomain(), nil
		}
		// Документ с этой позицией появился параллельно: upsert упёрся в уникальный индекс.
		if mongo.IsDuplicateKeyError(err) && attempt < maxUpsertAttempts {
			continue
		}
		return domain.Cart{}, fmt.Errorf("push cart item: %w", err)
	}
}

func (r *CartRepository) RemoveItem(ctx context.Context, userID, productID string) (domain.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc cartDocument
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"user_id": userID, "items.product_id": productID},
		bson.M{
			"$pull": bson.M{"items": bson.M{"product_id": productID}},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		return doc.toDomain(), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Cart{}, fmt.Errorf("remove cart item: %w", err)
	}

	count, err := r.collection.CountDocuments(ctx, bson.M{"user_id": userID})
	if err != nil {
		return domain.Cart{}, fmt.Errorf("check cart existence: %w", err)
	}
	if count == 0 {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return domain.Cart{}, domain.ErrCartItemNotFound
}

func (r *CartRepository) Delete(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	result, err := r.collection.DeleteOne(ctx, bson.M{"user_id": userID})
	if err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	if result.DeletedCount == 0 {
		return domain.ErrCartNotFound
	}
	return nil
}

var _ domain.CartRepository = (*CartRepository)(nil)

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_shop/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type productDocument struct {
	ID    primitive.ObjectID `bson:"_id"`
	Name  string             `bson:"name"`
	Price float64            `bson:"price"`
	Sizes []string           `bson:"sizes"`
}

type mongoProductRepository struct {
	collection *mongo.Collection
}

// NewProductRepository reads the catalog owned by the product admin.
func NewProductRepository(db *mongo.Database) ProductRepository {
	return &mongoProductRepository{collection: db.Collection("products")}
}

func (m *mongoProductRepository) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	id, err := primitive.ObjectIDFromHex(productID)
	if err != nil {
		return nil, ErrProductNotFound
	}

	opts := options.FindOne().SetProjection(bson.M{"name": 1, "price": 1, "sizes": 1})
	var doc productDocument
	if err := m.collection.FindOne(ctx, bson.M{"_id": id}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return &domain.Product{
		ID:    doc.ID.Hex(),
		Name:  doc.Name,
		Price: doc.Price,
		Sizes: doc.Sizes,
	}, nil
}

package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/partshub/review-service/internal/domain"
	"github.com/partshub/review-service/internal/platform/logger"
)

const buyerCollectionName = "buyers"

// ProfileRepository implements domain.ProfileRepository: the user and seller
// lookup collaborators the review engine depends on. Users, buyer profiles and
// seller profiles live in separate collections keyed by user_id.
type ProfileRepository struct {
	users   *mongo.Collection
	buyers  *mongo.Collection
	sellers *mongo.Collection
	logger  *logger.Logger
}

func NewProfileRepository(db *mongo.Database, log *logger.Logger) *ProfileRepository {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	buyers := db.Collection(buyerCollectionName)
	sellers := db.Collection(sellerCollectionName)

	if _, err := buyers.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		log.Warn("Failed to create index for buyers collection (may already exist)", zap.Error(err))
	}
	if _, err := sellers.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		log.Warn("Failed to create index for sellers collection (may already exist)", zap.Error(err))
	}

	return &ProfileRepository{
		users:   db.Collection(userCollectionName),
		buyers:  buyers,
		sellers: sellers,
		logger:  log.Named("ProfileRepository"),
	}
}

// GetUser resolves a user together with their buyer/seller sub-profile ids.
func (r *ProfileRepository) GetUser(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	r.logger.Debug("Getting user by ID from DB", zap.String("user_id", id.Hex()))

	var user userDocument
	if err := r.users.FindOne(ctx, bson.M{"_id": id}).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("Failed to get user by ID from DB", zap.Error(err), zap.String("user_id", id.Hex()))
		return nil, fmt.Errorf("%w: db findone failed: %v", domain.ErrRepository, err)
	}

	var buyer *buyerDocument
	var b buyerDocument
	err := r.buyers.FindOne(ctx, bson.M{"user_id": id}).Decode(&b)
	switch {
	case err == nil:
		buyer = &b
	case errors.Is(err, mongo.ErrNoDocuments):
		// user has no buyer profile
	default:
		return nil, fmt.Errorf("%w: db buyer lookup failed: %v", domain.ErrRepository, err)
	}

	var seller *sellerDocument
	var s sellerDocument
	err = r.sellers.FindOne(ctx, bson.M{"user_id": id}).Decode(&s)
	switch {
	case err == nil:
		seller = &s
	case errors.Is(err, mongo.ErrNoDocuments):
		// user has no seller profile
	default:
		return nil, fmt.Errorf("%w: db seller lookup failed: %v", domain.ErrRepository, err)
	}

	return user.toDomainUser(buyer, seller), nil
}

// GetSeller retrieves a seller profile by its id.
func (r *ProfileRepository) GetSeller(ctx context.Context, id primitive.ObjectID) (*domain.SellerProfile, error) {
	r.logger.Debug("Getting seller by ID from DB", zap.String("seller_id", id.Hex()))

	var doc sellerDocument
	if err := r.sellers.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("Failed to get seller by ID from DB", zap.Error(err), zap.String("seller_id", id.Hex()))
		return nil, fmt.Errorf("%w: db findone failed: %v", domain.ErrRepository, err)
	}
	return doc.toDomainSeller(), nil
}

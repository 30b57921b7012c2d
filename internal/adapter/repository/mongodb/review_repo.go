package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/partshub/review-service/internal/domain"
	"github.com/partshub/review-service/internal/platform/logger"
)

const (
	reviewCollectionName = "reviews"
	sellerCollectionName = "sellers"
	userCollectionName   = "users"
)

// ReviewRepository implements domain.ReviewRepository on MongoDB. It owns both
// the reviews collection and the sellers collection's num_reviews counter so
// that the two can be mutated in one transaction.
type ReviewRepository struct {
	client  *mongo.Client
	reviews *mongo.Collection
	sellers *mongo.Collection
	logger  *logger.Logger
}

// NewReviewRepository creates a MongoDB review repository and ensures its
// indexes.
func NewReviewRepository(db *mongo.Database, log *logger.Logger) (*ReviewRepository, error) {
	reviews := db.Collection(reviewCollectionName)

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "seller_id", Value: 1}, {Key: "created_at", Value: -1}}}, // seller review listings, newest first
		{Keys: bson.D{{Key: "reviewer.user_id", Value: 1}}},
		{Keys: bson.D{{Key: "reported", Value: 1}}}, // moderation queue
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := reviews.Indexes().CreateMany(ctx, indexes); err != nil {
		log.Error("Failed to create indexes for reviews collection", zap.Error(err))
		// Indexes may already exist or be managed externally; not fatal.
	} else {
		log.Info("Successfully ensured indexes for reviews collection")
	}

	return &ReviewRepository{
		client:  db.Client(),
		reviews: reviews,
		sellers: db.Collection(sellerCollectionName),
		logger:  log.Named("ReviewRepository"),
	}, nil
}

// Create inserts the review and increments the seller's num_reviews counter in
// a single transaction. The counter uses $inc so concurrent creates for the
// same seller serialize on the store.
func (r *ReviewRepository) Create(ctx context.Context, review *domain.Review) error {
	r.logger.Info("Creating review in DB",
		zap.String("seller_id", review.SellerID.Hex()),
		zap.String("reviewer_user_id", review.Reviewer.UserID.Hex()))

	doc := fromDomainReview(review)
	if doc.ID.IsZero() {
		doc.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	review.ID = doc.ID
	review.CreatedAt = now
	review.UpdatedAt = now

	session, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("%w: start session failed: %v", domain.ErrRepository, err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if _, err := r.reviews.InsertOne(sc, doc); err != nil {
			return nil, fmt.Errorf("db insert failed: %w", err)
		}
		res, err := r.sellers.UpdateOne(sc,
			bson.M{"_id": doc.SellerID},
			bson.M{"$inc": bson.M{"num_reviews": 1}, "$set": bson.M{"updated_at": now}},
		)
		if err != nil {
			return nil, fmt.Errorf("db counter increment failed: %w", err)
		}
		if res.MatchedCount == 0 {
			return nil, domain.ErrNotFound
		}
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.logger.Warn("Seller not found for review counter increment", zap.String("seller_id", doc.SellerID.Hex()))
			return domain.ErrNotFound
		}
		r.logger.Error("Failed to create review transactionally", zap.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrRepository, err)
	}

	r.logger.Info("Review created successfully in DB", zap.String("review_id", doc.ID.Hex()))
	return nil
}

// GetByID retrieves a review by its ID.
func (r *ReviewRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Review, error) {
	r.logger.Debug("Getting review by ID from DB", zap.String("review_id", id.Hex()))
	var doc reviewDocument
	err := r.reviews.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("Failed to get review by ID from DB", zap.Error(err), zap.String("review_id", id.Hex()))
		return nil, fmt.Errorf("%w: db findone failed: %v", domain.ErrRepository, err)
	}
	return doc.toDomainReview(), nil
}

// SetReply attaches the single allowed seller reply. The filter requires the
// reply field to still be unset, so a concurrent duplicate surfaces as
// ErrReplyAlreadyExists rather than overwriting.
func (r *ReviewRepository) SetReply(ctx context.Context, id primitive.ObjectID, reply *domain.Reply) error {
	r.logger.Info("Setting reply on review in DB", zap.String("review_id", id.Hex()))

	now := time.Now().UTC()
	res, err := r.reviews.UpdateOne(ctx,
		bson.M{"_id": id, "reply": nil},
		bson.M{"$set": bson.M{
			"reply":      &replyDocument{Comment: reply.Comment, CreatedAt: reply.CreatedAt},
			"updated_at": now,
		}},
	)
	if err != nil {
		r.logger.Error("Failed to set reply in DB", zap.Error(err), zap.String("review_id", id.Hex()))
		return fmt.Errorf("%w: db update failed: %v", domain.ErrRepository, err)
	}
	if res.MatchedCount == 0 {
		count, countErr := r.reviews.CountDocuments(ctx, bson.M{"_id": id})
		if countErr != nil {
			return fmt.Errorf("%w: db count failed: %v", domain.ErrRepository, countErr)
		}
		if count == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrReplyAlreadyExists
	}
	return nil
}

// SetReport overwrites the moderation fields; the latest report wins.
func (r *ReviewRepository) SetReport(ctx context.Context, id primitive.ObjectID, reporterID primitive.ObjectID, reason string) error {
	r.logger.Info("Reporting review in DB", zap.String("review_id", id.Hex()), zap.String("reporter_id", reporterID.Hex()))

	res, err := r.reviews.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"reported":      true,
			"report_reason": reason,
			"reporter_id":   reporterID,
			"updated_at":    time.Now().UTC(),
		}},
	)
	if err != nil {
		r.logger.Error("Failed to report review in DB", zap.Error(err), zap.String("review_id", id.Hex()))
		return fmt.Errorf("%w: db update failed: %v", domain.ErrRepository, err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes the review and decrements the seller's num_reviews counter in
// a single transaction.
func (r *ReviewRepository) Delete(ctx context.Context, id primitive.ObjectID, sellerID primitive.ObjectID) error {
	r.logger.Info("Deleting review from DB", zap.String("review_id", id.Hex()), zap.String("seller_id", sellerID.Hex()))

	session, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("%w: start session failed: %v", domain.ErrRepository, err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		res, err := r.reviews.DeleteOne(sc, bson.M{"_id": id})
		if err != nil {
			return nil, fmt.Errorf("db delete failed: %w", err)
		}
		if res.DeletedCount == 0 {
			return nil, domain.ErrNotFound
		}
		if _, err := r.sellers.UpdateOne(sc,
			bson.M{"_id": sellerID},
			bson.M{"$inc": bson.M{"num_reviews": -1}, "$set": bson.M{"updated_at": time.Now().UTC()}},
		); err != nil {
			return nil, fmt.Errorf("db counter decrement failed: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		r.logger.Error("Failed to delete review transactionally", zap.Error(err), zap.String("review_id", id.Hex()))
		return fmt.Errorf("%w: %v", domain.ErrRepository, err)
	}

	r.logger.Info("Review deleted successfully from DB", zap.String("review_id", id.Hex()))
	return nil
}

// FindBySeller retrieves one page of a seller's reviews, newest first, with
// the reviewer's user record joined in for display.
func (r *ReviewRepository) FindBySeller(ctx context.Context, sellerID primitive.ObjectID, page, limit int32) ([]*domain.ReviewWithReviewer, int64, error) {
	r.logger.Debug("Finding reviews by seller_id from DB",
		zap.String("seller_id", sellerID.Hex()), zap.Int32("page", page), zap.Int32("limit", limit))

	match := bson.M{"seller_id": sellerID}
	skip := int64(page-1) * int64(limit)

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}}}},
		{{Key: "$skip", Value: skip}},
		{{Key: "$limit", Value: int64(limit)}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: userCollectionName},
			{Key: "localField", Value: "reviewer.user_id"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "reviewer_users"},
		}}},
	}

	cursor, err := r.reviews.Aggregate(ctx, pipeline)
	if err != nil {
		r.logger.Error("Failed to find reviews by seller_id from DB", zap.Error(err), zap.String("seller_id", sellerID.Hex()))
		return nil, 0, fmt.Errorf("%w: db aggregate failed: %v", domain.ErrRepository, err)
	}
	defer cursor.Close(ctx)

	var docs []*reviewWithReviewerDocument
	if err := cursor.All(ctx, &docs); err != nil {
		r.logger.Error("Failed to decode reviews by seller_id from DB", zap.Error(err))
		return nil, 0, fmt.Errorf("%w: db cursor all failed: %v", domain.ErrRepository, err)
	}

	out := make([]*domain.ReviewWithReviewer, len(docs))
	for i, doc := range docs {
		out[i] = doc.toDomainReviewWithReviewer()
	}

	total, err := r.reviews.CountDocuments(ctx, match)
	if err != nil {
		r.logger.Error("Failed to count reviews by seller_id from DB", zap.Error(err))
		return nil, 0, fmt.Errorf("%w: db count failed: %v", domain.ErrRepository, err)
	}

	return out, total, nil
}

// AggregateSellerRating computes the review count and mean rating for a seller
// from the stored rows. The denormalized counter is deliberately not consulted
// here; the source rows are authoritative.
func (r *ReviewRepository) AggregateSellerRating(ctx context.Context, sellerID primitive.ObjectID) (float64, int64, error) {
	r.logger.Debug("Calculating average rating for seller", zap.String("seller_id", sellerID.Hex()))

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "seller_id", Value: sellerID}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$seller_id"},
			{Key: "average_rating", Value: bson.D{{Key: "$avg", Value: "$rating"}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := r.reviews.Aggregate(ctx, pipeline)
	if err != nil {
		r.logger.Error("Failed to aggregate average rating", zap.Error(err), zap.String("seller_id", sellerID.Hex()))
		return 0, 0, fmt.Errorf("%w: db aggregate failed: %v", domain.ErrRepository, err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		AverageRating float64 `bson:"average_rating"`
		Count         int64   `bson:"count"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		r.logger.Error("Failed to decode average rating aggregation result", zap.Error(err))
		return 0, 0, fmt.Errorf("%w: db cursor all for aggregate failed: %v", domain.ErrRepository, err)
	}

	if len(results) == 0 {
		return 0, 0, nil
	}
	return results[0].AverageRating, results[0].Count, nil
}

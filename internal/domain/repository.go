package domain

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ReviewRepository defines the interface for review persistence. Methods
// operate on clean domain entities; database tags and structures live in the
// repository implementation.
//
// Create and Delete pair the review row mutation with the seller's
// num_reviews counter mutation in a single store transaction: both commit or
// neither does. The counter update must use the store's atomic increment, not
// a read-modify-write in memory.
type ReviewRepository interface {
	// Create persists the review and increments the seller's review counter
	// atomically. Returns ErrNotFound if the seller row is missing.
	Create(ctx context.Context, review *Review) error

	GetByID(ctx context.Context, id primitive.ObjectID) (*Review, error)

	// SetReply attaches the one allowed seller reply. Returns
	// ErrReplyAlreadyExists if a reply is present (including when lost to a
	// concurrent writer) and ErrNotFound if the review is gone.
	SetReply(ctx context.Context, id primitive.ObjectID, reply *Reply) error

	// SetReport overwrites the moderation triple; last report wins.
	SetReport(ctx context.Context, id primitive.ObjectID, reporterID primitive.ObjectID, reason string) error

	// Delete removes the review and decrements the seller's review counter
	// atomically. Returns ErrNotFound if the review no longer exists.
	Delete(ctx context.Context, id primitive.ObjectID, sellerID primitive.ObjectID) error

	// FindBySeller retrieves one page of a seller's reviews ordered by
	// created_at descending, with reviewer display data joined in.
	// Returns reviews and the total count for pagination.
	FindBySeller(ctx context.Context, sellerID primitive.ObjectID, page, limit int32) ([]*ReviewWithReviewer, int64, error)

	// AggregateSellerRating computes the review count and mean rating for a
	// seller from the stored rows. Returns zeros when the seller has no
	// reviews.
	AggregateSellerRating(ctx context.Context, sellerID primitive.ObjectID) (average float64, count int64, err error)
}

// ProfileRepository is the seller and user lookup collaborator: given an id it
// resolves profile existence and the associated buyer/seller sub-profiles.
type ProfileRepository interface {
	GetUser(ctx context.Context, id primitive.ObjectID) (*User, error)
	GetSeller(ctx context.Context, id primitive.ObjectID) (*SellerProfile, error)
}

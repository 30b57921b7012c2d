package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/partshub/review-service/internal/domain"
	"github.com/partshub/review-service/internal/platform/logger"
	"github.com/partshub/review-service/internal/platform/metrics"
)

// NATS subjects emitted by the review lifecycle.
const (
	SubjectReviewCreated  = "review.created"
	SubjectReviewReplied  = "review.replied"
	SubjectReviewReported = "review.reported"
	SubjectReviewDeleted  = "review.deleted"
)

// EventPublisher pushes lifecycle events to the message broker. Publishing is
// best effort: a broker outage never fails the originating operation.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
}

// StatsCache caches aggregated seller stats. A (nil, nil) Get is a miss.
type StatsCache interface {
	Get(ctx context.Context, sellerID primitive.ObjectID) (*domain.SellerStats, error)
	Set(ctx context.Context, stats *domain.SellerStats) error
	Invalidate(ctx context.Context, sellerID primitive.ObjectID) error
}

// ReviewEvent is the payload published for every review lifecycle event.
type ReviewEvent struct {
	EventID   string    `json:"event_id"`
	ReviewID  string    `json:"review_id"`
	SellerID  string    `json:"seller_id"`
	ActorID   string    `json:"actor_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ReviewUsecase implements the review lifecycle and seller rating aggregation.
type ReviewUsecase struct {
	reviews    domain.ReviewRepository
	profiles   domain.ProfileRepository
	statsCache StatsCache
	publisher  EventPublisher
	metrics    *metrics.Manager
	logger     *logger.Logger
}

func NewReviewUsecase(
	reviews domain.ReviewRepository,
	profiles domain.ProfileRepository,
	statsCache StatsCache,
	publisher EventPublisher,
	m *metrics.Manager,
	log *logger.Logger,
) *ReviewUsecase {
	return &ReviewUsecase{
		reviews:    reviews,
		profiles:   profiles,
		statsCache: statsCache,
		publisher:  publisher,
		metrics:    m,
		logger:     log.Named("ReviewUsecase"),
	}
}

func (uc *ReviewUsecase) newEvent(reviewID, sellerID primitive.ObjectID, actorID primitive.ObjectID) ReviewEvent {
	ev := ReviewEvent{
		EventID:   uuid.NewString(),
		ReviewID:  reviewID.Hex(),
		SellerID:  sellerID.Hex(),
		Timestamp: time.Now().UTC(),
	}
	if !actorID.IsZero() {
		ev.ActorID = actorID.Hex()
	}
	return ev
}

func (uc *ReviewUsecase) publish(ctx context.Context, subject string, ev ReviewEvent) {
	if err := uc.publisher.Publish(ctx, subject, ev); err != nil {
		uc.logger.Warn("Failed to publish review event",
			zap.String("subject", subject), zap.String("review_id", ev.ReviewID), zap.Error(err))
	}
}

func (uc *ReviewUsecase) invalidateStats(ctx context.Context, sellerID primitive.ObjectID) {
	if err := uc.statsCache.Invalidate(ctx, sellerID); err != nil {
		uc.logger.Warn("Failed to invalidate seller stats cache",
			zap.String("seller_id", sellerID.Hex()), zap.Error(err))
	}
}

// CreateReview records a new review for a seller authored by the given user.
// The reviewer identity is resolved from the user's profiles, preferring the
// buyer profile when both exist. Returns the persisted review.
func (uc *ReviewUsecase) CreateReview(ctx context.Context, sellerID, reviewerUserID primitive.ObjectID, rating int32, comment string) (*domain.Review, error) {
	uc.logger.Info("CreateReview called",
		zap.String("seller_id", sellerID.Hex()),
		zap.String("reviewer_user_id", reviewerUserID.Hex()),
		zap.Int32("rating", rating))

	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", domain.ErrInvalidInput)
	}

	seller, err := uc.profiles.GetSeller(ctx, sellerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: seller %s", domain.ErrNotFound, sellerID.Hex())
		}
		return nil, err
	}

	user, err := uc.profiles.GetUser(ctx, reviewerUserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, reviewerUserID.Hex())
		}
		return nil, err
	}

	reviewer, ok := user.ReviewerIdentity()
	if !ok {
		return nil, fmt.Errorf("%w: user holds neither a buyer nor a seller profile", domain.ErrInvalidInput)
	}

	review, err := domain.NewReview(seller.ID, reviewer, rating, comment)
	if err != nil {
		return nil, err
	}

	if err := uc.reviews.Create(ctx, review); err != nil {
		uc.logger.Error("Failed to create review", zap.Error(err), zap.String("seller_id", sellerID.Hex()))
		return nil, err
	}

	uc.metrics.ReviewsCreatedTotal.Inc()
	uc.invalidateStats(ctx, review.SellerID)
	uc.publish(ctx, SubjectReviewCreated, uc.newEvent(review.ID, review.SellerID, reviewerUserID))

	uc.logger.Info("Review created", zap.String("review_id", review.ID.Hex()))
	return review, nil
}

// GetSellerStats returns the seller's review count and mean rating. The result
// is cached; on a miss the aggregation runs against the stored reviews. A
// seller with no reviews yields zero count and zero average.
func (uc *ReviewUsecase) GetSellerStats(ctx context.Context, sellerID primitive.ObjectID) (*domain.SellerStats, error) {
	cached, err := uc.statsCache.Get(ctx, sellerID)
	if err != nil {
		uc.logger.Warn("Seller stats cache read failed, falling back to DB",
			zap.String("seller_id", sellerID.Hex()), zap.Error(err))
	} else if cached != nil {
		return cached, nil
	}

	if _, err := uc.profiles.GetSeller(ctx, sellerID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: seller %s", domain.ErrNotFound, sellerID.Hex())
		}
		return nil, err
	}

	average, count, err := uc.reviews.AggregateSellerRating(ctx, sellerID)
	if err != nil {
		uc.logger.Error("Failed to aggregate seller rating", zap.Error(err), zap.String("seller_id", sellerID.Hex()))
		return nil, err
	}

	stats := &domain.SellerStats{
		SellerID:      sellerID,
		TotalReviews:  count,
		AverageRating: average,
	}
	if err := uc.statsCache.Set(ctx, stats); err != nil {
		uc.logger.Warn("Failed to cache seller stats",
			zap.String("seller_id", sellerID.Hex()), zap.Error(err))
	}
	return stats, nil
}

// GetSellerReviews lists one page of a seller's reviews, newest first, with
// reviewer display names resolved. Page and limit must be positive.
func (uc *ReviewUsecase) GetSellerReviews(ctx context.Context, sellerID primitive.ObjectID, page, limit int32) (*domain.ReviewPage, error) {
	if page < 1 || limit < 1 {
		return nil, fmt.Errorf("%w: page and limit must be positive", domain.ErrInvalidInput)
	}

	reviews, total, err := uc.reviews.FindBySeller(ctx, sellerID, page, limit)
	if err != nil {
		uc.logger.Error("Failed to list seller reviews", zap.Error(err), zap.String("seller_id", sellerID.Hex()))
		return nil, err
	}

	return &domain.ReviewPage{
		Reviews: reviews,
		Total:   total,
		Page:    page,
		Limit:   limit,
		HasMore: total > int64(page)*int64(limit),
	}, nil
}

// AddReplyToReview attaches the seller's single reply to a review. Only the
// reviewed seller may reply, and only once.
func (uc *ReviewUsecase) AddReplyToReview(ctx context.Context, reviewID, callerSellerID primitive.ObjectID, comment string) (*domain.Review, error) {
	if comment == "" {
		return nil, fmt.Errorf("%w: reply comment cannot be empty", domain.ErrInvalidInput)
	}

	review, err := uc.reviews.GetByID(ctx, reviewID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: review %s", domain.ErrNotFound, reviewID.Hex())
		}
		return nil, err
	}

	if review.SellerID != callerSellerID {
		return nil, fmt.Errorf("%w: only the reviewed seller may reply", domain.ErrForbidden)
	}
	if review.Reply != nil {
		return nil, domain.ErrReplyAlreadyExists
	}

	reply := &domain.Reply{
		Comment:   comment,
		CreatedAt: time.Now().UTC(),
	}
	if err := uc.reviews.SetReply(ctx, reviewID, reply); err != nil {
		return nil, err
	}
	review.Reply = reply
	review.UpdatedAt = reply.CreatedAt

	uc.metrics.RepliesTotal.Inc()
	uc.publish(ctx, SubjectReviewReplied, uc.newEvent(review.ID, review.SellerID, callerSellerID))

	uc.logger.Info("Reply added to review", zap.String("review_id", reviewID.Hex()))
	return review, nil
}

// ReportReview flags a review for moderation. Repeated reports overwrite the
// stored reason and reporter; the latest report wins.
func (uc *ReviewUsecase) ReportReview(ctx context.Context, reviewID, reporterID primitive.ObjectID, reason string) error {
	if reason == "" {
		return fmt.Errorf("%w: report reason cannot be empty", domain.ErrInvalidInput)
	}

	review, err := uc.reviews.GetByID(ctx, reviewID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: review %s", domain.ErrNotFound, reviewID.Hex())
		}
		return err
	}

	if err := uc.reviews.SetReport(ctx, reviewID, reporterID, reason); err != nil {
		return err
	}

	uc.metrics.ReportsTotal.Inc()
	uc.publish(ctx, SubjectReviewReported, uc.newEvent(review.ID, review.SellerID, reporterID))

	uc.logger.Info("Review reported",
		zap.String("review_id", reviewID.Hex()), zap.String("reporter_id", reporterID.Hex()))
	return nil
}

// DeleteReview removes a review. Only the user who owns the authoring profile
// may delete it. The seller's review counter is decremented in the same store
// transaction as the row removal.
func (uc *ReviewUsecase) DeleteReview(ctx context.Context, reviewID, callerUserID primitive.ObjectID) error {
	review, err := uc.reviews.GetByID(ctx, reviewID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: review %s", domain.ErrNotFound, reviewID.Hex())
		}
		return err
	}

	user, err := uc.profiles.GetUser(ctx, callerUserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: caller does not own this review", domain.ErrForbidden)
		}
		return err
	}
	if !user.HoldsReviewer(review.Reviewer) {
		return fmt.Errorf("%w: caller does not own this review", domain.ErrForbidden)
	}

	if err := uc.reviews.Delete(ctx, reviewID, review.SellerID); err != nil {
		return err
	}

	uc.metrics.ReviewDeletesTotal.Inc()
	uc.invalidateStats(ctx, review.SellerID)
	uc.publish(ctx, SubjectReviewDeleted, uc.newEvent(review.ID, review.SellerID, callerUserID))

	uc.logger.Info("Review deleted", zap.String("review_id", reviewID.Hex()))
	return nil
}

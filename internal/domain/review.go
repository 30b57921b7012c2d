package domain

import (
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Domain Specific Errors ---

var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("entity not found")
	// ErrForbidden indicates that the caller is not authorized to perform the action.
	ErrForbidden = errors.New("action forbidden")
	// ErrInvalidInput indicates that the provided input data is invalid.
	ErrInvalidInput = errors.New("invalid input data")
	// ErrReplyAlreadyExists indicates that the review already carries a seller reply.
	ErrReplyAlreadyExists = errors.New("reply already exists for this review")
	// ErrRepository indicates a generic data persistence error.
	ErrRepository = errors.New("repository error")
)

// --- Reviewer Identity ---

// ReviewerKind tags which profile authored a review. A user may hold both a
// buyer and a seller profile; the review records exactly one of them.
type ReviewerKind string

const (
	ReviewerKindBuyer  ReviewerKind = "buyer"
	ReviewerKindSeller ReviewerKind = "seller"
)

// IsValid checks if the ReviewerKind is one of the defined constants.
func (k ReviewerKind) IsValid() bool {
	return k == ReviewerKindBuyer || k == ReviewerKindSeller
}

// Reviewer is the authoring identity of a review: the kind of profile, the
// profile id itself and the owning user (kept alongside for display joins).
type Reviewer struct {
	Kind      ReviewerKind
	ProfileID primitive.ObjectID
	UserID    primitive.ObjectID
}

// --- Review Entity ---

// Reply is a seller's single answer to a review. Once set it is never
// overwritten.
type Reply struct {
	Comment   string
	CreatedAt time.Time
}

// Review represents a rating left for a seller by a buyer or another seller.
type Review struct {
	ID           primitive.ObjectID
	SellerID     primitive.ObjectID // seller profile being reviewed, immutable
	Reviewer     Reviewer           // authoring identity, immutable
	Rating       int32              // 1-5 stars, immutable after creation
	Comment      string
	Reply        *Reply             // at most one, nil until the seller answers
	Reported     bool               // moderation flag, last report wins
	ReportReason string
	ReporterID   primitive.ObjectID // zero value when not reported
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewReview creates a new review instance for a seller.
func NewReview(sellerID primitive.ObjectID, reviewer Reviewer, rating int32, comment string) (*Review, error) {
	if sellerID.IsZero() {
		return nil, fmt.Errorf("%w: sellerID cannot be empty", ErrInvalidInput)
	}
	if !reviewer.Kind.IsValid() || reviewer.ProfileID.IsZero() {
		return nil, fmt.Errorf("%w: reviewer identity must be a buyer or seller profile", ErrInvalidInput)
	}
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
	}

	now := time.Now().UTC()
	return &Review{
		ID:        primitive.NewObjectID(),
		SellerID:  sellerID,
		Reviewer:  reviewer,
		Rating:    rating,
		Comment:   comment,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// --- Read Models ---

// ReviewWithReviewer is the read model for seller review listings: the review
// row with the reviewer's user identity resolved for display.
type ReviewWithReviewer struct {
	Review
	ReviewerName string
}

// ReviewPage is one page of a seller's reviews, newest first.
type ReviewPage struct {
	Reviews []*ReviewWithReviewer
	Total   int64
	Page    int32
	Limit   int32
	HasMore bool
}

// SellerStats aggregates a seller's reviews. TotalReviews and AverageRating
// are always computed from the stored reviews, never from the denormalized
// num_reviews counter, so a drifted counter cannot skew the average.
type SellerStats struct {
	SellerID      primitive.ObjectID
	TotalReviews  int64
	AverageRating float64
}

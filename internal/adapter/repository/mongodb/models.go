package mongodb

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/partshub/review-service/internal/domain"
)

// Document structures for MongoDB storage. The mapping between database tags
// and the clean domain entities lives here, not in the domain package.

type reviewerDocument struct {
	Kind      string             `bson:"kind"`
	ProfileID primitive.ObjectID `bson:"profile_id"`
	UserID    primitive.ObjectID `bson:"user_id"`
}

type replyDocument struct {
	Comment   string    `bson:"comment"`
	CreatedAt time.Time `bson:"created_at"`
}

type reviewDocument struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	SellerID     primitive.ObjectID `bson:"seller_id"`
	Reviewer     reviewerDocument   `bson:"reviewer"`
	Rating       int32              `bson:"rating"`
	Comment      string             `bson:"comment"`
	Reply        *replyDocument     `bson:"reply,omitempty"`
	Reported     bool               `bson:"reported"`
	ReportReason string             `bson:"report_reason,omitempty"`
	ReporterID   primitive.ObjectID `bson:"reporter_id,omitempty"`
	CreatedAt    time.Time          `bson:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at"`
}

type userDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Username  string             `bson:"username"`
	Email     string             `bson:"email"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

type buyerDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    primitive.ObjectID `bson:"user_id"`
	CreatedAt time.Time          `bson:"created_at"`
}

type sellerDocument struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	UserID     primitive.ObjectID `bson:"user_id"`
	StoreName  string             `bson:"store_name"`
	NumReviews int64              `bson:"num_reviews"`
	CreatedAt  time.Time          `bson:"created_at"`
	UpdatedAt  time.Time          `bson:"updated_at"`
}

// reviewWithReviewerDocument is the shape produced by the $lookup pipeline in
// FindBySeller: the review row plus the joined reviewer user.
type reviewWithReviewerDocument struct {
	reviewDocument `bson:",inline"`
	ReviewerUsers  []userDocument `bson:"reviewer_users"`
}

func fromDomainReview(r *domain.Review) *reviewDocument {
	if r == nil {
		return nil
	}
	doc := &reviewDocument{
		ID:       r.ID,
		SellerID: r.SellerID,
		Reviewer: reviewerDocument{
			Kind:      string(r.Reviewer.Kind),
			ProfileID: r.Reviewer.ProfileID,
			UserID:    r.Reviewer.UserID,
		},
		Rating:       r.Rating,
		Comment:      r.Comment,
		Reported:     r.Reported,
		ReportReason: r.ReportReason,
		ReporterID:   r.ReporterID,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.Reply != nil {
		doc.Reply = &replyDocument{Comment: r.Reply.Comment, CreatedAt: r.Reply.CreatedAt}
	}
	return doc
}

func (d *reviewDocument) toDomainReview() *domain.Review {
	if d == nil {
		return nil
	}
	r := &domain.Review{
		ID:       d.ID,
		SellerID: d.SellerID,
		Reviewer: domain.Reviewer{
			Kind:      domain.ReviewerKind(d.Reviewer.Kind),
			ProfileID: d.Reviewer.ProfileID,
			UserID:    d.Reviewer.UserID,
		},
		Rating:       d.Rating,
		Comment:      d.Comment,
		Reported:     d.Reported,
		ReportReason: d.ReportReason,
		ReporterID:   d.ReporterID,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	if d.Reply != nil {
		r.Reply = &domain.Reply{Comment: d.Reply.Comment, CreatedAt: d.Reply.CreatedAt}
	}
	return r
}

func (d *reviewWithReviewerDocument) toDomainReviewWithReviewer() *domain.ReviewWithReviewer {
	out := &domain.ReviewWithReviewer{Review: *d.reviewDocument.toDomainReview()}
	if len(d.ReviewerUsers) > 0 {
		out.ReviewerName = d.ReviewerUsers[0].Username
	}
	return out
}

func (d *userDocument) toDomainUser(buyer *buyerDocument, seller *sellerDocument) *domain.User {
	u := &domain.User{
		ID:        d.ID,
		Username:  d.Username,
		Email:     d.Email,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if buyer != nil {
		id := buyer.ID
		u.BuyerProfileID = &id
	}
	if seller != nil {
		id := seller.ID
		u.SellerProfileID = &id
	}
	return u
}

func (d *sellerDocument) toDomainSeller() *domain.SellerProfile {
	return &domain.SellerProfile{
		ID:         d.ID,
		UserID:     d.UserID,
		StoreName:  d.StoreName,
		NumReviews: d.NumReviews,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

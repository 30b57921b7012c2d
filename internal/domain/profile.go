package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is a marketplace account. A user may additionally hold a buyer profile,
// a seller profile, or both; either one qualifies them to write reviews.
type User struct {
	ID              primitive.ObjectID
	Username        string
	Email           string
	BuyerProfileID  *primitive.ObjectID
	SellerProfileID *primitive.ObjectID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ReviewerIdentity resolves the identity a review by this user is recorded
// under. The buyer profile is preferred when the user holds both.
func (u *User) ReviewerIdentity() (Reviewer, bool) {
	if u.BuyerProfileID != nil {
		return Reviewer{Kind: ReviewerKindBuyer, ProfileID: *u.BuyerProfileID, UserID: u.ID}, true
	}
	if u.SellerProfileID != nil {
		return Reviewer{Kind: ReviewerKindSeller, ProfileID: *u.SellerProfileID, UserID: u.ID}, true
	}
	return Reviewer{}, false
}

// HoldsReviewer reports whether this user owns the profile a review was
// authored under. Used to authorize review deletion.
func (u *User) HoldsReviewer(r Reviewer) bool {
	switch r.Kind {
	case ReviewerKindBuyer:
		return u.BuyerProfileID != nil && *u.BuyerProfileID == r.ProfileID
	case ReviewerKindSeller:
		return u.SellerProfileID != nil && *u.SellerProfileID == r.ProfileID
	}
	return false
}

// SellerProfile is the storefront entity that can be reviewed and can reply to
// reviews about itself. NumReviews is the denormalized aggregate counter,
// maintained in the same store transaction as review inserts and deletes.
type SellerProfile struct {
	ID         primitive.ObjectID
	UserID     primitive.ObjectID
	StoreName  string
	NumReviews int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

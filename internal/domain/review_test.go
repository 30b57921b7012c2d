package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestNewReview_Validation(t *testing.T) {
	sellerID := primitive.NewObjectID()
	reviewer := Reviewer{
		Kind:      ReviewerKindBuyer,
		ProfileID: primitive.NewObjectID(),
		UserID:    primitive.NewObjectID(),
	}

	t.Run("Valid", func(t *testing.T) {
		review, err := NewReview(sellerID, reviewer, 5, "great fit for my 2014 Corolla")
		require.NoError(t, err)
		assert.False(t, review.ID.IsZero())
		assert.Equal(t, sellerID, review.SellerID)
		assert.Equal(t, reviewer, review.Reviewer)
		assert.Nil(t, review.Reply)
		assert.False(t, review.Reported)
		assert.Equal(t, review.CreatedAt, review.UpdatedAt)
	})

	t.Run("RatingBounds", func(t *testing.T) {
		for _, rating := range []int32{0, 6, -3, 100} {
			_, err := NewReview(sellerID, reviewer, rating, "x")
			assert.ErrorIs(t, err, ErrInvalidInput, "rating %d must be rejected", rating)
		}
		for _, rating := range []int32{1, 2, 3, 4, 5} {
			_, err := NewReview(sellerID, reviewer, rating, "x")
			assert.NoError(t, err, "rating %d must be accepted", rating)
		}
	})

	t.Run("EmptySellerID", func(t *testing.T) {
		_, err := NewReview(primitive.NilObjectID, reviewer, 3, "x")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("InvalidReviewer", func(t *testing.T) {
		_, err := NewReview(sellerID, Reviewer{}, 3, "x")
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = NewReview(sellerID, Reviewer{Kind: "admin", ProfileID: primitive.NewObjectID()}, 3, "x")
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = NewReview(sellerID, Reviewer{Kind: ReviewerKindBuyer}, 3, "x")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("EmptyCommentAllowed", func(t *testing.T) {
		review, err := NewReview(sellerID, reviewer, 4, "")
		require.NoError(t, err)
		assert.Empty(t, review.Comment)
	})
}

func TestUser_ReviewerIdentity(t *testing.T) {
	userID := primitive.NewObjectID()
	buyerID := primitive.NewObjectID()
	sellerID := primitive.NewObjectID()

	t.Run("BuyerPreferredOverSeller", func(t *testing.T) {
		u := &User{ID: userID, BuyerProfileID: &buyerID, SellerProfileID: &sellerID}
		r, ok := u.ReviewerIdentity()
		require.True(t, ok)
		assert.Equal(t, ReviewerKindBuyer, r.Kind)
		assert.Equal(t, buyerID, r.ProfileID)
		assert.Equal(t, userID, r.UserID)
	})

	t.Run("SellerOnly", func(t *testing.T) {
		u := &User{ID: userID, SellerProfileID: &sellerID}
		r, ok := u.ReviewerIdentity()
		require.True(t, ok)
		assert.Equal(t, ReviewerKindSeller, r.Kind)
		assert.Equal(t, sellerID, r.ProfileID)
	})

	t.Run("NoProfiles", func(t *testing.T) {
		u := &User{ID: userID}
		_, ok := u.ReviewerIdentity()
		assert.False(t, ok)
	})
}

func TestUser_HoldsReviewer(t *testing.T) {
	userID := primitive.NewObjectID()
	buyerID := primitive.NewObjectID()
	sellerID := primitive.NewObjectID()
	u := &User{ID: userID, BuyerProfileID: &buyerID, SellerProfileID: &sellerID}

	assert.True(t, u.HoldsReviewer(Reviewer{Kind: ReviewerKindBuyer, ProfileID: buyerID}))
	assert.True(t, u.HoldsReviewer(Reviewer{Kind: ReviewerKindSeller, ProfileID: sellerID}))

	// kind and profile id must match together
	assert.False(t, u.HoldsReviewer(Reviewer{Kind: ReviewerKindSeller, ProfileID: buyerID}))
	assert.False(t, u.HoldsReviewer(Reviewer{Kind: ReviewerKindBuyer, ProfileID: sellerID}))
	assert.False(t, u.HoldsReviewer(Reviewer{Kind: ReviewerKindBuyer, ProfileID: primitive.NewObjectID()}))
	assert.False(t, u.HoldsReviewer(Reviewer{Kind: "moderator", ProfileID: buyerID}))

	bare := &User{ID: userID}
	assert.False(t, bare.HoldsReviewer(Reviewer{Kind: ReviewerKindBuyer, ProfileID: buyerID}))
}

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/partshub/review-service/internal/domain"
	"github.com/partshub/review-service/internal/middleware"
	"github.com/partshub/review-service/internal/platform/logger"
	"github.com/partshub/review-service/internal/platform/metrics"
	"github.com/partshub/review-service/internal/usecase"
)

const (
	defaultPage  = int32(1)
	defaultLimit = int32(5)
)

// ReviewHandler exposes the review lifecycle over REST.
type ReviewHandler struct {
	usecase *usecase.ReviewUsecase
	metrics *metrics.Manager
	logger  *logger.Logger
}

func NewReviewHandler(uc *usecase.ReviewUsecase, m *metrics.Manager, log *logger.Logger) *ReviewHandler {
	return &ReviewHandler{
		usecase: uc,
		metrics: m,
		logger:  log.Named("ReviewHTTPHandler"),
	}
}

// --- Request / Response DTOs ---

type createReviewRequest struct {
	Rating  int32  `json:"rating"`
	Comment string `json:"comment"`
}

type replyRequest struct {
	Comment string `json:"comment"`
}

type reportRequest struct {
	Reason string `json:"reason"`
}

type reviewerResponse struct {
	Kind      string `json:"kind"`
	ProfileID string `json:"profile_id"`
}

type replyResponse struct {
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

type reviewResponse struct {
	ID           string           `json:"id"`
	SellerID     string           `json:"seller_id"`
	Reviewer     reviewerResponse `json:"reviewer"`
	ReviewerName string           `json:"reviewer_name,omitempty"`
	Rating       int32            `json:"rating"`
	Comment      string           `json:"comment"`
	Reply        *replyResponse   `json:"reply,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

type reviewPageResponse struct {
	Reviews []reviewResponse `json:"reviews"`
	Total   int64            `json:"total"`
	Page    int32            `json:"page"`
	Limit   int32            `json:"limit"`
	HasMore bool             `json:"has_more"`
}

type sellerStatsResponse struct {
	SellerID      string  `json:"seller_id"`
	TotalReviews  int64   `json:"total_reviews"`
	AverageRating float64 `json:"average_rating"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toReviewResponse(r *domain.Review, reviewerName string) reviewResponse {
	resp := reviewResponse{
		ID:       r.ID.Hex(),
		SellerID: r.SellerID.Hex(),
		Reviewer: reviewerResponse{
			Kind:      string(r.Reviewer.Kind),
			ProfileID: r.Reviewer.ProfileID.Hex(),
		},
		ReviewerName: reviewerName,
		Rating:       r.Rating,
		Comment:      r.Comment,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.Reply != nil {
		resp.Reply = &replyResponse{Comment: r.Reply.Comment, CreatedAt: r.Reply.CreatedAt}
	}
	return resp
}

// --- Helpers ---

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		// status is already committed, nothing sensible to do on encode failure
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func parseIntQueryParam(r *http.Request, key string, defaultValue int32) int32 {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultValue
	}
	valInt, err := strconv.ParseInt(valStr, 10, 32)
	if err != nil {
		return defaultValue
	}
	return int32(valInt)
}

func parseObjectIDParam(r *http.Request, key string) (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(chi.URLParam(r, key))
}

func (h *ReviewHandler) respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	var code int
	var errType string
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		code, errType = http.StatusBadRequest, "invalid_input"
	case errors.Is(err, domain.ErrNotFound):
		code, errType = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrForbidden):
		code, errType = http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrReplyAlreadyExists):
		code, errType = http.StatusConflict, "conflict"
	default:
		code, errType = http.StatusInternalServerError, "internal"
	}

	h.metrics.APIErrorsTotal.WithLabelValues(r.URL.Path, errType).Inc()
	if code == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
		respondWithJSON(w, code, errorResponse{Error: "internal server error"})
		return
	}
	h.logger.Warn("Request rejected", zap.String("path", r.URL.Path), zap.Int("status", code), zap.Error(err))
	respondWithJSON(w, code, errorResponse{Error: err.Error()})
}

// --- Handlers ---

func (h *ReviewHandler) HandleCreateReview(w http.ResponseWriter, r *http.Request) {
	sellerID, err := parseObjectIDParam(r, "sellerId")
	if err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid seller id"})
		return
	}

	userIDHex, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondWithJSON(w, http.StatusUnauthorized, errorResponse{Error: "user id missing from token"})
		return
	}
	userID, err := primitive.ObjectIDFromHex(userIDHex)
	if err != nil {
		respondWithJSON(w, http.StatusUnauthorized, errorResponse{Error: "user id in token is malformed"})
		return
	}

	var req createReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	review, err := h.usecase.CreateReview(r.Context(), sellerID, userID, req.Rating, req.Comment)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, toReviewResponse(review, ""))
}

func (h *ReviewHandler) HandleGetSellerReviews(w http.ResponseWriter, r *http.Request) {
	sellerID, err := parseObjectIDParam(r, "sellerId")
	if err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid seller id"})
		return
	}

	page := parseIntQueryParam(r, "page", defaultPage)
	limit := parseIntQueryParam(r, "limit", defaultLimit)

	result, err := h.usecase.GetSellerReviews(r.Context(), sellerID, page, limit)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	resp := reviewPageResponse{
		Reviews: make([]reviewResponse, 0, len(result.Reviews)),
		Total:   result.Total,
		Page:    result.Page,
		Limit:   result.Limit,
		HasMore: result.HasMore,
	}
	for _, rv := range result.Reviews {
		resp.Reviews = append(resp.Reviews, toReviewResponse(&rv.Review, rv.ReviewerName))
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *ReviewHandler) HandleGetSellerRating(w http.ResponseWriter, r *http.Request) {
	sellerID, err := parseObjectIDParam(r, "sellerId")
	if err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid seller id"})
		return
	}

	stats, err := h.usecase.GetSellerStats(r.Context(), sellerID)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sellerStatsResponse{
		SellerID:      stats.SellerID.Hex(),
		TotalReviews:  stats.TotalReviews,
		AverageRating: stats.AverageRating,
	})
}

func (h *ReviewHandler) HandleAddReply(w http.ResponseWriter, r *http.Request) {
	reviewID, err := parseObjectIDParam(r, "reviewId")
	if err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid review id"})
		return
	}

	sellerIDHex, ok := middleware.SellerIDFromContext(r.Context())
	if !ok {
		respondWithJSON(w, http.StatusForbidden, errorResponse{Error: "caller has no seller profile"})
		return
	}
	sellerID, err := primitive.ObjectIDFromHex(sellerIDHex)
	if err != nil {
		respondWithJSON(w, http.StatusForbidden, errorResponse{Error: "seller id in token is malformed"})
		return
	}

	var req replyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	review, err := h.usecase.AddReplyToReview(r.Context(), reviewID, sellerID, req.Comment)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toReviewResponse(review, ""))
}

func (h *ReviewHandler) HandleReportReview(w http.ResponseWriter, r *http.Request) {
	reviewID, err := parseObjectIDParam(r, "reviewId")
	if err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid review id"})
		return
	}

	userIDHex, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondWithJSON(w, http.StatusUnauthorized, errorResponse{Error: "user id missing from token"})
		return
	}
	reporterID, err := primitive.ObjectIDFromHex(userIDHex)
	if err != nil {
		respondWithJSON(w, http.StatusUnauthorized, errorResponse{Error: "user id in token is malformed"})
		return
	}

	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	if err := h.usecase.ReportReview(r.Context(), reviewID, reporterID, req.Reason); err != nil {
		h.respondWithError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ReviewHandler) HandleDeleteReview(w http.ResponseWriter, r *http.Request) {
	reviewID, err := parseObjectIDParam(r, "reviewId")
	if err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid review id"})
		return
	}

	userIDHex, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondWithJSON(w, http.StatusUnauthorized, errorResponse{Error: "user id missing from token"})
		return
	}
	userID, err := primitive.ObjectIDFromHex(userIDHex)
	if err != nil {
		respondWithJSON(w, http.StatusUnauthorized, errorResponse{Error: "user id in token is malformed"})
		return
	}

	if err := h.usecase.DeleteReview(r.Context(), reviewID, userID); err != nil {
		h.respondWithError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ReviewHandler) HandleHealthz(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/partshub/review-service/internal/adapter/httpapi"
	natsAdapter "github.com/partshub/review-service/internal/adapter/messaging/nats"
	"github.com/partshub/review-service/internal/adapter/repository/cache"
	mongoRepo "github.com/partshub/review-service/internal/adapter/repository/mongodb"
	"github.com/partshub/review-service/internal/middleware"
	platformLogger "github.com/partshub/review-service/internal/platform/logger"
	"github.com/partshub/review-service/internal/platform/metrics"
	"github.com/partshub/review-service/internal/usecase"
)

const (
	testDBName    = "test_partshub_reviews"
	testJWTSecret = "test-secret-for-integration"
)

var (
	testDBClient *mongo.Client
	testServer   *httptest.Server
	testLogger   *platformLogger.Logger

	// seeded fixture ids
	buyerUserID     primitive.ObjectID
	buyerProfileID  primitive.ObjectID
	sellerUserID    primitive.ObjectID
	sellerProfileID primitive.ObjectID
	otherUserID     primitive.ObjectID
	otherBuyerID    primitive.ObjectID
)

// TestMain starts MongoDB (as a single-node replica set so transactions work),
// Redis and NATS in containers and serves the full HTTP stack against them.
func TestMain(m *testing.M) {
	testLogger = platformLogger.NewLogger()

	pool, err := dockertest.NewPool("")
	if err != nil {
		log.Fatalf("Could not construct pool: %s", err)
	}
	if err := pool.Client.Ping(); err != nil {
		log.Fatalf("Could not connect to Docker: %s", err)
	}

	mongoResource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "mongo",
		Tag:        "6.0",
		Cmd:        []string{"--replSet", "rs0", "--bind_ip_all"},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Fatalf("Could not start MongoDB resource: %s", err)
	}
	mongoURI := fmt.Sprintf("mongodb://%s/?directConnection=true", mongoResource.GetHostPort("27017/tcp"))

	redisResource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "redis",
		Tag:        "7",
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Fatalf("Could not start Redis resource: %s", err)
	}
	redisAddr := redisResource.GetHostPort("6379/tcp")

	natsResource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "nats",
		Tag:        "2.9",
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Fatalf("Could not start NATS resource: %s", err)
	}
	natsURL := fmt.Sprintf("nats://%s", natsResource.GetHostPort("4222/tcp"))

	// Initiate the replica set and wait for a primary. Transactions refuse to
	// run against a standalone mongod.
	if err := pool.Retry(func() error {
		if _, errExec := mongoResource.Exec(
			[]string{"mongosh", "--quiet", "--eval", "try { rs.status().ok } catch (e) { rs.initiate() }"},
			dockertest.ExecOptions{},
		); errExec != nil {
			return errExec
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client, errConn := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
		if errConn != nil {
			return errConn
		}
		if errPing := client.Ping(ctx, readpref.Primary()); errPing != nil {
			_ = client.Disconnect(context.Background())
			return errPing
		}
		testDBClient = client
		return nil
	}); err != nil {
		log.Fatalf("Could not connect to MongoDB replica set: %s", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := pool.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return redisClient.Ping(ctx).Err()
	}); err != nil {
		log.Fatalf("Could not connect to Redis: %s", err)
	}

	var natsPub *natsAdapter.Publisher
	if err := pool.Retry(func() error {
		var errRetry error
		natsPub, errRetry = natsAdapter.NewPublisher(natsURL, testLogger, "test-review-service-integration")
		return errRetry
	}); err != nil {
		log.Fatalf("Could not connect to NATS: %s", err)
	}

	db := testDBClient.Database(testDBName)
	reviewRepo, err := mongoRepo.NewReviewRepository(db, testLogger)
	if err != nil {
		log.Fatalf("Could not create review repository: %s", err)
	}
	profileRepo := mongoRepo.NewProfileRepository(db, testLogger)
	statsCache := cache.NewSellerStatsCache(redisClient, testLogger)
	metricsManager := metrics.NewManager("review_service_integration_test")

	uc := usecase.NewReviewUsecase(reviewRepo, profileRepo, statsCache, natsPub, metricsManager, testLogger)
	handler := httpapi.NewReviewHandler(uc, metricsManager, testLogger)
	router := httpapi.NewRouter(handler, metricsManager, testJWTSecret, testLogger)
	testServer = httptest.NewServer(router)

	code := m.Run()

	testServer.Close()
	natsPub.Close()
	_ = redisClient.Close()
	_ = testDBClient.Disconnect(context.Background())
	if err := pool.Purge(mongoResource); err != nil {
		log.Fatalf("Could not purge MongoDB resource: %s", err)
	}
	if err := pool.Purge(redisResource); err != nil {
		log.Fatalf("Could not purge Redis resource: %s", err)
	}
	if err := pool.Purge(natsResource); err != nil {
		log.Fatalf("Could not purge NATS resource: %s", err)
	}
	os.Exit(code)
}

// --- Fixtures and helpers ---

func resetDatabase(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	db := testDBClient.Database(testDBName)
	for _, coll := range []string{"reviews", "users", "buyers", "sellers"} {
		_, err := db.Collection(coll).DeleteMany(ctx, bson.M{})
		require.NoError(t, err, "failed to clear %s collection", coll)
	}

	// fresh ids per test, so stale cached stats from earlier tests cannot match
	now := time.Now().UTC()
	buyerUserID = primitive.NewObjectID()
	buyerProfileID = primitive.NewObjectID()
	sellerUserID = primitive.NewObjectID()
	sellerProfileID = primitive.NewObjectID()
	otherUserID = primitive.NewObjectID()
	otherBuyerID = primitive.NewObjectID()

	_, err := db.Collection("users").InsertMany(ctx, []interface{}{
		bson.M{"_id": buyerUserID, "username": "alice", "email": "alice@example.com", "created_at": now, "updated_at": now},
		bson.M{"_id": sellerUserID, "username": "bobs-parts", "email": "bob@example.com", "created_at": now, "updated_at": now},
		bson.M{"_id": otherUserID, "username": "carol", "email": "carol@example.com", "created_at": now, "updated_at": now},
	})
	require.NoError(t, err)

	_, err = db.Collection("buyers").InsertMany(ctx, []interface{}{
		bson.M{"_id": buyerProfileID, "user_id": buyerUserID, "created_at": now},
		bson.M{"_id": otherBuyerID, "user_id": otherUserID, "created_at": now},
	})
	require.NoError(t, err)

	_, err = db.Collection("sellers").InsertOne(ctx, bson.M{
		"_id": sellerProfileID, "user_id": sellerUserID, "store_name": "Bob's Brake Parts",
		"num_reviews": int64(0), "created_at": now, "updated_at": now,
	})
	require.NoError(t, err)
}

func signToken(t *testing.T, userID primitive.ObjectID, role string, sellerID primitive.ObjectID) string {
	t.Helper()
	claims := middleware.Claims{
		UserID: userID.Hex(),
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	if !sellerID.IsZero() {
		claims.SellerID = sellerID.Hex()
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

func doRequest(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var reqBody *bytes.Buffer = bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(data)
	}
	req, err := http.NewRequest(method, testServer.URL+path, reqBody)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

type reviewBody struct {
	ID       string `json:"id"`
	SellerID string `json:"seller_id"`
	Reviewer struct {
		Kind      string `json:"kind"`
		ProfileID string `json:"profile_id"`
	} `json:"reviewer"`
	ReviewerName string `json:"reviewer_name"`
	Rating       int32  `json:"rating"`
	Comment      string `json:"comment"`
	Reply        *struct {
		Comment string `json:"comment"`
	} `json:"reply"`
}

type pageBody struct {
	Reviews []reviewBody `json:"reviews"`
	Total   int64        `json:"total"`
	Page    int32        `json:"page"`
	Limit   int32        `json:"limit"`
	HasMore bool         `json:"has_more"`
}

type statsBody struct {
	SellerID      string  `json:"seller_id"`
	TotalReviews  int64   `json:"total_reviews"`
	AverageRating float64 `json:"average_rating"`
}

func createReview(t *testing.T, userID primitive.ObjectID, rating int32, comment string) reviewBody {
	t.Helper()
	token := signToken(t, userID, "customer", primitive.NilObjectID)
	resp := doRequest(t, http.MethodPost, "/api/sellers/"+sellerProfileID.Hex()+"/reviews", token,
		map[string]interface{}{"rating": rating, "comment": comment})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var body reviewBody
	decodeBody(t, resp, &body)
	return body
}

func sellerNumReviews(t *testing.T) int64 {
	t.Helper()
	var doc struct {
		NumReviews int64 `bson:"num_reviews"`
	}
	err := testDBClient.Database(testDBName).Collection("sellers").
		FindOne(context.Background(), bson.M{"_id": sellerProfileID}).Decode(&doc)
	require.NoError(t, err)
	return doc.NumReviews
}

// --- Test Cases ---

func TestCreateReview_AndList(t *testing.T) {
	resetDatabase(t)

	created := createReview(t, buyerUserID, 5, "Perfect fit, fast shipping")
	assert.Equal(t, sellerProfileID.Hex(), created.SellerID)
	assert.Equal(t, "buyer", created.Reviewer.Kind)
	assert.Equal(t, buyerProfileID.Hex(), created.Reviewer.ProfileID)
	assert.Equal(t, int32(5), created.Rating)
	assert.NotEmpty(t, created.ID)

	assert.Equal(t, int64(1), sellerNumReviews(t))

	resp := doRequest(t, http.MethodGet, "/api/sellers/"+sellerProfileID.Hex()+"/reviews", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page pageBody
	decodeBody(t, resp, &page)
	require.Len(t, page.Reviews, 1)
	assert.Equal(t, created.ID, page.Reviews[0].ID)
	assert.Equal(t, "alice", page.Reviews[0].ReviewerName)
	assert.Equal(t, int64(1), page.Total)
	assert.False(t, page.HasMore)
}

func TestCreateReview_InvalidRating(t *testing.T) {
	resetDatabase(t)
	token := signToken(t, buyerUserID, "customer", primitive.NilObjectID)

	for _, rating := range []int32{0, 6} {
		resp := doRequest(t, http.MethodPost, "/api/sellers/"+sellerProfileID.Hex()+"/reviews", token,
			map[string]interface{}{"rating": rating, "comment": "x"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	}
	assert.Equal(t, int64(0), sellerNumReviews(t))
}

func TestCreateReview_UnknownSeller(t *testing.T) {
	resetDatabase(t)
	token := signToken(t, buyerUserID, "customer", primitive.NilObjectID)

	resp := doRequest(t, http.MethodPost, "/api/sellers/"+primitive.NewObjectID().Hex()+"/reviews", token,
		map[string]interface{}{"rating": 4, "comment": "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestCreateReview_Unauthenticated(t *testing.T) {
	resetDatabase(t)
	resp := doRequest(t, http.MethodPost, "/api/sellers/"+sellerProfileID.Hex()+"/reviews", "",
		map[string]interface{}{"rating": 4, "comment": "x"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestSellerRating_AggregatesFromReviews(t *testing.T) {
	resetDatabase(t)

	createReview(t, buyerUserID, 5, "great")
	createReview(t, otherUserID, 2, "meh")

	resp := doRequest(t, http.MethodGet, "/api/sellers/"+sellerProfileID.Hex()+"/rating", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats statsBody
	decodeBody(t, resp, &stats)
	assert.Equal(t, int64(2), stats.TotalReviews)
	assert.InDelta(t, 3.5, stats.AverageRating, 0.01)
}

func TestSellerRating_NoReviews(t *testing.T) {
	resetDatabase(t)

	resp := doRequest(t, http.MethodGet, "/api/sellers/"+sellerProfileID.Hex()+"/rating", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats statsBody
	decodeBody(t, resp, &stats)
	assert.Equal(t, int64(0), stats.TotalReviews)
	assert.Equal(t, 0.0, stats.AverageRating)
}

func TestListReviews_Pagination(t *testing.T) {
	resetDatabase(t)

	for i := 0; i < 3; i++ {
		createReview(t, buyerUserID, 4, fmt.Sprintf("review %d", i))
		time.Sleep(5 * time.Millisecond) // distinct created_at for stable ordering
	}

	resp := doRequest(t, http.MethodGet, "/api/sellers/"+sellerProfileID.Hex()+"/reviews?page=1&limit=2", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page pageBody
	decodeBody(t, resp, &page)
	assert.Len(t, page.Reviews, 2)
	assert.Equal(t, int64(3), page.Total)
	assert.True(t, page.HasMore)
	// newest first
	assert.Equal(t, "review 2", page.Reviews[0].Comment)

	resp = doRequest(t, http.MethodGet, "/api/sellers/"+sellerProfileID.Hex()+"/reviews?page=2&limit=2", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &page)
	assert.Len(t, page.Reviews, 1)
	assert.False(t, page.HasMore)
}

func TestAddReply_OnceOnly(t *testing.T) {
	resetDatabase(t)
	created := createReview(t, buyerUserID, 2, "order arrived late")

	sellerToken := signToken(t, sellerUserID, "seller", sellerProfileID)
	resp := doRequest(t, http.MethodPost, "/api/reviews/"+created.ID+"/reply", sellerToken,
		map[string]string{"comment": "sorry, carrier delay"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var replied reviewBody
	decodeBody(t, resp, &replied)
	require.NotNil(t, replied.Reply)
	assert.Equal(t, "sorry, carrier delay", replied.Reply.Comment)

	// second reply conflicts
	resp = doRequest(t, http.MethodPost, "/api/reviews/"+created.ID+"/reply", sellerToken,
		map[string]string{"comment": "another answer"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestAddReply_WrongSellerForbidden(t *testing.T) {
	resetDatabase(t)
	created := createReview(t, buyerUserID, 3, "ok")

	otherSellerToken := signToken(t, otherUserID, "seller", primitive.NewObjectID())
	resp := doRequest(t, http.MethodPost, "/api/reviews/"+created.ID+"/reply", otherSellerToken,
		map[string]string{"comment": "not my review"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestReportReview_LastReportWins(t *testing.T) {
	resetDatabase(t)
	created := createReview(t, buyerUserID, 1, "terrible")

	token := signToken(t, otherUserID, "customer", primitive.NilObjectID)
	resp := doRequest(t, http.MethodPost, "/api/reviews/"+created.ID+"/report", token,
		map[string]string{"reason": "spam"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = doRequest(t, http.MethodPost, "/api/reviews/"+created.ID+"/report", token,
		map[string]string{"reason": "offensive language"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	reviewID, err := primitive.ObjectIDFromHex(created.ID)
	require.NoError(t, err)
	var doc struct {
		Reported     bool   `bson:"reported"`
		ReportReason string `bson:"report_reason"`
	}
	err = testDBClient.Database(testDBName).Collection("reviews").
		FindOne(context.Background(), bson.M{"_id": reviewID}).Decode(&doc)
	require.NoError(t, err)
	assert.True(t, doc.Reported)
	assert.Equal(t, "offensive language", doc.ReportReason)
}

func TestDeleteReview_ByAuthor(t *testing.T) {
	resetDatabase(t)
	created := createReview(t, buyerUserID, 4, "to be deleted")
	require.Equal(t, int64(1), sellerNumReviews(t))

	token := signToken(t, buyerUserID, "customer", primitive.NilObjectID)
	resp := doRequest(t, http.MethodDelete, "/api/reviews/"+created.ID, token, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	assert.Equal(t, int64(0), sellerNumReviews(t))

	// deleting again is a 404
	resp = doRequest(t, http.MethodDelete, "/api/reviews/"+created.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestDeleteReview_ByStrangerForbidden(t *testing.T) {
	resetDatabase(t)
	created := createReview(t, buyerUserID, 4, "protected")

	token := signToken(t, otherUserID, "customer", primitive.NilObjectID)
	resp := doRequest(t, http.MethodDelete, "/api/reviews/"+created.ID, token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	assert.Equal(t, int64(1), sellerNumReviews(t))
}

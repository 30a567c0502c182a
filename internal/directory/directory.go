// Package directory implements the user directory gateway: a thin, typed
// facade over the partitioned users collection of the document database.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/NeilR2s/cold-start-marketplace/internal/shared"
)

const (
	collectionName = "users"

	maxSearchLimit     = 50
	defaultSearchLimit = 20
	minSearchTermLen   = 2
)

type Config struct {
	// Endpoint is the document database connection URI.
	Endpoint string
	// Key is the account access key, applied as the password of the
	// account credential.
	Key string
	// DatabaseID names the database holding the users collection.
	DatabaseID string
	// RequestTimeout bounds every remote call.
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

type state int

const (
	stateUninitialized state = iota
	stateReady
	stateClosed
)

// Gateway owns the connection to the users collection. Safe for concurrent
// use once Ready; the remote store provides its own concurrency control.
type Gateway struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.RWMutex
	state  state
	client *mongo.Client
	users  *mongo.Collection
}

func New(cfg Config) *Gateway {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &Gateway{cfg: cfg, logger: logger}
}

// Initialize connects to the database and ensures the users collection
// exists. It is idempotent once ready and fatal (returns an error the caller
// must treat as fatal to startup) when required configuration is absent or
// the collection cannot be bootstrapped.
func (g *Gateway) Initialize(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == stateReady {
		return nil
	}

	if g.cfg.Endpoint == "" || g.cfg.Key == "" || g.cfg.DatabaseID == "" {
		return fmt.Errorf("user directory failed to initialize: missing endpoint, key, or database id")
	}

	clientOpts := options.Client().ApplyURI(g.cfg.Endpoint)
	if account := accountNameFromEndpoint(g.cfg.Endpoint); account != "" {
		clientOpts.SetAuth(options.Credential{
			Username:    account,
			Password:    g.cfg.Key,
			PasswordSet: true,
		})
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return fmt.Errorf("connect user directory: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("ping user directory: %w", err)
	}

	db := client.Database(g.cfg.DatabaseID)
	if err := db.CreateCollection(ctx, collectionName); err != nil && !isNamespaceExists(err) {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("create users collection: %w", err)
	}

	g.client = client
	g.users = db.Collection(collectionName)
	g.state = stateReady
	g.logger.Info("user directory initialized", "database", g.cfg.DatabaseID, "collection", collectionName)
	return nil
}

// Close releases the connection. Safe to call multiple times; subsequent
// operations fail with an unavailable fault until Initialize is called again.
func (g *Gateway) Close(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client == nil {
		g.state = stateClosed
		return nil
	}
	err := g.client.Disconnect(ctx)
	g.client = nil
	g.users = nil
	g.state = stateClosed
	if err != nil {
		return fmt.Errorf("close user directory: %w", err)
	}
	g.logger.Info("user directory connection closed")
	return nil
}

func (g *Gateway) Ready() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state == stateReady
}

func (g *Gateway) collection(op string) (*mongo.Collection, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.state != stateReady || g.users == nil {
		return nil, shared.Unavailable(op, shared.ErrNotInitialized)
	}
	return g.users, nil
}

func (g *Gateway) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.cfg.RequestTimeout)
}

// Create inserts a new user document with default verification and twist
// structures. A duplicate identifier yields a conflict fault.
func (g *Gateway) Create(ctx context.Context, params CreateParams) (User, error) {
	const op = "directory.create"
	users, err := g.collection(op)
	if err != nil {
		return User{}, err
	}

	user := newUser(params)
	ctx, cancel := g.opContext(ctx)
	defer cancel()
	if _, err := users.InsertOne(ctx, user); err != nil {
		fault := g.classify(op, err)
		g.logger.Error("failed to create user", "user_id", params.ID, "error", err)
		return User{}, fault
	}
	return user, nil
}

// Search returns projected records whose display name or email starts with
// term, case-insensitively. Terms shorter than two characters yield an empty
// result without a remote call. No explicit ordering is imposed.
func (g *Gateway) Search(ctx context.Context, term string, limit int) ([]Projection, error) {
	const op = "directory.search"
	if len(term) < minSearchTermLen {
		return []Projection{}, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	users, err := g.collection(op)
	if err != nil {
		return nil, err
	}

	prefix := primitive.Regex{Pattern: "^" + regexp.QuoteMeta(term), Options: "i"}
	filter := bson.M{"$or": bson.A{
		bson.M{"displayName": prefix},
		bson.M{"email": prefix},
	}}
	projection := bson.D{
		{Key: "_id", Value: 1},
		{Key: "displayName", Value: 1},
		{Key: "avatarUrl", Value: 1},
		{Key: "role", Value: 1},
		{Key: "twistData", Value: 1},
	}

	ctx, cancel := g.opContext(ctx)
	defer cancel()
	cursor, err := users.Find(ctx, filter, options.Find().SetLimit(int64(limit)).SetProjection(projection))
	if err != nil {
		g.logger.Error("user search failed", "term", term, "error", err)
		return nil, g.classify(op, err)
	}
	defer cursor.Close(ctx)

	results := make([]Projection, 0, limit)
	if err := cursor.All(ctx, &results); err != nil {
		g.logger.Error("user search decode failed", "term", term, "error", err)
		return nil, g.classify(op, err)
	}
	return results, nil
}

// UpdateGeneral replaces displayName and avatarUrl for the supplied non-empty
// fields only. Supplying neither is a validation error.
func (g *Gateway) UpdateGeneral(ctx context.Context, id string, update GeneralUpdate) error {
	const op = "directory.update_general"
	set := update.setDocument()
	if set == nil {
		return fmt.Errorf("%w: no fields supplied", shared.ErrValidation)
	}
	return g.patch(ctx, op, id, set)
}

// UpdateVerification always replaces the verification flag and replaces the
// trust score only when supplied. Values keep their string encoding.
func (g *Gateway) UpdateVerification(ctx context.Context, id string, isVerified bool, trustScore *int) error {
	const op = "directory.update_verification"
	return g.patch(ctx, op, id, verificationSet(isVerified, trustScore))
}

// UpdateTwist adds or overwrites the supplied keys under the twistData
// object. Entries are never removed.
func (g *Gateway) UpdateTwist(ctx context.Context, id string, updates map[string]any) error {
	const op = "directory.update_twist"
	set, err := twistSet(updates)
	if err != nil {
		return err
	}
	return g.patch(ctx, op, id, set)
}

func (g *Gateway) patch(ctx context.Context, op, id string, set bson.M) error {
	users, err := g.collection(op)
	if err != nil {
		return err
	}

	ctx, cancel := g.opContext(ctx)
	defer cancel()
	result, err := users.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		g.logger.Error("failed to patch user", "user_id", id, "op", op, "error", err)
		return g.classify(op, err)
	}
	if result.MatchedCount == 0 {
		g.logger.Warn("user not found for patch", "user_id", id, "op", op)
		return shared.NotFound(op, fmt.Errorf("user %s not found", id))
	}
	return nil
}

// Delete removes the user document permanently. An unknown identifier yields
// a not-found fault rather than silent success.
func (g *Gateway) Delete(ctx context.Context, id string) error {
	const op = "directory.delete"
	users, err := g.collection(op)
	if err != nil {
		return err
	}

	ctx, cancel := g.opContext(ctx)
	defer cancel()
	result, err := users.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		g.logger.Error("failed to delete user", "user_id", id, "error", err)
		return g.classify(op, err)
	}
	if result.DeletedCount == 0 {
		g.logger.Warn("user not found for delete", "user_id", id)
		return shared.NotFound(op, fmt.Errorf("user %s not found", id))
	}
	return nil
}

// classify converts a remote error into a typed fault so the route layer can
// map it to a deterministic status code.
func (g *Gateway) classify(op string, err error) error {
	switch {
	case mongo.IsDuplicateKeyError(err):
		return shared.Conflict(op, err)
	case errors.Is(err, context.DeadlineExceeded), mongo.IsTimeout(err), mongo.IsNetworkError(err):
		return shared.Transient(op, err)
	default:
		return shared.Transient(op, err)
	}
}

func isNamespaceExists(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Name == "NamespaceExists" || cmdErr.Code == 48
	}
	return false
}

// accountNameFromEndpoint extracts the account name (first host label) from
// the connection URI, matching the managed database's account-key login
// convention. Returns "" when the URI already embeds credentials.
func accountNameFromEndpoint(endpoint string) string {
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Host == "" {
		return ""
	}
	if parsed.User != nil {
		return ""
	}
	host := parsed.Hostname()
	if i := strings.Index(host, "."); i > 0 {
		return host[:i]
	}
	return host
}

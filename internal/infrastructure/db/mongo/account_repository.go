package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/demopark/accounts/internal/core/domain"
)

const (
	accountsCollection = "accounts"
	countersCollection = "counters"
	accountsCounterID  = "accounts"

	updateRetries    = 5
	updateRetryDelay = 10 * time.Millisecond
)

var errConcurrentUpdate = errors.New("account modified concurrently")

// AccountRepository stores accounts as documents keyed by a numeric id drawn
// from a counters collection.
type AccountRepository struct {
	client   *mongo.Client
	coll     *mongo.Collection
	counters *mongo.Collection
}

func NewAccountRepository(client *mongo.Client, db *mongo.Database) *AccountRepository {
	return &AccountRepository{
		client:   client,
		coll:     db.Collection(accountsCollection),
		counters: db.Collection(countersCollection),
	}
}

type mongoAccount struct {
	ID         int64  `bson:"_id"`
	Username   string `bson:"username"`
	Password   string `bson:"password"`
	Role       string `bson:"role"`
	CreatedAt  int64  `bson:"created_at"`
	ModifiedAt int64  `bson:"modified_at"`
	CreatedBy  string `bson:"created_by,omitempty"`
	ModifiedBy string `bson:"modified_by,omitempty"`
	Version    int64  `bson:"version"`
}

// EnsureIndexes creates the unique username index. Safe to call on every start.
func (r *AccountRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("username_unique"),
	})
	if err != nil {
		return fmt.Errorf("create username index: %w", err)
	}
	return nil
}

func (r *AccountRepository) nextID(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": accountsCounterID},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next account id: %w", err)
	}
	return counter.Seq, nil
}

func (r *AccountRepository) Insert(ctx context.Context, a *domain.Account) (*domain.Account, error) {
	id, err := r.nextID(ctx)
	if err != nil {
		return nil, err
	}

	created := *a
	created.ID = id
	doc := toDocument(&created)
	doc.Version = 1

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, &domain.UniqueViolationError{Field: "username", Err: err}
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return toDomain(doc)
}

func (r *AccountRepository) FindByID(ctx context.Context, id int64) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *AccountRepository) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *AccountRepository) FindRoleByUsername(ctx context.Context, username string) (domain.Role, error) {
	var doc struct {
		Role string `bson:"role"`
	}
	opts := options.FindOne().SetProjection(bson.M{"role": 1})
	if err := r.coll.FindOne(ctx, bson.M{"username": username}, opts).Decode(&doc); err != nil {
		return "", mapFindError(err)
	}
	return domain.RoleFromStored(doc.Role)
}

func (r *AccountRepository) ListAll(ctx context.Context) ([]*domain.Account, error) {
	cur, err := r.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer cur.Close(ctx)

	accounts := make([]*domain.Account, 0)
	for cur.Next(ctx) {
		var doc mongoAccount
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("list accounts: %w", err)
		}
		a, err := toDomain(&doc)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// Update overwrites the mutable fields without a version check.
func (r *AccountRepository) Update(ctx context.Context, a *domain.Account) (*domain.Account, error) {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": a.ID}, mutableFields(a))
	if err != nil {
		return nil, fmt.Errorf("update account %d: %w", a.ID, err)
	}
	if res.MatchedCount == 0 {
		return nil, domain.ErrAccountNotFound
	}
	return r.FindByID(ctx, a.ID)
}

// UpdateWith applies fn with optimistic concurrency: the write only matches
// the version that was read, and a lost race re-reads and retries.
func (r *AccountRepository) UpdateWith(ctx context.Context, id int64, fn func(*domain.Account) error) (*domain.Account, error) {
	var updated *domain.Account
	backoff := retry.WithMaxRetries(updateRetries, retry.WithJitter(updateRetryDelay, retry.NewConstant(updateRetryDelay)))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var doc mongoAccount
		if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
			return mapFindError(err)
		}
		a, err := toDomain(&doc)
		if err != nil {
			return err
		}
		if err := fn(a); err != nil {
			return err
		}

		res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id, "version": doc.Version}, mutableFields(a))
		if err != nil {
			return fmt.Errorf("update account %d: %w", id, err)
		}
		if res.MatchedCount == 0 {
			return retry.RetryableError(errConcurrentUpdate)
		}
		updated = a
		return nil
	})
	if err != nil {
		if errors.Is(err, errConcurrentUpdate) {
			return nil, fmt.Errorf("update account %d: %w", id, err)
		}
		return nil, err
	}
	return updated, nil
}

func (r *AccountRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

func (r *AccountRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func (r *AccountRepository) findOne(ctx context.Context, filter bson.M) (*domain.Account, error) {
	var doc mongoAccount
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mapFindError(err)
	}
	return toDomain(&doc)
}

func mutableFields(a *domain.Account) bson.M {
	return bson.M{
		"$set": bson.M{
			"password":    a.PasswordHash,
			"role":        a.Role.Stored(),
			"modified_at": a.ModifiedAt.UnixMilli(),
			"modified_by": a.ModifiedBy,
		},
		"$inc": bson.M{"version": int64(1)},
	}
}

func mapFindError(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ErrAccountNotFound
	}
	return fmt.Errorf("find account: %w", err)
}

func toDocument(a *domain.Account) *mongoAccount {
	return &mongoAccount{
		ID:         a.ID,
		Username:   a.Username,
		Password:   a.PasswordHash,
		Role:       a.Role.Stored(),
		CreatedAt:  a.CreatedAt.UnixMilli(),
		ModifiedAt: a.ModifiedAt.UnixMilli(),
		CreatedBy:  a.CreatedBy,
		ModifiedBy: a.ModifiedBy,
	}
}

func toDomain(doc *mongoAccount) (*domain.Account, error) {
	role, err := domain.RoleFromStored(doc.Role)
	if err != nil {
		return nil, err
	}
	return &domain.Account{
		ID:           doc.ID,
		Username:     doc.Username,
		PasswordHash: doc.Password,
		Role:         role,
		CreatedAt:    millisToTime(doc.CreatedAt),
		ModifiedAt:   millisToTime(doc.ModifiedAt),
		CreatedBy:    doc.CreatedBy,
		ModifiedBy:   doc.ModifiedBy,
	}, nil
}

func millisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

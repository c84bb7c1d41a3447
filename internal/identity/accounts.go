package identity

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// StoredAccount is the persisted account record.
type StoredAccount struct {
	UID          string    `bson:"_id"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"passwordHash,omitempty"`
	Subject      string    `bson:"subject,omitempty"` // federated issuer subject
	DisplayName  string    `bson:"displayName"`
	PhotoURL     string    `bson:"photoUrl"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

// AccountRepository defines persistence operations for accounts.
// Lookups return (nil, nil) when no account matches.
type AccountRepository interface {
	Create(ctx context.Context, a *StoredAccount) error
	GetByEmail(ctx context.Context, email string) (*StoredAccount, error)
	GetByUID(ctx context.Context, uid string) (*StoredAccount, error)
	UpsertBySubject(ctx context.Context, a *StoredAccount) (*StoredAccount, error)
	UpdateProfile(ctx context.Context, uid, displayName, photoURL string) error
}

// MongoAccountRepository implements AccountRepository using MongoDB.
type MongoAccountRepository struct {
	col *mongo.Collection
}

func NewMongoAccountRepository(col *mongo.Collection) *MongoAccountRepository {
	idx := mongo.IndexModel{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)}
	col.Indexes().CreateOne(context.Background(), idx)
	return &MongoAccountRepository{col: col}
}

func (r *MongoAccountRepository) Create(ctx context.Context, a *StoredAccount) error {
	now := time.Now().UTC()
	if a.UID == "" {
		a.UID = primitive.NewObjectID().Hex()
	}
	a.CreatedAt = now
	a.UpdatedAt = now
	_, err := r.col.InsertOne(ctx, a)
	return err
}

func (r *MongoAccountRepository) GetByEmail(ctx context.Context, email string) (*StoredAccount, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *MongoAccountRepository) GetByUID(ctx context.Context, uid string) (*StoredAccount, error) {
	return r.findOne(ctx, bson.M{"_id": uid})
}

func (r *MongoAccountRepository) findOne(ctx context.Context, filter bson.M) (*StoredAccount, error) {
	var a StoredAccount
	if err := r.col.FindOne(ctx, filter).Decode(&a); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *MongoAccountRepository) UpsertBySubject(ctx context.Context, a *StoredAccount) (*StoredAccount, error) {
	now := time.Now().UTC()
	existing, err := r.findOne(ctx, bson.M{"subject": a.Subject})
	if err != nil {
		return nil, err
	}
	if existing == nil {
		a.UID = primitive.NewObjectID().Hex()
		a.CreatedAt = now
		a.UpdatedAt = now
		if _, err := r.col.InsertOne(ctx, a); err != nil {
			return nil, err
		}
		return a, nil
	}

	set := bson.M{"email": a.Email, "updatedAt": now}
	if a.DisplayName != "" {
		set["displayName"] = a.DisplayName
	}
	if a.PhotoURL != "" {
		set["photoUrl"] = a.PhotoURL
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated StoredAccount
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": existing.UID}, bson.M{"$set": set}, opts).Decode(&updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *MongoAccountRepository) UpdateProfile(ctx context.Context, uid, displayName, photoURL string) error {
	set := bson.M{"displayName": displayName, "photoUrl": photoURL, "updatedAt": time.Now().UTC()}
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": uid}, bson.M{"$set": set})
	return err
}

// MemoryAccountRepository is an in-process AccountRepository for unit tests
// and the dev server.
type MemoryAccountRepository struct {
	mu    sync.Mutex
	byUID map[string]*StoredAccount
	next  int
}

func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{byUID: make(map[string]*StoredAccount)}
}

func (r *MemoryAccountRepository) Create(ctx context.Context, a *StoredAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	if a.UID == "" {
		r.next++
		a.UID = primitive.NewObjectID().Hex()
	}
	a.CreatedAt = now
	a.UpdatedAt = now
	cp := *a
	r.byUID[a.UID] = &cp
	return nil
}

func (r *MemoryAccountRepository) GetByEmail(ctx context.Context, email string) (*StoredAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.byUID {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryAccountRepository) GetByUID(ctx context.Context, uid string) (*StoredAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.byUID[uid]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (r *MemoryAccountRepository) UpsertBySubject(ctx context.Context, a *StoredAccount) (*StoredAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for _, existing := range r.byUID {
		if existing.Subject == a.Subject {
			existing.Email = a.Email
			if a.DisplayName != "" {
				existing.DisplayName = a.DisplayName
			}
			if a.PhotoURL != "" {
				existing.PhotoURL = a.PhotoURL
			}
			existing.UpdatedAt = now
			cp := *existing
			return &cp, nil
		}
	}
	a.UID = primitive.NewObjectID().Hex()
	a.CreatedAt = now
	a.UpdatedAt = now
	cp := *a
	r.byUID[a.UID] = &cp
	return a, nil
}

func (r *MemoryAccountRepository) UpdateProfile(ctx context.Context, uid, displayName, photoURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.byUID[uid]; ok {
		a.DisplayName = displayName
		a.PhotoURL = photoURL
		a.UpdatedAt = time.Now().UTC()
	}
	return nil
}

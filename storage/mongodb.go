package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"petshop/core"
)

const petsCollection = "pets"

// PetCursor interface for mocking
type PetCursor interface {
	Next(ctx context.Context) bool
	Decode(v interface{}) error
	Err() error
	Close(ctx context.Context) error
}

// PetCollection is the subset of *mongo.Collection used by MongoStore
type PetCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (PetCursor, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// mongoPetCollection adapts *mongo.Collection to PetCollection
type mongoPetCollection struct {
	*mongo.Collection
}

func (m *mongoPetCollection) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (PetCursor, error) {
	cursor, err := m.Collection.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return cursor, nil
}

// mongoPet is the stored form of a pet. The _rev field emulates CouchDB revisions.
type mongoPet struct {
	ID        string `bson:"_id"`
	Rev       string `bson:"_rev"`
	Name      string `bson:"name"`
	Category  string `bson:"category"`
	Available bool   `bson:"available"`
	Gender    string `bson:"gender"`
	Birthday  string `bson:"birthday"`
}

func toMongoPet(p *core.Pet) mongoPet {
	return mongoPet{
		ID:        p.ID,
		Rev:       p.Rev,
		Name:      p.Name,
		Category:  p.Category,
		Available: p.Available,
		Gender:    p.Gender.String(),
		Birthday:  p.Birthday.String(),
	}
}

func (m mongoPet) toPet() (*core.Pet, error) {
	birthday, err := core.ParseDate(m.Birthday)
	if err != nil {
		return nil, err
	}
	return &core.Pet{
		ID:        m.ID,
		Rev:       m.Rev,
		Name:      m.Name,
		Category:  m.Category,
		Available: m.Available,
		Gender:    core.Gender(m.Gender),
		Birthday:  birthday,
	}, nil
}

// MongoDB holds the MongoDB client and database
type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// NewMongoDB creates a new MongoDB connection
func NewMongoDB(ctx context.Context, uri, dbName string, maxPoolSize uint64, timeout time.Duration, logger *zap.SugaredLogger) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri).SetMaxPoolSize(maxPoolSize)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, core.NewDatabaseConnectionError("failed to connect to MongoDB", err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, core.NewDatabaseConnectionError("failed to ping MongoDB", err)
	}

	logger.Infow("Connected to MongoDB", "database", dbName)

	return &MongoDB{
		Client:   client,
		Database: client.Database(dbName),
	}, nil
}

// MongoStore is a PetStore backed by a MongoDB collection
type MongoStore struct {
	mongoDB *MongoDB
	coll    PetCollection
	logger  *zap.SugaredLogger
}

// NewMongoStore creates a pet store over the pets collection and ensures its indexes
func NewMongoStore(ctx context.Context, mongoDB *MongoDB, logger *zap.SugaredLogger) (*MongoStore, error) {
	coll := mongoDB.Database.Collection(petsCollection)

	models := make([]mongo.IndexModel, 0, len(petIndexFields))
	for _, field := range petIndexFields {
		models = append(models, mongo.IndexModel{Keys: bson.D{{Key: field, Value: 1}}})
	}
	if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
		return nil, fmt.Errorf("failed to create pet indexes: %w", err)
	}

	return &MongoStore{
		mongoDB: mongoDB,
		coll:    &mongoPetCollection{Collection: coll},
		logger:  logger,
	}, nil
}

func (s *MongoStore) Create(ctx context.Context, pet *core.Pet) error {
	doc := toMongoPet(pet)
	if doc.ID == "" {
		doc.ID = newDocumentID()
	}
	doc.Rev = nextRevision("")

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return err
	}

	pet.ID = doc.ID
	pet.Rev = doc.Rev
	return nil
}

// Update replaces the document only when its stored revision matches the pet's.
func (s *MongoStore) Update(ctx context.Context, pet *core.Pet) error {
	doc := toMongoPet(pet)
	doc.Rev = nextRevision(pet.Rev)

	if pet.Rev == "" {
		// Without a revision this is only valid as the first write of the ID
		if _, err := s.coll.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return fmt.Errorf("%w: document %s exists", ErrConflict, pet.ID)
			}
			return err
		}
		pet.Rev = doc.Rev
		return nil
	}

	result, err := s.coll.ReplaceOne(ctx, bson.M{"_id": pet.ID, "_rev": pet.Rev}, doc)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: revision %s of %s is not current", ErrConflict, pet.Rev, pet.ID)
	}
	pet.Rev = doc.Rev
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, id, rev string) error {
	result, err := s.coll.DeleteOne(ctx, bson.M{"_id": id, "_rev": rev})
	if err != nil {
		return err
	}
	if result.DeletedCount > 0 {
		return nil
	}

	count, err := s.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrPetNotFound
	}
	return fmt.Errorf("%w: revision %s of %s is not current", ErrConflict, rev, id)
}

func (s *MongoStore) Get(ctx context.Context, id string) (*core.Pet, error) {
	var doc mongoPet
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrPetNotFound
		}
		return nil, err
	}
	return doc.toPet()
}

func (s *MongoStore) All(ctx context.Context) ([]core.Pet, error) {
	return s.find(ctx, bson.M{})
}

func (s *MongoStore) FindBy(ctx context.Context, selector Selector) ([]core.Pet, error) {
	filter := bson.M{}
	for field, value := range selector.normalized() {
		filter[field] = value
	}
	return s.find(ctx, filter)
}

func (s *MongoStore) find(ctx context.Context, filter bson.M) ([]core.Pet, error) {
	cursor, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var pets []core.Pet
	for cursor.Next(ctx) {
		var doc mongoPet
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode pet: %w", err)
		}
		pet, err := doc.toPet()
		if err != nil {
			s.logger.Warnw("Skipping unreadable pet document", "id", doc.ID, "error", err)
			continue
		}
		pets = append(pets, *pet)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return pets, nil
}

func (s *MongoStore) RemoveAll(ctx context.Context) error {
	_, err := s.coll.DeleteMany(ctx, bson.M{})
	return err
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.mongoDB.Client.Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.mongoDB.Client.Disconnect(ctx)
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"photoshare/internal/domain"
)

const (
	profilesCollection      = "profiles"
	imageMetadataCollection = "imagemetadatas"
)

// ProfileRepository is the persistent side of the single profile record.
// Every error it returns is a *domain.StoreError.
type ProfileRepository interface {
	FindOrCreate(ctx context.Context, defaults domain.Profile) (domain.Profile, error)
	UpsertNames(ctx context.Context, firstName, lastName string, defaults domain.Profile) (domain.Profile, error)
	SetProfileImage(ctx context.Context, profileID, imageURL string) (domain.Profile, error)
	InsertImageMetadata(ctx context.Context, meta domain.ImageMetadata) error
	EnsureIndexes(ctx context.Context) error
}

// SessionSource hands out the current store session.
type SessionSource interface {
	Session() (Session, error)
}

type profileDocument struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	FirstName    string             `bson:"firstName"`
	LastName     string             `bson:"lastName"`
	ProfileImage string             `bson:"profileImage"`
	CreatedAt    time.Time          `bson:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt"`
}

func (d profileDocument) toDomain() domain.Profile {
	return domain.Profile{
		ID:           d.ID.Hex(),
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		ProfileImage: d.ProfileImage,
		UpdatedAt:    d.UpdatedAt,
	}
}

type imageMetadataDocument struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	ProfileID    primitive.ObjectID `bson:"profileId"`
	OriginalName string             `bson:"originalName"`
	FileName     string             `bson:"fileName"`
	MimeType     string             `bson:"mimeType"`
	FileSize     int64              `bson:"fileSize"`
	CreatedAt    time.Time          `bson:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt"`
}

type mongoProfileRepository struct {
	sessions SessionSource
	database string
	timeout  time.Duration
	log      *zap.Logger
	now      func() time.Time
}

func NewMongoProfileRepository(sessions SessionSource, database string, timeout time.Duration, log *zap.Logger) ProfileRepository {
	return &mongoProfileRepository{
		sessions: sessions,
		database: database,
		timeout:  timeout,
		log:      log,
		now:      time.Now,
	}
}

func (r *mongoProfileRepository) db() (*mongo.Database, error) {
	s, err := r.sessions.Session()
	if err != nil {
		return nil, err
	}
	ms, ok := s.(*MongoSession)
	if !ok {
		return nil, fmt.Errorf("unexpected session type %T", s)
	}
	return ms.Client.Database(r.database), nil
}

func (r *mongoProfileRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// singletonOptions targets the oldest profile document, creating it if absent.
func singletonOptions() *options.FindOneAndUpdateOptions {
	return options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After).
		SetSort(bson.D{{Key: "_id", Value: 1}})
}

func (r *mongoProfileRepository) FindOrCreate(ctx context.Context, defaults domain.Profile) (domain.Profile, error) {
	db, err := r.db()
	if err != nil {
		return domain.Profile{}, &domain.StoreError{Op: "find profile", Err: err}
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	now := r.now().UTC()
	update := bson.D{{Key: "$setOnInsert", Value: bson.D{
		{Key: "firstName", Value: defaults.FirstName},
		{Key: "lastName", Value: defaults.LastName},
		{Key: "profileImage", Value: defaults.ProfileImage},
		{Key: "createdAt", Value: now},
		{Key: "updatedAt", Value: now},
	}}}

	var doc profileDocument
	err = db.Collection(profilesCollection).
		FindOneAndUpdate(ctx, bson.D{}, update, singletonOptions()).
		Decode(&doc)
	if err != nil {
		return domain.Profile{}, &domain.StoreError{Op: "find profile", Err: err}
	}

	return doc.toDomain(), nil
}

func (r *mongoProfileRepository) UpsertNames(ctx context.Context, firstName, lastName string, defaults domain.Profile) (domain.Profile, error) {
	db, err := r.db()
	if err != nil {
		return domain.Profile{}, &domain.StoreError{Op: "update profile", Err: err}
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	now := r.now().UTC()
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "firstName", Value: firstName},
			{Key: "lastName", Value: lastName},
			{Key: "updatedAt", Value: now},
		}},
		{Key: "$setOnInsert", Value: bson.D{
			{Key: "profileImage", Value: defaults.ProfileImage},
			{Key: "createdAt", Value: now},
		}},
	}

	var doc profileDocument
	err = db.Collection(profilesCollection).
		FindOneAndUpdate(ctx, bson.D{}, update, singletonOptions()).
		Decode(&doc)
	if err != nil {
		return domain.Profile{}, &domain.StoreError{Op: "update profile", Err: err}
	}

	r.log.Info("Profile updated",
		zap.String("id", doc.ID.Hex()),
		zap.String("first_name", doc.FirstName),
		zap.String("last_name", doc.LastName))

	return doc.toDomain(), nil
}

func (r *mongoProfileRepository) SetProfileImage(ctx context.Context, profileID, imageURL string) (domain.Profile, error) {
	oid, err := primitive.ObjectIDFromHex(profileID)
	if err != nil {
		return domain.Profile{}, &domain.StoreError{Op: "set profile image", Err: err}
	}

	db, err := r.db()
	if err != nil {
		return domain.Profile{}, &domain.StoreError{Op: "set profile image", Err: err}
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "profileImage", Value: imageURL},
		{Key: "updatedAt", Value: r.now().UTC()},
	}}}

	var doc profileDocument
	err = db.Collection(profilesCollection).
		FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: oid}}, update,
			options.FindOneAndUpdate().SetReturnDocument(options.After)).
		Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		err = domain.ErrProfileNotFound
	}
	if err != nil {
		return domain.Profile{}, &domain.StoreError{Op: "set profile image", Err: err}
	}

	return doc.toDomain(), nil
}

func (r *mongoProfileRepository) InsertImageMetadata(ctx context.Context, meta domain.ImageMetadata) error {
	oid, err := primitive.ObjectIDFromHex(meta.ProfileID)
	if err != nil {
		return &domain.StoreError{Op: "insert image metadata", Err: err}
	}

	db, err := r.db()
	if err != nil {
		return &domain.StoreError{Op: "insert image metadata", Err: err}
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	createdAt := meta.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}
	doc := imageMetadataDocument{
		ProfileID:    oid,
		OriginalName: meta.OriginalName,
		FileName:     meta.FileName,
		MimeType:     meta.MimeType,
		FileSize:     meta.FileSize,
		CreatedAt:    createdAt.UTC(),
		UpdatedAt:    createdAt.UTC(),
	}

	if _, err := db.Collection(imageMetadataCollection).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			err = fmt.Errorf("%w: %s", domain.ErrDuplicateImage, meta.FileName)
		}
		return &domain.StoreError{Op: "insert image metadata", Err: err}
	}

	r.log.Info("Image metadata saved",
		zap.String("profile_id", meta.ProfileID),
		zap.String("file_name", meta.FileName),
		zap.Int64("size", meta.FileSize))

	return nil
}

func (r *mongoProfileRepository) EnsureIndexes(ctx context.Context) error {
	db, err := r.db()
	if err != nil {
		return &domain.StoreError{Op: "ensure indexes", Err: err}
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err = db.Collection(profilesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "firstName", Value: 1}, {Key: "lastName", Value: 1}}},
		{Keys: bson.D{{Key: "updatedAt", Value: -1}}},
	})
	if err != nil {
		return &domain.StoreError{Op: "ensure indexes", Err: err}
	}

	_, err = db.Collection(imageMetadataCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "profileId", Value: 1}}},
		{Keys: bson.D{{Key: "fileName", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return &domain.StoreError{Op: "ensure indexes", Err: err}
	}

	return nil
}

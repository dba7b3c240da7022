package profile

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"secure_chat/internal/model"
)

var ErrDuplicateName = errors.New("profile name already registered")

type (
	ProfileRepo struct {
		collection *mongo.Collection
	}
)

func NewProfileRepo(db *mongo.Database) *ProfileRepo {
	return &ProfileRepo{
		collection: db.Collection("profiles"),
	}
}

// EnsureIndexes makes names and profile ids unique.
func (r *ProfileRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "profile_id", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	return err
}

func (r *ProfileRepo) GetByName(ctx context.Context, name string) (*model.Profile, error) {
	return r.findOne(ctx, bson.M{"name": name})
}

func (r *ProfileRepo) GetByProfileID(ctx context.Context, profileID string) (*model.Profile, error) {
	return r.findOne(ctx, bson.M{"profile_id": profileID})
}

func (r *ProfileRepo) findOne(ctx context.Context, filter bson.M) (*model.Profile, error) {
	var p model.Profile
	err := r.collection.FindOne(ctx, filter).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &p, nil
}

func (r *ProfileRepo) Create(ctx context.Context, p *model.Profile) (primitive.ObjectID, error) {
	res, err := r.collection.InsertOne(ctx, p)
	if mongo.IsDuplicateKeyError(err) {
		return primitive.NilObjectID, ErrDuplicateName
	}
	if err != nil {
		return primitive.NilObjectID, err
	}

	id := res.InsertedID.(primitive.ObjectID)
	p.ID = id
	return id, nil
}

// UpdateKeys replaces the stored key material of a profile.
func (r *ProfileRepo) UpdateKeys(ctx context.Context, profileID string, publicKey, sealedKey, keySalt []byte) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"profile_id": profileID},
		bson.M{"$set": bson.M{
			"public_key": publicKey,
			"sealed_key": sealedKey,
			"key_salt":   keySalt,
		}},
	)
	return err
}

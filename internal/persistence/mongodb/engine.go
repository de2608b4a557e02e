package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/goevery/chatrelay/internal/ierr"
	"github.com/goevery/chatrelay/internal/persistence"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type User struct {
	Id       bson.ObjectID   `bson:"_id"`
	Contacts []bson.ObjectID `bson:"contacts"`
}

func (u User) toUser() persistence.User {
	contacts := make([]string, len(u.Contacts))
	for i, contactId := range u.Contacts {
		contacts[i] = contactId.Hex()
	}

	return persistence.User{
		Id:       u.Id.Hex(),
		Contacts: contacts,
	}
}

// PersistenceEngine reads the users collection owned by the chat backend.
type PersistenceEngine struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewPersistenceEngine(client *mongo.Client, database string) *PersistenceEngine {
	collection := client.Database(database).Collection("users")

	return &PersistenceEngine{
		client,
		collection,
	}
}

func (e *PersistenceEngine) Setup(ctx context.Context) error {
	return e.client.Ping(ctx, nil)
}

func (e *PersistenceEngine) FindUser(ctx context.Context, userId string) (persistence.User, error) {
	objectId, err := bson.ObjectIDFromHex(userId)
	if err != nil {
		return persistence.User{}, ierr.New(ierr.ErrorCodeInvalidArgument, fmt.Errorf("invalid user id: %w", err))
	}

	opts := options.FindOne().
		SetProjection(bson.D{{Key: "contacts", Value: 1}})

	var user User
	err = e.collection.FindOne(ctx, bson.M{"_id": objectId}, opts).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return persistence.User{}, ierr.New(ierr.ErrorCodeNotFound, fmt.Errorf("%w: %s", persistence.ErrUserNotFound, userId))
	}
	if err != nil {
		return persistence.User{}, err
	}

	return user.toUser(), nil
}

func (e *PersistenceEngine) Contacts(ctx context.Context, userId string) ([]string, error) {
	user, err := e.FindUser(ctx, userId)
	if err != nil {
		return nil, err
	}

	return user.Contacts, nil
}

package repository

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"photoshare/internal/config"
)

// MongoSession adapts *mongo.Client to Session.
type MongoSession struct {
	Client *mongo.Client
}

func (s *MongoSession) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx, readpref.Primary())
}

func (s *MongoSession) Disconnect(ctx context.Context) error {
	return s.Client.Disconnect(ctx)
}

// MongoDialer builds a DialFunc from the Mongo configuration.
func MongoDialer(cfg *config.MongoConfig) DialFunc {
	return func(ctx context.Context) (Session, error) {
		opts := options.Client().
			ApplyURI(cfg.URI).
			SetConnectTimeout(cfg.ConnectTimeout).
			SetServerSelectionTimeout(cfg.ServerSelectionTimeout).
			SetSocketTimeout(cfg.SocketTimeout).
			SetMaxPoolSize(cfg.MaxPoolSize).
			SetMinPoolSize(cfg.MinPoolSize).
			SetMaxConnIdleTime(30 * time.Second)

		client, err := mongo.Connect(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create mongo client for %s: %w", RedactURI(cfg.URI), err)
		}
		return &MongoSession{Client: client}, nil
	}
}

var credentialsPattern = regexp.MustCompile(`://([^:/@]+):([^@]+)@`)

// RedactURI hides the user and password of a connection string.
func RedactURI(uri string) string {
	return credentialsPattern.ReplaceAllString(uri, "://***:***@")
}

package db

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/axsanchezgomez/BandersnatchStarter/table"
)

const trainingLogCollection = "training_log"

// MongoStore keeps monster documents in a MongoDB collection.
type MongoStore struct {
	client     *mongo.Client
	records    *mongo.Collection
	logs       *mongo.Collection
	collection string
	order      []string
}

// OpenMongo connects to cfg.URL and pings the server before returning.
func OpenMongo(ctx context.Context, cfg Config) (*MongoStore, error) {
	if cfg.URL == "" {
		return nil, errors.New("db: mongo url required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("db: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	name := cfg.Database
	if name == "" {
		name = DefaultDatabase
	}
	collection := cfg.Collection
	if collection == "" {
		collection = DefaultCollection
	}
	database := client.Database(name)
	return &MongoStore{
		client:     client,
		records:    database.Collection(collection),
		logs:       database.Collection(trainingLogCollection),
		collection: collection,
		order:      cfg.ColumnOrder,
	}, nil
}

// InsertMany inserts records in one batch.
func (s *MongoStore) InsertMany(ctx context.Context, records []Record) (bool, error) {
	if len(records) == 0 {
		return true, nil
	}
	docs := make([]interface{}, len(records))
	for i, rec := range records {
		docs[i] = bson.M(rec)
	}
	res, err := s.records.InsertMany(ctx, docs)
	if err != nil {
		return false, err
	}
	return len(res.InsertedIDs) == len(records), nil
}

// DeleteAll removes every document of the collection.
func (s *MongoStore) DeleteAll(ctx context.Context) (bool, error) {
	if _, err := s.records.DeleteMany(ctx, bson.D{}); err != nil {
		return false, err
	}
	return true, nil
}

func (s *MongoStore) Count(ctx context.Context) (int64, error) {
	return s.records.CountDocuments(ctx, bson.D{})
}

// ScanAll reads the collection in natural order.
func (s *MongoStore) ScanAll(ctx context.Context) (*table.Table, error) {
	opts := options.Find().
		SetProjection(bson.D{{Key: "_id", Value: 0}}).
		SetSort(bson.D{{Key: "$natural", Value: 1}})
	cursor, err := s.records.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	records := make([]Record, len(docs))
	for i, doc := range docs {
		records[i] = Record(doc)
	}
	return recordsToTable(records, s.order)
}

func (s *MongoStore) SaveTrainingLog(ctx context.Context, log TrainingLog) error {
	_, err := s.logs.InsertOne(ctx, bson.M{
		"run_id":      log.RunID,
		"collection":  s.collection,
		"model_name":  log.ModelName,
		"accuracy":    log.Accuracy,
		"trained_at":  log.TrainedAt,
		"data_points": log.DataPoints,
	})
	return err
}

// LoadTrainingLogs returns the collection's runs, newest first.
func (s *MongoStore) LoadTrainingLogs(ctx context.Context) ([]TrainingLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "trained_at", Value: -1}})
	cursor, err := s.logs.Find(ctx, bson.D{{Key: "collection", Value: s.collection}}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	logs := make([]TrainingLog, 0)
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	for i := range logs {
		logs[i].TrainedAt = logs[i].TrainedAt.Local()
	}
	return logs, nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

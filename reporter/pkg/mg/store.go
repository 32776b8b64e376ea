package mg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"glucolog/reporter/defs"
	"glucolog/reporter/pkg/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	DaysCollection  = "days"
	NotesCollection = "notes"
)

// MongoStore returns times in Location, so measurement keys match the
// wall-clock keys of note overrides.
type MongoStore struct {
	Client   *mongo.Client
	Logger   *zap.Logger
	Location *time.Location

	DBName string
}

func New(ctx context.Context, cfg defs.MongoConfig, logger *zap.Logger) (*MongoStore, error) {
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.Username != "" {
		opts.SetAuth(options.Credential{
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}

	mongoClient, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to mongo: %w", err)
	}

	dbName := cfg.Database
	if dbName == "" {
		dbName = defs.DefaultDB
	}

	return &MongoStore{
		Client: mongoClient,
		Logger: logger,
		DBName: dbName,
	}, nil
}

func (ms *MongoStore) Close(ctx context.Context) error {
	return ms.Client.Disconnect(ctx)
}

func (ms *MongoStore) collection(name string) *mongo.Collection {
	return ms.Client.Database(ms.DBName).Collection(name)
}

func (ms *MongoStore) Upsert(ctx context.Context, collection string, filter bson.M, doc interface{}) (*mongo.UpdateResult, error) {
	ms.Logger.Debug(
		"upserting document",
		zap.String("collection", collection),
		zap.Any("filter", filter),
	)

	res, err := ms.collection(collection).
		UpdateOne(ctx, filter,
			bson.M{"$set": doc},
			options.Update().SetUpsert(true),
		)
	if err != nil {
		ms.Logger.Debug(
			"unable to upsert document",
			zap.String("collection", collection),
			zap.Any("filter", filter),
			zap.Error(err),
		)
		return nil, fmt.Errorf("unable to upsert document: %w", err)
	}

	return res, nil
}

func (ms *MongoStore) DeleteOne(ctx context.Context, collection string, filter bson.M) error {
	ms.Logger.Debug(
		"deleting document",
		zap.String("collection", collection),
		zap.Any("filter", filter),
	)
	if _, err := ms.collection(collection).DeleteOne(ctx, filter); err != nil {
		return fmt.Errorf("unable to delete document: %w", err)
	}
	return nil
}

func (ms *MongoStore) WriteDay(ctx context.Context, day *defs.Day) error {
	if len(day.Measurements) == 0 {
		return nil
	}
	_, err := ms.Upsert(ctx, DaysCollection, bson.M{"date": day.Date}, day)
	if err != nil {
		return fmt.Errorf("unable to write day %s: %w", day.Date, err)
	}
	return nil
}

func (ms *MongoStore) ReadDay(ctx context.Context, date string) (*defs.Day, error) {
	var day defs.Day
	err := ms.collection(DaysCollection).FindOne(ctx, bson.M{"date": date}).Decode(&day)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("unable to read day %s: %w", date, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read day %s: %w", date, err)
	}
	ms.localize(&day)
	return &day, nil
}

// ReadDays returns every stored day, newest first.
func (ms *MongoStore) ReadDays(ctx context.Context) ([]defs.Day, error) {
	ms.Logger.Debug("reading days", zap.String("collection", DaysCollection))

	findOptions := options.Find()
	findOptions.SetSort(bson.D{primitive.E{Key: "date", Value: -1}})

	cur, err := ms.collection(DaysCollection).Find(ctx, bson.M{}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("unable to read days: %w", err)
	}

	days := make([]defs.Day, 0)
	if err := cur.All(ctx, &days); err != nil {
		return nil, fmt.Errorf("unable to decode days: %w", err)
	}
	for i := range days {
		ms.localize(&days[i])
	}
	return days, nil
}

func (ms *MongoStore) ReadMeasurements(ctx context.Context, start, end time.Time) ([]defs.Measurement, error) {
	ms.Logger.Debug(
		"reading measurements",
		zap.Time("start", start),
		zap.Time("end", end),
	)

	window := bson.M{
		"$gte": primitive.NewDateTimeFromTime(start),
		"$lte": primitive.NewDateTimeFromTime(end),
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"measurements.time": window}}},
		{{Key: "$unwind", Value: "$measurements"}},
		{{Key: "$match", Value: bson.M{"measurements.time": window}}},
		{{Key: "$replaceRoot", Value: bson.M{"newRoot": "$measurements"}}},
		{{Key: "$sort", Value: bson.M{"time": 1}}},
	}

	cur, err := ms.collection(DaysCollection).Aggregate(ctx, pipeline)
	if err != nil {
		ms.Logger.Debug(
			"unable to read measurements",
			zap.Time("start", start),
			zap.Time("end", end),
			zap.Error(err),
		)
		return nil, fmt.Errorf("unable to read measurements: %w", err)
	}

	measurements := make([]defs.Measurement, 0)
	if err := cur.All(ctx, &measurements); err != nil {
		return nil, fmt.Errorf("unable to decode measurements: %w", err)
	}
	for i := range measurements {
		measurements[i].Time = ms.in(measurements[i].Time)
	}
	return measurements, nil
}

func (ms *MongoStore) in(t time.Time) time.Time {
	if ms.Location == nil {
		return t
	}
	return t.In(ms.Location)
}

func (ms *MongoStore) localize(day *defs.Day) {
	for i := range day.Measurements {
		day.Measurements[i].Time = ms.in(day.Measurements[i].Time)
	}
	for i := range day.HighGlucosePeriods {
		p := &day.HighGlucosePeriods[i]
		p.StartTime, p.EndTime = ms.in(p.StartTime), ms.in(p.EndTime)
		for j := range p.Measurements {
			p.Measurements[j].Time = ms.in(p.Measurements[j].Time)
		}
	}
}

func (ms *MongoStore) bucket(ctx context.Context) (*gridfs.Bucket, error) {
	bucket, err := gridfs.NewBucket(ms.Client.Database(ms.DBName))
	if err != nil {
		return nil, fmt.Errorf("unable to create a GridFS bucket: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := bucket.SetWriteDeadline(deadline); err != nil {
			return nil, err
		}
		if err := bucket.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
	}
	return bucket, nil
}

func (ms *MongoStore) WriteFile(ctx context.Context, name string, r io.Reader) (string, error) {
	bucket, err := ms.bucket(ctx)
	if err != nil {
		return "", err
	}

	oid, err := bucket.UploadFromStream(name, r)
	if err != nil {
		return "", fmt.Errorf("unable to upload from stream: %w", err)
	}

	ms.Logger.Debug("uploaded file", zap.String("name", name), zap.String("id", oid.Hex()))
	return oid.Hex(), nil
}

func (ms *MongoStore) ReadFile(ctx context.Context, fid string) (io.Reader, error) {
	bucket, err := ms.bucket(ctx)
	if err != nil {
		return nil, err
	}

	oid, err := primitive.ObjectIDFromHex(fid)
	if err != nil {
		return nil, fmt.Errorf("unable to create objectId from hex: %w", err)
	}

	var buf bytes.Buffer
	if _, err := bucket.DownloadToStream(oid, &buf); err != nil {
		return nil, fmt.Errorf("unable to download to stream: %w", err)
	}

	return &buf, nil
}

func (ms *MongoStore) DeleteFile(ctx context.Context, fid string) error {
	bucket, err := ms.bucket(ctx)
	if err != nil {
		return err
	}

	oid, err := primitive.ObjectIDFromHex(fid)
	if err != nil {
		return fmt.Errorf("unable to create objectId from hex: %w", err)
	}

	return bucket.Delete(oid)
}

package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mng48301/searchai/internal/storage"
)

// ensure mongoBackend implements storage.Backend
var _ storage.Backend = (*mongoBackend)(nil)

type mongoBackend struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// New connects to uri and returns a backend storing documents in the given
// database and collection. Indexes are created if missing.
func New(ctx context.Context, uri, database, collection string) (storage.Backend, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "jobId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "query", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "siteResults.url", Value: 1}}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create indexes: %w", err)
	}

	return &mongoBackend{client: client, coll: coll}, nil
}

func (b *mongoBackend) Save(ctx context.Context, doc *storage.SearchDocument) error {
	if _, err := b.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("save %s: %w", doc.JobID, storage.ErrDuplicate)
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (b *mongoBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.SearchDocument, error) {
	q := bson.M{}
	if filter.Query != "" {
		q["query"] = filter.Query
	}
	if filter.URL != "" {
		q["siteResults.url"] = filter.URL
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}

	cur, err := b.coll.Find(ctx, q, opts)
	if err != nil {
		return nil, fmt.Errorf("find documents: %w", err)
	}

	docs := []*storage.SearchDocument{}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	return docs, nil
}

func (b *mongoBackend) Delete(ctx context.Context, query string) (int, error) {
	res, err := b.coll.DeleteMany(ctx, bson.M{"query": query})
	if err != nil {
		return 0, fmt.Errorf("delete documents: %w", err)
	}
	return int(res.DeletedCount), nil
}

func (b *mongoBackend) Close() error {
	return b.client.Disconnect(context.Background())
}

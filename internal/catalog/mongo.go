// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultDatabase   = "xiaoshubao"
	defaultCollection = "history"
	defaultOpTimeout  = 5 * time.Second
)

// Mongo implements Store on a MongoDB collection.
type Mongo struct {
	client  *mongodriver.Client
	coll    *mongodriver.Collection
	timeout time.Duration
}

// mongoRecord is the BSON document shape. The outline is stored as an
// extended-JSON string so the document round-trips arbitrary outline JSON
// without a schema.
type mongoRecord struct {
	ID        string    `bson:"id"`
	Title     string    `bson:"title"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
	Outline   string    `bson:"outline"`
	Images    Images    `bson:"images"`
	Status    Status    `bson:"status"`
	Thumbnail string    `bson:"thumbnail,omitempty"`
	PageCount int       `bson:"page_count"`
	TaskID    string    `bson:"task_id,omitempty"`
}

func (d *mongoRecord) record() Record {
	return Record{
		ID:        d.ID,
		Title:     d.Title,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
		Outline:   json.RawMessage(d.Outline),
		Images:    d.Images,
		Status:    d.Status,
		Thumbnail: d.Thumbnail,
		PageCount: d.PageCount,
		TaskID:    d.TaskID,
	}
}

// NewMongo connects to the given MongoDB URI and returns the catalog store.
// The connection is verified with a ping before the store is returned.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		database = defaultDatabase
	}
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()
	client, err := mongodriver.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	coll := client.Database(database).Collection(defaultCollection)
	indexes := []mongodriver.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "task_id", Value: 1}}},
		{Keys: bson.D{{Key: "updated_at", Value: -1}}},
	}
	if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ensure indexes: %w", err)
	}
	return &Mongo{client: client, coll: coll, timeout: defaultOpTimeout}, nil
}

// Close disconnects the underlying client.
func (s *Mongo) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Create implements Store.
func (s *Mongo) Create(ctx context.Context, title string, outline json.RawMessage, taskID string) (*Record, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	now := time.Now().UTC()
	doc := mongoRecord{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Outline:   string(outline),
		Images:    Images{TaskID: taskID, Generated: []string{}},
		Status:    StatusDraft,
		PageCount: pageCount(outline),
		TaskID:    taskID,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to insert record: %w", err)
	}
	rec := doc.record()
	return &rec, nil
}

// Get implements Store.
func (s *Mongo) Get(ctx context.Context, id string) (*Record, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc mongoRecord
	err := s.coll.FindOne(ctx, bson.M{"id": id}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	rec := doc.record()
	return &rec, true, nil
}

// Update implements Store.
func (s *Mongo) Update(ctx context.Context, id string, upd Update) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	set := bson.M{"updated_at": time.Now().UTC()}
	if upd.Outline != nil {
		set["outline"] = string(upd.Outline)
		set["page_count"] = pageCount(upd.Outline)
	}
	if upd.Images != nil {
		if upd.Images.TaskID != "" {
			set["images.task_id"] = upd.Images.TaskID
			set["task_id"] = upd.Images.TaskID
		}
		if upd.Images.Generated != nil {
			set["images.generated"] = upd.Images.Generated
		}
	}
	if upd.Status != nil {
		set["status"] = *upd.Status
	}
	if upd.Thumbnail != nil {
		set["thumbnail"] = *upd.Thumbnail
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"id": id}, bson.M{"$set": set})
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// Delete implements Store.
func (s *Mongo) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	res, err := s.coll.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

// List implements Store.
func (s *Mongo) List(ctx context.Context, page, pageSize int, status string) (*List, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{}
	if status != "" && status != "all" {
		filter["status"] = status
	}
	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, err
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))
	records, err := s.find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	return &List{
		Records:    records,
		Total:      int(total),
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (int(total) + pageSize - 1) / pageSize,
	}, nil
}

// Search implements Store.
func (s *Mongo) Search(ctx context.Context, keyword string) ([]Record, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"title": primitive.Regex{Pattern: regexp.QuoteMeta(keyword), Options: "i"}}
	return s.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}))
}

// Statistics implements Store.
func (s *Mongo) Statistics(ctx context.Context) (*Statistics, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cursor, err := s.coll.Aggregate(ctx, mongodriver.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	stats := &Statistics{ByStatus: make(map[Status]int)}
	for cursor.Next(ctx) {
		var group struct {
			Status Status `bson:"_id"`
			Count  int    `bson:"count"`
		}
		if err := cursor.Decode(&group); err != nil {
			return nil, err
		}
		stats.ByStatus[group.Status] = group.Count
		stats.Total += group.Count
	}
	return stats, cursor.Err()
}

// FindByTask implements Store.
func (s *Mongo) FindByTask(ctx context.Context, taskID string) (*Record, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc mongoRecord
	err := s.coll.FindOne(ctx, bson.M{"task_id": taskID}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	rec := doc.record()
	return &rec, true, nil
}

func (s *Mongo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]Record, error) {
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	records := make([]Record, 0)
	for cursor.Next(ctx) {
		var doc mongoRecord
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		records = append(records, doc.record())
	}
	return records, cursor.Err()
}

func (s *Mongo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

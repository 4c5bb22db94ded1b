package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/deusflow/technews/internal/news"
)

// MongoStore keeps articles in one MongoDB collection with a unique index
// on sourceUrl.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

var (
	_ Store         = (*MongoStore)(nil)
	_ StatsReporter = (*MongoStore)(nil)
)

type mongoArticle struct {
	ID                string    `bson:"_id"`
	Title             string    `bson:"title"`
	Summary           string    `bson:"summary"`
	Body              string    `bson:"body,omitempty"`
	Category          string    `bson:"category"`
	Companies         []string  `bson:"companies"`
	Source            string    `bson:"source"`
	SourceURL         string    `bson:"sourceUrl"`
	ImageURL          string    `bson:"imageUrl,omitempty"`
	PublishedAt       time.Time `bson:"publishedAt"`
	CreatedAt         time.Time `bson:"createdAt"`
	TranslatedTitle   string    `bson:"translatedTitle,omitempty"`
	TranslatedSummary string    `bson:"translatedSummary,omitempty"`
	TranslationLang   string    `bson:"translationLang,omitempty"`
}

func toMongo(a news.Article, now time.Time) mongoArticle {
	m := mongoArticle{
		ID: a.ID, Title: a.Title, Summary: a.Summary, Body: a.Body,
		Category: string(a.Category), Companies: a.Companies, Source: a.Source,
		SourceURL: a.SourceURL, ImageURL: a.ImageURL,
		PublishedAt: a.PublishedAt.UTC(), CreatedAt: a.CreatedAt.UTC(),
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.Companies == nil {
		m.Companies = []string{}
	}
	return m
}

func (m mongoArticle) article() news.Article {
	return news.Article{
		ID: m.ID, Title: m.Title, Summary: m.Summary, Category: canonical(m.Category),
		Companies: m.Companies, Source: m.Source, SourceURL: m.SourceURL, ImageURL: m.ImageURL,
		PublishedAt: m.PublishedAt, CreatedAt: m.CreatedAt,
		TranslatedTitle: m.TranslatedTitle, TranslatedSummary: m.TranslatedSummary,
		TranslationLang: m.TranslationLang,
	}
}

// NewMongoStore connects to uri and ensures the indexes exist.
func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "sourceUrl", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "publishedAt", Value: -1}}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create indexes: %w", err)
	}
	return &MongoStore{client: client, coll: coll}, nil
}

func mongoFilter(f Filter) bson.M {
	filter := bson.M{}
	if len(f.Categories) > 0 {
		filter["category"] = bson.M{"$in": storedCategoryNames(f.Categories)}
	}
	published := bson.M{}
	if !f.PublishedAfter.IsZero() {
		published["$gte"] = f.PublishedAfter.UTC()
	}
	switch {
	case f.Cursor.IsZero():
	case f.CursorURL == "":
		published["$lt"] = f.Cursor.UTC()
	default:
		filter["$or"] = bson.A{
			bson.M{"publishedAt": bson.M{"$lt": f.Cursor.UTC()}},
			bson.M{"publishedAt": f.Cursor.UTC(), "sourceUrl": bson.M{"$gt": f.CursorURL}},
		}
	}
	if len(published) > 0 {
		filter["publishedAt"] = published
	}
	return filter
}

var listProjection = bson.M{"body": 0}

func (s *MongoStore) Query(ctx context.Context, f Filter, limit int) (Page, error) {
	limit = clampLimit(limit)
	opts := options.Find().
		SetSort(bson.D{{Key: "publishedAt", Value: -1}, {Key: "sourceUrl", Value: 1}}).
		SetLimit(int64(limit + 1)).
		SetProjection(listProjection)
	items, err := s.find(ctx, mongoFilter(f), opts)
	if err != nil {
		return Page{}, err
	}
	return finishPage(items, limit), nil
}

func (s *MongoStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]news.Article, error) {
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find articles: %w", err)
	}
	defer cur.Close(ctx)

	var items []news.Article
	for cur.Next(ctx) {
		var m mongoArticle
		if err := cur.Decode(&m); err != nil {
			return nil, fmt.Errorf("decode article: %w", err)
		}
		items = append(items, m.article())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("cursor: %w", err)
	}
	return items, nil
}

func (s *MongoStore) UpsertBatch(ctx context.Context, articles []news.Article) ([]string, error) {
	now := time.Now().UTC()
	var (
		models []mongo.WriteModel
		urls   []string
	)
	for _, a := range articles {
		if a.SourceURL == "" {
			continue
		}
		doc := toMongo(a, now)
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"sourceUrl": doc.SourceURL}).
			SetUpdate(bson.M{"$setOnInsert": doc}).
			SetUpsert(true))
		urls = append(urls, doc.SourceURL)
	}
	if len(models) == 0 {
		return nil, nil
	}
	res, err := s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil && (res == nil || !isOnlyDuplicateKey(err)) {
		return nil, fmt.Errorf("bulk upsert: %w", err)
	}
	return upsertedURLs(urls, res.UpsertedIDs), nil
}

// upsertedURLs maps the model indexes of a bulk write's upserts back to the
// source URLs they carried.
func upsertedURLs(urls []string, ids map[int64]interface{}) []string {
	var out []string
	for i, u := range urls {
		if _, ok := ids[int64(i)]; ok {
			out = append(out, u)
		}
	}
	return out
}

// Concurrent upserts of the same URL may race on the unique index; those
// losers are duplicates, not failures.
func isOnlyDuplicateKey(err error) bool {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || bwe.WriteConcernError != nil {
		return false
	}
	for _, we := range bwe.WriteErrors {
		if we.Code != 11000 {
			return false
		}
	}
	return true
}

func (s *MongoStore) ExistsByURLs(ctx context.Context, urls []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	if len(urls) == 0 {
		return out, nil
	}
	cur, err := s.coll.Find(ctx,
		bson.M{"sourceUrl": bson.M{"$in": urls}},
		options.Find().SetProjection(bson.M{"sourceUrl": 1}))
	if err != nil {
		return nil, fmt.Errorf("find urls: %w", err)
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var doc struct {
			SourceURL string `bson:"sourceUrl"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode url: %w", err)
		}
		out[doc.SourceURL] = struct{}{}
	}
	return out, cur.Err()
}

func (s *MongoStore) ApplyEnrichment(ctx context.Context, sourceURL string, e Enrichment) error {
	set := bson.M{}
	if e.TranslatedTitle != "" {
		set["translatedTitle"] = e.TranslatedTitle
	}
	if e.TranslatedSummary != "" {
		set["translatedSummary"] = e.TranslatedSummary
	}
	if e.TranslationLang != "" {
		set["translationLang"] = e.TranslationLang
	}
	if len(set) > 0 {
		res, err := s.coll.UpdateOne(ctx, bson.M{"sourceUrl": sourceURL}, bson.M{"$set": set})
		if err != nil {
			return fmt.Errorf("update translation: %w", err)
		}
		if res.MatchedCount == 0 {
			return ErrNotFound
		}
	}
	if len(e.Companies) > 0 {
		filter := bson.M{"sourceUrl": sourceURL, "companies": bson.M{"$size": 0}}
		if _, err := s.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"companies": e.Companies}}); err != nil {
			return fmt.Errorf("update companies: %w", err)
		}
	}
	return nil
}

func (s *MongoStore) MissingCompanies(ctx context.Context, limit int) ([]news.Article, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "publishedAt", Value: -1}}).
		SetLimit(int64(clampLimit(limit))).
		SetProjection(listProjection)
	return s.find(ctx, bson.M{"companies": bson.M{"$size": 0}}, opts)
}

// Stats returns the article count per canonical category.
func (s *MongoStore) Stats(ctx context.Context) (map[string]int, error) {
	cur, err := s.coll.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$category"}, {Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate stats: %w", err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		Category string `bson:"_id"`
		Count    int    `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	stats := map[string]int{}
	total := 0
	for _, r := range rows {
		stats["category_"+string(canonical(r.Category))] += r.Count
		total += r.Count
	}
	stats["total_articles"] = total
	return stats, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

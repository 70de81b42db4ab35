package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kaiven11/artical-generate/internal/types"
)

// MongoStore is the production Store backend, grounded on the teacher's
// MongoStorage (connection lifecycle, batched-write idiom). Unlike the
// teacher's single-collection item store, this backend maintains four
// named collections per §6.1.
type MongoStore struct {
	client      *mongo.Client
	articles    *mongo.Collection
	templates   *mongo.Collection
	tasks       *mongo.Collection
	detections  *mongo.Collection
	logger      *slog.Logger

	articleSeq   atomicCounter
	templateSeq  atomicCounter
	taskSeq      atomicCounter
	detectionSeq atomicCounter
}

// atomicCounter is a tiny Mongo-independent id generator; Mongo's native
// ObjectID is not the int64 surface Store promises callers, and adding a
// sequence collection would be one more moving part for no behavioral gain
// over a process-local counter seeded from a max() scan at Open time.
type atomicCounter struct{ n int64 }

func (c *atomicCounter) next() int64 { return atomic.AddInt64(&c.n, 1) }

func Open(ctx context.Context, uri, database string, logger *slog.Logger) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:     client,
		articles:   db.Collection("articles"),
		templates:  db.Collection("prompt_templates"),
		tasks:      db.Collection("tasks"),
		detections: db.Collection("detection_results"),
		logger:     logger.With("component", "mongo_store"),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	if err := s.seedSequences(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// ensureIndexes creates the unique source_key index idempotently; Mongo
// no-ops CreateOne when an identical index already exists.
func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.articles.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "source_key", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// seedSequences scans each collection's max id so restarts don't reissue
// ids a prior process already handed out.
func (s *MongoStore) seedSequences(ctx context.Context) error {
	seed := func(coll *mongo.Collection, counter *atomicCounter) error {
		opts := options.FindOne().SetSort(bson.D{{Key: "id", Value: -1}})
		var doc struct {
			ID int64 `bson:"id"`
		}
		err := coll.FindOne(ctx, bson.D{}, opts).Decode(&doc)
		if err == mongo.ErrNoDocuments {
			return nil
		}
		if err != nil {
			return err
		}
		counter.n = doc.ID
		return nil
	}
	if err := seed(s.articles, &s.articleSeq); err != nil {
		return err
	}
	if err := seed(s.templates, &s.templateSeq); err != nil {
		return err
	}
	if err := seed(s.tasks, &s.taskSeq); err != nil {
		return err
	}
	return seed(s.detections, &s.detectionSeq)
}

// articleDoc mirrors types.Article for BSON encoding; decodeArticle fills
// zero-value defaults for fields absent on documents written by an older
// version, the Go-native equivalent of an additive schema migration.
type articleDoc struct {
	ID                   int64             `bson:"id"`
	SourceKey            string            `bson:"source_key"`
	Title                string            `bson:"title"`
	SourcePlatform       string            `bson:"source_platform"`
	CreationType         string            `bson:"creation_type"`
	SourceURL            string            `bson:"source_url,omitempty"`
	Topic                string            `bson:"topic,omitempty"`
	ContentOriginal      string            `bson:"content_original,omitempty"`
	ContentTranslated    string            `bson:"content_translated,omitempty"`
	ContentOptimised     string            `bson:"content_optimised,omitempty"`
	ContentFinal         string            `bson:"content_final,omitempty"`
	Status               string            `bson:"status"`
	Category             string            `bson:"category,omitempty"`
	TargetLength         string            `bson:"target_length,omitempty"`
	WritingStyle         string            `bson:"writing_style,omitempty"`
	Keywords             []string          `bson:"keywords,omitempty"`
	CreationRequirements string            `bson:"creation_requirements,omitempty"`
	SelectedPromptID     *int64            `bson:"selected_prompt_id,omitempty"`
	SelectedModelID      *int64            `bson:"selected_model_id,omitempty"`
	AIProbability        *float64          `bson:"ai_probability,omitempty"`
	ProcessingAttempts   int               `bson:"processing_attempts"`
	LastError            string            `bson:"last_error,omitempty"`
	CreatedAt            time.Time         `bson:"created_at"`
	UpdatedAt            time.Time         `bson:"updated_at"`
	PublishedAt          *time.Time        `bson:"published_at,omitempty"`
}

func toArticleDoc(a *types.Article) articleDoc {
	return articleDoc{
		ID: a.ID, SourceKey: a.SourceKey, Title: a.Title, SourcePlatform: a.SourcePlatform,
		CreationType: string(a.CreationType), SourceURL: a.SourceURL, Topic: a.Topic,
		ContentOriginal: a.ContentOriginal, ContentTranslated: a.ContentTranslated,
		ContentOptimised: a.ContentOptimised, ContentFinal: a.ContentFinal,
		Status: string(a.Status), Category: a.Category, TargetLength: string(a.TargetLength),
		WritingStyle: a.WritingStyle, Keywords: a.Keywords, CreationRequirements: a.CreationRequirements,
		SelectedPromptID: a.SelectedPromptID, SelectedModelID: a.SelectedModelID, AIProbability: a.AIProbability,
		ProcessingAttempts: a.ProcessingAttempts, LastError: a.LastError,
		CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt, PublishedAt: a.PublishedAt,
	}
}

// decodeArticle applies additive defaults: any field zero-valued because an
// older document predates it simply decodes to Go's zero value, which is
// already the documented default for every field the spec adds over time.
func decodeArticle(d articleDoc) *types.Article {
	return &types.Article{
		ID: d.ID, SourceKey: d.SourceKey, Title: d.Title, SourcePlatform: d.SourcePlatform,
		CreationType: types.CreationType(d.CreationType), SourceURL: d.SourceURL, Topic: d.Topic,
		ContentOriginal: d.ContentOriginal, ContentTranslated: d.ContentTranslated,
		ContentOptimised: d.ContentOptimised, ContentFinal: d.ContentFinal,
		Status: types.Status(d.Status), Category: d.Category, TargetLength: types.TargetLength(d.TargetLength),
		WritingStyle: d.WritingStyle, Keywords: d.Keywords, CreationRequirements: d.CreationRequirements,
		SelectedPromptID: d.SelectedPromptID, SelectedModelID: d.SelectedModelID, AIProbability: d.AIProbability,
		ProcessingAttempts: d.ProcessingAttempts, LastError: d.LastError,
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt, PublishedAt: d.PublishedAt,
	}
}

func (s *MongoStore) CreateArticle(ctx context.Context, a *types.Article) (int64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}

	count, err := s.articles.CountDocuments(ctx, bson.D{{Key: "source_key", Value: a.SourceKey}})
	if err != nil {
		return 0, fmt.Errorf("check source_key: %w", err)
	}
	if count > 0 {
		return 0, types.ErrDuplicateKey
	}

	id := s.articleSeq.next()
	now := time.Now()
	clone := *a
	clone.ID = id
	clone.CreatedAt = now
	clone.UpdatedAt = now

	if _, err := s.articles.InsertOne(ctx, toArticleDoc(&clone)); err != nil {
		return 0, fmt.Errorf("insert article: %w", err)
	}
	return id, nil
}

func (s *MongoStore) GetArticle(ctx context.Context, id int64) (*types.Article, error) {
	var doc articleDoc
	err := s.articles.FindOne(ctx, bson.D{{Key: "id", Value: id}}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find article: %w", err)
	}
	return decodeArticle(doc), nil
}

func (s *MongoStore) UpdateArticle(ctx context.Context, id int64, patch func(*types.Article) error) error {
	existing, err := s.GetArticle(ctx, id)
	if err != nil {
		return err
	}
	working := *existing

	if err := patch(&working); err != nil {
		return err
	}
	if working.Status != existing.Status && !types.CanTransition(existing.Status, working.Status) {
		return &types.ValidationError{Field: "status", Reason: "illegal transition " + string(existing.Status) + " -> " + string(working.Status)}
	}
	if err := working.Validate(); err != nil {
		return err
	}
	working.UpdatedAt = time.Now()

	_, err = s.articles.ReplaceOne(ctx, bson.D{{Key: "id", Value: id}}, toArticleDoc(&working))
	if err != nil {
		return fmt.Errorf("replace article: %w", err)
	}
	return nil
}

func (s *MongoStore) ListArticles(ctx context.Context, filter ArticleFilter, page Page) ([]*types.Article, error) {
	query := bson.D{}
	if filter.Status != "" {
		query = append(query, bson.E{Key: "status", Value: string(filter.Status)})
	}
	if filter.CreationType != "" {
		query = append(query, bson.E{Key: "creation_type", Value: string(filter.CreationType)})
	}
	if filter.SourcePlatform != "" {
		query = append(query, bson.E{Key: "source_platform", Value: filter.SourcePlatform})
	}

	opts := options.Find().SetSort(bson.D{{Key: "id", Value: 1}})
	if page.Offset > 0 {
		opts.SetSkip(int64(page.Offset))
	}
	if page.Limit > 0 {
		opts.SetLimit(int64(page.Limit))
	}

	cursor, err := s.articles.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*types.Article
	for cursor.Next(ctx) {
		var doc articleDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, decodeArticle(doc))
	}
	return out, cursor.Err()
}

func (s *MongoStore) AppendDetection(ctx context.Context, result *types.DetectionResult) error {
	clone := *result
	clone.ID = s.detectionSeq.next()
	if clone.DetectedAt.IsZero() {
		clone.DetectedAt = time.Now()
	}
	_, err := s.detections.InsertOne(ctx, clone)
	if err != nil {
		return fmt.Errorf("insert detection result: %w", err)
	}
	return nil
}

func (s *MongoStore) LastDetection(ctx context.Context, articleID int64) (*types.DetectionResult, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "detectedat", Value: -1}})
	var result types.DetectionResult
	err := s.detections.FindOne(ctx, bson.D{{Key: "articleid", Value: articleID}}, opts).Decode(&result)
	if err == mongo.ErrNoDocuments {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find last detection: %w", err)
	}
	return &result, nil
}

func (s *MongoStore) GetTemplate(ctx context.Context, idOrName any) (*types.PromptTemplate, error) {
	var query bson.D
	switch key := idOrName.(type) {
	case int64:
		query = bson.D{{Key: "id", Value: key}}
	case string:
		query = bson.D{{Key: "name", Value: key}}
	default:
		return nil, &types.ValidationError{Field: "idOrName", Reason: "must be int64 id or string name"}
	}

	var t types.PromptTemplate
	err := s.templates.FindOne(ctx, query).Decode(&t)
	if err == mongo.ErrNoDocuments {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find template: %w", err)
	}
	return &t, nil
}

func (s *MongoStore) SelectTemplates(ctx context.Context, promptType types.PromptType, filter TemplateFilter) ([]*types.PromptTemplate, error) {
	query := bson.D{{Key: "type", Value: string(promptType)}}
	if filter.ActiveOnly {
		query = append(query, bson.E{Key: "isactive", Value: true})
	}
	if filter.ContentType != "" {
		query = append(query, bson.E{Key: "contenttype", Value: string(filter.ContentType)})
	}

	opts := options.Find().SetSort(bson.D{{Key: "priority", Value: -1}, {Key: "createdat", Value: -1}})
	cursor, err := s.templates.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("select templates: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*types.PromptTemplate
	for cursor.Next(ctx) {
		var t types.PromptTemplate
		if err := cursor.Decode(&t); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, cursor.Err()
}

func (s *MongoStore) CreateTemplate(ctx context.Context, t *types.PromptTemplate) (int64, error) {
	id := s.templateSeq.next()
	now := time.Now()
	clone := t.Clone()
	clone.ID = id
	clone.CreatedAt = now
	clone.UpdatedAt = now

	if clone.IsDefault {
		if err := s.clearDefault(ctx, clone.Type, id); err != nil {
			return 0, err
		}
	}
	if _, err := s.templates.InsertOne(ctx, clone); err != nil {
		return 0, fmt.Errorf("insert template: %w", err)
	}
	return id, nil
}

func (s *MongoStore) UpdateTemplate(ctx context.Context, id int64, patch func(*types.PromptTemplate) error) error {
	existing, err := s.GetTemplate(ctx, id)
	if err != nil {
		return err
	}
	working := existing.Clone()
	if err := patch(working); err != nil {
		return err
	}
	working.UpdatedAt = time.Now()

	if working.IsDefault && !existing.IsDefault {
		if err := s.clearDefault(ctx, working.Type, id); err != nil {
			return err
		}
	}
	_, err = s.templates.ReplaceOne(ctx, bson.D{{Key: "id", Value: id}}, working)
	if err != nil {
		return fmt.Errorf("replace template: %w", err)
	}
	return nil
}

// clearDefault enforces the "setting is_default=true clears the flag on all
// other templates of the same type" invariant with a single UpdateMany.
func (s *MongoStore) clearDefault(ctx context.Context, promptType types.PromptType, exceptID int64) error {
	_, err := s.templates.UpdateMany(ctx,
		bson.D{{Key: "type", Value: string(promptType)}, {Key: "id", Value: bson.D{{Key: "$ne", Value: exceptID}}}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "isdefault", Value: false}}}},
	)
	return err
}

func (s *MongoStore) ExportTemplates(ctx context.Context) ([]*types.PromptTemplate, error) {
	cursor, err := s.templates.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("export templates: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*types.PromptTemplate
	for cursor.Next(ctx) {
		var t types.PromptTemplate
		if err := cursor.Decode(&t); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, cursor.Err()
}

func (s *MongoStore) ImportTemplates(ctx context.Context, templates []*types.PromptTemplate) (int, error) {
	imported := 0
	for _, incoming := range templates {
		var existing types.PromptTemplate
		err := s.templates.FindOne(ctx, bson.D{{Key: "name", Value: incoming.Name}}).Decode(&existing)

		clone := incoming.Clone()
		clone.UpdatedAt = time.Now()

		if err == mongo.ErrNoDocuments {
			clone.ID = s.templateSeq.next()
			clone.CreatedAt = time.Now()
			if _, err := s.templates.InsertOne(ctx, clone); err != nil {
				return imported, fmt.Errorf("import template %q: %w", incoming.Name, err)
			}
		} else if err == nil {
			clone.ID = existing.ID
			clone.CreatedAt = existing.CreatedAt
			if _, err := s.templates.ReplaceOne(ctx, bson.D{{Key: "id", Value: existing.ID}}, clone); err != nil {
				return imported, fmt.Errorf("replace template %q: %w", incoming.Name, err)
			}
		} else {
			return imported, fmt.Errorf("lookup template %q: %w", incoming.Name, err)
		}

		if clone.IsDefault {
			if err := s.clearDefault(ctx, clone.Type, clone.ID); err != nil {
				return imported, err
			}
		}
		imported++
	}
	return imported, nil
}

func (s *MongoStore) CreateTask(ctx context.Context, t *types.Task) (int64, error) {
	id := s.taskSeq.next()
	clone := *t
	clone.ID = id
	clone.CreatedAt = time.Now()
	if _, err := s.tasks.InsertOne(ctx, clone); err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	return id, nil
}

func (s *MongoStore) SetTaskStatus(ctx context.Context, id int64, status types.TaskStatus) error {
	update := bson.D{{Key: "status", Value: string(status)}}
	now := time.Now()
	switch status {
	case types.TaskRunning:
		update = append(update, bson.E{Key: "startedat", Value: now})
	case types.TaskCompleted, types.TaskFailed, types.TaskCancelled:
		update = append(update, bson.E{Key: "completedat", Value: now})
	}
	res, err := s.tasks.UpdateOne(ctx, bson.D{{Key: "id", Value: id}}, bson.D{{Key: "$set", Value: update}})
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if res.MatchedCount == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (s *MongoStore) SetTaskProgress(ctx context.Context, id int64, progress int, step string) error {
	existing, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if progress < existing.Progress {
		return &types.ValidationError{Field: "progress", Reason: "progress must not regress"}
	}

	_, err = s.tasks.UpdateOne(ctx,
		bson.D{{Key: "id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "progress", Value: progress}, {Key: "currentstep", Value: step}}}},
	)
	if err != nil {
		return fmt.Errorf("update task progress: %w", err)
	}
	return nil
}

func (s *MongoStore) GetTask(ctx context.Context, id int64) (*types.Task, error) {
	var t types.Task
	err := s.tasks.FindOne(ctx, bson.D{{Key: "id", Value: id}}).Decode(&t)
	if err == mongo.ErrNoDocuments {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find task: %w", err)
	}
	return &t, nil
}

func (s *MongoStore) ListActiveTasks(ctx context.Context) ([]*types.Task, error) {
	query := bson.D{{Key: "status", Value: bson.D{{Key: "$in", Value: bson.A{string(types.TaskPending), string(types.TaskRunning)}}}}}
	cursor, err := s.tasks.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list active tasks: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*types.Task
	for cursor.Next(ctx) {
		var t types.Task
		if err := cursor.Decode(&t); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, cursor.Err()
}

func (s *MongoStore) Close(ctx context.Context) error {
	s.logger.Info("mongo store closing")
	disconnectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.client.Disconnect(disconnectCtx)
}

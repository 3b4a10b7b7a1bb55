package qdrantDB

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/akolanti/ResearchAssistant/internal/domain/commonModels"
	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/akolanti/ResearchAssistant/internal/rag/vectorDB"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
	"github.com/akolanti/ResearchAssistant/pkg/retry"
	"github.com/qdrant/go-client/qdrant"
)

var logger *logger_i.Logger
var quadrantInstance *qdrant.Client
var once sync.Once

type Options struct {
	Host             string
	Port             int
	APIKey           string
	UseTLS           bool
	PoolSize         uint
	CollectionPrefix string
	// Space is the embedding space, it becomes part of the collection name so a model
	// change never mixes vectors from two spaces.
	Space      string
	Dimensions int
}

type ClientHolder struct {
	QObj       *qdrant.Client
	collection string
	dimensions uint64
}

// GetQuadrantClient returns nil if the client could not be created.
func GetQuadrantClient(ctx context.Context, opts Options) *ClientHolder {

	once.Do(func() {
		logger = logger_i.NewLogger("Qdrant")
		res, err := newClient(opts)
		if err != nil {
			logger.Error("could not instantiate: ", "error:", err)
			return
		}
		quadrantInstance = res
		go closeQdrant(ctx, quadrantInstance)
	})

	if quadrantInstance == nil {
		return nil
	}
	return &ClientHolder{
		QObj:       quadrantInstance,
		collection: CollectionName(opts.CollectionPrefix, opts.Space),
		dimensions: uint64(opts.Dimensions),
	}
}

func newClient(opts Options) (*qdrant.Client, error) {
	poolSize := opts.PoolSize
	if poolSize == 0 {
		poolSize = 1
	}
	return qdrant.NewClient(&qdrant.Config{
		Host:     opts.Host,
		Port:     opts.Port,
		APIKey:   opts.APIKey,
		UseTLS:   opts.UseTLS,
		PoolSize: poolSize,
	})
}

// CollectionName derives a qdrant safe collection name for an embedding space.
func CollectionName(prefix string, space string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, space)
	if clean == "" {
		return prefix
	}
	return prefix + "_" + clean
}

func closeQdrant(ctx context.Context, qi *qdrant.Client) {
	<-ctx.Done()
	logger.Info("Shutting down Qdrant")
	err := qi.Close()
	if err != nil {
		logger.Error("could not close Qdrant: ", "error:", err)
	}
	logger.Info("Closed Qdrant")
}

// Ping runs the qdrant health check.
func (db *ClientHolder) Ping(ctx context.Context) error {
	_, err := db.QObj.HealthCheck(ctx)
	return err
}

func (db *ClientHolder) Collection() string {
	return db.collection
}

// EnsureCollection creates the collection for this space or checks that an existing one
// has the configured vector size. A size mismatch is a configuration error.
func (db *ClientHolder) EnsureCollection(ctx context.Context) error {
	if db.collection == "" {
		return errors.New("empty collection name")
	}

	exists, err := db.QObj.CollectionExists(ctx, db.collection)
	if err != nil {
		return classify(ragErrors.KindIndexing, err, "collection exists")
	}
	if exists {
		info, err := db.QObj.GetCollectionInfo(ctx, db.collection)
		if err != nil {
			return classify(ragErrors.KindIndexing, err, "collection info")
		}
		size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
		if size != db.dimensions {
			return ragErrors.New(ragErrors.KindConfiguration,
				fmt.Sprintf("collection %s holds %d dimensional vectors, embedder produces %d", db.collection, size, db.dimensions))
		}
		return nil
	}

	err = db.QObj.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: db.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     db.dimensions,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return classify(ragErrors.KindIndexing, err, "create collection")
	}

	_, err = db.QObj.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: db.collection,
		FieldName:      "document_id",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return classify(ragErrors.KindIndexing, err, "create document_id index")
	}
	logger.Info("Created collection", "collection", db.collection, "dimensions", db.dimensions)
	return nil
}

func (db *ClientHolder) Upsert(ctx context.Context, points []vectorDB.Point) error {
	if len(points) == 0 {
		return nil
	}
	qdrantPoints := make([]*qdrant.PointStruct, len(points))

	for i, p := range points {
		qdrantPoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(p.Chunk.Id),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(toPayload(p.Chunk)),
		}
	}

	_, err := db.QObj.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: db.collection,
		Points:         qdrantPoints,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return classify(ragErrors.KindIndexing, err, "qdrant upsert")
	}
	return nil
}

func (db *ClientHolder) Delete(ctx context.Context, chunkIds []string) error {
	if len(chunkIds) == 0 {
		return nil
	}
	ids := make([]*qdrant.PointId, len(chunkIds))
	for i, id := range chunkIds {
		ids[i] = qdrant.NewID(id)
	}
	_, err := db.QObj.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: db.collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: ids},
			},
		},
	})
	if err != nil {
		return classify(ragErrors.KindIndexing, err, "qdrant delete points")
	}
	return nil
}

func (db *ClientHolder) DeleteByDocument(ctx context.Context, documentId string) error {
	_, err := db.QObj.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: db.collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{qdrant.NewMatch("document_id", documentId)},
				},
			},
		},
	})
	if err != nil {
		return classify(ragErrors.KindIndexing, err, "qdrant delete document")
	}
	return nil
}

func (db *ClientHolder) Query(ctx context.Context, vector []float32, k int) ([]vectorDB.Hit, error) {
	loggr := logger.WithContext(ctx)
	result, err := db.QObj.Query(ctx, &qdrant.QueryPoints{
		CollectionName: db.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		loggr.Error("Error querying Qdrant: ", "error:", err)
		return nil, classify(ragErrors.KindRetrieval, err, "qdrant query")
	}

	hits := make([]vectorDB.Hit, 0, len(result))
	for _, hit := range result {
		chunk := fromPayload(hit.GetPayload())
		if chunk.Id == "" {
			chunk.Id = hit.GetId().GetUuid()
		}
		hits = append(hits, vectorDB.Hit{Chunk: chunk, Score: hit.GetScore()})
	}
	loggr.Debug("Found matches", "count", len(hits))
	return hits, nil
}

func toPayload(c commonModels.Chunk) map[string]any {
	return map[string]any{
		"chunk_id":     c.Id,
		"document_id":  c.DocumentId,
		"ordinal":      int64(c.Ordinal),
		"content":      c.Text,
		"start_offset": int64(c.StartOffset),
		"end_offset":   int64(c.EndOffset),
		"section":      c.Section,
		"location":     c.Location,
		"title":        c.Title,
		"author":       c.Author,
		"source_type":  string(c.SourceType),
	}
}

func fromPayload(p map[string]*qdrant.Value) commonModels.Chunk {
	return commonModels.Chunk{
		Id:          p["chunk_id"].GetStringValue(),
		DocumentId:  p["document_id"].GetStringValue(),
		Ordinal:     int(p["ordinal"].GetIntegerValue()),
		Text:        p["content"].GetStringValue(),
		StartOffset: int(p["start_offset"].GetIntegerValue()),
		EndOffset:   int(p["end_offset"].GetIntegerValue()),
		Section:     p["section"].GetStringValue(),
		Location:    p["location"].GetStringValue(),
		Title:       p["title"].GetStringValue(),
		Author:      p["author"].GetStringValue(),
		SourceType:  commonModels.SourceType(p["source_type"].GetStringValue()),
	}
}

func classify(kind ragErrors.Kind, err error, message string) error {
	if retry.TransientGRPC(err) || retry.TransientNetwork(err) {
		return ragErrors.Transient(kind, err, message)
	}
	return ragErrors.Terminal(kind, err, message)
}

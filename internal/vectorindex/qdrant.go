package vectorindex

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"memoryd/internal/config"
	"memoryd/internal/model"
)

// payloadIDField stashes the original string id in the point payload when
// it isn't itself a valid UUID, since Qdrant only accepts UUIDs and positive
// integers as point ids.
const payloadIDField = "_original_id"

type qdrantIndex struct {
	client     *qdrant.Client
	collection string
	dimension  int
	metric     string
}

// NewQdrantIndex opens a gRPC connection to Qdrant (default port 6334) and
// ensures the configured collection exists. An API key can be supplied as a
// DSN query parameter: "http://host:6334?api_key=...".
func NewQdrantIndex(cfg config.VectorBackendConfig) (Index, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("vector collection name is required")
	}
	parsed, err := url.Parse(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant dsn: %w", err)
	}
	qcfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		qcfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		qcfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(qcfg)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	qi := &qdrantIndex{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimensions,
		metric:     strings.ToLower(strings.TrimSpace(cfg.Metric)),
	}
	ctx := context.Background()
	if err := qi.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	return qi, nil
}

func (q *qdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	if q.dimension <= 0 {
		return fmt.Errorf("qdrant requires dimensions > 0")
	}
	var distance qdrant.Distance
	switch q.metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	case "manhattan":
		distance = qdrant.Distance_Manhattan
	default:
		distance = qdrant.Distance_Cosine
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: distance,
		}),
	})
}

func (q *qdrantIndex) pointID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func (q *qdrantIndex) Insert(ctx context.Context, rec model.EpisodicMemoryRecord, vector []float32) error {
	uuidStr := q.pointID(rec.ID)
	scalars := scalarsOf(rec)
	payload := make(map[string]any, len(scalars)+1)
	for k, v := range scalars {
		payload[k] = v
	}
	if uuidStr != rec.ID {
		payload[payloadIDField] = rec.ID
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	wait := true
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(uuidStr),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	return err
}

func (q *qdrantIndex) Search(ctx context.Context, queryVector []float32, filter model.Filter, k int, radius *float64) ([]Result, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 10
	}
	vec := make([]float32, len(queryVector))
	copy(vec, queryVector)

	var must []*qdrant.Condition
	if filter.UserID != "" && filter.UserID != model.AllSentinel {
		must = append(must, qdrant.NewMatch("user_id", filter.UserID))
	}
	if filter.GroupID != "" && filter.GroupID != model.AllSentinel {
		must = append(must, qdrant.NewMatch("group_id", filter.GroupID))
	}
	var queryFilter *qdrant.Filter
	if len(must) > 0 {
		queryFilter = &qdrant.Filter{Must: must}
	}

	limit := uint64(k)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         queryFilter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(hits))
	for _, hit := range hits {
		uuidStr := hit.Id.GetUuid()
		if uuidStr == "" {
			uuidStr = hit.Id.String()
		}
		scalars := make(map[string]string)
		originalID := ""
		if hit.Payload != nil {
			for k, v := range hit.Payload {
				if k == payloadIDField {
					originalID = v.GetStringValue()
					continue
				}
				scalars[k] = v.GetStringValue()
			}
		}
		id := originalID
		if id == "" {
			id = uuidStr
		}
		if filter.StartTime != nil || filter.EndTime != nil {
			ts, err := timeFromScalar(scalars["timestamp"])
			if err == nil && !filter.MatchesTimestamp(ts) {
				continue
			}
		}
		score := float64(hit.Score)
		if radius != nil && (1-score) > *radius {
			continue
		}
		out = append(out, Result{ID: id, Score: score, Scalars: scalars})
	}
	return out, nil
}

// Flush is a no-op: Qdrant's Upsert already waits for the write to become
// visible before returning, so there's no separate commit step to trigger.
func (q *qdrantIndex) Flush(context.Context) error { return nil }

func (q *qdrantIndex) Delete(ctx context.Context, ids []string) error {
	for _, id := range ids {
		pointID := qdrant.NewIDUUID(q.pointID(id))
		if _, err := q.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: q.collection,
			Points:         qdrant.NewPointsSelector(pointID),
		}); err != nil {
			return fmt.Errorf("delete point %s: %w", id, err)
		}
	}
	return nil
}

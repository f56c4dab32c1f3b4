// Package redisstore persists wavez records in Redis and answers simple
// queries over them.
//
// Layout, with every key prefixed by the namespace:
//
//	<ns>:collections          set of collection names
//	<ns>:schema:<collection>  hash property -> data type
//	<ns>:objects:<collection> hash object id -> JSON record
//
// Object ids come from span_id, then function_uuid, then a fresh UUID, so
// re-registering a function overwrites its definition record.
package redisstore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/zoobzio/wavez"
	"github.com/zoobzio/wavez/config"
)

// Sentinel errors for comparison with errors.Is.
var (
	ErrInvalidURL         = stderrors.New("invalid redis URL")
	ErrCollectionExists   = stderrors.New("collection already exists")
	ErrCollectionNotFound = stderrors.New("collection not found")
)

// Store is a wavez.Sink backed by Redis.
// Safe for concurrent use by multiple goroutines.
type Store struct {
	client    redis.UniversalClient
	logger    *zap.Logger
	namespace string
}

// Options configures a Store.
type Options struct {
	Logger    *zap.Logger
	URL       string
	Namespace string
}

// OptionsFrom builds Options from environment configuration.
func OptionsFrom(cfg config.RedisConfig, logger *zap.Logger) Options {
	return Options{URL: cfg.URL, Namespace: cfg.Namespace, Logger: logger}
}

// Open connects to the Redis server at opts.URL and pings it.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.URL == "" {
		return nil, errors.Wrap(ErrInvalidURL, "redis URL is required")
	}
	redisOpt, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidURL, "%s: %v", opts.URL, err)
	}
	client := redis.NewClient(redisOpt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis ping failed")
	}
	return New(client, opts.Namespace, opts.Logger), nil
}

// New wraps an existing client.
func New(client redis.UniversalClient, namespace string, logger *zap.Logger) *Store {
	if namespace == "" {
		namespace = "wavez"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, namespace: namespace, logger: logger}
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) collectionsKey() string {
	return s.namespace + ":collections"
}

func (s *Store) schemaKey(collection string) string {
	return s.namespace + ":schema:" + collection
}

func (s *Store) objectsKey(collection string) string {
	return s.namespace + ":objects:" + collection
}

// Submit stores record in collection.
func (s *Store) Submit(ctx context.Context, collection string, record wavez.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrapf(err, "encode record for %s", collection)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, s.collectionsKey(), collection)
		pipe.HSet(ctx, s.objectsKey(collection), objectID(record), data)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "insert into %s", collection)
	}
	return nil
}

func objectID(record wavez.Record) string {
	for _, key := range []string{wavez.SpanIDKey, wavez.FunctionUUIDKey} {
		if v, ok := record[key].(string); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// CollectionExists reports whether collection has been created or written to.
func (s *Store) CollectionExists(ctx context.Context, collection string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.collectionsKey(), collection).Result()
	if err != nil {
		return false, errors.Wrapf(err, "check collection %s", collection)
	}
	return ok, nil
}

// CreateCollection registers collection with its property schema.
func (s *Store) CreateCollection(ctx context.Context, collection string, props map[string]wavez.Property) error {
	exists, err := s.CollectionExists(ctx, collection)
	if err != nil {
		return err
	}
	if exists {
		return errors.Wrap(ErrCollectionExists, collection)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, s.collectionsKey(), collection)
		if len(props) > 0 {
			fields := make(map[string]any, len(props))
			for name, p := range props {
				fields[name] = p.DataType
			}
			pipe.HSet(ctx, s.schemaKey(collection), fields)
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "create collection %s", collection)
	}
	s.logger.Info("collection created", zap.String("collection", collection), zap.Int("properties", len(props)))
	return nil
}

// Schema returns the property name -> data type mapping of collection.
func (s *Store) Schema(ctx context.Context, collection string) (map[string]string, error) {
	exists, err := s.CollectionExists(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.Wrap(ErrCollectionNotFound, collection)
	}
	schema, err := s.client.HGetAll(ctx, s.schemaKey(collection)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "read schema of %s", collection)
	}
	return schema, nil
}

// Count returns the number of records stored in collection.
func (s *Store) Count(ctx context.Context, collection string) (int64, error) {
	n, err := s.client.HLen(ctx, s.objectsKey(collection)).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "count %s", collection)
	}
	return n, nil
}

// Get returns the record stored under id, or nil if absent.
func (s *Store) Get(ctx context.Context, collection, id string) (wavez.Record, error) {
	data, err := s.client.HGet(ctx, s.objectsKey(collection), id).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get %s/%s", collection, id)
	}
	return decode(data)
}

func decode(data []byte) (wavez.Record, error) {
	var record wavez.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, errors.Wrap(err, "decode record")
	}
	return record, nil
}

// Query selects records from a collection.
type Query struct {
	// Filters must all equal the record's values. Compared by string form so
	// numbers decoded from JSON match their integer originals.
	Filters   map[string]any
	SortBy    string
	Ascending bool
	Limit     int
}

// Search returns the records of collection that match q.
func (s *Store) Search(ctx context.Context, collection string, q Query) ([]wavez.Record, error) {
	raw, err := s.client.HGetAll(ctx, s.objectsKey(collection)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "scan %s", collection)
	}

	records := make([]wavez.Record, 0, len(raw))
	for id, data := range raw {
		record, err := decode([]byte(data))
		if err != nil {
			s.logger.Warn("skipping undecodable record",
				zap.String("collection", collection),
				zap.String("id", id),
				zap.Error(err))
			continue
		}
		if matches(record, q.Filters) {
			records = append(records, record)
		}
	}

	if q.SortBy != "" {
		sort.SliceStable(records, func(i, j int) bool {
			if q.Ascending {
				return less(records[i][q.SortBy], records[j][q.SortBy])
			}
			return less(records[j][q.SortBy], records[i][q.SortBy])
		})
	}
	if q.Limit > 0 && len(records) > q.Limit {
		records = records[:q.Limit]
	}
	return records, nil
}

func matches(record wavez.Record, filters map[string]any) bool {
	for key, want := range filters {
		got, ok := record[key]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// less orders numbers numerically and everything else by string form.
// Missing values sort first.
func less(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b != nil
	}
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		return af < bf
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

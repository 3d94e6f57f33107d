// Package redisstore keeps file records in Redis.
//
// Layout, relative to the configured prefix:
//
//	file:<id>        JSON document of the record
//	spatial:<key>    set of record IDs stored under a spatial key
//	expiry           sorted set of record IDs scored by ttl
//	device:<id>      hash with createdAt and lastAuthenticated
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"geofyle/internal/model"
	"geofyle/internal/repository"
)

// Store implements repository.FileRepository and repository.DeviceRepository.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// maxTxRetries bounds how often an optimistic update is retried after its
// watched key changed underneath it.
const maxTxRetries = 3

// New creates a Store on top of an existing client. prefix namespaces every key.
func New(client redis.UniversalClient, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

var (
	_ repository.FileRepository   = (*Store)(nil)
	_ repository.DeviceRepository = (*Store)(nil)
)

type fileDoc struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	Size           int64          `json:"size"`
	MimeType       string         `json:"mimeType"`
	Location       model.Location `json:"location"`
	SpatialKey     string         `json:"spatialKey"`
	UploadTime     time.Time      `json:"uploadTime"`
	ExpirationTime time.Time      `json:"expirationTime"`
	TTL            int64          `json:"ttl"`
	DownloadCount  int64          `json:"downloadCount"`
}

func toDoc(f *model.FileRecord) fileDoc {
	return fileDoc{
		ID:             f.ID,
		Name:           f.Name,
		Description:    f.Description,
		Size:           f.Size,
		MimeType:       f.MimeType,
		Location:       f.Location,
		SpatialKey:     f.SpatialKey,
		UploadTime:     f.UploadTime.UTC(),
		ExpirationTime: f.ExpirationTime.UTC(),
		TTL:            f.TTL,
		DownloadCount:  f.DownloadCount,
	}
}

func (d fileDoc) record() *model.FileRecord {
	return &model.FileRecord{
		ID:             d.ID,
		Name:           d.Name,
		Description:    d.Description,
		Size:           d.Size,
		MimeType:       d.MimeType,
		Location:       d.Location,
		SpatialKey:     d.SpatialKey,
		UploadTime:     d.UploadTime.UTC(),
		ExpirationTime: d.ExpirationTime.UTC(),
		TTL:            d.TTL,
		DownloadCount:  d.DownloadCount,
	}
}

func (s *Store) fileKey(id string) string     { return s.prefix + "file:" + id }
func (s *Store) spatialKey(key string) string { return s.prefix + "spatial:" + key }
func (s *Store) expiryKey() string            { return s.prefix + "expiry" }
func (s *Store) deviceKey(id string) string   { return s.prefix + "device:" + id }

func (s *Store) Get(ctx context.Context, id string) (*model.FileRecord, error) {
	return s.get(ctx, s.client, id)
}

func (s *Store) get(ctx context.Context, c redis.Cmdable, id string) (*model.FileRecord, error) {
	raw, err := c.Get(ctx, s.fileKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get %s: %w", id, err)
	}
	return decode(raw)
}

// Put writes the document and its index entries in one MULTI/EXEC.
func (s *Store) Put(ctx context.Context, f *model.FileRecord) error {
	prev, err := s.Get(ctx, f.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	return s.write(ctx, f, prev)
}

// UpdateFields reads the current document, applies upd and writes it back.
// The file key is WATCHed across the read and the write: a record deleted in
// between is reported as repository.ErrNotFound and never written back.
// Concurrent updates of the same record resolve last-write-wins.
func (s *Store) UpdateFields(ctx context.Context, id string, upd repository.FileUpdate) (*model.FileRecord, error) {
	var next *model.FileRecord
	txf := func(tx *redis.Tx) error {
		cur, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if upd.Empty() {
			next = cur
			return nil
		}
		n := *cur
		upd.Apply(&n)
		body, err := json.Marshal(toDoc(&n))
		if err != nil {
			return fmt.Errorf("redis: marshal %s: %w", id, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.queueWrite(ctx, pipe, &n, cur, body)
			return nil
		})
		if err != nil {
			return err
		}
		next = &n
		return nil
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, s.fileKey(id))
		switch {
		case err == nil:
			return next, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, repository.ErrNotFound):
			return nil, err
		default:
			return nil, fmt.Errorf("redis: update %s: %w", id, err)
		}
	}
	return nil, fmt.Errorf("redis: update %s: %w", id, redis.TxFailedErr)
}

func (s *Store) write(ctx context.Context, f *model.FileRecord, prev *model.FileRecord) error {
	body, err := json.Marshal(toDoc(f))
	if err != nil {
		return fmt.Errorf("redis: marshal %s: %w", f.ID, err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.queueWrite(ctx, pipe, f, prev, body)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: write %s: %w", f.ID, err)
	}
	return nil
}

// queueWrite queues the document and its index entries on pipe.
func (s *Store) queueWrite(ctx context.Context, pipe redis.Pipeliner, f, prev *model.FileRecord, body []byte) {
	pipe.Set(ctx, s.fileKey(f.ID), body, 0)
	if prev != nil && prev.SpatialKey != f.SpatialKey {
		pipe.SRem(ctx, s.spatialKey(prev.SpatialKey), f.ID)
	}
	pipe.SAdd(ctx, s.spatialKey(f.SpatialKey), f.ID)
	pipe.ZAdd(ctx, s.expiryKey(), redis.Z{Score: float64(f.TTL), Member: f.ID})
}

// Delete removes the document and its index entries. Missing records are not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	cur, err := s.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.fileKey(id))
		pipe.SRem(ctx, s.spatialKey(cur.SpatialKey), id)
		pipe.ZRem(ctx, s.expiryKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: delete %s: %w", id, err)
	}
	return nil
}

func (s *Store) QueryBySpatialKey(ctx context.Context, key string) ([]*model.FileRecord, error) {
	ids, err := s.client.SMembers(ctx, s.spatialKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: smembers %s: %w", key, err)
	}
	sort.Strings(ids)
	return s.load(ctx, ids)
}

func (s *Store) ScanExpired(ctx context.Context, nowEpoch int64) ([]*model.FileRecord, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.expiryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(nowEpoch, 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: zrangebyscore: %w", err)
	}
	return s.load(ctx, ids)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// load fetches documents for ids, skipping index entries whose document is gone.
func (s *Store) load(ctx context.Context, ids []string) ([]*model.FileRecord, error) {
	out := make([]*model.FileRecord, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.fileKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: mget: %w", err)
	}
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		f, err := decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func decode(raw string) (*model.FileRecord, error) {
	var d fileDoc
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("redis: decode record: %w", err)
	}
	return d.record(), nil
}

// Touch keeps the first createdAt and overwrites lastAuthenticated.
func (s *Store) Touch(ctx context.Context, deviceID string, now time.Time) (*model.Device, error) {
	key := s.deviceKey(deviceID)
	ts := now.UTC().Format(time.RFC3339Nano)

	var fields *redis.MapStringStringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, "createdAt", ts)
		pipe.HSet(ctx, key, "lastAuthenticated", ts)
		fields = pipe.HGetAll(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis: touch device %s: %w", deviceID, err)
	}

	m := fields.Val()
	d := &model.Device{DeviceID: deviceID}
	if d.CreatedAt, err = time.Parse(time.RFC3339Nano, m["createdAt"]); err != nil {
		return nil, fmt.Errorf("redis: device %s createdAt: %w", deviceID, err)
	}
	if d.LastAuthenticated, err = time.Parse(time.RFC3339Nano, m["lastAuthenticated"]); err != nil {
		return nil, fmt.Errorf("redis: device %s lastAuthenticated: %w", deviceID, err)
	}
	d.CreatedAt = d.CreatedAt.UTC()
	d.LastAuthenticated = d.LastAuthenticated.UTC()
	return d, nil
}

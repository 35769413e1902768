package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
)

// ErrCorruptRecord is returned when a stored hash cannot be decoded.
var ErrCorruptRecord = errors.New("session record corrupt")

const (
	defaultKeyPrefix = "ws"
	defaultKeyGrace  = time.Hour

	fieldSessionID      = "sid"
	fieldPartnerID      = "pid"
	fieldUserID         = "uid"
	fieldCredentialHash = "ch"
	fieldCreatedAt      = "ca"
	fieldExpiresAt      = "ea"
	fieldLastActivityAt = "la"
	fieldIPAddress      = "ip"
	fieldUserAgent      = "ua"
	fieldOrigin         = "or"
)

const updateIfExistsScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
for i = 1, #ARGV, 2 do
  redis.call("HSET", KEYS[1], ARGV[i], ARGV[i + 1])
end
return 1
`

var updateIfExistsLua = redis.NewScript(updateIfExistsScript)

// RedisStoreConfig configures a [RedisStore].
type RedisStoreConfig struct {
	// Prefix namespaces every key. Defaults to "ws".
	Prefix string
	// KeyGrace is added to a record's remaining lifetime when setting the
	// Redis key TTL, so Redis reclaims records nobody sweeps.
	KeyGrace time.Duration
	Clock    clock.Clock
}

// RedisStore is a [Store] backed by Redis hashes and a sorted-set expiry
// index.
type RedisStore struct {
	redis    redis.UniversalClient
	prefix   string
	keyGrace time.Duration
	clock    clock.Clock
}

// NewRedisStore creates a [RedisStore] on the given client.
func NewRedisStore(client redis.UniversalClient, cfg RedisStoreConfig) *RedisStore {
	s := &RedisStore{
		redis:    client,
		prefix:   cfg.Prefix,
		keyGrace: cfg.KeyGrace,
		clock:    cfg.Clock,
	}
	if s.prefix == "" {
		s.prefix = defaultKeyPrefix
	}
	if s.keyGrace <= 0 {
		s.keyGrace = defaultKeyGrace
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	return s
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *RedisStore) expiryKey() string {
	return s.prefix + ":exp"
}

// Get loads a record. A missing key yields [ErrNotFound].
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	rec, err := decodeRecord(fields)
	if err != nil {
		return nil, err
	}
	if rec.SessionID == "" {
		rec.SessionID = sessionID
	}
	return rec, nil
}

// Set writes the whole record and indexes its expiry in one transaction.
//
//	Performance: 1 MULTI/EXEC with 4 commands.
func (s *RedisStore) Set(ctx context.Context, rec *Record) error {
	if rec == nil || rec.SessionID == "" {
		return fmt.Errorf("%w: empty session id", ErrCorruptRecord)
	}

	key := s.key(rec.SessionID)
	ttl := rec.ExpiresAt.Sub(s.clock.Now()) + s.keyGrace
	if ttl < s.keyGrace {
		ttl = s.keyGrace
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, encodeRecord(rec))
		pipe.PExpire(ctx, key, ttl)
		pipe.ZAdd(ctx, s.expiryKey(), redis.Z{
			Score:  float64(rec.ExpiresAt.UnixMilli()),
			Member: rec.SessionID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Update applies patch atomically, and only when the record still exists.
func (s *RedisStore) Update(ctx context.Context, sessionID string, patch Patch) error {
	if patch.empty() {
		return nil
	}

	args := make([]interface{}, 0, 6)
	if patch.UserID != nil {
		args = append(args, fieldUserID, *patch.UserID)
	}
	if patch.CredentialHash != nil {
		args = append(args, fieldCredentialHash, *patch.CredentialHash)
	}
	if patch.LastActivityAt != nil {
		args = append(args, fieldLastActivityAt, formatMillis(*patch.LastActivityAt))
	}

	updated, err := updateIfExistsLua.Run(ctx, s.redis, []string{s.key(sessionID)}, args...).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if updated == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the record and its index entry. Missing records are not an
// error.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(sessionID))
		pipe.ZRem(ctx, s.expiryKey(), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// QueryRange serves range queries on [FieldExpiresAt] from the expiry index.
func (s *RedisStore) QueryRange(ctx context.Context, q RangeQuery) ([]string, error) {
	if q.Field != FieldExpiresAt {
		return nil, fmt.Errorf("%w: field %q", ErrUnsupportedQuery, q.Field)
	}

	bound := strconv.FormatInt(q.Value.UnixMilli(), 10)
	by := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	switch q.Op {
	case OpLess:
		by.Max = "(" + bound
	case OpLessEqual:
		by.Max = bound
	case OpGreater:
		by.Min = "(" + bound
	case OpGreaterEqual:
		by.Min = bound
	default:
		return nil, fmt.Errorf("%w: op %q", ErrUnsupportedQuery, q.Op)
	}
	if q.Limit > 0 {
		by.Count = int64(q.Limit)
	}

	ids, err := s.redis.ZRangeByScore(ctx, s.expiryKey(), by).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// Ping reports Redis round-trip latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func encodeRecord(rec *Record) map[string]interface{} {
	return map[string]interface{}{
		fieldSessionID:      rec.SessionID,
		fieldPartnerID:      rec.PartnerID,
		fieldUserID:         rec.UserID,
		fieldCredentialHash: rec.CredentialHash,
		fieldCreatedAt:      formatMillis(rec.CreatedAt),
		fieldExpiresAt:      formatMillis(rec.ExpiresAt),
		fieldLastActivityAt: formatMillis(rec.LastActivityAt),
		fieldIPAddress:      rec.IPAddress,
		fieldUserAgent:      rec.UserAgent,
		fieldOrigin:         rec.Origin,
	}
}

func decodeRecord(fields map[string]string) (*Record, error) {
	rec := &Record{
		SessionID:      fields[fieldSessionID],
		PartnerID:      fields[fieldPartnerID],
		UserID:         fields[fieldUserID],
		CredentialHash: fields[fieldCredentialHash],
		IPAddress:      fields[fieldIPAddress],
		UserAgent:      fields[fieldUserAgent],
		Origin:         fields[fieldOrigin],
	}

	var err error
	if rec.CreatedAt, err = parseMillis(fields[fieldCreatedAt]); err != nil {
		return nil, err
	}
	if rec.ExpiresAt, err = parseMillis(fields[fieldExpiresAt]); err != nil {
		return nil, err
	}
	if rec.LastActivityAt, err = parseMillis(fields[fieldLastActivityAt]); err != nil {
		return nil, err
	}
	if rec.PartnerID == "" || rec.ExpiresAt.IsZero() {
		return nil, ErrCorruptRecord
	}

	return rec, nil
}

func formatMillis(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(raw string) (time.Time, error) {
	if raw == "" || raw == "0" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return time.UnixMilli(ms), nil
}

package license

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	licenseKeyPrefix  = "license:"
	sessionIndexHash  = "license:session"
	licenseSetKey     = "license:keys"
	maxIncrementTries = 5
)

func licenseKey(key string) string {
	return licenseKeyPrefix + key
}

// RedisStore keeps one hash per license, a session-to-key hash and a set of
// all keys.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// RedisOptions addresses the Redis server.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore connects to Redis and pings it.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		Protocol: 2,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("license: redis ping: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Close closes the client.
func (s *RedisStore) Close() error { return s.client.Close() }

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Put writes l. An existing key keeps its activation count, active flag and
// creation time.
func (s *RedisStore) Put(ctx context.Context, l License) error {
	if l.MaxActivations == 0 {
		l.MaxActivations = DefaultMaxActivations
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	k := licenseKey(l.Key)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k,
			"email", l.Email,
			"stripeSessionId", l.StripeSessionID,
			"stripeCustomerId", l.StripeCustomerID,
			"productName", l.ProductName,
			"price", l.Price,
			"currency", l.Currency,
		)
		pipe.HSetNX(ctx, k, "createdAt", l.CreatedAt.UTC().Format(time.RFC3339Nano))
		pipe.HSetNX(ctx, k, "active", boolField(l.Active))
		pipe.HSetNX(ctx, k, "activations", l.Activations)
		pipe.HSetNX(ctx, k, "maxActivations", l.MaxActivations)
		if l.StripeSessionID != "" {
			pipe.HSet(ctx, sessionIndexHash, l.StripeSessionID, l.Key)
		}
		pipe.SAdd(ctx, licenseSetKey, l.Key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("license: put %s: %w", l.Key, err)
	}
	return nil
}

func parseLicense(key string, m map[string]string) (License, error) {
	if len(m) == 0 {
		return License{}, ErrLicenseNotFound
	}
	l := License{
		Key:              key,
		Email:            m["email"],
		StripeSessionID:  m["stripeSessionId"],
		StripeCustomerID: m["stripeCustomerId"],
		ProductName:      m["productName"],
		Currency:         m["currency"],
		Active:           m["active"] == "1",
	}
	var err error
	if l.Price, err = strconv.ParseInt(m["price"], 10, 64); err != nil {
		return License{}, fmt.Errorf("license: %s: bad price: %w", key, err)
	}
	if l.Activations, err = strconv.Atoi(m["activations"]); err != nil {
		return License{}, fmt.Errorf("license: %s: bad activations: %w", key, err)
	}
	if l.MaxActivations, err = strconv.Atoi(m["maxActivations"]); err != nil {
		return License{}, fmt.Errorf("license: %s: bad max activations: %w", key, err)
	}
	if l.CreatedAt, err = time.Parse(time.RFC3339Nano, m["createdAt"]); err != nil {
		return License{}, fmt.Errorf("license: %s: bad created time: %w", key, err)
	}
	return l, nil
}

// Get returns the license for key.
func (s *RedisStore) Get(ctx context.Context, key string) (License, error) {
	m, err := s.client.HGetAll(ctx, licenseKey(key)).Result()
	if err != nil {
		return License{}, fmt.Errorf("license: get %s: %w", key, err)
	}
	return parseLicense(key, m)
}

// GetBySession resolves the session index then loads the license.
func (s *RedisStore) GetBySession(ctx context.Context, sessionID string) (License, error) {
	key, err := s.client.HGet(ctx, sessionIndexHash, sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return License{}, ErrLicenseNotFound
	}
	if err != nil {
		return License{}, fmt.Errorf("license: get by session: %w", err)
	}
	return s.Get(ctx, key)
}

// IncrementActivation uses WATCH/MULTI so concurrent activations cannot
// pass the limit. A lost race is retried a few times.
func (s *RedisStore) IncrementActivation(ctx context.Context, key string) (int, error) {
	k := licenseKey(key)
	var count int
	txf := func(tx *redis.Tx) error {
		m, err := tx.HGetAll(ctx, k).Result()
		if err != nil {
			return err
		}
		l, err := parseLicense(key, m)
		if err != nil {
			return err
		}
		count = l.Activations
		if !l.Active {
			return ErrInactive
		}
		if l.Activations >= l.MaxActivations {
			return ErrActivationLimit
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HIncrBy(ctx, k, "activations", 1)
			return nil
		})
		if err == nil {
			count++
		}
		return err
	}

	for range maxIncrementTries {
		err := s.client.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, ErrInactive) && !errors.Is(err, ErrActivationLimit) && !isNotFound(err) {
			return count, fmt.Errorf("license: increment %s: %w", key, err)
		}
		return count, err
	}
	return count, fmt.Errorf("license: increment %s: too much contention", key)
}

// Deactivate marks key inactive.
func (s *RedisStore) Deactivate(ctx context.Context, key string) error {
	k := licenseKey(key)
	n, err := s.client.Exists(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("license: deactivate %s: %w", key, err)
	}
	if n == 0 {
		return ErrLicenseNotFound
	}
	if err := s.client.HSet(ctx, k, "active", "0").Err(); err != nil {
		return fmt.Errorf("license: deactivate %s: %w", key, err)
	}
	return nil
}

// Stats walks every key in the key set.
func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	keys, err := s.client.SMembers(ctx, licenseSetKey).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("license: stats: %w", err)
	}
	var st Stats
	for _, key := range keys {
		l, err := s.Get(ctx, key)
		if isNotFound(err) {
			continue
		}
		if err != nil {
			return Stats{}, err
		}
		st.Total++
		if l.Active {
			st.Active++
		} else {
			st.Inactive++
		}
		st.TotalActivations += l.Activations
	}
	return st, nil
}

package db

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"pastry/cfg"
)

type Redis struct {
	client  *redis.Client
	timeout time.Duration
}

func NewRedis(url string, cfg *cfg.Cfg) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	opt.PoolSize = 50
	opt.MinIdleConns = 10
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute
	opt.MaxRetries = 3
	opt.MinRetryBackoff = 8 * time.Millisecond
	opt.MaxRetryBackoff = 512 * time.Millisecond
	if cfg.RedisTLS {
		tlsConfig, err := buildRedisTLSConfig()
		if err != nil {
			return nil, errors.Wrap(err, "failed to build Redis TLS config")
		}
		opt.TLSConfig = tlsConfig
	}
	if cfg.RedisUsername != "" {
		opt.Username = cfg.RedisUsername
	}
	if cfg.RedisPassword.Value() != "" {
		opt.Password = cfg.RedisPassword.Value()
	}
	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, errors.Wrap(err, "ping redis")
	}
	return &Redis{
		client:  client,
		timeout: cfg.RedisTimeout,
	}, nil
}

func buildRedisTLSConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS13,
		MaxVersion: tls.VersionTLS13,
	}
	redisHostname := os.Getenv("REDIS_HOSTNAME")
	if redisHostname == "" {
		return nil, fmt.Errorf("REDIS_HOSTNAME must be set when REDIS_TLS=true")
	}
	tlsConfig.ServerName = redisHostname
	certPath := os.Getenv("REDIS_TLS_CA_CERT")
	if certPath != "" {
		caCert, err := os.ReadFile(certPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read Redis CA cert: %w", err)
		}
		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to append Redis CA cert to pool")
		}
		tlsConfig.RootCAs = certPool
	} else {
		systemPool, err := x509.SystemCertPool()
		if err != nil {
			return nil, fmt.Errorf("failed to load system cert pool: %w", err)
		}
		tlsConfig.RootCAs = systemPool
	}
	return tlsConfig, nil
}

// CacheContent stores the materialized plaintext of a paste; the row
// itself is always read from SQLite so view counts stay correct.
func (r *Redis) CacheContent(ctx context.Context, slug, content string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return errors.Wrap(r.client.Set(ctx, "content:"+slug, content, ttl).Err(), "set content")
}

// GetContent returns the cached plaintext, or found=false on a miss.
func (r *Redis) GetContent(ctx context.Context, slug string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	content, err := r.client.Get(ctx, "content:"+slug).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "get content")
	}
	return content, true, nil
}

func (r *Redis) DeleteContent(ctx context.Context, slug string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.client.Del(ctx, "content:"+slug).Err(); err != nil {
		return errors.Wrap(err, "delete content")
	}
	return nil
}

// MarkViewed adds a paste id to a viewer session set and refreshes the
// session TTL.
func (r *Redis) MarkViewed(ctx context.Context, sessionID string, pasteID int64, ttl time.Duration) error {
	if sessionID == "" {
		return errors.New("session id cannot be empty")
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	key := "viewed:" + sessionID
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, key, pasteID)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return errors.Wrap(err, "mark viewed")
}

// ViewedSet returns every paste id the session has already viewed.
func (r *Redis) ViewedSet(ctx context.Context, sessionID string) ([]int64, error) {
	if sessionID == "" {
		return nil, errors.New("session id cannot be empty")
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	members, err := r.client.SMembers(ctx, "viewed:"+sessionID).Result()
	if err != nil {
		return nil, errors.Wrap(err, "viewed set")
	}
	out := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func (r *Redis) RateLimit(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	script := redis.NewScript(`
		local current = redis.call("GET", KEYS[1])
		if current == false then
			current = 0
		else
			current = tonumber(current)
		end
		if current >= tonumber(ARGV[2]) then
			return current
		end
		local new_val = redis.call("INCR", KEYS[1])
		if new_val == 1 then
			redis.call("PEXPIRE", KEYS[1], ARGV[1])
		end
		return new_val
	`)
	usage, err := script.Run(ctx, r.client, []string{key}, int(window.Milliseconds()), limit).Int()
	if err != nil {
		return 0, errors.Wrap(err, "rate limit lua")
	}
	return usage, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	key := "health_check_" + time.Now().Format(time.RFC3339Nano)
	if err := r.client.Set(ctx, key, "ok", 5*time.Second).Err(); err != nil {
		return err
	}
	return r.client.Del(ctx, key).Err()
}

func (r *Redis) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mrosstech/vttless-sub000/config"
)

// Store keeps a redis set of user ids per campaign so the CRUD API and other
// services can see who is live in a session. Entries expire on their own if
// the relay dies without cleaning up.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(cfg config.RedisConfig, ttl time.Duration) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Store{rdb: rdb, ttl: ttl}, nil
}

func peersKey(campaignID string) string {
	return "campaign:" + campaignID + ":peers"
}

// Add records a user as present in the campaign and refreshes the set's TTL.
func (s *Store) Add(ctx context.Context, campaignID, userID string) error {
	key := peersKey(campaignID)
	if err := s.rdb.SAdd(ctx, key, userID).Err(); err != nil {
		return err
	}
	return s.rdb.Expire(ctx, key, s.ttl).Err()
}

// Remove drops a user from the campaign's presence set.
func (s *Store) Remove(ctx context.Context, campaignID, userID string) error {
	return s.rdb.SRem(ctx, peersKey(campaignID), userID).Err()
}

// Refresh pushes the presence set's expiry forward. Called on websocket
// pongs, so a live connection keeps its campaign visible.
func (s *Store) Refresh(ctx context.Context, campaignID string) error {
	return s.rdb.Expire(ctx, peersKey(campaignID), s.ttl).Err()
}

// Count reports how many users are present in a campaign.
func (s *Store) Count(ctx context.Context, campaignID string) (int64, error) {
	return s.rdb.SCard(ctx, peersKey(campaignID)).Result()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"xp-ledger/logger"

	"github.com/redis/go-redis/v9"
)

// Notification kinds.
const (
	KindXPCredited          = "xp-credited"
	KindAchievementUnlocked = "achievement-unlocked"
)

// Notification is what the engine tells the outside world after a credit or unlock.
type Notification struct {
	UserID      string    `json:"user_id"`
	Kind        string    `json:"kind"`
	Amount      int64     `json:"amount"`
	Source      string    `json:"source,omitempty"`
	Achievement string    `json:"achievement,omitempty"`
	NewTotal    int64     `json:"new_total"`
	NewLevel    int       `json:"new_level"`
	DidLevelUp  bool      `json:"did_level_up"`
	At          time.Time `json:"at"`
}

// Notifier receives notifications. Failures are logged by the caller and never fail a credit.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log.With("service", "LogNotifier")}
}

func (n *LogNotifier) Notify(_ context.Context, msg Notification) error {
	n.log.Info("notification",
		"user_id", msg.UserID, "kind", msg.Kind, "amount", msg.Amount,
		"achievement", msg.Achievement, "total", msg.NewTotal, "level", msg.NewLevel,
		"level_up", msg.DidLevelUp)
	return nil
}

// RedisNotifier publishes notifications as JSON on a pub/sub channel.
type RedisNotifier struct {
	log     *logger.Logger
	rdb     *redis.Client
	channel string
}

func NewRedisNotifier(addr, channel string, log *logger.Logger) (*RedisNotifier, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	if channel = strings.TrimSpace(channel); channel == "" {
		channel = "xp-events"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisNotifier{
		log:     log.With("service", "RedisNotifier"),
		rdb:     rdb,
		channel: channel,
	}, nil
}

func (n *RedisNotifier) Notify(ctx context.Context, msg Notification) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return n.rdb.Publish(ctx, n.channel, raw).Err()
}

func (n *RedisNotifier) Close() error {
	if n == nil || n.rdb == nil {
		return nil
	}
	return n.rdb.Close()
}

// MultiNotifier fans out to every notifier and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, msg Notification) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

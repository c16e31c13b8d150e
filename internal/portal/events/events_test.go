package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/initiumportal/stance/internal/portal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func sampleEvent() domain.PasswordResetTokenGeneratedEvent {
	return domain.PasswordResetTokenGeneratedEvent{
		Recipient:   domain.Recipient{UserID: "u1", Email: "ada@example.com", FirstName: "Ada"},
		Token:       "signed-link",
		WhenExpires: time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

func TestEncode(t *testing.T) {
	msg, err := Encode(sampleEvent())
	require.NoError(t, err)
	require.Equal(t, "user.password_reset_token_generated", msg.Name)

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Payload, &body))
	require.Equal(t, "ada@example.com", body["email"])
	require.Equal(t, "signed-link", body["token"])
}

func TestRedisPublisherAppendsToStream(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)

	p := NewRedisPublisher(client, "portal.events", 0)
	require.NoError(t, p.Publish(ctx, sampleEvent(), domain.UserEnabledEvent{Recipient: domain.Recipient{UserID: "u1"}}))

	entries, err := client.XRange(ctx, "portal.events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "user.password_reset_token_generated", entries[0].Values["name"])
	require.Equal(t, "user.enabled", entries[1].Values["name"])
	require.Contains(t, entries[0].Values["payload"], `"token":"signed-link"`)
}

func TestRedisPublisherFailure(t *testing.T) {
	mr, client := newTestRedis(t)
	mr.Close()

	err := NewRedisPublisher(client, "portal.events", 0).Publish(context.Background(), sampleEvent())
	require.Error(t, err)
}

func TestConnectRedis(t *testing.T) {
	mr, _ := newTestRedis(t)

	client, err := ConnectRedis(context.Background(), RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	require.NoError(t, client.Close())
}

type recorder struct {
	events []domain.Event
	err    error
}

func (r *recorder) Publish(ctx context.Context, events ...domain.Event) error {
	r.events = append(r.events, events...)
	return r.err
}

func TestMultiPublishesToAll(t *testing.T) {
	boom := errors.New("boom")
	a, b := &recorder{}, &recorder{err: boom}

	err := Multi{a, LogPublisher{}, b}.Publish(context.Background(), sampleEvent())
	require.ErrorIs(t, err, boom)
	require.Len(t, a.events, 1)
	require.Len(t, b.events, 1)
}

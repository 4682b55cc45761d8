// Package session owns the lifecycle of server-side sessions persisted in a
// shared Redis backend, usable across processes: enumeration, per-user
// listing, forced termination and refresh-marking.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

const (
	keyPrefix = "sess:"
	// indexKey tracks every live session id so enumeration does not scan the
	// whole keyspace.
	indexKey = "platform_sessions"
)

// User is the identity snapshot a session carries.
type User struct {
	ID                string   `json:"id"`
	ImpersonateUserID string   `json:"impersonate_user_id,omitempty"`
	SessionCreation   int64    `json:"session_creation"`
	GroupIDs          []string `json:"group_ids"`
	Organizations     []string `json:"organizations"`
}

// Cookie mirrors the boundary cookie settings stored with the record.
type Cookie struct {
	OriginalMaxAge int64 `json:"originalMaxAge"`
}

// Session is the store-facing record. RefreshPending is set by
// MarkSessionForRefresh and cleared by the next authenticated request that
// recomputes authorization.
type Session struct {
	ID             string `json:"id"`
	User           User   `json:"user"`
	Cookie         Cookie `json:"cookie"`
	RefreshPending bool   `json:"session_refresh,omitempty"`
}

// EffectiveOwner is the impersonated user when present, the owner otherwise.
func (s *Session) EffectiveOwner() string {
	if s.User.ImpersonateUserID != "" {
		return s.User.ImpersonateUserID
	}
	return s.User.ID
}

// Info is a listing entry for one live session. TTL is the remaining
// lifetime in whole seconds.
type Info struct {
	ID             string `json:"id"`
	Created        int64  `json:"created"`
	TTL            int64  `json:"ttl"`
	OriginalMaxAge int64  `json:"originalMaxAge"`
}

// UserSessions groups listing entries per effective owner.
type UserSessions struct {
	UserID   string `json:"user_id"`
	Sessions []Info `json:"sessions"`
}

// Store persists sessions in Redis. Operations race only at the atomicity of
// per-key Redis commands; there is no cross-session transaction.
type Store struct {
	client *redis.Client
}

// NewStore wraps an already-connected Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func sessionKey(id string) string { return keyPrefix + id }

// Create persists a new session with the given time to live and records it in
// the enumeration index.
func (s *Store) Create(ctx context.Context, sess *Session, ttl time.Duration) error {
	if sess.User.SessionCreation == 0 {
		sess.User.SessionCreation = time.Now().UnixMilli()
	}
	if sess.Cookie.OriginalMaxAge == 0 {
		sess.Cookie.OriginalMaxAge = int64(ttl.Seconds())
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, sessionKey(sess.ID), payload, ttl)
	pipe.SAdd(ctx, indexKey, sess.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Get loads one session. A missing or expired id yields (nil, nil).
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	sess.ID = id
	return &sess, nil
}

// FindSessions enumerates every live session grouped by effective owner.
// Index entries whose key already expired are pruned along the way.
func (s *Store) FindSessions(ctx context.Context) ([]UserSessions, error) {
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate sessions: %w", err)
	}
	grouped := make(map[string][]Info)
	for _, id := range ids {
		sess, ttl, err := s.loadWithTTL(ctx, id)
		if err != nil {
			return nil, err
		}
		if sess == nil {
			s.client.SRem(ctx, indexKey, id)
			continue
		}
		owner := sess.EffectiveOwner()
		grouped[owner] = append(grouped[owner], Info{
			ID:             id,
			Created:        sess.User.SessionCreation,
			TTL:            int64(ttl.Seconds()),
			OriginalMaxAge: sess.Cookie.OriginalMaxAge,
		})
	}
	out := make([]UserSessions, 0, len(grouped))
	for userID, sessions := range grouped {
		out = append(out, UserSessions{UserID: userID, Sessions: sessions})
	}
	return out, nil
}

// FindUserSessions lists the sessions a user participates in, considering
// both direct ownership and impersonation. A user with no sessions gets an
// empty list, never an error.
func (s *Store) FindUserSessions(ctx context.Context, userID string) ([]Info, error) {
	grouped, err := s.FindSessionsForUsers(ctx, []string{userID})
	if err != nil {
		return nil, err
	}
	for _, g := range grouped {
		if g.UserID == userID {
			return g.Sessions, nil
		}
	}
	return []Info{}, nil
}

// FindSessionsForUsers is the bulk variant of FindUserSessions.
func (s *Store) FindSessionsForUsers(ctx context.Context, userIDs []string) ([]UserSessions, error) {
	wanted := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = struct{}{}
	}
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate sessions: %w", err)
	}
	grouped := make(map[string][]Info)
	for _, id := range ids {
		sess, ttl, err := s.loadWithTTL(ctx, id)
		if err != nil {
			return nil, err
		}
		if sess == nil {
			s.client.SRem(ctx, indexKey, id)
			continue
		}
		info := Info{
			ID:             id,
			Created:        sess.User.SessionCreation,
			TTL:            int64(ttl.Seconds()),
			OriginalMaxAge: sess.Cookie.OriginalMaxAge,
		}
		for _, participant := range []string{sess.User.ID, sess.User.ImpersonateUserID} {
			if participant == "" {
				continue
			}
			if _, ok := wanted[participant]; ok {
				grouped[participant] = append(grouped[participant], info)
			}
		}
	}
	out := make([]UserSessions, 0, len(grouped))
	for userID, sessions := range grouped {
		out = append(out, UserSessions{UserID: userID, Sessions: sessions})
	}
	return out, nil
}

// KillSession destroys one session. Killing a missing id is a no-op, not an
// error; the removed payload is returned when there was one.
func (s *Store) KillSession(ctx context.Context, id string) (*Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	pipe := s.client.Pipeline()
	pipe.Del(ctx, sessionKey(id))
	pipe.SRem(ctx, indexKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to kill session %s: %w", id, err)
	}
	return sess, nil
}

// KillUserSessions destroys every session a user participates in, one kill at
// a time. Kills are best-effort: a failing kill is recorded and the batch
// continues. A login racing the batch can create a session that survives it.
func (s *Store) KillUserSessions(ctx context.Context, userID string) ([]string, error) {
	sessions, err := s.FindUserSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	killed := make([]string, 0, len(sessions))
	var errs []error
	for _, info := range sessions {
		if _, err := s.KillSession(ctx, info.ID); err != nil {
			log.WithError(err).WithFields(log.Fields{"session": info.ID, "user": userID}).Warn("session kill failed, continuing batch")
			errs = append(errs, err)
			continue
		}
		killed = append(killed, info.ID)
	}
	return killed, errors.Join(errs...)
}

// MarkSessionForRefresh rewrites a session with the refresh flag set while
// preserving its remaining time to live. Marking a missing id is a no-op.
func (s *Store) MarkSessionForRefresh(ctx context.Context, id string) error {
	sess, ttl, err := s.loadWithTTL(ctx, id)
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}
	sess.RefreshPending = true
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", id, err)
	}
	if err := s.client.Set(ctx, sessionKey(id), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to rewrite session %s: %w", id, err)
	}
	return nil
}

// ClearRefresh drops the refresh flag after authorization has been
// recomputed, again keeping the remaining TTL.
func (s *Store) ClearRefresh(ctx context.Context, id string) error {
	sess, ttl, err := s.loadWithTTL(ctx, id)
	if err != nil || sess == nil || !sess.RefreshPending {
		return err
	}
	sess.RefreshPending = false
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", id, err)
	}
	return s.client.Set(ctx, sessionKey(id), payload, ttl).Err()
}

func (s *Store) loadWithTTL(ctx context.Context, id string) (*Session, time.Duration, error) {
	sess, err := s.Get(ctx, id)
	if err != nil || sess == nil {
		return nil, 0, err
	}
	ttl, err := s.client.TTL(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read ttl for session %s: %w", id, err)
	}
	return sess, ttl, nil
}

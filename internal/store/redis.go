package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opscore/core/internal/apperrors"
	"github.com/opscore/core/internal/model"
)

// RedisConfig configures the Redis-backed store. Modeled on the teacher
// pack's config.RedisConfig shape (DimaJoyti-go-coffee/dao/pkg/redis).
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Redis is a Store implementation backed by a shared Redis instance.
// Keys are namespaced per spec.md §4.1: agent:{id}:registration,
// agent:{id}:state:latest, agent:{id}:state:history (list), session:{id},
// workflow:{id}.
type Redis struct {
	client *redis.Client
}

// NewRedis dials Redis and verifies connectivity with a bounded ping,
// mirroring the teacher pack's connect-then-ping wiring.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  nonZero(cfg.DialTimeout, 5*time.Second),
		ReadTimeout:  nonZero(cfg.ReadTimeout, 3*time.Second),
		WriteTimeout: nonZero(cfg.WriteTimeout, 3*time.Second),
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorageError, "redis ping failed", err)
	}

	return &Redis{client: client}, nil
}

func nonZero(d, fallback time.Duration) time.Duration {
	if d == 0 {
		return fallback
	}
	return d
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func registrationKey(agentID string) string { return "agent:" + agentID + ":registration" }
func latestKey(agentID string) string       { return "agent:" + agentID + ":state:latest" }
func latestTSKey(agentID string) string     { return "agent:" + agentID + ":state:latest_ts" }
func historyKey(agentID string) string      { return "agent:" + agentID + ":state:history" }
func sessionKey(sessionID string) string    { return "session:" + sessionID }
func workflowKey(id string) string          { return "workflow:" + id }

// sortableTimestamp renders t as a fixed-width, zero-padded decimal string
// of its Unix-nanosecond value, so that lexicographic string comparison
// (as done by the CAS script below, and by Redis/Lua generally) agrees
// with chronological order. time.RFC3339Nano is unsuitable for this:
// Go's formatter drops the fractional-second component entirely when
// nanoseconds==0, so e.g. "...T10:00:00Z" sorts lexically *after*
// "...T10:00:00.5Z" (half a second later, same second) because '.'
// (0x2E) < 'Z' (0x5A).
func sortableTimestamp(t time.Time) string {
	return fmt.Sprintf("%020d", t.UTC().UnixNano())
}

func (r *Redis) SaveAgentRegistration(ctx context.Context, reg *model.AgentRegistration) error {
	key := registrationKey(reg.AgentID)

	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return apperrors.Wrap(apperrors.KindStorageError, "check registration existence", err)
	}
	if exists == 1 {
		return apperrors.New(apperrors.KindAgentAlreadyExists, reg.AgentID)
	}

	data, err := json.Marshal(reg)
	if err != nil {
		return apperrors.Wrap(apperrors.KindStorageError, "marshal registration", err)
	}
	// SetNX closes a race between the Exists check and this write: two
	// concurrent registrations for the same agentId can only have one
	// winner.
	ok, err := r.client.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return apperrors.Wrap(apperrors.KindStorageError, "save registration", err)
	}
	if !ok {
		return apperrors.New(apperrors.KindAgentAlreadyExists, reg.AgentID)
	}
	return nil
}

func (r *Redis) ReadAgentRegistration(ctx context.Context, agentID string) (*model.AgentRegistration, error) {
	data, err := r.client.Get(ctx, registrationKey(agentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.New(apperrors.KindAgentNotFound, agentID)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorageError, "read registration", err)
	}
	var reg model.AgentRegistration
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorageError, "unmarshal registration", err)
	}
	return &reg, nil
}

func (r *Redis) AgentExists(ctx context.Context, agentID string) (bool, error) {
	n, err := r.client.Exists(ctx, registrationKey(agentID)).Result()
	if err != nil {
		return false, apperrors.Wrap(apperrors.KindStorageError, "check agent existence", err)
	}
	return n == 1, nil
}

// latestStateCAS is a Lua script implementing the compare-on-timestamp
// write: it only overwrites the latest-state key if the new record's
// timestamp is greater than or equal to what is stored, making the
// check-and-set race-free under concurrent callbacks for the same agent.
// The comparison is done against KEYS[2], a companion key holding only
// the sortableTimestamp string (never the JSON blob's own timestamp
// field), so ordering never depends on how time.Time happens to
// marshal.
var latestStateCAS = redis.NewScript(`
local currentTS = redis.call("GET", KEYS[2])
if currentTS and currentTS > ARGV[2] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1])
redis.call("SET", KEYS[2], ARGV[2])
return 1
`)

func (r *Redis) SaveAgentState(ctx context.Context, state *model.AgentStateRecord) error {
	data, err := json.Marshal(state)
	if err != nil {
		return apperrors.Wrap(apperrors.KindStorageError, "marshal state", err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, historyKey(state.AgentID), data)
	pipe.LTrim(ctx, historyKey(state.AgentID), 0, HistoryRetentionLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.Wrap(apperrors.KindStorageError, "append state history", err)
	}

	ts := sortableTimestamp(state.Timestamp)
	keys := []string{latestKey(state.AgentID), latestTSKey(state.AgentID)}
	if err := latestStateCAS.Run(ctx, r.client, keys, data, ts).Err(); err != nil {
		return apperrors.Wrap(apperrors.KindStorageError, "compare-and-set latest state", err)
	}
	return nil
}

func (r *Redis) ReadLatestAgentState(ctx context.Context, agentID string) (*model.AgentStateRecord, error) {
	data, err := r.client.Get(ctx, latestKey(agentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.New(apperrors.KindAgentNotFound, agentID)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorageError, "read latest state", err)
	}
	var rec model.AgentStateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorageError, "unmarshal latest state", err)
	}
	return &rec, nil
}

func (r *Redis) ReadAgentStateHistory(ctx context.Context, agentID string, limit int) ([]*model.AgentStateRecord, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	rows, err := r.client.LRange(ctx, historyKey(agentID), 0, stop).Result()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorageError, "read state history", err)
	}
	out := make([]*model.AgentStateRecord, 0, len(rows))
	for _, row := range rows {
		var rec model.AgentStateRecord
		if err := json.Unmarshal([]byte(row), &rec); err != nil {
			return nil, apperrors.Wrap(apperrors.KindStorageError, "unmarshal history entry", err)
		}
		out = append(out, &rec)
	}
	return out, nil
}

func (r *Redis) CreateSession(ctx context.Context, session *model.WorkflowSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return apperrors.Wrap(apperrors.KindStorageError, "marshal session", err)
	}
	ok, err := r.client.SetNX(ctx, sessionKey(session.SessionID), data, 0).Result()
	if err != nil {
		return apperrors.Wrap(apperrors.KindStorageError, "create session", err)
	}
	if !ok {
		return apperrors.New(apperrors.KindInvalidRequest, "duplicate session id "+session.SessionID)
	}
	return nil
}

func (r *Redis) ReadSession(ctx context.Context, sessionID string) (*model.WorkflowSession, error) {
	data, err := r.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.New(apperrors.KindSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorageError, "read session", err)
	}
	var s model.WorkflowSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorageError, "unmarshal session", err)
	}
	return &s, nil
}

func (r *Redis) UpdateSessionData(ctx context.Context, sessionID string, patch model.SessionPatch) (*model.WorkflowSession, error) {
	s, err := r.ReadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if patch.Status != nil {
		s.Status = *patch.Status
	}
	if patch.Metadata != nil {
		if s.Metadata == nil {
			s.Metadata = make(map[string]interface{}, len(patch.Metadata))
		}
		for k, v := range patch.Metadata {
			s.Metadata[k] = v
		}
	}
	s.LastUpdatedTime = time.Now().UTC()

	data, err := json.Marshal(s)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorageError, "marshal session", err)
	}
	if err := r.client.Set(ctx, sessionKey(sessionID), data, 0).Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorageError, "update session", err)
	}
	return s, nil
}

func (r *Redis) DeleteSession(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return apperrors.Wrap(apperrors.KindStorageError, "delete session", err)
	}
	return nil
}

func (r *Redis) SaveWorkflowDefinition(ctx context.Context, def *model.WorkflowDefinition) error {
	data, err := json.Marshal(def)
	if err != nil {
		return apperrors.Wrap(apperrors.KindStorageError, "marshal workflow definition", err)
	}
	if err := r.client.Set(ctx, workflowKey(def.ID), data, 0).Err(); err != nil {
		return apperrors.Wrap(apperrors.KindStorageError, "save workflow definition", err)
	}
	return nil
}

func (r *Redis) ReadWorkflowDefinition(ctx context.Context, id string) (*model.WorkflowDefinition, error) {
	data, err := r.client.Get(ctx, workflowKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.New(apperrors.KindWorkflowDefinitionNotFound, id)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorageError, "read workflow definition", err)
	}
	var def model.WorkflowDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorageError, "unmarshal workflow definition", err)
	}
	return &def, nil
}

func (r *Redis) ClearAll(ctx context.Context) error {
	if err := r.client.FlushDB(ctx).Err(); err != nil {
		return apperrors.Wrap(apperrors.KindStorageError, "flush db", err)
	}
	return nil
}

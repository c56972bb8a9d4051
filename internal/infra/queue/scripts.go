package queue

import "github.com/go-redis/redis/v8"

// All state changes for one lane happen inside these scripts so a claim or an
// outcome is never observed half-applied.

// KEYS: task, wait, delayed, seq
// ARGV: id, name, payload, priority, max_attempts, backoff_base_ms, backoff_max_ms, now_ms, delay_ms
var enqueueScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
local seq = redis.call("INCR", KEYS[4])
local now = tonumber(ARGV[8])
local delay = tonumber(ARGV[9])
local state = "waiting"
if delay > 0 then
	state = "delayed"
end
redis.call("HSET", KEYS[1],
	"id", ARGV[1], "name", ARGV[2], "payload", ARGV[3], "priority", ARGV[4],
	"attempts_made", 0, "max_attempts", ARGV[5],
	"backoff_base", ARGV[6], "backoff_max", ARGV[7],
	"state", state, "progress", 0, "created_at", ARGV[8], "seq", seq)
if delay > 0 then
	redis.call("ZADD", KEYS[3], now + delay, ARGV[1])
else
	redis.call("ZADD", KEYS[2], tonumber(ARGV[4]) * 4294967296 + seq, ARGV[1])
end
return 1
`)

// KEYS: wait, active, delayed, paused
// ARGV: now_ms, lease_ms, task_prefix
var claimScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local due = redis.call("ZRANGEBYSCORE", KEYS[3], "-inf", now, "LIMIT", 0, 100)
for _, id in ipairs(due) do
	local tk = ARGV[3] .. id
	local prio = tonumber(redis.call("HGET", tk, "priority") or "0")
	local seq = tonumber(redis.call("HGET", tk, "seq") or "0")
	redis.call("ZREM", KEYS[3], id)
	redis.call("ZADD", KEYS[1], prio * 4294967296 + seq, id)
	redis.call("HSET", tk, "state", "waiting")
end
if redis.call("EXISTS", KEYS[4]) == 1 then
	return false
end
local popped = redis.call("ZPOPMIN", KEYS[1])
if #popped == 0 then
	return false
end
local id = popped[1]
local tk = ARGV[3] .. id
redis.call("ZADD", KEYS[2], now + tonumber(ARGV[2]), id)
redis.call("HSET", tk, "state", "active", "processed_at", now)
return redis.call("HGETALL", tk)
`)

// KEYS: active, completed, task
// ARGV: id, now_ms, keep_count, keep_age_ms, task_prefix
var completeScript = redis.NewScript(`
if redis.call("ZREM", KEYS[1], ARGV[1]) == 0 then
	return -1
end
local now = tonumber(ARGV[2])
redis.call("HINCRBY", KEYS[3], "attempts_made", 1)
redis.call("HSET", KEYS[3], "state", "completed", "finished_at", now, "progress", 100)
redis.call("ZADD", KEYS[2], now, ARGV[1])
local cutoff = now - tonumber(ARGV[4])
local old = redis.call("ZRANGEBYSCORE", KEYS[2], "-inf", "(" .. cutoff)
for _, id in ipairs(old) do
	redis.call("DEL", ARGV[5] .. id)
end
if #old > 0 then
	redis.call("ZREMRANGEBYSCORE", KEYS[2], "-inf", "(" .. cutoff)
end
local keep = tonumber(ARGV[3])
local n = redis.call("ZCARD", KEYS[2])
if n > keep then
	local extra = redis.call("ZRANGE", KEYS[2], 0, n - keep - 1)
	for _, id in ipairs(extra) do
		redis.call("DEL", ARGV[5] .. id)
	end
	redis.call("ZREMRANGEBYRANK", KEYS[2], 0, n - keep - 1)
end
return 1
`)

// KEYS: active, delayed, task
// ARGV: id, run_at_ms, reason
var retryScript = redis.NewScript(`
if redis.call("ZREM", KEYS[1], ARGV[1]) == 0 then
	return -1
end
redis.call("HINCRBY", KEYS[3], "attempts_made", 1)
redis.call("HSET", KEYS[3], "state", "delayed", "failed_reason", ARGV[3])
redis.call("ZADD", KEYS[2], tonumber(ARGV[2]), ARGV[1])
return 1
`)

// KEYS: active, failed, task
// ARGV: id, now_ms, reason, keep_age_ms, task_prefix
var failScript = redis.NewScript(`
if redis.call("ZREM", KEYS[1], ARGV[1]) == 0 then
	return -1
end
local now = tonumber(ARGV[2])
redis.call("HINCRBY", KEYS[3], "attempts_made", 1)
redis.call("HSET", KEYS[3], "state", "failed", "failed_reason", ARGV[3], "finished_at", now)
redis.call("ZADD", KEYS[2], now, ARGV[1])
local cutoff = now - tonumber(ARGV[4])
local old = redis.call("ZRANGEBYSCORE", KEYS[2], "-inf", "(" .. cutoff)
for _, id in ipairs(old) do
	redis.call("DEL", ARGV[5] .. id)
end
if #old > 0 then
	redis.call("ZREMRANGEBYSCORE", KEYS[2], "-inf", "(" .. cutoff)
end
return 1
`)

// A task whose lease expired goes back to waiting and is charged one attempt.
// When that charge uses up max_attempts it is parked as failed.
// KEYS: active, wait, failed
// ARGV: now_ms, task_prefix
var requeueStaleScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local stale = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", now, "LIMIT", 0, 100)
for _, id in ipairs(stale) do
	local tk = ARGV[2] .. id
	redis.call("ZREM", KEYS[1], id)
	local made = redis.call("HINCRBY", tk, "attempts_made", 1)
	local max = tonumber(redis.call("HGET", tk, "max_attempts") or "1")
	if made >= max then
		redis.call("HSET", tk, "state", "failed", "failed_reason", "task lease expired", "finished_at", now)
		redis.call("ZADD", KEYS[3], now, id)
	else
		local prio = tonumber(redis.call("HGET", tk, "priority") or "0")
		local seq = tonumber(redis.call("HGET", tk, "seq") or "0")
		redis.call("HSET", tk, "state", "waiting", "failed_reason", "task lease expired")
		redis.call("ZADD", KEYS[2], prio * 4294967296 + seq, id)
	end
end
return #stale
`)

// KEYS: set
// ARGV: cutoff_ms, limit, task_prefix
var cleanScript = redis.NewScript(`
local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, tonumber(ARGV[2]))
for _, id in ipairs(ids) do
	redis.call("DEL", ARGV[3] .. id)
	redis.call("ZREM", KEYS[1], id)
end
return #ids
`)

// KEYS: task
// ARGV: pct
var progressScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], "progress", ARGV[1])
return 1
`)

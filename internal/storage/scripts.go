package storage

import "github.com/redis/go-redis/v9"

// Error replies raised by the scripts. They are mapped onto the internal
// sentinel errors by scriptError.
const (
	replyRoomNotFound  = "ROOM_NOT_FOUND"
	replyAlreadyJoined = "ALREADY_JOINED"
	replyRoomFull      = "ROOM_FULL"
	replyWrongPhase    = "WRONG_PHASE"
	replyBadSettings   = "INVALID_SETTINGS"
)

// createRoom writes the metadata hash only if the id is unused.
// KEYS[1] meta
// ARGV: ttl, phase, current_round, drawing_time, total_rounds, max_players, created_at
var createRoomScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1],
  'phase', ARGV[2],
  'current_round', ARGV[3],
  'drawing_time', ARGV[4],
  'total_rounds', ARGV[5],
  'max_players', ARGV[6],
  'created_at', ARGV[7])
redis.call('EXPIRE', KEYS[1], ARGV[1])
return 1
`)

// enqueue appends a participant to the waitlist. The identity must not be
// present in either list and players + waitlist must stay below capacity.
// KEYS[1] meta, KEYS[2] players, KEYS[3] waitlist
// ARGV[1] identity, ARGV[2] entry json, ARGV[3] ttl
var enqueueScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return redis.error_reply('ROOM_NOT_FOUND')
end
local maxPlayers = tonumber(redis.call('HGET', KEYS[1], 'max_players'))
local players = redis.call('LRANGE', KEYS[2], 0, -1)
for _, raw in ipairs(players) do
  if cjson.decode(raw)['stable_identity'] == ARGV[1] then
    return redis.error_reply('ALREADY_JOINED')
  end
end
local waiting = redis.call('LRANGE', KEYS[3], 0, -1)
for _, raw in ipairs(waiting) do
  if cjson.decode(raw)['stable_identity'] == ARGV[1] then
    return redis.error_reply('ALREADY_JOINED')
  end
end
if #players + #waiting >= maxPlayers then
  return redis.error_reply('ROOM_FULL')
end
redis.call('RPUSH', KEYS[3], ARGV[2])
redis.call('EXPIRE', KEYS[3], ARGV[3])
return #waiting + 1
`)

// admit pops the head of the waitlist into the player list when the phase
// allows it and capacity remains. The first admitted player becomes host.
// KEYS[1] meta, KEYS[2] players, KEYS[3] waitlist
// ARGV[1] ttl
var admitScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return redis.error_reply('ROOM_NOT_FOUND')
end
local phase = redis.call('HGET', KEYS[1], 'phase')
if phase == 'PROMPT' or phase == 'DRAWING' then
  return false
end
local count = redis.call('LLEN', KEYS[2])
local maxPlayers = tonumber(redis.call('HGET', KEYS[1], 'max_players'))
if count >= maxPlayers then
  return false
end
local raw = redis.call('LPOP', KEYS[3])
if not raw then
  return false
end
local entry = cjson.decode(raw)
entry['is_host'] = (count == 0)
local player = cjson.encode(entry)
redis.call('RPUSH', KEYS[2], player)
redis.call('EXPIRE', KEYS[2], ARGV[1])
return player
`)

// removeWaitlisted drops a queued participant by connection id.
// KEYS[1] waitlist
// ARGV[1] connection id
var removeWaitlistedScript = redis.NewScript(`
local waiting = redis.call('LRANGE', KEYS[1], 0, -1)
for _, raw in ipairs(waiting) do
  if cjson.decode(raw)['connection_id'] == ARGV[1] then
    redis.call('LREM', KEYS[1], 1, raw)
    return raw
  end
end
return false
`)

// reconnect consumes a grace record and swaps the stored connection id of the
// matching player in place. Returns {player json, record json} or nil.
// KEYS[1] players, KEYS[2] grace record
// ARGV[1] identity, ARGV[2] new connection id, ARGV[3] ttl
var reconnectScript = redis.NewScript(`
local rec = redis.call('GET', KEYS[2])
if not rec then
  return false
end
local players = redis.call('LRANGE', KEYS[1], 0, -1)
for i, raw in ipairs(players) do
  local p = cjson.decode(raw)
  if p['stable_identity'] == ARGV[1] then
    p['connection_id'] = ARGV[2]
    local updated = cjson.encode(p)
    redis.call('LSET', KEYS[1], i - 1, updated)
    redis.call('DEL', KEYS[2])
    redis.call('EXPIRE', KEYS[1], ARGV[3])
    return {updated, rec}
  end
end
redis.call('DEL', KEYS[2])
return false
`)

// compareAndSetPhase moves the room to a new phase only from the expected one.
// KEYS[1] meta
// ARGV[1] expected phase, ARGV[2] next phase, ARGV[3] round, ARGV[4] ttl
var compareAndSetPhaseScript = redis.NewScript(`
local phase = redis.call('HGET', KEYS[1], 'phase')
if not phase then
  return redis.error_reply('ROOM_NOT_FOUND')
end
if phase ~= ARGV[1] then
  return 0
end
redis.call('HSET', KEYS[1], 'phase', ARGV[2], 'current_round', ARGV[3])
redis.call('EXPIRE', KEYS[1], ARGV[4])
return 1
`)

// saveSettings is only allowed while waiting and never below the current headcount.
// KEYS[1] meta, KEYS[2] players
// ARGV[1] drawing time, ARGV[2] total rounds, ARGV[3] max players, ARGV[4] ttl
var saveSettingsScript = redis.NewScript(`
local phase = redis.call('HGET', KEYS[1], 'phase')
if not phase then
  return redis.error_reply('ROOM_NOT_FOUND')
end
if phase ~= 'WAITING' then
  return redis.error_reply('WRONG_PHASE')
end
if redis.call('LLEN', KEYS[2]) > tonumber(ARGV[3]) then
  return redis.error_reply('INVALID_SETTINGS')
end
redis.call('HSET', KEYS[1], 'drawing_time', ARGV[1], 'total_rounds', ARGV[2], 'max_players', ARGV[3])
redis.call('EXPIRE', KEYS[1], ARGV[4])
return 1
`)

// submitRound stores a write-once round submission and credits the standings
// in the same step. Returns 1 written, 0 duplicate, -1 not accepting.
// KEYS[1] meta, KEYS[2] submissions hash, KEYS[3] standings zset
// ARGV[1] round, ARGV[2] identity, ARGV[3] payload, ARGV[4] score, ARGV[5] ttl
var submitRoundScript = redis.NewScript(`
local phase = redis.call('HGET', KEYS[1], 'phase')
if not phase then
  return redis.error_reply('ROOM_NOT_FOUND')
end
if phase ~= 'DRAWING' or redis.call('HGET', KEYS[1], 'current_round') ~= ARGV[1] then
  return -1
end
if redis.call('HSETNX', KEYS[2], ARGV[2], ARGV[3]) == 0 then
  return 0
end
redis.call('ZINCRBY', KEYS[3], ARGV[4], ARGV[2])
redis.call('EXPIRE', KEYS[2], ARGV[5])
redis.call('EXPIRE', KEYS[3], ARGV[5])
return 1
`)

// tickCountdown decrements a room's countdown hash and replies {n, phase}.
// The value 0 is returned to exactly one caller, at which point the entry is
// removed. -1 means the entry was already spent, -2 that it does not exist.
// KEYS[1] countdown, KEYS[2] countdown index
// ARGV[1] room id
var tickCountdownScript = redis.NewScript(`
local v = redis.call('HGET', KEYS[1], 'seconds')
if not v then
  redis.call('DEL', KEYS[1])
  redis.call('SREM', KEYS[2], ARGV[1])
  return {-2, ''}
end
local phase = redis.call('HGET', KEYS[1], 'phase') or ''
if tonumber(v) <= 0 then
  redis.call('DEL', KEYS[1])
  redis.call('SREM', KEYS[2], ARGV[1])
  return {-1, phase}
end
local n = redis.call('HINCRBY', KEYS[1], 'seconds', -1)
if n <= 0 then
  redis.call('DEL', KEYS[1])
  redis.call('SREM', KEYS[2], ARGV[1])
end
return {n, phase}
`)

// acquireLease takes or refreshes the scheduler leadership lease.
// KEYS[1] leader key
// ARGV[1] owner, ARGV[2] lease ms
var acquireLeaseScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur == ARGV[1] then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  return 1
end
if not cur then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
  return 1
end
return 0
`)

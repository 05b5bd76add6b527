package ledger

// reserveLua atomically reclaims expired reservations for this budget key,
// then admits or rejects a new reservation against the cap.
//
// KEYS[1] = day hash (fields: spent, reserved)
// KEYS[2] = expiry zset (member: reservation id, score: expiry unix ms)
// KEYS[3] = reservation amount hash (field: reservation id, value: amount)
// ARGV[1] = now (unix ms)
// ARGV[2] = new reservation id
// ARGV[3] = amount micros
// ARGV[4] = reservation ttl (ms)
// ARGV[5] = cap micros (the bare daily budget; the overrun slack is only
//           ever applied at commit time, never at reservation time)
//
// Returns {admitted (0/1), spent+reserved total after the operation,
// reclaimed count (stale reservations released by this call)}.
const reserveLua = `
local day_hash = KEYS[1]
local expiry_zset = KEYS[2]
local resv_hash = KEYS[3]
local now = tonumber(ARGV[1])
local resv_id = ARGV[2]
local amount = tonumber(ARGV[3])
local ttl_ms = tonumber(ARGV[4])
local cap = tonumber(ARGV[5])

local expired = redis.call('ZRANGEBYSCORE', expiry_zset, '-inf', now)
local reclaimed = 0
for _, id in ipairs(expired) do
  local amt = redis.call('HGET', resv_hash, id)
  if amt then
    redis.call('HINCRBY', day_hash, 'reserved', -tonumber(amt))
    redis.call('HDEL', resv_hash, id)
    reclaimed = reclaimed + 1
  end
  redis.call('ZREM', expiry_zset, id)
end

local spent = tonumber(redis.call('HGET', day_hash, 'spent') or '0')
local reserved = tonumber(redis.call('HGET', day_hash, 'reserved') or '0')

if spent + reserved + amount > cap then
  return {0, spent + reserved, reclaimed}
end

redis.call('HINCRBY', day_hash, 'reserved', amount)
redis.call('HSET', resv_hash, resv_id, amount)
redis.call('ZADD', expiry_zset, now + ttl_ms, resv_id)

return {1, spent + reserved + amount, reclaimed}
`

// commitLua releases a reservation's hold and records the actual spend.
// actual may exceed the amount originally reserved; the overage is admitted
// up to cap (daily budget * (1 + overrun slack)) and clamped beyond it, so a
// commit never fails the served response, it only flags an overrun.
//
// KEYS[1] = day hash, KEYS[2] = expiry zset, KEYS[3] = reservation amount hash
// ARGV[1] = reservation id, ARGV[2] = actual amount micros
// ARGV[3] = cap micros (daily budget * (1 + overrun slack))
//
// Returns {found (0/1), overrun (0/1)}. found=0 means the reservation was
// already resolved or expired, and no spend is recorded.
const commitLua = `
local day_hash = KEYS[1]
local expiry_zset = KEYS[2]
local resv_hash = KEYS[3]
local resv_id = ARGV[1]
local actual = tonumber(ARGV[2])
local cap = tonumber(ARGV[3])

local held = redis.call('HGET', resv_hash, resv_id)
if not held then
  return {0, 0}
end

redis.call('HINCRBY', day_hash, 'reserved', -tonumber(held))

local spent = tonumber(redis.call('HGET', day_hash, 'spent') or '0')
local new_spent = spent + actual
local overrun = 0
if new_spent > cap then
  new_spent = cap
  overrun = 1
end

redis.call('HSET', day_hash, 'spent', new_spent)
redis.call('HDEL', resv_hash, resv_id)
redis.call('ZREM', expiry_zset, resv_id)

return {1, overrun}
`

// refundLua releases a reservation's hold without recording any spend.
//
// KEYS[1] = day hash, KEYS[2] = expiry zset, KEYS[3] = reservation amount hash
// ARGV[1] = reservation id
//
// Returns 1 if the reservation existed, 0 if it was already resolved/expired.
const refundLua = `
local day_hash = KEYS[1]
local expiry_zset = KEYS[2]
local resv_hash = KEYS[3]
local resv_id = ARGV[1]

local held = redis.call('HGET', resv_hash, resv_id)
if not held then
  return 0
end

redis.call('HINCRBY', day_hash, 'reserved', -tonumber(held))
redis.call('HDEL', resv_hash, resv_id)
redis.call('ZREM', expiry_zset, resv_id)

return 1
`

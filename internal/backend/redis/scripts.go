package redis

import "github.com/redis/go-redis/v9"

// claimScript moves the oldest claimable id to the claimed list and marks
// the item hash in the same atomic step.
//
// KEYS: claimable list, claimed list
// ARGV: item key prefix, claimed_at timestamp
var claimScript = redis.NewScript(`
local id = redis.call('LMOVE', KEYS[1], KEYS[2], 'LEFT', 'RIGHT')
if not id then
  return false
end
redis.call('HSET', ARGV[1] .. id, 'state', 'CLAIMED', 'claimed_at', ARGV[2])
return id
`)

// claimFinishScript completes a blocking claim after BLMOVE. The LPOS check
// detects an orphan sweep that already returned the id to the claimable
// list, in which case the caller retries.
//
// KEYS: item key, claimed list
// ARGV: item id, claimed_at timestamp
var claimFinishScript = redis.NewScript(`
if redis.call('LPOS', KEYS[2], ARGV[1]) == false then
  return 0
end
redis.call('HSET', KEYS[1], 'state', 'CLAIMED', 'claimed_at', ARGV[2])
return 1
`)

// resolveScript finishes a claimed item. The state re-check inside the
// script is what gives the resolve/recover race a single winner.
//
// KEYS: item key, claimed list, stats hash
// ARGV: item id, outcome, resolved_at, failure kind, failure code, failure message
var resolveScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if state == false then
  return 'missing'
end
if state ~= 'CLAIMED' then
  return 'conflict'
end
redis.call('HSET', KEYS[1], 'state', ARGV[2], 'resolved_at', ARGV[3])
if ARGV[4] ~= '' then
  redis.call('HSET', KEYS[1],
    'failure_kind', ARGV[4], 'failure_code', ARGV[5], 'failure_message', ARGV[6])
end
redis.call('LREM', KEYS[2], 1, ARGV[1])
redis.call('HINCRBY', KEYS[3], ARGV[2], 1)
return 'ok'
`)

// recoverScript walks the claimed list and returns stale claims to the
// front of the claimable list, so FIFO selection picks them next. The walk
// runs newest claim first: each LPUSH prepends, so the oldest recovered id
// ends up at the head and claim order matches enqueue order again. Entries
// whose hash is still claimable mark a claim interrupted between BLMOVE and
// its finish step; they carry no timestamp and are recovered outright.
//
// KEYS: claimed list, claimable list
// ARGV: item key prefix, cutoff timestamp
var recoverScript = redis.NewScript(`
local ids = redis.call('LRANGE', KEYS[1], 0, -1)
local recovered = 0
for i = #ids, 1, -1 do
  local id = ids[i]
  local key = ARGV[1] .. id
  local state = redis.call('HGET', key, 'state')
  local claimed_at = redis.call('HGET', key, 'claimed_at')
  local stale = false
  if state == 'CLAIMABLE' then
    stale = true
  elseif state == 'CLAIMED' then
    if claimed_at == false or claimed_at == '' or claimed_at < ARGV[2] then
      stale = true
    end
  end
  if stale then
    redis.call('LREM', KEYS[1], 1, id)
    redis.call('LPUSH', KEYS[2], id)
    redis.call('HSET', key, 'state', 'CLAIMABLE')
    redis.call('HDEL', key, 'claimed_at')
    recovered = recovered + 1
  end
end
return recovered
`)

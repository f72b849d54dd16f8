package redis

// Redis key naming conventions for sluice data.
// All keys are prefixed with "sluice:" to avoid collisions.

const keyPrefix = "sluice:"

// ── Ledger keys ──

// activeKey returns the Sorted Set of a team's active job ids, scored by
// expiry: sluice:concurrency:team:{team}
func activeKey(teamID string) string { return keyPrefix + "concurrency:team:" + teamID }

// crawlActiveKey returns the Sorted Set of a crawl's active job ids:
// sluice:concurrency:crawl:{crawl}
func crawlActiveKey(crawlID string) string { return keyPrefix + "concurrency:crawl:" + crawlID }

// deferredKey returns the Sorted Set ordering a team's parked job ids:
// sluice:deferred:{team}
func deferredKey(teamID string) string { return keyPrefix + "deferred:" + teamID }

// deferredDataKey returns the Hash of a team's parked entries by job id:
// sluice:deferred:data:{team}
func deferredDataKey(teamID string) string { return keyPrefix + "deferred:data:" + teamID }

// deferredTeamsKey is the Set of teams with parked entries.
const deferredTeamsKey = keyPrefix + "deferred_teams"

// ── Crawl keys ──

// crawlKey returns the key for a crawl record: sluice:crawl:{id}
func crawlKey(crawlID string) string { return keyPrefix + "crawl:" + crawlID }

// ── Result keys ──

// resultKey returns the key for a job's result: sluice:result:{job_id}
func resultKey(jobID string) string { return keyPrefix + "result:" + jobID }

// ── Event keys ──

// eventKey returns the key for an event entity: sluice:event:{id}
func eventKey(eventID string) string { return keyPrefix + "event:" + eventID }

// eventStreamKey returns the Stream key for a channel: sluice:events:{channel}
func eventStreamKey(channel string) string { return keyPrefix + "events:" + channel }

// ── Dead-letter keys ──

// deadLetterKey returns the key for an entry: sluice:deadletter:{id}
func deadLetterKey(entryID string) string { return keyPrefix + "deadletter:" + entryID }

// deadLetterIdxKey is the Sorted Set of entry ids scored by failure time.
const deadLetterIdxKey = keyPrefix + "deadletter_idx"

// ── Notification keys ──

// notifyKey returns the last-sent key for a (team, kind) pair:
// sluice:notify:{team}:{kind}
func notifyKey(teamID, kind string) string { return keyPrefix + "notify:" + teamID + ":" + kind }

package redis

// Key layout. Item and attachment hashes are keyed by id alone so lookups
// work without knowing the owning queue; the hash itself records queue_name.
//
//	spool:q:<queue>:claimable  list of claimable ids, oldest at the left
//	spool:q:<queue>:claimed    list of currently claimed ids
//	spool:q:<queue>:seq        per-queue sequence counter
//	spool:q:<queue>:stats      terminal outcome counters
//	spool:item:<id>            item metadata hash
//	spool:files:<id>           attachment hash, name -> tier-tagged value
//	spool:schema               engine schema version
const (
	keyPrefix     = "spool"
	itemKeyPrefix = keyPrefix + ":item:"
	schemaKey     = keyPrefix + ":schema"
)

// schemaVersion is bumped whenever the key layout or hash fields change
// incompatibly.
const schemaVersion = 1

func claimableKey(queue string) string {
	return keyPrefix + ":q:" + queue + ":claimable"
}

func claimedKey(queue string) string {
	return keyPrefix + ":q:" + queue + ":claimed"
}

func seqKey(queue string) string {
	return keyPrefix + ":q:" + queue + ":seq"
}

func statsKey(queue string) string {
	return keyPrefix + ":q:" + queue + ":stats"
}

func itemKey(id string) string {
	return itemKeyPrefix + id
}

func filesKey(id string) string {
	return keyPrefix + ":files:" + id
}

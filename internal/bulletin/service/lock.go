package service

import (
	"sync"

	id "apb/pkg/domain"
)

// numRecordShards spreads per-bulletin locks across a fixed set of mutexes.
// Two bulletins that hash to the same shard serialize, which only costs
// throughput.
const numRecordShards = 128

// recordLocks serializes writes to the same bulletin from commit through
// publish, so every connection sees one bulletin's events in commit order.
type recordLocks struct {
	shards [numRecordShards]sync.Mutex
}

func (l *recordLocks) lock(bulletinID id.BulletinID) func() {
	m := &l.shards[shardFor(bulletinID)]
	m.Lock()
	return m.Unlock
}

// shardFor hashes the id bytes with FNV-1a.
func shardFor(bulletinID id.BulletinID) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for _, b := range bulletinID {
		h ^= uint32(b)
		h *= fnvPrime
	}
	return h % numRecordShards
}

package store

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/pebble"

	"talko/pkg/apperr"
)

// PurgeReport tallies one retention pass.
type PurgeReport struct {
	VersionsPurged int `json:"versions_purged"`
	TokensPurged   int `json:"tokens_purged"`
	Scanned        int `json:"scanned"`
}

// versionKeyTS extracts the timestamp from a version key's order suffix.
func versionKeyTS(key string) (int64, bool) {
	i := strings.LastIndex(key, ":")
	if i < 0 {
		return 0, false
	}
	suffix := key[i+1:]
	j := strings.IndexByte(suffix, '-')
	if j < 0 {
		return 0, false
	}
	ts, err := strconv.ParseInt(suffix[:j], 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}

// PurgeAged removes history that retention no longer has to keep: edit
// versions of hard-deleted messages older than cutoff, and idempotency
// tokens whose target message is gone or older than cutoff. Hard-delete
// tombstones themselves survive so ids stay burned. At most batchSize rows
// are deleted per call; dryRun counts without deleting.
func (s *Store) PurgeAged(cutoff int64, batchSize int, dryRun bool) (*PurgeReport, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	rep := &PurgeReport{}
	b := new(pebble.Batch)
	deletes := 0

	verKeys, err := s.ListKeys(versionPrefix)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeTransient, "retention scan failed", err)
	}
	for _, k := range verKeys {
		if deletes >= batchSize {
			break
		}
		rep.Scanned++
		ts, ok := versionKeyTS(k)
		if !ok || ts >= cutoff {
			continue
		}
		rest := strings.TrimPrefix(k, versionPrefix)
		id := rest[:strings.LastIndex(rest, ":")]
		latest, err := s.Get(id)
		if err != nil || !latest.HardDeleted {
			continue
		}
		rep.VersionsPurged++
		if !dryRun {
			_ = b.Delete([]byte(k), nil)
			deletes++
		}
	}

	dedupKeys, err := s.ListKeys(dedupPrefix)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeTransient, "retention scan failed", err)
	}
	for _, k := range dedupKeys {
		if deletes >= batchSize {
			break
		}
		rep.Scanned++
		v, ok, err := s.getRaw(k)
		if err != nil || !ok {
			continue
		}
		target, err := s.Get(string(v))
		if err == nil && target.CreatedAt >= cutoff && !target.HardDeleted {
			continue
		}
		rep.TokensPurged++
		if !dryRun {
			_ = b.Delete([]byte(k), nil)
			deletes++
		}
	}

	if dryRun || deletes == 0 {
		return rep, nil
	}
	if err := s.applyBatch(b); err != nil {
		return nil, apperr.Wrap(apperr.CodeTransient, "retention delete failed", err)
	}
	return rep, nil
}

package store

import (
	"strings"

	"talko/pkg/apperr"
)

// Stats summarizes row counts per namespace for the admin surface.
type Stats struct {
	Conversations int `json:"conversations"`
	Messages      int `json:"messages"`
	Versions      int `json:"versions"`
	FriendEdges   int `json:"friend_edges"`
	DedupTokens   int `json:"dedup_tokens"`
}

// CollectStats scans the keyspace and tallies rows. Full scans are fine at
// the scale this serves; the admin surface is not a hot path.
func (s *Store) CollectStats() (*Stats, error) {
	out := &Stats{}
	for _, scan := range []struct {
		prefix string
		count  func(key string)
	}{
		{convPrefix, func(k string) {
			if strings.HasSuffix(k, ":meta") {
				out.Conversations++
			} else {
				out.Messages++
			}
		}},
		{versionPrefix, func(string) { out.Versions++ }},
		{friendPrefix, func(string) { out.FriendEdges++ }},
		{dedupPrefix, func(string) { out.DedupTokens++ }},
	} {
		keys, err := s.ListKeys(scan.prefix)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeTransient, "stats scan failed", err)
		}
		for _, k := range keys {
			scan.count(k)
		}
	}
	return out, nil
}

package state

import (
	"fmt"
	"os"
	"sort"

	"github.com/yanun0323/errors"

	"exchange/internal/journal"
	"exchange/pkg/exception"
)

// Entry names one snapshot file.
type Entry struct {
	StateID int64
	Shard   journal.ShardID
}

func fileName(stateID int64, shard journal.ShardID) string {
	return fmt.Sprintf("snapshot-%d-%s-%d.json", stateID, shard.Kind, shard.Index)
}

func parseFileName(name string) (Entry, bool) {
	var (
		e    Entry
		kind string
	)
	n, err := fmt.Sscanf(name, "snapshot-%d-%s", &e.StateID, &kind)
	if err != nil || n != 2 {
		return Entry{}, false
	}
	for _, k := range []journal.ShardKind{journal.ShardRisk, journal.ShardMatching} {
		var idx int
		if _, err := fmt.Sscanf(kind, k.String()+"-%d.json", &idx); err == nil {
			e.Shard = journal.ShardID{Kind: k, Index: idx}
			return e, fileName(e.StateID, e.Shard) == name
		}
	}
	return Entry{}, false
}

// List returns every snapshot file in dir ordered by state id, then
// shard.
func List(dir string) ([]Entry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read snapshot dir")
	}
	var out []Entry
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if e, ok := parseFileName(entry.Name()); ok {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StateID != out[j].StateID {
			return out[i].StateID < out[j].StateID
		}
		if out[i].Shard.Kind != out[j].Shard.Kind {
			return out[i].Shard.Kind < out[j].Shard.Kind
		}
		return out[i].Shard.Index < out[j].Shard.Index
	})
	return out, nil
}

// LatestComplete returns the highest state id that has a snapshot for
// every risk and matching shard.
func LatestComplete(dir string, riskShards, matchingShards int) (int64, error) {
	entries, err := List(dir)
	if err != nil {
		return 0, err
	}
	count := make(map[int64]int)
	for _, e := range entries {
		switch e.Shard.Kind {
		case journal.ShardRisk:
			if e.Shard.Index < riskShards {
				count[e.StateID]++
			}
		case journal.ShardMatching:
			if e.Shard.Index < matchingShards {
				count[e.StateID]++
			}
		}
	}
	best := int64(0)
	found := false
	for id, n := range count {
		if n == riskShards+matchingShards && (!found || id > best) {
			best, found = id, true
		}
	}
	if !found {
		return 0, errors.Wrapf(exception.ErrStateNotFound, "no complete snapshot in %s", dir)
	}
	return best, nil
}

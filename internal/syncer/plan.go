package syncer

import (
	"path"
	"sort"

	"github.com/franz/djsync/internal/collection"
	"github.com/franz/djsync/internal/datectx"
	"github.com/franz/djsync/internal/util"
)

// Batch is the set of mappings sharing one date context
type Batch struct {
	Context   string
	Timestamp int64
	Mappings  []collection.FileMapping
}

// Dir returns the destination directory of the batch's last mapping
func (b *Batch) Dir() string {
	if len(b.Mappings) == 0 {
		return ""
	}
	return path.Dir(b.Mappings[len(b.Mappings)-1].Dest)
}

type keyedMapping struct {
	mapping   collection.FileMapping
	context   string
	timestamp int64
}

func keyMappings(mappings []collection.FileMapping) ([]keyedMapping, error) {
	keyed := make([]keyedMapping, len(mappings))
	for i, m := range mappings {
		c, ok := datectx.Extract(m.Dest)
		if !ok {
			return nil, &ValidationError{Path: m.Dest, Reason: "no date context in destination"}
		}
		ts, err := datectx.ToTimestamp(c.Value)
		if err != nil {
			return nil, &ValidationError{Path: m.Dest, Reason: err.Error()}
		}
		keyed[i] = keyedMapping{mapping: m, context: c.Value, timestamp: ts}
	}
	return keyed, nil
}

// SortMappings returns the mappings stably ordered by the timestamp of their
// destination date context. The input is not modified.
func SortMappings(mappings []collection.FileMapping) ([]collection.FileMapping, error) {
	keyed, err := keyMappings(mappings)
	if err != nil {
		return nil, err
	}
	sortKeyed(keyed)

	sorted := make([]collection.FileMapping, len(keyed))
	for i, k := range keyed {
		sorted[i] = k.mapping
	}
	return sorted, nil
}

func sortKeyed(keyed []keyedMapping) {
	sort.SliceStable(keyed, func(i, j int) bool {
		return keyed[i].timestamp < keyed[j].timestamp
	})
}

// ParseEndDate accepts a date context ("2025/10 october/09") or an ISO date
// ("2025-10-09") and returns its UTC midnight timestamp
func ParseEndDate(endDate string) (int64, error) {
	context := endDate
	if _, ok := datectx.Extract(endDate); !ok {
		built, err := datectx.BuildPath(endDate)
		if err != nil {
			return 0, &ValidationError{Reason: "invalid end date '" + endDate + "'"}
		}
		context = built
	}
	ts, err := datectx.ToTimestamp(context)
	if err != nil {
		return 0, &ValidationError{Reason: "invalid end date '" + endDate + "': " + err.Error()}
	}
	return ts, nil
}

// Plan sorts the mappings, drops those dated after endDate (when set) and
// groups consecutive mappings sharing a date context into batches. It has no
// side effects. The second return value counts the mappings dropped by the
// end date.
func Plan(mappings []collection.FileMapping, endDate string) ([]Batch, int, error) {
	keyed, err := keyMappings(mappings)
	if err != nil {
		return nil, 0, err
	}
	sortKeyed(keyed)

	skipped := 0
	if endDate != "" {
		end, err := ParseEndDate(endDate)
		if err != nil {
			return nil, 0, err
		}
		kept := keyed[:0:0]
		for _, k := range keyed {
			if k.timestamp > end {
				util.DebugLog("Skipping mapping with date context '%s' (after end date '%s')", k.context, endDate)
				skipped++
				continue
			}
			kept = append(kept, k)
		}
		util.InfoLog("Filtered mappings from %d to %d based on end date '%s'", len(keyed), len(kept), endDate)
		keyed = kept
	}

	var batches []Batch
	for _, k := range keyed {
		if n := len(batches); n > 0 && batches[n-1].Context == k.context {
			batches[n-1].Mappings = append(batches[n-1].Mappings, k.mapping)
			continue
		}
		batches = append(batches, Batch{
			Context:   k.context,
			Timestamp: k.timestamp,
			Mappings:  []collection.FileMapping{k.mapping},
		})
	}
	return batches, skipped, nil
}

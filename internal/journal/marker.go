package journal

import (
	"github.com/yanun0323/errors"

	"exchange/internal/schema"
	"exchange/pkg/exception"
)

// IsMarker reports whether rec is a persist record of stateID.
func IsMarker(rec *schema.Command, stateID int64) bool {
	return rec.Kind.IsPersist() && rec.StateID == stateID
}

// After trims batches to the records that follow the first persist
// marker of stateID. It returns the marker sequence and the remaining
// batches. Records after the marker must be gap-free; a gap is reported
// as exception.ErrSequenceGap.
func After(batches []Batch, stateID int64) (int64, []Batch, error) {
	marker := int64(-1)
	var out []Batch
	for _, b := range batches {
		recs := b.Records
		if marker < 0 {
			idx := -1
			for i := range recs {
				if IsMarker(&recs[i], stateID) {
					idx = i
					break
				}
			}
			if idx < 0 {
				continue
			}
			marker = recs[idx].Seq
			recs = recs[idx+1:]
		}
		if len(recs) == 0 {
			continue
		}
		out = append(out, Batch{
			ID:       b.ID,
			FirstSeq: recs[0].Seq,
			LastSeq:  recs[len(recs)-1].Seq,
			Records:  recs,
		})
	}
	if marker < 0 {
		return 0, nil, errors.Wrapf(exception.ErrStateNotFound, "state %d", stateID)
	}

	expect := marker + 1
	for _, b := range out {
		for i := range b.Records {
			if b.Records[i].Seq != expect {
				return 0, nil, errors.Wrapf(exception.ErrSequenceGap, "batch %d: seq %d, want %d", b.ID, b.Records[i].Seq, expect)
			}
			expect++
		}
	}
	return marker, out, nil
}

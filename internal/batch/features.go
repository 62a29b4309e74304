package batch

import (
	"math"
	"sort"
	"time"

	"github.com/veridoc/harrier/internal/domain"
)

// record aliases the domain transaction type locally to keep signatures short.
type record = domain.TransactionRecord

// rowFeatures holds the engineered features for one parsed row, consumed by
// the anomaly scorer and the rule cascade activation.
type rowFeatures struct {
	idx int // position in the parsed record slice

	zGlobal          float64
	zEntity          float64
	hour             int
	isRound          bool
	velocity         int
	entityTxnCount   int
	duplicateCount   int
	countryChanged   bool
	secondsSincePrev int64 // -1 when the entity has no prior row
	gapDays          float64
	homeCountry      string
}

const duplicateWindow = 5 * time.Minute

// engineerFeatures derives the per-row feature set. All statistics are
// computed within the batch; two identical batches always produce identical
// features.
func engineerFeatures(records []record, velocityWindow time.Duration) []rowFeatures {
	features := make([]rowFeatures, len(records))

	globalMean, globalStd := amountStats(records, nil)

	// Per-entity row sequences ordered by time, then input order. Rows
	// without an entity get no sequence features.
	byEntity := make(map[string][]int)
	for i, r := range records {
		if r.EntityID == "" {
			continue
		}
		byEntity[r.EntityID] = append(byEntity[r.EntityID], i)
	}
	for _, seq := range byEntity {
		sort.SliceStable(seq, func(a, b int) bool {
			ta, tb := records[seq[a]].Timestamp, records[seq[b]].Timestamp
			if !ta.Equal(tb) {
				return ta.Before(tb)
			}
			return seq[a] < seq[b]
		})
	}

	for i, r := range records {
		f := rowFeatures{
			idx:              i,
			hour:             r.Timestamp.Hour(),
			isRound:          r.Amount > 0 && math.Mod(r.Amount, 100) == 0,
			secondsSincePrev: -1,
		}

		if globalStd > 0 {
			f.zGlobal = math.Abs(r.Amount-globalMean) / globalStd
		}
		f.zEntity = f.zGlobal

		if seq, ok := byEntity[r.EntityID]; ok {
			f.entityTxnCount = len(seq)
			f.homeCountry = modalCountry(records, seq)
			f.countryChanged, f.secondsSincePrev, f.gapDays = sequencePosition(records, seq, i)
			f.velocity = countWithin(records, seq, i, velocityWindow, false)
			f.duplicateCount = countWithin(records, seq, i, duplicateWindow, true)

			// Entity-local z only once the entity has enough rows to
			// carry a distribution of its own.
			if len(seq) >= 3 {
				mean, std := amountStats(records, seq)
				if std > 0 {
					f.zEntity = math.Abs(r.Amount-mean) / std
				} else if r.Amount != mean {
					f.zEntity = 3.0
				} else {
					f.zEntity = 0
				}
			}
		}

		features[i] = f
	}
	return features
}

// sequencePosition finds the row's predecessor in its entity sequence and
// derives the transition features.
func sequencePosition(records []record, seq []int, idx int) (countryChanged bool, secondsSincePrev int64, gapDays float64) {
	secondsSincePrev = -1
	prev := -1
	for pos, ri := range seq {
		if ri == idx {
			if pos > 0 {
				prev = seq[pos-1]
			}
			break
		}
	}
	if prev < 0 {
		return false, -1, 0
	}

	cur, before := records[idx], records[prev]
	delta := cur.Timestamp.Sub(before.Timestamp)
	secondsSincePrev = int64(delta / time.Second)
	gapDays = delta.Hours() / 24
	countryChanged = cur.Country != "" && before.Country != "" && cur.Country != before.Country
	return countryChanged, secondsSincePrev, gapDays
}

// countWithin counts the entity's rows inside the window ending at the given
// row, the row itself included. With matching=true only rows with the same
// amount and merchant count, and the row itself is excluded.
func countWithin(records []record, seq []int, idx int, window time.Duration, matching bool) int {
	cur := records[idx]
	cutoff := cur.Timestamp.Add(-window)

	n := 0
	for _, ri := range seq {
		r := records[ri]
		if r.Timestamp.After(cur.Timestamp) {
			continue
		}
		if r.Timestamp.Before(cutoff) {
			continue
		}
		if matching {
			if ri == idx {
				continue
			}
			if r.Amount == cur.Amount && r.Merchant == cur.Merchant {
				n++
			}
			continue
		}
		n++
	}
	return n
}

// amountStats returns the population mean and standard deviation of the
// amounts, over all records or the indexed subset.
func amountStats(records []record, subset []int) (mean, std float64) {
	n := len(records)
	if subset != nil {
		n = len(subset)
	}
	if n == 0 {
		return 0, 0
	}

	at := func(i int) float64 {
		if subset != nil {
			return records[subset[i]].Amount
		}
		return records[i].Amount
	}

	sum := 0.0
	for i := 0; i < n; i++ {
		sum += at(i)
	}
	mean = sum / float64(n)

	variance := 0.0
	for i := 0; i < n; i++ {
		d := at(i) - mean
		variance += d * d
	}
	variance /= float64(n)
	return mean, math.Sqrt(variance)
}

// modalCountry returns the entity's most frequent country in the batch,
// breaking frequency ties lexicographically so the result is stable.
func modalCountry(records []record, seq []int) string {
	counts := make(map[string]int)
	for _, ri := range seq {
		if c := records[ri].Country; c != "" {
			counts[c]++
		}
	}
	best, bestN := "", 0
	for c, n := range counts {
		if n > bestN || (n == bestN && c < best) {
			best, bestN = c, n
		}
	}
	return best
}

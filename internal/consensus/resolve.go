// Package consensus picks the most frequent reading out of repeated OCR
// frames. Misreads are discrete (a dropped decimal point, a swapped digit),
// so the mode is used instead of the mean.
package consensus

import "math"

// Filter decides whether a reading takes part in consensus.
type Filter func(v float64) bool

// DefaultFilter keeps readings strictly between 0.1 and 100.
func DefaultFilter(v float64) bool {
	return v > 0.1 && v < 100
}

// Result is a resolved value with its support.
type Result struct {
	Value float64 `json:"value"`
	Votes int     `json:"votes"`
	Total int     `json:"total"`
}

// Vote filters the readings and returns the mode together with how many
// readings agreed. Readings are grouped by their value rounded to one decimal.
// When two groups are equally frequent the one seen first wins, and the
// returned value is the first reading of the winning group.
func Vote(readings []float64, filter Filter) (Result, bool) {
	if filter == nil {
		filter = DefaultFilter
	}

	type bucket struct {
		first float64
		count int
	}

	var order []int64
	buckets := make(map[int64]*bucket)
	total := 0
	for _, v := range readings {
		if !filter(v) {
			continue
		}
		total++

		key := int64(math.Round(v * 10))
		if b, ok := buckets[key]; ok {
			b.count++
			continue
		}
		buckets[key] = &bucket{first: v, count: 1}
		order = append(order, key)
	}

	if total == 0 {
		return Result{}, false
	}

	best := buckets[order[0]]
	for _, key := range order[1:] {
		if b := buckets[key]; b.count > best.count {
			best = b
		}
	}

	return Result{Value: best.first, Votes: best.count, Total: total}, true
}

// Resolve returns the consensus value of readings. A single plausible
// reading is returned as is.
func Resolve(readings []float64, filter Filter) (float64, bool) {
	r, ok := Vote(readings, filter)
	return r.Value, ok
}

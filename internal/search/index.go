package search

import "sort"

// lengthBucketIndex groups keys by len(key) / width so that fuzzy comparison
// can skip keys whose length makes a high score impossible.
type lengthBucketIndex struct {
	width     int
	buckets   map[int][]string
	bucketIDs []int // ascending
}

func newLengthBucketIndex(keys []string, width int) *lengthBucketIndex {
	idx := &lengthBucketIndex{width: width, buckets: make(map[int][]string)}
	for _, k := range keys {
		id := len(k) / width
		idx.buckets[id] = append(idx.buckets[id], k)
	}
	idx.bucketIDs = make([]int, 0, len(idx.buckets))
	for id := range idx.buckets {
		idx.bucketIDs = append(idx.bucketIDs, id)
	}
	sort.Ints(idx.bucketIDs)
	return idx
}

// candidatesByLength returns the union of buckets covering
// [queryLen*(1-tolerance), queryLen*(1+tolerance)].
func (idx *lengthBucketIndex) candidatesByLength(queryLen int, tolerance float64) []string {
	minLen := int(float64(queryLen) * (1 - tolerance))
	maxLen := int(float64(queryLen) * (1 + tolerance))
	minBucket := minLen / idx.width
	maxBucket := maxLen / idx.width

	var out []string
	for _, id := range idx.bucketIDs {
		if id < minBucket {
			continue
		}
		if id > maxBucket {
			break
		}
		out = append(out, idx.buckets[id]...)
	}
	return out
}

// prefixIndex groups keys by their first prefixLen bytes.
type prefixIndex struct {
	prefixLen int
	index     map[string][]string
}

func newPrefixIndex(keys []string, prefixLen int) *prefixIndex {
	idx := &prefixIndex{prefixLen: prefixLen, index: make(map[string][]string)}
	for _, k := range keys {
		if len(k) >= prefixLen {
			p := k[:prefixLen]
			idx.index[p] = append(idx.index[p], k)
		}
	}
	return idx
}

// byPrefix returns all keys sharing the query's prefix bucket. Callers still
// need to filter for true prefix matches.
func (idx *prefixIndex) byPrefix(query string) []string {
	if len(query) < idx.prefixLen {
		return nil
	}
	return idx.index[query[:idx.prefixLen]]
}

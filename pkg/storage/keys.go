package storage

import "fmt"

// Key layout: every market's state lives under "market:{id}:...", with
// the per-outcome orderbooks one level below. Keys from different
// markets never share a prefix, so prefix scans stay scoped.

func marketMetaKey(marketID uint64) []byte {
	return []byte(fmt.Sprintf("market:%d:meta", marketID))
}

func marketOrderbookKey(marketID, outcome uint64) []byte {
	return []byte(fmt.Sprintf("market:%d:orderbooks:%d", marketID, outcome))
}

func marketOrderbookPrefix(marketID uint64) []byte {
	return []byte(fmt.Sprintf("market:%d:orderbooks:", marketID))
}

func marketPrefixAll() []byte {
	return []byte("market:")
}

// upperBound returns the exclusive upper bound for a prefix scan.
func upperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // prefix is all 0xff, unbounded
}

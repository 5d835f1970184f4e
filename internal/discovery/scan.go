package discovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/docsql/internal/native"
)

// DefaultSampleSize is used when Options.SampleSize is not positive.
const DefaultSampleSize = 1000

// ScanMethod selects which documents discovery samples.
type ScanMethod string

const (
	// ScanForward samples the first n documents by _id.
	ScanForward ScanMethod = "forward"
	// ScanReverse samples the last n documents by _id.
	ScanReverse ScanMethod = "reverse"
	// ScanFull reads every document; the sample size is ignored.
	ScanFull ScanMethod = "full"
	// ScanRandom draws n documents at random.
	ScanRandom ScanMethod = "random"
)

// ParseScanMethod resolves a scan method name, case-insensitively.
// The empty string selects ScanForward.
func ParseScanMethod(s string) (ScanMethod, error) {
	switch m := ScanMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ScanForward, nil
	case ScanForward, ScanReverse, ScanFull, ScanRandom:
		return m, nil
	}
	return "", fmt.Errorf("unknown scan method %q (want forward, reverse, full or random)", s)
}

// ScanStrategy opens the document stream discovery reads.
type ScanStrategy interface {
	Open(ctx context.Context, coll native.Collection, n int64) (native.Iterator, error)
}

// StrategyFor returns the strategy implementing m. Unknown methods fall
// back to a forward scan.
func StrategyFor(m ScanMethod) ScanStrategy {
	switch m {
	case ScanReverse:
		return sortedScan{order: native.Descending}
	case ScanFull:
		return fullScan{}
	case ScanRandom:
		return randomScan{}
	default:
		return sortedScan{order: native.Ascending}
	}
}

type sortedScan struct {
	order native.SortOrder
}

func (s sortedScan) Open(ctx context.Context, coll native.Collection, n int64) (native.Iterator, error) {
	return coll.Find(ctx, native.FindOptions{Sort: s.order, Limit: n})
}

type fullScan struct{}

func (fullScan) Open(ctx context.Context, coll native.Collection, _ int64) (native.Iterator, error) {
	return coll.Find(ctx, native.FindOptions{Sort: native.Natural})
}

type randomScan struct{}

func (randomScan) Open(ctx context.Context, coll native.Collection, n int64) (native.Iterator, error) {
	return coll.Sample(ctx, n)
}

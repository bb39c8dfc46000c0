package inspect

import (
	"fmt"
	"math"
	"strconv"
)

// Bucket is the latency class of a request.
type Bucket string

const (
	BucketNormal   Bucket = "normal"
	BucketWarning  Bucket = "warning"
	BucketCritical Bucket = "critical"
)

// Latency thresholds in milliseconds.
const (
	WarningThresholdMs  = 300
	CriticalThresholdMs = 700
)

// BucketOf classifies a duration: [0,300) normal, [300,700] warning, above 700 critical.
func BucketOf(durationMs float64) Bucket {
	switch {
	case durationMs > CriticalThresholdMs:
		return BucketCritical
	case durationMs >= WarningThresholdMs:
		return BucketWarning
	default:
		return BucketNormal
	}
}

// Slow reports whether the bucket exempts a row from filtering.
func (b Bucket) Slow() bool {
	return b == BucketWarning || b == BucketCritical
}

// FormatDuration renders milliseconds as "1.500 s" from one second up and as
// whole "250 ms" below.
func FormatDuration(durationMs float64) string {
	if durationMs >= 1000 {
		return fmt.Sprintf("%.3f s", durationMs/1000)
	}
	return strconv.FormatFloat(math.Round(durationMs), 'f', 0, 64) + " ms"
}

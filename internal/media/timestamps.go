package media

import "strconv"

// ThumbnailPolicy controls where in a video thumbnails are taken.
// Percentages are of the video duration.
type ThumbnailPolicy struct {
	Count           int
	StartPercentage float64
	EndPercentage   float64
}

// unknownDurationStep spaces seeks, in seconds, when the duration could
// not be probed. Seeks past the end fail individually and are skipped.
const unknownDurationStep = 10.0

// Timestamps returns the seek positions, in seconds, for a video of the
// given duration. A count of one or less yields the middle of the video.
// Without a duration the positions start at zero and advance by a fixed
// step.
func (p ThumbnailPolicy) Timestamps(duration float64) []string {
	if duration <= 0 {
		out := make([]string, max(p.Count, 1))
		for i := range out {
			out[i] = formatSeconds(float64(i) * unknownDurationStep)
		}
		return out
	}
	if p.Count <= 1 {
		return []string{formatSeconds(duration / 2)}
	}
	return GenerateTimestampsAtIntervals(p.Count, duration, p.StartPercentage, p.EndPercentage)
}

// GenerateTimestampsAtIntervals spreads count timestamps evenly over the
// window [start%, end%) of duration. For count 4 over 100 seconds with the
// full window the result is 0, 25, 50 and 75.
func GenerateTimestampsAtIntervals(count int, duration, start, end float64) []string {
	if count <= 0 {
		return nil
	}
	step := (end - start) / float64(count)

	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		pct := start + float64(i)*step
		out = append(out, formatSeconds(pct/100*duration))
	}
	return out
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Package interval implements merge, subtract and clip over half-open time ranges.
package interval

import (
	"sort"
	"time"
)

// Interval is the half-open range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// New builds an interval without validating order.
func New(start, end time.Time) Interval {
	return Interval{Start: start, End: end}
}

// Empty reports whether the interval holds no instant.
func (i Interval) Empty() bool {
	return !i.Start.Before(i.End)
}

// Overlaps reports whether the two ranges share at least one instant.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Contains reports whether o lies fully inside i.
func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

// Duration is End - Start.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// In converts both bounds to loc.
func (i Interval) In(loc *time.Location) Interval {
	return Interval{Start: i.Start.In(loc), End: i.End.In(loc)}
}

// Merge sorts by start and coalesces overlapping or touching intervals.
// Empty intervals are dropped.
func Merge(list []Interval) []Interval {
	if len(list) == 0 {
		return nil
	}

	sorted := make([]Interval, 0, len(list))
	for _, iv := range list {
		if !iv.Empty() {
			sorted = append(sorted, iv)
		}
	}
	if len(sorted) == 0 {
		return nil
	}
	sort.Slice(sorted, func(a, b int) bool {
		return sorted[a].Start.Before(sorted[b].Start)
	})

	merged := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// Subtract cuts every interval of remove out of source. The result is merged and ordered.
func Subtract(source, remove []Interval) []Interval {
	src := Merge(source)
	if len(src) == 0 {
		return nil
	}
	cuts := Merge(remove)
	if len(cuts) == 0 {
		return src
	}

	var out []Interval
	for _, iv := range src {
		cursor := iv.Start
		for _, cut := range cuts {
			if !cut.End.After(cursor) || !cut.Start.Before(iv.End) {
				continue
			}
			if cut.Start.After(cursor) {
				out = append(out, Interval{Start: cursor, End: cut.Start})
			}
			if cut.End.After(cursor) {
				cursor = cut.End
			}
			if !cursor.Before(iv.End) {
				break
			}
		}
		if cursor.Before(iv.End) {
			out = append(out, Interval{Start: cursor, End: iv.End})
		}
	}
	return out
}

// Clip intersects iv with bound. ok is false when nothing remains.
func Clip(iv, bound Interval) (Interval, bool) {
	start := iv.Start
	if bound.Start.After(start) {
		start = bound.Start
	}
	end := iv.End
	if bound.End.Before(end) {
		end = bound.End
	}
	if !start.Before(end) {
		return Interval{}, false
	}
	return Interval{Start: start, End: end}, true
}

// Intersect clips every interval in list to bound.
func Intersect(list []Interval, bound Interval) []Interval {
	var out []Interval
	for _, iv := range list {
		if c, ok := Clip(iv, bound); ok {
			out = append(out, c)
		}
	}
	return Merge(out)
}

// Union merges two lists.
func Union(a, b []Interval) []Interval {
	all := make([]Interval, 0, len(a)+len(b))
	all = append(all, a...)
	all = append(all, b...)
	return Merge(all)
}

// ContainedIn reports whether some interval of list fully contains iv.
func ContainedIn(list []Interval, iv Interval) bool {
	for _, candidate := range list {
		if candidate.Contains(iv) {
			return true
		}
	}
	return false
}

// AnyOverlap reports whether iv overlaps any interval of list.
func AnyOverlap(list []Interval, iv Interval) bool {
	for _, candidate := range list {
		if candidate.Overlaps(iv) {
			return true
		}
	}
	return false
}

package main

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"
)

// Stats collects the outcome of one kind of request.
type Stats struct {
	mu          sync.Mutex
	name        string
	total       int64
	transport   int64
	latencies   []time.Duration
	statusCodes map[int]int64
}

func NewStats(name string) *Stats {
	return &Stats{
		name:        name,
		latencies:   make([]time.Duration, 0, 1<<16),
		statusCodes: make(map[int]int64),
	}
}

// Record counts one request. statusCode is ignored when err is set.
func (s *Stats) Record(duration time.Duration, statusCode int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if err != nil {
		s.transport++
		return
	}
	s.statusCodes[statusCode]++
	s.latencies = append(s.latencies, duration)
}

// Summary is a point-in-time view of Stats.
type Summary struct {
	Name        string
	Total       int64
	Success     int64
	Conflicts   int64
	Errors      int64
	P50         time.Duration
	P95         time.Duration
	P99         time.Duration
	Max         time.Duration
	StdDev      time.Duration
	StatusCodes map[int]int64
}

func (s *Stats) Summary() Summary {
	s.mu.Lock()
	latencies := append([]time.Duration(nil), s.latencies...)
	sum := Summary{Name: s.name, Total: s.total, Errors: s.transport, StatusCodes: make(map[int]int64, len(s.statusCodes))}
	for code, n := range s.statusCodes {
		sum.StatusCodes[code] = n
		switch {
		case code >= 200 && code < 300:
			sum.Success += n
		case code == 409:
			sum.Conflicts += n
		default:
			sum.Errors += n
		}
	}
	s.mu.Unlock()

	if len(latencies) == 0 {
		return sum
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	sum.P50 = percentile(latencies, 50)
	sum.P95 = percentile(latencies, 95)
	sum.P99 = percentile(latencies, 99)
	sum.Max = latencies[len(latencies)-1]

	var total time.Duration
	for _, l := range latencies {
		total += l
	}
	avg := float64(total) / float64(len(latencies))
	var sq float64
	for _, l := range latencies {
		d := float64(l) - avg
		sq += d * d
	}
	sum.StdDev = time.Duration(math.Sqrt(sq / float64(len(latencies))))
	return sum
}

func (sum Summary) Print(w io.Writer, elapsed time.Duration) {
	fmt.Fprintf(w, "=== %s ===\n", sum.Name)
	fmt.Fprintf(w, "Requests:   %d (%.1f/s)\n", sum.Total, float64(sum.Total)/elapsed.Seconds())
	fmt.Fprintf(w, "Success:    %d\n", sum.Success)
	fmt.Fprintf(w, "Conflicts:  %d\n", sum.Conflicts)
	fmt.Fprintf(w, "Errors:     %d\n", sum.Errors)
	if sum.Total > 0 {
		fmt.Fprintf(w, "P50/P95/P99: %s / %s / %s (max %s, stddev %s)\n", sum.P50, sum.P95, sum.P99, sum.Max, sum.StdDev)
	}
	codes := make([]int, 0, len(sum.StatusCodes))
	for code := range sum.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, sum.StatusCodes[code])
	}
	fmt.Fprintln(w)
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}

package ingest

import "sort"

// runStats accumulates per-file aggregates while rows stream by.
type runStats struct {
	minDate, maxDate string
	sets             map[string]map[string]struct{}
	totals           map[string]int64
}

func newRunStats() *runStats {
	return &runStats{
		sets:   make(map[string]map[string]struct{}),
		totals: make(map[string]int64),
	}
}

func (s *runStats) date(d string) {
	if s.minDate == "" || d < s.minDate {
		s.minDate = d
	}
	if d > s.maxDate {
		s.maxDate = d
	}
}

// add records v in the named distinct set; empty and nil values are ignored.
func (s *runStats) add(set string, v string) {
	if v == "" {
		return
	}
	m, ok := s.sets[set]
	if !ok {
		m = make(map[string]struct{})
		s.sets[set] = m
	}
	m[v] = struct{}{}
}

func (s *runStats) addPtr(set string, v *string) {
	if v != nil {
		s.add(set, *v)
	}
}

func (s *runStats) sum(metric string, v int64) {
	s.totals[metric] += v
}

func (s *runStats) values(set string) []string {
	m := s.sets[set]
	out := make([]string, 0, len(m))
	for v := range m {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (s *runStats) apply(res *Result) {
	res.DateStart = s.minDate
	res.DateEnd = s.maxDate
	if len(s.sets) > 0 {
		res.Distinct = make(map[string][]string, len(s.sets))
		for name := range s.sets {
			res.Distinct[name] = s.values(name)
		}
	}
	if len(s.totals) > 0 {
		res.Totals = make(map[string]int64, len(s.totals))
		for k, v := range s.totals {
			res.Totals[k] = v
		}
	}
}

func (res *Result) setRate(name string, v float64) {
	if res.Rates == nil {
		res.Rates = make(map[string]float64)
	}
	res.Rates[name] = v
}

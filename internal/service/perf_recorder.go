package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"sitekit/internal/cache"
	"sitekit/internal/domain"
	"sitekit/internal/kvstore"
)

const (
	maxPerformanceMetrics = 100
	perfSummaryTTL        = time.Minute
)

type MetricSummary struct {
	Name  string        `json:"name"`
	Count int           `json:"count"`
	Avg   time.Duration `json:"avg"`
	Max   time.Duration `json:"max"`
}

// PerfRecorder guarda tiempos por nombre en performance_metrics del origen.
type PerfRecorder struct {
	store *kvstore.Store
	cache *cache.TTL[[]MetricSummary]
	now   func() time.Time
}

// NewPerfRecorder comparte el cache entre origenes; la clave incluye el prefijo del store.
func NewPerfRecorder(store *kvstore.Store, summaries *cache.TTL[[]MetricSummary]) *PerfRecorder {
	if summaries == nil {
		summaries = cache.NewTTL[[]MetricSummary]()
	}
	return &PerfRecorder{
		store: store,
		cache: summaries,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (p *PerfRecorder) Record(ctx context.Context, name string, d time.Duration) error {
	name = strings.TrimSpace(name)
	if name == "" || d < 0 {
		return nil
	}
	metric := domain.PerformanceMetric{Name: name, Duration: d, RecordedAt: p.now()}
	return p.store.AppendCapped(ctx, domain.KeyPerformanceMetrics, metric, maxPerformanceMetrics)
}

// Summary agrega por nombre. El resultado se memoiza un minuto.
func (p *PerfRecorder) Summary(ctx context.Context) ([]MetricSummary, error) {
	key := p.store.Prefix() + domain.KeyPerformanceMetrics
	if cached, ok := p.cache.Get(key); ok {
		return cached, nil
	}

	var metrics []domain.PerformanceMetric
	if _, err := p.store.Get(ctx, domain.KeyPerformanceMetrics, &metrics); err != nil {
		return nil, err
	}

	byName := make(map[string]*MetricSummary)
	totals := make(map[string]time.Duration)
	for _, m := range metrics {
		s, ok := byName[m.Name]
		if !ok {
			s = &MetricSummary{Name: m.Name}
			byName[m.Name] = s
		}
		s.Count++
		totals[m.Name] += m.Duration
		if m.Duration > s.Max {
			s.Max = m.Duration
		}
	}

	out := make([]MetricSummary, 0, len(byName))
	for name, s := range byName {
		s.Avg = totals[name] / time.Duration(s.Count)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	p.cache.Set(key, out, perfSummaryTTL)
	return out, nil
}

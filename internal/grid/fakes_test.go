package grid

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ratio-backtester/internal/model"
)

type memTickSource struct {
	mu         sync.Mutex
	ticks      map[string][]model.Tick // symbol|session, ordered by timestamp
	fetchCalls map[string]int
	err        error
}

func newMemTickSource() *memTickSource {
	return &memTickSource{
		ticks:      make(map[string][]model.Tick),
		fetchCalls: make(map[string]int),
	}
}

func (s *memTickSource) add(t model.Tick) {
	key := t.Symbol + "|" + string(t.Session)
	s.ticks[key] = append(s.ticks[key], t)
	sort.Slice(s.ticks[key], func(i, j int) bool {
		return s.ticks[key][i].Timestamp.Before(s.ticks[key][j].Timestamp)
	})
}

func (s *memTickSource) FetchRange(_ context.Context, symbol string, session model.Session, start, end time.Time) ([]model.Tick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	key := symbol + "|" + string(session)
	s.fetchCalls[key]++
	var out []model.Tick
	for _, t := range s.ticks[key] {
		if !t.Timestamp.Before(start) && t.Timestamp.Before(end) {
			out = append(out, t)
		}
	}
	return out, nil
}

type memBaselineSource struct {
	values map[string]decimal.Decimal // day|session
}

func (s *memBaselineSource) LookupRange(context.Context, string, model.Method, time.Time, time.Time) (model.BaselineLookup, error) {
	return func(day string, session model.Session) (decimal.Decimal, bool) {
		v, ok := s.values[day+"|"+string(session)]
		return v, ok
	}, nil
}

type memEventStore struct {
	mu       sync.Mutex
	events   map[string]map[int64]model.Event // comb key -> unix nano -> event
	failKeys map[string]error
}

func newMemEventStore() *memEventStore {
	return &memEventStore{
		events:   make(map[string]map[int64]model.Event),
		failKeys: make(map[string]error),
	}
}

func (s *memEventStore) AppendEvents(_ context.Context, comb model.Combination, events []model.Event) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := comb.Key()
	if err := s.failKeys[key]; err != nil {
		return 0, err
	}
	if s.events[key] == nil {
		s.events[key] = make(map[int64]model.Event)
	}
	inserted := 0
	for _, ev := range events {
		ts := ev.Timestamp.UnixNano()
		if _, dup := s.events[key][ts]; dup {
			continue
		}
		s.events[key][ts] = ev
		inserted++
	}
	return inserted, nil
}

func (s *memEventStore) LastEventBefore(_ context.Context, comb model.Combination, before time.Time) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last *model.Event
	for _, ev := range s.events[comb.Key()] {
		ev := ev
		if ev.Timestamp.Before(before) && (last == nil || ev.Timestamp.After(last.Timestamp)) {
			last = &ev
		}
	}
	return last, nil
}

func (s *memEventStore) ordered(comb model.Combination) []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Event
	for _, ev := range s.events[comb.Key()] {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

type memCheckpointStore struct {
	mu          sync.Mutex
	runs        map[string]map[string]struct{}
	appendCalls int
	cleared     int
}

func newMemCheckpointStore() *memCheckpointStore {
	return &memCheckpointStore{runs: make(map[string]map[string]struct{})}
}

func (s *memCheckpointStore) Load(_ context.Context, runID string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]struct{})
	for k := range s.runs[runID] {
		out[k] = struct{}{}
	}
	return out, nil
}

func (s *memCheckpointStore) Append(_ context.Context, runID string, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendCalls++
	if s.runs[runID] == nil {
		s.runs[runID] = make(map[string]struct{})
	}
	for _, k := range keys {
		s.runs[runID][k] = struct{}{}
	}
	return nil
}

func (s *memCheckpointStore) Clear(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared++
	delete(s.runs, runID)
	return nil
}

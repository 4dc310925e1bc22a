package importer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sells-group/mission-sync/internal/model"
)

// memStore is an in-memory Store and ImportLog. Missions are copied on the
// way in and out, the way a database round trip would.
type memStore struct {
	mu         sync.Mutex
	publishers []model.Publisher
	missions   map[string]*model.Mission // by id
	orgs       map[string]string         // publisher|clientId -> id
	domains    map[string]string
	activities map[string]string
	events     []model.MissionEvent
	imports    []*model.Import
	leases     map[string]string

	failInsert error
	nextID     int
}

func newMemStore(publishers ...model.Publisher) *memStore {
	return &memStore{
		publishers: publishers,
		missions:   make(map[string]*model.Mission),
		orgs:       make(map[string]string),
		domains:    make(map[string]string),
		activities: make(map[string]string),
		leases:     make(map[string]string),
	}
}

func (s *memStore) id(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

func copyMission(m *model.Mission) *model.Mission {
	c := *m
	c.Organization = nil
	c.Source = nil
	c.Addresses = append([]model.Address(nil), m.Addresses...)
	c.ActivityIDs = nil
	if m.LastSyncAt != nil {
		t := *m.LastSyncAt
		c.LastSyncAt = &t
	}
	if m.DeletedAt != nil {
		t := *m.DeletedAt
		c.DeletedAt = &t
	}
	if m.OrganizationID != nil {
		id := *m.OrganizationID
		c.OrganizationID = &id
	}
	return &c
}

func (s *memStore) ListPublishers(_ context.Context, publisherID string) ([]model.Publisher, error) {
	var out []model.Publisher
	for _, p := range s.publishers {
		if publisherID == "" && p.IsActive || publisherID == p.ID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) FindMissions(_ context.Context, publisherID string, clientIDs []string) (map[string]*model.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool, len(clientIDs))
	for _, id := range clientIDs {
		want[id] = true
	}
	out := make(map[string]*model.Mission)
	for _, m := range s.missions {
		if m.PublisherID == publisherID && want[m.ClientID] {
			out[m.ClientID] = copyMission(m)
		}
	}
	return out, nil
}

func (s *memStore) AcquireLease(_ context.Context, publisherID, holder string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.leases[publisherID]; ok && cur != holder {
		return false, nil
	}
	s.leases[publisherID] = holder
	return true, nil
}

func (s *memStore) ReleaseLease(_ context.Context, publisherID, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leases[publisherID] == holder {
		delete(s.leases, publisherID)
	}
	return nil
}

func (s *memStore) UpsertOrganizations(_ context.Context, publisherID string, orgs []*model.Organization, _ time.Time) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[string]string, len(orgs))
	for _, o := range orgs {
		key := publisherID + "|" + o.ClientID
		if _, ok := s.orgs[key]; !ok {
			s.orgs[key] = s.id("org")
		}
		ids[o.ClientID] = s.orgs[key]
	}
	return ids, nil
}

func (s *memStore) getOrCreate(table map[string]string, prefix, name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := table[name]; ok {
		return id
	}
	table[name] = s.id(prefix)
	return table[name]
}

func (s *memStore) ResolveDomain(_ context.Context, name string) (string, error) {
	return s.getOrCreate(s.domains, "dom", name), nil
}

func (s *memStore) ResolveActivity(_ context.Context, name string) (string, error) {
	return s.getOrCreate(s.activities, "act", name), nil
}

func (s *memStore) InsertMissions(_ context.Context, missions []*model.Mission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsert != nil {
		return s.failInsert
	}
	for _, m := range missions {
		if _, ok := s.missions[m.ID]; ok {
			return fmt.Errorf("duplicate mission id %s", m.ID)
		}
		s.missions[m.ID] = copyMission(m)
	}
	return nil
}

func (s *memStore) UpdateMissions(_ context.Context, missions []*model.Mission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range missions {
		if _, ok := s.missions[m.ID]; !ok {
			return fmt.Errorf("mission %s not found", m.ID)
		}
		s.missions[m.ID] = copyMission(m)
	}
	return nil
}

func (s *memStore) TouchMissions(_ context.Context, ids []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if m, ok := s.missions[id]; ok {
			t := at
			m.LastSyncAt = &t
		}
	}
	return nil
}

func (s *memStore) StaleMissions(_ context.Context, publisherID string, before time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, m := range s.missions {
		if m.PublisherID != publisherID || m.DeletedAt != nil {
			continue
		}
		if m.LastSyncAt == nil || m.LastSyncAt.Before(before) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *memStore) SoftDeleteMissions(_ context.Context, ids []string, at time.Time, events []model.MissionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if m, ok := s.missions[id]; ok && m.DeletedAt == nil {
			t := at
			m.DeletedAt = &t
			m.UpdatedAt = at
		}
	}
	s.events = append(s.events, events...)
	return nil
}

func (s *memStore) InsertEvents(_ context.Context, events []model.MissionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *memStore) Start(_ context.Context, publisherID string, at time.Time) (*model.Import, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	imp := &model.Import{ID: s.id("imp"), PublisherID: publisherID, Status: model.ImportRunning, StartedAt: at}
	c := *imp
	s.imports = append(s.imports, &c)
	return imp, nil
}

func (s *memStore) Finish(_ context.Context, imp *model.Import) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, stored := range s.imports {
		if stored.ID == imp.ID {
			c := *imp
			s.imports[i] = &c
			return nil
		}
	}
	return fmt.Errorf("import %s not found", imp.ID)
}

func (s *memStore) LastSuccess(_ context.Context, publisherID string) (*model.Import, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last *model.Import
	for _, imp := range s.imports {
		if imp.PublisherID != publisherID || imp.Status != model.ImportSuccess {
			continue
		}
		if last == nil || imp.StartedAt.After(last.StartedAt) {
			last = imp
		}
	}
	return last, nil
}

func (s *memStore) eventsOf(typ model.EventType) []model.MissionEvent {
	var out []model.MissionEvent
	for _, e := range s.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func (s *memStore) live(publisherID string) []*model.Mission {
	var out []*model.Mission
	for _, m := range s.missions {
		if m.PublisherID == publisherID && m.DeletedAt == nil {
			out = append(out, m)
		}
	}
	return out
}

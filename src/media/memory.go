package media

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PatchWorkCreations/iriseup-foundation/src/mediaerr"
	"github.com/PatchWorkCreations/iriseup-foundation/src/models"
)

// In-process Records for tests and for running without a database.
type MemoryRecords struct {
	mu     sync.Mutex
	nextID int
	assets map[int]models.MediaAsset

	Now func() time.Time
}

var _ Records = &MemoryRecords{}

func NewMemoryRecords() *MemoryRecords {
	return &MemoryRecords{
		nextID: 1,
		assets: map[int]models.MediaAsset{},
		Now:    time.Now,
	}
}

func (m *MemoryRecords) Create(ctx context.Context, asset *models.MediaAsset) (*models.MediaAsset, error) {
	if err := asset.Validate(); err != nil {
		return nil, mediaerr.New(mediaerr.Validation, err, "refusing to save invalid asset")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	a := copyAsset(asset)
	a.ID = m.nextID
	m.nextID++
	a.CreatedAt = m.Now()
	a.UpdatedAt = a.CreatedAt
	m.assets[a.ID] = *a
	return copyAsset(a), nil
}

func (m *MemoryRecords) Get(ctx context.Context, id int) (*models.MediaAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.assets[id]
	if !ok {
		return nil, mediaerr.New(mediaerr.NotFound, nil, "no media asset with id %d", id)
	}
	return copyAsset(&a), nil
}

func (m *MemoryRecords) Delete(ctx context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.assets[id]; !ok {
		return mediaerr.New(mediaerr.NotFound, nil, "no media asset with id %d", id)
	}
	delete(m.assets, id)
	return nil
}

func (m *MemoryRecords) UpdateDetails(ctx context.Context, id int, title, folder string) (*models.MediaAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.assets[id]
	if !ok {
		return nil, mediaerr.New(mediaerr.NotFound, nil, "no media asset with id %d", id)
	}
	a.Title = title
	a.Folder = folder
	a.UpdatedAt = m.Now()
	m.assets[id] = a
	return copyAsset(&a), nil
}

func (m *MemoryRecords) Count(ctx context.Context, search string) (int, error) {
	return len(m.matching(search)), nil
}

func (m *MemoryRecords) List(ctx context.Context, q ListQuery) ([]*models.MediaAsset, error) {
	matches := m.matching(q.Search)
	if q.Offset >= len(matches) {
		return nil, nil
	}
	matches = matches[q.Offset:]
	if q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}
	return matches, nil
}

func (m *MemoryRecords) matching(search string) []*models.MediaAsset {
	m.mu.Lock()
	defer m.mu.Unlock()

	search = strings.ToLower(search)
	var res []*models.MediaAsset
	for _, a := range m.assets {
		if search == "" ||
			strings.Contains(strings.ToLower(a.Title), search) ||
			strings.Contains(strings.ToLower(a.Folder), search) {
			res = append(res, copyAsset(&a))
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.After(res[j].CreatedAt)
		}
		return res[i].ID > res[j].ID
	})
	return res
}

func copyAsset(a *models.MediaAsset) *models.MediaAsset {
	c := *a
	if a.Local != nil {
		l := *a.Local
		c.Local = &l
	}
	if a.Remote != nil {
		r := *a.Remote
		c.Remote = &r
	}
	return &c
}

package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/scrapekit/scrapper/internal/scrape"
)

// Memory is an in-process scrape.ProjectStore used by tests and the
// standalone CLI mode.
type Memory struct {
	mu       sync.RWMutex
	projects map[string]scrape.Project
}

// NewMemory returns an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{projects: make(map[string]scrape.Project)}
}

// CreateProject stores the project keyed by slug.
func (m *Memory) CreateProject(_ context.Context, project scrape.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[project.Slug]; ok {
		return scrape.ErrAlreadyExists
	}
	m.projects[project.Slug] = project
	return nil
}

// GetProject loads one project by slug.
func (m *Memory) GetProject(_ context.Context, slug string) (scrape.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	project, ok := m.projects[slug]
	if !ok {
		return scrape.Project{}, scrape.ErrNotFound
	}
	return project, nil
}

// ListProjects returns projects ordered by creation time, newest first.
func (m *Memory) ListProjects(_ context.Context, limit int) ([]scrape.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	projects := make([]scrape.Project, 0, len(m.projects))
	for _, project := range m.projects {
		projects = append(projects, project)
	}
	sort.Slice(projects, func(i, j int) bool {
		if projects[i].CreatedAt.Equal(projects[j].CreatedAt) {
			return projects[i].Slug < projects[j].Slug
		}
		return projects[i].CreatedAt.After(projects[j].CreatedAt)
	})
	if limit > 0 && len(projects) > limit {
		projects = projects[:limit]
	}
	return projects, nil
}

// UpdateProjectStatus flips a project between active and paused.
func (m *Memory) UpdateProjectStatus(_ context.Context, slug string, status scrape.ProjectStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	project, ok := m.projects[slug]
	if !ok {
		return scrape.ErrNotFound
	}
	project.Status = status
	m.projects[slug] = project
	return nil
}

// DeleteProject removes a project.
func (m *Memory) DeleteProject(_ context.Context, slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[slug]; !ok {
		return scrape.ErrNotFound
	}
	delete(m.projects, slug)
	return nil
}

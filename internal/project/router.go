// Package project implements the Project Router: project CRUD backed by the
// relational store, plus the process-wide "active project" pointer that
// every other component resolves against when a caller does not name a
// project explicitly.
package project

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/memoryforge/internal/config"
	"github.com/fyrsmithlabs/memoryforge/internal/memory"
	"github.com/fyrsmithlabs/memoryforge/internal/storage/sqlite"
)

// Status is the shape returned by GetProjectStatus (§6).
type Status struct {
	Active          bool      `json:"active"`
	Message         string    `json:"message,omitempty"`
	ProjectID       string    `json:"project_id,omitempty"`
	ProjectName     string    `json:"project_name,omitempty"`
	RootPath        string    `json:"root_path,omitempty"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
	MemoryCount     int       `json:"memory_count,omitempty"`
	PendingCount    int       `json:"pending_count,omitempty"`
	IsActiveProject bool      `json:"is_active_project,omitempty"`
}

// Router implements the Project Router (PR, §4.13). Project rows live in R;
// the active-project pointer lives in the config file, since it is
// process-wide runtime state rather than durable project data (§9).
type Router struct {
	store *sqlite.Store
	cfg   *config.Config
}

// New constructs a Router over store, persisting active-project switches
// through cfg.
func New(store *sqlite.Store, cfg *config.Config) *Router {
	return &Router{store: store, cfg: cfg}
}

// CreateProject registers a new project. Name collisions surface as a
// memory.KindConflict error from the store's UNIQUE constraint. When
// setActive is true, the new project is persisted as the active project
// (§4.13), the same as a subsequent SwitchProject call.
func (r *Router) CreateProject(ctx context.Context, name, rootPath string, setActive bool) (*memory.Project, error) {
	if name == "" {
		return nil, memory.ValidationError("name", "project name must not be empty")
	}
	if rootPath == "" {
		return nil, memory.ValidationError("root_path", "project root path must not be empty")
	}

	p := &memory.Project{
		ID:        uuid.NewString(),
		Name:      name,
		RootPath:  rootPath,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.CreateProject(ctx, p); err != nil {
		return nil, err
	}

	if setActive {
		r.cfg.ActiveProjectID = p.ID
		if err := r.cfg.Save(); err != nil {
			return nil, fmt.Errorf("persist active project: %w", err)
		}
	}
	return p, nil
}

// GetProject fetches a project by id.
func (r *Router) GetProject(ctx context.Context, id string) (*memory.Project, error) {
	return r.store.GetProject(ctx, id)
}

// GetProjectByName fetches a project by its unique name.
func (r *Router) GetProjectByName(ctx context.Context, name string) (*memory.Project, error) {
	return r.store.GetProjectByName(ctx, name)
}

// ListProjects returns every known project, oldest first.
func (r *Router) ListProjects(ctx context.Context) ([]*memory.Project, error) {
	return r.store.ListProjects(ctx)
}

// DeleteProject removes a project. The store refuses (KindConflict) if the
// project still owns any memory, confirmed or not, archived or not. If the
// deleted project was active, the active pointer is cleared.
func (r *Router) DeleteProject(ctx context.Context, id string) error {
	if err := r.store.DeleteProject(ctx, id); err != nil {
		return err
	}
	if r.cfg.ActiveProjectID == id {
		r.cfg.ActiveProjectID = ""
		if err := r.cfg.Save(); err != nil {
			return fmt.Errorf("clear active project after delete: %w", err)
		}
	}
	return nil
}

// resolve finds a project by id first, falling back to name — switch_project
// (§4.1) accepts either.
func (r *Router) resolve(ctx context.Context, idOrName string) (*memory.Project, error) {
	if p, err := r.store.GetProject(ctx, idOrName); err == nil {
		return p, nil
	} else if !memory.Is(err, memory.KindNotFound) {
		return nil, err
	}
	return r.store.GetProjectByName(ctx, idOrName)
}

// SwitchProject sets the active project, identified by id or name, and
// persists the choice to the config file.
func (r *Router) SwitchProject(ctx context.Context, idOrName string) (*memory.Project, error) {
	p, err := r.resolve(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	r.cfg.ActiveProjectID = p.ID
	if err := r.cfg.Save(); err != nil {
		return nil, fmt.Errorf("persist active project: %w", err)
	}
	return p, nil
}

// GetActiveProjectID returns the config-persisted active project id, or ""
// if none is set.
func (r *Router) GetActiveProjectID() string {
	return r.cfg.ActiveProjectID
}

// GetActiveProject resolves the active project, or NotFoundError if none is
// set or the stored id no longer exists.
func (r *Router) GetActiveProject(ctx context.Context) (*memory.Project, error) {
	if r.cfg.ActiveProjectID == "" {
		return nil, memory.NotFoundError("no active project")
	}
	return r.store.GetProject(ctx, r.cfg.ActiveProjectID)
}

// EnsureActiveProject guarantees an active project is set, auto-selecting
// the oldest known project when none is active yet. It returns
// NotInitializedError if no project exists at all — callers must create one
// first.
func (r *Router) EnsureActiveProject(ctx context.Context) (*memory.Project, error) {
	if p, err := r.GetActiveProject(ctx); err == nil {
		return p, nil
	} else if !memory.Is(err, memory.KindNotFound) {
		return nil, err
	}

	projects, err := r.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return nil, memory.NotInitializedError("no projects exist yet; create one first")
	}

	first := projects[0]
	r.cfg.ActiveProjectID = first.ID
	if err := r.cfg.Save(); err != nil {
		return nil, fmt.Errorf("persist auto-selected active project: %w", err)
	}
	return first, nil
}

// GetProjectStatus reports a project's identity and memory counts. A nil id
// reports on the active project; if none is active, it returns
// {active:false} rather than an error, matching §6's status-check contract.
func (r *Router) GetProjectStatus(ctx context.Context, id *string) (*Status, error) {
	var p *memory.Project
	var err error

	if id != nil && *id != "" {
		p, err = r.resolve(ctx, *id)
		if err != nil {
			return nil, err
		}
	} else {
		p, err = r.GetActiveProject(ctx)
		if memory.Is(err, memory.KindNotFound) {
			return &Status{Active: false, Message: "no active project"}, nil
		}
		if err != nil {
			return nil, err
		}
	}

	total, err := r.store.GetMemoryCount(ctx, p.ID, false)
	if err != nil {
		return nil, err
	}
	confirmed, err := r.store.GetMemoryCount(ctx, p.ID, true)
	if err != nil {
		return nil, err
	}

	return &Status{
		Active:          true,
		ProjectID:       p.ID,
		ProjectName:     p.Name,
		RootPath:        p.RootPath,
		CreatedAt:       p.CreatedAt,
		MemoryCount:     total,
		PendingCount:    total - confirmed,
		IsActiveProject: p.ID == r.cfg.ActiveProjectID,
	}, nil
}

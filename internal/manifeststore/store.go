package manifeststore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/dbstore"
)

// Store persists Projects, Files and ModifiedFiles.
type Store struct {
	projects      dbstore.Collection[Project]
	files         dbstore.Collection[File]
	modifiedFiles dbstore.Collection[ModifiedFile]
	ids           core.IDGenerator
	clock         core.Clock

	// pathLocks serializes UpsertFile per (project_id, path).
	pathLocks sync.Map // map[string]*sync.Mutex
}

// NewStore builds a Store over the given collections.
func NewStore(
	projects dbstore.Collection[Project],
	files dbstore.Collection[File],
	modifiedFiles dbstore.Collection[ModifiedFile],
	ids core.IDGenerator,
	clock core.Clock,
) *Store {
	return &Store{
		projects:      projects,
		files:         files,
		modifiedFiles: modifiedFiles,
		ids:           ids,
		clock:         clock,
	}
}

// fileID derives a File's id deterministically from (project, path,
// first-seen commit), so two independent first observations of the
// same snapshot (e.g. after a poller restart against an empty store)
// converge on the same id instead of diverging.
func fileID(projectID, filePath, commit string) string {
	sum := sha256.Sum256([]byte(projectID + "\x00" + filePath + "\x00" + commit))
	return hex.EncodeToString(sum[:16])
}

func (s *Store) lockFor(projectID, filePath string) *sync.Mutex {
	key := projectID + "\x00" + filePath
	m, _ := s.pathLocks.LoadOrStore(key, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// CreateProject validates and persists a new Project.
func (s *Store) CreateProject(ctx context.Context, p Project) (Project, error) {
	if p.ConfigFolder == p.JobFolder {
		return Project{}, core.NewError(core.KindInvalid, "config_job_folder_equal", "config_folder and job_folder must differ")
	}
	if p.PollInterval < 10*time.Second {
		return Project{}, core.NewError(core.KindInvalid, "poll_interval_too_short", "poll_interval must be at least 10s")
	}
	now := s.clock.Now()
	p.ID = s.ids.NewID()
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := s.projects.Create(ctx, p); err != nil {
		return Project{}, err
	}
	return p, nil
}

// GetProject returns a Project by ID.
func (s *Store) GetProject(ctx context.Context, id string) (Project, error) {
	p, err := s.projects.Get(ctx, id)
	if err != nil {
		return Project{}, ProjectNotFoundError(id)
	}
	return p, nil
}

// ListProjects returns every Project.
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	return s.projects.List(ctx, nil)
}

// UpdateProject replaces metadata for an existing Project. The Source
// Poller never calls this; only user edits do.
func (s *Store) UpdateProject(ctx context.Context, id string, mutate func(*Project)) (Project, error) {
	updated, err := s.projects.CompareAndSwap(ctx, id, func(cur Project) (Project, error) {
		mutate(&cur)
		cur.UpdatedAt = s.clock.Now()
		return cur, nil
	})
	if err != nil {
		return Project{}, ProjectNotFoundError(id)
	}
	return updated, nil
}

// DeleteProject deletes a Project and cascades to its Files and
// ModifiedFiles.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	files, err := s.files.List(ctx, func(f File) bool { return f.ProjectID == id })
	if err != nil {
		return err
	}
	for _, f := range files {
		modified, err := s.modifiedFiles.List(ctx, func(m ModifiedFile) bool { return m.OriginalFileID == f.ID })
		if err != nil {
			return err
		}
		for _, m := range modified {
			if err := s.modifiedFiles.Delete(ctx, m.ID); err != nil {
				return err
			}
		}
		if err := s.files.Delete(ctx, f.ID); err != nil {
			return err
		}
	}
	return s.projects.Delete(ctx, id)
}

// UpsertFile creates or updates the File at (projectID, filePath),
// preserving its id across content changes so ModifiedFiles stay
// linked to it.
func (s *Store) UpsertFile(
	ctx context.Context,
	projectID, filePath string,
	content []byte,
	fileType FileType,
	commit string,
) (File, error) {
	lock := s.lockFor(projectID, filePath)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.files.List(ctx, func(f File) bool {
		return f.ProjectID == projectID && f.Path == filePath
	})
	if err != nil {
		return File{}, err
	}

	now := s.clock.Now()
	if len(existing) > 0 {
		current := existing[0]
		if string(current.Content) == string(content) && current.SourceCommit == commit {
			// Poll idempotence: unchanged content and
			// commit is not an upsert.
			return current, nil
		}
		updated, err := s.files.CompareAndSwap(ctx, current.ID, func(cur File) (File, error) {
			cur.Content = content
			cur.SourceCommit = commit
			cur.LastObservedAt = now
			cur.Orphaned = false
			cur.UpdatedAt = now
			return cur, nil
		})
		if err != nil {
			return File{}, err
		}
		return updated, nil
	}

	f := File{
		ID:             fileID(projectID, filePath, commit),
		ProjectID:      projectID,
		Path:           filePath,
		Name:           path.Base(filePath),
		Content:        content,
		FileType:       fileType,
		SourceCommit:   commit,
		LastObservedAt: now,
		UpdatedAt:      now,
	}
	if err := s.files.Create(ctx, f); err != nil {
		return File{}, err
	}
	return f, nil
}

// ListFilesFilter narrows ListFiles to a file_type and/or
// benchmark_type, backing `GET /projects/{id}/files`.
type ListFilesFilter struct {
	FileType      FileType
	BenchmarkType string
}

// ListFiles returns every File for project, optionally filtered.
func (s *Store) ListFiles(ctx context.Context, projectID string, filter ListFilesFilter) ([]File, error) {
	return s.files.List(ctx, func(f File) bool {
		if f.ProjectID != projectID {
			return false
		}
		if filter.FileType != "" && f.FileType != filter.FileType {
			return false
		}
		if filter.BenchmarkType != "" && f.BenchmarkType != filter.BenchmarkType {
			return false
		}
		return true
	})
}

// GetFile returns a File by ID.
func (s *Store) GetFile(ctx context.Context, id string) (File, error) {
	f, err := s.files.Get(ctx, id)
	if err != nil {
		return File{}, FileNotFoundError(id)
	}
	return f, nil
}

// DeleteFile soft-deletes a File: it is marked orphaned rather than
// removed, so reproducibility of past runs referencing it is
// preserved. Every ModifiedFile referencing it is kept and marked
// orphaned too.
func (s *Store) DeleteFile(ctx context.Context, id string) error {
	_, err := s.files.CompareAndSwap(ctx, id, func(cur File) (File, error) {
		cur.Orphaned = true
		cur.UpdatedAt = s.clock.Now()
		return cur, nil
	})
	if err != nil {
		return FileNotFoundError(id)
	}
	modified, err := s.ListModifiedFilesFor(ctx, id)
	if err != nil {
		return err
	}
	for _, m := range modified {
		if _, err := s.modifiedFiles.CompareAndSwap(ctx, m.ID, func(cur ModifiedFile) (ModifiedFile, error) {
			cur.Orphaned = true
			cur.UpdatedAt = s.clock.Now()
			return cur, nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// CreateModifiedFile creates a user override of originalFileID, failing
// with ModifiedFileConflictError if (original_file_id, modified_name)
// is already taken.
func (s *Store) CreateModifiedFile(ctx context.Context, originalFileID, name string, content []byte) (ModifiedFile, error) {
	existing, err := s.modifiedFiles.List(ctx, func(m ModifiedFile) bool {
		return m.OriginalFileID == originalFileID && m.ModifiedName == name
	})
	if err != nil {
		return ModifiedFile{}, err
	}
	if len(existing) > 0 {
		return ModifiedFile{}, ModifiedFileConflictError(originalFileID, name)
	}

	now := s.clock.Now()
	m := ModifiedFile{
		ID:             s.ids.NewID(),
		OriginalFileID: originalFileID,
		ModifiedName:   name,
		Content:        content,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.modifiedFiles.Create(ctx, m); err != nil {
		return ModifiedFile{}, err
	}
	return m, nil
}

// ListModifiedFilesFor returns every ModifiedFile referencing
// originalFileID.
func (s *Store) ListModifiedFilesFor(ctx context.Context, originalFileID string) ([]ModifiedFile, error) {
	return s.modifiedFiles.List(ctx, func(m ModifiedFile) bool { return m.OriginalFileID == originalFileID })
}

// ListModifiedFilesForProject returns every ModifiedFile whose
// original File belongs to project.
func (s *Store) ListModifiedFilesForProject(ctx context.Context, projectID string) ([]ModifiedFile, error) {
	files, err := s.ListFiles(ctx, projectID, ListFilesFilter{})
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(files))
	for _, f := range files {
		ids[f.ID] = true
	}
	return s.modifiedFiles.List(ctx, func(m ModifiedFile) bool { return ids[m.OriginalFileID] })
}

// GetModifiedFile returns a ModifiedFile by ID.
func (s *Store) GetModifiedFile(ctx context.Context, id string) (ModifiedFile, error) {
	m, err := s.modifiedFiles.Get(ctx, id)
	if err != nil {
		return ModifiedFile{}, ModifiedFileNotFoundError(id)
	}
	return m, nil
}

// UpdateModifiedFile replaces a ModifiedFile's content.
func (s *Store) UpdateModifiedFile(ctx context.Context, id string, content []byte) (ModifiedFile, error) {
	updated, err := s.modifiedFiles.CompareAndSwap(ctx, id, func(cur ModifiedFile) (ModifiedFile, error) {
		cur.Content = content
		cur.UpdatedAt = s.clock.Now()
		return cur, nil
	})
	if err != nil {
		return ModifiedFile{}, ModifiedFileNotFoundError(id)
	}
	return updated, nil
}

// DeleteModifiedFile removes a ModifiedFile outright (unlike Files,
// ModifiedFiles have no reproducibility requirement of their own).
func (s *Store) DeleteModifiedFile(ctx context.Context, id string) error {
	return s.modifiedFiles.Delete(ctx, id)
}

// ResetProject deletes all ModifiedFiles for project, reverting every
// File back to its original content for future reads.
func (s *Store) ResetProject(ctx context.Context, projectID string) error {
	modified, err := s.ListModifiedFilesForProject(ctx, projectID)
	if err != nil {
		return err
	}
	for _, m := range modified {
		if err := s.modifiedFiles.Delete(ctx, m.ID); err != nil {
			return err
		}
	}
	return nil
}

// EffectiveContent resolves the content that should actually be used
// for fileID: the named ModifiedFile's content if one is referenced,
// otherwise the original File's content.
func (s *Store) EffectiveContent(ctx context.Context, fileID string, modifiedFileID string) ([]byte, error) {
	if modifiedFileID != "" {
		m, err := s.GetModifiedFile(ctx, modifiedFileID)
		if err != nil {
			return nil, err
		}
		if m.OriginalFileID != fileID {
			return nil, core.NewError(
				core.KindInvalid,
				"modified_file_mismatch",
				fmt.Sprintf("modified file %q does not override file %q", modifiedFileID, fileID),
			)
		}
		return m.Content, nil
	}
	f, err := s.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return f.Content, nil
}

// DeriveFileType returns the FileType implied by a path relative to a
// Project's config/job folders.
func DeriveFileType(p Project, filePath string) (FileType, bool) {
	if strings.HasPrefix(filePath, strings.TrimSuffix(p.JobFolder, "/")+"/") || filePath == p.JobFolder {
		return FileTypeJob, true
	}
	if strings.HasPrefix(filePath, strings.TrimSuffix(p.ConfigFolder, "/")+"/") || filePath == p.ConfigFolder {
		return FileTypeConfig, true
	}
	return "", false
}

// Package manifeststore persists Projects, Files and ModifiedFiles.
// Files are identified by
// (project_id, path); ModifiedFiles are user-authored overrides layered
// on top, never touched by the Source Poller.
package manifeststore

import "time"

// FileType is the kind of a File, derived from its containing folder.
type FileType string

const (
	FileTypeConfig FileType = "config"
	FileTypeJob    FileType = "job"
)

// Project binds a versioned source location to a poll schedule.
type Project struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	SourceOwner    string        `json:"source_owner"`
	SourceRepo     string        `json:"source_repo"`
	SourceRef      string        `json:"source_ref"`
	ConfigFolder   string        `json:"config_folder"`
	JobFolder      string        `json:"job_folder"`
	PollInterval   time.Duration `json:"poll_interval"`
	CredentialsRef string        `json:"credentials_ref,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func (p Project) DocID() string           { return p.ID }
func (p Project) DocUpdatedAt() time.Time { return p.UpdatedAt }

// File is an immutable snapshot of one path from the source at a known
// commit.
type File struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"project_id"`
	Path           string    `json:"path"`
	Name           string    `json:"name"`
	Content        []byte    `json:"content"`
	FileType       FileType  `json:"file_type"`
	BenchmarkType  string    `json:"benchmark_type,omitempty"`
	SourceCommit   string    `json:"source_commit"`
	LastObservedAt time.Time `json:"last_observed_at"`
	Orphaned       bool      `json:"orphaned"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (f File) DocID() string           { return f.ID }
func (f File) DocUpdatedAt() time.Time { return f.UpdatedAt }

// ModifiedFile is a user-authored override of one File.
// Multiple ModifiedFiles may reference the same File; deleting the
// File marks referencing ModifiedFiles orphaned rather than deleting
// them.
type ModifiedFile struct {
	ID             string    `json:"id"`
	OriginalFileID string    `json:"original_file_id"`
	ModifiedName   string    `json:"modified_name"`
	Content        []byte    `json:"content"`
	Orphaned       bool      `json:"orphaned"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (m ModifiedFile) DocID() string           { return m.ID }
func (m ModifiedFile) DocUpdatedAt() time.Time { return m.UpdatedAt }

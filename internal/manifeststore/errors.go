package manifeststore

import (
	"fmt"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
)

// ProjectNotFound is returned when a Project lookup fails, following
// the per-entity typed-error-plus-constructor convention the rest of
// this module uses.
type ProjectNotFound struct {
	ID string
}

func (e *ProjectNotFound) Error() string {
	return fmt.Sprintf("project %q not found", e.ID)
}

// ProjectNotFoundError constructs a ProjectNotFound wrapped as a
// *core.Error of kind NotFound.
func ProjectNotFoundError(id string) error {
	return core.Wrap(core.KindNotFound, "project_not_found", "project not found", &ProjectNotFound{ID: id})
}

// FileNotFound is returned when a File lookup fails.
type FileNotFound struct {
	ID string
}

func (e *FileNotFound) Error() string {
	return fmt.Sprintf("file %q not found", e.ID)
}

func FileNotFoundError(id string) error {
	return core.Wrap(core.KindNotFound, "file_not_found", "file not found", &FileNotFound{ID: id})
}

// ModifiedFileConflict is returned by CreateModifiedFile when
// (original_file_id, modified_name) is already taken.
type ModifiedFileConflict struct {
	OriginalFileID string
	ModifiedName   string
}

func (e *ModifiedFileConflict) Error() string {
	return fmt.Sprintf("modified file %q already exists for original %q", e.ModifiedName, e.OriginalFileID)
}

func ModifiedFileConflictError(originalFileID, modifiedName string) error {
	return core.Wrap(
		core.KindConflict,
		"modified_file_conflict",
		"a modified file with this name already exists for the original file",
		&ModifiedFileConflict{OriginalFileID: originalFileID, ModifiedName: modifiedName},
	)
}

// ModifiedFileNotFound is returned when a ModifiedFile lookup fails.
type ModifiedFileNotFound struct {
	ID string
}

func (e *ModifiedFileNotFound) Error() string {
	return fmt.Sprintf("modified file %q not found", e.ID)
}

func ModifiedFileNotFoundError(id string) error {
	return core.Wrap(core.KindNotFound, "modified_file_not_found", "modified file not found", &ModifiedFileNotFound{ID: id})
}

// InvalidManifest is returned by Parse when content does not decode as
// its declared file type.
type InvalidManifest struct {
	FileType string
	Reason   error
}

func (e *InvalidManifest) Error() string {
	return fmt.Sprintf("invalid %s manifest: %s", e.FileType, e.Reason)
}

func (e *InvalidManifest) Unwrap() error { return e.Reason }

func invalidManifestError(fileType string, reason error) error {
	return core.Wrap(core.KindInvalid, "invalid_manifest", "manifest does not decode as declared file type", &InvalidManifest{FileType: fileType, Reason: reason})
}

// Package sourceclient is the client for the external versioned source
// the Source Poller mirrors from and the Registry-to-Source Bridge
// writes into. It is modeled as a small interface over a GitHub-shaped
// contents API (owner/repo/ref/path listing + blob fetch + commit SHA +
// single-file write), rate-limited to 10 rps by one limiter that every
// call shares; separate credentials do not get separate budgets.
package sourceclient

import (
	"context"
	"time"
)

// FileInfo describes one file under a folder at a ref, as returned by
// List, without fetching its content.
type FileInfo struct {
	Path string
	// SHA is the blob or commit SHA identifying this version of the
	// file, used as File.SourceCommit.
	SHA string
}

// Client is the contract every caller in this module depends on. The
// only concrete implementation talks to a GitHub-shaped contents API;
// tests substitute an in-memory fake.
type Client interface {
	// List enumerates files (recursively) under folder in owner/repo
	// at ref. Directories are not returned, only blobs.
	List(ctx context.Context, owner, repo, ref, folder, token string) ([]FileInfo, error)
	// GetFile fetches the content and commit SHA of one file.
	GetFile(ctx context.Context, owner, repo, ref, path, token string) ([]byte, string, error)
	// PutFile creates or updates path in owner/repo at ref with
	// content, committing with message. Used by the Registry-to-Source
	// Bridge to mirror rendered manifests and by Source
	// Poller-adjacent tooling that needs to write back. Returns the new
	// commit SHA.
	PutFile(ctx context.Context, owner, repo, ref, path string, content []byte, message, token string) (string, error)
}

// Credentials resolves which opaque token to use for a given Project's
// credentials reference, falling back to the process-wide SOURCE_TOKEN
// when the Project carries none of its own. Implementations must never
// log the returned token.
type Credentials interface {
	Resolve(ctx context.Context, credentialsRef string) (string, error)
}

// StaticCredentials always returns a single fixed token, used when no
// per-project credentials reference is set.
type StaticCredentials struct {
	Token string
}

func (c StaticCredentials) Resolve(context.Context, string) (string, error) {
	return c.Token, nil
}

// DefaultTimeout is applied to every outbound call unless the caller's
// context already carries a tighter deadline.
const DefaultTimeout = 10 * time.Second

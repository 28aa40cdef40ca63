package sourceclient

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Fake is an in-memory Client for tests: a flat map of path -> content
// per owner/repo/ref, with a monotonic counter standing in for commit
// SHAs.
type Fake struct {
	mu   sync.Mutex
	next int
	// files is keyed by "owner/repo/ref/path".
	files map[string]fakeFile
}

type fakeFile struct {
	content []byte
	sha     string
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{files: make(map[string]fakeFile)}
}

func key(owner, repo, ref, path string) string {
	return owner + "/" + repo + "/" + ref + "/" + path
}

// Seed preloads a file, useful for setting up poller fixtures.
func (f *Fake) Seed(owner, repo, ref, path string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.files[key(owner, repo, ref, path)] = fakeFile{content: content, sha: shaFor(f.next)}
}

func shaFor(n int) string {
	const digits = "0123456789abcdef"
	b := make([]byte, 8)
	for i := range b {
		b[i] = digits[n%16]
		n /= 16
	}
	return string(b)
}

func (f *Fake) List(_ context.Context, owner, repo, ref, folder, _ string) ([]FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := key(owner, repo, ref, folder)
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var out []FileInfo
	for k, v := range f.files {
		if strings.HasPrefix(k, prefix) {
			path := strings.TrimPrefix(k, key(owner, repo, ref, ""))
			out = append(out, FileInfo{Path: path, SHA: v.sha})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (f *Fake) GetFile(_ context.Context, owner, repo, ref, path, _ string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.files[key(owner, repo, ref, path)]
	if !ok {
		return nil, "", &NotFoundError{Path: path}
	}
	return v.content, v.sha, nil
}

func (f *Fake) PutFile(_ context.Context, owner, repo, ref, path string, content []byte, _ string, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	sha := shaFor(f.next)
	f.files[key(owner, repo, ref, path)] = fakeFile{content: content, sha: sha}
	return sha, nil
}

// NotFoundError is returned by Fake.GetFile for an unseeded path.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string { return "sourceclient: " + e.Path + " not found" }

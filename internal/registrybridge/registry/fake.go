package registry

import "context"

// Fake is an in-memory Client for tests.
type Fake struct {
	Versions []ModelVersion
}

func (f *Fake) ListVersions(context.Context) ([]ModelVersion, error) {
	return f.Versions, nil
}

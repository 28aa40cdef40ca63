package core

import (
	"crypto/rand"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// IDGenerator produces identifiers. Tests substitute a deterministic
// implementation so fixtures don't depend on real randomness.
type IDGenerator interface {
	NewID() string
}

// ulidGenerator produces ULIDs, monotonic within a single process so
// IDs created in the same millisecond still sort in creation order.
type ulidGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewULIDGenerator returns an IDGenerator that produces lexicographically
// sortable ULIDs, used for Deployment and VLLMDeployment IDs.
func NewULIDGenerator() IDGenerator {
	return &ulidGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (g *ulidGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
	return id.String()
}

// uuidGenerator produces UUIDv4 strings, used for TerminalSession and
// EvaluationTask ids.
type uuidGenerator struct{}

// NewUUIDGenerator returns an IDGenerator that produces UUIDv4 strings.
func NewUUIDGenerator() IDGenerator {
	return uuidGenerator{}
}

func (uuidGenerator) NewID() string {
	return uuid.NewString()
}

// sequentialGenerator is a deterministic IDGenerator for tests: it
// produces the prefix followed by an unpadded base-32 sequence number
// ("d1", "d2", ...) so fixtures can assert exact IDs without depending
// on randomness.
type sequentialGenerator struct {
	mu     sync.Mutex
	prefix string
	next   uint64
}

// NewSequentialGenerator returns a deterministic IDGenerator for tests.
func NewSequentialGenerator(prefix string) IDGenerator {
	return &sequentialGenerator{prefix: prefix}
}

func (g *sequentialGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	if g.next == math.MaxUint64 {
		g.next = 1
	}
	return g.prefix + ulidEncode(g.next)
}

func ulidEncode(n uint64) string {
	const digits = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
	if n == 0 {
		return "0"
	}
	buf := make([]byte, 0, 13)
	for n > 0 {
		buf = append(buf, digits[n%32])
		n /= 32
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

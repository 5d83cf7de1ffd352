package fraud

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
)

// EvidenceHash returns the content hash used for duplicate detection. The
// URL/content is normalized (trimmed, lowercased) before hashing so trivial
// formatting differences cannot dodge the check.
func EvidenceHash(urlOrContent string) string {
	normalized := strings.ToLower(strings.TrimSpace(urlOrContent))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Index is the shared evidence-hash index used for duplicate detection. It
// is shared across all users and requires only an atomic insert-if-absent.
type Index interface {
	// InsertIfAbsent records hash → contributionID if no entry exists and
	// returns the owning contribution ID. inserted is false when another
	// entry already held the hash.
	InsertIfAbsent(ctx context.Context, hash, contributionID string) (owner string, inserted bool, err error)
}

// MemoryIndex is the in-process Index for single-instance deployments.
type MemoryIndex struct {
	mu     sync.Mutex
	owners map[string]string
}

// NewMemoryIndex returns an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{owners: make(map[string]string)}
}

func (m *MemoryIndex) InsertIfAbsent(_ context.Context, hash, contributionID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if owner, ok := m.owners[hash]; ok {
		return owner, false, nil
	}
	m.owners[hash] = contributionID
	return contributionID, true, nil
}

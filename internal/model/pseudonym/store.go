package pseudonym

import (
	"strings"

	"github.com/samber/lo"
)

// Store is the read-only catalog offered on the setup screen. Custom names
// never enter it; they only live on the session that chose them.
type Store interface {
	List() []Pseudonym
	FindByID(id string) (Pseudonym, bool)
}

// MemoryStore keeps the catalog in presentation order with an id index.
// It is immutable after construction and safe for concurrent readers.
type MemoryStore struct {
	ordered []Pseudonym
	byID    map[string]Pseudonym
}

// NewMemoryStore indexes items. Later duplicates of an id are dropped so the
// list and the index always agree.
func NewMemoryStore(items []Pseudonym) *MemoryStore {
	ordered := lo.UniqBy(items, func(p Pseudonym) string { return p.ID })
	return &MemoryStore{
		ordered: ordered,
		byID:    lo.KeyBy(ordered, func(p Pseudonym) string { return p.ID }),
	}
}

func (s *MemoryStore) List() []Pseudonym {
	return append([]Pseudonym(nil), s.ordered...)
}

func (s *MemoryStore) FindByID(id string) (Pseudonym, bool) {
	p, ok := s.byID[id]
	return p, ok
}

// Resolve turns a setup-screen choice into a pseudonym. A known catalog id
// wins over name. An unknown id falls back to name as a custom entry, so a
// client with a stale catalog still gets the name the user typed; with no
// name to fall back on the choice is ErrInvalid. Without an id, name goes
// through Custom and its trimming and length rules.
func Resolve(store Store, id, name string) (Pseudonym, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Custom(name)
	}
	if p, ok := store.FindByID(id); ok {
		return p, nil
	}
	if strings.TrimSpace(name) == "" {
		return Pseudonym{}, ErrInvalid
	}
	return Custom(name)
}

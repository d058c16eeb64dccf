// Package pin implements the pin sub-feature (SPEC_FULL §3, grounded in the
// original TierEngineAdhoc's PIN/UNPIN/LPIN commands): a file marked pinned
// is excluded from ranking and eviction until explicitly unpinned. The
// marker is a POSIX extended attribute on the backing file itself, so it
// survives independently of any autotier process state.
package pin

const xattrName = "user.autotier.pin"

// Store pins and unpins files by absolute backing path and reports pin
// status during enumeration.
type Store struct{}

// New creates a Store.
func New() *Store {
	return &Store{}
}

// Pin marks the file at backingPath as pinned to tier, encoding the tier
// index as the xattr's value (SPEC_FULL §3).
func (s *Store) Pin(backingPath string, tier int) error {
	return setPinXattr(backingPath, tier)
}

// Unpin clears the pin marker on the file at backingPath.
func (s *Store) Unpin(backingPath string) error {
	return removePinXattr(backingPath)
}

// IsPinned reports whether the file at backingPath carries the pin marker.
func (s *Store) IsPinned(backingPath string) bool {
	pinned, _ := getPinXattr(backingPath)
	return pinned
}

// Lookup is IsPinned adapted to the (pinned, pinnedTier) shape
// types.FileRecord expects.
func (s *Store) Lookup(backingPath string) (bool, int) {
	return getPinXattr(backingPath)
}

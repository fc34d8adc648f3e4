package indexing

import (
	"os"
)

// Validity classifies a snapshot against the file it was built from.
type Validity int

const (
	Valid     Validity = iota
	Stale              // on-disk state is newer or differs from the snapshot
	IOFailure          // the file could not be observed; callers treat this as Stale
)

func (v Validity) String() string {
	switch v {
	case Valid:
		return "valid"
	case Stale:
		return "stale"
	case IOFailure:
		return "io_failure"
	default:
		return "unknown"
	}
}

// FileMetadata is the live filesystem state a snapshot is validated
// against. Separating it from the stat call keeps Validate pure and lets
// tests feed synthetic metadata.
type FileMetadata struct {
	ModTime  int64 // unix nanoseconds
	Size     int64
	ReadFile func() ([]byte, error) // lazily reads current bytes for hash verification
}

// StatFile gathers live metadata for a path.
func StatFile(path string) (FileMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileMetadata{}, err
	}
	return FileMetadata{
		ModTime:  info.ModTime().UnixNano(),
		Size:     info.Size(),
		ReadFile: func() ([]byte, error) { return os.ReadFile(path) },
	}, nil
}

// Validate classifies a snapshot against live file metadata. Three levels,
// cheapest first: a strictly newer timestamp is Stale without further
// checks; otherwise, when verifyHash is set, the current bytes are hashed
// and compared (coarse filesystem timestamps and clock skew can hide
// changes from the timestamp check alone). The check never mutates the
// snapshot or the file.
func Validate(snap *Snapshot, meta FileMetadata, verifyHash bool) Validity {
	if meta.ModTime > snap.ModTime.UnixNano() {
		return Stale
	}
	if meta.Size != snap.Size {
		return Stale
	}
	if verifyHash {
		if meta.ReadFile == nil {
			return IOFailure
		}
		content, err := meta.ReadFile()
		if err != nil {
			return IOFailure
		}
		if HashBytes(content) != snap.ContentHash {
			return Stale
		}
	}
	return Valid
}

// ValidatePath stats a snapshot's backing file and classifies it. Stat
// failures (missing file, permission denied) are IOFailure, which callers
// treat identically to Stale.
func ValidatePath(snap *Snapshot, verifyHash bool) Validity {
	if snap.Path == "" {
		// Virtual documents have no backing file to go stale against.
		return Valid
	}
	meta, err := StatFile(snap.Path)
	if err != nil {
		return IOFailure
	}
	return Validate(snap, meta, verifyHash)
}

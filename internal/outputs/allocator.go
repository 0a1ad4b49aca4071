package outputs

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"mediaconv/internal/queue"
)

var (
	// ErrNameConflict reports a rename target already used in the folder or plan.
	ErrNameConflict = errors.New("output name already in use")
	// ErrDuplicateName reports two plan entries sharing a file name.
	ErrDuplicateName = errors.New("duplicate output name in plan")
	// ErrIndexOutOfRange reports a plan index outside the current list.
	ErrIndexOutOfRange = errors.New("output index out of range")
	// ErrInvalidName reports an empty name or one containing a path separator.
	ErrInvalidName = errors.New("invalid output name")
)

// OutputFile is one planned output.
type OutputFile struct {
	FileName          string `json:"file_name"`
	IsConflict        bool   `json:"is_conflict"`
	IsOverrideAllowed bool   `json:"is_override_allowed"`
}

// NameSet is a set of file names compared after NFC normalization.
type NameSet map[string]struct{}

// NewNameSet builds a set from names.
func NewNameSet(names ...string) NameSet {
	set := make(NameSet, len(names))
	for _, name := range names {
		set.Add(name)
	}
	return set
}

// Add inserts name.
func (s NameSet) Add(name string) { s[normalizeName(name)] = struct{}{} }

// Remove deletes name.
func (s NameSet) Remove(name string) { delete(s, normalizeName(name)) }

// Contains reports whether name is present.
func (s NameSet) Contains(name string) bool {
	_, ok := s[normalizeName(name)]
	return ok
}

func normalizeName(name string) string {
	return norm.NFC.String(name)
}

// FileName joins a base name and extension.
func FileName(base, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return base
	}
	return base + "." + ext
}

func disambiguated(base, ext string, n int) string {
	return FileName(fmt.Sprintf("%s (%d)", base, n), ext)
}

// GenerateNames allocates one final name per desired output, in order. Each
// emitted name is added to reserved.
func GenerateNames(desired []queue.OutputSpec, existing, reserved NameSet) []string {
	if reserved == nil {
		reserved = NameSet{}
	}
	names := make([]string, 0, len(desired))
	for _, spec := range desired {
		base := normalizeName(spec.BaseName)
		candidate := FileName(base, spec.Ext)
		for n := 1; existing.Contains(candidate) || reserved.Contains(candidate); n++ {
			candidate = disambiguated(base, spec.Ext, n)
		}
		candidate = normalizeName(candidate)
		reserved.Add(candidate)
		names = append(names, candidate)
	}
	return names
}

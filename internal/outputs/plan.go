package outputs

import (
	"fmt"
	"strings"

	"mediaconv/internal/queue"
)

// Plan is the editable list of outputs for one job. It owns the folder and
// reservation sets; callers serialize access.
type Plan struct {
	existing NameSet
	reserved NameSet
	files    []OutputFile
}

// NewPlan returns an empty plan against the given folder contents.
func NewPlan(existing NameSet) *Plan {
	if existing == nil {
		existing = NameSet{}
	}
	return &Plan{existing: existing, reserved: NameSet{}}
}

// Generate discards the current list and allocates fresh names for specs.
func (p *Plan) Generate(specs []queue.OutputSpec) {
	p.reserved = NameSet{}
	names := GenerateNames(specs, p.existing, p.reserved)
	p.files = make([]OutputFile, len(names))
	for i, name := range names {
		p.files[i] = OutputFile{FileName: name}
	}
}

// SetExisting swaps the folder contents and recomputes conflict flags on the
// current list.
func (p *Plan) SetExisting(existing NameSet) error {
	if existing == nil {
		existing = NameSet{}
	}
	seen := NameSet{}
	for _, file := range p.files {
		if seen.Contains(file.FileName) {
			return fmt.Errorf("%w: %s", ErrDuplicateName, file.FileName)
		}
		seen.Add(file.FileName)
	}
	p.existing = existing
	for i := range p.files {
		p.files[i].IsConflict = existing.Contains(p.files[i].FileName)
	}
	return nil
}

// Rename replaces the name at index. Renaming to the current name is a no-op.
func (p *Plan) Rename(index int, newName string) error {
	if err := p.checkIndex(index); err != nil {
		return err
	}
	newName = normalizeName(strings.TrimSpace(newName))
	if newName == "" || strings.ContainsAny(newName, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, newName)
	}
	current := p.files[index]
	if current.FileName == newName {
		return nil
	}
	if p.existing.Contains(newName) || p.reserved.Contains(newName) {
		return fmt.Errorf("%w: %s", ErrNameConflict, newName)
	}
	p.reserved.Remove(current.FileName)
	p.reserved.Add(newName)
	p.files[index] = OutputFile{FileName: newName}
	return nil
}

// SetOverrideAllowed records consent to overwrite the entry at index.
func (p *Plan) SetOverrideAllowed(index int, allow bool) error {
	if err := p.checkIndex(index); err != nil {
		return err
	}
	p.files[index].IsOverrideAllowed = allow
	return nil
}

// Validate reports the first entry that collides with the folder or another
// entry without override consent.
func (p *Plan) Validate() error {
	seen := NameSet{}
	for _, file := range p.files {
		if seen.Contains(file.FileName) {
			return fmt.Errorf("%w: %s", ErrDuplicateName, file.FileName)
		}
		seen.Add(file.FileName)
		if p.existing.Contains(file.FileName) && !file.IsOverrideAllowed {
			return fmt.Errorf("%w: %s", ErrNameConflict, file.FileName)
		}
	}
	return nil
}

// Files returns a copy of the current list.
func (p *Plan) Files() []OutputFile {
	return append([]OutputFile(nil), p.files...)
}

// Reserved reports whether name is reserved by this plan.
func (p *Plan) Reserved(name string) bool {
	return p.reserved.Contains(name)
}

func (p *Plan) checkIndex(index int) error {
	if index < 0 || index >= len(p.files) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	return nil
}

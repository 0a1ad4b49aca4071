package outputs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"mediaconv/internal/queue"
)

// ListFolder returns the names of the entries in dir. A missing directory
// yields an empty set.
func ListFolder(dir string) (NameSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return NameSet{}, nil
		}
		return nil, fmt.Errorf("list output folder: %w", err)
	}
	set := make(NameSet, len(entries))
	for _, entry := range entries {
		set.Add(entry.Name())
	}
	return set, nil
}

// ResolveFolder returns dir when it is an existing directory and fallback
// otherwise.
func ResolveFolder(dir, fallback string) string {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	return fallback
}

// PlanForJob allocates output paths for job against the current contents of
// its output folder.
func PlanForJob(_ context.Context, job *queue.Job, defaultFolder string) ([]string, error) {
	if job == nil || len(job.Command.Outputs) == 0 {
		return nil, nil
	}
	folder := ResolveFolder(job.Command.OutputFolder, defaultFolder)
	existing, err := ListFolder(folder)
	if err != nil {
		return nil, err
	}
	names := GenerateNames(job.Command.Outputs, existing, NameSet{})
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(folder, name)
	}
	return paths, nil
}

package agent

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// promptOrder fixes where the well-known files go; others follow alphabetically.
var promptOrder = map[string]int{
	"identity.md":  1,
	"household.md": 2,
	"tools.md":     3,
	"user.md":      4,
}

type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

// SystemPrompt joins every markdown file in the directory.
func (pm *PromptManager) SystemPrompt() (string, error) {
	entries, err := os.ReadDir(pm.Directory)
	if err != nil {
		return "", fmt.Errorf("failed to read prompts directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool {
		oi, okI := promptOrder[names[i]]
		oj, okJ := promptOrder[names[j]]
		switch {
		case okI && okJ:
			return oi < oj
		case okI:
			return true
		case okJ:
			return false
		}
		return names[i] < names[j]
	})

	var contents []string
	for _, name := range names {
		path := filepath.Join(pm.Directory, name)
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Warning: Failed to read prompt file %s: %v", path, err)
			continue
		}
		if text := strings.TrimSpace(string(data)); text != "" {
			contents = append(contents, text)
		}
	}

	if len(contents) == 0 {
		return "", fmt.Errorf("no prompt files found in %s", pm.Directory)
	}
	return strings.Join(contents, "\n\n---\n\n"), nil
}

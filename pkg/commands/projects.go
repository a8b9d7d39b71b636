package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

func (d *Dispatcher) listProjects(ctx context.Context, channelID string) error {
	base := d.cfg.BasePath
	if base == "" {
		return d.post(ctx, channelID, "No project base path is configured. Set `projects.base_path` to use `/projects`.")
	}

	base, err := expandHome(base)
	if err != nil {
		return d.post(ctx, channelID, fmt.Sprintf("Cannot resolve project base path: %s", err))
	}

	projects, err := listProjectDirs(base)
	if errors.Is(err, os.ErrNotExist) {
		return d.post(ctx, channelID, fmt.Sprintf("Project base path `%s` does not exist.", base))
	}
	if err != nil {
		return d.post(ctx, channelID, fmt.Sprintf("Cannot read project base path `%s`: %s", base, err))
	}
	if len(projects) == 0 {
		return d.post(ctx, channelID, fmt.Sprintf("No projects found in `%s`.", base))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Projects in `%s`:\n", base)
	for _, p := range projects {
		fmt.Fprintf(&b, "• `%s`\n", p)
	}
	b.WriteString("Start a session with `/new <name>`.")

	return d.post(ctx, channelID, b.String())
}

// listProjectDirs returns the sorted names of the non-hidden directories
// directly under base.
func listProjectDirs(base string) ([]string, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if !e.IsDir() {
			// Follow symlinks to directories
			info, err := os.Stat(filepath.Join(base, e.Name()))
			if err != nil || !info.IsDir() {
				continue
			}
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// expandHome replaces a leading ~ with the user's home directory
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// resolveProjectPath turns a /new argument into an absolute path.
// Relative paths are taken from the base path when one is configured.
func (d *Dispatcher) resolveProjectPath(arg string) (string, error) {
	path, err := expandHome(arg)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}

	if d.cfg.BasePath != "" {
		base, err := expandHome(d.cfg.BasePath)
		if err != nil {
			return "", err
		}
		return filepath.Join(base, path), nil
	}
	return filepath.Abs(path)
}

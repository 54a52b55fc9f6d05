package generate

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
)

// checkWorktreeClean refuses to stamp over uncommitted work: a regeneration
// run overwrites Dockerfiles wholesale, and mixing that with local edits
// loses them silently. Outside a git repository the check is skipped.
func checkWorktreeClean(root string) error {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil
	}
	status, err := wt.Status()
	if err != nil {
		return nil
	}
	if status.IsClean() {
		return nil
	}

	// Only changes under the image tree block the run.
	prefix, err := treePrefix(wt.Filesystem.Root(), root)
	if err != nil {
		return nil
	}

	var dirty []string
	for path, s := range status {
		if s.Worktree == git.Unmodified && s.Staging == git.Unmodified {
			continue
		}
		if prefix == "" || strings.HasPrefix(path, prefix) {
			dirty = append(dirty, "  "+path)
		}
	}
	if len(dirty) == 0 {
		return nil
	}
	sort.Strings(dirty)

	return fmt.Errorf("image tree has uncommitted changes (use --force to stamp anyway):\n%s",
		strings.Join(dirty, "\n"))
}

// treePrefix returns the image tree root as a repo-relative path prefix,
// "" when the tree root is the repository root itself.
func treePrefix(repoRoot, treeRoot string) (string, error) {
	absTree, err := filepath.Abs(treeRoot)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(repoRoot, absTree)
	if err != nil {
		return "", err
	}
	if rel == "." {
		return "", nil
	}
	return filepath.ToSlash(rel) + "/", nil
}

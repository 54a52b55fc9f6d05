package stamp

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadKeys reads every <category>.keys file in dir and returns the
// category → fingerprint-list map. Key files are append-only and
// line-oriented: one fingerprint per line, blanks and # comments skipped,
// order preserved.
func LoadKeys(dir string) (map[string][]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.keys"))
	if err != nil {
		return nil, err
	}

	keys := make(map[string][]string, len(matches))
	for _, path := range matches {
		category := strings.TrimSuffix(filepath.Base(path), ".keys")
		list, err := readKeyFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading key list %s: %w", path, err)
		}
		keys[category] = list
	}
	return keys, nil
}

func readKeyFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var list []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		list = append(list, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

package stamp

import (
	"bufio"
	"os"
	"strings"
)

// Skip-mode readers: security-only updates reuse whatever dependency
// versions the existing Dockerfile already declares instead of freshly
// fetched ones. A missing file or line yields "" and the caller falls back
// to the fresh value.

// ReadEnvVersion returns the value of the first "ENV <name> <value>"
// declaration in the Dockerfile at path.
func ReadEnvVersion(path, name string) string {
	re := envValueRe(name)
	if re == nil {
		return ""
	}

	value := ""
	scanFile(path, func(line string) bool {
		if m := re.FindStringSubmatch(line); m != nil {
			value = m[2]
			return false
		}
		return true
	})
	return value
}

// ReadFromTag returns the tag of the first FROM line whose repository,
// ignoring any architecture prefix, equals image.
func ReadFromTag(path, image string) string {
	tag := ""
	scanFile(path, func(line string) bool {
		m := fromRe.FindStringSubmatch(line)
		if m == nil {
			return true
		}
		repo, t := splitImageTag(m[2])
		if repo == image || strings.HasSuffix(repo, "/"+image) {
			tag = t
			return false
		}
		return true
	})
	return tag
}

// scanFile calls fn per line until it returns false. Read errors are
// treated as "nothing found".
func scanFile(path string, fn func(line string) bool) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if !fn(scanner.Text()) {
			return
		}
	}
}

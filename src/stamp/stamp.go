package stamp

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/sofmeright/imageforge/src/tree"
)

// runtimeVersionSentinel is the version placeholder templates carry in
// ENV declarations and FROM tags.
const runtimeVersionSentinel = "0.0.0"

// alpineVersionSentinel is the base-version placeholder in alpine templates.
const alpineVersionSentinel = "0.0"

// Context carries the stamped values for one target.
// Built fresh per target; never shared.
type Context struct {
	// Version is the fully resolved runtime version (major.minor.patch).
	Version string

	// RuntimeEnv is the runtime version declaration name (e.g. "NODE_VERSION").
	RuntimeEnv string

	// PkgEnv is the package-manager version declaration name (e.g. "NPM_VERSION").
	PkgEnv string

	// PkgVersion is the package-manager version to stamp. In skip mode the
	// caller pre-reads this from the existing Dockerfile.
	PkgVersion string

	// AlpineVersion replaces the 0.0 base-tag sentinel on the alpine variant.
	AlpineVersion string

	// Arch is the target architecture label. Non-default architectures
	// prefix the FROM repository, except on the onbuild variant.
	Arch string

	// Variant is the target's variant name.
	Variant string

	// Keys maps a key category to its ordered fingerprint list.
	Keys map[string][]string
}

// Dockerfile line anchors. Capture prefix/token/suffix groups so rewrites
// touch only the value and leave the rest of the line intact.
var (
	fromRe = regexp.MustCompile(`^(FROM\s+(?:--platform=\S+\s+)?)(\S+)(.*)$`)

	// "${NODE_KEYS}" placeholder, optionally with a trailing continuation.
	keysPlaceholderRe = regexp.MustCompile(`^(\s*)"\$\{([A-Z0-9_]+)_KEYS\}"\s*\\?\s*$`)
)

// Stamp generates outPath from the template at tplPath using ctx.
// The template is never modified. Output is written to a temporary file in
// the same directory and renamed over outPath, so the Dockerfile is replaced
// wholesale or not at all; the rename is the only visible state transition.
func Stamp(tplPath, outPath string, ctx Context) error {
	data, err := os.ReadFile(tplPath)
	if err != nil {
		return fmt.Errorf("reading template: %w", err)
	}

	runtimeRe := envValueRe(ctx.RuntimeEnv)
	pkgRe := envValueRe(ctx.PkgEnv)

	lines := strings.Split(string(data), "\n")
	out := make([]string, 0, len(lines))

	for _, line := range lines {
		if m := keysPlaceholderRe.FindStringSubmatch(line); m != nil {
			spliced, err := spliceKeys(m[1], m[2], ctx.Keys)
			if err != nil {
				return err
			}
			out = append(out, spliced...)
			continue
		}

		line = rewriteFrom(line, ctx)
		line = rewriteEnvValue(line, runtimeRe, ctx.Version)
		line = rewriteEnvValue(line, pkgRe, ctx.PkgVersion)
		out = append(out, line)
	}

	tmp := outPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(strings.Join(out, "\n")), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, outPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", outPath, err)
	}
	return nil
}

// rewriteFrom applies the ordered FROM-line passes: architecture prefix,
// runtime version tag sentinel, then the alpine base-version sentinel.
func rewriteFrom(line string, ctx Context) string {
	m := fromRe.FindStringSubmatch(line)
	if m == nil {
		return line
	}
	token := m[2]

	if ctx.Arch != "" && ctx.Arch != tree.DefaultArch && ctx.Variant != tree.VariantOnbuild {
		token = ctx.Arch + "/" + token
	}

	if ctx.Version != "" {
		token = replaceTagSentinel(token, runtimeVersionSentinel, ctx.Version)
	}

	if ctx.Variant == tree.VariantAlpine && ctx.AlpineVersion != "" {
		token = replaceTagSentinel(token, alpineVersionSentinel, ctx.AlpineVersion)
	}

	return m[1] + token + m[3]
}

// replaceTagSentinel substitutes a sentinel inside the tag portion of an
// image token. The repository portion is never touched.
func replaceTagSentinel(token, sentinel, value string) string {
	repo, tag := splitImageTag(token)
	if tag == "" || !strings.Contains(tag, sentinel) {
		return token
	}
	return repo + ":" + strings.Replace(tag, sentinel, value, 1)
}

// splitImageTag splits "node:0.0.0-slim" into ("node", "0.0.0-slim").
// A colon before the last slash is a registry port, not a tag separator.
func splitImageTag(token string) (string, string) {
	lastColon := strings.LastIndex(token, ":")
	if lastColon < 0 {
		return token, ""
	}
	if strings.Contains(token[lastColon+1:], "/") {
		return token, ""
	}
	return token[:lastColon], token[lastColon+1:]
}

// envValueRe anchors an "ENV <name> <value>" declaration, capturing
// prefix/value/suffix. Returns nil for an empty name.
func envValueRe(name string) *regexp.Regexp {
	if name == "" {
		return nil
	}
	return regexp.MustCompile(`^(ENV\s+` + regexp.QuoteMeta(name) + `[= ])(\S+)(.*)$`)
}

// rewriteEnvValue rewrites the value of an ENV declaration matched by re.
// Lines not matching the anchor pass through unchanged. An empty value
// leaves the line alone (nothing resolved to stamp).
func rewriteEnvValue(line string, re *regexp.Regexp, value string) string {
	if re == nil || value == "" {
		return line
	}
	m := re.FindStringSubmatch(line)
	if m == nil {
		return line
	}
	return m[1] + value + m[3]
}

// spliceKeys expands a key placeholder into one continuation line per
// fingerprint, each at the placeholder's original indentation.
func spliceKeys(indent, upperCategory string, keys map[string][]string) ([]string, error) {
	category := strings.ToLower(upperCategory)
	list, ok := keys[category]
	if !ok {
		return nil, fmt.Errorf("no key list for category %q", category)
	}

	out := make([]string, 0, len(list))
	for _, key := range list {
		out = append(out, indent+key+` \`)
	}
	return out, nil
}

package tree

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// Variants the generator treats specially. VariantDefault is implicit: its
// Dockerfile lives directly in the version directory.
const (
	VariantDefault = "default"
	VariantAlpine  = "alpine"
	VariantOnbuild = "onbuild"
)

const dockerfileName = "Dockerfile"

// VersionRef identifies one major version directory under the tree root.
type VersionRef struct {
	Root  string
	Major string
}

// Dir returns the version directory path.
func (v VersionRef) Dir() string {
	return filepath.Join(v.Root, v.Major)
}

// Target is one concrete (version, variant) Dockerfile to regenerate.
type Target struct {
	Version VersionRef
	Variant string
	Config  DirConfig
}

// Dir returns the directory holding the target's Dockerfile.
func (t Target) Dir() string {
	if t.Variant == VariantDefault {
		return t.Version.Dir()
	}
	return filepath.Join(t.Version.Dir(), t.Variant)
}

// DockerfilePath returns the generated Dockerfile path.
// Paths are disjoint across targets by construction.
func (t Target) DockerfilePath() string {
	return filepath.Join(t.Dir(), dockerfileName)
}

// TemplatePath returns the template the target is stamped from.
// Templates live in the version directory: Dockerfile.template for the
// default variant, Dockerfile-<variant>.template otherwise.
func (t Target) TemplatePath() string {
	if t.Variant == VariantDefault {
		return filepath.Join(t.Version.Dir(), "Dockerfile.template")
	}
	return filepath.Join(t.Version.Dir(), fmt.Sprintf("Dockerfile-%s.template", t.Variant))
}

// String renders "10" for the default variant and "10/alpine" otherwise.
func (t Target) String() string {
	if t.Variant == VariantDefault {
		return t.Version.Major
	}
	return t.Version.Major + "/" + t.Variant
}

// Tree is the discovered image tree: root config plus every target,
// in the published discovery order (versions ascending numerically,
// default variant before named variants, named variants name-sorted).
type Tree struct {
	Root    string
	Config  DirConfig
	Targets []Target

	// Versions lists every discovered major version label in order,
	// including versions that currently have no Dockerfile.
	Versions []string
}

// Discover walks the image tree root and returns every (version, variant)
// pair that has a Dockerfile present.
func Discover(root string) (*Tree, error) {
	rootCfg, err := LoadDirConfig(root)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading tree root %s: %w", root, err)
	}

	type versionDir struct {
		major   string
		ordinal int
	}
	var versions []versionDir
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		n, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		versions = append(versions, versionDir{major: e.Name(), ordinal: n})
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].ordinal < versions[j].ordinal })

	t := &Tree{Root: root, Config: rootCfg}

	for _, v := range versions {
		ref := VersionRef{Root: root, Major: v.major}
		t.Versions = append(t.Versions, v.major)

		cfg, err := LoadDirConfig(ref.Dir())
		if err != nil {
			return nil, err
		}
		cfg = cfg.merge(rootCfg)

		for _, variant := range discoverVariants(ref.Dir()) {
			t.Targets = append(t.Targets, Target{
				Version: ref,
				Variant: variant,
				Config:  cfg,
			})
		}
	}

	return t, nil
}

// discoverVariants lists the variants of one version directory:
// "default" if a Dockerfile sits in the directory itself, then every
// subdirectory containing a Dockerfile, in sorted name order.
func discoverVariants(dir string) []string {
	var variants []string

	if fileExists(filepath.Join(dir, dockerfileName)) {
		variants = append(variants, VariantDefault)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return variants
	}
	// os.ReadDir returns entries sorted by name.
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if fileExists(filepath.Join(dir, e.Name(), dockerfileName)) {
			variants = append(variants, e.Name())
		}
	}

	return variants
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

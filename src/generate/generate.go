package generate

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/sofmeright/imageforge/src/config"
	"github.com/sofmeright/imageforge/src/pipeline"
	"github.com/sofmeright/imageforge/src/stamp"
	"github.com/sofmeright/imageforge/src/tree"
	"github.com/sofmeright/imageforge/src/upstream"
)

// Options configures one regeneration run.
type Options struct {
	Config *config.Config

	// Versions and Variants gate which targets are stamped.
	// They never gate manifest emission.
	Versions tree.Filter
	Variants tree.Filter

	// SkipFetch reuses package-manager and distro versions already stamped
	// in existing Dockerfiles instead of fetching fresh ones.
	SkipFetch bool

	// Force stamps even when the image tree has uncommitted changes.
	Force bool

	// NoManifest suppresses rewriting the CI manifest.
	NoManifest bool

	// Client overrides the upstream client; nil builds one from Config.
	Client *upstream.Client
}

// TargetResult is the per-target outcome of a run.
type TargetResult struct {
	Target   tree.Target
	Selected bool
	Version  string // resolved full version, when stamped
	Warning  string // non-fatal diagnostics (e.g. resolution fallback)
	Err      error
}

// Result is the outcome of a whole run.
type Result struct {
	Arch         string
	Targets      []TargetResult
	StageCount   int
	ManifestPath string // "" when manifest writing was suppressed
	Failed       int
	Warnings     []string
}

// Run drives a regeneration end to end: discover the tree, emit one manifest
// stage per discovered target, and concurrently restamp every selected
// target. Per-target failures are isolated; only discovery-level problems
// abort the run.
func Run(ctx context.Context, opts Options) (*Result, error) {
	cfg := opts.Config

	t, err := tree.Discover(cfg.Root)
	if err != nil {
		return nil, err
	}
	if len(t.Versions) == 0 {
		return nil, fmt.Errorf("no version directories found under %s", cfg.Root)
	}

	if !opts.Force {
		if err := checkWorktreeClean(cfg.Root); err != nil {
			return nil, err
		}
	}

	arch := cfg.Arch
	if arch == "" {
		arch = tree.DetectArch()
	}

	keys, err := stamp.LoadKeys(filepath.Join(cfg.Root, cfg.KeysDir))
	if err != nil {
		return nil, err
	}

	client := opts.Client
	if client == nil {
		client = upstream.NewClient(cfg.HTTPTimeout)
	}

	res := &Result{
		Arch:    arch,
		Targets: make([]TargetResult, len(t.Targets)),
	}

	// Package-manager version is global: resolved once, stamped everywhere.
	// In skip mode each target reuses its own existing value instead.
	// A resolution failure leaves the declaration untouched rather than
	// aborting the run.
	pkgVersion := ""
	if !opts.SkipFetch && t.Config.PackageManager != "" {
		pkgVersion, err = client.ResolvePackageManager(ctx, registryURL(t.Config), t.Config.PackageManager)
		if err != nil {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("resolving %s version: %v", t.Config.PackageManager, err))
		}
	}

	manifest := pipeline.NewManifest()

	jobs := cfg.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	sem := semaphore.NewWeighted(int64(jobs))
	var wg sync.WaitGroup

	for i, target := range t.Targets {
		res.Targets[i] = TargetResult{Target: target}

		// Every discovered target gets a stage, selected or not.
		manifest.AddStage(target.Version.Major, target.Variant)

		if !opts.Versions.Match(target.Version.Major) || !opts.Variants.Match(target.Variant) {
			continue
		}
		res.Targets[i].Selected = true

		wg.Add(1)
		go func(i int, target tree.Target) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				res.Targets[i].Err = err
				return
			}
			defer sem.Release(1)

			// Each task owns a disjoint output path and a disjoint result
			// slot; no synchronization beyond the barrier is needed.
			stampTarget(ctx, client, target, arch, pkgVersion, keys, opts.SkipFetch, &res.Targets[i])
		}(i, target)
	}

	wg.Wait()

	for _, tr := range res.Targets {
		if tr.Err != nil {
			res.Failed++
		}
	}

	res.StageCount = manifest.StageCount()
	if !opts.NoManifest {
		path := cfg.Manifest
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.Root, path)
		}
		if err := manifest.Write(path); err != nil {
			return res, err
		}
		res.ManifestPath = path
	}

	return res, nil
}

// stampTarget resolves one target's versions and stamps its Dockerfile.
func stampTarget(ctx context.Context, client *upstream.Client, target tree.Target,
	arch, pkgVersion string, keys map[string][]string, skipFetch bool, out *TargetResult) {

	cfg := target.Config
	if cfg.BaseURI == "" {
		out.Err = fmt.Errorf("%s: no baseuri configured", target)
		return
	}

	full, err := client.ResolveVersion(ctx, cfg.BaseURI, target.Version.Major)
	if err != nil {
		// Resolution failure is non-fatal: fall back to patch "0".
		full = target.Version.Major + ".0"
		out.Warning = fmt.Sprintf("resolving %s: %v (falling back to %s)", target, err, full)
	}
	out.Version = full

	sctx := stamp.Context{
		Version:    full,
		RuntimeEnv: envName(cfg.Runtime),
		PkgEnv:     envName(cfg.PackageManager),
		PkgVersion: pkgVersion,
		Arch:       arch,
		Variant:    target.Variant,
		Keys:       keys,
	}

	if skipFetch {
		sctx.PkgVersion = stamp.ReadEnvVersion(target.DockerfilePath(), sctx.PkgEnv)
	}

	if target.Variant == tree.VariantAlpine {
		if skipFetch {
			sctx.AlpineVersion = stamp.ReadFromTag(target.DockerfilePath(), "alpine")
		} else {
			sctx.AlpineVersion = cfg.AlpineVersion
		}
	}

	if err := stamp.Stamp(target.TemplatePath(), target.DockerfilePath(), sctx); err != nil {
		out.Err = fmt.Errorf("%s: %w", target, err)
	}
}

// envName derives the ENV declaration name from a runtime or package
// manager name: "node" → "NODE_VERSION".
func envName(name string) string {
	if name == "" {
		return ""
	}
	return strings.ToUpper(name) + "_VERSION"
}

// registryURL returns the configured package registry, defaulting to the
// public npm registry.
func registryURL(cfg tree.DirConfig) string {
	if cfg.Registry != "" {
		return cfg.Registry
	}
	return "https://registry.npmjs.org"
}

package generate

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/sofmeright/imageforge/src/config"
	"github.com/sofmeright/imageforge/src/tree"
)

const listing = `<html><pre>
<a href="v8.9.4/">v8.9.4/</a>
<a href="v8.12.0/">v8.12.0/</a>
<a href="v8.2.1/">v8.2.1/</a>
<a href="v10.1.0/">v10.1.0/</a>
<a href="v10.0.0/">v10.0.0/</a>
</pre></html>`

func upstreamServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/dist/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listing)
	})
	mux.HandleFunc("/registry/npm/latest", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"version":"6.4.1"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

const defaultTemplate = `FROM buildpack-deps:stretch

RUN set -ex \
  && for key in \
    "${NODE_KEYS}"
  ; do gpg --recv-keys "$key"; done

ENV NODE_VERSION 0.0.0
ENV NPM_VERSION 0.0.0
`

const slimTemplate = `FROM debian:stretch-slim
ENV NODE_VERSION 0.0.0
ENV NPM_VERSION 0.0.0
`

const alpineTemplate = `FROM alpine:0.0
ENV NODE_VERSION 0.0.0
`

// fixture builds the scenario universe: versions {8, 10}, slim and alpine
// variants present for version 10 only.
func fixture(t *testing.T, baseURI string) string {
	t.Helper()
	root := t.TempDir()

	write(t, filepath.Join(root, "config.toml"), fmt.Sprintf(
		"runtime = %q\npackage_manager = %q\nregistry = %q\nalpine_version = %q\n",
		"node", "npm", baseURI+"/registry", "3.8"))

	write(t, filepath.Join(root, "keys", "node.keys"), "AAA111\nBBB222\n")
	write(t, filepath.Join(root, "keys", "yarn.keys"), "CCC333\n")

	for _, major := range []string{"8", "10"} {
		dir := filepath.Join(root, major)
		write(t, filepath.Join(dir, "config.toml"), fmt.Sprintf("baseuri = %q\n", baseURI+"/dist/"))
		write(t, filepath.Join(dir, "Dockerfile"), "FROM buildpack-deps:stretch\nENV NODE_VERSION 0.0.1\nENV NPM_VERSION 0.0.1\n")
		write(t, filepath.Join(dir, "Dockerfile.template"), defaultTemplate)
	}

	write(t, filepath.Join(root, "10", "slim", "Dockerfile"), "FROM debian:stretch-slim\nENV NODE_VERSION 0.0.1\nENV NPM_VERSION 0.0.1\n")
	write(t, filepath.Join(root, "10", "Dockerfile-slim.template"), slimTemplate)
	write(t, filepath.Join(root, "10", "alpine", "Dockerfile"), "FROM alpine:3.7\nENV NODE_VERSION 0.0.1\n")
	write(t, filepath.Join(root, "10", "Dockerfile-alpine.template"), alpineTemplate)

	return root
}

func testConfig(root string) *config.Config {
	return &config.Config{
		Root:        root,
		Manifest:    ".gitlab-ci.yml",
		KeysDir:     "keys",
		Jobs:        2,
		HTTPTimeout: 5,
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestRun_FilteredStampingFullManifest(t *testing.T) {
	srv := upstreamServer(t)
	root := fixture(t, srv.URL)

	res, err := Run(context.Background(), Options{
		Config:   testConfig(root),
		Versions: tree.ParseFilter("10"),
		Variants: tree.ParseFilter("slim"),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Failed != 0 {
		t.Fatalf("Failed = %d, results: %+v", res.Failed, res.Targets)
	}

	// Only 10/slim passes both filters.
	slim := readFile(t, filepath.Join(root, "10", "slim", "Dockerfile"))
	if !strings.Contains(slim, "ENV NODE_VERSION 10.1.0") {
		t.Errorf("10/slim not stamped:\n%s", slim)
	}

	// Everything else keeps its prior content.
	for _, path := range []string{
		filepath.Join(root, "8", "Dockerfile"),
		filepath.Join(root, "10", "Dockerfile"),
		filepath.Join(root, "10", "alpine", "Dockerfile"),
	} {
		if got := readFile(t, path); !strings.Contains(got, "ENV NODE_VERSION 0.0.1") && !strings.Contains(got, "FROM alpine:3.7") {
			t.Errorf("unselected target %s was overwritten:\n%s", path, got)
		}
	}

	// The manifest nonetheless covers all 4 discovered targets:
	// 8, 10, 10/alpine, 10/slim.
	if res.StageCount != 4 {
		t.Errorf("StageCount = %d, want 4", res.StageCount)
	}
	manifest := readFile(t, res.ManifestPath)
	for _, job := range []string{"build-8:", "build-10:", "build-10-alpine:", "build-10-slim:"} {
		if !strings.Contains(manifest, "\n"+job) {
			t.Errorf("manifest missing %q:\n%s", job, manifest)
		}
	}
	var doc map[string]any
	if err := yaml.Unmarshal([]byte(manifest), &doc); err != nil {
		t.Fatalf("manifest is not valid yaml: %v", err)
	}
}

func TestRun_AllTargets(t *testing.T) {
	srv := upstreamServer(t)
	root := fixture(t, srv.URL)

	res, err := Run(context.Background(), Options{Config: testConfig(root)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Failed != 0 {
		t.Fatalf("Failed = %d, results: %+v", res.Failed, res.Targets)
	}

	def8 := readFile(t, filepath.Join(root, "8", "Dockerfile"))
	if !strings.Contains(def8, "ENV NODE_VERSION 8.12.0") {
		t.Errorf("version 8 resolved wrong:\n%s", def8)
	}
	if !strings.Contains(def8, "ENV NPM_VERSION 6.4.1") {
		t.Errorf("npm version not stamped:\n%s", def8)
	}
	if !strings.Contains(def8, `AAA111 \`) || strings.Contains(def8, "${NODE_KEYS}") {
		t.Errorf("key splice wrong:\n%s", def8)
	}

	alpine := readFile(t, filepath.Join(root, "10", "alpine", "Dockerfile"))
	if !strings.Contains(alpine, "FROM alpine:3.8") {
		t.Errorf("alpine base version not stamped:\n%s", alpine)
	}
	if !strings.Contains(alpine, "ENV NODE_VERSION 10.1.0") {
		t.Errorf("alpine runtime version wrong:\n%s", alpine)
	}
}

func TestRun_SkipFetchReusesExistingVersions(t *testing.T) {
	srv := upstreamServer(t)
	root := fixture(t, srv.URL)

	res, err := Run(context.Background(), Options{
		Config:    testConfig(root),
		SkipFetch: true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Failed != 0 {
		t.Fatalf("Failed = %d, results: %+v", res.Failed, res.Targets)
	}

	// Package-manager version comes from the existing Dockerfile (0.0.1),
	// never from the registry (6.4.1).
	def8 := readFile(t, filepath.Join(root, "8", "Dockerfile"))
	if !strings.Contains(def8, "ENV NPM_VERSION 0.0.1") {
		t.Errorf("skip mode did not reuse existing npm version:\n%s", def8)
	}
	if strings.Contains(def8, "6.4.1") {
		t.Errorf("skip mode fetched a fresh npm version:\n%s", def8)
	}

	// Alpine base version comes from the existing FROM tag (3.7),
	// not the configured 3.8.
	alpine := readFile(t, filepath.Join(root, "10", "alpine", "Dockerfile"))
	if !strings.Contains(alpine, "FROM alpine:3.7") {
		t.Errorf("skip mode did not reuse existing alpine version:\n%s", alpine)
	}

	// The runtime version itself is still freshly resolved.
	if !strings.Contains(alpine, "ENV NODE_VERSION 10.1.0") {
		t.Errorf("runtime version not resolved in skip mode:\n%s", alpine)
	}
}

func TestRun_ResolutionFailureFallsBack(t *testing.T) {
	srv := upstreamServer(t)
	root := fixture(t, srv.URL)

	// Point version 8 at a dead listing; version 10 stays healthy.
	write(t, filepath.Join(root, "8", "config.toml"),
		fmt.Sprintf("baseuri = %q\n", srv.URL+"/missing/"))

	res, err := Run(context.Background(), Options{Config: testConfig(root)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The failed resolution falls back to patch "0" and still stamps;
	// it never aborts sibling targets.
	if res.Failed != 0 {
		t.Fatalf("Failed = %d, want 0 (fallback, not failure): %+v", res.Failed, res.Targets)
	}

	var v8 TargetResult
	for _, tr := range res.Targets {
		if tr.Target.String() == "8" {
			v8 = tr
		}
	}
	if v8.Warning == "" {
		t.Error("expected a resolution warning for version 8")
	}
	if v8.Version != "8.0" {
		t.Errorf("fallback version = %q, want %q", v8.Version, "8.0")
	}

	def8 := readFile(t, filepath.Join(root, "8", "Dockerfile"))
	if !strings.Contains(def8, "ENV NODE_VERSION 8.0") {
		t.Errorf("fallback version not stamped:\n%s", def8)
	}

	def10 := readFile(t, filepath.Join(root, "10", "Dockerfile"))
	if !strings.Contains(def10, "ENV NODE_VERSION 10.1.0") {
		t.Errorf("sibling target affected by failed resolution:\n%s", def10)
	}
}

func TestRun_EmptyTreeAborts(t *testing.T) {
	cfg := testConfig(t.TempDir())
	if _, err := Run(context.Background(), Options{Config: cfg}); err == nil {
		t.Fatal("expected fatal error for empty version universe")
	}
}

func TestRun_NoManifest(t *testing.T) {
	srv := upstreamServer(t)
	root := fixture(t, srv.URL)

	res, err := Run(context.Background(), Options{
		Config:     testConfig(root),
		NoManifest: true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ManifestPath != "" {
		t.Errorf("ManifestPath = %q, want empty", res.ManifestPath)
	}
	if _, err := os.Stat(filepath.Join(root, ".gitlab-ci.yml")); !os.IsNotExist(err) {
		t.Error("manifest written despite --no-manifest")
	}
}

func TestRun_StampFailureIsIsolated(t *testing.T) {
	srv := upstreamServer(t)
	root := fixture(t, srv.URL)

	// Break version 8's template; version 10 must still regenerate.
	if err := os.Remove(filepath.Join(root, "8", "Dockerfile.template")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	res, err := Run(context.Background(), Options{Config: testConfig(root)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Failed != 1 {
		t.Fatalf("Failed = %d, want 1: %+v", res.Failed, res.Targets)
	}

	def10 := readFile(t, filepath.Join(root, "10", "Dockerfile"))
	if !strings.Contains(def10, "ENV NODE_VERSION 10.1.0") {
		t.Errorf("healthy target blocked by sibling failure:\n%s", def10)
	}

	// The manifest still covers every discovered target.
	if res.StageCount != 4 {
		t.Errorf("StageCount = %d, want 4", res.StageCount)
	}
}

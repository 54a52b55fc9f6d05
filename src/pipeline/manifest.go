package pipeline

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sofmeright/imageforge/src/tree"
)

// banner warns readers off hand-editing the generated manifest.
const banner = `# This file is generated by imageforge; do not edit it directly.
# Run "imageforge update" to regenerate.

`

// Manifest is the CI pipeline definition being built: one stage block per
// discovered target, in discovery order. It is append-only and rebuilt from
// scratch every run. The yaml node tree keeps job order stable, which a
// plain map marshal would not.
type Manifest struct {
	root   *yaml.Node
	stages int
}

// NewManifest creates a manifest with the pipeline head: the stages list
// and the hidden .build job template every stage extends.
func NewManifest() *Manifest {
	root := mapping()

	appendPair(root, scalar("stages"), sequence(scalar("build")))
	appendPair(root, scalar(".build"), mapping(
		scalar("stage"), scalar("build"),
		scalar("image"), scalar("docker:latest"),
		scalar("services"), sequence(scalar("docker:dind")),
		scalar("script"), sequence(
			scalar(`dir="$VERSION"`),
			scalar(`tag="$VERSION"`),
			scalar(`if [ "$VARIANT" != "default" ]; then dir="$VERSION/$VARIANT"; tag="$VERSION-$VARIANT"; fi`),
			scalar(`docker build -t "$CI_PROJECT_NAME:$tag" "$dir"`),
		),
	))

	return &Manifest{root: root}
}

// AddStage appends one build stage for a (version, variant) pair.
// The alpine variant additionally gets a cache stanza and a build-tool
// summary step.
func (m *Manifest) AddStage(version, variant string) {
	name := "build-" + version
	if variant != tree.VariantDefault {
		name += "-" + variant
	}

	job := mapping(
		scalar("extends"), scalar(".build"),
		scalar("variables"), mapping(
			scalar("VERSION"), quoted(version),
			scalar("VARIANT"), quoted(variant),
		),
	)

	if variant == tree.VariantAlpine {
		appendPair(job, scalar("cache"), mapping(
			scalar("paths"), sequence(scalar(".docker-cache/")),
		))
		appendPair(job, scalar("after_script"), sequence(
			scalar(`docker history "$CI_PROJECT_NAME:$VERSION-$VARIANT"`),
		))
	}

	appendPair(m.root, scalar(name), job)
	m.stages++
}

// StageCount returns the number of stage blocks added so far.
func (m *Manifest) StageCount() int {
	return m.stages
}

// Bytes renders the manifest document, banner included.
func (m *Manifest) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(banner)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m.root); err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// Write renders the manifest and atomically replaces path.
func (m *Manifest) Write(path string) error {
	data, err := m.Bytes()
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// yaml node constructors.

func scalar(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: value}
}

func quoted(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Style: yaml.DoubleQuotedStyle, Value: value}
}

func sequence(items ...*yaml.Node) *yaml.Node {
	return &yaml.Node{Kind: yaml.SequenceNode, Content: items}
}

func mapping(pairs ...*yaml.Node) *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Content: pairs}
}

func appendPair(m *yaml.Node, key, value *yaml.Node) {
	m.Content = append(m.Content, key, value)
}

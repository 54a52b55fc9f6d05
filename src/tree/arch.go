package tree

import "runtime"

// DefaultArch is the architecture that needs no FROM image prefix.
const DefaultArch = "amd64"

// goarchToDocker maps Go architecture names to Docker Hub's
// architecture-namespace labels.
var goarchToDocker = map[string]string{
	"amd64":   "amd64",
	"386":     "i386",
	"arm":     "arm32v7",
	"arm64":   "arm64v8",
	"ppc64le": "ppc64le",
	"s390x":   "s390x",
}

// DetectArch returns the Docker architecture label for the current host.
// An unknown GOARCH falls back to DefaultArch.
func DetectArch() string {
	if arch, ok := goarchToDocker[runtime.GOARCH]; ok {
		return arch
	}
	return DefaultArch
}

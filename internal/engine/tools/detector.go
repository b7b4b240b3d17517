// Package tools detects and version-probes the external merge tool
// (ffmpeg) the Merger's external-tool backend shells out to.
package tools

import (
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// Info describes an external tool found on the system.
type Info struct {
	Binary    string
	Version   string
	Available bool
}

// DetectFFmpeg looks for ffmpeg on PATH and probes its version. Available
// is false (not an error) when ffmpeg is simply absent: the Merger falls
// back to its in-process backend in that case.
func DetectFFmpeg() *Info {
	info := &Info{}
	path, err := FindTool("ffmpeg")
	if err != nil {
		return info
	}
	info.Binary = path
	info.Available = true
	info.Version, _ = GetVersion(path)
	return info
}

// FindTool searches PATH for name.
func FindTool(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", name, err)
	}
	return path, nil
}

// GetVersion runs `<toolPath> --version` and extracts a version string
// from its first line of output.
func GetVersion(toolPath string) (string, error) {
	cmd := exec.Command(toolPath, "--version")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to get version for %s: %w", toolPath, err)
	}
	version := parseVersion(string(output))
	if version == "" {
		return "", fmt.Errorf("failed to parse version from output: %s", output)
	}
	return version, nil
}

var versionPattern = regexp.MustCompile(`version\s+([^\s,]+)`)
var genericPattern = regexp.MustCompile(`(\d+\.\d+(?:\.\d+)?)`)

func parseVersion(output string) string {
	output = strings.TrimSpace(output)
	lines := strings.Split(output, "\n")
	if len(lines) == 0 {
		return ""
	}
	firstLine := lines[0]

	if m := versionPattern.FindStringSubmatch(firstLine); len(m) > 1 {
		return m[1]
	}
	if m := genericPattern.FindStringSubmatch(firstLine); len(m) > 1 {
		return m[1]
	}
	if len(firstLine) > 0 && len(firstLine) < 100 {
		return firstLine
	}
	return ""
}

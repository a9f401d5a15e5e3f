package deps

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// EnvSCTDir names the Spinal Cord Toolbox installation directory.
const EnvSCTDir = "SCT_DIR"

// ToolRequirements builds one requirement per external program. binary maps
// a tool name to the configured command; nil uses the name itself.
func ToolRequirements(tools []string, binary func(string) string) []Requirement {
	reqs := make([]Requirement, 0, len(tools))
	for _, name := range tools {
		cmd := name
		if binary != nil {
			cmd = binary(name)
		}
		reqs = append(reqs, Requirement{
			Name:        name,
			Command:     cmd,
			Description: "Spinal Cord Toolbox program",
		})
	}
	return reqs
}

// CheckTools evaluates requirements like CheckBinaries, but a program missing
// from PATH is also looked up in the toolbox's bin directory under sctDir,
// which is where SCT installs its launchers.
func CheckTools(requirements []Requirement, sctDir string) []Status {
	results := CheckBinaries(requirements)
	sctDir = strings.TrimSpace(sctDir)
	if sctDir == "" {
		return results
	}
	for i, status := range results {
		if status.Available || status.Command == "" || strings.ContainsRune(status.Command, filepath.Separator) {
			continue
		}
		if candidate, ok := sctLauncher(sctDir, status.Command); ok {
			results[i].Command = candidate
			results[i].Available = true
			results[i].Detail = "found in " + EnvSCTDir
		}
	}
	return results
}

// ResolveTool returns the executable for command, preferring PATH and
// falling back to the toolbox's bin directory.
func ResolveTool(command, sctDir string) (string, bool) {
	if resolved, err := exec.LookPath(command); err == nil {
		return resolved, true
	}
	if strings.TrimSpace(sctDir) == "" {
		return "", false
	}
	return sctLauncher(sctDir, command)
}

func sctLauncher(sctDir, command string) (string, bool) {
	name := command
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	candidate := filepath.Join(sctDir, "bin", name)
	info, err := os.Stat(candidate)
	if err != nil || !isExecutable(info) {
		return "", false
	}
	return candidate, true
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}

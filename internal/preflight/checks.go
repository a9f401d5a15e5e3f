package preflight

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"cordflow/internal/config"
	"cordflow/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.W_OK|unix.X_OK, "read/write ok")
}

// CheckReadableDirectory verifies that the directory exists and can be listed.
// The dataset is only ever read, so write access is not required.
func CheckReadableDirectory(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.X_OK, "read ok")
}

func checkDirectory(name, path string, mode uint32, ok string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, ok)}
}

// TemplateFiles are the template images warm-started registrations read.
var TemplateFiles = []string{"PAM50_t1.nii.gz", "PAM50_t2s.nii.gz", "PAM50_cord.nii.gz"}

// CheckTemplate verifies that the PAM50 template folder holds the images the
// multimodal registrations use.
func CheckTemplate(dir string) Result {
	const name = "PAM50 template"
	if dir == "" {
		return Result{Name: name, Detail: "template_dir not configured"}
	}
	for _, file := range TemplateFiles {
		path := filepath.Join(dir, "template", file)
		if _, err := os.Stat(path); err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: %s missing)", dir, file)}
		}
	}
	return Result{Name: name, Passed: true, Detail: dir}
}

// CheckSystemDeps evaluates tool availability for the given program names.
// Configured binary overrides take precedence; programs missing from PATH
// are looked up under $SCT_DIR/bin.
func CheckSystemDeps(cfg *config.Config, tools []string) []deps.Status {
	return deps.CheckTools(deps.ToolRequirements(tools, cfg.Binary), os.Getenv(deps.EnvSCTDir))
}

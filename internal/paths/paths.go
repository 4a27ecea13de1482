package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	appName = "cruxgate"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644
)

// Path to the directory for runtime files (sockets, PIDs).
//
//	Linux:   $XDG_RUNTIME_DIR/cruxgate or /run/user/<uid>/cruxgate
//	macOS:   ~/Library/Caches/cruxgate/run
func Runtime() string {
	if xdg.RuntimeDir != "" {
		return filepath.Join(xdg.RuntimeDir, appName)
	}
	return filepath.Join(xdg.CacheHome, appName, "run")
}

// Default path to the Unix domain socket of the build daemon.
func Socket() string {
	return filepath.Join(Runtime(), appName+".sock")
}

// Default path to the daemon PID file.
func PIDFile() string {
	return filepath.Join(Runtime(), appName+".pid")
}

// Default directory for build outputs of the named recipe.
//
//	Linux:   $XDG_DATA_HOME/cruxgate/builds/<name>
//	macOS:   ~/Library/Application Support/cruxgate/builds/<name>
func Builds(name string) string {
	return filepath.Join(xdg.DataHome, appName, "builds", name)
}

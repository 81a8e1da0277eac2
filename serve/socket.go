package serve

import (
	"fmt"
	"os"
)

// ResolveSocketPath returns the daemon socket path.
// Resolution order: $SUDHAR_SOCKET > $XDG_RUNTIME_DIR/sudhar.sock > /tmp/sudhar-<uid>.sock
func ResolveSocketPath() string {
	if path := os.Getenv("SUDHAR_SOCKET"); path != "" {
		return path
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir + "/sudhar.sock"
	}
	return fmt.Sprintf("/tmp/sudhar-%d.sock", os.Getuid())
}

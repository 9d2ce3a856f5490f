// Package browser opens a URL in the system default browser. Used after a
// tunnel comes up to jump straight to the forwarded web interface.
package browser

import (
	"os/exec"
	"runtime"
)

// Open launches the platform opener detached and does not wait for it.
func Open(url string) error {
	argv := args(runtime.GOOS, url)
	cmd := exec.Command(argv[0], argv[1:]...)
	return cmd.Start()
}

func args(goos, url string) []string {
	switch goos {
	case "windows":
		return []string{"rundll32", "url.dll,FileProtocolHandler", url}
	case "darwin":
		return []string{"open", url}
	default:
		return []string{"xdg-open", url}
	}
}

package auth

import (
	"os/exec"
	"runtime"
)

// openBrowser launches the system browser at url. Best effort; Login falls
// back to printing the URL when this fails.
func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}

package shared

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

var (
	getRuntime = func() string { return runtime.GOOS }
	lookupEnv  = os.LookupEnv
)

// OpenBrowser starts the user's browser on url without waiting for it to exit.
//
// $BROWSER wins over the OS default opener.
func OpenBrowser(url string) error {
	name, args, err := browserCommand(getRuntime(), url)
	if err != nil {
		return err
	}
	if err := exec.Command(name, args...).Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}

func browserCommand(goos, url string) (string, []string, error) {
	if b, ok := lookupEnv("BROWSER"); ok && b != "" {
		return b, []string{url}, nil
	}
	switch goos {
	case "darwin":
		return "open", []string{url}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{url}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}, nil
	default:
		return "", nil, fmt.Errorf("no browser opener for %s", goos)
	}
}

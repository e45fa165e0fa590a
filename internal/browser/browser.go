// Package browser opens URLs in the user's default browser.
package browser

import (
	"io"

	"github.com/pkg/browser"
)

func init() {
	// Browser launchers write noise to the launcher's stdio.
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
}

// OpenURL opens url in the default browser.
func OpenURL(url string) error {
	return browser.OpenURL(url)
}

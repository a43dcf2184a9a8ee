//go:build !ORT

package provider

import "github.com/knights-analytics/hugot"

// newLocalSession uses the pure Go runtime.
func newLocalSession() (*hugot.Session, error) {
	return hugot.NewGoSession()
}

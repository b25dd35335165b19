package version

import (
	"fmt"
	"net/http"
	"runtime"
)

// This variables are injected at build time.

// Version hosts the version of the app.
var Version = "development"

// Commit is the commit hash of the build
var Commit string

// BuildDate is the date it was built
var BuildDate string

// GoVersion is the go version that was used to compile this
var GoVersion string

// UserAgent is the value sent in the User-Agent header of every outgoing
// request.
func UserAgent() string {
	return fmt.Sprintf("securechannel/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
}

// SetUserAgent sets the User-Agent header of req.
func SetUserAgent(req *http.Request) {
	req.Header.Set("User-Agent", UserAgent())
}

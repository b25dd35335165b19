package cmd

import (
	"fmt"
	"io"
	"runtime"

	"github.com/jetstack/securechannel/pkg/version"
)

func printVersion(out io.Writer, verbose bool) {
	fmt.Fprintln(out, "securechannel version: ", version.Version, runtime.GOOS+"/"+runtime.GOARCH)
	if verbose {
		fmt.Fprintln(out, "  Commit: ", version.Commit)
		fmt.Fprintln(out, "  Built:  ", version.BuildDate)
		fmt.Fprintln(out, "  Go:     ", runtime.Version())
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
)

// CLI is the live runtime command line.
type CLI struct {
	Host  HostCmd  `cmd:"" help:"Run a host instance: hold the control lock, poll playback and serve host controls."`
	Guest GuestCmd `cmd:"" help:"Run a guest instance: follow the session and serve displays."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("musicbingo-live"),
		kong.Description("Live reveal session runtime."),
		kong.UsageOnError(),
	)

	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"os"

	"github.com/aretw0/comfyctl/internal/cli"
)

func main() {
	ctx := cli.NewSignalContext(context.Background())
	defer ctx.Cancel()

	os.Exit(cli.ExitCode(Execute(ctx)))
}

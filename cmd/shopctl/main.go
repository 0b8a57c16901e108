package main

import (
	"context"
	"os"

	"github.com/plaenen/shopcore/internal/cli"
	"github.com/plaenen/shopcore/internal/logging"
)

func main() {
	if err := cli.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		logging.Logger().Error("fatal error", "error", err)
		os.Exit(1)
	}
}

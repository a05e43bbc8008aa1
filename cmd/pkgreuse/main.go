package main

import (
	"context"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"

	"github.com/matzehuels/pkgreuse/internal/cli"
	"github.com/matzehuels/pkgreuse/pkg/buildinfo"
)

func main() {
	c := cli.New(os.Stderr, cli.LogInfo)

	err := fang.Execute(
		context.Background(),
		c.RootCommand(),
		fang.WithVersion(buildinfo.Version),
		fang.WithCommit(buildinfo.Commit),
		fang.WithErrorHandler(cli.ErrorHandler),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	)
	os.Exit(cli.ExitCode(err))
}

package main

import (
	"log/slog"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/bakery/cmd/bakery/commands"
	foundationerrors "git.home.luguber.info/inful/bakery/internal/foundation/errors"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("bakery"),
		kong.Description("Incremental bake engine for static sites"),
		kong.UsageOnError(),
	)
	err := parser.Run(cli)
	foundationerrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
}

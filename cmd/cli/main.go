package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/docsign/cmd/cli/internal/commands"
	"github.com/wolfeidau/docsign/internal/logger"
)

var (
	version = "dev"
	cli     struct {
		Issue   commands.IssueCmd   `cmd:"" help:"Issue a key pair and certificate"`
		Sign    commands.SignCmd    `cmd:"" help:"Sign a document"`
		Verify  commands.VerifyCmd  `cmd:"" help:"Verify a document signature"`
		Chain   commands.ChainCmd   `cmd:"" help:"Inspect certificate chains"`
		Token   commands.TokenCmd   `cmd:"" help:"Generate a JWT token"`
		Profile commands.ProfileCmd `cmd:"" help:"Manage identity profiles"`
		Debug   bool                `help:"Enable debug mode."`
		Version kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("docsign"),
		kong.Description("Issue certificates, sign and verify documents."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	log.Logger = logger.Setup(cli.Debug)
	if !cli.Debug {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}

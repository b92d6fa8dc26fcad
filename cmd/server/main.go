package main

import (
	"context"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/wolfeidau/docsign/cmd/server/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode." env:"DOCSIGN_DEBUG"`
		Version kong.VersionFlag
		Serve   commands.ServeCmd `cmd:"" default:"withargs" help:"Start the docsign API server"`
	}
)

func main() {
	// Values already in the environment win over the dotenv file; a missing file is fine
	envFile := os.Getenv("DOCSIGN_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}

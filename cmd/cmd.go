// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func ownerFlagDef() cli.Flag {
	return &cli.StringFlag{
		Name:    "owner",
		Aliases: []string{"o"},
		Usage:   "Owner the credential and imports belong to",
		Value:   defaultOwner,
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "Output raw JSON",
	}
}

// setupCommand initializes config and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create config.toml if missing, then initialize the database and run migrations",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "rollback",
				Usage: "Roll back the most recent migration instead",
			},
		},
		Action: r.Setup,
	}
}

// keygenCommand prints a new vault key.
func keygenCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "keygen",
		Usage:  "Generate a credential encryption key for [security] encryption_key",
		Action: r.Keygen,
	}
}

// serveCommand runs the HTTP service.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP service (auth, imports, health & metrics)",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address, overrides [server] host and port",
			},
		},
		Action: r.withDeps(r.Serve),
	}
}

// authCommand handles Spotify connection management
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the Spotify connection",
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "Connect Spotify through the browser (OAuth2 authorization code flow)",
				Flags:  []cli.Flag{configFlag(), ownerFlagDef()},
				Action: r.withDeps(r.AuthLogin),
			},
			{
				Name:   "status",
				Usage:  "Show whether a valid Spotify credential is stored",
				Flags:  []cli.Flag{configFlag(), ownerFlagDef(), jsonFlag()},
				Action: r.withDeps(r.AuthStatus),
			},
			{
				Name:   "refresh",
				Usage:  "Refresh the stored access token",
				Flags:  []cli.Flag{configFlag(), ownerFlagDef()},
				Action: r.withDeps(r.AuthRefresh),
			},
			{
				Name:   "logout",
				Usage:  "Delete the stored Spotify credential",
				Flags:  []cli.Flag{configFlag(), ownerFlagDef()},
				Action: r.withDeps(r.AuthLogout),
			},
		},
	}
}

// importCommand runs a single playlist import.
func importCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import a Spotify playlist by URL or URI",
		ArgsUsage: "<playlist-url|spotify:playlist:id>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "ref"},
		},
		Flags: []cli.Flag{
			configFlag(),
			ownerFlagDef(),
			jsonFlag(),
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print JSON output",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show live progress in an interactive view",
			},
		},
		Action: r.withDeps(r.Import),
	}
}

// importsCommand reads import history.
func importsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "imports",
		Usage: "Inspect past imports",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent imports",
				Flags: []cli.Flag{
					configFlag(),
					ownerFlagDef(),
					jsonFlag(),
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of imports to return",
						Value: 20,
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: text, csv or markdown",
						Value:   "text",
					},
					&cli.StringFlag{
						Name:  "output",
						Usage: "Write the rendered list to a file instead of stdout",
					},
				},
				Action: r.withDeps(r.ImportsList),
			},
			{
				Name:      "show",
				Usage:     "Show one import summary",
				ArgsUsage: "<import-id>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags:  []cli.Flag{configFlag(), ownerFlagDef(), jsonFlag()},
				Action: r.withDeps(r.ImportsShow),
			},
		},
	}
}

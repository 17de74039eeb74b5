package main

import (
	"context"
	"os"

	"github.com/alecthomas/kong"
)

var (
	version = "dev"
	cli     struct {
		Login     LoginCmd     `cmd:"" help:"Sign in and store the session token"`
		Logout    LogoutCmd    `cmd:"" help:"Sign out and forget the session token"`
		Whoami    WhoamiCmd    `cmd:"" help:"Show the signed-in user and their organizations"`
		Orgs      OrgsCmd      `cmd:"" help:"List organizations you belong to"`
		Plans     PlansCmd     `cmd:"" help:"List subscription plans"`
		Clients   ClientsCmd   `cmd:"" help:"List an organization's clients"`
		Invoices  InvoicesCmd  `cmd:"" help:"List an organization's invoices"`
		Dashboard DashboardCmd `cmd:"" help:"Show an organization's revenue dashboard"`

		API     string `help:"API base URL" env:"BIZDESK_API" default:"http://localhost:8080"`
		Version kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("bizdesk"),
		kong.Description("Command-line client for the bizdesk API."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&Globals{API: newAPIClient(cli.API, defaultTokenFile()), Out: os.Stdout})
	cmd.FatalIfErrorf(err)
}

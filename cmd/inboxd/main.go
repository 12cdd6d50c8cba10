package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/casalink/inboxd/internal/config"
	"github.com/casalink/inboxd/internal/daemon"
	"github.com/casalink/inboxd/internal/profile"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	listenFlag := flag.String("listen", "", "listen address (overrides config)")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(profile.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		fmt.Fprintf(os.Stderr, "create %s with user_id and api_base_url set\n", profile.ConfigPath())
		os.Exit(1)
	}
	if cfg.UserID == "" || cfg.APIBaseURL == "" {
		fmt.Fprintln(os.Stderr, "error: user_id and api_base_url must be set in config")
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			Profile: profileName,
			Config:  *cfg,
			Listen:  *listenFlag,
		}),
	)

	app.Run()
}

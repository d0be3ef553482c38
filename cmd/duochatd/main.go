package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/duochat/internal/daemon"
	"github.com/matheus3301/duochat/internal/session"
	"go.uber.org/fx"
)

func main() {
	sessionFlag := flag.String("session", "", "session name, also the user name (overrides config default)")
	relayFlag := flag.String("relay", "", "relay websocket URL (overrides config relay_url)")
	dbFlag := flag.String("db", "", "database path (overrides config db_path)")
	flag.Parse()

	settings := session.ResolveSettings(*sessionFlag)
	if err := session.ValidateName(settings.Name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *relayFlag != "" {
		settings.RelayURL = *relayFlag
	}
	if *dbFlag != "" {
		settings.DBPath = *dbFlag
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			SessionName: settings.Name,
			RelayURL:    settings.RelayURL,
			DBPath:      settings.DBPath,
		}),
	)

	app.Run()
}

// relaypeer — chat demo for the relay peer adapter.
//
// One instance hosts a session and prints its identity; others join with that
// identity. Traffic flows over WebRTC data channels; the broker (relayd) is
// only used to find each other.
//
// It can be launched interactively (no flags) or non-interactively via CLI
// flags (-role, -host, -broker, -pin, -config).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/pterm/pterm"

	"github.com/1ureka/relaypeer/internal/app"
	"github.com/1ureka/relaypeer/internal/config"
	"github.com/1ureka/relaypeer/internal/relay"
	"github.com/1ureka/relaypeer/internal/transport"
	"github.com/1ureka/relaypeer/internal/util"
)

var version = "dev"

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// CLI flags.
	role := flag.String("role", "", "Role: host or join")
	hostIdentity := flag.String("host", "", "Identity of the host to join (join only)")
	brokerURL := flag.String("broker", "", "Broker WebSocket URL (overrides broker.url)")
	pin := flag.String("pin", "", "Broker PIN (overrides broker.pin)")
	configPath := flag.String("config", config.DefaultPath(), "Path to a YAML config file")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("relaypeer — v%s", version))
	pterm.Println()

	cfg, err := config.Load(*configPath)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	if *brokerURL != "" {
		cfg.Broker.URL = *brokerURL
	}
	if *pin != "" {
		cfg.Broker.PIN = *pin
	}

	net := transport.New(transport.Config{
		BrokerURL:  cfg.Broker.URL,
		PIN:        cfg.Broker.PIN,
		ICEServers: cfg.WebRTCICEServers(),
	})
	defer net.Close()

	switch config.Role(*role) {
	case "":
		// No -role flag → interactive mode.
		err = runInteractive(ctx, net)

	case config.RoleHost:
		err = app.RunHost(ctx, net, os.Stdin, os.Stdout)

	case config.RoleJoin:
		if *hostIdentity == "" {
			util.LogError("missing -host for join role")
			os.Exit(1)
		}
		err = app.RunJoin(ctx, net, *hostIdentity, os.Stdin, os.Stdout)

	default:
		util.LogError("invalid -role: must be 'host' or 'join'")
		os.Exit(1)
	}

	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	util.LogInfo("session closed")
}

// runInteractive prompts for the role when no -role flag is provided.
func runInteractive(ctx context.Context, net *transport.Network) error {
	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Host — Start a session", "Join — Connect to a host"}).
		WithDefaultText("Select your role").
		Show()

	pterm.Println()

	if strings.HasPrefix(role, "Host") {
		return app.RunHost(ctx, net, os.Stdin, os.Stdout)
	}
	return app.RunJoin(ctx, net, askIdentity(), os.Stdin, os.Stdout)
}

// askIdentity prompts the user for a host identity until a valid one is
// entered.
func askIdentity() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Host identity (e.g. relay:...)").
			Show()

		raw = strings.TrimSpace(raw)
		if _, err := relay.ParseIdentity(raw); err == nil {
			pterm.Println()
			return raw
		}

		pterm.Println()
		util.LogWarning("invalid identity: it should start with relay:")
	}
}

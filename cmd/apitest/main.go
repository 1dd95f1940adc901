package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rickgao/airvpn-bridge/internal/api"
	"github.com/rickgao/airvpn-bridge/internal/config"
	"github.com/rickgao/airvpn-bridge/internal/fetcher"
	"github.com/rickgao/airvpn-bridge/internal/model"
	"github.com/rickgao/airvpn-bridge/internal/secret"
	"github.com/rickgao/airvpn-bridge/internal/sensor"
)

func main() {
	baseURL := flag.String("base-url", config.DefaultBaseURL, "AirVPN API base URL")
	key := flag.String("key", os.Getenv("AIRVPN_API_KEY"), "API key (default: $AIRVPN_API_KEY, then the keyring)")
	instance := flag.String("instance", "", "instance id used for the keyring lookup")
	timeout := flag.Duration("timeout", 60*time.Second, "overall timeout")
	flag.Parse()

	apiKey := *key
	if apiKey == "" {
		k, err := secret.New(*instance).Lookup()
		if err != nil {
			log.Fatalf("no API key: pass -key, set AIRVPN_API_KEY or run bridge -store-key (%v)", err)
		}
		apiKey = k
	}

	client := api.NewClient(*baseURL, apiKey, api.WithTimeout(30*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fmt.Println("=== Fetching snapshot ===")
	start := time.Now()
	snap, err := fetcher.New(client, nil).Fetch(ctx)
	if err != nil {
		var fe *fetcher.FetchError
		if errors.As(err, &fe) {
			log.Fatalf("Fetch failed (%s on %s): %v", fe.Kind, fe.Endpoint, err)
		}
		log.Fatalf("Fetch failed: %v", err)
	}
	fmt.Printf("Fetched in %v\n", time.Since(start).Round(time.Millisecond))

	printSummary(os.Stdout, snap)

	fmt.Println("\n=== Projected states ===")
	printStates(os.Stdout, sensor.Project(snap))

	fmt.Println("\n=== All tests passed ===")
}

func printSummary(w io.Writer, snap *model.Snapshot) {
	login, _ := snap.Login()
	credits, _ := snap.User.String("credits")
	days, _ := snap.User.String("expiration_days")

	fmt.Fprintf(w, "Login: %s\n", login)
	fmt.Fprintf(w, "Credits: %s\n", credits)
	fmt.Fprintf(w, "Expiration days: %s\n", days)
	fmt.Fprintf(w, "Devices: %s\n", humanize.Comma(int64(len(snap.Devices))))
	fmt.Fprintf(w, "Sessions: %s\n", humanize.Comma(int64(len(snap.Sessions))))

	for _, sess := range snap.Sessions {
		name, _ := sess.String("device_name")
		server, _ := sess.String("server_name")
		read, _ := sess.Int64("bytes_read")
		write, _ := sess.Int64("bytes_write")
		fmt.Fprintf(w, "  - %s via %s: %s down, %s up\n",
			name, server, humanize.Bytes(uint64(max(read, 0))), humanize.Bytes(uint64(max(write, 0))))
	}
}

func printStates(w io.Writer, states []sensor.State) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTITY\tNAME\tSTATE\tUNIT")
	for _, st := range states {
		value := st.String()
		if human, ok := st.Attributes["human"]; ok {
			value += " (" + human + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", st.Entity.UniqueID, st.Entity.Name, value, st.Entity.Description.Unit)
	}
	tw.Flush()
}

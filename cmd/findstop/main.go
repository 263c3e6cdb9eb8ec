// Command findstop resolves a single place name to a transit stop,
// running the same fallback chain the exporter uses. Handy for
// checking why a school's travel time came out N/A.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/me97esn/gymnasieskolor/internal/config"
	"github.com/me97esn/gymnasieskolor/internal/providers/resrobot"
	"github.com/me97esn/gymnasieskolor/internal/ratelimit"
	"github.com/me97esn/gymnasieskolor/internal/stops"
)

func main() {
	var (
		query = flag.String("query", "", "place name to resolve (required)")
		hint  = flag.String("hint", "", "location hint for the compound fallback, e.g. a district")
	)
	flag.Parse()

	log := logrus.New()
	if *query == "" {
		log.Fatal("usage: findstop -query <place name> [-hint <district>]")
	}

	cfg := config.Load()
	if cfg.ResRobotAPIKey == "" {
		log.Fatal("RESROBOT_API_KEY not found in .env or environment")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	limiter := ratelimit.New(map[string]ratelimit.ServiceLimit{
		resrobot.Service: {MinInterval: 1500 * time.Millisecond},
	})
	transit := resrobot.New(cfg.ResRobotBaseURL, cfg.ResRobotAPIKey, limiter)

	stop, found, err := stops.NewResolver(transit, log).Resolve(ctx, *query, *hint)
	if err != nil {
		log.Fatal(err)
	}
	if !found {
		log.Fatalf("no stop found for %q", *query)
	}
	fmt.Printf("%s (id %s, weight %d)\n", stop.Name, stop.ExternalID, stop.Weight)
}

// Command export produces the denormalized school CSV: one row per
// (school, program, study path), each enriched with the public
// transport travel time from the configured origin.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/me97esn/gymnasieskolor/internal/config"
	"github.com/me97esn/gymnasieskolor/internal/export"
	"github.com/me97esn/gymnasieskolor/internal/pipeline"
	"github.com/me97esn/gymnasieskolor/internal/providers/ednia"
	"github.com/me97esn/gymnasieskolor/internal/providers/resrobot"
	"github.com/me97esn/gymnasieskolor/internal/ratelimit"
	"github.com/me97esn/gymnasieskolor/internal/sftpclient"
	"github.com/me97esn/gymnasieskolor/internal/stops"
	"github.com/me97esn/gymnasieskolor/internal/traveltime"
)

func main() {
	var (
		origin       = flag.String("origin", "Björkhagen", "starting point for travel time calculations")
		outPath      = flag.String("out", "schools.csv", "output csv path")
		limit        = flag.Int("limit", 0, "limit number of schools, 0 = all (for testing)")
		workers      = flag.Int("workers", 1, "schools processed in parallel")
		municipality = flag.String("municipality", "stockholm", "municipality filter for the catalog")
		tierName     = flag.String("tier", "bronze", "rate-limit tier (see -tiers-file)")
		tiersFile    = flag.String("tiers-file", "", "optional yaml file with rate-limit tiers")
		pageSize     = flag.Int("page-size", 500, "catalog page size")
		compress     = flag.Bool("compress", false, "brotli-compress the output (.br)")
		uploadSFTP   = flag.Bool("sftp", false, "upload the generated file via SFTP")
		verbose      = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg := config.Load()
	if cfg.ResRobotAPIKey == "" {
		log.Fatal("RESROBOT_API_KEY not found in .env or environment")
	}

	tiers, err := config.LoadTiers(*tiersFile)
	if err != nil {
		log.Fatal(err)
	}
	tier, ok := tiers[*tierName]
	if !ok {
		log.Fatalf("unknown tier %q", *tierName)
	}

	if dir := filepath.Dir(*outPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatal(err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	limiter := ratelimit.New(map[string]ratelimit.ServiceLimit{
		ednia.Service: {
			MinInterval:  tier.Ednia.Interval(),
			MonthlyQuota: tier.Ednia.MonthlyQuota,
		},
		resrobot.Service: {
			MinInterval:  tier.ResRobot.Interval(),
			MonthlyQuota: tier.ResRobot.MonthlyQuota,
		},
	})

	catalog := ednia.New(cfg.EdniaBaseURL, limiter)
	transit := resrobot.New(cfg.ResRobotBaseURL, cfg.ResRobotAPIKey, limiter)

	sink, writtenPath, err := export.OpenFileSink(*outPath, *compress)
	if err != nil {
		log.Fatal(err)
	}
	writer, err := export.NewWriter(sink)
	if err != nil {
		sink.Close()
		log.Fatal(err)
	}

	p := &pipeline.Pipeline{
		Catalog:      catalog,
		Planner:      transit,
		Resolver:     stops.NewResolver(transit, log),
		Cache:        traveltime.NewCache(),
		Out:          writer,
		Log:          log,
		Origin:       *origin,
		Municipality: *municipality,
		Workers:      *workers,
		Limit:        *limit,
		PageSize:     *pageSize,
	}

	runErr := p.Run(ctx)
	if err := sink.Close(); err != nil {
		log.WithError(err).Error("close output")
	}
	if runErr != nil {
		log.WithError(runErr).Fatalf("export failed in state %s", p.State())
	}
	log.Infof("wrote %d rows to %s", p.RowsWritten(), writtenPath)

	if *uploadSFTP {
		upCfg := sftpclient.Config{
			Host:                  cfg.SFTPHost,
			Port:                  cfg.SFTPPort,
			User:                  cfg.SFTPUser,
			Pass:                  cfg.SFTPPass,
			RemoteDir:             cfg.SFTPDir,
			InsecureIgnoreHostKey: cfg.SFTPInsecureIgnoreHostKey,
		}
		if err := sftpclient.UploadFile(ctx, upCfg, writtenPath, filepath.Base(writtenPath)); err != nil {
			log.Fatal(err)
		}
		log.Infof("uploaded to sftp://%s:%d%s/%s", upCfg.Host, upCfg.Port, upCfg.RemoteDir, filepath.Base(writtenPath))
	}
}

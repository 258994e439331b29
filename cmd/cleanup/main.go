package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/qzr8/dealer_go_portal/config"
	"github.com/qzr8/dealer_go_portal/internal/database"
	"github.com/qzr8/dealer_go_portal/internal/repository"
)

var (
	dryRun        = flag.Bool("dry-run", true, "Dry run mode, don't actually delete anything")
	retentionDays = flag.Int("days", 0, "Retention window in days, 0 uses the config value")
	cleanArchives = flag.Bool("clean-archives", true, "Remove archive exports whose job row is gone")
)

func main() {
	flag.Parse()

	log.Println("Starting cleanup task...")
	log.Printf("Mode: dry-run=%v", *dryRun)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	days := *retentionDays
	if days <= 0 {
		days = cfg.Retention.TerminalJobDays
	}
	if days <= 0 {
		log.Fatal("Retention window not configured; pass -days or set retention.terminal_job_days")
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}

	jobRepo := repository.NewJobRepository(db)
	cutoff := time.Now().AddDate(0, 0, -days)
	log.Printf("Pruning settled jobs last updated before %s", cutoff.Format("2006-01-02"))

	if *dryRun {
		count, err := jobRepo.CountTerminalBefore(cutoff)
		if err != nil {
			log.Fatalf("Failed to count jobs: %v", err)
		}
		log.Printf("Would remove %d settled jobs", count)
	} else {
		removed, err := jobRepo.DeleteTerminalBefore(cutoff)
		if err != nil {
			log.Fatalf("Failed to prune jobs: %v", err)
		}
		log.Printf("Removed %d settled jobs", removed)
	}

	if *cleanArchives && cfg.Archive.LocalDir != "" {
		cleanOrphanedArchives(jobRepo, cfg.Archive.LocalDir, *dryRun)
	}

	log.Println("Cleanup done")
}

// cleanOrphanedArchives removes local result exports whose job row no longer
// exists, for example after the owner deleted the job through the portal
// while the archive write had already happened.
func cleanOrphanedArchives(jobRepo *repository.JobRepository, dir string, dryRun bool) {
	removed := 0
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		jobID := info.Name()[:len(info.Name())-len(".json")]
		if _, err := jobRepo.GetByID(jobID); err == nil {
			return nil
		}
		if dryRun {
			log.Printf("Would remove orphaned archive %s", path)
		} else if err := os.Remove(path); err != nil {
			log.Printf("Failed to remove %s: %v", path, err)
			return nil
		}
		removed++
		return nil
	})
	log.Printf("Orphaned archives: %d", removed)
}

// Package main inspects a Beacon database: entity counts and asymmetric
// references between users, groups and beacons.
//
// Usage:
//
//	DB_PATH=~/Beacon/data/db go run ./cmd/dbinspect
//	go run ./cmd/dbinspect -config config.yaml -repair
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"slices"

	"github.com/goccy/go-json"

	"github.com/beaconapp/beacon-server/internal/config"
	"github.com/beaconapp/beacon-server/internal/logger"
	"github.com/beaconapp/beacon-server/internal/reconcile"
	"github.com/beaconapp/beacon-server/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	repair := flag.Bool("repair", false, "repair asymmetric references (opens the database read-write)")
	asJSON := flag.Bool("json", false, "print the report as JSON")
	verbose := flag.Bool("v", false, "list every finding")
	flag.Parse()

	log := logger.New(logger.Config{Writer: os.Stderr, Format: "pretty", Level: logger.ParseLevel("warn")})

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatal("failed to load config", "error", err)
		}
		dbPath = cfg.Store.DBPath()
	}

	st, err := store.Open(dbPath, log.Logger, store.Options{ReadOnly: !*repair})
	if err != nil {
		log.Fatal("failed to open database", "path", dbPath, "error", err)
	}
	code := inspect(st, dbPath, *repair, *asJSON, *verbose, log)
	if err := st.Close(); err != nil {
		log.Error("failed to close database", "error", err)
	}
	os.Exit(code)
}

// inspect prints the report and returns the exit code: 1 when repairs
// failed, 2 when findings were left unrepaired.
func inspect(st *store.Store, dbPath string, repair, asJSON, verbose bool, log *logger.Logger) int {
	report, err := reconcile.New(st, log.Logger).Reconcile(context.Background(), repair)
	if err != nil && report == nil {
		log.Error("reconciliation failed", "error", err)
		return 1
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(report); encErr != nil {
			log.Error("failed to encode report", "error", encErr)
			return 1
		}
	} else {
		printReport(dbPath, report, repair, verbose)
	}

	if err != nil {
		log.Error("some repairs failed", "error", err)
		return 1
	}
	if !repair && len(report.Findings) > 0 {
		return 2
	}
	return 0
}

func printReport(dbPath string, report *reconcile.Report, repair, verbose bool) {
	fmt.Println("=== Database Inspection ===")
	fmt.Printf("Path: %s\n\n", dbPath)

	fmt.Printf("Users:     %d\n", report.Users)
	fmt.Printf("Groups:    %d\n", report.Groups)
	fmt.Printf("Beacons:   %d\n", report.Beacons)
	fmt.Printf("Landmarks: %d\n\n", report.Landmarks)

	if len(report.Findings) == 0 {
		fmt.Println("All references are symmetric.")
		return
	}

	fmt.Printf("Asymmetric references: %d\n", len(report.Findings))
	counts := report.Counts()
	kinds := make([]reconcile.Kind, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	for _, k := range kinds {
		fmt.Printf("  %-22s %d\n", k, counts[k])
	}

	if verbose {
		fmt.Println()
		for _, f := range report.Findings {
			fmt.Printf("  %s: %s -> %s\n", f.Kind, f.Doc, f.Ref)
		}
	}

	if repair {
		fmt.Printf("\nRepaired: %d, skipped: %d\n", report.Repaired, report.Skipped)
	} else {
		fmt.Println("\nRun with -repair to fix them.")
	}
}

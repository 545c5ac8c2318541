// Package main seeds a Beacon database with demo data: a leader with
// credentials, a few anonymous hikers, one group and one beacon.
//
// The server must not be running against the same data path.
//
// Usage:
//
//	go run ./cmd/seed
//	go run ./cmd/seed -config config.yaml -hikers 5
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/samber/do/v2"

	"github.com/beaconapp/beacon-server/internal/di"
	"github.com/beaconapp/beacon-server/internal/domain"
	"github.com/beaconapp/beacon-server/internal/logger"
	"github.com/beaconapp/beacon-server/internal/service"
)

var (
	configPath = flag.String("config", "", "path to a YAML config file")
	hikers     = flag.Int("hikers", 3, "number of anonymous hikers to create")
	email      = flag.String("email", "leader@example.com", "email of the demo leader")
	password   = flag.String("password", "beacon-demo", "password of the demo leader")
)

// trailhead is where the demo beacon starts.
var trailhead = domain.Location{Lat: "46.5586", Lon: "7.8336"}

func main() {
	flag.Parse()

	injector := di.NewContainer(*configPath)
	log, err := do.Invoke[*logger.Logger](injector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = seed(context.Background(), injector)
	if shutdownErr := injector.Shutdown(); shutdownErr != nil {
		log.Error("Shutdown error", "error", shutdownErr)
	}
	if err != nil {
		log.Fatal("seeding failed", "error", err)
	}
}

func seed(ctx context.Context, i do.Injector) error {
	authSvc := do.MustInvoke[*service.AuthService](i)
	groups := do.MustInvoke[*service.GroupService](i)
	beacons := do.MustInvoke[*service.BeaconService](i)

	leader, err := authSvc.Register(ctx, service.RegisterRequest{
		Name:     "Demo Leader",
		Email:    *email,
		Password: *password,
	})
	if err != nil {
		return fmt.Errorf("register leader: %w", err)
	}

	group, err := groups.CreateGroup(ctx, leader.ID, service.CreateGroupRequest{Title: "Weekend Hikers"})
	if err != nil {
		return fmt.Errorf("create group: %w", err)
	}

	beacon, err := beacons.CreateBeacon(ctx, leader.ID, group.ID, service.CreateBeaconRequest{
		Title:     "Sunrise ridge walk",
		ExpiresAt: time.Now().Add(6 * time.Hour),
		Location:  trailhead,
	})
	if err != nil {
		return fmt.Errorf("create beacon: %w", err)
	}

	fmt.Printf("Leader:  %s (%s / %s)\n", leader.ID, *email, *password)
	fmt.Printf("Group:   %s  code %s\n", group.ID, group.Shortcode)
	fmt.Printf("Beacon:  %s  code %s\n", beacon.ID, beacon.Shortcode)

	for n := range *hikers {
		hiker, err := authSvc.Register(ctx, service.RegisterRequest{Name: fmt.Sprintf("Hiker %d", n+1)})
		if err != nil {
			return fmt.Errorf("register hiker %d: %w", n+1, err)
		}
		// Joining the beacon joins its group too.
		if _, err := beacons.JoinBeacon(ctx, hiker.ID, service.JoinRequest{Shortcode: beacon.Shortcode}); err != nil {
			return fmt.Errorf("hiker %d joins beacon: %w", n+1, err)
		}
		fmt.Printf("Hiker:   %s  (log in anonymously with this id)\n", hiker.ID)
	}

	return nil
}

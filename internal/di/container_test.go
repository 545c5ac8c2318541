package di

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconapp/beacon-server/internal/config"
	"github.com/beaconapp/beacon-server/internal/di/providers"
	"github.com/beaconapp/beacon-server/internal/domain"
	"github.com/beaconapp/beacon-server/internal/service"
	"github.com/beaconapp/beacon-server/internal/sweeper"
)

func testEnv(t *testing.T) {
	t.Helper()
	t.Setenv(config.ConfigPathEnvVar, "")
	t.Setenv("BEACON_STORE_DATA_PATH", t.TempDir())
	t.Setenv("BEACON_SERVER_HOST", "127.0.0.1")
	t.Setenv("BEACON_SERVER_PORT", "0")
	t.Setenv("BEACON_LOGGER_LEVEL", "error")
}

func TestBootstrap_WiresEveryComponent(t *testing.T) {
	testEnv(t)

	injector := NewContainer("")
	tree, err := Bootstrap(injector)
	require.NoError(t, err)
	require.NotNil(t, tree)

	job := do.MustInvoke[*sweeper.Job](injector)
	assert.NotNil(t, job, "sweeper is enabled by default")

	users := do.MustInvoke[*service.UserService](injector)
	assert.NotNil(t, users)

	routerHandle := do.MustInvoke[*providers.RouterHandle](injector)

	ctx, cancel := context.WithCancel(context.Background())
	done := tree.ServeBackground(ctx)

	select {
	case <-routerHandle.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("router never started under the supervisor")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(15 * time.Second):
		t.Fatal("supervisor did not stop")
	}

	assert.Nil(t, injector.Shutdown())
}

func TestBootstrap_SweeperDisabled(t *testing.T) {
	testEnv(t)
	t.Setenv("BEACON_SWEEPER_ENABLED", "false")

	injector := NewContainer("")
	_, err := Bootstrap(injector)
	require.NoError(t, err)
	t.Cleanup(func() { _ = injector.Shutdown() })

	assert.Nil(t, do.MustInvoke[*sweeper.Job](injector))
}

func TestBootstrap_InvalidConfig(t *testing.T) {
	testEnv(t)
	t.Setenv("BEACON_BROKER_DRIVER", "kafka")

	injector := NewContainer("")
	_, err := Bootstrap(injector)
	assert.ErrorContains(t, err, "invalid broker driver")
}

func TestBootstrap_ReindexesRecreatedSearchIndex(t *testing.T) {
	testEnv(t)
	ctx := context.Background()
	here := domain.Location{Lat: "46.5586", Lon: "7.8336"}

	first := NewContainer("")
	_, err := Bootstrap(first)
	require.NoError(t, err)

	authSvc := do.MustInvoke[*service.AuthService](first)
	leader, err := authSvc.Register(ctx, service.RegisterRequest{Name: "leader"})
	require.NoError(t, err)
	group, err := do.MustInvoke[*service.GroupService](first).CreateGroup(ctx, leader.ID, service.CreateGroupRequest{Title: "hikers"})
	require.NoError(t, err)
	beacon, err := do.MustInvoke[*service.BeaconService](first).CreateBeacon(ctx, leader.ID, group.ID, service.CreateBeaconRequest{
		Title:     "ridge",
		ExpiresAt: time.Now().Add(time.Hour),
		Location:  here,
	})
	require.NoError(t, err)

	cfg := do.MustInvoke[*config.Config](first)
	assert.Nil(t, first.Shutdown())
	require.NoError(t, os.RemoveAll(cfg.Store.IndexPath()))

	second := NewContainer("")
	_, err = Bootstrap(second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Shutdown() })

	nearby, err := do.MustInvoke[*service.BeaconService](second).Nearby(ctx, here)
	require.NoError(t, err)
	require.Len(t, nearby, 1)
	assert.Equal(t, beacon.ID, nearby[0].ID)
}

package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/websearch/internal/apperr"
	"github.com/JakeFAU/websearch/internal/client"
	"github.com/JakeFAU/websearch/internal/config"
	"github.com/JakeFAU/websearch/internal/index"
)

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	dir := t.TempDir()
	cfg.Frontier.Path = filepath.Join(dir, "frontier.txt")
	cfg.Frontier.StopwordsPath = filepath.Join(dir, "stopwords.txt")
	cfg.Replica.Path = index.InmemPath
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.Crawler.MetricsPort = 0
	return cfg
}

// running is an App serving on an ephemeral port.
type running struct {
	app  *App
	addr string
	done chan error
}

func start(t *testing.T, ctx context.Context, app *App, ln net.Listener) *running {
	t.Helper()
	r := &running{app: app, addr: "http://" + ln.Addr().String(), done: make(chan error, 1)}
	go func() { r.done <- app.serve(ctx, ln) }()
	return r
}

func (r *running) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.done:
		r.app.Close()
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
		return nil
	}
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln
}

func get(t *testing.T, url string) int {
	t.Helper()
	resp, err := http.Get(url) //nolint:noctx // test helper
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Gateway.Policy = "weighted"
	_, err := Build(context.Background(), cfg, config.RoleGateway, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConfiguration))
}

func TestFrontierAppServes(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	app, err := Build(context.Background(), cfg, config.RoleFrontier, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, ":8081", app.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	r := start(t, ctx, app, listen(t))
	require.Eventually(t, func() bool { return get(t, r.addr+"/readyz") == http.StatusOK }, 2*time.Second, 10*time.Millisecond)

	front := client.NewFrontier(r.addr)
	require.NoError(t, front.Add(ctx, "https://example.com/"))
	n, err := front.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	cancel()
	require.NoError(t, r.wait(t))
}

func TestReplicaStandaloneConnects(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	app, err := Build(context.Background(), cfg, config.RoleReplica, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	r := start(t, ctx, app, listen(t))
	require.Eventually(t, func() bool { return get(t, r.addr+"/readyz") == http.StatusOK }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, r.wait(t))
}

func TestReplicaJoinsAndLeavesGateway(t *testing.T) {
	t.Parallel()

	gwCfg := baseConfig(t)
	// Broadcaster goroutines may outlive the test, so no zaptest logger here.
	gwApp, err := Build(context.Background(), gwCfg, config.RoleGateway, zap.NewNop())
	require.NoError(t, err)
	gwCtx, gwCancel := context.WithCancel(context.Background())
	gwRun := start(t, gwCtx, gwApp, listen(t))
	require.Eventually(t, func() bool { return get(t, gwRun.addr+"/healthz") == http.StatusOK }, 2*time.Second, 10*time.Millisecond)

	repLn := listen(t)
	repCfg := baseConfig(t)
	repCfg.Replica.Gateway = gwRun.addr
	repCfg.Replica.Advertise = "http://" + repLn.Addr().String()
	repApp, err := Build(context.Background(), repCfg, config.RoleReplica, zap.NewNop())
	require.NoError(t, err)
	repCtx, repCancel := context.WithCancel(context.Background())
	repRun := start(t, repCtx, repApp, repLn)

	gw := client.NewGateway(gwRun.addr)
	require.Eventually(t, func() bool {
		addrs, err := gw.Replicas(context.Background())
		return err == nil && len(addrs) == 1 && addrs[0] == repCfg.Replica.Advertise
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, http.StatusOK, get(t, gwRun.addr+"/readyz"))

	repCancel()
	require.NoError(t, repRun.wait(t))
	addrs, err := gw.Replicas(context.Background())
	require.NoError(t, err)
	assert.Empty(t, addrs)

	gwCancel()
	require.NoError(t, gwRun.wait(t))
}

func TestReplicaStartFailsWithoutGateway(t *testing.T) {
	t.Parallel()

	deadLn := listen(t)
	deadAddr := "http://" + deadLn.Addr().String()
	require.NoError(t, deadLn.Close())

	cfg := baseConfig(t)
	cfg.Replica.Gateway = deadAddr
	cfg.Replica.RegisterTimeout = time.Second
	app, err := Build(context.Background(), cfg, config.RoleReplica, zaptest.NewLogger(t))
	require.NoError(t, err)

	r := start(t, context.Background(), app, listen(t))
	err = r.wait(t)
	require.Error(t, err)
	assert.True(t, apperr.IsConnectivity(err))
}

func TestBuildCrawler(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Crawler.Seeds = []string{"https://example.com"}
	app, err := Build(context.Background(), cfg, config.RoleCrawler, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer app.Close()

	assert.Empty(t, app.Addr())
	assert.Len(t, app.loops, 1)
	assert.NotNil(t, app.start)

	cfg.Crawler.MetricsPort = 9191
	app2, err := Build(context.Background(), cfg, config.RoleCrawler, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer app2.Close()
	assert.Equal(t, ":9191", app2.Addr())
}

func TestEvery(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		every(5*time.Millisecond, func(context.Context) { calls.Add(1) })(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestCloseRunsInReverse(t *testing.T) {
	t.Parallel()

	var order []string
	app := &App{logger: zaptest.NewLogger(t)}
	app.onClose("first", func() error { order = append(order, "first"); return nil })
	app.onClose("second", func() error { order = append(order, "second"); return errors.New("ignored") })
	app.Close()
	app.Close()
	assert.Equal(t, []string{"second", "first"}, order)
}

package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lucernlabs/recordflow/internal/bulkclient"
	"github.com/lucernlabs/recordflow/internal/bulkclient/fake"
	"github.com/lucernlabs/recordflow/internal/config"
	"github.com/lucernlabs/recordflow/internal/connsource"
	"github.com/lucernlabs/recordflow/internal/pool"
	"github.com/lucernlabs/recordflow/internal/ratecontrol"
	"github.com/lucernlabs/recordflow/internal/throttle"
)

// demoServer backs every "fake"-auth-kind connection within one CLI
// invocation, so `recordflow export --config demo.yaml` and `recordflow
// import --config demo.yaml` can be exercised end-to-end without a
// real source/target organization. Servers are keyed by connection
// name: two connections share one server only when they carry the
// same name, otherwise each gets its own.
var demoServers = map[string]*fake.Server{}

func demoServer(name string) *fake.Server {
	if s, ok := demoServers[name]; ok {
		return s
	}
	s := fake.NewServer()
	demoServers[name] = s
	return s
}

// buildSource constructs a connsource.Source for one connection
// config. "fake" is the only auth kind implemented in-core: real
// authentication (device-code, managed identity, client-secret) is an
// out-of-core collaborator per spec §1, so "connection_string"
// resolves to a Dialer that reports it has not been wired rather than
// guessing at a transport.
func buildSource(cc config.ConnectionConfig) (connsource.Source, error) {
	switch cc.AuthKind {
	case "fake":
		client := fake.NewClient(demoServer(cc.Name))
		return connsource.NewPreAuthenticated(cc.Name, cc.MaxPoolSize, client), nil
	case "connection_string", "":
		return connsource.NewLazyFactory(cc.Name, cc.MaxPoolSize, cc.ConnectionURL, unwiredDialer), nil
	default:
		return nil, fmt.Errorf("recordflow: unknown auth_kind %q for connection %q", cc.AuthKind, cc.Name)
	}
}

// unwiredDialer is the default connsource.Dialer for "connection_string"
// sources. It always fails: this binary does not embed a concrete
// SOAP/REST auth transport, matching spec §1's "Out of scope" list.
// An embedding application wires its own Dialer via connsource.NewLazyFactory
// directly rather than through this CLI's wiring helper.
func unwiredDialer(ctx context.Context, connectionString string) (bulkclient.Client, error) {
	return nil, fmt.Errorf("recordflow: no authentication transport wired for connection_string %q; supply one via connsource.NewLazyFactory in an embedding application, or use auth_kind: fake for a local demo", connectionString)
}

// runWiring bundles the constructed pool/tracker/logger for one export
// or import invocation. Rate controllers are built per bulk operation
// by newRateController instead.
type runWiring struct {
	Pool     *pool.Pool
	Tracker  *throttle.Tracker
	Logger   *slog.Logger
}

func buildRunWiring(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runWiring, error) {
	srcSource, err := buildSource(cfg.Source)
	if err != nil {
		return nil, err
	}
	tgtSource, err := buildSource(cfg.Target)
	if err != nil {
		return nil, err
	}

	p, err := pool.New(cfg.Pool.ToPoolConfig(), logger, nil, srcSource, tgtSource)
	if err != nil {
		return nil, fmt.Errorf("recordflow: build pool: %w", err)
	}
	p.StartValidation(ctx)

	tracker := throttle.New(0)
	tracker.StartPruner(ctx, 0)

	return &runWiring{Pool: p, Tracker: tracker, Logger: logger}, nil
}

func (w *runWiring) Close() {
	w.Tracker.Close()
	_ = w.Pool.Close()
}

// newRateController builds a fresh ratecontrol.Controller for one
// bulk operation, per spec §3's "state resets between operations".
func newRateController(cfg *config.Config) *ratecontrol.Controller {
	return ratecontrol.New(cfg.RateLimit.ToControllerOptions())
}

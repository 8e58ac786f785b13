// Command coreld runs the peer/channel control plane standalone: it owns
// the peer registry, channel records, and every local decision (state
// transitions, drop_to_chain, close-command resolution) described by the
// core, and talks to its out-of-scope collaborators (hardware signer,
// plugin hooks, connectd, chain watcher) over the socket contracts fixed
// in signerclient/hookclient/transportclient/onchainclient. Grounded on
// the teacher's lit.go/litinit.go entrypoint shape: parse command-line
// flags, open the database, wire the node, and serve. No config file is
// read; the --conf value is not used.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"

	"github.com/chainlatch/coreld/closecoordinator"
	"github.com/chainlatch/coreld/control"
	"github.com/chainlatch/coreld/fundingwatcher"
	"github.com/chainlatch/coreld/hookclient"
	"github.com/chainlatch/coreld/ids"
	"github.com/chainlatch/coreld/internal/config"
	"github.com/chainlatch/coreld/internal/eventbus"
	"github.com/chainlatch/coreld/internal/logging"
	"github.com/chainlatch/coreld/internal/store"
	"github.com/chainlatch/coreld/onchainclient"
	"github.com/chainlatch/coreld/peer"
	"github.com/chainlatch/coreld/rpcsrv"
	"github.com/chainlatch/coreld/signerclient"
	"github.com/chainlatch/coreld/subprocess"
	"github.com/chainlatch/coreld/transportclient"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "coreld:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.WithDefaults()
	if _, err := config.NewParser(cfg, flags.Default).Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return nil
		}
		return fmt.Errorf("parsing flags: %w", err)
	}

	log := logging.New("control")
	if cfg.Verbose {
		logging.SetLevel(log, logging.LevelDebug)
	}

	if err := os.MkdirAll(cfg.HomeDir, 0700); err != nil {
		return fmt.Errorf("creating home dir: %w", err)
	}

	st, err := store.Open(filepath.Join(cfg.HomeDir, "coreld.db"))
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	registry := peer.NewRegistry(st)
	bus := eventbus.New(logging.New("eventbus"))
	supervisor := subprocess.NewLocalSupervisor(logging.New("supervisor"))

	hooks := hookclient.Client(hookclient.NoopClient{})
	if addr := os.Getenv("CORELD_HOOK_SOCKET"); addr != "" {
		c, err := hookclient.Dial("unix", addr)
		if err != nil {
			return fmt.Errorf("dialing plugin hook socket: %w", err)
		}
		hooks = c
	}

	var signer signerclient.Client
	if addr := os.Getenv("CORELD_SIGNER_SOCKET"); addr != "" {
		c, err := signerclient.Dial("unix", addr)
		if err != nil {
			return fmt.Errorf("dialing signer socket: %w", err)
		}
		signer = c
	}

	var transport transportclient.Client
	if addr := os.Getenv("CORELD_CONNECTD_SOCKET"); addr != "" {
		c, err := transportclient.Dial("unix", addr)
		if err != nil {
			return fmt.Errorf("dialing connectd socket: %w", err)
		}
		transport = c
	}

	var ourID ids.NodeID
	if cfg.NodeID != "" {
		ourID, err = ids.NodeIDFromHex(cfg.NodeID)
		if err != nil {
			return fmt.Errorf("parsing --nodeid: %w", err)
		}
	}

	node := control.New(log, registry, st, bus, supervisor, hooks, signer, transport, ourID, cfg)

	closeCoord := closecoordinator.New(logging.New("closecoord"), node)
	node.AttachCloseCoord(closeCoord)

	var resolver fundingwatcher.OnChainResolver
	if addr := os.Getenv("CORELD_ONCHAIN_SOCKET"); addr != "" {
		c, err := onchainclient.Dial("unix", addr)
		if err != nil {
			return fmt.Errorf("dialing on-chain resolver socket: %w", err)
		}
		resolver = c
	}

	// BlockPosition and WorkerNotifier have no standalone wire contract of
	// their own in this build: locating a confirmed tx's block position is
	// the chain watcher's job and notifying a channel worker of new depth
	// goes back out through the same supervisor Send path setchannelfee
	// uses, neither of which this entrypoint has a concrete out-of-scope
	// client for yet.
	funding := fundingwatcher.New(logging.New("fundwatch"), node, nil, nil, resolver)
	node.AttachFunding(funding)

	if cfg.MetricsAddr != "" {
		go func() {
			if err := rpcsrv.ServeMetrics(logging.New("metrics"), cfg.MetricsAddr); err != nil {
				log.Errorf("metrics server stopped: %v", err)
			}
		}()
	}

	srv := rpcsrv.New(logging.New("rpc"), node, cfg.Developer)
	rpcAddr := fmt.Sprintf("%s:%d", cfg.RPCHost, cfg.RPCPort)
	return srv.ListenAndServe("tcp", rpcAddr)
}

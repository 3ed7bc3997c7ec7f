// posnode runs a single PoS participant: it dials a relay, bootstraps its
// chain via sync, and exposes an interactive command shell for submitting
// transactions, forging blocks and inspecting local state.
//
// Usage:
//
//	posnode --config=node.yaml
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/Klingon-tech/klingnet-pos/config"
	"github.com/Klingon-tech/klingnet-pos/internal/chain"
	"github.com/Klingon-tech/klingnet-pos/internal/logging"
	"github.com/Klingon-tech/klingnet-pos/internal/mempool"
	"github.com/Klingon-tech/klingnet-pos/internal/node"
	"github.com/Klingon-tech/klingnet-pos/internal/walletstate"
	"github.com/Klingon-tech/klingnet-pos/pkg/txn"
)

func main() {
	// ── 1. Flags + config ────────────────────────────────────────────────
	configPath := flag.String("config", "node.yaml", "path to node config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "posnode: %v\n", err)
		os.Exit(1)
	}
	if cfg.NodeID == "" {
		fmt.Fprintln(os.Stderr, "posnode: node_id is required")
		os.Exit(1)
	}

	// ── 2. Logger ────────────────────────────────────────────────────────
	logger := logging.New(cfg.Log)

	// ── 3. Chain: resume from an on-disk snapshot if one exists, otherwise
	// start fresh from the configured genesis seed. ─────────────────────
	c, err := loadOrSeedChain(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize chain")
	}

	// ── 4. Mempool ───────────────────────────────────────────────────────
	pool := mempool.New()

	// ── 5. Relay connection ──────────────────────────────────────────────
	rc, err := dialRelay(cfg.RelayAddr, cfg.NodeID, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to relay")
	}
	defer rc.Close()

	// ── 6. Node ──────────────────────────────────────────────────────────
	n := node.New(cfg.NodeID, c, pool, rc, node.Config{
		VotingEnabled: cfg.Vote.Enabled,
		VoteThreshold: cfg.Vote.Threshold,
		VoteTimeout:   time.Duration(cfg.Vote.TimeoutSeconds * float64(time.Second)),
		SyncTimeout:   time.Duration(cfg.Sync.TimeoutSeconds * float64(time.Second)),
	}, logger)

	shutdownCh := make(chan struct{}, 1)
	n.SetShutdownFunc(func() {
		select {
		case shutdownCh <- struct{}{}:
		default:
		}
	})

	go rc.readLoop(n.Dispatch)
	n.Bootstrap()

	logger.Info().Str("node_id", cfg.NodeID).Str("relay", cfg.RelayAddr).Msg("node started")

	// ── 7. Signal handling + operator shell, whichever finishes first ───
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	shellDone := make(chan struct{})
	go func() {
		runShell(n, cfg.DataDir, os.Stdin, os.Stdout)
		close(shellDone)
	}()

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case <-shutdownCh:
		logger.Info().Msg("relay requested shutdown")
	case <-shellDone:
	}

	if err := c.SnapshotToDisk(cfg.DataDir); err != nil {
		logger.Warn().Err(err).Msg("failed to snapshot chain on exit")
	}
	logger.Info().Msg("goodbye")
}

// loadOrSeedChain resumes from <data_dir>/blocks.json when present, replayed
// onto a genesis wallet seeded from the config's initial_state map;
// LoadFromDisk builds a fresh seeded-genesis chain itself when no snapshot
// file exists yet, so the seed must reach it either way, not just on the
// fresh-start path.
func loadOrSeedChain(cfg *config.Config) (*chain.Chain, error) {
	seed := make(map[string]walletstate.Account, len(cfg.InitialState))
	for id, a := range cfg.InitialState {
		seed[id] = walletstate.Account{Balance: a.Balance, Stake: a.Stake}
	}
	return chain.LoadFromDisk(cfg.DataDir, seed)
}

// runShell implements the operator command loop: sync, nodes, tx, forge,
// stake, unstake, chain, wallet, mempool, info, help, exit.
func runShell(n *node.Node, dataDir string, r io.Reader, w io.Writer) {
	interactive := isTerminalReader(r)
	scanner := bufio.NewScanner(r)
	for {
		if interactive {
			fmt.Fprint(w, "> ")
		}
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if exit := runShellCommand(n, dataDir, line, w); exit {
			return
		}
	}
}

func isTerminalReader(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func runShellCommand(n *node.Node, dataDir, line string, w io.Writer) (exit bool) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "sync":
		n.Bootstrap()
		fmt.Fprintln(w, "sync requested")
	case "nodes":
		for _, id := range n.KnownNodes() {
			fmt.Fprintln(w, id)
		}
	case "tx":
		cmdTx(n, fields[1:], w)
	case "forge":
		force := len(fields) >= 2 && fields[1] == "--force"
		n.Forge(force)
		fmt.Fprintln(w, "ok")
	case "stake":
		cmdStakeUnstake(n, txn.Stake, fields[1:], w)
	case "unstake":
		cmdStakeUnstake(n, txn.Unstake, fields[1:], w)
	case "chain":
		cmdChain(n, w)
	case "wallet":
		cmdWallet(n, w)
	case "mempool":
		cmdMempool(n, w)
	case "info":
		fmt.Fprintf(w, "id: %s\n", n.ID())
		fmt.Fprintf(w, "height: %d\n", n.Chain().Head().Index)
		fmt.Fprintf(w, "balance: %v\n", n.Chain().Balance(n.ID()))
		fmt.Fprintf(w, "stake: %v\n", n.Chain().Stake(n.ID()))
	case "help":
		fmt.Fprintln(w, "commands: sync, nodes, tx <to> <amount>, forge [--force], stake <amount>, unstake <amount>, chain, wallet, mempool, info, help, exit")
	case "exit":
		fmt.Fprintln(w, "saving and exiting")
		return true
	default:
		fmt.Fprintf(w, "unknown command %q\n", fields[0])
	}
	return false
}

func cmdTx(n *node.Node, args []string, w io.Writer) {
	if len(args) < 2 {
		fmt.Fprintln(w, "usage: tx <to> <amount>")
		return
	}
	amount, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		fmt.Fprintf(w, "invalid amount %q\n", args[1])
		return
	}
	t := txn.Transaction{
		Sender:    n.ID(),
		Receiver:  args[0],
		Amount:    amount,
		Timestamp: nowSeconds(),
		Type:      txn.Transfer,
	}
	if err := n.SubmitTransaction(t); err != nil {
		fmt.Fprintf(w, "rejected: %v\n", err)
		return
	}
	fmt.Fprintln(w, "ok")
}

func cmdStakeUnstake(n *node.Node, typ txn.Type, args []string, w io.Writer) {
	if len(args) < 1 {
		fmt.Fprintf(w, "usage: %s <amount>\n", strings.ToLower(string(typ)))
		return
	}
	amount, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		fmt.Fprintf(w, "invalid amount %q\n", args[0])
		return
	}
	t := txn.Transaction{
		Sender:    n.ID(),
		Receiver:  n.ID(),
		Amount:    amount,
		Timestamp: nowSeconds(),
		Type:      typ,
	}
	if err := n.SubmitTransaction(t); err != nil {
		fmt.Fprintf(w, "rejected: %v\n", err)
		return
	}
	fmt.Fprintln(w, "ok")
}

func cmdChain(n *node.Node, w io.Writer) {
	for _, b := range n.Chain().Chain() {
		fmt.Fprintln(w, b.String())
	}
}

func cmdWallet(n *node.Node, w io.Writer) {
	fmt.Fprintf(w, "%s: balance=%v stake=%v\n", n.ID(), n.Chain().Balance(n.ID()), n.Chain().Stake(n.ID()))
}

func cmdMempool(n *node.Node, w io.Writer) {
	for _, t := range n.Mempool().All() {
		fmt.Fprintf(w, "%s -> %s : %v (%s)\n", t.Sender, t.Receiver, t.Amount, t.Type)
	}
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"replistore/internal/filter"
	"replistore/internal/node"
	"replistore/internal/transport"
)

// edge is a directed push relationship: nodes[from] pushes to nodes[to]
// over sessions[edge].
type edge struct{ from, to int }

func newSimulateCmd() *cobra.Command {
	var (
		numNodes int
		rounds   int
		topology string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive an in-process multi-node convergence demo",
		Long: `simulate seeds one record per node, wires a ring or star push
topology over an in-memory Transport, and runs a fixed number of push
rounds to demonstrate convergence.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if numNodes < 2 {
				return fmt.Errorf("--nodes must be at least 2")
			}

			log, err := newLogger()
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer log.Sync()
			log = log.Named("simulate")

			tr := transport.NewInMemory()
			instances := make([]string, numNodes)
			nodes := make([]*node.Node, numNodes)
			for i := range nodes {
				instances[i] = uuid.New().String()[:8]
				n, err := node.New(instances[i], tr, node.WithLogger(log.Named(instances[i])))
				if err != nil {
					return fmt.Errorf("construct node %d: %w", i, err)
				}
				nodes[i] = n

				recordID := fmt.Sprintf("record-%d", i)
				data := fmt.Sprintf("seeded by %s", instances[i])
				if err := n.AddAppData(recordID, data, "", ""); err != nil {
					return fmt.Errorf("seed node %d: %w", i, err)
				}
				if err := n.Serialize(filter.Universal); err != nil {
					return fmt.Errorf("serialize node %d: %w", i, err)
				}
			}

			edges, err := buildTopology(topology, numNodes)
			if err != nil {
				return err
			}

			sessions := make(map[edge]string, len(edges))
			for _, e := range edges {
				sessionID, err := nodes[e.from].CreateSyncSession(instances[e.to])
				if err != nil {
					return fmt.Errorf("session %s->%s: %w", instances[e.from], instances[e.to], err)
				}
				sessions[e] = sessionID
			}

			for round := 1; round <= rounds; round++ {
				g, _ := errgroup.WithContext(context.Background())
				for _, e := range edges {
					e := e
					g.Go(func() error {
						return nodes[e.from].PushInitiation(sessions[e], filter.Universal)
					})
				}
				if err := g.Wait(); err != nil {
					return fmt.Errorf("round %d: %w", round, err)
				}

				counts := make([]int, numNodes)
				for i, n := range nodes {
					counts[i], err = n.Store().Len()
					if err != nil {
						return fmt.Errorf("round %d: store len for %s: %w", round, instances[i], err)
					}
				}
				log.Info("round complete", zap.Int("round", round), zap.Ints("store_sizes", counts))
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&numNodes, "nodes", 3, "number of simulated nodes")
	cmd.Flags().IntVar(&rounds, "rounds", 3, "number of push rounds to run")
	cmd.Flags().StringVar(&topology, "topology", "ring", "push topology: ring or star")
	return cmd
}

// buildTopology returns the directed push edges for the given topology.
// ring is node i -> node i+1 (mod n). star pushes bidirectionally between
// node 0 (the hub) and every other node, so the hub's and every spoke's
// writes both reach the rest of the group.
func buildTopology(topology string, n int) ([]edge, error) {
	switch topology {
	case "ring":
		edges := make([]edge, n)
		for i := 0; i < n; i++ {
			edges[i] = edge{from: i, to: (i + 1) % n}
		}
		return edges, nil
	case "star":
		edges := make([]edge, 0, 2*(n-1))
		for i := 1; i < n; i++ {
			edges = append(edges, edge{from: 0, to: i}, edge{from: i, to: 0})
		}
		return edges, nil
	default:
		return nil, fmt.Errorf("unknown topology %q (want ring or star)", topology)
	}
}

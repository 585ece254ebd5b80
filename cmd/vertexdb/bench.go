package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/vertexdb/pkg/engine"
	"github.com/cuemby/vertexdb/pkg/snapshot"
	"github.com/cuemby/vertexdb/pkg/txn"
	"github.com/cuemby/vertexdb/pkg/types"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "In-process smoke benchmarks against a fresh engine",
}

var benchInsertCmd = &cobra.Command{
	Use:   "insert",
	Short: "Generate random vertices and edges and measure insert throughput",
	Long: `insert generates --vertices random vertices and --edges random directed
edges between them, entirely in-process, and commits them through either
a single batched WriteTxn or one LightWriteTxn per edge, then reports
elapsed time and throughput. It is a smoke demo of the transaction API,
not a workload-file replay harness or a graph-algorithm benchmark.`,
	RunE: runBenchInsert,
}

func init() {
	benchInsertCmd.Flags().Int("vertices", 1000, "number of vertices to insert")
	benchInsertCmd.Flags().Int("edges", 5000, "number of random directed edges to insert")
	benchInsertCmd.Flags().Bool("light", false, "commit each edge with its own LightWriteTxn instead of one batched WriteTxn")
	benchInsertCmd.Flags().Bool("edge-batch", true, "when not --light, let WriteTxn.Commit dispatch through the edge-batch path")
	benchInsertCmd.Flags().Int64("seed", 0, "PRNG seed (0 picks a random seed)")
	benchInsertCmd.Flags().String("dump", "", "bbolt file to write a full post-insert snapshot export to")
	benchCmd.AddCommand(benchInsertCmd)
}

func runBenchInsert(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	numVertices, _ := cmd.Flags().GetInt("vertices")
	numEdges, _ := cmd.Flags().GetInt("edges")
	light, _ := cmd.Flags().GetBool("light")
	edgeBatch, _ := cmd.Flags().GetBool("edge-batch")
	seed, _ := cmd.Flags().GetInt64("seed")
	dumpPath, _ := cmd.Flags().GetString("dump")

	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	e := engine.Open(cfg)

	start := time.Now()
	if light {
		if err := insertLight(e, numVertices, numEdges, rng); err != nil {
			return err
		}
	} else {
		if err := insertBatched(e, numVertices, numEdges, edgeBatch, rng); err != nil {
			return err
		}
	}
	elapsed := time.Since(start)

	total := numVertices + numEdges
	fmt.Printf("Inserted %d vertices, %d edges across %d shards in %s (%.0f ops/s)\n",
		numVertices, numEdges, e.ShardCount(), elapsed, float64(total)/elapsed.Seconds())

	if dumpPath != "" {
		if err := dumpSnapshot(e, dumpPath); err != nil {
			return err
		}
		fmt.Printf("Full snapshot dumped to %s\n", dumpPath)
	}
	return nil
}

func insertBatched(e *engine.Engine, numVertices, numEdges int, edgeBatch bool, rng *rand.Rand) error {
	w, err := e.BeginWrite()
	if err != nil {
		return fmt.Errorf("begin_write: %w", err)
	}
	for i := 0; i < numVertices; i++ {
		w.InsertVertex(types.VertexID(i))
	}
	for i := 0; i < numEdges; i++ {
		src := types.VertexID(rng.Intn(numVertices))
		dst := types.VertexID(rng.Intn(numVertices))
		w.InsertEdge(src, dst, nil)
	}
	if !w.Commit(true, edgeBatch) {
		return fmt.Errorf("commit rejected: a vertex removal cannot share a transaction with other ops")
	}
	return nil
}

func insertLight(e *engine.Engine, numVertices, numEdges int, rng *rand.Rand) error {
	var lastTrace string
	l, err := e.BeginLightWrite(func(ev txn.Event) { lastTrace = ev.TraceID })
	if err != nil {
		return fmt.Errorf("begin_light_write: %w", err)
	}
	defer l.Close()

	for i := 0; i < numVertices; i++ {
		if err := l.InsertVertex(types.VertexID(i)); err != nil {
			return fmt.Errorf("insert_vertex: %w", err)
		}
	}
	for i := 0; i < numEdges; i++ {
		src := types.VertexID(rng.Intn(numVertices))
		dst := types.VertexID(rng.Intn(numVertices))
		if err := l.InsertEdge(src, dst, nil); err != nil {
			return fmt.Errorf("insert_edge: %w", err)
		}
	}
	fmt.Printf("trace id: %s\n", lastTrace)
	return nil
}

func dumpSnapshot(e *engine.Engine, path string) error {
	store, err := snapshot.Open(path)
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}
	defer store.Close()

	snap, err := e.BeginSnapshot()
	if err != nil {
		return fmt.Errorf("begin_snapshot: %w", err)
	}
	defer snap.Close()

	return snapshot.Export(snap, e, store)
}

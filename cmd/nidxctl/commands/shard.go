package commands

import (
	"github.com/spf13/cobra"

	"github.com/nidx/nidx/internal/config"
)

var createFlags struct {
	dimension           int
	similarity          string
	cardinality         string
	hnswM               int
	hnswEfConstr        int
	hnswEfSearch        int
	mergeMaxNodes       int
	mergeSegmentsBefore int
	mergeMaxDeleted     int
}

var shardCmd = &cobra.Command{
	Use:   "shard",
	Short: "Create, list, inspect or delete shards",
}

var shardCreateCmd = &cobra.Command{
	Use:   "create <id>",
	Short: "Create a new, empty shard",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hnsw := config.DefaultHNSWParams()
		if createFlags.hnswM != 0 {
			hnsw.M = createFlags.hnswM
		}
		if createFlags.hnswEfConstr != 0 {
			hnsw.EfConstruction = createFlags.hnswEfConstr
		}
		if createFlags.hnswEfSearch != 0 {
			hnsw.EfSearch = createFlags.hnswEfSearch
		}
		merge := config.DefaultMergeParams()
		if createFlags.mergeMaxNodes != 0 {
			merge.MaxNodesInMerge = createFlags.mergeMaxNodes
		}
		if createFlags.mergeSegmentsBefore != 0 {
			merge.SegmentsBeforeMerge = createFlags.mergeSegmentsBefore
		}
		if createFlags.mergeMaxDeleted != 0 {
			merge.MaximumDeletedEntries = createFlags.mergeMaxDeleted
		}

		cfg := config.ShardConfig{
			Dimension:   createFlags.dimension,
			Similarity:  config.Similarity(createFlags.similarity),
			Cardinality: config.VectorCardinality(createFlags.cardinality),
			HNSW:        hnsw,
			Merge:       merge,
		}

		m := openManager()
		s, err := m.Create(args[0], cfg)
		if err != nil {
			return fail("create shard: %w", err)
		}
		defer s.Close()

		printInfo("shard %q created at %s", s.ID, shardsDir)
		return nil
	},
}

var shardListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every shard directory under --dir",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := openManager().ShardIDs()
		if err != nil {
			return fail("list shards: %w", err)
		}
		for _, id := range ids {
			printInfo("%s", id)
		}
		return nil
	},
}

var shardInspectCmd = &cobra.Command{
	Use:   "inspect <id>",
	Short: "Print each index's segment set and size for a shard",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openManager().Get(args[0])
		if err != nil {
			return fail("open shard: %w", err)
		}
		return printJSON(s.Stats())
	},
}

var shardDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Close and permanently remove a shard",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := openManager().Delete(args[0]); err != nil {
			return fail("delete shard: %w", err)
		}
		printInfo("shard %q deleted", args[0])
		return nil
	},
}

func init() {
	f := shardCreateCmd.Flags()
	f.IntVar(&createFlags.dimension, "dim", 768, "vector dimension")
	f.StringVar(&createFlags.similarity, "similarity", string(config.SimilarityCosine), "cosine or dot")
	f.StringVar(&createFlags.cardinality, "cardinality", string(config.CardinalitySingle), "single or multi")
	f.IntVar(&createFlags.hnswM, "hnsw-m", 0, "HNSW M (0 uses the built-in default)")
	f.IntVar(&createFlags.hnswEfConstr, "hnsw-ef-construction", 0, "HNSW efConstruction (0 uses the built-in default)")
	f.IntVar(&createFlags.hnswEfSearch, "hnsw-ef-search", 0, "HNSW efSearch (0 uses the built-in default)")
	f.IntVar(&createFlags.mergeMaxNodes, "merge-max-nodes", 0, "max nodes in a merged segment (0 uses the built-in default)")
	f.IntVar(&createFlags.mergeSegmentsBefore, "merge-segments-before", 0, "segment count that triggers a merge (0 uses the built-in default)")
	f.IntVar(&createFlags.mergeMaxDeleted, "merge-max-deleted", 0, "delete-log length that forces a merge (0 uses the built-in default)")

	shardCmd.AddCommand(shardCreateCmd, shardListCmd, shardInspectCmd, shardDeleteCmd)
}

package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/nidx/nidx/internal/merge"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <id>",
	Short: "Run one merge pass across a shard's four indexes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m := openManager()
		s, err := m.Get(args[0])
		if err != nil {
			return fail("open shard: %w", err)
		}

		before := s.Stats()
		params := merge.Params(s.Config().Merge)
		if err := m.Merge(context.Background(), args[0], params); err != nil {
			return fail("merge: %w", err)
		}
		after := s.Stats()

		printInfo("vector: %d -> %d segments", len(before.Vector.Segments), len(after.Vector.Segments))
		printInfo("paragraph: %d -> %d segments", len(before.Paragraph.Segments), len(after.Paragraph.Segments))
		printInfo("text: %d -> %d segments", len(before.Text.Segments), len(after.Text.Segments))
		printInfo("relation: %d -> %d segments", len(before.Relation.Segments), len(after.Relation.Segments))
		return nil
	},
}

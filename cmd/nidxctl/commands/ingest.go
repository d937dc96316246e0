package commands

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/nidx/nidx/internal/relation"
	"github.com/nidx/nidx/internal/text"
	"github.com/nidx/nidx/internal/vector"
)

var ingestSeed int64

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Add a new segment to a shard from a JSON-lines file",
}

var ingestVectorsCmd = &cobra.Command{
	Use:   "vectors <id> <file.jsonl>",
	Short: "Add a vector segment, one JSON-encoded vector.Node per line",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var nodes []vector.Node
		if err := decodeLines(args[1], &nodes); err != nil {
			return err
		}
		s, err := openManager().Get(args[0])
		if err != nil {
			return fail("open shard: %w", err)
		}
		segID, err := s.AddVectorSegment(nodes, ingestSeed)
		if err != nil {
			return fail("add vector segment: %w", err)
		}
		printInfo("added vector segment %s (%d nodes)", segID, len(nodes))
		return nil
	},
}

var ingestParagraphsCmd = &cobra.Command{
	Use:   "paragraphs <id> <file.jsonl>",
	Short: "Add a paragraph segment, one JSON-encoded text.Paragraph per line",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var paragraphs []text.Paragraph
		if err := decodeLines(args[1], &paragraphs); err != nil {
			return err
		}
		s, err := openManager().Get(args[0])
		if err != nil {
			return fail("open shard: %w", err)
		}
		segID, err := s.AddParagraphSegment(paragraphs)
		if err != nil {
			return fail("add paragraph segment: %w", err)
		}
		printInfo("added paragraph segment %s (%d paragraphs)", segID, len(paragraphs))
		return nil
	},
}

var ingestTextCmd = &cobra.Command{
	Use:   "text <id> <file.jsonl>",
	Short: "Add a full-document text segment, one JSON-encoded text.Paragraph per line",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var paragraphs []text.Paragraph
		if err := decodeLines(args[1], &paragraphs); err != nil {
			return err
		}
		s, err := openManager().Get(args[0])
		if err != nil {
			return fail("open shard: %w", err)
		}
		segID, err := s.AddTextSegment(paragraphs)
		if err != nil {
			return fail("add text segment: %w", err)
		}
		printInfo("added text segment %s (%d paragraphs)", segID, len(paragraphs))
		return nil
	},
}

var ingestRelationsCmd = &cobra.Command{
	Use:   "relations <id> <file.jsonl>",
	Short: "Add a relation segment, one JSON-encoded relation.Triple per line",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var triples []relation.Triple
		if err := decodeLines(args[1], &triples); err != nil {
			return err
		}
		s, err := openManager().Get(args[0])
		if err != nil {
			return fail("open shard: %w", err)
		}
		segID, err := s.AddRelationSegment(triples)
		if err != nil {
			return fail("add relation segment: %w", err)
		}
		printInfo("added relation segment %s (%d triples)", segID, len(triples))
		return nil
	},
}

func init() {
	ingestVectorsCmd.Flags().Int64Var(&ingestSeed, "seed", 1, "HNSW construction seed")
	ingestCmd.AddCommand(ingestVectorsCmd, ingestParagraphsCmd, ingestTextCmd, ingestRelationsCmd)
}

// decodeLines reads path as JSON lines, one element of the slice v points
// to per line, skipping blank lines.
func decodeLines(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return fail("open %s: %w", path, err)
	}
	defer f.Close()

	switch dst := v.(type) {
	case *[]vector.Node:
		return scanLines(f, func(line []byte) error {
			var n vector.Node
			if err := json.Unmarshal(line, &n); err != nil {
				return err
			}
			*dst = append(*dst, n)
			return nil
		})
	case *[]text.Paragraph:
		return scanLines(f, func(line []byte) error {
			var p text.Paragraph
			if err := json.Unmarshal(line, &p); err != nil {
				return err
			}
			*dst = append(*dst, p)
			return nil
		})
	case *[]relation.Triple:
		return scanLines(f, func(line []byte) error {
			var tr relation.Triple
			if err := json.Unmarshal(line, &tr); err != nil {
				return err
			}
			*dst = append(*dst, tr)
			return nil
		})
	default:
		return fail("decodeLines: unsupported destination type")
	}
}

func scanLines(f *os.File, decode func(line []byte) error) error {
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := decode(line); err != nil {
			return fail("parse line: %w", err)
		}
	}
	return sc.Err()
}

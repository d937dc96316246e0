// Command nidxctl is a development tool for inspecting and searching a
// shard's on-disk state directly, without going through any RPC surface.
//
// Usage:
//
//	nidxctl shard create <id> --dim 768
//	nidxctl shard list
//	nidxctl shard inspect <id>
//	nidxctl shard delete <id>
//	nidxctl ingest vectors <id> <file.jsonl>
//	nidxctl ingest paragraphs <id> <file.jsonl>
//	nidxctl ingest text <id> <file.jsonl>
//	nidxctl ingest relations <id> <file.jsonl>
//	nidxctl merge <id>
//	nidxctl search <id> --query hello --paragraph
package main

import (
	"fmt"
	"os"

	"github.com/nidx/nidx/cmd/nidxctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

package commands

import (
	"bytes"
	"os"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// runCmd executes rootCmd with args against a scratch shard directory,
// capturing stdout/stderr the way a real invocation would see them.
func runCmd(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()

	oldStdout := os.Stdout
	rOut, wOut, _ := os.Pipe()
	os.Stdout = wOut

	rootCmd.SetArgs(args)
	var errBuf bytes.Buffer
	rootCmd.SetErr(&errBuf)
	err := rootCmd.Execute()

	wOut.Close()
	os.Stdout = oldStdout

	var outBuf bytes.Buffer
	outBuf.ReadFrom(rOut)
	stdout = outBuf.String()
	stderr = errBuf.String()
	if err != nil {
		exitCode = 1
		if stderr == "" {
			stderr = err.Error()
		}
	}

	resetFlags(rootCmd)
	return
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		f.Changed = false
		f.Value.Set(f.DefValue)
	})
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func TestShardCreateListInspectDelete(t *testing.T) {
	dir := t.TempDir()

	_, stderr, code := runCmd(t, "--dir", dir, "shard", "create", "s1", "--dim", "3")
	if code != 0 {
		t.Fatalf("create failed: %s", stderr)
	}

	stdout, stderr, code := runCmd(t, "--dir", dir, "shard", "list")
	if code != 0 {
		t.Fatalf("list failed: %s", stderr)
	}
	if stdout != "s1\n" {
		t.Fatalf("expected %q, got %q", "s1\n", stdout)
	}

	stdout, stderr, code = runCmd(t, "--dir", dir, "shard", "inspect", "s1")
	if code != 0 {
		t.Fatalf("inspect failed: %s", stderr)
	}
	if !bytes.Contains([]byte(stdout), []byte(`"Vector"`)) {
		t.Fatalf("expected vector stats in output, got %s", stdout)
	}

	_, stderr, code = runCmd(t, "--dir", dir, "shard", "delete", "s1")
	if code != 0 {
		t.Fatalf("delete failed: %s", stderr)
	}

	_, _, code = runCmd(t, "--dir", dir, "shard", "inspect", "s1")
	if code == 0 {
		t.Fatalf("expected inspect of a deleted shard to fail")
	}
}

func TestIngestAndSearchVectors(t *testing.T) {
	dir := t.TempDir()
	runCmd(t, "--dir", dir, "shard", "create", "s1", "--dim", "3")

	nodesFile := dir + "/nodes.jsonl"
	if err := os.WriteFile(nodesFile, []byte(`{"Key":"r1/a/t/0-1","Vector":[1,0,0]}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	stdout, stderr, code := runCmd(t, "--dir", dir, "ingest", "vectors", "s1", nodesFile)
	if code != 0 {
		t.Fatalf("ingest failed: %s", stderr)
	}
	if !bytes.Contains([]byte(stdout), []byte("added vector segment")) {
		t.Fatalf("unexpected output: %s", stdout)
	}

	stdout, stderr, code = runCmd(t, "--dir", dir, "search", "s1", "--vector", "--embedding", "1,0,0")
	if code != 0 {
		t.Fatalf("search failed: %s", stderr)
	}
	if !bytes.Contains([]byte(stdout), []byte("r1/a/t/0-1")) {
		t.Fatalf("expected matching key in output, got %s", stdout)
	}
}

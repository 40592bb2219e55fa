package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/actprobe/internal/activations"
	"github.com/nvandessel/actprobe/internal/dump"
	"github.com/nvandessel/actprobe/internal/export"
	"github.com/nvandessel/actprobe/internal/labels"
	"github.com/nvandessel/actprobe/internal/ranges"
)

// isolateEnv clears ACTPROBE_* variables so the host environment cannot
// leak into loaded configs.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ACTPROBE_ACTIVATIONS_DIR", "ACTPROBE_LABEL_PATH", "ACTPROBE_NAMES",
		"ACTPROBE_SPLIT_RATIO", "ACTPROBE_SUBSET_SIZE", "ACTPROBE_SEED", "ACTPROBE_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

// writeFixture creates an activations directory with keys {3:[0,2), 7:[2,5)},
// five labels and hx0/hx1 dumps of width 2 where row i is (i, -i).
func writeFixture(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "acts")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("creating dir: %v", err)
	}
	store := activations.NewStore(dir, "")

	tbl := ranges.NewTable()
	spans := []ranges.Range{{Start: 0, End: 2}, {Start: 2, End: 5}}
	for i, key := range []int{3, 7} {
		if err := tbl.Add(key, spans[i]); err != nil {
			t.Fatal(err)
		}
	}
	if err := ranges.Save(store.RangesPath(), tbl); err != nil {
		t.Fatalf("saving ranges: %v", err)
	}
	if err := labels.Save(store.LabelsPath(), []int64{1, 1, 0, 0, 0}); err != nil {
		t.Fatalf("saving labels: %v", err)
	}

	for layer := 0; layer < 2; layer++ {
		var chunks []dump.Chunk
		for _, r := range spans {
			c := dump.Chunk{Rows: r.Len(), Cols: 2}
			for i := r.Start; i < r.End; i++ {
				c.Data = append(c.Data, float32(i), -float32(i))
			}
			chunks = append(chunks, c)
		}
		if err := dump.WriteFile(store.DumpPath(activations.Identity{Layer: layer, Name: "hx"}), chunks...); err != nil {
			t.Fatalf("writing dump: %v", err)
		}
	}
	return dir
}

// run executes actprobe with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "version", "--json")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("parsing output %q: %v", out, err)
	}
	if got["version"] != version {
		t.Errorf("version = %q, want %q", got["version"], version)
	}
}

func TestConfigCmd(t *testing.T) {
	isolateEnv(t)
	t.Setenv("ACTPROBE_SPLIT_RATIO", "0.7")

	path := filepath.Join(t.TempDir(), "probe.yaml")
	if err := os.WriteFile(path, []byte("activations:\n  dir: /data/acts\n  names: [hx1]\n"), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "config", "--config", path, "--set", "split.subset_size=100", "--json")
	if err != nil {
		t.Fatalf("config failed: %v", err)
	}
	var got struct {
		Activations struct {
			Dir   string   `json:"dir"`
			Names []string `json:"names"`
		} `json:"activations"`
		Split struct {
			SubsetSize int     `json:"subset_size"`
			Ratio      float64 `json:"ratio"`
		} `json:"split"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("parsing output %q: %v", out, err)
	}
	if got.Activations.Dir != "/data/acts" || len(got.Activations.Names) != 1 {
		t.Errorf("activations = %+v", got.Activations)
	}
	if got.Split.SubsetSize != 100 || got.Split.Ratio != 0.7 {
		t.Errorf("split = %+v", got.Split)
	}

	if _, err := run(t, "config", "--set", "split.ratio=2"); err == nil {
		t.Error("expected validation error for ratio 2")
	}
}

func TestInspectAndCatalog(t *testing.T) {
	isolateEnv(t)
	dir := writeFixture(t)

	out, err := run(t, "inspect", "--set", "activations.dir="+dir)
	if err != nil {
		t.Fatalf("inspect failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "5 rows in 2 sequences") || strings.Count(out, " ok") != 2 {
		t.Errorf("inspect output:\n%s", out)
	}

	out, err = run(t, "catalog", "dumps", "--set", "activations.dir="+dir, "--json")
	if err != nil {
		t.Fatalf("catalog dumps failed: %v", err)
	}
	var got struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("parsing output %q: %v", out, err)
	}
	if got.Count != 2 {
		t.Errorf("catalog count = %d, want 2", got.Count)
	}
}

func TestInspectReportsBadDump(t *testing.T) {
	isolateEnv(t)
	dir := writeFixture(t)
	short := dump.Chunk{Rows: 1, Cols: 2, Data: []float32{0, 0}}
	if err := dump.WriteFile(filepath.Join(dir, "cx_l0.arrow"), short); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "inspect", "--set", "activations.dir="+dir, "--no-catalog")
	if err == nil {
		t.Fatal("expected inspect to fail")
	}
	if !strings.Contains(out, "1 rows, expected 5") {
		t.Errorf("inspect output:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "catalog.db")); !os.IsNotExist(err) {
		t.Error("--no-catalog still created catalog.db")
	}
}

func TestShowCmd(t *testing.T) {
	isolateEnv(t)
	dir := writeFixture(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"position", []string{"1@hx1"}, "1@hx1"},
		{"key", []string{"3/key", "--identity", "hx0"}, "2 x 2"},
		{"shape", []string{":/all@hx0", "--shape"}, "5 x 2"},
		{"limited", []string{":/all@hx0", "--limit", "1"}, "... 4 more rows"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"show", "--set", "activations.dir=" + dir}, tt.args...)
			out, err := run(t, args...)
			if err != nil {
				t.Fatalf("show failed: %v", err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output %q does not contain %q", out, tt.want)
			}
		})
	}

	if _, err := run(t, "show", "--set", "activations.dir="+dir, "5/key@hx0"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestSplitCmd(t *testing.T) {
	isolateEnv(t)
	dir := writeFixture(t)
	outDir := filepath.Join(t.TempDir(), "splits")

	out, err := run(t, "split",
		"--set", "activations.dir="+dir,
		"--set", "activations.names=[hx1]",
		"--set", "split.output_dir="+outDir,
		"--set", "split.ratio=0.6",
		"--set", "split.seed=5",
		"--log-level", "debug",
		"--json",
	)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}

	var manifests []export.Manifest
	if err := json.Unmarshal([]byte(out), &manifests); err != nil {
		t.Fatalf("parsing output %q: %v", out, err)
	}
	if len(manifests) != 1 {
		t.Fatalf("got %d manifests, want 1", len(manifests))
	}
	m := manifests[0]
	if m.Identity != "hx1" || m.TrainRows != 3 || m.TestRows != 2 {
		t.Errorf("manifest = %+v", m)
	}

	dirs, _ := filepath.Glob(filepath.Join(outDir, "hx1-*"))
	if len(dirs) != 1 {
		t.Fatalf("split directories = %v", dirs)
	}
	for _, f := range []string{export.TrainXFile, export.TrainYFile, export.TestXFile, export.TestYFile, export.ManifestFile} {
		if _, err := os.Stat(filepath.Join(dirs[0], f)); err != nil {
			t.Errorf("missing %s: %v", f, err)
		}
	}
	if _, err := os.Stat(filepath.Join(outDir, "events.jsonl")); err != nil {
		t.Errorf("expected event log at debug level: %v", err)
	}

	out, err = run(t, "catalog", "splits", "--set", "activations.dir="+dir)
	if err != nil {
		t.Fatalf("catalog splits failed: %v", err)
	}
	if !strings.Contains(out, m.ID[:8]) {
		t.Errorf("catalog splits output missing %s:\n%s", m.ID[:8], out)
	}
}

func TestSplitCmdRejectsOversizedSubset(t *testing.T) {
	isolateEnv(t)
	dir := writeFixture(t)

	_, err := run(t, "split",
		"--set", "activations.dir="+dir,
		"--set", "split.subset_size=6",
		"--set", "split.output_dir="+t.TempDir(),
		"--no-catalog",
	)
	if err == nil || !strings.Contains(err.Error(), "subset size") {
		t.Errorf("error = %v, want subset size validation error", err)
	}
}

func TestPruneCmd(t *testing.T) {
	isolateEnv(t)
	dir := writeFixture(t)
	outDir := filepath.Join(t.TempDir(), "splits")
	base := []string{
		"--set", "activations.dir=" + dir,
		"--set", "activations.names=[hx1]",
		"--set", "split.output_dir=" + outDir,
	}

	for i := 0; i < 3; i++ {
		if _, err := run(t, append([]string{"split"}, base...)...); err != nil {
			t.Fatalf("split %d failed: %v", i, err)
		}
	}

	prune := func(extra ...string) (int, bool) {
		t.Helper()
		args := append(append([]string{"prune", "--json"}, base...), extra...)
		out, err := run(t, args...)
		if err != nil {
			t.Fatalf("prune failed: %v", err)
		}
		var got struct {
			Count  int  `json:"count"`
			DryRun bool `json:"dry_run"`
		}
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("parsing output %q: %v", out, err)
		}
		return got.Count, got.DryRun
	}

	if n, dry := prune("--set", "retention.max_count=1", "--dry-run"); n != 2 || !dry {
		t.Errorf("dry run = %d, %v; want 2, true", n, dry)
	}
	if dirs, _ := filepath.Glob(filepath.Join(outDir, "hx1-*")); len(dirs) != 3 {
		t.Errorf("dry run removed directories: %v", dirs)
	}

	if n, _ := prune("--set", "retention.max_count=1"); n != 2 {
		t.Errorf("prune removed %d, want 2", n)
	}
	if dirs, _ := filepath.Glob(filepath.Join(outDir, "hx1-*")); len(dirs) != 1 {
		t.Errorf("remaining directories = %v, want 1", dirs)
	}

	out, err := run(t, "catalog", "splits", "--json", "--set", "activations.dir="+dir)
	if err != nil {
		t.Fatalf("catalog splits failed: %v", err)
	}
	var listed struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("parsing output %q: %v", out, err)
	}
	if listed.Count != 1 {
		t.Errorf("catalog splits count = %d, want 1", listed.Count)
	}

	if _, err := run(t, append([]string{"prune", "--set", "retention.max_count=0"}, base...)...); err == nil {
		t.Error("expected error when no retention rule is configured")
	}
	if _, err := run(t, append([]string{"prune", "--set", "retention.max_age=soon"}, base...)...); err == nil {
		t.Error("expected error for invalid max_age")
	}
}

func TestShowSkipsNamesWithoutCompactForm(t *testing.T) {
	isolateEnv(t)
	dir := writeFixture(t)
	// a1_l0 sorts first but "a10" would read back as layer 10 of "a".
	odd := dump.Chunk{Rows: 5, Cols: 1, Data: []float32{9, 9, 9, 9, 9}}
	if err := dump.WriteFile(filepath.Join(dir, "a1_l0.arrow"), odd); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "show", "--set", "activations.dir="+dir, ":/all", "--shape")
	if err != nil {
		t.Fatalf("show failed: %v", err)
	}
	if !strings.Contains(out, "5 x 2") || !strings.Contains(out, "hx0") {
		t.Errorf("show output = %q, want the 5 x 2 hx0 stream", out)
	}
}

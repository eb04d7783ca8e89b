package cmd

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/recordkeeper/internal/core/config"
	"github.com/solatis/recordkeeper/internal/core/loader"
)

func init() {
	color.NoColor = true
}

const testRecords = `{
  "w1": {"_name": "Short Sword", "_props": {"class": "sword", "damage": 10}},
  "w2": {"_name": "Long Sword", "_props": {"class": "sword", "damage": 20}},
  "w3": {"_name": "War Axe", "_props": {"class": "axe", "damage": 30}}
}`

const testSelectors = `
swords:
  query: {key: class, values: [sword]}
  multiply: {damage: 2}
heavy:
  query: {key: damage, operation: greater_than, values: [15]}
  set: {damage: 50}
broken:
  set: {damage: 1}
`

const testOverrides = `
Long Sword:
  set: {damage: 99}
Nobody:
  set: {damage: 1}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testInputs(t *testing.T) (inputs, string) {
	t.Helper()
	dir := t.TempDir()
	return inputs{
		records:   writeFile(t, dir, "records.json", testRecords),
		selectors: writeFile(t, dir, "selectors.yaml", testSelectors),
		overrides: writeFile(t, dir, "overrides.yaml", testOverrides),
	}, dir
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func damage(t *testing.T, path, id string) float64 {
	t.Helper()
	records, err := loader.LoadRecords(path)
	require.NoError(t, err)
	return records[id]["_props"].(map[string]any)["damage"].(float64)
}

func TestRunApply(t *testing.T) {
	in, dir := testInputs(t)
	out := filepath.Join(dir, "out.json")

	var buf bytes.Buffer
	err := runApply(&buf, config.DefaultConfig(), discard(), applyOptions{inputs: in, out: out})
	require.NoError(t, err)

	// the override owns w2, so the swords/heavy overlap there is resolved
	assert.Equal(t, 20.0, damage(t, out, "w1"))
	assert.Equal(t, 99.0, damage(t, out, "w2"))
	assert.Equal(t, 50.0, damage(t, out, "w3"))
	assert.Equal(t, 10.0, damage(t, in.records, "w1"), "input must be untouched when --out is set")

	report := buf.String()
	assert.Contains(t, report, `selector "broken" is invalid`)
	assert.Contains(t, report, `override "Nobody" was skipped`)
	assert.NotContains(t, report, "Conflicts")
	assert.Contains(t, report, "properties changed across 3 records")
}

func TestRunApply_InPlace(t *testing.T) {
	in, _ := testInputs(t)
	in.overrides = ""

	err := runApply(&bytes.Buffer{}, config.DefaultConfig(), discard(), applyOptions{inputs: in})
	require.NoError(t, err)
	assert.Equal(t, 20.0, damage(t, in.records, "w1"))
}

func TestRunApply_MalformedSelectorsLeaveRecords(t *testing.T) {
	in, dir := testInputs(t)
	in.selectors = writeFile(t, dir, "bad.yaml", "- not\n- a mapping\n")

	err := runApply(&bytes.Buffer{}, config.DefaultConfig(), discard(), applyOptions{inputs: in})
	require.Error(t, err)
	assert.Equal(t, 10.0, damage(t, in.records, "w1"))
}

func TestRunApply_HistoryRequiresMigration(t *testing.T) {
	in, dir := testInputs(t)
	cfg := config.DefaultConfig()
	cfg.History.Enabled = true
	cfg.History.DBURL = "sqlite://" + filepath.Join(dir, "history.db")

	err := runApply(&bytes.Buffer{}, cfg, discard(), applyOptions{inputs: in})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recordkeeper migrate")
	assert.Equal(t, 10.0, damage(t, in.records, "w1"))
}

func TestHistoryFlow(t *testing.T) {
	in, dir := testInputs(t)
	url := "sqlite://" + filepath.Join(dir, "history.db")
	cfg := config.DefaultConfig()
	cfg.History.Enabled = true
	cfg.History.DBURL = url

	var buf bytes.Buffer
	require.NoError(t, runMigrate(&buf, url))
	assert.Contains(t, buf.String(), "up to date")

	buf.Reset()
	require.NoError(t, runMigrateStatus(&buf, url))
	assert.Contains(t, buf.String(), "applied")
	assert.NotContains(t, buf.String(), "pending")

	require.NoError(t, runApply(&bytes.Buffer{}, cfg, discard(), applyOptions{inputs: in}))

	buf.Reset()
	require.NoError(t, runHistory(&buf, url, 10))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	runID := strings.Fields(lines[0])[0]

	buf.Reset()
	require.NoError(t, runHistoryShow(&buf, url, runID))
	assert.Contains(t, buf.String(), "swords")
	assert.Contains(t, buf.String(), "Long Sword")
}

func TestRunHistoryShow_InvalidID(t *testing.T) {
	err := runHistoryShow(&bytes.Buffer{}, "sqlite://unused.db", "not-a-uuid")
	require.Error(t, err)
}

func TestRunCheck(t *testing.T) {
	in, _ := testInputs(t)

	var buf bytes.Buffer
	err := runCheck(&buf, config.DefaultConfig(), discard(), checkOptions{inputs: in, explain: "heavy"})
	require.NoError(t, err)
	assert.Equal(t, 10.0, damage(t, in.records, "w1"), "check must not write records")

	out := buf.String()
	assert.Contains(t, out, "swords")
	assert.Contains(t, out, "broken: invalid")
	assert.Contains(t, out, "Explain heavy")
	assert.Contains(t, out, "damage greater_than any[15]")
}

func TestRunCheck_Strict(t *testing.T) {
	in, _ := testInputs(t)

	err := runCheck(&bytes.Buffer{}, config.DefaultConfig(), discard(), checkOptions{inputs: in, strict: true})
	assert.ErrorIs(t, err, errCheckFailed)
}

func TestRunCheck_UnknownExplain(t *testing.T) {
	in, _ := testInputs(t)

	err := runCheck(&bytes.Buffer{}, config.DefaultConfig(), discard(), checkOptions{inputs: in, explain: "missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"missing"`)
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level, format string
		wantErr       bool
	}{
		{"info", "json", false},
		{"debug", "text", false},
		{"WARN", "TEXT", false},
		{"loud", "text", true},
		{"info", "xml", true},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		l, err := newLogger(&buf, tt.level, tt.format)
		if tt.wantErr {
			assert.Error(t, err, "%s/%s", tt.level, tt.format)
			continue
		}
		require.NoError(t, err)
		l.Error("hello")
		assert.Contains(t, buf.String(), "hello")
	}
}

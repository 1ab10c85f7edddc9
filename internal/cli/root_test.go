package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and captures stdout/stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRoot_RejectsInvalidFormat(t *testing.T) {
	_, _, err := execute(t, "--format", "xml", "books")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRulesVet_EmbeddedTables(t *testing.T) {
	out, _, err := execute(t, "rules", "vet")
	require.NoError(t, err)
	assert.Contains(t, out, "rule tables valid")
	assert.Contains(t, out, "Psalms")
}

func TestRulesVet_JSON(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "rules", "vet")
	require.NoError(t, err)

	var resp Envelope
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestRulesVet_MissingDir(t *testing.T) {
	_, _, err := execute(t, "rules", "vet", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMatch_MappedVerse(t *testing.T) {
	out, _, err := execute(t, "match", "rst", "Psalms", "9:25")
	require.NoError(t, err)
	assert.Contains(t, out, "Psalms 10:4")
	assert.Contains(t, out, "cluster: Psalms|10|4")
}

func TestMatch_SplitVerse(t *testing.T) {
	out, _, err := execute(t, "match", "kjv", "Psalms", "18:1")
	require.NoError(t, err)
	assert.Contains(t, out, "Psalms 17:1")
	assert.Contains(t, out, "Psalms 17:2")
}

func TestMatch_UnmappedVerse(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "match", "rst", "Psalms", "3:1")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   MatchResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Data.Unmapped)
	assert.Equal(t, "rst:Psalms|3|1", resp.Data.ClusterID)
}

func TestMatch_LocalizedBookName(t *testing.T) {
	out, _, err := execute(t, "match", "rst", "Псалтирь", "9:25")
	require.NoError(t, err)
	assert.Contains(t, out, "Psalms 10:4")
}

func TestMatch_UnknownBook(t *testing.T) {
	_, _, err := execute(t, "match", "kjv", "Enoch", "1:1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMatch_UnknownBookJSONFault(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "match", "kjv", "Enoch", "1:1")
	require.Error(t, err)

	var resp Envelope
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Fault)
	assert.Equal(t, "E_BOOK", resp.Fault.Code)
	assert.Nil(t, resp.Data)
}

func TestMatch_BadReference(t *testing.T) {
	_, _, err := execute(t, "match", "kjv", "Psalms", "banana")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestBooks_Text(t *testing.T) {
	out, _, err := execute(t, "books")
	require.NoError(t, err)
	assert.Contains(t, out, "Genesis")
	assert.Contains(t, out, "Revelation")
}

func TestBooks_Locale(t *testing.T) {
	out, _, err := execute(t, "books", "--locale", "ru")
	require.NoError(t, err)
	assert.Contains(t, out, "Бытие")
}

func TestOutbox_EmptyDatabase(t *testing.T) {
	t.Setenv("CONCORD_DB_PATH", filepath.Join(t.TempDir(), "replica.db"))
	out, _, err := execute(t, "outbox")
	require.NoError(t, err)
	assert.Contains(t, out, "outbox empty")
}

func TestSync_RequiresBackendConfig(t *testing.T) {
	t.Setenv("CONCORD_API_URL", "")
	t.Setenv("CONCORD_USER_ID", "")
	_, _, err := execute(t, "sync")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestParseChapterVerse(t *testing.T) {
	c, v, err := parseChapterVerse("18:50")
	require.NoError(t, err)
	assert.Equal(t, 18, c)
	assert.Equal(t, 50, v)

	for _, bad := range []string{"18", "0:1", "1:0", "a:b", ""} {
		_, _, err := parseChapterVerse(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

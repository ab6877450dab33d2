package main

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-bytes/internal/match/domain"
	"github.com/haukened/rr-bytes/internal/match/repos/ruleset"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestEncode_Formats(t *testing.T) {
	out, err := run(t, "", "encode", "--rules", " +CAFE , +⊆ca/f0 ,-⊆be")
	require.NoError(t, err)
	assert.Equal(t, "+cafe,⊆ca/f0,⊈be\n", out)

	out, err = run(t, "", "encode", "--rules", "+aa", "--format", "binary")
	require.NoError(t, err)
	m, err := domain.Decode("+aa")
	require.NoError(t, err)
	data, err := m.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(data)+"\n", out)

	out, err = run(t, "", "encode", "--rules", "+aa,⊈bb/f0", "--format", "rules")
	require.NoError(t, err)
	assert.Equal(t, "0\texact\taccept\taa\t-\n1\tprefix\treject\tbb\tf0\n", out)

	_, err = run(t, "", "encode", "--rules", "+aa", "--format", "xml")
	require.Error(t, err)
}

func TestEncode_SourceSelection(t *testing.T) {
	_, err := run(t, "", "encode")
	require.Error(t, err)

	_, err = run(t, "", "encode", "--rules", "+aa", "--file", "x.list")
	require.Error(t, err)

	_, err = run(t, "", "encode", "--rules", "+abc")
	require.ErrorIs(t, err, domain.ErrMalformedRule)

	path := filepath.Join(t.TempDir(), "rules.list")
	require.NoError(t, os.WriteFile(path, []byte("# list\n-ff/0f\n+ff/f0\n"), 0o644))
	out, err := run(t, "", "encode", "--file", path)
	require.NoError(t, err)
	assert.Equal(t, "-ff/0f,+ff/f0\n", out)
}

func TestTest_ArgsAndStdin(t *testing.T) {
	out, err := run(t, "", "test", "--rules", "-ff/0f,+ff/f0", "ff", "f0", "00")
	require.NoError(t, err)
	assert.Equal(t, "ff\treject\t0:-ff/0f\nf0\taccept\t1:+ff/f0\n00\treject\t-\n", out)

	out, err = run(t, "# macs\n00:11:22:33:44:55\n\n", "test", "--rules", "⊆0011")
	require.NoError(t, err)
	assert.Equal(t, "001122334455\taccept\t0:⊆0011\n", out)

	_, err = run(t, "", "test", "--rules", "+aa", "zz")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "p.yaml"), []byte("rulesets:\n  scan:\n    encoded: \"+aa,-bb\"\n"), 0o644))

	out, err := run(t, "", "validate", "-p", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "scan\t2\t")
	assert.Contains(t, out, "policy ok: 1 rule sets")

	_, err = run(t, "", "validate")
	require.Error(t, err)
}

func TestStore_Lifecycle(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "rulesets.db")
	policyDir := filepath.Join(dir, "policy.d")
	require.NoError(t, os.MkdirAll(policyDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(policyDir, "p.json"),
		[]byte(`{"rulesets": {"a": {"encoded": "+aa"}, "b": {"rules": ["⊆bb", "-cc"]}}}`), 0o644))

	out, err := run(t, "", "store", "--db", db, "import", "-p", policyDir)
	require.NoError(t, err)
	assert.Equal(t, "imported 2 rule sets\n", out)

	out, err = run(t, "", "store", "--db", db, "put", "a", "--rules", "-aa")
	require.NoError(t, err)
	assert.Equal(t, "a\tv2\n", out)

	out, err = run(t, "", "store", "--db", db, "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "a\tv2\t1 rules\t"), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "b\tv1\t2 rules\t"), lines[1])

	out, err = run(t, "", "store", "--db", db, "show", "b")
	require.NoError(t, err)
	assert.Equal(t, "⊆bb,-cc\n", out)

	out, err = run(t, "", "test", "--db", db, "--ruleset", "a", "aa")
	require.NoError(t, err)
	assert.Equal(t, "aa\treject\t0:-aa\n", out)

	_, err = run(t, "", "store", "--db", db, "delete", "a")
	require.NoError(t, err)
	_, err = run(t, "", "store", "--db", db, "show", "a")
	require.ErrorIs(t, err, ruleset.ErrRuleSetNotFound)
	_, err = run(t, "", "test", "--db", db, "--ruleset", "a", "aa")
	require.ErrorIs(t, err, ruleset.ErrRuleSetNotFound)
}

func TestStore_RequiresDB(t *testing.T) {
	_, err := run(t, "", "store", "list")
	require.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "version=dev commit=none buildDate=unknown\n", out)
}

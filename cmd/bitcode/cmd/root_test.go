package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const testSchema = `kind: struct
fields:
  - {name: id, type: uvarint}
  - {name: level, type: {kind: range, min: -8, max: 7}}
  - name: shape
    type:
      kind: enum
      variants:
        - name: point
        - name: circle
          payload: f32
  - {name: tags, type: {kind: seq, elem: string}}
  - {name: note, type: {kind: option, elem: string}}
`

const testValue = `id: 7
level: -2
shape: {circle: 1.5}
tags: [a, bb]
note: hello
`

func writeFiles(t *testing.T) (dir, schemaPath, valuePath string) {
	t.Helper()
	dir = t.TempDir()
	schemaPath = filepath.Join(dir, "schema.yaml")
	valuePath = filepath.Join(dir, "value.yaml")
	require.NoError(t, os.WriteFile(schemaPath, []byte(testSchema), 0o644))
	require.NoError(t, os.WriteFile(valuePath, []byte(testValue), 0o644))
	return dir, schemaPath, valuePath
}

func run(t *testing.T, stdin []byte, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(bytes.NewReader(stdin))
	err = root.Execute()
	return out.String(), errOut.String(), err
}

func decodeYAML(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, yaml.Unmarshal([]byte(s), &v))
	return v
}

func TestEncodeDecode(t *testing.T) {
	dir, schemaPath, valuePath := writeFiles(t)
	for _, extra := range [][]string{nil, {"--zstd"}, {"--portable"}} {
		framed := filepath.Join(dir, "value.bf")
		args := append([]string{"encode", "-s", schemaPath, "-o", framed, valuePath}, extra...)
		_, _, err := run(t, nil, args...)
		require.NoError(t, err, extra)

		out, _, err := run(t, nil, "decode", "-s", schemaPath, framed)
		require.NoError(t, err)
		if diff := cmp.Diff(decodeYAML(t, testValue), decodeYAML(t, out)); diff != "" {
			t.Errorf("decode %v mismatch (-want +got):\n%s", extra, diff)
		}
	}
}

func TestRawPipe(t *testing.T) {
	_, schemaPath, valuePath := writeFiles(t)
	payload, stderr, err := run(t, nil, "encode", "--raw", "-s", schemaPath, valuePath)
	require.NoError(t, err)
	require.Contains(t, stderr, "raw payload")

	out, _, err := run(t, []byte(payload), "decode", "--raw", "-s", schemaPath, "-")
	require.NoError(t, err)
	if diff := cmp.Diff(decodeYAML(t, testValue), decodeYAML(t, out)); diff != "" {
		t.Errorf("raw decode mismatch (-want +got):\n%s", diff)
	}

	_, _, err = run(t, []byte(payload), "decode", "--raw", "--bits", "4", "-s", schemaPath, "-")
	require.Error(t, err)
	_, _, err = run(t, []byte(payload), "decode", "--raw", "--bits", "100000", "-s", schemaPath, "-")
	require.Error(t, err)
}

func TestStrictTrailingData(t *testing.T) {
	_, schemaPath, valuePath := writeFiles(t)
	payload, _, err := run(t, nil, "encode", "--raw", "-s", schemaPath, valuePath)
	require.NoError(t, err)
	padded := append([]byte(payload), 0xff)

	_, stderr, err := run(t, padded, "decode", "--raw", "-s", schemaPath, "-")
	require.NoError(t, err)
	assert.Contains(t, stderr, "trailing data")

	_, _, err = run(t, padded, "--strict", "decode", "--raw", "-s", schemaPath, "-")
	require.Error(t, err)
}

func TestInspect(t *testing.T) {
	dir, schemaPath, valuePath := writeFiles(t)
	framed := filepath.Join(dir, "value.bf")
	_, _, err := run(t, nil, "encode", "-s", schemaPath, "-o", framed, valuePath)
	require.NoError(t, err)

	out, _, err := run(t, nil, "inspect", "--bits", framed)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "frame 0: version=1 bits="), lines[0])
	assert.Contains(t, lines[0], "compression=none")
	assert.Regexp(t, `^[01 ]+$`, lines[1])

	_, _, err = run(t, []byte("nope"), "inspect", "-")
	require.Error(t, err)
}

func TestCheck(t *testing.T) {
	_, schemaPath, _ := writeFiles(t)
	out, _, err := run(t, nil, "check", "-s", schemaPath)
	require.NoError(t, err)
	assert.Contains(t, out, "$.shape")
	assert.Contains(t, out, "tag=1")
	assert.Contains(t, out, "$.shape.circle")
	assert.Contains(t, out, "$.tags[]")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("{kind: range, min: 3, max: 1}"), 0o644))
	_, _, err = run(t, nil, "check", "-s", bad)
	require.Error(t, err)

	_, _, err = run(t, nil, "check")
	require.Error(t, err)
}

func TestBench(t *testing.T) {
	dir, schemaPath, valuePath := writeFiles(t)
	mem := filepath.Join(dir, "mem.prof")
	out, _, err := run(t, nil, "bench", "-n", "50", "--memprofile", mem, "-s", schemaPath, valuePath)
	require.NoError(t, err)
	assert.Contains(t, out, "rounds=50")
	assert.FileExists(t, mem)

	_, _, err = run(t, nil, "bench", "-n", "0", "-s", schemaPath, valuePath)
	require.Error(t, err)
}

func TestEncodeErrors(t *testing.T) {
	dir, schemaPath, _ := writeFiles(t)
	_, _, err := run(t, []byte("id: 1\n"), "encode", "-s", schemaPath, "-")
	require.Error(t, err)
	_, _, err = run(t, []byte(testValue), "encode", "--raw", "--zstd", "-s", schemaPath, "-")
	require.Error(t, err)
	_, _, err = run(t, nil, "encode", "-s", schemaPath, filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

package transfer

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"hf_downloader/internal/download/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildArgsDefaults(t *testing.T) {
	args := BuildArgs(Spec{
		URL:      "https://huggingface.co/org/model/resolve/main/config.json",
		Dir:      "/out/model",
		Filename: "config.json",
	})
	assert.Equal(t, []string{
		"-x", "16",
		"-s", "16",
		"-j", "5",
		"--continue=true",
		"--dir", "/out/model",
		"--out", "config.json",
		"https://huggingface.co/org/model/resolve/main/config.json",
	}, args)
}

func TestBuildArgsSpeedLimitAndHeaders(t *testing.T) {
	limit, err := types.ParseSpeedLimit("2g")
	require.NoError(t, err)

	args := BuildArgs(Spec{
		URL:         "https://h/x",
		Dir:         "/d",
		Filename:    "f",
		Connections: 4,
		SpeedLimit:  limit,
		Headers:     map[string]string{"Authorization": "Bearer abc", "A": "b"},
	})
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-x 4")
	assert.Contains(t, joined, "--max-download-limit 2048M")
	assert.Contains(t, joined, "--header=A: b --header=Authorization: Bearer abc")
	assert.Equal(t, "https://h/x", args[len(args)-1])
	assert.NotContains(t, redactArgs(args), "abc")
}

func TestLocateConfiguredPathMissing(t *testing.T) {
	_, err := Locate(filepath.Join(t.TempDir(), "nope"))
	var missing *types.ToolingMissingError
	require.ErrorAs(t, err, &missing)
}

func TestLocateSearchDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("exec bit semantics differ on windows")
	}
	dir := t.TempDir()
	bin := filepath.Join(dir, types.Aria2Binary)
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))

	got, err := Locate("", dir)
	require.NoError(t, err)
	assert.Equal(t, bin, got)
}

func TestTailBufferKeepsTail(t *testing.T) {
	tb := newTailBuffer(8)
	_, _ = tb.Write([]byte("0123456789"))
	_, _ = tb.Write([]byte("ab"))
	assert.Equal(t, "456789ab", tb.String())
}

const fakeAria2 = `#!/bin/sh
dir=""
out=""
last=""
while [ $# -gt 0 ]; do
  case "$1" in
    --dir) dir="$2"; shift 2 ;;
    --out) out="$2"; shift 2 ;;
    *) last="$1"; shift ;;
  esac
done
case "$last" in
  *fail*) echo "errorCode=3 resource not found" >&2; exit 3 ;;
  *slow*) trap 'exit 7' TERM; while true; do sleep 0.05; done ;;
esac
echo ok > "$dir/$out"
exit 0
`

func fakeInvoker(t *testing.T) *ExecInvoker {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stand-in for aria2c needs a POSIX shell")
	}
	bin := filepath.Join(t.TempDir(), types.Aria2Binary)
	require.NoError(t, os.WriteFile(bin, []byte(fakeAria2), 0o755))
	return &ExecInvoker{Path: bin, Grace: time.Second}
}

func waitDone(t *testing.T, h Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("transfer process did not exit")
	}
}

func TestExecInvokerSuccessCreatesParentDirs(t *testing.T) {
	inv := fakeInvoker(t)
	dir := filepath.Join(t.TempDir(), "model", "nested")

	h, err := inv.Invoke(context.Background(), Spec{URL: "https://h/ok", Dir: dir, Filename: "config.json"})
	require.NoError(t, err)
	waitDone(t, h)

	assert.Equal(t, 0, h.ExitCode())
	assert.False(t, h.Terminated())
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	assert.Equal(t, "ok\n", string(data))
}

func TestExecInvokerFailureKeepsDiagnostics(t *testing.T) {
	inv := fakeInvoker(t)

	h, err := inv.Invoke(context.Background(), Spec{URL: "https://h/fail", Dir: t.TempDir(), Filename: "x"})
	require.NoError(t, err)
	waitDone(t, h)

	assert.Equal(t, 3, h.ExitCode())
	assert.Contains(t, h.Diagnostics(), "resource not found")
}

func TestExecInvokerTerminate(t *testing.T) {
	inv := fakeInvoker(t)

	h, err := inv.Invoke(context.Background(), Spec{URL: "https://h/slow", Dir: t.TempDir(), Filename: "x"})
	require.NoError(t, err)

	require.NoError(t, h.Terminate())
	require.NoError(t, h.Terminate())
	waitDone(t, h)

	assert.True(t, h.Terminated())
	assert.NotEqual(t, 0, h.ExitCode())
}

func TestExecInvokerMissingTool(t *testing.T) {
	inv := &ExecInvoker{Path: filepath.Join(t.TempDir(), "aria2c")}

	_, err := inv.Invoke(context.Background(), Spec{URL: "https://h/ok", Dir: t.TempDir(), Filename: "x"})
	var missing *types.ToolingMissingError
	require.ErrorAs(t, err, &missing)
	require.ErrorAs(t, inv.Check(), &missing)
}

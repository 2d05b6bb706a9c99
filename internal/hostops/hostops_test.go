package hostops

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"dietpi-dashboard/internal/model"
)

func TestSignalerErrorMapping(t *testing.T) {
	var gotPID int
	var gotSig unix.Signal
	s := &Signaler{kill: func(pid int, sig unix.Signal) error {
		gotPID, gotSig = pid, sig
		switch pid {
		case 1234:
			return unix.ESRCH
		case 1:
			return unix.EPERM
		}
		return nil
	}}
	ctx := context.Background()

	require.NoError(t, s.Signal(ctx, 42, "suspend"))
	assert.Equal(t, 42, gotPID)
	assert.Equal(t, unix.SIGSTOP, gotSig)

	assert.ErrorIs(t, s.Signal(ctx, 1234, "terminate"), model.ErrNotFound)
	assert.ErrorIs(t, s.Signal(ctx, 1, "kill"), model.ErrPermissionDenied)
	assert.ErrorIs(t, s.Signal(ctx, 42, "bogus"), model.ErrCommandFailed)
}

func TestSignalNamesCovered(t *testing.T) {
	for _, name := range model.SignalNames {
		_, ok := signalsByName[name]
		assert.True(t, ok, name)
	}
	assert.Len(t, signalsByName, len(model.SignalNames))
}

func TestShellRun(t *testing.T) {
	sh := NewShell("/bin/sh", DefaultOutputLimit)
	ctx := context.Background()

	out, err := sh.Run(ctx, "echo hello; echo oops >&2")
	require.NoError(t, err)
	assert.Equal(t, 0, out.ExitCode)
	assert.Contains(t, out.Output, "hello")
	assert.Contains(t, out.Output, "oops")

	out, err = sh.Run(ctx, "echo partial; exit 3")
	assert.ErrorIs(t, err, model.ErrCommandFailed)
	assert.Equal(t, 3, out.ExitCode)
	assert.Contains(t, out.Output, "partial")
}

func TestShellTimeout(t *testing.T) {
	sh := NewShell("/bin/sh", DefaultOutputLimit)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := sh.Run(ctx, "sleep 5")
	assert.ErrorIs(t, err, model.ErrTimeout)
}

func TestShellMissing(t *testing.T) {
	sh := NewShell(filepath.Join(t.TempDir(), "nosuch"), 0)
	_, err := sh.Run(context.Background(), "true")
	assert.ErrorIs(t, err, model.ErrUnavailable)
}

func TestCappedBuffer(t *testing.T) {
	b := &cappedBuffer{limit: 4}
	n, err := b.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	_, _ = b.Write([]byte("gh"))
	assert.Equal(t, "abcd\n[output truncated]", b.String())
}

func TestSoftwareApply(t *testing.T) {
	dir := t.TempDir()
	script := "#!/bin/sh\necho \"$G_INTERACTIVE $*\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dietpi-software"), []byte(script), 0o755))

	out, err := NewSoftware(dir, DefaultOutputLimit).Apply(context.Background(), "install", []int{17, 97})
	require.NoError(t, err)
	assert.Equal(t, "0 install 17 97", strings.TrimSpace(out.Output))
}

func TestSoftwareMissing(t *testing.T) {
	_, err := NewSoftware(t.TempDir(), 0).Apply(context.Background(), "install", []int{1})
	assert.ErrorIs(t, err, model.ErrUnavailable)
}

func TestFilesBrowse(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "etc"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("bravo"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("alpha"), 0o600))
	files := NewFiles(root, 8)
	root = files.root
	ctx := context.Background()

	listing, err := files.List(ctx, root)
	require.NoError(t, err)
	var names []string
	for _, e := range listing.Entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"etc", "a.txt", "b.txt"}, names)
	assert.True(t, listing.Entries[0].Dir)
	assert.Equal(t, int64(5), listing.Entries[1].Size)

	content, err := files.Read(ctx, filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", content.Content)
	assert.False(t, content.Truncated)

	path := filepath.Join(root, "etc", "dietpi.txt")
	require.NoError(t, files.Write(ctx, path, "AUTO_SETUP_LOCALE=C.UTF-8\n"))
	content, err = files.Read(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "AUTO_SET", content.Content)
	assert.True(t, content.Truncated)
	assert.Equal(t, int64(26), content.Size)

	require.NoError(t, files.Mkdir(ctx, filepath.Join(root, "backup")))
	assert.ErrorIs(t, files.Mkdir(ctx, filepath.Join(root, "backup")), model.ErrCommandFailed)
	assert.DirExists(t, filepath.Join(root, "backup"))
}

func TestFilesErrorMapping(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("x"), 0o600))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "escape")))
	require.NoError(t, os.WriteFile(filepath.Join(root, "blob"), []byte{0xff, 0xfe, 0x00}, 0o600))
	files := NewFiles(root, DefaultOutputLimit)
	root = files.root
	ctx := context.Background()

	_, err := files.Read(ctx, filepath.Join(root, "missing"))
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = files.Read(ctx, filepath.Join(outside, "secret"))
	assert.ErrorIs(t, err, model.ErrPermissionDenied)

	_, err = files.Read(ctx, filepath.Join(root, "escape", "secret"))
	assert.ErrorIs(t, err, model.ErrPermissionDenied, "symlinks are resolved before the root check")

	assert.ErrorIs(t, files.Write(ctx, filepath.Join(root, "escape", "new"), "x"), model.ErrPermissionDenied)
	assert.NoFileExists(t, filepath.Join(outside, "new"))

	_, err = files.Read(ctx, root)
	assert.ErrorIs(t, err, model.ErrCommandFailed)

	_, err = files.Read(ctx, filepath.Join(root, "blob"))
	assert.ErrorIs(t, err, model.ErrCommandFailed)

	assert.ErrorIs(t, files.Write(ctx, filepath.Join(root, "nodir", "file"), "x"), model.ErrNotFound)
}

func TestPowerRunsSystemctl(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "systemctl")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho \"systemctl $*\"\n"), 0o755))

	p := NewPower(DefaultOutputLimit)
	p.systemctl = script
	out, err := p.Power(context.Background(), "reboot")
	require.NoError(t, err)
	assert.Equal(t, "systemctl reboot", strings.TrimSpace(out.Output))
}

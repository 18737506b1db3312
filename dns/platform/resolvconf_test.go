package platform

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testInterface = ActiveInterface{Name: "eth0", ID: "eth0"}

func newTestResolvConf(t *testing.T, content string) (*ResolvConfAdapter, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "resolv.conf")
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}

	return &ResolvConfAdapter{
		path: path,
		findInterface: func() (ActiveInterface, error) {
			return testInterface, nil
		},
		listInterfaces: func() ([]ActiveInterface, error) {
			return []ActiveInterface{testInterface}, nil
		},
	}, path
}

func TestResolvConfReadResolvers(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    ResolverConfig
	}{
		{
			name:    "ordered servers",
			content: "search lan\nnameserver 10.0.0.1\nnameserver 2001:db8::1\noptions ndots:2\nnameserver 8.8.8.8\n",
			want:    MustParseResolverConfig("10.0.0.1", "2001:db8::1", "8.8.8.8"),
		},
		{
			name:    "commented servers are ignored",
			content: "#nameserver 1.1.1.1\n; nameserver 9.9.9.9\nnameserver 10.0.0.1\n",
			want:    MustParseResolverConfig("10.0.0.1"),
		},
		{
			name:    "invalid entries are skipped",
			content: "nameserver not-an-ip\nnameserver 10.0.0.2\n",
			want:    MustParseResolverConfig("10.0.0.2"),
		},
		{
			name:    "no servers",
			content: "search example.com\n",
			want:    ResolverConfig{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, _ := newTestResolvConf(t, tt.content)
			got, err := adapter.ReadResolvers(testInterface)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s, want %s", got, tt.want)
		})
	}
}

func TestResolvConfReadMissingFile(t *testing.T) {
	adapter, _ := newTestResolvConf(t, "")
	got, err := adapter.ReadResolvers(testInterface)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRenderResolvConf(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		servers  ResolverConfig
		want     string
	}{
		{
			name:     "replaces in place and keeps other lines",
			existing: "# hand written\nsearch lan\nnameserver 10.0.0.1\nnameserver 10.0.0.2\noptions edns0\n",
			servers:  MustParseResolverConfig("127.0.0.1"),
			want:     "# hand written\nsearch lan\nnameserver 127.0.0.1\noptions edns0\n",
		},
		{
			name:     "appends when there were no servers",
			existing: "search lan",
			servers:  MustParseResolverConfig("127.0.0.1", "::1"),
			want:     "search lan\nnameserver 127.0.0.1\nnameserver ::1\n",
		},
		{
			name:     "empty config removes all servers",
			existing: "nameserver 10.0.0.1\nsearch lan\nnameserver 10.0.0.2\n",
			servers:  ResolverConfig{},
			want:     "search lan\n",
		},
		{
			name:     "keeps nameserver lines without an IP",
			existing: "nameserver dns.corp.example\nnameserver 10.0.0.1\nnameserver\n",
			servers:  MustParseResolverConfig("127.0.0.1"),
			want:     "nameserver dns.corp.example\nnameserver 127.0.0.1\nnameserver\n",
		},
		{
			name:     "empty config keeps nameserver lines without an IP",
			existing: "nameserver 10.0.0.1\nnameserver dns.corp.example\n",
			servers:  ResolverConfig{},
			want:     "nameserver dns.corp.example\n",
		},
		{
			name:     "empty file",
			existing: "",
			servers:  MustParseResolverConfig("10.0.0.1"),
			want:     "nameserver 10.0.0.1\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := renderResolvConf([]byte(tt.existing), tt.servers)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestResolvConfRoundTrip(t *testing.T) {
	original := "search corp.example\nnameserver 10.0.0.1\nnameserver 10.0.0.2\n"
	adapter, path := newTestResolvConf(t, original)
	require.NoError(t, os.Chmod(path, 0640))

	before, err := adapter.ReadResolvers(testInterface)
	require.NoError(t, err)

	target := MustParseResolverConfig("127.0.0.1")
	require.NoError(t, adapter.WriteResolvers(testInterface, target))

	live, err := adapter.ReadResolvers(testInterface)
	require.NoError(t, err)
	assert.True(t, target.Equal(live))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), info.Mode().Perm())

	require.NoError(t, adapter.WriteResolvers(testInterface, before))
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, string(content))
}

func TestResolvConfWriteFollowsSymlink(t *testing.T) {
	dir := t.TempDir()
	stub := filepath.Join(dir, "stub-resolv.conf")
	link := filepath.Join(dir, "resolv.conf")
	require.NoError(t, os.WriteFile(stub, []byte("nameserver 10.0.0.1\n"), 0644))
	if err := os.Symlink(stub, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	adapter := &ResolvConfAdapter{path: link}
	require.NoError(t, adapter.WriteResolvers(testInterface, MustParseResolverConfig("127.0.0.1")))

	info, err := os.Lstat(link)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink, "link must survive the rewrite")

	content, err := os.ReadFile(stub)
	require.NoError(t, err)
	assert.Equal(t, "nameserver 127.0.0.1\n", string(content))
}

func TestResolvConfWriteIsAtomic(t *testing.T) {
	original := "nameserver 10.0.0.1\n"

	tests := []struct {
		name  string
		setup func(t *testing.T)
	}{
		{
			name: "failure while writing the temp file",
			setup: func(t *testing.T) {
				old := writeTemp
				writeTemp = func(f *os.File, content []byte) error {
					if _, err := f.Write(content[:len(content)/2]); err != nil {
						return err
					}
					return errors.New("disk full")
				}
				t.Cleanup(func() { writeTemp = old })
			},
		},
		{
			name: "failure while renaming",
			setup: func(t *testing.T) {
				old := renameFile
				renameFile = func(string, string) error {
					return errors.New("rename interrupted")
				}
				t.Cleanup(func() { renameFile = old })
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, path := newTestResolvConf(t, original)
			tt.setup(t)

			err := adapter.WriteResolvers(testInterface, MustParseResolverConfig("127.0.0.1", "127.0.0.2"))
			require.Error(t, err)

			var writeErr *WriteError
			assert.ErrorAs(t, err, &writeErr)

			content, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, original, string(content))

			entries, err := os.ReadDir(filepath.Dir(path))
			require.NoError(t, err)
			assert.Len(t, entries, 1, "temp file must be cleaned up")
		})
	}
}

func TestResolvConfWriteRequiresRoot(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("running as root")
	}

	adapter, _ := newTestResolvConf(t, "nameserver 10.0.0.1\n")
	adapter.requireRoot = true

	err := adapter.WriteResolvers(testInterface, MustParseResolverConfig("127.0.0.1"))
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestResolvConfWriteCallsAfterWrite(t *testing.T) {
	adapter, _ := newTestResolvConf(t, "nameserver 10.0.0.1\n")
	called := 0
	adapter.afterWrite = func() { called++ }

	require.NoError(t, adapter.WriteResolvers(testInterface, MustParseResolverConfig("127.0.0.1")))
	assert.Equal(t, 1, called)
}

func TestResolvConfInterfaces(t *testing.T) {
	adapter, _ := newTestResolvConf(t, "")

	iface, err := adapter.ActiveInterface()
	require.NoError(t, err)
	assert.Equal(t, testInterface, iface)

	ifaces, err := adapter.Interfaces()
	require.NoError(t, err)
	assert.Equal(t, []ActiveInterface{testInterface}, ifaces)
	assert.Equal(t, "resolv.conf", adapter.Name())
}

func TestResolvConfRoundTripKeepsHostnameEntries(t *testing.T) {
	original := "nameserver dns.corp.example\nnameserver 10.0.0.1\noptions ndots:2\n"
	adapter, path := newTestResolvConf(t, original)

	before, err := adapter.ReadResolvers(testInterface)
	require.NoError(t, err)
	assert.Equal(t, MustParseResolverConfig("10.0.0.1"), before)

	require.NoError(t, adapter.WriteResolvers(testInterface, MustParseResolverConfig("127.0.0.1")))
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "nameserver dns.corp.example\nnameserver 127.0.0.1\noptions ndots:2\n", string(content))

	require.NoError(t, adapter.WriteResolvers(testInterface, before))
	content, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, string(content))
}

func TestResolvConfActiveInterfaceWithoutRoute(t *testing.T) {
	noRoute := func() (ActiveInterface, error) {
		return ActiveInterface{}, ErrNoActiveInterface
	}

	t.Run("falls back to the file when it lists nameservers", func(t *testing.T) {
		adapter, path := newTestResolvConf(t, "nameserver 127.0.0.1\n")
		adapter.findInterface = noRoute

		iface, err := adapter.ActiveInterface()
		require.NoError(t, err)
		assert.Equal(t, ActiveInterface{Name: "resolv.conf", ID: path}, iface)

		// The placeholder is usable for the write that follows
		require.NoError(t, adapter.WriteResolvers(iface, MustParseResolverConfig("10.0.0.1")))
		got, err := adapter.ReadResolvers(iface)
		require.NoError(t, err)
		assert.Equal(t, MustParseResolverConfig("10.0.0.1"), got)
	})

	t.Run("no nameservers", func(t *testing.T) {
		adapter, _ := newTestResolvConf(t, "search lan\nnameserver dns.corp.example\n")
		adapter.findInterface = noRoute

		_, err := adapter.ActiveInterface()
		assert.ErrorIs(t, err, ErrNoActiveInterface)
	})

	t.Run("missing file", func(t *testing.T) {
		adapter, _ := newTestResolvConf(t, "")
		adapter.findInterface = noRoute

		_, err := adapter.ActiveInterface()
		assert.ErrorIs(t, err, ErrNoActiveInterface)
	})

	t.Run("other errors pass through", func(t *testing.T) {
		adapter, _ := newTestResolvConf(t, "nameserver 127.0.0.1\n")
		netlinkErr := errors.New("netlink: operation not permitted")
		adapter.findInterface = func() (ActiveInterface, error) {
			return ActiveInterface{}, netlinkErr
		}

		_, err := adapter.ActiveInterface()
		assert.ErrorIs(t, err, netlinkErr)
	})
}

package platform

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fosrl/newt/logger"
	"github.com/miekg/dns"
)

const (
	defaultResolvConfPath = "/etc/resolv.conf"
	nameserverKeyword     = "nameserver"
	defaultResolvConfMode = fs.FileMode(0644)
)

var (
	// renameFile and writeTemp are swapped in tests to inject failures
	renameFile = os.Rename
	writeTemp  = func(f *os.File, content []byte) error {
		_, err := f.Write(content)
		return err
	}
)

// ResolvConfAdapter manages DNS settings by rewriting the resolver file.
// The file is replaced as a unit so a crash never leaves it truncated.
type ResolvConfAdapter struct {
	path           string
	requireRoot    bool
	findInterface  func() (ActiveInterface, error)
	listInterfaces func() ([]ActiveInterface, error)
	afterWrite     func()
}

// NewResolvConfAdapter creates an adapter for the resolver file at path,
// defaulting to /etc/resolv.conf
func NewResolvConfAdapter(path string) *ResolvConfAdapter {
	if path == "" {
		path = defaultResolvConfPath
	}

	if manager := DetectManagerFromFile(path); manager != FileManager && manager != UnknownManager {
		logger.Warn("%s is generated by %s, which may overwrite the resolver override", path, manager)
	}

	return &ResolvConfAdapter{
		path:           path,
		requireRoot:    true,
		findInterface:  defaultRouteInterface,
		listInterfaces: upInterfaces,
		afterWrite:     flushSystemResolver,
	}
}

// Name returns the adapter name
func (r *ResolvConfAdapter) Name() string {
	return "resolv.conf"
}

// Path returns the resolver file this adapter manages
func (r *ResolvConfAdapter) Path() string {
	return r.path
}

// ActiveInterface returns the interface carrying the default route.
// The resolver file is global, so the interface only identifies the host
// network binding.
// When no route exists but the file still lists nameservers, the file
// itself stands in for the interface so a disconnected host can revert.
func (r *ResolvConfAdapter) ActiveInterface() (ActiveInterface, error) {
	iface, err := r.findInterface()
	if !errors.Is(err, ErrNoActiveInterface) {
		return iface, err
	}

	servers, readErr := r.ReadResolvers(ActiveInterface{})
	if readErr != nil || len(servers) == 0 {
		return ActiveInterface{}, err
	}

	logger.Warn("No interface carries a default route, managing %s directly", r.path)
	return r.fileInterface(), nil
}

// fileInterface names the resolver file as the active interface
func (r *ResolvConfAdapter) fileInterface() ActiveInterface {
	return ActiveInterface{Name: r.Name(), ID: r.path}
}

// Interfaces lists the interfaces that are up
func (r *ResolvConfAdapter) Interfaces() ([]ActiveInterface, error) {
	return r.listInterfaces()
}

// ReadResolvers returns the nameserver entries of the resolver file in order
func (r *ResolvConfAdapter) ReadResolvers(iface ActiveInterface) (ResolverConfig, error) {
	file, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug("%s does not exist, treating as no resolver override", r.path)
			return ResolverConfig{}, nil
		}
		return nil, readError("open "+r.path, err)
	}
	defer file.Close()

	conf, err := dns.ClientConfigFromReader(file)
	if err != nil {
		return nil, readError("parse "+r.path, err)
	}

	servers := make(ResolverConfig, 0, len(conf.Servers))
	for _, server := range conf.Servers {
		parsed, err := ParseResolverConfig([]string{server})
		if err != nil {
			logger.Warn("Ignoring invalid nameserver entry %q in %s, the line is kept on rewrite", server, r.path)
			continue
		}
		servers = append(servers, parsed...)
	}

	return servers, nil
}

// WriteResolvers rewrites the nameserver entries of the resolver file,
// keeping every other line in place
func (r *ResolvConfAdapter) WriteResolvers(iface ActiveInterface, servers ResolverConfig) error {
	if r.requireRoot && os.Geteuid() != 0 {
		return ErrPermissionDenied
	}

	target, err := r.resolveTarget()
	if err != nil {
		return writeError("resolve "+r.path, err)
	}

	current, mode, err := readExisting(target)
	if err != nil {
		return writeError("read "+target, err)
	}

	content := renderResolvConf(current, servers)
	logger.Debug("Replacing %s with nameservers %s", target, servers)

	if err := replaceFile(target, content, mode); err != nil {
		return writeError("replace "+target, err)
	}

	if r.afterWrite != nil {
		r.afterWrite()
	}

	return nil
}

// resolveTarget follows symlinks so the rename lands on the real file
// instead of replacing the link
func (r *ResolvConfAdapter) resolveTarget() (string, error) {
	target, err := filepath.EvalSymlinks(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return r.path, nil
		}
		return "", err
	}
	return target, nil
}

func readExisting(path string) ([]byte, fs.FileMode, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, defaultResolvConfMode, nil
		}
		return nil, 0, err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}

	return content, info.Mode().Perm(), nil
}

// renderResolvConf replaces the nameserver lines of existing with servers.
// The new entries take the position of the first valid nameserver line, or
// are appended when the file had none. Nameserver lines that do not hold an
// IP literal are not part of the resolver list and stay where they are.
func renderResolvConf(existing []byte, servers ResolverConfig) []byte {
	var out bytes.Buffer
	written := false

	writeServers := func() {
		for _, server := range servers {
			fmt.Fprintf(&out, "%s %s\n", nameserverKeyword, server)
		}
		written = true
	}

	text := strings.TrimSuffix(string(existing), "\n")
	if text != "" {
		for _, line := range strings.Split(text, "\n") {
			if isResolverLine(line) {
				if !written {
					writeServers()
				}
				continue
			}
			out.WriteString(line)
			out.WriteByte('\n')
		}
	}

	if !written {
		writeServers()
	}

	return out.Bytes()
}

// isResolverLine reports whether line is a nameserver entry with an IP value
func isResolverLine(line string) bool {
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != nameserverKeyword {
		return false
	}
	_, err := ParseResolverConfig(fields[1:2])
	return err == nil
}

// replaceFile writes content to a temp file next to path and renames it
// over path. On any failure the temp file is removed and path is untouched.
func replaceFile(path string, content []byte, perm fs.FileMode) (err error) {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if err = writeTemp(tmp, content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err = tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err = renameFile(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	syncDir(dir)
	return nil
}

// syncDir makes the rename durable. Not every platform can fsync a
// directory, so failures are only logged.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()

	if err := d.Sync(); err != nil {
		logger.Debug("sync directory %s: %v", dir, err)
	}
}

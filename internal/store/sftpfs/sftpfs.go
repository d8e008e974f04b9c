// Package sftpfs exposes a remote directory over SFTP as a store.
package sftpfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/user"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"archon/internal/logging"
	"archon/internal/metrics"
	"archon/internal/store"
)

const backendName = "sftp"

// Config holds connection configuration.
type Config struct {
	Host           string
	Port           int
	User           string
	Root           string
	KeyPath        string
	KeyPassphrase  string
	Password       string // Fallback if no key
	Timeout        time.Duration
	KnownHostsPath string
}

// withDefaults fills unset fields from the current user.
func (c Config) withDefaults() Config {
	currentUser, _ := user.Current()
	homeDir := ""
	if currentUser != nil {
		homeDir = currentUser.HomeDir
		if c.User == "" {
			c.User = currentUser.Username
		}
	}
	if c.Port == 0 {
		c.Port = 22
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.KnownHostsPath == "" && homeDir != "" {
		c.KnownHostsPath = filepath.Join(homeDir, ".ssh", "known_hosts")
	}
	if c.Root == "" {
		c.Root = "."
	}
	return c
}

// Conn is an open SFTP session. Close releases the SSH connection.
type Conn struct {
	ssh  *ssh.Client
	sftp *sftp.Client
	root *Dir
}

// Dial connects to the host and opens the configured root directory.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	cfg = cfg.withDefaults()

	sshConfig, err := buildSSHConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build SSH config: %w", err)
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port))
	logging.Info("connecting to SFTP", "addr", addr, "user", cfg.User)

	dialer := &net.Dialer{Timeout: cfg.Timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &store.AccessError{Path: addr, Err: err}
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, sshConfig)
	if err != nil {
		netConn.Close()
		return nil, &store.AccessError{Path: addr, Err: fmt.Errorf("SSH handshake failed: %w", err)}
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, &store.AccessError{Path: addr, Err: fmt.Errorf("failed to start SFTP: %w", err)}
	}

	root, err := NewWithClient(sftpClient, cfg.Root)
	if err != nil {
		sftpClient.Close()
		sshClient.Close()
		return nil, err
	}

	logging.Info("SFTP session established", "host", cfg.Host, "root", root.path)
	return &Conn{ssh: sshClient, sftp: sftpClient, root: root}, nil
}

// Root returns the store root.
func (c *Conn) Root() *Dir { return c.root }

// Close ends the SFTP session and the SSH connection.
func (c *Conn) Close() error {
	err := c.sftp.Close()
	if c.ssh != nil {
		if cerr := c.ssh.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// buildSSHConfig creates the ssh.ClientConfig.
func buildSSHConfig(cfg Config) (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	// Try key-based authentication first
	if cfg.KeyPath != "" {
		keyPath := expandPath(cfg.KeyPath)
		key, err := os.ReadFile(keyPath)
		if err != nil {
			logging.Warn("failed to read SSH key", "path", keyPath, "error", err)
		} else {
			var signer ssh.Signer
			if cfg.KeyPassphrase != "" {
				signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(cfg.KeyPassphrase))
			} else {
				signer, err = ssh.ParsePrivateKey(key)
			}
			if err != nil {
				logging.Warn("failed to parse SSH key", "path", keyPath, "error", err)
			} else {
				authMethods = append(authMethods, ssh.PublicKeys(signer))
			}
		}
	}

	// Try other common key files
	if len(authMethods) == 0 {
		for _, keyFile := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
			keyPath := expandPath(filepath.Join("~/.ssh", keyFile))
			if key, err := os.ReadFile(keyPath); err == nil {
				if signer, err := ssh.ParsePrivateKey(key); err == nil {
					authMethods = append(authMethods, ssh.PublicKeys(signer))
					break
				}
			}
		}
	}

	// Fallback to password authentication
	if cfg.Password != "" {
		authMethods = append(authMethods, ssh.Password(cfg.Password))
	}

	if len(authMethods) == 0 {
		return nil, fmt.Errorf("no authentication method available")
	}

	hostKeyCallback, err := hostKeyCallback(cfg.KnownHostsPath)
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.Timeout,
	}, nil
}

func hostKeyCallback(knownHostsPath string) (ssh.HostKeyCallback, error) {
	if knownHostsPath != "" {
		p := expandPath(knownHostsPath)
		if _, err := os.Stat(p); err == nil {
			cb, err := knownhosts.New(p)
			if err != nil {
				return nil, fmt.Errorf("failed to load known_hosts: %w", err)
			}
			return cb, nil
		}
	}
	logging.Warn("no known_hosts file, host key will not be verified", "path", knownHostsPath)
	return ssh.InsecureIgnoreHostKey(), nil
}

// expandPath expands ~ to home directory.
func expandPath(p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}

// Dir is a remote directory.
type Dir struct {
	client *sftp.Client
	path   string
	name   string
}

// File is a remote file.
type File struct {
	client *sftp.Client
	path   string
	name   string
}

// NewWithClient opens root over an existing SFTP client.
func NewWithClient(client *sftp.Client, root string) (*Dir, error) {
	abs, err := client.RealPath(root)
	if err != nil {
		return nil, &store.AccessError{Path: root, Err: store.Classify(err)}
	}
	info, err := client.Stat(abs)
	if err != nil {
		return nil, &store.AccessError{Path: abs, Err: store.Classify(err)}
	}
	if !info.IsDir() {
		return nil, &store.AccessError{Path: abs, Err: store.ErrNotDirectory}
	}
	return &Dir{client: client, path: abs, name: path.Base(abs)}, nil
}

func (d *Dir) Name() string     { return d.name }
func (d *Dir) Kind() store.Kind { return store.KindDirectory }
func (d *Dir) Path() string     { return d.path }

func (f *File) Name() string     { return f.name }
func (f *File) Kind() store.Kind { return store.KindFile }
func (f *File) Path() string     { return f.path }

// Entries lists directories and regular files. Symlinks are resolved.
func (d *Dir) Entries(ctx context.Context) ([]store.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	infos, err := d.client.ReadDir(d.path)
	metrics.RecordStoreOperation(backendName, "list", time.Since(start), err == nil)
	if err != nil {
		return nil, &store.AccessError{Path: d.path, Err: store.Classify(err)}
	}

	entries := make([]store.Entry, 0, len(infos))
	for _, info := range infos {
		p := path.Join(d.path, info.Name())
		mode := info.Mode()
		if mode&os.ModeSymlink != 0 {
			target, err := d.client.Stat(p)
			if err != nil {
				continue
			}
			mode = target.Mode()
		}

		switch {
		case mode.IsDir():
			entries = append(entries, &Dir{client: d.client, path: p, name: info.Name()})
		case mode.IsRegular():
			entries = append(entries, &File{client: d.client, path: p, name: info.Name()})
		}
	}
	return entries, nil
}

// CreateFile returns the named child, creating an empty file if absent.
func (d *Dir) CreateFile(ctx context.Context, name string) (store.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := path.Join(d.path, name)
	if name == "" || strings.Contains(name, "/") || path.Dir(p) != d.path {
		return nil, &store.WriteError{Path: p, Err: store.ErrNotFound}
	}

	start := time.Now()
	f, err := d.client.OpenFile(p, os.O_WRONLY|os.O_CREATE)
	metrics.RecordStoreOperation(backendName, "create", time.Since(start), err == nil)
	if err != nil {
		return nil, &store.WriteError{Path: p, Err: store.Classify(err)}
	}
	if err := f.Close(); err != nil {
		return nil, &store.WriteError{Path: p, Err: err}
	}
	return &File{client: d.client, path: p, name: name}, nil
}

// Open opens the remote file for reading.
func (f *File) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	r, err := f.client.Open(f.path)
	metrics.RecordStoreOperation(backendName, "open", time.Since(start), err == nil)
	if err != nil {
		return nil, store.Classify(err)
	}
	return r, nil
}

// OpenWritable buffers the content and uploads it on Close. The remote file
// is not touched until then.
func (f *File) OpenWritable(ctx context.Context) (store.Writable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &writable{f: f}, nil
}

type writable struct {
	f    *File
	buf  bytes.Buffer
	done bool
}

func (w *writable) Write(p []byte) (int, error) {
	if w.done {
		return 0, io.ErrClosedPipe
	}
	return w.buf.Write(p)
}

func (w *writable) Close() error {
	if w.done {
		return nil
	}
	w.done = true

	start := time.Now()
	err := w.upload()
	metrics.RecordStoreOperation(backendName, "write", time.Since(start), err == nil)
	return err
}

func (w *writable) upload() error {
	rf, err := w.f.client.OpenFile(w.f.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return store.Classify(err)
	}
	if _, err := rf.Write(w.buf.Bytes()); err != nil {
		rf.Close()
		return err
	}
	return rf.Close()
}

func (w *writable) Abort() error {
	w.done = true
	w.buf.Reset()
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"archon/internal/client"
	"archon/internal/config"
	"archon/internal/contextcache"
	"archon/internal/harvest"
	"archon/internal/logging"
	"archon/internal/store"
	"archon/internal/store/resolve"
	"archon/internal/tree"
	"archon/internal/workspace"
)

// project is an opened session with the resources behind it.
type project struct {
	cfg      *config.Config
	root     *resolve.Root // nil for the demo project
	session  *workspace.Session
	reasoner client.Reasoner
}

type openOptions struct {
	reasoner bool // connect the reasoning endpoint
	publish  bool // publish harvests to the context cache
	logFile  bool // the terminal belongs to the browser
}

// openProject loads the config, resolves the project location in args
// (or the current directory) and opens a session over it.
func openProject(ctx context.Context, args []string, opts openOptions) (*project, error) {
	cfg, err := loadConfig(opts.logFile)
	if err != nil {
		return nil, err
	}

	p := &project{cfg: cfg}

	if opts.reasoner {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		p.reasoner, err = client.NewReasoner(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create reasoning client: %w", err)
		}
	}

	var cacher client.Cacher
	if opts.publish && cfg.Cache.Enabled && p.reasoner != nil {
		cacher, _ = client.AsCacher(p.reasoner)
	}
	p.session = workspace.New(harvest.New(cfg.Harvest), contextcache.New(cacher), p.reasoner)

	var dir store.Dir
	if demo {
		dir = demoProject()
	} else {
		location := "."
		if len(args) > 0 {
			location = args[0]
		}
		p.root, err = resolve.Open(ctx, location, cfg.Store)
		if err != nil {
			p.close()
			return nil, err
		}
		dir = p.root.Dir
	}

	if err := p.session.Open(ctx, dir); err != nil {
		var accessErr *store.AccessError
		if !errors.As(err, &accessErr) {
			p.close()
			return nil, err
		}
		logging.Warn("project root could not be listed", "error", err)
	}
	return p, nil
}

func (p *project) close() {
	if p.session != nil {
		if err := p.session.Close(); err != nil {
			logging.Warn("failed to close session", "error", err)
		}
	}
	if p.root != nil {
		if err := p.root.Close(); err != nil {
			logging.Warn("failed to close project store", "error", err)
		}
	}
}

// lookup finds the node at rel (slash separated, relative to the root),
// expanding directories on the way.
func (p *project) lookup(ctx context.Context, rel string) (*tree.Node, error) {
	rel = strings.Trim(rel, "/")
	if rel == "" {
		return nil, fmt.Errorf("empty path")
	}
	parts := strings.Split(rel, "/")

	nodes := []*tree.Node(p.session.Tree())
	for i, part := range parts {
		var n *tree.Node
		for _, c := range nodes {
			if c.Name == part {
				n = c
				break
			}
		}
		if n == nil {
			return nil, fmt.Errorf("%s: %w", rel, store.ErrNotFound)
		}
		if i == len(parts)-1 {
			return n, nil
		}
		if !n.IsDir() {
			return nil, fmt.Errorf("%s: %w", strings.Join(parts[:i+1], "/"), store.ErrNotDirectory)
		}
		if !n.Expanded {
			t, err := p.session.Toggle(ctx, n)
			if err != nil {
				return nil, err
			}
			expanded, ok := t.Find(n.Handle)
			if !ok {
				return nil, fmt.Errorf("%s: %w", rel, tree.ErrNodeNotFound)
			}
			n = expanded
		}
		nodes = n.Children
	}
	return nil, fmt.Errorf("%s: %w", rel, store.ErrNotFound)
}

// expandAll opens every directory except those in the deny-set.
func (p *project) expandAll(ctx context.Context) error {
	skip := make(map[string]struct{}, len(p.cfg.Harvest.ExcludeDirs))
	for _, name := range p.cfg.Harvest.ExcludeDirs {
		skip[name] = struct{}{}
	}

	for {
		var next *tree.Node
		p.session.Tree().Walk(func(n *tree.Node, _ int) bool {
			if next != nil {
				return false
			}
			if _, denied := skip[n.Name]; n.IsDir() && !n.Expanded && !denied {
				next = n
				return false
			}
			return true
		})
		if next == nil {
			return nil
		}
		if _, err := p.session.Toggle(ctx, next); err != nil {
			var accessErr *store.AccessError
			if !errors.As(err, &accessErr) {
				return err
			}
			logging.Warn("directory could not be listed", "path", next.Handle.Path(), "error", err)
		}
	}
}

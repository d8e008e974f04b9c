package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"archon/internal/client"
	"archon/internal/config"
	"archon/internal/contextcache"
	"archon/internal/fileutil"
	"archon/internal/harvest"
	"archon/internal/logging"
	"archon/internal/server"
	"archon/internal/store"
	"archon/internal/tree"
	"archon/internal/ui"
	"archon/internal/watcher"
)

func newTreeCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "tree [project]",
		Short: "Print the project tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := openProject(ctx, args, openOptions{})
			if err != nil {
				return err
			}
			defer p.close()

			if all {
				if err := p.expandAll(ctx); err != nil {
					return err
				}
			}
			return tree.Render(p.session.Tree(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "expand every directory outside the deny-set")
	return cmd
}

func newCatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat [project] <path>",
		Short: "Print a file from the project",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rootArgs, rel := splitPathArg(args)
			p, err := openProject(ctx, rootArgs, openOptions{})
			if err != nil {
				return err
			}
			defer p.close()

			node, err := p.lookup(ctx, rel)
			if err != nil {
				return err
			}
			text, ok, err := p.session.Select(ctx, node)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			if !ok {
				return fmt.Errorf("%s could not be read", rel)
			}
			return nil
		},
	}
}

func newWriteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write [project] <path>",
		Short: "Overwrite a project file with standard input",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rootArgs, rel := splitPathArg(args)
			p, err := openProject(ctx, rootArgs, openOptions{})
			if err != nil {
				return err
			}
			defer p.close()

			node, err := p.lookup(ctx, rel)
			if err != nil {
				return err
			}
			f, ok := store.AsFile(node.Handle)
			if !ok {
				return fmt.Errorf("%s: %w", rel, store.ErrNotFile)
			}
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read standard input: %w", err)
			}
			return p.session.Save(ctx, f, string(data))
		},
	}
}

func newTouchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "touch [project] <name>",
		Short: "Create an empty file in the project root",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rootArgs, name := splitPathArg(args)
			p, err := openProject(ctx, rootArgs, openOptions{})
			if err != nil {
				return err
			}
			defer p.close()

			f, err := p.session.CreateFile(ctx, name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), f.Path())
			return nil
		},
	}
}

func newHarvestCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "harvest [project]",
		Short: "Build the context document and print it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := openProject(ctx, args, openOptions{})
			if err != nil {
				return err
			}
			defer p.close()

			doc, err := p.session.Scan(ctx)
			if err != nil {
				return err
			}

			if out != "" {
				if err := fileutil.AtomicWrite(out, []byte(doc.Content), 0644); err != nil {
					return fmt.Errorf("write %s: %w", out, err)
				}
			} else if _, err := io.WriteString(cmd.OutOrStdout(), doc.Content); err != nil {
				return err
			}
			printSummary(cmd.ErrOrStderr(), doc)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write the document to a file instead of stdout")
	return cmd
}

func newPublishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish [project]",
		Short: "Harvest the project and publish it to the context cache",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := openProject(ctx, args, openOptions{reasoner: true, publish: true})
			if err != nil {
				return err
			}
			defer p.close()

			doc, err := p.session.Scan(ctx)
			if err != nil {
				return err
			}
			printSummary(cmd.ErrOrStderr(), doc)
			if doc.IsEmpty() {
				return fmt.Errorf("nothing to publish: %w", contextcache.ErrEmptyDocument)
			}

			h, ok := p.session.CacheHandle()
			if !ok {
				return fmt.Errorf("publish: %w", client.ErrCachingUnsupported)
			}
			fmt.Fprintln(cmd.OutOrStdout(), h.Name)
			return nil
		},
	}
}

func newAskCmd() *cobra.Command {
	var (
		asJSON   bool
		copyCode bool
	)
	cmd := &cobra.Command{
		Use:   "ask [project] <prompt>",
		Short: "Ask the architect to design against the project",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rootArgs, prompt := splitPathArg(args)
			p, err := openProject(ctx, rootArgs, openOptions{reasoner: true, publish: true})
			if err != nil {
				return err
			}
			defer p.close()

			if err := scanForReasoning(cmd, p); err != nil {
				return err
			}

			reply, err := p.session.Ask(ctx, prompt)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(reply)
			}

			rendered, err := ui.RenderReply(reply, 100)
			if err != nil {
				rendered = ui.ReplyMarkdown(reply, "")
			}
			fmt.Fprint(cmd.OutOrStdout(), rendered)

			if copyCode {
				if err := ui.CopyCode(reply); err != nil && !errors.Is(err, ui.ErrNoCode) {
					return fmt.Errorf("copy code: %w", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw reply as JSON")
	cmd.Flags().BoolVar(&copyCode, "copy", false, "copy the generated code to the clipboard")
	return cmd
}

func newChatCmd() *cobra.Command {
	var imagePath string
	cmd := &cobra.Command{
		Use:   "chat [project]",
		Short: "Chat about the project, one message per line",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := openProject(ctx, args, openOptions{reasoner: true, publish: true})
			if err != nil {
				return err
			}
			defer p.close()

			if err := scanForReasoning(cmd, p); err != nil {
				return err
			}

			var image *client.Image
			if imagePath != "" {
				image, err = loadImage(imagePath)
				if err != nil {
					return err
				}
			}

			var history []client.Message
			out := cmd.OutOrStdout()
			scanner := bufio.NewScanner(cmd.InOrStdin())
			scanner.Buffer(make([]byte, 64*1024), 1024*1024)

			fmt.Fprint(out, "> ")
			for scanner.Scan() {
				message := strings.TrimSpace(scanner.Text())
				if message == "" {
					fmt.Fprint(out, "> ")
					continue
				}

				reply, err := p.session.Chat(ctx, message, history, image)
				if err != nil {
					return err
				}
				image = nil // attached to the first message only

				rendered, err := ui.RenderMarkdown(reply, 100)
				if err != nil {
					rendered = reply + "\n"
				}
				fmt.Fprint(out, rendered)
				history = append(history,
					client.Message{Role: client.RoleUser, Text: message},
					client.Message{Role: client.RoleModel, Text: reply},
				)
				fmt.Fprint(out, "> ")
			}
			return scanner.Err()
		},
	}
	cmd.Flags().StringVar(&imagePath, "image", "", "image file attached to the first message")
	return cmd
}

func newBrowseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "browse [project]",
		Short: "Browse the project tree and preview files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := openProject(ctx, args, openOptions{logFile: true})
			if err != nil {
				return err
			}
			defer p.close()

			program := tea.NewProgram(ui.NewBrowser(ctx, p.session), tea.WithAltScreen(), tea.WithContext(ctx))
			_, err = program.Run()
			if errors.Is(err, tea.ErrProgramKilled) {
				return nil
			}
			return err
		},
	}
}

func newWatchCmd() *cobra.Command {
	var publish bool
	cmd := &cobra.Command{
		Use:   "watch [project]",
		Short: "Re-harvest a local project whenever it changes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := openProject(ctx, args, openOptions{reasoner: publish, publish: publish})
			if err != nil {
				return err
			}
			defer p.close()

			if p.root == nil || !p.root.IsLocal() {
				return errors.New("watch needs a local project")
			}

			rescan := func() {
				if err := p.session.Refresh(ctx); err != nil {
					logging.Warn("refresh failed", "error", err)
				}
				doc, err := p.session.Scan(ctx)
				if errors.Is(err, harvest.ErrScanInProgress) {
					return
				}
				if doc != nil {
					printSummary(cmd.ErrOrStderr(), doc)
				}
				if err != nil {
					logging.Error("rescan failed", "error", err)
				}
			}

			w, err := watcher.New(p.root.LocalPath(), p.cfg.Harvest.ExcludeDirs, p.cfg.Watcher)
			if err != nil {
				return fmt.Errorf("failed to create watcher: %w", err)
			}
			w.SetOnChange(func(events []watcher.Event) {
				logging.Info("project changed", "paths", len(events), "dirs", len(watcher.Dirs(events)))
				rescan()
			})

			rescan()
			if err := w.Start(); err != nil {
				return err
			}
			defer w.Stop()
			if !w.IsRunning() {
				return errors.New("watcher is disabled in the config")
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "watching %s (%d directories)\n", p.root.LocalPath(), w.WatchedPaths())
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&publish, "publish", false, "publish each harvest to the context cache")
	return cmd
}

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP backend for browser front ends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			reasoner, err := client.NewReasoner(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to create reasoning client: %w", err)
			}
			defer reasoner.Close()

			var cacher client.Cacher
			if cfg.Cache.Enabled {
				cacher, _ = client.AsCacher(reasoner)
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Backend online: %s\n", cfg.Server.Addr)
			return server.New(reasoner, cacher, cfg.Server).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from server.addr)")
	return cmd
}

func newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if path == "" {
				path = config.GetConfigPath()
			}
			if path == "" {
				return errors.New("could not determine config path")
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.DefaultConfig().SaveTo(path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

// scanForReasoning harvests before a reasoning request. A failed publish
// is reported and the request falls back to inline context.
func scanForReasoning(cmd *cobra.Command, p *project) error {
	doc, err := p.session.Scan(cmd.Context())
	var publishErr *contextcache.PublishError
	switch {
	case errors.As(err, &publishErr):
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v; sending context inline\n", err)
	case err != nil:
		return err
	}
	printSummary(cmd.ErrOrStderr(), doc)
	return nil
}

// splitPathArg splits "[project] <last>" arguments.
func splitPathArg(args []string) ([]string, string) {
	return args[:len(args)-1], args[len(args)-1]
}

func printSummary(w io.Writer, doc *harvest.Document) {
	if doc == nil {
		return
	}
	fmt.Fprintf(w, "context: %d files, %d chars", len(doc.Files), len(doc.Content))
	if len(doc.Skipped) > 0 {
		fmt.Fprintf(w, ", %d skipped", len(doc.Skipped))
	}
	if doc.Truncated {
		fmt.Fprint(w, ", truncated")
	}
	fmt.Fprintln(w)
}

func loadImage(path string) (*client.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return &client.Image{MIMEType: mimeType, Data: data}, nil
}

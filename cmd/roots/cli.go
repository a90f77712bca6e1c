package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Viktorfalkner/roots-product-helper/internal/cache"
	"github.com/Viktorfalkner/roots-product-helper/internal/config"
	"github.com/Viktorfalkner/roots-product-helper/internal/errors"
	"github.com/Viktorfalkner/roots-product-helper/internal/github"
	"github.com/Viktorfalkner/roots-product-helper/internal/llm"
	"github.com/Viktorfalkner/roots-product-helper/internal/marker"
	"github.com/Viktorfalkner/roots-product-helper/internal/mcp"
	"github.com/Viktorfalkner/roots-product-helper/internal/plan"
	"github.com/Viktorfalkner/roots-product-helper/internal/prompt"
	"github.com/Viktorfalkner/roots-product-helper/internal/session"
	"github.com/Viktorfalkner/roots-product-helper/internal/shortcut"
	"github.com/Viktorfalkner/roots-product-helper/internal/web"
)

// env holds the collaborators commands are built from.
type env struct {
	store     *config.Store
	logger    *log.Logger
	shortcut  *shortcut.Client
	repos     web.RepoSource
	completer llm.Completer
}

func (e *env) refresher() *cache.Refresher {
	return cache.NewRefresher(e.store, e.shortcut, e.logger)
}

func (e *env) loadCache() (*cache.ContextCache, error) {
	return cache.Load(e.store.CachePath())
}

func (e *env) invoker(cfg *config.Config) *llm.Invoker {
	return llm.NewInvoker(e.completer, e.loadCache, cfg.DefaultModel)
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(e *env) *cli.App {
	app := &cli.App{
		Name:    "roots",
		Usage:   "Product-planning assistant for Shortcut",
		Version: Version,
		Commands: []*cli.Command{
			serveCmd(e),
			mcpCmd(e),
			refreshCmd(e),
			statusCmd(e),
			referenceCmd(e),
			promptCmd(e),
			scanCmd(),
			chatCmd(e),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// serveCmd creates the serve command.
func serveCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Aliases: []string{"b"}, Usage: "Listen address (default from config: 127.0.0.1)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Listen port (default from config: 3001)"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := e.store.Load()
			if err != nil {
				return outputError(err)
			}
			bind, port := cfg.Bind, cfg.Port
			if c.IsSet("bind") {
				bind = c.String("bind")
			}
			if c.IsSet("port") {
				port = c.Int("port")
			}

			refresher := e.refresher()
			srv := web.NewServer(web.Deps{
				Store:     e.store,
				Refresher: refresher,
				Library:   cache.NewLibrary(e.store, refresher),
				Chatter:   e.invoker(cfg),
				Tracker:   e.shortcut,
				Repos:     e.repos,
				Logger:    e.logger,
			}, bind, port)
			return web.Run(srv)
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Run the MCP server on stdio",
		Action: func(c *cli.Context) error {
			cfg, err := e.store.Load()
			if err != nil {
				return outputError(err)
			}
			if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
				e.logger.Printf("warning: unknown tools in disabled_tools: %s", strings.Join(unknown, ", "))
			}

			refresher := e.refresher()
			h := mcp.NewHandlers(e.store, refresher, cache.NewLibrary(e.store, refresher))
			return mcp.Run(h, cfg, Version)
		},
	}
}

// refreshOutput reports a rebuilt cache.
type refreshOutput struct {
	cache.Status
	ReferenceObjectives    []string `json:"reference_objectives"`
	DefaultWorkflowStateID *int64   `json:"default_workflow_state_id"`
}

// refreshCmd creates the refresh command.
func refreshCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Rebuild the context cache from Shortcut",
		Action: func(c *cli.Context) error {
			cc, err := e.refresher().Refresh(c.Context)
			if err != nil {
				return outputError(err)
			}

			out := refreshOutput{
				Status:                 cc.StatusAt(time.Now()),
				ReferenceObjectives:    make([]string, 0, len(cc.ReferenceObjectives)),
				DefaultWorkflowStateID: cc.DefaultWorkflowStateID,
			}
			for _, ref := range cc.ReferenceObjectives {
				out.ReferenceObjectives = append(out.ReferenceObjectives, ref.Title)
			}
			return outputJSON(c.App.Writer, out)
		},
	}
}

// statusCmd creates the status command.
func statusCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Report whether the context cache exists and is fresh",
		Action: func(c *cli.Context) error {
			status, err := cache.StatusAt(e.store.CachePath(), time.Now())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, status)
		},
	}
}

// referenceCmd creates the reference command and its subcommands.
func referenceCmd(e *env) *cli.Command {
	edit := func(apply func(*cache.Library, context.Context, int64) (*cache.LibraryView, error)) cli.ActionFunc {
		return func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("objective ID or URL is required"))
			}
			id, err := shortcut.ParseObjectiveID(c.Args().First())
			if err != nil {
				return outputError(err)
			}
			refresher := e.refresher()
			v, err := apply(cache.NewLibrary(e.store, refresher), c.Context, id)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, v)
		}
	}

	return &cli.Command{
		Name:  "reference",
		Usage: "Manage the reference objective library",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List reference objectives",
				Action: func(c *cli.Context) error {
					v, err := cache.NewLibrary(e.store, e.refresher()).List()
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, v)
				},
			},
			{
				Name:      "add",
				Usage:     "Add an objective and refresh the cache",
				ArgsUsage: "<id|url>",
				Action:    edit((*cache.Library).Add),
			},
			{
				Name:      "remove",
				Usage:     "Remove an objective and refresh the cache",
				ArgsUsage: "<id|url>",
				Action:    edit((*cache.Library).Remove),
			},
		},
	}
}

// promptOutput holds the rendered blocks; omitted parts are empty.
type promptOutput struct {
	Static  string `json:"static,omitempty"`
	Dynamic string `json:"dynamic,omitempty"`
}

// promptCmd creates the prompt command.
func promptCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "prompt",
		Usage: "Preview the system prompt",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "part", Value: "both", Usage: "Block to render: static|dynamic|both"},
			&cli.StringFlag{Name: "objective", Aliases: []string{"o"}, Usage: "Active objective ID or URL"},
			&cli.StringFlag{Name: "epic", Aliases: []string{"e"}, Usage: "Active epic ID"},
			&cli.StringSliceFlag{Name: "repo", Aliases: []string{"r"}, Usage: "Repository (owner/repo or URL); repeatable"},
			&cli.StringFlag{Name: "transcript-summary", Usage: "Meeting summary text"},
		},
		Action: func(c *cli.Context) error {
			part := c.String("part")
			if part != "static" && part != "dynamic" && part != "both" {
				return outputError(errors.NewInvalidField("part", "must be static, dynamic or both"))
			}

			var out promptOutput
			if part != "dynamic" {
				cc, err := e.loadCache()
				if err != nil {
					return outputError(err)
				}
				out.Static = prompt.BuildStatic(cc)
			}
			if part != "static" {
				in, err := e.dynamicInput(c.Context, c.String("objective"), c.String("epic"), c.StringSlice("repo"))
				if err != nil {
					return outputError(err)
				}
				in.TranscriptSummary = c.String("transcript-summary")
				out.Dynamic = prompt.BuildDynamic(in)
			}
			return outputJSON(c.App.Writer, out)
		},
	}
}

// dynamicInput fetches the working context named on the command line.
func (e *env) dynamicInput(ctx context.Context, objective, epic string, repos []string) (prompt.DynamicInput, error) {
	var in prompt.DynamicInput
	if objective != "" {
		id, err := shortcut.ParseObjectiveID(objective)
		if err != nil {
			return in, err
		}
		if in.Objective, err = e.shortcut.ObjectiveWithContext(ctx, id); err != nil {
			return in, err
		}
	}
	if epic != "" {
		id, err := shortcut.ParseID("epic", epic)
		if err != nil {
			return in, err
		}
		if in.Epic, err = e.shortcut.GetEpic(ctx, id); err != nil {
			return in, err
		}
	}
	for _, r := range repos {
		repo, err := loadRepo(ctx, e.repos, r)
		if err != nil {
			return in, err
		}
		in.Repos = append(in.Repos, *repo)
	}
	return in, nil
}

func loadRepo(ctx context.Context, src web.RepoSource, input string) (*plan.Repo, error) {
	owner, name, err := github.ParseRepo(input)
	if err != nil {
		return nil, err
	}
	return src.RepoContext(ctx, owner, name)
}

// scanCmd creates the scan command.
func scanCmd() *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "Parse a model reply into segments and drafts (reads the reply from stdin)",
		Action: func(c *cli.Context) error {
			if c.App.Reader == os.Stdin && !stdinHasData() {
				return outputError(errors.NewInvalidRequest("reply text must be piped via stdin"))
			}
			text, err := readAll(c.App.Reader)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			if text == "" {
				return outputError(errors.NewInvalidRequest("reply text is required"))
			}
			return outputJSON(c.App.Writer, web.NewReplyView(marker.Parse(text)))
		},
	}
}

// chatCmd creates the chat command.
func chatCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive planning session (Ctrl-C twice interrupts a reply)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Usage: "Model: " + strings.Join(llm.AllowedModels, "|")},
			&cli.StringFlag{Name: "objective", Aliases: []string{"o"}, Usage: "Objective ID or URL to load"},
			&cli.StringFlag{Name: "epic", Aliases: []string{"e"}, Usage: "Epic ID to focus"},
			&cli.StringSliceFlag{Name: "repo", Aliases: []string{"r"}, Usage: "Repository to load; repeatable"},
			&cli.StringSliceFlag{Name: "transcript", Aliases: []string{"t"}, Usage: "Meeting transcript file; repeatable"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := e.store.Load()
			if err != nil {
				return outputError(err)
			}

			var workflowState *int64
			cc, err := e.loadCache()
			switch {
			case err == nil:
				workflowState = cc.DefaultWorkflowStateID
			case !errors.Is(err, errors.ErrConfig):
				return outputError(err)
			}

			handler := session.NewHandler(e.shortcut, session.NewState(), session.WithDefaultWorkflowState(workflowState))
			conv := session.NewConversation(e.invoker(cfg), handler,
				session.WithLogger(e.logger),
				session.WithModel(llm.ResolveModel(c.String("model"), cfg.DefaultModel)),
			)
			r := newREPL(conv, e.shortcut, e.repos, c.App.Writer)

			if err := r.preload(c.Context, c.String("objective"), c.String("epic"), c.StringSlice("repo"), c.StringSlice("transcript")); err != nil {
				return outputError(err)
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt)
			defer func() {
				signal.Stop(sigCh)
				close(sigCh)
			}()
			go func() {
				for range sigCh {
					r.interrupt()
				}
			}()

			return r.run(c.Context, c.App.Reader)
		},
	}
}

// Helper functions

// outputJSON marshals result to w as JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatError renders an error as "[CODE] message".
func formatError(err error) string {
	var aErr *errors.AppError
	if stderrors.As(err, &aErr) {
		return fmt.Sprintf("[%s] %s", aErr.Code, aErr.Message)
	}
	return err.Error()
}

// outputError formats error for CLI.
func outputError(err error) error {
	return cli.Exit(formatError(err), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readAll reads all content from r.
func readAll(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

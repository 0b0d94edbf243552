package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"clast/internal/config"
	"clast/internal/crawler"
	"clast/internal/generator"
	"clast/internal/git"
	"clast/internal/graph"
	"clast/internal/ir"
	"clast/internal/parser"
	"clast/internal/pipeline"
	"clast/internal/retrieval"
	"clast/internal/server"
	"clast/internal/storage"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:   "clast",
		Short: "Keep a node graph and its TypeScript source in sync",
	}
	cfgPath string
	dbPath  string
	format  string
	since   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Path to the flow database (SQLite), overrides the config")
	graphCmd.Flags().StringVarP(&format, "format", "f", "mermaid", "Output format: mermaid | stats | json")
	importCmd.Flags().StringVar(&since, "since", "", "Only import files changed since this git ref")

	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(roundtripCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(serveCmd)
}

func loadConfig() *config.Config {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	return cfg
}

func newParser(cfg *config.Config) *parser.Parser {
	policy, err := parser.ParsePolicy(cfg.Parser.Reclassify)
	if err != nil {
		log.Fatalf("Invalid parser config: %v", err)
	}
	p, err := parser.New(cfg.Parser.Language, parser.WithPolicy(policy))
	if err != nil {
		log.Fatalf("Failed to create parser: %v", err)
	}
	return p
}

func newGenerator(cfg *config.Config) *generator.Generator {
	return generator.New(generator.Options{Markers: cfg.Generator.Markers})
}

// controllerOptions maps the sync section of the config onto controller options.
func controllerOptions(cfg *config.Config) []pipeline.Option {
	return []pipeline.Option{
		pipeline.WithGenerator(newGenerator(cfg)),
		pipeline.WithLayouter(graph.NewLayeredLayout(graph.Direction(cfg.Sync.LayoutDirection))),
		pipeline.WithCollaboratorTimeout(cfg.Sync.CollaboratorTimeout),
	}
}

func initStore(cfg *config.Config) *storage.SQLiteStore {
	store, err := storage.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	return store
}

func readSource(args []string) string {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatalf("Failed to read stdin: %v", err)
		}
		return string(data)
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		log.Fatalf("Failed to read %s: %v", args[0], err)
	}
	return string(data)
}

func parseOrExit(p *parser.Parser, text string) []ir.Node {
	nodes, err := p.Parse(context.Background(), text)
	if err != nil {
		log.Fatalf("Parse failed: %v", err)
	}
	return nodes
}

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Parse TypeScript source and print the node document as JSON",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		nodes := parseOrExit(newParser(cfg), readSource(args))

		out, err := ir.EncodeDocument(nodes)
		if err != nil {
			log.Fatalf("Failed to encode nodes: %v", err)
		}
		fmt.Println(string(out))
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate [document.json]",
	Short: "Render a node document as TypeScript source",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		doc, err := ir.DecodeDocument([]byte(readSource(args)))
		if err != nil {
			log.Fatalf("Invalid node document: %v", err)
		}
		fmt.Print(newGenerator(cfg).Generate(doc.Nodes))
	},
}

var roundtripCmd = &cobra.Command{
	Use:   "roundtrip [file]",
	Short: "Parse and regenerate source twice, reporting whether the output is stable",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		p := newParser(cfg)
		gen := newGenerator(cfg)

		first := gen.Generate(parseOrExit(p, readSource(args)))
		second := gen.Generate(parseOrExit(p, first))
		fmt.Print(first)
		if first != second {
			fmt.Fprintln(os.Stderr, "⚠️  Output is not stable under a second round trip.")
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "✅ Round trip is stable.")
	},
}

var graphCmd = &cobra.Command{
	Use:   "graph [file]",
	Short: "Build the visual graph of a source file and print it",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		g := graph.FromIR(parseOrExit(newParser(cfg), readSource(args)))

		layout := graph.NewLayeredLayout(graph.Direction(cfg.Sync.LayoutDirection))
		positions, err := layout.Layout(context.Background(), g)
		if err != nil {
			log.Fatalf("Layout failed: %v", err)
		}
		graph.Apply(g, positions)

		switch format {
		case "mermaid":
			fmt.Print(graph.Mermaid(g))
		case "stats":
			printJSON(g.Stats())
		case "json":
			printJSON(map[string]any{"nodes": g.Nodes(), "edges": g.Edges})
		default:
			log.Fatalf("Unknown format: %s", format)
		}
	},
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode output: %v", err)
	}
	fmt.Println(string(out))
}

// flowIDFor derives a stable flow id from a project-relative path so that
// re-importing a project updates the same flows.
func flowIDFor(rel string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("clast:"+filepath.ToSlash(rel))).String()
}

var importCmd = &cobra.Command{
	Use:   "import [path]",
	Short: "Scan a project and store one flow per TypeScript file",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		root := "."
		if len(args) > 0 {
			root = args[0]
		}
		absRoot, err := filepath.Abs(root)
		if err != nil {
			log.Fatalf("Failed to resolve %s: %v", root, err)
		}

		cfg := loadConfig()
		store := initStore(cfg)
		defer store.Close()

		fmt.Printf("📂 Scanning directory: %s\n", absRoot)
		ctx := context.Background()
		layout := graph.NewLayeredLayout(graph.Direction(cfg.Sync.LayoutDirection))
		cr := crawler.NewCrawler(newParser(cfg))

		var changed map[string]git.ChangedFile
		if since != "" {
			changes, err := git.ChangedFiles(ctx, absRoot, since)
			if err != nil {
				log.Fatalf("Failed to get git changes: %v", err)
			}
			changed = make(map[string]git.ChangedFile, len(changes))
			for _, ch := range changes {
				changed[ch.Path] = ch
			}
			fmt.Printf("📝 Detected %d changed files since %s.\n", len(changes), since)
		}

		start := time.Now()
		imported, failed := 0, 0
		err = cr.ScanProject(ctx, absRoot, func(f crawler.File) {
			change, isChanged := changed[f.Path]
			if changed != nil && (!isChanged || change.Deleted) {
				return
			}
			if f.Err != nil {
				log.Printf("⚠️ Skipping %s: %v", f.Path, f.Err)
				failed++
				return
			}
			flow, err := store.EnsureFlow(ctx, flowIDFor(f.Path), f.Path)
			if err != nil {
				log.Fatalf("Failed to create flow for %s: %v", f.Path, err)
			}

			g := graph.FromIR(f.Nodes)
			if positions, err := layout.Layout(ctx, g); err == nil {
				graph.Apply(g, positions)
			}
			if err := store.SaveGraph(ctx, flow.ID, g); err != nil {
				log.Fatalf("Failed to save %s: %v", f.Path, err)
			}
			if err := store.UpdateFlowPreview(ctx, flow.ID, f.Text); err != nil {
				log.Printf("⚠️ Failed to store preview for %s: %v", f.Path, err)
			}
			if isChanged {
				seeds := retrieval.SeedsForLines(g, f.Text, change.Lines)
				sg := retrieval.Extract(g, seeds, retrieval.DefaultConfig())
				fmt.Printf("  -> %s: %d nodes changed, %d within reach\n", f.Path, len(sg.SeedIDs), len(sg.NodeIDs))
			}
			imported++
		})
		if err != nil {
			log.Fatalf("Scan failed: %v", err)
		}

		fmt.Printf("✅ Imported %d files in %v (%d skipped). Database: %s\n", imported, time.Since(start), failed, cfg.Database.Path)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the flow API over HTTP",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		store := initStore(cfg)
		defer store.Close()

		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           server.NewServer(store, newParser(cfg), controllerOptions(cfg)...),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Printf("server shutdown_failed err=%v", err)
			}
		}()

		fmt.Printf("🚀 Listening on %s (database: %s)\n", cfg.Server.Addr, cfg.Database.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	},
}

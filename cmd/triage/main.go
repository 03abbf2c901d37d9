package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/wevently/triage/internal/audit"
	"github.com/wevently/triage/internal/classify"
	"github.com/wevently/triage/internal/compose"
	"github.com/wevently/triage/internal/config"
	"github.com/wevently/triage/internal/kb"
	"github.com/wevently/triage/internal/llm"
	"github.com/wevently/triage/internal/mcp"
	"github.com/wevently/triage/internal/plan"
	"github.com/wevently/triage/internal/route"
	"github.com/wevently/triage/internal/signal"
)

const version = "0.1.0-dev"

func main() {
	// Local .env files are a convenience for development; the file being
	// absent is not an error.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch os.Args[1] {
	case "ask":
		err = runAsk(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "seed":
		err = runSeed(os.Args[2:])
	case "audit":
		err = runAudit(os.Args[2:])
	case "config":
		err = runConfig(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("triage %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cliFlags are the flags shared by ask and serve.
type cliFlags struct {
	role    string
	llm     string
	kbFlag  string
	db      string
	auditAt string
	verbose bool
	rest    []string
}

func parseFlags(args []string) (cliFlags, error) {
	var f cliFlags
	for i := 0; i < len(args); i++ {
		arg := args[i]
		next := func() (string, error) {
			i++
			if i >= len(args) {
				return "", fmt.Errorf("flag %s requires a value", arg)
			}
			return args[i], nil
		}

		var err error
		switch {
		case arg == "--role":
			f.role, err = next()
		case arg == "--llm":
			f.llm, err = next()
		case arg == "--kb":
			f.kbFlag, err = next()
		case arg == "--db":
			f.db, err = next()
		case arg == "--audit":
			f.auditAt, err = next()
		case arg == "--verbose":
			f.verbose = true
		case strings.HasPrefix(arg, "-"):
			return f, fmt.Errorf("unknown flag: %s", arg)
		default:
			f.rest = append(f.rest, arg)
		}
		if err != nil {
			return f, err
		}
	}
	return f, nil
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

func resolve(f cliFlags) (config.ResolvedConfig, error) {
	return config.ResolveConfig(config.ResolveOptions{
		CLILLM:    f.llm,
		CLIKB:     f.kbFlag,
		CLIDBPath: f.db,
		CLIAudit:  f.auditAt,
	})
}

// buildEngine wires all pipeline collaborators from resolved config.
// The returned cleanup closes the knowledge store.
func buildEngine(ctx context.Context, cfg config.ResolvedConfig, log zerolog.Logger) (*route.Engine, *audit.Recorder, func(), error) {
	classifier, err := classify.NewONNXClassifier(cfg.ModelDir.Value)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading classifier from %s (set TRIAGE_MODEL_DIR): %w", cfg.ModelDir.Value, err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	llmCfg, err := llm.ParseLLMFlag(cfg.LLM.Value)
	if err != nil {
		store.Close(ctx)
		return nil, nil, nil, err
	}
	if k := cfg.APIKeyForProvider(llmCfg.Provider); k.Value != "" {
		llmCfg.APIKey = k.Value
	}
	provider, err := llm.NewProvider(llmCfg)
	if err != nil {
		store.Close(ctx)
		return nil, nil, nil, err
	}

	recorder, err := audit.NewRecorder(cfg.AuditPath.Value)
	if err != nil {
		store.Close(ctx)
		return nil, nil, nil, err
	}

	engine := route.New(route.Config{
		Classifier: classifier,
		Keywords:   signal.NewLemmatizerClient(cfg.LemmatizerURL.Value),
		Emotions:   signal.NewEmotionClient(cfg.EmotionServiceURL.Value),
		Store:      store,
		Selector:   provider,
		Composer:   compose.New(provider),
		Recorder:   recorder,
		Logger:     log,
		PlanOptions: plan.Options{
			DomainKeywords: cfg.DomainKeywordList(),
		},
	})
	cleanup := func() { store.Close(context.Background()) }
	return engine, recorder, cleanup, nil
}

func openStore(ctx context.Context, cfg config.ResolvedConfig) (kb.Querier, error) {
	switch cfg.KBBackend.Value {
	case "neo4j":
		return kb.OpenNeo4j(ctx, kb.Neo4jConfig{
			URI:      cfg.Neo4jURI.Value,
			Username: cfg.Neo4jUser.Value,
			Password: cfg.Neo4jPassword.Value,
		})
	default:
		return kb.OpenSQLite(cfg.DBPath.Value)
	}
}

func runAsk(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	if len(f.rest) == 0 {
		return fmt.Errorf("usage: triage ask <message> [--role Organizador|Prestador|Propietario] [--llm provider/model] [--kb sqlite|neo4j] [--verbose]")
	}
	message := strings.Join(f.rest, " ")
	role := f.role
	if role == "" {
		role = compose.DefaultRole
	}

	log := newLogger(f.verbose)
	cfg, err := resolve(f)
	if err != nil {
		return err
	}

	ctx := context.Background()
	engine, _, cleanup, err := buildEngine(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := engine.Handle(ctx, message, role)
	if err != nil {
		return err
	}

	fmt.Println(res.Response)
	if f.verbose {
		fmt.Fprintf(os.Stderr, "\nkeywords: %s\nemotion: %s\nconfidence: %.2f\n",
			strings.Join(res.Keywords, ", "), res.Emotion.Label, res.Confidence)
	}
	return nil
}

func runServe(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}

	log := newLogger(f.verbose)
	cfg, err := resolve(f)
	if err != nil {
		return err
	}

	ctx := context.Background()
	engine, recorder, cleanup, err := buildEngine(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := mcp.NewServer(mcp.ServerConfig{
		Engine:   engine,
		Recorder: recorder,
		Version:  version,
	})
	log.Info().Str("audit", cfg.AuditPath.Value).Msg("serving MCP over stdio")
	return server.ServeStdio(srv)
}

func runSeed(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	if len(f.rest) != 1 {
		return fmt.Errorf("usage: triage seed <seed.yaml> [--db path]")
	}

	cfg, err := resolve(f)
	if err != nil {
		return err
	}
	if cfg.KBBackend.Value != "sqlite" {
		return fmt.Errorf("seed only supports the sqlite backend (got %s)", cfg.KBBackend.Value)
	}

	sf, err := kb.LoadSeedFile(f.rest[0])
	if err != nil {
		return err
	}

	store, err := kb.OpenSQLite(cfg.DBPath.Value)
	if err != nil {
		return err
	}
	ctx := context.Background()
	defer store.Close(ctx)

	res, err := store.Seed(ctx, sf)
	if err != nil {
		return err
	}
	fmt.Printf("Seeded %s: %d categories, %d keywords, %d problem types\n",
		cfg.DBPath.Value, res.Categories, res.Keywords, res.Problems)
	return nil
}

func runAudit(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := resolve(f)
	if err != nil {
		return err
	}
	recorder, err := audit.NewRecorder(cfg.AuditPath.Value)
	if err != nil {
		return err
	}

	stats, err := recorder.Summarize()
	if err != nil {
		return err
	}
	fmt.Printf("Audit log: %s\n", cfg.AuditPath.Value)
	fmt.Printf("  total:          %d\n", stats.Total)
	fmt.Printf("  full pipeline:  %d\n", stats.FullPipeline)
	fmt.Printf("  fallbacks:      %d\n", stats.ShortCircuited)
	fmt.Printf("  avg confidence: %.2f\n", stats.AvgConfidence)
	fmt.Printf("  avg latency:    %.1f ms\n", stats.AvgTotalMS)
	for source, n := range stats.BySelection {
		fmt.Printf("  selection %-16s %d\n", source+":", n)
	}
	return nil
}

func runConfig(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := resolve(f)
	if err != nil {
		return err
	}
	// Keys and passwords stay out of the printed config.
	cfg.Neo4jPassword.Value = redact(cfg.Neo4jPassword.Value)
	for p, v := range cfg.LLMKeys {
		v.Value = redact(v.Value)
		cfg.LLMKeys[p] = v
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

func printUsage() {
	fmt.Printf(`triage %s — Decision core for Wevently support

Usage:
  triage <command> [arguments]

Commands:
  ask <message>       Answer one support message and print the reply
  serve               Serve the pipeline as an MCP server over stdio
  seed <file>         Load a YAML knowledge seed into the sqlite backend
  audit               Summarize the audit log
  config              Print the effective configuration with provenance
  version             Print version

Flags:
  --role <role>       User role: Organizador, Prestador, Propietario
  --llm <prov/model>  LLM for selection and replies (default ollama/gpt-oss:20b-cloud)
  --kb <backend>      Knowledge backend: sqlite (default) or neo4j
  --db <path>         SQLite database path
  --audit <path>      Audit log path
  --verbose           Debug logging and signal details
  -h, --help          Show this help message
  -v, --version       Print version
`, version)
}

// Package config resolves triage settings from, in increasing precedence:
// built-in defaults, ~/.triage/config.yaml, TRIAGE_* environment variables,
// and CLI flags. Every resolved value remembers where it came from so
// `triage config` can explain the effective configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

// ResolveOptions carries CLI flag overrides into resolution.
type ResolveOptions struct {
	ConfigPath string
	CLILLM     string
	CLIKB      string
	CLIDBPath  string
	CLIAudit   string
}

// ResolvedConfig is the effective configuration with provenance.
type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	KBBackend     ResolvedValue `json:"kb_backend"`
	DBPath        ResolvedValue `json:"db_path"`
	Neo4jURI      ResolvedValue `json:"neo4j_uri"`
	Neo4jUser     ResolvedValue `json:"neo4j_user"`
	Neo4jPassword ResolvedValue `json:"neo4j_password"`

	LLM ResolvedValue `json:"llm"`

	DomainKeywords ResolvedValue `json:"domain_keywords"`

	ModelDir          ResolvedValue `json:"model_dir"`
	LemmatizerURL     ResolvedValue `json:"lemmatizer_url"`
	EmotionServiceURL ResolvedValue `json:"emotion_service_url"`

	AuditPath ResolvedValue `json:"audit_path"`

	LLMKeys map[string]ResolvedValue `json:"llm_keys,omitempty"`
}

type fileConfig struct {
	KB struct {
		Backend string `yaml:"backend"`
		DBPath  string `yaml:"db_path"`
		Neo4j   struct {
			URI      string `yaml:"uri"`
			User     string `yaml:"user"`
			Password string `yaml:"password"`
		} `yaml:"neo4j"`
	} `yaml:"kb"`
	LLM struct {
		Provider string `yaml:"provider"`
		APIKey   string `yaml:"api_key"`
	} `yaml:"llm"`
	Plan struct {
		DomainKeywords []string `yaml:"domain_keywords"`
	} `yaml:"plan"`
	Models struct {
		Dir           string `yaml:"dir"`
		LemmatizerURL string `yaml:"lemmatizer_url"`
		EmotionURL    string `yaml:"emotion_url"`
	} `yaml:"models"`
	Audit struct {
		Path string `yaml:"path"`
	} `yaml:"audit"`
}

// Built-in defaults. The SQLite backend works with zero configuration.
const (
	DefaultKBBackend = "sqlite"
	DefaultDBFile    = "~/.triage/triage.db"
	DefaultAuditFile = "~/.triage/resultados_pruebas.json"
	DefaultModelDir  = "~/.triage/models"
)

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".triage", "config.yaml")
}

func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{
		ConfigPath: path,
		LLMKeys:    map[string]ResolvedValue{},
	}
	applyDefault(&out.KBBackend, DefaultKBBackend)
	applyDefault(&out.DBPath, DefaultDBFile)
	applyDefault(&out.AuditPath, DefaultAuditFile)
	applyDefault(&out.ModelDir, DefaultModelDir)

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.KBBackend, cfg.KB.Backend, SourceConfig, path)
		apply(&out.DBPath, cfg.KB.DBPath, SourceConfig, path)
		apply(&out.Neo4jURI, cfg.KB.Neo4j.URI, SourceConfig, path)
		apply(&out.Neo4jUser, cfg.KB.Neo4j.User, SourceConfig, path)
		apply(&out.Neo4jPassword, cfg.KB.Neo4j.Password, SourceConfig, path)
		apply(&out.LLM, cfg.LLM.Provider, SourceConfig, path)
		apply(&out.DomainKeywords, strings.Join(cfg.Plan.DomainKeywords, ","), SourceConfig, path)
		apply(&out.ModelDir, cfg.Models.Dir, SourceConfig, path)
		apply(&out.LemmatizerURL, cfg.Models.LemmatizerURL, SourceConfig, path)
		apply(&out.EmotionServiceURL, cfg.Models.EmotionURL, SourceConfig, path)
		apply(&out.AuditPath, cfg.Audit.Path, SourceConfig, path)

		if key := strings.TrimSpace(cfg.LLM.APIKey); key != "" {
			provider := providerOf(cfg.LLM.Provider)
			if provider == "" {
				provider = "default"
			}
			out.LLMKeys[provider] = ResolvedValue{Value: key, Source: SourceConfig, From: path}
		}
	}

	applyEnv(&out.KBBackend, "TRIAGE_KB")
	applyEnv(&out.DBPath, "TRIAGE_DB")
	applyEnv(&out.Neo4jURI, "NEO4J_URI")
	applyEnv(&out.Neo4jUser, "NEO4J_USERNAME")
	applyEnv(&out.Neo4jPassword, "NEO4J_PASSWORD")
	applyEnv(&out.LLM, "TRIAGE_LLM")
	applyEnv(&out.DomainKeywords, "TRIAGE_DOMAIN_KEYWORDS")
	applyEnv(&out.ModelDir, "TRIAGE_MODEL_DIR")
	applyEnv(&out.LemmatizerURL, "TRIAGE_LEMMATIZER_URL")
	applyEnv(&out.EmotionServiceURL, "TRIAGE_EMOTION_URL")
	applyEnv(&out.AuditPath, "TRIAGE_AUDIT")

	for env, provider := range map[string]string{
		"OLLAMA_API_KEY":     "ollama",
		"OPENROUTER_API_KEY": "openrouter",
		"GEMINI_API_KEY":     "google",
		"GOOGLE_API_KEY":     "google",
	} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			out.LLMKeys[provider] = ResolvedValue{Value: v, Source: SourceEnv, From: env}
		}
	}

	apply(&out.LLM, opts.CLILLM, SourceCLI, "--llm")
	apply(&out.KBBackend, opts.CLIKB, SourceCLI, "--kb")
	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.AuditPath, opts.CLIAudit, SourceCLI, "--audit")

	out.DBPath.Value = expandUserPath(out.DBPath.Value)
	out.AuditPath.Value = expandUserPath(out.AuditPath.Value)
	out.ModelDir.Value = expandUserPath(out.ModelDir.Value)

	switch out.KBBackend.Value {
	case "sqlite", "neo4j":
	default:
		return out, fmt.Errorf("unknown kb backend %q (supported: sqlite, neo4j)", out.KBBackend.Value)
	}

	return out, nil
}

// DomainKeywordList splits the configured gate vocabulary. The value is a
// comma-separated list (the config file's YAML list is joined on load); an
// empty result means the compiled-in default set applies.
func (r ResolvedConfig) DomainKeywordList() []string {
	raw := strings.TrimSpace(r.DomainKeywords.Value)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// APIKeyForProvider returns the key for a provider or provider/model string,
// falling back to the unscoped config-file key.
func (r ResolvedConfig) APIKeyForProvider(providerOrModel string) ResolvedValue {
	provider := providerOf(providerOrModel)
	if provider == "" {
		return ResolvedValue{}
	}
	if v, ok := r.LLMKeys[provider]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	if v, ok := r.LLMKeys["default"]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	return ResolvedValue{}
}

func providerOf(providerOrModel string) string {
	v := strings.ToLower(strings.TrimSpace(providerOrModel))
	if v == "" {
		return ""
	}
	if idx := strings.Index(v, "/"); idx > 0 {
		return v[:idx]
	}
	return v
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyDefault(dst *ResolvedValue, value string) {
	*dst = ResolvedValue{Value: value, Source: SourceDefault, From: "built-in default"}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

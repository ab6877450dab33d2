package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// PolicyDir holds YAML/JSON/TOML rule-set policy files. Empty disables policy loading.
	PolicyDir string `koanf:"policy_dir"`

	// StorePath is the bbolt database holding compiled rule sets.
	StorePath string `koanf:"store_path" validate:"required"`

	// RuleSet names the rule set evaluated by the daemon.
	RuleSet string `koanf:"ruleset" validate:"required,ruleset_name"`

	// CacheSize is the decision cache capacity; 0 disables caching.
	CacheSize uint `koanf:"cache_size" validate:"lte=10000000"`

	// BloomFPRate is the target false-positive rate of the accept prefilter.
	BloomFPRate float64 `koanf:"bloom_fp_rate" validate:"gt=0,lt=1"`

	// MetricsFile receives Prometheus text-format metrics after each refresh and on shutdown.
	// Empty disables metrics output.
	MetricsFile string `koanf:"metrics_file"`
}

// DEFAULT_APP_CONFIG defines the defaults applied before environment overrides.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:         "prod",
	LogLevel:    "info",
	PolicyDir:   "/etc/rr-bytes/policy.d/",
	StorePath:   "/var/lib/rr-bytes/rulesets.db",
	RuleSet:     "default",
	CacheSize:   4096,
	BloomFPRate: 0.01,
}

var rulesetNameRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ValidRuleSetName reports whether name can be used as a rule-set key.
func ValidRuleSetName(name string) bool {
	return rulesetNameRE.MatchString(name)
}

func validRuleSetName(fl validator.FieldLevel) bool {
	return ValidRuleSetName(fl.Field().String())
}

// envLoader loads environment variables with the prefix "BYTES_",
// lowercasing keys and dropping the prefix. Replaced in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "BYTES_",
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, "BYTES_")), strings.TrimSpace(value)
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG through the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation registers the "ruleset_name" tag.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("ruleset_name", validRuleSetName)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}

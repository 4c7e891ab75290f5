package cli

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/pthm/m2m/pkg/cleanup"
	"github.com/pthm/m2m/pkg/host/pghost"
	"github.com/pthm/m2m/pkg/migration"
	"github.com/pthm/m2m/pkg/schema"
)

const (
	maxWalkDepth = 25
)

// Config represents the m2m configuration from m2m.yaml.
type Config struct {
	// Database configuration
	Database DatabaseConfig `mapstructure:"database" json:"database"`

	// TablePrefix is prepended to every host and engine table name.
	TablePrefix string `mapstructure:"table_prefix" json:"table_prefix"`

	Log          LogConfig          `mapstructure:"log" json:"log"`
	Migration    MigrationConfig    `mapstructure:"migration" json:"migration"`
	Cleanup      CleanupConfig      `mapstructure:"cleanup" json:"cleanup"`
	Localization LocalizationConfig `mapstructure:"localization" json:"localization"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	URL      string `mapstructure:"url" json:"url,omitempty"`
	Host     string `mapstructure:"host" json:"host,omitempty"`
	Port     int    `mapstructure:"port" json:"port"`
	Name     string `mapstructure:"name" json:"name,omitempty"`
	User     string `mapstructure:"user" json:"user,omitempty"`
	Password string `mapstructure:"password" json:"password,omitempty"`
	SSLMode  string `mapstructure:"sslmode" json:"sslmode"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level       string `mapstructure:"level" json:"level"`
	Development bool   `mapstructure:"development" json:"development"`
}

// MigrationConfig holds legacy migration settings.
type MigrationConfig struct {
	ItemsPerStep                   int    `mapstructure:"items_per_step" json:"items_per_step"`
	UseMaintenanceMode             bool   `mapstructure:"use_maintenance_mode" json:"use_maintenance_mode"`
	AdjustTranslationMode          bool   `mapstructure:"adjust_translation_mode" json:"adjust_translation_mode"`
	PostsWithoutDefaultTranslation string `mapstructure:"posts_without_default_translation" json:"posts_without_default_translation"`
	CopyContentWhenCreatingPosts   bool   `mapstructure:"copy_content_when_creating_posts" json:"copy_content_when_creating_posts"`
	ResetTables                    bool   `mapstructure:"reset_tables" json:"reset_tables"`
	// MaintenanceFile is the flag file whose presence puts the host into
	// maintenance mode.
	MaintenanceFile string `mapstructure:"maintenance_file" json:"maintenance_file"`
}

// CleanupConfig holds dangling intermediary cleanup settings.
type CleanupConfig struct {
	BatchSize int    `mapstructure:"batch_size" json:"batch_size"`
	Schedule  string `mapstructure:"schedule" json:"schedule"`
}

// LocalizationConfig describes the host's language setup.
type LocalizationConfig struct {
	Active           bool   `mapstructure:"active" json:"active"`
	DefaultLanguage  string `mapstructure:"default_language" json:"default_language,omitempty"`
	CurrentLanguage  string `mapstructure:"current_language" json:"current_language,omitempty"`
	ShowAllLanguages bool   `mapstructure:"show_all_languages" json:"show_all_languages"`
}

// LoadConfig discovers and loads configuration with proper precedence:
// flags > env > config file > defaults.
//
// Returns the loaded config, the path to the config file (empty if none found),
// and any error encountered.
func LoadConfig(explicitConfigPath string) (*Config, string, error) {
	v := viper.New()

	// 1. Set defaults first (lowest precedence)
	setDefaults(v)

	// 2. Set up environment variable binding
	v.SetEnvPrefix("M2M")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 3. Find and load config file
	configPath, err := findConfigFile(explicitConfigPath)
	if err != nil {
		return nil, "", err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, configPath, fmt.Errorf("reading config file: %w", err)
		}
	}

	// 4. Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, configPath, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, configPath, nil
}

func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "prefer")

	v.SetDefault("table_prefix", schema.DefaultPrefix)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	// Migration defaults
	v.SetDefault("migration.items_per_step", migration.DefaultItemsPerStep)
	v.SetDefault("migration.use_maintenance_mode", false)
	v.SetDefault("migration.adjust_translation_mode", false)
	v.SetDefault("migration.posts_without_default_translation", string(migration.SkipMissingTranslations))
	v.SetDefault("migration.copy_content_when_creating_posts", false)
	v.SetDefault("migration.reset_tables", false)
	v.SetDefault("migration.maintenance_file", ".maintenance")

	// Cleanup defaults
	v.SetDefault("cleanup.batch_size", cleanup.DefaultBatchSize)
	v.SetDefault("cleanup.schedule", cleanup.DefaultSchedule)

	v.SetDefault("localization.active", false)
	v.SetDefault("localization.default_language", "")
	v.SetDefault("localization.current_language", "")
	v.SetDefault("localization.show_all_languages", false)
}

// findConfigFile finds the config file to use.
// If explicitPath is provided, it validates the file exists.
// Otherwise, it walks up from cwd looking for m2m.yaml or m2m.yml,
// stopping at a .git directory or after maxWalkDepth levels.
func findConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}

	dir := cwd
	for i := 0; i < maxWalkDepth; i++ {
		for _, name := range []string{"m2m.yaml", "m2m.yml"} {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}

		// Check for repo boundary (.git file or directory)
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil // No config found, use defaults
}

// DSN returns the database connection string.
// If database.url is set, it's returned directly.
// Otherwise, builds a DSN from discrete fields.
func (c *Config) DSN() (string, error) {
	db := c.Database

	if db.URL != "" {
		return db.URL, nil
	}

	if db.Host == "" {
		return "", fmt.Errorf("database.host is required when database.url is not set")
	}
	if db.Name == "" {
		return "", fmt.Errorf("database.name is required when database.url is not set")
	}
	if db.User == "" {
		return "", fmt.Errorf("database.user is required when database.url is not set")
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   "/" + db.Name,
	}

	if db.Password != "" {
		u.User = url.UserPassword(db.User, db.Password)
	} else {
		u.User = url.User(db.User)
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// Catalog returns the table catalog for the configured prefix.
func (c *Config) Catalog() (schema.Catalog, error) {
	return schema.NewCatalog(c.TablePrefix)
}

// MigrationOptions returns the step options of a migration run.
func (c *Config) MigrationOptions() migration.Options {
	return migration.Options{
		UseMaintenanceMode:             c.Migration.UseMaintenanceMode,
		AdjustTranslationMode:          c.Migration.AdjustTranslationMode,
		PostsWithoutDefaultTranslation: migration.MissingTranslationPolicy(c.Migration.PostsWithoutDefaultTranslation),
		CopyContentWhenCreatingPosts:   c.Migration.CopyContentWhenCreatingPosts,
		ResetTables:                    c.Migration.ResetTables,
	}
}

// LanguageConfig returns the localization settings for the PostgreSQL host.
func (c *Config) LanguageConfig() pghost.LanguageConfig {
	return pghost.LanguageConfig{
		Active:           c.Localization.Active,
		DefaultLanguage:  c.Localization.DefaultLanguage,
		CurrentLanguage:  c.Localization.CurrentLanguage,
		ShowAllLanguages: c.Localization.ShowAllLanguages,
	}
}

// Validate checks the values the commands cannot work without.
func (c *Config) Validate() error {
	if _, err := c.Catalog(); err != nil {
		return fmt.Errorf("table_prefix: %w", err)
	}
	if c.Migration.ItemsPerStep < 1 {
		return fmt.Errorf("migration.items_per_step must be positive, got %d", c.Migration.ItemsPerStep)
	}
	if !c.MigrationOptions().PostsWithoutDefaultTranslation.Valid() {
		return fmt.Errorf("migration.posts_without_default_translation must be %q or %q, got %q",
			migration.SkipMissingTranslations, migration.CreateMissingTranslations, c.Migration.PostsWithoutDefaultTranslation)
	}
	if c.Cleanup.BatchSize < 1 {
		return fmt.Errorf("cleanup.batch_size must be positive, got %d", c.Cleanup.BatchSize)
	}
	if c.Localization.Active && c.Localization.DefaultLanguage == "" {
		return fmt.Errorf("localization.default_language is required when localization is active")
	}
	return nil
}

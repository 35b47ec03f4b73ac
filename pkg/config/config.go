package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port        string `yaml:"port"`
		ReadTimeout int    `yaml:"read_timeout_seconds"`
	} `yaml:"server"`

	Embedding struct {
		APIKey    string  `yaml:"api_key"`
		BaseURL   string  `yaml:"base_url"`
		Model     string  `yaml:"model"`
		ChatModel string  `yaml:"chat_model"`
		VectorDim int     `yaml:"vector_dim"`
		RateLimit float64 `yaml:"rate_limit"`
	} `yaml:"embedding"`

	Database struct {
		URL       string `yaml:"url"`
		TableName string `yaml:"table_name"`
		BatchSize int    `yaml:"batch_size"`
	} `yaml:"database"`

	ObjectStore struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"access_key"`
		SecretKey  string `yaml:"secret_key"`
		Bucket     string `yaml:"bucket"`
		UseSSL     bool   `yaml:"use_ssl"`
		PresignTTL int    `yaml:"presign_ttl_seconds"`
	} `yaml:"object_store"`

	Chunker struct {
		MaxChars     int `yaml:"max_chars"`
		OverlapChars int `yaml:"overlap_chars"`
	} `yaml:"chunker"`

	Jobs struct {
		Workers   int `yaml:"workers"`
		QueueSize int `yaml:"queue_size"`
	} `yaml:"jobs"`

	Fetcher struct {
		RateLimit float64 `yaml:"rate_limit"`
		Timeout   int     `yaml:"timeout_seconds"`
	} `yaml:"fetcher"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/corpus/config.yaml"),
			"/etc/corpus/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Server.Port == "" {
		config.Server.Port = "8080"
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = 30
	}

	if config.Embedding.Model == "" {
		config.Embedding.Model = "text-embedding-3-small"
	}
	if config.Embedding.ChatModel == "" {
		config.Embedding.ChatModel = "gpt-4o-mini"
	}
	if config.Embedding.VectorDim == 0 {
		config.Embedding.VectorDim = 1536
	}
	if config.Embedding.RateLimit == 0 {
		config.Embedding.RateLimit = 5.0
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "chunks"
	}
	if config.Database.BatchSize == 0 {
		config.Database.BatchSize = 100
	}

	if config.ObjectStore.Bucket == "" {
		config.ObjectStore.Bucket = "corpus"
	}
	if config.ObjectStore.PresignTTL == 0 {
		config.ObjectStore.PresignTTL = 900
	}

	if config.Chunker.MaxChars == 0 {
		config.Chunker.MaxChars = 1000
	}
	if config.Chunker.OverlapChars == 0 {
		config.Chunker.OverlapChars = 200
	}

	if config.Jobs.Workers == 0 {
		config.Jobs.Workers = 4
	}
	if config.Jobs.QueueSize == 0 {
		config.Jobs.QueueSize = 64
	}

	if config.Fetcher.RateLimit == 0 {
		config.Fetcher.RateLimit = 2.0
	}
	if config.Fetcher.Timeout == 0 {
		config.Fetcher.Timeout = 30
	}
}

func mergeWithEnv(config *Config) {
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Port = port
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.Embedding.APIKey = key
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.Embedding.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if endpoint := os.Getenv("OBJECT_STORE_ENDPOINT"); endpoint != "" {
		config.ObjectStore.Endpoint = endpoint
	}
	if ak := os.Getenv("OBJECT_STORE_ACCESS_KEY"); ak != "" {
		config.ObjectStore.AccessKey = ak
	}
	if sk := os.Getenv("OBJECT_STORE_SECRET_KEY"); sk != "" {
		config.ObjectStore.SecretKey = sk
	}
}

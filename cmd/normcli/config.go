package main

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds normcli's own configuration, loaded from normcli.yaml if
// present. This is the CLI's ambient config surface, not the out-of-scope
// table-creation/provisioning tooling.
type Config struct {
	// Backend selects which ddbapi.Client implementation to wire: "aws"
	// for a real table via awsddb, "embedded" (default) for a local
	// badgerstore.
	Backend string `yaml:"backend"`

	TableName string `yaml:"tableName"`

	// Region and Endpoint configure the aws backend; Endpoint overrides
	// the default AWS resolver, for local DynamoDB-compatible servers.
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`

	// DataDir configures the embedded backend. Empty means in-memory.
	DataDir string `yaml:"dataDir"`
}

func defaultConfig() Config {
	return Config{Backend: "embedded", TableName: "norm"}
}

// LoadConfig searches for normcli.yaml starting from the current directory
// and walking up to the filesystem root, returning defaults if not found.
func LoadConfig() Config {
	cfg := defaultConfig()

	path := findConfigFile()
	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	_ = yaml.Unmarshal(data, &cfg)
	return cfg
}

func findConfigFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		path := filepath.Join(dir, "normcli.yaml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

package vectorstore

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "VECTORSTORE_"

const maxConfigFileSize = 1024 * 1024

// topLevelKeys are keys of Config itself that contain underscores.
var topLevelKeys = map[string]bool{"skip_initialize": true}

// nestedSections lists the sub-structs of an adapter section whose names
// contain underscores, longest first.
var nestedSections = map[string][]string{
	"pgvector": {"connection_details", "connection"},
}

// LoadConfig reads a YAML file on top of DefaultConfig and then applies
// VECTORSTORE_* environment variables. An empty path skips the file.
//
// Precedence (highest to lowest):
//  1. Environment variables
//  2. The YAML file
//  3. DefaultConfig
//
// Environment variables map to YAML keys by dropping the prefix, lowercasing
// and splitting the section from the field at the first underscore:
//
//	VECTORSTORE_PROVIDER                 -> provider
//	VECTORSTORE_QDRANT_API_KEY           -> qdrant.api_key
//	VECTORSTORE_PGVECTOR_CONNECTION_HOST -> pgvector.connection.host
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return LoadConfigBytes(nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return Config{}, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := LoadConfigBytes(content)
	if err != nil {
		return Config{}, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadConfigBytes is LoadConfig for YAML already in memory.
func LoadConfigBytes(content []byte) (Config, error) {
	k := koanf.New(".")

	if len(content) > 0 {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to parse yaml: %w", err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKey turns VECTORSTORE_SECTION_FIELD_NAME into section.field_name.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if topLevelKeys[key] {
		return key
	}
	section, field, ok := strings.Cut(key, "_")
	if !ok {
		return key
	}
	for _, nested := range nestedSections[section] {
		if rest, found := strings.CutPrefix(field, nested+"_"); found {
			return section + "." + nested + "." + rest
		}
	}
	return section + "." + field
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys and credentials from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key name and the
// file contents (trimmed) are the value.
//
// Supported key files: openalex-email, semantic-scholar-api-key, crossref-mailto, patentsview-api-key.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// knownKeys is this module's credential set — the four adapters that
// take a polite-pool email or an API key. A file under dir with any
// other name is still loaded (a caller may be wiring a source that
// registers its own adapter, per internal/source.Registry.Register),
// but gets a warning rather than silent acceptance.
var knownKeys = map[string]bool{
	"openalex-email":           true,
	"semantic-scholar-api-key": true,
	"crossref-mailto":          true,
	"patentsview-api-key":      true,
}

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files, unrecognized key names, and malformed *-email/*-mailto values
// produce a warning but do not abort.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	logger := log.With().Str("component", "secrets").Logger()
	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if !knownKeys[name] {
			logger.Warn().Str("key", name).Msg("secret file does not match a known credential name")
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn().Err(err).Str("key", name).Msg("could not read secret")
			continue
		}

		value := strings.TrimSpace(string(data))
		if value == "" {
			continue
		}
		if isEmailKey(name) && !looksLikeEmail(value) {
			logger.Warn().Str("key", name).Msg("value does not look like an email address; OpenAlex and Crossref reject malformed polite-pool contacts")
		}
		secrets[name] = value
	}

	return secrets, nil
}

func isEmailKey(name string) bool {
	return strings.HasSuffix(name, "-email") || strings.HasSuffix(name, "-mailto")
}

func looksLikeEmail(value string) bool {
	at := strings.IndexByte(value, '@')
	return at > 0 && at < len(value)-1 && strings.Contains(value[at+1:], ".")
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys from a directory of plain-text files.
// Each file in the directory is one secret: the filename is the key name
// and the trimmed file contents are the value.
//
// Supported key files: mistral-api-key.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultDir is the secrets directory relative to the working directory.
const DefaultDir = ".secrets"

// MistralAPIKey is the key file holding the Mistral API key.
const MistralAPIKey = "mistral-api-key"

// Load reads all files in dir and returns a map of filename to trimmed
// contents. A missing directory is not an error; Load returns an empty
// map. Unreadable files are logged to log and skipped. A nil log uses the
// logrus standard logger.
func Load(dir string, log logrus.FieldLogger) (map[string]string, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.WithField("secret", name).WithError(err).Warn("could not read secret")
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// Lookup returns one secret from dir, or "" when it is absent.
func Lookup(dir, name string, log logrus.FieldLogger) (string, error) {
	all, err := Load(dir, log)
	if err != nil {
		return "", err
	}
	return all[name], nil
}

//go:build mage

// Package main contains Mage build targets for markit-mistral developer tooling.
package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binDir  = "bin"
	binName = "markit-mistral"
	cmdPkg  = "./cmd/markit-mistral"
)

// sampleConfig is written by Init when no config file exists.
const sampleConfig = `# markit-mistral configuration. Flags and MARKIT_MISTRAL_* variables override it.
ocr:
  model: mistral-ocr-latest
  max_retries: 3
  retry_delay: 1s
  timeout: 2m
output:
  include_images: true
  base64_images: false
  preserve_math: true
  metadata: true
  metadata_format: json
max_file_size_mb: 50
log_level: info
concurrency: 1
history_db: .markit-mistral/history.db
`

// Init creates the secrets directory and a sample config file.
func Init() error {
	if err := os.MkdirAll(".secrets", 0o700); err != nil {
		return fmt.Errorf("creating .secrets: %w", err)
	}
	fmt.Println("   .secrets/ (put your key in .secrets/mistral-api-key)")

	const cfg = "markit-mistral.yaml"
	if _, err := os.Stat(cfg); err == nil {
		fmt.Println("  ", cfg, "already exists")
		return nil
	}
	if err := os.WriteFile(cfg, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", cfg, err)
	}
	fmt.Println("  ", cfg)
	return nil
}

// Build compiles the CLI binary into bin/ with the git version stamped in.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	version, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil || version == "" {
		version = "dev"
	}
	out := filepath.Join(binDir, binName)
	ldflags := "-X main.version=" + version
	if err := sh.RunV("go", "build", "-ldflags", ldflags, "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s (%s)\n", out, version)
	return nil
}

// Test runs the unit tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Lint runs go vet.
func Lint() error {
	return sh.RunV("go", "vet", "./...")
}

// Convert builds the CLI and converts one document next to itself.
func Convert(path string) error {
	mg.Deps(Build)
	stem := strings.TrimSuffix(path, filepath.Ext(path))
	return sh.RunV(filepath.Join(binDir, binName), path, "-o", stem+".md")
}

// Stats prints project metrics: Go production/test LOC and documentation word count.
func Stats() error {
	prodLines, err := countGoLines(".", false)
	if err != nil {
		return err
	}
	testLines, err := countGoLines(".", true)
	if err != nil {
		return err
	}
	docWords, err := countDocWords(".")
	if err != nil {
		return err
	}

	fmt.Printf("Lines of code (Go, production): %d\n", prodLines)
	fmt.Printf("Lines of code (Go, tests):      %d\n", testLines)
	fmt.Printf("Words (documentation):           %d\n", docWords)
	return nil
}

// countGoLines walks the directory tree and counts non-blank lines in Go files.
// If testOnly is true, count only _test.go files; otherwise count non-test .go files.
func countGoLines(root string, testOnly bool) (int, error) {
	total := 0
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), "_") || d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") != testOnly {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		for _, line := range bytes.Split(data, []byte("\n")) {
			if len(bytes.TrimSpace(line)) > 0 {
				total++
			}
		}
		return nil
	})
	return total, err
}

// countDocWords counts words in the top-level Markdown files.
func countDocWords(root string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(root, "*.md"))
	if err != nil {
		return 0, err
	}
	total := 0
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, fmt.Errorf("reading %s: %w", path, err)
		}
		total += len(bytes.Fields(data))
	}
	return total, nil
}

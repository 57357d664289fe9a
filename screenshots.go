package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ChallengeReporter keeps visual evidence of what the store showed.
type ChallengeReporter interface {
	Save(category, label string, png []byte) (string, error)
	Has(category, label string) bool
}

const captchaCategory = "captcha"

// FileReporter writes PNG screenshots below root, one directory per category.
type FileReporter struct {
	root string
}

func NewFileReporter(root string) *FileReporter {
	return &FileReporter{root: root}
}

func (r *FileReporter) path(category, label string) string {
	return filepath.Join(r.root, category, sanitizeFilename(label)+".png")
}

func (r *FileReporter) Has(category, label string) bool {
	_, err := os.Stat(r.path(category, label))
	return err == nil
}

func (r *FileReporter) Save(category, label string, png []byte) (string, error) {
	p := r.path(category, label)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return "", fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	if err := os.WriteFile(p, png, 0644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return p, nil
	}
	return abs, nil
}

var filenameReplacer = strings.NewReplacer(
	"/", "!", "\\", "!", ":", "!", "*", "!", "?", "!",
	"\"", "!", "<", "!", ">", "!", "|", "!",
)

// sanitizeFilename swaps characters that are not portable in file names.
func sanitizeFilename(name string) string {
	name = filenameReplacer.Replace(strings.TrimSpace(name))
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}

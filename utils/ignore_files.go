package utils

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// IgnoreFileName holds project-specific skip patterns, one per line.
const IgnoreFileName = ".repo-translate-ignore"

// ignoreCacheEntry holds cached ignore patterns with metadata
type ignoreCacheEntry struct {
	patterns []string
	modTime  time.Time
}

var (
	ignoreCache = make(map[string]*ignoreCacheEntry)
	cacheMutex  sync.RWMutex
)

// defaultIgnoredDirs are never descended into.
var defaultIgnoredDirs = map[string]bool{
	".git": true, ".svn": true, ".hg": true, ".bzr": true,
	".idea": true, ".vscode": true, ".cache": true,
	"node_modules": true, "vendor": true, "bower_components": true,
	"__pycache__": true, ".venv": true, "venv": true, ".tox": true, ".mypy_cache": true, ".pytest_cache": true,
	"dist": true, "build": true, "target": true, "bin": true, "obj": true, "out": true,
	".next": true, ".nuxt": true, ".gradle": true, ".terraform": true,
	".repo-translate-cache": true,
}

// defaultIgnoredFiles are copied through without extraction.
var defaultIgnoredFiles = []string{
	"go.sum", "package-lock.json", "yarn.lock", "pnpm-lock.yaml", "Cargo.lock", "poetry.lock",
	"Pipfile.lock", "composer.lock", "Gemfile.lock", "*.lock",
	"*.min.js", "*.min.css", "*.map",
	"*.exe", "*.dll", "*.so", "*.dylib", "*.a", "*.o", "*.class", "*.jar", "*.pyc", "*.wasm",
	"*.log", "*.bak", "*.bkp", "*.tmp",
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.bmp", "*.ico", "*.webp", "*.svg", "*.psd",
	"*.mp3", "*.wav", "*.aac", "*.flac", "*.ogg", "*.mkv", "*.mp4", "*.avi", "*.mov", "*.wmv",
	"*.zip", "*.tar", "*.gz", "*.tgz", "*.bz2", "*.xz", "*.7z", "*.rar",
	"*.pdf", "*.ttf", "*.otf", "*.woff", "*.woff2", "*.eot",
	"*.drawio", "*.excalidraw", "*.db", "*.sqlite",
	".repo-translate.yaml", ".repo-translate.yml", ".repo-translate.json", IgnoreFileName, ".env",
}

// GetIgnorePatterns reads the project ignore file under root. A missing file
// yields no patterns. Results are cached until the file changes.
func GetIgnorePatterns(root string) ([]string, error) {
	ignorePath := filepath.Join(root, IgnoreFileName)

	fileInfo, err := os.Stat(ignorePath)
	if os.IsNotExist(err) {
		return []string{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("error checking %s: %w", IgnoreFileName, err)
	}

	cacheMutex.RLock()
	if cached, exists := ignoreCache[ignorePath]; exists && fileInfo.ModTime().Equal(cached.modTime) {
		cacheMutex.RUnlock()
		return cached.patterns, nil
	}
	cacheMutex.RUnlock()

	patterns, err := readIgnoreFile(ignorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", IgnoreFileName, err)
	}

	cacheMutex.Lock()
	ignoreCache[ignorePath] = &ignoreCacheEntry{patterns: patterns, modTime: fileInfo.ModTime()}
	cacheMutex.Unlock()

	return patterns, nil
}

// IsDefaultIgnoredDir reports whether a directory name is skipped entirely.
func IsDefaultIgnoredDir(name string) bool {
	return defaultIgnoredDirs[name]
}

// IsDefaultIgnored reports whether a slash-separated relative path falls
// under the built-in skip rules.
func IsDefaultIgnored(rel string) bool {
	rel = filepath.ToSlash(rel)
	parts := strings.Split(rel, "/")
	for _, dir := range parts[:len(parts)-1] {
		if defaultIgnoredDirs[dir] {
			return true
		}
	}
	base := strings.ToLower(parts[len(parts)-1])
	for _, pattern := range defaultIgnoredFiles {
		if match, _ := path.Match(strings.ToLower(pattern), base); match {
			return true
		}
	}
	return false
}

func readIgnoreFile(ignorePath string) ([]string, error) {
	content, err := os.ReadFile(ignorePath)
	if err != nil {
		return nil, err
	}
	var patterns []string
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			patterns = append(patterns, line)
		}
	}
	return patterns, nil
}

// IsIgnored checks a slash-separated relative path against ignore patterns.
// A pattern without a slash matches any path element; "dir/" ignores a
// directory tree; other patterns match the whole path.
func IsIgnored(rel string, patterns []string) bool {
	rel = filepath.ToSlash(rel)
	parts := strings.Split(rel, "/")
	for _, pattern := range patterns {
		pattern = strings.TrimPrefix(filepath.ToSlash(pattern), "/")
		if dir, ok := strings.CutSuffix(pattern, "/"); ok {
			if rel == dir || strings.HasPrefix(rel, dir+"/") {
				return true
			}
			for _, part := range parts[:len(parts)-1] {
				if part == dir {
					return true
				}
			}
			continue
		}
		if match, _ := path.Match(pattern, rel); match {
			return true
		}
		if !strings.Contains(pattern, "/") {
			for _, part := range parts {
				if match, _ := path.Match(pattern, part); match {
					return true
				}
			}
		}
	}
	return false
}

// ClearIgnoreCache drops every cached pattern list.
func ClearIgnoreCache() {
	cacheMutex.Lock()
	defer cacheMutex.Unlock()
	ignoreCache = make(map[string]*ignoreCacheEntry)
}

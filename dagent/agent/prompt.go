package agent

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

//go:embed system_prompt.md
var embeddedSystemPrompt string

// DefaultSystemPrompt returns the built-in agent instruction.
func DefaultSystemPrompt() string {
	return normalizePrompt(embeddedSystemPrompt)
}

func normalizePrompt(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
}

// PromptSource serves the hidden system instruction inserted at the head
// of every model round. Without a path it serves the built-in prompt;
// with one it serves the file content and reloads it whenever the file
// changes, so prompt edits apply without a restart.
type PromptSource struct {
	mu      sync.RWMutex
	text    string
	path    string
	watcher *fsnotify.Watcher
	logger  zerolog.Logger
	done    chan struct{}
	closed  sync.Once
}

// NewPromptSource creates a prompt source. An empty path selects the
// built-in prompt with no watcher behind it.
func NewPromptSource(path string, logger zerolog.Logger) (*PromptSource, error) {
	p := &PromptSource{path: path, logger: logger, done: make(chan struct{})}
	if path == "" {
		p.text = DefaultSystemPrompt()
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read system prompt: %w", err)
	}
	p.text = normalizePrompt(string(data))

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch system prompt: %w", err)
	}
	// Watch the directory, not the file: editors replace the file on
	// save and a watch on the old inode goes silent.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch system prompt: %w", err)
	}
	p.watcher = watcher
	go p.watch()
	return p, nil
}

// Text returns the current instruction.
func (p *PromptSource) Text() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.text
}

// Close stops the watcher, if any.
func (p *PromptSource) Close() error {
	var err error
	p.closed.Do(func() {
		close(p.done)
		if p.watcher != nil {
			err = p.watcher.Close()
		}
	})
	return err
}

func (p *PromptSource) watch() {
	for {
		select {
		case <-p.done:
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(p.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			p.reload()
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn().Err(err).Msg("system prompt watcher error")
		}
	}
}

func (p *PromptSource) reload() {
	data, err := os.ReadFile(p.path)
	if err != nil {
		p.logger.Warn().Err(err).Str("path", p.path).Msg("system prompt reload failed, keeping previous")
		return
	}
	text := normalizePrompt(string(data))
	if text == "" {
		p.logger.Warn().Str("path", p.path).Msg("system prompt file is empty, keeping previous")
		return
	}
	p.mu.Lock()
	p.text = text
	p.mu.Unlock()
	p.logger.Info().Str("path", p.path).Msg("system prompt reloaded")
}

package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultStaleAfter is the age after which a lock file is considered abandoned.
const DefaultStaleAfter = 30 * time.Minute

// File locks a stack with a lock file in Dir.
type File struct {
	Dir        string
	StaleAfter time.Duration
}

// NewFile returns a file locker rooted at dir.
func NewFile(dir string) *File {
	return &File{Dir: dir, StaleAfter: DefaultStaleAfter}
}

func (f *File) Lock(ctx context.Context, stack, owner string) error {
	lockPath := f.path(stack)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	// A lock older than StaleAfter belongs to a crashed run.
	if info, err := os.Stat(lockPath); err == nil && f.StaleAfter > 0 && time.Since(info.ModTime()) > f.StaleAfter {
		os.Remove(lockPath)
	}

	lockFile, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			holder, _ := os.ReadFile(lockPath)
			return fmt.Errorf("%w: %s (lock file: %s). If this is an error, remove the lock file manually",
				ErrLocked, strings.TrimSpace(string(holder)), lockPath)
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer lockFile.Close()

	content := fmt.Sprintf("owner=%s pid=%d time=%s\n", owner, os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if _, err := lockFile.WriteString(content); err != nil {
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	return nil
}

func (f *File) Unlock(ctx context.Context, stack, owner string) error {
	lockPath := f.path(stack)
	holder, err := os.ReadFile(lockPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read lock file: %w", err)
	}
	if !strings.Contains(string(holder), "owner="+owner+" ") {
		return fmt.Errorf("lock on %s is held by another run: %s", stack, strings.TrimSpace(string(holder)))
	}
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

func (f *File) path(stack string) string {
	return filepath.Join(f.Dir, stack+".lock")
}

package internal

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config tunes the directory watcher.
type Config struct {
	SourceDir      string
	ArchiveDir     string
	BadDir         string
	MonitoringTime time.Duration
}

// Watcher polls a source directory for extracted regulatory text files. A
// file is handed off only after it has stayed unmodified for MonitoringTime,
// so half-copied files are never picked up.
type Watcher struct {
	cfg Config

	fileMutex       sync.Mutex
	fileFirstSeen   map[string]time.Time
	filesProcessing map[string]bool
}

func NewWatcher(cfg Config) (*Watcher, error) {
	if err := createDirectories(cfg.SourceDir, cfg.ArchiveDir, cfg.BadDir); err != nil {
		return nil, err
	}
	if cfg.MonitoringTime <= 0 {
		cfg.MonitoringTime = 3 * time.Second
	}
	return &Watcher{
		cfg:             cfg,
		fileFirstSeen:   make(map[string]time.Time),
		filesProcessing: make(map[string]bool),
	}, nil
}

func (w *Watcher) WatchFile(ctx context.Context, fileChan chan<- string) {
	fmt.Printf("Start monitoring folder: %s\n", w.cfg.SourceDir)

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	defer fmt.Println("File watcher stopped and cleaned up")

	for {
		select {
		case <-ctx.Done():
			fmt.Println("Stopping file watcher (context cancelled)...")
			return
		case <-ticker.C:
			files, err := os.ReadDir(w.cfg.SourceDir)
			if err != nil {
				fmt.Printf("error while reading source directory: %s\n", err)
				continue
			}

			currentFiles := make(map[string]bool)

			for _, file := range files {
				if file.IsDir() || !isTextFile(file.Name()) {
					continue
				}

				filePath := filepath.Join(w.cfg.SourceDir, file.Name())
				currentFiles[filePath] = true

				w.fileMutex.Lock()
				if w.filesProcessing[filePath] {
					w.fileMutex.Unlock()
					continue
				}

				if _, exists := w.fileFirstSeen[filePath]; !exists {
					w.fileFirstSeen[filePath] = time.Now()
					fmt.Printf("New file detected: %s\n", filePath)
					w.fileMutex.Unlock()
					continue
				}

				firstSeen := w.fileFirstSeen[filePath]
				w.fileMutex.Unlock()

				if time.Since(firstSeen) > w.cfg.MonitoringTime {
					w.fileMutex.Lock()
					w.filesProcessing[filePath] = true
					w.fileMutex.Unlock()

					select {
					case fileChan <- filePath:
					case <-ctx.Done():
						return
					}
				}
			}

			// Drop tracking for files removed from the directory.
			w.fileMutex.Lock()
			for filePath := range w.fileFirstSeen {
				if !currentFiles[filePath] {
					delete(w.fileFirstSeen, filePath)
					delete(w.filesProcessing, filePath)
				}
			}
			w.fileMutex.Unlock()
		}
	}
}

// Release clears processing state so an unprocessed file is retried on the
// next pass.
func (w *Watcher) Release(filePath string) {
	w.fileMutex.Lock()
	defer w.fileMutex.Unlock()
	delete(w.filesProcessing, filePath)
	delete(w.fileFirstSeen, filePath)
}

// MoveToArchive files the source under archive/<date>/ or bad/<date>/ and
// removes the original.
func (w *Watcher) MoveToArchive(filePath string, failed bool) {
	destRoot := w.cfg.ArchiveDir
	if failed {
		destRoot = w.cfg.BadDir
	}

	currentDate := time.Now().Format("2006-01-02")
	destDir := filepath.Join(destRoot, currentDate)

	if _, err := os.Stat(destDir); os.IsNotExist(err) {
		if err := os.MkdirAll(destDir, 0755); err != nil {
			fmt.Printf("error creating directory: %s\n", err)
			return
		}
	}

	destPath := filepath.Join(destDir, filepath.Base(filePath))

	counter := 1
	for {
		if _, err := os.Stat(destPath); os.IsNotExist(err) {
			break
		}
		ext := filepath.Ext(destPath)
		baseName := strings.TrimSuffix(filepath.Base(destPath), ext)
		destPath = filepath.Join(destDir, fmt.Sprintf("%s_%d%s", baseName, counter, ext))
		counter++
	}

	in, err := os.Open(filePath)
	if err != nil {
		fmt.Printf("error open file: %s\n", err)
		return
	}
	defer in.Close()

	out, err := os.Create(destPath)
	if err != nil {
		fmt.Printf("error create file: %s\n", err)
		return
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		fmt.Printf("error moving file to archive: %s\n", err)
		return
	}

	fmt.Printf("File moved to archive: %s\n", destPath)
	in.Close()
	os.Remove(filePath)
}

// DocumentID derives a stable uuid from the file name, so re-dropping the
// same file re-indexes the same document instead of duplicating it.
func DocumentID(filePath string) uuid.UUID {
	hash := md5.Sum([]byte(filepath.Base(filePath)))
	id, _ := uuid.Parse(fmt.Sprintf("%x", hash))
	return id
}

// Title turns a file name into a document title.
func Title(filePath string) string {
	fileName := filepath.Base(filePath)
	fileName = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	fileName = strings.ReplaceAll(fileName, "_", " ")
	return fileName
}

func isTextFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md":
		return true
	}
	return false
}

func createDirectories(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

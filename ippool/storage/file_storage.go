package storage

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cfip_nexus/internal/shared/logger"
	"cfip_nexus/ippool/model"
)

const delimiter = "#"

// Storage 接口定义了结果文件持久化的行为。
type Storage interface {
	Load() (model.ResultSet, error)
	Save(artifact string) error
}

// FileStorage 实现了 Storage 接口，使用纯文本文件进行持久化。
type FileStorage struct {
	filePath string
	mu       sync.RWMutex
}

// NewFileStorage 创建一个新的 FileStorage 实例。
func NewFileStorage(filePath string) *FileStorage {
	return &FileStorage{
		filePath: filePath,
	}
}

// Path returns the artifact location.
func (fs *FileStorage) Path() string {
	return fs.filePath
}

// Load reads a previously written artifact back into records. A missing file
// yields an empty set.
func (fs *FileStorage) Load() (model.ResultSet, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	l := logger.WithComponent("IPPool/Storage")

	file, err := os.Open(fs.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			l.Info().Str("path", fs.filePath).Msg("Artifact not found, nothing to load.")
			return model.ResultSet{}, nil
		}
		return nil, err
	}
	defer file.Close()

	var records model.ResultSet
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		rec, err := parseLine(line)
		if err != nil {
			l.Warn().Int("line", lineNum).Err(err).Msg("Skipping malformed line in artifact.")
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	l.Debug().Int("count", len(records)).Str("path", fs.filePath).Msg("Loaded artifact.")
	return records, nil
}

// Save replaces the artifact with the given text. The write goes to a
// temporary file in the same directory which is then renamed, so readers
// never observe a half-written file.
func (fs *FileStorage) Save(artifact string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	l := logger.WithComponent("IPPool/Storage")

	dir := filepath.Dir(fs.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(fs.filePath)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(artifact); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, fs.filePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace artifact: %w", err)
	}

	l.Info().Int("bytes", len(artifact)).Str("path", fs.filePath).Msg("Successfully saved artifact.")
	return nil
}

// parseLine reverses model.EnrichedRecord.Line.
func parseLine(line string) (model.EnrichedRecord, error) {
	addr, field, ok := strings.Cut(line, delimiter)
	if !ok || addr == "" || field == "" {
		return model.EnrichedRecord{}, fmt.Errorf("missing %q separator", delimiter)
	}
	code, speed, _ := strings.Cut(field, "-")
	if len(code) != 2 {
		return model.EnrichedRecord{}, fmt.Errorf("invalid country code %q", code)
	}
	return model.EnrichedRecord{Address: addr, CountryCode: code, Speed: speed}, nil
}

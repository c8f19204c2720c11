package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"
)

// IndexerStore defines the storage operations Indexer needs. *Store
// satisfies it; tests substitute a mock.
type IndexerStore interface {
	Add(ctx context.Context, doc Document) error
	ListBySourceType(ctx context.Context, sourceType string, limit int) ([]Document, error)
	Delete(ctx context.Context, docID string) error
}

// defaultSupportedExtensions are the file types indexed by default.
var defaultSupportedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".go":   true,
	".py":   true,
	".js":   true,
	".ts":   true,
	".java": true,
	".c":    true,
	".cpp":  true,
	".h":    true,
	".rs":   true,
	".rb":   true,
	".sh":   true,
	".yaml": true,
	".yml":  true,
	".json": true,
	".sql":  true,
	".html": true,
	".css":  true,
}

// MaxFileSizeForEmbedding caps indexable file size. The embedding model
// truncates input past roughly 2048 tokens, so content beyond ~8KB would be
// silently unsearchable.
const MaxFileSizeForEmbedding = 8 * 1024

// DefaultListLimit bounds ListDocuments queries.
const DefaultListLimit = 1000

// IndexResult summarizes one indexing run.
type IndexResult struct {
	FilesAdded   int
	FilesSkipped int
	FilesFailed  int
	TotalSize    int64
	Duration     time.Duration
}

// Indexer adds local files to the knowledge store.
type Indexer struct {
	store               IndexerStore
	supportedExtensions map[string]bool
}

// NewIndexer creates a file indexer. extensions overrides the default
// supported set when non-empty.
func NewIndexer(store IndexerStore, extensions []string) *Indexer {
	extMap := make(map[string]bool, len(defaultSupportedExtensions))
	if len(extensions) > 0 {
		for _, ext := range extensions {
			extMap[strings.ToLower(ext)] = true
		}
	} else {
		for k, v := range defaultSupportedExtensions {
			extMap[k] = v
		}
	}

	return &Indexer{
		store:               store,
		supportedExtensions: extMap,
	}
}

// AddFile indexes a single file.
func (idx *Indexer) AddFile(ctx context.Context, filePath string) error {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}

	// Read through os.Root so symlinks cannot escape the parent directory.
	root, err := os.OpenRoot(filepath.Dir(absPath))
	if err != nil {
		return fmt.Errorf("opening parent directory: %w", err)
	}
	defer func() {
		_ = root.Close()
	}()

	fileName := filepath.Base(absPath)
	info, err := root.Stat(fileName)
	if err != nil {
		return fmt.Errorf("stat %s: %w", fileName, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, use AddDirectory instead", filePath)
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	if !idx.supportedExtensions[ext] {
		return fmt.Errorf("unsupported file type: %s", ext)
	}
	if info.Size() > MaxFileSizeForEmbedding {
		return fmt.Errorf("file %s (%d bytes) exceeds embedding limit (%d bytes)",
			fileName, info.Size(), MaxFileSizeForEmbedding)
	}

	content, err := root.ReadFile(fileName)
	if err != nil {
		return fmt.Errorf("reading %s: %w", fileName, err)
	}

	doc := fileDocument(absPath, fileName, ext, info.Size(), content)
	if err := idx.store.Add(ctx, doc); err != nil {
		return fmt.Errorf("storing document: %w", err)
	}
	return nil
}

// AddDirectory recursively indexes all supported files under dirPath,
// honoring a .gitignore at the directory root if present. Individual file
// failures are counted, not fatal.
func (idx *Indexer) AddDirectory(ctx context.Context, dirPath string) (*IndexResult, error) {
	start := time.Now()
	result := &IndexResult{}

	absDir, err := filepath.Abs(dirPath)
	if err != nil {
		return nil, fmt.Errorf("resolving directory path: %w", err)
	}

	root, err := os.OpenRoot(absDir)
	if err != nil {
		return nil, fmt.Errorf("opening directory: %w", err)
	}
	defer func() {
		_ = root.Close()
	}()

	var gitIgnore *ignore.GitIgnore
	if _, err := os.Stat(filepath.Join(absDir, ".gitignore")); err == nil {
		// A malformed .gitignore disables filtering rather than failing the run.
		gitIgnore, _ = ignore.CompileIgnoreFile(filepath.Join(absDir, ".gitignore"))
	}

	walkErr := filepath.Walk(absDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			result.FilesFailed++
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		relPath, err := filepath.Rel(absDir, path)
		if err != nil {
			result.FilesFailed++
			return nil
		}

		if gitIgnore != nil && gitIgnore.MatchesPath(relPath) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			result.FilesSkipped++
			return nil
		}
		if info.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if !idx.supportedExtensions[ext] || info.Size() > MaxFileSizeForEmbedding {
			result.FilesSkipped++
			return nil
		}

		content, err := root.ReadFile(relPath)
		if err != nil {
			result.FilesFailed++
			return nil
		}

		doc := fileDocument(path, filepath.Base(path), ext, info.Size(), content)
		if err := idx.store.Add(ctx, doc); err != nil {
			result.FilesFailed++
			return nil
		}

		result.FilesAdded++
		result.TotalSize += info.Size()
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walking directory: %w", walkErr)
	}

	result.Duration = time.Since(start)
	return result, nil
}

// ListDocuments returns all indexed file documents.
func (idx *Indexer) ListDocuments(ctx context.Context) ([]Document, error) {
	docs, err := idx.store.ListBySourceType(ctx, SourceTypeFile, DefaultListLimit)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return docs, nil
}

// RemoveFile deletes the document previously indexed from filePath.
func (idx *Indexer) RemoveFile(ctx context.Context, filePath string) error {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	if err := idx.store.Delete(ctx, generateDocID(absPath)); err != nil {
		return fmt.Errorf("removing document: %w", err)
	}
	return nil
}

func fileDocument(absPath, fileName, ext string, size int64, content []byte) Document {
	now := time.Now()
	return Document{
		ID:      generateDocID(absPath),
		Content: string(content),
		Metadata: map[string]string{
			"source_type": SourceTypeFile,
			"file_path":   absPath,
			"file_name":   fileName,
			"file_ext":    ext,
			"file_size":   fmt.Sprintf("%d", size),
			"indexed_at":  now.Format(time.RFC3339),
		},
		CreateAt: now,
	}
}

// generateDocID derives a stable document id from the absolute file path, so
// re-indexing the same file updates in place.
func generateDocID(absPath string) string {
	sum := sha256.Sum256([]byte(absPath))
	return "file-" + hex.EncodeToString(sum[:8])
}

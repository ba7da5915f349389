package models

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
)

// Progress reports download progress.
type Progress struct {
	Size       Size
	Downloaded int64
	Total      int64
	Done       bool
}

// Manager keeps model files in a directory and downloads missing ones.
type Manager struct {
	dir        string
	httpClient *http.Client
	mu         sync.Mutex
}

// NewManager creates a manager rooted at dir, creating it if needed.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create models directory: %w", err)
	}
	return &Manager{dir: dir, httpClient: http.DefaultClient}, nil
}

// Dir returns the models directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Path returns where the model file lives (whether or not it exists).
func (m *Manager) Path(info ModelInfo) string {
	return filepath.Join(m.dir, info.Filename)
}

// IsDownloaded reports whether a non-empty model file is present.
func (m *Manager) IsDownloaded(info ModelInfo) bool {
	stat, err := os.Stat(m.Path(info))
	if err != nil {
		return false
	}
	return !stat.IsDir() && stat.Size() > 0
}

// Ensure returns the model path, downloading the file first when allowed.
func (m *Manager) Ensure(ctx context.Context, info ModelInfo, download bool, progress chan<- Progress) (string, error) {
	if m.IsDownloaded(info) {
		return m.Path(info), nil
	}
	if !download {
		return "", fmt.Errorf("model %s not found at %s (auto_download disabled)", info.Size, m.Path(info))
	}
	if err := m.Download(ctx, info, progress); err != nil {
		return "", err
	}
	return m.Path(info), nil
}

// Download fetches the model into the directory.
// progress receives updates and may be nil.
func (m *Manager) Download(ctx context.Context, info ModelInfo, progress chan<- Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.IsDownloaded(info) {
		if progress != nil {
			progress <- Progress{Size: info.Size, Downloaded: info.Bytes, Total: info.Bytes, Done: true}
		}
		return nil
	}

	destPath := m.Path(info)
	tmpPath := destPath + ".tmp"
	defer os.Remove(tmpPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.URL, nil)
	if err != nil {
		return err
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: HTTP %s", resp.Status)
	}

	total := resp.ContentLength
	if total <= 0 {
		total = info.Bytes
	}

	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	defer file.Close()

	var downloaded int64
	buf := make([]byte, 32*1024)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := file.Write(buf[:n]); werr != nil {
				return werr
			}
			downloaded += int64(n)

			if progress != nil {
				select {
				case progress <- Progress{Size: info.Size, Downloaded: downloaded, Total: total}:
				default:
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}

	if err := file.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return err
	}

	if progress != nil {
		progress <- Progress{Size: info.Size, Downloaded: downloaded, Total: total, Done: true}
	}

	return nil
}

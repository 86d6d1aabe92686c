// Package dataset keeps a local copy of the pet food catalog export fresh.
package dataset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/noot-app/petfood-nutrition-server/internal/config"
)

// Metadata holds information about the downloaded export
type Metadata struct {
	URL          string    `json:"url"`
	SHA256       string    `json:"sha256"`
	DownloadedAt time.Time `json:"downloaded_at"`
	ETag         string    `json:"etag,omitempty"`
	Size         int64     `json:"size"`
}

// Manager handles downloading the export and tracking its metadata
type Manager struct {
	url          string
	datasetPath  string
	metadataPath string
	lockPath     string
	disableCheck bool
	ignoreLock   bool
	client       *http.Client
	waitTimeout  time.Duration
	log          *slog.Logger
}

// NewManager creates a dataset manager from the catalog settings in cfg
func NewManager(cfg *config.Config, logger *slog.Logger) *Manager {
	return &Manager{
		url:          cfg.DatasetURL,
		datasetPath:  cfg.DatasetPath,
		metadataPath: cfg.MetadataPath,
		lockPath:     cfg.LockFile,
		disableCheck: cfg.DisableRemoteCheck,
		ignoreLock:   cfg.IgnoreLock,
		client:       &http.Client{Timeout: 30 * time.Minute},
		waitTimeout:  10 * time.Minute,
		log:          logger,
	}
}

// Path returns the local path of the export
func (m *Manager) Path() string {
	return m.datasetPath
}

// Metadata returns the metadata of the current local copy
func (m *Manager) Metadata() (*Metadata, error) {
	return m.loadMetadata()
}

// Verify checks the local export against the SHA-256 in its metadata
func (m *Manager) Verify() error {
	meta, err := m.loadMetadata()
	if err != nil {
		return fmt.Errorf("failed to load metadata: %w", err)
	}
	sum, err := computeSHA256(m.datasetPath)
	if err != nil {
		return fmt.Errorf("failed to hash export: %w", err)
	}
	if sum != meta.SHA256 {
		return fmt.Errorf("export checksum mismatch: have %s, metadata says %s", sum, meta.SHA256)
	}
	return nil
}

// EnsureDataset ensures the export is available and up-to-date
func (m *Manager) EnsureDataset(ctx context.Context) error {
	start := time.Now()
	m.log.Info("Ensuring catalog export is available", "dataset_path", m.datasetPath)

	if _, err := os.Stat(m.datasetPath); err == nil {
		if m.disableCheck {
			m.log.Info("Remote checks disabled, using local export", "duration", time.Since(start))
			return nil
		}

		upToDate, err := m.isUpToDate(ctx)
		if err != nil {
			m.log.Warn("Failed to verify export freshness", "error", err)
		}
		if upToDate {
			m.log.Info("Catalog export is up-to-date", "duration", time.Since(start))
			return nil
		}
	}

	if err := m.downloadWithLock(ctx); err != nil {
		return fmt.Errorf("failed to download catalog export: %w", err)
	}

	m.log.Info("Catalog export ensured", "duration", time.Since(start))
	return nil
}

// isUpToDate compares the local metadata with a HEAD of the remote export.
// ETags win; the size is the fallback.
func (m *Manager) isUpToDate(ctx context.Context) (bool, error) {
	localMeta, err := m.loadMetadata()
	if err != nil {
		m.log.Debug("No local metadata found", "error", err)
		return false, nil
	}
	if localMeta.URL != "" && localMeta.URL != m.url {
		m.log.Info("Catalog URL changed, refreshing", "old", localMeta.URL, "new", m.url)
		return false, nil
	}

	remoteMeta, err := m.remoteMetadata(ctx)
	if err != nil {
		return false, err
	}

	if remoteMeta.ETag != "" && localMeta.ETag != "" {
		upToDate := remoteMeta.ETag == localMeta.ETag
		m.log.Debug("ETag comparison", "local", localMeta.ETag, "remote", remoteMeta.ETag, "up_to_date", upToDate)
		return upToDate, nil
	}

	upToDate := remoteMeta.Size == localMeta.Size
	m.log.Debug("Size comparison", "local", localMeta.Size, "remote", remoteMeta.Size, "up_to_date", upToDate)
	return upToDate, nil
}

// remoteMetadata fetches ETag and size with a HEAD request
func (m *Manager) remoteMetadata(ctx context.Context) (*Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build HEAD request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch remote metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HEAD request failed with status: %d", resp.StatusCode)
	}

	return &Metadata{
		URL:  m.url,
		ETag: resp.Header.Get("ETag"),
		Size: resp.ContentLength,
	}, nil
}

// downloadWithLock downloads the export while holding the lock file.
// Another process holding the lock means we wait for its result.
func (m *Manager) downloadWithLock(ctx context.Context) error {
	if m.ignoreLock {
		if _, err := os.Stat(m.lockPath); err == nil {
			m.log.Warn("IGNORE_LOCK enabled, removing existing lock file", "lock_path", m.lockPath)
			if err := os.Remove(m.lockPath); err != nil {
				m.log.Warn("Failed to remove lock file", "error", err)
			}
		}
	}

	lockFile, err := acquireLock(m.lockPath)
	if err != nil {
		if !m.ignoreLock {
			m.log.Info("Another instance is downloading, waiting", "lock_path", m.lockPath)
			return m.waitForDownload(ctx)
		}
		m.log.Warn("IGNORE_LOCK enabled but failed to acquire lock, proceeding anyway", "error", err)
	}
	if lockFile != nil {
		defer releaseLock(lockFile, m.lockPath)
	}

	if err := os.MkdirAll(filepath.Dir(m.datasetPath), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	// The temp file lives next to the target so the final rename is atomic.
	tmpPath := m.datasetPath + ".tmp"
	meta, err := m.downloadFile(ctx, tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, m.datasetPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move export into place: %w", err)
	}

	if err := m.saveMetadata(meta); err != nil {
		m.log.Warn("Failed to save metadata", "error", err)
	}

	m.log.Info("Catalog export downloaded", "size", meta.Size, "sha256", meta.SHA256[:16]+"...")
	return nil
}

// downloadFile streams the export to path and hashes it on the way
func (m *Manager) downloadFile(ctx context.Context, path string) (*Metadata, error) {
	start := time.Now()
	m.log.Info("Downloading catalog export", "url", m.url, "path", path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	hash := sha256.New()
	written, err := io.Copy(io.MultiWriter(file, hash), resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to write export: %w", err)
	}
	if err := file.Sync(); err != nil {
		return nil, fmt.Errorf("failed to flush export: %w", err)
	}

	m.log.Info("Download completed", "bytes", written, "duration", time.Since(start))
	return &Metadata{
		URL:          m.url,
		SHA256:       hex.EncodeToString(hash.Sum(nil)),
		DownloadedAt: time.Now().UTC(),
		ETag:         resp.Header.Get("ETag"),
		Size:         written,
	}, nil
}

// waitForDownload waits for another instance to finish the download
func (m *Manager) waitForDownload(ctx context.Context) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	timeout := time.After(m.waitTimeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return errors.New("timeout waiting for download by other instance")
		case <-ticker.C:
			if _, err := os.Stat(m.lockPath); errors.Is(err, os.ErrNotExist) {
				if _, err := os.Stat(m.datasetPath); err == nil {
					m.log.Info("Catalog export available after other instance completed")
					return nil
				}
				return errors.New("other instance released the lock without producing the export")
			}
		}
	}
}

func (m *Manager) loadMetadata() (*Metadata, error) {
	data, err := os.ReadFile(m.metadataPath)
	if err != nil {
		return nil, err
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &meta, nil
}

func (m *Manager) saveMetadata(meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.metadataPath, data, 0644)
}

// acquireLock creates the lock file exclusively
func acquireLock(lockPath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
}

func releaseLock(f *os.File, lockPath string) {
	f.Close()
	os.Remove(lockPath)
}

// computeSHA256 computes the SHA256 hash of a file
func computeSHA256(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

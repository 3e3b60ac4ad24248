package lib

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/microsoft/code-push-server-sub001/internal/codepush/types"
)

var (
	// ErrDeploymentNotFound is the only storage failure surfaced to clients;
	// everything else is absorbed or logged by the callers.
	ErrDeploymentNotFound = errors.New("deployment not found")

	// ErrBlobNotFound signals that a blob location does not resolve.
	ErrBlobNotFound = errors.New("blob not found")
)

// Storage is the persistence collaborator the engine consumes. Histories are
// chronological and append-only; GetHistory returns an isolated snapshot, so
// concurrent resolutions and diff runs never observe each other's reads.
// The engine never generates identifiers; blob locations and deployment ids
// are owned by the storage implementation.
type Storage interface {
	ResolveDeploymentKey(ctx context.Context, key string) (string, error)
	GetHistory(ctx context.Context, key string) ([]types.Package, error)
	AppendRelease(ctx context.Context, key string, pkg types.Package) error
	UpdateReleaseFields(ctx context.Context, key, label string, mutate func(*types.Package)) error
	UploadBlob(ctx context.Context, data []byte) (string, error)
	DownloadBlob(ctx context.Context, location string) ([]byte, error)
}

// DeploymentCreator is implemented by backends that own deployment
// provisioning.
type DeploymentCreator interface {
	CreateDeployment(ctx context.Context, name, key string) (*types.Deployment, error)
}

// HistoryClearer is implemented by backends that support wiping a
// deployment's release history.
type HistoryClearer interface {
	ClearHistory(ctx context.Context, key string) error
}

// LocalStorage is a file-backed Storage for development and tests. Blobs are
// uuid-keyed files under blobs/; each deployment is one JSON document under
// deployments/, named after the hash of its deployment key so the key never
// appears on disk.
type LocalStorage struct {
	mu      sync.Mutex
	baseDir string
}

// NewLocalStorage creates the storage layout under baseDir. It is idempotent.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if err := os.MkdirAll(getBlobsDir(baseDir), 0755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(getDeploymentsDir(baseDir), 0755); err != nil {
		return nil, err
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

func getBlobsDir(baseDir string) string {
	return filepath.Join(baseDir, "blobs")
}

func getDeploymentsDir(baseDir string) string {
	return filepath.Join(baseDir, "deployments")
}

func (s *LocalStorage) deploymentPath(key string) string {
	return filepath.Join(getDeploymentsDir(s.baseDir), GetHash([]byte(key))+".json")
}

// readDeployment loads a deployment document. It is NOT thread-safe by
// itself and must be called with the mutex held.
func (s *LocalStorage) readDeployment(key string) (*types.Deployment, error) {
	content, err := os.ReadFile(s.deploymentPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrDeploymentNotFound
		}
		return nil, err
	}
	var deployment types.Deployment
	if err := json.Unmarshal(content, &deployment); err != nil {
		return nil, fmt.Errorf("corrupt deployment document: %w", err)
	}
	return &deployment, nil
}

// writeDeployment persists a deployment document. Must be called with the
// mutex held.
func (s *LocalStorage) writeDeployment(deployment *types.Deployment) error {
	content, err := json.MarshalIndent(deployment, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.deploymentPath(deployment.Key), content, 0644)
}

// CreateDeployment registers a new deployment under a key with an empty
// history and a random id.
func (s *LocalStorage) CreateDeployment(ctx context.Context, name, key string) (*types.Deployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.deploymentPath(key)); err == nil {
		return nil, fmt.Errorf("deployment key already in use")
	}
	deployment := &types.Deployment{
		ID:   uuid.NewString(),
		Name: name,
		Key:  key,
	}
	if err := s.writeDeployment(deployment); err != nil {
		return nil, err
	}
	return deployment, nil
}

// ResolveDeploymentKey maps a client-facing deployment key to the
// deployment's id.
func (s *LocalStorage) ResolveDeploymentKey(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deployment, err := s.readDeployment(key)
	if err != nil {
		return "", err
	}
	return deployment.ID, nil
}

// GetHistory returns a snapshot of the deployment's release history. The
// slice and every DiffPackageMap are copied, so callers can hold the
// snapshot across concurrent mutations.
func (s *LocalStorage) GetHistory(ctx context.Context, key string) ([]types.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deployment, err := s.readDeployment(key)
	if err != nil {
		return nil, err
	}

	history := make([]types.Package, len(deployment.History))
	copy(history, deployment.History)
	for i := range history {
		if history[i].DiffPackageMap == nil {
			continue
		}
		diffMap := make(map[string]types.BlobInfo, len(history[i].DiffPackageMap))
		for hash, info := range history[i].DiffPackageMap {
			diffMap[hash] = info
		}
		history[i].DiffPackageMap = diffMap
	}
	return history, nil
}

// AppendRelease appends a package to the deployment's history. Existing
// entries are never reordered.
func (s *LocalStorage) AppendRelease(ctx context.Context, key string, pkg types.Package) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deployment, err := s.readDeployment(key)
	if err != nil {
		return err
	}
	deployment.History = append(deployment.History, pkg)
	return s.writeDeployment(deployment)
}

// UpdateReleaseFields applies a mutation to the release with the given label
// and persists the document.
func (s *LocalStorage) UpdateReleaseFields(ctx context.Context, key, label string, mutate func(*types.Package)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deployment, err := s.readDeployment(key)
	if err != nil {
		return err
	}
	for i := len(deployment.History) - 1; i >= 0; i-- {
		if deployment.History[i].Label == label {
			mutate(&deployment.History[i])
			return s.writeDeployment(deployment)
		}
	}
	return fmt.Errorf("release %s not found in deployment history", label)
}

// ClearHistory removes every release from the deployment while keeping the
// deployment itself.
func (s *LocalStorage) ClearHistory(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deployment, err := s.readDeployment(key)
	if err != nil {
		return err
	}
	deployment.History = nil
	return s.writeDeployment(deployment)
}

// UploadBlob stores bytes under a fresh random location and returns it.
func (s *LocalStorage) UploadBlob(ctx context.Context, data []byte) (string, error) {
	location := uuid.NewString()
	if err := os.WriteFile(filepath.Join(getBlobsDir(s.baseDir), location), data, 0644); err != nil {
		return "", err
	}
	return location, nil
}

// DownloadBlob fetches the bytes stored under a location.
func (s *LocalStorage) DownloadBlob(ctx context.Context, location string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(getBlobsDir(s.baseDir), filepath.Base(location)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobNotFound
		}
		return nil, err
	}
	return data, nil
}

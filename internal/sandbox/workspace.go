package sandbox

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/KaramelBytes/datachat/internal/utils"
)

// Workspace hands out request-scoped artifact directories laid out as
// <root>/<user hash>/<request id>/.
type Workspace struct {
	Root string
}

// NewWorkspace creates root if needed. An empty root uses a datachat
// directory under the OS temp dir.
func NewWorkspace(root string) (Workspace, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "datachat")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return Workspace{}, fmt.Errorf("resolve work dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return Workspace{}, fmt.Errorf("create work dir: %w", err)
	}
	return Workspace{Root: abs}, nil
}

// Prepare creates an empty directory for one execution and returns a
// cleanup func removing it.
func (w Workspace) Prepare(userID string) (string, func(), error) {
	sum := sha256.Sum256([]byte(userID))
	userDir := filepath.Join(w.Root, hex.EncodeToString(sum[:8]))
	dir := filepath.Join(userDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", nil, fmt.Errorf("create request dir: %w", err)
	}
	// a reused path must never carry an old artifact
	if err := os.Remove(filepath.Join(dir, ArtifactName)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_ = os.RemoveAll(dir)
		return "", nil, fmt.Errorf("clear stale artifact: %w", err)
	}
	return dir, func() {
		_ = os.RemoveAll(dir)
		// drops the user dir only when no other request is using it
		_ = os.Remove(userDir)
	}, nil
}

// readArtifact returns the plot in dir, nil if none was written.
func readArtifact(dir string) ([]byte, error) {
	f, err := os.Open(filepath.Join(dir, ArtifactName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, MaxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxImageBytes {
		return nil, fmt.Errorf("plot exceeds %d bytes", MaxImageBytes)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

// discardArtifact removes a plot left behind by a failed run.
func discardArtifact(dir string) {
	_ = utils.RemoveIfExists(filepath.Join(dir, ArtifactName))
}

// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package checkpoint

import (
	"context"
	"os"
	"path/filepath"

	"github.com/kadirpekel/hector/enginerr"
)

// Store persists and retrieves checkpoint blobs by run id. The core never
// assumes a storage medium (spec.md §6's "pluggable storage backends remain
// external collaborators"); FileStore below is a minimal default a host
// process can use as-is or replace entirely.
type Store interface {
	Save(ctx context.Context, runID string, data []byte) error
	Load(ctx context.Context, runID string) ([]byte, bool, error)
	Delete(ctx context.Context, runID string) error
}

// FileStore is a Store backed by one JSON file per run under dir. It is
// intentionally dependency-free: the teacher's own checkpoint.Storage is
// coupled to pkg/session.Service, a conversation-history concept this
// engine's workflow-execution domain has no equivalent of, so FileStore
// adapts the same Save/Load/Clear shape onto a plain filesystem layout
// instead of reusing that coupling.
type FileStore struct {
	dir string
}

// NewFileStore returns a FileStore rooted at dir. The directory is created
// lazily on first Save.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (f *FileStore) path(runID string) string {
	return filepath.Join(f.dir, runID+".json")
}

func (f *FileStore) Save(ctx context.Context, runID string, data []byte) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return enginerr.Wrap(enginerr.KindCheckpointError, "FileStore.Save", err)
	}
	if err := os.WriteFile(f.path(runID), data, 0o644); err != nil {
		return enginerr.Wrap(enginerr.KindCheckpointError, "FileStore.Save", err)
	}
	return nil
}

func (f *FileStore) Load(ctx context.Context, runID string) ([]byte, bool, error) {
	data, err := os.ReadFile(f.path(runID))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, enginerr.Wrap(enginerr.KindCheckpointError, "FileStore.Load", err)
	}
	return data, true, nil
}

func (f *FileStore) Delete(ctx context.Context, runID string) error {
	err := os.Remove(f.path(runID))
	if err != nil && !os.IsNotExist(err) {
		return enginerr.Wrap(enginerr.KindCheckpointError, "FileStore.Delete", err)
	}
	return nil
}

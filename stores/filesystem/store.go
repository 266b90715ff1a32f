package filesystem

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// fsStore writes one file per update under basePath/<canvasID>/. File
// names are ULIDs, so lexicographic order is creation order and listing
// a directory yields the history oldest first.
type fsStore struct {
	basePath string
}

// NewStore creates a new filesystem-based update store.
func NewStore(basePath string) *fsStore {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		log.Fatalf("failed to create base directory: %v", err)
	}
	return &fsStore{basePath: basePath}
}

func (s *fsStore) canvasPath(canvasID string) (string, error) {
	// Canvas ids come from clients; refuse anything that could escape
	// the base directory.
	if canvasID == "" || filepath.Base(canvasID) != canvasID || strings.HasPrefix(canvasID, ".") {
		return "", fmt.Errorf("invalid canvas id %q", canvasID)
	}
	return filepath.Join(s.basePath, canvasID), nil
}

func (s *fsStore) ListUpdates(ctx context.Context, canvasID string) ([][]byte, error) {
	canvasPath, err := s.canvasPath(canvasID)
	if err != nil {
		return nil, err
	}
	log := logrus.WithFields(logrus.Fields{"canvas_id": canvasID, "path": canvasPath})

	entries, err := os.ReadDir(canvasPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug("Canvas directory does not exist, returning empty history")
			return nil, nil
		}
		log.WithError(err).Error("Failed to read canvas directory")
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	history := make([][]byte, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(canvasPath, name))
		if err != nil {
			log.WithError(err).Errorf("Failed to read update file %s", name)
			return nil, err
		}
		history = append(history, data)
	}

	log.WithField("update_count", len(history)).Debug("Listed canvas updates")
	return history, nil
}

func (s *fsStore) AppendUpdate(ctx context.Context, canvasID string, update []byte) error {
	canvasPath, err := s.canvasPath(canvasID)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(canvasPath, 0755); err != nil {
		logrus.WithError(err).Error("Failed to create canvas directory")
		return err
	}

	id := ulid.Make().String()
	filePath := filepath.Join(canvasPath, id)
	if err := os.WriteFile(filePath, update, 0644); err != nil {
		logrus.WithFields(logrus.Fields{"canvas_id": canvasID, "path": filePath}).
			WithError(err).Error("Failed to write update file")
		return err
	}

	logrus.WithFields(logrus.Fields{
		"canvas_id":   canvasID,
		"update_id":   id,
		"data_length": len(update),
	}).Debug("Update appended")
	return nil
}

package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/storyreel/backend/internal/models"
)

// Scene and narration access is the consumed contract with the project
// store: the pipeline reads these, it never writes them.

// ProjectScenes returns the ordered scene projection for a project. Word
// counts are derived from the stored script text here so the allocator only
// ever sees numbers.
func (db *DB) ProjectScenes(ctx context.Context, projectID uuid.UUID) ([]models.SceneInput, error) {
	query := `
		SELECT scene_number, image_path, script
		FROM scenes
		WHERE project_id = $1
		ORDER BY scene_number ASC
	`

	rows, err := db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenes: %w", err)
	}
	defer rows.Close()

	var scenes []models.SceneInput
	for rows.Next() {
		var (
			scene  models.SceneInput
			script sql.NullString
		)
		if err := rows.Scan(&scene.SceneNumber, &scene.ImagePath, &script); err != nil {
			return nil, fmt.Errorf("failed to scan scene: %w", err)
		}
		scene.WordCount = CountWords(script.String)
		scenes = append(scenes, scene)
	}

	return scenes, rows.Err()
}

// NarrationPath returns the project's synthesized narration audio file path.
func (db *DB) NarrationPath(ctx context.Context, projectID uuid.UUID) (string, error) {
	query := `SELECT narration_audio_path FROM projects WHERE id = $1`

	var path sql.NullString
	err := db.QueryRowContext(ctx, query, projectID).Scan(&path)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("project %s not found", projectID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get narration path: %w", err)
	}
	if !path.Valid || path.String == "" {
		return "", fmt.Errorf("project %s has no narration audio", projectID)
	}

	return path.String, nil
}

// CountWords counts whitespace-separated words in a script excerpt.
func CountWords(s string) int {
	return len(strings.Fields(s))
}

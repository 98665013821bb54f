package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"spool/internal/workitem"
)

// AddFile stores an attachment for an item. Content at or above the
// configured threshold goes to the filesystem byte area; smaller content is
// kept inline. Re-adding an existing name replaces the previous content and
// re-evaluates the tier.
func (s *Store) AddFile(ctx context.Context, itemID, name string, content []byte) error {
	if err := workitem.ValidateFilename(name); err != nil {
		return err
	}
	if int64(len(content)) > workitem.MaxAttachmentSize {
		return workitem.Errorf(workitem.ErrInvalid, "attachment %q exceeds %d bytes", name, workitem.MaxAttachmentSize)
	}
	if err := s.requireItem(ctx, itemID); err != nil {
		return err
	}

	var previousPath sql.NullString
	err := retryOnBusy(ctx, func() error {
		scanErr := s.db.QueryRowContext(ctx,
			"SELECT external_path FROM work_item_files WHERE work_item_id = ? AND filename = ?",
			itemID, name).Scan(&previousPath)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return nil
		}
		return scanErr
	})
	if err != nil {
		return fmt.Errorf("look up attachment %q: %w", name, err)
	}

	var (
		inline       any
		externalPath any
	)
	if int64(len(content)) >= s.threshold {
		ref, err := s.blobs.Write(itemID, name, content)
		if err != nil {
			return fmt.Errorf("write attachment %q: %w", name, err)
		}
		externalPath = ref
	} else {
		inline = content
	}

	_, err = s.execWithRetry(ctx,
		`INSERT INTO work_item_files (work_item_id, filename, inline_data, external_path, size, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(work_item_id, filename) DO UPDATE SET
			inline_data = excluded.inline_data,
			external_path = excluded.external_path,
			size = excluded.size`,
		itemID, name, inline, externalPath, len(content), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("index attachment %q: %w", name, err)
	}

	// A replacement that moved from the external tier to inline leaves
	// stale bytes behind; the deterministic path means same-tier
	// replacements already overwrote in place.
	if previousPath.Valid && previousPath.String != "" && externalPath == nil {
		if err := s.blobs.Remove(previousPath.String); err != nil {
			s.logger.Warn("failed to remove superseded attachment bytes",
				"item", itemID, "file", name, "error", err)
		}
	}
	return nil
}

// GetFile returns attachment content regardless of its storage tier.
func (s *Store) GetFile(ctx context.Context, itemID, name string) ([]byte, error) {
	if err := workitem.ValidateFilename(name); err != nil {
		return nil, err
	}
	var (
		inline       []byte
		externalPath sql.NullString
	)
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			"SELECT inline_data, external_path FROM work_item_files WHERE work_item_id = ? AND filename = ?",
			itemID, name).Scan(&inline, &externalPath)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, workitem.Errorf(workitem.ErrFileNotFound, "item %s has no attachment %q", itemID, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get attachment %q: %w", name, err)
	}
	if externalPath.Valid && externalPath.String != "" {
		content, err := s.blobs.Read(externalPath.String)
		if err != nil {
			return nil, workitem.Errorf(workitem.ErrFileNotFound,
				"attachment %q bytes missing at %s: %v", name, externalPath.String, err)
		}
		return content, nil
	}
	if inline == nil {
		inline = []byte{}
	}
	return inline, nil
}

// ListFiles returns the attachment names recorded for an item, sorted.
func (s *Store) ListFiles(ctx context.Context, itemID string) ([]string, error) {
	if err := s.requireItem(ctx, itemID); err != nil {
		return nil, err
	}
	var names []string
	err := retryOnBusy(ctx, func() error {
		rows, err := s.db.QueryContext(ctx,
			"SELECT filename FROM work_item_files WHERE work_item_id = ? ORDER BY filename", itemID)
		if err != nil {
			return err
		}
		defer rows.Close()
		names = names[:0]
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			names = append(names, name)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list attachments for %s: %w", itemID, err)
	}
	return names, nil
}

// RemoveFile deletes an attachment index entry and any externally stored
// bytes.
func (s *Store) RemoveFile(ctx context.Context, itemID, name string) error {
	if err := workitem.ValidateFilename(name); err != nil {
		return err
	}
	var externalPath sql.NullString
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			"SELECT external_path FROM work_item_files WHERE work_item_id = ? AND filename = ?",
			itemID, name).Scan(&externalPath)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return workitem.Errorf(workitem.ErrFileNotFound, "item %s has no attachment %q", itemID, name)
	}
	if err != nil {
		return fmt.Errorf("remove attachment %q: %w", name, err)
	}

	if _, err := s.execWithRetry(ctx,
		"DELETE FROM work_item_files WHERE work_item_id = ? AND filename = ?", itemID, name); err != nil {
		return fmt.Errorf("remove attachment %q: %w", name, err)
	}
	if externalPath.Valid && externalPath.String != "" {
		if err := s.blobs.Remove(externalPath.String); err != nil {
			s.logger.Warn("failed to remove attachment bytes",
				"item", itemID, "file", name, "error", err)
		}
	}
	return nil
}

func (s *Store) requireItem(ctx context.Context, itemID string) error {
	var exists int
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			"SELECT 1 FROM work_items WHERE id = ?", itemID).Scan(&exists)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return workitem.Errorf(workitem.ErrNotFound, "item %s not found", itemID)
	}
	if err != nil {
		return fmt.Errorf("check item %s: %w", itemID, err)
	}
	return nil
}

package redis

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"spool/internal/workitem"
)

// Attachment hash values are tier tagged: "inline:" followed by base64
// content, or "ext:" followed by the byte area path reference.
const (
	inlineTag   = "inline:"
	externalTag = "ext:"
)

// AddFile stores an attachment for an item, inline below the threshold and
// in the filesystem byte area above it. Re-adding an existing name replaces
// the previous content and re-evaluates the tier.
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

	previous, err := s.client.HGet(ctx, filesKey(itemID), name).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return classify(fmt.Errorf("look up attachment %q: %w", name, err))
	}

	var value string
	if int64(len(content)) >= s.threshold {
		ref, err := s.blobs.Write(itemID, name, content)
		if err != nil {
			return fmt.Errorf("write attachment %q: %w", name, err)
		}
		value = externalTag + ref
	} else {
		value = inlineTag + base64.StdEncoding.EncodeToString(content)
	}

	if err := s.client.HSet(ctx, filesKey(itemID), name, value).Err(); err != nil {
		return classify(fmt.Errorf("index attachment %q: %w", name, err))
	}

	// A replacement that moved from the external tier to inline leaves
	// stale bytes behind; same-tier replacements overwrote in place.
	if ref, wasExternal := strings.CutPrefix(previous, externalTag); wasExternal && strings.HasPrefix(value, inlineTag) {
		if err := s.blobs.Remove(ref); err != nil {
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
	value, err := s.client.HGet(ctx, filesKey(itemID), name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, workitem.Errorf(workitem.ErrFileNotFound, "item %s has no attachment %q", itemID, name)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("get attachment %q: %w", name, err))
	}
	switch {
	case strings.HasPrefix(value, inlineTag):
		content, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, inlineTag))
		if err != nil {
			return nil, fmt.Errorf("decode attachment %q: %w", name, err)
		}
		return content, nil
	case strings.HasPrefix(value, externalTag):
		ref := strings.TrimPrefix(value, externalTag)
		content, err := s.blobs.Read(ref)
		if err != nil {
			return nil, workitem.Errorf(workitem.ErrFileNotFound,
				"attachment %q bytes missing at %s: %v", name, ref, err)
		}
		return content, nil
	default:
		return nil, fmt.Errorf("attachment %q has unknown tier tag", name)
	}
}

// ListFiles returns the attachment names recorded for an item, sorted.
func (s *Store) ListFiles(ctx context.Context, itemID string) ([]string, error) {
	if err := s.requireItem(ctx, itemID); err != nil {
		return nil, err
	}
	names, err := s.client.HKeys(ctx, filesKey(itemID)).Result()
	if err != nil {
		return nil, classify(fmt.Errorf("list attachments for %s: %w", itemID, err))
	}
	sort.Strings(names)
	return names, nil
}

// RemoveFile deletes an attachment entry and any externally stored bytes.
func (s *Store) RemoveFile(ctx context.Context, itemID, name string) error {
	if err := workitem.ValidateFilename(name); err != nil {
		return err
	}
	value, err := s.client.HGet(ctx, filesKey(itemID), name).Result()
	if errors.Is(err, redis.Nil) {
		return workitem.Errorf(workitem.ErrFileNotFound, "item %s has no attachment %q", itemID, name)
	}
	if err != nil {
		return classify(fmt.Errorf("remove attachment %q: %w", name, err))
	}
	if err := s.client.HDel(ctx, filesKey(itemID), name).Err(); err != nil {
		return classify(fmt.Errorf("remove attachment %q: %w", name, err))
	}
	if ref, wasExternal := strings.CutPrefix(value, externalTag); wasExternal {
		if err := s.blobs.Remove(ref); err != nil {
			s.logger.Warn("failed to remove attachment bytes",
				"item", itemID, "file", name, "error", err)
		}
	}
	return nil
}

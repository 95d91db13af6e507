package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"
	"interview-room/dto"
)

// MediaArchive keeps a copy of every accepted answer recording in object
// storage, under sessions/<session id>/<question id><ext>.
type MediaArchive struct {
	client *minio.Client
	bucket string
}

func NewMediaArchive(client *minio.Client, bucket string) *MediaArchive {
	return &MediaArchive{client: client, bucket: bucket}
}

func sessionPrefix(sessionID string) string {
	return path.Join("sessions", sessionID) + "/"
}

func ObjectName(sessionID, questionID, mimeType string) string {
	return sessionPrefix(sessionID) + questionID + extension(mimeType)
}

func extension(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	switch strings.TrimSpace(base) {
	case "video/mp4":
		return ".mp4"
	case "video/x-matroska":
		return ".mkv"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	}
	return ".webm"
}

func (a *MediaArchive) Put(ctx context.Context, sessionID, questionID, mimeType string, data []byte) (string, error) {
	objectName := ObjectName(sessionID, questionID, mimeType)
	_, err := a.client.PutObject(ctx, a.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: mimeType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive %s: %w", objectName, err)
	}
	zerolog.Ctx(ctx).Debug().Str("object", objectName).Int("size", len(data)).Msg("answer media archived")
	return objectName, nil
}

var (
	// ErrEmptySessionID guards the bucket-wide prefix an empty id would select.
	ErrEmptySessionID = errors.New("empty session id")
	ErrMediaNotFound  = errors.New("answer media not archived")
)

// RemoveSession deletes every archived recording of a session.
func (a *MediaArchive) RemoveSession(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrEmptySessionID
	}
	var errs []error
	removed := 0
	for obj := range a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{
		Prefix:    sessionPrefix(sessionID),
		Recursive: true,
	}) {
		if obj.Err != nil {
			errs = append(errs, obj.Err)
			continue
		}
		if err := a.client.RemoveObject(ctx, a.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", obj.Key, err))
			continue
		}
		removed++
	}
	zerolog.Ctx(ctx).Info().Str("session_id", sessionID).Int("removed", removed).Msg("archived media removed")
	return errors.Join(errs...)
}

// OpenAnswer opens the archived recording of one answer. The caller closes
// the returned body.
func (a *MediaArchive) OpenAnswer(ctx context.Context, sessionID, questionID string) (*dto.MediaStream, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrEmptySessionID
	}
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	prefix := sessionPrefix(sessionID) + questionID
	for obj := range a.client.ListObjects(listCtx, a.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", prefix, obj.Err)
		}
		if strings.TrimSuffix(path.Base(obj.Key), path.Ext(obj.Key)) != questionID {
			continue
		}
		object, err := a.client.GetObject(ctx, a.bucket, obj.Key, minio.GetObjectOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", obj.Key, err)
		}
		info, err := object.Stat()
		if err != nil {
			object.Close()
			return nil, fmt.Errorf("failed to stat %s: %w", obj.Key, err)
		}
		zerolog.Ctx(ctx).Debug().Str("object", obj.Key).Int64("size", info.Size).Msg("answer media opened")
		return &dto.MediaStream{Body: object, ContentType: info.ContentType, Size: info.Size}, nil
	}
	return nil, ErrMediaNotFound
}

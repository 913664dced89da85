package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/rollcall/apiserver/internal/auth"
	"github.com/rollcall/apiserver/internal/storage"
	"github.com/rollcall/apiserver/types"
)

var (
	ErrEmptyFile       = errors.New("file is empty")
	ErrInvalidFileName = errors.New("invalid file name")
	ErrFileNotFound    = errors.New("file not found")
	ErrStorageDisabled = errors.New("file storage is not configured")
)

var fileNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,254}$`)

// FileRef identifies a stored file.
type FileRef struct {
	Owner       string `json:"owner"`
	Name        string `json:"name"`
	Key         string `json:"key"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
}

// FileService stores per-user files in object storage. Objects live under
// users/<username>/<name>. Only the owner or an ADMIN may touch them.
type FileService struct {
	storage *storage.Storage
}

func NewFileService(storage *storage.Storage) *FileService {
	return &FileService{storage: storage}
}

// Enabled reports whether a storage backend is configured.
func (s *FileService) Enabled() bool {
	return s != nil && s.storage != nil
}

// Upload stores r as owner's file name. An empty owner means the caller.
// size may be -1 when unknown.
func (s *FileService) Upload(ctx context.Context, caller auth.Principal, owner, name, contentType string, size int64, r io.Reader) (FileRef, error) {
	ref, err := s.resolve(caller, owner, name)
	if err != nil {
		return FileRef{}, err
	}
	if size == 0 || r == nil {
		return FileRef{}, ErrEmptyFile
	}

	br := bufio.NewReader(r)
	if _, err := br.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return FileRef{}, ErrEmptyFile
		}
		return FileRef{}, err
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := s.storage.Put(ctx, ref.Key, br, size, contentType); err != nil {
		return FileRef{}, fmt.Errorf("store %s: %w", ref.Key, err)
	}

	ref.ContentType = contentType
	ref.Size = size
	return ref, nil
}

// Download opens owner's file name for reading. The caller closes it.
func (s *FileService) Download(ctx context.Context, caller auth.Principal, owner, name string) (io.ReadCloser, FileRef, error) {
	ref, err := s.resolve(caller, owner, name)
	if err != nil {
		return nil, FileRef{}, err
	}
	rc, err := s.storage.Get(ctx, ref.Key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, FileRef{}, ErrFileNotFound
		}
		return nil, FileRef{}, fmt.Errorf("load %s: %w", ref.Key, err)
	}
	return rc, ref, nil
}

// Delete removes owner's file name.
func (s *FileService) Delete(ctx context.Context, caller auth.Principal, owner, name string) error {
	ref, err := s.resolve(caller, owner, name)
	if err != nil {
		return err
	}
	if err := s.storage.Delete(ctx, ref.Key); err != nil {
		return fmt.Errorf("delete %s: %w", ref.Key, err)
	}
	return nil
}

func (s *FileService) resolve(caller auth.Principal, owner, name string) (FileRef, error) {
	if !s.Enabled() {
		return FileRef{}, ErrStorageDisabled
	}
	if err := auth.Authorize(caller); err != nil {
		return FileRef{}, err
	}

	owner = strings.TrimSpace(owner)
	if owner == "" {
		owner = caller.Username
	}
	if owner != caller.Username {
		if err := auth.Authorize(caller, types.RoleAdmin); err != nil {
			return FileRef{}, err
		}
	}

	name = strings.TrimSpace(name)
	if !fileNamePattern.MatchString(name) || !fileNamePattern.MatchString(owner) {
		return FileRef{}, ErrInvalidFileName
	}

	return FileRef{
		Owner: owner,
		Name:  name,
		Key:   objectKey(owner, name),
	}, nil
}

func objectKey(owner, name string) string {
	return path.Join("users", owner, name)
}

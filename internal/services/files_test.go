package services

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollcall/apiserver/internal/auth"
	"github.com/rollcall/apiserver/internal/storage"
	"github.com/rollcall/apiserver/types"
)

func newFileService() (*FileService, *storage.MemoryBackend) {
	backend := storage.NewMemoryBackend("test")
	return NewFileService(storage.NewStorage(backend)), backend
}

func student(name string) auth.Principal {
	return auth.Principal{Username: name, Roles: []types.Role{types.RoleStudent}}
}

func TestFileService_RoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFileService()
	alice := student("alice")

	ref, err := svc.Upload(ctx, alice, "", "notes.txt", "text/plain", 5, strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, "users/alice/notes.txt", ref.Key)
	assert.Equal(t, "alice", ref.Owner)

	rc, got, err := svc.Download(ctx, alice, "", "notes.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, ref.Key, got.Key)

	require.NoError(t, svc.Delete(ctx, alice, "", "notes.txt"))
	_, _, err = svc.Download(ctx, alice, "", "notes.txt")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestFileService_UnknownSizeDefaultsContentType(t *testing.T) {
	svc, _ := newFileService()

	ref, err := svc.Upload(context.Background(), student("alice"), "", "blob.bin", "", -1, strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", ref.ContentType)
}

func TestFileService_EmptyFile(t *testing.T) {
	svc, _ := newFileService()
	alice := student("alice")

	_, err := svc.Upload(context.Background(), alice, "", "a.txt", "text/plain", 0, strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = svc.Upload(context.Background(), alice, "", "a.txt", "text/plain", -1, strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestFileService_InvalidNames(t *testing.T) {
	svc, _ := newFileService()
	alice := student("alice")

	for _, name := range []string{"", "..", "../bob/x", "a/b", ".hidden", strings.Repeat("a", 300)} {
		_, err := svc.Upload(context.Background(), alice, "", name, "", 1, strings.NewReader("x"))
		assert.ErrorIs(t, err, ErrInvalidFileName, name)
	}
}

func TestFileService_OwnershipRules(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFileService()

	_, err := svc.Upload(ctx, student("bob"), "", "b.txt", "", 1, strings.NewReader("b"))
	require.NoError(t, err)

	_, _, err = svc.Download(ctx, student("alice"), "bob", "b.txt")
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, _, err = svc.Download(ctx, auth.Principal{}, "bob", "b.txt")
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	rc, ref, err := svc.Download(ctx, adminPrincipal(), "bob", "b.txt")
	require.NoError(t, err)
	_ = rc.Close()
	assert.Equal(t, "users/bob/b.txt", ref.Key)
}

func TestFileService_Disabled(t *testing.T) {
	svc := NewFileService(nil)
	assert.False(t, svc.Enabled())

	_, err := svc.Upload(context.Background(), student("alice"), "", "a.txt", "", 1, strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrStorageDisabled)
}

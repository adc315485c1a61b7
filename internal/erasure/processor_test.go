package erasure

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"prepguard/internal/audit"
	"prepguard/internal/erasure/mocks"
	"prepguard/internal/sessiondata"
	dErrors "prepguard/pkg/domain-errors"
)

func newMockedService(t *testing.T) (*Service, *mocks.MockUserDirectory, *mocks.MockFileStore, *InMemoryStore) {
	t.Helper()
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserDirectory(ctrl)
	files := mocks.NewMockFileStore(ctrl)
	store := NewInMemoryStore()
	auditStore := audit.NewInMemoryStore()

	service, err := NewService(store, users, sessiondata.NewInMemoryStore(), files, auditStore, signingSecret)
	require.NoError(t, err)
	return service, users, files, store
}

func TestCreateExportRequest_DirectoryUnavailable(t *testing.T) {
	service, users, _, _ := newMockedService(t)

	users.EXPECT().
		Exists(gomock.Any(), "u1").
		Return(false, errors.New("directory timeout"))

	_, err := service.CreateExportRequest(context.Background(), "u1", RequestExport, []Domain{DomainSessions}, "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStorage))
}

func TestProcessNext_ArtifactWriteFailureFailsRequest(t *testing.T) {
	service, users, files, store := newMockedService(t)
	ctx := context.Background()

	users.EXPECT().Exists(ctx, "u1").Return(true, nil)
	files.EXPECT().
		Write(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("volume read-only"))

	request, err := service.CreateExportRequest(ctx, "u1", RequestExport, []Domain{DomainSessions}, "")
	require.NoError(t, err)

	processed, err := service.ProcessNext(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	failed, err := store.Find(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Contains(t, failed.ErrorMessage, "volume read-only")
	assert.Empty(t, failed.FilePath)
}

func TestProcessNext_EmptyQueue(t *testing.T) {
	service, _, _, _ := newMockedService(t)

	processed, err := service.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestCleanupExpiredExports_SkipsFailingFiles(t *testing.T) {
	service, _, files, store := newMockedService(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)

	for _, id := range []string{"r1", "r2"} {
		require.NoError(t, store.Create(ctx, &Request{
			ID:          id,
			UserID:      "u1",
			RequestType: RequestExport,
			Domains:     []Domain{DomainSessions},
			Format:      FormatJSON,
			Status:      StatusCompleted,
			FilePath:    id + ".json",
			ExpiresAt:   &past,
			CreatedAt:   past.Add(-time.Hour),
		}))
	}

	files.EXPECT().Delete(gomock.Any(), "r1.json").Return(errors.New("locked"))
	files.EXPECT().Delete(gomock.Any(), "r2.json").Return(nil)

	cleaned, err := service.CleanupExpiredExports(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cleaned)

	// the failing one keeps its path for the next sweep
	kept, err := store.Find(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1.json", kept.FilePath)

	cleared, err := store.Find(ctx, "r2")
	require.NoError(t, err)
	assert.Empty(t, cleared.FilePath)
}

func TestProcessorWorker_DrainsQueue(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserDirectory(ctrl)
	users.EXPECT().Exists(gomock.Any(), "u1").Return(true, nil).AnyTimes()

	store := NewInMemoryStore()
	auditStore := audit.NewInMemoryStore()
	data := sessiondata.NewInMemoryStore()
	files := mocks.NewMockFileStore(ctrl)
	files.EXPECT().Write(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	service, err := NewService(store, users, data, files, auditStore, signingSecret)
	require.NoError(t, err)

	request, err := service.CreateExportRequest(context.Background(), "u1", RequestExport, []Domain{DomainSessions}, "")
	require.NoError(t, err)

	processor := NewProcessor(service, WithPollInterval(5*time.Millisecond))
	processor.Start()
	defer processor.Stop()

	require.Eventually(t, func() bool {
		current, err := store.Find(context.Background(), request.ID)
		return err == nil && current.Status == StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

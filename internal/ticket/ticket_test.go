package ticket

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"beryll-workflow-backend/internal/db"
	"beryll-workflow-backend/internal/fault"
	"beryll-workflow-backend/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	testDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(testDB))
	return testDB
}

func TestTicketLifecycle(t *testing.T) {
	s := New(newTestDB(t))
	ctx := context.Background()

	opened, err := s.Open(ctx, OpenSpec{
		DefectRecordID: 1,
		ServerID:       2,
		Subject:        "RAM replacement",
		ComponentType:  model.ComponentRAM,
		CreatedByID:    7,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(opened.TicketNumber, "RT-"))
	assert.Equal(t, model.TicketSubmitted, opened.Status)
	assert.NotNil(t, opened.SentAt)

	vendor, err := s.Open(ctx, OpenSpec{
		TicketNumber:   "VND-4711",
		DefectRecordID: 1,
		ServerID:       2,
		Subject:        "vendor-assigned reference",
		ComponentType:  model.ComponentRAM,
		CreatedByID:    7,
	})
	require.NoError(t, err)
	assert.Equal(t, "VND-4711", vendor.TicketNumber)

	received, err := s.MarkReceived(ctx, opened.TicketNumber)
	require.NoError(t, err)
	assert.Equal(t, model.TicketReceived, received.Status)
	assert.NotNil(t, received.ReceivedAt)

	t.Run("double receive fails", func(t *testing.T) {
		_, err := s.MarkReceived(ctx, opened.TicketNumber)
		assert.True(t, errors.Is(err, fault.ErrInvalidTransition))
	})

	closed, err := s.Close(ctx, opened.TicketNumber, "part repaired")
	require.NoError(t, err)
	assert.Equal(t, model.TicketClosed, closed.Status)
	assert.Equal(t, "part repaired", closed.Resolution)

	t.Run("double close fails", func(t *testing.T) {
		_, err := s.Close(ctx, opened.TicketNumber, "again")
		assert.True(t, errors.Is(err, fault.ErrInvalidTransition))
	})

	t.Run("unknown ticket", func(t *testing.T) {
		_, err := s.GetByNumber(ctx, "RT-0")
		assert.True(t, errors.Is(err, fault.ErrNotFound))
	})
}

func TestListByDefect(t *testing.T) {
	s := New(newTestDB(t))
	ctx := context.Background()

	first, err := s.Open(ctx, OpenSpec{DefectRecordID: 5})
	require.NoError(t, err)
	_, err = s.Open(ctx, OpenSpec{DefectRecordID: 6})
	require.NoError(t, err)

	tickets, err := s.ListByDefect(ctx, 5)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, first.TicketNumber, tickets[0].TicketNumber)
}

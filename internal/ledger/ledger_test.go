package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

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

func seedServer(t *testing.T, gdb *gorm.DB, serial string) *model.Server {
	t.Helper()
	srv := &model.Server{SerialNumber: serial, Status: model.ServerStatusTesting}
	require.NoError(t, gdb.Create(srv).Error)
	return srv
}

func seedDefect(t *testing.T, gdb *gorm.DB, serverID int64) *model.DefectRecord {
	t.Helper()
	rec := &model.DefectRecord{
		ServerID:           serverID,
		ProblemDescription: "memory errors under load",
		PartType:           model.ComponentRAM,
		Priority:           model.PriorityMedium,
		Status:             model.DefectNew,
		DetectedAt:         time.Now().UTC(),
	}
	require.NoError(t, gdb.Create(rec).Error)
	return rec
}

func addItem(t *testing.T, l Ledger, serial string, typ model.ComponentType, cond model.ComponentCondition) *model.ComponentInventoryItem {
	t.Helper()
	item, err := l.AddToInventory(context.Background(), AddItemSpec{
		Type:         typ,
		SerialNumber: serial,
		Condition:    cond,
		Location:     "shelf-A",
	}, 1)
	require.NoError(t, err)
	return item
}

func TestAddToInventory(t *testing.T) {
	gdb := newTestDB(t)
	l := New(gdb)
	ctx := context.Background()

	item := addItem(t, l, "RAM-001", model.ComponentRAM, model.ConditionNew)
	assert.Equal(t, model.InventoryAvailable, item.Status)
	assert.Equal(t, 0, item.ConditionRank)

	t.Run("history row written with the insert", func(t *testing.T) {
		entries, err := l.History(ctx, item.ID)
		assert.NoError(t, err)
		if assert.Len(t, entries, 1) {
			assert.Equal(t, model.HistoryReceived, entries[0].Action)
			assert.Equal(t, "shelf-A", entries[0].ToLocation)
		}
	})

	t.Run("duplicate serial rejected", func(t *testing.T) {
		_, err := l.AddToInventory(ctx, AddItemSpec{
			Type:         model.ComponentRAM,
			SerialNumber: "RAM-001",
		}, 1)
		assert.True(t, errors.Is(err, fault.ErrDuplicateSerial))
	})

	t.Run("duplicate across serial columns rejected", func(t *testing.T) {
		_, err := l.AddToInventory(ctx, AddItemSpec{
			Type:                 model.ComponentRAM,
			SerialNumber:         "RAM-002",
			InternalSerialNumber: "RAM-001",
		}, 1)
		assert.True(t, errors.Is(err, fault.ErrDuplicateSerial))
	})

	t.Run("missing serial rejected", func(t *testing.T) {
		_, err := l.AddToInventory(ctx, AddItemSpec{Type: model.ComponentRAM}, 1)
		assert.True(t, errors.Is(err, fault.ErrValidation))
	})
}

func TestReserveAndRelease(t *testing.T) {
	gdb := newTestDB(t)
	l := New(gdb)
	ctx := context.Background()

	srv := seedServer(t, gdb, "SRV-001")
	defect := seedDefect(t, gdb, srv.ID)
	item := addItem(t, l, "RAM-010", model.ComponentRAM, model.ConditionNew)

	reserved, err := l.Reserve(ctx, item.ID, defect.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, model.InventoryReserved, reserved.Status)
	require.NotNil(t, reserved.ReservedForDefectID)
	assert.Equal(t, defect.ID, *reserved.ReservedForDefectID)

	t.Run("double reserve fails", func(t *testing.T) {
		_, err := l.Reserve(ctx, item.ID, defect.ID, 7)
		assert.True(t, errors.Is(err, fault.ErrInvalidTransition))
	})

	t.Run("reserve unknown defect fails", func(t *testing.T) {
		other := addItem(t, l, "RAM-011", model.ComponentRAM, model.ConditionNew)
		_, err := l.Reserve(ctx, other.ID, 9999, 7)
		assert.True(t, errors.Is(err, fault.ErrNotFound))
	})

	released, err := l.Release(ctx, item.ID, 7, "")
	require.NoError(t, err)
	assert.Equal(t, model.InventoryAvailable, released.Status)
	assert.Nil(t, released.ReservedForDefectID)

	t.Run("release of non-reserved item fails", func(t *testing.T) {
		_, err := l.Release(ctx, item.ID, 7, "")
		assert.True(t, errors.Is(err, fault.ErrInvalidTransition))
	})
}

func TestConcurrentReserveSingleWinner(t *testing.T) {
	gdb := newTestDB(t)
	l := New(gdb)
	ctx := context.Background()

	srv := seedServer(t, gdb, "SRV-002")
	defect := seedDefect(t, gdb, srv.ID)
	item := addItem(t, l, "RAM-020", model.ComponentRAM, model.ConditionNew)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.Reserve(ctx, item.ID, defect.ID, int64(i+1))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			// sqlite may also report a busy error under write contention,
			// which still means the caller lost the race
			if !errors.Is(err, fault.ErrInvalidTransition) {
				t.Logf("loser error: %v", err)
			}
		}
	}
	assert.Equal(t, 1, wins, "exactly one caller may win the reservation")

	var entries int64
	require.NoError(t, gdb.Model(&model.ComponentHistoryEntry{}).
		Where("item_id = ? AND action = ?", item.ID, model.HistoryReserved).
		Count(&entries).Error)
	assert.Equal(t, int64(1), entries, "only the winner writes a RESERVED history row")
}

func TestInstallAndRemove(t *testing.T) {
	gdb := newTestDB(t)
	l := New(gdb)
	ctx := context.Background()

	srv := seedServer(t, gdb, "SRV-003")
	defect := seedDefect(t, gdb, srv.ID)
	item := addItem(t, l, "SSD-001", model.ComponentSSD, model.ConditionNew)

	_, err := l.Reserve(ctx, item.ID, defect.ID, 1)
	require.NoError(t, err)

	installed, err := l.InstallToServer(ctx, item.ID, srv.ID, 1, &defect.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InventoryInUse, installed.Status)
	require.NotNil(t, installed.CurrentServerID)
	assert.Equal(t, srv.ID, *installed.CurrentServerID)
	assert.Nil(t, installed.ReservedForDefectID, "installation consumes the reservation")

	t.Run("install to unknown server fails", func(t *testing.T) {
		other := addItem(t, l, "SSD-002", model.ComponentSSD, model.ConditionNew)
		_, err := l.InstallToServer(ctx, other.ID, 9999, 1, nil)
		assert.True(t, errors.Is(err, fault.ErrNotFound))
	})

	t.Run("install of in-use item fails", func(t *testing.T) {
		_, err := l.InstallToServer(ctx, item.ID, srv.ID, 1, nil)
		assert.True(t, errors.Is(err, fault.ErrInvalidTransition))
	})

	removed, err := l.RemoveFromServer(ctx, item.ID, 1, true, "failed diagnostics", &defect.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InventoryDefective, removed.Status)
	assert.Nil(t, removed.CurrentServerID)

	entries, err := l.History(ctx, item.ID)
	require.NoError(t, err)
	if assert.Len(t, entries, 4) {
		// newest first
		assert.Equal(t, model.HistoryRemoved, entries[0].Action)
		require.NotNil(t, entries[0].FromServerID)
		assert.Equal(t, srv.ID, *entries[0].FromServerID)
		assert.Equal(t, model.HistoryInstalled, entries[1].Action)
	}
}

func TestExternalRepairRoundTrip(t *testing.T) {
	gdb := newTestDB(t)
	l := New(gdb)
	ctx := context.Background()

	item := addItem(t, l, "MB-001", model.ComponentMotherboard, model.ConditionNew)
	_, err := l.MarkDefective(ctx, item.ID, 1, "post failure", nil)
	require.NoError(t, err)

	sent, err := l.SendToExternalRepair(ctx, item.ID, "RT-12345", 1)
	require.NoError(t, err)
	assert.Equal(t, model.InventoryInRepair, sent.Status)

	t.Run("double send fails", func(t *testing.T) {
		_, err := l.SendToExternalRepair(ctx, item.ID, "RT-12346", 1)
		assert.True(t, errors.Is(err, fault.ErrInvalidTransition))
	})

	back, err := l.ReturnFromExternalRepair(ctx, item.ID, 1, model.ConditionRefurbished)
	require.NoError(t, err)
	assert.Equal(t, model.InventoryReturned, back.Status)
	assert.Equal(t, model.ConditionRefurbished, back.Condition)
	assert.Equal(t, 1, back.ConditionRank)

	t.Run("return of idle item fails", func(t *testing.T) {
		other := addItem(t, l, "MB-002", model.ComponentMotherboard, model.ConditionNew)
		_, err := l.ReturnFromExternalRepair(ctx, other.ID, 1, model.ConditionRefurbished)
		assert.True(t, errors.Is(err, fault.ErrInvalidTransition))
	})

	entries, err := l.History(ctx, item.ID)
	require.NoError(t, err)
	if assert.Len(t, entries, 4) {
		assert.Equal(t, model.HistoryReturnedFromRepair, entries[0].Action)
		assert.Equal(t, model.HistorySentToRepair, entries[1].Action)
		assert.Equal(t, "RT-12345", entries[1].TicketRef)
	}
}

func TestMarkTested(t *testing.T) {
	gdb := newTestDB(t)
	l := New(gdb)
	ctx := context.Background()

	item := addItem(t, l, "GPU-001", model.ComponentGPU, model.ConditionUsed)

	passed, err := l.MarkTested(ctx, item.ID, 1, true, "")
	require.NoError(t, err)
	assert.Equal(t, model.InventoryAvailable, passed.Status)
	assert.NotNil(t, passed.LastTestedAt)

	failed, err := l.MarkTested(ctx, item.ID, 1, false, "artifacting")
	require.NoError(t, err)
	assert.Equal(t, model.InventoryDefective, failed.Status)
}

func TestScrap(t *testing.T) {
	gdb := newTestDB(t)
	l := New(gdb)
	ctx := context.Background()

	item := addItem(t, l, "PSU-001", model.ComponentPSU, model.ConditionDamaged)

	scrapped, err := l.Scrap(ctx, item.ID, 1, "beyond repair")
	require.NoError(t, err)
	assert.Equal(t, model.InventoryScrapped, scrapped.Status)

	t.Run("scrap is terminal", func(t *testing.T) {
		_, err := l.Scrap(ctx, item.ID, 1, "again")
		assert.True(t, errors.Is(err, fault.ErrInvalidTransition))
		_, err = l.MarkTested(ctx, item.ID, 1, true, "")
		assert.True(t, errors.Is(err, fault.ErrInvalidTransition))
		_, err = l.SendToExternalRepair(ctx, item.ID, "RT-1", 1)
		assert.True(t, errors.Is(err, fault.ErrInvalidTransition))
	})
}

func TestListAvailableByTypeOrdering(t *testing.T) {
	gdb := newTestDB(t)
	l := New(gdb)
	ctx := context.Background()

	used := addItem(t, l, "RAM-U1", model.ComponentRAM, model.ConditionUsed)
	refurb := addItem(t, l, "RAM-R1", model.ComponentRAM, model.ConditionRefurbished)
	fresh := addItem(t, l, "RAM-N1", model.ComponentRAM, model.ConditionNew)
	addItem(t, l, "SSD-X1", model.ComponentSSD, model.ConditionNew)

	items, err := l.ListAvailableByType(ctx, model.ComponentRAM, 10)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, fresh.ID, items[0].ID, "NEW sorts before REFURBISHED")
	assert.Equal(t, refurb.ID, items[1].ID)
	assert.Equal(t, used.ID, items[2].ID)

	t.Run("reserved items excluded", func(t *testing.T) {
		srv := seedServer(t, gdb, "SRV-010")
		defect := seedDefect(t, gdb, srv.ID)
		_, err := l.Reserve(ctx, fresh.ID, defect.ID, 1)
		require.NoError(t, err)

		items, err := l.ListAvailableByType(ctx, model.ComponentRAM, 10)
		require.NoError(t, err)
		assert.Len(t, items, 2)
	})
}

func TestListAndStats(t *testing.T) {
	gdb := newTestDB(t)
	l := New(gdb)
	ctx := context.Background()

	addItem(t, l, "CPU-001", model.ComponentCPU, model.ConditionNew)
	addItem(t, l, "CPU-002", model.ComponentCPU, model.ConditionNew)
	damaged := addItem(t, l, "CPU-003", model.ComponentCPU, model.ConditionDamaged)
	_, err := l.MarkDefective(ctx, damaged.ID, 1, "", nil)
	require.NoError(t, err)

	t.Run("filter by status", func(t *testing.T) {
		items, total, err := l.List(ctx, Filter{Status: model.InventoryDefective})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, items, 1)
		assert.Equal(t, "CPU-003", items[0].SerialNumber)
	})

	t.Run("search by serial fragment", func(t *testing.T) {
		_, total, err := l.List(ctx, Filter{Search: "CPU-00"})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
	})

	t.Run("stats", func(t *testing.T) {
		stats, err := l.Stats(ctx, 30)
		require.NoError(t, err)
		assert.Equal(t, int64(3), stats.Total)
		assert.Equal(t, int64(2), stats.Available)
		assert.Equal(t, int64(1), stats.Defective)
		assert.Equal(t, int64(2), stats.ByType[model.ComponentCPU][model.InventoryAvailable])
	})
}

func TestGetBySerial(t *testing.T) {
	gdb := newTestDB(t)
	l := New(gdb)
	ctx := context.Background()

	_, err := l.AddToInventory(ctx, AddItemSpec{
		Type:                 model.ComponentNVME,
		SerialNumber:         "NV-EXT-1",
		InternalSerialNumber: "NV-INT-1",
	}, 1)
	require.NoError(t, err)

	byExternal, err := l.GetBySerial(ctx, "NV-EXT-1")
	require.NoError(t, err)
	byInternal, err := l.GetBySerial(ctx, "NV-INT-1")
	require.NoError(t, err)
	assert.Equal(t, byExternal.ID, byInternal.ID)

	_, err = l.GetBySerial(ctx, "NOPE")
	assert.True(t, errors.Is(err, fault.ErrNotFound))
}

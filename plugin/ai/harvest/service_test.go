package harvest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/harvestline/store"
)

// memoryRecordStore keeps records in a slice. It ignores the year filter so
// the service's own filtering is exercised.
type memoryRecordStore struct {
	mu      sync.Mutex
	records []*store.HarvestRecord
	listErr error
}

func (m *memoryRecordStore) CreateHarvestRecord(_ context.Context, create *store.HarvestRecord) (*store.HarvestRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	create.ID = int64(len(m.records) + 1)
	m.records = append(m.records, create)
	return create, nil
}

func (m *memoryRecordStore) ListHarvestRecords(context.Context, *store.FindHarvestRecord) ([]*store.HarvestRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]*store.HarvestRecord(nil), m.records...), nil
}

func TestRecord(t *testing.T) {
	st := &memoryRecordStore{}
	svc := NewService(st)
	svc.now = func() time.Time { return time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC) }

	msg, err := svc.Record(context.Background(), 120, 350, "2026-02-03")
	require.NoError(t, err)
	assert.Equal(t, "บันทึกข้อมูลทุเรียน 120 ลูก น้ำหนัก 350 กก. วันที่ 2026-02-03 เรียบร้อยแล้ว", msg)
	require.Len(t, st.records, 1)
	assert.Equal(t, int64(120), st.records[0].Count)
	assert.Equal(t, svc.now().Unix(), st.records[0].RecordedTs)

	_, err = svc.Record(context.Background(), 0, 350, "2026-02-03")
	assert.Error(t, err)
	_, err = svc.Record(context.Background(), 10, 35, "2026-13-40")
	assert.Error(t, err)
	assert.Len(t, st.records, 1)
}

func TestStats(t *testing.T) {
	st := &memoryRecordStore{records: []*store.HarvestRecord{
		{Count: 100, Weight: 300, Date: "2026-03-01"},
		{Count: 20, Weight: 50.5, Date: "2026-01-15"},
		{Count: 30, Weight: 100, Date: "2026-03-20"},
		{Count: 999, Weight: 9999, Date: "2025-03-20"},
	}}
	svc := NewService(st)

	stats, err := svc.Stats(context.Background(), 2026)
	require.NoError(t, err)
	assert.Equal(t, StatsSuccess, stats.Status)
	assert.Equal(t, "สร้างกราฟสรุปยอดเรียบร้อยแล้ว", stats.Message)
	assert.Equal(t, []string{"ม.ค.", "มี.ค."}, stats.Series.Labels)
	assert.Equal(t, []float64{50.5, 400}, stats.Series.Values)
	assert.InDelta(t, 450.5, stats.TotalWeight, 1e-9)
	assert.Equal(t, int64(150), stats.TotalCount)

	require.NotNil(t, stats.Flex)
	assert.Equal(t, "สรุปยอดทุเรียนปี 2026", stats.Flex.AltText)
	assert.Equal(t, "ประจำปี 2026", stats.Flex.Contents.Header.Contents[1].Text)
	assert.True(t, strings.HasPrefix(stats.Flex.Contents.Hero.URL, "https://quickchart.io/chart?c="))
	assert.Equal(t, "450.5 กก.", stats.Flex.Contents.Body.Contents[0].Contents[1].Text)
	assert.Equal(t, "150 ลูก", stats.Flex.Contents.Body.Contents[1].Contents[1].Text)
}

func TestStats_EmptyYear(t *testing.T) {
	st := &memoryRecordStore{records: []*store.HarvestRecord{{Count: 1, Weight: 2, Date: "2025-05-01"}}}
	svc := NewService(st)

	stats, err := svc.Stats(context.Background(), 2026)
	require.NoError(t, err)
	assert.Equal(t, StatsEmpty, stats.Status)
	assert.Equal(t, "ไม่พบข้อมูลการเก็บเกี่ยวในปี 2026", stats.Message)
	assert.Empty(t, stats.Series.Values)
	assert.Nil(t, stats.Flex)
}

func TestStats_StoreError(t *testing.T) {
	svc := NewService(&memoryRecordStore{listErr: errors.New("db down")})
	_, err := svc.Stats(context.Background(), 2026)
	assert.Error(t, err)
}

func TestStats_ThousandsSeparator(t *testing.T) {
	st := &memoryRecordStore{records: []*store.HarvestRecord{{Count: 1200, Weight: 12500, Date: "2026-06-01"}}}
	stats, err := NewService(st).Stats(context.Background(), 2026)
	require.NoError(t, err)
	assert.Equal(t, "12,500 กก.", stats.Flex.Contents.Body.Contents[0].Contents[1].Text)
	assert.Equal(t, "1,200 ลูก", stats.Flex.Contents.Body.Contents[1].Contents[1].Text)
}

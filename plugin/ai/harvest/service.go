// Package harvest implements the structured harvest actions the intent
// router can trigger: recording a harvest and summarizing a year.
package harvest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/hrygo/harvestline/plugin/ai/genui"
	"github.com/hrygo/harvestline/store"
)

// DateLayout is the calendar date format of harvest records.
const DateLayout = "2006-01-02"

// StatsStatus tells a chart result apart from an empty year.
type StatsStatus string

const (
	StatsSuccess StatsStatus = "success"
	StatsEmpty   StatsStatus = "empty"
)

var thaiShortMonths = [...]string{
	"ม.ค.", "ก.พ.", "มี.ค.", "เม.ย.", "พ.ค.", "มิ.ย.",
	"ก.ค.", "ส.ค.", "ก.ย.", "ต.ค.", "พ.ย.", "ธ.ค.",
}

// RecordStore persists harvest records.
type RecordStore interface {
	CreateHarvestRecord(ctx context.Context, create *store.HarvestRecord) (*store.HarvestRecord, error)
	ListHarvestRecords(ctx context.Context, find *store.FindHarvestRecord) ([]*store.HarvestRecord, error)
}

// Stats is the yearly summary returned by Service.Stats.
type Stats struct {
	Status      StatsStatus
	Year        int
	Message     string
	Series      genui.BarSeries
	TotalWeight float64
	TotalCount  int64
	Flex        *genui.FlexMessage
}

// Service runs the harvest actions.
type Service struct {
	store RecordStore
	now   func() time.Time
}

func NewService(st RecordStore) *Service {
	return &Service{store: st, now: time.Now}
}

// Record appends a harvest record and returns the confirmation message.
func (s *Service) Record(ctx context.Context, count int64, weight float64, date string) (string, error) {
	if count <= 0 || weight <= 0 {
		return "", errors.Errorf("count and weight must be positive, got %d and %v", count, weight)
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return "", errors.Wrapf(err, "invalid harvest date %q", date)
	}

	if _, err := s.store.CreateHarvestRecord(ctx, &store.HarvestRecord{
		Count:      count,
		Weight:     weight,
		Date:       date,
		RecordedTs: s.now().Unix(),
	}); err != nil {
		return "", errors.Wrap(err, "failed to record harvest")
	}
	return fmt.Sprintf("บันทึกข้อมูลทุเรียน %d ลูก น้ำหนัก %s กก. วันที่ %s เรียบร้อยแล้ว", count, formatNumber(weight), date), nil
}

// Stats aggregates the records of one calendar year by month.
func (s *Service) Stats(ctx context.Context, year int) (*Stats, error) {
	records, err := s.store.ListHarvestRecords(ctx, &store.FindHarvestRecord{Year: &year})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list harvest records")
	}

	prefix := fmt.Sprintf("%04d-", year)
	monthly := map[int]float64{}
	stats := &Stats{Year: year}
	for _, record := range records {
		if !strings.HasPrefix(record.Date, prefix) || len(record.Date) < 7 {
			continue
		}
		month, err := strconv.Atoi(record.Date[5:7])
		if err != nil || month < 1 || month > 12 {
			continue
		}
		monthly[month] += record.Weight
		stats.TotalWeight += record.Weight
		stats.TotalCount += record.Count
	}

	if len(monthly) == 0 {
		stats.Status = StatsEmpty
		stats.Message = fmt.Sprintf("ไม่พบข้อมูลการเก็บเกี่ยวในปี %d", year)
		return stats, nil
	}

	months := make([]int, 0, len(monthly))
	for month := range monthly {
		months = append(months, month)
	}
	sort.Ints(months)

	stats.Series = genui.BarSeries{Label: "น้ำหนัก (กก.)"}
	for _, month := range months {
		stats.Series.Labels = append(stats.Series.Labels, thaiShortMonths[month-1])
		stats.Series.Values = append(stats.Series.Values, monthly[month])
	}

	stats.Status = StatsSuccess
	stats.Message = "สร้างกราฟสรุปยอดเรียบร้อยแล้ว"
	flex, err := buildStatsFlex(stats)
	if err != nil {
		return nil, err
	}
	stats.Flex = flex
	return stats, nil
}

func buildStatsFlex(stats *Stats) (*genui.FlexMessage, error) {
	chartURL, err := stats.Series.QuickChartURL(500, 300)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build chart url")
	}

	title := genui.Text("สรุปผลผลิตทุเรียน")
	title.Weight = "bold"
	title.Size = "xl"
	subtitle := genui.Text(fmt.Sprintf("ประจำปี %d", stats.Year))
	subtitle.Size = "sm"
	subtitle.Color = "#888888"

	body := genui.VerticalBox(
		genui.KeyValueRow("น้ำหนักรวม", humanize.Commaf(stats.TotalWeight)+" กก."),
		genui.KeyValueRow("จำนวนลูก", humanize.Comma(stats.TotalCount)+" ลูก"),
	)
	body.Spacing = "sm"

	bubble := genui.NewBubble()
	bubble.Header = genui.VerticalBox(title, subtitle)
	bubble.Hero = genui.Image(chartURL)
	bubble.Body = body
	return &genui.FlexMessage{
		AltText:  fmt.Sprintf("สรุปยอดทุเรียนปี %d", stats.Year),
		Contents: bubble,
	}, nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

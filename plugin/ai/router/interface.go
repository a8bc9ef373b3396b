// Package router classifies inbound chat text into structured harvest
// actions before any retrieval or generation happens.
package router

import (
	"context"

	"github.com/hrygo/harvestline/plugin/ai/genui"
	"github.com/hrygo/harvestline/plugin/ai/harvest"
)

// RouterService routes a message to a structured action.
type RouterService interface {
	// Route returns matched=false when no rule claims the message.
	Route(ctx context.Context, input string) (result *Result, matched bool)
}

// Intent represents the type of structured action.
type Intent string

const (
	IntentRecordHarvest Intent = "record_harvest"
	IntentHarvestStats  Intent = "get_harvest_stats"
)

// Result is what a matched rule produced for the user.
type Result struct {
	Intent Intent
	Text   string
	Flex   *genui.FlexMessage
	// Stats is set for a successful or empty stats request.
	Stats *harvest.Stats
	// Clarification marks a prompt for missing fields; nothing was written.
	Clarification bool
	// Failed marks the fixed apology after an internal error.
	Failed bool
}

// Actions are the side-effecting operations a rule may run.
type Actions interface {
	Record(ctx context.Context, count int64, weight float64, date string) (string, error)
	Stats(ctx context.Context, year int) (*harvest.Stats, error)
}

const (
	// ClarificationMessage asks for the fields a record needs.
	ClarificationMessage = "กรุณาระบุจำนวนลูกและน้ำหนัก เช่น 120 ลูก 350 กิโล วันที่ 2026-02-03"
	// ToolErrorMessage replaces any internal error of a structured action.
	ToolErrorMessage = "ขออภัย ระบบเครื่องมือเกิดข้อผิดพลาดชั่วคราว"
)

package storage

import "time"

type CycleStatus string

const (
	CyclePlanned    CycleStatus = "planned"
	CycleInProgress CycleStatus = "in_progress"
	CycleCompleted  CycleStatus = "completed"
	CycleFailed     CycleStatus = "failed"
	CycleCancelled  CycleStatus = "cancelled"
)

func (s CycleStatus) Terminal() bool {
	return s == CycleCompleted || s == CycleFailed || s == CycleCancelled
}

type ReadinessState string

const (
	ReadyToStart          ReadinessState = "ready"
	WaitingForSpool       ReadinessState = "waiting_for_spool"
	BlockedInventory      ReadinessState = "blocked_inventory"
	WaitingForPlateReload ReadinessState = "waiting_for_plate_reload"
)

type PlateType string

const (
	PlateFull     PlateType = "full"
	PlateReduced  PlateType = "reduced"
	PlateCloseout PlateType = "closeout"
)

type CycleSource string

const (
	SourceAuto   CycleSource = "auto"
	SourceManual CycleSource = "manual"
)

type PlannedCycle struct {
	ID               string         `json:"id"`
	ProjectID        string         `json:"project_id"`
	PrinterID        string         `json:"printer_id"`
	PresetID         string         `json:"preset_id,omitempty"`
	UnitsPlanned     int            `json:"units_planned"`
	GramsPlanned     float64        `json:"grams_planned"`
	PlateType        PlateType      `json:"plate_type"`
	StartTime        time.Time      `json:"start_time"`
	EndTime          time.Time      `json:"end_time"`
	Status           CycleStatus    `json:"status"`
	ReadinessState   ReadinessState `json:"readiness_state"`
	ReadinessDetails string         `json:"readiness_details,omitempty"`
	RequiredColor    string         `json:"required_color"`
	RequiredMaterial string         `json:"required_material"`
	RequiredGrams    float64        `json:"required_grams"`
	Source           CycleSource    `json:"source"`
	Locked           bool           `json:"locked"`
	Unattended       bool           `json:"unattended"`
	PlateIndex       int            `json:"plate_index,omitempty"`
	PlateReleaseTime *time.Time     `json:"plate_release_time,omitempty"`
	UnitsGood        int            `json:"units_good,omitempty"`
	UnitsScrap       int            `json:"units_scrap,omitempty"`
}

func (c PlannedCycle) Duration() time.Duration {
	return c.EndTime.Sub(c.StartTime)
}

func CycleByID(cycles []PlannedCycle, id string) *PlannedCycle {
	for i := range cycles {
		if cycles[i].ID == id {
			return &cycles[i]
		}
	}
	return nil
}

// CycleLog is an execution record written when a cycle reaches a terminal state.
type CycleLog struct {
	ID         string      `json:"id"`
	CycleID    string      `json:"cycle_id"`
	ProjectID  string      `json:"project_id"`
	PrinterID  string      `json:"printer_id"`
	Status     CycleStatus `json:"status"`
	UnitsGood  int         `json:"units_good"`
	UnitsScrap int         `json:"units_scrap"`
	GramsUsed  float64     `json:"grams_used"`
	RecordedAt time.Time   `json:"recorded_at"`
}

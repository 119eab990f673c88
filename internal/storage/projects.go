package storage

import "time"

type Urgency string

const (
	UrgencyNormal   Urgency = "normal"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyCritical Urgency = "critical"
)

// Rank orders urgencies for sorting, lower is more pressing.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyCritical:
		return 0
	case UrgencyUrgent:
		return 1
	default:
		return 2
	}
}

type ProjectStatus string

const (
	ProjectPending    ProjectStatus = "pending"
	ProjectInProgress ProjectStatus = "in_progress"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectOnHold     ProjectStatus = "on_hold"
)

// DateLayout is the layout of due dates and calendar override bounds.
const DateLayout = "2006-01-02"

type Project struct {
	ID                    string        `json:"id"`
	Name                  string        `json:"name"`
	ProductID             string        `json:"product_id"`
	PreferredPresetID     string        `json:"preferred_preset_id,omitempty"`
	QuantityTarget        int           `json:"quantity_target"`
	QuantityGood          int           `json:"quantity_good"`
	QuantityScrap         int           `json:"quantity_scrap"`
	DueDate               string        `json:"due_date"`
	Urgency               Urgency       `json:"urgency"`
	UrgencyManualOverride bool          `json:"urgency_manual_override"`
	Status                ProjectStatus `json:"status"`
	Color                 string        `json:"color"`
	Material              string        `json:"material"`
	ParentProjectID       string        `json:"parent_project_id,omitempty"`
	IncludeInPlanning     *bool         `json:"include_in_planning,omitempty"`
	CreatedAt             time.Time     `json:"created_at"`
}

func (p Project) RemainingUnits() int {
	if rem := p.QuantityTarget - p.QuantityGood; rem > 0 {
		return rem
	}
	return 0
}

func (p Project) IsPlannable() bool {
	if p.Status == ProjectCompleted || p.Status == ProjectOnHold {
		return false
	}
	return p.IncludeInPlanning == nil || *p.IncludeInPlanning
}

func (p Project) IsRecovery() bool {
	return p.ParentProjectID != ""
}

// Deadline is the last instant of the due day in loc.
func (p Project) Deadline(loc *time.Location) (time.Time, bool) {
	due, err := time.ParseInLocation(DateLayout, p.DueDate, loc)
	if err != nil {
		return time.Time{}, false
	}
	return due.AddDate(0, 0, 1).Add(-time.Millisecond), true
}

func ProjectByID(projects []Project, id string) *Project {
	for i := range projects {
		if projects[i].ID == id {
			return &projects[i]
		}
	}
	return nil
}

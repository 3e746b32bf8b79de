package task

import (
	"maps"
	"slices"
)

// Patch is a partial update. Nil fields are left alone; for the nullable
// date fields an empty string clears the value.
type Patch struct {
	Name              *string
	Notes             *string
	Start             *string
	End               *string
	Duration          *int
	ConstraintType    *ConstraintType
	ConstraintDate    *string
	SchedulingMode    *SchedulingMode
	ActualStart       *string
	ActualFinish      *string
	Progress          *int
	RemainingDuration *int
	TradePartnerIDs   *[]string
	Fields            map[string]string
}

// IsEmpty reports whether applying the patch would change nothing.
func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.Notes == nil && p.Start == nil && p.End == nil &&
		p.Duration == nil && p.ConstraintType == nil && p.ConstraintDate == nil &&
		p.SchedulingMode == nil && p.ActualStart == nil && p.ActualFinish == nil &&
		p.Progress == nil && p.RemainingDuration == nil && p.TradePartnerIDs == nil &&
		len(p.Fields) == 0
}

// Apply writes every set field of p onto t.
func (p Patch) Apply(t *Task) {
	setString(&t.Name, p.Name)
	setString(&t.Notes, p.Notes)
	setString(&t.Start, p.Start)
	setString(&t.End, p.End)
	if p.Duration != nil {
		t.Duration = *p.Duration
	}
	if p.ConstraintType != nil {
		t.ConstraintType = *p.ConstraintType
	}
	setString(&t.ConstraintDate, p.ConstraintDate)
	if p.SchedulingMode != nil {
		t.SchedulingMode = *p.SchedulingMode
	}
	setString(&t.ActualStart, p.ActualStart)
	setString(&t.ActualFinish, p.ActualFinish)
	if p.Progress != nil {
		t.Progress = *p.Progress
	}
	if p.RemainingDuration != nil {
		t.RemainingDuration = *p.RemainingDuration
	}
	if p.TradePartnerIDs != nil {
		t.TradePartnerIDs = slices.Clone(*p.TradePartnerIDs)
	}
	if len(p.Fields) > 0 {
		if t.Fields == nil {
			t.Fields = make(map[string]string, len(p.Fields))
		}
		maps.Copy(t.Fields, p.Fields)
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// Ptr returns a pointer to v. It keeps patch literals short.
func Ptr[T any](v T) *T {
	return &v
}

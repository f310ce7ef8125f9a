/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  JSON shapes exchanged with clients, kept separate from the domain types
  so wire compatibility never constrains the engine. All timestamps are
  canonical UTC ISO-8601 strings; all dates are "YYYY-MM-DD".
*/
package api

import (
	"github.com/mattrap/TipSplit-sub000/calendar"
	"github.com/mattrap/TipSplit-sub000/payroll"
)

// =============================================================================
// REQUESTS
// =============================================================================

// CreateScheduleRequest creates a new schedule version for a group.
type CreateScheduleRequest struct {
	GroupKey          string `json:"group_key"`
	Name              string `json:"name"`
	Timezone          string `json:"timezone"`
	PeriodLengthDays  int    `json:"period_length_days"`
	PayDateOffsetDays int    `json:"pay_date_offset_days"`
	AnchorStartLocal  string `json:"anchor_start_local"`
	EffectiveFrom     string `json:"effective_from"`
}

// EnsurePeriodsRequest materializes periods over a local date window.
type EnsurePeriodsRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// OverrideRequest applies audited admin field changes to a period.
type OverrideRequest struct {
	Changes map[string]string `json:"changes"`
	Reason  string            `json:"reason"`
	Actor   string            `json:"actor"`
}

// EnsureWindowRequest materializes a rolling window around today.
// Zero values fall back to the defaults (6 months back, 12 forward).
type EnsureWindowRequest struct {
	MonthsBack    int `json:"months_back"`
	MonthsForward int `json:"months_forward"`
}

// DistributionRequest records a tip payout line against a period.
type DistributionRequest struct {
	Employee string `json:"employee"`
	Amount   string `json:"amount"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type ScheduleDTO struct {
	ID                string  `json:"id"`
	GroupKey          string  `json:"group_key"`
	Name              string  `json:"name"`
	Timezone          string  `json:"timezone"`
	PeriodLengthDays  int     `json:"period_length_days"`
	PayDateOffsetDays int     `json:"pay_date_offset_days"`
	AnchorStartLocal  string  `json:"anchor_start_local"`
	EffectiveFrom     string  `json:"effective_from"`
	EffectiveTo       *string `json:"effective_to"`
	CreatedAt         string  `json:"created_at"`
	UpdatedAt         string  `json:"updated_at"`
}

type PeriodDTO struct {
	ID             string  `json:"id"`
	ScheduleID     string  `json:"schedule_id"`
	StartAtUTC     string  `json:"start_at_utc"`
	EndAtUTC       string  `json:"end_at_utc"`
	PayDateLocal   string  `json:"pay_date_local"`
	LabelYear      int     `json:"label_year"`
	SequenceInYear int     `json:"sequence_in_year"`
	DisplayID      string  `json:"display_id"`
	Status         string  `json:"status"`
	LockedAtUTC    *string `json:"locked_at_utc"`
	PayedAtUTC     *string `json:"payed_at_utc"`
}

// PeriodViewDTO is a period decorated for display.
type PeriodViewDTO struct {
	PeriodDTO

	StartLocal    string `json:"start_local"`
	EndLocal      string `json:"end_local"`
	RangeLabel    string `json:"range_label"`
	FolderName    string `json:"folder_name"`
	StatusDisplay string `json:"status_display"`
}

type OverrideDTO struct {
	ID        string `json:"id"`
	PeriodID  string `json:"period_id"`
	Field     string `json:"field"`
	OldValue  string `json:"old_value"`
	NewValue  string `json:"new_value"`
	Reason    string `json:"reason"`
	Actor     string `json:"actor"`
	CreatedAt string `json:"created_at"`
}

type OverrideResponse struct {
	Period PeriodDTO     `json:"period"`
	Audits []OverrideDTO `json:"audits"`
}

type EnsurePeriodsResponse struct {
	Inserted int `json:"inserted"`
}

type DistributionDTO struct {
	ID        string `json:"id"`
	PeriodID  string `json:"period_id"`
	Employee  string `json:"employee"`
	Amount    string `json:"amount"`
	CreatedAt string `json:"created_at"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toScheduleDTO(s *calendar.Schedule) ScheduleDTO {
	dto := ScheduleDTO{
		ID:                string(s.ID),
		GroupKey:          s.GroupKey,
		Name:              s.Name,
		Timezone:          s.Timezone,
		PeriodLengthDays:  s.PeriodLengthDays,
		PayDateOffsetDays: s.PayDateOffsetDays,
		AnchorStartLocal:  s.AnchorStartLocal,
		EffectiveFrom:     calendar.FormatDate(s.EffectiveFrom),
		CreatedAt:         calendar.FormatUTC(s.CreatedAt),
		UpdatedAt:         calendar.FormatUTC(s.UpdatedAt),
	}
	if s.EffectiveTo != nil {
		to := calendar.FormatDate(*s.EffectiveTo)
		dto.EffectiveTo = &to
	}
	return dto
}

func toPeriodDTO(p *calendar.Period) PeriodDTO {
	dto := PeriodDTO{
		ID:             string(p.ID),
		ScheduleID:     string(p.ScheduleID),
		StartAtUTC:     calendar.FormatUTC(p.StartAtUTC),
		EndAtUTC:       calendar.FormatUTC(p.EndAtUTC),
		PayDateLocal:   calendar.FormatDate(p.PayDateLocal),
		LabelYear:      p.LabelYear,
		SequenceInYear: p.SequenceInYear,
		DisplayID:      p.DisplayID,
		Status:         string(p.Status),
	}
	if p.LockedAtUTC != nil {
		s := calendar.FormatUTC(*p.LockedAtUTC)
		dto.LockedAtUTC = &s
	}
	if p.PayedAtUTC != nil {
		s := calendar.FormatUTC(*p.PayedAtUTC)
		dto.PayedAtUTC = &s
	}
	return dto
}

func toPeriodViewDTO(v *payroll.PeriodView) PeriodViewDTO {
	return PeriodViewDTO{
		PeriodDTO:     toPeriodDTO(&v.Period),
		StartLocal:    v.StartLocal,
		EndLocal:      v.EndLocal,
		RangeLabel:    v.RangeLabel,
		FolderName:    v.FolderName,
		StatusDisplay: v.StatusDisplay,
	}
}

func toOverrideDTO(o *calendar.Override) OverrideDTO {
	return OverrideDTO{
		ID:        string(o.ID),
		PeriodID:  string(o.PeriodID),
		Field:     o.Field,
		OldValue:  o.OldValue,
		NewValue:  o.NewValue,
		Reason:    o.Reason,
		Actor:     o.Actor,
		CreatedAt: calendar.FormatUTC(o.CreatedAt),
	}
}

func toDistributionDTO(d *payroll.Distribution) DistributionDTO {
	return DistributionDTO{
		ID:        d.ID,
		PeriodID:  string(d.PeriodID),
		Employee:  d.Employee,
		Amount:    d.Amount.String(),
		CreatedAt: calendar.FormatUTC(d.CreatedAt),
	}
}

// Package workflow enforces who may move a sample or report into which
// status, and what each move records.
package workflow

import (
	"fmt"
	"time"

	"github.com/zatekoja/recursiadx/internal/domain/entities"
	apperrors "github.com/zatekoja/recursiadx/pkg/errors"
)

// TerminalPolicy controls whether terminal states can be left
type TerminalPolicy string

const (
	// PolicyStrict forbids every transition out of a terminal state
	PolicyStrict TerminalPolicy = "strict"
	// PolicyAdminOverride lets only admins leave a terminal state
	PolicyAdminOverride TerminalPolicy = "admin_override"
	// PolicyAllow treats terminal states like any other
	PolicyAllow TerminalPolicy = "allow"
)

// roleTargets is the set of statuses each role may request.
var roleTargets = map[entities.Role]map[entities.SampleStatus]bool{
	entities.RoleLabTechnician: {
		entities.SampleStatusReceived:   true,
		entities.SampleStatusProcessing: true,
		entities.SampleStatusSectioning: true,
	},
	entities.RolePathologist: {
		entities.SampleStatusReading:   true,
		entities.SampleStatusReporting: true,
		entities.SampleStatusComplete:  true,
	},
	entities.RoleAdmin: {
		entities.SampleStatusReceived:   true,
		entities.SampleStatusProcessing: true,
		entities.SampleStatusSectioning: true,
		entities.SampleStatusStaining:   true,
		entities.SampleStatusReading:    true,
		entities.SampleStatusReporting:  true,
		entities.SampleStatusComplete:   true,
		entities.SampleStatusCancelled:  true,
	},
	entities.RoleResident: {},
}

var sampleTerminal = map[entities.SampleStatus]bool{
	entities.SampleStatusComplete:  true,
	entities.SampleStatusCancelled: true,
}

var reportTerminal = map[entities.ReportStatus]bool{
	entities.ReportStatusFinalized: true,
	entities.ReportStatusRejected:  true,
}

// cancelBlocked lists statuses from which a sample may not be soft-deleted.
var cancelBlocked = map[entities.SampleStatus]bool{
	entities.SampleStatusReading:     true,
	entities.SampleStatusReporting:   true,
	entities.SampleStatusComplete:    true,
	entities.SampleStatusUnderReview: true,
	entities.SampleStatusCancelled:   true,
}

// Machine applies status transitions to samples and reports.
type Machine struct {
	policy TerminalPolicy
	now    func() time.Time
}

// NewMachine creates a machine with the given terminal policy.
func NewMachine(policy TerminalPolicy) *Machine {
	switch policy {
	case PolicyStrict, PolicyAdminOverride, PolicyAllow:
	default:
		policy = PolicyStrict
	}
	return &Machine{policy: policy, now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	return m
}

// Policy returns the active terminal policy.
func (m *Machine) Policy() TerminalPolicy {
	return m.policy
}

// CanSet reports whether role may request the status.
func CanSet(role entities.Role, status entities.SampleStatus) bool {
	return roleTargets[role][status]
}

// AllowedTargets returns the statuses role may request, in lifecycle order.
func AllowedTargets(role entities.Role) []entities.SampleStatus {
	out := []entities.SampleStatus{}
	for _, s := range entities.SampleStatuses {
		if roleTargets[role][s] {
			out = append(out, s)
		}
	}
	return out
}

// Transition moves the sample on behalf of actor, enforcing the role table
// and the terminal policy. The sample is left untouched on error.
func (m *Machine) Transition(sample *entities.Sample, actor entities.Actor, to entities.SampleStatus, notes string) error {
	if _, ok := entities.ParseSampleStatus(string(to)); !ok {
		return apperrors.NewValidationError(fmt.Sprintf("unknown status %q", to),
			apperrors.FieldError{Field: "status", Message: "is not a valid sample status"})
	}
	if !CanSet(actor.Role, to) {
		return apperrors.NewForbiddenError(fmt.Sprintf("role %s cannot set status to %s", actor.Role, to))
	}
	return m.apply(sample, actor, to, notes)
}

// SystemTransition moves the sample as a side effect of another operation.
// The role table is not consulted; the terminal policy still is.
func (m *Machine) SystemTransition(sample *entities.Sample, actor entities.Actor, to entities.SampleStatus, notes string) error {
	return m.apply(sample, actor, to, notes)
}

// CheckSystemTransition reports whether SystemTransition would succeed
// without mutating the sample.
func (m *Machine) CheckSystemTransition(sample *entities.Sample, actor entities.Actor) error {
	return m.checkLeave(string(sample.Status), sampleTerminal[sample.Status], actor)
}

// Cancel soft-deletes the sample.
func (m *Machine) Cancel(sample *entities.Sample, actor entities.Actor, notes string) error {
	if cancelBlocked[sample.Status] {
		return apperrors.NewConflictError(fmt.Sprintf("cannot delete sample in %s status", sample.Status))
	}
	if notes == "" {
		notes = "Sample cancelled"
	}
	return m.apply(sample, actor, entities.SampleStatusCancelled, notes)
}

// Start records the initial Received state of a new sample.
func (m *Machine) Start(sample *entities.Sample, actor entities.Actor, notes string) {
	at := m.now()
	sample.Status = entities.SampleStatusReceived
	sample.Workflow = nil
	sample.AppendWorkflow(entities.SampleStatusReceived, actor.UserID, notes, at)
	stampMilestone(sample, entities.SampleStatusReceived, at)
	sample.UpdatedAt = at
}

func (m *Machine) apply(sample *entities.Sample, actor entities.Actor, to entities.SampleStatus, notes string) error {
	if sample.Status != to {
		if err := m.checkLeave(string(sample.Status), sampleTerminal[sample.Status], actor); err != nil {
			return err
		}
	}

	at := m.now()
	sample.Status = to
	sample.AppendWorkflow(to, actor.UserID, notes, at)
	stampMilestone(sample, to, at)
	if to == entities.SampleStatusCancelled {
		sample.CancelledBy = actor.UserID
	}
	sample.UpdatedAt = at
	return nil
}

func (m *Machine) checkLeave(from string, terminal bool, actor entities.Actor) error {
	if !terminal {
		return nil
	}
	switch m.policy {
	case PolicyAllow:
		return nil
	case PolicyAdminOverride:
		if actor.Role == entities.RoleAdmin {
			return nil
		}
	}
	return apperrors.NewConflictError(fmt.Sprintf("%s is a terminal status", from))
}

func stampMilestone(sample *entities.Sample, status entities.SampleStatus, at time.Time) {
	switch status {
	case entities.SampleStatusReceived:
		sample.ReceivedAt = &at
	case entities.SampleStatusProcessing:
		sample.ProcessingStartedAt = &at
	case entities.SampleStatusComplete:
		sample.CompletedAt = &at
	case entities.SampleStatusCancelled:
		sample.CancelledAt = &at
	}
}

// TransitionReport moves a report to a new review status.
func (m *Machine) TransitionReport(report *entities.Report, actor entities.Actor, to entities.ReportStatus, notes string) error {
	if _, ok := entities.ParseReportStatus(string(to)); !ok {
		return apperrors.NewValidationError(fmt.Sprintf("unknown report status %q", to),
			apperrors.FieldError{Field: "status", Message: "must be one of draft, review, approved, finalized, rejected"})
	}
	if report.Status != to {
		if err := m.checkLeave(string(report.Status), reportTerminal[report.Status], actor); err != nil {
			return err
		}
	}

	at := m.now()
	report.Status = to
	report.AppendWorkflow(to, actor.UserID, notes, at)
	if to == entities.ReportStatusFinalized {
		report.FinalizedAt = &at
		report.FinalizedBy = actor.UserID
	}
	report.UpdatedAt = at
	return nil
}

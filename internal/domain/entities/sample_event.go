package entities

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// SampleEventType represents the type of sample event
type SampleEventType string

const (
	SampleEventCreated         SampleEventType = "sample_created"
	SampleEventStatusChanged   SampleEventType = "status_changed"
	SampleEventImageAdded      SampleEventType = "image_added"
	SampleEventAssigned        SampleEventType = "sample_assigned"
	SampleEventReportGenerated SampleEventType = "report_generated"
)

// SampleEvent represents a real-time update about a sample
type SampleEvent struct {
	ID        string          `json:"id"`
	SampleRef string          `json:"sampleRef"`
	SampleID  string          `json:"sampleId"`
	EventType SampleEventType `json:"eventType"`
	Status    SampleStatus    `json:"status"`
	Actor     string          `json:"actor,omitempty"`
	Detail    string          `json:"detail,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewSampleEvent creates a new sample event from the sample's current state
func NewSampleEvent(sample *Sample, eventType SampleEventType, actor, detail string) *SampleEvent {
	return &SampleEvent{
		ID:        generateEventID(),
		SampleRef: sample.ID,
		SampleID:  sample.SampleID,
		EventType: eventType,
		Status:    sample.Status,
		Actor:     actor,
		Detail:    detail,
		Timestamp: time.Now(),
	}
}

func generateEventID() string {
	return time.Now().Format("20060102150405") + "-" + randomString(8)
}

func randomString(length int) string {
	bytes := make([]byte, length/2+1)
	if _, err := rand.Read(bytes); err != nil {
		return time.Now().Format("150405.000")
	}
	return hex.EncodeToString(bytes)[:length]
}

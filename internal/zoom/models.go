// Package zoom defines data structures for the Zoom users and Cloud Recording APIs
package zoom

import (
	"time"

	"github.com/curtbushko/zoom-recording-downloader/internal/instant"
	"github.com/curtbushko/zoom-recording-downloader/internal/meetingid"
)

const (
	// RecordingTypeIncomplete marks a file Zoom has not finished processing (empty file type)
	RecordingTypeIncomplete = "incomplete"

	// FileTypeTimeline files carry no recording_type and are named after their file type
	FileTypeTimeline = "TIMELINE"
)

// RecordingFile represents a single recording file within a meeting recording
type RecordingFile struct {
	ID             string `json:"id"`
	MeetingID      string `json:"meeting_id"`
	RecordingStart string `json:"recording_start,omitempty"`
	RecordingEnd   string `json:"recording_end,omitempty"`
	FileType       string `json:"file_type"`
	FileExtension  string `json:"file_extension,omitempty"`
	FileSize       int64  `json:"file_size"`
	DownloadURL    string `json:"download_url"`
	Status         string `json:"status,omitempty"`
	RecordingType  string `json:"recording_type,omitempty"`
}

// IsIncomplete reports whether Zoom has not yet assigned a file type to this file
func (f RecordingFile) IsIncomplete() bool {
	return f.FileType == ""
}

// EffectiveRecordingType returns the recording type used for naming and logging
func (f RecordingFile) EffectiveRecordingType() string {
	switch {
	case f.IsIncomplete():
		return RecordingTypeIncomplete
	case f.FileType == FileTypeTimeline:
		return f.FileType
	default:
		return f.RecordingType
	}
}

// Meeting represents one meeting instance with its recording files
type Meeting struct {
	UUID           string          `json:"uuid"`
	ID             int64           `json:"id"`
	AccountID      string          `json:"account_id,omitempty"`
	HostID         string          `json:"host_id,omitempty"`
	Topic          string          `json:"topic"`
	Type           int             `json:"type,omitempty"`
	StartTime      string          `json:"start_time"`
	Timezone       string          `json:"timezone,omitempty"`
	Duration       int             `json:"duration,omitempty"`
	TotalSize      int64           `json:"total_size,omitempty"`
	RecordingCount int             `json:"recording_count,omitempty"`
	RecordingFiles []RecordingFile `json:"recording_files"`
}

// Start parses the meeting's UTC start time
func (m Meeting) Start() (time.Time, error) {
	return instant.ParseRemote(m.StartTime)
}

// NormalizedID returns the meeting ID in the spaced form used by the ledger
func (m Meeting) NormalizedID() (string, error) {
	return meetingid.FromInt(m.ID)
}

// User represents a Zoom account user
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Type      int    `json:"type,omitempty"`
	Status    string `json:"status,omitempty"`
}

// DisplayName returns "First Last - email" when both names are known, otherwise the email
func (u User) DisplayName() string {
	if u.FirstName != "" && u.LastName != "" {
		return u.FirstName + " " + u.LastName + " - " + u.Email
	}
	return u.Email
}

// ListUsersResponse represents one page of the list users API endpoint
type ListUsersResponse struct {
	PageCount    int    `json:"page_count"`
	PageNumber   int    `json:"page_number"`
	PageSize     int    `json:"page_size"`
	TotalRecords int    `json:"total_records"`
	Users        []User `json:"users"`
}

// ListRecordingsResponse represents the response from the list recordings API endpoint
type ListRecordingsResponse struct {
	From          string    `json:"from"`
	To            string    `json:"to"`
	PageCount     int       `json:"page_count"`
	PageSize      int       `json:"page_size"`
	TotalRecords  int       `json:"total_records"`
	NextPageToken string    `json:"next_page_token,omitempty"`
	Meetings      []Meeting `json:"meetings"`
}

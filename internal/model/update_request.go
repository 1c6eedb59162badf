package model

import (
	"time"

	"github.com/google/uuid"
)

// UpdateRequestTTL is the review window for a pending update request.
const UpdateRequestTTL = 7 * 24 * time.Hour

type UpdateRequestStatus string

const (
	UpdateRequestStatusPending  UpdateRequestStatus = "pending"
	UpdateRequestStatusApproved UpdateRequestStatus = "approved"
	UpdateRequestStatusDeclined UpdateRequestStatus = "declined"
	UpdateRequestStatusExpired  UpdateRequestStatus = "expired"
)

// RecordUpdateRequest is a student-submitted, time-boxed proposal to change
// one profile field, subject to staff review.
type RecordUpdateRequest struct {
	Base
	StudentID uuid.UUID `db:"student_id" json:"student_id"`

	FieldName UpdatableField `db:"field_name" json:"field_name"`
	OldValue  string         `db:"old_value" json:"old_value"`
	NewValue  string         `db:"new_value" json:"new_value"`
	Reason    string         `db:"reason" json:"reason"`
	Document  *string        `db:"document" json:"document,omitempty"`

	Status      UpdateRequestStatus `db:"status" json:"status"`
	ReviewedBy  *uuid.UUID          `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewNotes *string             `db:"review_notes" json:"review_notes,omitempty"`
	ReviewedAt  *time.Time          `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ExpiryDate  time.Time           `db:"expiry_date" json:"expiry_date"`
}

// IsExpired is true only while the request is still pending past its
// deadline. A resolved request never reports expired, even past the date.
func (r *RecordUpdateRequest) IsExpired(now time.Time) bool {
	return r.Status == UpdateRequestStatusPending && now.After(r.ExpiryDate)
}

type CreateUpdateRequestRequest struct {
	FieldName string  `json:"field_name" binding:"required"`
	NewValue  string  `json:"new_value" binding:"required"`
	Reason    string  `json:"reason" binding:"required"`
	Document  *string `json:"document"`
}

type ReviewUpdateRequestRequest struct {
	ApplyChanges *bool  `json:"apply_changes"`
	Notes        string `json:"notes"`
}

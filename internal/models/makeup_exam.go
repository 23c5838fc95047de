package models

import "time"

// MakeupExam is one student's scheduled makeup exam. Date, time and location
// are kept in the textual form used by the uploaded roster.
type MakeupExam struct {
	ID          int64     `db:"id" json:"id"`
	StudentID   string    `db:"student_id" json:"student_id"`
	StudentName *string   `db:"student_name" json:"student_name"`
	ClassName   *string   `db:"class_name" json:"class_name"`
	Subject     string    `db:"subject" json:"subject"`
	ExamDate    string    `db:"exam_date" json:"exam_date"`
	ExamTime    string    `db:"exam_time" json:"exam_time"`
	Location    string    `db:"location" json:"location"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ExamView is the public projection returned to students.
type ExamView struct {
	Subject     string  `json:"subject"`
	ExamDate    string  `json:"exam_date"`
	ExamTime    string  `json:"exam_time"`
	Location    string  `json:"location"`
	StudentName *string `json:"student_name"`
}

// RosterSummary describes the currently stored roster.
type RosterSummary struct {
	Records        int        `db:"records" json:"count"`
	Students       int        `db:"students" json:"students"`
	LastImportedAt *time.Time `db:"-" json:"last_imported_at"`
}

// IngestResult is returned after a roster upload has been committed.
type IngestResult struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Message string `json:"message"`
	BatchID string `json:"batch_id"`
}

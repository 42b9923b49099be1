package domain

import "time"

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusError   JobStatus = "error"
)

// Terminal reports whether a job in this status can never change again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// Valid reports whether s is one of the known lifecycle states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusRunning, JobStatusDone, JobStatusError:
		return true
	}
	return false
}

// Job tracks one unit of work from submission to terminal outcome. Records
// live only in broker process memory; the referenced files live on the
// filesystem shared with the ComfyUI backend.
type Job struct {
	ID             string
	Status         JobStatus
	CreatedAt      time.Time
	InputImagePath string
	Prompt         string
	NegativePrompt *string
	Seed           *int64
	ResultPath     string
	ErrorMessage   string
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// OwnedFiles lists the filesystem paths the job record is responsible for.
func (j *Job) OwnedFiles() []string {
	var files []string
	if j.InputImagePath != "" {
		files = append(files, j.InputImagePath)
	}
	if j.ResultPath != "" {
		files = append(files, j.ResultPath)
	}
	return files
}

// Dispatch is the payload handed to the worker when it dequeues a job.
type Dispatch struct {
	JobID          string  `json:"job_id"`
	InputImagePath string  `json:"input_image_path"`
	Prompt         string  `json:"prompt"`
	NegativePrompt *string `json:"negative_prompt"`
	Seed           *int64  `json:"seed"`
}

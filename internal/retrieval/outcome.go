package retrieval

import (
	"context"

	"github.com/dgketchum/Landsat578/internal/landsat"
)

type Status string

const (
	StatusDelivered      Status = "delivered"
	StatusAlreadyPresent Status = "already_present"
	StatusFailed         Status = "failed"
)

// Outcome is the result of fetching one scene. Files lists the local files
// of the scene for Delivered and AlreadyPresent; Reason is set for Failed.
type Outcome struct {
	Scene       landsat.SceneRecord
	Status      Status
	Destination string
	Files       []string
	Reason      string
}

func Delivered(scene landsat.SceneRecord, dest string, files []string) Outcome {
	return Outcome{Scene: scene, Status: StatusDelivered, Destination: dest, Files: files}
}

func AlreadyPresent(scene landsat.SceneRecord, dest string, files []string) Outcome {
	return Outcome{Scene: scene, Status: StatusAlreadyPresent, Destination: dest, Files: files}
}

func Failed(scene landsat.SceneRecord, dest, reason string) Outcome {
	return Outcome{Scene: scene, Status: StatusFailed, Destination: dest, Reason: reason}
}

func (o Outcome) OK() bool {
	return o.Status != StatusFailed
}

// Fetcher delivers the payload of one scene into a destination directory.
// Failures are reported in the outcome, never as a panic or an error.
type Fetcher interface {
	Fetch(ctx context.Context, scene landsat.SceneRecord, dest string) Outcome
}

// Summary counts outcomes by status.
type Summary struct {
	Delivered      int
	AlreadyPresent int
	Failed         int
}

func Summarize(outcomes []Outcome) Summary {
	var s Summary
	for _, o := range outcomes {
		switch o.Status {
		case StatusDelivered:
			s.Delivered++
		case StatusAlreadyPresent:
			s.AlreadyPresent++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}

func (s Summary) Total() int {
	return s.Delivered + s.AlreadyPresent + s.Failed
}

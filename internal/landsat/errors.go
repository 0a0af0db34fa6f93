package landsat

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidQuery        = errors.New("invalid query")
	ErrNoCoverage          = errors.New("no coverage")
	ErrInvalidTile         = errors.New("invalid tile")
	ErrMetadataUnavailable = errors.New("metadata unavailable")
)

type InvalidQueryError struct {
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("invalid query: %s", e.Reason)
}

func (e *InvalidQueryError) Is(target error) bool {
	return target == ErrInvalidQuery
}

// NoCoverageError is returned when a location falls outside every tile of a grid.
type NoCoverageError struct {
	Grid     Grid
	Location string
}

func (e *NoCoverageError) Error() string {
	return fmt.Sprintf("no %s tile covers %s", e.Grid, e.Location)
}

func (e *NoCoverageError) Is(target error) bool {
	return target == ErrNoCoverage
}

type InvalidTileError struct {
	Sensor Sensor
	Tile   PathRow
}

func (e *InvalidTileError) Error() string {
	g := e.Sensor.Grid()
	return fmt.Sprintf("tile %s is outside the %s grid of %s (path 1-%d, row 1-%d)",
		e.Tile, g, e.Sensor, g.MaxPath(), g.MaxRow())
}

func (e *InvalidTileError) Is(target error) bool {
	return target == ErrInvalidTile
}

// MetadataUnavailableError wraps a failure to obtain or parse the archive index.
type MetadataUnavailableError struct {
	Sensor Sensor
	Err    error
}

func (e *MetadataUnavailableError) Error() string {
	if e.Sensor == "" {
		return fmt.Sprintf("metadata unavailable: %v", e.Err)
	}
	return fmt.Sprintf("metadata unavailable for %s: %v", e.Sensor, e.Err)
}

func (e *MetadataUnavailableError) Unwrap() error {
	return e.Err
}

func (e *MetadataUnavailableError) Is(target error) bool {
	return target == ErrMetadataUnavailable
}

// Package instant reconciles the ledger's zone-naive local timestamps with the UTC timestamps
// returned by the Zoom API so both can be compared as absolute instants
package instant

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // zone rules must not depend on the host's zoneinfo
)

const (
	// LocalLayout is the day-first layout used by the ledger's Start_Time column
	LocalLayout = "02/01/2006 15:04:05"

	// RemoteLayout is the UTC layout used by the Zoom API
	RemoteLayout = "2006-01-02T15:04:05Z"
)

// ErrUnparseable is returned when a timestamp matches none of the accepted layouts
var ErrUnparseable = errors.New("unparseable timestamp")

// localLayouts accept single digit day, month and hour as spreadsheets often drop leading zeros
var localLayouts = []string{
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
}

// Reconciler converts local and remote timestamp strings into comparable instants
type Reconciler struct {
	location *time.Location
}

// NewReconciler creates a reconciler for ledger timestamps recorded in the named IANA zone
func NewReconciler(zone string) (*Reconciler, error) {
	if zone == "" {
		zone = "UTC"
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %s: %w", zone, err)
	}
	return &Reconciler{location: loc}, nil
}

// Location returns the zone local timestamps are interpreted in
func (r *Reconciler) Location() *time.Location {
	return r.location
}

// ParseLocal interprets a DD/MM/YYYY HH:MM:SS string in the reconciler's zone
func (r *Reconciler) ParseLocal(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, r.location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q is not in %s format", ErrUnparseable, value, LocalLayout)
}

// ParseRemote parses a YYYY-MM-DDTHH:MM:SSZ string as a UTC instant
func (r *Reconciler) ParseRemote(value string) (time.Time, error) {
	return ParseRemote(value)
}

// FormatLocal renders an instant in the ledger's local layout and zone
func (r *Reconciler) FormatLocal(t time.Time) string {
	return t.In(r.location).Format(LocalLayout)
}

// Equal reports whether a local ledger timestamp and a remote API timestamp denote the same instant
func (r *Reconciler) Equal(local, remote string) (bool, error) {
	l, err := r.ParseLocal(local)
	if err != nil {
		return false, err
	}
	u, err := r.ParseRemote(remote)
	if err != nil {
		return false, err
	}
	return l.Equal(u), nil
}

// ParseRemote parses a Zoom API timestamp; any explicit offset is honoured and the result is UTC
func ParseRemote(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not in %s format", ErrUnparseable, value, RemoteLayout)
	}
	return t.UTC(), nil
}

package schedule

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Errores de programación: el motor solo falla por estos.
	ErrMissingNow  = errors.New("schedule: now is required")
	ErrMissingDate = errors.New("schedule: date is required")
	ErrBadRange    = errors.New("schedule: from must not be after to")

	// Problemas de calidad de datos, reportados como Warning y nunca devueltos como error.
	ErrInvalidRegimenData = errors.New("invalid regimen data")
	ErrAmbiguousLogMatch  = errors.New("ambiguous log match")
	ErrUnknownFrequency   = errors.New("unknown frequency")
	ErrInvalidDoseLog     = errors.New("invalid dose log")
)

type WarningKind string

const (
	WarningInvalidRegimenData WarningKind = "invalid_regimen_data"
	WarningAmbiguousLogMatch  WarningKind = "ambiguous_log_match"
	WarningUnknownFrequency   WarningKind = "unknown_frequency"
	WarningInvalidDoseLog     WarningKind = "invalid_dose_log"
)

// Warning describe un dato que el motor degradó en vez de abortar el cálculo.
type Warning struct {
	Kind      WarningKind
	RegimenID string
	LogIDs    []string
	Err       error
}

func (w Warning) Error() string {
	var b strings.Builder
	b.WriteString(string(w.Kind))
	if w.RegimenID != "" {
		b.WriteString(" regimen=")
		b.WriteString(w.RegimenID)
	}
	if len(w.LogIDs) > 0 {
		b.WriteString(" logs=")
		b.WriteString(strings.Join(w.LogIDs, ","))
	}
	if w.Err != nil {
		b.WriteString(": ")
		b.WriteString(w.Err.Error())
	}
	return b.String()
}

func (w Warning) Unwrap() error { return w.Err }

func invalidRegimen(id, format string, args ...any) Warning {
	return Warning{
		Kind:      WarningInvalidRegimenData,
		RegimenID: id,
		Err:       fmt.Errorf("%w: %s", ErrInvalidRegimenData, fmt.Sprintf(format, args...)),
	}
}

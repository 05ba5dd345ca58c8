package schedule

import (
	"errors"
	"time"
)

// ErrRegimenNotFound es el not-found de los stores de regímenes.
var ErrRegimenNotFound = errors.New("regimen not found")

// Frequency define el patrón de toma de un régimen.
// @Enum once_daily, twice_daily, three_times_daily, four_times_daily, every_other_day, weekly, as_needed, custom
type Frequency string

const (
	FrequencyOnceDaily       Frequency = "once_daily"
	FrequencyTwiceDaily      Frequency = "twice_daily"
	FrequencyThreeTimesDaily Frequency = "three_times_daily"
	FrequencyFourTimesDaily  Frequency = "four_times_daily"
	FrequencyEveryOtherDay   Frequency = "every_other_day"
	FrequencyWeekly          Frequency = "weekly"
	FrequencyAsNeeded        Frequency = "as_needed"
	FrequencyCustom          Frequency = "custom"
)

// Valid indica si la frecuencia es uno de los valores enumerados.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyOnceDaily, FrequencyTwiceDaily, FrequencyThreeTimesDaily, FrequencyFourTimesDaily,
		FrequencyEveryOtherDay, FrequencyWeekly, FrequencyAsNeeded, FrequencyCustom:
		return true
	default:
		return false
	}
}

type Dosage struct {
	Amount float64
	Unit   string // "mg", "ml", "tablet"
}

// CustomTime es una entrada del horario personalizado (solo frequency=custom).
type CustomTime struct {
	Time  string // HH:MM
	Label string
}

// Regimen representa una pauta de medicación prescrita a un usuario.
type Regimen struct {
	ID          string
	OwnerUserID string

	// La medicación en sí vive fuera de este servicio.
	MedicationRef  string
	MedicationName string

	Frequency      Frequency
	FixedTimes     []string // derivado de Frequency para los casos fijos
	CustomSchedule []CustomTime

	StartDate time.Time
	EndDate   *time.Time // nil = sin fecha de fin

	IsActive bool
	Dosage   Dosage

	CreatedAt time.Time
	UpdatedAt time.Time
}

type DoseStatus string

const (
	DoseStatusTaken   DoseStatus = "taken"
	DoseStatusMissed  DoseStatus = "missed"
	DoseStatusSkipped DoseStatus = "skipped"
)

func (s DoseStatus) Valid() bool {
	return s == DoseStatusTaken || s == DoseStatusMissed || s == DoseStatusSkipped
}

type LogSource string

const (
	LogSourceManual    LogSource = "manual"
	LogSourceCaregiver LogSource = "caregiver"
	LogSourceSweeper   LogSource = "sweeper"
)

// DoseLog es el registro persistido de una toma real (o de su omisión).
// Inmutable una vez creado.
type DoseLog struct {
	ID          string
	OwnerUserID string
	RegimenID   string

	ScheduledTime time.Time
	ActualTime    *time.Time // solo cuando se tomó

	Status DoseStatus

	// Metadata clínica, irrelevante para el cálculo de la agenda.
	Mood          string
	SideEffects   []string
	Effectiveness int // 0 = sin dato, 1..5
	Notes         string

	Source     LogSource
	RecordedAt time.Time
}

type SlotStatus string

const (
	SlotStatusPending SlotStatus = "pending"
	SlotStatusTaken   SlotStatus = "taken"
	SlotStatusMissed  SlotStatus = "missed"
	SlotStatusSkipped SlotStatus = "skipped"
)

// DoseSlot es la salida del motor: un log materializado o un slot virtual pendiente.
// No se persiste.
type DoseSlot struct {
	RegimenID string
	LogID     string // vacío para slots virtuales
	Label     string

	ScheduledTime time.Time
	Status        SlotStatus

	IsOverdue   bool
	MinutesLate int
	TakenLate   bool
	DueSoon     bool
}

// Virtual indica si el slot no está respaldado por un DoseLog.
func (s DoseSlot) Virtual() bool {
	return s.LogID == ""
}

package schedule

const (
	DefaultOnTimeMinutes     = 60
	DefaultLateWindowMinutes = 240
)

// LateDecision es el resultado del gate de registro tardío.
type LateDecision string

const (
	// Se registra como taken sin aviso.
	LateAllow LateDecision = "allow"
	// Se registra como taken, pero marcado como tardío y el caller debe avisar.
	LateWarn LateDecision = "warn_late"
	// No se acepta taken: el único estado terminal permitido es missed.
	LateForceMissed LateDecision = "force_missed"
)

// LateVerdict acompaña la decisión con los datos que el caller necesita exponer.
type LateVerdict struct {
	Decision    LateDecision
	MinutesLate int
	TakenLate   bool
}

// Rejected indica que taken no es aceptable (LateLoggingRejected). No es un error.
func (v LateVerdict) Rejected() bool {
	return v.Decision == LateForceMissed
}

// LatePolicy agrupa los umbrales del gate.
type LatePolicy struct {
	OnTimeMinutes int // <= esto: allow
	WindowMinutes int // <= esto: warn_late; > esto: force_missed
}

func DefaultLatePolicy() LatePolicy {
	return LatePolicy{
		OnTimeMinutes: DefaultOnTimeMinutes,
		WindowMinutes: DefaultLateWindowMinutes,
	}
}

func (p LatePolicy) normalized() LatePolicy {
	if p.OnTimeMinutes <= 0 {
		p.OnTimeMinutes = DefaultOnTimeMinutes
	}
	if p.WindowMinutes <= 0 {
		p.WindowMinutes = DefaultLateWindowMinutes
	}
	return p
}

// Evaluate clasifica un intento de registrar taken con minutesLate de retraso.
// Un registro adelantado (minutesLate < 0) cuenta como a tiempo.
func (p LatePolicy) Evaluate(minutesLate int) LateVerdict {
	p = p.normalized()
	if minutesLate < 0 {
		minutesLate = 0
	}

	switch {
	case minutesLate <= p.OnTimeMinutes:
		return LateVerdict{Decision: LateAllow, MinutesLate: minutesLate}
	case minutesLate <= p.WindowMinutes:
		return LateVerdict{Decision: LateWarn, MinutesLate: minutesLate, TakenLate: true}
	default:
		return LateVerdict{Decision: LateForceMissed, MinutesLate: minutesLate}
	}
}

// EvaluateLateLogging es la forma corta con el umbral de puntualidad por defecto.
func EvaluateLateLogging(minutesLate, windowMinutes int) LateDecision {
	return LatePolicy{OnTimeMinutes: DefaultOnTimeMinutes, WindowMinutes: windowMinutes}.Evaluate(minutesLate).Decision
}

package domain

import "time"

// Scope separa las audiencias para las que se publica un pick. Cada scope
// lleva como mucho un pick bloqueado por día natural.
type Scope string

const (
	// ScopeGeneral es el pick del día gratuito y público.
	ScopeGeneral Scope = "general"
	// ScopePremium es el pick de suscriptores autenticados. Es el scope
	// secundario: su selección no puede compartir participante con el pick
	// bloqueado a la vez en el scope general.
	ScopePremium Scope = "premium"
)

// Scopes lista todas las audiencias en orden de generación: el scope general
// primero para que el premium pueda aplicar su exclusión de correlación.
var Scopes = []Scope{ScopeGeneral, ScopePremium}

// PickStatus es el estado del ciclo de vida del pick. Un pick nace pendiente
// y pasa a exactamente un estado terminal al liquidarse.
type PickStatus string

const (
	StatusPending PickStatus = "pending"
	StatusWin     PickStatus = "win"
	StatusLoss    PickStatus = "loss"
	StatusPush    PickStatus = "push"
	StatusVoid    PickStatus = "void"
)

// Terminal indica si el estado es un final liquidado.
func (s PickStatus) Terminal() bool {
	return s == StatusWin || s == StatusLoss || s == StatusPush || s == StatusVoid
}

// LockReason registra por qué el guard de estabilidad admitió (o readmitió)
// el cálculo que produjo un pick.
type LockReason string

const (
	LockParticipantsConfirmed LockReason = "participants-confirmed"
	LockLineupsPosted         LockReason = "lineups-posted"
	LockManual                LockReason = "manual"
)

// Pick es una recomendación publicada. El bloqueo fija nota, scores y
// justificación en el momento en que el guard de estabilidad lo admite; solo
// Status, WinAmount y SettledAt cambian después.
type Pick struct {
	ID             string
	Scope          Scope
	Day            string // día natural para el que se publicó, "2006-01-02"
	EventKey       string // identidad canónica del evento
	EventID        string // identificador del catálogo, para el matching exacto en settlement
	Sport          string
	HomeTeam       string
	AwayTeam       string
	Selection      string
	MarketType     MarketType
	Price          int     // cuota americana al bloquear
	Line           float64 // línea de spread/total al bloquear
	Units          float64 // stake de referencia
	Scores         FactorScoreSet
	Grade          Grade
	Confidence     float64 // suma ponderada que respalda la nota, 0..100
	Rationale      string
	LowQuality     bool // publicado como mejor disponible por debajo de la nota mínima
	Status         PickStatus
	LockedAt       time.Time
	LockReason     LockReason
	EventStartTime time.Time
	CreatedAt      time.Time
	WinAmount      float64
	SettledAt      *time.Time
}

// Settled indica si el pick alcanzó un estado terminal.
func (p Pick) Settled() bool {
	return p.Status.Terminal()
}

// PairKey devuelve el par de participantes normalizado del pick, para el
// matching de fallback en settlement.
func (p Pick) PairKey() string {
	return NormalizeTeam(p.AwayTeam) + "@" + NormalizeTeam(p.HomeTeam)
}

// DayKey formatea un instante como día natural en la localización dada.
// Toda la unicidad (scope, día) se define sobre esta clave.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// StabilityRecord es el estado de lock por evento que mantiene el guard de
// estabilidad. Uno a uno con un pick bloqueado mientras ese pick está activo.
type StabilityRecord struct {
	EventKey  string
	Grade     Grade
	Reason    LockReason
	LockedAt  time.Time // primer lock para este evento
	UpdatedAt time.Time // último recálculo admitido
}

// Age devuelve cuánto hace que el registro se actualizó por última vez.
func (r StabilityRecord) Age(now time.Time) time.Duration {
	return now.Sub(r.UpdatedAt)
}

// StabilityStats es la instantánea de observabilidad sobre los registros de
// estabilidad vivos.
type StabilityStats struct {
	Count   int
	Under1h int
	Under4h int
	Over4h  int
}

package domain

import (
	"fmt"
	"strings"
	"time"
)

// MarketType identifica el mercado al que se refiere una cotización o un pick.
type MarketType string

const (
	MarketMoneyline MarketType = "moneyline"
	MarketSpread    MarketType = "spread"
	MarketTotal     MarketType = "total"
)

// Quote es una selección con precio sobre un evento.
type Quote struct {
	MarketType MarketType
	Selection  string  // nombre del equipo, u "over"/"under" en totales
	Price      int     // cuota americana
	Line       float64 // línea local con signo en spreads, total en totales, 0 en moneyline
}

// CandidateEvent es un evento del pool de candidatos del día.
// Inmutable una vez ingerido para un ciclo dado.
type CandidateEvent struct {
	EventID     string // identificador asignado por el feed
	Sport       string
	HomeTeam    string
	AwayTeam    string
	StartTime   time.Time
	Venue       string
	HomeStarter string // abridor/titular confirmado, "" = sin confirmar
	AwayStarter string
	LineupsAt   *time.Time // cuándo se publicaron las alineaciones, nil = todavía no
	Quotes      []Quote
}

// keyZone ancla el componente de fecha de las claves de evento. Los feeds
// reportan horas en UTC, y un partido nocturno en EEUU cruza la medianoche
// UTC con facilidad: dos feeds con deriva de un par de horas caerían en
// fechas UTC distintas y romperían la convergencia de la clave. Una zona de
// referencia fija por la tarde americana evita ese corte.
var keyZone = time.FixedZone("key", -6*60*60)

// Key devuelve la identidad canónica interna del evento: deporte más
// participantes normalizados más fecha de inicio. Feeds independientes que
// discrepan en EventID convergen igualmente en la misma Key, así que todo lo
// posterior a la ingesta casa sobre ella.
func (e CandidateEvent) Key() string {
	return EventKey(e.Sport, e.AwayTeam, e.HomeTeam, e.StartTime)
}

// EventKey construye la identidad canónica del evento desde sus componentes.
func EventKey(sport, away, home string, start time.Time) string {
	return fmt.Sprintf("%s|%s@%s|%s",
		strings.ToLower(sport),
		NormalizeTeam(away),
		NormalizeTeam(home),
		start.In(keyZone).Format("2006-01-02"),
	)
}

// NormalizeTeam pasa el nombre del participante a minúsculas y elimina
// puntuación y espacios, de modo que el mismo equipo genere la misma clave
// en todos los feeds.
func NormalizeTeam(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParticipantsConfirmed indica si ambos titulares son conocidos.
// Es el mínimo que el guard de estabilidad exige antes de un primer lock.
func (e CandidateEvent) ParticipantsConfirmed() bool {
	return e.HomeStarter != "" && e.AwayStarter != ""
}

// LineupsPosted indica si las alineaciones completas ya están disponibles.
func (e CandidateEvent) LineupsPosted() bool {
	return e.LineupsAt != nil
}

// HasParticipant indica si el equipo dado juega este evento.
func (e CandidateEvent) HasParticipant(team string) bool {
	n := NormalizeTeam(team)
	return NormalizeTeam(e.HomeTeam) == n || NormalizeTeam(e.AwayTeam) == n
}

// QuoteFor devuelve la primera cotización del mercado indicado, o false.
func (e CandidateEvent) QuoteFor(mt MarketType) (Quote, bool) {
	for _, q := range e.Quotes {
		if q.MarketType == mt {
			return q, true
		}
	}
	return Quote{}, false
}

// Started indica si el evento ya comenzó en el instante dado.
func (e CandidateEvent) Started(now time.Time) bool {
	return !now.Before(e.StartTime)
}

// TeamForm es la forma reciente de un participante en ventana móvil.
type TeamForm struct {
	WinPctLast10  float64 // 0..1
	ScoringMargin float64 // diferencial medio de puntos en la ventana
	Streak        int     // positivo = racha ganadora, negativo = perdedora
}

// Enrichment lleva las señales opcionales que consume el scorer de factores.
// Un campo nil significa que el feed no tenía nada; el scorer sustituye un
// neutro y degrada la confianza del sistema en vez de fallar.
type Enrichment struct {
	HomeForm    *TeamForm
	AwayForm    *TeamForm
	StarterEdge *float64 // -1..1, positivo favorece al abridor local
	VenueFactor *float64 // multiplicador de anotación, 1.0 = estadio neutro
}

// MissingCount devuelve cuántas señales de enriquecimiento faltan.
func (en Enrichment) MissingCount() int {
	n := 0
	if en.HomeForm == nil {
		n++
	}
	if en.AwayForm == nil {
		n++
	}
	if en.StarterEdge == nil {
		n++
	}
	if en.VenueFactor == nil {
		n++
	}
	return n
}

// SettlementResult es un marcador final del feed de resultados. EventID es el
// identificador propio del feed y puede no coincidir con el del catálogo; por
// eso el motor de settlement cae a casar por participantes.
type SettlementResult struct {
	EventID   string
	Sport     string
	HomeTeam  string
	AwayTeam  string
	HomeScore int
	AwayScore int
	StartTime time.Time
}

// Key devuelve la identidad canónica del evento terminado.
func (r SettlementResult) Key() string {
	return EventKey(r.Sport, r.AwayTeam, r.HomeTeam, r.StartTime)
}

// PairKey devuelve el par de participantes normalizado, segunda estrategia de
// matching cuando los identificadores difieren entre feeds.
func (r SettlementResult) PairKey() string {
	return NormalizeTeam(r.AwayTeam) + "@" + NormalizeTeam(r.HomeTeam)
}

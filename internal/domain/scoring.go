package domain

import (
	"math"
	"math/rand"
)

// FactorScoreSet contiene los seis sub-scores normalizados 0–100 que hay
// detrás de una nota.
type FactorScoreSet struct {
	Offense     float64 // producción ofensiva del lado seleccionado
	Matchup     float64 // fuerza del duelo de abridores/posiciones
	Situational float64 // ventajas de estadio, localía y calendario
	Momentum    float64 // tendencia de forma reciente
	MarketEdge  float64 // brecha entre probabilidad del modelo y la del precio
	Confidence  float64 // calidad de los insumos tras los otros cinco
}

// Named devuelve los scores de factor indexados por nombre visible.
func (f FactorScoreSet) Named() map[string]float64 {
	return map[string]float64{
		"offense":     f.Offense,
		"matchup":     f.Matchup,
		"situational": f.Situational,
		"momentum":    f.Momentum,
		"market edge": f.MarketEdge,
		"confidence":  f.Confidence,
	}
}

// Neutros que se sustituyen cuando falta una señal de enriquecimiento. La
// sustitución es silenciosa a nivel de factor; cada señal ausente degrada en
// cambio el score de confianza.
var (
	neutralForm        = TeamForm{WinPctLast10: 0.5, ScoringMargin: 0, Streak: 0}
	neutralStarterEdge = 0.0
	neutralVenueFactor = 1.0
)

const (
	// jitterSpan es el ruido acotado que se añade dentro de la banda: ±3
	// puntos. Los scores siguen siendo reproducibles a nivel de banda y a la
	// vez entradas parecidas no producen salidas idénticas byte a byte.
	jitterSpan = 3.0

	// confidencePenaltyPerMissing es lo que cuesta una señal de
	// enriquecimiento ausente sobre la métrica cruda de confianza 0..1.
	confidencePenaltyPerMissing = 0.18
)

// band es un bucket de cuantización: las métricas crudas por debajo de max
// (exclusivo) caen en la banda y puntúan dentro de [lo, hi].
type band struct {
	max    float64
	lo, hi float64
}

// Cada factor tiene su propia tabla. Los límites y anchos difieren por factor
// porque las métricas subyacentes tienen formas distintas: el market edge se
// concentra fuertemente en torno a cero, el momentum es más o menos
// simétrico, la confianza solo degrada desde una base con datos completos.

// offenseBands trocea la métrica ofensiva combinada del lado seleccionado
// (margen por partido más tasa de victorias reciente ponderada, aprox -8..+8).
var offenseBands = []band{
	{max: -5.0, lo: 5, hi: 18},
	{max: -2.5, lo: 19, hi: 34},
	{max: -0.8, lo: 35, hi: 47},
	{max: 0.8, lo: 48, hi: 58},
	{max: 2.5, lo: 59, hi: 71},
	{max: 5.0, lo: 72, hi: 86},
	{max: math.Inf(1), lo: 87, hi: 98},
}

// matchupBands trocea el edge de abridor con signo (-1..+1 hacia la selección).
var matchupBands = []band{
	{max: -0.6, lo: 8, hi: 20},
	{max: -0.3, lo: 21, hi: 36},
	{max: -0.1, lo: 37, hi: 48},
	{max: 0.1, lo: 49, hi: 57},
	{max: 0.3, lo: 58, hi: 70},
	{max: 0.6, lo: 71, hi: 84},
	{max: math.Inf(1), lo: 85, hi: 97},
}

// situationalBands trocea el entorno anotador del estadio más la localía
// (aprox -2..+3).
var situationalBands = []band{
	{max: -1.2, lo: 15, hi: 30},
	{max: -0.4, lo: 31, hi: 44},
	{max: 0.4, lo: 45, hi: 55},
	{max: 1.2, lo: 56, hi: 68},
	{max: 2.0, lo: 69, hi: 82},
	{max: math.Inf(1), lo: 83, hi: 95},
}

// momentumBands trocea la métrica de racha y tendencia (aprox -6..+6),
// simétrica en torno a cero.
var momentumBands = []band{
	{max: -4.0, lo: 10, hi: 22},
	{max: -2.0, lo: 23, hi: 37},
	{max: -0.5, lo: 38, hi: 48},
	{max: 0.5, lo: 49, hi: 56},
	{max: 2.0, lo: 57, hi: 69},
	{max: 4.0, lo: 70, hi: 83},
	{max: math.Inf(1), lo: 84, hi: 96},
}

// edgeBands trocea la brecha de probabilidad (modelo menos precio).
// Estrecha cerca de cero, donde vive casi todo candidato, ancha en las colas:
// un edge de 4 puntos ya es raro y pasado 8 es excepcional.
var edgeBands = []band{
	{max: -0.04, lo: 5, hi: 18},
	{max: -0.015, lo: 19, hi: 35},
	{max: 0.0, lo: 36, hi: 47},
	{max: 0.015, lo: 48, hi: 60},
	{max: 0.04, lo: 61, hi: 75},
	{max: 0.08, lo: 76, hi: 89},
	{max: math.Inf(1), lo: 90, hi: 99},
}

// confidenceBands trocea la métrica de calidad de datos 0..1.
var confidenceBands = []band{
	{max: 0.25, lo: 10, hi: 24},
	{max: 0.45, lo: 25, hi: 42},
	{max: 0.60, lo: 43, hi: 55},
	{max: 0.75, lo: 56, hi: 68},
	{max: 0.90, lo: 69, hi: 82},
	{max: math.Inf(1), lo: 83, hi: 96},
}

// Scorer convierte las señales crudas de un evento en un FactorScoreSet.
// Función pura de sus entradas más la fuente aleatoria inyectada; una semilla
// fija hace reproducible todo el camino de scoring bajo test.
type Scorer struct {
	rnd *rand.Rand
}

// NewScorer crea un Scorer que extrae el jitter de banda de rnd.
func NewScorer(rnd *rand.Rand) *Scorer {
	return &Scorer{rnd: rnd}
}

// Score produce los seis scores de factor para una selección en un evento.
// El enriquecimiento ausente nunca hace fallar la llamada: se sustituyen
// neutros y el factor de confianza absorbe la degradación.
func (s *Scorer) Score(ev CandidateEvent, q Quote, en Enrichment) FactorScoreSet {
	homeForm, awayForm := neutralForm, neutralForm
	if en.HomeForm != nil {
		homeForm = *en.HomeForm
	}
	if en.AwayForm != nil {
		awayForm = *en.AwayForm
	}
	starterEdge := neutralStarterEdge
	if en.StarterEdge != nil {
		starterEdge = *en.StarterEdge
	}
	venue := neutralVenueFactor
	if en.VenueFactor != nil {
		venue = *en.VenueFactor
	}

	side := selectionSide(ev, q)

	offRaw := offenseRaw(side, homeForm, awayForm)
	matchRaw := matchupRaw(side, starterEdge)
	sitRaw := situationalRaw(side, venue)
	momRaw := momentumRaw(side, homeForm, awayForm)
	edgeRaw := edgeRaw(q, offRaw, matchRaw, momRaw)
	confRaw := confidenceRaw(ev, en)

	return FactorScoreSet{
		Offense:     s.quantize(offRaw, offenseBands),
		Matchup:     s.quantize(matchRaw, matchupBands),
		Situational: s.quantize(sitRaw, situationalBands),
		Momentum:    s.quantize(momRaw, momentumBands),
		MarketEdge:  s.quantize(edgeRaw, edgeBands),
		Confidence:  s.quantize(confRaw, confidenceBands),
	}
}

// quantize lleva una métrica cruda a su banda, toma el punto medio y añade
// jitter acotado, recortado para que el resultado nunca salga de la banda.
func (s *Scorer) quantize(raw float64, bands []band) float64 {
	b := bands[len(bands)-1]
	for _, cand := range bands {
		if raw < cand.max {
			b = cand
			break
		}
	}

	mid := (b.lo + b.hi) / 2
	score := mid + (s.rnd.Float64()*2-1)*jitterSpan
	if score < b.lo {
		score = b.lo
	}
	if score > b.hi {
		score = b.hi
	}
	return math.Round(score*10) / 10
}

// pickSide resuelve qué lado del evento selecciona una cotización: spreads y
// moneylines escogen equipo, totales escogen over/under.
type pickSide int

const (
	sideHome pickSide = iota
	sideAway
	sideOver
	sideUnder
)

func selectionSide(ev CandidateEvent, q Quote) pickSide {
	switch {
	case q.MarketType == MarketTotal && NormalizeTeam(q.Selection) == "under":
		return sideUnder
	case q.MarketType == MarketTotal:
		return sideOver
	case NormalizeTeam(q.Selection) == NormalizeTeam(ev.AwayTeam):
		return sideAway
	default:
		return sideHome
	}
}

// offenseRaw mezcla margen anotador y tasa de victorias reciente del lado
// seleccionado. Los totales usan el entorno anotador combinado de ambos
// equipos: el over quiere carreras, el under lo contrario.
func offenseRaw(side pickSide, home, away TeamForm) float64 {
	formMetric := func(f TeamForm) float64 {
		return f.ScoringMargin + (f.WinPctLast10-0.5)*6
	}
	switch side {
	case sideHome:
		return formMetric(home) - formMetric(away)*0.4
	case sideAway:
		return formMetric(away) - formMetric(home)*0.4
	case sideOver:
		return (home.ScoringMargin + away.ScoringMargin) * 0.8
	default: // sideUnder
		return -(home.ScoringMargin + away.ScoringMargin) * 0.8
	}
}

// matchupRaw orienta el edge de abridor hacia la selección. Un abridor fuerte
// en cualquiera de los lados suprime la anotación, lo que favorece al under.
func matchupRaw(side pickSide, starterEdge float64) float64 {
	switch side {
	case sideHome:
		return starterEdge
	case sideAway:
		return -starterEdge
	case sideUnder:
		return math.Abs(starterEdge) * 0.7
	default: // sideOver
		return -math.Abs(starterEdge) * 0.7
	}
}

// homeFieldEdge es el crédito situacional plano por jugar en casa.
const homeFieldEdge = 0.6

// situationalRaw combina el entorno anotador del estadio con la localía.
func situationalRaw(side pickSide, venue float64) float64 {
	env := (venue - 1.0) * 10 // park factor 1.08 → +0.8
	switch side {
	case sideHome:
		return homeFieldEdge + env*0.3
	case sideAway:
		return -homeFieldEdge*0.5 + env*0.2
	case sideOver:
		return env
	default: // sideUnder
		return -env
	}
}

// momentumRaw es longitud de racha más tendencia de victorias del lado
// seleccionado.
func momentumRaw(side pickSide, home, away TeamForm) float64 {
	trend := func(f TeamForm) float64 {
		return float64(f.Streak)*0.6 + (f.WinPctLast10-0.5)*5
	}
	switch side {
	case sideHome:
		return trend(home)
	case sideAway:
		return trend(away)
	case sideOver:
		return (trend(home) + trend(away)) * 0.3
	default: // sideUnder
		return -(trend(home) + trend(away)) * 0.3
	}
}

// edgeRaw es la métrica de ineficiencia de mercado: la brecha entre la
// probabilidad implícita del modelo (una logística sobre los raws no de
// mercado) y la que implica el precio cotizado.
func edgeRaw(q Quote, offRaw, matchRaw, momRaw float64) float64 {
	composite := offRaw*0.5 + matchRaw*3.0 + momRaw*0.4
	modelProb := 1.0 / (1.0 + math.Exp(-composite/4.0))
	return modelProb - ImpliedProbability(q.Price)
}

// confidenceRaw parte de una base con datos completos y pierde terreno por
// cada señal de enriquecimiento ausente y por entradas sin confirmar.
func confidenceRaw(ev CandidateEvent, en Enrichment) float64 {
	raw := 0.95
	raw -= float64(en.MissingCount()) * confidencePenaltyPerMissing
	if !ev.ParticipantsConfirmed() {
		raw -= 0.20
	}
	if ev.LineupsPosted() {
		raw += 0.05
	}
	if len(ev.Quotes) == 0 {
		raw -= 0.25
	}
	if raw < 0 {
		raw = 0
	}
	if raw > 1 {
		raw = 1
	}
	return raw
}

package domain

// Grade es la etiqueta ordinal de calidad de un pick, de A+ a F.
type Grade string

// Pesos por factor. Market edge pesa más que el resto: es el único factor
// ligado directamente al valor esperado.
const (
	WeightOffense     = 0.15
	WeightMatchup     = 0.15
	WeightSituational = 0.15
	WeightMomentum    = 0.15
	WeightMarketEdge  = 0.25
	WeightConfidence  = 0.15
)

// gradeThresholds mapea la suma ponderada a la escalera de 12 notas. Orden
// descendente; gana el primer umbral igual o inferior a la suma.
var gradeThresholds = []struct {
	min   float64
	grade Grade
}{
	{88, "A+"},
	{82, "A"},
	{77, "A-"},
	{72, "B+"},
	{67, "B"},
	{62, "B-"},
	{57, "C+"},
	{52, "C"},
	{47, "C-"},
	{42, "D+"},
	{36, "D"},
	{0, "F"},
}

// WeightedSum calcula el score combinado que respalda la nota.
func (f FactorScoreSet) WeightedSum() float64 {
	return f.Offense*WeightOffense +
		f.Matchup*WeightMatchup +
		f.Situational*WeightSituational +
		f.Momentum*WeightMomentum +
		f.MarketEdge*WeightMarketEdge +
		f.Confidence*WeightConfidence
}

// thresholdEpsilon absorbe el error de acumulación en float64: una suma
// matemáticamente igual al umbral (seis términos que suman 82.0 exacto) puede
// quedar en 81.999999999999986 y no debe bajar de nota por eso.
const thresholdEpsilon = 1e-9

// ComputeGrade asigna a un FactorScoreSet su nota y la suma ponderada de la
// que se deriva. Determinista dados los scores; nunca se recalcula tras el lock.
func ComputeGrade(f FactorScoreSet) (Grade, float64) {
	sum := f.WeightedSum()
	for _, t := range gradeThresholds {
		if sum >= t.min-thresholdEpsilon {
			return t.grade, sum
		}
	}
	return "F", sum
}

// gradeRanks ordena las notas para comparación, mayor es mejor.
var gradeRanks = map[Grade]int{
	"F": 0, "D": 1, "D+": 2, "C-": 3, "C": 4, "C+": 5,
	"B-": 6, "B": 7, "B+": 8, "A-": 9, "A": 10, "A+": 11,
}

// Rank devuelve la posición de la nota en la escalera; una nota desconocida
// cuenta como F.
func (g Grade) Rank() int {
	return gradeRanks[g]
}

// AtLeast indica si g es igual o mejor que other.
func (g Grade) AtLeast(other Grade) bool {
	return g.Rank() >= other.Rank()
}

// ValidGrade indica si s es una de las 12 notas de la escalera.
func ValidGrade(s string) bool {
	_, ok := gradeRanks[Grade(s)]
	return ok
}

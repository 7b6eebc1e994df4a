package domain

// Matemática de resultados compartida por el motor de settlement y el factor
// de market edge. Todas las funciones son puras; la persistencia es cosa del
// motor de settlement.

// ImpliedProbability convierte una cuota americana en la probabilidad que el
// precio implica, vig incluido.
func ImpliedProbability(price int) float64 {
	if price == 0 {
		return 0.5
	}
	if price > 0 {
		return 100.0 / (float64(price) + 100.0)
	}
	p := float64(-price)
	return p / (p + 100.0)
}

// WinAmount calcula el pago en unidades de un pick liquidado.
// La victoria paga el retorno de la cuota americana sobre el stake, la
// derrota cuesta el stake, el push lo devuelve.
func WinAmount(status PickStatus, price int, units float64) float64 {
	switch status {
	case StatusWin:
		if price > 0 {
			return float64(price) / 100.0 * units
		}
		if price < 0 {
			return 100.0 / float64(-price) * units
		}
		return units
	case StatusLoss:
		return -units
	default: // push, void, pendiente
		return 0
	}
}

// SettleMoneyline liquida una selección de moneyline contra un marcador
// final. Un empate es push sea cual sea el deporte; los llamantes de
// GradePick son el único sitio donde iría un override por deporte.
func SettleMoneyline(selection, homeTeam string, homeScore, awayScore int) PickStatus {
	if homeScore == awayScore {
		return StatusPush
	}
	homeWon := homeScore > awayScore
	pickedHome := NormalizeTeam(selection) == NormalizeTeam(homeTeam)
	if pickedHome == homeWon {
		return StatusWin
	}
	return StatusLoss
}

// SettleSpread liquida una selección de spread. Line es la línea local con
// signo; el marcador local se ajusta con ella antes de comparar. La igualdad
// exacta tras el ajuste es push.
func SettleSpread(selection, homeTeam string, line float64, homeScore, awayScore int) PickStatus {
	adjHome := float64(homeScore) + line
	if adjHome == float64(awayScore) {
		return StatusPush
	}
	homeCovered := adjHome > float64(awayScore)
	pickedHome := NormalizeTeam(selection) == NormalizeTeam(homeTeam)
	if pickedHome == homeCovered {
		return StatusWin
	}
	return StatusLoss
}

// SettleTotal liquida una selección over/under contra el marcador combinado.
// Caer exactamente en la línea es push.
func SettleTotal(selection string, line float64, homeScore, awayScore int) PickStatus {
	total := float64(homeScore + awayScore)
	if total == line {
		return StatusPush
	}
	over := total > line
	pickedOver := NormalizeTeam(selection) != "under"
	if pickedOver == over {
		return StatusWin
	}
	return StatusLoss
}

// GradePick aplica la regla de settlement del mercado correspondiente y
// devuelve el estado terminal más el pago en unidades.
func GradePick(p Pick, r SettlementResult) (PickStatus, float64) {
	var status PickStatus
	switch p.MarketType {
	case MarketSpread:
		status = SettleSpread(p.Selection, p.HomeTeam, p.Line, r.HomeScore, r.AwayScore)
	case MarketTotal:
		status = SettleTotal(p.Selection, p.Line, r.HomeScore, r.AwayScore)
	default:
		status = SettleMoneyline(p.Selection, p.HomeTeam, r.HomeScore, r.AwayScore)
	}
	return status, WinAmount(status, p.Price, p.Units)
}

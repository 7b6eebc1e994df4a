// Package notify pinta la salida del engine en consola.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/pickbot/internal/domain"
)

// Console implementa ports.Notifier. Salida compacta de una línea por
// defecto, ficha completa con tabla de factores en modo tabla.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// PickPublished imprime el pick recién bloqueado.
func (c *Console) PickPublished(_ context.Context, p domain.Pick) error {
	if !c.table {
		c.printCompact(p)
		return nil
	}
	c.printCard(p)
	return nil
}

// PicksSettled imprime una tabla resumen del settlement.
func (c *Console) PicksSettled(_ context.Context, picks []domain.Pick) error {
	if len(picks) == 0 {
		return nil
	}

	now := time.Now().Format("15:04:05")
	var net float64
	wins, losses, pushes := 0, 0, 0
	for _, p := range picks {
		net += p.WinAmount
		switch p.Status {
		case domain.StatusWin:
			wins++
		case domain.StatusLoss:
			losses++
		case domain.StatusPush:
			pushes++
		}
	}

	fmt.Fprintf(c.out, "\n[%s] settled %d picks — W:%d L:%d P:%d net %+.2fu\n",
		now, len(picks), wins, losses, pushes, net)

	table := tablewriter.NewWriter(c.out)
	table.Header("Scope", "Day", "Selection", "Market", "Price", "Grade", "Result", "Units")

	for _, p := range picks {
		table.Append(
			string(p.Scope),
			p.Day,
			truncate(p.Selection, 24),
			string(p.MarketType),
			fmt.Sprintf("%+d", p.Price),
			string(p.Grade),
			strings.ToUpper(string(p.Status)),
			fmt.Sprintf("%+.2f", p.WinAmount),
		)
	}
	table.Render()
	return nil
}

// printCompact imprime lo esencial en una línea.
func (c *Console) printCompact(p domain.Pick) {
	now := time.Now().Format("15:04:05")
	flag := ""
	if p.LowQuality {
		flag = " [LOW-QUALITY]"
	}
	fmt.Fprintf(c.out, "[%s] %s pick: %s %s %+d → %s (%.1f)%s\n",
		now, p.Scope, truncate(p.Selection, 24), p.MarketType, p.Price,
		p.Grade, p.Confidence, flag)
}

// printCard imprime la ficha completa del pick con el desglose de factores.
func (c *Console) printCard(p domain.Pick) {
	fmt.Fprintf(c.out, "\n=== %s PICK — %s ===\n", strings.ToUpper(string(p.Scope)), p.Day)
	fmt.Fprintf(c.out, "%s @ %s, starts %s\n",
		p.AwayTeam, p.HomeTeam, p.EventStartTime.Format("Jan 2 15:04 MST"))
	fmt.Fprintf(c.out, "Selection: %s (%s", p.Selection, p.MarketType)
	if p.MarketType != domain.MarketMoneyline {
		fmt.Fprintf(c.out, " %+.1f", p.Line)
	}
	fmt.Fprintf(c.out, " %+d) — grade %s, locked on %s\n", p.Price, p.Grade, p.LockReason)
	if p.LowQuality {
		fmt.Fprintln(c.out, "⚠ published below minimum grade (best available)")
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Factor", "Score")
	table.Append("offensive production", fmt.Sprintf("%.1f", p.Scores.Offense))
	table.Append("matchup strength", fmt.Sprintf("%.1f", p.Scores.Matchup))
	table.Append("situational edge", fmt.Sprintf("%.1f", p.Scores.Situational))
	table.Append("recent momentum", fmt.Sprintf("%.1f", p.Scores.Momentum))
	table.Append("market inefficiency", fmt.Sprintf("%.1f", p.Scores.MarketEdge))
	table.Append("system confidence", fmt.Sprintf("%.1f", p.Scores.Confidence))
	table.Append("weighted", fmt.Sprintf("%.1f", p.Confidence))
	table.Render()

	fmt.Fprintf(c.out, "%s\n\n", p.Rationale)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/polyagent/internal/domain"
)

// Console implementa ports.Reporter.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un reporter que escribe a stdout. Con table=false imprime
// una línea compacta por ciclo.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un reporter para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// ReportCycle imprime el resumen del ciclo en el modo configurado.
func (c *Console) ReportCycle(_ context.Context, s domain.CycleSummary, h domain.HealthReport) error {
	if c.table {
		c.printFull(s, h)
	} else {
		c.printCompact(s, h)
	}
	return nil
}

// printCompact imprime lo esencial en una línea.
func (c *Console) printCompact(s domain.CycleSummary, h domain.HealthReport) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] #%d %s bank $%.2f (%s) | scan:%d est:%d sig:%d fill:%d kill:%d | api $%.4f | runway %d",
		s.StartedAt.Format("15:04:05"), s.Cycle, s.Status,
		s.BankrollAfter, signedUSD(s.BankrollDelta()),
		s.Scanned, s.Estimated, s.Signals, s.Filled, s.Killed,
		s.OracleCostUSD, h.RunwayCycles)

	shown := 0
	for _, t := range s.Trades {
		if shown >= 3 {
			break
		}
		fmt.Fprintf(&sb, " | %s %s $%.2f %s", t.Direction.Outcome(), compactName(t.Question, 25), t.StakeUSD, t.Status)
		shown++
	}
	fmt.Fprintln(c.out, sb.String())
}

// printFull imprime la tabla de trades, los rechazos y el estado de salud.
func (c *Console) printFull(s domain.CycleSummary, h domain.HealthReport) {
	fmt.Fprintf(c.out, "\n[%s] cycle #%d (%s) %s\n",
		s.StartedAt.Format("15:04:05"), s.Cycle, s.Duration.Round(time.Millisecond), s.Status)
	fmt.Fprintf(c.out, "  scanned %d → candidates %d → enriched %d → estimated %d (%d failed) → signals %d\n",
		s.Scanned, s.Candidates, s.Enriched, s.Estimated, s.EstimateFailures, s.Signals)

	if len(s.Trades) > 0 {
		c.printTrades(s.Trades)
	} else {
		fmt.Fprintln(c.out, "  no trades this cycle")
	}

	if len(s.Rejections) > 0 {
		fmt.Fprintf(c.out, "  rejected: %s\n", rejectionLine(s.Rejections))
	}
	if s.Resolved > 0 {
		fmt.Fprintf(c.out, "  resolved positions: %d\n", s.Resolved)
	}

	fmt.Fprintf(c.out, "  bankroll: $%.2f → $%.2f (%s)  oracle cost: $%.4f\n",
		s.BankrollBefore, s.BankrollAfter, signedUSD(s.BankrollDelta()), s.OracleCostUSD)
	c.printHealth(h)
	fmt.Fprintln(c.out)
}

// printTrades imprime una fila por orden enviada.
func (c *Console) printTrades(trades []domain.TradeLine) {
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Market", "Side", "Edge", "Conf", "Kelly", "Stake", "Avg", "Shares", "Status")

	for i, t := range trades {
		avg, shares := "-", "-"
		if t.Status == domain.FillFilled {
			avg = fmt.Sprintf("%.4f", t.AvgPrice)
			shares = fmt.Sprintf("%.2f", t.Shares)
		}
		table.Append(
			fmt.Sprintf("%d", i+1),
			truncate(t.Question, 40),
			t.Direction.Outcome(),
			fmt.Sprintf("%+.1f%%", t.Edge*100),
			fmt.Sprintf("%.2f", t.Confidence),
			fmt.Sprintf("%.2f%%", t.Fraction*100),
			fmt.Sprintf("$%.2f", t.StakeUSD),
			avg,
			shares,
			string(t.Status),
		)
	}
	table.Render()
}

func (c *Console) printHealth(h domain.HealthReport) {
	fmt.Fprintf(c.out, "  health: %s  net $%.2f  realized $%.2f  api $%.2f  exposure $%.2f (%d open, %d pending)\n",
		h.Status, h.NetProfit, h.RealizedPnL, h.APICost, h.OpenExposure, h.OpenPositions, h.Pending)
	fmt.Fprintf(c.out, "  record: %d filled / %d killed  W:%d L:%d  runway: %d cycles  uptime: %s\n",
		h.TradesFilled, h.TradesKilled, h.Wins, h.Losses, h.RunwayCycles, h.Uptime.Round(time.Second))
}

// ReportDeath imprime el resumen final.
func (c *Console) ReportDeath(_ context.Context, h domain.HealthReport) error {
	fmt.Fprintf(c.out, "\n╔══════════════════════════════════════════════╗\n")
	fmt.Fprintf(c.out, "║  AGENT DEAD - bankroll below survival floor  ║\n")
	fmt.Fprintf(c.out, "╚══════════════════════════════════════════════╝\n\n")

	table := tablewriter.NewWriter(c.out)
	table.Header("Metric", "Value")
	table.Append("Cycles survived", fmt.Sprintf("%d", h.Cycle))
	table.Append("Uptime", h.Uptime.Round(time.Second).String())
	table.Append("Starting bankroll", fmt.Sprintf("$%.2f", h.Starting))
	table.Append("Final bankroll", fmt.Sprintf("$%.2f", h.Bankroll))
	table.Append("Net", signedUSD(h.NetProfit))
	table.Append("Realized P&L", signedUSD(h.RealizedPnL))
	table.Append("Oracle cost", fmt.Sprintf("$%.2f", h.APICost))
	table.Append("Trades filled / killed", fmt.Sprintf("%d / %d", h.TradesFilled, h.TradesKilled))
	table.Append("Wins / losses", fmt.Sprintf("%d / %d", h.Wins, h.Losses))
	table.Append("Open positions", fmt.Sprintf("%d ($%.2f)", h.OpenPositions, h.OpenExposure))
	table.Render()
	fmt.Fprintln(c.out)
	return nil
}

// --- helpers ---

func rejectionLine(r map[domain.RejectReason]int) string {
	reasons := make([]string, 0, len(r))
	for reason := range r {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)

	parts := make([]string, 0, len(reasons))
	for _, reason := range reasons {
		parts = append(parts, fmt.Sprintf("%s=%d", reason, r[domain.RejectReason(reason)]))
	}
	return strings.Join(parts, " ")
}

func signedUSD(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-$%.2f", -v)
	}
	return fmt.Sprintf("+$%.2f", v)
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

// compactName acorta la pregunta quitando el "Will " inicial.
func compactName(s string, maxLen int) string {
	s = strings.TrimPrefix(s, "Will ")
	s = strings.TrimSuffix(s, "?")
	return truncate(s, maxLen)
}

package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"heimdall/internal/app"
	"heimdall/internal/config"
	"heimdall/internal/domain"
	"heimdall/internal/notify"
	"heimdall/internal/templatefmt"

	"github.com/charmbracelet/lipgloss"
)

const (
	colorSuccess lipgloss.Color = "2"
	colorError   lipgloss.Color = "1"
	colorWarning lipgloss.Color = "3"
	colorInfo    lipgloss.Color = "6"
	colorMuted   lipgloss.Color = "8"
)

const (
	symbolSuccess = "✓"
	symbolFail    = "✗"
	symbolWarn    = "!"
	symbolSkipped = "⊘"
)

var (
	okStyle     = lipgloss.NewStyle().Foreground(colorSuccess)
	failStyle   = lipgloss.NewStyle().Foreground(colorError)
	warnStyle   = lipgloss.NewStyle().Foreground(colorWarning)
	headerStyle = lipgloss.NewStyle().Foreground(colorInfo).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
)

// renderSummary prints the per-host outcome of one sweep.
func renderSummary(w io.Writer, summary app.Summary) {
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render("Sweep"), mutedStyle.Render(summary.ID.String()))
	for _, host := range summary.Hosts {
		name := fmt.Sprintf("%s (%s)", host.Server.Nickname, host.Server.Hostname)
		if !host.Reachable() {
			fmt.Fprintf(w, "%s %s: %s\n", failStyle.Render(symbolFail), name, host.Err.Error())
			continue
		}
		symbol := okStyle.Render(symbolSuccess)
		if len(host.Raised) > 0 {
			symbol = warnStyle.Render(symbolWarn)
		}
		fmt.Fprintf(w, "%s %s: %s\n", symbol, name, readingLine(host))
		for _, msg := range host.Raised {
			fmt.Fprintf(w, "    %s %s\n", warnStyle.Render("alert"), msg)
		}
		for _, msg := range host.Resolved {
			fmt.Fprintf(w, "    %s %s\n", okStyle.Render("resolved"), msg)
		}
		for _, msg := range host.Skipped {
			fmt.Fprintf(w, "    %s %s\n", mutedStyle.Render(symbolSkipped), mutedStyle.Render(msg))
		}
	}
	fmt.Fprintf(w, "%s %d %s, %d %s sent, took %s\n",
		headerStyle.Render("Done:"),
		len(summary.Hosts), templatefmt.Plural(len(summary.Hosts), "host", "hosts"),
		summary.Session.Sent, templatefmt.Plural(summary.Session.Sent, "notification", "notifications"),
		summary.Duration().Round(time.Millisecond),
	)
}

func readingLine(host app.HostResult) string {
	parts := []string{
		"cpu " + percentText(host.Report.CPU.Value, host.Report.CPU.OK()),
		"mem " + percentText(host.Report.Memory.Value, host.Report.Memory.OK()),
	}
	for _, disk := range host.Report.Disks {
		parts = append(parts, fmt.Sprintf("%s %.1f%%", disk.Mount, disk.Percent))
	}
	for _, svc := range host.Report.Services {
		parts = append(parts, fmt.Sprintf("%s=%s", svc.Name, svc.State))
	}
	return strings.Join(parts, "  ")
}

func percentText(value float64, ok bool) string {
	if !ok {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", value)
}

// renderHosts prints the inventory as an aligned table.
func renderHosts(w io.Writer, inv config.Inventory) {
	if len(inv.Servers) == 0 {
		fmt.Fprintln(w, "No servers configured. Add one with: heimdall hosts add")
		return
	}
	rows := make([][]string, 0, len(inv.Servers))
	for _, server := range inv.Servers {
		services := "-"
		if len(server.Services) > 0 {
			services = strings.Join(server.Services, ",")
		}
		rows = append(rows, []string{server.Nickname, server.Address(), server.Username, services})
	}
	renderTable(w, []string{"NICKNAME", "ADDRESS", "USER", "SERVICES"}, rows)
}

// renderSubscribers prints Telegram subscribers with their approval state.
func renderSubscribers(w io.Writer, subs []domain.Subscriber) {
	if len(subs) == 0 {
		fmt.Fprintln(w, "No Telegram subscribers yet.")
		return
	}
	rows := make([][]string, 0, len(subs))
	approved := 0
	for _, sub := range subs {
		if sub.Approved {
			approved++
		}
		rows = append(rows, []string{
			strconv.FormatInt(sub.ChatID, 10),
			sub.DisplayName(),
			sub.StatusLabel(),
			templatefmt.FormatTime(sub.SubscribedAt),
		})
	}
	renderTable(w, []string{"CHAT ID", "NAME", "STATUS", "SINCE"}, rows)
	fmt.Fprintf(w, "%d approved, %d pending\n", approved, len(subs)-approved)
}

// renderAlerts prints both ledger partitions.
func renderAlerts(w io.Writer, active, resolved []domain.AlertRecord, now time.Time) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Active alerts (%d)", len(active))))
	if len(active) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("  none"))
	}
	for _, record := range active {
		fmt.Fprintf(w, "  %s %s (%s) [%s] %s, active for %s\n",
			warnStyle.Render(symbolWarn), record.Server, record.Hostname, record.Type, record.Message,
			templatefmt.HumanDuration(now.Sub(record.FirstDetected)))
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Resolved alerts (%d)", len(resolved))))
	if len(resolved) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("  none"))
	}
	for _, record := range resolved {
		at := ""
		if record.ResolvedTime != nil {
			at = templatefmt.FormatTime(*record.ResolvedTime)
		}
		fmt.Fprintf(w, "  %s %s (%s) [%s] %s, resolved %s\n",
			okStyle.Render(symbolSuccess), record.Server, record.Hostname, record.Type, record.Message, at)
	}
}

// renderDelivery prints per-channel outcomes in channel order.
func renderDelivery(w io.Writer, result notify.DeliveryResult) {
	if len(result.Outcomes) == 0 {
		fmt.Fprintln(w, warnStyle.Render("No notification channels are enabled."))
		return
	}
	channels := make([]string, 0, len(result.Outcomes))
	for channel := range result.Outcomes {
		channels = append(channels, channel)
	}
	sort.Strings(channels)
	for _, channel := range channels {
		if err := result.Outcomes[channel]; err != nil {
			fmt.Fprintf(w, "%s %s: %s\n", failStyle.Render(symbolFail), channel, err.Error())
			continue
		}
		fmt.Fprintf(w, "%s %s: delivered\n", okStyle.Render(symbolSuccess), channel)
	}
}

func renderTable(w io.Writer, header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, cell := range header {
		widths[i] = lipgloss.Width(cell)
	}
	for _, row := range rows {
		for i, cell := range row {
			if width := lipgloss.Width(cell); width > widths[i] {
				widths[i] = width
			}
		}
	}
	line := func(cells []string, style lipgloss.Style) {
		padded := make([]string, len(cells))
		for i, cell := range cells {
			padded[i] = cell + strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
		}
		fmt.Fprintln(w, style.Render(strings.TrimRight(strings.Join(padded, "  "), " ")))
	}
	line(header, headerStyle)
	for _, row := range rows {
		line(row, lipgloss.NewStyle())
	}
}

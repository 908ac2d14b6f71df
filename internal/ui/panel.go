package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/jonasfh/picobell/internal/doorbell"
)

// RenderPanel draws the device status panel at the given width.
func RenderPanel(s doorbell.Status, width int) string {
	width = clampWidth(width)

	title := TitleStyle.Render("PICOBELL")
	badge := ModeBadgeStyle(s.Mode.String()).Render(s.Mode.String())
	gap := width - 6 - lipgloss.Width(title) - lipgloss.Width(badge)
	if gap < 1 {
		gap = 1
	}
	top := title + strings.Repeat(" ", gap) + badge

	rows := []string{top, SubtitleStyle.Render(s.DeviceID + "  fw " + s.FirmwareVersion), ""}

	network := "offline"
	if s.Online {
		network = "online"
	}
	rows = append(rows, row("Network", network))
	rows = append(rows, row("Last call", orDash(s.LastCall)))
	if s.WindowActive {
		rows = append(rows, row("Window", FormatDuration(s.WindowRemaining)+" left"))
	}
	if s.PairingName != "" {
		rows = append(rows, row("Pair with", s.PairingName))
	}
	rows = append(rows, row("Uptime", FormatDuration(s.Uptime)))

	if s.OTA != nil && s.OTA.Total > 0 {
		rows = append(rows, "", otaLine(s.OTA, width-6))
	}
	if s.Message != "" {
		rows = append(rows, "", MessageStyle.Render(s.Message))
	}

	return PanelBorderStyle(width).Render(strings.Join(rows, "\n"))
}

func row(key, value string) string {
	return KeyStyle.Render(key) + ValueStyle.Render(value)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func otaLine(p *doorbell.OTAProgress, width int) string {
	label := fmt.Sprintf("%s %d/%d", p.Version, p.Current, p.Total)
	barWidth := width - lipgloss.Width(label) - 2
	if barWidth < 10 {
		barWidth = 10
	}
	bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth), progress.WithoutPercentage())
	return bar.ViewAs(float64(p.Current)/float64(p.Total)) + "  " + label
}

// FormatDuration renders d as "1d 02:03:04", "02:03:04" or "03:04".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	days := total / 86400
	h := total % 86400 / 3600
	m := total % 3600 / 60
	sec := total % 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %02d:%02d:%02d", days, h, m, sec)
	case h > 0:
		return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
	default:
		return fmt.Sprintf("%02d:%02d", m, sec)
	}
}

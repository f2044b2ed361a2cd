package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

// recommendation is the client-side view of a recommended restaurant.
type recommendation struct {
	Name         string  `json:"name"`
	Cuisine      string  `json:"cuisine"`
	Rating       float64 `json:"rating"`
	DeliveryTime string  `json:"delivery_time"`
	Score        float64 `json:"score"`
	Source       string  `json:"source"`
}

// writeRecommendations prints one numbered line per restaurant.
func writeRecommendations(w io.Writer, recs []recommendation) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No recommendations.")
		return
	}
	for i, r := range recs {
		fmt.Fprintf(w, "%2d. %s  %s  ★%.1f  %s  %s\n",
			i+1,
			colorize(colorBold, r.Name),
			r.Cuisine,
			r.Rating,
			r.DeliveryTime,
			colorize(colorCyan, fmt.Sprintf("%.3f", r.Score)),
		)
	}
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}

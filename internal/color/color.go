package color

import (
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Semantic colors, adapted to the terminal background.
var (
	Primary = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"}
	Success = lipgloss.AdaptiveColor{Light: "#02A15C", Dark: "#02BA84"}
	Warning = lipgloss.AdaptiveColor{Light: "#C27C0E", Dark: "#F5A623"}
	Error   = lipgloss.AdaptiveColor{Light: "#D0021B", Dark: "#FF5F87"}
	Muted   = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}
)

var (
	mu sync.RWMutex

	HeaderStyle  = lipgloss.NewStyle().Bold(true).Foreground(Primary)
	SuccessStyle = lipgloss.NewStyle().Foreground(Success)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning)
	ErrorStyle   = lipgloss.NewStyle().Foreground(Error).Bold(true)
	MutedStyle   = lipgloss.NewStyle().Foreground(Muted)
)

// Initialize fixes the background the adaptive colors are resolved against.
func Initialize(isDarkMode bool) {
	mu.Lock()
	defer mu.Unlock()
	lipgloss.SetHasDarkBackground(isDarkMode)
}

// StatusStyle returns the style for a service status.
func StatusStyle(status string) lipgloss.Style {
	mu.RLock()
	defer mu.RUnlock()
	switch status {
	case "STARTED", "READY":
		return SuccessStyle
	case "STARTING", "STOPPING", "SWAPPING", "DEFERRED":
		return WarningStyle
	case "FAILED":
		return ErrorStyle
	}
	return MutedStyle
}

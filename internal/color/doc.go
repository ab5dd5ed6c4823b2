// Package color provides terminal theming for sight output.
//
// Colors are organized into semantic categories:
//   - Primary: headers and names
//   - Success: running services and services ready to start
//   - Warning: transitional states and deferred services
//   - Error: failures
//   - Muted: stopped services and de-emphasized text
//
// Every color is a lipgloss.AdaptiveColor, resolved against the background
// fixed by Initialize. lipgloss drops the colors on terminals without color
// support and when NO_COLOR is set.
//
// # Usage Example
//
//	color.Initialize(true)
//	fmt.Println(color.StatusStyle("STARTED").Render("STARTED"))
package color

package utils

// ANSI escape sequences for the leveled logger.
const (
	resetColor  = "\033[0m"
	redColor    = "\033[31m"
	greenColor  = "\033[32m"
	yellowColor = "\033[33m"
	blueColor   = "\033[34m"
	cyanColor   = "\033[36m"
)

func colorize(text, color string) string {
	return color + text + resetColor
}

// Info returns blue text for informational messages
func Info(text string) string { return colorize(text, blueColor) }

// Success returns green text for completion messages
func Success(text string) string { return colorize(text, greenColor) }

// Warning returns yellow text for warnings
func Warning(text string) string { return colorize(text, yellowColor) }

// Error returns red text for errors
func Error(text string) string { return colorize(text, redColor) }

// Debug returns cyan text for debug output
func Debug(text string) string { return colorize(text, cyanColor) }

package gemini

import "strings"

const defaultAPIModel = "gemini-3-pro-preview"

// MapModel maps a user-facing model alias to the backend API model ID.
// Unknown aliases fall back to heuristics on the name, then to the default;
// legacy session metadata still carries pre-rename aliases.
func MapModel(model string) string {
	if model == "" {
		return defaultAPIModel
	}

	switch model {
	case "gemini-3.0-pro", "gemini-3-pro-preview":
		return "gemini-3-pro-preview"
	case "gemini-2.5-flash":
		return "gemini-2.5-flash"
	case "gemini-2.5-pro":
		return "gemini-2.5-pro"
	case "gemini-1.5-pro":
		return "gemini-1.5-pro"
	case "gemini-1.5-flash":
		return "gemini-1.5-flash"
	}

	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "3.0") && strings.Contains(lower, "pro"):
		return "gemini-3-pro-preview"
	case strings.Contains(lower, "2.5") && strings.Contains(lower, "flash"):
		return "gemini-2.5-flash"
	case strings.Contains(lower, "2.5") && strings.Contains(lower, "pro"):
		return "gemini-2.5-pro"
	case strings.Contains(lower, "flash"):
		return "gemini-2.0-flash-exp"
	case strings.Contains(lower, "3") && strings.Contains(lower, "pro"):
		return "gemini-3-pro-preview"
	}

	return defaultAPIModel
}

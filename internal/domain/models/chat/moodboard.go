package chat

// MoodboardImage is one reference image on a moodboard. Key addresses the
// stored object; Name is the user-facing label.
type MoodboardImage struct {
	Key  string `json:"key"`
	Name string `json:"name,omitempty"`
}

// Moodboard is the snapshot of a moodboard session: a set of reference images
// plus the style profile distilled from them. It shares the session snapshot
// slot that chat sessions use for their tree.
type Moodboard struct {
	SessionID        string           `json:"session_id"`
	Images           []MoodboardImage `json:"images"`
	StyleDescription string           `json:"style_description"`
}

// NewMoodboard returns an empty moodboard for the session.
func NewMoodboard(sessionID string) Moodboard {
	return Moodboard{
		SessionID: sessionID,
		Images:    []MoodboardImage{},
	}
}

// ImageKeys returns the storage keys of every image on the board.
func (m Moodboard) ImageKeys() []string {
	keys := make([]string, 0, len(m.Images))
	for _, img := range m.Images {
		if img.Key != "" {
			keys = append(keys, img.Key)
		}
	}
	return keys
}

// Package novel serves the embedded chapter catalog of Dream of the Red
// Chamber for the reading UI.
package novel

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	_ "embed"
)

//go:embed chapters.json
var chaptersJSON []byte

// Chapter is one chapter of the novel as shipped with the service.
type Chapter struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Excerpt string `json:"excerpt"`
	Body    string `json:"body,omitempty"`
}

var chapters []Chapter

func init() {
	if err := json.Unmarshal(chaptersJSON, &chapters); err != nil {
		panic(fmt.Sprintf("failed to parse embedded chapter catalog: %v", err))
	}
	sort.Slice(chapters, func(i, j int) bool { return chapters[i].Number < chapters[j].Number })
	slog.Debug("novel catalog loaded", "chapters", len(chapters))
}

// List returns the chapter catalog without bodies, for the reading UI index.
func List() []Chapter {
	out := make([]Chapter, len(chapters))
	for i, c := range chapters {
		c.Body = ""
		out[i] = c
	}
	return out
}

// Get returns the full chapter with the given number.
func Get(number int) (*Chapter, error) {
	for _, c := range chapters {
		if c.Number == number {
			found := c
			return &found, nil
		}
	}
	return nil, fmt.Errorf("chapter %d not found", number)
}

package speaker

// Color is a CSS hex color assigned to a speaker.
type Color string

// PaletteSize is the number of distinct speaker colors.
const PaletteSize = 8

// NeutralColor is used for unknown or unregistered speakers.
const NeutralColor Color = "#666666"

// Palette holds the speaker colors in assignment order.
var Palette = [PaletteSize]Color{
	"#0078d4", // blue
	"#107c10", // green
	"#d13438", // red
	"#8764b8", // purple
	"#ff8c00", // orange
	"#00b7c3", // teal
	"#6b69d6", // indigo
	"#c239b3", // magenta
}

// Roles is the fixed vocabulary offered for role assignment. Free text is
// accepted as well.
var Roles = []string{
	"Psycholog",
	"Etoped",
	"Žák/Student",
	"Rodič",
	"Učitel",
	"Logoped",
	"Speciální pedagog",
	"Jiný",
}

// ColorFor returns the palette entry for a speaker number (1-based).
func ColorFor(number int) Color {
	if number < 1 {
		return NeutralColor
	}
	return Palette[(number-1)%PaletteSize]
}

// IsKnownRole reports whether role belongs to the fixed vocabulary.
func IsKnownRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

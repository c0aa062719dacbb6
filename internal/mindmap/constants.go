package mindmap

import "time"

// Application and file format identity.
const (
	AppName          = "HippoMind"
	AppVersion       = "1.0.0"
	FormatVersion    = "1.0.0"
	FileExtension    = ".mindmap"
	BackupFolderName = "Backups"
	MaxBackupCount   = 20
	AutosaveInterval = 30 * time.Second
	DefaultLocale    = "fr"
	MaxNodesTarget   = 2000
)

// SupportedLocales lists the locales a document may declare.
var SupportedLocales = []string{"fr", "en"}

// Defaults used when new documents and nodes are synthesized.
const (
	DefaultTitle    = "Nouvelle carte"
	DefaultNodeText = "Nouveau nœud"

	// ChildOffsetX is the horizontal distance between a parent and a new child.
	ChildOffsetX = 220
	// SiblingOffsetY is the vertical distance between a node and a new sibling.
	SiblingOffsetY = 60
)

// DefaultNodeSize is the size given to nodes created by AddNode.
var DefaultNodeSize = Size{W: 180, H: 48}

// RootNodeSize is the size of the root synthesized by New.
var RootNodeSize = Size{W: 180, H: 50}

// DefaultLayout is the layout block written into new documents.
var DefaultLayout = Layout{
	Type:    LayoutBalanced,
	Spacing: Spacing{Sibling: 40, Level: 80},
}

// DefaultThemeName is the preset applied to new documents.
const DefaultThemeName = ThemeLight

// Themes holds the built-in theme presets keyed by name.
var Themes = map[ThemeName]Theme{
	ThemeLight: {
		Name: ThemeLight,
		Node: NodeTheme{Shape: ShapePill, BG: "#ffffff", FG: "#111827", Border: "#d1d5db",
			FontFamily: "Inter, system-ui, -apple-system, sans-serif"},
		Edge: EdgeTheme{Style: EdgeSmooth, Width: 2, Color: "#d1d5db"},
	},
	ThemeDark: {
		Name: ThemeDark,
		Node: NodeTheme{Shape: ShapePill, BG: "#1f2937", FG: "#f9fafb", Border: "#374151",
			FontFamily: "Inter, system-ui, -apple-system, sans-serif"},
		Edge: EdgeTheme{Style: EdgeSmooth, Width: 2, Color: "#374151"},
	},
	ThemeSepia: {
		Name: ThemeSepia,
		Node: NodeTheme{Shape: ShapePill, BG: "#f5f1e8", FG: "#3e2723", Border: "#d4c5a9",
			FontFamily: "Lora, Georgia, serif"},
		Edge: EdgeTheme{Style: EdgeSmooth, Width: 2, Color: "#d4c5a9"},
	},
	ThemeSlate: {
		Name: ThemeSlate,
		Node: NodeTheme{Shape: ShapePill, BG: "#1e293b", FG: "#e2e8f0", Border: "#475569",
			FontFamily: "IBM Plex Mono, Courier New, monospace"},
		Edge: EdgeTheme{Style: EdgeSmooth, Width: 2, Color: "#475569"},
	},
}

// ThemeByName returns the preset for name and whether it exists.
func ThemeByName(name string) (Theme, bool) {
	t, ok := Themes[ThemeName(name)]
	return t, ok
}

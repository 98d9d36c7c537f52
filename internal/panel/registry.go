package panel

// ID names one workspace panel kind. The set is closed: every panel the
// client can dock is listed here.
type ID string

const (
	Files      ID = "files"
	Git        ID = "git"
	GitHub     ID = "github"
	Agents     ID = "agents"
	MCP        ID = "mcp"
	Extensions ID = "extensions"
	Search     ID = "search"
	Problems   ID = "problems"
	Usage      ID = "usage"
	Sentry     ID = "sentry"
	Skills     ID = "skills"
	Health     ID = "health"
	Preview    ID = "preview"
)

// Side names one of the two sidebar docks.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// Other returns the opposite dock.
func (s Side) Other() Side {
	if s == SideLeft {
		return SideRight
	}
	return SideLeft
}

// Meta is the static registry entry for a panel: presentation data plus
// the dock it lands on by default. No behavior lives here.
type Meta struct {
	Icon        string
	Label       string
	DefaultSide Side
}

var registry = map[ID]Meta{
	Files:      {Icon: "\U000F0256", Label: "Files", DefaultSide: SideLeft},
	Git:        {Icon: "\U000F02A2", Label: "Git", DefaultSide: SideLeft},
	GitHub:     {Icon: "\U000F02A4", Label: "GitHub", DefaultSide: SideLeft},
	Search:     {Icon: "\U000F0349", Label: "Search", DefaultSide: SideLeft},
	Problems:   {Icon: "\U000F002A", Label: "Problems", DefaultSide: SideLeft},
	Extensions: {Icon: "\U000F03C7", Label: "Extensions", DefaultSide: SideLeft},
	Agents:     {Icon: "\U000F0A0C", Label: "Agents", DefaultSide: SideRight},
	MCP:        {Icon: "\U000F0318", Label: "MCP", DefaultSide: SideRight},
	Usage:      {Icon: "\U000F0127", Label: "Usage", DefaultSide: SideRight},
	Sentry:     {Icon: "\U000F0028", Label: "Sentry", DefaultSide: SideRight},
	Skills:     {Icon: "\U000F0E0F", Label: "Skills", DefaultSide: SideRight},
	Health:     {Icon: "\U000F048E", Label: "Health", DefaultSide: SideRight},
	Preview:    {Icon: "\U000F0209", Label: "Preview", DefaultSide: SideRight},
}

// Lookup returns the registry entry for id.
func Lookup(id ID) (Meta, bool) {
	m, ok := registry[id]
	return m, ok
}

// Known reports whether id is a registered panel kind.
func Known(id ID) bool {
	_, ok := registry[id]
	return ok
}

// All returns every registered panel id in stable order.
func All() []ID {
	return []ID{
		Files, Git, GitHub, Search, Problems, Extensions,
		Agents, MCP, Usage, Sentry, Skills, Health, Preview,
	}
}

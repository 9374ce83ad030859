package tui

// Option defines a functional option for model configuration.
type Option func(*Model)

// WithProjectID pins the board to one project instead of the first active
// project.
func WithProjectID(projectID string) Option {
	return func(m *Model) {
		m.projectID = projectID
	}
}

// WithShowDescriptions toggles description snippets on board cards.
func WithShowDescriptions(show bool) Option {
	return func(m *Model) {
		m.showDescriptions = show
	}
}

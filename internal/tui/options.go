package tui

// BoardFieldConfig controls which lead details the board renders.
type BoardFieldConfig struct {
	ShowCounts     bool
	ShowTimestamps bool
}

type Option func(*Model)

func DefaultBoardFieldConfig() BoardFieldConfig {
	return BoardFieldConfig{
		ShowCounts:     true,
		ShowTimestamps: false,
	}
}

func WithBoardFieldConfig(cfg BoardFieldConfig) Option {
	return func(m *Model) {
		m.boardFields = cfg
	}
}

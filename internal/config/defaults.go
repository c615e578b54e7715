package config

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Logging: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Backend: BackendConfig{
			BaseDN:             "",
			IndexEntryLimit:    4000,
			CursorEntryLimit:   100000,
			SubstringLength:    6,
			CandidateThreshold: 10,
			OpenConcurrency:    4,
			EntryCacheSize:     1000,
		},
		Indexes: []IndexConfig{
			{Attribute: "objectClass", Types: []string{"equality"}},
		},
		VLVIndexes: nil,
	}
}

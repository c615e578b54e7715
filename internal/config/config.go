package config

// Config holds the complete configuration of an index backend.
type Config struct {
	Logging    LogConfig        `yaml:"logging"`
	Backend    BackendConfig    `yaml:"backend"`
	Indexes    []IndexConfig    `yaml:"indexes"`
	VLVIndexes []VLVIndexConfig `yaml:"vlvIndexes"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// BackendConfig holds the defaults shared by every index of the backend.
type BackendConfig struct {
	BaseDN             string   `yaml:"baseDN"`
	SchemaFiles        []string `yaml:"schemaFiles,omitempty"`
	IndexEntryLimit    int      `yaml:"indexEntryLimit"`
	CursorEntryLimit   int      `yaml:"cursorEntryLimit"`
	SubstringLength    int      `yaml:"substringLength"`
	CandidateThreshold int      `yaml:"candidateThreshold"`
	OpenConcurrency    int      `yaml:"openConcurrency"`
	EntryCacheSize     int      `yaml:"entryCacheSize"`
}

// IndexConfig configures the indexes of one attribute. Zero limits and
// lengths inherit the backend defaults.
type IndexConfig struct {
	Attribute        string   `yaml:"attribute"`
	Types            []string `yaml:"types"`
	EntryLimit       int      `yaml:"entryLimit"`
	CursorEntryLimit int      `yaml:"cursorEntryLimit"`
	SubstringLength  int      `yaml:"substringLength"`
	MaintainCount    bool     `yaml:"maintainCount"`
}

// VLVIndexConfig configures one virtual list view index.
type VLVIndexConfig struct {
	Name         string `yaml:"name"`
	BaseDN       string `yaml:"baseDN"`
	Scope        string `yaml:"scope"`
	Filter       string `yaml:"filter"`
	SortOrder    string `yaml:"sortOrder"`
	MaxBlockSize int    `yaml:"maxBlockSize"`
	Compression  string `yaml:"compression"`
}

// Index returns the configuration of attr, if any.
func (c *Config) Index(attr string) (IndexConfig, bool) {
	for _, ic := range c.Indexes {
		if equalFold(ic.Attribute, attr) {
			return ic, true
		}
	}
	return IndexConfig{}, false
}

// VLVIndex returns the configuration of the named VLV index, if any.
func (c *Config) VLVIndex(name string) (VLVIndexConfig, bool) {
	for _, vc := range c.VLVIndexes {
		if equalFold(vc.Name, name) {
			return vc, true
		}
	}
	return VLVIndexConfig{}, false
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Tracking TrackingConfig `json:"tracking" yaml:"tracking" mapstructure:"tracking"`
	Matching MatchingConfig `json:"matching" yaml:"matching" mapstructure:"matching"`
	Dataset  DatasetConfig  `json:"dataset" yaml:"dataset" mapstructure:"dataset"`
	Output   OutputConfig   `json:"output" yaml:"output" mapstructure:"output"`
}

// TrackingConfig holds configuration for window indexing and batch assembly
type TrackingConfig struct {
	WindowSize int      `json:"window_size" yaml:"window_size" mapstructure:"window_size"`
	InpHeight  int      `json:"inp_height" yaml:"inp_height" mapstructure:"inp_height"`
	InpWidth   int      `json:"inp_width" yaml:"inp_width" mapstructure:"inp_width"`
	Mode       string   `json:"mode" yaml:"mode" mapstructure:"mode"`
	Fields     []string `json:"fields" yaml:"fields" mapstructure:"fields"`
}

// MatchingConfig holds configuration for patch pair sampling
type MatchingConfig struct {
	PatchHeight  int     `json:"patch_height" yaml:"patch_height" mapstructure:"patch_height"`
	PatchWidth   int     `json:"patch_width" yaml:"patch_width" mapstructure:"patch_width"`
	PaddingMean  float64 `json:"padding_mean" yaml:"padding_mean" mapstructure:"padding_mean"`
	PaddingNoise float64 `json:"padding_noise" yaml:"padding_noise" mapstructure:"padding_noise"`
	CenterNoise  float64 `json:"center_noise" yaml:"center_noise" mapstructure:"center_noise"`
	NumPos       int     `json:"num_pos" yaml:"num_pos" mapstructure:"num_pos"`
	NumNeg       int     `json:"num_neg" yaml:"num_neg" mapstructure:"num_neg"`
	Shuffle      bool    `json:"shuffle" yaml:"shuffle" mapstructure:"shuffle"`
	Seed         uint64  `json:"seed" yaml:"seed" mapstructure:"seed"`
}

// DatasetConfig locates the input data
type DatasetConfig struct {
	// Archive is a shard glob such as "data/train-*"
	Archive          string   `json:"archive" yaml:"archive" mapstructure:"archive"`
	KITTIFolder      string   `json:"kitti_folder" yaml:"kitti_folder" mapstructure:"kitti_folder"`
	Split            string   `json:"split" yaml:"split" mapstructure:"split"`
	PredictionFolder string   `json:"prediction_folder" yaml:"prediction_folder" mapstructure:"prediction_folder"`
	TargetTypes      []string `json:"target_types" yaml:"target_types" mapstructure:"target_types"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	Dir     string `json:"dir" yaml:"dir" mapstructure:"dir"`
	Format  string `json:"format" yaml:"format" mapstructure:"format"`
	Quality int    `json:"quality" yaml:"quality" mapstructure:"quality"`
	Shards  int    `json:"shards" yaml:"shards" mapstructure:"shards"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Tracking: TrackingConfig{
			WindowSize: 20,
			InpHeight:  128,
			InpWidth:   448,
			Mode:       "train_dense",
			Fields:     []string{"x", "fg", "angle", "bbox_gt", "s_gt"},
		},
		Matching: MatchingConfig{
			PatchHeight:  48,
			PatchWidth:   48,
			PaddingMean:  0.2,
			PaddingNoise: 0.2,
			CenterNoise:  0.2,
			NumPos:       100,
			NumNeg:       100,
			Shuffle:      true,
			Seed:         2,
		},
		Dataset: DatasetConfig{
			Split:       "train",
			TargetTypes: []string{"Car"},
		},
		Output: OutputConfig{
			Dir:     "./output",
			Format:  "png",
			Quality: 90,
			Shards:  4,
		},
	}
}

// LoadFromFile loads configuration from a JSON or YAML file. Keys missing
// from the file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	v := viper.New()
	if err := setDefaults(v, Default()); err != nil {
		return nil, err
	}
	v.SetConfigFile(filename)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &config, nil
}

// setDefaults registers every field of c as a "section.key" default
func setDefaults(v *viper.Viper, c *Config) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal defaults: %w", err)
	}
	var tree map[string]map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("failed to flatten defaults: %w", err)
	}
	for section, values := range tree {
		for key, value := range values {
			v.SetDefault(section+"."+key, value)
		}
	}
	return nil
}

// SaveToFile saves configuration to a YAML file when the name ends in .yaml
// or .yml, and to a JSON file otherwise
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	var err error
	switch filepath.Ext(filename) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Tracking.WindowSize < 1 {
		return fmt.Errorf("tracking.window_size must be positive")
	}

	if c.Tracking.InpHeight < 1 || c.Tracking.InpWidth < 1 {
		return fmt.Errorf("tracking.inp_height and tracking.inp_width must be positive")
	}

	if c.Matching.PatchHeight < 1 || c.Matching.PatchWidth < 1 {
		return fmt.Errorf("matching.patch_height and matching.patch_width must be positive")
	}

	if c.Matching.NumPos < 0 || c.Matching.NumNeg < 0 {
		return fmt.Errorf("matching.num_pos and matching.num_neg cannot be negative")
	}

	if c.Matching.PaddingNoise < 0 || c.Matching.CenterNoise < 0 {
		return fmt.Errorf("matching noise cannot be negative")
	}

	switch c.Output.Format {
	case "png", "webp", "jpg", "jpeg":
	default:
		return fmt.Errorf("output.format must be png, webp or jpg")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	if c.Output.Shards < 1 {
		return fmt.Errorf("output.shards must be positive")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "trackdata", "config.json")
}

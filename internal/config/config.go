package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Tiles      TilesConfig      `yaml:"tiles" mapstructure:"tiles"`
	Attributes AttributesConfig `yaml:"attributes" mapstructure:"attributes"`
	Clean      CleanConfig      `yaml:"clean" mapstructure:"clean"`
	Analysis   AnalysisConfig   `yaml:"analysis" mapstructure:"analysis"`
	Inputs     InputsConfig     `yaml:"inputs" mapstructure:"inputs"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// TilesConfig describes the scanned-map tile source and its pixel to
// world affine transform.
type TilesConfig struct {
	Dir              string         `yaml:"dir" mapstructure:"dir"`
	Charset          string         `yaml:"charset" mapstructure:"charset"`
	SRID             int            `yaml:"srid" mapstructure:"srid"`
	UpperLeft        []float64      `yaml:"upper_left" mapstructure:"upper_left"`
	LowerRight       []float64      `yaml:"lower_right" mapstructure:"lower_right"`
	BaseExtent       []float64      `yaml:"base_extent" mapstructure:"base_extent"`
	ZoomFactors      []float64      `yaml:"zoom_factors" mapstructure:"zoom_factors"`
	ZoomLevel        int            `yaml:"zoom_level" mapstructure:"zoom_level"`
	TileSize         []float64      `yaml:"tile_size" mapstructure:"tile_size"`
	SwapAxes         bool           `yaml:"swap_axes" mapstructure:"swap_axes"`
	FlipY            bool           `yaml:"flip_y" mapstructure:"flip_y"`
	Rows             int            `yaml:"rows" mapstructure:"rows"`
	Cols             int            `yaml:"cols" mapstructure:"cols"`
	MaxSkipFraction  float64        `yaml:"max_skip_fraction" mapstructure:"max_skip_fraction"`
	ControlPoints    []ControlPoint `yaml:"control_points" mapstructure:"control_points"`
	ControlTolerance float64        `yaml:"control_tolerance" mapstructure:"control_tolerance"`
}

// ControlPoint pins a tile pixel to a known world coordinate.
type ControlPoint struct {
	Row int     `yaml:"row" mapstructure:"row"`
	Col int     `yaml:"col" mapstructure:"col"`
	PX  float64 `yaml:"px" mapstructure:"px"`
	PY  float64 `yaml:"py" mapstructure:"py"`
	X   float64 `yaml:"x" mapstructure:"x"`
	Y   float64 `yaml:"y" mapstructure:"y"`
}

// AttributesConfig configures the per-region attribute files.
type AttributesConfig struct {
	Dir         string   `yaml:"dir" mapstructure:"dir"`
	Key         string   `yaml:"key" mapstructure:"key"`
	Confessions []string `yaml:"confessions" mapstructure:"confessions"`
	// ReferenceYear dates the selection; 0 ignores the start/end fields.
	ReferenceYear int    `yaml:"reference_year" mapstructure:"reference_year"`
	StartKey      string `yaml:"start_key" mapstructure:"start_key"`
	EndKey        string `yaml:"end_key" mapstructure:"end_key"`
}

// CleanConfig holds the geometry normalization tolerances.
type CleanConfig struct {
	SnapTolerance     float64 `yaml:"snap_tolerance" mapstructure:"snap_tolerance"`
	MinHoleArea       float64 `yaml:"min_hole_area" mapstructure:"min_hole_area"`
	SimplifyTolerance float64 `yaml:"simplify_tolerance" mapstructure:"simplify_tolerance"`
	QuadSegments      int     `yaml:"quad_segments" mapstructure:"quad_segments"`
}

// AnalysisConfig scopes the signed-distance computation.
type AnalysisConfig struct {
	SRID          int      `yaml:"srid" mapstructure:"srid"`
	StatePrefixes []string `yaml:"state_prefixes" mapstructure:"state_prefixes"`
	Reproject     bool     `yaml:"reproject" mapstructure:"reproject"`
	Workers       int      `yaml:"workers" mapstructure:"workers"`
}

// InputsConfig points at the external collaborators.
type InputsConfig struct {
	Admin    AdminInput    `yaml:"admin" mapstructure:"admin"`
	Religion ReligionInput `yaml:"religion" mapstructure:"religion"`
	Election ElectionInput `yaml:"election" mapstructure:"election"`
}

// AdminInput configures the administrative boundary source.
type AdminInput struct {
	Path      string `yaml:"path" mapstructure:"path"`
	Layer     string `yaml:"layer" mapstructure:"layer"`
	SRID      int    `yaml:"srid" mapstructure:"srid"`
	AGSColumn string `yaml:"ags_column" mapstructure:"ags_column"`
	ARSColumn string `yaml:"ars_column" mapstructure:"ars_column"`
	NameCol   string `yaml:"name_column" mapstructure:"name_column"`
	StateCol  string `yaml:"state_column" mapstructure:"state_column"`
}

// ReligionInput configures the census religion spreadsheet.
type ReligionInput struct {
	Path  string `yaml:"path" mapstructure:"path"`
	Sheet string `yaml:"sheet" mapstructure:"sheet"`
	// HeaderRows is the number of title rows above the column header row.
	HeaderRows int `yaml:"header_rows" mapstructure:"header_rows"`
}

// ElectionInput configures the harmonized election results table.
type ElectionInput struct {
	Path       string   `yaml:"path" mapstructure:"path"`
	KeyColumn  string   `yaml:"key_column" mapstructure:"key_column"`
	YearColumn string   `yaml:"year_column" mapstructure:"year_column"`
	Parties    []string `yaml:"parties" mapstructure:"parties"`
	Delimiter  string   `yaml:"delimiter" mapstructure:"delimiter"`
	// KeyWidth restores leading zeros lost when keys were stored as numbers.
	KeyWidth int `yaml:"key_width" mapstructure:"key_width"`
}

// OutputConfig names the produced artifact and its layers.
type OutputConfig struct {
	Path            string `yaml:"path" mapstructure:"path"`
	UnitsLayer      string `yaml:"units_layer" mapstructure:"units_layer"`
	HistoricalLayer string `yaml:"historical_layer" mapstructure:"historical_layer"`
	Report          bool   `yaml:"report" mapstructure:"report"`
}

// FetchConfig configures tile and attribute downloads.
type FetchConfig struct {
	TilesBaseURL      string  `yaml:"tiles_base_url" mapstructure:"tiles_base_url"`
	AttributesBaseURL string  `yaml:"attributes_base_url" mapstructure:"attributes_base_url"`
	AttributeFiles    int     `yaml:"attribute_files" mapstructure:"attribute_files"`
	Concurrency       int     `yaml:"concurrency" mapstructure:"concurrency"`
	RatePerSecond     float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries        int     `yaml:"max_retries" mapstructure:"max_retries"`
	BreakerThreshold  int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. An empty path
// searches the working directory for config.yaml.
func Load(path ...string) (*Config, error) {
	v := viper.New()

	// Config file
	if len(path) > 0 && path[0] != "" {
		v.SetConfigFile(path[0])
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("HRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Digital atlas "Konfessionen" layer, TILES_1.
	v.SetDefault("tiles.dir", "data/hre/digital_atlas/geotiles/TILES_1")
	v.SetDefault("tiles.charset", "utf-8")
	v.SetDefault("tiles.srid", 32633)
	v.SetDefault("tiles.upper_left", []float64{-456230.500963895, 6402413.07213028})
	v.SetDefault("tiles.lower_right", []float64{1016818.95627862, 4877042.18607861})
	v.SetDefault("tiles.base_extent", []float64{732, 758})
	v.SetDefault("tiles.zoom_factors", []float64{1.0, 6.61370869565217})
	v.SetDefault("tiles.zoom_level", 1)
	v.SetDefault("tiles.tile_size", []float64{512, 512})
	v.SetDefault("tiles.swap_axes", true)
	v.SetDefault("tiles.flip_y", false)
	v.SetDefault("tiles.rows", 10)
	v.SetDefault("tiles.cols", 10)
	v.SetDefault("tiles.max_skip_fraction", 0.5)
	v.SetDefault("tiles.control_tolerance", 5000.0)

	v.SetDefault("attributes.key", "Konf")
	v.SetDefault("attributes.confessions", []string{"Catholic"})
	v.SetDefault("attributes.reference_year", 0)
	v.SetDefault("attributes.start_key", "start_rel")
	v.SetDefault("attributes.end_key", "end_rel")

	v.SetDefault("clean.snap_tolerance", 0.01)
	v.SetDefault("clean.min_hole_area", 1.0e6)
	v.SetDefault("clean.simplify_tolerance", 250.0)
	v.SetDefault("clean.quad_segments", 8)

	v.SetDefault("analysis.srid", 25832)
	v.SetDefault("analysis.state_prefixes", []string{"01", "02", "03", "04", "05", "06", "07", "08", "09", "10"})
	v.SetDefault("analysis.reproject", false)
	v.SetDefault("analysis.workers", 4)

	v.SetDefault("inputs.admin.path", "data/shapefiles/vg250_ebenen_1231/DE_VG250.gpkg")
	v.SetDefault("inputs.admin.layer", "vg250_gem")
	v.SetDefault("inputs.admin.srid", 25832)
	v.SetDefault("inputs.admin.ags_column", "AGS")
	v.SetDefault("inputs.admin.ars_column", "ARS")
	v.SetDefault("inputs.admin.name_column", "GEN")
	v.SetDefault("inputs.admin.state_column", "SN_L")
	v.SetDefault("inputs.religion.header_rows", 3)
	v.SetDefault("inputs.election.key_column", "ags")
	v.SetDefault("inputs.election.year_column", "election_year")
	v.SetDefault("inputs.election.delimiter", ",")
	v.SetDefault("inputs.election.key_width", 8)

	v.SetDefault("output.path", "bld/data/merged_national_with_signed_distance.gpkg")
	v.SetDefault("output.units_layer", "municipalities")
	v.SetDefault("output.historical_layer", "historical_polygon")
	v.SetDefault("output.report", true)

	v.SetDefault("fetch.tiles_base_url", "https://www.atlas-europa.de/t02/konfessionen/Konfessionen/GEOTILES_0")
	v.SetDefault("fetch.attributes_base_url", "https://www.atlas-europa.de/t02/konfessionen/Konfessionen/ATTRIBUTES_0")
	v.SetDefault("fetch.attribute_files", 40)
	v.SetDefault("fetch.concurrency", 4)
	v.SetDefault("fetch.rate_per_second", 5.0)
	v.SetDefault("fetch.timeout_secs", 10)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.breaker_threshold", 10)
	v.SetDefault("fetch.user_agent", "hre-border/1.0")
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// Validate checks that the values needed by the given mode ("run", "fetch")
// are present and consistent.
func (c *Config) Validate(mode string) error {
	var errs []string

	checkPair := func(name string, v []float64) {
		if len(v) != 2 {
			errs = append(errs, name+" must have exactly 2 values")
		}
	}

	switch mode {
	case "run":
		checkPair("tiles.upper_left", c.Tiles.UpperLeft)
		checkPair("tiles.lower_right", c.Tiles.LowerRight)
		checkPair("tiles.base_extent", c.Tiles.BaseExtent)
		checkPair("tiles.tile_size", c.Tiles.TileSize)
		if c.Tiles.ZoomLevel < 0 || c.Tiles.ZoomLevel >= len(c.Tiles.ZoomFactors) {
			errs = append(errs, "tiles.zoom_level must index tiles.zoom_factors")
		}
		if c.Tiles.Rows <= 0 || c.Tiles.Cols <= 0 {
			errs = append(errs, "tiles.rows and tiles.cols must be > 0")
		}
		if c.Tiles.MaxSkipFraction < 0 || c.Tiles.MaxSkipFraction > 1 {
			errs = append(errs, "tiles.max_skip_fraction must be between 0 and 1")
		}
		if c.Tiles.SRID <= 0 || c.Analysis.SRID <= 0 || c.Inputs.Admin.SRID <= 0 {
			errs = append(errs, "tiles.srid, analysis.srid and inputs.admin.srid must be > 0")
		}
		if c.Clean.SnapTolerance < 0 || c.Clean.MinHoleArea < 0 || c.Clean.SimplifyTolerance < 0 {
			errs = append(errs, "clean tolerances must be >= 0")
		}
		if c.Analysis.Workers < 1 || c.Analysis.Workers > 64 {
			errs = append(errs, "analysis.workers must be between 1 and 64")
		}
		if c.Inputs.Admin.Path == "" {
			errs = append(errs, "inputs.admin.path is required")
		}
		if c.Output.Path == "" {
			errs = append(errs, "output.path is required")
		}
		if c.Output.UnitsLayer == "" || c.Output.HistoricalLayer == "" || c.Output.UnitsLayer == c.Output.HistoricalLayer {
			errs = append(errs, "output layer names must be set and distinct")
		}
	case "fetch":
		if c.Fetch.TilesBaseURL == "" {
			errs = append(errs, "fetch.tiles_base_url is required")
		}
		if c.Fetch.Concurrency < 1 || c.Fetch.Concurrency > 32 {
			errs = append(errs, "fetch.concurrency must be between 1 and 32")
		}
		if c.Tiles.Dir == "" {
			errs = append(errs, "tiles.dir is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

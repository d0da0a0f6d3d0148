// Package config reads the INI configuration of the pipeline.
//
// Keys are grouped in sections. Keys of the DEFAULT section apply
// to every stage:
//
//	[DEFAULT]
//	BASEDIR = /data
//	LEVEL = 1
//	OUTPUT_VIDEO = no
//
//	[CUMULATIVE]
//	WINDOW_SIZE = 5
//	DUMP_FILEPATH = ./out/cml_{page}.msgpack
//
// Paths may contain {page} and {level}, see Path.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// DefaultPath is the configuration file read by the commands.
const DefaultPath = "./config/config.ini"

type Config struct {
	BaseDir     string
	Level       int
	Prefix      string
	OutputVideo bool
	// Maximum number of concurrent workers.
	// Values <= 0 are replaced by GOMAXPROCS.
	Workers int

	Stabilize  Stabilize
	Cumulative Cumulative
	Dot        Dot
	Detect     Detect
	Video      Video
}

type Stabilize struct {
	AngleThresh float64
	MinFeatures int
	DumpPath    string
	VideoPath   string
}

type Cumulative struct {
	// Page to process, or 0 for every page.
	Page       int
	WindowSize int
	// Dense flow estimator: "farneback" or "hornschunck".
	Estimator string
	DumpPath  string
	VideoPath string
}

type Dot struct {
	FlowThreshold float64
	DotThreshold  float64
	WindowSize    int
	// Compute the scores again even if a dump exists.
	Recalculate bool
	DumpPath    string
	VideoPath   string
}

type Detect struct {
	DotThreshold float64
	Eps          float64
	MinSamples   int
	// Keep every n-th point before clustering.
	Stride int
	// Points kept per page are limited to PointsPerTime times the number of times.
	PointsPerTime int
	MinDuration   int
	// Zero gives a different sample on every run.
	Seed       uint32
	OutputPath string
}

type Video struct {
	// Page to draw, or 0 for every page.
	Page int
	// Scale of the output relative to the canvas.
	Scale float64
}

// Default returns the configuration used for keys which are not set.
func Default() *Config {
	return &Config{
		BaseDir: ".",
		Level:   1,
		Prefix:  "Pre_Data",
		Workers: runtime.GOMAXPROCS(0),
		Stabilize: Stabilize{
			AngleThresh: 0.5,
			MinFeatures: 50,
			DumpPath:    "./out/{level}_fixDir.msgpack",
			VideoPath:   "./out/stabilized.mp4",
		},
		Cumulative: Cumulative{
			WindowSize: 5,
			Estimator:  "farneback",
			DumpPath:   "./out/cml_{page}.msgpack",
			VideoPath:  "./out/cml_{page}.mp4",
		},
		Dot: Dot{
			FlowThreshold: 1,
			DotThreshold:  -10,
			WindowSize:    3,
			Recalculate:   true,
			DumpPath:      "./out/{level}_dot_{page}.msgpack",
			VideoPath:     "./out/dot_{page}.mp4",
		},
		Detect: Detect{
			DotThreshold:  -10,
			Eps:           0.02,
			MinSamples:    100,
			Stride:        10,
			PointsPerTime: 250,
			MinDuration:   10,
			Seed:          1,
			OutputPath:    "./out/output{level}.csv",
		},
		Video: Video{Scale: 1},
	}
}

// Load reads an INI file.
// It is an error if the file does not exist.
func Load(fname string) (*Config, error) {
	if _, err := os.Stat(fname); err != nil {
		return nil, errors.Wrapf(err, "config %s", fname)
	}
	v := viper.New()
	v.SetConfigFile(fname)
	v.SetConfigType("ini")
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read config %s", fname)
	}
	c, err := FromViper(v)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", fname)
	}
	return c, nil
}

// FromViper builds a configuration from the keys of v.
func FromViper(v *viper.Viper) (*Config, error) {
	r := &reader{v: v}
	c := Default()

	r.str(&c.BaseDir, "DEFAULT", "BASEDIR")
	r.int(&c.Level, "DEFAULT", "LEVEL")
	r.str(&c.Prefix, "DEFAULT", "PREFIX")
	r.bool(&c.OutputVideo, "DEFAULT", "OUTPUT_VIDEO")
	r.int(&c.Workers, "DEFAULT", "WORKERS")
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}

	r.float(&c.Stabilize.AngleThresh, "STABILIZE", "ANGLE_THRESH")
	r.int(&c.Stabilize.MinFeatures, "STABILIZE", "MIN_FEATURES")
	r.str(&c.Stabilize.DumpPath, "STABILIZE", "DUMP_FILEPATH")
	r.str(&c.Stabilize.VideoPath, "STABILIZE", "VIDEO_FILEPATH")

	r.int(&c.Cumulative.Page, "CUMULATIVE", "PAGE")
	r.int(&c.Cumulative.WindowSize, "CUMULATIVE", "WINDOW_SIZE")
	r.str(&c.Cumulative.Estimator, "CUMULATIVE", "ESTIMATOR")
	r.str(&c.Cumulative.DumpPath, "CUMULATIVE", "DUMP_FILEPATH")
	r.str(&c.Cumulative.VideoPath, "CUMULATIVE", "VIDEO_FILEPATH")

	r.float(&c.Dot.FlowThreshold, "DOT", "FLOW_THRESHOLD")
	r.float(&c.Dot.DotThreshold, "DOT", "DOT_THRESHOLD")
	r.int(&c.Dot.WindowSize, "DOT", "WINDOW_SIZE")
	r.bool(&c.Dot.Recalculate, "DOT", "RECALCULATE")
	r.str(&c.Dot.DumpPath, "DOT", "DUMP_FILEPATH")
	r.str(&c.Dot.VideoPath, "DOT", "VIDEO_FILEPATH")

	r.float(&c.Detect.DotThreshold, "DETECT", "DOT_THRESHOLD")
	r.float(&c.Detect.Eps, "DETECT", "EPS")
	r.int(&c.Detect.MinSamples, "DETECT", "MIN_SAMPLES")
	r.int(&c.Detect.Stride, "DETECT", "STRIDE")
	r.int(&c.Detect.PointsPerTime, "DETECT", "POINTS_PER_TIME")
	r.int(&c.Detect.MinDuration, "DETECT", "MIN_DURATION")
	r.uint32(&c.Detect.Seed, "DETECT", "SEED")
	r.str(&c.Detect.OutputPath, "DETECT", "OUTPUT_FILEPATH")

	r.page(&c.Video.Page, "VIDEO", "PAGE")
	r.float(&c.Video.Scale, "VIDEO", "SCALE")

	if r.err != nil {
		return nil, r.err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the ranges of the parameters.
func (c *Config) Validate() error {
	switch {
	case c.Level < 0:
		return fmt.Errorf("DEFAULT.LEVEL must not be negative: %d", c.Level)
	case c.Cumulative.WindowSize < 1:
		return fmt.Errorf("CUMULATIVE.WINDOW_SIZE must be positive: %d", c.Cumulative.WindowSize)
	case c.Cumulative.Page < 0:
		return fmt.Errorf("CUMULATIVE.PAGE must not be negative: %d", c.Cumulative.Page)
	case c.Dot.WindowSize < 3 || c.Dot.WindowSize%2 == 0:
		return fmt.Errorf("DOT.WINDOW_SIZE must be odd and at least 3: %d", c.Dot.WindowSize)
	case c.Detect.Eps <= 0:
		return fmt.Errorf("DETECT.EPS must be positive: %g", c.Detect.Eps)
	case c.Video.Scale <= 0:
		return fmt.Errorf("VIDEO.SCALE must be positive: %g", c.Video.Scale)
	}
	switch c.Cumulative.Estimator {
	case "farneback", "hornschunck":
	default:
		return fmt.Errorf("unknown CUMULATIVE.ESTIMATOR: %q", c.Cumulative.Estimator)
	}
	return nil
}

// Path substitutes the page and level into a path template.
func (c *Config) Path(template string, page int) string {
	r := strings.NewReplacer("{page}", strconv.Itoa(page), "{level}", strconv.Itoa(c.Level))
	return r.Replace(template)
}

// reader keeps the first error of a sequence of lookups.
type reader struct {
	v   *viper.Viper
	err error
}

// lookup finds a key in its section, then in the DEFAULT section.
func (r *reader) lookup(section, key string) (string, bool) {
	names := []string{section + "." + key}
	if !strings.EqualFold(section, "DEFAULT") {
		names = append(names, "DEFAULT."+key)
	}
	names = append(names, key)
	for _, name := range names {
		if r.v.IsSet(name) {
			return strings.TrimSpace(r.v.GetString(name)), true
		}
	}
	return "", false
}

func (r *reader) parse(section, key string, fn func(s string) error) {
	if r.err != nil {
		return
	}
	s, ok := r.lookup(section, key)
	if !ok {
		return
	}
	if err := fn(s); err != nil {
		r.err = errors.Wrapf(err, "%s.%s", section, key)
	}
}

func (r *reader) str(dst *string, section, key string) {
	r.parse(section, key, func(s string) error {
		*dst = s
		return nil
	})
}

func (r *reader) int(dst *int, section, key string) {
	r.parse(section, key, func(s string) (err error) {
		*dst, err = strconv.Atoi(s)
		return
	})
}

func (r *reader) uint32(dst *uint32, section, key string) {
	r.parse(section, key, func(s string) error {
		x, err := strconv.ParseUint(s, 10, 32)
		*dst = uint32(x)
		return err
	})
}

func (r *reader) float(dst *float64, section, key string) {
	r.parse(section, key, func(s string) (err error) {
		*dst, err = strconv.ParseFloat(s, 64)
		return
	})
}

func (r *reader) bool(dst *bool, section, key string) {
	r.parse(section, key, func(s string) (err error) {
		*dst, err = ParseBool(s)
		return
	})
}

// page reads ALL as 0.
func (r *reader) page(dst *int, section, key string) {
	r.parse(section, key, func(s string) (err error) {
		if strings.EqualFold(s, "ALL") {
			*dst = 0
			return nil
		}
		*dst, err = strconv.Atoi(s)
		return
	})
}

// ParseBool accepts yes/no, true/false, on/off and 1/0 in any case.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "on", "1":
		return true, nil
	case "no", "false", "off", "0":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}

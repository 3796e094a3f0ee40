package feeders

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDuration time.Duration

func (d *testDuration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = testDuration(parsed)
	return nil
}

type testLogging struct {
	Level string `yaml:"level" toml:"level" json:"level" env:"LOG_LEVEL"`
}

type testConfig struct {
	Name    string       `yaml:"name" toml:"name" json:"name" env:"APP_NAME"`
	Workers int          `yaml:"workers" toml:"workers" json:"workers" env:"WORKERS"`
	Debug   bool         `yaml:"debug" toml:"debug" json:"debug" env:"DEBUG"`
	Timeout testDuration `yaml:"timeout" toml:"timeout" json:"timeout" env:"TIMEOUT"`
	Logging testLogging  `yaml:"logging" toml:"logging" json:"logging"`
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestYamlFeeder(t *testing.T) {
	path := writeFile(t, "app.yaml", "name: cats\nworkers: 4\ntimeout: 2s\nlogging:\n  level: debug\n")

	var cfg testConfig
	require.NoError(t, NewYamlFeeder(path).Feed(&cfg))
	assert.Equal(t, "cats", cfg.Name)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, testDuration(2*time.Second), cfg.Timeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestYamlFeederSection(t *testing.T) {
	path := writeFile(t, "app.yaml", "other: 1\nlogging:\n  level: warn\n")

	var logging testLogging
	feeder := &YamlFeeder{Path: path, Section: "logging"}
	require.NoError(t, feeder.Feed(&logging))
	assert.Equal(t, "warn", logging.Level)

	var untouched testLogging
	require.NoError(t, NewYamlFeeder(path).FeedKey("missing", &untouched))
	assert.Empty(t, untouched.Level)

	err := NewYamlFeeder(path).FeedKey("other", &untouched)
	require.ErrorIs(t, err, ErrSectionNotAMapping)
}

func TestTomlFeeder(t *testing.T) {
	path := writeFile(t, "app.toml", "name = \"cats\"\nworkers = 2\ntimeout = \"1m\"\n\n[logging]\nlevel = \"error\"\n")

	var cfg testConfig
	require.NoError(t, NewTomlFeeder(path).Feed(&cfg))
	assert.Equal(t, "cats", cfg.Name)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, testDuration(time.Minute), cfg.Timeout)
	assert.Equal(t, "error", cfg.Logging.Level)

	var logging testLogging
	require.NoError(t, (&TomlFeeder{Path: path, Section: "logging"}).Feed(&logging))
	assert.Equal(t, "error", logging.Level)
}

func TestJSONFeeder(t *testing.T) {
	path := writeFile(t, "app.json", `{"name":"cats","debug":true,"timeout":"3s","logging":{"level":"info"}}`)

	var cfg testConfig
	require.NoError(t, NewJSONFeeder(path).Feed(&cfg))
	assert.Equal(t, "cats", cfg.Name)
	assert.True(t, cfg.Debug)
	assert.Equal(t, testDuration(3*time.Second), cfg.Timeout)

	var logging testLogging
	require.NoError(t, NewJSONFeeder(path).FeedKey("logging", &logging))
	assert.Equal(t, "info", logging.Level)
}

func TestFeedersRejectNonStruct(t *testing.T) {
	var target map[string]any
	for _, feeder := range []Feeder{NewYamlFeeder("x.yaml"), NewTomlFeeder("x.toml"), NewJSONFeeder("x.json"), NewEnvFeeder(""), NewDotEnvFeeder("x.env")} {
		err := feeder.Feed(&target)
		assert.ErrorIs(t, err, ErrInvalidStructure, "%T", feeder)
	}
}

func TestEnvFeeder(t *testing.T) {
	t.Setenv("MYAPP_APP_NAME", "dogs")
	t.Setenv("MYAPP_WORKERS", "8")
	t.Setenv("MYAPP_DEBUG", "true")
	t.Setenv("MYAPP_TIMEOUT", "250ms")
	t.Setenv("MYAPP_LOG_LEVEL", "debug")

	cfg := testConfig{Name: "default"}
	require.NoError(t, NewEnvFeeder("myapp").Feed(&cfg))
	assert.Equal(t, "dogs", cfg.Name)
	assert.Equal(t, 8, cfg.Workers)
	assert.True(t, cfg.Debug)
	assert.Equal(t, testDuration(250*time.Millisecond), cfg.Timeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestEnvFeederConversionError(t *testing.T) {
	t.Setenv("WORKERS", "many")

	var cfg testConfig
	err := NewEnvFeeder("").Feed(&cfg)
	require.ErrorIs(t, err, ErrEnvCannotConvert)
	assert.Contains(t, err.Error(), "Workers")
}

func TestDotEnvFeeder(t *testing.T) {
	path := writeFile(t, "app.env", "# comment\nAPP_NAME=\"birds\"\nexport WORKERS=3\n\nLOG_LEVEL='warn'\n")

	var cfg testConfig
	require.NoError(t, NewDotEnvFeeder(path).Feed(&cfg))
	assert.Equal(t, "birds", cfg.Name)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "warn", cfg.Logging.Level)
	_, set := os.LookupEnv("APP_NAME")
	assert.False(t, set)
}

func TestDotEnvFeederInvalidLine(t *testing.T) {
	path := writeFile(t, "bad.env", "APP_NAME=ok\nnot a pair\n")

	var cfg testConfig
	err := NewDotEnvFeeder(path).Feed(&cfg)
	require.ErrorIs(t, err, ErrDotEnvInvalidLine)
	assert.Contains(t, err.Error(), ":2")
}

func TestForPath(t *testing.T) {
	tests := []struct {
		path    string
		want    Feeder
		wantErr bool
	}{
		{path: "a.yaml", want: &YamlFeeder{Path: "a.yaml", Section: "s"}},
		{path: "a.YML", want: &YamlFeeder{Path: "a.YML", Section: "s"}},
		{path: "a.toml", want: &TomlFeeder{Path: "a.toml", Section: "s"}},
		{path: "a.json", want: &JSONFeeder{Path: "a.json", Section: "s"}},
		{path: "a.env", want: NewDotEnvFeeder("a.env")},
		{path: "a.ini", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := ForPath(tt.path, "s")
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

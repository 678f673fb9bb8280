package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapSource map[string]interface{}

func (m mapSource) GetValue(key string) interface{} {
	return m[key]
}

func (m mapSource) Name() string {
	return "map"
}

func TestOptionDefaults(t *testing.T) {
	c := NewConfigManager()
	s := c.RegisterOption("dshardrelay.test.str", "", "hello")
	i := c.RegisterOption("dshardrelay.test.int", "", 5)
	b := c.RegisterOption("dshardrelay.test.bool", "", true)
	d := c.RegisterOption("dshardrelay.test.dur", "", time.Second*3)
	c.Load()

	assert.Equal(t, "hello", s.GetString())
	assert.Equal(t, 5, i.GetInt())
	assert.True(t, b.GetBool())
	assert.Equal(t, time.Second*3, d.GetDuration())
	assert.Nil(t, s.ConfigSource)
}

func TestLaterSourcesWin(t *testing.T) {
	c := NewConfigManager()
	c.AddSource(mapSource{"a": "first", "b": "10"})
	c.AddSource(mapSource{"a": "second"})

	a := c.RegisterOption("a", "", "")
	b := c.RegisterOption("b", "", 0)
	c.Load()

	assert.Equal(t, "second", a.GetString())
	assert.Equal(t, 10, b.GetInt())
	require.NotNil(t, b.ConfigSource)
	assert.Equal(t, "map", b.ConfigSource.Name())
}

func TestValueParsing(t *testing.T) {
	cases := []struct {
		raw      string
		boolean  bool
		duration time.Duration
	}{
		{"yes", true, 0},
		{" ON ", true, 0},
		{"0", false, 0},
		{"30", false, time.Second * 30},
		{"1500ms", false, time.Millisecond * 1500},
		{"garbage", false, 0},
	}

	for _, c := range cases {
		t.Run(c.raw, func(t *testing.T) {
			assert.Equal(t, c.boolean, boolVal(c.raw))
			assert.Equal(t, c.duration, durationVal(c.raw))
		})
	}
}

func TestEnvSource(t *testing.T) {
	os.Setenv("DSHARDRELAY_TEST_ENVSOURCE", "from-env")
	defer os.Unsetenv("DSHARDRELAY_TEST_ENVSOURCE")

	c := NewConfigManager()
	c.AddSource(&EnvSource{})
	opt := c.RegisterOption("dshardrelay.test.envsource", "", "default")
	missing := c.RegisterOption("dshardrelay.test.missing", "", "default")

	assert.Equal(t, "DSHARDRELAY_TEST_ENVSOURCE", opt.EnvKey())
	assert.Equal(t, "from-env", opt.GetString())
	assert.Equal(t, "default", missing.GetString())
}

func TestSorted(t *testing.T) {
	c := NewConfigManager()
	c.RegisterOption("b", "", nil)
	c.RegisterOption("a", "", nil)
	c.RegisterOption("c", "", nil)

	var names []string
	for _, o := range c.Sorted() {
		names = append(names, o.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

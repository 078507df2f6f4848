package knowledge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildSearchConfig_Defaults(t *testing.T) {
	cfg := buildSearchConfig(nil)

	assert.Equal(t, 5, cfg.topK)
	assert.Equal(t, 10*time.Second, cfg.timeout)
	assert.Nil(t, cfg.filter)
}

func TestWithTopK(t *testing.T) {
	cfg := buildSearchConfig([]SearchOption{WithTopK(2)})
	assert.Equal(t, 2, cfg.topK)

	// Non-positive values keep the default.
	cfg = buildSearchConfig([]SearchOption{WithTopK(0)})
	assert.Equal(t, 5, cfg.topK)

	cfg = buildSearchConfig([]SearchOption{WithTopK(-3)})
	assert.Equal(t, 5, cfg.topK)
}

func TestWithFilter_Accumulates(t *testing.T) {
	cfg := buildSearchConfig([]SearchOption{
		WithFilter("filename", "faq.csv"),
		WithFilter("source_type", "csv"),
	})

	assert.Equal(t, map[string]string{
		"filename":    "faq.csv",
		"source_type": "csv",
	}, cfg.filter)
}

func TestWithTimeout(t *testing.T) {
	cfg := buildSearchConfig([]SearchOption{WithTimeout(time.Second)})
	assert.Equal(t, time.Second, cfg.timeout)

	cfg = buildSearchConfig([]SearchOption{WithTimeout(0)})
	assert.Equal(t, 10*time.Second, cfg.timeout)
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "docqd_pages", cfg.Index.Collection)
	assert.Equal(t, 384, cfg.Index.VectorSize)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 8, cfg.Agent.MaxIterations)
	assert.Equal(t, 6, cfg.Agent.DefaultTopK)
	assert.Equal(t, 10, cfg.Notes.MaxQueries)
}

func TestLoadBytes_YAMLOverrides(t *testing.T) {
	yml := []byte(`
server:
  addr: ":9090"
index:
  vector_size: 768
  collection: cases
llm:
  model: gemini-2.5-flash
  timeout: 30s
agent:
  max_iterations: 4
`)
	cfg, err := LoadBytes(yml)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 768, cfg.Index.VectorSize)
	assert.Equal(t, "cases", cfg.Index.Collection)
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Model)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 4, cfg.Agent.MaxIterations)
	// Untouched fields keep defaults.
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DOCQD_SERVER_ADDR", ":7070")
	t.Setenv("DOCQD_INDEX_VECTOR_SIZE", "512")
	t.Setenv("DOCQD_LLM_BASE_URL", "http://llm.internal/v1")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, 512, cfg.Index.VectorSize)
	assert.Equal(t, "http://llm.internal/v1", cfg.LLM.BaseURL)
}

func TestLoadBytes_InvalidConfig(t *testing.T) {
	yml := []byte(`
index:
  vector_size: -1
`)
	_, err := LoadBytes(yml)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector size")
}

func TestEnvTransform(t *testing.T) {
	assert.Equal(t, "server.addr", envTransform("DOCQD_SERVER_ADDR"))
	assert.Equal(t, "llm.base_url", envTransform("DOCQD_LLM_BASE_URL"))
	assert.Equal(t, "agent.max_top_k", envTransform("DOCQD_AGENT_MAX_TOP_K"))
}

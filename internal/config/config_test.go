package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "2025-10", cfg.APIVersion)
	assert.Equal(t, "pretty", cfg.LogFormat)
	assert.Equal(t, 6, cfg.WorkerCount)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Run("tenant credentials", func(t *testing.T) {
		t.Setenv("SRC_SHOP_DOMAIN", "source.myshopify.com")
		t.Setenv("SRC_ADMIN_TOKEN", "shpat_src")
		t.Setenv("DST_SHOP_DOMAIN", "dest.myshopify.com")
		t.Setenv("DST_ADMIN_TOKEN", "shpat_dst")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "source.myshopify.com", cfg.Source.ShopDomain)
		assert.Equal(t, "shpat_src", cfg.Source.AdminToken)
		assert.Equal(t, "dest.myshopify.com", cfg.Dest.ShopDomain)
		assert.Equal(t, "shpat_dst", cfg.Dest.AdminToken)
	})

	t.Run("api version override", func(t *testing.T) {
		t.Setenv("SHOPIFY_API_VERSION", "2026-01")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "2026-01", cfg.APIVersion)
	})

	t.Run("worker count ignores garbage", func(t *testing.T) {
		t.Setenv("WORKER_COUNT", "not-a-number")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, 6, cfg.WorkerCount)
	})

	t.Run("worker count accepts override", func(t *testing.T) {
		t.Setenv("WORKER_COUNT", "4")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, 4, cfg.WorkerCount)
	})
}

func TestValidate(t *testing.T) {
	t.Run("missing source credentials", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.OutputDir = t.TempDir()
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SRC_SHOP_DOMAIN")
	})

	t.Run("missing dest credentials", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Source = TenantConfig{ShopDomain: "a.myshopify.com", AdminToken: "tok"}
		cfg.OutputDir = t.TempDir()
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DST_SHOP_DOMAIN")
	})

	t.Run("valid config passes", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Source = TenantConfig{ShopDomain: "a.myshopify.com", AdminToken: "tok-a"}
		cfg.Dest = TenantConfig{ShopDomain: "b.myshopify.com", AdminToken: "tok-b"}
		cfg.OutputDir = t.TempDir()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unwritable output dir fails", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Source = TenantConfig{ShopDomain: "a.myshopify.com", AdminToken: "tok-a"}
		cfg.Dest = TenantConfig{ShopDomain: "b.myshopify.com", AdminToken: "tok-b"}
		cfg.OutputDir = "/proc/codenerd-duplicator-should-not-exist/blocked"
		err := cfg.Validate()
		require.Error(t, err)
	})
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/smallbiznis/tally/internal/badge"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BadgeConfig holds deployment-wide badge defaults applied to new sites.
type BadgeConfig struct {
	DefaultStyle string            `mapstructure:"defaultStyle"`
	DefaultColor string            `mapstructure:"defaultColor"`
	DefaultLabel string            `mapstructure:"defaultLabel"`
	Palette      map[string]string `mapstructure:"palette"`
}

func DefaultBadgeConfig() BadgeConfig {
	return BadgeConfig{
		DefaultStyle: string(badge.StyleFlat),
		DefaultColor: badge.DefaultColor,
		DefaultLabel: badge.DefaultLabel,
	}
}

// Defaults returns the badge configuration used for sites without overrides.
func (c BadgeConfig) Defaults() badge.Config {
	return badge.Config{
		Style: badge.Style(c.DefaultStyle),
		Color: c.DefaultColor,
		Label: c.DefaultLabel,
	}
}

type BadgeConfigHolder struct {
	current atomic.Value // holds badgeSnapshot
}

// badgeSnapshot pairs a config with the renderer built from it so badge
// requests never rebuild the palette.
type badgeSnapshot struct {
	cfg      BadgeConfig
	renderer *badge.Renderer
}

func NewBadgeConfigHolder(log *zap.Logger) (*BadgeConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("badge.config")

	v := viper.New()

	v.SetConfigName("badge")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/tally/config")
	v.AddConfigPath("/etc/tally")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TALLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBadgeConfig()
	v.SetDefault("badge.defaultStyle", defaults.DefaultStyle)
	v.SetDefault("badge.defaultColor", defaults.DefaultColor)
	v.SetDefault("badge.defaultLabel", defaults.DefaultLabel)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		watch = false
	}

	var cfg BadgeConfig
	if err := v.UnmarshalKey("badge", &cfg); err != nil {
		return nil, err
	}
	if err := ValidateBadgeConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticBadgeConfigHolder(cfg)

	if watch {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated BadgeConfig
			if err := v.UnmarshalKey("badge", &updated); err != nil {
				log.Warn("reload failed", zap.String("file", e.Name), zap.Error(err))
				return
			}
			if err := ValidateBadgeConfig(updated); err != nil {
				log.Warn("invalid config ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.store(updated)
			log.Info("reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

// NewStaticBadgeConfigHolder returns a holder that never reloads.
func NewStaticBadgeConfigHolder(cfg BadgeConfig) *BadgeConfigHolder {
	holder := &BadgeConfigHolder{}
	holder.store(cfg)
	return holder
}

func (h *BadgeConfigHolder) store(cfg BadgeConfig) {
	h.current.Store(badgeSnapshot{
		cfg:      cfg,
		renderer: badge.NewRenderer(cfg.Defaults(), cfg.Palette),
	})
}

func (h *BadgeConfigHolder) Get() BadgeConfig {
	if h == nil {
		return DefaultBadgeConfig()
	}
	return h.current.Load().(badgeSnapshot).cfg
}

// Renderer returns the renderer for the current config, palette included.
func (h *BadgeConfigHolder) Renderer() *badge.Renderer {
	if h == nil {
		defaults := DefaultBadgeConfig()
		return badge.NewRenderer(defaults.Defaults(), nil)
	}
	return h.current.Load().(badgeSnapshot).renderer
}

func ValidateBadgeConfig(cfg BadgeConfig) error {
	if _, ok := badge.ParseStyle(cfg.DefaultStyle); !ok {
		return fmt.Errorf("badge.defaultStyle %q is not a known style", cfg.DefaultStyle)
	}
	if strings.TrimSpace(cfg.DefaultColor) == "" {
		return errors.New("badge.defaultColor cannot be empty")
	}
	if strings.TrimSpace(cfg.DefaultLabel) == "" {
		return errors.New("badge.defaultLabel cannot be empty")
	}
	for name, value := range cfg.Palette {
		if strings.TrimSpace(name) == "" || strings.TrimSpace(value) == "" {
			return errors.New("badge.palette entries need a name and a value")
		}
	}
	return nil
}

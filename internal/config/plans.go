package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PlanConfig holds the quota defaults applied to new users and the
// capacity granted by billing events.
type PlanConfig struct {
	DefaultPromptLimit  int `mapstructure:"defaultPromptLimit"`
	DefaultInvoiceLimit int `mapstructure:"defaultInvoiceLimit"`
	PaidPromptBonus     int `mapstructure:"paidPromptBonus"`
	PaidInvoiceBonus    int `mapstructure:"paidInvoiceBonus"`
	PublicLinkTTLDays   int `mapstructure:"publicLinkTTLDays"`
}

func DefaultPlanConfig() PlanConfig {
	return PlanConfig{
		DefaultPromptLimit:  10,
		DefaultInvoiceLimit: 5,
		PaidPromptBonus:     10,
		PaidInvoiceBonus:    0,
		PublicLinkTTLDays:   30,
	}
}

var defaultPlanConfigPaths = []string{
	"/var/lib/invoicely/config",
	"/etc/invoicely",
	".",
}

type PlanConfigHolder struct {
	current atomic.Value // holds PlanConfig
}

func NewPlanConfigHolder() (*PlanConfigHolder, error) {
	return newPlanConfigHolder(defaultPlanConfigPaths...)
}

// NewStaticPlanConfigHolder returns a holder that never reloads.
func NewStaticPlanConfigHolder(cfg PlanConfig) *PlanConfigHolder {
	holder := &PlanConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func newPlanConfigHolder(paths ...string) (*PlanConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix("INVOICELY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPlanConfig()
	v.SetDefault("plans.defaultPromptLimit", defaults.DefaultPromptLimit)
	v.SetDefault("plans.defaultInvoiceLimit", defaults.DefaultInvoiceLimit)
	v.SetDefault("plans.paidPromptBonus", defaults.PaidPromptBonus)
	v.SetDefault("plans.paidInvoiceBonus", defaults.PaidInvoiceBonus)
	v.SetDefault("plans.publicLinkTTLDays", defaults.PublicLinkTTLDays)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg PlanConfig
	if err := v.UnmarshalKey("plans", &cfg); err != nil {
		return nil, err
	}
	if err := validatePlanConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PlanConfigHolder{}
	holder.current.Store(cfg)

	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PlanConfig
		if err := v.UnmarshalKey("plans", &updated); err != nil {
			log.Printf("[plan-config] reload failed: %v", err)
			return
		}
		if err := validatePlanConfig(updated); err != nil {
			log.Printf("[plan-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[plan-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PlanConfigHolder) Get() PlanConfig {
	if h == nil {
		return DefaultPlanConfig()
	}
	cfg, ok := h.current.Load().(PlanConfig)
	if !ok {
		return DefaultPlanConfig()
	}
	return cfg
}

func validatePlanConfig(cfg PlanConfig) error {
	if cfg.DefaultPromptLimit < 0 {
		return errors.New("plans.defaultPromptLimit cannot be negative")
	}
	if cfg.DefaultInvoiceLimit < 0 {
		return errors.New("plans.defaultInvoiceLimit cannot be negative")
	}
	if cfg.PaidPromptBonus < 0 || cfg.PaidInvoiceBonus < 0 {
		return errors.New("plans bonuses cannot be negative")
	}
	if cfg.PublicLinkTTLDays <= 0 {
		return errors.New("plans.publicLinkTTLDays must be positive")
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// FeePolicy controls how payments are applied and numbered.
type FeePolicy struct {
	AllowOverpayment      bool                    `mapstructure:"allowOverpayment"`
	OrderTTL              time.Duration           `mapstructure:"orderTTL" validate:"gte=1m"`
	InvoiceNumberTemplate string                  `mapstructure:"invoiceNumberTemplate" validate:"required,contains={SEQ"`
	ReceiptNumberTemplate string                  `mapstructure:"receiptNumberTemplate" validate:"required,contains={SEQ"`
	Schools               map[string]SchoolPolicy `mapstructure:"schools"`
}

// SchoolPolicy overrides the deployment defaults for one school, keyed by school id.
type SchoolPolicy struct {
	AllowOverpayment *bool `mapstructure:"allowOverpayment"`
}

// EffectivePolicy is the resolved policy for one school.
type EffectivePolicy struct {
	AllowOverpayment      bool
	OrderTTL              time.Duration
	InvoiceNumberTemplate string
	ReceiptNumberTemplate string
}

func DefaultFeePolicy() FeePolicy {
	return FeePolicy{
		AllowOverpayment:      false,
		OrderTTL:              30 * time.Minute,
		InvoiceNumberTemplate: "INV-{YYYY}{MM}-{SEQ5}",
		ReceiptNumberTemplate: "{PREFIX}-{YYYY}-{SEQ6}",
	}
}

// For resolves per-school overrides on top of the defaults.
func (p FeePolicy) For(schoolID string) EffectivePolicy {
	out := EffectivePolicy{
		AllowOverpayment:      p.AllowOverpayment,
		OrderTTL:              p.OrderTTL,
		InvoiceNumberTemplate: p.InvoiceNumberTemplate,
		ReceiptNumberTemplate: p.ReceiptNumberTemplate,
	}
	if override, ok := p.Schools[schoolID]; ok && override.AllowOverpayment != nil {
		out.AllowOverpayment = *override.AllowOverpayment
	}
	return out
}

type FeePolicyHolder struct {
	current atomic.Value // holds FeePolicy
}

// NewStaticFeePolicyHolder returns a holder that never reloads.
func NewStaticFeePolicyHolder(policy FeePolicy) *FeePolicyHolder {
	holder := &FeePolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewFeePolicyHolder(cfg Config, log *zap.Logger) (*FeePolicyHolder, error) {
	log = log.Named("config.fee_policy")
	v := viper.New()

	if cfg.FeePolicyPath != "" {
		v.SetConfigFile(cfg.FeePolicyPath)
	} else {
		v.SetConfigName("fees")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/shiksha")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SHIKSHA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultFeePolicy()
	v.SetDefault("fees.allowOverpayment", defaults.AllowOverpayment)
	v.SetDefault("fees.orderTTL", defaults.OrderTTL)
	v.SetDefault("fees.invoiceNumberTemplate", defaults.InvoiceNumberTemplate)
	v.SetDefault("fees.receiptNumberTemplate", defaults.ReceiptNumberTemplate)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read fee policy: %w", err)
		}
		fileLoaded = false
	}

	policy, err := decodeFeePolicy(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticFeePolicyHolder(policy)
	if !fileLoaded {
		log.Info("fee policy file not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeFeePolicy(v)
		if err != nil {
			log.Warn("fee policy reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("fee policy reloaded", zap.String("file", e.Name), zap.Bool("allow_overpayment", updated.AllowOverpayment))
	})

	return holder, nil
}

func (h *FeePolicyHolder) Get() FeePolicy {
	return h.current.Load().(FeePolicy)
}

// For is shorthand for Get().For(schoolID).
func (h *FeePolicyHolder) For(schoolID string) EffectivePolicy {
	return h.Get().For(schoolID)
}

var policyValidator = validator.New()

func decodeFeePolicy(v *viper.Viper) (FeePolicy, error) {
	var file struct {
		Fees FeePolicy `mapstructure:"fees"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return FeePolicy{}, fmt.Errorf("decode fee policy: %w", err)
	}
	if err := ValidateFeePolicy(file.Fees); err != nil {
		return FeePolicy{}, err
	}
	return file.Fees, nil
}

func ValidateFeePolicy(policy FeePolicy) error {
	if err := policyValidator.Struct(policy); err != nil {
		return fmt.Errorf("invalid fee policy: %w", err)
	}
	return nil
}

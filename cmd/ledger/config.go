package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/affiliate/internal/logger"
	"github.com/nkiryanov/affiliate/internal/service/cashout"
)

const (
	defaultListenAddr        = "localhost:8000"
	defaultLoggingLevel      = logger.LevelInfo
	defaultEnvironment       = logger.EnvProduction
	defaultSalesTopic        = "sales"
	defaultLedgerEventsTopic = "ledger-events"
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the ledger http api will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Environment
	Environment string

	// Kafka brokers. Sale consumer and event relay are disabled if empty
	KafkaBrokers      []string
	SalesTopic        string
	LedgerEventsTopic string

	CashoutMinThreshold  decimal.Decimal
	CashoutProcessingFee decimal.Decimal
}

func NewConfig() *Config {
	policy := cashout.DefaultPolicy()

	return &Config{
		LogLevel:             defaultLoggingLevel,
		ListenAddr:           defaultListenAddr,
		Environment:          defaultEnvironment,
		SalesTopic:           defaultSalesTopic,
		LedgerEventsTopic:    defaultLedgerEventsTopic,
		CashoutMinThreshold:  policy.MinimumThreshold,
		CashoutProcessingFee: policy.ProcessingFee,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setList := func(o *[]string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = splitList(value)
			}
			return nil
		}
	}
	setDecimal := func(o *decimal.Decimal) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			return decimalValue{o}.Set(value)
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":            setString(&c.ListenAddr),
		"DATABASE_URI":           setString(&c.DatabaseDSN),
		"LOG_LEVEL":              setString(&c.LogLevel),
		"ENVIRONMENT":            setString(&c.Environment),
		"KAFKA_BROKERS":          setList(&c.KafkaBrokers),
		"SALES_TOPIC":            setString(&c.SalesTopic),
		"LEDGER_EVENTS_TOPIC":    setString(&c.LedgerEventsTopic),
		"CASHOUT_MIN_THRESHOLD":  setDecimal(&c.CashoutMinThreshold),
		"CASHOUT_PROCESSING_FEE": setDecimal(&c.CashoutProcessingFee),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("ledger", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringSliceVarP(&c.KafkaBrokers, "kafka-brokers", "k", c.KafkaBrokers, "Kafka brokers, comma separated")
	fs.StringVar(&c.SalesTopic, "sales-topic", c.SalesTopic, "Topic with sale events to consume")
	fs.StringVar(&c.LedgerEventsTopic, "ledger-events-topic", c.LedgerEventsTopic, "Topic to publish ledger events to")
	fs.Var(decimalValue{&c.CashoutMinThreshold}, "cashout-min-threshold", "Minimum balance to request a cashout")
	fs.Var(decimalValue{&c.CashoutProcessingFee}, "cashout-processing-fee", "Fee deducted from every cashout")

	return fs.Parse(args)
}

func (c *Config) Validate() error {
	if c.DatabaseDSN == "" {
		return errors.New("database dsn is required")
	}
	if c.CashoutMinThreshold.IsNegative() || c.CashoutProcessingFee.IsNegative() {
		return errors.New("cashout threshold and fee can't be negative")
	}
	if len(c.KafkaBrokers) > 0 && (c.SalesTopic == "" || c.LedgerEventsTopic == "") {
		return errors.New("kafka topics are required when brokers are set")
	}
	return nil
}

func (c *Config) CashoutPolicy() cashout.Policy {
	return cashout.Policy{
		MinimumThreshold: c.CashoutMinThreshold,
		ProcessingFee:    c.CashoutProcessingFee,
	}
}

func splitList(value string) []string {
	var items []string
	for item := range strings.SplitSeq(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// pflag.Value for decimal options
type decimalValue struct {
	d *decimal.Decimal
}

func (v decimalValue) String() string {
	if v.d == nil {
		return ""
	}
	return v.d.String()
}

func (v decimalValue) Set(value string) error {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return err
	}
	*v.d = d
	return nil
}

func (v decimalValue) Type() string {
	return "decimal"
}

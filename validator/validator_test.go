package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eddielth/mesh-trans/config"
)

func validConfig() *config.Config {
	return &config.Config{
		MQTT: config.MQTTConfig{Broker: "tcp://localhost:1883", QoS: 1},
		Logger: config.LoggerConfig{
			Level:      "INFO",
			MaxSize:    10,
			MaxBackups: 5,
		},
	}
}

func TestRangeValidator(t *testing.T) {
	data := struct {
		QoS  int
		Name string
	}{QoS: 3}

	assert.NoError(t, (&RangeValidator{Field: "QoS", Min: 0, Max: 3}).Validate(data))
	assert.Error(t, (&RangeValidator{Field: "QoS", Min: 0, Max: 2}).Validate(&data))
	assert.Error(t, (&RangeValidator{Field: "Name", Min: 0, Max: 2}).Validate(data))
	assert.Error(t, (&RangeValidator{Field: "Missing", Min: 0, Max: 2}).Validate(data))
	assert.Error(t, (&RangeValidator{Field: "QoS"}).Validate(42))
}

func TestOneOfValidator(t *testing.T) {
	data := struct{ Type string }{Type: "sqlite"}

	assert.NoError(t, (&OneOfValidator{Field: "Type", Values: []string{"mysql", "sqlite"}}).Validate(data))
	assert.Error(t, (&OneOfValidator{Field: "Type", Values: []string{"mysql"}}).Validate(data))
	assert.NoError(t, (&OneOfValidator{Field: "Type"}).Validate(data))
	assert.Error(t, (&OneOfValidator{Field: "Type"}).Validate(struct{ Type string }{}))
}

func TestValidateConfig(t *testing.T) {
	assert.NoError(t, ValidateConfig(validConfig()))

	cfg := validConfig()
	cfg.MQTT.QoS = 5
	cfg.MQTT.Broker = ""
	err := ValidateConfig(cfg)
	assert.ErrorContains(t, err, "QoS")
	assert.ErrorContains(t, err, "Broker")

	cfg = validConfig()
	cfg.Storage.Database = config.DatabaseStorageConfig{Enabled: true, Type: "oracle", DSN: "x"}
	assert.ErrorContains(t, ValidateConfig(cfg), "oracle")

	cfg = validConfig()
	cfg.Storage.Database = config.DatabaseStorageConfig{Enabled: false, Type: "oracle"}
	assert.NoError(t, ValidateConfig(cfg))
}

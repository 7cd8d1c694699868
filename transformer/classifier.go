package transformer

import (
	"time"

	"github.com/eddielth/mesh-trans/nodes"
)

// TimestampPolicy selects where a record's timestamp comes from
type TimestampPolicy int

const (
	// IngestTime stamps records with the wall clock at classification.
	// Timestamps embedded in the envelope are ignored.
	IngestTime TimestampPolicy = iota
)

// DefaultTimestampPolicy is the policy every Classifier uses
const DefaultTimestampPolicy = IngestTime

const (
	coordScale       = 1e7
	pdopScale        = 100
	groundTrackScale = 1e4
	loadScale        = 100
)

// Classifier turns decoded mesh messages into time-series records.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	nodes   *nodes.Directory
	clock   func() time.Time
	scripts *ScriptManager
}

// Option configures a Classifier
type Option func(*Classifier)

// WithClock overrides the clock used for ingest timestamps
func WithClock(clock func() time.Time) Option {
	return func(c *Classifier) {
		c.clock = clock
	}
}

// WithScripts lets message types outside the built-in set be handled by
// JavaScript rules. Built-in types never reach the scripts.
func WithScripts(scripts *ScriptManager) Option {
	return func(c *Classifier) {
		c.scripts = scripts
	}
}

// NewClassifier creates a classifier resolving node labels through dir
func NewClassifier(dir *nodes.Directory, opts ...Option) *Classifier {
	c := &Classifier{
		nodes: dir,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// telemetryRule pairs a presence test with a field extractor. Extractors
// return nil when nothing worth persisting is left.
type telemetryRule struct {
	category string
	match    func(p map[string]any) bool
	extract  func(p map[string]any) map[string]float64
}

// telemetryRules are tried in order; the first match decides the category
// even when its extractor then rejects the payload.
var telemetryRules = []telemetryRule{
	{
		category: CategoryEnv,
		match:    hasAny("barometric_pressure", "temperature", "relative_humidity"),
		extract:  extractEnvironment,
	},
	{
		category: CategoryDevice,
		match:    hasAny("battery_level", "voltage"),
		extract:  extractDevice,
	},
	{
		category: CategoryAir,
		match:    hasAny("pm10"),
		extract:  extractAirQuality,
	},
	{
		category: CategoryHost,
		match:    hasAll("uptime_seconds", "freemem_bytes"),
		extract:  extractHost,
	},
}

// Classify selects the extraction rule for msg and builds at most one record.
// It never fails: unknown or incomplete payloads come back as invalid.
func (c *Classifier) Classify(msg Message) Result {
	var (
		category string
		fields   map[string]float64
	)
	label := c.nodes.Resolve(msg.From)

	switch msg.Type {
	case TypeTelemetry:
		category, fields = classifyTelemetry(msg.Payload)
	case TypePosition:
		category, fields = CategoryPosition, extractPosition(msg.Payload)
	case TypeNodeInfo:
		// node info is never stored as a time series
		return invalid()
	default:
		if c.scripts == nil {
			return invalid()
		}
		category, fields = c.scripts.Run(msg, label)
	}

	if len(fields) == 0 {
		return invalid()
	}
	return c.result(label, category, fields)
}

// Apply classifies an envelope and returns it with payload replaced by records
func (c *Classifier) Apply(env Envelope) Output {
	res := c.Classify(env.Message())
	out := Output{
		From:    env.From,
		Type:    env.Type,
		Payload: res.Records,
		Valid:   res.Valid,
	}
	if res.Valid {
		out.DataType = res.Category
	}
	return out
}

func (c *Classifier) result(label, category string, fields map[string]float64) Result {
	record := Record{
		Measurement: label + "_" + category,
		Fields:      fields,
		Timestamp:   c.timestamp(),
	}
	return Result{
		Records:  []Record{record},
		Valid:    true,
		Category: category,
	}
}

// timestamp implements DefaultTimestampPolicy. A sensor-time policy would
// need the envelope passed in here.
func (c *Classifier) timestamp() int64 {
	return c.clock().UnixMilli()
}

func classifyTelemetry(p map[string]any) (string, map[string]float64) {
	for _, rule := range telemetryRules {
		if rule.match(p) {
			return rule.category, rule.extract(p)
		}
	}
	return "", nil
}

func hasAny(keys ...string) func(map[string]any) bool {
	return func(p map[string]any) bool {
		for _, k := range keys {
			if _, ok := number(p, k); ok {
				return true
			}
		}
		return false
	}
}

func hasAll(keys ...string) func(map[string]any) bool {
	return func(p map[string]any) bool {
		for _, k := range keys {
			if _, ok := number(p, k); !ok {
				return false
			}
		}
		return true
	}
}

// copyField sets fields[dst] from p[src] when the source is present
func copyField(fields map[string]float64, p map[string]any, src, dst string) {
	if v, ok := number(p, src); ok {
		fields[dst] = v
	}
}

// valueOrZero mirrors the "x || 0" defaulting of the mesh dashboards
func valueOrZero(p map[string]any, key string) float64 {
	v, _ := number(p, key)
	return v
}

func extractEnvironment(p map[string]any) map[string]float64 {
	fields := make(map[string]float64)
	copyField(fields, p, "temperature", "temperature")
	copyField(fields, p, "relative_humidity", "humidity")
	copyField(fields, p, "barometric_pressure", "pressure")
	copyField(fields, p, "gas_resistance", "gas_resistance")
	copyField(fields, p, "iaq", "iaq")
	copyField(fields, p, "lux", "light")
	copyField(fields, p, "uv_lux", "uv_light")
	return fields
}

func extractDevice(p map[string]any) map[string]float64 {
	fields := make(map[string]float64)
	// zero or negative battery and voltage readings are sentinels
	if v, ok := number(p, "battery_level"); ok && v > 0 {
		fields["battery_level"] = v
	}
	if v, ok := number(p, "voltage"); ok && v > 0 {
		fields["voltage"] = v
	}
	copyField(fields, p, "channel_utilization", "channel_utilization")
	copyField(fields, p, "air_util_tx", "air_util_tx")
	copyField(fields, p, "uptime_seconds", "uptime")
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// extractAirQuality omits pm25 and pm100 when the sensor did not report
// them; the environmental variants default to 0.
func extractAirQuality(p map[string]any) map[string]float64 {
	fields := map[string]float64{
		"pm10_e":  valueOrZero(p, "pm10_e"),
		"pm25_e":  valueOrZero(p, "pm25_e"),
		"pm100_e": valueOrZero(p, "pm100_e"),
	}
	copyField(fields, p, "pm10", "pm10")
	copyField(fields, p, "pm25", "pm25")
	copyField(fields, p, "pm100", "pm100")
	return fields
}

func extractHost(p map[string]any) map[string]float64 {
	fields := map[string]float64{
		"diskfree": valueOrZero(p, "diskfree1_bytes"),
		"load1":    valueOrZero(p, "load1") / loadScale,
		"load5":    valueOrZero(p, "load5") / loadScale,
		"load15":   valueOrZero(p, "load15") / loadScale,
	}
	copyField(fields, p, "uptime_seconds", "uptime")
	copyField(fields, p, "freemem_bytes", "freemem")
	return fields
}

func extractPosition(p map[string]any) map[string]float64 {
	lat, okLat := number(p, "latitude_i")
	lon, okLon := number(p, "longitude_i")
	if !okLat || !okLon {
		return nil
	}

	fields := map[string]float64{
		"latitude":  lat / coordScale,
		"longitude": lon / coordScale,
		"altitude":  valueOrZero(p, "altitude"),
	}
	if v, ok := number(p, "PDOP"); ok {
		fields["pdop"] = v / pdopScale
	}
	if v, ok := number(p, "ground_track"); ok {
		fields["ground_track"] = v / groundTrackScale
	}
	copyField(fields, p, "sats_in_view", "sats_in_view")
	copyField(fields, p, "precision_bits", "precision_bits")
	return fields
}

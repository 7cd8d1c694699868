package transformer

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/eddielth/mesh-trans/config"
	"github.com/eddielth/mesh-trans/logger"
)

// ScriptManager holds JavaScript rules for message types the built-in
// classifier does not handle
type ScriptManager struct {
	scripts map[string]*script
	mutex   sync.RWMutex
}

// script wraps one goja runtime. A runtime is not safe for concurrent use,
// so calls are serialized.
type script struct {
	vm         *goja.Runtime
	transform  goja.Callable
	scriptPath string
	mu         sync.Mutex
}

// NewScriptManager compiles one script per configured message type
func NewScriptManager(configs map[string]config.Script) (*ScriptManager, error) {
	manager := &ScriptManager{
		scripts: make(map[string]*script),
	}

	for msgType, cfg := range configs {
		if isBuiltinType(msgType) {
			return nil, fmt.Errorf("message type %s is handled natively and cannot be scripted", msgType)
		}

		s, err := loadScript(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create script for message type %s: %w", msgType, err)
		}

		manager.scripts[msgType] = s
		logger.Info("loaded script for message type %s", msgType)
	}

	return manager, nil
}

func isBuiltinType(msgType string) bool {
	switch msgType {
	case TypeTelemetry, TypePosition, TypeNodeInfo:
		return true
	}
	return false
}

func loadScript(cfg config.Script) (*script, error) {
	var scriptCode string

	// inline code wins over a script file
	if cfg.ScriptCode != "" {
		scriptCode = cfg.ScriptCode
	} else if cfg.ScriptPath != "" {
		scriptBytes, err := os.ReadFile(cfg.ScriptPath)
		if err != nil {
			return nil, fmt.Errorf("unable to load script file %s: %w", cfg.ScriptPath, err)
		}
		scriptCode = string(scriptBytes)
	} else {
		return nil, fmt.Errorf("no script code or script path provided")
	}

	return newScript(scriptCode, cfg.ScriptPath)
}

func newScript(scriptCode, scriptPath string) (*script, error) {
	vm := goja.New()

	_ = vm.Set("log", func(msg string) {
		logger.Info("[JS] %s", msg)
	})

	// unit conversion
	_ = vm.Set("convertTemperature", func(value float64, fromUnit string, toUnit string) float64 {
		fromUnit = strings.ToUpper(fromUnit)
		toUnit = strings.ToUpper(toUnit)

		var celsius float64
		switch fromUnit {
		case "C":
			celsius = value
		case "F":
			celsius = (value - 32) * 5 / 9
		case "K":
			celsius = value - 273.15
		default:
			return value
		}

		switch toUnit {
		case "C":
			return celsius
		case "F":
			return celsius*9/5 + 32
		case "K":
			return celsius + 273.15
		default:
			return celsius
		}
	})

	_ = vm.Set("validateRange", func(value float64, min float64, max float64) bool {
		return value >= min && value <= max
	})

	if _, err := vm.RunString(scriptCode); err != nil {
		return nil, fmt.Errorf("failed to execute script: %w", err)
	}

	transformValue := vm.Get("transform")
	if transformValue == nil {
		return nil, fmt.Errorf("script does not define a 'transform' function")
	}

	transform, ok := goja.AssertFunction(transformValue)
	if !ok {
		return nil, fmt.Errorf("'transform' is not a function")
	}

	return &script{
		vm:         vm,
		transform:  transform,
		scriptPath: scriptPath,
	}, nil
}

// Run calls the script registered for msg.Type. It returns the category and
// numeric fields the script produced; an empty field set means "discard".
// Script failures are logged and discarded, never returned.
func (m *ScriptManager) Run(msg Message, node string) (string, map[string]float64) {
	if m == nil {
		return "", nil
	}

	m.mutex.RLock()
	s, exists := m.scripts[msg.Type]
	m.mutex.RUnlock()

	if !exists {
		return "", nil
	}

	category, fields, err := s.run(msg, node)
	if err != nil {
		logger.Warn("script %s for message type %s failed: %v", s.name(), msg.Type, err)
		return "", nil
	}
	return category, fields
}

func (s *script) run(msg Message, node string) (string, map[string]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	input := map[string]any{
		"from":    msg.From,
		"type":    msg.Type,
		"node":    node,
		"payload": plain(msg.Payload),
	}

	result, err := s.transform(goja.Undefined(), s.vm.ToValue(input))
	if err != nil {
		return "", nil, fmt.Errorf("failed to execute transform: %w", err)
	}
	if goja.IsUndefined(result) || goja.IsNull(result) {
		return "", nil, nil
	}

	out, ok := result.Export().(map[string]any)
	if !ok {
		return "", nil, fmt.Errorf("transform must return an object, got %T", result.Export())
	}

	category, _ := out["category"].(string)
	if category == "" {
		return "", nil, fmt.Errorf("transform result has no category")
	}

	rawFields, _ := out["fields"].(map[string]any)
	fields := make(map[string]float64, len(rawFields))
	for name, value := range rawFields {
		if v, ok := toFloat(value); ok {
			fields[name] = v
		}
	}

	return category, fields, nil
}

func (s *script) name() string {
	if s.scriptPath == "" {
		return "<inline>"
	}
	return s.scriptPath
}

// plain converts json.Number values into float64 so scripts see real numbers
func plain(v any) any {
	switch t := v.(type) {
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = plain(inner)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = plain(inner)
		}
		return out
	default:
		return v
	}
}

// Reload replaces the script for one message type
func (m *ScriptManager) Reload(msgType string, cfg config.Script) error {
	if isBuiltinType(msgType) {
		return fmt.Errorf("message type %s is handled natively and cannot be scripted", msgType)
	}

	s, err := loadScript(cfg)
	if err != nil {
		return fmt.Errorf("failed to create script: %w", err)
	}

	m.mutex.Lock()
	m.scripts[msgType] = s
	m.mutex.Unlock()

	logger.Info("reloaded script for message type %s", msgType)
	return nil
}

// Types returns the message types that currently have a script
func (m *ScriptManager) Types() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	types := make([]string, 0, len(m.scripts))
	for t := range m.scripts {
		types = append(types, t)
	}
	return types
}

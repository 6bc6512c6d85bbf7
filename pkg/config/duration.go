package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration 可读的 duration：
// - YAML/JSON 支持字符串（例如 "1s", "500ms"）
// - 也支持数字，按“秒”解释
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind != yaml.ScalarNode {
		return fmt.Errorf("unsupported duration node")
	}
	switch value.Tag {
	case "!!str":
		return d.parse(value.Value)
	case "!!int", "!!float":
		f, err := strconv.ParseFloat(strings.TrimSpace(value.Value), 64)
		if err != nil {
			return fmt.Errorf("invalid duration seconds %q: %w", value.Value, err)
		}
		d.Duration = time.Duration(f * float64(time.Second))
		return nil
	case "!!null":
		d.Duration = 0
		return nil
	}
	return fmt.Errorf("unsupported duration node: tag=%s value=%q", value.Tag, value.Value)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		d.Duration = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		return d.parse(str)
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return err
	}
	d.Duration = time.Duration(secs * float64(time.Second))
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

// parse 字符串形式；纯数字按秒
func (d *Duration) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		d.Duration = 0
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		d.Duration = time.Duration(f * float64(time.Second))
		return nil
	}
	dd, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = dd
	return nil
}

package rcbled

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.yaml.in/yaml/v4"
)

// Duration is a time.Duration written as "1.5s" in configuration and status payloads.
// A bare number is read as seconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	return d.parse(fmt.Sprint(v))
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err != nil {
		return err
	}

	return d.parse(str)
}

func (d *Duration) parse(str string) error {
	if str == "" {
		return nil
	}

	if s, err := strconv.ParseFloat(str, 64); err == nil {
		d.Duration = time.Duration(s * float64(time.Second))
		return nil
	}

	v, err := time.ParseDuration(str)
	if err != nil {
		return err
	}

	d.Duration = v
	return nil
}

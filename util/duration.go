package util

import (
	"bytes"
	"encoding/json"
	"time"

	"gopkg.in/yaml.v3"
)

type Duration time.Duration

func (d Duration) IsZero() bool {
	return d == 0
}

// Or returns o if the duration is unset.
func (d Duration) Or(o time.Duration) time.Duration {
	if d.IsZero() {
		return o
	}
	return max(0, time.Duration(d))
}

// String representation of the duration.
func (d Duration) String() string {
	return time.Duration(d).String()
}
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
func (d *Duration) UnmarshalText(text []byte) (err error) {
	if bytes.Equal(text, []byte("never")) {
		*d = -1
		return
	}
	dx, err := time.ParseDuration(string(text))
	*d = Duration(dx)
	return
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var res string
	if err := node.Decode(&res); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(res))
}
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}
func (d *Duration) UnmarshalJSON(text []byte) (err error) {
	var res string
	if err := json.Unmarshal(text, &res); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(res))
}
